package pairing_test

import (
	"context"
	"testing"
	"time"

	"github.com/nbd-wtf/go-nostr"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"xdao.co/pwapub/errs"
	"xdao.co/pwapub/events"
	"xdao.co/pwapub/keys"
	"xdao.co/pwapub/pairing"
	"xdao.co/pwapub/pairing/pairingtest"
	"xdao.co/pwapub/relay"
	"xdao.co/pwapub/relay/relaytest"
)

const signerRelay = "wss://r1"

type fixture struct {
	ctx  context.Context
	hub  *relaytest.Hub
	pool *relay.Pool
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	t.Cleanup(cancel)
	hub := relaytest.NewHub()
	hub.Relay(signerRelay)
	pool := relay.NewPool(hub.Dial)
	t.Cleanup(pool.Close)
	return &fixture{ctx: ctx, hub: hub, pool: pool}
}

func (f *fixture) startBunker(t *testing.T, b *pairingtest.Bunker) *pairingtest.Bunker {
	t.Helper()
	require.NoError(t, b.Start(f.ctx, f.hub.Dial, signerRelay))
	return b
}

func resolveTo(pub string, relays ...string) pairing.IdentityResolver {
	return pairing.ResolverFunc(func(context.Context, string) (string, []string, error) {
		return pub, relays, nil
	})
}

func TestOpen_Identity(t *testing.T) {
	f := newFixture(t)
	b := f.startBunker(t, &pairingtest.Bunker{})

	s, err := pairing.Open(f.ctx, "alice@example.com", pairing.Options{
		Pool:     f.pool,
		Resolver: resolveTo(b.SignerPubkey(), signerRelay),
		Timeout:  5 * time.Second,
	})
	require.NoError(t, err)
	defer s.Close()

	assert.Equal(t, pairing.StateReady, s.State())
	assert.Equal(t, b.SignerPubkey(), s.RemotePubkey())
	assert.Equal(t, b.UserPubkey(), s.UserPubkey())
	assert.False(t, s.LocalKey().IsZero())
	assert.Equal(t, []string{"connect", "get_public_key"}, b.Methods())
}

func TestOpen_IdentityWithoutHintsUsesPoolRelays(t *testing.T) {
	f := newFixture(t)
	b := f.startBunker(t, &pairingtest.Bunker{})
	f.pool.Add(signerRelay)

	s, err := pairing.Open(f.ctx, "alice@example.com", pairing.Options{
		Pool:     f.pool,
		Resolver: resolveTo(b.SignerPubkey()),
		Timeout:  5 * time.Second,
	})
	require.NoError(t, err)
	s.Close()
}

func TestOpen_BunkerURIWithSecret(t *testing.T) {
	f := newFixture(t)
	b := f.startBunker(t, &pairingtest.Bunker{Secret: "s3cret"})

	s, err := pairing.Open(f.ctx, b.URI(), pairing.Options{Pool: f.pool, Timeout: 5 * time.Second})
	require.NoError(t, err)
	defer s.Close()
	assert.Equal(t, b.UserPubkey(), s.UserPubkey())
}

func TestOpen_WrongSecretFails(t *testing.T) {
	f := newFixture(t)
	b := f.startBunker(t, &pairingtest.Bunker{Secret: "s3cret"})

	token := keys.NPub(b.SignerPubkey()) + "#wrong"
	f.pool.Add(signerRelay)
	_, err := pairing.Open(f.ctx, token, pairing.Options{Pool: f.pool, Timeout: 5 * time.Second})
	require.Error(t, err)
	assert.True(t, errs.IsKind(err, errs.KindConnectionFailed), "got %v", err)
}

func TestOpen_AuthChallengeIsSurfaced(t *testing.T) {
	f := newFixture(t)
	b := f.startBunker(t, &pairingtest.Bunker{AuthURL: "https://signer.example/approve"})

	var urls []string
	s, err := pairing.Open(f.ctx, b.URI(), pairing.Options{
		Pool:      f.pool,
		Timeout:   5 * time.Second,
		OnAuthURL: func(u string) { urls = append(urls, u) },
	})
	require.NoError(t, err)
	defer s.Close()
	assert.Equal(t, []string{"https://signer.example/approve"}, urls)
}

func TestOpen_TokenLearnsRemoteKey(t *testing.T) {
	f := newFixture(t)
	b := f.startBunker(t, &pairingtest.Bunker{})
	f.pool.Add(signerRelay)
	r1 := f.hub.Relay(signerRelay)
	listeners := r1.Listeners()

	local := keys.Generate()
	localPub, err := local.PublicKey()
	require.NoError(t, err)

	type opened struct {
		s   *pairing.Session
		err error
	}
	done := make(chan opened, 1)
	go func() {
		s, err := pairing.Open(f.ctx, "opaque-token", pairing.Options{
			Pool:     f.pool,
			LocalKey: local,
			Timeout:  5 * time.Second,
		})
		done <- opened{s, err}
	}()

	require.Eventually(t, func() bool { return r1.Listeners() > listeners }, 5*time.Second, 10*time.Millisecond)
	require.NoError(t, b.InitiateConnect(f.ctx, localPub, "opaque-token"))

	res := <-done
	require.NoError(t, res.err)
	defer res.s.Close()
	assert.Equal(t, b.SignerPubkey(), res.s.RemotePubkey())
	assert.Equal(t, b.UserPubkey(), res.s.UserPubkey())
	assert.Equal(t, local, res.s.LocalKey())
	assert.Empty(t, r1.Events())
}

func TestOpen_BlankPairingRejected(t *testing.T) {
	f := newFixture(t)
	f.startBunker(t, &pairingtest.Bunker{})
	f.pool.Add(signerRelay)

	for _, pairingString := range []string{"", "   ", "\t\n"} {
		s, err := pairing.Open(f.ctx, pairingString, pairing.Options{Pool: f.pool, Timeout: 200 * time.Millisecond})
		require.Error(t, err, "pairing %q", pairingString)
		assert.Nil(t, s)
		assert.True(t, errs.IsKind(err, errs.KindInvalidInput), "got %v", err)
	}
}

func TestOpen_SilentSignerTimesOut(t *testing.T) {
	f := newFixture(t)
	b := f.startBunker(t, &pairingtest.Bunker{Silent: true})

	_, err := pairing.Open(f.ctx, b.URI(), pairing.Options{Pool: f.pool, Timeout: 100 * time.Millisecond})
	require.Error(t, err)
	assert.True(t, errs.IsKind(err, errs.KindHandshakeTimeout), "got %v", err)
}

func TestOpen_RefusedConnect(t *testing.T) {
	f := newFixture(t)
	b := f.startBunker(t, &pairingtest.Bunker{RefuseConnect: true})

	_, err := pairing.Open(f.ctx, b.URI(), pairing.Options{Pool: f.pool, Timeout: 5 * time.Second})
	require.Error(t, err)
	assert.True(t, errs.IsKind(err, errs.KindConnectionFailed), "got %v", err)
}

func TestOpen_IdentityNotFound(t *testing.T) {
	f := newFixture(t)
	_, err := pairing.Open(f.ctx, "nobody@example.com", pairing.Options{
		Pool:     f.pool,
		Resolver: resolveTo(""),
	})
	require.Error(t, err)
	assert.True(t, errs.IsKind(err, errs.KindIdentityNotFound), "got %v", err)
}

func TestOpen_MissingRelays(t *testing.T) {
	f := newFixture(t)
	pub, err := keys.Generate().PublicKey()
	require.NoError(t, err)

	_, err = pairing.Open(f.ctx, "alice@example.com", pairing.Options{
		Pool:     f.pool,
		Resolver: resolveTo(pub),
	})
	assert.True(t, errs.IsKind(err, errs.KindMissingRelays), "got %v", err)

	_, err = pairing.Open(f.ctx, "opaque-token", pairing.Options{Pool: f.pool})
	assert.True(t, errs.IsKind(err, errs.KindMissingRelays), "got %v", err)
}

func TestOpen_AllRelaysDown(t *testing.T) {
	f := newFixture(t)
	f.hub.Relay("wss://down").Down()
	pub, err := keys.Generate().PublicKey()
	require.NoError(t, err)

	_, err = pairing.Open(f.ctx, "alice@example.com", pairing.Options{
		Pool:     f.pool,
		Resolver: resolveTo(pub, "wss://down"),
	})
	assert.True(t, errs.IsKind(err, errs.KindConnectionFailed), "got %v", err)
}

func TestOpen_ExtraRelayIsUsed(t *testing.T) {
	f := newFixture(t)
	b := f.startBunker(t, &pairingtest.Bunker{})

	s, err := pairing.Open(f.ctx, keys.NPub(b.SignerPubkey()), pairing.Options{
		Pool:       f.pool,
		ExtraRelay: signerRelay,
		Timeout:    5 * time.Second,
	})
	require.NoError(t, err)
	s.Close()
}

func TestRemoteSigner_SignEvent(t *testing.T) {
	f := newFixture(t)
	b := f.startBunker(t, &pairingtest.Bunker{})
	s, err := pairing.Open(f.ctx, b.URI(), pairing.Options{Pool: f.pool, Timeout: 5 * time.Second})
	require.NoError(t, err)
	defer s.Close()

	signer := s.Signer()
	pub, err := signer.PublicKey(f.ctx)
	require.NoError(t, err)
	assert.Equal(t, b.UserPubkey(), pub)

	evt := events.MediaAnnouncement(events.Media{
		Filename: "app_1-0.zip",
		Size:     3,
		MimeType: events.MimePWA,
		SHA256:   "00",
		URL:      "https://s1/abc",
	}, nostr.Now()).Unsigned("")
	require.NoError(t, signer.SignEvent(f.ctx, &evt))
	assert.Equal(t, b.UserPubkey(), evt.PubKey)
	assert.NoError(t, events.Verify(&evt))
}

func TestRemoteSigner_Refused(t *testing.T) {
	f := newFixture(t)
	b := f.startBunker(t, &pairingtest.Bunker{RefuseSign: true})
	s, err := pairing.Open(f.ctx, b.URI(), pairing.Options{Pool: f.pool, Timeout: 5 * time.Second})
	require.NoError(t, err)
	defer s.Close()

	evt := nostr.Event{Kind: events.KindMedia, CreatedAt: nostr.Now(), Content: "x"}
	err = s.Signer().SignEvent(f.ctx, &evt)
	require.Error(t, err)
	assert.True(t, errs.IsKind(err, errs.KindConnectionFailed), "got %v", err)
	assert.Empty(t, evt.Sig)
}
