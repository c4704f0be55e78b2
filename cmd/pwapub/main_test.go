package main

import (
	"bytes"
	"context"
	"net/http"
	"os"
	"path/filepath"
	"regexp"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"xdao.co/pwapub/events"
	"xdao.co/pwapub/keys"
	"xdao.co/pwapub/logging"
	"xdao.co/pwapub/pairing"
	"xdao.co/pwapub/pairing/pairingtest"
	"xdao.co/pwapub/relay/relaytest"
	"xdao.co/pwapub/storage/testkit"
)

type harness struct {
	t      *testing.T
	ctx    context.Context
	hub    *relaytest.Hub
	env    map[string]string
	idents map[string]string
	out    bytes.Buffer
	errOut bytes.Buffer
	stdin  string
}

func newHarness(t *testing.T) *harness {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Second)
	t.Cleanup(cancel)
	return &harness{
		t:      t,
		ctx:    ctx,
		hub:    relaytest.NewHub(),
		env:    map[string]string{"XDG_CONFIG_HOME": t.TempDir(), "HOME": t.TempDir()},
		idents: map[string]string{},
	}
}

func (h *harness) run(args ...string) int {
	h.out.Reset()
	h.errOut.Reset()
	a := &app{
		out:    &h.out,
		errOut: &h.errOut,
		stdin:  strings.NewReader(h.stdin),
		getenv: func(k string) string { return h.env[k] },
		dial:   h.hub.Dial,
		http:   http.DefaultClient,
		resolver: pairing.ResolverFunc(func(_ context.Context, id string) (string, []string, error) {
			return h.idents[id], []string{"wss://r1"}, nil
		}),
		newLogger: logging.New,
	}
	return a.run(h.ctx, args)
}

func (h *harness) writeArchive() string {
	h.t.Helper()
	path := filepath.Join(h.t.TempDir(), "app_1-0-0.pwa")
	require.NoError(h.t, os.WriteFile(path, []byte("PK fake zip bytes"), 0o644))
	return path
}

var (
	hexKeyLine   = regexp.MustCompile(`(?m)^=+\n([0-9a-f]{64})\n=+$`)
	publishedRef = regexp.MustCompile(`(?m)^Published ([0-9a-f]{64}) nostr:nevent1[0-9a-z]+$`)
)

func TestRun_Usage(t *testing.T) {
	h := newHarness(t)
	assert.Equal(t, 0, h.run("help"))
	assert.Contains(t, h.out.String(), "pwapub publish")

	assert.Equal(t, 2, h.run())
	assert.Equal(t, 2, h.run("frobnicate"))
	assert.Contains(t, h.errOut.String(), "unknown command: frobnicate")
}

func TestConnect_Identity(t *testing.T) {
	h := newHarness(t)
	h.hub.Relay("wss://r1")
	b := &pairingtest.Bunker{}
	require.NoError(t, b.Start(h.ctx, h.hub.Dial, "wss://r1"))
	h.idents["alice@example.com"] = b.SignerPubkey()

	require.Equal(t, 0, h.run("connect", "alice@example.com"), h.errOut.String())
	m := hexKeyLine.FindStringSubmatch(h.out.String())
	require.NotNil(t, m, h.out.String())
	_, ok := keys.Normalize(m[1])
	assert.True(t, ok)
	assert.Contains(t, h.out.String(), "Successfully connected to remote signer")
}

func TestConnect_SaveThenPublishWithSavedKey(t *testing.T) {
	h := newHarness(t)
	h.hub.Relay("wss://r1")
	b := &pairingtest.Bunker{}
	require.NoError(t, b.Start(h.ctx, h.hub.Dial, "wss://r1"))
	keyDir := t.TempDir()
	cfgPath := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(cfgPath, []byte("key_dir: "+keyDir+"\n"), 0o644))

	require.Equal(t, 0, h.run("connect", b.URI(), "--save", "ci", "--config", cfgPath), h.errOut.String())
	m := hexKeyLine.FindStringSubmatch(h.out.String())
	require.NotNil(t, m)
	ks, err := keys.CreateKeyStore(keyDir)
	require.NoError(t, err)
	saved, err := ks.Load("ci")
	require.NoError(t, err)
	assert.Equal(t, m[1], saved.Hex())

	srv := testkit.NewServer(t)
	code := h.run("publish", h.writeArchive(), "--config", cfgPath,
		"-c", b.URI(), "--connect-key-name", "ci", "-r", "wss://r1", "-b", srv.URL)
	require.Equal(t, 0, code, h.errOut.String())
	assert.NotContains(t, h.out.String(), "Session key")
	assert.Regexp(t, publishedRef, h.out.String())
}

func TestConnect_Failures(t *testing.T) {
	h := newHarness(t)
	assert.Equal(t, 1, h.run("connect", "nobody@example.com"))
	assert.Contains(t, h.errOut.String(), "IdentityNotFound")

	assert.Equal(t, 1, h.run("connect", "bunker://"+strings.Repeat("a", 64)))
	assert.Contains(t, h.errOut.String(), "MissingRelays")

	assert.Equal(t, 2, h.run("connect"))

	assert.Equal(t, 2, h.run("connect", "  "))
	assert.Contains(t, h.errOut.String(), "InvalidInput")
}

func TestPublish_EndToEnd(t *testing.T) {
	h := newHarness(t)
	r1 := h.hub.Relay("wss://r1")
	r2 := h.hub.Relay("wss://r2").Reject(nil)
	srv := testkit.NewServer(t)
	sk := keys.Generate()

	code := h.run("publish", h.writeArchive(), "--nsec", sk.Hex(), "--relays", "wss://r1,wss://r2", "--servers", srv.URL)
	require.Equal(t, 0, code, h.errOut.String())

	out := h.out.String()
	m := publishedRef.FindStringSubmatch(out)
	require.NotNil(t, m, out)
	assert.Contains(t, out, "To relays:\n  wss://r1\n")
	assert.NotContains(t, out, "  wss://r2")
	pub, _ := sk.PublicKey()
	assert.Contains(t, out, "Signing as "+keys.NPub(pub))

	require.Len(t, r1.Events(), 1)
	evt := r1.Events()[0]
	assert.Equal(t, m[1], evt.ID)
	assert.Equal(t, events.KindMedia, evt.Kind)
	assert.Equal(t, "app_1-0-0.pwa", evt.Content)
	assert.Equal(t, events.MimePWA, events.TagValue(evt.Tags, "m"))
	assert.Empty(t, r2.Events())
	assert.Contains(t, h.errOut.String(), "relay rejected event")
}

func TestPublish_RemoteSignerPrintsSessionKey(t *testing.T) {
	h := newHarness(t)
	h.hub.Relay("wss://r1")
	b := &pairingtest.Bunker{AuthURL: "https://signer.example/approve"}
	require.NoError(t, b.Start(h.ctx, h.hub.Dial, "wss://r1"))
	srv := testkit.NewServer(t)

	code := h.run("publish", h.writeArchive(), "--connect", b.URI(), "-r", "wss://r1", "-b", srv.URL, "--thumb", "https://x/icon.png")
	require.Equal(t, 0, code, h.errOut.String())
	out := h.out.String()
	assert.Contains(t, out, "Got auth url https://signer.example/approve")
	assert.Regexp(t, `Session key \(reuse with --connect-nsec\): [0-9a-f]{64}`, out)
	assert.Contains(t, out, "Signing as "+keys.NPub(b.UserPubkey()))
	assert.Regexp(t, publishedRef, out)
	require.Len(t, srv.Auths(), 1)
	assert.Equal(t, b.UserPubkey(), srv.Auths()[0].PubKey)
}

func TestPublish_NsecFromStdin(t *testing.T) {
	h := newHarness(t)
	h.hub.Relay("wss://r1")
	srv := testkit.NewServer(t)
	sk := keys.Generate()
	nsec, err := sk.NSec()
	require.NoError(t, err)
	h.stdin = nsec + "\n"

	require.Equal(t, 0, h.run("publish", h.writeArchive(), "--nsec", "-", "-r", "wss://r1", "-b", srv.URL), h.errOut.String())
	pub, _ := sk.PublicKey()
	assert.Contains(t, h.out.String(), keys.NPub(pub))
}

func TestPublish_EnvDefaults(t *testing.T) {
	h := newHarness(t)
	r1 := h.hub.Relay("wss://r1")
	srv := testkit.NewServer(t)
	h.env["PWAPUB_RELAYS"] = "wss://r1"
	h.env["PWAPUB_SERVERS"] = srv.URL
	h.env["PWAPUB_NSEC"] = keys.Generate().Hex()

	require.Equal(t, 0, h.run("publish", h.writeArchive()), h.errOut.String())
	assert.Len(t, r1.Events(), 1)
}

func TestPublish_Verbose(t *testing.T) {
	h := newHarness(t)
	h.hub.Relay("wss://r1")
	srv := testkit.NewServer(t)
	require.Equal(t, 0, h.run("publish", h.writeArchive(), "--nsec", keys.Generate().Hex(), "-r", "wss://r1", "-b", srv.URL, "--verbose"))
	out := h.out.String()
	assert.Contains(t, out, "Got response {")
	assert.Contains(t, out, "Created event {")
	assert.Contains(t, out, "Signed event {")
}

func TestPublish_NoRelayAcceptsIsAWarning(t *testing.T) {
	h := newHarness(t)
	h.hub.Relay("wss://r1").Reject(nil)
	srv := testkit.NewServer(t)

	require.Equal(t, 0, h.run("publish", h.writeArchive(), "--nsec", keys.Generate().Hex(), "-r", "wss://r1", "-b", srv.URL))
	assert.Contains(t, h.out.String(), "To relays:\n  (none)\n")
	assert.Contains(t, h.errOut.String(), "PublishPartialFailure")
}

func TestPublish_Failures(t *testing.T) {
	h := newHarness(t)
	h.hub.Relay("wss://r1")
	archive := h.writeArchive()

	assert.Equal(t, 2, h.run("publish", archive, "-r", "wss://r1"))
	assert.Contains(t, h.errOut.String(), "MissingCredentials")

	assert.Equal(t, 1, h.run("publish", archive, "--nsec", "nsec1bogus", "-r", "wss://r1"))
	assert.Contains(t, h.errOut.String(), "InvalidCredential")

	assert.Equal(t, 2, h.run("publish", archive, "--nsec", keys.Generate().Hex()))
	assert.Contains(t, h.errOut.String(), "--relays")

	assert.Equal(t, 2, h.run("publish", filepath.Join(t.TempDir(), "missing.pwa"), "--nsec", keys.Generate().Hex(), "-r", "wss://r1"))

	assert.Equal(t, 1, h.run("publish", archive, "--nsec", keys.Generate().Hex(), "-r", "wss://r1"))
	assert.Contains(t, h.errOut.String(), "NoServersConfigured")

	srv := testkit.NewServer(t).Fail(http.StatusForbidden, "not allowed")
	assert.Equal(t, 1, h.run("publish", archive, "--nsec", keys.Generate().Hex(), "-r", "wss://r1", "-b", srv.URL))
	assert.Contains(t, h.errOut.String(), "UploadFailed")
	assert.Contains(t, h.errOut.String(), "not allowed")
}

func TestPackage(t *testing.T) {
	h := newHarness(t)
	work := t.TempDir()
	t.Chdir(work)
	require.NoError(t, os.MkdirAll(filepath.Join("dist", "assets"), 0o755))
	require.NoError(t, os.WriteFile(filepath.Join("dist", "index.html"), []byte("<html>"), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join("dist", "assets", "app.js"), []byte("1"), 0o644))
	require.NoError(t, os.WriteFile("package.json", []byte(`{"name": "todo", "version": "2.1.0"}`), 0o644))

	require.Equal(t, 0, h.run("package", "-n", "app", "-v", "1.2.3"), h.errOut.String())
	assert.Equal(t, "Created app_1-2-3.pwa\n", h.out.String())
	assert.FileExists(t, filepath.Join(work, "app_1-2-3.pwa"))

	require.Equal(t, 0, h.run("package", "dist", "--package", "package.json"), h.errOut.String())
	assert.FileExists(t, filepath.Join(work, "todo_2-1-0.pwa"))

	assert.Equal(t, 2, h.run("package", "-n", "app"))
	assert.Contains(t, h.errOut.String(), "InvalidInput")
}
