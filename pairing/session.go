package pairing

import (
	"context"
	"errors"
	"strings"
	"time"

	"go.uber.org/zap"

	"xdao.co/pwapub/errs"
	"xdao.co/pwapub/keys"
	"xdao.co/pwapub/relay"
)

// DefaultTimeout bounds the wait for the remote signer to become ready and
// for each later request.
const DefaultTimeout = 2 * time.Minute

// State is the session lifecycle position.
type State int

const (
	StateInit State = iota
	StateResolvingIdentity
	StateAwaitingRemoteReady
	StateReady
	StateFailed
)

func (s State) String() string {
	switch s {
	case StateInit:
		return "init"
	case StateResolvingIdentity:
		return "resolving-identity"
	case StateAwaitingRemoteReady:
		return "awaiting-remote-ready"
	case StateReady:
		return "ready"
	default:
		return "failed"
	}
}

type Options struct {
	// Pool carries the configured relays. Resolved relays are added to it.
	Pool *relay.Pool

	// Resolver looks up "name@domain" identities. Defaults to NIP05.
	Resolver IdentityResolver

	// LocalKey is the session key. A zero key is replaced by a fresh one.
	LocalKey keys.Credential

	// ExtraRelay is registered with the pool before resolution and joins
	// the RPC relay set.
	ExtraRelay string

	Timeout time.Duration
	Logger  *zap.Logger

	// OnAuthURL is called for every authorization challenge.
	OnAuthURL func(url string)
}

// Session is a paired remote signer. It is not safe for concurrent use.
type Session struct {
	opts  Options
	log   *zap.Logger
	state State

	local    keys.Credential
	localPub string
	target   Target
	relays   []string

	remotePub string
	userPub   string

	rpc   *channel
	close context.CancelFunc
}

// Open resolves pairing and waits for the remote signer to acknowledge. The
// returned session is Ready. On failure the error carries the errs.Kind of
// the failed step and nothing is retried.
func Open(ctx context.Context, pairing string, opts Options) (*Session, error) {
	if opts.Pool == nil {
		return nil, errs.New(errs.KindInvalidInput, "pairing: no relay pool")
	}
	if opts.Resolver == nil {
		opts.Resolver = NIP05{}
	}
	if opts.Timeout <= 0 {
		opts.Timeout = DefaultTimeout
	}
	if opts.Logger == nil {
		opts.Logger = zap.NewNop()
	}
	s := &Session{opts: opts, log: opts.Logger, state: StateInit}
	if err := s.open(ctx, pairing); err != nil {
		s.transition(StateFailed)
		s.Close()
		return nil, err
	}
	return s, nil
}

func (s *Session) open(ctx context.Context, pairing string) error {
	if strings.TrimSpace(pairing) == "" {
		return errs.New(errs.KindInvalidInput, "empty pairing string")
	}
	if s.opts.ExtraRelay != "" {
		s.opts.Pool.Add(s.opts.ExtraRelay)
	}
	s.local = s.opts.LocalKey
	if s.local.IsZero() {
		s.local = keys.Generate()
	}
	pub, err := s.local.PublicKey()
	if err != nil {
		return errs.Wrap(errs.KindInvalidCredential, "invalid local session key", err)
	}
	s.localPub = pub

	s.transition(StateResolvingIdentity)
	if err := s.resolve(ctx, pairing); err != nil {
		return err
	}

	s.transition(StateAwaitingRemoteReady)
	if err := s.awaitReady(ctx); err != nil {
		return err
	}
	s.transition(StateReady)
	return nil
}

func (s *Session) transition(to State) {
	s.log.Debug("pairing state", zap.Stringer("from", s.state), zap.Stringer("to", to))
	s.state = to
}

func (s *Session) resolve(ctx context.Context, pairing string) error {
	switch Classify(pairing) {
	case ShapeIdentity:
		lctx, cancel := context.WithTimeout(ctx, s.opts.Timeout)
		defer cancel()
		pub, relays, err := s.opts.Resolver.Lookup(lctx, pairing)
		if err != nil {
			return errs.Wrap(errs.KindIdentityNotFound, "identity lookup failed for "+pairing, err)
		}
		pk, ok := keys.ParsePublicKey(pub)
		if !ok {
			return errs.Newf(errs.KindIdentityNotFound, "no public key for %s", pairing)
		}
		s.log.Info("found user", zap.String("identity", pairing), zap.String("pubkey", pk))
		if len(relays) == 0 {
			relays = s.opts.Pool.URLs()
		}
		s.target = Target{Shape: ShapeIdentity, RemotePubkey: pk, Relays: relays}
	case ShapeBunkerURI:
		t, err := ParseBunkerURI(pairing)
		if err != nil {
			return err
		}
		s.target = t
	default:
		t := ParseToken(pairing)
		t.Relays = s.opts.Pool.URLs()
		s.target = t
	}
	relays := s.target.Relays
	if s.opts.ExtraRelay != "" {
		relays = append(relays[:len(relays):len(relays)], s.opts.ExtraRelay)
	}
	s.relays = s.opts.Pool.Add(relays...)
	if len(s.relays) == 0 {
		return errs.New(errs.KindMissingRelays, "no relays to reach the remote signer")
	}
	return nil
}

func (s *Session) awaitReady(ctx context.Context) error {
	connected := s.opts.Pool.Connect(ctx, s.relays)
	if len(connected) == 0 {
		return errs.New(errs.KindConnectionFailed, "could not connect to any signer relay")
	}
	s.relays = connected

	rctx, cancel := context.WithCancel(ctx)
	s.close = cancel
	rpc, err := openChannel(rctx, s.opts.Pool, connected, s.local, s.localPub, s.log)
	if err != nil {
		return err
	}
	s.rpc = rpc

	wctx, wcancel := context.WithTimeout(ctx, s.opts.Timeout)
	defer wcancel()

	if s.target.RemotePubkey != "" {
		s.remotePub = s.target.RemotePubkey
		params := []string{s.remotePub}
		if s.target.Secret != "" {
			params = append(params, s.target.Secret)
		}
		res, err := s.call(wctx, "connect", params)
		if err != nil {
			return s.handshakeErr("connect", err)
		}
		if res != "ack" && (s.target.Secret == "" || res != s.target.Secret) {
			return errs.Newf(errs.KindConnectionFailed, "unexpected connect result %q", res)
		}
	} else {
		from, err := s.awaitSecret(wctx)
		if err != nil {
			return s.handshakeErr("connect", err)
		}
		s.remotePub = from
	}

	user, err := s.call(wctx, "get_public_key", nil)
	if err != nil {
		return s.handshakeErr("get_public_key", err)
	}
	pk, ok := keys.ParsePublicKey(user)
	if !ok {
		return errs.Newf(errs.KindConnectionFailed, "remote signer returned invalid public key %q", user)
	}
	s.userPub = pk
	s.log.Info("remote signer ready", zap.String("signer", s.remotePub), zap.String("pubkey", pk))
	return nil
}

func (s *Session) handshakeErr(method string, err error) error {
	var re *RemoteError
	switch {
	case errors.Is(err, context.DeadlineExceeded):
		return errs.Wrap(errs.KindHandshakeTimeout, "remote signer did not respond to "+method, err)
	case errors.As(err, &re):
		return errs.Wrap(errs.KindConnectionFailed, "remote signer refused "+method, err)
	case errs.KindOf(err) != "":
		return err
	default:
		return errs.Wrap(errs.KindConnectionFailed, method+" failed", err)
	}
}

// call sends one request to the remote signer and waits for its response,
// surfacing authorization challenges along the way.
func (s *Session) call(ctx context.Context, method string, params []string) (string, error) {
	id, err := s.rpc.send(ctx, s.remotePub, method, params)
	if err != nil {
		return "", err
	}
	for {
		msg, err := s.rpc.receive(ctx)
		if err != nil {
			return "", err
		}
		if msg.ID != id || msg.From != s.remotePub {
			continue
		}
		if msg.Result == resultAuthURL {
			s.authChallenge(msg.Error)
			continue
		}
		if msg.Error != "" {
			return "", &RemoteError{Method: method, Message: msg.Error}
		}
		return msg.Result, nil
	}
}

// awaitSecret waits for a remote signer to answer with the connect secret and
// returns its public key.
func (s *Session) awaitSecret(ctx context.Context) (string, error) {
	if s.target.Secret == "" {
		return "", errs.New(errs.KindInvalidInput, "pairing token has no secret to match")
	}
	s.log.Info("waiting for remote signer", zap.String("pubkey", s.localPub))
	for {
		msg, err := s.rpc.receive(ctx)
		if err != nil {
			return "", err
		}
		switch {
		case msg.Result == resultAuthURL:
			s.authChallenge(msg.Error)
		case msg.Result == s.target.Secret:
			return msg.From, nil
		}
	}
}

func (s *Session) authChallenge(url string) {
	s.log.Info("remote signer requests authorization", zap.String("url", url))
	if s.opts.OnAuthURL != nil {
		s.opts.OnAuthURL(url)
	}
}

func (s *Session) State() State { return s.state }

// LocalKey returns the session key, generated or supplied.
func (s *Session) LocalKey() keys.Credential { return s.local }

// RemotePubkey is the key the remote signer answers from.
func (s *Session) RemotePubkey() string { return s.remotePub }

// UserPubkey is the key the remote signer signs with.
func (s *Session) UserPubkey() string { return s.userPub }

// Close stops listening for RPC responses.
func (s *Session) Close() {
	if s.close != nil {
		s.close()
	}
}
