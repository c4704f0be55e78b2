package signer

import (
	"context"
	"time"

	"go.uber.org/zap"

	"xdao.co/pwapub/errs"
	"xdao.co/pwapub/keys"
	"xdao.co/pwapub/pairing"
	"xdao.co/pwapub/relay"
)

// Inputs are the operator-supplied credential fields. Nsec wins over
// Connect when both are set.
type Inputs struct {
	Nsec         string
	Connect      string
	ConnectNsec  string
	ConnectRelay string
}

// Deps are the collaborators a remote pairing needs.
type Deps struct {
	Pool      *relay.Pool
	Resolver  pairing.IdentityResolver
	Timeout   time.Duration
	Logger    *zap.Logger
	OnAuthURL func(url string)
}

// Resolved is the active signer and whatever it owns.
type Resolved struct {
	Signer  Signer
	Session *pairing.Session // nil for a local signer
}

// Close releases the pairing session, if any.
func (r *Resolved) Close() {
	if r.Session != nil {
		r.Session.Close()
	}
}

// Resolve produces exactly one signer. It fails with MissingCredentials when
// neither a key nor a pairing string is supplied and with InvalidCredential
// when a supplied key does not normalize. The local path does no network
// I/O.
func Resolve(ctx context.Context, in Inputs, deps Deps) (*Resolved, error) {
	switch {
	case in.Nsec != "":
		c, ok := keys.Normalize(in.Nsec)
		if !ok {
			return nil, errs.New(errs.KindInvalidCredential, "--nsec is not a valid hex or nsec secret key")
		}
		l, err := NewLocal(c)
		if err != nil {
			return nil, err
		}
		return &Resolved{Signer: l}, nil

	case in.Connect != "":
		var local keys.Credential
		if in.ConnectNsec != "" {
			c, ok := keys.Normalize(in.ConnectNsec)
			if !ok {
				return nil, errs.New(errs.KindInvalidCredential, "--connect-nsec is not a valid hex or nsec secret key")
			}
			if _, err := c.PublicKey(); err != nil {
				return nil, errs.Wrap(errs.KindInvalidCredential, "--connect-nsec is not a usable secret key", err)
			}
			local = c
		}
		s, err := pairing.Open(ctx, in.Connect, pairing.Options{
			Pool:       deps.Pool,
			Resolver:   deps.Resolver,
			LocalKey:   local,
			ExtraRelay: in.ConnectRelay,
			Timeout:    deps.Timeout,
			Logger:     deps.Logger,
			OnAuthURL:  deps.OnAuthURL,
		})
		if err != nil {
			return nil, err
		}
		return &Resolved{Signer: s.Signer(), Session: s}, nil

	default:
		return nil, errs.New(errs.KindMissingCredentials, "no signing credentials: pass --nsec or --connect")
	}
}
