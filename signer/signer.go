// Package signer resolves the single signer used by an invocation.
//
// A Signer is either a Local signer holding a Credential or a remote signer
// reached through a pairing.Session. Both fill in PubKey, ID, and Sig of the
// event passed to SignEvent.
package signer

import (
	"context"

	"github.com/nbd-wtf/go-nostr"

	"xdao.co/pwapub/errs"
	"xdao.co/pwapub/keys"
	"xdao.co/pwapub/pairing"
)

type Signer interface {
	PublicKey(ctx context.Context) (string, error)
	SignEvent(ctx context.Context, evt *nostr.Event) error
}

var (
	_ Signer = (*Local)(nil)
	_ Signer = (*pairing.RemoteSigner)(nil)
)

// Local signs with an in-process secret key.
type Local struct {
	key keys.Credential
	pub string
}

func NewLocal(c keys.Credential) (*Local, error) {
	pub, err := c.PublicKey()
	if err != nil {
		return nil, errs.Wrap(errs.KindInvalidCredential, "invalid secret key", err)
	}
	return &Local{key: c, pub: pub}, nil
}

func (l *Local) PublicKey(context.Context) (string, error) { return l.pub, nil }

func (l *Local) SignEvent(_ context.Context, evt *nostr.Event) error {
	evt.PubKey = l.pub
	return evt.Sign(l.key.Hex())
}
