package pairing

import (
	"context"

	"github.com/nbd-wtf/go-nostr/nip05"
)

// IdentityResolver resolves a "name@domain" identity to a public key and
// relay hints. An empty pubkey with a nil error means not found.
type IdentityResolver interface {
	Lookup(ctx context.Context, identifier string) (pubkey string, relays []string, err error)
}

// ResolverFunc adapts a function to IdentityResolver.
type ResolverFunc func(ctx context.Context, identifier string) (string, []string, error)

func (f ResolverFunc) Lookup(ctx context.Context, identifier string) (string, []string, error) {
	return f(ctx, identifier)
}

// NIP05 resolves identities through the domain's /.well-known/nostr.json.
type NIP05 struct{}

func (NIP05) Lookup(ctx context.Context, identifier string) (string, []string, error) {
	pp, err := nip05.QueryIdentifier(ctx, identifier)
	if err != nil {
		return "", nil, err
	}
	if pp == nil {
		return "", nil, nil
	}
	return pp.PublicKey, pp.Relays, nil
}
