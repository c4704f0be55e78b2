package signer

import (
	"context"

	"go.uber.org/zap"

	"xdao.co/pwapub/events"
	"xdao.co/pwapub/keys"
	"xdao.co/pwapub/relay"
)

// Owner is the identity behind a signer.
type Owner struct {
	Pubkey  string
	Profile events.Profile
}

// Label is the display name (if any) followed by the npub.
func (o Owner) Label() string {
	npub := keys.NPub(o.Pubkey)
	if l := o.Profile.Label(); l != "" {
		return l + " " + npub
	}
	return npub
}

// LookupOwner returns the signer's public key and, best effort, its profile
// from relays. A missing or unreadable profile is not an error.
func LookupOwner(ctx context.Context, s Signer, pool *relay.Pool, relays []string, log *zap.Logger) (Owner, error) {
	pub, err := s.PublicKey(ctx)
	if err != nil {
		return Owner{}, err
	}
	o := Owner{Pubkey: pub}
	evt, err := pool.FetchOne(ctx, relays, events.ProfileFilter(pub))
	if err != nil {
		log.Debug("profile lookup failed", zap.Error(err))
		return o, nil
	}
	if evt == nil {
		return o, nil
	}
	if p, err := events.ParseProfile(evt); err == nil {
		o.Profile = p
	} else {
		log.Debug("ignoring malformed profile", zap.String("event", evt.ID), zap.Error(err))
	}
	return o, nil
}
