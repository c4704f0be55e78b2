package pairing

import (
	"context"
	"encoding/json"
	"errors"

	"github.com/nbd-wtf/go-nostr"

	"xdao.co/pwapub/errs"
	"xdao.co/pwapub/events"
)

// ErrSignatureMismatch is returned when the remote signer returns an event
// other than the one requested.
var ErrSignatureMismatch = errors.New("pairing: remote signer returned a different event")

// RemoteSigner signs through a Ready session.
type RemoteSigner struct {
	s *Session
}

func (s *Session) Signer() *RemoteSigner { return &RemoteSigner{s: s} }

func (r *RemoteSigner) PublicKey(context.Context) (string, error) {
	return r.s.userPub, nil
}

type unsignedEvent struct {
	PubKey    string          `json:"pubkey"`
	CreatedAt nostr.Timestamp `json:"created_at"`
	Kind      int             `json:"kind"`
	Tags      nostr.Tags      `json:"tags"`
	Content   string          `json:"content"`
}

// SignEvent asks the remote signer to sign evt and fills in its pubkey, id,
// and signature once the response is verified.
func (r *RemoteSigner) SignEvent(ctx context.Context, evt *nostr.Event) error {
	if r.s.state != StateReady {
		return errs.New(errs.KindConnectionFailed, "pairing session is not ready")
	}
	evt.PubKey = r.s.userPub
	if evt.Tags == nil {
		evt.Tags = nostr.Tags{}
	}
	payload, err := json.Marshal(unsignedEvent{
		PubKey:    evt.PubKey,
		CreatedAt: evt.CreatedAt,
		Kind:      evt.Kind,
		Tags:      evt.Tags,
		Content:   evt.Content,
	})
	if err != nil {
		return err
	}

	wctx, cancel := context.WithTimeout(ctx, r.s.opts.Timeout)
	defer cancel()
	res, err := r.s.call(wctx, "sign_event", []string{string(payload)})
	if err != nil {
		return r.s.handshakeErr("sign_event", err)
	}

	var signed nostr.Event
	if err := json.Unmarshal([]byte(res), &signed); err != nil {
		return errs.Wrap(errs.KindConnectionFailed, "remote signer returned malformed event", err)
	}
	if signed.ID != events.ID(evt) {
		return errs.Wrap(errs.KindConnectionFailed, "sign_event", ErrSignatureMismatch)
	}
	if err := events.Verify(&signed); err != nil {
		return errs.Wrap(errs.KindConnectionFailed, "sign_event", err)
	}
	evt.ID = signed.ID
	evt.Sig = signed.Sig
	return nil
}
