package events

import (
	"errors"
	"fmt"

	"github.com/nbd-wtf/go-nostr"
)

// Event kinds used by pwapub.
const (
	KindProfile          = 0
	KindMedia            = 1063
	KindUserMediaServers = 10063
	KindNostrConnect     = 24133
	KindStorageAuth      = 24242
)

var (
	ErrIDMismatch       = errors.New("events: id does not match canonical hash")
	ErrInvalidSignature = errors.New("events: signature does not verify")
)

// Template is an event before it is bound to an author.
type Template struct {
	Kind      int
	Content   string
	Tags      nostr.Tags
	CreatedAt nostr.Timestamp
}

// Unsigned binds t to pubkey. Tags are copied so the template can be reused.
func (t Template) Unsigned(pubkey string) nostr.Event {
	tags := make(nostr.Tags, 0, len(t.Tags))
	for _, tag := range t.Tags {
		tags = append(tags, append(nostr.Tag(nil), tag...))
	}
	createdAt := t.CreatedAt
	if createdAt == 0 {
		createdAt = nostr.Now()
	}
	return nostr.Event{
		Kind:      t.Kind,
		Content:   t.Content,
		Tags:      tags,
		CreatedAt: createdAt,
		PubKey:    pubkey,
	}
}

// Canonical returns the serialization the event id is computed over.
func Canonical(evt *nostr.Event) []byte {
	return evt.Serialize()
}

// ID computes the event id from the unsigned fields.
func ID(evt *nostr.Event) string {
	return evt.GetID()
}

// Verify checks that evt.ID matches its content and that evt.Sig is a valid
// signature by evt.PubKey.
func Verify(evt *nostr.Event) error {
	if evt.ID != ID(evt) {
		return ErrIDMismatch
	}
	ok, err := evt.CheckSignature()
	if err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidSignature, err)
	}
	if !ok {
		return ErrInvalidSignature
	}
	return nil
}

// TagValue returns the second element of the first tag named name.
func TagValue(tags nostr.Tags, name string) string {
	for _, tag := range tags {
		if len(tag) >= 2 && tag[0] == name {
			return tag[1]
		}
	}
	return ""
}
