// Package publish uploads an archive and announces it to relays.
//
// The announcement is a signed media event whose content is the filename
// and whose tags carry name, size, mime type, sha256, url, optional
// thumbnail, and alt text. Relay acceptance is collected per relay. No
// acceptance at all is reported through Result.Partial, not as an error.
package publish

import (
	"context"

	"github.com/nbd-wtf/go-nostr"
	"go.uber.org/zap"

	"xdao.co/pwapub/errs"
	"xdao.co/pwapub/events"
	"xdao.co/pwapub/relay"
	"xdao.co/pwapub/signer"
	"xdao.co/pwapub/storage"
)

// Announcement is the outcome of broadcasting one media event.
type Announcement struct {
	Unsigned  nostr.Event
	Event     nostr.Event
	Reference string
	Acks      []relay.Ack
	Accepted  []string
}

// Partial reports that no relay accepted the event.
func (a Announcement) Partial() bool { return len(a.Accepted) == 0 }

// Warning returns a PublishPartialFailure error when Partial, else nil. It
// is meant to be reported, not returned.
func (a Announcement) Warning() error {
	if !a.Partial() {
		return nil
	}
	return errs.Newf(errs.KindPublishPartialFailure, "no relay accepted event %s", a.Event.ID)
}

// Announce builds, signs, and broadcasts the media event for m. Signing
// failures are returned; relay failures are only logged and collected.
func Announce(ctx context.Context, pool *relay.Pool, s signer.Signer, m events.Media, relays []string, log *zap.Logger) (Announcement, error) {
	if log == nil {
		log = zap.NewNop()
	}
	relays = pool.Add(relays...)
	if len(relays) == 0 {
		return Announcement{}, errs.New(errs.KindInvalidInput, "no relays to publish to")
	}

	unsigned := events.MediaAnnouncement(m, nostr.Now()).Unsigned("")
	evt := unsigned
	evt.Tags = append(nostr.Tags(nil), unsigned.Tags...)
	if err := s.SignEvent(ctx, &evt); err != nil {
		return Announcement{}, err
	}
	if err := events.Verify(&evt); err != nil {
		return Announcement{}, errs.Wrap(errs.KindInvalidCredential, "signer produced an invalid event", err)
	}
	unsigned.PubKey = evt.PubKey
	log.Debug("signed media event", zap.String("event", evt.ID))

	a := Announcement{Unsigned: unsigned, Event: evt}
	a.Acks = pool.Publish(ctx, relays, evt)
	a.Accepted = relay.Accepted(a.Acks)

	hints := a.Accepted
	if len(hints) == 0 {
		hints = relays
	}
	ref, err := events.Reference(&evt, hints)
	if err != nil {
		return a, err
	}
	a.Reference = ref

	if w := a.Warning(); w != nil {
		log.Warn("event not accepted by any relay", zap.String("event", evt.ID), zap.Strings("relays", relays))
	}
	return a, nil
}

// Options select where an archive goes.
type Options struct {
	Relays []string
	// Servers, when empty, are discovered from the signer's media server
	// list on Relays.
	Servers []string
	Thumb   string
}

// Result is an upload followed by its announcement.
type Result struct {
	Upload storage.Result
	Announcement
}

// Publisher runs upload then announcement with one signer. The
// coordinator's Authorize is expected to sign with the same signer.
type Publisher struct {
	Pool        *relay.Pool
	Signer      signer.Signer
	Coordinator storage.Coordinator
	Logger      *zap.Logger
}

// Publish uploads blob and announces it. Upload failures and signing
// failures are returned; see Announce for relay failures.
func (p *Publisher) Publish(ctx context.Context, blob storage.Blob, opts Options) (Result, error) {
	log := p.Logger
	if log == nil {
		log = zap.NewNop()
	}
	relays := p.Pool.Add(opts.Relays...)
	if len(relays) == 0 {
		return Result{}, errs.New(errs.KindInvalidInput, "no relays: pass --relays")
	}

	servers := storage.NormalizeServers(opts.Servers)
	if len(servers) == 0 {
		pub, err := p.Signer.PublicKey(ctx)
		if err != nil {
			return Result{}, err
		}
		servers, err = storage.DiscoverServers(ctx, p.Pool, relays, pub)
		if err != nil {
			return Result{}, err
		}
		log.Info("using published media servers", zap.Strings("servers", servers))
	}

	up, err := p.Coordinator.Upload(ctx, blob, servers)
	if err != nil {
		return Result{Upload: up}, err
	}
	log.Info("uploaded", zap.String("server", up.Server), zap.String("url", up.Descriptor.URL))

	size := up.Descriptor.Size
	if size == 0 {
		size = int64(len(blob.Data))
	}
	a, err := Announce(ctx, p.Pool, p.Signer, events.Media{
		Filename: blob.Name,
		Size:     size,
		MimeType: blob.Type,
		SHA256:   up.Descriptor.SHA256,
		URL:      up.Descriptor.URL,
		Thumb:    opts.Thumb,
	}, relays, log)
	return Result{Upload: up, Announcement: a}, err
}
