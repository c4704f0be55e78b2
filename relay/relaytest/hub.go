// Package relaytest provides an in-memory relay network for tests.
//
// A Hub holds named relays; Hub.Dial satisfies relay.DialFunc. Published
// events are signature-checked and fanned out to live listeners. Ephemeral
// kinds are never stored, as on real relays.
package relaytest

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/nbd-wtf/go-nostr"

	"xdao.co/pwapub/events"
	"xdao.co/pwapub/relay"
)

// ErrRejected is the default error returned by a relay set to reject.
var ErrRejected = errors.New("relaytest: blocked: event rejected")

type Hub struct {
	mu     sync.Mutex
	relays map[string]*Relay
}

func NewHub() *Hub {
	return &Hub{relays: make(map[string]*Relay)}
}

// Relay returns the relay at url, creating it if needed.
func (h *Hub) Relay(url string) *Relay {
	url = nostr.NormalizeURL(url)
	h.mu.Lock()
	defer h.mu.Unlock()
	r, ok := h.relays[url]
	if !ok {
		r = &Relay{URL: url}
		h.relays[url] = r
	}
	return r
}

// Dial connects to a relay previously created with Relay.
func (h *Hub) Dial(ctx context.Context, url string) (relay.Conn, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	h.mu.Lock()
	r, ok := h.relays[nostr.NormalizeURL(url)]
	h.mu.Unlock()
	if !ok {
		return nil, fmt.Errorf("relaytest: no relay at %s", url)
	}
	r.mu.Lock()
	down := r.unreachable
	r.dials++
	r.mu.Unlock()
	if down {
		return nil, fmt.Errorf("relaytest: %s unreachable", url)
	}
	return &conn{relay: r}, nil
}

// Relay is one in-memory relay.
type Relay struct {
	URL string

	mu          sync.Mutex
	events      []*nostr.Event
	subs        []*subscription
	reject      error
	unreachable bool
	dials       int
}

// Reject makes every subsequent publish fail with err (ErrRejected if nil).
func (r *Relay) Reject(err error) *Relay {
	if err == nil {
		err = ErrRejected
	}
	r.mu.Lock()
	r.reject = err
	r.mu.Unlock()
	return r
}

// Down makes the relay refuse connections.
func (r *Relay) Down() *Relay {
	r.mu.Lock()
	r.unreachable = true
	r.mu.Unlock()
	return r
}

// Store seeds an event without delivering it to listeners.
func (r *Relay) Store(evt nostr.Event) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, &evt)
}

// Events returns the stored events in arrival order.
func (r *Relay) Events() []nostr.Event {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]nostr.Event, 0, len(r.events))
	for _, evt := range r.events {
		out = append(out, *evt)
	}
	return out
}

// Listeners returns the number of open subscriptions.
func (r *Relay) Listeners() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.subs)
}

// Dials returns how many connection attempts the relay has seen.
func (r *Relay) Dials() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.dials
}

func (r *Relay) publish(ctx context.Context, evt nostr.Event) error {
	if err := events.Verify(&evt); err != nil {
		return fmt.Errorf("invalid: %w", err)
	}
	r.mu.Lock()
	if r.reject != nil {
		err := r.reject
		r.mu.Unlock()
		return err
	}
	stored := evt
	if !nostr.IsEphemeralKind(evt.Kind) {
		r.events = append(r.events, &stored)
	}
	subs := append([]*subscription(nil), r.subs...)
	r.mu.Unlock()

	for _, s := range subs {
		if s.filter.Matches(&stored) {
			s.deliver(&stored)
		}
	}
	return ctx.Err()
}

func (r *Relay) query(filter nostr.Filter) []*nostr.Event {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.match(filter)
}

func (r *Relay) match(filter nostr.Filter) []*nostr.Event {
	var out []*nostr.Event
	for _, evt := range r.events {
		if filter.Matches(evt) {
			cp := *evt
			out = append(out, &cp)
		}
	}
	return out
}

func (r *Relay) listen(ctx context.Context, filter nostr.Filter) <-chan *nostr.Event {
	s := &subscription{ctx: ctx, filter: filter, ch: make(chan *nostr.Event, 256)}
	r.mu.Lock()
	backlog := r.match(filter)
	r.subs = append(r.subs, s)
	r.mu.Unlock()
	for _, evt := range backlog {
		s.deliver(evt)
	}

	go func() {
		<-ctx.Done()
		r.mu.Lock()
		for i, other := range r.subs {
			if other == s {
				r.subs = append(r.subs[:i], r.subs[i+1:]...)
				break
			}
		}
		r.mu.Unlock()
		s.close()
	}()
	return s.ch
}

type subscription struct {
	ctx    context.Context
	filter nostr.Filter

	mu     sync.Mutex
	closed bool
	ch     chan *nostr.Event
}

func (s *subscription) deliver(evt *nostr.Event) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return
	}
	select {
	case s.ch <- evt:
	case <-s.ctx.Done():
	}
}

func (s *subscription) close() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.closed {
		s.closed = true
		close(s.ch)
	}
}

type conn struct {
	relay *Relay
}

func (c *conn) Publish(ctx context.Context, evt nostr.Event) error {
	return c.relay.publish(ctx, evt)
}

func (c *conn) Query(ctx context.Context, filter nostr.Filter) ([]*nostr.Event, error) {
	return c.relay.query(filter), ctx.Err()
}

func (c *conn) Listen(ctx context.Context, filter nostr.Filter) (<-chan *nostr.Event, error) {
	return c.relay.listen(ctx, filter), nil
}

func (c *conn) Close() error { return nil }
