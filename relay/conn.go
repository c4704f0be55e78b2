package relay

import (
	"context"
	"fmt"

	"github.com/nbd-wtf/go-nostr"
)

// Conn is a single relay connection.
type Conn interface {
	// Publish sends evt and returns nil once the relay accepts it.
	Publish(ctx context.Context, evt nostr.Event) error
	// Query returns stored events matching filter.
	Query(ctx context.Context, filter nostr.Filter) ([]*nostr.Event, error)
	// Listen streams events matching filter until ctx is done.
	Listen(ctx context.Context, filter nostr.Filter) (<-chan *nostr.Event, error)
	Close() error
}

// DialFunc opens a Conn to url.
type DialFunc func(ctx context.Context, url string) (Conn, error)

// Dial connects to a relay over websocket.
func Dial(ctx context.Context, url string) (Conn, error) {
	r, err := nostr.RelayConnect(ctx, url)
	if err != nil {
		return nil, fmt.Errorf("relay: connect %s: %w", url, err)
	}
	return &nostrConn{relay: r}, nil
}

type nostrConn struct {
	relay *nostr.Relay
}

func (c *nostrConn) Publish(ctx context.Context, evt nostr.Event) error {
	return c.relay.Publish(ctx, evt)
}

func (c *nostrConn) Query(ctx context.Context, filter nostr.Filter) ([]*nostr.Event, error) {
	return c.relay.QuerySync(ctx, filter)
}

func (c *nostrConn) Listen(ctx context.Context, filter nostr.Filter) (<-chan *nostr.Event, error) {
	sub, err := c.relay.Subscribe(ctx, nostr.Filters{filter})
	if err != nil {
		return nil, err
	}
	out := make(chan *nostr.Event)
	go func() {
		defer close(out)
		defer sub.Unsub()
		for {
			select {
			case <-ctx.Done():
				return
			case evt, ok := <-sub.Events:
				if !ok {
					return
				}
				select {
				case out <- evt:
				case <-ctx.Done():
					return
				}
			}
		}
	}()
	return out, nil
}

func (c *nostrConn) Close() error {
	return c.relay.Close()
}
