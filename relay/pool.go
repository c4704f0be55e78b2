package relay

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/nbd-wtf/go-nostr"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"xdao.co/pwapub/errs"
)

// ErrNoRelays is returned when an operation is given no relays.
var ErrNoRelays = errors.New("relay: no relays")

const defaultTimeout = 10 * time.Second

// Ack is the outcome of publishing to one relay.
type Ack struct {
	URL string
	Err error
}

func (a Ack) OK() bool { return a.Err == nil }

// Accepted returns the URLs of the relays that accepted, in ack order.
func Accepted(acks []Ack) []string {
	var out []string
	for _, a := range acks {
		if a.OK() {
			out = append(out, a.URL)
		}
	}
	return out
}

// Pool is a set of relay connections shared by one invocation.
type Pool struct {
	dial    DialFunc
	log     *zap.Logger
	timeout time.Duration

	mu     sync.Mutex
	urls   []string
	conns  map[string]Conn
	failed map[string]error
}

type Option func(*Pool)

// WithLogger sets the logger for per-relay outcomes.
func WithLogger(l *zap.Logger) Option {
	return func(p *Pool) { p.log = l }
}

// WithTimeout bounds each dial, publish, and query against a single relay.
func WithTimeout(d time.Duration) Option {
	return func(p *Pool) {
		if d > 0 {
			p.timeout = d
		}
	}
}

// NewPool returns a Pool that opens connections with dial. A nil dial uses
// Dial.
func NewPool(dial DialFunc, opts ...Option) *Pool {
	if dial == nil {
		dial = Dial
	}
	p := &Pool{
		dial:    dial,
		log:     zap.NewNop(),
		timeout: defaultTimeout,
		conns:   make(map[string]Conn),
		failed:  make(map[string]error),
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Add registers relays without connecting and returns their normalized URLs.
func (p *Pool) Add(urls ...string) []string {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]string, 0, len(urls))
	for _, u := range urls {
		n := nostr.NormalizeURL(u)
		if n == "" || contains(out, n) {
			continue
		}
		out = append(out, n)
		if !contains(p.urls, n) {
			p.urls = append(p.urls, n)
		}
	}
	return out
}

// URLs returns all registered relays in registration order.
func (p *Pool) URLs() []string {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]string(nil), p.urls...)
}

func (p *Pool) targets(urls []string) []string {
	if len(urls) == 0 {
		return p.URLs()
	}
	return p.Add(urls...)
}

func (p *Pool) conn(ctx context.Context, url string) (Conn, error) {
	p.mu.Lock()
	if c, ok := p.conns[url]; ok {
		p.mu.Unlock()
		return c, nil
	}
	if err, ok := p.failed[url]; ok {
		p.mu.Unlock()
		return nil, err
	}
	p.mu.Unlock()

	dctx, cancel := context.WithTimeout(ctx, p.timeout)
	defer cancel()
	c, err := p.dial(dctx, url)

	p.mu.Lock()
	defer p.mu.Unlock()
	if err != nil {
		err = errs.AtEndpoint(errs.KindConnectionFailed, url, "relay connection failed", err)
		p.failed[url] = err
		return nil, err
	}
	if existing, ok := p.conns[url]; ok {
		_ = c.Close()
		return existing, nil
	}
	p.conns[url] = c
	return c, nil
}

// Connect dials urls (all registered relays when empty) and returns the ones
// that are connected. Failures are logged.
func (p *Pool) Connect(ctx context.Context, urls []string) []string {
	targets := p.targets(urls)
	ok := make([]bool, len(targets))
	var g errgroup.Group
	for i, url := range targets {
		g.Go(func() error {
			if _, err := p.conn(ctx, url); err != nil {
				p.log.Warn("relay connection failed", zap.String("relay", url), zap.Error(err))
				return nil
			}
			p.log.Debug("relay connected", zap.String("relay", url))
			ok[i] = true
			return nil
		})
	}
	_ = g.Wait()

	var connected []string
	for i, url := range targets {
		if ok[i] {
			connected = append(connected, url)
		}
	}
	return connected
}

// Publish sends evt to every relay in urls (all registered relays when empty)
// concurrently. The returned acks follow the order of urls.
func (p *Pool) Publish(ctx context.Context, urls []string, evt nostr.Event) []Ack {
	targets := p.targets(urls)
	acks := make([]Ack, len(targets))
	var g errgroup.Group
	for i, url := range targets {
		g.Go(func() error {
			acks[i] = Ack{URL: url, Err: p.publishOne(ctx, url, evt)}
			if acks[i].Err != nil {
				p.log.Warn("relay rejected event", zap.String("relay", url), zap.String("event", evt.ID), zap.Error(acks[i].Err))
			} else {
				p.log.Debug("relay accepted event", zap.String("relay", url), zap.String("event", evt.ID))
			}
			return nil
		})
	}
	_ = g.Wait()
	return acks
}

func (p *Pool) publishOne(ctx context.Context, url string, evt nostr.Event) error {
	c, err := p.conn(ctx, url)
	if err != nil {
		return err
	}
	pctx, cancel := context.WithTimeout(ctx, p.timeout)
	defer cancel()
	return c.Publish(pctx, evt)
}

// FetchOne queries urls (all registered relays when empty) and returns the
// newest matching event, or nil when no relay has one. It fails only when
// every relay failed.
func (p *Pool) FetchOne(ctx context.Context, urls []string, filter nostr.Filter) (*nostr.Event, error) {
	targets := p.targets(urls)
	if len(targets) == 0 {
		return nil, ErrNoRelays
	}
	results := make([][]*nostr.Event, len(targets))
	failures := make([]error, len(targets))
	var g errgroup.Group
	for i, url := range targets {
		g.Go(func() error {
			c, err := p.conn(ctx, url)
			if err == nil {
				qctx, cancel := context.WithTimeout(ctx, p.timeout)
				results[i], err = c.Query(qctx, filter)
				cancel()
			}
			if err != nil {
				failures[i] = err
				p.log.Warn("relay query failed", zap.String("relay", url), zap.Error(err))
			}
			return nil
		})
	}
	_ = g.Wait()

	var newest *nostr.Event
	failed := 0
	for i := range targets {
		if failures[i] != nil {
			failed++
			continue
		}
		for _, evt := range results[i] {
			if evt == nil || !filter.Matches(evt) {
				continue
			}
			if newest == nil || evt.CreatedAt > newest.CreatedAt {
				newest = evt
			}
		}
	}
	if newest == nil && failed == len(targets) {
		return nil, errs.Wrap(errs.KindConnectionFailed, "no relay answered the query", errors.Join(failures...))
	}
	return newest, nil
}

// Subscribe listens on urls (all registered relays when empty) and merges
// matching events into one channel, dropping duplicates by id. The channel
// closes when ctx is done or every relay stream ends.
func (p *Pool) Subscribe(ctx context.Context, urls []string, filter nostr.Filter) (<-chan *nostr.Event, error) {
	targets := p.targets(urls)
	if len(targets) == 0 {
		return nil, ErrNoRelays
	}

	var streams []<-chan *nostr.Event
	var failures []error
	for _, url := range targets {
		c, err := p.conn(ctx, url)
		if err == nil {
			var ch <-chan *nostr.Event
			ch, err = c.Listen(ctx, filter)
			if err == nil {
				streams = append(streams, ch)
				continue
			}
		}
		failures = append(failures, err)
		p.log.Warn("relay subscription failed", zap.String("relay", url), zap.Error(err))
	}
	if len(streams) == 0 {
		return nil, errs.Wrap(errs.KindConnectionFailed, "no relay accepted the subscription", errors.Join(failures...))
	}

	out := make(chan *nostr.Event)
	var (
		wg   sync.WaitGroup
		mu   sync.Mutex
		seen = make(map[string]struct{})
	)
	for _, ch := range streams {
		wg.Add(1)
		go func(ch <-chan *nostr.Event) {
			defer wg.Done()
			for evt := range ch {
				mu.Lock()
				_, dup := seen[evt.ID]
				seen[evt.ID] = struct{}{}
				mu.Unlock()
				if dup {
					continue
				}
				select {
				case out <- evt:
				case <-ctx.Done():
					return
				}
			}
		}(ch)
	}
	go func() {
		wg.Wait()
		close(out)
	}()
	return out, nil
}

// Close closes every open connection.
func (p *Pool) Close() {
	p.mu.Lock()
	defer p.mu.Unlock()
	for url, c := range p.conns {
		_ = c.Close()
		delete(p.conns, url)
	}
}

func contains(list []string, s string) bool {
	for _, v := range list {
		if v == s {
			return true
		}
	}
	return false
}
