package storage

import (
	"context"
	"strings"

	"github.com/nbd-wtf/go-nostr"

	"xdao.co/pwapub/errs"
	"xdao.co/pwapub/events"
	"xdao.co/pwapub/relay"
)

// NormalizeServerURL trims s and its trailing slash, and adds "https://"
// when no scheme is present.
func NormalizeServerURL(s string) string {
	s = strings.TrimRight(strings.TrimSpace(s), "/")
	if s == "" {
		return ""
	}
	if !strings.Contains(s, "://") {
		s = "https://" + s
	}
	return s
}

// NormalizeServers normalizes each entry, dropping blanks and duplicates.
func NormalizeServers(list []string) []string {
	var out []string
	seen := make(map[string]bool)
	for _, s := range list {
		s = NormalizeServerURL(s)
		if s == "" || seen[s] {
			continue
		}
		seen[s] = true
		out = append(out, s)
	}
	return out
}

// ServersFromEvent extracts the servers of a media-servers event: every tag
// whose name is "r" or "server" and that has a value.
func ServersFromEvent(evt *nostr.Event) []string {
	var out []string
	for _, t := range evt.Tags {
		if len(t) < 2 {
			continue
		}
		if t[0] == "r" || t[0] == "server" {
			out = append(out, t[1])
		}
	}
	return NormalizeServers(out)
}

func ServerListFilter(pubkey string) nostr.Filter {
	return nostr.Filter{Kinds: []int{events.KindUserMediaServers}, Authors: []string{pubkey}, Limit: 1}
}

// DiscoverServers fetches pubkey's declared server list from relays. It
// fails with NoServersConfigured when no list exists or the list is empty.
func DiscoverServers(ctx context.Context, pool *relay.Pool, relays []string, pubkey string) ([]string, error) {
	evt, err := pool.FetchOne(ctx, relays, ServerListFilter(pubkey))
	if err != nil {
		return nil, errs.Wrap(errs.KindNoServersConfigured, "could not fetch media server list", err)
	}
	if evt == nil {
		return nil, errs.New(errs.KindNoServersConfigured, "no --servers given and no media server list published")
	}
	servers := ServersFromEvent(evt)
	if len(servers) == 0 {
		return nil, errs.New(errs.KindNoServersConfigured, "published media server list names no servers")
	}
	return servers, nil
}
