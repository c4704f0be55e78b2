package events

import (
	"encoding/json"

	"github.com/nbd-wtf/go-nostr"
)

// Profile is the subset of kind-0 metadata pwapub displays.
type Profile struct {
	Name        string `json:"name"`
	DisplayName string `json:"display_name"`
	// Some clients write the camel-case key.
	DisplayNameAlt string `json:"displayName"`
}

// ParseProfile decodes a kind-0 event's content.
func ParseProfile(evt *nostr.Event) (Profile, error) {
	var p Profile
	if err := json.Unmarshal([]byte(evt.Content), &p); err != nil {
		return Profile{}, err
	}
	return p, nil
}

// Label returns the best human-readable name, or "" if none is set.
func (p Profile) Label() string {
	switch {
	case p.DisplayName != "":
		return p.DisplayName
	case p.DisplayNameAlt != "":
		return p.DisplayNameAlt
	default:
		return p.Name
	}
}

// ProfileFilter selects the profile of pubkey.
func ProfileFilter(pubkey string) nostr.Filter {
	return nostr.Filter{Kinds: []int{KindProfile}, Authors: []string{pubkey}, Limit: 1}
}
