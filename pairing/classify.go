package pairing

import (
	"net/url"
	"strings"

	"xdao.co/pwapub/errs"
	"xdao.co/pwapub/keys"
)

// Shape is the form of a pairing string.
type Shape int

const (
	ShapeIdentity Shape = iota
	ShapeBunkerURI
	ShapeToken
)

func (s Shape) String() string {
	switch s {
	case ShapeIdentity:
		return "identity"
	case ShapeBunkerURI:
		return "bunker-uri"
	default:
		return "token"
	}
}

const bunkerScheme = "bunker://"

// Classify returns the shape of a pairing string. The checks are ordered: a
// string containing "@" is an identity even if it starts with "bunker://".
func Classify(s string) Shape {
	switch {
	case strings.Contains(s, "@"):
		return ShapeIdentity
	case strings.HasPrefix(s, bunkerScheme):
		return ShapeBunkerURI
	default:
		return ShapeToken
	}
}

// Target is what a pairing string resolves to before any network I/O beyond
// directory lookup.
type Target struct {
	Shape        Shape
	RemotePubkey string
	Relays       []string
	Secret       string
}

// ParseBunkerURI parses "bunker://<pubkey>?relay=...&relay=...&secret=...".
func ParseBunkerURI(s string) (Target, error) {
	u, err := url.Parse(s)
	if err != nil {
		return Target{}, errs.Wrap(errs.KindIdentityNotFound, "invalid bunker URI", err)
	}
	pub := u.Host
	if pub == "" {
		pub, _, _ = strings.Cut(strings.TrimLeft(u.Path, "/"), "/")
	}
	q := u.Query()
	relays := q["relay"]
	if len(relays) == 0 {
		return Target{}, errs.New(errs.KindMissingRelays, "bunker URI has no relay parameters")
	}
	pk, ok := keys.ParsePublicKey(pub)
	if !ok {
		return Target{}, errs.Newf(errs.KindIdentityNotFound, "bunker URI has no valid remote public key: %q", pub)
	}
	return Target{
		Shape:        ShapeBunkerURI,
		RemotePubkey: pk,
		Relays:       relays,
		Secret:       q.Get("secret"),
	}, nil
}

// ParseToken interprets an opaque pairing token. "<npub|hex>[#secret]" names
// the remote key directly; any other token is used as the connect secret.
func ParseToken(s string) Target {
	head, secret, _ := strings.Cut(s, "#")
	if pk, ok := keys.ParsePublicKey(head); ok {
		return Target{Shape: ShapeToken, RemotePubkey: pk, Secret: secret}
	}
	return Target{Shape: ShapeToken, Secret: s}
}
