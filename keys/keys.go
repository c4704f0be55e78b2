package keys

import (
	"encoding/hex"
	"fmt"
	"regexp"
	"strings"

	"github.com/nbd-wtf/go-nostr"
	"github.com/nbd-wtf/go-nostr/nip19"
)

// Credential is a 32-byte secp256k1 secret scalar.
type Credential [32]byte

var hexKeyPattern = regexp.MustCompile(`^[0-9a-fA-F]{64}$`)

// Normalize converts a hex or bech32 "nsec" secret key into a Credential.
//
// Hex input is accepted in either case and normalized to lowercase. Any decode
// failure, or a bech32 value whose type is not "nsec", yields ok == false.
func Normalize(s string) (c Credential, ok bool) {
	hexKey, ok := NormalizeHex(s)
	if !ok {
		return Credential{}, false
	}
	raw, err := hex.DecodeString(hexKey)
	if err != nil || len(raw) != len(c) {
		return Credential{}, false
	}
	copy(c[:], raw)
	return c, true
}

// NormalizeHex is Normalize returning the lowercase hex form.
func NormalizeHex(s string) (string, bool) {
	s = strings.TrimSpace(s)
	if hexKeyPattern.MatchString(s) {
		return strings.ToLower(s), true
	}
	prefix, value, err := nip19.Decode(s)
	if err != nil || prefix != "nsec" {
		return "", false
	}
	sk, ok := value.(string)
	if !ok || !hexKeyPattern.MatchString(sk) {
		return "", false
	}
	return strings.ToLower(sk), true
}

// Generate returns a fresh random Credential.
func Generate() Credential {
	c, ok := Normalize(nostr.GeneratePrivateKey())
	if !ok {
		// GeneratePrivateKey always yields 64 hex characters.
		panic("keys: generated key is not 32 bytes of hex")
	}
	return c
}

// Hex returns the lowercase hex encoding of the secret.
func (c Credential) Hex() string {
	return hex.EncodeToString(c[:])
}

// IsZero reports whether c is the zero value.
func (c Credential) IsZero() bool {
	return c == Credential{}
}

// PublicKey derives the x-only public key (lowercase hex).
func (c Credential) PublicKey() (string, error) {
	if c.IsZero() {
		return "", fmt.Errorf("keys: empty credential")
	}
	pub, err := nostr.GetPublicKey(c.Hex())
	if err != nil {
		return "", fmt.Errorf("keys: derive public key: %w", err)
	}
	return pub, nil
}

// NSec returns the bech32 "nsec" encoding of the secret.
func (c Credential) NSec() (string, error) {
	return nip19.EncodePrivateKey(c.Hex())
}

// IsPublicKeyHex reports whether s is a 64-character lowercase hex key.
func IsPublicKeyHex(s string) bool {
	return hexKeyPattern.MatchString(s) && strings.ToLower(s) == s
}

// ParsePublicKey accepts a hex or bech32 "npub" public key and returns it as
// lowercase hex.
func ParsePublicKey(s string) (string, bool) {
	s = strings.TrimSpace(s)
	if hexKeyPattern.MatchString(s) {
		return strings.ToLower(s), true
	}
	prefix, value, err := nip19.Decode(s)
	if err != nil || prefix != "npub" {
		return "", false
	}
	pk, ok := value.(string)
	if !ok || !hexKeyPattern.MatchString(pk) {
		return "", false
	}
	return strings.ToLower(pk), true
}

// NPub returns the bech32 "npub" encoding of a hex public key, or the hex
// input unchanged if encoding fails.
func NPub(pubkey string) string {
	npub, err := nip19.EncodePublicKey(pubkey)
	if err != nil {
		return pubkey
	}
	return npub
}
