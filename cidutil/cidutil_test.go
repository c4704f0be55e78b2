package cidutil

import (
	"crypto/sha256"
	"encoding/hex"
	"testing"
)

func TestSHA256Hex_MatchesStdlib(t *testing.T) {
	data := []byte("packaged pwa bytes")
	want := sha256.Sum256(data)
	if got := SHA256Hex(data); got != hex.EncodeToString(want[:]) {
		t.Fatalf("SHA256Hex mismatch: got %s want %x", got, want)
	}
}

func TestFromSHA256Hex_RoundTrip(t *testing.T) {
	data := []byte("archive")
	want, err := CIDv1RawSHA256CID(data)
	if err != nil {
		t.Fatalf("CIDv1RawSHA256CID failed: %v", err)
	}
	got, err := FromSHA256Hex(SHA256Hex(data))
	if err != nil {
		t.Fatalf("FromSHA256Hex failed: %v", err)
	}
	if got != want {
		t.Fatalf("CID mismatch: got %s want %s", got, want)
	}
	if got.String() != CIDv1RawSHA256(data) {
		t.Fatalf("string form mismatch")
	}
}

func TestFromSHA256Hex_Rejects(t *testing.T) {
	for _, in := range []string{"", "zz", "abcd"} {
		if _, err := FromSHA256Hex(in); err == nil {
			t.Fatalf("FromSHA256Hex(%q): expected error", in)
		}
	}
}
