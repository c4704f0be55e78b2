// Package events builds, identifies, and verifies the signed records pwapub
// exchanges with relays and storage servers.
//
// An event id is the sha256 of the canonical serialization
//
//	[0, pubkey, created_at, kind, tags, content]
//
// JSON-encoded without whitespace. The id must always equal a recomputation
// over the unsigned fields; Verify enforces that and checks the signature.
package events
