// Package cidutil derives content identifiers for archive payloads.
//
// Storage servers address blobs by their sha2-256 digest; the same digest
// wrapped as a CIDv1 (raw codec) gives an IPFS-compatible identifier.
package cidutil

import (
	"encoding/hex"
	"fmt"

	"github.com/ipfs/go-cid"
	"github.com/multiformats/go-multihash"
)

// CIDv1RawSHA256 returns a CIDv1 string using the "raw" multicodec
// and a sha2-256 multihash.
func CIDv1RawSHA256(data []byte) string {
	sum, err := multihash.Sum(data, multihash.SHA2_256, -1)
	if err != nil {
		// multihash.Sum only errors for invalid inputs; with SHA2_256 and -1 length,
		// this should be unreachable.
		return ""
	}
	return cid.NewCidV1(cid.Raw, sum).String()
}

// CIDv1RawSHA256CID returns a CIDv1 (raw + sha2-256) derived from data.
func CIDv1RawSHA256CID(data []byte) (cid.Cid, error) {
	sum, err := multihash.Sum(data, multihash.SHA2_256, -1)
	if err != nil {
		return cid.Undef, err
	}
	return cid.NewCidV1(cid.Raw, sum), nil
}

// SHA256Hex returns the lowercase hex sha2-256 digest of data, the blob
// address used by storage servers.
func SHA256Hex(data []byte) string {
	sum, err := multihash.Sum(data, multihash.SHA2_256, -1)
	if err != nil {
		return ""
	}
	decoded, err := multihash.Decode(sum)
	if err != nil {
		return ""
	}
	return hex.EncodeToString(decoded.Digest)
}

// FromSHA256Hex wraps a hex sha2-256 digest (as reported by a storage
// server) into a CIDv1 raw identifier.
func FromSHA256Hex(digestHex string) (cid.Cid, error) {
	digest, err := hex.DecodeString(digestHex)
	if err != nil {
		return cid.Undef, fmt.Errorf("cidutil: invalid digest: %w", err)
	}
	if len(digest) != 32 {
		return cid.Undef, fmt.Errorf("cidutil: sha2-256 digest must be 32 bytes, got %d", len(digest))
	}
	sum, err := multihash.Encode(digest, multihash.SHA2_256)
	if err != nil {
		return cid.Undef, err
	}
	return cid.NewCidV1(cid.Raw, sum), nil
}
