// Package blobid derives stable content identifiers for opaque
// attestation blobs (disclosed-contract creation events), so logs and
// tests can name a blob without reproducing its bytes.
package blobid

import (
	"github.com/ipfs/go-cid"
	"github.com/multiformats/go-multihash"
)

// Digest returns a CIDv1 string (raw multicodec, sha2-256 multihash)
// derived from the blob bytes.
func Digest(blob []byte) string {
	sum, err := multihash.Sum(blob, multihash.SHA2_256, -1)
	if err != nil {
		// multihash.Sum only errors for invalid inputs; with SHA2_256 and
		// default length this is unreachable.
		return ""
	}
	return cid.NewCidV1(cid.Raw, sum).String()
}

// DigestCID returns the CIDv1 (raw + sha2-256) derived from blob.
func DigestCID(blob []byte) (cid.Cid, error) {
	sum, err := multihash.Sum(blob, multihash.SHA2_256, -1)
	if err != nil {
		return cid.Undef, err
	}
	return cid.NewCidV1(cid.Raw, sum), nil
}

// Equal reports whether two blobs have the same digest.
func Equal(a, b []byte) bool {
	return Digest(a) == Digest(b)
}
