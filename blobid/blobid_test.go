package blobid

import (
	"strings"
	"testing"
)

func TestDigestStable(t *testing.T) {
	blob := []byte("created-event-bytes")
	a := Digest(blob)
	b := Digest(blob)
	if a == "" || a != b {
		t.Fatalf("digests differ: %q vs %q", a, b)
	}
	// CIDv1 base32 form.
	if !strings.HasPrefix(a, "b") {
		t.Fatalf("digest %q should be a base32 CIDv1", a)
	}
}

func TestDigestDistinguishes(t *testing.T) {
	if Digest([]byte("a")) == Digest([]byte("b")) {
		t.Fatal("distinct blobs must not collide")
	}
	if !Equal([]byte("a"), []byte("a")) {
		t.Fatal("Equal should hold for identical blobs")
	}
	if Equal([]byte("a"), []byte("b")) {
		t.Fatal("Equal should fail for distinct blobs")
	}
}

func TestDigestCID(t *testing.T) {
	c, err := DigestCID([]byte("created-event-bytes"))
	if err != nil {
		t.Fatalf("DigestCID: %v", err)
	}
	if c.String() != Digest([]byte("created-event-bytes")) {
		t.Fatal("DigestCID and Digest must agree")
	}
}
