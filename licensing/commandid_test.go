package licensing

import (
	"strings"
	"testing"
)

func TestDeterministicCommandID(t *testing.T) {
	a := DeterministicCommandID("alice::ns", "complete-renewal", "00renewal")
	b := DeterministicCommandID("alice::ns", "complete-renewal", "00renewal")
	if a != b {
		t.Fatalf("same inputs produced %q and %q", a, b)
	}
	if !strings.HasPrefix(a, "complete-renewal-") {
		t.Fatalf("id %q should carry the operation prefix", a)
	}

	variants := []string{
		DeterministicCommandID("bob::ns", "complete-renewal", "00renewal"),
		DeterministicCommandID("alice::ns", "accept-install", "00renewal"),
		DeterministicCommandID("alice::ns", "complete-renewal", "00other"),
	}
	for _, v := range variants {
		if v == a {
			t.Fatalf("distinct inputs collided on %q", v)
		}
	}
}

func TestNewCommandID(t *testing.T) {
	if NewCommandID() == NewCommandID() {
		t.Fatal("consecutive ids should differ")
	}
}
