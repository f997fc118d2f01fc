package licensing

import (
	"encoding/hex"

	"github.com/google/uuid"
	"golang.org/x/crypto/blake2b"
)

// NewCommandID returns a fresh random command id for ad-hoc submissions.
func NewCommandID() string {
	return uuid.NewString()
}

// DeterministicCommandID derives a stable command id from the acting
// party, the operation name, and the subject contract id. Resubmitting
// the same logical operation reuses the id, so the ledger deduplicates
// instead of re-executing.
func DeterministicCommandID(party, operation, subject string) string {
	h, _ := blake2b.New256(nil)
	h.Write([]byte(party))
	h.Write([]byte{0})
	h.Write([]byte(operation))
	h.Write([]byte{0})
	h.Write([]byte(subject))
	return operation + "-" + hex.EncodeToString(h.Sum(nil)[:16])
}
