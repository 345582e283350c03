package id

import (
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
)

// ObjectIDHexLength is the length of a hex-encoded 12-byte document identifier
const ObjectIDHexLength = 24

// eventIDLength is the byte length of ledger event identifiers (16 hex chars)
const eventIDLength = 8

var (
	randReader = rand.Reader

	eventIDPool = sync.Pool{
		New: func() any {
			b := make([]byte, eventIDLength)
			return &b
		},
	}
)

// NewSharedID generates the identifier shared by a primary document and
// its secondary row. It is a UUID v4 string.
func NewSharedID() string {
	return uuid.New().String()
}

// ValidateSharedID reports whether id looks like a usable shared identifier:
// either a UUID or a 24-character hex document id.
func ValidateSharedID(id string) bool {
	return ValidateUUID(id) || IsObjectIDHex(id)
}

// NewEventID generates a short random identifier for ledger entries
func NewEventID() string {
	bufPtr := eventIDPool.Get().(*[]byte)
	defer eventIDPool.Put(bufPtr)
	buf := *bufPtr

	if _, err := randReader.Read(buf); err != nil {
		return fmt.Sprintf("%016x", time.Now().UnixNano())
	}

	return hex.EncodeToString(buf)
}

// IsObjectIDHex reports whether s has the shape of a hex-encoded document id
func IsObjectIDHex(s string) bool {
	if len(s) != ObjectIDHexLength {
		return false
	}
	_, err := hex.DecodeString(s)
	return err == nil
}

// ValidateUUID validates a UUID format
func ValidateUUID(id string) bool {
	_, err := uuid.Parse(id)
	return err == nil
}

// ParseUUID parses and validates a UUID string
func ParseUUID(id string) (uuid.UUID, error) {
	return uuid.Parse(id)
}
