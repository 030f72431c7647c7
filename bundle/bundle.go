// Package bundle implements the content-addressed container for serialized
// IR. A bundle wraps a raw bytecode payload with a name, a unique ID, and
// a SHA-256 content hash, CBOR-encoded for interchange between tools.
package bundle

import (
	"crypto/sha256"
	"fmt"

	"github.com/fxamacker/cbor/v2"
	"github.com/google/uuid"
)

// cborEncMode uses canonical mode for deterministic encoding.
var cborEncMode cbor.EncMode

func init() {
	em, err := cbor.CanonicalEncOptions().EncMode()
	if err != nil {
		panic(fmt.Sprintf("bundle: failed to create CBOR enc mode: %v", err))
	}
	cborEncMode = em
}

// Bundle is the unit of IR distribution: one serialized expression or CFG
// plus the metadata needed to verify and index it.
type Bundle struct {
	Hash    [32]byte `cbor:"1,keyasint"`
	ID      string   `cbor:"2,keyasint"`
	Name    string   `cbor:"3,keyasint"`
	Payload []byte   `cbor:"4,keyasint"` // raw bytecode stream
}

// New creates a bundle around a bytecode payload, computing its content
// hash and assigning a fresh ID.
func New(name string, payload []byte) *Bundle {
	return &Bundle{
		Hash:    sha256.Sum256(payload),
		ID:      uuid.New().String(),
		Name:    name,
		Payload: payload,
	}
}

// Marshal serializes a bundle to CBOR bytes.
func Marshal(b *Bundle) ([]byte, error) {
	return cborEncMode.Marshal(b)
}

// Unmarshal deserializes a bundle from CBOR bytes.
func Unmarshal(data []byte) (*Bundle, error) {
	var b Bundle
	if err := cbor.Unmarshal(data, &b); err != nil {
		return nil, fmt.Errorf("bundle: unmarshal: %w", err)
	}
	return &b, nil
}

// Verify recomputes the payload hash and checks it against the declared
// hash.
func (b *Bundle) Verify() error {
	computed := sha256.Sum256(b.Payload)
	if computed != b.Hash {
		return fmt.Errorf("bundle: hash mismatch: declared %x, computed %x", b.Hash, computed)
	}
	return nil
}

// HashString returns the content hash in hex.
func (b *Bundle) HashString() string {
	return fmt.Sprintf("%x", b.Hash)
}
