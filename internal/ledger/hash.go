package ledger

import (
	"crypto/sha256"
	"fmt"

	"golang.org/x/crypto/blake2b"

	"sitcomledger/pkg/domain"
)

// Hasher folds a canonical byte encoding into a fixed-width record identifier.
type Hasher interface {
	Name() string
	Sum(data []byte) domain.RecordID
}

// Blake2bHasher hashes with BLAKE2b-256. It is the default hasher.
type Blake2bHasher struct{}

func (Blake2bHasher) Name() string { return "blake2b" }

func (Blake2bHasher) Sum(data []byte) domain.RecordID { return blake2b.Sum256(data) }

// SHA256Hasher hashes with SHA-256.
type SHA256Hasher struct{}

func (SHA256Hasher) Name() string { return "sha256" }

func (SHA256Hasher) Sum(data []byte) domain.RecordID { return sha256.Sum256(data) }

// HasherByName resolves a configured hasher name. The empty name selects BLAKE2b.
func HasherByName(name string) (Hasher, error) {
	switch name {
	case "", "blake2b":
		return Blake2bHasher{}, nil
	case "sha256":
		return SHA256Hasher{}, nil
	default:
		return nil, fmt.Errorf("unknown hasher %q", name)
	}
}
