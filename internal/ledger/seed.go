package ledger

import (
	"crypto/rand"
	"encoding/binary"
	"fmt"
	"io"
	"sync/atomic"

	"github.com/google/uuid"
)

// Seed is a per-call uniqueness input mixed into every derived identifier.
type Seed []byte

// SeedSource yields a fresh seed per identifier derivation. Two calls must not
// return the same seed within the lifetime of a ledger.
type SeedSource interface {
	NextSeed() (Seed, error)
}

// SeedSourceFunc adapts a function to SeedSource.
type SeedSourceFunc func() (Seed, error)

// NextSeed implements SeedSource.
func (f SeedSourceFunc) NextSeed() (Seed, error) { return f() }

const randomSeedSize = 32

// RandomSeedSource reads seeds from a cryptographic random source.
type RandomSeedSource struct {
	Reader io.Reader
}

// NextSeed implements SeedSource.
func (r RandomSeedSource) NextSeed() (Seed, error) {
	src := r.Reader
	if src == nil {
		src = rand.Reader
	}
	seed := make(Seed, randomSeedSize)
	if _, err := io.ReadFull(src, seed); err != nil {
		return nil, fmt.Errorf("read random seed: %w", err)
	}
	return seed, nil
}

// UUIDSeedSource uses random (v4) UUIDs as seeds.
type UUIDSeedSource struct{}

// NextSeed implements SeedSource.
func (UUIDSeedSource) NextSeed() (Seed, error) {
	id, err := uuid.NewRandom()
	if err != nil {
		return nil, fmt.Errorf("generate uuid seed: %w", err)
	}
	return Seed(id[:]), nil
}

// SequenceSeedSource yields deterministic, strictly increasing seeds. It is
// meant for tests and replayable fixtures.
type SequenceSeedSource struct {
	next atomic.Uint64
}

// NewSequenceSeedSource starts the sequence at start.
func NewSequenceSeedSource(start uint64) *SequenceSeedSource {
	s := &SequenceSeedSource{}
	s.next.Store(start)
	return s
}

// NextSeed implements SeedSource.
func (s *SequenceSeedSource) NextSeed() (Seed, error) {
	n := s.next.Add(1) - 1
	return Seed(binary.LittleEndian.AppendUint64(nil, n)), nil
}

// SeedSourceSequence names the deterministic source. It restarts at zero in
// every process, so it is only safe for stores that do not outlive the process.
const SeedSourceSequence = "sequence"

// SeedSourceByName resolves a configured seed source name. The empty name selects crypto/rand.
func SeedSourceByName(name string) (SeedSource, error) {
	switch name {
	case "", "random":
		return RandomSeedSource{}, nil
	case "uuid":
		return UUIDSeedSource{}, nil
	case SeedSourceSequence:
		return NewSequenceSeedSource(0), nil
	default:
		return nil, fmt.Errorf("unknown seed source %q", name)
	}
}
