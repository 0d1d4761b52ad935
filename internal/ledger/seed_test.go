package ledger

import (
	"bytes"
	"encoding/binary"
	"errors"
	"strings"
	"testing"
)

func TestSequenceSeedSourceIsMonotonic(t *testing.T) {
	src := NewSequenceSeedSource(5)
	for want := uint64(5); want < 8; want++ {
		seed, err := src.NextSeed()
		if err != nil {
			t.Fatalf("NextSeed: %v", err)
		}
		if got := binary.LittleEndian.Uint64(seed); got != want {
			t.Fatalf("expected %d got %d", want, got)
		}
	}
}

func TestRandomSeedSource(t *testing.T) {
	src := RandomSeedSource{Reader: bytes.NewReader(bytes.Repeat([]byte{0x42}, 64))}
	seed, err := src.NextSeed()
	if err != nil {
		t.Fatalf("NextSeed: %v", err)
	}
	if len(seed) != randomSeedSize || seed[0] != 0x42 {
		t.Fatalf("unexpected seed %x", seed)
	}

	short := RandomSeedSource{Reader: strings.NewReader("short")}
	if _, err := short.NextSeed(); err == nil {
		t.Fatalf("expected error for short reader")
	}

	a, _ := RandomSeedSource{}.NextSeed()
	b, _ := RandomSeedSource{}.NextSeed()
	if bytes.Equal(a, b) {
		t.Fatalf("crypto/rand produced identical seeds")
	}
}

func TestUUIDSeedSource(t *testing.T) {
	a, err := UUIDSeedSource{}.NextSeed()
	if err != nil {
		t.Fatalf("NextSeed: %v", err)
	}
	b, _ := UUIDSeedSource{}.NextSeed()
	if len(a) != 16 || bytes.Equal(a, b) {
		t.Fatalf("unexpected uuid seeds %x %x", a, b)
	}
}

func TestSeedSourceByName(t *testing.T) {
	for _, name := range []string{"", "random", "uuid", "sequence"} {
		if _, err := SeedSourceByName(name); err != nil {
			t.Fatalf("SeedSourceByName(%q): %v", name, err)
		}
	}
	if _, err := SeedSourceByName("clock"); err == nil {
		t.Fatalf("expected error for unknown source")
	}
}

func TestSeedSourceFunc(t *testing.T) {
	boom := errors.New("boom")
	src := SeedSourceFunc(func() (Seed, error) { return nil, boom })
	if _, err := src.NextSeed(); !errors.Is(err, boom) {
		t.Fatalf("expected boom, got %v", err)
	}
}
