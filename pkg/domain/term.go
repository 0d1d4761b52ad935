package domain

import (
	"fmt"
	"strconv"
	"strings"
)

// Academic term bounds accepted by NormalizeTerm.
const (
	MinYear       = 2000
	MaxYear       = 3000
	termYearSpan  = 10000
	firstSemester = 1
	lastSemester  = 2
)

// TermKey encodes an academic term as semester*10000 + year, e.g. 12019 for
// semester 1 of 2019. Keys are totally ordered by semester first, then year.
type TermKey uint32

// NormalizeTerm validates a raw (semester, year) pair and folds it into a TermKey.
func NormalizeTerm(semester, year uint16) (TermKey, error) {
	if semester < firstSemester || semester > lastSemester {
		return 0, fmt.Errorf("%w: %d", ErrInvalidSemester, semester)
	}
	if year < MinYear || year > MaxYear {
		return 0, fmt.Errorf("%w: %d", ErrInvalidYear, year)
	}
	return TermKey(uint32(semester)*termYearSpan + uint32(year)), nil
}

// Semester returns the semester component of the key.
func (t TermKey) Semester() uint16 { return uint16(uint32(t) / termYearSpan) }

// Year returns the year component of the key.
func (t TermKey) Year() uint16 { return uint16(uint32(t) % termYearSpan) }

// Valid reports whether the key decodes to a pair NormalizeTerm would accept.
func (t TermKey) Valid() bool {
	_, err := NormalizeTerm(t.Semester(), t.Year())
	return err == nil && uint32(t) < (lastSemester+1)*termYearSpan
}

// String renders the key as "<semester>/<year>".
func (t TermKey) String() string {
	return fmt.Sprintf("%d/%d", t.Semester(), t.Year())
}

// ParseTermKey accepts either the encoded form ("12019") or "<semester>/<year>" ("1/2019").
func ParseTermKey(s string) (TermKey, error) {
	s = strings.TrimSpace(s)
	if sem, year, ok := strings.Cut(s, "/"); ok {
		semester, err := strconv.ParseUint(sem, 10, 16)
		if err != nil {
			return 0, fmt.Errorf("%w: %q", ErrInvalidTerm, s)
		}
		y, err := strconv.ParseUint(year, 10, 16)
		if err != nil {
			return 0, fmt.Errorf("%w: %q", ErrInvalidTerm, s)
		}
		return NormalizeTerm(uint16(semester), uint16(y))
	}
	raw, err := strconv.ParseUint(s, 10, 32)
	if err != nil {
		return 0, fmt.Errorf("%w: %q", ErrInvalidTerm, s)
	}
	key := TermKey(raw)
	if !key.Valid() {
		return 0, fmt.Errorf("%w: %q", ErrInvalidTerm, s)
	}
	return key, nil
}
