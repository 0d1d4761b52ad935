package memory

import (
	"errors"
	"fmt"

	"sitcomledger/pkg/domain"
)

// ErrInconsistentState reports a primary map and index that disagree.
var ErrInconsistentState = errors.New("inconsistent ledger state")

// checkConsistency verifies that every stored record appears in exactly one
// term bucket of its kind, that bucket entries resolve to stored records with
// the matching term, that each owning student's sequence holds the code and
// that the record order lists every stored record exactly once.
func checkConsistency(s *memoryState) error {
	listed := make(map[RecordRef]struct{}, len(s.order))
	for _, ref := range s.order {
		if _, dup := listed[ref]; dup {
			return fmt.Errorf("%w: %s %s listed twice in record order", ErrInconsistentState, ref.Kind, ref.ID)
		}
		if _, ok := s.lookup(ref); !ok {
			return fmt.Errorf("%w: record order references unknown %s %s", ErrInconsistentState, ref.Kind, ref.ID)
		}
		listed[ref] = struct{}{}
	}
	if len(listed) != s.len() {
		return fmt.Errorf("%w: record order lists %d of %d records", ErrInconsistentState, len(listed), s.len())
	}

	seen := make(map[domain.RecordKind]map[domain.RecordID]domain.TermKey, len(s.terms))
	for kind, idx := range s.terms {
		ids := make(map[domain.RecordID]domain.TermKey)
		for term, bucket := range idx {
			for _, id := range bucket {
				if prev, dup := ids[id]; dup {
					return fmt.Errorf("%w: %s %s indexed under %s and %s", ErrInconsistentState, kind, id, prev, term)
				}
				ids[id] = term
			}
		}
		seen[kind] = ids
	}

	check := func(r domain.Record) error {
		term, ok := seen[r.Kind()][r.RecordID()]
		if !ok {
			return fmt.Errorf("%w: %s %s missing from term index", ErrInconsistentState, r.Kind(), r.RecordID())
		}
		if term != r.TermKey() {
			return fmt.Errorf("%w: %s %s indexed under %s, record term %s", ErrInconsistentState, r.Kind(), r.RecordID(), term, r.TermKey())
		}
		delete(seen[r.Kind()], r.RecordID())
		return nil
	}

	for _, r := range s.staff {
		if err := check(r); err != nil {
			return err
		}
		if !containsCode(s.studentCompetences[r.StudentID], r.CompetenceID) {
			return fmt.Errorf("%w: student %d lacks competence %d", ErrInconsistentState, r.StudentID, r.CompetenceID)
		}
	}
	for _, r := range s.auto {
		if err := check(r); err != nil {
			return err
		}
		if !containsCode(s.studentCompetences[r.StudentID], r.CompetenceID) {
			return fmt.Errorf("%w: student %d lacks competence %d", ErrInconsistentState, r.StudentID, r.CompetenceID)
		}
	}
	for _, r := range s.activities {
		if err := check(r); err != nil {
			return err
		}
		if !containsCode(s.studentActivities[r.StudentID], r.ActivityID) {
			return fmt.Errorf("%w: student %d lacks activity %d", ErrInconsistentState, r.StudentID, r.ActivityID)
		}
	}

	for kind, rest := range seen {
		for id := range rest {
			return fmt.Errorf("%w: %s term index references unknown record %s", ErrInconsistentState, kind, id)
		}
	}
	return nil
}

func containsCode[T comparable](values []T, code T) bool {
	for _, v := range values {
		if v == code {
			return true
		}
	}
	return false
}
