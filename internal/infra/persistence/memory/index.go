package memory

import "sitcomledger/pkg/domain"

// index appends r to the by-student and by-term families of its kind.
// Sequences are append-only and keep duplicates.
func (s *memoryState) index(r domain.Record) {
	switch rec := r.(type) {
	case domain.StaffGrantedCompetence:
		s.studentCompetences[rec.StudentID] = append(s.studentCompetences[rec.StudentID], rec.CompetenceID)
	case domain.AutoGrantedCompetence:
		s.studentCompetences[rec.StudentID] = append(s.studentCompetences[rec.StudentID], rec.CompetenceID)
	case domain.ApprovedActivity:
		s.studentActivities[rec.StudentID] = append(s.studentActivities[rec.StudentID], rec.ActivityID)
	}
	idx := s.terms[r.Kind()]
	idx[r.TermKey()] = append(idx[r.TermKey()], r.RecordID())
}

// insert stores r in the primary map of its kind and indexes it.
func (s *memoryState) insert(r domain.Record) {
	switch rec := r.(type) {
	case domain.StaffGrantedCompetence:
		s.staff[rec.ID] = rec
	case domain.ApprovedActivity:
		s.activities[rec.ID] = rec
	case domain.AutoGrantedCompetence:
		s.auto[rec.ID] = rec
	}
	s.order = append(s.order, refOf(r))
	s.index(r)
}

func concatCompetences(layers []*memoryState, student domain.StudentID) []domain.CompetenceID {
	out := []domain.CompetenceID{}
	for _, l := range layers {
		out = append(out, l.studentCompetences[student]...)
	}
	return out
}

func concatActivities(layers []*memoryState, student domain.StudentID) []domain.ActivityID {
	out := []domain.ActivityID{}
	for _, l := range layers {
		out = append(out, l.studentActivities[student]...)
	}
	return out
}

func concatTerm(layers []*memoryState, kind domain.RecordKind, term domain.TermKey) []domain.RecordID {
	out := []domain.RecordID{}
	for _, l := range layers {
		if idx, ok := l.terms[kind]; ok {
			out = append(out, idx[term]...)
		}
	}
	return out
}
