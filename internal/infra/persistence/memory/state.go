package memory

import (
	"slices"
	"sort"

	"sitcomledger/pkg/domain"
)

// snapshotVersion is bumped whenever the exported layout changes. Version 0
// snapshots carried primary maps only and version 1 had no record order.
const (
	indexedSnapshotVersion = 1
	snapshotVersion        = 2
)

type termIndex map[domain.TermKey][]domain.RecordID

type memoryState struct {
	staff      map[domain.RecordID]domain.StaffGrantedCompetence
	activities map[domain.RecordID]domain.ApprovedActivity
	auto       map[domain.RecordID]domain.AutoGrantedCompetence

	studentCompetences map[domain.StudentID][]domain.CompetenceID
	studentActivities  map[domain.StudentID][]domain.ActivityID
	terms              map[domain.RecordKind]termIndex

	order []RecordRef
}

// RecordRef names a stored record by kind and identifier.
type RecordRef struct {
	Kind domain.RecordKind `json:"kind"`
	ID   domain.RecordID   `json:"id"`
}

func refOf(r domain.Record) RecordRef {
	return RecordRef{Kind: r.Kind(), ID: r.RecordID()}
}

// Snapshot captures a point-in-time copy of the store state. Index sequences
// are exported verbatim because their order and duplicates cannot be
// recovered from the primary maps. Order lists every record in insertion
// order so the snapshot can be replayed into an append-only journal.
type Snapshot struct {
	Version            int                                                       `json:"version"`
	StaffCompetences   map[domain.RecordID]domain.StaffGrantedCompetence         `json:"staff_competences"`
	Activities         map[domain.RecordID]domain.ApprovedActivity               `json:"activities"`
	AutoCompetences    map[domain.RecordID]domain.AutoGrantedCompetence          `json:"auto_competences"`
	StudentCompetences map[domain.StudentID][]domain.CompetenceID                `json:"student_competences"`
	StudentActivities  map[domain.StudentID][]domain.ActivityID                  `json:"student_activities"`
	Terms              map[domain.RecordKind]map[domain.TermKey][]domain.RecordID `json:"terms"`
	Order              []RecordRef                                               `json:"order"`
}

func newMemoryState() memoryState {
	terms := make(map[domain.RecordKind]termIndex, 3)
	for _, kind := range domain.RecordKinds() {
		terms[kind] = make(termIndex)
	}
	return memoryState{
		staff:              make(map[domain.RecordID]domain.StaffGrantedCompetence),
		activities:         make(map[domain.RecordID]domain.ApprovedActivity),
		auto:               make(map[domain.RecordID]domain.AutoGrantedCompetence),
		studentCompetences: make(map[domain.StudentID][]domain.CompetenceID),
		studentActivities:  make(map[domain.StudentID][]domain.ActivityID),
		terms:              terms,
	}
}

func (s *memoryState) len() int {
	return len(s.staff) + len(s.activities) + len(s.auto)
}

func (s *memoryState) lookup(ref RecordRef) (domain.Record, bool) {
	switch ref.Kind {
	case domain.KindStaffCompetence:
		r, ok := s.staff[ref.ID]
		return r, ok
	case domain.KindActivity:
		r, ok := s.activities[ref.ID]
		return r, ok
	case domain.KindAutoCompetence:
		r, ok := s.auto[ref.ID]
		return r, ok
	}
	return nil, false
}

// ordered returns the stored records in insertion order.
func (s *memoryState) ordered() []domain.Record {
	out := make([]domain.Record, 0, len(s.order))
	for _, ref := range s.order {
		if r, ok := s.lookup(ref); ok {
			out = append(out, r)
		}
	}
	return out
}

func (s *memoryState) contains(kind domain.RecordKind, id domain.RecordID) bool {
	var ok bool
	switch kind {
	case domain.KindStaffCompetence:
		_, ok = s.staff[id]
	case domain.KindActivity:
		_, ok = s.activities[id]
	case domain.KindAutoCompetence:
		_, ok = s.auto[id]
	}
	return ok
}

// merge appends every entry of staged onto s. Callers have already rejected
// duplicate identifiers.
func (s *memoryState) merge(staged *memoryState) {
	for id, r := range staged.staff {
		s.staff[id] = r
	}
	for id, r := range staged.activities {
		s.activities[id] = r
	}
	for id, r := range staged.auto {
		s.auto[id] = r
	}
	for student, codes := range staged.studentCompetences {
		s.studentCompetences[student] = append(s.studentCompetences[student], codes...)
	}
	for student, codes := range staged.studentActivities {
		s.studentActivities[student] = append(s.studentActivities[student], codes...)
	}
	for kind, idx := range staged.terms {
		dst := s.terms[kind]
		for term, ids := range idx {
			dst[term] = append(dst[term], ids...)
		}
	}
	s.order = append(s.order, staged.order...)
}

// sameIndices reports whether both states hold identical index sequences.
// Empty sequences and missing keys are treated alike.
func sameIndices(a, b *memoryState) bool {
	if !sameSequences(a.studentCompetences, b.studentCompetences) || !sameSequences(a.studentActivities, b.studentActivities) {
		return false
	}
	for _, kind := range domain.RecordKinds() {
		if !sameSequences(a.terms[kind], b.terms[kind]) {
			return false
		}
	}
	return true
}

func sameSequences[K comparable, V comparable](a, b map[K][]V) bool {
	for k, v := range a {
		if !slices.Equal(v, b[k]) {
			return false
		}
	}
	for k, v := range b {
		if len(v) > 0 && len(a[k]) == 0 {
			return false
		}
	}
	return true
}

func snapshotFromMemoryState(state *memoryState) Snapshot {
	s := Snapshot{
		Version:            snapshotVersion,
		StaffCompetences:   make(map[domain.RecordID]domain.StaffGrantedCompetence, len(state.staff)),
		Activities:         make(map[domain.RecordID]domain.ApprovedActivity, len(state.activities)),
		AutoCompetences:    make(map[domain.RecordID]domain.AutoGrantedCompetence, len(state.auto)),
		StudentCompetences: make(map[domain.StudentID][]domain.CompetenceID, len(state.studentCompetences)),
		StudentActivities:  make(map[domain.StudentID][]domain.ActivityID, len(state.studentActivities)),
		Terms:              make(map[domain.RecordKind]map[domain.TermKey][]domain.RecordID, len(state.terms)),
	}
	for k, v := range state.staff {
		s.StaffCompetences[k] = v
	}
	for k, v := range state.activities {
		s.Activities[k] = v
	}
	for k, v := range state.auto {
		s.AutoCompetences[k] = v
	}
	for k, v := range state.studentCompetences {
		s.StudentCompetences[k] = append([]domain.CompetenceID(nil), v...)
	}
	for k, v := range state.studentActivities {
		s.StudentActivities[k] = append([]domain.ActivityID(nil), v...)
	}
	for kind, idx := range state.terms {
		out := make(map[domain.TermKey][]domain.RecordID, len(idx))
		for term, ids := range idx {
			out[term] = append([]domain.RecordID(nil), ids...)
		}
		s.Terms[kind] = out
	}
	s.Order = append([]RecordRef{}, state.order...)
	return s
}

func memoryStateFromSnapshot(s Snapshot) memoryState {
	state := newMemoryState()
	for k, v := range s.StaffCompetences {
		state.staff[k] = v
	}
	for k, v := range s.Activities {
		state.activities[k] = v
	}
	for k, v := range s.AutoCompetences {
		state.auto[k] = v
	}
	for k, v := range s.StudentCompetences {
		state.studentCompetences[k] = append([]domain.CompetenceID(nil), v...)
	}
	for k, v := range s.StudentActivities {
		state.studentActivities[k] = append([]domain.ActivityID(nil), v...)
	}
	for kind, idx := range s.Terms {
		dst, ok := state.terms[kind]
		if !ok {
			continue
		}
		for term, ids := range idx {
			dst[term] = append([]domain.RecordID(nil), ids...)
		}
	}
	state.order = append([]RecordRef(nil), s.Order...)
	return state
}

// migrateSnapshot initialises nil maps, rebuilds the indices of version 0
// snapshots and derives a record order for snapshots that lack one. Rebuilt
// sequences and derived orders follow term then identifier since the original
// insertion order was never recorded.
func migrateSnapshot(snapshot Snapshot) Snapshot {
	if snapshot.StaffCompetences == nil {
		snapshot.StaffCompetences = map[domain.RecordID]domain.StaffGrantedCompetence{}
	}
	if snapshot.Activities == nil {
		snapshot.Activities = map[domain.RecordID]domain.ApprovedActivity{}
	}
	if snapshot.AutoCompetences == nil {
		snapshot.AutoCompetences = map[domain.RecordID]domain.AutoGrantedCompetence{}
	}
	if snapshot.Version >= indexedSnapshotVersion {
		if snapshot.Order == nil {
			for _, r := range termOrdered(snapshot) {
				snapshot.Order = append(snapshot.Order, refOf(r))
			}
		}
		if snapshot.StudentCompetences == nil {
			snapshot.StudentCompetences = map[domain.StudentID][]domain.CompetenceID{}
		}
		if snapshot.StudentActivities == nil {
			snapshot.StudentActivities = map[domain.StudentID][]domain.ActivityID{}
		}
		if snapshot.Terms == nil {
			snapshot.Terms = map[domain.RecordKind]map[domain.TermKey][]domain.RecordID{}
		}
		snapshot.Version = snapshotVersion
		return snapshot
	}

	state := newMemoryState()
	for _, r := range termOrdered(snapshot) {
		state.insert(r)
	}
	rebuilt := snapshotFromMemoryState(&state)
	snapshot.StudentCompetences = rebuilt.StudentCompetences
	snapshot.StudentActivities = rebuilt.StudentActivities
	snapshot.Terms = rebuilt.Terms
	snapshot.Order = rebuilt.Order
	snapshot.Version = snapshotVersion
	return snapshot
}

func termOrdered(snapshot Snapshot) []domain.Record {
	records := make([]domain.Record, 0, len(snapshot.StaffCompetences)+len(snapshot.Activities)+len(snapshot.AutoCompetences))
	for _, r := range snapshot.StaffCompetences {
		records = append(records, r)
	}
	for _, r := range snapshot.Activities {
		records = append(records, r)
	}
	for _, r := range snapshot.AutoCompetences {
		records = append(records, r)
	}
	sort.Slice(records, func(i, j int) bool {
		if records[i].TermKey() != records[j].TermKey() {
			return records[i].TermKey() < records[j].TermKey()
		}
		a, b := records[i].RecordID(), records[j].RecordID()
		return a.String() < b.String()
	})
	return records
}
