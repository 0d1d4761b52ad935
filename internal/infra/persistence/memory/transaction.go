package memory

import (
	"fmt"

	"sitcomledger/pkg/domain"
)

// transaction stages appends on top of the committed state. The committed
// state is never touched until the store merges the staged layer.
type transaction struct {
	base    *memoryState
	staged  memoryState
	changes []domain.Change
}

func newTransaction(base *memoryState) *transaction {
	return &transaction{base: base, staged: newMemoryState()}
}

// layeredView resolves reads across the committed and staged layers in order.
type layeredView struct {
	layers []*memoryState
}

func newView(layers ...*memoryState) domain.TransactionView {
	return layeredView{layers: layers}
}

func (v layeredView) FindStaffCompetence(id domain.RecordID) (domain.StaffGrantedCompetence, bool) {
	for _, l := range v.layers {
		if r, ok := l.staff[id]; ok {
			return r, true
		}
	}
	return domain.StaffGrantedCompetence{}, false
}

func (v layeredView) FindActivity(id domain.RecordID) (domain.ApprovedActivity, bool) {
	for _, l := range v.layers {
		if r, ok := l.activities[id]; ok {
			return r, true
		}
	}
	return domain.ApprovedActivity{}, false
}

func (v layeredView) FindAutoCompetence(id domain.RecordID) (domain.AutoGrantedCompetence, bool) {
	for _, l := range v.layers {
		if r, ok := l.auto[id]; ok {
			return r, true
		}
	}
	return domain.AutoGrantedCompetence{}, false
}

func (v layeredView) CompetenciesOf(student domain.StudentID) []domain.CompetenceID {
	return concatCompetences(v.layers, student)
}

func (v layeredView) ActivitiesOf(student domain.StudentID) []domain.ActivityID {
	return concatActivities(v.layers, student)
}

func (v layeredView) RecordsInTerm(kind domain.RecordKind, term domain.TermKey) []domain.RecordID {
	return concatTerm(v.layers, kind, term)
}

// Snapshot returns a read-only view including the transaction's own appends.
func (tx *transaction) Snapshot() domain.TransactionView {
	return newView(tx.base, &tx.staged)
}

func (tx *transaction) exists(kind domain.RecordKind, id domain.RecordID) bool {
	return tx.base.contains(kind, id) || tx.staged.contains(kind, id)
}

func (tx *transaction) create(r domain.Record) error {
	if tx.exists(r.Kind(), r.RecordID()) {
		return fmt.Errorf("%s %s: %w", r.Kind(), r.RecordID(), domain.ErrDuplicateIdentifier)
	}
	tx.staged.insert(r)
	tx.changes = append(tx.changes, domain.Change{Action: domain.ActionCreate, Record: r})
	return nil
}

// CreateStaffCompetence appends a staff grant and indexes it.
func (tx *transaction) CreateStaffCompetence(r domain.StaffGrantedCompetence) (domain.StaffGrantedCompetence, error) {
	if err := tx.create(r); err != nil {
		return domain.StaffGrantedCompetence{}, err
	}
	return r, nil
}

// CreateActivity appends an activity approval and indexes it.
func (tx *transaction) CreateActivity(r domain.ApprovedActivity) (domain.ApprovedActivity, error) {
	if err := tx.create(r); err != nil {
		return domain.ApprovedActivity{}, err
	}
	return r, nil
}

// CreateAutoCompetence appends an automatic grant and indexes it.
func (tx *transaction) CreateAutoCompetence(r domain.AutoGrantedCompetence) (domain.AutoGrantedCompetence, error) {
	if err := tx.create(r); err != nil {
		return domain.AutoGrantedCompetence{}, err
	}
	return r, nil
}
