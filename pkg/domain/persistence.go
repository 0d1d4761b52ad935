package domain

import "context"

// Transaction exposes the append operations a persistence implementation must
// support within an atomic scope. Each Create inserts into the primary map of
// the record's kind and appends to the by-student and by-term indices.
type Transaction interface {
	Snapshot() TransactionView
	CreateStaffCompetence(StaffGrantedCompetence) (StaffGrantedCompetence, error)
	CreateActivity(ApprovedActivity) (ApprovedActivity, error)
	CreateAutoCompetence(AutoGrantedCompetence) (AutoGrantedCompetence, error)
}

// TransactionView provides read-only access to ledger state. Absent keys yield
// empty results.
type TransactionView interface {
	FindStaffCompetence(id RecordID) (StaffGrantedCompetence, bool)
	FindActivity(id RecordID) (ApprovedActivity, bool)
	FindAutoCompetence(id RecordID) (AutoGrantedCompetence, bool)
	CompetenciesOf(student StudentID) []CompetenceID
	ActivitiesOf(student StudentID) []ActivityID
	RecordsInTerm(kind RecordKind, term TermKey) []RecordID
}

// PersistentStore is a minimal abstraction over durable backends.
type PersistentStore interface {
	RunInTransaction(ctx context.Context, fn func(Transaction) error) (Result, error)
	View(ctx context.Context, fn func(TransactionView) error) error
}

// FindRecord looks up id in the primary map of kind.
func FindRecord(view TransactionView, kind RecordKind, id RecordID) (Record, bool) {
	switch kind {
	case KindStaffCompetence:
		if r, ok := view.FindStaffCompetence(id); ok {
			return r, true
		}
	case KindActivity:
		if r, ok := view.FindActivity(id); ok {
			return r, true
		}
	case KindAutoCompetence:
		if r, ok := view.FindAutoCompetence(id); ok {
			return r, true
		}
	}
	return nil, false
}
