// Package domain defines the ledger's record types, identifiers, term keys,
// persistence contracts, and rule evaluation primitives used by sitcomledger.
package domain

import (
	"encoding/hex"
	"fmt"
)

// StudentID identifies a student. Values are assigned by the institution.
type StudentID uint64

// CompetenceID identifies a competence. Codes conventionally start with 3 (e.g. 30001).
type CompetenceID uint16

// ActivityID identifies an activity. Codes conventionally fall in 4000000000-4294967295.
type ActivityID uint32

// Identity is the resolved identity of an authenticated caller (staff account,
// public key fingerprint, ...). The empty identity means the caller could not be resolved.
type Identity string

// IsZero reports whether the identity is unresolved.
func (i Identity) IsZero() bool { return i == "" }

// RecordIDSize is the byte width of a RecordID.
const RecordIDSize = 32

// RecordID is the opaque, fixed-width identifier of a stored record. It is
// derived per creation event and is not a content hash of the record fields.
type RecordID [RecordIDSize]byte

// String returns the lowercase hex encoding of the identifier.
func (id RecordID) String() string { return hex.EncodeToString(id[:]) }

// IsZero reports whether the identifier is all zero bytes.
func (id RecordID) IsZero() bool { return id == RecordID{} }

// MarshalText encodes the identifier as hex so it can serve as a JSON object key.
func (id RecordID) MarshalText() ([]byte, error) {
	out := make([]byte, hex.EncodedLen(RecordIDSize))
	hex.Encode(out, id[:])
	return out, nil
}

// UnmarshalText decodes a hex encoded identifier.
func (id *RecordID) UnmarshalText(text []byte) error {
	parsed, err := ParseRecordID(string(text))
	if err != nil {
		return err
	}
	*id = parsed
	return nil
}

// ParseRecordID decodes a hex string into a RecordID.
func ParseRecordID(s string) (RecordID, error) {
	var id RecordID
	if hex.DecodedLen(len(s)) != RecordIDSize {
		return id, fmt.Errorf("record id: expected %d hex characters, got %d", hex.EncodedLen(RecordIDSize), len(s))
	}
	if _, err := hex.Decode(id[:], []byte(s)); err != nil {
		return RecordID{}, fmt.Errorf("record id: %w", err)
	}
	return id, nil
}

// RecordKind identifies one of the three record families. Each kind owns its
// own primary map and its own term index.
type RecordKind string

const (
	// KindStaffCompetence identifies competences granted by staff.
	KindStaffCompetence RecordKind = "staff_competence"
	// KindActivity identifies approved activity attendances.
	KindActivity RecordKind = "activity"
	// KindAutoCompetence identifies competences granted by system logic.
	KindAutoCompetence RecordKind = "auto_competence"
)

// RecordKinds lists every kind in a stable order.
func RecordKinds() []RecordKind {
	return []RecordKind{KindStaffCompetence, KindActivity, KindAutoCompetence}
}

// Valid reports whether k names a known record kind.
func (k RecordKind) Valid() bool {
	switch k {
	case KindStaffCompetence, KindActivity, KindAutoCompetence:
		return true
	default:
		return false
	}
}

// ParseRecordKind validates s as a record kind.
func ParseRecordKind(s string) (RecordKind, error) {
	k := RecordKind(s)
	if !k.Valid() {
		return "", fmt.Errorf("%w: %q", ErrUnknownKind, s)
	}
	return k, nil
}

// Record is implemented by the three record types.
type Record interface {
	RecordID() RecordID
	Kind() RecordKind
	Student() StudentID
	TermKey() TermKey
}

// StaffGrantedCompetence is a competence granted to a student by an authenticated staff member.
type StaffGrantedCompetence struct {
	ID           RecordID     `json:"id"`
	StudentID    StudentID    `json:"student_id"`
	CompetenceID CompetenceID `json:"competence_id"`
	Granter      Identity     `json:"granter"`
	Term         TermKey      `json:"term"`
}

func (r StaffGrantedCompetence) RecordID() RecordID { return r.ID }
func (r StaffGrantedCompetence) Kind() RecordKind   { return KindStaffCompetence }
func (r StaffGrantedCompetence) Student() StudentID { return r.StudentID }
func (r StaffGrantedCompetence) TermKey() TermKey   { return r.Term }

// ApprovedActivity records an approved attendance of a student at an activity.
type ApprovedActivity struct {
	ID         RecordID   `json:"id"`
	StudentID  StudentID  `json:"student_id"`
	ActivityID ActivityID `json:"activity_id"`
	Approver   Identity   `json:"approver"`
	Term       TermKey    `json:"term"`
}

func (r ApprovedActivity) RecordID() RecordID { return r.ID }
func (r ApprovedActivity) Kind() RecordKind   { return KindActivity }
func (r ApprovedActivity) Student() StudentID { return r.StudentID }
func (r ApprovedActivity) TermKey() TermKey   { return r.Term }

// AutoGrantedCompetence is a competence granted by internal logic without a caller.
type AutoGrantedCompetence struct {
	ID           RecordID     `json:"id"`
	StudentID    StudentID    `json:"student_id"`
	CompetenceID CompetenceID `json:"competence_id"`
	Term         TermKey      `json:"term"`
}

func (r AutoGrantedCompetence) RecordID() RecordID { return r.ID }
func (r AutoGrantedCompetence) Kind() RecordKind   { return KindAutoCompetence }
func (r AutoGrantedCompetence) Student() StudentID { return r.StudentID }
func (r AutoGrantedCompetence) TermKey() TermKey   { return r.Term }

// Change describes a record appended during a transaction.
type Change struct {
	Action Action
	Record Record
}

// Action indicates the type of modification performed. The ledger is
// append-only so create is the only action ever recorded.
type Action string

const (
	// ActionCreate indicates a record was appended.
	ActionCreate Action = "create"
)

// Severity controls whether a violation blocks the transaction.
type Severity string

const (
	// SeverityBlock rejects the transaction.
	SeverityBlock Severity = "block"
	// SeverityWarn is reported to the caller without blocking.
	SeverityWarn Severity = "warn"
	// SeverityLog is recorded only.
	SeverityLog Severity = "log"
)

// Violation reports a failed rule evaluation.
type Violation struct {
	Rule     string
	Severity Severity
	Message  string
	Kind     RecordKind
	RecordID RecordID
}

// Result aggregates violations from the rules engine.
type Result struct {
	Violations []Violation
}

// Merge appends violations from another result.
func (r *Result) Merge(other Result) {
	if len(other.Violations) == 0 {
		return
	}
	r.Violations = append(r.Violations, other.Violations...)
}

// HasBlocking returns true if the result contains blocking violations.
func (r Result) HasBlocking() bool {
	for _, v := range r.Violations {
		if v.Severity == SeverityBlock {
			return true
		}
	}
	return false
}

// RuleViolationError is returned when blocking violations are present.
type RuleViolationError struct {
	Result Result
}

func (e RuleViolationError) Error() string {
	for _, v := range e.Result.Violations {
		if v.Severity == SeverityBlock {
			return fmt.Sprintf("transaction blocked by rule %s: %s", v.Rule, v.Message)
		}
	}
	return "transaction blocked by rules"
}
