package ledger

import (
	"context"
	"fmt"

	"sitcomledger/pkg/domain"
)

const (
	ruleIndexConsistency = "index_consistency"
	ruleCodeNamespace    = "code_namespace"

	minActivityCode  = 4000000000
	competencePrefix = '3'
)

// NewDefaultRulesEngine builds a rules engine with the built-in policy set.
func NewDefaultRulesEngine() *domain.RulesEngine {
	engine := domain.NewRulesEngine()
	engine.Register(NewIndexConsistencyRule())
	engine.Register(NewCodeNamespaceRule())
	return engine
}

// NewIndexConsistencyRule blocks transactions whose created records are not
// reachable through both index families.
func NewIndexConsistencyRule() domain.Rule {
	return indexConsistencyRule{}
}

type indexConsistencyRule struct{}

func (indexConsistencyRule) Name() string { return ruleIndexConsistency }

func (indexConsistencyRule) Evaluate(_ context.Context, view domain.TransactionView, changes []domain.Change) (domain.Result, error) {
	res := domain.Result{}
	for _, change := range changes {
		rec := change.Record
		if rec == nil {
			continue
		}
		violation := func(format string, args ...any) {
			res.Violations = append(res.Violations, domain.Violation{
				Rule:     ruleIndexConsistency,
				Severity: domain.SeverityBlock,
				Message:  fmt.Sprintf(format, args...),
				Kind:     rec.Kind(),
				RecordID: rec.RecordID(),
			})
		}
		if _, ok := domain.FindRecord(view, rec.Kind(), rec.RecordID()); !ok {
			violation("%s %s missing from primary store", rec.Kind(), rec.RecordID())
			continue
		}
		if !contains(view.RecordsInTerm(rec.Kind(), rec.TermKey()), rec.RecordID()) {
			violation("%s %s missing from term %s", rec.Kind(), rec.RecordID(), rec.TermKey())
		}
		switch r := rec.(type) {
		case domain.StaffGrantedCompetence:
			if !contains(view.CompetenciesOf(r.StudentID), r.CompetenceID) {
				violation("student %d competences lack %d", r.StudentID, r.CompetenceID)
			}
		case domain.AutoGrantedCompetence:
			if !contains(view.CompetenciesOf(r.StudentID), r.CompetenceID) {
				violation("student %d competences lack %d", r.StudentID, r.CompetenceID)
			}
		case domain.ApprovedActivity:
			if !contains(view.ActivitiesOf(r.StudentID), r.ActivityID) {
				violation("student %d activities lack %d", r.StudentID, r.ActivityID)
			}
		}
	}
	return res, nil
}

// NewCodeNamespaceRule warns about competence codes that do not start with 3
// and activity codes below 4000000000. Every uint32 code from 4000000000 up to
// 4294967295 is in the activity namespace.
func NewCodeNamespaceRule() domain.Rule {
	return codeNamespaceRule{}
}

type codeNamespaceRule struct{}

func (codeNamespaceRule) Name() string { return ruleCodeNamespace }

func (codeNamespaceRule) Evaluate(_ context.Context, _ domain.TransactionView, changes []domain.Change) (domain.Result, error) {
	res := domain.Result{}
	warn := func(rec domain.Record, msg string) {
		res.Violations = append(res.Violations, domain.Violation{
			Rule:     ruleCodeNamespace,
			Severity: domain.SeverityWarn,
			Message:  msg,
			Kind:     rec.Kind(),
			RecordID: rec.RecordID(),
		})
	}
	for _, change := range changes {
		switch r := change.Record.(type) {
		case domain.StaffGrantedCompetence:
			if !IsCompetenceCode(r.CompetenceID) {
				warn(r, fmt.Sprintf("competence code %d outside the 3xxxx namespace", r.CompetenceID))
			}
		case domain.AutoGrantedCompetence:
			if !IsCompetenceCode(r.CompetenceID) {
				warn(r, fmt.Sprintf("competence code %d outside the 3xxxx namespace", r.CompetenceID))
			}
		case domain.ApprovedActivity:
			if !IsActivityCode(r.ActivityID) {
				warn(r, fmt.Sprintf("activity code %d below the 4000000000 namespace", r.ActivityID))
			}
		}
	}
	return res, nil
}

// IsCompetenceCode reports whether code follows the competence numbering convention.
func IsCompetenceCode(code domain.CompetenceID) bool {
	s := fmt.Sprint(uint16(code))
	return s[0] == competencePrefix
}

// IsActivityCode reports whether code follows the activity numbering convention.
func IsActivityCode(code domain.ActivityID) bool {
	return uint32(code) >= minActivityCode
}

func contains[T comparable](values []T, v T) bool {
	for _, x := range values {
		if x == v {
			return true
		}
	}
	return false
}
