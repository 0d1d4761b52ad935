// Package ledger implements the academic achievement ledger façade: it
// validates callers and terms, derives record identifiers, appends records and
// their index entries atomically, and emits one notification per committed
// operation.
package ledger

import (
	"context"
	"errors"
	"fmt"

	"sitcomledger/internal/infra/persistence/memory"
	"sitcomledger/pkg/domain"
)

// Operation names used for logging, metrics, tracing and audit entries.
const (
	OpGrantCompetenceByStaff = "GrantCompetenceByStaff"
	OpApproveActivity        = "ApproveActivity"
	OpAutoGrantCompetence    = "AutoGrantCompetence"
)

// Service exposes the ledger's append operations and read accessors.
type Service struct {
	store    domain.PersistentStore
	deriver  Deriver
	seeds    SeedSource
	sink     domain.NotificationSink
	policies []AwardPolicy
	logger   Logger
	clock    Clock
	metrics  MetricsRecorder
	tracer   Tracer
	audit    AuditRecorder
}

// NewService constructs a service backed by the supplied store.
func NewService(store domain.PersistentStore, opts ...ServiceOption) *Service {
	o := defaultServiceOptions()
	for _, opt := range opts {
		if opt != nil {
			opt(&o)
		}
	}
	if store == nil {
		store = memory.NewStore(NewDefaultRulesEngine())
	}
	svc := &Service{
		store:   store,
		deriver: NewDeriver(o.hasher),
		seeds:   o.seeds,
		sink:    o.sink,
		logger:  o.logger,
		clock:   o.clock,
		metrics: o.metrics,
		tracer:  o.tracer,
		audit:   o.audit,
	}
	for _, p := range o.policies {
		if err := p.Validate(); err != nil {
			svc.logger.Warn("ignoring award policy", "error", err)
			continue
		}
		svc.policies = append(svc.policies, p)
	}
	return svc
}

// NewInMemoryService creates a service over a fresh in-memory store. A nil
// engine selects NewDefaultRulesEngine.
func NewInMemoryService(engine *domain.RulesEngine, opts ...ServiceOption) *Service {
	if engine == nil {
		engine = NewDefaultRulesEngine()
	}
	return NewService(memory.NewStore(engine), opts...)
}

// Store returns the underlying storage implementation.
func (s *Service) Store() domain.PersistentStore {
	return s.store
}

// Policies returns the active award policies.
func (s *Service) Policies() []AwardPolicy {
	return append([]AwardPolicy(nil), s.policies...)
}

// GrantCompetenceByStaff records a competence granted by an authenticated
// staff member for the given semester and year.
func (s *Service) GrantCompetenceByStaff(ctx context.Context, caller domain.Identity, student domain.StudentID, competence domain.CompetenceID, semester, year uint16) (domain.StaffGrantedCompetence, domain.Result, error) {
	var created domain.StaffGrantedCompetence
	res, err := s.run(ctx, OpGrantCompetenceByStaff, domain.KindStaffCompetence, caller, func(ctx context.Context, out *outcome) (domain.Result, error) {
		if caller.IsZero() {
			return domain.Result{}, domain.ErrUnauthorized
		}
		term, err := domain.NormalizeTerm(semester, year)
		if err != nil {
			return domain.Result{}, err
		}
		seed, err := s.seeds.NextSeed()
		if err != nil {
			return domain.Result{}, err
		}
		rec := domain.StaffGrantedCompetence{
			ID:           s.deriver.StaffCompetence(seed, caller, student, competence, term),
			StudentID:    student,
			CompetenceID: competence,
			Granter:      caller,
			Term:         term,
		}
		res, err := s.store.RunInTransaction(ctx, func(tx domain.Transaction) error {
			var err error
			created, err = tx.CreateStaffCompetence(rec)
			return err
		})
		if err != nil {
			return res, err
		}
		out.record = created
		out.notify(domain.CompetenceGrantedByStaff(created))
		return res, nil
	})
	if err != nil {
		return domain.StaffGrantedCompetence{}, res, err
	}
	return created, res, nil
}

// ApproveActivity records an approved attendance. Award policies reached by
// this approval grant their competences in the same transaction.
func (s *Service) ApproveActivity(ctx context.Context, caller domain.Identity, student domain.StudentID, activity domain.ActivityID, semester, year uint16) (domain.ApprovedActivity, domain.Result, error) {
	var created domain.ApprovedActivity
	res, err := s.run(ctx, OpApproveActivity, domain.KindActivity, caller, func(ctx context.Context, out *outcome) (domain.Result, error) {
		if caller.IsZero() {
			return domain.Result{}, domain.ErrUnauthorized
		}
		term, err := domain.NormalizeTerm(semester, year)
		if err != nil {
			return domain.Result{}, err
		}
		seed, err := s.seeds.NextSeed()
		if err != nil {
			return domain.Result{}, err
		}
		rec := domain.ApprovedActivity{
			ID:         s.deriver.Activity(seed, caller, student, activity, term),
			StudentID:  student,
			ActivityID: activity,
			Approver:   caller,
			Term:       term,
		}
		var awarded []domain.AutoGrantedCompetence
		res, err := s.store.RunInTransaction(ctx, func(tx domain.Transaction) error {
			awarded = awarded[:0]
			var err error
			created, err = tx.CreateActivity(rec)
			if err != nil {
				return err
			}
			awarded, err = s.applyAwardPolicies(tx, created)
			return err
		})
		if err != nil {
			return res, err
		}
		out.record = created
		out.notify(domain.ActivityApproved(created))
		for _, a := range awarded {
			s.logger.Info("competence awarded", "student_id", a.StudentID, "competence_id", a.CompetenceID, "activity_id", activity, "record_id", a.ID.String())
			out.notify(domain.CompetenceAutoGranted(a))
		}
		return res, nil
	})
	if err != nil {
		return domain.ApprovedActivity{}, res, err
	}
	return created, res, nil
}

// AutoGrantCompetence records a competence granted by internal logic. It has
// no caller and takes an already normalized term, which is not re-validated.
func (s *Service) AutoGrantCompetence(ctx context.Context, student domain.StudentID, competence domain.CompetenceID, term domain.TermKey) (domain.AutoGrantedCompetence, domain.Result, error) {
	var created domain.AutoGrantedCompetence
	res, err := s.run(ctx, OpAutoGrantCompetence, domain.KindAutoCompetence, "", func(ctx context.Context, out *outcome) (domain.Result, error) {
		seed, err := s.seeds.NextSeed()
		if err != nil {
			return domain.Result{}, err
		}
		res, err := s.store.RunInTransaction(ctx, func(tx domain.Transaction) error {
			var err error
			created, err = tx.CreateAutoCompetence(s.autoGrant(seed, student, competence, term))
			return err
		})
		if err != nil {
			return res, err
		}
		out.record = created
		out.notify(domain.CompetenceAutoGranted(created))
		return res, nil
	})
	if err != nil {
		return domain.AutoGrantedCompetence{}, res, err
	}
	return created, res, nil
}

func (s *Service) autoGrant(seed Seed, student domain.StudentID, competence domain.CompetenceID, term domain.TermKey) domain.AutoGrantedCompetence {
	return domain.AutoGrantedCompetence{
		ID:           s.deriver.AutoCompetence(seed, student, competence, term),
		StudentID:    student,
		CompetenceID: competence,
		Term:         term,
	}
}

func (s *Service) applyAwardPolicies(tx domain.Transaction, approved domain.ApprovedActivity) ([]domain.AutoGrantedCompetence, error) {
	if len(s.policies) == 0 {
		return nil, nil
	}
	history := tx.Snapshot().ActivitiesOf(approved.StudentID)
	var awarded []domain.AutoGrantedCompetence
	for _, p := range s.policies {
		if !p.triggered(approved.ActivityID, history) {
			continue
		}
		seed, err := s.seeds.NextSeed()
		if err != nil {
			return nil, err
		}
		grant, err := tx.CreateAutoCompetence(s.autoGrant(seed, approved.StudentID, p.CompetenceID, approved.Term))
		if err != nil {
			return nil, err
		}
		awarded = append(awarded, grant)
	}
	return awarded, nil
}

// RecordByID looks up a record in the primary map of kind. A missing record
// is reported through the boolean, not an error.
func (s *Service) RecordByID(ctx context.Context, kind domain.RecordKind, id domain.RecordID) (domain.Record, bool, error) {
	if !kind.Valid() {
		return nil, false, domain.NewLedgerError("RecordByID", kind, fmt.Errorf("%w: %q", domain.ErrUnknownKind, kind))
	}
	var (
		rec domain.Record
		ok  bool
	)
	err := s.store.View(ctx, func(v domain.TransactionView) error {
		rec, ok = domain.FindRecord(v, kind, id)
		return nil
	})
	return rec, ok, err
}

// CompetenciesOf returns the student's competence codes in grant order,
// duplicates included. Unknown students yield an empty slice.
func (s *Service) CompetenciesOf(ctx context.Context, student domain.StudentID) []domain.CompetenceID {
	out := []domain.CompetenceID{}
	_ = s.store.View(ctx, func(v domain.TransactionView) error {
		out = v.CompetenciesOf(student)
		return nil
	})
	if out == nil {
		return []domain.CompetenceID{}
	}
	return out
}

// ActivitiesOf returns the student's approved activity codes in approval order.
func (s *Service) ActivitiesOf(ctx context.Context, student domain.StudentID) []domain.ActivityID {
	out := []domain.ActivityID{}
	_ = s.store.View(ctx, func(v domain.TransactionView) error {
		out = v.ActivitiesOf(student)
		return nil
	})
	if out == nil {
		return []domain.ActivityID{}
	}
	return out
}

// RecordsInTerm returns the identifiers of kind created in term, in insertion order.
func (s *Service) RecordsInTerm(ctx context.Context, kind domain.RecordKind, term domain.TermKey) ([]domain.RecordID, error) {
	if !kind.Valid() {
		return nil, domain.NewLedgerError("RecordsInTerm", kind, fmt.Errorf("%w: %q", domain.ErrUnknownKind, kind))
	}
	out := []domain.RecordID{}
	err := s.store.View(ctx, func(v domain.TransactionView) error {
		if ids := v.RecordsInTerm(kind, term); ids != nil {
			out = ids
		}
		return nil
	})
	return out, err
}

// ErrSnapshotUnsupported is returned when the store cannot export or import snapshots.
var ErrSnapshotUnsupported = errors.New("store does not support snapshots")

// ExportState snapshots the ledger when the store supports it.
func (s *Service) ExportState() (memory.Snapshot, error) {
	exp, ok := s.store.(interface{ ExportState() memory.Snapshot })
	if !ok {
		return memory.Snapshot{}, ErrSnapshotUnsupported
	}
	return exp.ExportState(), nil
}

// ImportState loads a snapshot when the store supports it. The in-memory
// store replaces its state; journaled stores replay the snapshot into an
// empty journal.
func (s *Service) ImportState(snapshot memory.Snapshot) error {
	imp, ok := s.store.(interface {
		ImportState(memory.Snapshot) error
	})
	if !ok {
		return ErrSnapshotUnsupported
	}
	return imp.ImportState(snapshot)
}

// Counts reports the number of stored records per kind when the store tracks them.
func (s *Service) Counts() map[domain.RecordKind]int {
	if c, ok := s.store.(interface {
		Counts() map[domain.RecordKind]int
	}); ok {
		return c.Counts()
	}
	return nil
}
