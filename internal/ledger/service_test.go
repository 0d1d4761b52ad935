package ledger_test

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"sitcomledger/internal/infra/persistence/memory"
	"sitcomledger/internal/ledger"
	"sitcomledger/internal/notify"
	"sitcomledger/pkg/domain"
)

func newService(t *testing.T, opts ...ledger.ServiceOption) (*ledger.Service, *notify.Recorder) {
	t.Helper()
	rec := notify.NewRecorder()
	base := []ledger.ServiceOption{
		ledger.WithSeedSource(ledger.NewSequenceSeedSource(1)),
		ledger.WithNotificationSink(rec),
	}
	return ledger.NewInMemoryService(nil, append(base, opts...)...), rec
}

func TestApproveActivityScenario(t *testing.T) {
	ctx := context.Background()
	svc, rec := newService(t)

	created, res, err := svc.ApproveActivity(ctx, "7", 42, 4000000001, 2, 2020)
	require.NoError(t, err)
	assert.Empty(t, res.Violations)
	assert.Equal(t, domain.TermKey(22020), created.Term)
	assert.Equal(t, domain.Identity("7"), created.Approver)
	assert.False(t, created.ID.IsZero())

	assert.Equal(t, []domain.ActivityID{4000000001}, svc.ActivitiesOf(ctx, 42))
	ids, err := svc.RecordsInTerm(ctx, domain.KindActivity, 22020)
	require.NoError(t, err)
	assert.Equal(t, []domain.RecordID{created.ID}, ids)

	notes := rec.Notifications()
	require.Len(t, notes, 1)
	assert.Equal(t, domain.ActivityApproved(created), notes[0])
	assert.Equal(t, domain.NotifyActivityApproved, notes[0].Kind)
	assert.Equal(t, domain.StudentID(42), notes[0].Student)
	assert.Equal(t, uint32(4000000001), notes[0].Code)
	assert.Equal(t, domain.Identity("7"), notes[0].By)
}

func TestGrantCompetenceByStaffUpdatesIndices(t *testing.T) {
	ctx := context.Background()
	svc, rec := newService(t)

	created, _, err := svc.GrantCompetenceByStaff(ctx, "staff-1", 7, 30001, 1, 2019)
	require.NoError(t, err)
	assert.Equal(t, domain.TermKey(12019), created.Term)

	assert.Equal(t, []domain.CompetenceID{30001}, svc.CompetenciesOf(ctx, 7))
	ids, err := svc.RecordsInTerm(ctx, domain.KindStaffCompetence, 12019)
	require.NoError(t, err)
	assert.Equal(t, []domain.RecordID{created.ID}, ids)
	assert.Equal(t, map[domain.RecordKind]int{
		domain.KindStaffCompetence: 1,
		domain.KindActivity:        0,
		domain.KindAutoCompetence:  0,
	}, svc.Counts())

	got, ok, err := svc.RecordByID(ctx, domain.KindStaffCompetence, created.ID)
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, created, got)

	_, ok, err = svc.RecordByID(ctx, domain.KindActivity, created.ID)
	require.NoError(t, err)
	assert.False(t, ok, "records live in the primary map of their own kind")

	require.Len(t, rec.Notifications(), 1)
	assert.Equal(t, domain.CompetenceGrantedByStaff(created), rec.Notifications()[0])
}

func TestInvalidInputLeavesStateUnchanged(t *testing.T) {
	ctx := context.Background()
	svc, rec := newService(t)

	cases := []struct {
		name     string
		call     func() error
		sentinel error
		op       string
	}{
		{"semester zero", func() error {
			_, _, err := svc.GrantCompetenceByStaff(ctx, "staff", 1, 30001, 0, 2020)
			return err
		}, domain.ErrInvalidSemester, ledger.OpGrantCompetenceByStaff},
		{"semester three", func() error {
			_, _, err := svc.ApproveActivity(ctx, "staff", 1, 4000000001, 3, 2020)
			return err
		}, domain.ErrInvalidSemester, ledger.OpApproveActivity},
		{"year too small", func() error {
			_, _, err := svc.GrantCompetenceByStaff(ctx, "staff", 1, 30001, 1, 1999)
			return err
		}, domain.ErrInvalidYear, ledger.OpGrantCompetenceByStaff},
		{"year too large", func() error {
			_, _, err := svc.ApproveActivity(ctx, "staff", 1, 4000000001, 2, 3001)
			return err
		}, domain.ErrInvalidYear, ledger.OpApproveActivity},
		{"unresolved caller grant", func() error {
			_, _, err := svc.GrantCompetenceByStaff(ctx, "", 1, 30001, 1, 2020)
			return err
		}, domain.ErrUnauthorized, ledger.OpGrantCompetenceByStaff},
		{"unresolved caller approve", func() error {
			_, _, err := svc.ApproveActivity(ctx, "", 1, 4000000001, 1, 2020)
			return err
		}, domain.ErrUnauthorized, ledger.OpApproveActivity},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			err := tc.call()
			require.Error(t, err)
			assert.ErrorIs(t, err, tc.sentinel)
			var lerr *domain.LedgerError
			require.ErrorAs(t, err, &lerr)
			assert.Equal(t, tc.op, lerr.Op)
			assert.False(t, domain.IsFatal(err))
		})
	}

	assert.Empty(t, svc.CompetenciesOf(ctx, 1))
	assert.Empty(t, svc.ActivitiesOf(ctx, 1))
	assert.Empty(t, rec.Notifications())
	snap, err := svc.ExportState()
	require.NoError(t, err)
	assert.Empty(t, snap.StaffCompetences)
	assert.Empty(t, snap.Activities)
}

func TestEmptyAccessorsReturnEmptySlices(t *testing.T) {
	ctx := context.Background()
	svc, _ := newService(t)

	comps := svc.CompetenciesOf(ctx, 999)
	require.NotNil(t, comps)
	assert.Empty(t, comps)
	acts := svc.ActivitiesOf(ctx, 999)
	require.NotNil(t, acts)
	assert.Empty(t, acts)
	ids, err := svc.RecordsInTerm(ctx, domain.KindAutoCompetence, 12050)
	require.NoError(t, err)
	require.NotNil(t, ids)
	assert.Empty(t, ids)
}

func TestRepeatedGrantsAreRetained(t *testing.T) {
	ctx := context.Background()
	svc, rec := newService(t)

	first, _, err := svc.GrantCompetenceByStaff(ctx, "staff", 7, 30001, 1, 2020)
	require.NoError(t, err)
	second, _, err := svc.GrantCompetenceByStaff(ctx, "staff", 7, 30001, 1, 2020)
	require.NoError(t, err)

	assert.NotEqual(t, first.ID, second.ID)
	assert.Equal(t, []domain.CompetenceID{30001, 30001}, svc.CompetenciesOf(ctx, 7))
	ids, err := svc.RecordsInTerm(ctx, domain.KindStaffCompetence, 12020)
	require.NoError(t, err)
	assert.Equal(t, []domain.RecordID{first.ID, second.ID}, ids)
	assert.Len(t, rec.Notifications(), 2)
}

func TestDisjointStudentsAreOrderIndependent(t *testing.T) {
	ctx := context.Background()
	type step func(*ledger.Service) error
	grantA := func(s *ledger.Service) error {
		_, _, err := s.GrantCompetenceByStaff(ctx, "staff", 1, 30001, 1, 2020)
		return err
	}
	approveB := func(s *ledger.Service) error {
		_, _, err := s.ApproveActivity(ctx, "staff", 2, 4000000002, 2, 2021)
		return err
	}

	run := func(steps ...step) *ledger.Service {
		svc, _ := newService(t)
		for _, st := range steps {
			require.NoError(t, st(svc))
		}
		return svc
	}
	ab := run(grantA, approveB)
	ba := run(approveB, grantA)

	for _, svc := range []*ledger.Service{ab, ba} {
		assert.Equal(t, []domain.CompetenceID{30001}, svc.CompetenciesOf(ctx, 1))
		assert.Equal(t, []domain.ActivityID{4000000002}, svc.ActivitiesOf(ctx, 2))
		assert.Empty(t, svc.ActivitiesOf(ctx, 1))
		assert.Empty(t, svc.CompetenciesOf(ctx, 2))
	}
}

func TestAutoGrantCompetence(t *testing.T) {
	ctx := context.Background()
	svc, rec := newService(t)

	created, _, err := svc.AutoGrantCompetence(ctx, 7, 30002, 12021)
	require.NoError(t, err)
	assert.Equal(t, domain.TermKey(12021), created.Term)
	assert.Equal(t, []domain.CompetenceID{30002}, svc.CompetenciesOf(ctx, 7))

	ids, err := svc.RecordsInTerm(ctx, domain.KindAutoCompetence, 12021)
	require.NoError(t, err)
	assert.Equal(t, []domain.RecordID{created.ID}, ids)
	ids, err = svc.RecordsInTerm(ctx, domain.KindStaffCompetence, 12021)
	require.NoError(t, err)
	assert.Empty(t, ids)

	notes := rec.Notifications()
	require.Len(t, notes, 1)
	assert.Equal(t, domain.NotifyCompetenceAutoGranted, notes[0].Kind)
	assert.True(t, notes[0].By.IsZero())
}

func TestAwardPolicyGrantsCompetenceOnce(t *testing.T) {
	ctx := context.Background()
	svc, rec := newService(t, ledger.WithAwardPolicies(
		ledger.AwardPolicy{ActivityID: 4000000001, CompetenceID: 30005, Required: 2},
		ledger.AwardPolicy{ActivityID: 4000000001, CompetenceID: 30006, Required: 0},
	))
	require.Len(t, svc.Policies(), 1, "invalid policies are skipped")

	_, _, err := svc.ApproveActivity(ctx, "staff", 7, 4000000001, 1, 2020)
	require.NoError(t, err)
	assert.Empty(t, svc.CompetenciesOf(ctx, 7))

	second, _, err := svc.ApproveActivity(ctx, "staff", 7, 4000000001, 2, 2020)
	require.NoError(t, err)
	assert.Equal(t, []domain.CompetenceID{30005}, svc.CompetenciesOf(ctx, 7))

	_, _, err = svc.ApproveActivity(ctx, "staff", 7, 4000000001, 1, 2021)
	require.NoError(t, err)
	assert.Equal(t, []domain.CompetenceID{30005}, svc.CompetenciesOf(ctx, 7))

	autos, err := svc.RecordsInTerm(ctx, domain.KindAutoCompetence, second.Term)
	require.NoError(t, err)
	require.Len(t, autos, 1)

	var kinds []domain.NotificationKind
	for _, n := range rec.Notifications() {
		kinds = append(kinds, n.Kind)
	}
	assert.Equal(t, []domain.NotificationKind{
		domain.NotifyActivityApproved,
		domain.NotifyActivityApproved,
		domain.NotifyCompetenceAutoGranted,
		domain.NotifyActivityApproved,
	}, kinds)
}

func TestDuplicateIdentifierIsFatal(t *testing.T) {
	ctx := context.Background()
	constant := ledger.SeedSourceFunc(func() (ledger.Seed, error) { return ledger.Seed("same"), nil })
	svc, rec := newService(t, ledger.WithSeedSource(constant))

	_, _, err := svc.GrantCompetenceByStaff(ctx, "staff", 7, 30001, 1, 2020)
	require.NoError(t, err)
	_, _, err = svc.GrantCompetenceByStaff(ctx, "staff", 7, 30001, 1, 2020)
	require.Error(t, err)
	assert.ErrorIs(t, err, domain.ErrDuplicateIdentifier)
	assert.True(t, domain.IsFatal(err))

	assert.Equal(t, []domain.CompetenceID{30001}, svc.CompetenciesOf(ctx, 7))
	assert.Len(t, rec.Notifications(), 1)
}

func TestSeedFailureAbortsOperation(t *testing.T) {
	ctx := context.Background()
	boom := errors.New("entropy exhausted")
	failing := ledger.SeedSourceFunc(func() (ledger.Seed, error) { return nil, boom })
	svc, rec := newService(t, ledger.WithSeedSource(failing))

	_, _, err := svc.AutoGrantCompetence(ctx, 7, 30001, 12020)
	require.ErrorIs(t, err, boom)
	assert.Empty(t, svc.CompetenciesOf(ctx, 7))
	assert.Empty(t, rec.Notifications())
}

func TestRecordByIDRejectsUnknownKind(t *testing.T) {
	svc, _ := newService(t)
	_, _, err := svc.RecordByID(context.Background(), "badge", domain.RecordID{})
	require.Error(t, err)
	assert.ErrorIs(t, err, domain.ErrUnknownKind)
	assert.True(t, domain.IsInvalidInput(err))

	_, err = svc.RecordsInTerm(context.Background(), "badge", 12020)
	assert.ErrorIs(t, err, domain.ErrUnknownKind)
}

func TestSinkFailureDoesNotFailCommittedOperation(t *testing.T) {
	ctx := context.Background()
	sink := domain.NotificationSinkFunc(func(context.Context, domain.Notification) error {
		return errors.New("broker unavailable")
	})
	logger := &captureLogger{}
	svc := ledger.NewInMemoryService(nil, ledger.WithNotificationSink(sink), ledger.WithLogger(logger))

	_, _, err := svc.GrantCompetenceByStaff(ctx, "staff", 7, 30001, 1, 2020)
	require.NoError(t, err)
	assert.Equal(t, []domain.CompetenceID{30001}, svc.CompetenciesOf(ctx, 7))
	assert.True(t, logger.has("error", "notification delivery failed"))
}

func TestCodeNamespaceWarningsDoNotBlock(t *testing.T) {
	ctx := context.Background()
	svc, _ := newService(t)

	_, res, err := svc.GrantCompetenceByStaff(ctx, "staff", 7, 12345, 1, 2020)
	require.NoError(t, err)
	require.Len(t, res.Violations, 1)
	assert.Equal(t, domain.SeverityWarn, res.Violations[0].Severity)
	assert.Equal(t, "code_namespace", res.Violations[0].Rule)

	_, res, err = svc.ApproveActivity(ctx, "staff", 7, 42, 1, 2020)
	require.NoError(t, err)
	require.Len(t, res.Violations, 1)
	assert.False(t, res.HasBlocking())
}

func TestSnapshotRoundTripThroughService(t *testing.T) {
	ctx := context.Background()
	src, _ := newService(t)
	_, _, err := src.GrantCompetenceByStaff(ctx, "staff", 7, 30001, 1, 2020)
	require.NoError(t, err)
	_, _, err = src.ApproveActivity(ctx, "staff", 7, 4000000001, 1, 2020)
	require.NoError(t, err)

	snap, err := src.ExportState()
	require.NoError(t, err)

	dst, _ := newService(t)
	require.NoError(t, dst.ImportState(snap))
	assert.Equal(t, src.CompetenciesOf(ctx, 7), dst.CompetenciesOf(ctx, 7))
	assert.Equal(t, src.ActivitiesOf(ctx, 7), dst.ActivitiesOf(ctx, 7))
}

type viewOnlyStore struct{ domain.PersistentStore }

func TestSnapshotUnsupportedStore(t *testing.T) {
	svc := ledger.NewService(viewOnlyStore{memory.NewStore(nil)})
	_, err := svc.ExportState()
	assert.ErrorIs(t, err, ledger.ErrSnapshotUnsupported)
	assert.ErrorIs(t, svc.ImportState(memory.Snapshot{}), ledger.ErrSnapshotUnsupported)
	assert.Nil(t, svc.Counts())
}

func TestConcurrentGrantsAreSerialised(t *testing.T) {
	ctx := context.Background()
	svc := ledger.NewInMemoryService(nil, ledger.WithSeedSource(ledger.UUIDSeedSource{}))

	const workers = 16
	var wg sync.WaitGroup
	wg.Add(workers)
	for i := 0; i < workers; i++ {
		go func() {
			defer wg.Done()
			_, _, err := svc.GrantCompetenceByStaff(ctx, "staff", 7, 30001, 1, 2020)
			assert.NoError(t, err)
		}()
	}
	wg.Wait()

	assert.Len(t, svc.CompetenciesOf(ctx, 7), workers)
	ids, err := svc.RecordsInTerm(ctx, domain.KindStaffCompetence, 12020)
	require.NoError(t, err)
	assert.Len(t, ids, workers)
}
