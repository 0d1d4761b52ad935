package archive

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"strconv"
	"time"

	"github.com/google/uuid"

	"sitcomledger/internal/infra/persistence/memory"
	"sitcomledger/pkg/domain"
)

// SnapshotPrefix is the key prefix every archived snapshot lives under.
const SnapshotPrefix = "snapshots/"

const (
	envelopeFormat = "sitcomledger.snapshot"
	contentType    = "application/json"
)

// ErrNoSnapshots is returned by Latest when nothing has been archived.
var ErrNoSnapshots = errors.New("archive: no snapshots")

// Envelope wraps an exported ledger state with provenance.
type Envelope struct {
	Format    string                    `json:"format"`
	CreatedAt time.Time                 `json:"created_at"`
	Counts    map[domain.RecordKind]int `json:"counts"`
	Snapshot  memory.Snapshot           `json:"snapshot"`
}

// Archiver writes and reads snapshot envelopes.
type Archiver struct {
	store Store
	now   func() time.Time
	newID func() string
}

// Option configures an Archiver.
type Option func(*Archiver)

// WithClock overrides the time used for keys and envelopes.
func WithClock(now func() time.Time) Option {
	return func(a *Archiver) {
		if now != nil {
			a.now = now
		}
	}
}

// WithIDGenerator overrides the key suffix generator.
func WithIDGenerator(fn func() string) Option {
	return func(a *Archiver) {
		if fn != nil {
			a.newID = fn
		}
	}
}

// NewArchiver builds an archiver over store.
func NewArchiver(store Store, opts ...Option) *Archiver {
	a := &Archiver{
		store: store,
		now:   func() time.Time { return time.Now().UTC() },
		newID: func() string { return uuid.NewString() },
	}
	for _, opt := range opts {
		if opt != nil {
			opt(a)
		}
	}
	return a
}

// Store returns the backing object store.
func (a *Archiver) Store() Store { return a.store }

// keyTimeLayout is RFC 3339 in UTC with a fixed nanosecond fraction, so keys
// sort lexically in creation order.
const keyTimeLayout = "2006-01-02T15:04:05.000000000Z"

// Key names a snapshot taken at t: snapshots/<UTC time>-<id>.json.
func Key(t time.Time, id string) string {
	return SnapshotPrefix + t.UTC().Format(keyTimeLayout) + "-" + id + ".json"
}

// Archive serialises snapshot and stores it under a fresh key.
func (a *Archiver) Archive(ctx context.Context, snapshot memory.Snapshot) (Object, error) {
	created := a.now().UTC()
	env := Envelope{
		Format:    envelopeFormat,
		CreatedAt: created,
		Counts: map[domain.RecordKind]int{
			domain.KindStaffCompetence: len(snapshot.StaffCompetences),
			domain.KindActivity:        len(snapshot.Activities),
			domain.KindAutoCompetence:  len(snapshot.AutoCompetences),
		},
		Snapshot: snapshot,
	}
	b, err := json.Marshal(env)
	if err != nil {
		return Object{}, fmt.Errorf("encode snapshot: %w", err)
	}
	total := 0
	for _, n := range env.Counts {
		total += n
	}
	obj, err := a.store.Put(ctx, Key(created, a.newID()), bytes.NewReader(b), PutOptions{
		ContentType: contentType,
		Metadata: map[string]string{
			"format":  envelopeFormat,
			"records": strconv.Itoa(total),
		},
	})
	if err != nil {
		return Object{}, fmt.Errorf("archive snapshot: %w", err)
	}
	return obj, nil
}

// Restore reads the envelope stored under key.
func (a *Archiver) Restore(ctx context.Context, key string) (Envelope, error) {
	_, rc, err := a.store.Get(ctx, key)
	if err != nil {
		return Envelope{}, fmt.Errorf("restore %s: %w", key, err)
	}
	defer rc.Close()
	b, err := io.ReadAll(rc)
	if err != nil {
		return Envelope{}, fmt.Errorf("restore %s: %w", key, err)
	}
	var env Envelope
	if err := json.Unmarshal(b, &env); err != nil {
		return Envelope{}, fmt.Errorf("decode %s: %w", key, err)
	}
	if env.Format != envelopeFormat {
		return Envelope{}, fmt.Errorf("decode %s: unexpected format %q", key, env.Format)
	}
	return env, nil
}

// List returns archived snapshots, oldest first.
func (a *Archiver) List(ctx context.Context) ([]Object, error) {
	return a.store.List(ctx, SnapshotPrefix)
}

// Latest returns the key of the most recent snapshot.
func (a *Archiver) Latest(ctx context.Context) (string, error) {
	objs, err := a.List(ctx)
	if err != nil {
		return "", err
	}
	if len(objs) == 0 {
		return "", ErrNoSnapshots
	}
	return objs[len(objs)-1].Key, nil
}
