package main

import (
	"bytes"
	"context"
	"encoding/json"
	"expvar"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"sitcomledger/internal/httpapi"
	"sitcomledger/internal/ledger"
	"sitcomledger/pkg/domain"
)

const baseConfig = `
[storage]
driver = "sqlite"
sqlite_path = "%DIR%/ledger.db"

[archive]
driver = "fs"
fs_root = "%DIR%/archive"

[log]
format = "text"
level = "error"
`

func writeConfig(t *testing.T, extra string) string {
	t.Helper()
	dir := t.TempDir()
	body := strings.ReplaceAll(baseConfig, "%DIR%", filepath.ToSlash(dir)) + extra
	path := filepath.Join(dir, "sitcom.toml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o600))
	return path
}

type result struct {
	code   int
	stdout string
	stderr string
}

func run(t *testing.T, cfg string, args ...string) result {
	t.Helper()
	var stdout, stderr bytes.Buffer
	code := execute(context.Background(), append([]string{"--config", cfg}, args...), &stdout, &stderr)
	return result{code: code, stdout: stdout.String(), stderr: stderr.String()}
}

func mustRun(t *testing.T, cfg string, args ...string) string {
	t.Helper()
	res := run(t, cfg, args...)
	require.Equal(t, 0, res.code, "stderr: %s", res.stderr)
	return res.stdout
}

func decodeOutput[T any](t *testing.T, out string) T {
	t.Helper()
	var v T
	require.NoError(t, json.Unmarshal([]byte(out), &v), out)
	return v
}

type activityOutput struct {
	Kind   domain.RecordKind       `json:"kind"`
	Record domain.ApprovedActivity `json:"record"`
}

func TestGrantPersistsAcrossInvocations(t *testing.T) {
	cfg := writeConfig(t, "")

	mustRun(t, cfg, "grant", "--caller", "staff-1", "--student", "7", "--competence", "30001", "--semester", "1", "--year", "2019")
	mustRun(t, cfg, "grant", "--caller", "staff-1", "--student", "7", "--competence", "30002", "--semester", "2", "--year", "2019")

	got := decodeOutput[[]domain.CompetenceID](t, mustRun(t, cfg, "competencies", "7"))
	assert.Equal(t, []domain.CompetenceID{30001, 30002}, got)

	empty := decodeOutput[[]domain.ActivityID](t, mustRun(t, cfg, "activities", "7"))
	assert.Empty(t, empty)
}

func TestApproveAndQueryTerm(t *testing.T) {
	cfg := writeConfig(t, "")

	out := decodeOutput[activityOutput](t, mustRun(t, cfg, "approve", "--caller", "7", "--student", "42",
		"--activity", "4000000001", "--semester", "2", "--year", "2020"))
	assert.Equal(t, domain.KindActivity, out.Kind)
	assert.Equal(t, domain.TermKey(22020), out.Record.Term)

	terms := decodeOutput[map[domain.RecordKind][]domain.RecordID](t, mustRun(t, cfg, "term", "2/2020"))
	assert.Equal(t, []domain.RecordID{out.Record.ID}, terms[domain.KindActivity])
	assert.Empty(t, terms[domain.KindStaffCompetence])

	one := decodeOutput[map[domain.RecordKind][]domain.RecordID](t, mustRun(t, cfg, "term", "22020", "activity"))
	assert.Len(t, one, 1)

	shown := decodeOutput[activityOutput](t, mustRun(t, cfg, "record", "activity", out.Record.ID.String()))
	assert.Equal(t, out.Record, shown.Record)

	missing := run(t, cfg, "record", "staff_competence", out.Record.ID.String())
	assert.Equal(t, 1, missing.code)
	assert.Contains(t, missing.stderr, "not found")
}

func TestAwardPolicyFromConfig(t *testing.T) {
	cfg := writeConfig(t, `
[ledger]
[[ledger.awards]]
activity_id = 4000000001
competence_id = 30005
required = 2
`)
	for range 2 {
		mustRun(t, cfg, "approve", "--caller", "7", "--student", "42", "--activity", "4000000001", "--semester", "1", "--year", "2021")
	}
	got := decodeOutput[[]domain.CompetenceID](t, mustRun(t, cfg, "competencies", "42"))
	assert.Equal(t, []domain.CompetenceID{30005}, got)
}

func TestRejectedInput(t *testing.T) {
	cfg := writeConfig(t, "")

	res := run(t, cfg, "grant", "--student", "7", "--competence", "30001", "--semester", "1", "--year", "2019")
	assert.Equal(t, 1, res.code)
	assert.Contains(t, res.stderr, domain.ErrUnauthorized.Error())

	res = run(t, cfg, "approve", "--caller", "7", "--student", "7", "--activity", "4000000001", "--semester", "3", "--year", "2019")
	assert.Equal(t, 1, res.code)
	assert.Contains(t, res.stderr, domain.ErrInvalidSemester.Error())

	res = run(t, cfg, "grant", "--caller", "7", "--student", "7", "--competence", "70000", "--semester", "1", "--year", "2019")
	assert.Equal(t, 1, res.code)
	assert.Contains(t, res.stderr, "out of range")

	res = run(t, cfg, "grant", "--caller", "7")
	assert.Equal(t, 1, res.code)
	assert.Contains(t, res.stderr, "required flag")

	res = run(t, cfg, "competencies", "abc")
	assert.Equal(t, 1, res.code)

	res = run(t, cfg, "term", "12019", "nope")
	assert.Equal(t, 1, res.code)
	assert.Contains(t, res.stderr, domain.ErrUnknownKind.Error())

	assert.Empty(t, decodeOutput[[]domain.CompetenceID](t, mustRun(t, cfg, "competencies", "7")))
}

func TestArchiveAndRestore(t *testing.T) {
	cfg := writeConfig(t, "")
	mustRun(t, cfg, "grant", "--caller", "staff-1", "--student", "7", "--competence", "30001", "--semester", "1", "--year", "2019")
	mustRun(t, cfg, "approve", "--caller", "staff-1", "--student", "7", "--activity", "4000000001", "--semester", "1", "--year", "2019")

	obj := decodeOutput[struct {
		Key  string `json:"key"`
		Size int64  `json:"size_bytes"`
	}](t, mustRun(t, cfg, "archive"))
	assert.True(t, strings.HasPrefix(obj.Key, "snapshots/"), obj.Key)
	assert.Positive(t, obj.Size)

	listed := decodeOutput[[]struct {
		Key string `json:"key"`
	}](t, mustRun(t, cfg, "archive", "--list"))
	require.Len(t, listed, 1)
	assert.Equal(t, obj.Key, listed[0].Key)

	res := run(t, cfg, "restore")
	assert.Equal(t, 1, res.code)
	assert.Contains(t, res.stderr, "empty store")

	fresh := restoredConfig(t, cfg)
	replayed := decodeOutput[struct {
		Key    string                    `json:"key"`
		Counts map[domain.RecordKind]int `json:"counts"`
	}](t, mustRun(t, fresh, "restore"))
	assert.Equal(t, obj.Key, replayed.Key)
	assert.Equal(t, 1, replayed.Counts[domain.KindActivity])
	assert.Equal(t, []domain.CompetenceID{30001}, decodeOutput[[]domain.CompetenceID](t, mustRun(t, fresh, "competencies", "7")))
	assert.Equal(t, []domain.ActivityID{4000000001}, decodeOutput[[]domain.ActivityID](t, mustRun(t, fresh, "activities", "7")))

	restored := decodeOutput[struct {
		Key    string                    `json:"key"`
		Counts map[domain.RecordKind]int `json:"counts"`
	}](t, mustRun(t, cfg, "--storage", "memory", "restore", obj.Key))
	assert.Equal(t, obj.Key, restored.Key)
	assert.Equal(t, 1, restored.Counts[domain.KindStaffCompetence])
	assert.Equal(t, 1, restored.Counts[domain.KindActivity])
}

// restoredConfig points a new sqlite ledger at the archive of cfg.
func restoredConfig(t *testing.T, cfg string) string {
	t.Helper()
	archiveRoot := filepath.ToSlash(filepath.Join(filepath.Dir(cfg), "archive"))
	dir := t.TempDir()
	body := strings.ReplaceAll(baseConfig, "%DIR%", filepath.ToSlash(dir))
	body = strings.ReplaceAll(body, filepath.ToSlash(dir)+"/archive", archiveRoot)
	path := filepath.Join(dir, "sitcom.toml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o600))
	return path
}

func TestObservabilityOutputs(t *testing.T) {
	trace := filepath.Join(t.TempDir(), "trace.jsonl")
	cfg := writeConfig(t, `
[observability]
trace_file = "`+filepath.ToSlash(trace)+`"
expvar_name = "sitcomctl_test"
audit = true
`)
	mustRun(t, cfg, "approve", "--caller", "staff-1", "--student", "7", "--activity", "4000000001", "--semester", "1", "--year", "2019")
	res := run(t, cfg, "grant", "--student", "7", "--competence", "30001", "--semester", "1", "--year", "2019")
	require.Equal(t, 1, res.code)

	raw, err := os.ReadFile(trace)
	require.NoError(t, err)
	lines := strings.Split(strings.TrimSpace(string(raw)), "\n")
	require.Len(t, lines, 2)
	var spans []ledger.JSONTraceEntry
	for _, line := range lines {
		var span ledger.JSONTraceEntry
		require.NoError(t, json.Unmarshal([]byte(line), &span))
		spans = append(spans, span)
	}
	assert.Equal(t, ledger.OpApproveActivity, spans[0].Operation)
	assert.Equal(t, "success", spans[0].Status)
	assert.Equal(t, ledger.OpGrantCompetenceByStaff, spans[1].Operation)
	assert.Equal(t, "error", spans[1].Status)

	published := expvar.Get("sitcomctl_test")
	require.NotNil(t, published)
	var snap ledger.ExpvarMetricsSnapshot
	require.NoError(t, json.Unmarshal([]byte(published.String()), &snap))
	assert.Equal(t, int64(1), snap.Results[ledger.OpApproveActivity]["success"])
	assert.Equal(t, int64(1), snap.Results[ledger.OpGrantCompetenceByStaff]["error"])
}

func TestRestoreWithoutSnapshots(t *testing.T) {
	cfg := writeConfig(t, "")
	res := run(t, cfg, "--storage", "memory", "restore")
	assert.Equal(t, 1, res.code)
	assert.Contains(t, res.stderr, "no snapshots")
}

func TestTokenIsAcceptedByResolver(t *testing.T) {
	cfg := writeConfig(t, `
[http]
jwt_secret = "s3cret"
jwt_issuer = "sitcom"
`)
	tok := strings.TrimSpace(mustRun(t, cfg, "token", "staff-9"))

	resolver, err := httpapi.NewJWTResolver([]byte("s3cret"), "sitcom")
	require.NoError(t, err)
	req := httptest.NewRequest("GET", "/", nil)
	req.Header.Set("Authorization", "Bearer "+tok)
	id, err := resolver.Resolve(req)
	require.NoError(t, err)
	assert.Equal(t, domain.Identity("staff-9"), id)
}

func TestTokenRequiresSecret(t *testing.T) {
	res := run(t, writeConfig(t, ""), "token", "staff-9")
	assert.Equal(t, 1, res.code)
	assert.Contains(t, res.stderr, "jwt_secret")
}

func TestInvalidConfig(t *testing.T) {
	res := run(t, writeConfig(t, ""), "--storage", "mongo", "competencies", "1")
	assert.Equal(t, 1, res.code)
	assert.Contains(t, res.stderr, "storage.driver")
}
