package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"

	"sitcomledger/internal/archive"
	"sitcomledger/internal/config"
	"sitcomledger/internal/ledger"
	"sitcomledger/internal/logging"
	"sitcomledger/internal/notify"
	"sitcomledger/pkg/domain"
)

// app holds the collaborators shared by every subcommand.
type app struct {
	cfg      *config.Config
	logger   *slog.Logger
	store    domain.PersistentStore
	svc      *ledger.Service
	registry *prometheus.Registry
	expvar   *ledger.ExpvarMetricsRecorder
	closers  []io.Closer
}

func newApp(ctx context.Context, cfg *config.Config, logOut io.Writer) (*app, error) {
	logOpts := cfg.LoggingOptions()
	logOpts.Writer = logOut
	logger, err := logging.New(logOpts)
	if err != nil {
		return nil, err
	}
	a := &app{cfg: cfg, logger: logger, registry: prometheus.NewRegistry()}
	a.registry.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))

	seeds, err := ledger.SeedSourceByName(cfg.Ledger.SeedSource)
	if err != nil {
		return nil, err
	}
	hasher, err := ledger.HasherByName(cfg.Ledger.Hash)
	if err != nil {
		return nil, err
	}
	metrics, err := ledger.NewPrometheusMetricsRecorder(a.registry)
	if err != nil {
		return nil, err
	}
	observers, err := a.observers(metrics)
	if err != nil {
		return nil, err
	}
	sinks, err := a.notificationSinks(ctx)
	if err != nil {
		a.Close()
		return nil, err
	}

	store, err := ledger.OpenPersistentStore(cfg.StorageOptions(), ledger.NewDefaultRulesEngine())
	if err != nil {
		a.Close()
		return nil, fmt.Errorf("open %s store: %w", cfg.Storage.Driver, err)
	}
	if c, ok := store.(io.Closer); ok {
		a.closers = append(a.closers, c)
	}
	a.store = store
	opts := append([]ledger.ServiceOption{
		ledger.WithLogger(logger),
		ledger.WithClock(ledger.ClockFunc(time.Now)),
		ledger.WithSeedSource(seeds),
		ledger.WithHasher(hasher),
		ledger.WithNotificationSink(sinks),
		ledger.WithAwardPolicies(cfg.Ledger.Awards...),
	}, observers...)
	a.svc = ledger.NewService(store, opts...)
	logger.Debug("ledger ready",
		"storage", cfg.Storage.Driver,
		"hash", hasher.Name(),
		"seed_source", cfg.Ledger.SeedSource,
		"awards", len(cfg.Ledger.Awards))
	return a, nil
}

// observers builds the metrics, trace and audit options. Prometheus is always
// on; expvar, the JSON trace file and the audit log follow the observability
// section.
func (a *app) observers(prom *ledger.PrometheusMetricsRecorder) ([]ledger.ServiceOption, error) {
	obs := a.cfg.Observability
	metrics := ledger.MultiMetricsRecorder{prom}
	if obs.ExpvarName != "" {
		a.expvar = ledger.NewExpvarMetricsRecorder(obs.ExpvarName)
		metrics = append(metrics, a.expvar)
	}
	opts := []ledger.ServiceOption{ledger.WithMetricsRecorder(metrics)}
	if obs.TraceFile != "" {
		f, err := os.OpenFile(obs.TraceFile, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o600)
		if err != nil {
			return nil, fmt.Errorf("open trace file: %w", err)
		}
		a.closers = append(a.closers, f)
		opts = append(opts, ledger.WithTracer(ledger.NewJSONTracer(f)))
	}
	if obs.Audit {
		opts = append(opts, ledger.WithAuditRecorder(ledger.NewLogAuditRecorder(a.logger.With("component", "audit"))))
	}
	return opts, nil
}

func (a *app) notificationSinks(ctx context.Context) (*notify.Group, error) {
	group := notify.NewGroup(notify.NewLogSink(a.logger))
	if a.cfg.Redis.Addr == "" {
		return group, nil
	}
	rc := notify.DefaultRedisConfig()
	rc.Addr = a.cfg.Redis.Addr
	rc.Password = a.cfg.Redis.Password
	rc.DB = a.cfg.Redis.DB
	client, err := notify.NewRedisClient(ctx, rc)
	if err != nil {
		return nil, err
	}
	a.closers = append(a.closers, client)
	group.Add(notify.NewRedisSink(client, notify.WithStream(a.cfg.Redis.Stream), notify.WithMaxLen(a.cfg.Redis.MaxLen)))
	a.logger.Info("publishing notifications to redis", "addr", rc.Addr, "stream", a.cfg.Redis.Stream)
	return group, nil
}

func (a *app) archiver(ctx context.Context) (*archive.Archiver, error) {
	store, err := archive.Open(ctx, a.cfg.Archive)
	if err != nil {
		return nil, fmt.Errorf("open archive: %w", err)
	}
	return archive.NewArchiver(store), nil
}

// restore imports the snapshot stored under key, or the newest one when key is "latest".
func (a *app) restore(ctx context.Context, key string) (archive.Envelope, string, error) {
	arch, err := a.archiver(ctx)
	if err != nil {
		return archive.Envelope{}, "", err
	}
	if key == "" || key == "latest" {
		if key, err = arch.Latest(ctx); err != nil {
			return archive.Envelope{}, "", err
		}
	}
	env, err := arch.Restore(ctx, key)
	if err != nil {
		return archive.Envelope{}, key, err
	}
	if err := a.svc.ImportState(env.Snapshot); err != nil {
		return archive.Envelope{}, key, fmt.Errorf("import %s into %s store: %w", key, a.cfg.Storage.Driver, err)
	}
	return env, key, nil
}

func (a *app) Close() error {
	var errs []error
	for i := len(a.closers) - 1; i >= 0; i-- {
		if err := a.closers[i].Close(); err != nil {
			errs = append(errs, err)
		}
	}
	a.closers = nil
	return errors.Join(errs...)
}
