package app

import (
	"context"
	"fmt"

	"github.com/bnema/zerowrap"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/spf13/afero"

	"github.com/bnema/catalogd/internal/adapters/out/digester"
	"github.com/bnema/catalogd/internal/adapters/out/memory"
	"github.com/bnema/catalogd/internal/adapters/out/ratelimit"
	"github.com/bnema/catalogd/internal/adapters/out/sqlite"
	"github.com/bnema/catalogd/internal/adapters/out/telemetry"
	"github.com/bnema/catalogd/internal/boundaries/out"
	"github.com/bnema/catalogd/internal/usecase/access"
	"github.com/bnema/catalogd/internal/usecase/hashjob"
	"github.com/bnema/catalogd/internal/usecase/pathguard"
)

// catalogStore is what both store drivers provide.
type catalogStore interface {
	out.EntryStore
	out.DigestCache
}

// components holds the wired services of a running instance.
type components struct {
	store       catalogStore
	validator   *pathguard.Validator
	coordinator *hashjob.Coordinator
	service     *access.Service
	limiter     *ratelimit.KeyedLimiter
	registry    *prometheus.Registry
	closeStore  func() error
}

// Close releases the store.
func (c *components) Close() error {
	if c.closeStore == nil {
		return nil
	}
	return c.closeStore()
}

func openStore(ctx context.Context, cfg Config, log zerowrap.Logger) (catalogStore, func() error, error) {
	switch cfg.Storage.Driver {
	case "memory":
		log.Warn().
			Str(zerowrap.FieldLayer, "app").
			Msg("using in-memory catalog, entries and digests are lost on restart")
		return memory.New(), nil, nil
	case "sqlite":
		store, err := sqlite.Open(ctx, cfg.StoragePath(), log)
		if err != nil {
			return nil, nil, err
		}
		return store, store.Close, nil
	default:
		return nil, nil, fmt.Errorf("unknown storage driver %q", cfg.Storage.Driver)
	}
}

func newValidator(cfg Config) (*pathguard.Validator, error) {
	roots := make([]pathguard.Root, 0, len(cfg.Roots.Scan))
	for _, r := range cfg.Roots.Scan {
		roots = append(roots, pathguard.Root{Name: r.Name, Path: r.Path})
	}
	return pathguard.NewValidator(pathguard.Config{
		UploadRoot: cfg.Roots.Upload,
		ScanRoots:  roots,
		Extensions: cfg.Files.Extensions,
	})
}

// buildComponents wires every adapter and use case. The coordinator is not
// started.
func buildComponents(ctx context.Context, cfg Config, log zerowrap.Logger) (*components, error) {
	validator, err := newValidator(cfg)
	if err != nil {
		return nil, log.WrapErr(err, "failed to configure roots")
	}

	store, closeStore, err := openStore(ctx, cfg, log)
	if err != nil {
		return nil, log.WrapErr(err, "failed to open catalog store")
	}

	registry := prometheus.NewRegistry()
	var metrics out.HashMetrics
	if cfg.Metrics.Enabled {
		metrics = telemetry.NewHashMetrics(registry)
	}

	fs := afero.NewOsFs()
	computer := digester.NewComputer(fs, cfg.BufferBytes(), log)

	coordinator := hashjob.NewCoordinator(hashjob.Config{
		Workers:    cfg.Hashing.Workers,
		QueueDepth: cfg.Hashing.QueueDepth,
	}, validator, store, computer, metrics, log)

	service := access.NewService(access.Config{
		MaxUploadSize: cfg.MaxUploadBytes(),
		BufferSize:    cfg.BufferBytes(),
	}, validator, coordinator, store, store, fs)

	c := &components{
		store:       store,
		validator:   validator,
		coordinator: coordinator,
		service:     service,
		registry:    registry,
		closeStore:  closeStore,
	}
	if cfg.API.RateLimit.Enabled {
		c.limiter = ratelimit.NewKeyedLimiter(
			cfg.API.RateLimit.PerIPRPS,
			cfg.API.RateLimit.Burst,
			ratelimit.DefaultIdleTTL,
			log,
		)
	}

	return c, nil
}
