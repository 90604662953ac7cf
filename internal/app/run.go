package app

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/bnema/zerowrap"
	"github.com/spf13/afero"
	"golang.org/x/sync/errgroup"

	"github.com/bnema/catalogd/internal/adapters/out/digester"
	"github.com/bnema/catalogd/internal/domain"
)

const limiterSweepInterval = time.Minute

// Run loads the configuration, wires the service and serves until ctx is
// cancelled.
func Run(ctx context.Context, configPath string) error {
	cfg, err := LoadConfig(configPath)
	if err != nil {
		return err
	}

	log, cleanup, err := initLogger(cfg)
	if err != nil {
		return err
	}
	if cleanup != nil {
		defer cleanup()
	}

	ctx = zerowrap.WithCtx(ctx, log)
	return serve(ctx, cfg, log)
}

func serve(ctx context.Context, cfg Config, log zerowrap.Logger) error {
	c, err := buildComponents(ctx, cfg, log)
	if err != nil {
		return err
	}
	defer func() {
		if err := c.Close(); err != nil {
			log.Warn().Err(err).Msg("failed to close catalog store")
		}
	}()

	router := newRouter(cfg, c, log)
	server := &http.Server{
		Addr:              cfg.Server.Addr,
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
		IdleTimeout:       120 * time.Second,
		// No read or write timeout: uploads and downloads may take hours.
	}

	c.coordinator.Start()

	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		log.Info().
			Str(zerowrap.FieldLayer, "app").
			Str(zerowrap.FieldComponent, "http").
			Str("addr", cfg.Server.Addr).
			Str("upload_root", c.validator.UploadRoot()).
			Msg("catalog API listening")

		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("http server: %w", err)
		}
		return nil
	})

	if c.limiter != nil {
		g.Go(func() error {
			return c.limiter.Run(gctx, limiterSweepInterval)
		})
	}

	g.Go(func() error {
		<-gctx.Done()

		log.Info().
			Str(zerowrap.FieldLayer, "app").
			Msg("shutting down")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
		defer cancel()

		var errs []error
		if err := server.Shutdown(shutdownCtx); err != nil {
			errs = append(errs, fmt.Errorf("http server shutdown: %w", err))
		}
		if err := c.coordinator.Stop(shutdownCtx); err != nil {
			errs = append(errs, err)
		}
		return errors.Join(errs...)
	})

	if err := g.Wait(); err != nil {
		return err
	}

	log.Info().Str(zerowrap.FieldLayer, "app").Msg("catalogd shutdown complete")
	return nil
}

// FileDigests is the result of an offline digest of one file.
type FileDigests struct {
	Path    string
	Size    int64
	Digests domain.Digests
}

// HashFile authorizes path against the configured roots and digests it
// synchronously, without touching the catalog or the cache.
func HashFile(ctx context.Context, configPath, path string) (FileDigests, error) {
	cfg, err := LoadConfig(configPath)
	if err != nil {
		return FileDigests{}, err
	}
	log := zerowrap.New(zerowrap.Config{Level: "warn", Format: cfg.Logging.Format})
	ctx = zerowrap.WithCtx(ctx, log)

	return hashFile(ctx, cfg, path, log)
}

func hashFile(ctx context.Context, cfg Config, path string, log zerowrap.Logger) (FileDigests, error) {
	validator, err := newValidator(cfg)
	if err != nil {
		return FileDigests{}, err
	}

	authorized, err := validator.ResolveForRead(ctx, path)
	if err != nil {
		return FileDigests{}, err
	}

	computer := digester.NewComputer(afero.NewOsFs(), cfg.BufferBytes(), log)
	digests, err := computer.Compute(ctx, authorized.Path)
	if err != nil {
		return FileDigests{}, fmt.Errorf("failed to digest %s: %w", authorized.Path, err)
	}

	return FileDigests{Path: authorized.Path, Size: authorized.Size, Digests: digests}, nil
}
