package main

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"github.com/okian/delaycast/internal/adapters/http/api"
	"github.com/okian/delaycast/internal/adapters/http/swagger"
	app "github.com/okian/delaycast/internal/app"
	"github.com/okian/delaycast/internal/config"
	"github.com/okian/delaycast/pkg/logger"
	"github.com/okian/delaycast/pkg/metrics"
)

// HTTP server timeout constants.
const (
	readTimeout       = 10 * time.Second
	writeTimeout      = 30 * time.Second
	idleTimeout       = 60 * time.Second
	readHeaderTimeout = 5 * time.Second
	shutdownTimeout   = 30 * time.Second
)

func main() {
	// .env is optional; real environment variables win.
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		os.Stderr.WriteString("failed to read .env: " + err.Error() + "\n")
		os.Exit(1)
	}

	// Root context with cancel on SIGINT/SIGTERM.
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// Load configuration (defaults -> optional file -> env)
	cfg, err := config.Load(ctx)
	if err != nil {
		// logger isn't available yet
		os.Stderr.WriteString("failed to load config: " + err.Error() + "\n")
		os.Exit(1)
	}

	if err := logger.Init(logger.WithFormat(cfg.LogFormat)); err != nil {
		os.Stderr.WriteString("failed to initialize logging: " + err.Error() + "\n")
		os.Exit(1)
	}
	if err := logger.SetLevelString(cfg.LogLevel); err != nil {
		logger.Get().Warn(ctx, "invalid log_level; falling back to info", logger.String("log_level", cfg.LogLevel), logger.Error(err))
		_ = logger.SetLevelString("info")
	}

	if err := run(ctx, cfg); err != nil {
		logger.Get().Error(ctx, "server exited", logger.Error(err))
		os.Exit(1)
	}
}

// run serves until ctx is cancelled. The listener comes up before the
// artifacts are loaded so /readyz can report progress; a failed load stops
// the process.
func run(ctx context.Context, cfg *config.Config) error {
	log := logger.Get()
	svc := newService(cfg, log)

	srv := &http.Server{
		Addr:              cfg.Addr,
		Handler:           newHandler(svc, log),
		ReadTimeout:       readTimeout,
		WriteTimeout:      writeTimeout,
		IdleTimeout:       idleTimeout,
		ReadHeaderTimeout: readHeaderTimeout,
	}

	go metrics.Default().RunSystemCollector(ctx)

	serveErr := make(chan error, 1)
	go func() {
		log.Info(ctx, "starting HTTP server", logger.String("addr", cfg.Addr))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serveErr <- err
		}
		close(serveErr)
	}()

	var runErr error
	if err := svc.Start(ctx); err != nil {
		runErr = fmt.Errorf("start service: %w", err)
	} else {
		select {
		case <-ctx.Done():
		case err, ok := <-serveErr:
			if ok {
				runErr = fmt.Errorf("http server: %w", err)
			}
		}
	}

	log.Info(ctx, "shutting down server...")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error(ctx, "server shutdown failed", logger.Error(err))
	}
	log.Info(ctx, "server stopped")
	return runErr
}

func newService(cfg *config.Config, log logger.Logger) *app.Service {
	return app.New(
		app.WithLogger(log),
		app.WithLoader(app.FileLoader{
			RatesPath:    cfg.RateStorePath,
			RatesFormat:  cfg.RateStoreFormat,
			SnapshotPath: cfg.SnapshotPath,
			ArtifactPath: cfg.ArtifactPath,
		}),
		app.WithSweepWorkers(cfg.SweepWorkers),
		app.WithMaxBatchSize(cfg.MaxBatchSize),
		app.WithConfidenceCutoffs(cfg.ConfidenceHighCutoff, cfg.ConfidenceMediumCutoff),
	)
}

func newHandler(svc *app.Service, log logger.Logger) http.Handler {
	mux := http.NewServeMux()
	api.NewServer(svc, api.WithLogger(log)).Register(mux)
	swagger.Register(mux)
	return mux
}
