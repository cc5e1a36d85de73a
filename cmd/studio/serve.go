package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/framecraft/studio/internal/api"
	"github.com/framecraft/studio/internal/config"
	"github.com/framecraft/studio/internal/db"
	"github.com/framecraft/studio/internal/gateway"
	"github.com/framecraft/studio/internal/logging"
	"github.com/framecraft/studio/internal/media"
	"github.com/framecraft/studio/internal/pipeline"
	"github.com/framecraft/studio/internal/presets"
	"github.com/framecraft/studio/internal/project"
	"github.com/framecraft/studio/internal/session"
	"github.com/framecraft/studio/internal/ui"
)

// storage bundles the stores opened at startup.
type storage struct {
	database *db.DB
	projects *project.Service
	presets  *presets.SQLiteStore
	closers  []func() error
}

func (s *storage) Close() {
	for _, c := range s.closers {
		_ = c()
	}
	s.database.Close()
}

// openStorage opens the SQLite database and picks the project backend:
// Postgres when a DSN is configured, the same SQLite file otherwise. Presets
// and config always live in SQLite.
func openStorage(ctx context.Context, cfg config.Config, logger *slog.Logger) (*storage, error) {
	if err := os.MkdirAll(cfg.DataDir(), 0755); err != nil {
		return nil, fmt.Errorf("failed to create data dir: %w", err)
	}
	database, err := db.New(cfg.DBPath(), logger)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize database: %w", err)
	}
	st := &storage{database: database, presets: presets.NewSQLiteStore(database.Conn())}

	var repo project.Repository = project.NewRepository(database.Conn())
	if dsn := cfg.PostgresDSN(); dsn != "" {
		pg, closeFn, err := project.OpenPostgres(ctx, dsn, logger)
		if err != nil {
			database.Close()
			return nil, fmt.Errorf("failed to open postgres: %w", err)
		}
		repo = pg
		st.closers = append(st.closers, closeFn)
		logger.Info("project storage on postgres")
	}
	st.projects = project.NewService(repo, logging.WithComponent(logger, "projects"))
	return st, nil
}

// newGateway builds the remote gateway from config. Analysis operations can
// be routed to an OpenAI-compatible model while generation stays on the
// gateway.
func newGateway(cfg config.Config, logger *slog.Logger) gateway.Gateway {
	var gw gateway.Gateway
	if cfg.GatewayMode() == config.GatewayStub {
		logger.Warn("using stub gateway, results are canned")
		gw = gateway.NewStubGateway(logger)
	} else {
		gw = gateway.NewHTTPClient(cfg.GatewayURL(), cfg.GatewayKey(), cfg.GatewayTimeout(), logger)
		logger.Info("remote gateway configured", "base_url", cfg.GatewayURL())
	}

	if cfg.AnalysisProvider() == config.ProviderOpenAI {
		analyzer := gateway.NewOpenAIAnalyzer(gateway.OpenAIConfig{
			APIKey:  cfg.OpenAIKey(),
			BaseURL: cfg.OpenAIBaseURL(),
			Model:   cfg.OpenAIModel(),
			Timeout: cfg.GatewayTimeout(),
		}, logger)
		logger.Info("analysis routed to openai", "model", cfg.OpenAIModel())
		gw = gateway.Compose(gw, analyzer)
	}
	return gw
}

func serve(envFile string) error {
	startTime := time.Now()

	cfg, err := config.Load(envFile)
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}

	logger := logging.NewLogger(cfg.LogLevel())
	logger.Info("starting framecraft studio agent", "version", Version, "data_dir", cfg.DataDir())

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	st, err := openStorage(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer st.Close()

	if prober, err := pipeline.NewFFprobe(logging.WithComponent(logger, "ffprobe")); err != nil {
		logger.Info("ffprobe unavailable, video durations come from clients")
	} else {
		st.projects.SetProber(prober)
	}

	authToken, err := st.projects.EnsureAuthToken(ctx)
	if err != nil {
		return fmt.Errorf("failed to ensure auth token: %w", err)
	}

	fmt.Println()
	fmt.Println("╔═══════════════════════════════════════════════════════════╗")
	fmt.Printf("║                FRAMECRAFT STUDIO AGENT %-18s ║\n", "v"+Version)
	fmt.Println("╠═══════════════════════════════════════════════════════════╣")
	fmt.Printf("║  API URL:    http://127.0.0.1:%-27d ║\n", cfg.Port())
	fmt.Printf("║  Auth Token: %-45s ║\n", logging.SanitizeToken(authToken))
	fmt.Printf("║  Gateway:    %-45s ║\n", cfg.GatewayMode())
	fmt.Println("╚═══════════════════════════════════════════════════════════╝")
	fmt.Println("  run `studio token` to print the full token")
	fmt.Println()

	gw := newGateway(cfg, logger)
	sessions := session.NewManager(gw, st.projects, st.presets, logger)

	apiServer := api.NewServer(api.ServerConfig{
		Port:           cfg.Port(),
		Projects:       st.projects,
		Presets:        st.presets,
		Sessions:       sessions,
		Media:          media.NewServer(logger),
		Tokens:         st.projects,
		AllowedOrigins: cfg.AllowedOrigins(),
		Logger:         logger,
		StartTime:      startTime,
		Version:        Version,
		GatewayMode:    cfg.GatewayMode(),
	})

	go func() {
		if err := apiServer.Start(); err != nil {
			logger.Error("HTTP server error", "error", err)
		}
	}()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	quitCh := make(chan struct{})

	go func() {
		select {
		case sig := <-sigCh:
			logger.Info("received shutdown signal", "signal", sig)
			close(quitCh)
		case <-quitCh:
		}
	}()

	if cfg.Headless() {
		logger.Info("running in headless mode (no system tray)")
	} else {
		tray := ui.NewTray(ui.TrayConfig{
			Sessions:  sessions,
			StudioURL: fmt.Sprintf("http://127.0.0.1:%d", cfg.Port()),
			Logger:    logger,
			OnQuit: func() {
				close(quitCh)
			},
		})
		go tray.Run()
		go tray.Watch(ctx, 5*time.Second)
	}

	<-quitCh

	logger.Info("initiating graceful shutdown")
	cancel()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()

	if err := apiServer.Shutdown(shutdownCtx); err != nil {
		logger.Error("failed to shutdown HTTP server", "error", err)
	}
	sessions.CloseAll()

	logger.Info("shutdown complete")
	return nil
}
