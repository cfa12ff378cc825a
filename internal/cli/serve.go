package cli

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"symptom-interview/internal/agent"
	"symptom-interview/internal/api"
	"symptom-interview/internal/config"
	"symptom-interview/internal/interview"
	"symptom-interview/internal/observability"
	"symptom-interview/internal/platform/cache"
	"symptom-interview/internal/platform/telegram"
	"symptom-interview/internal/report"
	"symptom-interview/internal/storage"
	"symptom-interview/internal/symptom"
)

const serviceName = "symptom-interview"

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the HTTP API server",
	Long: `Start an HTTP server exposing the interview engine.

Endpoints:
  GET    /healthz                          Health check
  POST   /api/sessions                     Create a session
  GET    /api/sessions/{id}                Session view
  PUT    /api/sessions/{id}/profile        Confirm the patient profile
  POST   /api/sessions/{id}/evidence       Add initial evidence
  DELETE /api/sessions/{id}/evidence/{sid} Remove initial evidence
  POST   /api/sessions/{id}/start          Start the interview
  POST   /api/sessions/{id}/actions        Answer, toggle, continue or skip
  POST   /api/sessions/{id}/triage         Resolve the triage level
  POST   /api/sessions/{id}/assessment     Record the assessment
  POST   /api/sessions/{id}/reset          Start over
  GET    /api/symptoms?q=&age=             Symptom search
  GET    /api/symptoms/ws                  Debounced symptom search over WebSocket
  GET    /api/assessments                  Saved assessments
  GET    /api/assessments/{id}             One assessment
  GET    /api/assessments/{id}/report      PDF report
  DELETE /api/assessments/{id}             Delete an assessment`,
	RunE: runServe,
}

func init() {
	serveCmd.Flags().StringP("addr", "a", "", "address to listen on (overrides HOST)")
	serveCmd.Flags().IntP("port", "p", 0, "port to listen on (overrides PORT)")
}

func runServe(cmd *cobra.Command, args []string) error {
	cfg, err := config.Load()
	if err != nil {
		return err
	}
	if cmd.Flags().Changed("addr") {
		cfg.Server.Host, _ = cmd.Flags().GetString("addr")
	}
	if cmd.Flags().Changed("port") {
		cfg.Server.Port, _ = cmd.Flags().GetInt("port")
	}

	logger := observability.InitLogger(serviceName, cfg.Env)

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	var closers []io.Closer
	defer func() {
		for i := len(closers) - 1; i >= 0; i-- {
			if err := closers[i].Close(); err != nil {
				logger.Warn().Err(err).Msg("close")
			}
		}
	}()

	if cfg.Telemetry.Enabled {
		shutdown, err := observability.Setup(ctx, serviceName, version, cfg.Telemetry.Endpoint)
		if err != nil {
			logger.Warn().Err(err).Msg("telemetry disabled")
		} else {
			defer func() {
				ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
				defer cancel()
				if err := shutdown(ctx); err != nil {
					logger.Warn().Err(err).Msg("telemetry shutdown")
				}
			}()
			logger.Info().Str("endpoint", cfg.Telemetry.Endpoint).Msg("telemetry enabled")
		}
	}
	metrics, err := observability.InitMetrics()
	if err != nil {
		return err
	}

	client := agent.NewClient(agent.Config{
		BaseURL:    cfg.Diagnosis.URL,
		AppID:      cfg.Diagnosis.AppID,
		AppKey:     cfg.Diagnosis.AppKey,
		Timeout:    cfg.Diagnosis.Timeout,
		MaxRetries: cfg.Diagnosis.MaxRetries,
	}, logger)

	catalog, closer, err := buildCatalog(ctx, cfg, client, logger)
	if err != nil {
		return err
	}
	if closer != nil {
		closers = append(closers, closer)
	}
	index := symptom.NewIndex(catalog, logger)

	store, closer, err := buildStore(ctx, cfg, logger)
	if err != nil {
		return err
	}
	if closer != nil {
		closers = append(closers, closer)
	}

	svc := interview.NewService(client, store, buildReports(cfg, logger), cfg.Interview.MaxQuestions, logger)

	srv := api.New(svc, index, api.Options{
		Addr:     cfg.Server.Addr(),
		Debounce: cfg.Interview.SearchDebounce,
		Metrics:  metrics,
	}, logger)
	return srv.ListenAndServe(ctx)
}

// buildCatalog puts the Redis read-through cache in front of the catalog
// when REDIS_ADDR is set. An unreachable Redis is logged and skipped.
func buildCatalog(ctx context.Context, cfg *config.Config, client *agent.Client, logger zerolog.Logger) (symptom.Catalog, io.Closer, error) {
	if cfg.Redis.Addr == "" {
		return client, nil, nil
	}
	rc, err := cache.NewRedisCache(ctx, cache.Options{
		Addr:     cfg.Redis.Addr,
		Password: cfg.Redis.Password,
		DB:       cfg.Redis.DB,
	})
	if err != nil {
		logger.Warn().Err(err).Str("addr", cfg.Redis.Addr).Msg("symptom cache disabled")
		return client, nil, nil
	}
	logger.Info().Str("addr", cfg.Redis.Addr).Dur("ttl", cfg.Redis.TTL).Msg("symptom cache enabled")
	return symptom.NewCachedCatalog(client, rc, cfg.Redis.TTL, logger), rc, nil
}

func storeTarget(cfg *config.Config) storage.Target {
	t := storage.Target{Backend: cfg.Store.Backend}
	switch cfg.Store.Backend {
	case storage.BackendPostgres:
		t.DSN = cfg.Store.DatabaseURL
	case storage.BackendSQLite:
		t.DSN = cfg.Store.SQLitePath
	}
	return t
}

func buildStore(ctx context.Context, cfg *config.Config, logger zerolog.Logger) (interview.AssessmentStore, io.Closer, error) {
	if cfg.Store.Backend == storage.BackendMemory {
		logger.Info().Msg("using in-memory assessment store")
		return storage.NewMemoryStore(), nil, nil
	}

	t := storeTarget(cfg)
	db, dialect, err := storage.Open(ctx, t, logger)
	if err != nil {
		return nil, nil, fmt.Errorf("assessment store: %w", err)
	}
	if cfg.Store.MigrateOnStartup {
		if err := storage.MigrateUp(t, logger); err != nil {
			db.Close()
			return nil, nil, err
		}
	}
	return storage.NewSQLStore(db, dialect), db, nil
}

// buildReports always returns a renderer; delivery is wired only when the
// bot token and doctor chat are configured.
func buildReports(cfg *config.Config, logger zerolog.Logger) interview.ReportService {
	var tg report.TelegramClient
	if cfg.ReportsEnabled() {
		tg = telegram.NewClientWithBaseURL(cfg.Report.TelegramToken, cfg.Report.TelegramAPIURL)
		logger.Info().Int64("chat_id", cfg.Report.DoctorChatID).Msg("clinician reports enabled")
	}
	return report.NewService(tg, cfg.Report.DoctorChatID, cfg.Report.FontPath, logger)
}
