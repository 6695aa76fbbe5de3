package cli

import (
	"context"
	"fmt"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/robfig/cron/v3"
	"github.com/spf13/cobra"

	"github.com/voicebridge/voicebridge/internal/adapter"
	"github.com/voicebridge/voicebridge/internal/config"
	"github.com/voicebridge/voicebridge/internal/configstore"
	"github.com/voicebridge/voicebridge/internal/dispatch"
	"github.com/voicebridge/voicebridge/internal/gateway"
	"github.com/voicebridge/voicebridge/internal/logging"
	"github.com/voicebridge/voicebridge/internal/platform"
	"github.com/voicebridge/voicebridge/internal/store"
	"github.com/voicebridge/voicebridge/internal/workflow"
)

// drainTimeout bounds how long shutdown waits for in-flight runs.
const drainTimeout = 30 * time.Second

func newServeCmd() *cobra.Command {
	var (
		port int
		bind string
	)

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Start the webhook gateway and workflow engine",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load(paths.Config)
			if err != nil {
				return err
			}

			if port != 0 {
				cfg.Gateway.Port = port
			}
			if bind != "" {
				cfg.Gateway.Bind = bind
			}

			issues := config.Validate(&cfg)
			if len(issues) > 0 {
				for _, issue := range issues {
					log.Error().Str("path", issue.Path).Msg(issue.Message)
				}
				return fmt.Errorf("config validation failed with %d issue(s)", len(issues))
			}

			if err := paths.EnsureDirs(); err != nil {
				return err
			}

			ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()

			archive, err := openArchive(cfg, log)
			if err != nil {
				return err
			}
			defer archive.Close()

			agentsDir := cfg.Agents.Dir
			if agentsDir == "" {
				agentsDir = paths.Agents
			}
			matrixPath := cfg.Agents.Matrix
			if matrixPath == "" {
				matrixPath = paths.Matrix
			}
			configs := configstore.New(agentsDir, matrixPath, log)
			if err := configs.Load(); err != nil {
				return fmt.Errorf("loading agent configs: %w", err)
			}
			snap := configs.Snapshot()
			log.Info().
				Int("agents", len(snap.Agents)).
				Int("rules", len(snap.Matrix.Rules)).
				Msg("agent configs loaded")

			registry, err := buildAdapters(ctx, cfg, archive, log)
			if err != nil {
				return err
			}

			exec := workflow.New(registry, workflow.Options{
				MaxAttempts:   cfg.Executor.MaxAttempts,
				RetryBase:     time.Duration(cfg.Executor.RetryBaseMs) * time.Millisecond,
				RetryMax:      time.Duration(cfg.Executor.RetryMaxMs) * time.Millisecond,
				ActionTimeout: time.Duration(cfg.Executor.ActionTimeoutSec) * time.Second,
			}, log)

			dispatcher := dispatch.New(configs, exec, archive, dispatch.Options{
				MaxConcurrentRuns: cfg.Executor.MaxConcurrentRuns,
			}, log)

			opts := []gateway.ServerOption{gateway.WithArchive(archive)}
			if cfg.Platform.APIKey != "" {
				opts = append(opts, gateway.WithPlatform(platform.NewClient(cfg.Platform, log)))
			} else {
				log.Warn().Msg("no platform API key — usage and sync endpoints disabled")
			}

			srv := gateway.New(cfg, configs, dispatcher, log, opts...)
			dispatcher.SetNotifier(srv.RunNotifier())

			sched, err := startSchedules(cfg, configs, archive, log)
			if err != nil {
				return err
			}
			defer sched.Stop()

			serveErr := srv.Start(ctx)

			drainCtx, cancel := context.WithTimeout(context.Background(), drainTimeout)
			defer cancel()
			if err := dispatcher.Drain(drainCtx); err != nil {
				log.Warn().Err(err).Msg("shutdown with runs still in flight")
			}

			return serveErr
		},
	}

	cmd.Flags().IntVar(&port, "port", 0, "override gateway port")
	cmd.Flags().StringVar(&bind, "bind", "", "override bind mode (loopback, lan, custom)")

	return cmd
}

// openArchive opens the configured run archive backend.
func openArchive(cfg config.Config, log *logging.Logger) (store.Store, error) {
	if cfg.Storage.Backend == "sqlite" {
		dbPath := filepath.Join(paths.Data, "voicebridge.db")
		db, err := store.Open(dbPath, log)
		if err != nil {
			return nil, fmt.Errorf("opening database: %w", err)
		}
		log.Info().Str("path", dbPath).Msg("using SQLite run archive")
		return store.NewSQLiteStore(db), nil
	}
	log.Info().Msg("using in-memory run archive")
	return store.NewMemoryStore(), nil
}

// buildAdapters registers every configured adapter, each wrapped in a
// circuit breaker. Adapters whose config section is absent stay
// unregistered, so agents declaring the capability fail at resolution.
func buildAdapters(ctx context.Context, cfg config.Config, archive store.Store, log *logging.Logger) (*adapter.Registry, error) {
	registry := adapter.NewRegistry(log)

	breaker := adapter.BreakerSettings{
		MaxFailures: cfg.Breaker.MaxFailures,
		Timeout:     time.Duration(cfg.Breaker.TimeoutSec) * time.Second,
		Interval:    time.Duration(cfg.Breaker.IntervalSec) * time.Second,
	}
	wrap := func(a adapter.Adapter) {
		registry.Register(adapter.WithBreaker(a, breaker, log))
	}

	registry.Register(adapter.NewLogAdapter(log))
	registry.Register(adapter.NewAnalyticsAdapter(archive, log))

	if c := cfg.Adapters.Mail; c != nil {
		mail, err := adapter.NewMailAdapter(ctx, *c, log)
		if err != nil {
			return nil, fmt.Errorf("mail adapter: %w", err)
		}
		wrap(mail)
	}
	if c := cfg.Adapters.Calendar; c != nil {
		cal, err := adapter.NewCalendarAdapter(ctx, *c, log)
		if err != nil {
			return nil, fmt.Errorf("calendar adapter: %w", err)
		}
		wrap(cal)
	}
	if c := cfg.Adapters.Sheets; c != nil {
		sheets, err := adapter.NewSheetsAdapter(ctx, *c, log)
		if err != nil {
			return nil, fmt.Errorf("sheets adapter: %w", err)
		}
		wrap(sheets)
	}
	if c := cfg.Adapters.Location; c != nil {
		registry.Register(adapter.NewLocationAdapter(*c, log))
	}
	if c := cfg.Adapters.Billing; c != nil {
		registry.Register(adapter.NewBillingAdapter(archive, *c, log))
	}

	log.Info().Strs("capabilities", registry.List()).Msg("adapters registered")
	return registry, nil
}

// startSchedules runs the retention sweep and the optional config reload
// on their cron specs.
func startSchedules(cfg config.Config, configs *configstore.Store, archive store.Store, log *logging.Logger) (*cron.Cron, error) {
	sched := cron.New()

	_, err := sched.AddFunc(cfg.Storage.SweepSchedule, func() {
		cutoff := time.Now().AddDate(0, 0, -cfg.Storage.RetentionDays)
		removed, err := archive.PruneBefore(context.Background(), cutoff)
		if err != nil {
			log.Error().Err(err).Msg("retention sweep failed")
			return
		}
		log.Info().Int64("removed", removed).Time("cutoff", cutoff).Msg("retention sweep done")
	})
	if err != nil {
		return nil, fmt.Errorf("scheduling retention sweep: %w", err)
	}

	if spec := cfg.Agents.ReloadSchedule; spec != "" {
		_, err := sched.AddFunc(spec, func() {
			if err := configs.Reload(); err != nil {
				log.Error().Err(err).Msg("scheduled config reload failed")
				return
			}
			log.Info().Uint64("version", configs.Snapshot().Version).Msg("agent configs reloaded")
		})
		if err != nil {
			return nil, fmt.Errorf("scheduling config reload: %w", err)
		}
	}

	sched.Start()
	return sched, nil
}
