// Entry point: reads configuration, builds dependencies and serves the API.
// Routes live in internal/api.
package main

import (
	"context"
	"database/sql"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"civic-api/internal/api"
	"civic-api/internal/config"
	"civic-api/internal/iplocate"
	"civic-api/internal/issue"
	"civic-api/internal/logger"
	"civic-api/internal/middleware"
	"civic-api/internal/migrate"
	"civic-api/internal/municipality"
	"civic-api/internal/notify"
	"civic-api/internal/relay"
	"civic-api/internal/store"
	"civic-api/internal/submit"
	"civic-api/internal/support"
	"civic-api/internal/utils"
	"civic-api/pkg/origindefense"

	"github.com/gin-gonic/gin"
)

func main() {
	config.LoadDotenv()
	l := logger.Setup()
	l.Debug("log_init_ok")

	cfg, err := config.Load()
	if err != nil {
		l.Error("config_error", "err", err)
		os.Exit(1)
	}
	if os.Getenv("GIN_MODE") == "" {
		gin.SetMode(gin.ReleaseMode)
	}

	reg, err := buildRegistry(cfg, l)
	if err != nil {
		l.Error("registry_error", "err", err)
		os.Exit(1)
	}
	l.Info("registry_ready", "municipalities", reg.Codes())

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	repo, closeStore, err := openStore(ctx, cfg, l)
	if err != nil {
		l.Error("store_open_error", "driver", cfg.StoreDriver, "err", err)
		os.Exit(1)
	}
	defer closeStore()

	rc := utils.OpenRedisFromEnv()
	if rc == nil {
		l.Info("redis_disabled")
	} else {
		defer rc.Close()
		if err := rc.Ping(ctx).Err(); err != nil {
			l.Error("redis_ping_error", "err", err)
		} else {
			l.Info("redis_ping_ok")
		}
	}

	var n notify.Notifier = notify.LogNotifier{L: l, Routing: reg}
	if cfg.SMTPEnabled() {
		n = notify.NewEmailNotifier(reg, notify.NewSMTPTransport(notify.SMTPConfig{
			Host:     cfg.SMTPHost,
			Port:     cfg.SMTPPort,
			Username: cfg.SMTPUsername,
			Password: cfg.SMTPPassword,
			From:     cfg.MailFrom,
			FromName: cfg.MailFromName,
		}), l)
		l.Info("smtp_enabled", "host", cfg.SMTPHost, "port", cfg.SMTPPort)
	} else {
		l.Info("smtp_disabled", "reason", "SMTP_HOST unset")
	}

	var locator *iplocate.Locator
	if cfg.GeoIPPath != "" {
		if locator, err = iplocate.Open(cfg.GeoIPPath); err != nil {
			l.Error("geoip_open_error", "path", cfg.GeoIPPath, "err", err)
		} else {
			defer locator.Close()
			l.Info("geoip_ready", "path", cfg.GeoIPPath)
		}
	}

	var rl *relay.Client
	if cfg.WorkflowBaseURL != "" {
		rl = relay.New(cfg.WorkflowBaseURL, cfg.WorkflowToken, cfg.WorkflowTimeout)
		l.Info("workflow_relay_enabled", "base", cfg.WorkflowBaseURL)
	}

	admin, err := origindefense.New(l, cfg.AdminAllowCIDRs, os.Getenv("REAL_IP_HEADER"))
	if err != nil {
		l.Error("admin_allowlist_error", "err", err)
		os.Exit(1)
	}

	var global *middleware.TokenBucket
	if cfg.RateLimitEnabled {
		global = middleware.NewTokenBucket(cfg.RateLimitQPS)
	}

	sub := submit.New(repo, reg, n, l)
	coord := support.New(repo, n, l)

	if cfg.ReminderEnabled {
		sched := notify.NewReminderScheduler(repo, n, notify.ReminderConfig{
			After:    cfg.ReminderAfter,
			Resend:   cfg.ReminderResend,
			Interval: cfg.ReminderInterval,
		}, l)
		go sched.Run(ctx)
		l.Info("reminders_enabled", "after", cfg.ReminderAfter, "interval", cfg.ReminderInterval)
	}

	router := api.NewRouter(api.Deps{
		Repo:          repo,
		Registry:      reg,
		Submit:        sub,
		Support:       coord,
		Locator:       locator,
		Relay:         rl,
		Deduper:       submit.NewDeduper(rc, 10*time.Minute),
		DeviceLimiter: middleware.NewDeviceLimiter(rc, cfg.DeviceDailyLimit, 24*time.Hour, l),
		GlobalLimit:   global,
		Admin:         admin,
		CORSOrigins:   cfg.CORSOrigins,
		APIBase:       cfg.APIBase,
		Logger:        l,
	})

	s := &http.Server{
		Addr:              cfg.Addr,
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	}
	go serve(s, cfg, l)

	<-ctx.Done()
	l.Info("shutdown_begin")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	if err := s.Shutdown(shutdownCtx); err != nil {
		l.Error("shutdown_error", "err", err)
	}
	sub.Wait()
	coord.Wait()
	l.Info("shutdown_complete")
}

func serve(s *http.Server, cfg *config.Config, l *slog.Logger) {
	var err error
	if cfg.TLSEnabled() {
		if cfg.TLSSelfSigned {
			if err := utils.EnsureSelfSignedCert(cfg.TLSCert, cfg.TLSKey, "civic-api.local"); err != nil {
				l.Error("tls_cert_error", "err", err)
				os.Exit(1)
			}
		}
		l.Info("listening_tls", "addr", cfg.Addr, "cert", cfg.TLSCert)
		err = s.ListenAndServeTLS(cfg.TLSCert, cfg.TLSKey)
	} else {
		l.Info("listening", "addr", cfg.Addr)
		err = s.ListenAndServe()
	}
	if err != nil && !errors.Is(err, http.ErrServerClosed) {
		l.Error("listen_error", "err", err)
		os.Exit(1)
	}
}

func buildRegistry(cfg *config.Config, l *slog.Logger) (*municipality.Registry, error) {
	opts := municipality.Options{OversightEmail: cfg.OversightEmail, Logger: l}
	if cfg.MunicipalitiesFile != "" {
		l.Info("registry_load", "file", cfg.MunicipalitiesFile)
		return municipality.LoadFile(cfg.MunicipalitiesFile, opts)
	}
	return municipality.DefaultRegistry(opts)
}

func openStore(ctx context.Context, cfg *config.Config, l *slog.Logger) (issue.Repository, func(), error) {
	switch cfg.StoreDriver {
	case config.DriverMemory:
		l.Warn("store_memory", "reason", "data is lost on restart")
		return issue.NewMemoryRepository(), func() {}, nil
	case config.DriverMongo:
		client, db, err := utils.OpenMongo(ctx, cfg.MongoURI, cfg.MongoDB, 10*time.Second)
		if err != nil {
			return nil, nil, err
		}
		m := store.NewMongo(db)
		if err := m.EnsureIndexes(ctx); err != nil {
			_ = client.Disconnect(context.Background())
			return nil, nil, err
		}
		l.Info("mongo_open_ok", "db", cfg.MongoDB)
		return m, func() { _ = client.Disconnect(context.Background()) }, nil
	default:
		db, err := utils.OpenPostgresFromEnv()
		if err != nil {
			return nil, nil, err
		}
		if err := pingAndMigrate(ctx, db); err != nil {
			db.Close()
			return nil, nil, err
		}
		l.Info("db_open_ok")
		return store.AttachDB(db), func() { db.Close() }, nil
	}
}

func pingAndMigrate(ctx context.Context, db *sql.DB) error {
	pctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := db.PingContext(pctx); err != nil {
		return err
	}
	return migrate.EnsureSchema(ctx, db)
}
