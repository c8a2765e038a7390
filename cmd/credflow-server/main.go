// Command credflow-server runs the credflow HTTP API.
//
// Configuration comes from CREDFLOW_* environment variables, optionally
// loaded from a .env file in the working directory.
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

	"github.com/MrEthical07/credflow"
	"github.com/MrEthical07/credflow/account"
	"github.com/MrEthical07/credflow/account/memstore"
	"github.com/MrEthical07/credflow/httpapi"
	"github.com/MrEthical07/credflow/mailer"
	"github.com/MrEthical07/credflow/metrics/export/prometheus"
	"github.com/MrEthical07/credflow/middleware"
	"github.com/MrEthical07/credflow/postgres"
	"github.com/caarlos0/env/v11"
	"github.com/joho/godotenv"
	"github.com/redis/go-redis/v9"
	"github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"
)

type serverConfig struct {
	Addr            string        `env:"CREDFLOW_HTTP_ADDR" envDefault:":3000"`
	RedisURL        string        `env:"CREDFLOW_REDIS_URL" envDefault:"redis://localhost:6379/0"`
	DatabaseURL     string        `env:"CREDFLOW_DATABASE_URL"`
	PagesDir        string        `env:"CREDFLOW_PAGES_DIR"`
	TrustProxy      bool          `env:"CREDFLOW_TRUST_PROXY"`
	LogLevel        string        `env:"CREDFLOW_LOG_LEVEL" envDefault:"info"`
	ShutdownTimeout time.Duration `env:"CREDFLOW_SHUTDOWN_TIMEOUT" envDefault:"15s"`
	PurgeInterval   time.Duration `env:"CREDFLOW_PURGE_INTERVAL" envDefault:"1h"`
}

func main() {
	log := logrus.New()
	log.SetFormatter(&logrus.JSONFormatter{})
	log.SetOutput(os.Stdout)

	if err := run(log); err != nil {
		log.WithError(err).Fatal("credflow-server stopped")
	}
}

func run(log *logrus.Logger) error {
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("load .env: %w", err)
	}

	srvCfg, err := env.ParseAs[serverConfig]()
	if err != nil {
		return fmt.Errorf("parse server config: %w", err)
	}
	level, err := logrus.ParseLevel(srvCfg.LogLevel)
	if err != nil {
		return fmt.Errorf("parse log level: %w", err)
	}
	log.SetLevel(level)

	cfg, err := credflow.LoadConfig()
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	rdb, err := connectRedis(ctx, srvCfg.RedisURL)
	if err != nil {
		return err
	}
	defer rdb.Close()

	store, purge, closeStore, err := openStore(ctx, srvCfg.DatabaseURL, log)
	if err != nil {
		return err
	}
	defer closeStore()

	transport, err := mailTransport(cfg.Mail, log)
	if err != nil {
		return err
	}

	builder := credflow.New().
		WithConfig(cfg).
		WithRedis(rdb).
		WithAccountStore(store).
		WithMailTransport(transport).
		WithLogger(log)
	if cfg.Audit.Enabled {
		builder = builder.WithAuditSink(credflow.NewLogSink(log.WithField("component", "audit")))
	}
	engine, err := builder.Build()
	if err != nil {
		return fmt.Errorf("build engine: %w", err)
	}
	defer engine.Close()

	report := engine.SecurityReport()
	log.WithFields(logrus.Fields{
		"secure_cookies":  report.SecureCookies,
		"session_ttl":     report.SessionTTL.String(),
		"elevation_ttl":   report.ElevationTTL.String(),
		"scrypt_n":        report.Scrypt.N,
		"audit":           report.AuditEnabled,
		"metrics":         report.MetricsEnabled,
		"oauth_providers": report.OAuthProviders,
	}).Info("engine ready")
	if !report.SecureCookies {
		log.Warn("cookies are not marked Secure; use only behind plain HTTP in development")
	}
	if _, ok := transport.(*mailer.LogTransport); ok {
		log.Warn("mail is logged, not delivered; set CREDFLOW_MAIL_TRANSPORT outside development")
	}

	opts := httpapi.Options{
		Routes:     middleware.DefaultRouteConfig(),
		TrustProxy: srvCfg.TrustProxy,
		Log:        log,
	}
	if cfg.Metrics.Enabled {
		opts.Metrics = prometheus.NewExporter(engine).Handler()
	}
	if srvCfg.PagesDir != "" {
		opts.Pages = http.FileServer(http.Dir(srvCfg.PagesDir))
	}

	srv := &http.Server{
		Addr:              srvCfg.Addr,
		Handler:           httpapi.New(engine, opts),
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       15 * time.Second,
		WriteTimeout:      30 * time.Second,
		IdleTimeout:       2 * time.Minute,
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		log.WithField("addr", srv.Addr).Info("listening")
		if err := srv.ListenAndServe(); !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		log.Info("shutting down")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), srvCfg.ShutdownTimeout)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	})
	if purge != nil && srvCfg.PurgeInterval > 0 {
		g.Go(func() error {
			purgeLoop(gctx, purge, srvCfg.PurgeInterval, log)
			return nil
		})
	}
	return g.Wait()
}

func connectRedis(ctx context.Context, url string) (*redis.Client, error) {
	opts, err := redis.ParseURL(url)
	if err != nil {
		return nil, fmt.Errorf("parse redis url: %w", err)
	}
	rdb := redis.NewClient(opts)
	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := rdb.Ping(pingCtx).Err(); err != nil {
		_ = rdb.Close()
		return nil, fmt.Errorf("ping redis: %w", err)
	}
	return rdb, nil
}

type purgeFunc func(ctx context.Context, now time.Time) (int64, error)

// openStore connects to Postgres and applies migrations. Without a DSN the
// process keeps accounts in memory, which is only suitable for development.
func openStore(ctx context.Context, dsn string, log logrus.FieldLogger) (account.Store, purgeFunc, func(), error) {
	if dsn == "" {
		log.Warn("CREDFLOW_DATABASE_URL not set, accounts are kept in memory")
		return memstore.New(), nil, func() {}, nil
	}
	db, err := postgres.Open(ctx, dsn)
	if err != nil {
		return nil, nil, nil, err
	}
	if err := postgres.Migrate(ctx, db); err != nil {
		_ = db.Close()
		return nil, nil, nil, err
	}
	store := postgres.New(db)
	return store, store.PurgeExpired, func() { _ = db.Close() }, nil
}

func mailTransport(cfg credflow.MailConfig, log logrus.FieldLogger) (mailer.Transport, error) {
	switch cfg.Transport {
	case credflow.MailTransportSMTP:
		return mailer.NewSMTPTransport(mailer.SMTPConfig{
			Host:     cfg.SMTPHost,
			Port:     cfg.SMTPPort,
			Username: cfg.SMTPUsername,
			Password: cfg.SMTPPassword,
			From:     cfg.From,
			FromName: cfg.FromName,
		}), nil
	case credflow.MailTransportResend:
		from := cfg.From
		if cfg.FromName != "" {
			from = fmt.Sprintf("%s <%s>", cfg.FromName, cfg.From)
		}
		return mailer.NewResendTransport(cfg.ResendAPIKey, from)
	default:
		return mailer.NewLogTransport(log.WithField("component", "mail")), nil
	}
}

// purgeLoop deletes expired pending users, reset tokens and codes that were
// never read back.
func purgeLoop(ctx context.Context, purge purgeFunc, every time.Duration, log logrus.FieldLogger) {
	ticker := time.NewTicker(every)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case now := <-ticker.C:
			n, err := purge(ctx, now)
			if err != nil {
				log.WithError(err).Warn("purge expired records")
				continue
			}
			if n > 0 {
				log.WithField("rows", n).Info("purged expired records")
			}
		}
	}
}
