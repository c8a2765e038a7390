package credflow

import (
	"errors"
	"io"
	"time"

	"github.com/MrEthical07/credflow/account"
	internalaudit "github.com/MrEthical07/credflow/internal/audit"
	"github.com/MrEthical07/credflow/internal/rate"
	"github.com/MrEthical07/credflow/kv"
	"github.com/MrEthical07/credflow/mailer"
	"github.com/MrEthical07/credflow/oauth"
	"github.com/MrEthical07/credflow/session"
	"github.com/redis/go-redis/v9"
	"github.com/sirupsen/logrus"
)

// Builder assembles an Engine. A Builder is single use.
type Builder struct {
	config Config
	redis  redis.UniversalClient

	accounts  account.Store
	transport mailer.Transport
	log       logrus.FieldLogger
	auditSink AuditSink
	clients   []*oauth.Client
	now       func() time.Time

	built bool
}

// New returns a Builder seeded with DefaultConfig.
func New() *Builder {
	return &Builder{
		config: DefaultConfig(),
	}
}

// WithConfig replaces the configuration. It is validated by Build.
func (b *Builder) WithConfig(cfg Config) *Builder {
	b.config = cfg
	return b
}

// WithRedis sets the client backing sessions and rate limits.
func (b *Builder) WithRedis(client redis.UniversalClient) *Builder {
	b.redis = client
	return b
}

// WithAccountStore sets the relational store for users and their
// pending records.
func (b *Builder) WithAccountStore(store account.Store) *Builder {
	b.accounts = store
	return b
}

// WithMailTransport sets where outbound email is delivered.
func (b *Builder) WithMailTransport(t mailer.Transport) *Builder {
	b.transport = t
	return b
}

// WithLogger sets the logger for unexpected failures. The default discards.
func (b *Builder) WithLogger(log logrus.FieldLogger) *Builder {
	b.log = log
	return b
}

// WithAuditSink sets where audit events go when Config.Audit is enabled.
func (b *Builder) WithAuditSink(sink AuditSink) *Builder {
	b.auditSink = sink
	return b
}

// WithOAuthClients registers clients in place of the ones built from
// Config.OAuth, keyed by their provider.
func (b *Builder) WithOAuthClients(clients ...*oauth.Client) *Builder {
	b.clients = append(b.clients, clients...)
	return b
}

// WithClock replaces time.Now for the engine, its sessions and its limiter.
func (b *Builder) WithClock(now func() time.Time) *Builder {
	b.now = now
	return b
}

// Build validates the configuration and dependencies and returns the engine.
func (b *Builder) Build() (*Engine, error) {
	if b.built {
		return nil, errors.New("builder already used")
	}

	cfg := b.config
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if b.redis == nil {
		return nil, errors.New("redis client required")
	}
	if b.accounts == nil {
		return nil, errors.New("account store required")
	}
	if b.transport == nil {
		return nil, errors.New("mail transport required")
	}

	now := b.now
	if now == nil {
		now = time.Now
	}
	log := b.log
	if log == nil {
		discard := logrus.New()
		discard.SetOutput(io.Discard)
		log = discard
	}

	policy := cfg.Cookie.policy()

	// -------- OAUTH PROVIDERS --------
	registry := oauth.Registry{}
	if cfg.OAuth.Google.Configured() {
		registry[account.ProviderGoogle] = oauth.NewGoogle(cfg.OAuth.Google, policy)
	}
	if cfg.OAuth.GitHub.Configured() {
		registry[account.ProviderGitHub] = oauth.NewGitHub(cfg.OAuth.GitHub, policy)
	}
	for _, c := range b.clients {
		registry[c.Provider()] = c
	}

	engine := &Engine{
		config:   cfg,
		accounts: b.accounts,
		sessions: session.NewManager(kv.NewRedisStore(b.redis), policy, cfg.Session.TTL).WithClock(now),
		limiter:  rate.New(b.redis, cfg.RateLimit.LimiterConfig()).WithClock(now),
		mailer:   mailer.New(b.transport, cfg.BaseURL),
		oauth:    registry,
		policy:   policy,
		metrics:  NewMetrics(cfg.Metrics),
		log:      log,
		now:      now,
	}
	engine.audit = internalaudit.NewDispatcher(internalaudit.Config{
		Enabled:    cfg.Audit.Enabled,
		BufferSize: cfg.Audit.BufferSize,
		DropIfFull: cfg.Audit.DropIfFull,
	}, b.auditSink)

	b.built = true

	return engine, nil
}
