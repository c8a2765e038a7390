package rate

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/MrEthical07/credflow/internal"
	"github.com/redis/go-redis/v9"
)

// Category names an independently windowed operation.
type Category string

const (
	SignIn            Category = "signIn"
	SignUp            Category = "signUp"
	EmailVerification Category = "emailVerification"
	PasswordReset     Category = "passwordReset"
	TwoFactor         Category = "twoFactor"
	SendEmail         Category = "sendEmail"
	DeleteAccount     Category = "deleteAccount"
	Global            Category = "global"
)

// Window admits Limit requests per trailing Period.
type Window struct {
	Limit  int
	Period time.Duration
}

// Config holds the key prefix and one window per category.
type Config struct {
	Prefix  string
	Windows map[Category]Window
}

// DefaultConfig returns the production windows.
func DefaultConfig() Config {
	return Config{
		Prefix: "ratelimit",
		Windows: map[Category]Window{
			SignIn:            {Limit: 5, Period: time.Minute},
			SignUp:            {Limit: 5, Period: time.Minute},
			EmailVerification: {Limit: 5, Period: time.Minute},
			PasswordReset:     {Limit: 5, Period: time.Minute},
			TwoFactor:         {Limit: 5, Period: time.Minute},
			SendEmail:         {Limit: 3, Period: time.Minute},
			DeleteAccount:     {Limit: 5, Period: time.Minute},
			Global:            {Limit: 10, Period: 10 * time.Second},
		},
	}
}

const slidingWindowScript = `
local now = tonumber(ARGV[1])
local window = tonumber(ARGV[2])
local limit = tonumber(ARGV[3])
redis.call("ZREMRANGEBYSCORE", KEYS[1], "-inf", now - window)
if redis.call("ZCARD", KEYS[1]) >= limit then
  return 0
end
redis.call("ZADD", KEYS[1], ARGV[1], ARGV[4])
redis.call("PEXPIRE", KEYS[1], window)
return 1
`

var slidingWindowLua = redis.NewScript(slidingWindowScript)

// Limiter enforces per-category sliding windows.
type Limiter struct {
	redis  redis.UniversalClient
	config Config
	now    func() time.Time
}

// New creates a Limiter backed by the given Redis client.
func New(redisClient redis.UniversalClient, cfg Config) *Limiter {
	if cfg.Prefix == "" {
		cfg.Prefix = "ratelimit"
	}
	return &Limiter{
		redis:  redisClient,
		config: cfg,
		now:    time.Now,
	}
}

// WithClock replaces the clock whose readings are sent to Redis.
func (l *Limiter) WithClock(now func() time.Time) *Limiter {
	l.now = now
	return l
}

// Allow records one request for key under category and reports whether it
// fits the window. Rejected requests are not recorded.
func (l *Limiter) Allow(ctx context.Context, category Category, key string) (bool, error) {
	w, ok := l.config.Windows[category]
	if !ok || w.Limit <= 0 || w.Period <= 0 {
		return false, fmt.Errorf("%w: %s", ErrUnknownCategory, category)
	}

	nowMS := l.now().UnixMilli()
	member := strconv.FormatInt(nowMS, 10) + "-" + internal.GenerateToken(internal.TokenSizeShort)

	res, err := slidingWindowLua.Run(ctx, l.redis,
		[]string{l.key(category, key)},
		nowMS, w.Period.Milliseconds(), w.Limit, member,
	).Int64()
	if err != nil {
		return false, fmt.Errorf("%w: %v", ErrRedisUnavailable, err)
	}
	return res == 1, nil
}

func (l *Limiter) key(category Category, key string) string {
	return l.config.Prefix + ":" + string(category) + ":" + key
}
