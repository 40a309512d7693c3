package ratelimiter

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.uber.org/zap"

	"github.com/lowc1012/flight-change-api/internal/log"
	"github.com/lowc1012/flight-change-api/internal/store"
)

// ensure that SlidingWindowLimiter satisfies an interface RateLimiter
var _ RateLimiter = &SlidingWindowLimiter{}

const (
	DefaultLimit  = 20
	DefaultWindow = 30 * time.Second
	DefaultPrefix = "flight_api_ratelimit"
)

// log event names
const (
	EventAdmitted         = "ratelimit.admitted"
	EventRejected         = "ratelimit.rejected"
	EventStoreUnavailable = "ratelimit.store_unavailable"
)

var tracer = otel.Tracer("github.com/lowc1012/flight-change-api/internal/ratelimiter")

// Config defines the configuration of a SlidingWindowLimiter. Zero values
// fall back to the defaults above.
type Config struct {
	Store   store.WindowStore
	Limit   int64
	Window  time.Duration
	Prefix  string
	Policy  FailurePolicy
	Metrics *Metrics
	Logger  *zap.Logger

	// Now and Token are replaced in tests.
	Now   func() time.Time
	Token func() string
}

// SlidingWindowLimiter keeps one record per admitted request in the window
// store and admits a request while fewer than Limit records are younger
// than Window.
type SlidingWindowLimiter struct {
	store   store.WindowStore
	limit   int64
	window  time.Duration
	prefix  string
	policy  FailurePolicy
	metrics *Metrics
	logger  *zap.Logger
	now     func() time.Time
	token   func() string
}

func NewSlidingWindowLimiter(cfg Config) (*SlidingWindowLimiter, error) {
	if cfg.Store == nil {
		return nil, errors.New("rate limiter requires a window store")
	}
	if cfg.Limit < 0 {
		return nil, fmt.Errorf("invalid rate limit %d", cfg.Limit)
	}
	if cfg.Window < 0 {
		return nil, fmt.Errorf("invalid rate limit window %v", cfg.Window)
	}
	if cfg.Limit == 0 {
		cfg.Limit = DefaultLimit
	}
	if cfg.Window == 0 {
		cfg.Window = DefaultWindow
	}
	if cfg.Window < time.Millisecond {
		return nil, fmt.Errorf("rate limit window %v is shorter than a millisecond", cfg.Window)
	}
	if cfg.Prefix == "" {
		cfg.Prefix = DefaultPrefix
	}
	if cfg.Logger == nil {
		cfg.Logger = log.Logger()
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	if cfg.Token == nil {
		cfg.Token = uuid.NewString
	}

	return &SlidingWindowLimiter{
		store:   cfg.Store,
		limit:   cfg.Limit,
		window:  cfg.Window,
		prefix:  cfg.Prefix,
		policy:  cfg.Policy,
		metrics: cfg.Metrics,
		logger:  cfg.Logger.Named("ratelimiter"),
		now:     cfg.Now,
		token:   cfg.Token,
	}, nil
}

// Key returns the window key of identity.
func (l *SlidingWindowLimiter) Key(identity string) string {
	return WindowKey(l.prefix, identity)
}

// WindowKey returns the store key holding the window of identity under prefix.
func WindowKey(prefix, identity string) string {
	return prefix + ":" + identity
}

func (l *SlidingWindowLimiter) Limit() int64 {
	return l.limit
}

func (l *SlidingWindowLimiter) Window() time.Duration {
	return l.window
}

// Check admits or rejects one request from identity. Store failures are
// resolved by the failure policy; only FailClosed returns an error for them.
func (l *SlidingWindowLimiter) Check(ctx context.Context, identity string) (*Verdict, error) {
	ctx, span := tracer.Start(ctx, "ratelimiter.Check")
	defer span.End()

	key := l.Key(identity)
	res, err := l.store.Admit(ctx, key, store.AdmitRequest{
		Now:    l.now(),
		Window: l.window,
		Limit:  l.limit,
		Member: l.token(),
	})
	if err != nil {
		if errors.Is(err, context.Canceled) {
			return nil, err
		}
		span.RecordError(err)
		return l.degrade(identity, key, err)
	}

	if !res.Admitted {
		l.metrics.observe(outcomeRejected)
		l.logger.Info(EventRejected,
			zap.String("identity", identity),
			zap.String("key", key),
			zap.Int64("count", res.Count),
			zap.Int64("limit", l.limit),
		)
		span.SetAttributes(attribute.Bool("ratelimit.admitted", false))
		return &Verdict{State: Deny, Limit: l.limit, Remaining: 0}, nil
	}

	remaining := l.limit - res.Count - 1
	if remaining < 0 {
		remaining = 0
	}

	l.metrics.observe(outcomeAdmitted)
	l.logger.Debug(EventAdmitted,
		zap.String("identity", identity),
		zap.String("key", key),
		zap.Int64("limit", l.limit),
		zap.Int64("remaining", remaining),
	)
	span.SetAttributes(
		attribute.Bool("ratelimit.admitted", true),
		attribute.Int64("ratelimit.remaining", remaining),
	)
	return &Verdict{State: Allow, Limit: l.limit, Remaining: remaining}, nil
}

func (l *SlidingWindowLimiter) degrade(identity, key string, err error) (*Verdict, error) {
	fields := []zap.Field{
		zap.String("identity", identity),
		zap.String("key", key),
		zap.Stringer("policy", l.policy),
		zap.Error(err),
	}

	if l.policy == FailClosed {
		l.metrics.observe(outcomeFailedClosed)
		l.logger.Error(EventStoreUnavailable, fields...)
		return nil, fmt.Errorf("%w: %w", ErrStoreUnavailable, err)
	}

	l.metrics.observe(outcomeDegraded)
	l.logger.Warn(EventStoreUnavailable, fields...)
	return &Verdict{State: Allow, Limit: l.limit, Remaining: 0, Degraded: true}, nil
}
