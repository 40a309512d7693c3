package store

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"sync/atomic"
	"time"

	"github.com/redis/go-redis/v9"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/lowc1012/flight-change-api/internal/log"
)

// ensure that RedisStore satisfies an interface WindowStore
var _ WindowStore = &RedisStore{}

const (
	defaultTimeout           = 2 * time.Second
	defaultReconnectInterval = time.Second
)

// admitScript runs the whole sliding window check inside Redis so that
// concurrent checks on one key are serialized by the server.
//
// KEYS[1] = window key
// ARGV[1] = now (ms), ARGV[2] = window (ms), ARGV[3] = limit, ARGV[4] = member
var admitScript = redis.NewScript(`
local key    = KEYS[1]
local now    = tonumber(ARGV[1])
local window = tonumber(ARGV[2])
local limit  = tonumber(ARGV[3])

redis.call("ZREMRANGEBYSCORE", key, "-inf", now - window)

local count = redis.call("ZCARD", key)
if count >= limit then
  return {0, count}
end

redis.call("ZADD", key, now, ARGV[4])
redis.call("PEXPIRE", key, window)
return {1, count}
`)

var tracer = otel.Tracer("github.com/lowc1012/flight-change-api/internal/store")

// Options configures a RedisStore.
type Options struct {
	// URL is a redis:// or rediss:// connection string.
	URL string
	// Timeout bounds every round trip. Defaults to 2s.
	Timeout time.Duration
	// ReconnectInterval is how often a request may probe a store that is
	// not connected. Other calls in between fail fast with ErrUnavailable.
	// Defaults to 1s.
	ReconnectInterval time.Duration
	Logger            *zap.Logger
}

// RedisStore is a WindowStore backed by Redis sorted sets. One member per
// admitted request, scored by its timestamp in milliseconds.
type RedisStore struct {
	client  *redis.Client
	timeout time.Duration
	probe   *rate.Limiter
	state   atomic.Int32
	logger  *zap.Logger
}

// NewRedisStore builds a client from opts without touching the network.
// Call Connect before serving traffic.
func NewRedisStore(opts Options) (*RedisStore, error) {
	if strings.TrimSpace(opts.URL) == "" {
		return nil, ErrMissingURL
	}

	redisOpts, err := redis.ParseURL(opts.URL)
	if err != nil {
		return nil, fmt.Errorf("invalid window store URL: %w", err)
	}

	// socket deadlines follow the call context, capped by the store timeout
	timeout := opts.Timeout
	if timeout <= 0 {
		timeout = defaultTimeout
	}
	redisOpts.ContextTimeoutEnabled = true
	redisOpts.DialTimeout = timeout
	redisOpts.ReadTimeout = timeout
	redisOpts.WriteTimeout = timeout
	redisOpts.PoolTimeout = timeout

	return newRedisStore(redis.NewClient(redisOpts), opts), nil
}

func newRedisStore(client *redis.Client, opts Options) *RedisStore {
	if opts.Timeout <= 0 {
		opts.Timeout = defaultTimeout
	}
	if opts.ReconnectInterval <= 0 {
		opts.ReconnectInterval = defaultReconnectInterval
	}
	if opts.Logger == nil {
		opts.Logger = log.Logger()
	}

	return &RedisStore{
		client:  client,
		timeout: opts.Timeout,
		probe:   rate.NewLimiter(rate.Every(opts.ReconnectInterval), 1),
		logger:  opts.Logger.Named("store"),
	}
}

// Connect performs the first round trip to the store.
func (s *RedisStore) Connect(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	if err := s.observe(s.client.Ping(ctx).Err()); err != nil {
		return fmt.Errorf("failed to connect to window store: %w", err)
	}
	s.logger.Info("Connected to window store", zap.String("addr", s.client.Options().Addr))
	return nil
}

// Close releases the underlying connection pool.
func (s *RedisStore) Close() error {
	return s.client.Close()
}

// State reports the connection lifecycle state.
func (s *RedisStore) State() State {
	return State(s.state.Load())
}

// Ping checks the store and updates State. It is not subject to the
// reconnect throttle so health checks always see the real state.
func (s *RedisStore) Ping(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()
	return s.observe(s.client.Ping(ctx).Err())
}

// Admit implements WindowStore.
func (s *RedisStore) Admit(ctx context.Context, key string, req AdmitRequest) (AdmitResult, error) {
	ctx, span := tracer.Start(ctx, "store.Admit")
	defer span.End()
	span.SetAttributes(attribute.String("window.key", key))

	if err := s.allow(); err != nil {
		span.SetStatus(codes.Error, err.Error())
		return AdmitResult{}, err
	}

	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	values, err := admitScript.Run(ctx, s.client, []string{key},
		req.Now.UnixMilli(),
		req.Window.Milliseconds(),
		req.Limit,
		req.Member,
	).Int64Slice()
	if err = s.observe(err); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return AdmitResult{}, fmt.Errorf("failed to run admission script for key %v: %w", key, err)
	}
	if len(values) != 2 {
		return AdmitResult{}, fmt.Errorf("unexpected admission script reply for key %v: %v", key, values)
	}

	result := AdmitResult{Admitted: values[0] == 1, Count: values[1]}
	span.SetAttributes(
		attribute.Bool("window.admitted", result.Admitted),
		attribute.Int64("window.count", result.Count),
	)
	return result, nil
}

// RemoveRangeByScore deletes records of key scored within [min, max] (ms).
func (s *RedisStore) RemoveRangeByScore(ctx context.Context, key string, min, max int64) (int64, error) {
	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	n, err := s.client.ZRemRangeByScore(ctx, key, strconv.FormatInt(min, 10), strconv.FormatInt(max, 10)).Result()
	return n, s.observe(err)
}

// Count returns the number of records stored under key.
func (s *RedisStore) Count(ctx context.Context, key string) (int64, error) {
	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	n, err := s.client.ZCard(ctx, key).Result()
	return n, s.observe(err)
}

// Add stores one record under key.
func (s *RedisStore) Add(ctx context.Context, key string, rec Record) error {
	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	err := s.client.ZAdd(ctx, key, redis.Z{
		Score:  float64(rec.At.UnixMilli()),
		Member: rec.Member,
	}).Err()
	return s.observe(err)
}

// SetExpiry sets or refreshes the time to live of key.
func (s *RedisStore) SetExpiry(ctx context.Context, key string, ttl time.Duration) error {
	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	return s.observe(s.client.PExpire(ctx, key, ttl).Err())
}

// Records lists the records stored under key, oldest first.
func (s *RedisStore) Records(ctx context.Context, key string) ([]Record, error) {
	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	zs, err := s.client.ZRangeWithScores(ctx, key, 0, -1).Result()
	if err = s.observe(err); err != nil {
		return nil, err
	}

	records := make([]Record, 0, len(zs))
	for _, z := range zs {
		member, _ := z.Member.(string)
		records = append(records, Record{Member: member, At: time.UnixMilli(int64(z.Score))})
	}
	return records, nil
}

// TTL returns the remaining time to live of key, or a negative duration
// when the key does not exist or has no expiry.
func (s *RedisStore) TTL(ctx context.Context, key string) (time.Duration, error) {
	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	ttl, err := s.client.PTTL(ctx, key).Result()
	return ttl, s.observe(err)
}

// Reset deletes every record stored under key.
func (s *RedisStore) Reset(ctx context.Context, key string) error {
	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	return s.observe(s.client.Del(ctx, key).Err())
}

// allow fails fast while the store is not connected, letting one probe
// through per reconnect interval.
func (s *RedisStore) allow() error {
	if s.State() == StateConnected || s.probe.Allow() {
		return nil
	}
	return fmt.Errorf("%w: %s", ErrUnavailable, s.State())
}

// observe classifies err and moves the lifecycle state accordingly.
// Connectivity failures come back wrapped with ErrUnavailable.
func (s *RedisStore) observe(err error) error {
	if err == nil || errors.Is(err, redis.Nil) {
		if prev := State(s.state.Swap(int32(StateConnected))); prev == StateLost {
			s.logger.Info("Window store connection restored")
		}
		return err
	}

	// a caller giving up says nothing about the store
	if errors.Is(err, context.Canceled) || !isUnavailable(err) {
		return err
	}

	if s.state.CompareAndSwap(int32(StateConnected), int32(StateLost)) {
		s.logger.Error("Window store connection lost", zap.Error(err))
	}
	return fmt.Errorf("%w: %v", ErrUnavailable, err)
}

// isUnavailable reports whether err means the store could not be reached,
// as opposed to the store replying with an error.
func isUnavailable(err error) bool {
	if errors.Is(err, ErrUnavailable) {
		return true
	}
	var replyErr redis.Error
	if errors.As(err, &replyErr) {
		return false
	}
	return true
}
