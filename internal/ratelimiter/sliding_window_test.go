package ratelimiter

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"

	"github.com/lowc1012/flight-change-api/internal/store"
)

type clock struct {
	mu sync.Mutex
	t  time.Time
}

func (c *clock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.t
}

func (c *clock) Set(d time.Duration, base time.Time) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.t = base.Add(d)
}

type failingStore struct {
	err   error
	calls atomic.Int32
}

func (s *failingStore) Admit(context.Context, string, store.AdmitRequest) (store.AdmitResult, error) {
	s.calls.Add(1)
	return store.AdmitResult{}, s.err
}

func (s *failingStore) Ping(context.Context) error { return s.err }

func (s *failingStore) State() store.State { return store.StateLost }

var epoch = time.Date(2025, 7, 27, 9, 15, 0, 0, time.UTC)

func newRedisStore(t *testing.T) (*store.RedisStore, *miniredis.Miniredis) {
	t.Helper()

	server, err := miniredis.Run()
	require.NoError(t, err)
	t.Cleanup(server.Close)

	s, err := store.NewRedisStore(store.Options{URL: "redis://" + server.Addr(), Logger: zap.NewNop()})
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })
	require.NoError(t, s.Connect(context.Background()))
	return s, server
}

func newTokenSource() func() string {
	var n atomic.Int64
	return func() string { return fmt.Sprintf("token-%d", n.Add(1)) }
}

func TestSlidingWindowLimiter_WorkedExample(t *testing.T) {
	s, _ := newRedisStore(t)
	c := &clock{t: epoch}

	l, err := NewSlidingWindowLimiter(Config{
		Store:  s,
		Limit:  2,
		Window: 1000 * time.Millisecond,
		Now:    c.Now,
		Token:  newTokenSource(),
		Logger: zap.NewNop(),
	})
	require.NoError(t, err)

	var tests = []struct {
		at        time.Duration
		admitted  bool
		remaining int64
	}{
		{at: 0, admitted: true, remaining: 1},
		{at: 100 * time.Millisecond, admitted: true, remaining: 0},
		{at: 200 * time.Millisecond, admitted: false, remaining: 0},
		{at: 1050 * time.Millisecond, admitted: true, remaining: 0},
	}

	for _, tt := range tests {
		t.Run(fmt.Sprintf("t=%v", tt.at), func(t *testing.T) {
			c.Set(tt.at, epoch)
			v, err := l.Check(context.Background(), "10.0.0.1")
			require.NoError(t, err)
			assert.Equal(t, tt.admitted, v.Admitted())
			assert.Equal(t, int64(2), v.Limit)
			assert.Equal(t, tt.remaining, v.Remaining)
			assert.False(t, v.Degraded)
		})
	}
}

func TestSlidingWindowLimiter_DefaultQuota(t *testing.T) {
	s, _ := newRedisStore(t)
	c := &clock{t: epoch}

	l, err := NewSlidingWindowLimiter(Config{Store: s, Now: c.Now, Logger: zap.NewNop()})
	require.NoError(t, err)
	assert.Equal(t, int64(DefaultLimit), l.Limit())
	assert.Equal(t, DefaultWindow, l.Window())

	for i := 0; i < DefaultLimit; i++ {
		c.Set(time.Duration(i)*time.Second, epoch)
		v, err := l.Check(context.Background(), "10.0.0.1")
		require.NoError(t, err)
		require.True(t, v.Admitted(), "request %d", i+1)
		assert.Equal(t, int64(DefaultLimit-i-1), v.Remaining)
	}

	c.Set(29*time.Second, epoch)
	v, err := l.Check(context.Background(), "10.0.0.1")
	require.NoError(t, err)
	assert.False(t, v.Admitted(), "21st request within the window")

	// the first record ages out at t=30s and frees exactly one slot
	c.Set(30*time.Second, epoch)
	v, err = l.Check(context.Background(), "10.0.0.1")
	require.NoError(t, err)
	assert.True(t, v.Admitted())
	assert.Equal(t, int64(0), v.Remaining)

	v, err = l.Check(context.Background(), "10.0.0.1")
	require.NoError(t, err)
	assert.False(t, v.Admitted())
}

func TestSlidingWindowLimiter_IdentitiesAreIndependent(t *testing.T) {
	s, _ := newRedisStore(t)

	l, err := NewSlidingWindowLimiter(Config{
		Store:  s,
		Limit:  3,
		Now:    func() time.Time { return epoch },
		Logger: zap.NewNop(),
	})
	require.NoError(t, err)

	for i := 0; i < 5; i++ {
		_, err := l.Check(context.Background(), "client-a")
		require.NoError(t, err)
	}

	v, err := l.Check(context.Background(), "client-b")
	require.NoError(t, err)
	assert.True(t, v.Admitted())
	assert.Equal(t, int64(2), v.Remaining)
}

func TestSlidingWindowLimiter_Key(t *testing.T) {
	s, server := newRedisStore(t)

	l, err := NewSlidingWindowLimiter(Config{Store: s, Logger: zap.NewNop()})
	require.NoError(t, err)
	assert.Equal(t, "flight_api_ratelimit:203.0.113.7", l.Key("203.0.113.7"))

	_, err = l.Check(context.Background(), "203.0.113.7")
	require.NoError(t, err)
	assert.True(t, server.Exists("flight_api_ratelimit:203.0.113.7"))
	assert.Equal(t, DefaultWindow, server.TTL("flight_api_ratelimit:203.0.113.7"))
}

func TestSlidingWindowLimiter_ConcurrentChecks(t *testing.T) {
	s, _ := newRedisStore(t)

	const (
		limit    = 20
		requests = 60
	)

	l, err := NewSlidingWindowLimiter(Config{Store: s, Limit: limit, Logger: zap.NewNop()})
	require.NoError(t, err)

	var (
		wg       sync.WaitGroup
		admitted atomic.Int32
		rejected atomic.Int32
	)
	for i := 0; i < requests; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			v, err := l.Check(context.Background(), "10.0.0.1")
			if !assert.NoError(t, err) {
				return
			}
			if v.Admitted() {
				admitted.Add(1)
			} else {
				rejected.Add(1)
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, int32(limit), admitted.Load())
	assert.Equal(t, int32(requests-limit), rejected.Load())
}

func TestSlidingWindowLimiter_FailurePolicy(t *testing.T) {
	storeErr := fmt.Errorf("%w: dial tcp 127.0.0.1:6379: connect: connection refused", store.ErrUnavailable)

	var tests = []struct {
		name      string
		policy    FailurePolicy
		wantErr   bool
		wantLevel zapcore.Level
		outcome   string
	}{
		{name: "fail open", policy: FailOpen, wantLevel: zapcore.WarnLevel, outcome: outcomeDegraded},
		{name: "fail closed", policy: FailClosed, wantErr: true, wantLevel: zapcore.ErrorLevel, outcome: outcomeFailedClosed},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			core, logs := observer.New(zapcore.DebugLevel)
			metrics := NewMetrics(prometheus.NewRegistry())

			l, err := NewSlidingWindowLimiter(Config{
				Store:   &failingStore{err: storeErr},
				Policy:  tt.policy,
				Metrics: metrics,
				Logger:  zap.New(core),
			})
			require.NoError(t, err)

			v, err := l.Check(context.Background(), "10.0.0.1")
			if tt.wantErr {
				assert.Nil(t, v)
				assert.ErrorIs(t, err, ErrStoreUnavailable)
				assert.ErrorIs(t, err, store.ErrUnavailable)
			} else {
				require.NoError(t, err)
				assert.True(t, v.Admitted())
				assert.True(t, v.Degraded)
				assert.Equal(t, int64(DefaultLimit), v.Limit)
				assert.Equal(t, int64(0), v.Remaining)
			}

			entries := logs.FilterMessage(EventStoreUnavailable).All()
			require.Len(t, entries, 1)
			assert.Equal(t, tt.wantLevel, entries[0].Level)
			assert.Equal(t, tt.policy.String(), entries[0].ContextMap()["policy"])
			assert.Contains(t, entries[0].ContextMap()["error"], "connection refused")
			assert.Zero(t, logs.FilterMessage(EventAdmitted).Len())

			assert.Equal(t, float64(1), testutil.ToFloat64(metrics.Decisions.WithLabelValues(tt.outcome)))
		})
	}
}

func TestSlidingWindowLimiter_CanceledContextIsNotDegraded(t *testing.T) {
	core, logs := observer.New(zapcore.DebugLevel)

	l, err := NewSlidingWindowLimiter(Config{
		Store:  &failingStore{err: context.Canceled},
		Logger: zap.New(core),
	})
	require.NoError(t, err)

	v, err := l.Check(context.Background(), "10.0.0.1")
	assert.Nil(t, v)
	assert.ErrorIs(t, err, context.Canceled)
	assert.Zero(t, logs.Len())
}

func TestSlidingWindowLimiter_LogsDistinctEvents(t *testing.T) {
	s, _ := newRedisStore(t)
	core, logs := observer.New(zapcore.DebugLevel)
	metrics := NewMetrics(prometheus.NewRegistry())

	l, err := NewSlidingWindowLimiter(Config{
		Store:   s,
		Limit:   1,
		Now:     func() time.Time { return epoch },
		Metrics: metrics,
		Logger:  zap.New(core),
	})
	require.NoError(t, err)

	_, err = l.Check(context.Background(), "10.0.0.1")
	require.NoError(t, err)
	_, err = l.Check(context.Background(), "10.0.0.1")
	require.NoError(t, err)

	require.Equal(t, 2, logs.Len())
	assert.Equal(t, EventAdmitted, logs.All()[0].Message)
	assert.Equal(t, EventRejected, logs.All()[1].Message)
	assert.Equal(t, "10.0.0.1", logs.All()[1].ContextMap()["identity"])

	assert.Equal(t, float64(1), testutil.ToFloat64(metrics.Decisions.WithLabelValues(outcomeAdmitted)))
	assert.Equal(t, float64(1), testutil.ToFloat64(metrics.Decisions.WithLabelValues(outcomeRejected)))
}

func TestNewSlidingWindowLimiter_InvalidConfig(t *testing.T) {
	_, err := NewSlidingWindowLimiter(Config{})
	assert.Error(t, err)

	fs := &failingStore{err: errors.New("unused")}
	_, err = NewSlidingWindowLimiter(Config{Store: fs, Limit: -1})
	assert.Error(t, err)
	_, err = NewSlidingWindowLimiter(Config{Store: fs, Window: time.Microsecond})
	assert.Error(t, err)
}

func TestParseFailurePolicy(t *testing.T) {
	p, err := ParseFailurePolicy("fail-open")
	require.NoError(t, err)
	assert.Equal(t, FailOpen, p)

	p, err = ParseFailurePolicy(" FAIL-CLOSED ")
	require.NoError(t, err)
	assert.Equal(t, FailClosed, p)

	_, err = ParseFailurePolicy("fail-sideways")
	assert.Error(t, err)
}
