package health

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
)

var (
	consecutiveFailures = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Name: "swapi_upstream_consecutive_failures",
		Help: "Consecutive failed aggregations by collection",
	}, []string{"collection"})

	statusWriteErrorsTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "swapi_status_write_errors_total",
		Help: "Total failures to persist an aggregation outcome",
	})
)

// Tracker stores aggregation outcomes in Redis.
type Tracker struct {
	redis  *redis.Client
	logger zerolog.Logger
}

// NewTracker creates a new status tracker.
func NewTracker(redisClient *redis.Client, logger zerolog.Logger) *Tracker {
	if redisClient == nil {
		panic("redis client cannot be nil")
	}
	return &Tracker{
		redis:  redisClient,
		logger: logger,
	}
}

// Ping checks that Redis answers.
func (t *Tracker) Ping(ctx context.Context) error {
	return t.redis.Ping(ctx).Err()
}

// RecordSuccess marks a completed aggregation of collection.
func (t *Tracker) RecordSuccess(ctx context.Context, collection string) error {
	now := time.Now()

	pipe := t.redis.TxPipeline()
	pipe.Set(ctx, redisKey(collection, redisFieldLastSuccess), now.UnixMilli(), 0)
	pipe.Set(ctx, redisKey(collection, redisFieldConsecutiveErrors), 0, 0)
	if _, err := pipe.Exec(ctx); err != nil {
		statusWriteErrorsTotal.Inc()
		return fmt.Errorf("store success for %s: %w", collection, err)
	}

	consecutiveFailures.WithLabelValues(collection).Set(0)

	t.logger.Debug().
		Str("collection", collection).
		Msg("Aggregation success recorded")

	return nil
}

// RecordFailure marks a failed aggregation of collection.
func (t *Tracker) RecordFailure(ctx context.Context, collection string, cause error) error {
	now := time.Now()

	msg := ""
	if cause != nil {
		msg = cause.Error()
	}

	pipe := t.redis.TxPipeline()
	pipe.Set(ctx, redisKey(collection, redisFieldLastFailure), now.UnixMilli(), 0)
	pipe.Set(ctx, redisKey(collection, redisFieldLastError), msg, 0)
	incr := pipe.Incr(ctx, redisKey(collection, redisFieldConsecutiveErrors))
	if _, err := pipe.Exec(ctx); err != nil {
		statusWriteErrorsTotal.Inc()
		return fmt.Errorf("store failure for %s: %w", collection, err)
	}

	failures := incr.Val()
	consecutiveFailures.WithLabelValues(collection).Set(float64(failures))

	event := t.logger.Warn()
	if failures >= UnhealthyAfter {
		event = t.logger.Error()
	}
	event.
		Str("collection", collection).
		Int64("consecutive_failures", failures).
		Msg("Aggregation failure recorded")

	return nil
}

// GetState returns the recorded state of collection. A collection with no
// recorded outcome is reported healthy with nil timestamps.
func (t *Tracker) GetState(ctx context.Context, collection string) (*State, error) {
	vals, err := t.redis.MGet(ctx,
		redisKey(collection, redisFieldLastSuccess),
		redisKey(collection, redisFieldLastFailure),
		redisKey(collection, redisFieldLastError),
		redisKey(collection, redisFieldConsecutiveErrors),
	).Result()
	if err != nil {
		return nil, fmt.Errorf("get status of %s: %w", collection, err)
	}

	state := &State{Collection: collection}

	if state.LastSuccess, err = parseMillis(vals[0]); err != nil {
		return nil, fmt.Errorf("parse last success: %w", err)
	}
	if state.LastFailure, err = parseMillis(vals[1]); err != nil {
		return nil, fmt.Errorf("parse last failure: %w", err)
	}
	if s, ok := vals[2].(string); ok {
		state.LastError = s
	}
	if s, ok := vals[3].(string); ok {
		n, err := strconv.Atoi(s)
		if err != nil {
			return nil, fmt.Errorf("parse consecutive failures: %w", err)
		}
		state.ConsecutiveFailures = n
	}
	state.UpdateHealth()

	return state, nil
}

// States returns the state of every collection, in argument order.
func (t *Tracker) States(ctx context.Context, collections ...string) ([]*State, error) {
	states := make([]*State, 0, len(collections))
	for _, c := range collections {
		s, err := t.GetState(ctx, c)
		if err != nil {
			return nil, err
		}
		states = append(states, s)
	}
	return states, nil
}

// parseMillis decodes an MGET value holding unix milliseconds.
func parseMillis(v any) (*time.Time, error) {
	if v == nil {
		return nil, nil
	}
	s, ok := v.(string)
	if !ok {
		return nil, errors.New("unexpected value type")
	}
	ms, err := strconv.ParseInt(s, 10, 64)
	if err != nil {
		return nil, err
	}
	ts := time.UnixMilli(ms)
	return &ts, nil
}
