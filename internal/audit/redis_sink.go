package audit

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/redis/go-redis/v9"
)

// Defaults for the Redis stream sink.
const (
	DefaultRedisStream       = "docaudit:records"
	DefaultRedisStreamMaxLen = 100000
)

// ErrEmptyStream is returned when a RedisStreamSink is configured without a stream name.
var ErrEmptyStream = errors.New("redis stream name cannot be empty")

// streamAdder is the subset of the Redis client used by RedisStreamSink.
type streamAdder interface {
	XAdd(ctx context.Context, a *redis.XAddArgs) *redis.StringCmd
}

// RedisStreamSink appends each record to a capped Redis stream so downstream
// consumers can ship it elsewhere. Trimming is approximate.
type RedisStreamSink struct {
	client streamAdder
	stream string
	maxLen int64
}

// NewRedisStreamSink creates a RedisStreamSink. A maxLen of 0 selects
// DefaultRedisStreamMaxLen.
func NewRedisStreamSink(client *redis.Client, stream string, maxLen int64) (*RedisStreamSink, error) {
	if client == nil {
		return nil, errors.New("redis client cannot be nil")
	}
	return newRedisStreamSink(client, stream, maxLen)
}

func newRedisStreamSink(client streamAdder, stream string, maxLen int64) (*RedisStreamSink, error) {
	if stream == "" {
		return nil, ErrEmptyStream
	}
	if maxLen <= 0 {
		maxLen = DefaultRedisStreamMaxLen
	}
	return &RedisStreamSink{
		client: client,
		stream: stream,
		maxLen: maxLen,
	}, nil
}

// Emit adds rec to the stream.
func (s *RedisStreamSink) Emit(ctx context.Context, rec Record) error {
	values, err := streamValues(rec)
	if err != nil {
		return err
	}

	err = s.client.XAdd(ctx, &redis.XAddArgs{
		Stream: s.stream,
		MaxLen: s.maxLen,
		Approx: true,
		Values: values,
	}).Err()
	if err != nil {
		return fmt.Errorf("failed to add audit record to stream %s: %w", s.stream, err)
	}
	return nil
}

// streamValues flattens the routing fields of rec next to its JSON payload.
func streamValues(rec Record) (map[string]any, error) {
	payload, err := json.Marshal(rec)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal audit record: %w", err)
	}
	return map[string]any{
		"id":         rec.ID,
		"collection": rec.Collection,
		"operation":  string(rec.Operation),
		"docId":      rec.DocID,
		"record":     string(payload),
	}, nil
}
