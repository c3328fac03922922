// Package publish streams engine events to Redis.
package publish

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"ad3staker/internal/events"
)

// DefaultStreamMaxLen caps the stream when no limit is configured.
const DefaultStreamMaxLen = 10000

// Options configures the Redis connection and stream.
type Options struct {
	Addr      string
	Password  string
	DB        int
	Stream    string
	MaxLen    int64
	Timeout   time.Duration
	PoolSize  int
	KeyPrefix string
}

// StreamAdder is the subset of the Redis API the publisher needs.
type StreamAdder interface {
	XAdd(ctx context.Context, a *redis.XAddArgs) *redis.StringCmd
}

// Publisher appends engine events to a Redis stream. Publishing is best effort: failures are
// logged and never reach the engine.
type Publisher struct {
	client  StreamAdder
	stream  string
	maxLen  int64
	timeout time.Duration
	logger  *zap.Logger
}

// Connect dials Redis and verifies the connection.
func Connect(ctx context.Context, opts Options, logger *zap.Logger) (*redis.Client, error) {
	if opts.Addr == "" {
		return nil, fmt.Errorf("redis addr is required")
	}
	poolSize := opts.PoolSize
	if poolSize <= 0 {
		poolSize = 10
	}
	rdb := redis.NewClient(&redis.Options{
		Addr:         opts.Addr,
		Password:     opts.Password,
		DB:           opts.DB,
		PoolSize:     poolSize,
		MinIdleConns: 2,
		DialTimeout:  5 * time.Second,
		ReadTimeout:  3 * time.Second,
		WriteTimeout: 3 * time.Second,
	})

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := rdb.Ping(pingCtx).Err(); err != nil {
		rdb.Close()
		return nil, fmt.Errorf("connect redis at %s: %w", opts.Addr, err)
	}
	if logger != nil {
		logger.Info("redis connected", zap.String("addr", opts.Addr), zap.Int("db", opts.DB))
	}
	return rdb, nil
}

// NewPublisher builds a publisher writing to opts.Stream.
func NewPublisher(client StreamAdder, opts Options, logger *zap.Logger) (*Publisher, error) {
	if client == nil {
		return nil, fmt.Errorf("redis client is nil")
	}
	stream := opts.Stream
	if stream == "" {
		stream = "staking_events"
	}
	if opts.KeyPrefix != "" {
		stream = opts.KeyPrefix + ":" + stream
	}
	maxLen := opts.MaxLen
	if maxLen == 0 {
		maxLen = DefaultStreamMaxLen
	}
	timeout := opts.Timeout
	if timeout <= 0 {
		timeout = 3 * time.Second
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Publisher{
		client:  client,
		stream:  stream,
		maxLen:  maxLen,
		timeout: timeout,
		logger:  logger,
	}, nil
}

// Stream returns the stream key.
func (p *Publisher) Stream() string {
	return p.stream
}

// Emit implements events.Emitter.
func (p *Publisher) Emit(event events.Event) {
	ctx, cancel := context.WithTimeout(context.Background(), p.timeout)
	defer cancel()
	p.Publish(ctx, event)
}

// Publish adds event to the stream and returns the entry id, or "" on failure.
func (p *Publisher) Publish(ctx context.Context, event events.Event) string {
	record := events.ToRecord(event)
	attributes, err := json.Marshal(record.Attributes)
	if err != nil {
		p.logger.Warn("marshal event attributes failed", zap.String("type", record.Type), zap.Error(err))
		return ""
	}

	args := &redis.XAddArgs{
		Stream: p.stream,
		Values: map[string]interface{}{
			"sequence":   strconv.FormatUint(record.Sequence, 10),
			"type":       record.Type,
			"timestamp":  strconv.FormatUint(record.Timestamp, 10),
			"attributes": string(attributes),
		},
	}
	if p.maxLen > 0 {
		args.MaxLen = p.maxLen
		args.Approx = true
	}

	id, err := p.client.XAdd(ctx, args).Result()
	if err != nil {
		p.logger.Warn("redis stream add failed",
			zap.String("stream", p.stream),
			zap.String("type", record.Type),
			zap.Error(err),
		)
		return ""
	}
	return id
}
