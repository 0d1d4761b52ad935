package notify

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"

	"sitcomledger/pkg/domain"
)

// DefaultStream is the Redis stream notifications are appended to.
const DefaultStream = "sitcomledger:notifications"

// RedisConfig holds the connection settings for NewRedisClient.
type RedisConfig struct {
	Addr         string
	Password     string
	DB           int
	PoolSize     int
	DialTimeout  time.Duration
	ReadTimeout  time.Duration
	WriteTimeout time.Duration
}

// DefaultRedisConfig returns settings for a local Redis.
func DefaultRedisConfig() RedisConfig {
	return RedisConfig{
		Addr:         "localhost:6379",
		PoolSize:     10,
		DialTimeout:  5 * time.Second,
		ReadTimeout:  3 * time.Second,
		WriteTimeout: 3 * time.Second,
	}
}

// NewRedisClient connects to Redis and verifies the connection with PING.
func NewRedisClient(ctx context.Context, cfg RedisConfig) (*redis.Client, error) {
	if cfg.Addr == "" {
		return nil, errors.New("redis: address required")
	}
	client := redis.NewClient(&redis.Options{
		Addr:         cfg.Addr,
		Password:     cfg.Password,
		DB:           cfg.DB,
		PoolSize:     cfg.PoolSize,
		DialTimeout:  cfg.DialTimeout,
		ReadTimeout:  cfg.ReadTimeout,
		WriteTimeout: cfg.WriteTimeout,
	})

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := client.Ping(pingCtx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("redis: ping %s: %w", cfg.Addr, err)
	}
	return client, nil
}

// StreamAdder is the part of the Redis client used by RedisSink.
type StreamAdder interface {
	XAdd(ctx context.Context, a *redis.XAddArgs) *redis.StringCmd
}

// RedisSink appends notifications to a Redis stream.
type RedisSink struct {
	client StreamAdder
	stream string
	maxLen int64
}

// RedisSinkOption configures a RedisSink.
type RedisSinkOption func(*RedisSink)

// WithStream overrides the stream name.
func WithStream(stream string) RedisSinkOption {
	return func(s *RedisSink) {
		if stream != "" {
			s.stream = stream
		}
	}
}

// WithMaxLen caps the stream length approximately. Zero keeps every entry.
func WithMaxLen(n int64) RedisSinkOption {
	return func(s *RedisSink) {
		if n > 0 {
			s.maxLen = n
		}
	}
}

// NewRedisSink builds a sink over client.
func NewRedisSink(client StreamAdder, opts ...RedisSinkOption) *RedisSink {
	s := &RedisSink{client: client, stream: DefaultStream}
	for _, opt := range opts {
		if opt != nil {
			opt(s)
		}
	}
	return s
}

// Stream returns the target stream name.
func (s *RedisSink) Stream() string { return s.stream }

// Notify implements domain.NotificationSink.
func (s *RedisSink) Notify(ctx context.Context, n domain.Notification) error {
	args := &redis.XAddArgs{
		Stream: s.stream,
		Values: StreamValues(n),
	}
	if s.maxLen > 0 {
		args.MaxLen = s.maxLen
		args.Approx = true
	}
	if err := s.client.XAdd(ctx, args).Err(); err != nil {
		return fmt.Errorf("redis: xadd %s: %w", s.stream, err)
	}
	return nil
}

// StreamValues flattens a notification into stream entry fields.
func StreamValues(n domain.Notification) map[string]any {
	return map[string]any{
		"type":       string(n.Kind),
		"student_id": strconv.FormatUint(uint64(n.Student), 10),
		"code":       strconv.FormatUint(uint64(n.Code), 10),
		"by":         string(n.By),
		"record_id":  n.RecordID.String(),
		"term":       strconv.FormatUint(uint64(n.Term), 10),
	}
}
