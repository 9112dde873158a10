// Package redis is the rueidis driver behind the Redis/Valkey vector store
// and the L2 feature cache.
package redis

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/redis/rueidis"

	"github.com/kailas-cloud/vecsight/internal/db"
)

var _ db.Store = (*Store)(nil)

// readyPoll is the interval between PINGs while waiting for the server.
const readyPoll = 100 * time.Millisecond

// Config holds connection parameters.
type Config struct {
	Addrs    []string
	Username string
	Password string
	DB       int

	// WriteTimeout bounds a single socket write (0 = rueidis default).
	WriteTimeout time.Duration
}

// Store implements db.Store on Redis 8+ (RediSearch vector fields).
type Store struct {
	client rueidis.Client
}

// NewStoreWithClient wraps an existing client.
func NewStoreWithClient(c rueidis.Client) *Store {
	return &Store{client: c}
}

// NewStore dials the configured addresses.
func NewStore(cfg Config) (*Store, error) {
	if len(cfg.Addrs) == 0 {
		return nil, errors.New("redis: at least one address is required")
	}

	client, err := rueidis.NewClient(rueidis.ClientOption{
		InitAddress:      cfg.Addrs,
		Username:         cfg.Username,
		Password:         cfg.Password,
		SelectDB:         cfg.DB,
		DisableCache:     true,
		ConnWriteTimeout: cfg.WriteTimeout,
		AlwaysRESP2:      true, // FT.SEARCH replies are parsed as RESP2 arrays
	})
	if err != nil {
		return nil, fmt.Errorf("redis: connect %v: %w", cfg.Addrs, err)
	}
	return &Store{client: client}, nil
}

// Ping checks connectivity.
func (s *Store) Ping(ctx context.Context) error {
	return wrap(db.OpPing, "", s.do(ctx, s.b().Ping().Build()).Error())
}

// Client exposes the underlying client to wrappers (valkey).
func (s *Store) Client() rueidis.Client { return s.client }

// Close shuts down the client.
func (s *Store) Close() { s.client.Close() }

// WaitForReady pings at a fixed interval until the server answers or timeout expires.
func (s *Store) WaitForReady(ctx context.Context, timeout time.Duration) error {
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	err := backoff.Retry(func() error {
		return s.Ping(ctx)
	}, backoff.WithContext(backoff.NewConstantBackOff(readyPoll), ctx))
	if err != nil {
		return fmt.Errorf("store not ready after %s: %w", timeout, err)
	}
	return nil
}

func (s *Store) do(ctx context.Context, cmd rueidis.Completed) rueidis.RedisResult {
	return s.client.Do(ctx, cmd)
}

func (s *Store) b() rueidis.Builder { return s.client.B() }

// wrap attaches the command and key to a non-nil error.
func wrap(op, key string, err error) error {
	if err == nil {
		return nil
	}
	return &db.Error{Op: op, Key: key, Err: err}
}

// isRedisErr reports whether err is a server error whose message contains substr, ignoring case.
func isRedisErr(err error, substr string) bool {
	re, ok := rueidis.IsRedisErr(err)
	return ok && strings.Contains(strings.ToLower(re.Error()), strings.ToLower(substr))
}
