// internal/ledger/ledger.go
//
// Package ledger is a read-through snapshot of upstream state. Reads come from Redis
// when present; misses load from the upstream and store the result with a TTL. There
// is no write path: after a purchase the snapshot is invalidated and the next read
// refetches the authoritative value.
package ledger

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"boost-service/internal/pkg/identity"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

// KeyFunc derives the cache key for the current request.
type KeyFunc func(ctx context.Context) (string, error)

// Loader fetches the authoritative value from the upstream.
type Loader[T any] func(ctx context.Context) (T, error)

// Observer receives hit/miss/error outcomes, typically Prometheus counters.
type Observer interface {
	ObserveLedger(name, result string)
}

const (
	ResultHit   = "hit"
	ResultMiss  = "miss"
	ResultError = "error"
)

// PerUser scopes a ledger to the authenticated principal.
func PerUser(name string) KeyFunc {
	return func(ctx context.Context) (string, error) {
		p, err := identity.Require(ctx)
		if err != nil {
			return "", err
		}
		return fmt.Sprintf("ledger:%s:%d", name, p.IdentityID), nil
	}
}

// Global shares one snapshot between all users (reference data).
func Global(name string) KeyFunc {
	return func(ctx context.Context) (string, error) {
		return "ledger:" + name, nil
	}
}

type Ledger[T any] struct {
	client   *redis.Client
	name     string
	key      KeyFunc
	load     Loader[T]
	ttl      time.Duration
	logger   *zap.Logger
	observer Observer
}

type Option[T any] func(*Ledger[T])

func WithObserver[T any](o Observer) Option[T] {
	return func(l *Ledger[T]) { l.observer = o }
}

func New[T any](client *redis.Client, name string, key KeyFunc, load Loader[T], ttl time.Duration, logger *zap.Logger, opts ...Option[T]) *Ledger[T] {
	if logger == nil {
		logger = zap.NewNop()
	}
	l := &Ledger[T]{
		client: client,
		name:   name,
		key:    key,
		load:   load,
		ttl:    ttl,
		logger: logger,
	}
	for _, opt := range opts {
		opt(l)
	}
	return l
}

// Get returns the cached snapshot or loads it. Redis failures degrade to a direct load.
func (l *Ledger[T]) Get(ctx context.Context) (T, error) {
	var zero T

	key, err := l.key(ctx)
	if err != nil {
		return zero, err
	}

	if l.client != nil {
		data, err := l.client.Get(ctx, key).Bytes()
		switch {
		case err == nil:
			var v T
			uerr := json.Unmarshal(data, &v)
			if uerr == nil {
				l.observe(ResultHit)
				return v, nil
			}
			l.logger.Warn("discarding undecodable ledger entry",
				zap.String("ledger", l.name),
				zap.String("key", key),
				zap.Error(uerr))
		case errors.Is(err, redis.Nil):
		default:
			l.observe(ResultError)
			l.logger.Warn("ledger cache read failed, loading from upstream",
				zap.String("ledger", l.name),
				zap.Error(err))
		}
	}

	l.observe(ResultMiss)
	v, err := l.load(ctx)
	if err != nil {
		return zero, err
	}

	l.store(ctx, key, v)
	return v, nil
}

// Refresh drops the snapshot and reads it again.
func (l *Ledger[T]) Refresh(ctx context.Context) (T, error) {
	if err := l.Invalidate(ctx); err != nil {
		l.logger.Warn("ledger invalidate failed before refresh",
			zap.String("ledger", l.name),
			zap.Error(err))
	}
	return l.Get(ctx)
}

// Invalidate removes the snapshot for the current key.
func (l *Ledger[T]) Invalidate(ctx context.Context) error {
	key, err := l.key(ctx)
	if err != nil {
		return err
	}
	if l.client == nil {
		return nil
	}
	if err := l.client.Del(ctx, key).Err(); err != nil {
		return fmt.Errorf("invalidate %s: %w", l.name, err)
	}
	return nil
}

func (l *Ledger[T]) store(ctx context.Context, key string, v T) {
	if l.client == nil || l.ttl <= 0 {
		return
	}
	data, err := json.Marshal(v)
	if err != nil {
		l.logger.Warn("failed to encode ledger entry", zap.String("ledger", l.name), zap.Error(err))
		return
	}
	if err := l.client.Set(ctx, key, data, l.ttl).Err(); err != nil {
		l.logger.Warn("failed to store ledger entry", zap.String("ledger", l.name), zap.Error(err))
	}
}

func (l *Ledger[T]) observe(result string) {
	if l.observer != nil {
		l.observer.ObserveLedger(l.name, result)
	}
}
