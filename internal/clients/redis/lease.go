package redis

import (
	"context"
	"fmt"
	"os"
	"strings"
	"time"

	goredis "github.com/redis/go-redis/v9"

	"github.com/yungbote/intentbase-backend/internal/pkg/logger"
)

// LeaseStore hands out short-lived per-tenant leases. Bulk reconciliation
// takes one so two snapshot replays for the same tenant do not interleave;
// ordinary phrase/node mutations stay lock-free.
type LeaseStore interface {
	Acquire(ctx context.Context, key string, ttl time.Duration) (release func(), ok bool, err error)
	Close() error
}

type leaseStore struct {
	log    *logger.Logger
	rdb    *goredis.Client
	prefix string
}

func NewLeaseStore(log *logger.Logger) (LeaseStore, error) {
	if log == nil {
		return nil, fmt.Errorf("logger required")
	}

	addr := strings.TrimSpace(os.Getenv("REDIS_ADDR"))
	if addr == "" {
		return nil, fmt.Errorf("missing REDIS_ADDR")
	}
	prefix := strings.TrimSpace(os.Getenv("REDIS_LEASE_PREFIX"))
	if prefix == "" {
		prefix = "ib:lease"
	}

	rdb := goredis.NewClient(&goredis.Options{
		Addr:        addr,
		DialTimeout: 5 * time.Second,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := rdb.Ping(ctx).Err(); err != nil {
		_ = rdb.Close()
		return nil, fmt.Errorf("redis ping: %w", err)
	}

	return &leaseStore{
		log:    log.With("service", "RedisLeaseStore"),
		rdb:    rdb,
		prefix: prefix,
	}, nil
}

func (s *leaseStore) Acquire(ctx context.Context, key string, ttl time.Duration) (func(), bool, error) {
	if ttl <= 0 {
		ttl = 5 * time.Minute
	}
	full := s.prefix + ":" + key
	ok, err := s.rdb.SetNX(ctx, full, time.Now().UTC().Format(time.RFC3339), ttl).Result()
	if err != nil {
		return nil, false, fmt.Errorf("redis setnx: %w", err)
	}
	if !ok {
		return nil, false, nil
	}
	release := func() {
		// Best effort; the TTL bounds a leaked lease.
		if err := s.rdb.Del(context.Background(), full).Err(); err != nil {
			s.log.Warn("Failed to release lease", "key", full, "error", err)
		}
	}
	return release, true, nil
}

func (s *leaseStore) Close() error {
	return s.rdb.Close()
}
