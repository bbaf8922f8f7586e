// Package cache provides read-through caches for contract records.
package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/fiscalclm/clm/internal/domain"
)

// ErrTenantRequired is returned by every cache operation called without a tenant.
var ErrTenantRequired = errors.New("tenantID is required")

// New creates a new cache based on configuration.
// "memory" returns an LRU cache, "redis" a Redis cache (wrapped in a
// two-phase LRU + Redis cache when enabled) and "none" a cache that never hits.
func New(cfg domain.CacheConfig) (domain.Cache, error) {
	switch cfg.Type {
	case "memory", "":
		return NewLRUCache(cfg.LocalMaxSize), nil

	case "redis":
		if cfg.EnableTwoPhase {
			return NewTwoPhaseCache(cfg)
		}
		return NewRedisCache(cfg)

	case "none":
		return NopCache{}, nil

	default:
		return nil, fmt.Errorf("unsupported cache type: %s", cfg.Type)
	}
}

// byteStore is the raw key/value surface every cache implements.
type byteStore interface {
	Get(ctx context.Context, tenantID string, key string) ([]byte, error)
	Set(ctx context.Context, tenantID string, key string, value []byte, ttl time.Duration) error
	Delete(ctx context.Context, tenantID string, key string) error
}

func contractKey(contractID string) string {
	return "contract:" + contractID
}

// getContract decodes a cached contract. Entries that no longer decode are
// evicted and reported as a miss.
func getContract(ctx context.Context, s byteStore, tenantID, contractID string) (*domain.Contract, error) {
	data, err := s.Get(ctx, tenantID, contractKey(contractID))
	if err != nil || data == nil {
		return nil, err
	}

	var c domain.Contract
	if err := json.Unmarshal(data, &c); err != nil {
		_ = s.Delete(ctx, tenantID, contractKey(contractID))
		return nil, nil
	}
	return &c, nil
}

// setContract caches the contract record without its history.
func setContract(ctx context.Context, s byteStore, tenantID string, c *domain.Contract, ttl time.Duration) error {
	if c == nil || c.ID == "" {
		return errors.New("contract id is required")
	}
	record := *c
	record.History = nil

	data, err := json.Marshal(&record)
	if err != nil {
		return fmt.Errorf("failed to encode contract: %w", err)
	}
	return s.Set(ctx, tenantID, contractKey(c.ID), data, ttl)
}

// TwoPhaseCache implements the two-phase caching strategy.
// L1: Local LRU cache for fast reads
// L2: Redis shared by every replica
type TwoPhaseCache struct {
	local  *LRUCache
	remote *RedisCache
	l1TTL  time.Duration
}

// NewTwoPhaseCache creates a two-phase cache with LRU + Redis.
func NewTwoPhaseCache(cfg domain.CacheConfig) (*TwoPhaseCache, error) {
	remote, err := NewRedisCache(cfg)
	if err != nil {
		return nil, fmt.Errorf("failed to create redis cache: %w", err)
	}
	return newTwoPhase(NewLRUCache(cfg.LocalMaxSize), remote, cfg.LocalTTL), nil
}

func newTwoPhase(local *LRUCache, remote *RedisCache, l1TTL time.Duration) *TwoPhaseCache {
	if l1TTL <= 0 {
		l1TTL = time.Minute
	}
	return &TwoPhaseCache{local: local, remote: remote, l1TTL: l1TTL}
}

// Get retrieves from L1 first, then L2. Populates L1 on L2 hit.
func (c *TwoPhaseCache) Get(ctx context.Context, tenantID string, key string) ([]byte, error) {
	val, err := c.local.Get(ctx, tenantID, key)
	if err != nil || val != nil {
		return val, err
	}

	val, err = c.remote.Get(ctx, tenantID, key)
	if err != nil {
		return nil, err
	}
	if val != nil {
		_ = c.local.Set(ctx, tenantID, key, val, c.l1TTL)
	}
	return val, nil
}

// Set writes to both L1 and L2. L1 never keeps an entry longer than l1TTL
// so that replicas converge after a write elsewhere.
func (c *TwoPhaseCache) Set(ctx context.Context, tenantID string, key string, value []byte, ttl time.Duration) error {
	l1TTL := min(c.l1TTL, ttl)
	if err := c.local.Set(ctx, tenantID, key, value, l1TTL); err != nil {
		return err
	}
	return c.remote.Set(ctx, tenantID, key, value, ttl)
}

// Delete removes from both L1 and L2.
func (c *TwoPhaseCache) Delete(ctx context.Context, tenantID string, key string) error {
	if err := c.local.Delete(ctx, tenantID, key); err != nil {
		return err
	}
	return c.remote.Delete(ctx, tenantID, key)
}

func (c *TwoPhaseCache) GetContract(ctx context.Context, tenantID string, contractID string) (*domain.Contract, error) {
	return getContract(ctx, c, tenantID, contractID)
}

func (c *TwoPhaseCache) SetContract(ctx context.Context, tenantID string, contract *domain.Contract, ttl time.Duration) error {
	return setContract(ctx, c, tenantID, contract, ttl)
}

func (c *TwoPhaseCache) DeleteContract(ctx context.Context, tenantID string, contractID string) error {
	return c.Delete(ctx, tenantID, contractKey(contractID))
}

// Ping checks both L1 and L2 health.
func (c *TwoPhaseCache) Ping(ctx context.Context) error {
	if err := c.local.Ping(ctx); err != nil {
		return fmt.Errorf("L1 ping failed: %w", err)
	}
	if err := c.remote.Ping(ctx); err != nil {
		return fmt.Errorf("L2 ping failed: %w", err)
	}
	return nil
}

// Close closes both L1 and L2.
func (c *TwoPhaseCache) Close() error {
	_ = c.local.Close()
	return c.remote.Close()
}

// Stats returns L1 cache statistics.
func (c *TwoPhaseCache) Stats() Stats {
	return c.local.Stats()
}

// NopCache never stores anything. Every read is a miss.
type NopCache struct{}

func (NopCache) Get(context.Context, string, string) ([]byte, error) { return nil, nil }

func (NopCache) Set(context.Context, string, string, []byte, time.Duration) error { return nil }

func (NopCache) Delete(context.Context, string, string) error { return nil }

func (NopCache) GetContract(context.Context, string, string) (*domain.Contract, error) {
	return nil, nil
}

func (NopCache) SetContract(context.Context, string, *domain.Contract, time.Duration) error {
	return nil
}

func (NopCache) DeleteContract(context.Context, string, string) error { return nil }

func (NopCache) Ping(context.Context) error { return nil }

func (NopCache) Close() error { return nil }

var (
	_ domain.Cache = (*LRUCache)(nil)
	_ domain.Cache = (*RedisCache)(nil)
	_ domain.Cache = (*TwoPhaseCache)(nil)
	_ domain.Cache = NopCache{}
)
