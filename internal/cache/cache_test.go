package cache

import (
	"context"
	"errors"
	"fmt"
	"os"
	"testing"
	"time"

	"github.com/fiscalclm/clm/internal/domain"
)

type fakeClock struct{ t time.Time }

func (f *fakeClock) now() time.Time          { return f.t }
func (f *fakeClock) advance(d time.Duration) { f.t = f.t.Add(d) }

func TestLRUCache(t *testing.T) {
	cache := NewLRUCache(100)
	ctx := context.Background()
	tenantID := "tenant-001"

	t.Run("SetAndGet", func(t *testing.T) {
		if err := cache.Set(ctx, tenantID, "key1", []byte("value1"), time.Minute); err != nil {
			t.Fatalf("Set failed: %v", err)
		}

		val, err := cache.Get(ctx, tenantID, "key1")
		if err != nil {
			t.Fatalf("Get failed: %v", err)
		}
		if string(val) != "value1" {
			t.Errorf("expected 'value1', got '%s'", string(val))
		}
	})

	t.Run("GetMiss", func(t *testing.T) {
		val, err := cache.Get(ctx, tenantID, "nonexistent")
		if err != nil {
			t.Fatalf("Get failed: %v", err)
		}
		if val != nil {
			t.Errorf("expected nil for cache miss, got: %v", val)
		}
	})

	t.Run("Delete", func(t *testing.T) {
		_ = cache.Set(ctx, tenantID, "key2", []byte("value2"), time.Minute)
		if err := cache.Delete(ctx, tenantID, "key2"); err != nil {
			t.Fatalf("Delete failed: %v", err)
		}
		if val, _ := cache.Get(ctx, tenantID, "key2"); val != nil {
			t.Error("expected nil after delete")
		}
	})

	t.Run("NonPositiveTTLRemoves", func(t *testing.T) {
		_ = cache.Set(ctx, tenantID, "key3", []byte("v"), time.Minute)
		_ = cache.Set(ctx, tenantID, "key3", []byte("v"), 0)
		if val, _ := cache.Get(ctx, tenantID, "key3"); val != nil {
			t.Error("expected zero TTL to remove the entry")
		}
	})

	t.Run("TenantIsolation", func(t *testing.T) {
		_ = cache.Set(ctx, "tenant-a", "shared", []byte("a"), time.Minute)
		if val, _ := cache.Get(ctx, "tenant-b", "shared"); val != nil {
			t.Error("tenant-b must not see tenant-a entries")
		}
	})

	t.Run("RequiresTenantID", func(t *testing.T) {
		if _, err := cache.Get(ctx, "", "k"); !errors.Is(err, ErrTenantRequired) {
			t.Errorf("expected ErrTenantRequired, got %v", err)
		}
		if err := cache.Set(ctx, "", "k", nil, time.Minute); !errors.Is(err, ErrTenantRequired) {
			t.Errorf("expected ErrTenantRequired, got %v", err)
		}
		if err := cache.Delete(ctx, "", "k"); !errors.Is(err, ErrTenantRequired) {
			t.Errorf("expected ErrTenantRequired, got %v", err)
		}
	})
}

func TestLRUCacheTTL(t *testing.T) {
	clock := &fakeClock{t: time.Date(2025, 3, 10, 12, 0, 0, 0, time.UTC)}
	cache := NewLRUCache(10)
	cache.now = clock.now
	ctx := context.Background()

	_ = cache.Set(ctx, "t", "expiring", []byte("temp"), time.Minute)

	clock.advance(59 * time.Second)
	if val, _ := cache.Get(ctx, "t", "expiring"); val == nil {
		t.Fatal("expected value before expiry")
	}

	clock.advance(time.Second)
	if val, _ := cache.Get(ctx, "t", "expiring"); val != nil {
		t.Error("expected nil after TTL expiration")
	}
	if s := cache.Stats(); s.Size != 0 {
		t.Errorf("expected expired entry to be dropped, size %d", s.Size)
	}
}

func TestLRUCacheEviction(t *testing.T) {
	cache := NewLRUCache(3)
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		_ = cache.Set(ctx, "t", fmt.Sprintf("k%d", i), []byte("v"), time.Minute)
	}

	// Touch k0 so k1 becomes least recently used
	_, _ = cache.Get(ctx, "t", "k0")
	_ = cache.Set(ctx, "t", "k3", []byte("v"), time.Minute)

	if val, _ := cache.Get(ctx, "t", "k1"); val != nil {
		t.Error("expected k1 to be evicted")
	}
	for _, k := range []string{"k0", "k2", "k3"} {
		if val, _ := cache.Get(ctx, "t", k); val == nil {
			t.Errorf("expected %s to survive eviction", k)
		}
	}

	s := cache.Stats()
	if s.Size != 3 || s.Capacity != 3 || s.Evictions != 1 {
		t.Errorf("unexpected stats: %+v", s)
	}
	if s.Hits != 4 || s.Misses != 1 {
		t.Errorf("expected 4 hits and 1 miss, got %+v", s)
	}
}

func TestContractCaching(t *testing.T) {
	cache := NewLRUCache(10)
	ctx := context.Background()

	c := &domain.Contract{
		ID:               "c-1",
		ContractNumber:   "CTR-001",
		PartyName:        "Agro Cerrado",
		Value:            domain.FromUnits(1_250_000),
		NCM:              "8427.20.10",
		OriginState:      "SP",
		DestinationState: "MG",
		OperationType:    domain.OperationSale,
		Status:           domain.StatusActive,
		ExpiryDate:       domain.NewDate(2025, 12, 31),
		History:          []domain.ContractHistory{{ID: "h-1", Field: "value"}},
	}

	if err := cache.SetContract(ctx, "t", c, time.Minute); err != nil {
		t.Fatalf("SetContract failed: %v", err)
	}

	got, err := cache.GetContract(ctx, "t", "c-1")
	if err != nil {
		t.Fatalf("GetContract failed: %v", err)
	}
	if got == nil {
		t.Fatal("expected cached contract")
	}
	if got.Value != c.Value || got.OperationType != c.OperationType || got.ExpiryDate != c.ExpiryDate {
		t.Errorf("cached contract differs: %+v", got)
	}
	if got.History != nil {
		t.Error("history must not be cached")
	}
	if len(c.History) != 1 {
		t.Error("caching must not modify the caller's contract")
	}

	if err := cache.DeleteContract(ctx, "t", "c-1"); err != nil {
		t.Fatalf("DeleteContract failed: %v", err)
	}
	if got, _ := cache.GetContract(ctx, "t", "c-1"); got != nil {
		t.Error("expected miss after DeleteContract")
	}

	t.Run("CorruptEntryIsAMiss", func(t *testing.T) {
		_ = cache.Set(ctx, "t", contractKey("bad"), []byte("{not json"), time.Minute)
		got, err := cache.GetContract(ctx, "t", "bad")
		if err != nil || got != nil {
			t.Errorf("expected silent miss, got %+v, %v", got, err)
		}
		if val, _ := cache.Get(ctx, "t", contractKey("bad")); val != nil {
			t.Error("expected corrupt entry to be evicted")
		}
	})

	t.Run("RequiresID", func(t *testing.T) {
		if err := cache.SetContract(ctx, "t", &domain.Contract{}, time.Minute); err == nil {
			t.Error("expected error for contract without id")
		}
	})
}

func TestNopCache(t *testing.T) {
	var c domain.Cache = NopCache{}
	ctx := context.Background()

	_ = c.SetContract(ctx, "t", &domain.Contract{ID: "x"}, time.Minute)
	if got, err := c.GetContract(ctx, "t", "x"); got != nil || err != nil {
		t.Errorf("expected miss, got %+v, %v", got, err)
	}
}

func TestCloseClears(t *testing.T) {
	cache := NewLRUCache(10)
	ctx := context.Background()
	_ = cache.Set(ctx, "t", "k", []byte("v"), time.Minute)
	_ = cache.Close()

	if val, _ := cache.Get(ctx, "t", "k"); val != nil {
		t.Error("expected cache to be cleared after close")
	}
}

func TestNewCache(t *testing.T) {
	t.Run("MemoryType", func(t *testing.T) {
		cache, err := New(domain.CacheConfig{Type: "memory", LocalMaxSize: 100})
		if err != nil {
			t.Fatalf("New failed: %v", err)
		}
		defer cache.Close()

		if _, ok := cache.(*LRUCache); !ok {
			t.Error("expected LRUCache for memory type")
		}
	})

	t.Run("NoneType", func(t *testing.T) {
		cache, err := New(domain.CacheConfig{Type: "none"})
		if err != nil {
			t.Fatalf("New failed: %v", err)
		}
		if _, ok := cache.(NopCache); !ok {
			t.Error("expected NopCache for none type")
		}
	})

	t.Run("UnsupportedType", func(t *testing.T) {
		if _, err := New(domain.CacheConfig{Type: "memcached"}); err == nil {
			t.Error("expected error for unsupported type")
		}
	})
}

// TestTwoPhaseCache needs a Redis server, e.g. CLM_TEST_REDIS_ADDR=localhost:6379.
func TestTwoPhaseCache(t *testing.T) {
	addr := os.Getenv("CLM_TEST_REDIS_ADDR")
	if addr == "" {
		t.Skip("CLM_TEST_REDIS_ADDR not set")
	}

	c, err := NewTwoPhaseCache(domain.CacheConfig{
		Type:           "redis",
		RedisAddr:      addr,
		EnableTwoPhase: true,
		LocalMaxSize:   10,
		LocalTTL:       time.Minute,
	})
	if err != nil {
		t.Fatalf("NewTwoPhaseCache failed: %v", err)
	}
	defer c.Close()

	ctx := context.Background()
	tenant := fmt.Sprintf("test-%d", time.Now().UnixNano())
	contract := &domain.Contract{ID: "c-1", ContractNumber: "CTR-1", Value: domain.FromUnits(10)}

	if err := c.SetContract(ctx, tenant, contract, time.Minute); err != nil {
		t.Fatalf("SetContract failed: %v", err)
	}

	// Drop L1 so the read goes to Redis and refills L1
	_ = c.local.Delete(ctx, tenant, contractKey("c-1"))
	got, err := c.GetContract(ctx, tenant, "c-1")
	if err != nil || got == nil || got.ContractNumber != "CTR-1" {
		t.Fatalf("expected L2 hit, got %+v, %v", got, err)
	}
	if val, _ := c.local.Get(ctx, tenant, contractKey("c-1")); val == nil {
		t.Error("expected L1 to be refilled")
	}

	if err := c.DeleteContract(ctx, tenant, "c-1"); err != nil {
		t.Fatalf("DeleteContract failed: %v", err)
	}
	if got, _ := c.remote.GetContract(ctx, tenant, "c-1"); got != nil {
		t.Error("expected L2 entry to be deleted")
	}
}
