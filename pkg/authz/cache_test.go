package authz

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/go-redis/redis/v8"
)

func TestMemoryCache_RoundTrip(t *testing.T) {
	cache := NewMemoryCache(10, time.Minute)
	ctx := context.Background()

	if _, ok, _ := cache.Get(ctx, 1); ok {
		t.Error("Get() on empty cache reported a hit")
	}

	perms := NewPermissionSet(PermAlertsRead, PermManageUsers)
	if err := cache.Set(ctx, 1, perms); err != nil {
		t.Fatalf("Set() error = %v", err)
	}

	got, ok, err := cache.Get(ctx, 1)
	if err != nil || !ok {
		t.Fatalf("Get() = ok=%v err=%v, want hit", ok, err)
	}
	if !got.Equal(perms) {
		t.Errorf("Get() = %v, want %v", got, perms)
	}
}

func TestMemoryCache_GetReturnsDetachedSet(t *testing.T) {
	cache := NewMemoryCache(10, time.Minute)
	ctx := context.Background()

	if err := cache.Set(ctx, 1, NewPermissionSet(PermAlertsRead)); err != nil {
		t.Fatalf("Set() error = %v", err)
	}

	first, ok, err := cache.Get(ctx, 1)
	if err != nil || !ok {
		t.Fatalf("Get() = ok=%v err=%v, want hit", ok, err)
	}
	first.Add(PermServerAdministrator)

	second, ok, err := cache.Get(ctx, 1)
	if err != nil || !ok {
		t.Fatalf("Get() = ok=%v err=%v, want hit", ok, err)
	}
	if second.Has(PermServerAdministrator) {
		t.Error("mutation of a returned set leaked into the cached entry")
	}
}

func TestMemoryCache_Invalidate(t *testing.T) {
	cache := NewMemoryCache(10, time.Minute)
	ctx := context.Background()

	cache.Set(ctx, 1, NewPermissionSet(PermAlertsRead))
	cache.Set(ctx, 2, NewPermissionSet(PermAlertsWrite))

	if err := cache.Invalidate(ctx, 1); err != nil {
		t.Fatalf("Invalidate() error = %v", err)
	}
	if _, ok, _ := cache.Get(ctx, 1); ok {
		t.Error("entry survived Invalidate()")
	}
	if _, ok, _ := cache.Get(ctx, 2); !ok {
		t.Error("Invalidate() dropped an unrelated entry")
	}

	if err := cache.InvalidateAll(ctx); err != nil {
		t.Fatalf("InvalidateAll() error = %v", err)
	}
	if _, ok, _ := cache.Get(ctx, 2); ok {
		t.Error("entry survived InvalidateAll()")
	}
}

func newTestRedisCache(t *testing.T) (*RedisCache, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { client.Close() })
	return NewRedisCache(client, time.Minute), mr
}

func TestRedisCache_RoundTrip(t *testing.T) {
	cache, _ := newTestRedisCache(t)
	ctx := context.Background()

	if _, ok, err := cache.Get(ctx, 1); err != nil || ok {
		t.Fatalf("Get() on empty cache = ok=%v err=%v, want miss", ok, err)
	}

	perms := NewPermissionSet(PermSearchAcrossCases, PermCustomersRead)
	if err := cache.Set(ctx, 1, perms); err != nil {
		t.Fatalf("Set() error = %v", err)
	}

	got, ok, err := cache.Get(ctx, 1)
	if err != nil || !ok {
		t.Fatalf("Get() = ok=%v err=%v, want hit", ok, err)
	}
	if !got.Equal(perms) {
		t.Errorf("Get() = %v, want %v", got, perms)
	}
}

func TestRedisCache_EmptySetRoundTrip(t *testing.T) {
	cache, _ := newTestRedisCache(t)
	ctx := context.Background()

	if err := cache.Set(ctx, 5, NewPermissionSet()); err != nil {
		t.Fatalf("Set() error = %v", err)
	}

	got, ok, err := cache.Get(ctx, 5)
	if err != nil || !ok {
		t.Fatalf("Get() = ok=%v err=%v, want hit for cached empty set", ok, err)
	}
	if len(got) != 0 {
		t.Errorf("Get() = %v, want empty set", got)
	}
}

func TestRedisCache_InvalidateAllBumpsGeneration(t *testing.T) {
	cache, _ := newTestRedisCache(t)
	ctx := context.Background()

	cache.Set(ctx, 1, NewPermissionSet(PermAlertsRead))
	cache.Set(ctx, 2, NewPermissionSet(PermAlertsWrite))

	if err := cache.InvalidateAll(ctx); err != nil {
		t.Fatalf("InvalidateAll() error = %v", err)
	}

	for _, id := range []int64{1, 2} {
		if _, ok, _ := cache.Get(ctx, id); ok {
			t.Errorf("entry for user %d survived InvalidateAll()", id)
		}
	}

	// New generation still works for writes
	if err := cache.Set(ctx, 3, NewPermissionSet(PermReadUsers)); err != nil {
		t.Fatalf("Set() after InvalidateAll() error = %v", err)
	}
	if _, ok, _ := cache.Get(ctx, 3); !ok {
		t.Error("Set() after InvalidateAll() not readable")
	}
}

func TestRedisCache_CorruptEntryIsAMiss(t *testing.T) {
	cache, mr := newTestRedisCache(t)
	ctx := context.Background()

	mr.Set("authz:perms:0:9", "not,a,real,permission")

	_, ok, err := cache.Get(ctx, 9)
	if err != nil {
		t.Fatalf("Get() error = %v, corrupt entries should read as misses", err)
	}
	if ok {
		t.Error("Get() reported a hit for a corrupt entry")
	}
}
