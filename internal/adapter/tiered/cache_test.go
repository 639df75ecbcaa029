package tiered_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/Strob0t/FlowForge/internal/adapter/tiered"
)

type fakeCache struct {
	data   map[string][]byte
	getErr error
}

func newFakeCache() *fakeCache {
	return &fakeCache{data: make(map[string][]byte)}
}

func (f *fakeCache) Get(_ context.Context, key string) (data []byte, ok bool, err error) {
	if f.getErr != nil {
		return nil, false, f.getErr
	}
	v, ok := f.data[key]
	return v, ok, nil
}

func (f *fakeCache) Set(_ context.Context, key string, value []byte, _ time.Duration) error {
	f.data[key] = value
	return nil
}

func (f *fakeCache) Delete(_ context.Context, key string) error {
	delete(f.data, key)
	return nil
}

func TestGetPrefersLocal(t *testing.T) {
	local, shared := newFakeCache(), newFakeCache()
	local.data["r1"] = []byte("local")
	shared.data["r1"] = []byte("shared")

	c := tiered.New(local, shared, time.Minute)
	val, found, err := c.Get(context.Background(), "r1")
	if err != nil || !found {
		t.Fatalf("get: found=%v err=%v", found, err)
	}
	if string(val) != "local" {
		t.Fatalf("expected local value, got %q", val)
	}
}

func TestGetPromotesSharedHit(t *testing.T) {
	local, shared := newFakeCache(), newFakeCache()
	shared.data["r2"] = []byte("shared")

	c := tiered.New(local, shared, time.Minute)
	val, found, err := c.Get(context.Background(), "r2")
	if err != nil || !found {
		t.Fatalf("get: found=%v err=%v", found, err)
	}
	if string(val) != "shared" {
		t.Fatalf("unexpected value %q", val)
	}
	if string(local.data["r2"]) != "shared" {
		t.Fatal("shared hit was not promoted to the local level")
	}
}

func TestGetMiss(t *testing.T) {
	c := tiered.New(newFakeCache(), newFakeCache(), time.Minute)
	if _, found, err := c.Get(context.Background(), "absent"); err != nil || found {
		t.Fatalf("expected clean miss, found=%v err=%v", found, err)
	}
}

func TestGetSharedError(t *testing.T) {
	shared := newFakeCache()
	shared.getErr = errors.New("kv unavailable")

	c := tiered.New(newFakeCache(), shared, time.Minute)
	if _, _, err := c.Get(context.Background(), "r3"); err == nil {
		t.Fatal("expected shared-level error to surface")
	}
}

func TestSetAndDeleteHitBothLevels(t *testing.T) {
	local, shared := newFakeCache(), newFakeCache()
	c := tiered.New(local, shared, time.Minute)
	ctx := context.Background()

	if err := c.Set(ctx, "r4", []byte("v"), time.Minute); err != nil {
		t.Fatal(err)
	}
	if _, ok := local.data["r4"]; !ok {
		t.Fatal("set skipped the local level")
	}
	if _, ok := shared.data["r4"]; !ok {
		t.Fatal("set skipped the shared level")
	}

	if err := c.Delete(ctx, "r4"); err != nil {
		t.Fatal(err)
	}
	if _, ok := local.data["r4"]; ok {
		t.Fatal("delete left the local copy")
	}
	if _, ok := shared.data["r4"]; ok {
		t.Fatal("delete left the shared copy")
	}
}
