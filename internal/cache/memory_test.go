package cache

import (
	"context"
	"errors"
	"testing"
	"time"
)

func TestMemoryStoreGetSet(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStore(10, time.Hour)

	if _, err := store.Get(ctx, "missing"); !errors.Is(err, ErrMiss) {
		t.Fatalf("Get(missing) error = %v, want ErrMiss", err)
	}

	if err := store.Set(ctx, "k", []byte("v"), time.Minute); err != nil {
		t.Fatal(err)
	}
	got, err := store.Get(ctx, "k")
	if err != nil {
		t.Fatalf("Get(k) error = %v", err)
	}
	if string(got) != "v" {
		t.Errorf("Get(k) = %q, want v", got)
	}

	if err := store.Delete(ctx, "k"); err != nil {
		t.Fatal(err)
	}
	if _, err := store.Get(ctx, "k"); !errors.Is(err, ErrMiss) {
		t.Errorf("Get after Delete error = %v, want ErrMiss", err)
	}
}

func TestMemoryStorePerEntryTTL(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStore(10, time.Hour)
	now := time.Date(2025, 1, 1, 12, 0, 0, 0, time.UTC)
	store.now = func() time.Time { return now }

	_ = store.Set(ctx, "short", []byte("1"), 10*time.Second)
	_ = store.Set(ctx, "forever", []byte("2"), 0)

	now = now.Add(11 * time.Second)

	if _, err := store.Get(ctx, "short"); !errors.Is(err, ErrMiss) {
		t.Errorf("expired entry error = %v, want ErrMiss", err)
	}
	if _, err := store.Get(ctx, "forever"); err != nil {
		t.Errorf("entry without TTL should survive, got %v", err)
	}
}

func TestMemoryStoreEvictsOldest(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStore(2, time.Hour)

	_ = store.Set(ctx, "a", []byte("1"), 0)
	_ = store.Set(ctx, "b", []byte("2"), 0)
	_ = store.Set(ctx, "c", []byte("3"), 0)

	if store.Len() != 2 {
		t.Errorf("Len() = %d, want 2", store.Len())
	}
	if _, err := store.Get(ctx, "a"); !errors.Is(err, ErrMiss) {
		t.Error("oldest entry should have been evicted")
	}
}

func TestJSONHelpers(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStore(10, time.Hour)

	type payload struct {
		Price *float64 `json:"price"`
		N     int      `json:"n"`
	}
	price := 12.5
	if err := SetJSON(ctx, store, "p", payload{Price: &price, N: 3}, time.Minute); err != nil {
		t.Fatal(err)
	}

	var got payload
	if err := GetJSON(ctx, store, "p", &got); err != nil {
		t.Fatalf("GetJSON error = %v", err)
	}
	if got.Price == nil || *got.Price != 12.5 || got.N != 3 {
		t.Errorf("GetJSON = %+v, want price 12.5 n 3", got)
	}

	var nothing payload
	if err := GetJSON(ctx, store, "absent", &nothing); !errors.Is(err, ErrMiss) {
		t.Errorf("GetJSON(absent) error = %v, want ErrMiss", err)
	}
}
