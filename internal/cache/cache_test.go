package cache

import (
	"context"
	"fmt"
	"testing"
	"time"
)

func TestLRUCache(t *testing.T) {
	ctx := context.Background()

	t.Run("SetAndGet", func(t *testing.T) {
		c := NewLRUCache(10)
		defer c.Close()

		if err := c.Set(ctx, "officers:100001", []byte(`["JOHN SMITH"]`), time.Minute); err != nil {
			t.Fatalf("Set failed: %v", err)
		}

		val, err := c.Get(ctx, "officers:100001")
		if err != nil {
			t.Fatalf("Get failed: %v", err)
		}
		if string(val) != `["JOHN SMITH"]` {
			t.Errorf("unexpected value: %s", val)
		}
	})

	t.Run("MissReturnsNilNil", func(t *testing.T) {
		c := NewLRUCache(10)
		defer c.Close()

		val, err := c.Get(ctx, "absent")
		if err != nil {
			t.Fatalf("Get failed: %v", err)
		}
		if val != nil {
			t.Errorf("expected nil on miss, got %s", val)
		}
	})

	t.Run("TTLExpiry", func(t *testing.T) {
		c := NewLRUCache(10)
		defer c.Close()

		if err := c.Set(ctx, "short", []byte("v"), 10*time.Millisecond); err != nil {
			t.Fatalf("Set failed: %v", err)
		}
		time.Sleep(20 * time.Millisecond)

		val, err := c.Get(ctx, "short")
		if err != nil {
			t.Fatalf("Get failed: %v", err)
		}
		if val != nil {
			t.Error("expected expired entry to miss")
		}
	})

	t.Run("EvictsOldest", func(t *testing.T) {
		c := NewLRUCache(3)
		defer c.Close()

		for i := 0; i < 4; i++ {
			key := fmt.Sprintf("k%d", i)
			if err := c.Set(ctx, key, []byte("v"), time.Minute); err != nil {
				t.Fatalf("Set failed: %v", err)
			}
		}

		val, err := c.Get(ctx, "k0")
		if err != nil {
			t.Fatalf("Get failed: %v", err)
		}
		if val != nil {
			t.Error("expected oldest entry evicted")
		}

		size, capacity := c.Stats()
		if size != 3 || capacity != 3 {
			t.Errorf("expected size=3 capacity=3, got %d/%d", size, capacity)
		}
	})

	t.Run("Delete", func(t *testing.T) {
		c := NewLRUCache(10)
		defer c.Close()

		if err := c.Set(ctx, "k", []byte("v"), time.Minute); err != nil {
			t.Fatalf("Set failed: %v", err)
		}
		if err := c.Delete(ctx, "k"); err != nil {
			t.Fatalf("Delete failed: %v", err)
		}

		val, err := c.Get(ctx, "k")
		if err != nil {
			t.Fatalf("Get failed: %v", err)
		}
		if val != nil {
			t.Error("expected deleted entry to miss")
		}
	})

	t.Run("UpdateMovesToFront", func(t *testing.T) {
		c := NewLRUCache(2)
		defer c.Close()

		c.Set(ctx, "a", []byte("1"), time.Minute)
		c.Set(ctx, "b", []byte("2"), time.Minute)
		c.Set(ctx, "a", []byte("3"), time.Minute)
		c.Set(ctx, "c", []byte("4"), time.Minute)

		// b is now the oldest and should have been evicted.
		val, _ := c.Get(ctx, "b")
		if val != nil {
			t.Error("expected b evicted")
		}
		val, _ = c.Get(ctx, "a")
		if string(val) != "3" {
			t.Errorf("expected refreshed a, got %s", val)
		}
	})
}
