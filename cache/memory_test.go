package cache

import (
	"fmt"
	"image"
	"sync"
	"testing"
)

func testImage() image.Image {
	return image.NewRGBA(image.Rect(0, 0, 1, 1))
}

func TestMemoryGetSet(t *testing.T) {
	t.Parallel()

	c := NewMemory(100)
	img := testImage()

	c.Set("a", img, 40)

	got, ok := c.Get("a")
	if !ok {
		t.Fatal("Get() ok = false, want true")
	}
	if got != img {
		t.Fatal("Get() returned a different image")
	}
	if c.Cost() != 40 {
		t.Fatalf("Cost() = %d, want 40", c.Cost())
	}
}

func TestMemoryCostNeverExceedsCapacity(t *testing.T) {
	t.Parallel()

	c := NewMemory(100)
	for i := 0; i < 10; i++ {
		c.Set(fmt.Sprintf("key-%d", i), testImage(), 40)
		if c.Cost() > 100 {
			t.Fatalf("Cost() = %d exceeds capacity after insert %d", c.Cost(), i)
		}
	}
	if c.Len() != 2 {
		t.Fatalf("Len() = %d, want 2", c.Len())
	}
}

func TestMemoryEvictsLeastRecentlyUsed(t *testing.T) {
	t.Parallel()

	c := NewMemory(100)
	c.Set("a", testImage(), 40)
	c.Set("b", testImage(), 40)

	// Touch a so b becomes the eviction candidate.
	if _, ok := c.Get("a"); !ok {
		t.Fatal("expected a to be cached")
	}

	c.Set("c", testImage(), 40)

	if _, ok := c.Get("a"); !ok {
		t.Fatal("a should have survived eviction")
	}
	if _, ok := c.Get("b"); ok {
		t.Fatal("b should have been evicted")
	}
	if _, ok := c.Get("c"); !ok {
		t.Fatal("c should be cached")
	}
}

func TestMemoryOversizedInsertRejected(t *testing.T) {
	t.Parallel()

	c := NewMemory(100)
	c.Set("a", testImage(), 40)
	c.Set("huge", testImage(), 150)

	if _, ok := c.Get("huge"); ok {
		t.Fatal("oversized entry should have been rejected")
	}
	if _, ok := c.Get("a"); !ok {
		t.Fatal("existing entries should survive an oversized insert")
	}
}

func TestMemoryReplaceSameKey(t *testing.T) {
	t.Parallel()

	c := NewMemory(100)
	c.Set("a", testImage(), 40)
	c.Set("a", testImage(), 60)

	if c.Len() != 1 {
		t.Fatalf("Len() = %d, want 1", c.Len())
	}
	if c.Cost() != 60 {
		t.Fatalf("Cost() = %d, want 60", c.Cost())
	}
}

func TestMemoryNilImageIsNoop(t *testing.T) {
	t.Parallel()

	c := NewMemory(100)
	c.Set("a", nil, 40)

	if c.Len() != 0 {
		t.Fatalf("Len() = %d, want 0", c.Len())
	}
}

func TestMemorySetCapacityShrinks(t *testing.T) {
	t.Parallel()

	c := NewMemory(200)
	c.Set("a", testImage(), 80)
	c.Set("b", testImage(), 80)

	c.SetCapacity(100)

	if c.Cost() > 100 {
		t.Fatalf("Cost() = %d exceeds shrunk capacity", c.Cost())
	}
	if c.Len() != 1 {
		t.Fatalf("Len() = %d, want 1", c.Len())
	}
}

func TestMemoryClear(t *testing.T) {
	t.Parallel()

	c := NewMemory(100)
	c.Set("a", testImage(), 40)
	c.Clear()

	if c.Len() != 0 || c.Cost() != 0 {
		t.Fatalf("Len() = %d, Cost() = %d after Clear", c.Len(), c.Cost())
	}
}

func TestMemoryConcurrentAccess(t *testing.T) {
	t.Parallel()

	c := NewMemory(1 << 20)
	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func(n int) {
			defer wg.Done()
			for j := 0; j < 100; j++ {
				key := fmt.Sprintf("key-%d-%d", n, j%10)
				c.Set(key, testImage(), 1024)
				c.Get(key)
			}
		}(i)
	}
	wg.Wait()

	if c.Cost() > 1<<20 {
		t.Fatalf("Cost() = %d exceeds capacity after concurrent access", c.Cost())
	}
}
