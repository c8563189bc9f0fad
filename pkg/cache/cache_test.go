package cache

import (
	"fmt"
	"testing"
	"time"

	"github.com/mediaforge/mediaforge/pkg/processor"
)

func result(tag string) *processor.Result {
	return &processor.Result{
		Success: true,
		Data:    map[string]interface{}{"tag": tag},
	}
}

func TestKeyIsStableAndInputSensitive(t *testing.T) {
	meta := map[string]interface{}{"filename": "a.jpg", "size": 10}
	opts := map[string]interface{}{"quality": "high"}

	k1 := Key([]byte("input"), meta, opts)
	k2 := Key([]byte("input"), map[string]interface{}{"size": 10, "filename": "a.jpg"}, opts)
	if k1 != k2 {
		t.Error("key must not depend on map declaration order")
	}

	if Key([]byte("other"), meta, opts) == k1 {
		t.Error("different input must produce a different key")
	}
	if Key([]byte("input"), meta, map[string]interface{}{"quality": "low"}) == k1 {
		t.Error("different options must produce a different key")
	}
}

func TestGetPut(t *testing.T) {
	c := New(10, 0)

	if _, ok := c.Get("missing"); ok {
		t.Error("expected miss on empty cache")
	}

	c.Put("k", result("v"))
	got, ok := c.Get("k")
	if !ok {
		t.Fatal("expected hit")
	}
	if got.Data["tag"] != "v" {
		t.Errorf("unexpected result: %v", got.Data)
	}

	hits, misses := c.Stats()
	if hits != 1 || misses != 1 {
		t.Errorf("expected 1 hit / 1 miss, got %d / %d", hits, misses)
	}
}

func TestLRUEviction(t *testing.T) {
	c := New(3, 0)

	for i := 0; i < 3; i++ {
		c.Put(fmt.Sprintf("k%d", i), result(fmt.Sprintf("v%d", i)))
		time.Sleep(time.Millisecond)
	}

	// Touch k0 so k1 becomes the least recently accessed.
	if _, ok := c.Get("k0"); !ok {
		t.Fatal("expected hit on k0")
	}
	time.Sleep(time.Millisecond)

	c.Put("k3", result("v3"))

	if _, ok := c.Get("k1"); ok {
		t.Error("expected k1 evicted")
	}
	for _, k := range []string{"k0", "k2", "k3"} {
		if _, ok := c.Get(k); !ok {
			t.Errorf("expected %s retained", k)
		}
	}
	if c.Len() != 3 {
		t.Errorf("expected len 3, got %d", c.Len())
	}
}

func TestTTLExpiryOnRead(t *testing.T) {
	c := New(10, 20*time.Millisecond)

	c.Put("k", result("v"))
	if _, ok := c.Get("k"); !ok {
		t.Fatal("expected hit before expiry")
	}

	time.Sleep(30 * time.Millisecond)
	if _, ok := c.Get("k"); ok {
		t.Error("expected miss after TTL")
	}
	if c.Len() != 0 {
		t.Errorf("expired entry must be removed on read, len=%d", c.Len())
	}
}

func TestOverwriteDoesNotEvict(t *testing.T) {
	c := New(2, 0)

	c.Put("a", result("1"))
	c.Put("b", result("2"))
	c.Put("a", result("3"))

	if c.Len() != 2 {
		t.Errorf("expected len 2 after overwrite, got %d", c.Len())
	}
	got, ok := c.Get("a")
	if !ok || got.Data["tag"] != "3" {
		t.Errorf("expected overwritten value, got %v", got)
	}
	if _, ok := c.Get("b"); !ok {
		t.Error("overwrite must not evict other entries")
	}
}

func TestFlush(t *testing.T) {
	c := New(10, 0)

	c.Put("a", result("1"))
	c.Put("b", result("2"))

	if n := c.Flush(); n != 2 {
		t.Errorf("expected 2 flushed, got %d", n)
	}
	if c.Len() != 0 {
		t.Errorf("expected empty cache, got %d", c.Len())
	}
}
