package cache

import (
	"bytes"
	"fmt"
	"os"
	"path/filepath"
	"testing"
	"time"

	"go.uber.org/zap"
)

func TestDiskGetSet(t *testing.T) {
	t.Parallel()

	c, err := NewDisk(t.TempDir(), 0, zap.NewNop())
	if err != nil {
		t.Fatalf("NewDisk() error = %v", err)
	}

	url := "http://tile.example/1/2/3.png"
	data := []byte("tile payload")

	c.Set(url, data)

	got, ok := c.Get(url)
	if !ok {
		t.Fatal("Get() ok = false, want true")
	}
	if !bytes.Equal(got, data) {
		t.Fatalf("Get() = %q, want %q", got, data)
	}
	if !c.Has(url) {
		t.Fatal("Has() = false, want true")
	}
	if c.Has("http://tile.example/other.png") {
		t.Fatal("Has() = true for unknown url")
	}
}

func TestDiskKeysAreStableAcrossSessions(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	url := "http://tile.example/1/2/3.png"
	data := []byte("persisted")

	first, err := NewDisk(dir, 0, zap.NewNop())
	if err != nil {
		t.Fatalf("NewDisk() error = %v", err)
	}
	first.Set(url, data)

	second, err := NewDisk(dir, 0, zap.NewNop())
	if err != nil {
		t.Fatalf("NewDisk() error = %v", err)
	}
	got, ok := second.Get(url)
	if !ok {
		t.Fatal("entry should survive a new cache instance on the same dir")
	}
	if !bytes.Equal(got, data) {
		t.Fatalf("Get() = %q, want %q", got, data)
	}
}

func TestDiskPrunesToCapacity(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	c, err := NewDisk(dir, 3000, zap.NewNop())
	if err != nil {
		t.Fatalf("NewDisk() error = %v", err)
	}

	payload := make([]byte, 1000)
	base := time.Now().Add(-time.Hour)
	for i := 0; i < 5; i++ {
		url := fmt.Sprintf("http://tile.example/%d.png", i)
		c.Set(url, payload)
		// Spread modtimes so pruning order is deterministic.
		os.Chtimes(c.path(url), base.Add(time.Duration(i)*time.Minute), base.Add(time.Duration(i)*time.Minute))
	}
	c.Set("http://tile.example/last.png", payload)

	var total int64
	filepath.Walk(dir, func(path string, info os.FileInfo, err error) error {
		if err == nil && info.Mode().IsRegular() {
			total += info.Size()
		}
		return nil
	})
	if total > 3000 {
		t.Fatalf("disk usage = %d, want <= 3000", total)
	}

	// The newest entry must survive pruning.
	if !c.Has("http://tile.example/last.png") {
		t.Fatal("most recent entry should not be pruned")
	}
}

func TestDiskClear(t *testing.T) {
	t.Parallel()

	c, err := NewDisk(t.TempDir(), 0, zap.NewNop())
	if err != nil {
		t.Fatalf("NewDisk() error = %v", err)
	}

	c.Set("http://tile.example/1.png", []byte("x"))
	c.Clear()

	if c.Has("http://tile.example/1.png") {
		t.Fatal("entry should be gone after Clear")
	}
	if _, err := os.Stat(c.Dir()); err != nil {
		t.Fatalf("cache dir should be recreated after Clear: %v", err)
	}
}

func TestDiskDirectoryCreationFailure(t *testing.T) {
	t.Parallel()

	// A regular file blocks directory creation underneath it.
	blocker := filepath.Join(t.TempDir(), "blocker")
	if err := os.WriteFile(blocker, []byte("x"), 0644); err != nil {
		t.Fatal(err)
	}

	if _, err := NewDisk(filepath.Join(blocker, "cache"), 0, zap.NewNop()); err == nil {
		t.Fatal("NewDisk() should fail when the directory cannot be created")
	}
}

func TestDiskEmptyDir(t *testing.T) {
	t.Parallel()

	if _, err := NewDisk("", 0, zap.NewNop()); err == nil {
		t.Fatal("NewDisk() should reject an empty directory")
	}
}
