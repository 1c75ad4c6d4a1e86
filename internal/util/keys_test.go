package util

import (
	"strings"
	"testing"
)

func TestStorageKeyShapeAndStability(t *testing.T) {
	a := StorageKey("snap:portfolio", "portfolio:123")
	b := StorageKey("snap:portfolio", "portfolio:123")
	if a != b {
		t.Fatalf("not deterministic: %q vs %q", a, b)
	}
	if !strings.HasPrefix(a, "snap:portfolio:") {
		t.Fatalf("missing prefix: %q", a)
	}
	if got := len(a) - len("snap:portfolio:"); got != 16 {
		t.Fatalf("hash width=%d want 16", got)
	}
}

func TestStorageKeyDiffers(t *testing.T) {
	if StorageKey("p", "a") == StorageKey("p", "b") {
		t.Fatal("different keys must not share a storage key")
	}
	if StorageKey("p", "a") == StorageKey("q", "a") {
		t.Fatal("prefix must be part of the storage key")
	}
}
