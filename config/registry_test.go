package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestRegistryGetSetTyped(t *testing.T) {
	r := NewRegistry()
	r.Set("fiber.stack_size", 65536)

	v, ok := Get[int](r, "fiber.stack_size")
	if !ok || v != 65536 {
		t.Fatalf("Get[int] = %d, %v; want 65536, true", v, ok)
	}

	if _, ok := Get[string](r, "fiber.stack_size"); ok {
		t.Fatalf("Get[string] on an int value should fail the type assertion")
	}
}

func TestRegistryGetOrFallback(t *testing.T) {
	r := NewRegistry()
	if v := GetOr(r, "missing", DefaultFiberStackSize); v != DefaultFiberStackSize {
		t.Fatalf("GetOr = %d; want default %d", v, DefaultFiberStackSize)
	}
}

func TestRegistryOnReloadFiresOnSet(t *testing.T) {
	r := NewRegistry()
	done := make(chan struct{}, 1)
	r.OnReload(func() { done <- struct{}{} })

	r.Set("k", "v")
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatalf("expected OnReload listener to fire after Set")
	}
}

func TestLoadYAMLDefaultsStackSize(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "sylar.yaml")
	if err := os.WriteFile(path, []byte("fiber:\n  stack_size: 0\n"), 0o644); err != nil {
		t.Fatalf("WriteFile: %v", err)
	}

	r, err := LoadYAML(path)
	if err != nil {
		t.Fatalf("LoadYAML: %v", err)
	}
	if v, ok := Get[int](r, FiberStackSizeKey); !ok || v != DefaultFiberStackSize {
		t.Fatalf("stack size = %d, %v; want default %d", v, ok, DefaultFiberStackSize)
	}
}

func TestLoadYAMLHonorsExplicitStackSize(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "sylar.yaml")
	if err := os.WriteFile(path, []byte("fiber:\n  stack_size: 262144\n"), 0o644); err != nil {
		t.Fatalf("WriteFile: %v", err)
	}

	r, err := LoadYAML(path)
	if err != nil {
		t.Fatalf("LoadYAML: %v", err)
	}
	if v, ok := Get[int](r, FiberStackSizeKey); !ok || v != 262144 {
		t.Fatalf("stack size = %d, %v; want 262144", v, ok)
	}
}
