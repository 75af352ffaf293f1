package core

import (
	"assemblycore/internal/infra/persistence/memory"
	"assemblycore/internal/infra/persistence/sqlite"
	"assemblycore/internal/platform/config"
	"path/filepath"
	"testing"
)

func TestOpenPersistentStoreMemory(t *testing.T) {
	store, err := OpenPersistentStore(config.StorageConfig{Driver: "memory"}, NewDefaultRulesEngine())
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	if _, ok := store.(*memory.Store); !ok {
		t.Fatalf("expected memory store, got %T", store)
	}
}

func TestOpenPersistentStoreSQLiteDefault(t *testing.T) {
	path := filepath.Join(t.TempDir(), "core.db")
	store, err := OpenPersistentStore(config.StorageConfig{SQLitePath: path}, nil)
	if err != nil {
		t.Skipf("sqlite unavailable: %v", err)
	}
	s, ok := store.(*sqlite.Store)
	if !ok {
		t.Fatalf("expected sqlite store, got %T", store)
	}
	defer func() { _ = s.DB().Close() }()
	if s.Path() != path {
		t.Fatalf("unexpected path %s", s.Path())
	}
}

func TestOpenPersistentStoreErrors(t *testing.T) {
	if _, err := OpenPersistentStore(config.StorageConfig{Driver: "cassandra"}, nil); err == nil {
		t.Fatalf("expected unknown driver error")
	}
	if _, err := OpenPersistentStore(config.StorageConfig{Driver: "postgres", PostgresDSN: "postgres://127.0.0.1:1/none?sslmode=disable&connect_timeout=1"}, nil); err == nil {
		t.Fatalf("expected postgres ping failure")
	}
}
