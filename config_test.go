package coursesync

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestDefaultConfig(t *testing.T) {
	cfg := DefaultConfig()
	if cfg.Store.Type != StoreMemory {
		t.Errorf("expected memory store default, got %q", cfg.Store.Type)
	}
	if cfg.StorageKey != DefaultStorageKey {
		t.Errorf("expected default storage key, got %q", cfg.StorageKey)
	}
	if cfg.Resolver.Window != DefaultConflictWindow {
		t.Errorf("expected 5s conflict window, got %v", cfg.Resolver.Window)
	}
	if cfg.Sync.Strategy != StrategyMerge {
		t.Errorf("expected merge strategy default, got %q", cfg.Sync.Strategy)
	}
}

func TestLoadConfigFile_LayersOverDefaults(t *testing.T) {
	path := filepath.Join(t.TempDir(), "coursesync.yaml")
	body := `
store:
  type: sqlite
  sqlite:
    path: /tmp/changes.db
compress: true
resolver:
  window: 10s
optimizer:
  cursor_debounce: 250ms
`
	if err := os.WriteFile(path, []byte(body), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}

	cfg, err := LoadConfigFile(path)
	if err != nil {
		t.Fatalf("LoadConfigFile: %v", err)
	}
	if cfg.Store.Type != StoreSQLite {
		t.Errorf("expected sqlite store, got %q", cfg.Store.Type)
	}
	if cfg.Store.SQLite.Path != "/tmp/changes.db" {
		t.Errorf("expected sqlite path, got %q", cfg.Store.SQLite.Path)
	}
	if !cfg.Compress {
		t.Errorf("expected compress enabled")
	}
	if cfg.Resolver.Window != 10*time.Second {
		t.Errorf("expected 10s window, got %v", cfg.Resolver.Window)
	}
	if cfg.Optimizer.CursorDebounce != 250*time.Millisecond {
		t.Errorf("expected 250ms debounce, got %v", cfg.Optimizer.CursorDebounce)
	}
	// Keys absent from the file keep their defaults.
	if cfg.StorageKey != DefaultStorageKey {
		t.Errorf("expected default storage key preserved, got %q", cfg.StorageKey)
	}
	if cfg.Optimizer.ContentThrottle != 200*time.Millisecond {
		t.Errorf("expected default content throttle preserved, got %v", cfg.Optimizer.ContentThrottle)
	}
}

func TestLoadConfigFile_Errors(t *testing.T) {
	t.Run("MissingFile", func(t *testing.T) {
		if _, err := LoadConfigFile(filepath.Join(t.TempDir(), "absent.yaml")); err == nil {
			t.Errorf("expected error for missing file")
		}
	})

	t.Run("MalformedYAML", func(t *testing.T) {
		path := filepath.Join(t.TempDir(), "bad.yaml")
		if err := os.WriteFile(path, []byte("store: [unclosed"), 0o644); err != nil {
			t.Fatalf("write config: %v", err)
		}
		if _, err := LoadConfigFile(path); err == nil {
			t.Errorf("expected parse error")
		}
	})
}

func TestOpenStore_Backends(t *testing.T) {
	t.Run("MemoryDefault", func(t *testing.T) {
		store, err := OpenStore(StoreConfig{})
		if err != nil {
			t.Fatalf("OpenStore: %v", err)
		}
		defer store.Close()
		if _, ok := store.(*MemoryStore); !ok {
			t.Errorf("expected MemoryStore, got %T", store)
		}
	})

	t.Run("File", func(t *testing.T) {
		store, err := OpenStore(StoreConfig{Type: StoreFile, Dir: t.TempDir()})
		if err != nil {
			t.Fatalf("OpenStore: %v", err)
		}
		defer store.Close()
		if _, ok := store.(*FileStore); !ok {
			t.Errorf("expected FileStore, got %T", store)
		}
	})

	t.Run("SQLite", func(t *testing.T) {
		cfg := DefaultSQLiteStoreConfig()
		cfg.Path = filepath.Join(t.TempDir(), "state.db")
		store, err := OpenStore(StoreConfig{Type: StoreSQLite, SQLite: cfg})
		if err != nil {
			t.Fatalf("OpenStore: %v", err)
		}
		defer store.Close()
		if _, ok := store.(*SQLiteStore); !ok {
			t.Errorf("expected SQLiteStore, got %T", store)
		}
	})

	t.Run("Unknown", func(t *testing.T) {
		if _, err := OpenStore(StoreConfig{Type: "redis"}); err == nil {
			t.Errorf("expected error for unknown store type")
		}
	})
}

func TestNew_AssemblesWorkingEngine(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Store = StoreConfig{Type: StoreFile, Dir: t.TempDir()}
	cfg.Compress = true

	s, err := New(cfg)
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	id, err := s.Manager().AddChange(contentChange("c1", "b1"))
	if err != nil {
		t.Fatalf("AddChange: %v", err)
	}

	report, err := s.Sync(context.Background(), func(ctx context.Context, changes []*OfflineChange) (*UploadResult, error) {
		return &UploadResult{Synced: []string{id}}, nil
	})
	if err != nil {
		t.Fatalf("Sync: %v", err)
	}
	if report.Uploaded != 1 {
		t.Errorf("expected 1 uploaded, got %d", report.Uploaded)
	}
	if got := len(s.Manager().GetPendingChanges()); got != 0 {
		t.Errorf("expected empty pending queue, got %d", got)
	}
}
