package coursesync

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// StoreType selects a change-store backend.
type StoreType string

const (
	StoreMemory StoreType = "memory"
	StoreFile   StoreType = "file"
	StoreSQLite StoreType = "sqlite"
	StoreS3     StoreType = "s3"
)

// StoreConfig configures the persistence backend for the offline queue.
type StoreConfig struct {
	// Type selects the backend. Default: memory.
	Type StoreType `json:"type" yaml:"type"`

	// Dir is the base directory for the file backend.
	Dir string `json:"dir,omitempty" yaml:"dir,omitempty"`

	// SQLite configures the sqlite backend.
	SQLite SQLiteStoreConfig `json:"sqlite,omitempty" yaml:"sqlite,omitempty"`

	// S3 configures the s3 backend.
	S3 S3StoreConfig `json:"s3,omitempty" yaml:"s3,omitempty"`
}

// Config defines the full engine configuration.
type Config struct {
	// Store holds persistence settings for the offline queue.
	Store StoreConfig `json:"store" yaml:"store"`

	// StorageKey is the key the serialized queue lives under.
	StorageKey string `json:"storage_key" yaml:"storage_key"`

	// Compress snappy-compresses the persisted state blob.
	Compress bool `json:"compress" yaml:"compress"`

	// Encryption configures at-rest encryption of the persisted queue.
	Encryption EncryptionConfig `json:"encryption" yaml:"encryption"`

	// Resolver holds conflict-detection settings.
	Resolver ConflictResolverConfig `json:"resolver" yaml:"resolver"`

	// Sync holds synchronization driver settings.
	Sync SynchronizerConfig `json:"sync" yaml:"sync"`

	// Optimizer holds message-volume settings.
	Optimizer OptimizerConfig `json:"optimizer" yaml:"optimizer"`
}

// DefaultConfig returns the default engine configuration: an in-memory
// store, a 5s conflict window, merge-first resolution, and the standard
// debounce/throttle intervals.
func DefaultConfig() Config {
	return Config{
		Store:      StoreConfig{Type: StoreMemory},
		StorageKey: DefaultStorageKey,
		Resolver:   DefaultConflictResolverConfig(),
		Sync:       DefaultSynchronizerConfig(),
		Optimizer:  DefaultOptimizerConfig(),
	}
}

// fileConfig is the YAML-facing shape of Config. Durations are strings in
// time.ParseDuration form ("10s", "250ms"); absent keys keep their defaults.
type fileConfig struct {
	Store      StoreConfig      `yaml:"store"`
	StorageKey string           `yaml:"storage_key"`
	Compress   bool             `yaml:"compress"`
	Encryption EncryptionConfig `yaml:"encryption"`

	Resolver struct {
		Window string `yaml:"window"`
	} `yaml:"resolver"`

	Sync SynchronizerConfig `yaml:"sync"`

	Optimizer struct {
		CursorDebounce  string `yaml:"cursor_debounce"`
		ContentThrottle string `yaml:"content_throttle"`
		FlushInterval   string `yaml:"flush_interval"`
		MaxEntryAge     string `yaml:"max_entry_age"`
	} `yaml:"optimizer"`
}

// LoadConfigFile reads a YAML configuration file, layering it over the
// defaults.
func LoadConfigFile(path string) (Config, error) {
	cfg := DefaultConfig()
	data, err := os.ReadFile(path)
	if err != nil {
		return cfg, fmt.Errorf("read config: %w", err)
	}

	var fc fileConfig
	fc.Store = cfg.Store
	fc.StorageKey = cfg.StorageKey
	fc.Sync = cfg.Sync
	if err := yaml.Unmarshal(data, &fc); err != nil {
		return cfg, fmt.Errorf("parse config: %w", err)
	}

	cfg.Store = fc.Store
	cfg.StorageKey = fc.StorageKey
	cfg.Compress = fc.Compress
	cfg.Encryption = fc.Encryption
	cfg.Sync = fc.Sync

	durations := []struct {
		raw  string
		key  string
		dest *time.Duration
	}{
		{fc.Resolver.Window, "resolver.window", &cfg.Resolver.Window},
		{fc.Optimizer.CursorDebounce, "optimizer.cursor_debounce", &cfg.Optimizer.CursorDebounce},
		{fc.Optimizer.ContentThrottle, "optimizer.content_throttle", &cfg.Optimizer.ContentThrottle},
		{fc.Optimizer.FlushInterval, "optimizer.flush_interval", &cfg.Optimizer.FlushInterval},
		{fc.Optimizer.MaxEntryAge, "optimizer.max_entry_age", &cfg.Optimizer.MaxEntryAge},
	}
	for _, d := range durations {
		if d.raw == "" {
			continue
		}
		parsed, err := time.ParseDuration(d.raw)
		if err != nil {
			return cfg, fmt.Errorf("parse config: %s: %w", d.key, err)
		}
		*d.dest = parsed
	}
	return cfg, nil
}

// OpenStore constructs the change store selected by the configuration.
func OpenStore(cfg StoreConfig) (ChangeStore, error) {
	switch cfg.Type {
	case StoreMemory, "":
		return NewMemoryStore(), nil
	case StoreFile:
		dir := cfg.Dir
		if dir == "" {
			dir = "coursesync-data"
		}
		return NewFileStore(dir)
	case StoreSQLite:
		return NewSQLiteStore(cfg.SQLite)
	case StoreS3:
		return NewS3Store(cfg.S3)
	default:
		return nil, fmt.Errorf("unknown store type %q", cfg.Type)
	}
}

// New assembles a Synchronizer from a configuration: it opens the configured
// store, builds the manager and resolver, and wires them together.
func New(cfg Config) (*Synchronizer, error) {
	store, err := OpenStore(cfg.Store)
	if err != nil {
		return nil, err
	}

	manager, err := NewOfflineChangeManager(ManagerConfig{
		Store:      store,
		StorageKey: cfg.StorageKey,
		Compress:   cfg.Compress,
		Encryption: cfg.Encryption,
	})
	if err != nil {
		store.Close()
		return nil, err
	}

	resolver := NewConflictResolver(cfg.Resolver)
	return NewSynchronizer(manager, resolver, cfg.Sync), nil
}
