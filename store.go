package coursesync

import "context"

// ChangeStore is the durable key-value persistence used by the
// OfflineChangeManager to survive restarts. The manager serializes its entire
// state (full change map plus pending-id set) as one blob under one key.
//
// Implementations exist for in-memory, local filesystem, SQLite, and S3
// storage; any simple key-value store can satisfy the contract.
type ChangeStore interface {
	// Read returns the blob stored under key, or os.ErrNotExist when the
	// key is absent.
	Read(ctx context.Context, key string) ([]byte, error)

	// Write stores the blob under key, replacing any previous value.
	Write(ctx context.Context, key string, data []byte) error

	// Delete removes the key. Deleting an absent key is not an error.
	Delete(ctx context.Context, key string) error

	// Close releases any resources.
	Close() error
}

// Ensure interfaces are implemented.
var (
	_ ChangeStore = (*MemoryStore)(nil)
	_ ChangeStore = (*FileStore)(nil)
	_ ChangeStore = (*SQLiteStore)(nil)
	_ ChangeStore = (*S3Store)(nil)
)
