package coursesync

import (
	"context"
	"errors"
	"log"
	"os"
	"sort"
	"sync"
	"time"
)

// DefaultStorageKey is the store key the manager persists its state under.
const DefaultStorageKey = "coursesync.offline_changes"

// UploadResult is what the caller-supplied upload function reports back:
// which change IDs the remote system acknowledged and which conflicts it
// found. Unacknowledged changes simply remain pending for the next sync.
type UploadResult struct {
	Synced    []string              `json:"synced"`
	Conflicts []*ConflictResolution `json:"conflicts"`
}

// UploadFunc transmits a batch of pending changes over the network boundary
// owned by the caller. It must not fail for partial success; changes missing
// from the result stay pending.
type UploadFunc func(ctx context.Context, changes []*OfflineChange) (*UploadResult, error)

// ManagerConfig configures the offline change manager.
type ManagerConfig struct {
	// Store is the durable persistence backend. Defaults to an in-memory
	// store, which does not survive restarts.
	Store ChangeStore `json:"-" yaml:"-"`

	// StorageKey is the key the serialized state lives under.
	// Default: "coursesync.offline_changes".
	StorageKey string `json:"storage_key" yaml:"storage_key"`

	// Compress snappy-compresses the persisted state blob.
	Compress bool `json:"compress" yaml:"compress"`

	// Encryption configures optional at-rest encryption of the blob.
	Encryption EncryptionConfig `json:"encryption" yaml:"encryption"`

	// Clock supplies timestamps. Defaults to the system clock.
	Clock Clock `json:"-" yaml:"-"`
}

// DefaultManagerConfig returns default configuration.
func DefaultManagerConfig() ManagerConfig {
	return ManagerConfig{
		StorageKey: DefaultStorageKey,
	}
}

// OfflineChangeManager is the single source of truth for local edits not yet
// acknowledged by the remote system. Every mutation is persisted to the
// change store so the queue survives restarts.
//
// Invariant: the pending-id set is always a subset of the ids in the full
// change map.
type OfflineChangeManager struct {
	store     ChangeStore
	key       string
	compress  bool
	encryptor *Encryptor
	clock     Clock

	mu             sync.Mutex
	changes        map[string]*OfflineChange
	pending        map[string]struct{}
	syncInProgress bool

	totalSyncs int64
	syncErrors int64
	lastSync   time.Time
}

// NewOfflineChangeManager creates a manager and loads any previously
// persisted state. Absent or corrupt state is recovered locally: a warning is
// logged and the manager starts empty. The constructor fails only for
// invalid encryption configuration.
func NewOfflineChangeManager(config ManagerConfig) (*OfflineChangeManager, error) {
	if config.Store == nil {
		config.Store = NewMemoryStore()
	}
	if config.StorageKey == "" {
		config.StorageKey = DefaultStorageKey
	}
	if config.Clock == nil {
		config.Clock = SystemClock()
	}

	encryptor, err := NewEncryptor(config.Encryption)
	if err != nil {
		return nil, err
	}

	m := &OfflineChangeManager{
		store:     config.Store,
		key:       config.StorageKey,
		compress:  config.Compress,
		encryptor: encryptor,
		clock:     config.Clock,
		changes:   make(map[string]*OfflineChange),
		pending:   make(map[string]struct{}),
	}
	m.load()
	return m, nil
}

// load restores persisted state, falling back to empty on any failure.
func (m *OfflineChangeManager) load() {
	data, err := m.store.Read(context.Background(), m.key)
	if errors.Is(err, os.ErrNotExist) {
		return
	}
	if err != nil {
		log.Printf("coursesync: failed to read offline state, starting empty: %v", err)
		return
	}

	st, err := decodeState(data, m.encryptor)
	if err != nil {
		log.Printf("coursesync: offline state corrupt, starting empty: %v", err)
		return
	}

	m.changes = st.Changes
	for _, id := range st.Pending {
		// Enforce pending ⊆ stored even against a tampered blob.
		if _, ok := m.changes[id]; ok {
			m.pending[id] = struct{}{}
		}
	}
}

// persist writes the full map and pending set under the storage key. Called
// with m.mu held.
func (m *OfflineChangeManager) persist() error {
	pending := make([]string, 0, len(m.pending))
	for id := range m.pending {
		pending = append(pending, id)
	}
	sort.Strings(pending)

	data, err := encodeState(&persistedState{Changes: m.changes, Pending: pending}, m.compress, m.encryptor)
	if err != nil {
		return err
	}
	if err := m.store.Write(context.Background(), m.key, data); err != nil {
		return newStoreError(StoreErrorTypeWrite, "persist offline state", m.key, err)
	}
	return nil
}

// AddChange assigns the change a fresh id and timestamp, inserts it into the
// pending queue, persists, and returns the id. Callers are responsible for a
// well-formed target and operation.
func (m *OfflineChangeManager) AddChange(change *OfflineChange) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	now := m.clock.Now()
	stored := *change
	stored.ID = newChangeID(now)
	stored.Timestamp = now

	m.changes[stored.ID] = &stored
	m.pending[stored.ID] = struct{}{}

	if err := m.persist(); err != nil {
		return stored.ID, err
	}
	return stored.ID, nil
}

// GetPendingChanges materializes the pending set into full change objects,
// ordered by timestamp then id. Pending ids whose change object is missing
// are silently dropped (defensive against storage corruption).
func (m *OfflineChangeManager) GetPendingChanges() []*OfflineChange {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.pendingLocked()
}

func (m *OfflineChangeManager) pendingLocked() []*OfflineChange {
	out := make([]*OfflineChange, 0, len(m.pending))
	for id := range m.pending {
		if c, ok := m.changes[id]; ok {
			out = append(out, c)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].Timestamp.Equal(out[j].Timestamp) {
			return out[i].Timestamp.Before(out[j].Timestamp)
		}
		return out[i].ID < out[j].ID
	})
	return out
}

// MarkAsSynced removes the id from the pending set only. The change record
// stays in the full map for later conflict correlation until RemoveChange or
// Clear.
func (m *OfflineChangeManager) MarkAsSynced(id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, ok := m.pending[id]; !ok {
		return nil
	}
	delete(m.pending, id)
	return m.persist()
}

// RemoveChange deletes the change from both the full map and the pending set.
func (m *OfflineChangeManager) RemoveChange(id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	_, inChanges := m.changes[id]
	_, inPending := m.pending[id]
	if !inChanges && !inPending {
		return nil
	}
	delete(m.changes, id)
	delete(m.pending, id)
	return m.persist()
}

// Clear empties both structures. Used when a document is fully resynced from
// the server and local history is no longer relevant.
func (m *OfflineChangeManager) Clear() error {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.changes = make(map[string]*OfflineChange)
	m.pending = make(map[string]struct{})
	return m.persist()
}

// SyncChanges uploads the pending changes through uploadFn, marks every
// acknowledged id as synced, and returns the conflicts the remote system
// reported for the caller to resolve.
//
// At most one sync is in flight: if a sync is already running, or nothing is
// pending, SyncChanges returns immediately with no conflicts and no error.
// Overlapping calls are rejected rather than queued. An upload failure is
// propagated, and the in-flight guard is reset regardless so later syncs are
// not wedged.
func (m *OfflineChangeManager) SyncChanges(ctx context.Context, uploadFn UploadFunc) ([]*ConflictResolution, error) {
	m.mu.Lock()
	if m.syncInProgress || len(m.pending) == 0 {
		m.mu.Unlock()
		return nil, nil
	}
	m.syncInProgress = true
	snapshot := m.pendingLocked()
	m.mu.Unlock()

	defer func() {
		m.mu.Lock()
		m.syncInProgress = false
		m.mu.Unlock()
	}()

	result, err := uploadFn(ctx, snapshot)
	if err != nil {
		m.mu.Lock()
		m.syncErrors++
		m.mu.Unlock()
		return nil, newSyncError("upload pending changes", err)
	}
	if result == nil {
		result = &UploadResult{}
	}

	for _, id := range result.Synced {
		if err := m.MarkAsSynced(id); err != nil {
			return result.Conflicts, err
		}
	}

	m.mu.Lock()
	m.totalSyncs++
	m.lastSync = m.clock.Now()
	m.mu.Unlock()

	return result.Conflicts, nil
}

// ManagerStats provides statistics about the offline queue.
type ManagerStats struct {
	PendingCount int       `json:"pending_count"`
	StoredCount  int       `json:"stored_count"`
	TotalSyncs   int64     `json:"total_syncs"`
	SyncErrors   int64     `json:"sync_errors"`
	LastSync     time.Time `json:"last_sync"`
}

// Stats returns current queue statistics.
func (m *OfflineChangeManager) Stats() ManagerStats {
	m.mu.Lock()
	defer m.mu.Unlock()
	return ManagerStats{
		PendingCount: len(m.pending),
		StoredCount:  len(m.changes),
		TotalSyncs:   m.totalSyncs,
		SyncErrors:   m.syncErrors,
		LastSync:     m.lastSync,
	}
}
