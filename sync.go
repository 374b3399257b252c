package coursesync

import (
	"context"
	"sync"
	"time"
)

// SynchronizerConfig configures the synchronization driver.
type SynchronizerConfig struct {
	// Strategy is the default resolution strategy applied to conflicts the
	// remote system reports. Default: merge.
	Strategy ResolutionStrategy `json:"strategy" yaml:"strategy"`
}

// DefaultSynchronizerConfig returns default configuration.
func DefaultSynchronizerConfig() SynchronizerConfig {
	return SynchronizerConfig{Strategy: StrategyMerge}
}

// SyncReport summarizes one synchronization pass.
type SyncReport struct {
	Uploaded     int           `json:"uploaded"`
	Conflicts    int           `json:"conflicts"`
	AutoResolved int           `json:"auto_resolved"`
	Escalated    int           `json:"escalated"`
	Duration     time.Duration `json:"duration"`
}

// Synchronizer composes the offline change manager and the conflict
// resolver: it drives uploads, applies the configured resolution strategy to
// reported conflicts, and parks the rest on a manual-resolution queue that
// the UI layer drains. Construct one per application/session context and
// inject it into consumers; instances share nothing.
type Synchronizer struct {
	manager  *OfflineChangeManager
	resolver *ConflictResolver
	strategy ResolutionStrategy
	clock    Clock

	mu          sync.Mutex
	manualQueue []*ConflictResolution
	totalPasses int64
}

// NewSynchronizer creates a synchronization driver over the given manager
// and resolver.
func NewSynchronizer(manager *OfflineChangeManager, resolver *ConflictResolver, config SynchronizerConfig) *Synchronizer {
	if config.Strategy == "" {
		config.Strategy = StrategyMerge
	}
	return &Synchronizer{
		manager:  manager,
		resolver: resolver,
		strategy: config.Strategy,
		clock:    SystemClock(),
	}
}

// Manager returns the underlying offline change manager.
func (s *Synchronizer) Manager() *OfflineChangeManager { return s.manager }

// Resolver returns the underlying conflict resolver.
func (s *Synchronizer) Resolver() *ConflictResolver { return s.resolver }

// Sync runs one synchronization pass: upload pending changes, mark the
// acknowledged ones synced, auto-resolve the conflicts the remote system
// reported, and queue the remainder for manual resolution. A pass that finds
// nothing pending, or that overlaps an in-flight pass, reports zero work.
func (s *Synchronizer) Sync(ctx context.Context, uploadFn UploadFunc) (*SyncReport, error) {
	start := s.clock.Now()

	// Uploaded counts ids the remote system acknowledged, not a pending-count
	// delta, so edits arriving mid-upload cannot skew the report.
	var uploaded int
	conflicts, err := s.manager.SyncChanges(ctx, func(ctx context.Context, changes []*OfflineChange) (*UploadResult, error) {
		result, err := uploadFn(ctx, changes)
		if err == nil && result != nil {
			uploaded = len(result.Synced)
		}
		return result, err
	})
	if err != nil {
		return nil, err
	}

	report := &SyncReport{
		Uploaded:  uploaded,
		Conflicts: len(conflicts),
	}
	if len(conflicts) > 0 {
		outcome := s.resolver.ResolveConflicts(conflicts, s.strategy)
		report.AutoResolved = len(outcome.Resolved)
		report.Escalated = len(outcome.NeedsManual)
		if len(outcome.NeedsManual) > 0 {
			s.mu.Lock()
			s.manualQueue = append(s.manualQueue, outcome.NeedsManual...)
			s.mu.Unlock()
		}
	}

	s.mu.Lock()
	s.totalPasses++
	s.mu.Unlock()

	report.Duration = s.clock.Now().Sub(start)
	return report, nil
}

// HandleRemoteChanges compares transport-delivered remote changes against
// the pending local queue, auto-resolving what it can and queueing the rest
// for manual resolution. It returns every conflict detected.
func (s *Synchronizer) HandleRemoteChanges(remote []*RemoteChange) []*ConflictResolution {
	local := s.manager.GetPendingChanges()
	conflicts := s.resolver.DetectConflicts(local, remote)
	if len(conflicts) == 0 {
		return nil
	}

	outcome := s.resolver.ResolveConflicts(conflicts, s.strategy)
	if len(outcome.NeedsManual) > 0 {
		s.mu.Lock()
		s.manualQueue = append(s.manualQueue, outcome.NeedsManual...)
		s.mu.Unlock()
	}
	return conflicts
}

// TakeManualQueue drains and returns the conflicts awaiting manual
// resolution, oldest first.
func (s *Synchronizer) TakeManualQueue() []*ConflictResolution {
	s.mu.Lock()
	defer s.mu.Unlock()
	queue := s.manualQueue
	s.manualQueue = nil
	return queue
}

// ManualQueueLen reports how many conflicts await manual resolution.
func (s *Synchronizer) ManualQueueLen() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.manualQueue)
}
