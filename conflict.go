package coursesync

import (
	"fmt"
	"sync"
	"time"
)

// ResolutionStrategy selects how a detected conflict is resolved.
type ResolutionStrategy string

const (
	// StrategyLocalWins keeps the local change and discards the remote one.
	StrategyLocalWins ResolutionStrategy = "local_wins"
	// StrategyRemoteWins accepts the remote change over the local one.
	StrategyRemoteWins ResolutionStrategy = "remote_wins"
	// StrategyMerge attempts a best-effort combine of both changes.
	StrategyMerge ResolutionStrategy = "merge"
	// StrategyManual defers the conflict to a human.
	StrategyManual ResolutionStrategy = "manual"
)

// ResolutionType classifies whether a conflict was handled automatically.
type ResolutionType string

const (
	ResolutionAuto   ResolutionType = "auto"
	ResolutionManual ResolutionType = "manual"
)

// Resolution tags applied once a conflict has been resolved.
const (
	ResolutionKeepLocal    = "keep_local"
	ResolutionAcceptRemote = "accept_remote"
	ResolutionMerged       = "merged"
)

// ConflictResolution is the result of comparing a local change against a
// remote change. Resolution and MergedValue are set only once resolved.
type ConflictResolution struct {
	Type         ResolutionType     `json:"type"`
	Strategy     ResolutionStrategy `json:"strategy"`
	Reason       string             `json:"reason"`
	Timestamp    time.Time          `json:"timestamp"`
	LocalChange  *OfflineChange     `json:"local_change"`
	RemoteChange *RemoteChange      `json:"remote_change"`
	Resolution   string             `json:"resolution,omitempty"`
	MergedValue  map[string]any     `json:"merged_value,omitempty"`
}

// ResolutionOutcome partitions conflicts by whether auto-resolution succeeded.
type ResolutionOutcome struct {
	Resolved    []*ConflictResolution `json:"resolved"`
	NeedsManual []*ConflictResolution `json:"needs_manual"`
}

// DefaultConflictWindow is the timestamp proximity within which two changes
// to the same target are considered concurrent.
const DefaultConflictWindow = 5 * time.Second

// ConflictResolverConfig configures conflict detection.
type ConflictResolverConfig struct {
	// Window is the timestamp proximity for two changes to the same target
	// to count as concurrent. Default: 5s. This is a heuristic proxy for
	// "touched the same place at nearly the same time"; it does not inspect
	// actual diff ranges.
	Window time.Duration `json:"window" yaml:"window"`
}

// DefaultConflictResolverConfig returns default configuration.
func DefaultConflictResolverConfig() ConflictResolverConfig {
	return ConflictResolverConfig{Window: DefaultConflictWindow}
}

// ConflictResolver decides whether local and remote edits conflict and, if
// so, how to resolve them.
type ConflictResolver struct {
	window time.Duration
	clock  Clock

	mu        sync.Mutex
	detected  int64
	resolved  int64
	escalated int64
}

// NewConflictResolver creates a new conflict resolver.
func NewConflictResolver(config ConflictResolverConfig) *ConflictResolver {
	if config.Window <= 0 {
		config.Window = DefaultConflictWindow
	}
	return &ConflictResolver{
		window: config.Window,
		clock:  SystemClock(),
	}
}

// DetectConflicts compares every (local, remote) pair and returns a
// ConflictResolution for each pair that overlaps.
func (r *ConflictResolver) DetectConflicts(local []*OfflineChange, remote []*RemoteChange) []*ConflictResolution {
	var conflicts []*ConflictResolution
	for _, lc := range local {
		for _, rc := range remote {
			if !r.changesConflict(lc, rc) {
				continue
			}
			strategy := r.strategyFor(lc, rc)
			resType := ResolutionAuto
			if strategy == StrategyManual {
				resType = ResolutionManual
			}
			conflicts = append(conflicts, &ConflictResolution{
				Type:         resType,
				Strategy:     strategy,
				Reason:       conflictReason(lc, rc),
				Timestamp:    r.clock.Now(),
				LocalChange:  lc,
				RemoteChange: rc,
			})
		}
	}

	r.mu.Lock()
	r.detected += int64(len(conflicts))
	r.mu.Unlock()
	return conflicts
}

// changesConflict reports whether a local and remote change overlap: their
// targets are exactly equal and their timestamps fall within the window.
func (r *ConflictResolver) changesConflict(local *OfflineChange, remote *RemoteChange) bool {
	if !local.Target.Equal(remote.Target) {
		return false
	}
	delta := local.Timestamp.Sub(remote.Timestamp)
	if delta < 0 {
		delta = -delta
	}
	return delta <= r.window
}

// strategyFor classifies how a conflict should be resolved. A content edit
// colliding with a remote insert is mergeable; structural edits are never
// auto-merged; everything else defaults to keeping the local change.
func (r *ConflictResolver) strategyFor(local *OfflineChange, remote *RemoteChange) ResolutionStrategy {
	if local.Type == ChangeStructure {
		return StrategyManual
	}
	if local.Type == ChangeContent && remote.Type == RemoteInsert {
		return StrategyMerge
	}
	return StrategyLocalWins
}

func conflictReason(local *OfflineChange, remote *RemoteChange) string {
	return fmt.Sprintf("local %s change by %s and remote %s by %s target %s within conflict window",
		local.Type, local.UserID, remote.Type, remote.UserID, local.Target)
}

// ResolveConflicts attempts auto-resolution of each conflict using the given
// strategy, partitioning the list into resolved conflicts and those needing
// manual intervention. An empty strategy defaults to merge.
func (r *ConflictResolver) ResolveConflicts(conflicts []*ConflictResolution, strategy ResolutionStrategy) *ResolutionOutcome {
	if strategy == "" {
		strategy = StrategyMerge
	}

	outcome := &ResolutionOutcome{}
	for _, c := range conflicts {
		if r.resolveOne(c, strategy) {
			outcome.Resolved = append(outcome.Resolved, c)
		} else {
			c.Type = ResolutionManual
			outcome.NeedsManual = append(outcome.NeedsManual, c)
		}
	}

	r.mu.Lock()
	r.resolved += int64(len(outcome.Resolved))
	r.escalated += int64(len(outcome.NeedsManual))
	r.mu.Unlock()
	return outcome
}

// resolveOne applies one strategy to one conflict, reporting success. Unknown
// strategies cannot auto-resolve.
func (r *ConflictResolver) resolveOne(c *ConflictResolution, strategy ResolutionStrategy) bool {
	switch strategy {
	case StrategyLocalWins:
		c.Resolution = ResolutionKeepLocal
		return true
	case StrategyRemoteWins:
		c.Resolution = ResolutionAcceptRemote
		return true
	case StrategyMerge:
		merged, ok := r.attemptMerge(c)
		if !ok {
			return false
		}
		c.Resolution = ResolutionMerged
		c.MergedValue = merged
		return true
	default:
		return false
	}
}

// attemptMerge shallow-combines the local change's new value with the remote
// insert payload. Remote fields win on key collision. Only a content-type
// local change against a remote insert is mergeable; anything else, or a
// panic during the combine, escalates to manual resolution.
func (r *ConflictResolver) attemptMerge(c *ConflictResolution) (merged map[string]any, ok bool) {
	defer func() {
		if rec := recover(); rec != nil {
			merged, ok = nil, false
		}
	}()

	if c.LocalChange == nil || c.RemoteChange == nil {
		return nil, false
	}
	if c.LocalChange.Type != ChangeContent {
		return nil, false
	}

	switch payload := c.RemoteChange.Data.(type) {
	case InsertPayload:
		merged = make(map[string]any, len(c.LocalChange.Operation.NewValue)+len(payload.Fields))
		for k, v := range c.LocalChange.Operation.NewValue {
			merged[k] = v
		}
		for k, v := range payload.Fields {
			merged[k] = v
		}
		return merged, true
	case DeletePayload, UpdatePayload:
		return nil, false
	default:
		return nil, false
	}
}

// MergeText merges two concurrent plain-text edit sequences against a shared
// base document. See the package-level MergeText for semantics.
func (r *ConflictResolver) MergeText(base string, localOps, remoteOps []TextOp) (string, bool) {
	return MergeText(base, localOps, remoteOps)
}

// ResolverStats provides statistics about conflict handling.
type ResolverStats struct {
	Detected  int64 `json:"detected"`
	Resolved  int64 `json:"resolved"`
	Escalated int64 `json:"escalated"`
}

// Stats returns current resolver statistics.
func (r *ConflictResolver) Stats() ResolverStats {
	r.mu.Lock()
	defer r.mu.Unlock()
	return ResolverStats{
		Detected:  r.detected,
		Resolved:  r.resolved,
		Escalated: r.escalated,
	}
}
