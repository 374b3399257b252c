package coursesync

import (
	"context"
	"errors"
	"testing"
	"time"
)

func newTestSynchronizer(t *testing.T) *Synchronizer {
	t.Helper()
	m := newTestManager(t)
	r := NewConflictResolver(DefaultConflictResolverConfig())
	return NewSynchronizer(m, r, DefaultSynchronizerConfig())
}

func TestSynchronizer_SyncReportCounts(t *testing.T) {
	s := newTestSynchronizer(t)
	m := s.Manager()

	id1, err := m.AddChange(contentChange("c1", "b1"))
	if err != nil {
		t.Fatalf("AddChange: %v", err)
	}
	id2, err := m.AddChange(contentChange("c1", "b2"))
	if err != nil {
		t.Fatalf("AddChange: %v", err)
	}
	if _, err := m.AddChange(contentChange("c1", "b3")); err != nil {
		t.Fatalf("AddChange: %v", err)
	}

	target := ChangeTarget{CourseID: "c1", BlockID: "b1"}
	now := time.Unix(1700000000, 0)
	mergeable := &ConflictResolution{
		Strategy:     StrategyMerge,
		LocalChange:  localChangeAt(now, target, ChangeContent),
		RemoteChange: remoteChangeAt(now, target, RemoteInsert, InsertPayload{Fields: map[string]any{"author": "bob"}}),
	}
	structural := &ConflictResolution{
		Strategy:     StrategyManual,
		LocalChange:  localChangeAt(now, target, ChangeStructure),
		RemoteChange: remoteChangeAt(now, target, RemoteUpdate, UpdatePayload{}),
	}

	report, err := s.Sync(context.Background(), func(ctx context.Context, changes []*OfflineChange) (*UploadResult, error) {
		if len(changes) != 3 {
			t.Errorf("expected 3 changes uploaded, got %d", len(changes))
		}
		return &UploadResult{
			Synced:    []string{id1, id2},
			Conflicts: []*ConflictResolution{mergeable, structural},
		}, nil
	})
	if err != nil {
		t.Fatalf("Sync: %v", err)
	}

	if report.Uploaded != 2 {
		t.Errorf("expected 2 uploaded, got %d", report.Uploaded)
	}
	if report.Conflicts != 2 {
		t.Errorf("expected 2 conflicts, got %d", report.Conflicts)
	}
	if report.AutoResolved != 1 {
		t.Errorf("expected 1 auto-resolved, got %d", report.AutoResolved)
	}
	if report.Escalated != 1 {
		t.Errorf("expected 1 escalated, got %d", report.Escalated)
	}

	if mergeable.Resolution != ResolutionMerged {
		t.Errorf("mergeable conflict not merged: %q", mergeable.Resolution)
	}
	if s.ManualQueueLen() != 1 {
		t.Fatalf("expected 1 conflict on the manual queue, got %d", s.ManualQueueLen())
	}

	// The unacknowledged change stays pending for the next pass.
	if got := len(m.GetPendingChanges()); got != 1 {
		t.Errorf("expected 1 change still pending, got %d", got)
	}
}

func TestSynchronizer_UploadedCountsAcknowledgedIDs(t *testing.T) {
	s := newTestSynchronizer(t)
	m := s.Manager()

	id, err := m.AddChange(contentChange("c1", "b1"))
	if err != nil {
		t.Fatalf("AddChange: %v", err)
	}

	report, err := s.Sync(context.Background(), func(ctx context.Context, changes []*OfflineChange) (*UploadResult, error) {
		// An edit arriving while the upload is in flight must not skew the
		// uploaded count.
		if _, err := m.AddChange(contentChange("c1", "b9")); err != nil {
			t.Errorf("AddChange during upload: %v", err)
		}
		return &UploadResult{Synced: []string{id}}, nil
	})
	if err != nil {
		t.Fatalf("Sync: %v", err)
	}
	if report.Uploaded != 1 {
		t.Errorf("expected 1 uploaded, got %d", report.Uploaded)
	}
	if got := len(m.GetPendingChanges()); got != 1 {
		t.Errorf("expected the mid-upload change to remain pending, got %d", got)
	}
}

func TestSynchronizer_SyncNothingPending(t *testing.T) {
	s := newTestSynchronizer(t)

	called := false
	report, err := s.Sync(context.Background(), func(ctx context.Context, changes []*OfflineChange) (*UploadResult, error) {
		called = true
		return &UploadResult{}, nil
	})
	if err != nil {
		t.Fatalf("Sync: %v", err)
	}
	if called {
		t.Errorf("upload invoked with nothing pending")
	}
	if report.Uploaded != 0 || report.Conflicts != 0 {
		t.Errorf("expected empty report, got %+v", report)
	}
}

func TestSynchronizer_SyncUploadError(t *testing.T) {
	s := newTestSynchronizer(t)
	if _, err := s.Manager().AddChange(contentChange("c1", "b1")); err != nil {
		t.Fatalf("AddChange: %v", err)
	}

	boom := errors.New("network down")
	_, err := s.Sync(context.Background(), func(ctx context.Context, changes []*OfflineChange) (*UploadResult, error) {
		return nil, boom
	})
	if !errors.Is(err, boom) || !errors.Is(err, ErrUploadFailed) {
		t.Fatalf("expected wrapped upload failure, got %v", err)
	}
	if got := len(s.Manager().GetPendingChanges()); got != 1 {
		t.Errorf("failed upload must leave changes pending, got %d", got)
	}
}

func TestSynchronizer_HandleRemoteChanges(t *testing.T) {
	s := newTestSynchronizer(t)
	m := s.Manager()

	target := ChangeTarget{CourseID: "c1", BlockID: "b1"}
	local := contentChange("c1", "b1")
	if _, err := m.AddChange(local); err != nil {
		t.Fatalf("AddChange: %v", err)
	}
	pending := m.GetPendingChanges()
	if len(pending) != 1 {
		t.Fatalf("expected 1 pending change, got %d", len(pending))
	}

	t.Run("ContentInsertAutoResolves", func(t *testing.T) {
		remote := remoteChangeAt(pending[0].Timestamp.Add(time.Second), target,
			RemoteInsert, InsertPayload{Fields: map[string]any{"author": "bob"}})

		conflicts := s.HandleRemoteChanges([]*RemoteChange{remote})
		if len(conflicts) != 1 {
			t.Fatalf("expected 1 conflict, got %d", len(conflicts))
		}
		if conflicts[0].Resolution != ResolutionMerged {
			t.Errorf("expected merged resolution, got %q", conflicts[0].Resolution)
		}
		if s.ManualQueueLen() != 0 {
			t.Errorf("auto-resolved conflict landed on the manual queue")
		}
	})

	t.Run("NonMergeableEscalates", func(t *testing.T) {
		remote := remoteChangeAt(pending[0].Timestamp.Add(time.Second), target,
			RemoteDelete, DeletePayload{Path: "blocks/b1"})

		conflicts := s.HandleRemoteChanges([]*RemoteChange{remote})
		if len(conflicts) != 1 {
			t.Fatalf("expected 1 conflict, got %d", len(conflicts))
		}
		if s.ManualQueueLen() != 1 {
			t.Fatalf("expected escalated conflict on the manual queue, got %d", s.ManualQueueLen())
		}
	})

	t.Run("DisjointTargetNoConflict", func(t *testing.T) {
		remote := remoteChangeAt(pending[0].Timestamp, ChangeTarget{CourseID: "c1", BlockID: "other"},
			RemoteUpdate, UpdatePayload{Fields: map[string]any{"x": 1}})
		if got := s.HandleRemoteChanges([]*RemoteChange{remote}); got != nil {
			t.Errorf("expected no conflicts, got %d", len(got))
		}
	})
}

func TestSynchronizer_TakeManualQueueDrains(t *testing.T) {
	s := newTestSynchronizer(t)

	target := ChangeTarget{CourseID: "c1", BlockID: "b1"}
	now := time.Unix(1700000000, 0)
	conflict := &ConflictResolution{
		LocalChange:  localChangeAt(now, target, ChangeStructure),
		RemoteChange: remoteChangeAt(now, target, RemoteUpdate, UpdatePayload{}),
	}
	s.Resolver().ResolveConflicts([]*ConflictResolution{conflict}, StrategyMerge)

	s.mu.Lock()
	s.manualQueue = append(s.manualQueue, conflict)
	s.mu.Unlock()

	queue := s.TakeManualQueue()
	if len(queue) != 1 || queue[0] != conflict {
		t.Fatalf("expected drained queue with 1 conflict, got %v", queue)
	}
	if s.ManualQueueLen() != 0 {
		t.Errorf("queue not empty after drain")
	}
	if s.TakeManualQueue() != nil {
		t.Errorf("second drain should return nil")
	}
}
