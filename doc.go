// Package coursesync provides offline change tracking and conflict
// resolution for collaboratively edited course outlines.
//
// The engine keeps a durable local queue of unsynchronized edits, detects
// overlapping local and remote edits, resolves them via configurable
// strategies (including a best-effort plain-text merge), and batches or
// throttles outgoing updates to protect the transport.
//
// # Basic Usage
//
// Track edits while offline:
//
//	manager, err := coursesync.NewOfflineChangeManager(coursesync.DefaultManagerConfig())
//	if err != nil {
//	    log.Fatal(err)
//	}
//	id, err := manager.AddChange(&coursesync.OfflineChange{
//	    Type:   coursesync.ChangeContent,
//	    UserID: "user-1",
//	    Target: coursesync.ChangeTarget{CourseID: "c1", BlockID: "b1"},
//	    Operation: coursesync.ChangeOperation{
//	        Type:     coursesync.OpUpdate,
//	        Path:     "blocks/b1/text",
//	        NewValue: map[string]any{"text": "updated"},
//	    },
//	})
//
// Synchronize when connectivity returns:
//
//	conflicts, err := manager.SyncChanges(ctx, func(ctx context.Context, changes []*coursesync.OfflineChange) (*coursesync.UploadResult, error) {
//	    // transmit the batch over the realtime transport
//	    return &coursesync.UploadResult{Synced: ids(changes)}, nil
//	})
//
// Or let the driver resolve reported conflicts with a strategy:
//
//	engine, err := coursesync.New(coursesync.DefaultConfig())
//	report, err := engine.Sync(ctx, upload)
//
// # Persistence
//
// The queue is serialized under a single key on every mutation, so a reload
// never observes a partially applied change. Stores exist for memory, local
// files, SQLite, and S3; the blob can be snappy-compressed and encrypted at
// rest.
package coursesync
