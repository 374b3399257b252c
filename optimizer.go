package coursesync

import (
	"encoding/json"
	"sync"
	"time"
)

// OptimizerConfig configures the collaboration optimizer.
type OptimizerConfig struct {
	// CursorDebounce is the quiet period for cursor updates; only the last
	// position within a burst is transmitted. Default: 100ms.
	CursorDebounce time.Duration `json:"cursor_debounce" yaml:"cursor_debounce"`

	// ContentThrottle is the minimum interval between content-change
	// messages. Unlike debounce this guarantees periodic delivery during
	// sustained typing. Default: 200ms.
	ContentThrottle time.Duration `json:"content_throttle" yaml:"content_throttle"`

	// FlushInterval is the delay before a batch of queued keyed updates is
	// flushed. Default: 100ms.
	FlushInterval time.Duration `json:"flush_interval" yaml:"flush_interval"`

	// MaxEntryAge bounds the age of presence/activity entries retained by
	// CleanupOldData. Default: 5m.
	MaxEntryAge time.Duration `json:"max_entry_age" yaml:"max_entry_age"`

	// Clock supplies time and timers. Defaults to the system clock; tests
	// inject a virtual clock to avoid wall-clock waits.
	Clock Clock `json:"-" yaml:"-"`
}

// DefaultOptimizerConfig returns default configuration.
func DefaultOptimizerConfig() OptimizerConfig {
	return OptimizerConfig{
		CursorDebounce:  100 * time.Millisecond,
		ContentThrottle: 200 * time.Millisecond,
		FlushInterval:   100 * time.Millisecond,
		MaxEntryAge:     5 * time.Minute,
	}
}

// CursorUpdate is a participant cursor position broadcast to peers.
type CursorUpdate struct {
	UserID    string    `json:"user_id"`
	BlockID   string    `json:"block_id"`
	Offset    int       `json:"offset"`
	Timestamp time.Time `json:"timestamp"`
}

// QueuedUpdate is one keyed entry in a flushed batch.
type QueuedUpdate struct {
	Key  string `json:"key"`
	Data any    `json:"data"`
}

// PresenceEntry tracks a participant's last observed activity. Presence maps
// are unbounded by design and rely on CleanupOldData for memory bounds.
type PresenceEntry struct {
	UserID    string         `json:"user_id"`
	Timestamp time.Time      `json:"timestamp"`
	Data      map[string]any `json:"data,omitempty"`
}

// CollaborationOptimizer protects the transport from excessive message
// volume without losing correctness of final state: cursor updates are
// debounced, content changes throttled, and arbitrary keyed updates batched
// on a single restarting timer.
//
// Timers are not cancellation-safe across teardown on their own; long-lived
// owners must call Stop.
type CollaborationOptimizer struct {
	config OptimizerConfig
	clock  Clock

	mu sync.Mutex

	cursorTimer   Timer
	cursorGen     uint64
	pendingCursor CursorUpdate
	cursorSend    func(CursorUpdate)

	lastContent time.Time

	queue      map[string]any
	queueOrder []string
	queueTimer Timer
	queueSend  func([]QueuedUpdate)

	stopped bool

	cursorsSent       int64
	cursorsSuppressed int64
	contentSent       int64
	contentSuppressed int64
	flushes           int64
}

// NewCollaborationOptimizer creates a new optimizer.
func NewCollaborationOptimizer(config OptimizerConfig) *CollaborationOptimizer {
	if config.CursorDebounce <= 0 {
		config.CursorDebounce = 100 * time.Millisecond
	}
	if config.ContentThrottle <= 0 {
		config.ContentThrottle = 200 * time.Millisecond
	}
	if config.FlushInterval <= 0 {
		config.FlushInterval = 100 * time.Millisecond
	}
	if config.MaxEntryAge <= 0 {
		config.MaxEntryAge = 5 * time.Minute
	}
	if config.Clock == nil {
		config.Clock = SystemClock()
	}
	return &CollaborationOptimizer{
		config: config,
		clock:  config.Clock,
		queue:  make(map[string]any),
	}
}

// SendCursor schedules a debounced cursor update. Repeated calls within the
// quiet period replace the pending position and restart the timer, so only
// the last position in a burst is transmitted.
func (o *CollaborationOptimizer) SendCursor(update CursorUpdate, send func(CursorUpdate)) {
	o.mu.Lock()
	defer o.mu.Unlock()
	if o.stopped {
		return
	}

	if o.cursorTimer != nil {
		o.cursorTimer.Stop()
		o.cursorsSuppressed++
	}
	o.pendingCursor = update
	o.cursorSend = send
	// The generation stamp outlives Stop: a callback that already fired but
	// lost the race to this reschedule sees a stale gen and delivers nothing.
	o.cursorGen++
	gen := o.cursorGen
	o.cursorTimer = o.clock.AfterFunc(o.config.CursorDebounce, func() { o.fireCursor(gen) })
}

func (o *CollaborationOptimizer) fireCursor(gen uint64) {
	o.mu.Lock()
	if o.stopped || gen != o.cursorGen || o.cursorSend == nil {
		o.mu.Unlock()
		return
	}
	update := o.pendingCursor
	send := o.cursorSend
	o.cursorTimer = nil
	o.cursorSend = nil
	o.cursorsSent++
	o.mu.Unlock()

	send(update)
}

// SendContent transmits a content-change update unless one was already sent
// within the throttle interval. It reports whether the update was sent;
// suppressed updates are simply dropped, the next call after the interval
// delivers fresh state.
func (o *CollaborationOptimizer) SendContent(data map[string]any, send func(map[string]any)) bool {
	o.mu.Lock()
	if o.stopped {
		o.mu.Unlock()
		return false
	}
	now := o.clock.Now()
	if !o.lastContent.IsZero() && now.Sub(o.lastContent) < o.config.ContentThrottle {
		o.contentSuppressed++
		o.mu.Unlock()
		return false
	}
	o.lastContent = now
	o.contentSent++
	o.mu.Unlock()

	send(data)
	return true
}

// QueueUpdate buffers a keyed update for batched delivery. Repeated calls
// with the same key overwrite the pending value (last write wins within the
// batch window). Every call restarts the single flush timer; when it fires,
// all queued entries are delivered to the most recently supplied send
// function as one batch and the queue is cleared.
func (o *CollaborationOptimizer) QueueUpdate(key string, data any, send func([]QueuedUpdate)) {
	o.mu.Lock()
	defer o.mu.Unlock()
	if o.stopped {
		return
	}

	if _, exists := o.queue[key]; !exists {
		o.queueOrder = append(o.queueOrder, key)
	}
	o.queue[key] = data
	o.queueSend = send

	if o.queueTimer != nil {
		o.queueTimer.Stop()
	}
	o.queueTimer = o.clock.AfterFunc(o.config.FlushInterval, o.flushQueue)
}

func (o *CollaborationOptimizer) flushQueue() {
	o.mu.Lock()
	if o.stopped || len(o.queue) == 0 || o.queueSend == nil {
		o.mu.Unlock()
		return
	}
	batch := make([]QueuedUpdate, 0, len(o.queue))
	for _, key := range o.queueOrder {
		batch = append(batch, QueuedUpdate{Key: key, Data: o.queue[key]})
	}
	send := o.queueSend
	o.queue = make(map[string]any)
	o.queueOrder = nil
	o.queueTimer = nil
	o.queueSend = nil
	o.flushes++
	o.mu.Unlock()

	send(batch)
}

// Flush delivers any queued updates immediately, cancelling the pending
// flush timer.
func (o *CollaborationOptimizer) Flush() {
	o.mu.Lock()
	if o.queueTimer != nil {
		o.queueTimer.Stop()
	}
	o.mu.Unlock()
	o.flushQueue()
}

// Stop cancels all outstanding timers. Pending cursor and queued updates are
// discarded; the optimizer accepts no further work.
func (o *CollaborationOptimizer) Stop() {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.stopped = true
	if o.cursorTimer != nil {
		o.cursorTimer.Stop()
		o.cursorTimer = nil
	}
	if o.queueTimer != nil {
		o.queueTimer.Stop()
		o.queueTimer = nil
	}
}

// CompressData strips null fields recursively before transmission via a
// serialize/deserialize round trip, minimizing payload size. All other value
// types, including nested arrays and objects, are preserved unchanged.
func (o *CollaborationOptimizer) CompressData(v any) (any, error) {
	raw, err := json.Marshal(v)
	if err != nil {
		return nil, err
	}
	var decoded any
	if err := json.Unmarshal(raw, &decoded); err != nil {
		return nil, err
	}
	return stripNulls(decoded), nil
}

// stripNulls removes nil-valued object fields, recursing into nested objects
// and arrays.
func stripNulls(v any) any {
	switch val := v.(type) {
	case map[string]any:
		for k, inner := range val {
			if inner == nil {
				delete(val, k)
				continue
			}
			val[k] = stripNulls(inner)
		}
		return val
	case []any:
		for i, inner := range val {
			val[i] = stripNulls(inner)
		}
		return val
	default:
		return v
	}
}

// CleanupOldData removes entries whose timestamp is older than maxAge
// relative to now and returns how many were dropped. A non-positive maxAge
// uses the configured default.
func (o *CollaborationOptimizer) CleanupOldData(entries map[string]PresenceEntry, maxAge time.Duration) int {
	if maxAge <= 0 {
		maxAge = o.config.MaxEntryAge
	}
	cutoff := o.clock.Now().Add(-maxAge)

	removed := 0
	for key, entry := range entries {
		if entry.Timestamp.Before(cutoff) {
			delete(entries, key)
			removed++
		}
	}
	return removed
}

// OptimizerStats provides statistics about message suppression.
type OptimizerStats struct {
	CursorsSent       int64 `json:"cursors_sent"`
	CursorsSuppressed int64 `json:"cursors_suppressed"`
	ContentSent       int64 `json:"content_sent"`
	ContentSuppressed int64 `json:"content_suppressed"`
	BatchesFlushed    int64 `json:"batches_flushed"`
	QueuedKeys        int   `json:"queued_keys"`
}

// Stats returns current optimizer statistics.
func (o *CollaborationOptimizer) Stats() OptimizerStats {
	o.mu.Lock()
	defer o.mu.Unlock()
	return OptimizerStats{
		CursorsSent:       o.cursorsSent,
		CursorsSuppressed: o.cursorsSuppressed,
		ContentSent:       o.contentSent,
		ContentSuppressed: o.contentSuppressed,
		BatchesFlushed:    o.flushes,
		QueuedKeys:        len(o.queue),
	}
}
