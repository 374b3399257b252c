package coursesync

import (
	"crypto/rand"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"time"
)

// ChangeType classifies what kind of edit a local change represents.
type ChangeType string

const (
	// ChangeContent is an edit to block or activity content.
	ChangeContent ChangeType = "content"
	// ChangeMetadata is an edit to titles, descriptions, or settings.
	ChangeMetadata ChangeType = "metadata"
	// ChangeStructure is a reordering or re-parenting of outline nodes.
	ChangeStructure ChangeType = "structure"
)

// OpType is the kind of mutation a change operation performs.
type OpType string

const (
	OpInsert OpType = "insert"
	OpDelete OpType = "delete"
	OpUpdate OpType = "update"
	OpMove   OpType = "move"
)

// ChangeTarget addresses the scope a change applies to. Combined with the
// change type it defines overlap for conflict detection. Optional fields are
// empty strings when the change addresses a coarser scope.
type ChangeTarget struct {
	CourseID   string `json:"course_id"`
	SessionID  string `json:"session_id,omitempty"`
	ActivityID string `json:"activity_id,omitempty"`
	BlockID    string `json:"block_id,omitempty"`
}

// Equal reports whether two targets address exactly the same scope.
// Unset optional fields compare equal to unset.
func (t ChangeTarget) Equal(other ChangeTarget) bool {
	return t == other
}

// String returns a path-like representation for logging.
func (t ChangeTarget) String() string {
	s := t.CourseID
	if t.SessionID != "" {
		s += "/" + t.SessionID
	}
	if t.ActivityID != "" {
		s += "/" + t.ActivityID
	}
	if t.BlockID != "" {
		s += "/" + t.BlockID
	}
	return s
}

// ChangeOperation describes what a change did to its target.
type ChangeOperation struct {
	Type     OpType         `json:"type"`
	Path     string         `json:"path"`
	OldValue map[string]any `json:"old_value,omitempty"`
	NewValue map[string]any `json:"new_value,omitempty"`
	Position *int           `json:"position,omitempty"`
}

// OfflineChange is a single local edit awaiting synchronization.
type OfflineChange struct {
	ID           string          `json:"id"`
	Type         ChangeType      `json:"type"`
	Timestamp    time.Time       `json:"timestamp"`
	UserID       string          `json:"user_id"`
	Target       ChangeTarget    `json:"target"`
	Operation    ChangeOperation `json:"operation"`
	Dependencies []string        `json:"dependencies,omitempty"`
	Conflicts    []string        `json:"conflicts,omitempty"`
}

// newChangeID generates a unique change identifier: millisecond timestamp
// plus a random hex suffix. IDs are never reused.
func newChangeID(now time.Time) string {
	suffix := make([]byte, 4)
	if _, err := rand.Read(suffix); err != nil {
		// crypto/rand failure is effectively unreachable; fall back to
		// the nanosecond remainder so IDs stay unique-ish.
		return fmt.Sprintf("%d-%08x", now.UnixMilli(), now.UnixNano()%1e8)
	}
	return fmt.Sprintf("%d-%s", now.UnixMilli(), hex.EncodeToString(suffix))
}

// RemoteChangeType is the content-change vocabulary used by remote peers.
type RemoteChangeType string

const (
	RemoteInsert RemoteChangeType = "insert"
	RemoteDelete RemoteChangeType = "delete"
	RemoteUpdate RemoteChangeType = "update"
)

// RemotePayload is the typed payload of a remote change. Implementations are
// keyed by the change type so the resolver can match exhaustively.
type RemotePayload interface {
	payloadType() RemoteChangeType
}

// InsertPayload carries the fields of newly inserted content.
type InsertPayload struct {
	Fields   map[string]any `json:"fields"`
	Position int            `json:"position"`
}

func (InsertPayload) payloadType() RemoteChangeType { return RemoteInsert }

// DeletePayload identifies removed content by path.
type DeletePayload struct {
	Path string `json:"path"`
}

func (DeletePayload) payloadType() RemoteChangeType { return RemoteDelete }

// UpdatePayload carries the changed fields of updated content.
type UpdatePayload struct {
	Fields map[string]any `json:"fields"`
}

func (UpdatePayload) payloadType() RemoteChangeType { return RemoteUpdate }

// RemoteChange is a change originating from another participant, delivered
// by the realtime transport.
type RemoteChange struct {
	Type      RemoteChangeType `json:"type"`
	UserID    string           `json:"user_id"`
	Target    ChangeTarget     `json:"target"`
	Timestamp time.Time        `json:"timestamp"`
	Data      RemotePayload    `json:"data"`
}

// remoteChangeJSON is the wire shape for RemoteChange en/decoding.
type remoteChangeJSON struct {
	Type      RemoteChangeType `json:"type"`
	UserID    string           `json:"user_id"`
	Target    ChangeTarget     `json:"target"`
	Timestamp time.Time        `json:"timestamp"`
	Data      json.RawMessage  `json:"data,omitempty"`
}

// MarshalJSON implements json.Marshaler.
func (c RemoteChange) MarshalJSON() ([]byte, error) {
	raw := remoteChangeJSON{
		Type:      c.Type,
		UserID:    c.UserID,
		Target:    c.Target,
		Timestamp: c.Timestamp,
	}
	if c.Data != nil {
		data, err := json.Marshal(c.Data)
		if err != nil {
			return nil, fmt.Errorf("marshal remote payload: %w", err)
		}
		raw.Data = data
	}
	return json.Marshal(raw)
}

// UnmarshalJSON implements json.Unmarshaler, decoding the payload into the
// concrete type selected by the change type.
func (c *RemoteChange) UnmarshalJSON(data []byte) error {
	var raw remoteChangeJSON
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	c.Type = raw.Type
	c.UserID = raw.UserID
	c.Target = raw.Target
	c.Timestamp = raw.Timestamp
	c.Data = nil
	if len(raw.Data) == 0 {
		return nil
	}
	switch raw.Type {
	case RemoteInsert:
		var p InsertPayload
		if err := json.Unmarshal(raw.Data, &p); err != nil {
			return fmt.Errorf("decode insert payload: %w", err)
		}
		c.Data = p
	case RemoteDelete:
		var p DeletePayload
		if err := json.Unmarshal(raw.Data, &p); err != nil {
			return fmt.Errorf("decode delete payload: %w", err)
		}
		c.Data = p
	case RemoteUpdate:
		var p UpdatePayload
		if err := json.Unmarshal(raw.Data, &p); err != nil {
			return fmt.Errorf("decode update payload: %w", err)
		}
		c.Data = p
	default:
		return fmt.Errorf("unknown remote change type %q", raw.Type)
	}
	return nil
}
