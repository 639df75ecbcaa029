// Package durable implements the versioned key/value context that carries
// state across phases and rounds of an orchestration run.
//
// A Context is owned by a single run and is not safe for concurrent use;
// callers serialize access per session.
package durable

import (
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"time"
)

// Bounds on the retained history. Serialization uses tighter limits so
// persisted payloads stay small regardless of how long a run has been alive.
const (
	MaxSnapshots        = 50
	MaxChangeLog        = 200
	SerializedSnapshots = 10
	SerializedChangeLog = 50
)

var (
	// ErrProtectedKey is returned when a protected key would be overwritten
	// with a different value or deleted.
	ErrProtectedKey = errors.New("protected key")

	// ErrSnapshotNotFound is returned when a restore targets a version with
	// no retained snapshot.
	ErrSnapshotNotFound = errors.New("snapshot not found")
)

// ChangeEntry records one mutation applied to the context.
type ChangeEntry struct {
	Version   int       `json:"version"`
	Timestamp time.Time `json:"timestamp"`
	Operation string    `json:"operation"`
	Detail    string    `json:"detail,omitempty"`
}

// Snapshot is an immutable deep copy of the context at a point in time.
type Snapshot struct {
	Version    int            `json:"version"`
	Timestamp  time.Time      `json:"timestamp"`
	Reason     string         `json:"reason"`
	Persistent map[string]any `json:"persistent"`
	Ephemeral  map[string]any `json:"ephemeral"`
	Metadata   map[string]any `json:"metadata,omitempty"`
}

// Context is the durable cross-phase state for one session.
type Context struct {
	sessionID string
	version   int
	createdAt time.Time
	updatedAt time.Time

	persistent map[string]any
	ephemeral  map[string]any
	protected  map[string]struct{}

	snapshots []Snapshot
	changeLog []ChangeEntry

	now func() time.Time
}

// NewContext creates an empty context for the given session.
func NewContext(sessionID string) *Context {
	now := time.Now()
	return &Context{
		sessionID:  sessionID,
		createdAt:  now,
		updatedAt:  now,
		persistent: make(map[string]any),
		ephemeral:  make(map[string]any),
		protected:  make(map[string]struct{}),
		now:        time.Now,
	}
}

// SessionID returns the owning session id.
func (c *Context) SessionID() string { return c.sessionID }

// Version returns the current version counter.
func (c *Context) Version() int { return c.version }

// Get returns a deep copy of the value for key from the persistent partition.
func (c *Context) Get(key string) (any, bool) {
	v, ok := c.persistent[key]
	if !ok {
		return nil, false
	}
	return deepCopyValue(v), true
}

// GetEphemeral returns a deep copy of the value for key from the ephemeral partition.
func (c *Context) GetEphemeral(key string) (any, bool) {
	v, ok := c.ephemeral[key]
	if !ok {
		return nil, false
	}
	return deepCopyValue(v), true
}

// Persistent returns a deep copy of the whole persistent partition.
func (c *Context) Persistent() map[string]any {
	return deepCopyMap(c.persistent)
}

// Set stores a deep copy of value under key in the persistent partition.
// Re-setting a protected key to an equal value is a no-op; a differing value
// returns ErrProtectedKey and leaves the context unchanged.
func (c *Context) Set(key string, value any) error {
	return c.set(key, value, false)
}

// SetProtected stores value under key and marks the key protected: from then
// on it can neither be overwritten with a different value nor deleted.
func (c *Context) SetProtected(key string, value any) error {
	return c.set(key, value, true)
}

func (c *Context) set(key string, value any, protect bool) error {
	if _, isProtected := c.protected[key]; isProtected {
		if valuesEqual(c.persistent[key], value) {
			return nil // idempotent re-set
		}
		return fmt.Errorf("set %q: %w", key, ErrProtectedKey)
	}

	c.persistent[key] = deepCopyValue(value)
	if protect {
		c.protected[key] = struct{}{}
	}
	c.bump("set", key)
	return nil
}

// SetEphemeral stores a deep copy of value in the ephemeral partition.
func (c *Context) SetEphemeral(key string, value any) {
	c.ephemeral[key] = deepCopyValue(value)
	c.bump("set_ephemeral", key)
}

// Delete removes key from the persistent partition.
// Protected keys cannot be deleted.
func (c *Context) Delete(key string) error {
	if _, isProtected := c.protected[key]; isProtected {
		return fmt.Errorf("delete %q: %w", key, ErrProtectedKey)
	}
	if _, ok := c.persistent[key]; !ok {
		return nil
	}
	delete(c.persistent, key)
	c.bump("delete", key)
	return nil
}

// ClearEphemeral empties the ephemeral partition.
func (c *Context) ClearEphemeral() {
	if len(c.ephemeral) == 0 {
		return
	}
	c.ephemeral = make(map[string]any)
	c.bump("clear_ephemeral", "")
}

// IsProtected reports whether key is protected.
func (c *Context) IsProtected(key string) bool {
	_, ok := c.protected[key]
	return ok
}

// bump increments the version, stamps updatedAt, and appends one change-log
// entry, evicting the oldest entry once the log is full.
func (c *Context) bump(operation, detail string) {
	c.version++
	c.updatedAt = c.now()
	c.changeLog = append(c.changeLog, ChangeEntry{
		Version:   c.version,
		Timestamp: c.updatedAt,
		Operation: operation,
		Detail:    detail,
	})
	if len(c.changeLog) > MaxChangeLog {
		c.changeLog = c.changeLog[len(c.changeLog)-MaxChangeLog:]
	}
}

// CreateSnapshot captures a deep copy of both partitions at the current
// version. Snapshots do not advance the version: they observe state rather
// than change it. The oldest snapshot is evicted once the ring is full.
func (c *Context) CreateSnapshot(reason string, metadata map[string]any) Snapshot {
	snap := Snapshot{
		Version:    c.version,
		Timestamp:  c.now(),
		Reason:     reason,
		Persistent: deepCopyMap(c.persistent),
		Ephemeral:  deepCopyMap(c.ephemeral),
		Metadata:   metadata,
	}
	c.snapshots = append(c.snapshots, snap)
	if len(c.snapshots) > MaxSnapshots {
		c.snapshots = c.snapshots[len(c.snapshots)-MaxSnapshots:]
	}
	return snap
}

// RestoreSnapshot replaces the persistent partition wholesale with the
// snapshot taken at exactly version, and resets the version counter to that
// version. Change-log entries recorded after the snapshot are not replayed.
// A snapshot of a fresh context legitimately carries version 0.
func (c *Context) RestoreSnapshot(version int) error {
	for i := range c.snapshots {
		if c.snapshots[i].Version == version {
			return c.restore(&c.snapshots[i])
		}
	}
	return fmt.Errorf("restore version %d: %w", version, ErrSnapshotNotFound)
}

// RestoreLatest restores the most recently taken snapshot.
func (c *Context) RestoreLatest() error {
	if len(c.snapshots) == 0 {
		return fmt.Errorf("restore latest: %w", ErrSnapshotNotFound)
	}
	return c.restore(&c.snapshots[len(c.snapshots)-1])
}

func (c *Context) restore(snap *Snapshot) error {
	c.persistent = deepCopyMap(snap.Persistent)
	c.version = snap.Version
	c.updatedAt = c.now()
	c.changeLog = append(c.changeLog, ChangeEntry{
		Version:   c.version,
		Timestamp: c.updatedAt,
		Operation: "restore_snapshot",
		Detail:    snap.Reason,
	})
	if len(c.changeLog) > MaxChangeLog {
		c.changeLog = c.changeLog[len(c.changeLog)-MaxChangeLog:]
	}
	return nil
}

// Snapshots returns the retained snapshots, oldest first.
func (c *Context) Snapshots() []Snapshot {
	return append([]Snapshot(nil), c.snapshots...)
}

// ChangeLog returns the retained change entries, oldest first.
func (c *Context) ChangeLog() []ChangeEntry {
	return append([]ChangeEntry(nil), c.changeLog...)
}

// Serialized is the wire form of a Context. History is truncated to the most
// recent SerializedSnapshots snapshots and SerializedChangeLog log entries.
type Serialized struct {
	SessionID     string         `json:"session_id"`
	Version       int            `json:"version"`
	CreatedAt     time.Time      `json:"created_at"`
	UpdatedAt     time.Time      `json:"updated_at"`
	Persistent    map[string]any `json:"persistent"`
	Ephemeral     map[string]any `json:"ephemeral"`
	ProtectedKeys []string       `json:"protected_keys"`
	Snapshots     []Snapshot     `json:"snapshots"`
	ChangeLog     []ChangeEntry  `json:"change_log"`
}

// Serialize returns the bounded wire form of the context.
func (c *Context) Serialize() Serialized {
	keys := make([]string, 0, len(c.protected))
	for k := range c.protected {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	snaps := c.snapshots
	if len(snaps) > SerializedSnapshots {
		snaps = snaps[len(snaps)-SerializedSnapshots:]
	}
	log := c.changeLog
	if len(log) > SerializedChangeLog {
		log = log[len(log)-SerializedChangeLog:]
	}

	return Serialized{
		SessionID:     c.sessionID,
		Version:       c.version,
		CreatedAt:     c.createdAt,
		UpdatedAt:     c.updatedAt,
		Persistent:    deepCopyMap(c.persistent),
		Ephemeral:     deepCopyMap(c.ephemeral),
		ProtectedKeys: keys,
		Snapshots:     append([]Snapshot(nil), snaps...),
		ChangeLog:     append([]ChangeEntry(nil), log...),
	}
}

// MarshalJSON serializes the bounded wire form.
func (c *Context) MarshalJSON() ([]byte, error) {
	return json.Marshal(c.Serialize())
}

// FromSerialized rebuilds a Context from its wire form.
func FromSerialized(s Serialized) *Context {
	c := &Context{
		sessionID:  s.SessionID,
		version:    s.Version,
		createdAt:  s.CreatedAt,
		updatedAt:  s.UpdatedAt,
		persistent: deepCopyMap(s.Persistent),
		ephemeral:  deepCopyMap(s.Ephemeral),
		protected:  make(map[string]struct{}, len(s.ProtectedKeys)),
		snapshots:  append([]Snapshot(nil), s.Snapshots...),
		changeLog:  append([]ChangeEntry(nil), s.ChangeLog...),
		now:        time.Now,
	}
	for _, k := range s.ProtectedKeys {
		c.protected[k] = struct{}{}
	}
	return c
}
