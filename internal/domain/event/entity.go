// Package event models the append-only progress event log owned by the
// monitoring component. Events are never mutated after creation and are
// deleted only by the retention sweep.
package event

import (
	"time"
)

// Type enumerates progress event types.
type Type string

const (
	TypeUnlock       Type = "unlock"
	TypeAuthorize    Type = "authorize"
	TypeTestComplete Type = "test_complete"
	TypeError        Type = "error"
)

// SourceProgressSystem tags events written by the progress engine.
const SourceProgressSystem = "progress_system"

// ProgressEvent is one append-only event log entry.
type ProgressEvent struct {
	ID        string         `bson:"_id" json:"id"`
	Type      Type           `bson:"event_type" json:"event_type"`
	StudentID string         `bson:"student_id" json:"student_id"`
	LevelID   string         `bson:"level_id,omitempty" json:"level_id,omitempty"`
	Timestamp time.Time      `bson:"timestamp" json:"timestamp"`
	Details   map[string]any `bson:"details,omitempty" json:"details,omitempty"`
	Source    string         `bson:"source" json:"source"`
}
