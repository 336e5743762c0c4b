package db

import (
	"time"

	"github.com/google/uuid"
)

// RunKind distinguishes what a run does.
type RunKind string

const (
	RunKindSnapshotRefresh RunKind = "snapshot_refresh"
	RunKindSync            RunKind = "sync"
)

// Trigger records what started a run.
type Trigger string

const (
	TriggerManual       Trigger = "manual"
	TriggerCron         Trigger = "cron"
	TriggerInitialSetup Trigger = "initial_setup"
	TriggerPostReauth   Trigger = "post_reauth"
)

// RunStatus is the lifecycle state of a run. Completed, failed and partial
// are terminal; a run never leaves a terminal state.
type RunStatus string

const (
	RunStatusRunning   RunStatus = "running"
	RunStatusCompleted RunStatus = "completed"
	RunStatusFailed    RunStatus = "failed"
	RunStatusPartial   RunStatus = "partial"
)

// Run represents one execution of a snapshot or sync operation.
type Run struct {
	ID              uuid.UUID
	Kind            RunKind
	TriggeredBy     Trigger
	Status          RunStatus
	StartedAt       time.Time
	CompletedAt     *time.Time     // nullable until terminal
	DurationSeconds *int           // nullable until terminal
	Summary         map[string]any // jsonb
	ErrorDetails    *string        // nullable
}

// AuthSession is the single credential row stored per external service.
// EncryptedData holds the vault's encryption envelope as JSON.
type AuthSession struct {
	ID                uuid.UUID
	Service           string
	EncryptedData     []byte
	IsValid           bool
	LastValidatedAt   *time.Time
	InvalidatedReason *string
	CreatedAt         time.Time
	UpdatedAt         time.Time
}

// Snapshot is one persisted point-in-time library snapshot.
type Snapshot struct {
	ID        uuid.UUID
	Service   string
	Data      []byte // jsonb snapshot payload
	CreatedAt time.Time
}

// RegistryEntry is one known playlist, upserted after each successful run.
type RegistryEntry struct {
	SpotifyID   string
	Name        string
	SongCount   int
	Fingerprint string
	IsExcluded  bool
	CreatedAt   time.Time
	UpdatedAt   time.Time
}
