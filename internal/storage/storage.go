package storage

import (
	"context"
	"errors"

	"github.com/triageops/triage/internal/storage/sqlite"
	"github.com/triageops/triage/internal/types"
)

// Sentinel errors shared by all storage backends.
var (
	// ErrNotFound is returned when the requested record does not exist.
	ErrNotFound = sqlite.ErrNotFound

	// ErrClaimConflict is returned by ClaimTracking when another worker
	// already owns the tracking record.
	ErrClaimConflict = sqlite.ErrClaimConflict
)

// IsNotFound reports whether err means the record does not exist.
func IsNotFound(err error) bool {
	return errors.Is(err, ErrNotFound)
}

// TrackingUpdate is a partial update of a tracking record. Nil fields are
// left untouched, so concurrent writers of disjoint fields never clobber
// each other.
type TrackingUpdate = sqlite.TrackingUpdate

// Storage defines the interface for issue storage backends
type Storage interface {
	// Issues
	CreateIssue(ctx context.Context, issue *types.Issue) error
	GetIssue(ctx context.Context, id string) (*types.Issue, error)
	ListIssues(ctx context.Context, limit int) ([]*types.Issue, error)
	UpdateIssueStatus(ctx context.Context, id string, status types.Status) error

	// Tracking records (analysis lifecycle, 1:1 with issues)
	CreateTracking(ctx context.Context, rec *types.TrackingRecord) error
	GetTracking(ctx context.Context, id string) (*types.TrackingRecord, error)
	GetTrackingByIssue(ctx context.Context, issueID string) (*types.TrackingRecord, error)
	ClaimTracking(ctx context.Context, trackingID, workerID string) error
	ReleaseTracking(ctx context.Context, trackingID string) error
	UpdateTracking(ctx context.Context, trackingID string, update *TrackingUpdate) error

	// Transcript messages (append-only, ordered)
	AppendMessage(ctx context.Context, msg *types.Message) error
	ListMessages(ctx context.Context, issueID string) ([]*types.Message, error)

	// Lifecycle
	Close() error
}

// Config holds database configuration
type Config struct {
	// Path is the SQLite database file path
	// Default: ".triage/triage.db"
	Path string
}

// DefaultConfig returns a config with sensible defaults
func DefaultConfig() *Config {
	return &Config{
		Path: ".triage/triage.db",
	}
}

// NewStorage creates a new SQLite storage backend. The ctx parameter is
// reserved for backends that dial or migrate on open.
func NewStorage(ctx context.Context, cfg *Config) (Storage, error) {
	if cfg == nil {
		cfg = DefaultConfig()
	}

	if cfg.Path == "" {
		cfg.Path = ".triage/triage.db"
	}

	return sqlite.New(cfg.Path)
}
