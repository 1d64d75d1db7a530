package storage

import (
	"errors"

	"github.com/greenlight-sh/greenlight/pkg/types"
)

var (
	// ErrNotFound is returned when a requested environment does not exist
	ErrNotFound = errors.New("environment not found")

	// ErrNoSwitchedRecord is returned when no prior successful release
	// exists to roll back to
	ErrNoSwitchedRecord = errors.New("no switched deployment record")
)

// Store defines the interface for durable orchestration state: the two
// environment specs, the append-only deployment record log, and the
// fatal-state flag. Implemented by the BoltDB-backed store.
type Store interface {
	// Environments
	GetEnvironment(name types.EnvironmentName) (*types.Environment, error)
	ListEnvironments() ([]*types.Environment, error)
	UpdateEnvironment(name types.EnvironmentName, imageTag, revisionID string) (*types.Environment, error)
	MarkHealthy(name types.EnvironmentName) error

	// SetActive atomically activates name and deactivates the other slot.
	// It never leaves both or neither active.
	SetActive(name types.EnvironmentName) error
	ActiveEnvironment() (*types.Environment, error)

	// Deployment records (append-only)
	AppendRecord(rec *types.DeploymentRecord) error
	ListRecords(limit int) ([]*types.DeploymentRecord, error)
	LastSwitchedRecord() (*types.DeploymentRecord, error)

	// Fatal circuit breaker
	Fatal() (bool, string, error)
	SetFatal(reason string) error
	ClearFatal() error

	// Utility
	Close() error
}
