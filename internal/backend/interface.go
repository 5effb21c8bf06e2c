package backend

import (
	"context"

	"moodtracker/internal/auth"
	"moodtracker/internal/services"
	"moodtracker/internal/sheets"
)

// Store is everything the binaries need from a storage backend.
type Store interface {
	services.EntryStore
	auth.UserStore
	ListUserIDs(ctx context.Context) ([]string, error)
	Ping(ctx context.Context) error
	Close() error
}

// CleanupFunc represents a cleanup function for resources
type CleanupFunc func() error

// BackendResult holds the wired storage stack.
type BackendResult struct {
	// Store is the raw table, used for accounts, health checks and resync reads.
	Store Store
	// Entries decorates Store with change publishing; ledgers write through it.
	Entries *services.EntryService
	Cleanup CleanupFunc
}

// Factory creates backends based on configuration
type Factory interface {
	CreateBackend(ctx context.Context, config Config) (*BackendResult, error)
	CreateMirror(ctx context.Context, config MirrorConfig) (sheets.EntryMirror, error)
}

// Config holds configuration for backend creation
type Config struct {
	Type BackendType

	// SQLite specific
	SQLiteDBPath string

	// AMQP change feed, optional
	AMQPURL      string
	AMQPExchange string
	AMQPQueue    string
}

// MirrorConfig selects where the worker mirrors entries.
type MirrorConfig struct {
	Type                     MirrorType
	GoogleSpreadsheetID      string
	GoogleSheetName          string
	GoogleServiceAccountJSON string
	GoogleServiceAccountFile string
}

// BackendType represents the type of backend
type BackendType string

const (
	SQLiteBackend BackendType = "sqlite"
	MemoryBackend BackendType = "memory"
)

// String implements fmt.Stringer
func (bt BackendType) String() string {
	return string(bt)
}

// IsValid returns true if the backend type is valid
func (bt BackendType) IsValid() bool {
	switch bt {
	case SQLiteBackend, MemoryBackend:
		return true
	default:
		return false
	}
}

// MirrorType names a spreadsheet mirror implementation.
type MirrorType string

const (
	SheetsMirror MirrorType = "sheets"
	MemoryMirror MirrorType = "memory"
)

func (mt MirrorType) IsValid() bool {
	return mt == SheetsMirror || mt == MemoryMirror
}
