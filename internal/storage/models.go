package storage

import (
	"errors"
	"time"
)

// ErrNotFound is returned when a requested record does not exist.
var ErrNotFound = errors.New("not found")

// Scan is one audit entry of a document scan: what was extracted, what the
// merge produced, and which lookup keys resolved.
type Scan struct {
	ID            string
	CreatedAt     time.Time
	Collection    string
	SourceType    string // "image" or "pdf"
	ExtractedJSON string
	MergedJSON    string
	ResolvedKeys  string // JSON array stored as text
	Status        string // "completed" or "failed"
	Error         string
}
