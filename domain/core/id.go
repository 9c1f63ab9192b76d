package core

import (
	"fmt"
	"strings"

	"github.com/google/uuid"
)

// ID is a time-ordered identifier.
type ID string

// NewID returns a UUIDv7 identifier, falling back to v4.
func NewID() ID {
	id, err := uuid.NewV7()
	if err != nil {
		id = uuid.New()
	}
	return ID(id.String())
}

func (id ID) String() string { return string(id) }

// IsEmpty reports whether the ID is unset.
func (id ID) IsEmpty() bool { return id == "" }

// RunID identifies one analysis run over a set of batches.
type RunID ID

// NewRunID returns a fresh run identifier.
func NewRunID() RunID { return RunID(NewID()) }

func (id RunID) String() string { return ID(id).String() }

// ParseRunID validates a run identifier received from outside.
func ParseRunID(s string) (RunID, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return "", fmt.Errorf("run ID cannot be empty")
	}
	if _, err := uuid.Parse(s); err != nil {
		return "", fmt.Errorf("run ID %q is not a UUID: %w", s, err)
	}
	return RunID(s), nil
}
