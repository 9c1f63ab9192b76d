package cycling

import "errors"

var (
	ErrEmptySeries         = errors.New("channel series has no cycle records")
	ErrInvalidCycleIndex   = errors.New("cycle index must be at least 1")
	ErrNonIncreasingCycles = errors.New("cycle indices must be strictly increasing")
	ErrMissingChannelID    = errors.New("channel series has no identifier")
	ErrDuplicateChannel    = errors.New("duplicate channel in batch")
)
