package storage

import "errors"

// ErrNotFound is returned when a requested entity does not exist.
var ErrNotFound = errors.New("storage: not found")

// ErrDecisionConflict is returned when a decision write loses the race:
// the recommendation exists but has already left the pending state.
var ErrDecisionConflict = errors.New("storage: decision already recorded")
