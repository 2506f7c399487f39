package database

import "errors"

// ErrVersionConflict is returned when a compare-and-swap write finds the row
// changed since it was read
var ErrVersionConflict = errors.New("row version conflict")
