package dataset

import (
	"errors"
	"fmt"
)

var (
	// ErrNoDataset is returned when an operation needs an active dataset and none is loaded.
	ErrNoDataset = errors.New("no dataset loaded")
	// ErrIdentityMismatch is returned when a request names a dataset other than the active one.
	ErrIdentityMismatch = errors.New("not the active dataset")
	// ErrTimeOutOfRange is wrapped by RangeError.
	ErrTimeOutOfRange = errors.New("time index out of range")
	// ErrStaleGeneration is returned when a write targets a dataset that has been replaced.
	ErrStaleGeneration = errors.New("dataset generation is no longer active")
)

// RangeError reports a time index outside [0, Count).
type RangeError struct {
	Index int
	Count int
}

func (e *RangeError) Error() string {
	return fmt.Sprintf("time index %d out of range [0, %d)", e.Index, e.Count)
}

func (e *RangeError) Unwrap() error { return ErrTimeOutOfRange }

// MismatchError carries both identities of a rejected request.
type MismatchError struct {
	Requested Identity
	Active    Identity
}

func (e *MismatchError) Error() string {
	if e.Active.IsZero() {
		return fmt.Sprintf("%s: %v (nothing loaded)", e.Requested, ErrIdentityMismatch)
	}
	return fmt.Sprintf("%s: %v (active is %s)", e.Requested, ErrIdentityMismatch, e.Active)
}

func (e *MismatchError) Unwrap() error { return ErrIdentityMismatch }
