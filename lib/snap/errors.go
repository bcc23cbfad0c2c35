package snap

import (
	"errors"
	"fmt"
)

// ErrEmptyChain is returned by operations that need a head when the chain has none.
var ErrEmptyChain = errors.New("snap: chain is empty")

// InvalidValueError is returned when a slot is constructed or refreshed without a value.
type InvalidValueError struct {
	Gen int64 // generation of the slot that was rejected
}

func (e *InvalidValueError) Error() string {
	return fmt.Sprintf("snap: slot at generation %d needs a value", e.Gen)
}

// GenerationOrderError is returned when a new slot would not be strictly newer than the
// slot it links to.
type GenerationOrderError struct {
	Gen     int64 // generation of the new slot
	NextGen int64 // generation of the linked slot
}

func (e *GenerationOrderError) Error() string {
	return fmt.Sprintf("snap: generation %d must be greater than next generation %d", e.Gen, e.NextGen)
}

// StaleGenerationError is returned by Head.Publish when the head already carries the
// same or a newer generation.
type StaleGenerationError struct {
	Gen     int64 // generation that was published
	HeadGen int64 // generation of the head at the time of the attempt
}

func (e *StaleGenerationError) Error() string {
	return fmt.Sprintf("snap: stale generation %d (head is at %d)", e.Gen, e.HeadGen)
}
