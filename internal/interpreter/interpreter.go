// Package interpreter derives per-trial memory labels from a stimulus stream
// and its reference flags.
package interpreter

import (
	"errors"
	"fmt"
)

var (
	// ErrEmpty is returned for zero-length input.
	ErrEmpty = errors.New("empty stimulus stream")

	// ErrLengthMismatch is returned when the two streams differ in length.
	ErrLengthMismatch = errors.New("stimulus and reference streams differ in length")

	// ErrNotReferenceStart is returned when the first trial is not a reference trial.
	ErrNotReferenceStart = errors.New("first trial must be a reference trial")
)

// Result holds the labels derived for each trial, aligned with the input.
type Result struct {
	// IsSame[i] reports whether stimulus i matched the memory content held
	// before trial i. IsSame[0] is always false.
	IsSame []bool `json:"is_same"`

	// InMem[i] is the memory content before trial i's update.
	InMem []int `json:"in_mem"`
}

// Interpret runs the memory register over the streams. The register is
// loaded from the first stimulus and reloaded on every reference trial,
// after that trial has been compared against the previous content.
func Interpret(stims []int, refs []bool) (Result, error) {
	if len(stims) == 0 {
		return Result{}, ErrEmpty
	}
	if len(stims) != len(refs) {
		return Result{}, fmt.Errorf("%w: %d stimuli, %d flags", ErrLengthMismatch, len(stims), len(refs))
	}
	if !refs[0] {
		return Result{}, ErrNotReferenceStart
	}

	n := len(stims)
	res := Result{
		IsSame: make([]bool, n),
		InMem:  make([]int, n),
	}

	memory := stims[0]
	res.InMem[0] = memory
	for i := 1; i < n; i++ {
		res.InMem[i] = memory
		res.IsSame[i] = memory == stims[i]
		if refs[i] {
			memory = stims[i]
		}
	}

	return res, nil
}
