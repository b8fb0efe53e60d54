package pipeline

import (
	"fmt"

	"github.com/mrjoshuak/go-tomostack/volume"
)

// TimeSeriesStep is one snapshot of a time-varying dataset. The type tag
// and tilt angles travel inside the volume's field data, so no metadata
// is duplicated per step.
type TimeSeriesStep struct {
	Volume *volume.Volume
	Label  string
}

// TimeSeriesStore is an ordered sequence of steps with a current-index
// pointer. An empty store has index 0.
type TimeSeriesStore struct {
	steps   []TimeSeriesStep
	current int
}

// NumSteps returns the number of steps.
func (s *TimeSeriesStore) NumSteps() int { return len(s.steps) }

// Current returns the current step index.
func (s *TimeSeriesStore) Current() int { return s.current }

// Step returns the i'th step.
func (s *TimeSeriesStore) Step(i int) TimeSeriesStep { return s.steps[i] }

// Valid reports whether i addresses an existing step.
func (s *TimeSeriesStore) Valid(i int) bool {
	return i >= 0 && i < len(s.steps)
}

// Append adds a step to the end of the sequence.
func (s *TimeSeriesStore) Append(step TimeSeriesStep) {
	s.steps = append(s.steps, step)
}

// Set replaces the whole sequence, clamping the current index into the
// new range.
func (s *TimeSeriesStore) Set(steps []TimeSeriesStep) {
	s.steps = steps
	if s.current >= len(steps) {
		s.current = 0
	}
}

// Clear drops every step and resets the index to 0.
func (s *TimeSeriesStore) Clear() {
	s.steps = nil
	s.current = 0
}

// Switch moves the current index. Out-of-range indices are rejected and
// the store is left unchanged.
func (s *TimeSeriesStore) Switch(i int) error {
	if !s.Valid(i) {
		return fmt.Errorf("%w: time series step %d of %d",
			ErrIndexOutOfRange, i, len(s.steps))
	}
	s.current = i
	return nil
}
