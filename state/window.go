package state

import (
	"github.com/pkg/errors"
)

var (
	// ErrWindowFull is returned when appending a pose to a full window
	ErrWindowFull = errors.New("sliding window is full")
	// ErrSlotIndex is returned when accessing a pose slot which does not exist
	ErrSlotIndex = errors.New("invalid slot index")
)

// Window is a bounded sliding window of historical poses.
// Pose slots live in the underlying nominal state vector.
type Window struct {
	x   *Nominal
	cap int
}

// NewWindow creates new sliding window over the pose slots of x.
// It returns error if capacity is not positive or x already holds more slots.
func NewWindow(x *Nominal, capacity int) (*Window, error) {
	if x == nil {
		return nil, errors.New("nil nominal state")
	}

	if capacity <= 0 {
		return nil, errors.Errorf("invalid window capacity: %d", capacity)
	}

	if x.Slots() > capacity {
		return nil, errors.Errorf("state holds %d slots, capacity %d", x.Slots(), capacity)
	}

	return &Window{x: x, cap: capacity}, nil
}

// Len returns the number of poses in the window.
func (w *Window) Len() int {
	return w.x.Slots()
}

// Cap returns window capacity.
func (w *Window) Cap() int {
	return w.cap
}

// Full returns true if the window holds Cap poses.
func (w *Window) Full() bool {
	return w.Len() >= w.cap
}

// Append appends s as the newest pose.
func (w *Window) Append(s SlideState) error {
	if w.Full() {
		return ErrWindowFull
	}

	w.x.appendSlot(s)

	return nil
}

// RemoveAt removes i-th pose. Newer poses shift one index down.
func (w *Window) RemoveAt(i int) error {
	if i < 0 || i >= w.Len() {
		return errors.Wrapf(ErrSlotIndex, "remove %d of %d", i, w.Len())
	}

	w.x.removeSlot(i)

	return nil
}

// At returns i-th pose.
func (w *Window) At(i int) (SlideState, error) {
	if i < 0 || i >= w.Len() {
		return SlideState{}, errors.Wrapf(ErrSlotIndex, "at %d of %d", i, w.Len())
	}

	return w.x.Slot(i), nil
}

// Set overwrites i-th pose.
func (w *Window) Set(i int, s SlideState) error {
	if i < 0 || i >= w.Len() {
		return errors.Wrapf(ErrSlotIndex, "set %d of %d", i, w.Len())
	}

	w.x.setSlot(i, s)

	return nil
}

// States returns all poses, oldest first.
func (w *Window) States() []SlideState {
	states := make([]SlideState, w.Len())
	for i := range states {
		states[i] = w.x.Slot(i)
	}

	return states
}
