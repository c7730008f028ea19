// Package tracking follows templates through a sequence of frames. Each frame starts from a
// position extrapolated from the target's history, refines it with enhanced correlation
// alignment and retries from randomly perturbed guesses when the alignment degenerates.
package tracking

import (
	"encoding/json"

	"github.com/pkg/errors"

	"go.viam.com/markertrack/rimage"
)

// History is the sequence of accepted motions of one target, indexed by frame.
type History struct {
	motions []rimage.Motion
}

// NewHistory returns a history holding the given motions.
func NewHistory(motions ...rimage.Motion) *History {
	return &History{motions: append([]rimage.Motion(nil), motions...)}
}

// Len is the number of recorded frames.
func (h *History) Len() int {
	return len(h.motions)
}

// At returns the motion recorded for frame t.
func (h *History) At(t int) rimage.Motion {
	return h.motions[t]
}

// Set records the motion of frame t. Recorded frames are never rewritten, so t must be the next
// frame.
func (h *History) Set(t int, m rimage.Motion) error {
	if t != len(h.motions) {
		return errors.Errorf("cannot set frame %d of a history with %d frames, only frame %d can be added",
			t, len(h.motions), len(h.motions))
	}
	h.motions = append(h.motions, m)
	return nil
}

// Motions returns a copy of the recorded motions.
func (h *History) Motions() []rimage.Motion {
	return append([]rimage.Motion(nil), h.motions...)
}

// MarshalJSON encodes the history as a list of motions.
func (h *History) MarshalJSON() ([]byte, error) {
	if h.motions == nil {
		return []byte("[]"), nil
	}
	return json.Marshal(h.motions)
}

// UnmarshalJSON decodes a list of motions.
func (h *History) UnmarshalJSON(data []byte) error {
	return json.Unmarshal(data, &h.motions)
}

// Predict returns the initial guess for frame t. Frames 0 and 1 start from the last known
// position (seed for frame 0), frame 2 extrapolates linearly and later frames quadratically from
// the three previous frames. Rotation is always carried over from the previous frame.
func Predict(h *History, t int, seed rimage.Motion) rimage.Motion {
	if t <= 0 || h == nil || h.Len() == 0 {
		return seed
	}
	if t > h.Len() {
		t = h.Len()
	}
	prev := h.At(t - 1)
	switch {
	case t == 1:
		return prev
	case t == 2:
		first := h.At(0)
		return rimage.Motion{
			X:      2*prev.X - first.X,
			Y:      2*prev.Y - first.Y,
			RotDeg: prev.RotDeg,
		}
	default:
		p2, p3 := h.At(t-2), h.At(t-3)
		return rimage.Motion{
			X:      3*prev.X - 3*p2.X + p3.X,
			Y:      3*prev.Y - 3*p2.Y + p3.Y,
			RotDeg: prev.RotDeg,
		}
	}
}
