// Package estimate provides immutable snapshots of visual-inertial filter estimates.
package estimate

import (
	"fmt"
	"math"

	"github.com/milosgajdos/go-vio/matrix"
	"github.com/milosgajdos/go-vio/state"
	"github.com/pkg/errors"
	"gonum.org/v1/gonum/mat"
)

// State is a snapshot of visual-inertial filter state
type State struct {
	// val is the nominal state vector
	val *mat.VecDense
	// cov is the error state covariance
	cov *mat.SymDense
	// slots is the number of pose slots
	slots int
}

// New returns new state estimate given the nominal state val, the error
// covariance cov and the number of pose slots both of them hold.
// It returns error if val and cov dimensions do not match the slot count.
func New(val mat.Vector, cov mat.Symmetric, slots int) (*State, error) {
	if val == nil || cov == nil {
		return nil, errors.New("nil estimate value or covariance")
	}

	if slots < 0 {
		return nil, errors.Errorf("invalid slot count: %d", slots)
	}

	if val.Len() != state.NominalDim(slots) {
		return nil, errors.Errorf("invalid value dimension: %d != %d", val.Len(), state.NominalDim(slots))
	}

	if cov.SymmetricDim() != state.ErrorDim(slots) {
		return nil, errors.Errorf("invalid covariance dimension: %d != %d", cov.SymmetricDim(), state.ErrorDim(slots))
	}

	v := &mat.VecDense{}
	v.CloneFromVec(val)

	c := mat.NewSymDense(cov.SymmetricDim(), nil)
	c.CopySym(cov)

	return &State{
		val:   v,
		cov:   c,
		slots: slots,
	}, nil
}

// Val returns nominal state vector
func (s *State) Val() mat.Vector {
	v := &mat.VecDense{}
	v.CloneFromVec(s.val)

	return v
}

// Cov returns error state covariance
func (s *State) Cov() mat.Symmetric {
	cov := mat.NewSymDense(s.cov.SymmetricDim(), nil)
	cov.CopySym(s.cov)

	return cov
}

// Slots returns the number of pose slots
func (s *State) Slots() int {
	return s.slots
}

// StdDev returns standard deviations of the error state.
func (s *State) StdDev() []float64 {
	n := s.cov.SymmetricDim()
	sd := make([]float64, n)
	for i := range sd {
		sd[i] = math.Sqrt(s.cov.At(i, i))
	}

	return sd
}

// String implements the Stringer interface.
func (s *State) String() string {
	return fmt.Sprintf("State{\nSlots=%d\nVal=%v\nCov=%v\n}", s.slots, matrix.Format(s.val), matrix.Format(s.cov))
}
