package noise

import (
	"fmt"

	"github.com/pkg/errors"
	"gonum.org/v1/gonum/mat"
)

// Zero is zero noise i.e. no noise
type Zero struct {
	// mean stores zero mean values
	mean []float64
	// cov is zero covariance matrix
	cov *mat.SymDense
}

// NewZero creates new zero noise i.e. zero mean and zero covariance.
// It returns error if size is not positive.
func NewZero(size int) (*Zero, error) {
	if size <= 0 {
		return nil, errors.Errorf("invalid noise dimension: %d", size)
	}

	return &Zero{
		mean: make([]float64, size),
		cov:  mat.NewSymDense(size, nil),
	}, nil
}

// Sample returns a vector of zeros.
func (e *Zero) Sample() mat.Vector {
	return mat.NewVecDense(len(e.mean), nil)
}

// Cov returns zero covariance matrix.
func (e *Zero) Cov() mat.Symmetric {
	cov := mat.NewSymDense(e.cov.SymmetricDim(), nil)
	cov.CopySym(e.cov)

	return cov
}

// Mean returns Zero mean.
func (e *Zero) Mean() []float64 {
	mean := make([]float64, len(e.mean))
	copy(mean, e.mean)

	return mean
}

// Reset does nothing: zero noise has no state.
func (e *Zero) Reset() error { return nil }

// String implements the Stringer interface.
func (e *Zero) String() string {
	return fmt.Sprintf("Zero{\nMean=%v\nCov=%v\n}", e.Mean(), mat.Formatted(e.Cov(), mat.Prefix("    "), mat.Squeeze()))
}
