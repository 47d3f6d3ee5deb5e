// Package noise provides sensor noise sources.
package noise

import (
	"fmt"
	"time"

	vio "github.com/milosgajdos/go-vio"
	"github.com/pkg/errors"
	"golang.org/x/exp/rand"
	"gonum.org/v1/gonum/mat"
	"gonum.org/v1/gonum/stat/distmv"
)

// Gaussian is gaussian noise
type Gaussian struct {
	// dist is a multivariate normal distribution
	dist *distmv.Normal
	// mean is Gaussian mean
	mean []float64
	// cov is Gaussian covariance
	cov *mat.SymDense
	// seed seeds the random source; zero seeds it from time
	seed uint64
}

// NewGaussian creates new Gaussian noise with given mean and covariance.
// Its random source is seeded from the current time.
// It returns error if it fails to create Gaussian.
func NewGaussian(mean []float64, cov mat.Symmetric) (*Gaussian, error) {
	return NewGaussianWithSeed(mean, cov, 0)
}

// NewGaussianWithSeed creates new Gaussian noise with given mean and covariance
// whose samples are reproducible for a given non-zero seed.
// It returns error if mean and cov dimensions differ or cov is not positive definite.
func NewGaussianWithSeed(mean []float64, cov mat.Symmetric, seed uint64) (*Gaussian, error) {
	if cov == nil || len(mean) != cov.SymmetricDim() {
		return nil, errors.Errorf("invalid gaussian dimensions: mean %d", len(mean))
	}

	m := make([]float64, len(mean))
	copy(m, mean)

	c := mat.NewSymDense(cov.SymmetricDim(), nil)
	c.CopySym(cov)

	g := &Gaussian{
		mean: m,
		cov:  c,
		seed: seed,
	}

	if err := g.Reset(); err != nil {
		return nil, err
	}

	return g, nil
}

// NewIsotropic creates noise of given size with zero mean and standard deviation sd
// along every dimension. It returns Zero noise if sd is zero.
// It returns error if size is not positive or sd is negative.
func NewIsotropic(size int, sd float64, seed uint64) (vio.Noise, error) {
	if size <= 0 {
		return nil, errors.Errorf("invalid noise dimension: %d", size)
	}

	if sd < 0 {
		return nil, errors.Errorf("invalid standard deviation: %g", sd)
	}

	if sd == 0 {
		return NewZero(size)
	}

	cov := mat.NewSymDense(size, nil)
	for i := 0; i < size; i++ {
		cov.SetSym(i, i, sd*sd)
	}

	g, err := NewGaussianWithSeed(make([]float64, size), cov, seed)
	if err != nil {
		return nil, err
	}

	return g, nil
}

// Sample generates a sample from Gaussian noise and returns it.
func (g *Gaussian) Sample() mat.Vector {
	r := g.dist.Rand(nil)
	return mat.NewVecDense(len(r), r)
}

// Cov returns covariance matrix of Gaussian noise.
func (g *Gaussian) Cov() mat.Symmetric {
	cov := mat.NewSymDense(g.cov.SymmetricDim(), nil)
	cov.CopySym(g.cov)

	return cov
}

// Mean returns Gaussian mean.
func (g *Gaussian) Mean() []float64 {
	mean := make([]float64, len(g.mean))
	copy(mean, g.mean)

	return mean
}

// Reset resets Gaussian noise: a seeded Gaussian restarts its sample sequence.
// It returns error if it fails to reset the noise.
func (g *Gaussian) Reset() error {
	seed := g.seed
	if seed == 0 {
		seed = uint64(time.Now().UnixNano())
	}

	dist, ok := distmv.NewNormal(g.mean, g.cov, rand.New(rand.NewSource(seed)))
	if !ok {
		return errors.New("covariance is not positive definite")
	}
	g.dist = dist

	return nil
}

// String implements the Stringer interface.
func (g *Gaussian) String() string {
	return fmt.Sprintf("Gaussian{\nMean=%v\nCov=%v\n}", g.mean, mat.Formatted(g.cov, mat.Prefix("    "), mat.Squeeze()))
}
