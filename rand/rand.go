// Package rand draws correlated random samples used to perturb filter states.
package rand

import (
	"math"

	"github.com/pkg/errors"
	"golang.org/x/exp/rand"
	"gonum.org/v1/gonum/mat"
)

// WithCovN draws n random samples from a zero-mean Normal distribution with covariance cov.
// It returns a matrix which contains the generated samples stored in its columns.
// Samples are drawn from src, or from the global source if src is nil.
// It fails with error if n is non-positive or if SVD factorization of cov fails.
func WithCovN(cov mat.Symmetric, n int, src rand.Source) (*mat.Dense, error) {
	if n <= 0 {
		return nil, errors.Errorf("invalid number of samples requested: %d", n)
	}

	// SVD copes with (almost) singular covariances where Cholesky does not
	var svd mat.SVD
	if ok := svd.Factorize(cov, mat.SVDFull); !ok {
		return nil, errors.New("SVD factorization failed")
	}

	U := new(mat.Dense)
	svd.UTo(U)
	vals := svd.Values(nil)
	for i := range vals {
		vals[i] = math.Sqrt(vals[i])
	}
	U.Mul(U, mat.NewDiagDense(len(vals), vals))

	norm := rand.NormFloat64
	if src != nil {
		norm = rand.New(src).NormFloat64
	}

	rows := cov.SymmetricDim()
	data := make([]float64, rows*n)
	for i := range data {
		data[i] = norm()
	}
	samples := mat.NewDense(rows, n, data)
	samples.Mul(U, samples)

	return samples, nil
}

// Perturbation draws a single zero-mean sample with covariance cov.
func Perturbation(cov mat.Symmetric, src rand.Source) (*mat.VecDense, error) {
	s, err := WithCovN(cov, 1, src)
	if err != nil {
		return nil, err
	}

	return mat.VecDenseCopyOf(s.ColView(0)), nil
}
