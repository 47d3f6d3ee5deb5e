package msckf

import (
	"github.com/milosgajdos/go-vio/matrix"
	"gonum.org/v1/gonum/mat"
	"gonum.org/v1/gonum/stat/distuv"
)

// DefaultGateConfidence is the default chi-square gate confidence
const DefaultGateConfidence = 0.95

// ChiSquareGate rejects measurements whose Mahalanobis distance exceeds the
// chi-square distribution quantile at Confidence
type ChiSquareGate struct {
	// Confidence is chi-square quantile probability. DefaultGateConfidence is used if zero.
	Confidence float64
}

// Accept returns true if residual r with Jacobian h passes the chi-square test
// given covariance p and isotropic measurement noise sigma.
func (g *ChiSquareGate) Accept(r mat.Vector, h mat.Matrix, p mat.Symmetric, sigma float64) bool {
	gamma, ok := Mahalanobis(r, h, p, sigma)
	if !ok {
		return false
	}

	return gamma <= g.Threshold(r.Len())
}

// Threshold returns chi-square quantile with dof degrees of freedom.
func (g *ChiSquareGate) Threshold(dof int) float64 {
	c := g.Confidence
	if c <= 0 || c >= 1 {
		c = DefaultGateConfidence
	}

	return distuv.ChiSquared{K: float64(dof)}.Quantile(c)
}

// Mahalanobis returns squared Mahalanobis distance of residual r given its
// Jacobian h, covariance p and isotropic measurement noise sigma:
//
//	r' * (h*p*h' + sigma^2*I)^-1 * r
//
// It returns false if the innovation covariance can not be factorized.
func Mahalanobis(r mat.Vector, h mat.Matrix, p mat.Symmetric, sigma float64) (float64, bool) {
	m := r.Len()

	pht := &mat.Dense{}
	pht.Mul(p, h.T())

	s := &mat.Dense{}
	s.Mul(h, pht)

	sym := &mat.SymDense{}
	matrix.Symmetrize(sym, s)
	for i := 0; i < m; i++ {
		sym.SetSym(i, i, sym.At(i, i)+sigma*sigma)
	}

	var chol mat.Cholesky
	if ok := chol.Factorize(sym); !ok {
		return 0, false
	}

	x := &mat.VecDense{}
	if err := chol.SolveVecTo(x, r); err != nil {
		return 0, false
	}

	return mat.Dot(r, x), true
}
