package msckf

import (
	"github.com/milosgajdos/go-vio/matrix"
	"github.com/pkg/errors"
	"gonum.org/v1/gonum/mat"
)

// compress reduces measurement Jacobian h with more rows than columns to its
// square upper triangular QR factor and rotates residual r accordingly.
func compress(r *mat.VecDense, h *mat.Dense) (*mat.VecDense, *mat.Dense) {
	rows, cols := h.Dims()
	if rows <= cols {
		return r, h
	}

	var qr mat.QR
	qr.Factorize(h)

	rq := &mat.Dense{}
	qr.RTo(rq)

	q := &mat.Dense{}
	qr.QTo(q)

	th := mat.DenseCopyOf(rq.Slice(0, cols, 0, cols))

	rn := mat.NewVecDense(cols, nil)
	rn.MulVec(q.Slice(0, rows, 0, cols).T(), r)

	return rn, th
}

// correct runs Kalman correction with stacked residual r and Jacobian h and
// applies the resulting error state to the nominal state.
func (k *MSCKF) correct(r *mat.VecDense, h *mat.Dense) error {
	n := k.p.Dim()
	if _, c := h.Dims(); c != n {
		return errors.Errorf("invalid jacobian columns: %d != %d", c, n)
	}

	r, h = compress(r, h)
	m, _ := h.Dims()

	p := k.p.Sym()
	r2 := k.sigma * k.sigma

	// P*H'
	pht := &mat.Dense{}
	pht.Mul(p, h.T())

	// S = H*P*H' + R
	s := &mat.Dense{}
	s.Mul(h, pht)
	for i := 0; i < m; i++ {
		s.Set(i, i, s.At(i, i)+r2)
	}

	sInv := &mat.Dense{}
	if err := sInv.Inverse(s); err != nil {
		return errors.Wrap(err, "innovation covariance inverse")
	}

	// K = P*H'*S^-1
	gain := &mat.Dense{}
	gain.Mul(pht, sInv)

	// Joseph form: (I-K*H)*P*(I-K*H)' + K*R*K'
	ikh := matrix.Eye(n)
	kh := &mat.Dense{}
	kh.Mul(gain, h)
	ikh.Sub(ikh, kh)

	cov := &mat.Dense{}
	cov.Product(ikh, p, ikh.T())

	krk := &mat.Dense{}
	krk.Mul(gain, gain.T())
	krk.Scale(r2, krk)
	cov.Add(cov, krk)

	sym := &mat.SymDense{}
	matrix.Symmetrize(sym, cov)

	dx := mat.NewVecDense(n, nil)
	dx.MulVec(gain, r)

	if !finite(dx.RawVector().Data...) {
		return errors.New("non-finite state correction")
	}

	if err := k.p.Set(sym); err != nil {
		return err
	}

	return k.x.Correct(dx)
}
