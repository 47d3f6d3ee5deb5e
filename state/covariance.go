package state

import (
	"github.com/milosgajdos/go-vio/matrix"
	"github.com/pkg/errors"
	"gonum.org/v1/gonum/mat"
)

// Covariance is the error state covariance. Its dimension always matches
// ErrorDim of the number of pose slots it tracks.
type Covariance struct {
	cov   *mat.SymDense
	spare *mat.SymDense
}

// NewCovariance creates new covariance for an error state with no pose slots.
// If p0 is nil the covariance is initialized to identity.
func NewCovariance(p0 mat.Symmetric) (*Covariance, error) {
	n := ErrorDim(0)

	cov := mat.NewSymDense(n, nil)
	if p0 == nil {
		for i := 0; i < n; i++ {
			cov.SetSym(i, i, 1.0)
		}
	} else {
		if p0.SymmetricDim() != n {
			return nil, errors.Errorf("invalid initial covariance dimension: %d != %d", p0.SymmetricDim(), n)
		}
		cov.CopySym(p0)
	}

	return &Covariance{cov: cov, spare: &mat.SymDense{}}, nil
}

// Dim returns covariance dimension.
func (c *Covariance) Dim() int {
	return c.cov.SymmetricDim()
}

// Slots returns the number of pose slots the covariance tracks.
func (c *Covariance) Slots() int {
	return (c.Dim() - ErrorDim(0)) / PoseErrorSize
}

// Sym returns the covariance matrix. The returned matrix must not be modified.
func (c *Covariance) Sym() *mat.SymDense {
	return c.cov
}

// Set overwrites the covariance with p.
func (c *Covariance) Set(p mat.Symmetric) error {
	if p.SymmetricDim() != c.Dim() {
		return errors.Errorf("invalid covariance dimension: %d != %d", p.SymmetricDim(), c.Dim())
	}

	c.cov.CopySym(p)

	return nil
}

// Propagate maps the IMU error block through the transition matrix phi and
// adds process noise q:
//
//	P_II = phi*(P_II + 0.5*dt*q)*phi' + q
//	P_IX = phi*P_IX
//
// where X are all error states following the IMU block.
func (c *Covariance) Propagate(phi, q mat.Matrix, dt float64) error {
	if r, cc := phi.Dims(); r != BaseErrorSize || cc != BaseErrorSize {
		return errors.Errorf("invalid transition matrix dimensions: %d x %d", r, cc)
	}

	if r, cc := q.Dims(); r != BaseErrorSize || cc != BaseErrorSize {
		return errors.Errorf("invalid process noise dimensions: %d x %d", r, cc)
	}

	n := c.Dim()
	b := BaseErrorSize

	pii := mat.NewDense(b, b, nil)
	for i := 0; i < b; i++ {
		for j := 0; j < b; j++ {
			pii.Set(i, j, c.cov.At(i, j))
		}
	}

	m := &mat.Dense{}
	m.Scale(0.5*dt, q)
	m.Add(m, pii)

	pn := &mat.Dense{}
	pn.Product(phi, m, phi.T())
	pn.Add(pn, q)

	sym := &mat.SymDense{}
	matrix.Symmetrize(sym, pn)

	for i := 0; i < b; i++ {
		for j := i; j < b; j++ {
			c.cov.SetSym(i, j, sym.At(i, j))
		}
	}

	if n == b {
		return nil
	}

	pix := mat.NewDense(b, n-b, nil)
	for i := 0; i < b; i++ {
		for j := b; j < n; j++ {
			pix.Set(i, j-b, c.cov.At(i, j))
		}
	}

	pn.Reset()
	pn.Mul(phi, pix)

	for i := 0; i < b; i++ {
		for j := b; j < n; j++ {
			c.cov.SetSym(i, j, pn.At(i, j-b))
		}
	}

	return nil
}

// Augment appends a new pose slot whose error is the current IMU attitude,
// position and velocity error. The new rows and columns duplicate the
// first PoseErrorSize rows and columns of the covariance.
func (c *Covariance) Augment() {
	n := c.Dim()
	src := func(i int) int {
		if i >= n {
			return i - n
		}
		return i
	}

	c.resize(n+PoseErrorSize, func(i, j int) float64 {
		return c.cov.At(src(i), src(j))
	})
}

// RemoveSlot removes rows and columns of i-th pose slot.
func (c *Covariance) RemoveSlot(i int) error {
	if i < 0 || i >= c.Slots() {
		return errors.Wrapf(ErrSlotIndex, "remove covariance slot %d of %d", i, c.Slots())
	}

	off := ErrorSlotOffset(i)
	src := func(k int) int {
		if k >= off {
			return k + PoseErrorSize
		}
		return k
	}

	c.resize(c.Dim()-PoseErrorSize, func(r, s int) float64 {
		return c.cov.At(src(r), src(s))
	})

	return nil
}

// resize fills spare buffer of dimension n with values returned by at and swaps it in.
func (c *Covariance) resize(n int, at func(i, j int) float64) {
	c.spare.Reset()
	c.spare.ReuseAsSym(n)

	for i := 0; i < n; i++ {
		for j := i; j < n; j++ {
			c.spare.SetSym(i, j, at(i, j))
		}
	}

	c.cov, c.spare = c.spare, c.cov
}
