package msckf

import (
	"math"

	"github.com/golang/geo/r3"
	vio "github.com/milosgajdos/go-vio"
	"github.com/milosgajdos/go-vio/camera"
	"github.com/milosgajdos/go-vio/feature"
	"github.com/milosgajdos/go-vio/matrix"
	"github.com/milosgajdos/go-vio/rotation"
	"github.com/milosgajdos/go-vio/state"
	"github.com/pkg/errors"
	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/mat"
)

// measurement is a feature measurement with the feature position marginalized out
type measurement struct {
	// r is residual
	r *mat.VecDense
	// h is residual Jacobian w.r.t. the error state
	h *mat.Dense
	// rows is the number of residual rows
	rows int
}

// batch is append-only buffer of measurements stacked into a single update
type batch struct {
	ms   []measurement
	rows int
}

// Add appends m to the batch.
func (b *batch) Add(m measurement) {
	b.ms = append(b.ms, m)
	b.rows += m.rows
}

// Reset empties the batch keeping its capacity.
func (b *batch) Reset() {
	b.ms = b.ms[:0]
	b.rows = 0
}

// Len returns the number of measurements in the batch.
func (b *batch) Len() int {
	return len(b.ms)
}

// Rows returns the number of stacked rows.
func (b *batch) Rows() int {
	return b.rows
}

// Stack concatenates all measurements into a single residual and Jacobian
// with cols columns.
func (b *batch) Stack(cols int) (*mat.VecDense, *mat.Dense) {
	r := mat.NewVecDense(b.rows, nil)
	h := mat.NewDense(b.rows, cols, nil)

	row := 0
	for _, m := range b.ms {
		r.SliceVec(row, row+m.rows).(*mat.VecDense).CopyVec(m.r)
		matrix.SetBlock(h, row, 0, m.h)
		row += m.rows
	}

	return r, h
}

// measure triangulates feature track rec and returns its measurement
// with the feature position projected out.
func (k *MSCKF) measure(rec *feature.Record) (measurement, *camera.Triangulation, error) {
	n := len(rec.Points)

	slides := make([]state.SlideState, n)
	poses := make([]vio.Pose, n)
	for j := range slides {
		s, err := k.w.At(rec.Start + j)
		if err != nil {
			return measurement{}, nil, err
		}
		slides[j] = s
		poses[j] = k.cameraPose(s)
	}

	tri, err := k.cam.Solve(rec.Points, poses)
	if err != nil {
		return measurement{}, nil, err
	}

	r, hx, hf, err := k.jacobians(rec, slides, tri.Point)
	if err != nil {
		return measurement{}, tri, err
	}

	m, err := project(r, hx, hf)
	if err != nil {
		return measurement{}, tri, err
	}

	return m, tri, nil
}

// jacobians returns the stacked residual of track rec observed from poses slides
// given triangulated point f along with residual Jacobians w.r.t. the error state
// and w.r.t. the feature position.
func (k *MSCKF) jacobians(rec *feature.Record, slides []state.SlideState, f r3.Vector) (*mat.VecDense, *mat.Dense, *mat.Dense, error) {
	n := len(slides)
	dim := k.p.Dim()
	pcb := k.x.CameraOffset()

	r := mat.NewVecDense(2*n, nil)
	hx := mat.NewDense(2*n, dim, nil)
	hf := mat.NewDense(2*n, 3, nil)

	rcw := &mat.Dense{}
	jr := &mat.Dense{}
	jtheta := &mat.Dense{}

	for j, s := range slides {
		rcw.Reset()
		rcw.Mul(k.rcb, rotation.Matrix(s.Q).T())

		d := f.Sub(s.P)
		fc := matrix.MulVec3(rcw, d).Add(pcb)
		if fc.Z <= 0 || !finiteVec(fc) {
			return nil, nil, nil, errors.Wrapf(camera.ErrDegenerate, "feature %d behind camera %d", rec.ID, rec.Start+j)
		}

		z := k.cam.Project(fc)
		obs := rec.Points[j]
		r.SetVec(2*j, obs.X-z.X)
		r.SetVec(2*j+1, obs.Y-z.Y)

		jh := k.cam.Jacobian(fc)

		jr.Reset()
		jr.Mul(jh, rcw)
		matrix.SetBlock(hf, 2*j, 0, jr)

		off := state.ErrorSlotOffset(rec.Start + j)

		jtheta.Reset()
		jtheta.Mul(jr, matrix.Skew(d))
		matrix.SetBlock(hx, 2*j, off+state.ErrAttitude, jtheta)

		jr.Scale(-1, jr)
		matrix.SetBlock(hx, 2*j, off+state.ErrPosition, jr)

		matrix.SetBlock(hx, 2*j, state.ErrCameraOffset, jh)
	}

	return r, hx, hf, nil
}

// project projects residual r and its Jacobian hx onto the left null space
// of the feature Jacobian hf, removing the feature position from the measurement.
// The projected measurement has rows(hf)-3 rows.
func project(r *mat.VecDense, hx, hf *mat.Dense) (measurement, error) {
	rows, cols := hf.Dims()
	if rows <= cols {
		return measurement{}, errors.Errorf("not enough rows to marginalize feature: %d", rows)
	}

	var svd mat.SVD
	if ok := svd.Factorize(hf, mat.SVDFull); !ok {
		return measurement{}, errors.New("feature jacobian factorization failed")
	}

	if svd.Rank(rankTolerance) < cols {
		return measurement{}, errors.Wrap(camera.ErrDegenerate, "rank deficient feature jacobian")
	}

	u := &mat.Dense{}
	svd.UTo(u)

	a := u.Slice(0, rows, cols, rows)

	r0 := mat.NewVecDense(rows-cols, nil)
	r0.MulVec(a.T(), r)

	h0 := &mat.Dense{}
	h0.Mul(a.T(), hx)

	return measurement{r: r0, h: h0, rows: rows - cols}, nil
}

const rankTolerance = 1e-9

// finite returns true if none of x is NaN or Inf.
func finite(x ...float64) bool {
	if len(x) == 0 {
		return true
	}
	if floats.HasNaN(x) {
		return false
	}

	return !math.IsInf(floats.Norm(x, math.Inf(1)), 0)
}

func finiteVec(v r3.Vector) bool {
	return finite(v.X, v.Y, v.Z)
}
