package msckf

import (
	"testing"

	"github.com/golang/geo/r2"
	"github.com/golang/geo/r3"
	"github.com/milosgajdos/go-vio/feature"
	"github.com/milosgajdos/go-vio/rotation"
	"github.com/milosgajdos/go-vio/state"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gonum.org/v1/gonum/diff/fd"
	"gonum.org/v1/gonum/mat"
	"gonum.org/v1/gonum/num/quat"
)

// trackFilter returns filter with n poses in its window looking at global
// point f along z axis and a noiseless track of f observed from all of them.
func trackFilter(t *testing.T, f r3.Vector, n int) (*MSCKF, *feature.Record) {
	k := newFilter(t)
	require.NoError(t, k.Initialize(rotation.Identity(), r3.Vector{}, r3.Vector{}, r3.Vector{}, r3.Vector{}))
	k.x.SetCameraOffset(r3.Vector{X: 0.05, Y: -0.02, Z: 0.01})

	rec := &feature.Record{ID: 7}
	for j := 0; j < n; j++ {
		fj := float64(j)
		k.x.SetOrientation(rotation.Exp(r3.Vector{X: 0.02 * fj, Y: -0.03 * fj, Z: 0.01}))
		k.x.SetPosition(r3.Vector{X: 0.2 * fj, Y: 0.05 * fj, Z: -0.1 * fj})
		require.NoError(t, k.augment())

		s := k.w.States()[j]
		pose := k.cameraPose(s)
		pc := rotation.Rotate(quat.Conj(pose.Q), f.Sub(pose.P))
		rec.Points = append(rec.Points, k.cam.Project(pc))
	}

	return k, rec
}

func TestMeasure(t *testing.T) {
	assert := assert.New(t)

	f := r3.Vector{X: 0.3, Y: 0.2, Z: 5}
	n := 5
	k, rec := trackFilter(t, f, n)

	m, tri, err := k.measure(rec)
	assert.NoError(err)
	assert.InDelta(0, tri.Point.Sub(f).Norm(), 1e-6)

	// feature position marginalized out
	assert.Equal(2*n-3, m.rows)
	assert.Equal(2*n-3, m.r.Len())
	rows, cols := m.h.Dims()
	assert.Equal(2*n-3, rows)
	assert.Equal(state.ErrorDim(n), cols)
	assert.InDelta(0, mat.Norm(m.r, 2), 1e-5)

	// too few observations
	short := &feature.Record{ID: 8, Points: rec.Points[:1]}
	_, _, err = k.measure(short)
	assert.Error(err)
}

func TestProjectNullSpace(t *testing.T) {
	assert := assert.New(t)

	f := r3.Vector{X: -0.4, Y: 0.1, Z: 4}
	n := 4
	k, rec := trackFilter(t, f, n)

	r, hx, hf, err := k.jacobians(rec, k.w.States(), f)
	require.NoError(t, err)

	m, err := project(r, hx, hf)
	assert.NoError(err)
	assert.Equal(2*n-3, m.rows)

	// projection annihilates the feature jacobian
	mf, err := project(r, hf, hf)
	assert.NoError(err)
	assert.InDelta(0, mat.Norm(mf.h, 2), 1e-9)

	_, err = project(r.SliceVec(0, 3).(*mat.VecDense), hx.Slice(0, 3, 0, 3).(*mat.Dense), mat.NewDense(3, 3, nil))
	assert.Error(err)

	// rank deficient feature jacobian
	_, err = project(r, hx, mat.NewDense(2*n, 3, nil))
	assert.Error(err)
}

func TestJacobians(t *testing.T) {
	assert := assert.New(t)

	f := r3.Vector{X: 0.3, Y: -0.2, Z: 3}
	n := 4
	k, rec := trackFilter(t, f, n)
	slides := k.w.States()

	_, hx, hf, err := k.jacobians(rec, slides, f)
	require.NoError(t, err)

	// predicted measurement as a function of a perturbation
	predict := func(slides []state.SlideState, f r3.Vector, y []float64) {
		r, _, _, err := k.jacobians(rec, slides, f)
		require.NoError(t, err)
		for i := range y {
			y[i] = -r.AtVec(i)
		}
	}

	settings := &fd.JacobianSettings{Formula: fd.Central}
	check := func(num *mat.Dense, col int) {
		rows, cols := num.Dims()
		for i := 0; i < rows; i++ {
			for j := 0; j < cols; j++ {
				assert.InDelta(num.At(i, j), hx.At(i, col+j), 1e-3, "H[%d][%d]", i, col+j)
			}
		}
	}

	for j := range slides {
		num := mat.NewDense(2*n, 6, nil)
		fd.Jacobian(num, func(y, d []float64) {
			pert := make([]state.SlideState, len(slides))
			copy(pert, slides)
			pert[j].Q = rotation.Correct(slides[j].Q, r3.Vector{X: d[0], Y: d[1], Z: d[2]})
			pert[j].P = slides[j].P.Add(r3.Vector{X: d[3], Y: d[4], Z: d[5]})
			predict(pert, f, y)
		}, make([]float64, 6), settings)

		check(num, state.ErrorSlotOffset(j))

		// velocity does not enter the measurement
		off := state.ErrorSlotOffset(j) + state.ErrVelocity
		assert.Equal(0.0, mat.Norm(hx.Slice(0, 2*n, off, off+3), 1))
	}

	pcb := k.x.CameraOffset()
	num := mat.NewDense(2*n, 3, nil)
	fd.Jacobian(num, func(y, d []float64) {
		k.x.SetCameraOffset(pcb.Add(r3.Vector{X: d[0], Y: d[1], Z: d[2]}))
		predict(slides, f, y)
	}, make([]float64, 3), settings)
	k.x.SetCameraOffset(pcb)
	check(num, state.ErrCameraOffset)

	num = mat.NewDense(2*n, 3, nil)
	fd.Jacobian(num, func(y, d []float64) {
		predict(slides, f.Add(r3.Vector{X: d[0], Y: d[1], Z: d[2]}), y)
	}, make([]float64, 3), settings)
	assert.True(mat.EqualApprox(num, hf, 1e-3))

	// IMU state does not enter the measurement
	assert.Equal(0.0, mat.Norm(hx.Slice(0, 2*n, 0, state.BaseErrorSize), 1))

	// point behind the cameras
	_, _, _, err = k.jacobians(rec, slides, r3.Vector{Z: -3})
	assert.Error(err)
}

func TestBatch(t *testing.T) {
	assert := assert.New(t)

	b := &batch{}
	assert.Equal(0, b.Len())

	b.Add(measurement{
		r:    mat.NewVecDense(2, []float64{1, 2}),
		h:    mat.NewDense(2, 3, []float64{1, 0, 0, 0, 1, 0}),
		rows: 2,
	})
	b.Add(measurement{
		r:    mat.NewVecDense(1, []float64{3}),
		h:    mat.NewDense(1, 3, []float64{0, 0, 1}),
		rows: 1,
	})
	assert.Equal(2, b.Len())
	assert.Equal(3, b.Rows())

	r, h := b.Stack(3)
	assert.True(mat.Equal(mat.NewVecDense(3, []float64{1, 2, 3}), r))
	assert.True(mat.Equal(mat.NewDense(3, 3, []float64{1, 0, 0, 0, 1, 0, 0, 0, 1}), h))

	b.Reset()
	assert.Equal(0, b.Len())
	assert.Equal(0, b.Rows())
}

func TestCompress(t *testing.T) {
	assert := assert.New(t)

	h := mat.NewDense(4, 2, []float64{1, 2, 3, 4, 5, 6, 7, 9})
	r := mat.NewVecDense(4, []float64{1, -1, 2, 0.5})

	rn, th := compress(r, h)
	rows, cols := th.Dims()
	assert.Equal(2, rows)
	assert.Equal(2, cols)
	assert.Equal(2, rn.Len())

	// compressed system keeps normal equations
	var hth, tht mat.Dense
	hth.Mul(h.T(), h)
	tht.Mul(th.T(), th)
	assert.True(mat.EqualApprox(&hth, &tht, 1e-9))

	var htr, ttr mat.VecDense
	htr.MulVec(h.T(), r)
	ttr.MulVec(th.T(), rn)
	assert.True(mat.EqualApprox(&htr, &ttr, 1e-9))

	// short systems are left alone
	r2, h2 := compress(rn, th)
	assert.Equal(rn, r2)
	assert.Equal(th, h2)
}

func TestCorrect(t *testing.T) {
	assert := assert.New(t)

	f := r3.Vector{X: 0.3, Y: -0.2, Z: 3}
	n := 5
	k, rec := trackFilter(t, f, n)

	// observations of a slightly displaced feature
	g := f.Add(r3.Vector{X: 0.01})
	for j, s := range k.w.States() {
		pose := k.cameraPose(s)
		pc := rotation.Rotate(quat.Conj(pose.Q), g.Sub(pose.P))
		rec.Points[j] = k.cam.Project(pc)
		rec.Points[j] = r2.Point{X: rec.Points[j].X + 0.3*float64(j%2), Y: rec.Points[j].Y}
	}

	m, _, err := k.measure(rec)
	require.NoError(t, err)

	prev := k.Cov()
	k.batch.Reset()
	k.batch.Add(m)
	r, h := k.batch.Stack(k.p.Dim())
	assert.NoError(k.correct(r, h))
	checkInvariants(t, k)

	// correction does not increase uncertainty
	for i := 0; i < k.p.Dim(); i++ {
		assert.LessOrEqual(k.p.Sym().At(i, i), prev.At(i, i)+1e-12)
	}

	assert.Error(k.correct(r, mat.NewDense(r.Len(), 3, nil)))
}
