package camera

import (
	"math"
	"os"
	"testing"

	"github.com/golang/geo/r2"
	"github.com/golang/geo/r3"
	vio "github.com/milosgajdos/go-vio"
	"github.com/milosgajdos/go-vio/rotation"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gonum.org/v1/gonum/diff/fd"
	"gonum.org/v1/gonum/mat"
	"gonum.org/v1/gonum/num/quat"
)

var (
	pinholeConf Config
	distortConf Config
)

func setup() {
	pinholeConf = Config{
		Intrinsics: Intrinsics{Fx: 365.07984, Fy: 365.12127, Cx: 381.0196, Cy: 254.4431},
		Height:     480,
		Width:      752,
	}

	distortConf = pinholeConf
	distortConf.Distortion = Distortion{
		K1: -2.842958e-1,
		K2: 8.7155025e-2,
		P1: -1.4602925e-4,
		P2: -6.149638e-4,
		K3: -1.218237e-2,
	}
}

func TestMain(m *testing.M) {
	// set up tests
	setup()
	// run the tests
	retCode := m.Run()
	// call with result of m.Run()
	os.Exit(retCode)
}

func TestNew(t *testing.T) {
	assert := assert.New(t)

	c, err := New(pinholeConf)
	assert.NotNil(c)
	assert.NoError(err)
	assert.Equal(pinholeConf, c.Config())

	bad := pinholeConf
	bad.Intrinsics.Fx = 0
	c, err = New(bad)
	assert.Nil(c)
	assert.Error(err)

	bad = pinholeConf
	bad.Width = -1
	c, err = New(bad)
	assert.Nil(c)
	assert.Error(err)
}

func TestSetters(t *testing.T) {
	assert := assert.New(t)

	c, err := New(pinholeConf)
	require.NoError(t, err)

	assert.NoError(c.SetIntrinsics(100, 200, 10, 20))
	assert.Error(c.SetIntrinsics(-1, 200, 10, 20))
	assert.Equal(Intrinsics{Fx: 100, Fy: 200, Cx: 10, Cy: 20}, c.Config().Intrinsics)

	c.SetDistortion(1, 2, 3, 4, 5)
	assert.Equal(Distortion{K1: 1, K2: 2, P1: 3, P2: 4, K3: 5}, c.Config().Distortion)

	assert.NoError(c.SetImageSize(10, 20))
	assert.Error(c.SetImageSize(0, 20))
	assert.True(c.InBounds(r2.Point{X: 19, Y: 9}))
	assert.False(c.InBounds(r2.Point{X: 20, Y: 9}))
	assert.False(c.InBounds(r2.Point{X: -1, Y: 0}))

	assert.Error(c.SetTriangulateOptions(TriangulateOptions{}))
	assert.NoError(c.SetTriangulateOptions(DefaultTriangulateOptions()))
}

func TestProject(t *testing.T) {
	assert := assert.New(t)

	c, err := New(pinholeConf)
	require.NoError(t, err)

	in := pinholeConf.Intrinsics
	px := c.Project(r3.Vector{X: 1, Y: 2, Z: 4})
	assert.InDelta(in.Fx*0.25+in.Cx, px.X, 1e-12)
	assert.InDelta(in.Fy*0.5+in.Cy, px.Y, 1e-12)

	// projection does not depend on the point scale
	px2 := c.Project(r3.Vector{X: 2, Y: 4, Z: 8})
	assert.InDelta(px.X, px2.X, 1e-12)
	assert.InDelta(px.Y, px2.Y, 1e-12)

	// zero depth is not finite
	px = c.Project(r3.Vector{X: 1, Y: 1, Z: 0})
	assert.True(math.IsInf(px.X, 0) || math.IsNaN(px.X))
}

func TestJacobian(t *testing.T) {
	assert := assert.New(t)

	for _, conf := range []Config{pinholeConf, distortConf} {
		c, err := New(conf)
		require.NoError(t, err)

		for _, p := range []r3.Vector{
			{X: 0.3, Y: -0.2, Z: 2.0},
			{X: -1.0, Y: 0.5, Z: 4.0},
			{X: 0, Y: 0, Z: 1.0},
		} {
			f := func(y, x []float64) {
				px := c.Project(r3.Vector{X: x[0], Y: x[1], Z: x[2]})
				y[0], y[1] = px.X, px.Y
			}

			exp := mat.NewDense(2, 3, nil)
			fd.Jacobian(exp, f, []float64{p.X, p.Y, p.Z}, &fd.JacobianSettings{
				Formula: fd.Central,
			})

			jac := c.Jacobian(p)
			r, cols := jac.Dims()
			assert.Equal(2, r)
			assert.Equal(3, cols)
			assert.True(mat.EqualApprox(exp, jac, 1e-4), "point %v:\n%v\n%v", p, mat.Formatted(exp), mat.Formatted(jac))
		}
	}
}

func TestUndistort(t *testing.T) {
	assert := assert.New(t)

	c, err := New(distortConf)
	require.NoError(t, err)

	for _, p := range []r3.Vector{
		{X: 0.3, Y: -0.2, Z: 2.0},
		{X: -0.5, Y: 0.25, Z: 2.0},
	} {
		n := c.Undistort(c.Project(p))
		assert.InDelta(p.X/p.Z, n.X, 1e-6)
		assert.InDelta(p.Y/p.Z, n.Y, 1e-6)
	}
}

// views returns camera poses looking along global z axis and pixel observations of point p.
func views(c *Pinhole, p r3.Vector, n int) ([]r2.Point, []vio.Pose) {
	obs := make([]r2.Point, n)
	poses := make([]vio.Pose, n)
	for i := 0; i < n; i++ {
		fi := float64(i)
		q := rotation.Exp(r3.Vector{X: 0.02 * fi, Y: -0.03 * fi, Z: 0.05 * fi})
		center := r3.Vector{X: 0.4 * fi, Y: 0.1 * math.Sin(fi), Z: 0.05 * fi}
		poses[i] = vio.Pose{Q: q, P: center}
		// global point expressed in camera frame
		pc := rotation.Rotate(quat.Conj(q), p.Sub(center))
		obs[i] = c.Project(pc)
	}

	return obs, poses
}

func TestTriangulate(t *testing.T) {
	assert := assert.New(t)

	for _, conf := range []Config{pinholeConf, distortConf} {
		c, err := New(conf)
		require.NoError(t, err)

		for _, p := range []r3.Vector{
			{X: 1.0, Y: -0.5, Z: 6.0},
			{X: -0.5, Y: 0.5, Z: 3.0},
			{X: 0.2, Y: 0.1, Z: 25.0},
		} {
			for _, n := range []int{3, 5} {
				obs, poses := views(c, p, n)

				res, err := c.Solve(obs, poses)
				require.NoError(t, err)
				assert.Less(res.Iterations, DefaultMaxIterations)
				assert.InDelta(0, res.Point.Sub(p).Norm()/p.Norm(), 1e-3)

				point, err := c.Triangulate(obs, poses)
				assert.NoError(err)
				assert.Equal(res.Point, point)
			}
		}
	}
}

func TestTriangulateErrors(t *testing.T) {
	assert := assert.New(t)

	c, err := New(pinholeConf)
	require.NoError(t, err)

	p := r3.Vector{X: 1.0, Y: -0.5, Z: 6.0}
	obs, poses := views(c, p, 4)

	_, err = c.Triangulate(obs[:3], poses)
	assert.ErrorIs(err, ErrInvalidInput)

	_, err = c.Triangulate(obs[:1], poses[:1])
	assert.ErrorIs(err, ErrInvalidInput)

	obs[2] = r2.Point{X: math.NaN(), Y: 1}
	_, err = c.Triangulate(obs, poses)
	assert.ErrorIs(err, ErrDegenerate)
}
