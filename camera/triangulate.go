package camera

import (
	"math"

	"github.com/golang/geo/r2"
	"github.com/golang/geo/r3"
	vio "github.com/milosgajdos/go-vio"
	"github.com/milosgajdos/go-vio/matrix"
	"github.com/milosgajdos/go-vio/rotation"
	"github.com/pkg/errors"
	"gonum.org/v1/gonum/mat"
)

const (
	// DefaultMaxIterations caps Gauss-Newton iterations
	DefaultMaxIterations = 100
	// DefaultResidualThreshold is the reprojection residual norm [px] at which iteration stops
	DefaultResidualThreshold = 1e-6
	// DefaultStepTolerance is the inverse depth update norm at which iteration stops
	DefaultStepTolerance = 1e-10
	// DefaultInitialInverseDepth is the inverse depth [1/m] the iteration starts from
	DefaultInitialInverseDepth = 0.1
	// rankTolerance is relative singular value cutoff of the least squares solve
	rankTolerance = 1e-12
)

// TriangulateOptions configure Gauss-Newton triangulation
type TriangulateOptions struct {
	// MaxIterations is the maximum number of Gauss-Newton iterations
	MaxIterations int `yaml:"max_iterations"`
	// ResidualThreshold is the residual norm [px] treated as converged
	ResidualThreshold float64 `yaml:"residual_threshold"`
	// StepTolerance is the update norm treated as converged
	StepTolerance float64 `yaml:"step_tolerance"`
	// InitialInverseDepth is the initial inverse depth guess
	InitialInverseDepth float64 `yaml:"initial_inverse_depth"`
}

// DefaultTriangulateOptions returns default triangulation options.
func DefaultTriangulateOptions() TriangulateOptions {
	return TriangulateOptions{
		MaxIterations:       DefaultMaxIterations,
		ResidualThreshold:   DefaultResidualThreshold,
		StepTolerance:       DefaultStepTolerance,
		InitialInverseDepth: DefaultInitialInverseDepth,
	}
}

// Validate returns error if o are not valid triangulation options.
func (o TriangulateOptions) Validate() error {
	if o.MaxIterations <= 0 {
		return errors.Errorf("invalid max iterations: %d", o.MaxIterations)
	}

	if o.ResidualThreshold < 0 || o.StepTolerance < 0 {
		return errors.Errorf("invalid convergence thresholds: %g, %g", o.ResidualThreshold, o.StepTolerance)
	}

	if o.InitialInverseDepth <= 0 {
		return errors.Errorf("invalid initial inverse depth: %g", o.InitialInverseDepth)
	}

	return nil
}

// Triangulation is the result of multi-view triangulation
type Triangulation struct {
	// Point is the triangulated point in the global frame
	Point r3.Vector
	// InverseDepth holds (alpha, beta, rho) in the anchor camera frame
	InverseDepth r3.Vector
	// Iterations is the number of Gauss-Newton iterations run
	Iterations int
	// Residual is the final reprojection residual norm [px]
	Residual float64
}

// Triangulate recovers global frame point from its pixel observations obs
// made by cameras with the given poses. The first pose anchors the inverse depth
// parametrization. It returns error if the inputs are malformed or the point
// can not be recovered.
func (c *Pinhole) Triangulate(obs []r2.Point, poses []vio.Pose) (r3.Vector, error) {
	t, err := c.Solve(obs, poses)
	if err != nil {
		return r3.Vector{}, err
	}

	return t.Point, nil
}

// Solve runs Gauss-Newton triangulation of obs seen from poses and returns its result.
// It returns ErrInvalidInput if obs and poses differ in length or contain fewer than
// two views and ErrDegenerate if the solution is not finite or lies behind the anchor camera.
func (c *Pinhole) Solve(obs []r2.Point, poses []vio.Pose) (*Triangulation, error) {
	n := len(obs)
	if n != len(poses) {
		return nil, errors.Wrapf(ErrInvalidInput, "%d observations, %d poses", n, len(poses))
	}

	if n < 2 {
		return nil, errors.Wrapf(ErrInvalidInput, "%d views", n)
	}

	// anchor camera
	rw0 := rotation.Matrix(poses[0].Q)
	tw0 := poses[0].P

	// relative rotations and translations taking anchor frame points to i-th camera frame
	rel := make([]*mat.Dense, n)
	trans := make([]r3.Vector, n)
	for i := range poses {
		rwi := rotation.Matrix(poses[i].Q)
		r := &mat.Dense{}
		r.Mul(rwi.T(), rw0)
		rel[i] = r
		trans[i] = matrix.MulVec3(rwi.T(), tw0.Sub(poses[i].P))
	}

	// inverse depth parametrization (alpha, beta, rho) initialized along the anchor ray
	ray := c.Undistort(obs[0])
	theta := []float64{ray.X, ray.Y, c.opts.InitialInverseDepth}

	f := mat.NewVecDense(2*n, nil)
	jac := mat.NewDense(2*n, 3, nil)
	jg := mat.NewDense(3, 3, nil)
	ji := mat.NewDense(2, 3, nil)
	delta := mat.NewVecDense(3, nil)

	var svd mat.SVD
	res := &Triangulation{}
	for res.Iterations = 0; res.Iterations < c.opts.MaxIterations; res.Iterations++ {
		for i := 0; i < n; i++ {
			r, t := rel[i], trans[i]
			g := r3.Vector{
				X: r.At(0, 0)*theta[0] + r.At(0, 1)*theta[1] + r.At(0, 2) + theta[2]*t.X,
				Y: r.At(1, 0)*theta[0] + r.At(1, 1)*theta[1] + r.At(1, 2) + theta[2]*t.Y,
				Z: r.At(2, 0)*theta[0] + r.At(2, 1)*theta[1] + r.At(2, 2) + theta[2]*t.Z,
			}

			z := c.Project(g)
			f.SetVec(2*i, obs[i].X-z.X)
			f.SetVec(2*i+1, obs[i].Y-z.Y)

			for k := 0; k < 3; k++ {
				jg.Set(k, 0, r.At(k, 0))
				jg.Set(k, 1, r.At(k, 1))
			}
			jg.Set(0, 2, t.X)
			jg.Set(1, 2, t.Y)
			jg.Set(2, 2, t.Z)

			ji.Mul(c.Jacobian(g), jg)
			ji.Scale(-1, ji)
			matrix.SetBlock(jac, 2*i, 0, ji)
		}

		res.Residual = mat.Norm(f, 2)
		if !finite(res.Residual) {
			return nil, errors.Wrapf(ErrDegenerate, "non-finite residual after %d iterations", res.Iterations)
		}

		if res.Residual < c.opts.ResidualThreshold {
			break
		}

		if ok := svd.Factorize(jac, mat.SVDThin); !ok {
			return nil, errors.Wrap(ErrDegenerate, "svd factorization failed")
		}

		rank := svd.Rank(rankTolerance)
		if rank == 0 {
			return nil, errors.Wrap(ErrDegenerate, "zero rank jacobian")
		}
		svd.SolveVecTo(delta, f, rank)

		theta[0] -= delta.AtVec(0)
		theta[1] -= delta.AtVec(1)
		theta[2] -= delta.AtVec(2)

		if mat.Norm(delta, 2) < c.opts.StepTolerance {
			res.Iterations++
			break
		}
	}

	res.InverseDepth = r3.Vector{X: theta[0], Y: theta[1], Z: theta[2]}

	if !finite(theta...) {
		return nil, errors.Wrapf(ErrDegenerate, "non-finite inverse depth: %v", theta)
	}

	if theta[2] <= 0 {
		return nil, errors.Wrapf(ErrDegenerate, "point behind anchor camera: rho=%g", theta[2])
	}

	p0 := r3.Vector{X: theta[0] / theta[2], Y: theta[1] / theta[2], Z: 1 / theta[2]}
	res.Point = matrix.MulVec3(rw0, p0).Add(tw0)

	if !finite(res.Point.X, res.Point.Y, res.Point.Z) {
		return nil, errors.Wrapf(ErrDegenerate, "non-finite point: %v", res.Point)
	}

	return res, nil
}

// finite returns true if none of x is NaN or Inf.
func finite(x ...float64) bool {
	for _, v := range x {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return false
		}
	}

	return true
}
