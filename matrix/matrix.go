package matrix

import (
	"fmt"

	"github.com/golang/geo/r3"
	gomatrix "github.com/milosgajdos/matrix"
	"gonum.org/v1/gonum/mat"
)

// Eye returns n x n identity matrix.
// It panics if n is non-positive.
func Eye(n int) *mat.Dense {
	eye, err := gomatrix.NewDenseValIdentity(n, 1.0)
	if err != nil {
		panic(err)
	}

	return eye
}

// Format returns fmt.Formatter of m suitable for pretty printing.
func Format(m mat.Matrix) fmt.Formatter {
	return mat.Formatted(m, mat.Prefix(""), mat.Squeeze())
}

// Skew returns the 3x3 skew-symmetric cross product matrix of v
// such that Skew(v)*u == v x u.
func Skew(v r3.Vector) *mat.Dense {
	return mat.NewDense(3, 3, []float64{
		0, -v.Z, v.Y,
		v.Z, 0, -v.X,
		-v.Y, v.X, 0,
	})
}

// Vec returns v as gonum vector.
func Vec(v r3.Vector) *mat.VecDense {
	return mat.NewVecDense(3, []float64{v.X, v.Y, v.Z})
}

// Vec3 reads 3-vector from v starting at index i.
// It panics if v does not hold three elements starting at i.
func Vec3(v mat.Vector, i int) r3.Vector {
	return r3.Vector{X: v.AtVec(i), Y: v.AtVec(i + 1), Z: v.AtVec(i + 2)}
}

// MulVec3 returns m*v for 3x3 matrix m.
func MulVec3(m mat.Matrix, v r3.Vector) r3.Vector {
	return r3.Vector{
		X: m.At(0, 0)*v.X + m.At(0, 1)*v.Y + m.At(0, 2)*v.Z,
		Y: m.At(1, 0)*v.X + m.At(1, 1)*v.Y + m.At(1, 2)*v.Z,
		Z: m.At(2, 0)*v.X + m.At(2, 1)*v.Y + m.At(2, 2)*v.Z,
	}
}

// SetBlock copies src into dst with its top left corner at (i, j).
// It panics if src does not fit into dst.
func SetBlock(dst *mat.Dense, i, j int, src mat.Matrix) {
	r, c := src.Dims()
	dst.Slice(i, i+r, j, j+c).(*mat.Dense).Copy(src)
}

// Symmetrize stores the symmetric part of the square matrix a, (a+a')/2, in dst.
// dst is resized if it is empty; it panics if a is not square or dst has wrong size.
func Symmetrize(dst *mat.SymDense, a mat.Matrix) {
	r, c := a.Dims()
	if r != c {
		panic(mat.ErrShape)
	}

	if dst.IsEmpty() {
		dst.ReuseAsSym(r)
	}

	if dst.SymmetricDim() != r {
		panic(mat.ErrShape)
	}

	for i := 0; i < r; i++ {
		for j := i; j < r; j++ {
			dst.SetSym(i, j, 0.5*(a.At(i, j)+a.At(j, i)))
		}
	}
}

// IsSymmetric returns true if the square matrix a is symmetric within tol.
func IsSymmetric(a mat.Matrix, tol float64) bool {
	r, c := a.Dims()
	if r != c {
		return false
	}

	for i := 0; i < r; i++ {
		for j := i + 1; j < r; j++ {
			d := a.At(i, j) - a.At(j, i)
			if d > tol || d < -tol {
				return false
			}
		}
	}

	return true
}
