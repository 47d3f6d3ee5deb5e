// Package rotation implements unit quaternion algebra used by the filter.
//
// Quaternions follow the Hamilton convention with Real as the scalar part.
// A quaternion q rotates vector v into q * v * conj(q). The filter
// propagates the body to global rotation internally and exposes its
// conjugate, the global to body rotation.
package rotation

import (
	"math"

	"github.com/golang/geo/r3"
	"gonum.org/v1/gonum/mat"
	"gonum.org/v1/gonum/num/quat"
)

// smallAngle is the rotation angle below which the first order
// approximation of the exponential map is used.
const smallAngle = 1e-10

// Identity returns identity rotation.
func Identity() quat.Number {
	return quat.Number{Real: 1}
}

// Normalize returns q scaled to unit length.
// It returns identity rotation if q has zero length.
func Normalize(q quat.Number) quat.Number {
	n := quat.Abs(q)
	if n == 0 {
		return Identity()
	}

	return quat.Scale(1/n, q)
}

// Exp maps rotation vector theta onto the unit quaternion.
func Exp(theta r3.Vector) quat.Number {
	angle := theta.Norm()
	if angle < smallAngle {
		return Normalize(quat.Number{Real: 1, Imag: 0.5 * theta.X, Jmag: 0.5 * theta.Y, Kmag: 0.5 * theta.Z})
	}

	s := math.Sin(0.5*angle) / angle
	return quat.Number{
		Real: math.Cos(0.5 * angle),
		Imag: s * theta.X,
		Jmag: s * theta.Y,
		Kmag: s * theta.Z,
	}
}

// Log maps unit quaternion q onto its rotation vector.
func Log(q quat.Number) r3.Vector {
	q = Normalize(q)
	if q.Real < 0 {
		q = quat.Scale(-1, q)
	}

	v := r3.Vector{X: q.Imag, Y: q.Jmag, Z: q.Kmag}
	n := v.Norm()
	if n < smallAngle {
		return v.Mul(2)
	}

	return v.Mul(2 * math.Atan2(n, q.Real) / n)
}

// Matrix returns the 3x3 rotation matrix of unit quaternion q.
func Matrix(q quat.Number) *mat.Dense {
	w, x, y, z := q.Real, q.Imag, q.Jmag, q.Kmag

	return mat.NewDense(3, 3, []float64{
		1 - 2*(y*y+z*z), 2 * (x*y - w*z), 2 * (x*z + w*y),
		2 * (x*y + w*z), 1 - 2*(x*x+z*z), 2 * (y*z - w*x),
		2 * (x*z - w*y), 2 * (y*z + w*x), 1 - 2*(x*x+y*y),
	})
}

// FromMatrix returns unit quaternion of the 3x3 rotation matrix m.
// The returned quaternion has non-negative scalar part.
func FromMatrix(m mat.Matrix) quat.Number {
	m00, m11, m22 := m.At(0, 0), m.At(1, 1), m.At(2, 2)
	tr := m00 + m11 + m22

	var q quat.Number
	switch {
	case tr > 0:
		s := 2 * math.Sqrt(tr+1)
		q = quat.Number{
			Real: 0.25 * s,
			Imag: (m.At(2, 1) - m.At(1, 2)) / s,
			Jmag: (m.At(0, 2) - m.At(2, 0)) / s,
			Kmag: (m.At(1, 0) - m.At(0, 1)) / s,
		}
	case m00 > m11 && m00 > m22:
		s := 2 * math.Sqrt(1+m00-m11-m22)
		q = quat.Number{
			Real: (m.At(2, 1) - m.At(1, 2)) / s,
			Imag: 0.25 * s,
			Jmag: (m.At(0, 1) + m.At(1, 0)) / s,
			Kmag: (m.At(0, 2) + m.At(2, 0)) / s,
		}
	case m11 > m22:
		s := 2 * math.Sqrt(1+m11-m00-m22)
		q = quat.Number{
			Real: (m.At(0, 2) - m.At(2, 0)) / s,
			Imag: (m.At(0, 1) + m.At(1, 0)) / s,
			Jmag: 0.25 * s,
			Kmag: (m.At(1, 2) + m.At(2, 1)) / s,
		}
	default:
		s := 2 * math.Sqrt(1+m22-m00-m11)
		q = quat.Number{
			Real: (m.At(1, 0) - m.At(0, 1)) / s,
			Imag: (m.At(0, 2) + m.At(2, 0)) / s,
			Jmag: (m.At(1, 2) + m.At(2, 1)) / s,
			Kmag: 0.25 * s,
		}
	}

	if q.Real < 0 {
		q = quat.Scale(-1, q)
	}

	return Normalize(q)
}

// Rotate rotates vector v by unit quaternion q.
func Rotate(q quat.Number, v r3.Vector) r3.Vector {
	p := quat.Number{Imag: v.X, Jmag: v.Y, Kmag: v.Z}
	r := quat.Mul(quat.Mul(q, p), quat.Conj(q))

	return r3.Vector{X: r.Imag, Y: r.Jmag, Z: r.Kmag}
}

// Delta integrates body angular rates w0 and w1 sampled dt apart into the
// rotation vector of the body frame at the second sample expressed in the
// body frame at the first one. The integration is second order: it adds
// the coning term of two linearly interpolated rate samples.
func Delta(w0, w1 r3.Vector, dt float64) r3.Vector {
	avg := w0.Add(w1).Mul(0.5 * dt)
	coning := w0.Cross(w1).Mul(dt * dt / 12)

	return avg.Add(coning)
}

// Correct applies global frame rotation error dtheta to q: Exp(dtheta)*q.
// The result is normalized.
func Correct(q quat.Number, dtheta r3.Vector) quat.Number {
	return Normalize(quat.Mul(Exp(dtheta), q))
}
