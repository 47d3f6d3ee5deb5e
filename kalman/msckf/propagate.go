package msckf

import (
	"github.com/golang/geo/r3"
	"github.com/milosgajdos/go-vio/matrix"
	"github.com/milosgajdos/go-vio/rotation"
	"github.com/milosgajdos/go-vio/state"
	"github.com/pkg/errors"
	"gonum.org/v1/gonum/mat"
	"gonum.org/v1/gonum/num/quat"
)

// ProcessIMU propagates the nominal state and its error covariance with
// accelerometer and gyroscope readings taken at time t. The first reading
// after Initialize is only stored. Readings with the same timestamp as
// the previous one replace it without propagating the state.
// It returns ErrNotInitialized if the filter has not been initialized and
// ErrTimestamp if t precedes the previous reading.
func (k *MSCKF) ProcessIMU(t float64, accel, gyro r3.Vector) error {
	if !k.initialized {
		return ErrNotInitialized
	}

	if !k.imu {
		k.store(t, accel, gyro)
		k.imu = true
		return nil
	}

	dt := t - k.t
	if dt < 0 {
		return errors.Wrapf(ErrTimestamp, "%g < %g", t, k.t)
	}

	if dt == 0 {
		k.store(t, accel, gyro)
		return nil
	}

	bg, ba := k.x.GyroBias(), k.x.AccelBias()
	w0, w1 := k.gyro.Sub(bg), gyro.Sub(bg)
	a0, a1 := k.accel.Sub(ba), accel.Sub(ba)

	phi, err := k.propagate(w0, w1, a0, a1, dt)
	if err != nil {
		return err
	}

	if err := k.p.Propagate(phi, k.q, dt); err != nil {
		return errors.Wrap(err, "covariance propagation")
	}

	k.store(t, accel, gyro)

	return nil
}

func (k *MSCKF) store(t float64, accel, gyro r3.Vector) {
	k.t, k.accel, k.gyro = t, accel, gyro
}

// propagate integrates bias corrected rates w0, w1 and specific forces a0, a1
// sampled dt apart into the nominal state and returns the error state
// transition matrix of the step.
func (k *MSCKF) propagate(w0, w1, a0, a1 r3.Vector, dt float64) (*mat.Dense, error) {
	q := k.x.Orientation()
	p, v := k.x.Position(), k.x.Velocity()
	g := k.gravity

	rot := rotation.Matrix(q)
	dq := rotation.Exp(rotation.Delta(w0, w1, dt))
	dr := rotation.Matrix(dq)

	// trapezoidal specific force integrals expressed in the previous body frame
	s := matrix.MulVec3(dr, a1).Add(a0).Mul(0.5 * dt)
	y := s.Mul(0.5 * dt)

	rs := matrix.MulVec3(rot, s)
	ry := matrix.MulVec3(rot, y)

	qNext := rotation.Normalize(quat.Mul(q, dq))
	vNext := v.Add(rs).Add(g.Mul(dt))
	pNext := p.Add(v.Mul(dt)).Add(ry).Add(g.Mul(0.5 * dt * dt))

	if !finite(qNext.Real, qNext.Imag, qNext.Jmag, qNext.Kmag) || !finiteVec(vNext) || !finiteVec(pNext) {
		return nil, errors.New("non-finite state propagation")
	}

	k.x.SetOrientation(qNext)
	k.x.SetVelocity(vNext)
	k.x.SetPosition(pNext)

	rotNext := rotation.Matrix(qNext)

	return transition(rot, rotNext, rs, ry, matrix.MulVec3(rotNext, a1), dt), nil
}

// transition returns error state transition matrix of a single propagation step
// given orientations before (rot) and after (rotNext) the step, integrated
// specific force terms rs and ry and the rotated latest specific force ra.
func transition(rot, rotNext *mat.Dense, rs, ry, ra r3.Vector, dt float64) *mat.Dense {
	n := state.BaseErrorSize
	phi := matrix.Eye(n)

	avg := &mat.Dense{}
	avg.Add(rot, rotNext)

	skew := matrix.Skew(ry)
	skew.Scale(-1, skew)
	matrix.SetBlock(phi, state.ErrPosition, state.ErrAttitude, skew)

	skew = matrix.Skew(rs)
	skew.Scale(-1, skew)
	matrix.SetBlock(phi, state.ErrVelocity, state.ErrAttitude, skew)

	eye := matrix.Eye(3)
	eye.Scale(dt, eye)
	matrix.SetBlock(phi, state.ErrPosition, state.ErrVelocity, eye)

	thetaBg := &mat.Dense{}
	thetaBg.Scale(-0.5*dt, avg)
	matrix.SetBlock(phi, state.ErrAttitude, state.ErrGyroBias, thetaBg)

	velBg := &mat.Dense{}
	velBg.Mul(matrix.Skew(ra), avg)
	velBg.Scale(0.25*dt*dt, velBg)
	matrix.SetBlock(phi, state.ErrVelocity, state.ErrGyroBias, velBg)

	posBg := &mat.Dense{}
	posBg.Scale(0.5*dt, velBg)
	matrix.SetBlock(phi, state.ErrPosition, state.ErrGyroBias, posBg)

	velBa := &mat.Dense{}
	velBa.Scale(-0.5*dt, avg)
	matrix.SetBlock(phi, state.ErrVelocity, state.ErrAccelBias, velBa)

	posBa := &mat.Dense{}
	posBa.Scale(-0.25*dt*dt, avg)
	matrix.SetBlock(phi, state.ErrPosition, state.ErrAccelBias, posBa)

	return phi
}
