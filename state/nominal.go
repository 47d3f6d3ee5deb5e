package state

import (
	"github.com/golang/geo/r3"
	"github.com/milosgajdos/go-vio/matrix"
	"github.com/milosgajdos/go-vio/rotation"
	"github.com/pkg/errors"
	"gonum.org/v1/gonum/mat"
	"gonum.org/v1/gonum/num/quat"
)

// SlideState is a snapshot of the IMU pose taken when a frame was processed
type SlideState struct {
	// Q is orientation quaternion
	Q quat.Number
	// P is position in the global frame
	P r3.Vector
	// V is velocity in the global frame
	V r3.Vector
}

// Nominal is the nominal state vector stored in a single growable buffer
type Nominal struct {
	buf []float64
}

// NewNominal creates new nominal state with identity orientation and no pose slots.
// Buffer space for capacity pose slots is reserved upfront.
func NewNominal(capacity int) *Nominal {
	if capacity < 0 {
		capacity = 0
	}

	buf := make([]float64, NominalDim(0), NominalDim(capacity))
	buf[nomOrientation] = 1

	return &Nominal{buf: buf}
}

// Len returns nominal state size.
func (x *Nominal) Len() int {
	return len(x.buf)
}

// Slots returns the number of pose slots.
func (x *Nominal) Slots() int {
	return (len(x.buf) - NominalDim(0)) / PoseNominalSize
}

// Vector returns a copy of the nominal state vector.
func (x *Nominal) Vector() *mat.VecDense {
	data := make([]float64, len(x.buf))
	copy(data, x.buf)

	return mat.NewVecDense(len(data), data)
}

func (x *Nominal) quat(i int) quat.Number {
	return quat.Number{Real: x.buf[i], Imag: x.buf[i+1], Jmag: x.buf[i+2], Kmag: x.buf[i+3]}
}

func (x *Nominal) setQuat(i int, q quat.Number) {
	x.buf[i], x.buf[i+1], x.buf[i+2], x.buf[i+3] = q.Real, q.Imag, q.Jmag, q.Kmag
}

func (x *Nominal) vec(i int) r3.Vector {
	return r3.Vector{X: x.buf[i], Y: x.buf[i+1], Z: x.buf[i+2]}
}

func (x *Nominal) setVec(i int, v r3.Vector) {
	x.buf[i], x.buf[i+1], x.buf[i+2] = v.X, v.Y, v.Z
}

// Orientation returns IMU orientation quaternion.
func (x *Nominal) Orientation() quat.Number { return x.quat(nomOrientation) }

// SetOrientation sets IMU orientation to normalized q.
func (x *Nominal) SetOrientation(q quat.Number) { x.setQuat(nomOrientation, rotation.Normalize(q)) }

// Position returns IMU position.
func (x *Nominal) Position() r3.Vector { return x.vec(nomPosition) }

// SetPosition sets IMU position.
func (x *Nominal) SetPosition(p r3.Vector) { x.setVec(nomPosition, p) }

// Velocity returns IMU velocity.
func (x *Nominal) Velocity() r3.Vector { return x.vec(nomVelocity) }

// SetVelocity sets IMU velocity.
func (x *Nominal) SetVelocity(v r3.Vector) { x.setVec(nomVelocity, v) }

// GyroBias returns gyroscope bias.
func (x *Nominal) GyroBias() r3.Vector { return x.vec(nomGyroBias) }

// SetGyroBias sets gyroscope bias.
func (x *Nominal) SetGyroBias(b r3.Vector) { x.setVec(nomGyroBias, b) }

// AccelBias returns accelerometer bias.
func (x *Nominal) AccelBias() r3.Vector { return x.vec(nomAccelBias) }

// SetAccelBias sets accelerometer bias.
func (x *Nominal) SetAccelBias(b r3.Vector) { x.setVec(nomAccelBias, b) }

// CameraOffset returns camera-IMU translation offset.
func (x *Nominal) CameraOffset() r3.Vector { return x.vec(nomCameraOffset) }

// SetCameraOffset sets camera-IMU translation offset.
func (x *Nominal) SetCameraOffset(p r3.Vector) { x.setVec(nomCameraOffset, p) }

// Pose returns snapshot of the current IMU pose.
func (x *Nominal) Pose() SlideState {
	return SlideState{Q: x.Orientation(), P: x.Position(), V: x.Velocity()}
}

// Slot returns i-th pose slot.
// It panics if i is out of range.
func (x *Nominal) Slot(i int) SlideState {
	off := x.slotOffset(i)

	return SlideState{Q: x.quat(off), P: x.vec(off + 4), V: x.vec(off + 7)}
}

func (x *Nominal) setSlot(i int, s SlideState) {
	off := x.slotOffset(i)
	x.setQuat(off, s.Q)
	x.setVec(off+4, s.P)
	x.setVec(off+7, s.V)
}

func (x *Nominal) slotOffset(i int) int {
	if i < 0 || i >= x.Slots() {
		panic(errors.Wrapf(ErrSlotIndex, "slot %d of %d", i, x.Slots()))
	}

	return NominalSlotOffset(i)
}

func (x *Nominal) appendSlot(s SlideState) {
	x.buf = append(x.buf, make([]float64, PoseNominalSize)...)
	x.setSlot(x.Slots()-1, s)
}

func (x *Nominal) removeSlot(i int) {
	off := x.slotOffset(i)
	copy(x.buf[off:], x.buf[off+PoseNominalSize:])
	x.buf = x.buf[:len(x.buf)-PoseNominalSize]
}

// Correct applies error state correction dx to the nominal state: rotations
// are corrected multiplicatively, every other component additively.
// It returns error if dx size does not match the error state size.
func (x *Nominal) Correct(dx mat.Vector) error {
	if dx.Len() != ErrorDim(x.Slots()) {
		return errors.Errorf("invalid correction size: %d != %d", dx.Len(), ErrorDim(x.Slots()))
	}

	x.SetOrientation(rotation.Correct(x.Orientation(), matrix.Vec3(dx, ErrAttitude)))
	x.SetPosition(x.Position().Add(matrix.Vec3(dx, ErrPosition)))
	x.SetVelocity(x.Velocity().Add(matrix.Vec3(dx, ErrVelocity)))
	x.SetGyroBias(x.GyroBias().Add(matrix.Vec3(dx, ErrGyroBias)))
	x.SetAccelBias(x.AccelBias().Add(matrix.Vec3(dx, ErrAccelBias)))
	x.SetCameraOffset(x.CameraOffset().Add(matrix.Vec3(dx, ErrCameraOffset)))

	for i := 0; i < x.Slots(); i++ {
		off := ErrorSlotOffset(i)
		s := x.Slot(i)
		s.Q = rotation.Correct(s.Q, matrix.Vec3(dx, off))
		s.P = s.P.Add(matrix.Vec3(dx, off+3))
		s.V = s.V.Add(matrix.Vec3(dx, off+6))
		x.setSlot(i, s)
	}

	return nil
}
