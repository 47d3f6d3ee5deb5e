// Package state implements the MSCKF state vector, its sliding window of
// historical poses and the error state covariance.
//
// The nominal state vector is laid out as
//
//	q(4) p(3) v(3) bg(3) ba(3) | pcb(3) | q_0(4) p_0(3) v_0(3) | ... | q_k(4) p_k(3) v_k(3)
//
// and the error state mirrors it with 3-dimensional rotation errors
//
//	dθ(3) dp(3) dv(3) dbg(3) dba(3) | dpcb(3) | dθ_0(3) dp_0(3) dv_0(3) | ...
//
// Slot offsets are always computed from the slot index; they are never stored.
package state

const (
	// BaseNominalSize is the size of the nominal IMU state
	BaseNominalSize = 16
	// BaseErrorSize is the size of the IMU error state
	BaseErrorSize = 15
	// CameraOffsetSize is the size of the camera-IMU translation offset
	CameraOffsetSize = 3
	// PoseNominalSize is the size of a nominal pose slot
	PoseNominalSize = 10
	// PoseErrorSize is the size of a pose slot error state
	PoseErrorSize = 9
)

// nominal state offsets
const (
	nomOrientation  = 0
	nomPosition     = 4
	nomVelocity     = 7
	nomGyroBias     = 10
	nomAccelBias    = 13
	nomCameraOffset = BaseNominalSize
)

// Error state offsets
const (
	ErrAttitude     = 0
	ErrPosition     = 3
	ErrVelocity     = 6
	ErrGyroBias     = 9
	ErrAccelBias    = 12
	ErrCameraOffset = BaseErrorSize
)

// NominalDim returns nominal state size with the given number of pose slots.
func NominalDim(slots int) int {
	return BaseNominalSize + CameraOffsetSize + PoseNominalSize*slots
}

// ErrorDim returns error state size with the given number of pose slots.
func ErrorDim(slots int) int {
	return BaseErrorSize + CameraOffsetSize + PoseErrorSize*slots
}

// NominalSlotOffset returns offset of i-th pose slot in the nominal state.
func NominalSlotOffset(i int) int {
	return NominalDim(i)
}

// ErrorSlotOffset returns offset of i-th pose slot in the error state.
func ErrorSlotOffset(i int) int {
	return ErrorDim(i)
}
