// Package msckf implements error-state Multi-State Constraint Kalman Filter
// fusing IMU readings with feature tracks observed by a single camera.
package msckf

import (
	"math"

	"github.com/golang/geo/r3"
	vio "github.com/milosgajdos/go-vio"
	"github.com/milosgajdos/go-vio/camera"
	"github.com/milosgajdos/go-vio/estimate"
	"github.com/milosgajdos/go-vio/feature"
	"github.com/milosgajdos/go-vio/kalman"
	"github.com/milosgajdos/go-vio/matrix"
	"github.com/milosgajdos/go-vio/rotation"
	"github.com/milosgajdos/go-vio/state"
	"github.com/pkg/errors"
	"go.uber.org/zap"
	"gonum.org/v1/gonum/mat"
	"gonum.org/v1/gonum/num/quat"
)

var (
	// ErrNotInitialized is returned when processing data before the state was initialized
	ErrNotInitialized = errors.New("filter state not initialized")
	// ErrTimestamp is returned when IMU timestamps go backwards
	ErrTimestamp = errors.New("timestamp out of order")
)

var _ kalman.Kalman = (*MSCKF)(nil)

// rotationTolerance is the tolerance of rotation matrix orthonormality checks
const rotationTolerance = 1e-6

// MSCKF is Multi-State Constraint Kalman Filter
type MSCKF struct {
	// cam is camera model
	cam *camera.Pinhole
	// rcb rotates IMU frame vectors into the camera frame
	rcb *mat.Dense
	// gravity is gravity in the global frame
	gravity r3.Vector
	// noise is IMU process noise
	noise ProcessNoise
	// q is process noise matrix
	q *mat.Dense
	// sigma is pixel noise standard deviation
	sigma float64
	// minTrack is minimum usable track length
	minTrack int
	// p0 is initial error covariance
	p0 *mat.SymDense
	// pcb0 is initial camera offset
	pcb0 r3.Vector
	// x is nominal state
	x *state.Nominal
	// w is sliding window over x
	w *state.Window
	// p is error state covariance
	p *state.Covariance
	// features are feature tracks
	features *feature.Store
	// batch collects measurements of a single image
	batch *batch
	// gate rejects outlier measurements
	gate vio.Gate
	// log is logger
	log *zap.SugaredLogger
	// initialized is set by Initialize
	initialized bool
	// imu is set once the first IMU sample arrived
	imu bool
	// t is the timestamp of the previous IMU sample
	t float64
	// accel is the previous raw accelerometer reading
	accel r3.Vector
	// gyro is the previous raw gyroscope reading
	gyro r3.Vector
}

// New creates new MSCKF from configuration c and returns it.
// If c is nil DefaultConfig is used.
// It returns error if c is not a valid configuration.
func New(c *Config, opts ...Option) (*MSCKF, error) {
	if c == nil {
		c = DefaultConfig()
	}

	if err := c.Validate(); err != nil {
		return nil, errors.Wrap(err, "invalid config")
	}

	cam, err := camera.New(c.Camera)
	if err != nil {
		return nil, err
	}

	if err := cam.SetTriangulateOptions(c.Triangulation); err != nil {
		return nil, err
	}

	rcb, err := c.imuCameraRotation()
	if err != nil {
		return nil, err
	}

	k := &MSCKF{
		cam:      cam,
		rcb:      rcb,
		gravity:  vec(c.Gravity),
		sigma:    c.PixelNoise,
		minTrack: c.MinTrackLength,
		p0:       initialCov(c.InitialStdDev),
		pcb0:     vec(c.CameraOffset),
		features: feature.NewStore(),
		batch:    &batch{},
		log:      zap.NewNop().Sugar(),
	}

	if err := k.SetProcessNoise(c.ProcessNoise.Gyro, c.ProcessNoise.Accel,
		c.ProcessNoise.GyroRandomWalk, c.ProcessNoise.AccelRandomWalk); err != nil {
		return nil, err
	}

	if c.GateConfidence > 0 {
		k.gate = &ChiSquareGate{Confidence: c.GateConfidence}
	}

	if err := k.reset(c.WindowSize); err != nil {
		return nil, err
	}

	for _, opt := range opts {
		opt(k)
	}

	return k, nil
}

func initialCov(sd InitialStdDev) *mat.SymDense {
	n := state.ErrorDim(0)
	p := mat.NewSymDense(n, nil)

	set := func(off int, s float64) {
		for i := off; i < off+3; i++ {
			p.SetSym(i, i, s*s)
		}
	}

	set(state.ErrAttitude, sd.Attitude)
	set(state.ErrPosition, sd.Position)
	set(state.ErrVelocity, sd.Velocity)
	set(state.ErrGyroBias, sd.GyroBias)
	set(state.ErrAccelBias, sd.AccelBias)
	set(state.ErrCameraOffset, sd.CameraOffset)

	return p
}

// reset drops all filter state and creates empty state with window of given capacity.
func (k *MSCKF) reset(capacity int) error {
	x := state.NewNominal(capacity)
	x.SetCameraOffset(k.pcb0)

	w, err := state.NewWindow(x, capacity)
	if err != nil {
		return err
	}

	p, err := state.NewCovariance(k.p0)
	if err != nil {
		return err
	}

	k.x, k.w, k.p = x, w, p
	k.features = feature.NewStore()
	k.batch.Reset()
	k.initialized = false
	k.imu = false

	return nil
}

// SetCamera sets camera intrinsics and image size.
func (k *MSCKF) SetCamera(fx, fy, cx, cy, height, width float64) error {
	if err := k.cam.SetIntrinsics(fx, fy, cx, cy); err != nil {
		return err
	}

	return k.cam.SetImageSize(height, width)
}

// SetDistortion sets camera lens distortion coefficients.
func (k *MSCKF) SetDistortion(k1, k2, p1, p2, k3 float64) {
	k.cam.SetDistortion(k1, k2, p1, p2, k3)
}

// SetIMUCameraRotation sets the rotation taking IMU frame vectors into the camera frame.
// It returns error if r is not a 3x3 rotation matrix.
func (k *MSCKF) SetIMUCameraRotation(r mat.Matrix) error {
	if err := checkRotation(r); err != nil {
		return err
	}

	k.rcb = mat.DenseCopyOf(r)

	return nil
}

// SetProcessNoise sets IMU noise variances.
// It returns error if any of them is negative.
func (k *MSCKF) SetProcessNoise(gyro, accel, gyroRW, accelRW float64) error {
	n := ProcessNoise{Gyro: gyro, Accel: accel, GyroRandomWalk: gyroRW, AccelRandomWalk: accelRW}
	if err := n.Validate(); err != nil {
		return err
	}

	q := mat.NewDense(state.BaseErrorSize, state.BaseErrorSize, nil)
	set := func(off int, v float64) {
		for i := off; i < off+3; i++ {
			q.Set(i, i, v)
		}
	}

	set(state.ErrAttitude, gyro)
	set(state.ErrVelocity, accel)
	set(state.ErrGyroBias, gyroRW)
	set(state.ErrAccelBias, accelRW)

	k.noise, k.q = n, q

	return nil
}

// SetMeasurementNoise sets pixel noise standard deviation.
// It returns error if sigma is not positive.
func (k *MSCKF) SetMeasurementNoise(sigma float64) error {
	if sigma <= 0 || math.IsNaN(sigma) {
		return errors.Errorf("invalid measurement noise: %g", sigma)
	}
	k.sigma = sigma

	return nil
}

// Initialize resets the filter and sets its initial orientation q, position p,
// velocity v, gyroscope bias bg and accelerometer bias ba.
// q rotates global frame vectors into the IMU frame.
// It returns error if q is a zero quaternion.
func (k *MSCKF) Initialize(q quat.Number, p, v, bg, ba r3.Vector) error {
	if quat.Abs(q) == 0 || quat.IsNaN(q) || quat.IsInf(q) {
		return errors.Errorf("invalid orientation: %v", q)
	}

	if err := k.reset(k.w.Cap()); err != nil {
		return err
	}

	// nominal state keeps the inverse rotation
	k.x.SetOrientation(quat.Conj(q))
	k.x.SetPosition(p)
	k.x.SetVelocity(v)
	k.x.SetGyroBias(bg)
	k.x.SetAccelBias(ba)
	k.initialized = true

	k.log.Debugw("filter initialized", "position", p, "velocity", v)

	return nil
}

// Orientation returns orientation quaternion rotating global frame vectors into the IMU frame.
func (k *MSCKF) Orientation() quat.Number { return quat.Conj(k.x.Orientation()) }

// Rotation returns rotation matrix of Orientation.
func (k *MSCKF) Rotation() *mat.Dense { return rotation.Matrix(k.Orientation()) }

// Position returns IMU position.
func (k *MSCKF) Position() r3.Vector { return k.x.Position() }

// Velocity returns IMU velocity.
func (k *MSCKF) Velocity() r3.Vector { return k.x.Velocity() }

// GyroBias returns gyroscope bias.
func (k *MSCKF) GyroBias() r3.Vector { return k.x.GyroBias() }

// AccelBias returns accelerometer bias.
func (k *MSCKF) AccelBias() r3.Vector { return k.x.AccelBias() }

// CameraOffset returns camera-IMU translation offset.
func (k *MSCKF) CameraOffset() r3.Vector { return k.x.CameraOffset() }

// Cov returns a copy of the error state covariance.
func (k *MSCKF) Cov() mat.Symmetric {
	cov := mat.NewSymDense(k.p.Dim(), nil)
	cov.CopySym(k.p.Sym())

	return cov
}

// Estimate returns snapshot of the nominal state and its covariance.
// Orientations in the snapshot rotate global frame vectors into the IMU frame.
func (k *MSCKF) Estimate() (vio.Estimate, error) {
	val := k.x.Vector()
	conj := func(off int) {
		for i := off + 1; i < off+4; i++ {
			val.SetVec(i, -val.AtVec(i))
		}
	}

	// IMU orientation leads the nominal vector
	conj(0)
	for i := 0; i < k.w.Len(); i++ {
		conj(state.NominalSlotOffset(i))
	}

	est, err := estimate.New(val, k.p.Sym(), k.w.Len())
	if err != nil {
		return nil, err
	}

	return est, nil
}

// Window returns poses stored in the sliding window, oldest first.
// Their orientations rotate global frame vectors into the IMU frame.
func (k *MSCKF) Window() []state.SlideState {
	states := k.w.States()
	for i := range states {
		states[i].Q = quat.Conj(states[i].Q)
	}

	return states
}

// Features returns feature track store.
func (k *MSCKF) Features() *feature.Store {
	return k.features
}

// Camera returns camera model.
func (k *MSCKF) Camera() *camera.Pinhole {
	return k.cam
}

// cameraPose returns pose of the camera attached to IMU pose s.
func (k *MSCKF) cameraPose(s state.SlideState) vio.Pose {
	rwb := rotation.Matrix(s.Q)

	rwc := &mat.Dense{}
	rwc.Mul(rwb, k.rcb.T())

	pcb := k.x.CameraOffset()

	return vio.Pose{
		Q: rotation.FromMatrix(rwc),
		P: s.P.Sub(matrix.MulVec3(rwc, pcb)),
	}
}

func checkRotation(r mat.Matrix) error {
	if rows, cols := r.Dims(); rows != 3 || cols != 3 {
		return errors.Errorf("invalid rotation dimensions: %d x %d", rows, cols)
	}

	rrt := &mat.Dense{}
	rrt.Mul(r, r.T())
	if !mat.EqualApprox(rrt, matrix.Eye(3), rotationTolerance) {
		return errors.New("rotation matrix is not orthonormal")
	}

	if d := mat.Det(r); math.Abs(d-1) > rotationTolerance {
		return errors.Errorf("invalid rotation determinant: %g", d)
	}

	return nil
}
