package msckf

import (
	"os"

	"github.com/golang/geo/r3"
	"github.com/milosgajdos/go-vio/camera"
	"github.com/pkg/errors"
	"gonum.org/v1/gonum/mat"
	"gopkg.in/yaml.v3"
)

const (
	// DefaultWindowSize is the default sliding window capacity
	DefaultWindowSize = 10
	// DefaultMinTrackLength is the default minimum number of observations
	// a feature track needs before it is used in a correction
	DefaultMinTrackLength = 4
	// DefaultPixelNoise is the default pixel noise standard deviation
	DefaultPixelNoise = 1.0
	// StandardGravity is the magnitude of gravity [m/s^2]
	StandardGravity = 9.81
)

// ProcessNoise configures IMU noise variances added to the error
// covariance on every propagation step
type ProcessNoise struct {
	// Gyro is gyroscope noise variance
	Gyro float64 `yaml:"gyro"`
	// Accel is accelerometer noise variance
	Accel float64 `yaml:"accel"`
	// GyroRandomWalk is gyroscope bias random walk variance
	GyroRandomWalk float64 `yaml:"gyro_random_walk"`
	// AccelRandomWalk is accelerometer bias random walk variance
	AccelRandomWalk float64 `yaml:"accel_random_walk"`
}

// Validate returns error if any of the noise values is negative.
func (p ProcessNoise) Validate() error {
	if p.Gyro < 0 || p.Accel < 0 || p.GyroRandomWalk < 0 || p.AccelRandomWalk < 0 {
		return errors.Errorf("invalid process noise: %+v", p)
	}

	return nil
}

// InitialStdDev configures initial error state standard deviations
type InitialStdDev struct {
	Attitude     float64 `yaml:"attitude"`
	Position     float64 `yaml:"position"`
	Velocity     float64 `yaml:"velocity"`
	GyroBias     float64 `yaml:"gyro_bias"`
	AccelBias    float64 `yaml:"accel_bias"`
	CameraOffset float64 `yaml:"camera_offset"`
}

// Config is MSCKF configuration
type Config struct {
	// Camera configures the camera model
	Camera camera.Config `yaml:"camera"`
	// Triangulation configures feature triangulation
	Triangulation camera.TriangulateOptions `yaml:"triangulation"`
	// IMUCameraRotation is the row-major 3x3 rotation R_cb taking IMU frame
	// vectors into the camera frame. Identity is used when empty.
	IMUCameraRotation []float64 `yaml:"imu_camera_rotation"`
	// CameraOffset is the initial camera-IMU translation offset
	CameraOffset [3]float64 `yaml:"camera_offset"`
	// Gravity is gravity vector in the global frame
	Gravity [3]float64 `yaml:"gravity"`
	// ProcessNoise configures IMU noise
	ProcessNoise ProcessNoise `yaml:"process_noise"`
	// PixelNoise is isotropic pixel noise standard deviation
	PixelNoise float64 `yaml:"pixel_noise"`
	// WindowSize is the sliding window capacity
	WindowSize int `yaml:"window_size"`
	// MinTrackLength is the minimum number of observations of a usable track
	MinTrackLength int `yaml:"min_track_length"`
	// InitialStdDev configures initial covariance
	InitialStdDev InitialStdDev `yaml:"initial_std_dev"`
	// GateConfidence enables chi-square outlier gating when in (0, 1)
	GateConfidence float64 `yaml:"gate_confidence"`
}

// DefaultConfig returns default MSCKF configuration.
func DefaultConfig() *Config {
	return &Config{
		Camera: camera.Config{
			Intrinsics: camera.Intrinsics{Fx: 458.654, Fy: 457.296, Cx: 367.215, Cy: 248.375},
			Distortion: camera.Distortion{K1: -0.28340811, K2: 0.07395907, P1: 0.00019359, P2: 1.76187114e-05},
			Height:     480,
			Width:      752,
		},
		Triangulation:     camera.DefaultTriangulateOptions(),
		IMUCameraRotation: []float64{1, 0, 0, 0, 1, 0, 0, 0, 1},
		Gravity:           [3]float64{0, 0, -StandardGravity},
		ProcessNoise: ProcessNoise{
			Gyro:            1e-6,
			Accel:           1e-4,
			GyroRandomWalk:  1e-10,
			AccelRandomWalk: 1e-8,
		},
		PixelNoise:     DefaultPixelNoise,
		WindowSize:     DefaultWindowSize,
		MinTrackLength: DefaultMinTrackLength,
		InitialStdDev: InitialStdDev{
			Attitude:     1.0,
			Position:     1.0,
			Velocity:     1.0,
			GyroBias:     1.0,
			AccelBias:    1.0,
			CameraOffset: 1.0,
		},
	}
}

// Validate returns error if c is not a valid configuration.
func (c *Config) Validate() error {
	if err := c.Camera.Validate(); err != nil {
		return errors.Wrap(err, "camera")
	}

	if err := c.Triangulation.Validate(); err != nil {
		return errors.Wrap(err, "triangulation")
	}

	if _, err := c.imuCameraRotation(); err != nil {
		return err
	}

	if err := c.ProcessNoise.Validate(); err != nil {
		return err
	}

	if c.PixelNoise <= 0 {
		return errors.Errorf("invalid pixel noise: %g", c.PixelNoise)
	}

	if c.MinTrackLength < 2 {
		return errors.Errorf("invalid min track length: %d", c.MinTrackLength)
	}

	// a track must fit into the window next to the newest frame
	if c.WindowSize < c.MinTrackLength+1 {
		return errors.Errorf("invalid window size: %d < %d", c.WindowSize, c.MinTrackLength+1)
	}

	sd := c.InitialStdDev
	if sd.Attitude < 0 || sd.Position < 0 || sd.Velocity < 0 || sd.GyroBias < 0 || sd.AccelBias < 0 || sd.CameraOffset < 0 {
		return errors.Errorf("invalid initial standard deviations: %+v", sd)
	}

	if c.GateConfidence < 0 || c.GateConfidence >= 1 {
		return errors.Errorf("invalid gate confidence: %g", c.GateConfidence)
	}

	return nil
}

func (c *Config) imuCameraRotation() (*mat.Dense, error) {
	if len(c.IMUCameraRotation) == 0 {
		return mat.NewDense(3, 3, []float64{1, 0, 0, 0, 1, 0, 0, 0, 1}), nil
	}

	if len(c.IMUCameraRotation) != 9 {
		return nil, errors.Errorf("invalid imu camera rotation size: %d", len(c.IMUCameraRotation))
	}

	data := make([]float64, 9)
	copy(data, c.IMUCameraRotation)
	r := mat.NewDense(3, 3, data)

	if err := checkRotation(r); err != nil {
		return nil, err
	}

	return r, nil
}

func vec(a [3]float64) r3.Vector {
	return r3.Vector{X: a[0], Y: a[1], Z: a[2]}
}

// LoadConfig reads YAML configuration from path. Values missing in the file
// keep their defaults. It returns error if the file can not be read or the
// resulting configuration is invalid.
func LoadConfig(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, errors.Wrapf(err, "read config %s", path)
	}

	c := DefaultConfig()
	if err := yaml.Unmarshal(data, c); err != nil {
		return nil, errors.Wrapf(err, "parse config %s", path)
	}

	if err := c.Validate(); err != nil {
		return nil, errors.Wrapf(err, "invalid config %s", path)
	}

	return c, nil
}
