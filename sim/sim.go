// Package sim simulates a camera-IMU rig moving along a circular trajectory
// among landmarks scattered on a surrounding cylinder.
package sim

import (
	"github.com/golang/geo/r3"
	"github.com/milosgajdos/go-vio/feature"
	"github.com/pkg/errors"
	"gonum.org/v1/gonum/num/quat"
)

// Config configures simulated scenario
type Config struct {
	// Radius is trajectory radius [m]
	Radius float64 `yaml:"radius"`
	// Rate is angular rate of the rig around trajectory center [rad/s]
	Rate float64 `yaml:"rate"`
	// Duration is simulated time [s]
	Duration float64 `yaml:"duration"`
	// IMURate is IMU sampling rate [Hz]
	IMURate float64 `yaml:"imu_rate"`
	// IMUPerFrame is the number of IMU samples per camera frame
	IMUPerFrame int `yaml:"imu_per_frame"`
	// Landmarks is the number of landmarks
	Landmarks int `yaml:"landmarks"`
	// LandmarkRadius is the radius of the landmark cylinder [m]
	LandmarkRadius float64 `yaml:"landmark_radius"`
	// LandmarkHeight is the height of the landmark cylinder [m]
	LandmarkHeight float64 `yaml:"landmark_height"`
	// MaxTrackLength is the number of frames after which a track is restarted
	MaxTrackLength int `yaml:"max_track_length"`
	// MinDepth is minimum depth of visible landmarks [m]
	MinDepth float64 `yaml:"min_depth"`
	// GyroNoise is gyroscope noise standard deviation [rad/s]
	GyroNoise float64 `yaml:"gyro_noise"`
	// AccelNoise is accelerometer noise standard deviation [m/s^2]
	AccelNoise float64 `yaml:"accel_noise"`
	// PixelNoise is pixel noise standard deviation [px]
	PixelNoise float64 `yaml:"pixel_noise"`
	// Seed seeds landmark placement and sensor noise
	Seed uint64 `yaml:"seed"`
}

// DefaultConfig returns default scenario configuration.
func DefaultConfig() Config {
	return Config{
		Radius:         3.0,
		Rate:           0.5,
		Duration:       10.0,
		IMURate:        200,
		IMUPerFrame:    20,
		Landmarks:      300,
		LandmarkRadius: 12.0,
		LandmarkHeight: 6.0,
		MaxTrackLength: 6,
		MinDepth:       0.5,
		Seed:           1,
	}
}

// Validate returns error if c is not a valid scenario configuration.
func (c Config) Validate() error {
	if c.Radius <= 0 || c.Duration <= 0 || c.IMURate <= 0 {
		return errors.Errorf("invalid trajectory: radius %g, duration %g, imu rate %g", c.Radius, c.Duration, c.IMURate)
	}

	if c.IMUPerFrame <= 0 {
		return errors.Errorf("invalid imu samples per frame: %d", c.IMUPerFrame)
	}

	if c.Landmarks <= 0 || c.LandmarkRadius <= c.Radius || c.LandmarkHeight < 0 {
		return errors.Errorf("invalid landmarks: %d at radius %g", c.Landmarks, c.LandmarkRadius)
	}

	if c.MaxTrackLength < 2 {
		return errors.Errorf("invalid max track length: %d", c.MaxTrackLength)
	}

	if c.GyroNoise < 0 || c.AccelNoise < 0 || c.PixelNoise < 0 {
		return errors.New("invalid sensor noise")
	}

	return nil
}

// Truth is true rig state
type Truth struct {
	// T is time
	T float64
	// Q rotates IMU frame vectors into the global frame
	Q quat.Number
	// P is IMU position
	P r3.Vector
	// V is IMU velocity
	V r3.Vector
}

// IMUSample is IMU reading
type IMUSample struct {
	// T is time
	T float64
	// Accel is specific force [m/s^2]
	Accel r3.Vector
	// Gyro is angular rate [rad/s]
	Gyro r3.Vector
}

// Frame is a camera frame
type Frame struct {
	// T is time
	T float64
	// Observations are feature observations
	Observations []feature.Observation
}

// Event is either IMU sample or camera frame along with the true rig state
type Event struct {
	// IMU is set for IMU events
	IMU *IMUSample
	// Frame is set for camera frame events
	Frame *Frame
	// Truth is true state at event time
	Truth Truth
}
