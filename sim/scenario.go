package sim

import (
	"math"

	"github.com/golang/geo/r2"
	"github.com/golang/geo/r3"
	vio "github.com/milosgajdos/go-vio"
	"github.com/milosgajdos/go-vio/camera"
	"github.com/milosgajdos/go-vio/feature"
	"github.com/milosgajdos/go-vio/matrix"
	"github.com/milosgajdos/go-vio/noise"
	"github.com/milosgajdos/go-vio/rotation"
	"github.com/pkg/errors"
	"golang.org/x/exp/rand"
	"gonum.org/v1/gonum/mat"
)

// Gravity is the magnitude of simulated gravity acting along negative global z axis
const Gravity = 9.81

type track struct {
	id     int
	length int
}

// Scenario simulates a rig moving counter-clockwise along a horizontal circle
// centered at the origin. IMU x axis points along the direction of motion,
// y axis up and z axis away from the circle center. The camera frame
// coincides with the IMU frame, so the camera looks at the landmark cylinder.
type Scenario struct {
	c         Config
	cam       *camera.Pinhole
	landmarks []r3.Vector
	gyro      vio.Noise
	accel     vio.Noise
	pixel     vio.Noise
	tracks    map[int]*track
	nextID    int
}

// NewScenario creates new scenario observed with camera cam.
// It returns error if c is not a valid configuration.
func NewScenario(c Config, cam *camera.Pinhole) (*Scenario, error) {
	if err := c.Validate(); err != nil {
		return nil, err
	}

	if cam == nil {
		return nil, errors.New("nil camera")
	}

	gyro, err := noise.NewIsotropic(3, c.GyroNoise, c.Seed+1)
	if err != nil {
		return nil, err
	}

	accel, err := noise.NewIsotropic(3, c.AccelNoise, c.Seed+2)
	if err != nil {
		return nil, err
	}

	pixel, err := noise.NewIsotropic(2, c.PixelNoise, c.Seed+3)
	if err != nil {
		return nil, err
	}

	rnd := rand.New(rand.NewSource(c.Seed))
	landmarks := make([]r3.Vector, c.Landmarks)
	for i := range landmarks {
		phi := 2 * math.Pi * rnd.Float64()
		landmarks[i] = r3.Vector{
			X: c.LandmarkRadius * math.Cos(phi),
			Y: c.LandmarkRadius * math.Sin(phi),
			Z: c.LandmarkHeight * (rnd.Float64() - 0.5),
		}
	}

	return &Scenario{
		c:         c,
		cam:       cam,
		landmarks: landmarks,
		gyro:      gyro,
		accel:     accel,
		pixel:     pixel,
		tracks:    make(map[int]*track),
	}, nil
}

// Landmarks returns landmark positions.
func (s *Scenario) Landmarks() []r3.Vector {
	return s.landmarks
}

// Truth returns true rig state at time t.
func (s *Scenario) Truth(t float64) Truth {
	r, w := s.c.Radius, s.c.Rate
	th := w * t
	sin, cos := math.Sincos(th)

	radial := r3.Vector{X: cos, Y: sin}
	tangent := r3.Vector{X: -sin, Y: cos}
	up := r3.Vector{Z: 1}

	rwb := mat.NewDense(3, 3, []float64{
		tangent.X, up.X, radial.X,
		tangent.Y, up.Y, radial.Y,
		tangent.Z, up.Z, radial.Z,
	})

	return Truth{
		T: t,
		Q: rotation.FromMatrix(rwb),
		P: radial.Mul(r),
		V: tangent.Mul(r * w),
	}
}

// IMU returns IMU reading at time t.
func (s *Scenario) IMU(t float64) IMUSample {
	r, w := s.c.Radius, s.c.Rate

	gyro := r3.Vector{Y: w}
	accel := r3.Vector{Y: Gravity, Z: -r * w * w}

	return IMUSample{
		T:     t,
		Gyro:  gyro.Add(matrix.Vec3(s.gyro.Sample(), 0)),
		Accel: accel.Add(matrix.Vec3(s.accel.Sample(), 0)),
	}
}

// Observe returns observations of landmarks visible from the rig in state tr.
// Landmarks keep their track id while they stay visible for at most
// MaxTrackLength frames in a row.
func (s *Scenario) Observe(tr Truth) []feature.Observation {
	rbw := rotation.Matrix(tr.Q).T()

	var obs []feature.Observation
	for i, l := range s.landmarks {
		pc := matrix.MulVec3(rbw, l.Sub(tr.P))

		px, ok := s.project(pc)
		if !ok {
			delete(s.tracks, i)
			continue
		}

		t, ok := s.tracks[i]
		if !ok || t.length >= s.c.MaxTrackLength {
			t = &track{id: s.nextID}
			s.nextID++
			s.tracks[i] = t
		}
		t.length++

		n := s.pixel.Sample()
		obs = append(obs, feature.Observation{
			ID:    t.id,
			Point: r2.Point{X: px.X + n.AtVec(0), Y: px.Y + n.AtVec(1)},
		})
	}

	return obs
}

func (s *Scenario) project(pc r3.Vector) (r2.Point, bool) {
	if pc.Z < s.c.MinDepth {
		return r2.Point{}, false
	}

	px := s.cam.Project(pc)

	return px, s.cam.InBounds(px)
}

// Events runs the scenario and returns IMU and camera frame events in time order.
// A camera frame shares its timestamp with the IMU sample preceding it.
func (s *Scenario) Events() []Event {
	n := int(math.Round(s.c.Duration * s.c.IMURate))

	events := make([]Event, 0, n+n/s.c.IMUPerFrame+2)
	for k := 0; k <= n; k++ {
		t := float64(k) / s.c.IMURate
		tr := s.Truth(t)
		imu := s.IMU(t)

		events = append(events, Event{IMU: &imu, Truth: tr})

		if k%s.c.IMUPerFrame == 0 {
			events = append(events, Event{
				Frame: &Frame{T: t, Observations: s.Observe(tr)},
				Truth: tr,
			})
		}
	}

	return events
}
