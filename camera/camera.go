package camera

import (
	"math"

	"github.com/golang/geo/r2"
	"github.com/golang/geo/r3"
	"github.com/pkg/errors"
	"gonum.org/v1/gonum/mat"
)

var (
	// ErrInvalidInput is returned when triangulation inputs are malformed
	ErrInvalidInput = errors.New("invalid triangulation input")
	// ErrDegenerate is returned when triangulation yields an unusable point
	ErrDegenerate = errors.New("degenerate triangulation")
)

// Intrinsics are pinhole camera intrinsic parameters in pixels
type Intrinsics struct {
	// Fx is focal length along image x axis
	Fx float64 `yaml:"fx"`
	// Fy is focal length along image y axis
	Fy float64 `yaml:"fy"`
	// Cx is principal point x coordinate
	Cx float64 `yaml:"cx"`
	// Cy is principal point y coordinate
	Cy float64 `yaml:"cy"`
}

// Distortion are radial (K1, K2, K3) and tangential (P1, P2) distortion coefficients
type Distortion struct {
	K1 float64 `yaml:"k1"`
	K2 float64 `yaml:"k2"`
	P1 float64 `yaml:"p1"`
	P2 float64 `yaml:"p2"`
	K3 float64 `yaml:"k3"`
}

// Config is camera configuration
type Config struct {
	// Intrinsics are camera intrinsic parameters
	Intrinsics Intrinsics `yaml:"intrinsics"`
	// Distortion are lens distortion coefficients
	Distortion Distortion `yaml:"distortion"`
	// Height is image height in pixels
	Height float64 `yaml:"height"`
	// Width is image width in pixels
	Width float64 `yaml:"width"`
}

// Validate returns error if c is not a valid camera configuration.
func (c Config) Validate() error {
	if c.Intrinsics.Fx <= 0 || c.Intrinsics.Fy <= 0 {
		return errors.Errorf("invalid focal length: [%g x %g]", c.Intrinsics.Fx, c.Intrinsics.Fy)
	}

	if c.Height <= 0 || c.Width <= 0 {
		return errors.Errorf("invalid image size: [%g x %g]", c.Height, c.Width)
	}

	return nil
}

// Pinhole is a pinhole camera with radial-tangential lens distortion
type Pinhole struct {
	in     Intrinsics
	dist   Distortion
	height float64
	width  float64
	opts   TriangulateOptions
}

// New creates new Pinhole camera from c and returns it.
// It returns error if c is not a valid camera configuration.
func New(c Config) (*Pinhole, error) {
	if err := c.Validate(); err != nil {
		return nil, err
	}

	return &Pinhole{
		in:     c.Intrinsics,
		dist:   c.Distortion,
		height: c.Height,
		width:  c.Width,
		opts:   DefaultTriangulateOptions(),
	}, nil
}

// SetIntrinsics sets camera focal lengths and principal point.
func (c *Pinhole) SetIntrinsics(fx, fy, cx, cy float64) error {
	if fx <= 0 || fy <= 0 {
		return errors.Errorf("invalid focal length: [%g x %g]", fx, fy)
	}
	c.in = Intrinsics{Fx: fx, Fy: fy, Cx: cx, Cy: cy}

	return nil
}

// SetDistortion sets lens distortion coefficients.
func (c *Pinhole) SetDistortion(k1, k2, p1, p2, k3 float64) {
	c.dist = Distortion{K1: k1, K2: k2, P1: p1, P2: p2, K3: k3}
}

// SetImageSize sets image height and width in pixels.
func (c *Pinhole) SetImageSize(height, width float64) error {
	if height <= 0 || width <= 0 {
		return errors.Errorf("invalid image size: [%g x %g]", height, width)
	}
	c.height, c.width = height, width

	return nil
}

// SetTriangulateOptions sets Gauss-Newton triangulation options.
func (c *Pinhole) SetTriangulateOptions(o TriangulateOptions) error {
	if err := o.Validate(); err != nil {
		return err
	}
	c.opts = o

	return nil
}

// Config returns camera configuration.
func (c *Pinhole) Config() Config {
	return Config{
		Intrinsics: c.in,
		Distortion: c.dist,
		Height:     c.height,
		Width:      c.width,
	}
}

// InBounds returns true if px lies inside the image.
func (c *Pinhole) InBounds(px r2.Point) bool {
	return px.X >= 0 && px.Y >= 0 && px.X < c.width && px.Y < c.height
}

// distort maps normalized image coordinates (x, y) through the lens distortion.
func (c *Pinhole) distort(x, y float64) (float64, float64) {
	d := c.dist
	rsq := x*x + y*y
	radial := 1 + rsq*(d.K1+rsq*(d.K2+rsq*d.K3))

	xd := x*radial + 2*d.P1*x*y + d.P2*(rsq+2*x*x)
	yd := y*radial + d.P1*(rsq+2*y*y) + 2*d.P2*x*y

	return xd, yd
}

// Project projects camera frame point p onto the image plane and returns its pixel coordinates.
// Points with zero depth produce non-finite coordinates.
func (c *Pinhole) Project(p r3.Vector) r2.Point {
	xd, yd := c.distort(p.X/p.Z, p.Y/p.Z)

	return r2.Point{
		X: c.in.Fx*xd + c.in.Cx,
		Y: c.in.Fy*yd + c.in.Cy,
	}
}

// Jacobian returns 2x3 Jacobian of Project evaluated at camera frame point p.
func (c *Pinhole) Jacobian(p r3.Vector) *mat.Dense {
	d := c.dist
	x, y := p.X/p.Z, p.Y/p.Z
	rsq := x*x + y*y
	radial := 1 + rsq*(d.K1+rsq*(d.K2+rsq*d.K3))
	// d(radial)/d(rsq)
	dradial := d.K1 + rsq*(2*d.K2+3*d.K3*rsq)

	// distorted w.r.t. normalized coordinates
	dxx := radial + 2*x*x*dradial + 2*d.P1*y + 6*d.P2*x
	dxy := 2*x*y*dradial + 2*d.P1*x + 2*d.P2*y
	dyx := 2*x*y*dradial + 2*d.P1*x + 2*d.P2*y
	dyy := radial + 2*y*y*dradial + 6*d.P1*y + 2*d.P2*x

	// normalized coordinates w.r.t. camera frame point
	iz := 1 / p.Z
	nx := [3]float64{iz, 0, -x * iz}
	ny := [3]float64{0, iz, -y * iz}

	jac := mat.NewDense(2, 3, nil)
	for k := 0; k < 3; k++ {
		jac.Set(0, k, c.in.Fx*(dxx*nx[k]+dxy*ny[k]))
		jac.Set(1, k, c.in.Fy*(dyx*nx[k]+dyy*ny[k]))
	}

	return jac
}

// Undistort inverts the lens model and returns normalized image coordinates of px.
// It uses fixed point iteration which converges for moderate distortion.
func (c *Pinhole) Undistort(px r2.Point) r2.Point {
	xd := (px.X - c.in.Cx) / c.in.Fx
	yd := (px.Y - c.in.Cy) / c.in.Fy

	x, y := xd, yd
	for i := 0; i < undistortIterations; i++ {
		dx, dy := c.distort(x, y)
		x, y = x-(dx-xd), y-(dy-yd)
	}

	if math.IsNaN(x) || math.IsNaN(y) {
		return r2.Point{X: xd, Y: yd}
	}

	return r2.Point{X: x, Y: y}
}

const undistortIterations = 20
