package vio

import (
	"github.com/golang/geo/r2"
	"github.com/golang/geo/r3"
	"gonum.org/v1/gonum/mat"
	"gonum.org/v1/gonum/num/quat"
)

// Pose is a camera pose in the global frame
type Pose struct {
	// Q rotates camera frame vectors into the global frame
	Q quat.Number
	// P is the camera center in the global frame
	P r3.Vector
}

// Projector projects camera frame points onto the image plane
type Projector interface {
	// Project maps a camera frame point to image coordinates
	Project(r3.Vector) r2.Point
	// Jacobian returns the 2x3 derivative of Project at the given point
	Jacobian(r3.Vector) *mat.Dense
}

// Camera is a calibrated camera model
type Camera interface {
	// Projector projects points onto the image plane
	Projector
	// Triangulate recovers a global frame point from its observations
	Triangulate([]r2.Point, []Pose) (r3.Vector, error)
}

// Estimate is visual-inertial filter estimate
type Estimate interface {
	// Val returns estimate value
	Val() mat.Vector
	// Cov returns estimate covariance
	Cov() mat.Symmetric
}

// Noise is sensor noise
type Noise interface {
	// Mean returns noise mean
	Mean() []float64
	// Cov returns covariance matrix of the noise
	Cov() mat.Symmetric
	// Sample returns a sample of the noise
	Sample() mat.Vector
	// Reset resets the noise
	Reset() error
}

// Gate decides whether a measurement is consistent with the filter state.
// It receives the residual r, its Jacobian h, the current covariance p
// and the isotropic measurement standard deviation sigma.
type Gate interface {
	// Accept returns true if the measurement should be used
	Accept(r mat.Vector, h mat.Matrix, p mat.Symmetric, sigma float64) bool
}
