// Package kalman defines interfaces implemented by visual-inertial Kalman filters.
package kalman

import (
	"fmt"

	"github.com/golang/geo/r3"
	vio "github.com/milosgajdos/go-vio"
	"github.com/milosgajdos/go-vio/feature"
	"gonum.org/v1/gonum/mat"
)

// Filter is visual-inertial filter
type Filter interface {
	// ProcessIMU propagates the filter state with IMU readings taken at time t
	ProcessIMU(t float64, accel, gyro r3.Vector) error
	// ProcessImage updates the filter state with image feature observations
	ProcessImage(obs []feature.Observation) (*Report, error)
	// Estimate returns the current filter estimate
	Estimate() (vio.Estimate, error)
}

// Kalman is Kalman filter
type Kalman interface {
	// Filter is visual-inertial filter
	Filter
	// Cov returns Kalman filter error state covariance
	Cov() mat.Symmetric
}

// Report summarizes processing of a single image
type Report struct {
	// Frame is the window index the image was stored at
	Frame int
	// Merge is the outcome of merging image observations
	Merge feature.Merge
	// Lost is the number of tracks marked lost
	Lost int
	// Deferred is the number of lost tracks too short to be used
	Deferred int
	// Rejected is the number of tracks which failed to triangulate
	Rejected int
	// Gated is the number of tracks rejected by the outlier gate
	Gated int
	// Measurements is the number of tracks used in the correction
	Measurements int
	// Rows is the number of measurement rows used in the correction
	Rows int
	// Corrected is true if the filter state was corrected
	Corrected bool
	// Removed is the number of poses removed from the window
	Removed int
	// Window is the window length after processing
	Window int
}

// String implements the Stringer interface.
func (r *Report) String() string {
	return fmt.Sprintf("Report{Frame=%d Added=%d Appended=%d Ignored=%d Lost=%d Deferred=%d Rejected=%d Gated=%d Measurements=%d Rows=%d Corrected=%t Removed=%d Window=%d}",
		r.Frame, r.Merge.Added, r.Merge.Appended, r.Merge.Ignored, r.Lost, r.Deferred, r.Rejected, r.Gated,
		r.Measurements, r.Rows, r.Corrected, r.Removed, r.Window)
}
