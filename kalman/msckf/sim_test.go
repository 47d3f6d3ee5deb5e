package msckf

import (
	"testing"

	"github.com/milosgajdos/go-vio/rotation"
	"github.com/milosgajdos/go-vio/sim"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gonum.org/v1/gonum/num/quat"
)

type runStats struct {
	frames      int
	corrections int
	rows        int
	posErr      float64
	attErr      float64
}

func runScenario(t *testing.T, sc sim.Config, opts ...Option) (*MSCKF, runStats) {
	k := newFilter(t)
	for _, opt := range opts {
		opt(k)
	}

	s, err := sim.NewScenario(sc, k.Camera())
	require.NoError(t, err)

	// discrete noise of a single IMU step
	dt := 1 / sc.IMURate
	gyro, accel := sc.GyroNoise*dt, sc.AccelNoise*dt
	require.NoError(t, k.SetProcessNoise(gyro*gyro+1e-14, accel*accel+1e-12, 1e-14, 1e-12))

	events := s.Events()
	tr := events[0].Truth
	require.NoError(t, k.Initialize(quat.Conj(tr.Q), tr.P, tr.V, k.GyroBias(), k.AccelBias()))

	var st runStats
	for _, e := range events {
		switch {
		case e.IMU != nil:
			require.NoError(t, k.ProcessIMU(e.IMU.T, e.IMU.Accel, e.IMU.Gyro))
		case e.Frame != nil:
			rep, err := k.ProcessImage(e.Frame.Observations)
			require.NoError(t, err)
			st.frames++
			if rep.Corrected {
				st.corrections++
			}
			st.rows += rep.Rows
			assert.Equal(t, rep.Window, len(k.Window()))
			assert.Equal(t, len(e.Frame.Observations), rep.Merge.Added+rep.Merge.Appended+rep.Merge.Ignored)
			checkInvariants(t, k)
		}

		st.posErr = k.Position().Sub(e.Truth.P).Norm()
		st.attErr = rotation.Log(quat.Mul(k.Orientation(), e.Truth.Q)).Norm()
	}

	return k, st
}

func TestScenarioNoiseless(t *testing.T) {
	assert := assert.New(t)

	sc := sim.DefaultConfig()
	sc.Duration = 6

	_, st := runScenario(t, sc)

	assert.Equal(61, st.frames)
	assert.Greater(st.corrections, 10)
	assert.Greater(st.rows, 0)
	assert.Less(st.posErr, 0.01)
	assert.Less(st.attErr, 1e-3)
}

func TestScenarioNoisy(t *testing.T) {
	assert := assert.New(t)

	sc := sim.DefaultConfig()
	sc.Duration = 6
	sc.PixelNoise = 0.5
	sc.GyroNoise = 1e-3
	sc.AccelNoise = 1e-2

	k, st := runScenario(t, sc, WithGate(&ChiSquareGate{Confidence: 0.999}))
	assert.Greater(st.corrections, 10)
	assert.Less(st.posErr, 0.5)
	assert.Less(st.attErr, 0.05)
	assert.LessOrEqual(k.w.Len(), k.w.Cap())
}
