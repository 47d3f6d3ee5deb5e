package sim

import (
	"testing"

	"github.com/golang/geo/r3"
	"github.com/stretchr/testify/assert"
)

func TestNewTrajectoryPlot(t *testing.T) {
	assert := assert.New(t)

	truth := []r3.Vector{{X: 0, Y: 0}, {X: 1, Y: 1}, {X: 2, Y: 0}}
	filter := []r3.Vector{{X: 0, Y: 0.1}, {X: 1, Y: 1.1}, {X: 2, Y: 0.1}}

	plt, err := NewTrajectoryPlot(truth, filter, nil)
	assert.NotNil(plt)
	assert.NoError(err)

	plt, err = NewTrajectoryPlot(truth, filter, []r3.Vector{{X: 5, Y: 5}})
	assert.NotNil(plt)
	assert.NoError(err)

	plt, err = NewTrajectoryPlot(nil, nil, nil)
	assert.Nil(plt)
	assert.Error(err)

	plt, err = NewTrajectoryPlot(truth[:1], filter, nil)
	assert.Nil(plt)
	assert.Error(err)
}
