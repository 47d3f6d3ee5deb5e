package noise

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"gonum.org/v1/gonum/mat"
)

func TestNewZero(t *testing.T) {
	assert := assert.New(t)

	e, err := NewZero(2)
	assert.NotNil(e)
	assert.NoError(err)

	e, err = NewZero(-10)
	assert.Nil(e)
	assert.Error(err)

	e, err = NewZero(0)
	assert.Nil(e)
	assert.Error(err)
}

func TestZeroMeanCov(t *testing.T) {
	assert := assert.New(t)

	e, err := NewZero(2)
	assert.NotNil(e)
	assert.NoError(err)

	assert.True(mat.Equal(mat.NewSymDense(2, nil), e.Cov()))
	assert.EqualValues([]float64{0, 0}, e.Mean())
}

func TestZeroSampleReset(t *testing.T) {
	assert := assert.New(t)

	e, err := NewZero(2)
	assert.NotNil(e)
	assert.NoError(err)

	sample1 := e.Sample()
	assert.Equal(2, sample1.Len())

	assert.NoError(e.Reset())
	assert.True(mat.Equal(sample1, e.Sample()))
}

func TestZeroString(t *testing.T) {
	assert := assert.New(t)

	str := `Zero{
Mean=[0 0]
Cov=⎡0  0⎤
    ⎣0  0⎦
}`

	e, err := NewZero(2)
	assert.NotNil(e)
	assert.NoError(err)
	assert.Equal(str, e.String())
}
