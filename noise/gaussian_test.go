package noise

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"gonum.org/v1/gonum/mat"
	"gonum.org/v1/gonum/stat"
)

func TestNewGaussian(t *testing.T) {
	assert := assert.New(t)

	mean := []float64{2, 3}
	cov := mat.NewSymDense(2, []float64{1, 0.1, 0.1, 1})

	g, err := NewGaussian(mean, cov)
	assert.NotNil(g)
	assert.NoError(err)

	// dimension mismatch
	g, err = NewGaussian([]float64{1}, cov)
	assert.Nil(g)
	assert.Error(err)

	// not positive definite
	g, err = NewGaussian(mean, mat.NewSymDense(2, []float64{1, 2, 2, 1}))
	assert.Nil(g)
	assert.Error(err)
}

func TestGaussianMeanCov(t *testing.T) {
	assert := assert.New(t)

	mean := []float64{2, 3}
	cov := mat.NewSymDense(2, []float64{1, 0.1, 0.1, 1})

	g, err := NewGaussian(mean, cov)
	assert.NotNil(g)
	assert.NoError(err)

	assert.True(mat.Equal(cov, g.Cov()))
	assert.EqualValues(mean, g.Mean())

	// returned values are copies
	g.Mean()[0] = 10
	assert.EqualValues(mean, g.Mean())
}

func TestGaussianSample(t *testing.T) {
	assert := assert.New(t)

	mean := []float64{2, -3}
	cov := mat.NewSymDense(2, []float64{0.25, 0, 0, 0.25})

	g, err := NewGaussianWithSeed(mean, cov, 42)
	assert.NoError(err)

	n := 2000
	xs := make([]float64, n)
	ys := make([]float64, n)
	for i := 0; i < n; i++ {
		s := g.Sample()
		assert.Equal(2, s.Len())
		xs[i], ys[i] = s.AtVec(0), s.AtVec(1)
	}

	assert.InDelta(2.0, stat.Mean(xs, nil), 0.05)
	assert.InDelta(-3.0, stat.Mean(ys, nil), 0.05)
	assert.InDelta(0.5, stat.StdDev(xs, nil), 0.05)
}

func TestGaussianReset(t *testing.T) {
	assert := assert.New(t)

	mean := []float64{2, 3}
	cov := mat.NewSymDense(2, []float64{1, 0.1, 0.1, 1})

	g, err := NewGaussianWithSeed(mean, cov, 7)
	assert.NotNil(g)
	assert.NoError(err)

	sample1 := g.Sample()
	sample2 := g.Sample()
	assert.False(mat.Equal(sample1, sample2))

	err = g.Reset()
	assert.NoError(err)
	assert.True(mat.Equal(sample1, g.Sample()))
}

func TestNewIsotropic(t *testing.T) {
	assert := assert.New(t)

	n, err := NewIsotropic(3, 0.5, 1)
	assert.NoError(err)
	assert.IsType(&Gaussian{}, n)
	assert.Equal(0.25, n.Cov().At(2, 2))
	assert.Equal(0.0, n.Cov().At(0, 2))

	n, err = NewIsotropic(3, 0, 1)
	assert.NoError(err)
	assert.IsType(&Zero{}, n)

	n, err = NewIsotropic(0, 1, 1)
	assert.Nil(n)
	assert.Error(err)

	n, err = NewIsotropic(3, -1, 1)
	assert.Nil(n)
	assert.Error(err)
}

func TestGaussianString(t *testing.T) {
	assert := assert.New(t)

	str := `Gaussian{
Mean=[2 3]
Cov=⎡  1  0.1⎤
    ⎣0.1    1⎦
}`
	mean := []float64{2, 3}
	cov := mat.NewSymDense(2, []float64{1, 0.1, 0.1, 1})

	g, err := NewGaussian(mean, cov)
	assert.NotNil(g)
	assert.NoError(err)
	assert.Equal(str, g.String())
}
