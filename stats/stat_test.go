package stats

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gonum.org/v1/gonum/mat"
)

func TestColMeans(t *testing.T) {
	m := mat.NewDense(3, 2, []float64{
		1, 10,
		2, math.NaN(),
		3, 20,
	})
	res, err := ColMeans(m)
	require.Nil(t, err)
	assert.InDeltaSlice(t, []float64{2, 15}, res, 1e-12)

	_, err = ColMeans(&mat.Dense{})
	assert.ErrorIs(t, err, ErrNoDraws)
}

func TestQuantiles(t *testing.T) {
	m := mat.NewDense(4, 1, []float64{4, 1, 3, 2})

	testData := map[string]struct {
		probs    []float64
		expected [][]float64
		err      error
	}{
		"median and extremes": {
			probs:    []float64{0, 0.5, 1},
			expected: [][]float64{{1}, {2}, {4}},
		},
		"invalid": {
			probs: []float64{1.5},
			err:   ErrInvalidQuantile,
		},
	}

	for name, td := range testData {
		t.Run(name, func(t *testing.T) {
			res, err := Quantiles(m, td.probs)
			if td.err != nil {
				assert.ErrorIs(t, err, td.err)
				return
			}
			require.Nil(t, err)
			assert.Equal(t, td.expected, res)
		})
	}
}

func TestCorrelation(t *testing.T) {
	a := mat.NewDense(4, 1, []float64{1, 2, 3, 4})
	b := mat.NewDense(4, 2, []float64{
		2, 4,
		4, 3,
		6, 2,
		8, 1,
	})
	c, err := Correlation(a, 0, b, 0)
	require.Nil(t, err)
	assert.InDelta(t, 1.0, c, 1e-12)

	c, err = Correlation(a, 0, b, 1)
	require.Nil(t, err)
	assert.InDelta(t, -1.0, c, 1e-12)

	_, err = Correlation(a, 0, b, 2)
	assert.ErrorIs(t, err, ErrColOutOfBounds)

	_, err = Correlation(a, 0, mat.NewDense(2, 1, nil), 0)
	assert.ErrorIs(t, err, ErrDrawLenMismatch)
}
