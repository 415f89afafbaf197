package mat

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gonum.org/v1/gonum/mat"
)

func TestNewDenseFromArray(t *testing.T) {
	testData := map[string]struct {
		draws [][]float64
		err   error
	}{
		"single draw":      {draws: [][]float64{{0.1, 0.2, 0.3}}},
		"single parameter": {draws: [][]float64{{1}, {2}, {3}}},
		"draws by values":  {draws: [][]float64{{1, 2, 3}, {4, 5, 6}}},
		"ragged draws":     {draws: [][]float64{{1, 2, 3}, {4, 5}}, err: ErrColMismatch},
	}
	for name, td := range testData {
		t.Run(name, func(t *testing.T) {
			mx, err := NewDenseFromArray(td.draws)
			if td.err != nil {
				assert.ErrorIs(t, err, td.err)
				return
			}
			require.Nil(t, err)

			r, c := mx.Dims()
			assert.Equal(t, len(td.draws), r)
			assert.Equal(t, len(td.draws[0]), c)
			assert.Equal(t, td.draws, ToArray(mx))
		})
	}

	assert.Panics(t, func() {
		_, _ = NewDenseFromArray(nil)
	})
	assert.Nil(t, ToArray(nil))
}

func TestHStack(t *testing.T) {
	a := mat.NewDense(2, 1, []float64{1, 2})
	b := mat.NewDense(2, 2, []float64{3, 4, 5, 6})

	res, err := HStack(a, &mat.Dense{}, b)
	require.Nil(t, err)
	assert.Equal(t, [][]float64{{1, 3, 4}, {2, 5, 6}}, ToArray(res))

	_, err = HStack(a, mat.NewDense(3, 1, nil))
	assert.ErrorIs(t, err, ErrRowMismatch)
}
