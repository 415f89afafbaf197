// Package stats summarises draws x time matrices of hindcasts and forecasts
package stats

import (
	"errors"
	"fmt"
	"math"
	"sort"

	"gonum.org/v1/gonum/mat"
	"gonum.org/v1/gonum/stat"
)

var (
	ErrNoDraws         = errors.New("need at least 1 draw to summarise")
	ErrInvalidQuantile = errors.New("quantile probability must be within [0, 1]")
	ErrColOutOfBounds  = errors.New("column out of bounds")
	ErrDrawLenMismatch = errors.New("matrices have a different number of draws")
)

// column returns the non NaN values of column j
func column(m mat.Matrix, j int) []float64 {
	r, _ := m.Dims()
	res := make([]float64, 0, r)
	for i := 0; i < r; i++ {
		if v := m.At(i, j); !math.IsNaN(v) {
			res = append(res, v)
		}
	}
	return res
}

// ColMeans returns the mean over draws of every column ignoring NaN entries
func ColMeans(m mat.Matrix) ([]float64, error) {
	r, c := m.Dims()
	if r == 0 {
		return nil, ErrNoDraws
	}
	res := make([]float64, c)
	for j := range res {
		vals := column(m, j)
		if len(vals) == 0 {
			res[j] = math.NaN()
			continue
		}
		res[j] = stat.Mean(vals, nil)
	}
	return res, nil
}

// Quantiles returns the empirical quantile over draws of every column for each
// probability, indexed [prob][column]
func Quantiles(m mat.Matrix, probs []float64) ([][]float64, error) {
	r, c := m.Dims()
	if r == 0 {
		return nil, ErrNoDraws
	}
	for _, p := range probs {
		if p < 0 || p > 1 || math.IsNaN(p) {
			return nil, fmt.Errorf("got %v, %w", p, ErrInvalidQuantile)
		}
	}
	res := make([][]float64, len(probs))
	for i := range res {
		res[i] = make([]float64, c)
	}
	for j := 0; j < c; j++ {
		vals := column(m, j)
		sort.Float64s(vals)
		for i, p := range probs {
			if len(vals) == 0 {
				res[i][j] = math.NaN()
				continue
			}
			res[i][j] = stat.Quantile(p, stat.Empirical, vals, nil)
		}
	}
	return res, nil
}

// Correlation returns the Pearson correlation across draws between column i of
// a and column j of b
func Correlation(a mat.Matrix, i int, b mat.Matrix, j int) (float64, error) {
	ra, ca := a.Dims()
	rb, cb := b.Dims()
	if ra != rb {
		return 0, fmt.Errorf("%d and %d draws, %w", ra, rb, ErrDrawLenMismatch)
	}
	if ra == 0 {
		return 0, ErrNoDraws
	}
	if i < 0 || i >= ca || j < 0 || j >= cb {
		return 0, fmt.Errorf("columns %d and %d, %w", i, j, ErrColOutOfBounds)
	}
	return stat.Correlation(mat.Col(nil, i, a), mat.Col(nil, j, b), nil), nil
}
