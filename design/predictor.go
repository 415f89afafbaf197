package design

import (
	"errors"
	"fmt"
	"math"

	"github.com/aouyang1/go-dynforecaster/timedataset"
	"github.com/aouyang1/go-dynforecaster/trend"
)

// TrendHistoryLags is the number of training rows per series reconstructed
// before new rows in a trend design
const TrendHistoryLags = 3

var (
	ErrNoTrendBuilder    = errors.New("no trend design builder")
	ErrTrendPathMismatch = errors.New("trend design rows do not cover the requested path")
)

// LinearPredictor builds the observation and optional trend designs of a
// fitted model in series order
type LinearPredictor struct {
	Obs   Builder
	Trend Builder

	// Order maps each series label to its position
	Order map[string]int
}

// Build returns the observation design of the rows sorted by series then time
func (l *LinearPredictor) Build(rows timedataset.Table) (*Matrix, error) {
	if len(rows) == 0 {
		return nil, ErrNoRows
	}
	sorted := rows.SortBySeriesTime(l.Order)
	m, err := l.Obs.Build(sorted)
	if err != nil {
		return nil, fmt.Errorf("unable to build observation design, %w", err)
	}
	if err := m.validate(); err != nil {
		return nil, err
	}
	return m, nil
}

// BuildTrend returns the trend design of the last lags training rows per series
// followed by the new rows, all sorted by time then series. Offsets missing
// from the reconstructed rows are zero filled.
func (l *LinearPredictor) BuildTrend(train, rows timedataset.Table, lags int) (*Matrix, error) {
	if l.Trend == nil {
		return nil, ErrNoTrendBuilder
	}
	hist := train.LastRows(lags).SortByTimeSeries(l.Order)
	next := rows.SortByTimeSeries(l.Order)

	all := make(timedataset.Table, 0, len(hist)+len(next))
	all = append(all, hist...)
	all = append(all, next...)
	if len(all) == 0 {
		return nil, ErrNoRows
	}

	m, err := l.Trend.Build(all)
	if err != nil {
		return nil, fmt.Errorf("unable to build trend design, %w", err)
	}
	if err := m.validate(); err != nil {
		return nil, err
	}
	for i, o := range m.Offset {
		if math.IsNaN(o) {
			m.Offset[i] = 0.0
		}
	}
	return m, nil
}

// TrendPaths evaluates a trend design under one draw of the trend coefficients
// and returns the trend mean of each requested series in time order
func TrendPaths(m *Matrix, coef []float64, series []string) ([][]float64, error) {
	eta, err := m.Eta(coef)
	if err != nil {
		return nil, err
	}
	pos := make(map[string]int, len(series))
	for i, s := range series {
		pos[s] = i
	}
	paths := make([][]float64, len(series))
	lastTime := make([]int, len(series))
	for i, r := range m.Rows {
		p, exists := pos[r.Series]
		if !exists {
			continue
		}
		if len(paths[p]) > 0 && r.Time <= lastTime[p] {
			return nil, fmt.Errorf("series %q at time %d after time %d, %w", r.Series, r.Time, lastTime[p], ErrTrendPathMismatch)
		}
		paths[p] = append(paths[p], eta[i])
		lastTime[p] = r.Time
	}
	return paths, nil
}

// TrendMean splits trend paths into the lags steps preceding the propagation
// origin and the horizon steps after it. Paths start with prefix reconstructed
// training steps and the origin is skip steps after the end of training.
func TrendMean(paths [][]float64, prefix, lags, skip, horizon int) (*trend.Mean, error) {
	origin := prefix + skip
	if origin < lags {
		return nil, fmt.Errorf("%d steps before the origin for %d lags, %w", origin, lags, ErrTrendPathMismatch)
	}
	mean := &trend.Mean{
		History: make([][]float64, len(paths)),
		Future:  make([][]float64, len(paths)),
	}
	for d, p := range paths {
		if len(p) < origin+horizon {
			return nil, fmt.Errorf("dim %d has %d steps, need %d, %w", d, len(p), origin+horizon, ErrTrendPathMismatch)
		}
		mean.History[d] = append([]float64(nil), p[origin-lags:origin]...)
		mean.Future[d] = append([]float64(nil), p[origin:origin+horizon]...)
	}
	return mean, nil
}
