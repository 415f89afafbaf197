package trend

import (
	"errors"
	"fmt"
)

var ErrLayoutMismatch = errors.New("parameter dimension does not match the state layout")

// Layout describes how per-time parameters such as the trend state are
// flattened into a single draw row. Values are stored in dimension major blocks
// so the value of dimension d at time t (1 based) is at column d*Times + t - 1.
type Layout struct {
	Dims  int
	Times int
}

// Column returns the flattened column of dimension dim at time t
func (l Layout) Column(dim, t int) int {
	return dim*l.Times + t - 1
}

// Validate checks that a parameter with ncols columns follows the layout
func (l Layout) Validate(ncols int) error {
	if l.Dims*l.Times != ncols {
		return fmt.Errorf("expected %d dims x %d times, got %d columns, %w", l.Dims, l.Times, ncols, ErrLayoutMismatch)
	}
	return nil
}

// Window returns the values of a dimension over the inclusive time range
// [start, end] from a flattened draw row.
func (l Layout) Window(row []float64, dim, start, end int) []float64 {
	if end < start {
		return nil
	}
	res := make([]float64, end-start+1)
	copy(res, row[l.Column(dim, start):l.Column(dim, end)+1])
	return res
}
