// Package mat holds small gonum helpers for moving draw matrices to and from
// row slices and for stacking design columns.
package mat

import (
	"errors"
	"fmt"

	"gonum.org/v1/gonum/mat"
)

var (
	ErrColMismatch = errors.New("column size mismatch")
	ErrRowMismatch = errors.New("row size mismatch")
)

// NewDenseFromArray builds a dense matrix from a slice of rows. All rows must
// have the same length.
func NewDenseFromArray(x [][]float64) (*mat.Dense, error) {
	m := len(x)

	n := -1
	for i, row := range x {
		if n >= 0 && len(row) != n {
			return nil, fmt.Errorf("at row %d, %w", i, ErrColMismatch)
		}
		if n < 0 {
			n = len(row)
		}
	}
	if n < 0 {
		n = 0
	}

	// flatten to row order
	data := make([]float64, 0, m*n)
	for _, row := range x {
		data = append(data, row...)
	}
	return mat.NewDense(m, n, data), nil
}

// ToArray copies a matrix into a slice of rows
func ToArray(x mat.Matrix) [][]float64 {
	if x == nil {
		return nil
	}
	m, _ := x.Dims()
	res := make([][]float64, m)
	for i := 0; i < m; i++ {
		res[i] = mat.Row(nil, i, x)
	}
	return res
}

// HStack concatenates matrices with the same number of rows column-wise. Empty
// matrices are skipped.
func HStack(xs ...mat.Matrix) (*mat.Dense, error) {
	var m, n int
	for _, x := range xs {
		if x == nil {
			continue
		}
		xm, xn := x.Dims()
		if xm == 0 || xn == 0 {
			continue
		}
		if m != 0 && xm != m {
			return nil, fmt.Errorf("got %d rows, expected %d, %w", xm, m, ErrRowMismatch)
		}
		m = xm
		n += xn
	}
	if m == 0 || n == 0 {
		return &mat.Dense{}, nil
	}
	res := mat.NewDense(m, n, nil)
	var offset int
	for _, x := range xs {
		if x == nil {
			continue
		}
		xm, xn := x.Dims()
		if xm == 0 || xn == 0 {
			continue
		}
		res.Slice(0, m, offset, offset+xn).(*mat.Dense).Copy(x)
		offset += xn
	}
	return res, nil
}

// Rows returns the number of rows of x treating nil and empty matrices as zero.
func Rows(x mat.Matrix) int {
	if x == nil {
		return 0
	}
	if d, ok := x.(*mat.Dense); ok && d.IsEmpty() {
		return 0
	}
	m, _ := x.Dims()
	return m
}

// Cols returns the number of columns of x treating nil and empty matrices as zero.
func Cols(x mat.Matrix) int {
	if x == nil {
		return 0
	}
	if d, ok := x.(*mat.Dense); ok && d.IsEmpty() {
		return 0
	}
	_, n := x.Dims()
	return n
}
