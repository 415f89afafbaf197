// Package design assembles the fixed effect and trend linear predictors for new
// rows of panel data.
package design

import (
	"errors"
	"fmt"

	"github.com/aouyang1/go-dynforecaster/timedataset"
	"gonum.org/v1/gonum/mat"
)

var (
	ErrNoRows            = errors.New("no rows to build a design for")
	ErrCoefMismatch      = errors.New("number of coefficients does not match the design columns")
	ErrDesignRowMismatch = errors.New("design rows do not match the input rows")
)

// Builder constructs a numeric design for rows of panel data. Implementations
// are provided by the model fitting side; Basis is a reference implementation.
type Builder interface {
	Build(rows timedataset.Table) (*Matrix, error)
}

// Matrix is a design along with the rows it was built from, in the same order
type Matrix struct {
	X *mat.Dense

	// Offset is added to the linear predictor, nil if the design has none
	Offset []float64

	Rows timedataset.Table
}

func (m *Matrix) validate() error {
	if m == nil || m.X == nil {
		return ErrNoRows
	}
	r, _ := m.X.Dims()
	if r != len(m.Rows) {
		return fmt.Errorf("%d design rows for %d rows, %w", r, len(m.Rows), ErrDesignRowMismatch)
	}
	if m.Offset != nil && len(m.Offset) != r {
		return fmt.Errorf("%d offsets for %d rows, %w", len(m.Offset), r, ErrDesignRowMismatch)
	}
	return nil
}

// Eta evaluates the linear predictor X*coef + offset for every row
func (m *Matrix) Eta(coef []float64) ([]float64, error) {
	if err := m.validate(); err != nil {
		return nil, err
	}
	r, c := m.X.Dims()
	if c != len(coef) {
		return nil, fmt.Errorf("%d columns and %d coefficients, %w", c, len(coef), ErrCoefMismatch)
	}
	eta := make([]float64, r)
	res := mat.NewVecDense(r, eta)
	res.MulVec(m.X, mat.NewVecDense(c, append([]float64(nil), coef...)))
	for i, o := range m.Offset {
		eta[i] += o
	}
	return eta, nil
}

// Series returns the design rows and offsets of a single series in their
// current order
func (m *Matrix) Series(label string) (*Matrix, error) {
	if err := m.validate(); err != nil {
		return nil, err
	}
	var idx []int
	for i, r := range m.Rows {
		if r.Series == label {
			idx = append(idx, i)
		}
	}
	_, c := m.X.Dims()
	res := &Matrix{Rows: make(timedataset.Table, 0, len(idx))}
	if len(idx) == 0 {
		return res, nil
	}
	res.X = mat.NewDense(len(idx), c, nil)
	if m.Offset != nil {
		res.Offset = make([]float64, len(idx))
	}
	for i, src := range idx {
		res.X.SetRow(i, m.X.RawRowView(src))
		if m.Offset != nil {
			res.Offset[i] = m.Offset[src]
		}
		res.Rows = append(res.Rows, m.Rows[src])
	}
	return res, nil
}
