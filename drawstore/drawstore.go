// Package drawstore provides read-only access to posterior parameter draws keyed
// by parameter name. Each parameter is a draws x dimension matrix where row i
// holds the i-th posterior sample.
package drawstore

import (
	"errors"
	"fmt"
	"sort"

	"gonum.org/v1/gonum/mat"
)

var (
	ErrUnknownParameter = errors.New("unknown parameter")
	ErrDrawOutOfRange   = errors.New("draw index out of range")
	ErrNoDraws          = errors.New("number of draws must be positive")
	ErrDrawLenMismatch  = errors.New("parameter has a different number of draws than the store")
	ErrEmptyParameter   = errors.New("parameter has no dimensions")
)

// Store is an immutable collection of posterior draws
type Store struct {
	numDraws int
	params   map[string]*mat.Dense
}

// New creates a store from a set of draw matrices. The matrices are copied and
// must all have numDraws rows.
func New(numDraws int, params map[string]*mat.Dense) (*Store, error) {
	if numDraws <= 0 {
		return nil, ErrNoDraws
	}
	s := &Store{
		numDraws: numDraws,
		params:   make(map[string]*mat.Dense, len(params)),
	}
	for name, m := range params {
		if m == nil || m.IsEmpty() {
			return nil, fmt.Errorf("%q, %w", name, ErrEmptyParameter)
		}
		r, _ := m.Dims()
		if r != numDraws {
			return nil, fmt.Errorf("%q has %d draws, expected %d, %w", name, r, numDraws, ErrDrawLenMismatch)
		}
		s.params[name] = mat.DenseCopyOf(m)
	}
	return s, nil
}

// NumDraws returns the number of posterior draws
func (s *Store) NumDraws() int {
	if s == nil {
		return 0
	}
	return s.numDraws
}

// Has reports whether the parameter was sampled
func (s *Store) Has(name string) bool {
	if s == nil {
		return false
	}
	_, exists := s.params[name]
	return exists
}

// Names returns the sampled parameter names in sorted order
func (s *Store) Names() []string {
	if s == nil {
		return nil
	}
	names := make([]string, 0, len(s.params))
	for name := range s.params {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Get returns a read-only view of the draws x dimension matrix of a parameter
func (s *Store) Get(name string) (mat.Matrix, error) {
	if s == nil {
		return nil, fmt.Errorf("%q, %w", name, ErrUnknownParameter)
	}
	m, exists := s.params[name]
	if !exists {
		return nil, fmt.Errorf("%q, %w", name, ErrUnknownParameter)
	}
	return readOnly{m}, nil
}

// Dim returns the dimension of a parameter
func (s *Store) Dim(name string) (int, error) {
	m, err := s.Get(name)
	if err != nil {
		return 0, err
	}
	_, n := m.Dims()
	return n, nil
}

// Row returns a copy of a single draw of a parameter
func (s *Store) Row(name string, draw int) ([]float64, error) {
	m, err := s.Get(name)
	if err != nil {
		return nil, err
	}
	if draw < 0 || draw >= s.numDraws {
		return nil, fmt.Errorf("draw %d with %d draws, %w", draw, s.numDraws, ErrDrawOutOfRange)
	}
	return mat.Row(nil, draw, m), nil
}

// readOnly hides the concrete matrix type so callers cannot mutate the store
// through a type assertion.
type readOnly struct {
	m *mat.Dense
}

func (r readOnly) Dims() (int, int)    { return r.m.Dims() }
func (r readOnly) At(i, j int) float64 { return r.m.At(i, j) }
func (r readOnly) T() mat.Matrix       { return mat.Transpose{Matrix: r} }
