package drawstore

import (
	"fmt"
	"io"

	"github.com/goccy/go-json"
	"gonum.org/v1/gonum/mat"

	mat_ "github.com/aouyang1/go-dynforecaster/mat"
)

// document is the serialized form of a store where each parameter is a slice of
// draws and each draw is a slice of values
type document struct {
	NumDraws   int                    `json:"num_draws"`
	Parameters map[string][][]float64 `json:"parameters"`
}

// MarshalJSON serializes the store
func (s *Store) MarshalJSON() ([]byte, error) {
	doc := document{
		NumDraws:   s.NumDraws(),
		Parameters: make(map[string][][]float64),
	}
	if s != nil {
		for name, m := range s.params {
			doc.Parameters[name] = mat_.ToArray(m)
		}
	}
	return json.Marshal(doc)
}

// LoadJSON reads a store serialized with MarshalJSON
func LoadJSON(r io.Reader) (*Store, error) {
	var doc document
	if err := json.NewDecoder(r).Decode(&doc); err != nil {
		return nil, fmt.Errorf("unable to decode draws, %w", err)
	}

	params := make(map[string]*mat.Dense, len(doc.Parameters))
	for name, draws := range doc.Parameters {
		if len(draws) == 0 || len(draws[0]) == 0 {
			return nil, fmt.Errorf("%q, %w", name, ErrEmptyParameter)
		}
		m, err := mat_.NewDenseFromArray(draws)
		if err != nil {
			return nil, fmt.Errorf("unable to load parameter %q, %w", name, err)
		}
		params[name] = m
	}
	return New(doc.NumDraws, params)
}
