package forecaster

import (
	"errors"
	"fmt"

	"github.com/goccy/go-json"
)

var (
	ErrEmptySeriesIndex = errors.New("series index has no labels")
	ErrDuplicateSeries  = errors.New("duplicate series label")
)

// SeriesIndex maps series labels onto their fixed positions in a fitted model
type SeriesIndex struct {
	labels []string
	pos    map[string]int
}

// NewSeriesIndex creates an index with the labels in position order
func NewSeriesIndex(labels []string) (SeriesIndex, error) {
	if len(labels) == 0 {
		return SeriesIndex{}, ErrEmptySeriesIndex
	}
	pos := make(map[string]int, len(labels))
	for i, l := range labels {
		if l == "" {
			return SeriesIndex{}, fmt.Errorf("position %d has no label, %w", i, ErrEmptySeriesIndex)
		}
		if _, exists := pos[l]; exists {
			return SeriesIndex{}, fmt.Errorf("%q, %w", l, ErrDuplicateSeries)
		}
		pos[l] = i
	}
	return SeriesIndex{labels: append([]string(nil), labels...), pos: pos}, nil
}

// Index returns the position of a label
func (s SeriesIndex) Index(label string) (int, bool) {
	i, exists := s.pos[label]
	return i, exists
}

// Label returns the label at a position
func (s SeriesIndex) Label(i int) string {
	return s.labels[i]
}

func (s SeriesIndex) Len() int {
	return len(s.labels)
}

// Labels returns a copy of the labels in position order
func (s SeriesIndex) Labels() []string {
	return append([]string(nil), s.labels...)
}

// Order returns the label to position mapping used for sorting rows
func (s SeriesIndex) Order() map[string]int {
	res := make(map[string]int, len(s.pos))
	for k, v := range s.pos {
		res[k] = v
	}
	return res
}

func (s SeriesIndex) MarshalJSON() ([]byte, error) {
	return json.Marshal(s.labels)
}

func (s *SeriesIndex) UnmarshalJSON(data []byte) error {
	var labels []string
	if err := json.Unmarshal(data, &labels); err != nil {
		return err
	}
	idx, err := NewSeriesIndex(labels)
	if err != nil {
		return err
	}
	*s = idx
	return nil
}
