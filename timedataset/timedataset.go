// Package timedataset holds panel data for a collection of time series. Each row
// carries a series label, an integer time index, an outcome which may be
// unobserved, and the covariates used by the linear predictor.
package timedataset

import (
	"errors"
	"fmt"
	"math"
	"slices"
	"sort"

	"github.com/goccy/go-json"
	"gopkg.in/yaml.v3"
)

var (
	ErrNoTrainingData     = errors.New("no training data")
	ErrDuplicateRow       = errors.New("duplicate series and time in dataset")
	ErrMissingCovariate   = errors.New("missing required covariate")
	ErrMissingSeriesLabel = errors.New("missing series label")
	ErrNonPositiveTime    = errors.New("time index must be positive")
)

// Row is a single observation of a series at a time index. Y is NaN when the
// outcome is unobserved.
type Row struct {
	Series     string             `json:"series" yaml:"series"`
	Time       int                `json:"time" yaml:"time"`
	Y          float64            `json:"y" yaml:"y"`
	Covariates map[string]float64 `json:"covariates,omitempty" yaml:"covariates,omitempty"`
}

// Observed reports whether the outcome is present
func (r Row) Observed() bool {
	return !math.IsNaN(r.Y)
}

// Covariate returns the named covariate value
func (r Row) Covariate(name string) (float64, bool) {
	v, exists := r.Covariates[name]
	return v, exists
}

// rowDoc is the serialised form of a row where an unobserved outcome is null
// or omitted
type rowDoc struct {
	Series     string             `json:"series" yaml:"series"`
	Time       int                `json:"time" yaml:"time"`
	Y          *float64           `json:"y" yaml:"y"`
	Covariates map[string]float64 `json:"covariates,omitempty" yaml:"covariates,omitempty"`
}

func (d rowDoc) row() Row {
	r := Row{Series: d.Series, Time: d.Time, Y: math.NaN(), Covariates: d.Covariates}
	if d.Y != nil {
		r.Y = *d.Y
	}
	return r
}

func (r Row) MarshalJSON() ([]byte, error) {
	d := rowDoc{Series: r.Series, Time: r.Time, Covariates: r.Covariates}
	if r.Observed() {
		y := r.Y
		d.Y = &y
	}
	return json.Marshal(d)
}

func (r *Row) UnmarshalJSON(data []byte) error {
	var d rowDoc
	if err := json.Unmarshal(data, &d); err != nil {
		return err
	}
	*r = d.row()
	return nil
}

func (r *Row) UnmarshalYAML(value *yaml.Node) error {
	var d rowDoc
	if err := value.Decode(&d); err != nil {
		return err
	}
	*r = d.row()
	return nil
}

func (r Row) copy() Row {
	c := r
	if r.Covariates != nil {
		c.Covariates = make(map[string]float64, len(r.Covariates))
		for k, v := range r.Covariates {
			c.Covariates[k] = v
		}
	}
	return c
}

// Table is an ordered collection of rows across one or more series
type Table []Row

// Copy returns a deep copy of the table
func (t Table) Copy() Table {
	if t == nil {
		return nil
	}
	res := make(Table, len(t))
	for i, r := range t {
		res[i] = r.copy()
	}
	return res
}

// Validate checks that every row has a series label and a positive time index,
// that no series repeats a time index and that each row has the required covariates.
func (t Table) Validate(required []string) error {
	if len(t) == 0 {
		return ErrNoTrainingData
	}
	type key struct {
		series string
		time   int
	}
	seen := make(map[key]struct{}, len(t))
	for i, r := range t {
		if r.Series == "" {
			return fmt.Errorf("row %d, %w", i, ErrMissingSeriesLabel)
		}
		if r.Time < 1 {
			return fmt.Errorf("row %d has time %d, %w", i, r.Time, ErrNonPositiveTime)
		}
		k := key{r.Series, r.Time}
		if _, exists := seen[k]; exists {
			return fmt.Errorf("series %q at time %d, %w", r.Series, r.Time, ErrDuplicateRow)
		}
		seen[k] = struct{}{}
		for _, name := range required {
			if _, exists := r.Covariates[name]; !exists {
				return fmt.Errorf("%q for series %q at time %d, %w", name, r.Series, r.Time, ErrMissingCovariate)
			}
		}
	}
	return nil
}

// Filter returns the rows of a single series preserving their order
func (t Table) Filter(series string) Table {
	res := make(Table, 0, len(t))
	for _, r := range t {
		if r.Series == series {
			res = append(res, r)
		}
	}
	return res
}

// SortBySeriesTime returns a copy sorted by series position then time. Series
// missing from the order are placed last in label order.
func (t Table) SortBySeriesTime(order map[string]int) Table {
	res := t.Copy()
	pos := seriesPosition(order)
	sort.SliceStable(res, func(i, j int) bool {
		pi, pj := pos(res[i].Series), pos(res[j].Series)
		if pi != pj {
			return pi < pj
		}
		if res[i].Series != res[j].Series {
			return res[i].Series < res[j].Series
		}
		return res[i].Time < res[j].Time
	})
	return res
}

// SortByTimeSeries returns a copy sorted by time then series position
func (t Table) SortByTimeSeries(order map[string]int) Table {
	res := t.Copy()
	pos := seriesPosition(order)
	sort.SliceStable(res, func(i, j int) bool {
		if res[i].Time != res[j].Time {
			return res[i].Time < res[j].Time
		}
		pi, pj := pos(res[i].Series), pos(res[j].Series)
		if pi != pj {
			return pi < pj
		}
		return res[i].Series < res[j].Series
	})
	return res
}

func seriesPosition(order map[string]int) func(string) int {
	return func(label string) int {
		if p, exists := order[label]; exists {
			return p
		}
		return math.MaxInt
	}
}

// Labels returns the distinct series labels in first appearance order
func (t Table) Labels() []string {
	var labels []string
	seen := make(map[string]struct{})
	for _, r := range t {
		if _, exists := seen[r.Series]; exists {
			continue
		}
		seen[r.Series] = struct{}{}
		labels = append(labels, r.Series)
	}
	return labels
}

// Times returns the sorted distinct time indices of a series
func (t Table) Times(series string) []int {
	var times []int
	for _, r := range t {
		if r.Series == series {
			times = append(times, r.Time)
		}
	}
	slices.Sort(times)
	return slices.Compact(times)
}

// Observations returns the outcomes of a series sorted by time. Unobserved
// outcomes are NaN.
func (t Table) Observations(series string) []float64 {
	rows := t.Filter(series)
	sort.SliceStable(rows, func(i, j int) bool {
		return rows[i].Time < rows[j].Time
	})
	y := make([]float64, len(rows))
	for i, r := range rows {
		y[i] = r.Y
	}
	return y
}

// MaxTime returns the largest time index in the table or 0 if empty
func (t Table) MaxTime() int {
	var maxTime int
	for _, r := range t {
		if r.Time > maxTime {
			maxTime = r.Time
		}
	}
	return maxTime
}

// LastRows returns up to n rows with the largest time indices for each series
func (t Table) LastRows(n int) Table {
	if n <= 0 {
		return nil
	}
	bySeries := make(map[string]Table)
	for _, label := range t.Labels() {
		rows := t.Filter(label)
		sort.SliceStable(rows, func(i, j int) bool {
			return rows[i].Time < rows[j].Time
		})
		if len(rows) > n {
			rows = rows[len(rows)-n:]
		}
		bySeries[label] = rows
	}
	res := make(Table, 0, n*len(bySeries))
	for _, label := range t.Labels() {
		res = append(res, bySeries[label].Copy()...)
	}
	return res
}
