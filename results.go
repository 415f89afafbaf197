package forecaster

import (
	"errors"
	"fmt"
	"math"
	"time"

	"github.com/aouyang1/go-dynforecaster/family"
	mat_ "github.com/aouyang1/go-dynforecaster/mat"
	"github.com/aouyang1/go-dynforecaster/stats"
	"github.com/aouyang1/go-dynforecaster/trend"
	"github.com/goccy/go-json"
	"github.com/google/uuid"
	"gonum.org/v1/gonum/mat"
)

var ErrUnknownResultSeries = errors.New("series not in forecast result")

// SeriesResult holds the observations and the draws x time hindcast and
// forecast matrices of one series
type SeriesResult struct {
	Label string

	TrainObservations []float64
	TrainTimes        []int
	TestObservations  []float64
	TestTimes         []int

	// Hindcast is draws x len(TrainTimes) and Forecast is draws x len(TestTimes).
	// A matrix is nil when the series has no times in its range.
	Hindcast *mat.Dense
	Forecast *mat.Dense
}

func (s *SeriesResult) copy() *SeriesResult {
	c := &SeriesResult{
		Label:             s.Label,
		TrainObservations: append([]float64(nil), s.TrainObservations...),
		TrainTimes:        append([]int(nil), s.TrainTimes...),
		TestObservations:  append([]float64(nil), s.TestObservations...),
		TestTimes:         append([]int(nil), s.TestTimes...),
	}
	if s.Hindcast != nil {
		c.Hindcast = mat.DenseCopyOf(s.Hindcast)
	}
	if s.Forecast != nil {
		c.Forecast = mat.DenseCopyOf(s.Forecast)
	}
	return c
}

// Provenance describes the model and request a result was produced from.
// Origin is the last stored time the trend propagation started from.
type Provenance struct {
	ID             uuid.UUID     `json:"id"`
	Family         family.Family `json:"family"`
	Trend          trend.Family  `json:"trend"`
	EffectiveTrend trend.Family  `json:"effective_trend"`
	LatentFactors  int           `json:"latent_factors"`
	Output         family.Output `json:"output"`
	Draws          []int         `json:"draws"`
	Origin         int           `json:"origin"`
	Seed           uint64        `json:"seed"`
	CreatedAt      time.Time     `json:"created_at"`
}

// Result is the immutable outcome of a forecast call. Accessors return copies.
type Result struct {
	provenance Provenance
	labels     []string
	series     map[string]*SeriesResult
}

func newResult(p Provenance, series []*SeriesResult) *Result {
	r := &Result{
		provenance: p,
		series:     make(map[string]*SeriesResult, len(series)),
	}
	for _, s := range series {
		r.labels = append(r.labels, s.Label)
		r.series[s.Label] = s
	}
	return r
}

func (r *Result) Provenance() Provenance {
	p := r.provenance
	p.Draws = append([]int(nil), r.provenance.Draws...)
	return p
}

// Labels returns the forecast series in model order
func (r *Result) Labels() []string {
	return append([]string(nil), r.labels...)
}

// NumDraws is the number of rows of every hindcast and forecast matrix
func (r *Result) NumDraws() int {
	return len(r.provenance.Draws)
}

// Series returns a copy of the result of a single series
func (r *Result) Series(label string) (*SeriesResult, error) {
	s, exists := r.series[label]
	if !exists {
		return nil, fmt.Errorf("%q, %w", label, ErrUnknownResultSeries)
	}
	return s.copy(), nil
}

// Band summarises a draws x time matrix with its mean and quantiles per time
type Band struct {
	Times     []int       `json:"times"`
	Mean      []float64   `json:"mean"`
	Probs     []float64   `json:"probs"`
	Quantiles [][]float64 `json:"quantiles"`
}

// Summary holds the hindcast and forecast bands of a series
type Summary struct {
	Label    string `json:"label"`
	Hindcast Band   `json:"hindcast"`
	Forecast Band   `json:"forecast"`
}

func newBand(m *mat.Dense, times []int, probs []float64) (Band, error) {
	b := Band{Times: append([]int(nil), times...), Probs: append([]float64(nil), probs...)}
	if len(times) == 0 {
		return b, nil
	}
	var err error
	if b.Mean, err = stats.ColMeans(m); err != nil {
		return Band{}, err
	}
	if b.Quantiles, err = stats.Quantiles(m, probs); err != nil {
		return Band{}, err
	}
	return b, nil
}

// Summary returns the mean and quantile bands over draws of a series
func (r *Result) Summary(label string, probs []float64) (*Summary, error) {
	s, exists := r.series[label]
	if !exists {
		return nil, fmt.Errorf("%q, %w", label, ErrUnknownResultSeries)
	}
	hind, err := newBand(s.Hindcast, s.TrainTimes, probs)
	if err != nil {
		return nil, fmt.Errorf("unable to summarise hindcast of %q, %w", label, err)
	}
	fcst, err := newBand(s.Forecast, s.TestTimes, probs)
	if err != nil {
		return nil, fmt.Errorf("unable to summarise forecast of %q, %w", label, err)
	}
	return &Summary{Label: label, Hindcast: hind, Forecast: fcst}, nil
}

// nullFloats serialises NaN as null
type nullFloats []float64

func (n nullFloats) MarshalJSON() ([]byte, error) {
	vals := make([]*float64, len(n))
	for i := range n {
		if !math.IsNaN(n[i]) {
			vals[i] = &n[i]
		}
	}
	return json.Marshal(vals)
}

func (n *nullFloats) UnmarshalJSON(data []byte) error {
	var vals []*float64
	if err := json.Unmarshal(data, &vals); err != nil {
		return err
	}
	res := make(nullFloats, len(vals))
	for i, v := range vals {
		res[i] = math.NaN()
		if v != nil {
			res[i] = *v
		}
	}
	*n = res
	return nil
}

type seriesDoc struct {
	Label             string       `json:"label"`
	TrainObservations nullFloats   `json:"train_observations"`
	TrainTimes        []int        `json:"train_times"`
	TestObservations  nullFloats   `json:"test_observations"`
	TestTimes         []int        `json:"test_times"`
	Hindcast          []nullFloats `json:"hindcast"`
	Forecast          []nullFloats `json:"forecast"`
}

type resultDoc struct {
	Provenance Provenance  `json:"provenance"`
	Series     []seriesDoc `json:"series"`
}

func matrixDoc(m *mat.Dense) []nullFloats {
	if m == nil {
		return nil
	}
	rows := mat_.ToArray(m)
	res := make([]nullFloats, len(rows))
	for i, r := range rows {
		res[i] = r
	}
	return res
}

// matrixFromDoc rebuilds a draws x cols matrix, nil when there are no draws
func matrixFromDoc(rows []nullFloats, cols int) (*mat.Dense, error) {
	if len(rows) == 0 || cols == 0 {
		return nil, nil
	}
	arr := make([][]float64, len(rows))
	for i, r := range rows {
		arr[i] = r
	}
	return mat_.NewDenseFromArray(arr)
}

func (r *Result) MarshalJSON() ([]byte, error) {
	doc := resultDoc{Provenance: r.provenance}
	for _, label := range r.labels {
		s := r.series[label]
		doc.Series = append(doc.Series, seriesDoc{
			Label:             s.Label,
			TrainObservations: s.TrainObservations,
			TrainTimes:        s.TrainTimes,
			TestObservations:  s.TestObservations,
			TestTimes:         s.TestTimes,
			Hindcast:          matrixDoc(s.Hindcast),
			Forecast:          matrixDoc(s.Forecast),
		})
	}
	return json.Marshal(doc)
}

func (r *Result) UnmarshalJSON(data []byte) error {
	var doc resultDoc
	if err := json.Unmarshal(data, &doc); err != nil {
		return err
	}
	series := make([]*SeriesResult, 0, len(doc.Series))
	for _, s := range doc.Series {
		hind, err := matrixFromDoc(s.Hindcast, len(s.TrainTimes))
		if err != nil {
			return fmt.Errorf("hindcast of %q, %w", s.Label, err)
		}
		fcst, err := matrixFromDoc(s.Forecast, len(s.TestTimes))
		if err != nil {
			return fmt.Errorf("forecast of %q, %w", s.Label, err)
		}
		series = append(series, &SeriesResult{
			Label:             s.Label,
			TrainObservations: s.TrainObservations,
			TrainTimes:        s.TrainTimes,
			TestObservations:  s.TestObservations,
			TestTimes:         s.TestTimes,
			Hindcast:          hind,
			Forecast:          fcst,
		})
	}
	*r = *newResult(doc.Provenance, series)
	return nil
}
