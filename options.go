package forecaster

import (
	"errors"
	"fmt"
	"strings"

	"github.com/aouyang1/go-dynforecaster/family"
	"github.com/aouyang1/go-dynforecaster/timedataset"
)

var (
	ErrInputValidation      = errors.New("invalid forecast request")
	ErrUnknownHorizonSource = errors.New("unknown horizon source")
)

// HorizonSource selects where the forecast rows come from
type HorizonSource uint8

const (
	// HorizonNewData forecasts the rows supplied with the request
	HorizonNewData HorizonSource = iota
	// HorizonStored forecasts the test rows the model was fit with
	HorizonStored
)

var horizonNames = map[HorizonSource]string{
	HorizonNewData: "newdata",
	HorizonStored:  "stored",
}

func (h HorizonSource) String() string {
	if name, exists := horizonNames[h]; exists {
		return name
	}
	return fmt.Sprintf("HorizonSource(%d)", uint8(h))
}

func (h HorizonSource) MarshalText() ([]byte, error) {
	if _, exists := horizonNames[h]; !exists {
		return nil, fmt.Errorf("%d, %w", uint8(h), ErrUnknownHorizonSource)
	}
	return []byte(h.String()), nil
}

func (h *HorizonSource) UnmarshalText(text []byte) error {
	name := strings.ToLower(strings.TrimSpace(string(text)))
	for src, n := range horizonNames {
		if n == name {
			*h = src
			return nil
		}
	}
	return fmt.Errorf("%q, %w", name, ErrUnknownHorizonSource)
}

// Request configures a single forecast call
type Request struct {
	// Series is the label of the series to forecast, empty for all series
	Series string `json:"series" yaml:"series"`

	// NewData are the rows to forecast when Horizon is HorizonNewData. The
	// outcome may be NaN.
	NewData timedataset.Table `json:"new_data,omitempty" yaml:"new_data,omitempty"`
	Horizon HorizonSource     `json:"horizon" yaml:"horizon"`

	Output family.Output `json:"output" yaml:"output"`

	// Parallelism is the number of draws simulated concurrently
	Parallelism int `json:"parallelism" yaml:"parallelism"`

	// NumDraws subsamples the stored draws, 0 keeps all of them. Draws are
	// sampled without replacement unless more are requested than stored.
	NumDraws int `json:"num_draws" yaml:"num_draws"`

	Seed uint64 `json:"seed" yaml:"seed"`
}

// NewDefaultRequest returns a request for response scale forecasts of all
// series over the stored test rows
func NewDefaultRequest() *Request {
	return &Request{
		Horizon:     HorizonStored,
		Output:      family.OutputResponse,
		Parallelism: 1,
	}
}

// validate checks the request against the model before any draw is simulated
func (r *Request) validate(m *Model) error {
	if r == nil {
		return fmt.Errorf("nil request, %w", ErrInputValidation)
	}
	if r.Series != "" {
		if _, exists := m.Series.Index(r.Series); !exists {
			return fmt.Errorf("unknown series %q, %w", r.Series, ErrInputValidation)
		}
	}
	if r.Parallelism < 1 {
		return fmt.Errorf("parallelism %d, %w", r.Parallelism, ErrInputValidation)
	}
	if r.NumDraws < 0 {
		return fmt.Errorf("number of draws %d, %w", r.NumDraws, ErrInputValidation)
	}
	if _, exists := horizonNames[r.Horizon]; !exists {
		return fmt.Errorf("%w, %w", ErrInputValidation, ErrUnknownHorizonSource)
	}
	if _, err := r.Output.MarshalText(); err != nil {
		return fmt.Errorf("%w, %w", ErrInputValidation, err)
	}
	if r.Output == family.OutputTrend && !m.Trend.Family.Dynamic() {
		return fmt.Errorf("trend output with trend family %s, %w", m.Trend.Family, family.ErrUnsupportedFamilyOutput)
	}

	switch r.Horizon {
	case HorizonStored:
		if len(m.Test) == 0 {
			return fmt.Errorf("model has no stored test rows, %w", ErrInputValidation)
		}
	case HorizonNewData:
		if len(r.NewData) == 0 {
			return fmt.Errorf("no new data, %w", ErrInputValidation)
		}
		if err := r.NewData.Validate(m.requiredCovariates()); err != nil {
			return fmt.Errorf("new data, %w, %w", ErrInputValidation, err)
		}
		trainEnd := m.TrainEnd()
		for _, row := range r.NewData {
			if _, exists := m.Series.Index(row.Series); !exists {
				return fmt.Errorf("new data series %q not in model, %w", row.Series, ErrInputValidation)
			}
			if row.Time <= trainEnd {
				return fmt.Errorf("new data series %q at time %d within training period ending %d, %w", row.Series, row.Time, trainEnd, ErrInputValidation)
			}
		}
	}
	return nil
}

// testRows returns the rows to forecast for the selected series
func (r *Request) testRows(m *Model, labels []string) timedataset.Table {
	src := m.Test
	if r.Horizon == HorizonNewData {
		src = r.NewData
	}
	keep := make(map[string]struct{}, len(labels))
	for _, l := range labels {
		keep[l] = struct{}{}
	}
	var rows timedataset.Table
	for _, row := range src {
		if _, exists := keep[row.Series]; exists {
			rows = append(rows, row)
		}
	}
	return rows.SortBySeriesTime(m.Series.Order())
}
