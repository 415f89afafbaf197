package forecaster

import (
	"errors"
	"fmt"
	"io"
	"text/tabwriter"

	"github.com/aouyang1/go-dynforecaster/design"
	"github.com/aouyang1/go-dynforecaster/drawstore"
	"github.com/aouyang1/go-dynforecaster/family"
	"github.com/aouyang1/go-dynforecaster/timedataset"
	"github.com/aouyang1/go-dynforecaster/trend"
	"github.com/goccy/go-json"
)

// Parameter names of the stored linear predictor and hindcasts
const (
	ParamObsCoef = "b"
	ParamMus     = "mus"
	ParamYPred   = "ypred"
)

var (
	ErrInvalidModel          = errors.New("invalid fitted model")
	ErrUnserialisableBuilder = errors.New("design builder cannot be serialised")
)

// Model is a fitted model as produced by an external sampler. The draws hold
// every sampled parameter while the builders reconstruct the linear predictors
// for new rows.
type Model struct {
	Series SeriesIndex
	Family family.Family
	Trend  trend.Spec

	Draws *drawstore.Store

	// Obs builds the fixed effect design whose coefficients are stored as b. Nil
	// when the model only has a dynamic trend.
	Obs design.Builder

	// TrendDesign builds the trend linear predictor whose coefficients are
	// stored as b_trend. Nil when the trend has no formula.
	TrendDesign design.Builder

	// Train holds the training rows and Test the rows forecast at fit time, if
	// any. Stored per time parameters cover both.
	Train timedataset.Table
	Test  timedataset.Table
}

// TrainEnd is the last time index of the training period
func (m *Model) TrainEnd() int {
	return m.Train.MaxTime()
}

// StoredTimes is the number of time indices covered by the stored per time
// parameters
func (m *Model) StoredTimes() int {
	return max(m.Train.MaxTime(), m.Test.MaxTime())
}

// Validate checks that the fitted model is internally consistent
func (m *Model) Validate() error {
	if m == nil {
		return fmt.Errorf("nil model, %w", ErrInvalidModel)
	}
	if m.Draws == nil {
		return fmt.Errorf("no draws, %w", ErrInvalidModel)
	}
	if m.Series.Len() == 0 {
		return fmt.Errorf("no series, %w", ErrInvalidModel)
	}
	if err := m.Train.Validate(nil); err != nil {
		return fmt.Errorf("training data, %w, %w", ErrInvalidModel, err)
	}
	trainEnd := m.TrainEnd()
	for _, r := range m.Train {
		if _, exists := m.Series.Index(r.Series); !exists {
			return fmt.Errorf("training series %q not indexed, %w", r.Series, ErrInvalidModel)
		}
	}
	if len(m.Test) > 0 {
		if err := m.Test.Validate(nil); err != nil {
			return fmt.Errorf("test data, %w, %w", ErrInvalidModel, err)
		}
		for _, r := range m.Test {
			if _, exists := m.Series.Index(r.Series); !exists {
				return fmt.Errorf("test series %q not indexed, %w", r.Series, ErrInvalidModel)
			}
			if r.Time <= trainEnd {
				return fmt.Errorf("test series %q at time %d within training period ending %d, %w", r.Series, r.Time, trainEnd, ErrInvalidModel)
			}
		}
	}
	if m.Obs != nil && !m.Draws.Has(ParamObsCoef) {
		return fmt.Errorf("fixed effects without %q, %w", ParamObsCoef, drawstore.ErrUnknownParameter)
	}
	if m.Obs == nil && !m.Trend.Family.Dynamic() {
		return fmt.Errorf("no fixed effects and no dynamic trend, %w", ErrInvalidModel)
	}
	return nil
}

// requiredCovariates returns the covariates new rows must carry when the
// builders can report them
func (m *Model) requiredCovariates() []string {
	type covariateLister interface {
		Covariates() []string
	}
	var names []string
	seen := make(map[string]struct{})
	for _, b := range []design.Builder{m.Obs, m.TrendDesign} {
		lister, ok := b.(covariateLister)
		if !ok {
			continue
		}
		for _, name := range lister.Covariates() {
			if _, exists := seen[name]; exists {
				continue
			}
			seen[name] = struct{}{}
			names = append(names, name)
		}
	}
	return names
}

// ModelFile is the serialised form of a fitted model without its draws
type ModelFile struct {
	Series     SeriesIndex       `json:"series"`
	Family     family.Family     `json:"family"`
	Trend      trend.Spec        `json:"trend"`
	ObsBasis   *design.Basis     `json:"observation_basis,omitempty"`
	TrendBasis *design.Basis     `json:"trend_basis,omitempty"`
	Train      timedataset.Table `json:"train"`
	Test       timedataset.Table `json:"test,omitempty"`
}

// File returns the serialisable description of the model. Only Basis builders
// can be serialised.
func (m *Model) File() (*ModelFile, error) {
	f := &ModelFile{
		Series: m.Series,
		Family: m.Family,
		Trend:  m.Trend,
		Train:  m.Train,
		Test:   m.Test,
	}
	var err error
	if f.ObsBasis, err = asBasis(m.Obs); err != nil {
		return nil, fmt.Errorf("observation design, %w", err)
	}
	if f.TrendBasis, err = asBasis(m.TrendDesign); err != nil {
		return nil, fmt.Errorf("trend design, %w", err)
	}
	return f, nil
}

func asBasis(b design.Builder) (*design.Basis, error) {
	if b == nil {
		return nil, nil
	}
	basis, ok := b.(*design.Basis)
	if !ok {
		return nil, fmt.Errorf("%T, %w", b, ErrUnserialisableBuilder)
	}
	return basis, nil
}

// Model attaches draws to a deserialised model description
func (f *ModelFile) Model(draws *drawstore.Store) *Model {
	m := &Model{
		Series: f.Series,
		Family: f.Family,
		Trend:  f.Trend,
		Draws:  draws,
		Train:  f.Train,
		Test:   f.Test,
	}
	if f.ObsBasis != nil {
		m.Obs = f.ObsBasis
	}
	if f.TrendBasis != nil {
		m.TrendDesign = f.TrendBasis
	}
	return m
}

// LoadModel decodes a model description and attaches the draws to it
func LoadModel(r io.Reader, draws *drawstore.Store) (*Model, error) {
	var f ModelFile
	if err := json.NewDecoder(r).Decode(&f); err != nil {
		return nil, fmt.Errorf("unable to decode model, %w", err)
	}
	m := f.Model(draws)
	if err := m.Validate(); err != nil {
		return nil, err
	}
	return m, nil
}

// TablePrint writes a human readable description of the fitted model
func (m *Model) TablePrint(w io.Writer, prefix, indent string) error {
	if _, err := fmt.Fprintf(w, "%s%sModel:\n", prefix, indentExpand(indent, 0)); err != nil {
		return err
	}
	if _, err := fmt.Fprintf(w, "%s%sFamily: %s\n", prefix, indentExpand(indent, 1), m.Family); err != nil {
		return err
	}
	if _, err := fmt.Fprintf(w, "%s%sTrend: %s    Drift: %t    Latent Factors: %d\n",
		prefix, indentExpand(indent, 1),
		m.Trend.Family, m.Trend.Drift, m.Trend.LatentFactors,
	); err != nil {
		return err
	}
	if _, err := fmt.Fprintf(w, "%s%sTraining End Time: %d    Stored Times: %d\n",
		prefix, indentExpand(indent, 1), m.TrainEnd(), m.StoredTimes()); err != nil {
		return err
	}

	if m.Draws != nil {
		if _, err := fmt.Fprintf(w, "%s%sDraws: %d\n", prefix, indentExpand(indent, 1), m.Draws.NumDraws()); err != nil {
			return err
		}
	}

	if _, err := fmt.Fprintf(w, "%s%sSeries:\n", prefix, indentExpand(indent, 0)); err != nil {
		return err
	}
	tbl := tabwriter.NewWriter(w, 0, 0, 1, ' ', tabwriter.AlignRight)
	if _, err := fmt.Fprintf(tbl, "%s%sPosition\tLabel\tTrain\tTest\t\n", prefix, indentExpand(indent, 1)); err != nil {
		return err
	}
	for i := 0; i < m.Series.Len(); i++ {
		label := m.Series.Label(i)
		if _, err := fmt.Fprintf(tbl, "%s%s%d\t%s\t%d\t%d\t\n",
			prefix, indentExpand(indent, 1),
			i, label, len(m.Train.Times(label)), len(m.Test.Times(label)),
		); err != nil {
			return err
		}
	}
	if err := tbl.Flush(); err != nil {
		return err
	}
	_, err := fmt.Fprintln(w)
	return err
}
