package forecaster

import (
	"fmt"
	"log/slog"
	"slices"

	"github.com/aouyang1/go-dynforecaster/design"
	"github.com/aouyang1/go-dynforecaster/family"
	"github.com/aouyang1/go-dynforecaster/timedataset"
	"github.com/aouyang1/go-dynforecaster/trend"
)

// seriesPlan holds the read only inputs of one requested series
type seriesPlan struct {
	label string
	pos   int

	trainTimes []int
	testTimes  []int
	testRows   timedataset.Table

	// storedIdx are positions in testTimes read from the stored draws and
	// simIdx those propagated from the origin
	storedIdx []int
	simIdx    []int

	// simSteps are the propagation steps, 0 based, of the simulated test times
	simSteps []int

	// simObs is the fixed effect design of the simulated rows, nil without
	// fixed effects
	simObs *design.Matrix
}

// plan is shared read only by every draw task of one forecast call
type plan struct {
	model     *Model
	extractor *trend.Extractor
	output    family.Output
	seed      uint64

	// layout of the stored per series parameters mus, ypred and trend
	layout trend.Layout
	stored int

	series []seriesPlan

	// origin is the last time whose stored state seeds the propagation. It is
	// the last stored time unless the requested rows change the covariates of
	// stored test times, in which case propagation restarts after training.
	origin int

	// horizon is the number of steps propagated beyond the origin
	horizon int

	// histLags is the number of rows up to the origin reconstructed per series
	// in the trend design
	histLags int

	// joint propagation covers every trend dimension at once
	joint bool

	// trendDesign is the trend linear predictor over the last histLags rows up
	// to the origin and the simulated rows of trendLabels, nil without a trend formula
	trendDesign *design.Matrix
	trendLabels []string
}

// drawTask is the immutable payload of one draw
type drawTask struct {
	pos  int
	draw int
}

// drawOutput holds one hindcast and forecast row per requested series
type drawOutput struct {
	hindcast [][]float64
	forecast [][]float64
}

func newPlan(m *Model, extractor *trend.Extractor, req *Request) (*plan, error) {
	p := &plan{
		model:     m,
		extractor: extractor,
		output:    req.Output,
		seed:      req.Seed,
		stored:    m.StoredTimes(),
	}
	p.layout = trend.Layout{Dims: m.Series.Len(), Times: p.stored}

	var labels []string
	if req.Series == "" {
		labels = m.Series.Labels()
	} else {
		labels = []string{req.Series}
	}
	rows := req.testRows(m, labels)

	p.origin = p.stored
	if t, changed := changedStoredRow(m, rows); changed {
		p.origin = m.TrainEnd()
		slog.Debug("requested covariates differ from stored test rows, propagating from end of training",
			"time", t,
			"origin", p.origin,
		)
	}

	lp := &design.LinearPredictor{Obs: m.Obs, Trend: m.TrendDesign, Order: m.Series.Order()}
	var simRows timedataset.Table
	for _, r := range rows {
		if r.Time > p.origin {
			simRows = append(simRows, r)
		}
	}
	var obsDesign *design.Matrix
	if m.Obs != nil && len(simRows) > 0 {
		var err error
		obsDesign, err = lp.Build(simRows)
		if err != nil {
			return nil, fmt.Errorf("%w, %w", ErrInputValidation, err)
		}
	}

	for _, label := range labels {
		pos, _ := m.Series.Index(label)
		sp := seriesPlan{
			label:      label,
			pos:        pos,
			trainTimes: m.Train.Times(label),
			testRows:   rows.Filter(label),
		}
		sp.testTimes = sp.testRows.Times(label)
		for i, t := range sp.testTimes {
			if t <= p.origin {
				sp.storedIdx = append(sp.storedIdx, i)
				continue
			}
			sp.simIdx = append(sp.simIdx, i)
			sp.simSteps = append(sp.simSteps, t-p.origin-1)
			p.horizon = max(p.horizon, t-p.origin)
		}
		if obsDesign != nil && len(sp.simIdx) > 0 {
			var err error
			if sp.simObs, err = obsDesign.Series(label); err != nil {
				return nil, err
			}
		}
		p.series = append(p.series, sp)
	}

	if p.horizon == 0 || !m.Trend.Family.Dynamic() {
		return p, nil
	}
	p.joint = m.Trend.Latent() || extractor.Effective() == trend.FamilyVAR1
	if m.TrendDesign == nil {
		return p, nil
	}
	p.histLags = design.TrendHistoryLags
	if extractor.Effective() == trend.FamilyGP && !m.Trend.Latent() {
		// the process conditions on every state up to the origin
		p.histLags = p.origin
	}
	return p, p.buildTrendDesign(m, lp, req, labels)
}

// changedStoredRow returns the first requested row at a stored test time whose
// covariates differ from the stored test row of that series and time
func changedStoredRow(m *Model, rows timedataset.Table) (int, bool) {
	stored := m.StoredTimes()
	names := m.requiredCovariates()
	type key struct {
		series string
		time   int
	}
	test := make(map[key]timedataset.Row, len(m.Test))
	for _, r := range m.Test {
		test[key{r.Series, r.Time}] = r
	}
	for _, r := range rows {
		if r.Time > stored {
			continue
		}
		prev, exists := test[key{r.Series, r.Time}]
		if !exists {
			return r.Time, true
		}
		for _, name := range names {
			a, aok := r.Covariate(name)
			b, bok := prev.Covariate(name)
			if aok != bok || a != b {
				return r.Time, true
			}
		}
	}
	return 0, false
}

// buildTrendDesign prepares the trend linear predictor covering the rows up to
// the origin and every propagated step. Joint trends need it for every series.
func (p *plan) buildTrendDesign(m *Model, lp *design.LinearPredictor, req *Request, labels []string) error {
	if !m.Draws.Has(trend.ParamTrendCoef) {
		return fmt.Errorf("trend formula without %q, %w", trend.ParamTrendCoef, ErrInputValidation)
	}
	p.trendLabels = labels
	if p.joint {
		p.trendLabels = m.Series.Labels()
	}

	src := m.Test
	if req.Horizon == HorizonNewData {
		src = req.NewData
	}
	var stored timedataset.Table
	for _, r := range slices.Concat(m.Train, m.Test) {
		if r.Time <= p.origin {
			stored = append(stored, r)
		}
	}

	var next timedataset.Table
	for _, label := range p.trendLabels {
		var rows timedataset.Table
		for _, r := range src.Filter(label) {
			if r.Time > p.origin {
				rows = append(rows, r)
			}
		}
		times := rows.Times(label)
		if len(times) != p.horizon || (len(times) > 0 && times[len(times)-1] != p.origin+p.horizon) {
			return fmt.Errorf("trend formula needs series %q at every time from %d to %d, %w",
				label, p.origin+1, p.origin+p.horizon, ErrInputValidation)
		}
		hist := stored.Filter(label).LastRows(p.histLags).Times(label)
		if len(hist) != p.histLags || (len(hist) > 0 && hist[0] != p.origin-p.histLags+1) {
			return fmt.Errorf("trend formula needs series %q at every time from %d to %d, %w",
				label, p.origin-p.histLags+1, p.origin, ErrInputValidation)
		}
		next = append(next, rows...)
	}

	var keep timedataset.Table
	for _, label := range p.trendLabels {
		keep = append(keep, stored.Filter(label)...)
	}
	var err error
	p.trendDesign, err = lp.BuildTrend(keep, next, p.histLags)
	if err != nil {
		return fmt.Errorf("%w, %w", ErrInputValidation, err)
	}
	return nil
}
