package forecaster

import (
	"fmt"
	"math/rand/v2"

	"github.com/aouyang1/go-dynforecaster/design"
	"github.com/aouyang1/go-dynforecaster/family"
	"github.com/aouyang1/go-dynforecaster/trend"
	"gonum.org/v1/gonum/mat"
)

// drawRNG returns the random stream of one retained draw. Stream 0 drives the
// joint trend propagation and stream s+1 everything specific to the series at
// position s, so outputs never depend on scheduling or on which other series
// were requested.
func drawRNG(seed uint64, pos, stream int) *rand.Rand {
	return rand.New(rand.NewPCG(seed, uint64(pos)<<32|uint64(stream)))
}

func (p *plan) drawError(task drawTask, series string, err error) error {
	return &DrawError{Draw: task.draw, Series: series, Output: p.output, Err: err}
}

// run computes the hindcast and forecast rows of every requested series for
// one draw
func (p *plan) run(task drawTask) (drawOutput, error) {
	out := drawOutput{
		hindcast: make([][]float64, len(p.series)),
		forecast: make([][]float64, len(p.series)),
	}

	var obs []family.Observation
	if p.needsObservation() {
		var err error
		obs, err = family.Extract(p.model.Draws, p.model.Family, task.draw, p.model.Series.Len())
		if err != nil {
			return out, p.drawError(task, "", err)
		}
	}
	observation := func(pos int) family.Observation {
		if obs == nil {
			return nil
		}
		return obs[pos]
	}

	for i, sp := range p.series {
		hind, err := p.storedValues(task.draw, sp.pos, sp.trainTimes, observation(sp.pos))
		if err != nil {
			return out, p.drawError(task, sp.label, fmt.Errorf("hindcast, %w", err))
		}
		out.hindcast[i] = hind

		storedTimes := make([]int, len(sp.storedIdx))
		for j, idx := range sp.storedIdx {
			storedTimes[j] = sp.testTimes[idx]
		}
		fcst := make([]float64, len(sp.testTimes))
		vals, err := p.storedValues(task.draw, sp.pos, storedTimes, observation(sp.pos))
		if err != nil {
			return out, p.drawError(task, sp.label, fmt.Errorf("stored forecast, %w", err))
		}
		for j, idx := range sp.storedIdx {
			fcst[idx] = vals[j]
		}
		out.forecast[i] = fcst
	}

	if p.horizon == 0 {
		return out, nil
	}

	var coef []float64
	if p.model.Obs != nil {
		var err error
		coef, err = p.model.Draws.Row(ParamObsCoef, task.draw)
		if err != nil {
			return out, p.drawError(task, "", err)
		}
	}

	var trends map[int][]float64
	rngs := make(map[int]*rand.Rand, len(p.series))
	if p.model.Trend.Family.Dynamic() {
		var err error
		trends, err = p.propagate(task, rngs)
		if err != nil {
			return out, err
		}
	}

	for i, sp := range p.series {
		if len(sp.simIdx) == 0 {
			continue
		}
		rng, exists := rngs[sp.pos]
		if !exists {
			rng = drawRNG(p.seed, task.pos, sp.pos+1)
		}

		pred := family.Predictor{Coef: coef}
		if sp.simObs != nil {
			pred.X = sp.simObs.X
			pred.Offset = sp.simObs.Offset
		}
		if trends != nil {
			pred.Trend = make([]float64, len(sp.simSteps))
			for j, step := range sp.simSteps {
				pred.Trend[j] = trends[sp.pos][step]
			}
		}
		vals, err := family.Simulate(pred, observation(sp.pos), p.output, rng)
		if err != nil {
			return out, p.drawError(task, sp.label, err)
		}
		for j, idx := range sp.simIdx {
			out.forecast[i][idx] = vals[j]
		}
	}
	return out, nil
}

func (p *plan) needsObservation() bool {
	switch p.output {
	case family.OutputExpected:
		return true
	case family.OutputResponse:
		return p.horizon > 0
	}
	return false
}

// storedValues reads the stored hindcast of a series at the given times on
// the requested output scale
func (p *plan) storedValues(draw, pos int, times []int, obs family.Observation) ([]float64, error) {
	if len(times) == 0 {
		return nil, nil
	}
	switch p.output {
	case family.OutputResponse:
		return p.storedSlice(ParamYPred, draw, pos, times)
	case family.OutputLink:
		return p.storedSlice(ParamMus, draw, pos, times)
	case family.OutputExpected:
		mus, err := p.storedSlice(ParamMus, draw, pos, times)
		if err != nil {
			return nil, err
		}
		return family.Transform(obs, family.OutputExpected, mus)
	case family.OutputTrend:
		// latent models may only store the factors
		if p.model.Trend.Latent() && !p.hasSeriesTrend() {
			return p.latentSlice(draw, pos, times)
		}
		return p.storedSlice(trend.ParamTrend, draw, pos, times)
	}
	return nil, fmt.Errorf("%s, %w", p.output, family.ErrUnknownOutput)
}

func (p *plan) hasSeriesTrend() bool {
	dim, err := p.model.Draws.Dim(trend.ParamTrend)
	return err == nil && p.layout.Validate(dim) == nil
}

// storedSlice reads a stored per series parameter at the given times
func (p *plan) storedSlice(name string, draw, pos int, times []int) ([]float64, error) {
	row, err := p.model.Draws.Row(name, draw)
	if err != nil {
		return nil, err
	}
	if err := p.layout.Validate(len(row)); err != nil {
		return nil, fmt.Errorf("%q, %w", name, err)
	}
	res := make([]float64, len(times))
	for i, t := range times {
		res[i] = row[p.layout.Column(pos, t)]
	}
	return res, nil
}

// latentSlice composes the trend of a series from the stored latent factors
func (p *plan) latentSlice(draw, pos int, times []int) ([]float64, error) {
	lv, err := p.model.Draws.Row(trend.ParamLatent, draw)
	if err != nil {
		return nil, err
	}
	loadings, err := p.model.Draws.Row(trend.ParamLoadings, draw)
	if err != nil {
		return nil, err
	}
	k := p.model.Trend.LatentFactors
	if len(loadings) != p.model.Series.Len()*k {
		return nil, fmt.Errorf("%q has %d values, %w", trend.ParamLoadings, len(loadings), trend.ErrLayoutMismatch)
	}
	layout := trend.Layout{Dims: k, Times: p.stored}
	if err := layout.Validate(len(lv)); err != nil {
		return nil, fmt.Errorf("%q, %w", trend.ParamLatent, err)
	}
	res := make([]float64, len(times))
	for i, t := range times {
		for f := 0; f < k; f++ {
			res[i] += loadings[pos*k+f] * lv[layout.Column(f, t)]
		}
	}
	return res, nil
}

// propagate simulates the trend of every requested series over the horizon
// keyed by series position. Independent trends are propagated per series with
// the stream of that series which is returned in rngs for the observation
// noise.
func (p *plan) propagate(task drawTask, rngs map[int]*rand.Rand) (map[int][]float64, error) {
	res := make(map[int][]float64, len(p.series))

	if p.joint {
		params, err := p.extractor.Extract(task.draw, trend.ExtractOptions{EndTime: p.origin})
		if err != nil {
			return nil, p.drawError(task, "", err)
		}
		var paths [][]float64
		if p.trendDesign != nil {
			paths, err = design.TrendPaths(p.trendDesign, params.TrendCoef, p.trendLabels)
			if err != nil {
				return nil, p.drawError(task, "", err)
			}
		}

		var recursionMean *trend.Mean
		if paths != nil && params.Loadings == nil {
			recursionMean, err = design.TrendMean(paths, p.histLags, lags(params.Params), 0, p.horizon)
			if err != nil {
				return nil, p.drawError(task, "", err)
			}
		}
		state, err := trend.Propagate(params, p.horizon, recursionMean, drawRNG(p.seed, task.pos, 0))
		if err != nil {
			return nil, p.drawError(task, "", err)
		}

		var series mat.Matrix = state
		if params.Loadings != nil {
			composed, err := trend.Compose(params.Loadings, state)
			if err != nil {
				return nil, p.drawError(task, "", err)
			}
			if paths != nil {
				mean, err := design.TrendMean(paths, p.histLags, 0, 0, p.horizon)
				if err != nil {
					return nil, p.drawError(task, "", err)
				}
				for s, future := range mean.Future {
					for t, v := range future {
						composed.Set(s, t, composed.At(s, t)+v)
					}
				}
			}
			series = composed
		}
		for _, sp := range p.series {
			res[sp.pos] = mat.Row(nil, sp.pos, series)
		}
		return res, nil
	}

	for i, sp := range p.series {
		if len(sp.simIdx) == 0 {
			continue
		}
		rng := drawRNG(p.seed, task.pos, sp.pos+1)
		rngs[sp.pos] = rng

		params, err := p.extractor.Extract(task.draw, trend.ExtractOptions{Series: []int{sp.pos}, EndTime: p.origin})
		if err != nil {
			return nil, p.drawError(task, sp.label, err)
		}
		var mean *trend.Mean
		if p.trendDesign != nil {
			paths, err := design.TrendPaths(p.trendDesign, params.TrendCoef, p.trendLabels[i:i+1])
			if err != nil {
				return nil, p.drawError(task, sp.label, err)
			}
			mean, err = design.TrendMean(paths, p.histLags, lags(params.Params), 0, p.horizon)
			if err != nil {
				return nil, p.drawError(task, sp.label, err)
			}
		}
		state, err := trend.Propagate(params, p.horizon, mean, rng)
		if err != nil {
			return nil, p.drawError(task, sp.label, err)
		}
		res[sp.pos] = mat.Row(nil, 0, state)
	}
	return res, nil
}

// lags is the number of states before the origin the propagation of params
// reads
func lags(params trend.Params) int {
	switch pr := params.(type) {
	case *trend.IndependentParams:
		return pr.Lags()
	case *trend.SharedParams:
		return pr.Lags()
	case *trend.GPParams:
		return len(pr.Times)
	}
	return 0
}
