package forecaster

import (
	"math"
	"math/rand/v2"
	"testing"

	"github.com/aouyang1/go-dynforecaster/design"
	"github.com/aouyang1/go-dynforecaster/drawstore"
	"github.com/aouyang1/go-dynforecaster/family"
	"github.com/aouyang1/go-dynforecaster/timedataset"
	"github.com/aouyang1/go-dynforecaster/trend"
	"github.com/stretchr/testify/require"
	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/mat"
)

const testIntercept = 2.0

type testModelConfig struct {
	draws    int
	series   []string
	trainEnd int
	// testEnd is the last stored test time, 0 without stored test rows
	testEnd int

	spec     trend.Spec
	shared   bool
	phi      float64
	drift    float64
	sd       float64
	loadings []float64

	// level shifts every stored trend state
	level float64
	// rho is the length scale of gaussian process trends
	rho float64

	// obs and obsCoef replace the intercept only observation design
	obs     design.Builder
	obsCoef []float64

	// trendDesign and trendCoef add a trend formula stored as b_trend
	trendDesign design.Builder
	trendCoef   []float64

	family family.Family
	seed   uint64

	// mutate edits the draws before they are stored
	mutate func(params map[string]*mat.Dense)
}

func defaultTestModelConfig() testModelConfig {
	return testModelConfig{
		draws:    20,
		series:   []string{"a", "b", "c"},
		trainEnd: 10,
		spec:     trend.Spec{Family: trend.FamilyRandomWalk},
		phi:      1.0,
		sd:       0.1,
		rho:      3.0,
		family:   family.Gaussian,
		seed:     11,
	}
}

func covariates(t int) map[string]float64 {
	return map[string]float64{"x": float64(t)}
}

// newTestModel simulates the draws a sampler would store for a model with an
// intercept, a dynamic trend and a gaussian observation family
func newTestModel(t testing.TB, cfg testModelConfig) *Model {
	rng := rand.New(rand.NewPCG(cfg.seed, 1))
	numSeries := len(cfg.series)
	stored := max(cfg.trainEnd, cfg.testEnd)
	dims := cfg.spec.Dims(numSeries)
	dynamic := cfg.spec.Family.Dynamic()

	params := make(map[string]*mat.Dense)
	constant := func(name string, cols int, val float64) {
		m := mat.NewDense(cfg.draws, cols, nil)
		for d := 0; d < cfg.draws; d++ {
			for c := 0; c < cols; c++ {
				m.Set(d, c, val)
			}
		}
		params[name] = m
	}

	layout := trend.Layout{Dims: dims, Times: stored}
	state := mat.NewDense(cfg.draws, dims*stored, nil)
	if dynamic {
		for d := 0; d < cfg.draws; d++ {
			for k := 0; k < dims; k++ {
				path := timedataset.GenerateAR(stored, []float64{cfg.phi}, cfg.drift, cfg.sd, rng)
				for tm := 1; tm <= stored; tm++ {
					state.Set(d, layout.Column(k, tm), path[tm-1]+cfg.level+float64(k))
				}
			}
		}
		if cfg.spec.Latent() {
			params[trend.ParamLatent] = state
		} else {
			params[trend.ParamTrend] = state
		}

		switch cfg.spec.Family {
		case trend.FamilyAR1:
			constant("ar1", dims, cfg.phi)
		case trend.FamilyGP:
			constant(trend.ParamAlphaGP, dims, 1.0)
			constant(trend.ParamRhoGP, dims, cfg.rho)
		}
		if cfg.spec.Family != trend.FamilyGP {
			if cfg.shared {
				sigma := mat.NewDense(cfg.draws, dims*dims, nil)
				for d := 0; d < cfg.draws; d++ {
					for k := 0; k < dims; k++ {
						sigma.Set(d, k*dims+k, cfg.sd*cfg.sd)
					}
				}
				params[trend.ParamSigmaCov] = sigma
			} else {
				constant(trend.ParamSigma, dims, cfg.sd)
			}
		}
		if cfg.spec.Drift {
			constant(trend.ParamDrift, dims, cfg.drift)
		}
		if cfg.spec.Latent() {
			lv := mat.NewDense(cfg.draws, len(cfg.loadings), nil)
			for d := 0; d < cfg.draws; d++ {
				lv.SetRow(d, cfg.loadings)
			}
			params[trend.ParamLoadings] = lv
		}
	}

	// series level trend
	seriesTrend := func(d, s, tm int) float64 {
		if !dynamic {
			return 0
		}
		if !cfg.spec.Latent() {
			return state.At(d, layout.Column(s, tm))
		}
		var v float64
		for k := 0; k < dims; k++ {
			v += cfg.loadings[s*dims+k] * state.At(d, layout.Column(k, tm))
		}
		return v
	}

	obs := cfg.obs
	obsCoef := cfg.obsCoef
	if obs == nil {
		obs = &design.Basis{Terms: []design.Term{{Type: design.TermIntercept}}}
		obsCoef = []float64{testIntercept}
	}
	times := timedataset.GenerateT(stored, 1)
	obsDesign, err := obs.Build(timedataset.NewPanel([]string{"obs"}, times, nil, map[string]map[string]timedataset.Series{
		"obs": {"x": timedataset.Series(floats.Span(make([]float64, stored), 1, float64(stored)))},
	}))
	require.Nil(t, err)
	eta, err := obsDesign.Eta(obsCoef)
	require.Nil(t, err)

	seriesLayout := trend.Layout{Dims: numSeries, Times: stored}
	mus := mat.NewDense(cfg.draws, numSeries*stored, nil)
	ypred := mat.NewDense(cfg.draws, numSeries*stored, nil)
	for d := 0; d < cfg.draws; d++ {
		for s := 0; s < numSeries; s++ {
			path := timedataset.GenerateConstY(stored, 0)
			for i, tm := range times {
				path[i] = seriesTrend(d, s, tm)
			}
			mu := path.Add(eta)
			y := timedataset.GenerateNoise(stored, 0.5, rng).Add(mu)
			for i, tm := range times {
				col := seriesLayout.Column(s, tm)
				mus.Set(d, col, mu[i])
				ypred.Set(d, col, y[i])
			}
		}
	}
	params[ParamMus] = mus
	params[ParamYPred] = ypred
	coef := mat.NewDense(cfg.draws, len(obsCoef), nil)
	for d := 0; d < cfg.draws; d++ {
		coef.SetRow(d, obsCoef)
	}
	params[ParamObsCoef] = coef
	constant(family.ParamSigmaObs, numSeries, 0.5)

	if cfg.trendCoef != nil {
		coef := mat.NewDense(cfg.draws, len(cfg.trendCoef), nil)
		for d := 0; d < cfg.draws; d++ {
			coef.SetRow(d, cfg.trendCoef)
		}
		params[trend.ParamTrendCoef] = coef
	}
	if cfg.mutate != nil {
		cfg.mutate(params)
	}

	draws, err := drawstore.New(cfg.draws, params)
	require.Nil(t, err)

	var train, test timedataset.Table
	for s, label := range cfg.series {
		for tm := 1; tm <= stored; tm++ {
			r := timedataset.Row{
				Series:     label,
				Time:       tm,
				Y:          mus.At(0, seriesLayout.Column(s, tm)),
				Covariates: covariates(tm),
			}
			if tm <= cfg.trainEnd {
				train = append(train, r)
			} else {
				test = append(test, r)
			}
		}
	}

	idx, err := NewSeriesIndex(cfg.series)
	require.Nil(t, err)
	return &Model{
		Series:      idx,
		Family:      cfg.family,
		Trend:       cfg.spec,
		Draws:       draws,
		Obs:         obs,
		TrendDesign: cfg.trendDesign,
		Train:       train,
		Test:        test,
	}
}

// newRows returns rows of every series for the inclusive time range
func newRows(series []string, start, end int) timedataset.Table {
	var rows timedataset.Table
	for _, label := range series {
		for tm := start; tm <= end; tm++ {
			rows = append(rows, timedataset.Row{
				Series:     label,
				Time:       tm,
				Covariates: covariates(tm),
				Y:          math.NaN(),
			})
		}
	}
	return rows
}
