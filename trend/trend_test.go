package trend

import (
	"math"
	"math/rand/v2"
	"testing"

	"github.com/aouyang1/go-dynforecaster/drawstore"
	"github.com/goccy/go-json"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gonum.org/v1/gonum/mat"
	"gonum.org/v1/gonum/stat"
)

// constantStore replicates a single row per parameter across every draw
func constantStore(t *testing.T, numDraws int, rows map[string][]float64) *drawstore.Store {
	params := make(map[string]*mat.Dense, len(rows))
	for name, row := range rows {
		m := mat.NewDense(numDraws, len(row), nil)
		for d := 0; d < numDraws; d++ {
			m.SetRow(d, row)
		}
		params[name] = m
	}
	s, err := drawstore.New(numDraws, params)
	require.Nil(t, err)
	return s
}

func TestFamilyText(t *testing.T) {
	for f, name := range familyNames {
		t.Run(name, func(t *testing.T) {
			out, err := f.MarshalText()
			require.Nil(t, err)
			assert.Equal(t, name, string(out))

			var parsed Family
			require.Nil(t, parsed.UnmarshalText([]byte(name)))
			assert.Equal(t, f, parsed)
		})
	}

	parsed, err := ParseFamily(" ar2 ")
	require.Nil(t, err)
	assert.Equal(t, FamilyAR2, parsed)

	_, err = ParseFamily("CAR")
	assert.ErrorIs(t, err, ErrUnknownFamily)

	var spec Spec
	require.Nil(t, json.Unmarshal([]byte(`{"family":"VAR1","latent_factors":2}`), &spec))
	assert.Equal(t, Spec{Family: FamilyVAR1, LatentFactors: 2}, spec)
	assert.True(t, spec.Latent())
	assert.Equal(t, 2, spec.Dims(5))
}

func TestLayout(t *testing.T) {
	l := Layout{Dims: 2, Times: 3}
	// dimension major blocks: d0t1 d0t2 d0t3 d1t1 d1t2 d1t3
	row := []float64{1, 2, 3, 10, 20, 30}
	assert.Equal(t, 0, l.Column(0, 1))
	assert.Equal(t, 2, l.Column(0, 3))
	assert.Equal(t, 3, l.Column(1, 1))
	assert.Equal(t, 5, l.Column(1, 3))
	assert.Equal(t, []float64{20, 30}, l.Window(row, 1, 2, 3))
	assert.Equal(t, []float64{1, 2, 3}, l.Window(row, 0, 1, 3))
	assert.Nil(t, l.Window(row, 0, 3, 2))

	assert.Nil(t, l.Validate(6))
	assert.ErrorIs(t, l.Validate(5), ErrLayoutMismatch)
}

func TestNewExtractor(t *testing.T) {
	testData := map[string]struct {
		spec      Spec
		rows      map[string][]float64
		effective Family
		err       error
	}{
		"no trend": {
			spec:      Spec{Family: FamilyNone},
			rows:      map[string][]float64{"b": {1}},
			effective: FamilyNone,
		},
		"missing state": {
			spec: Spec{Family: FamilyAR1},
			rows: map[string][]float64{"ar1": {0.5, 0.5}},
			err:  ErrMissingTrendState,
		},
		"missing latent state": {
			spec: Spec{Family: FamilyRandomWalk, LatentFactors: 1},
			rows: map[string][]float64{"trend": {1, 2, 3, 4}},
			err:  ErrMissingTrendState,
		},
		"state layout mismatch": {
			spec: Spec{Family: FamilyRandomWalk},
			rows: map[string][]float64{"trend": {1, 2, 3}},
			err:  ErrLayoutMismatch,
		},
		"independent autoregression": {
			spec:      Spec{Family: FamilyAR1},
			rows:      map[string][]float64{"trend": {1, 2, 3, 4}, "ar1": {0.5, 0.5}, "sigma": {1, 1}},
			effective: FamilyAR1,
		},
		"autoregression with covariance is shared": {
			spec:      Spec{Family: FamilyAR1},
			rows:      map[string][]float64{"trend": {1, 2, 3, 4}, "ar1": {0.5, 0.5}, "Sigma": {1, 0, 0, 1}},
			effective: FamilyVAR1,
		},
		"random walk with covariance is shared": {
			spec:      Spec{Family: FamilyRandomWalk},
			rows:      map[string][]float64{"trend": {1, 2, 3, 4}, "Sigma": {1, 0, 0, 1}},
			effective: FamilyVAR1,
		},
		"random walk with per series sd stays independent": {
			spec:      Spec{Family: FamilyRandomWalk},
			rows:      map[string][]float64{"trend": {1, 2, 3, 4}, "sigma": {1, 1}, "tau": {1, 1}},
			effective: FamilyRandomWalk,
		},
		"gaussian process is never shared": {
			spec:      Spec{Family: FamilyGP},
			rows:      map[string][]float64{"trend": {1, 2, 3, 4}, "Sigma": {1, 0, 0, 1}},
			effective: FamilyGP,
		},
	}

	for name, td := range testData {
		t.Run(name, func(t *testing.T) {
			store := constantStore(t, 2, td.rows)
			e, err := NewExtractor(store, td.spec, 2, 2)
			if td.err != nil {
				assert.ErrorIs(t, err, td.err)
				return
			}
			require.Nil(t, err)
			assert.Equal(t, td.effective, e.Effective())
		})
	}
}

func TestExtractIndependent(t *testing.T) {
	// 2 series x 4 times
	store := constantStore(t, 3, map[string][]float64{
		"trend": {1, 2, 3, 4, 10, 20, 30, 40},
		"ar1":   {0.5, 0.6},
		"ar2":   {0.1, 0.2},
		"tau":   {4, 16},
		"drift": {0.3, 0.4},
	})
	e, err := NewExtractor(store, Spec{Family: FamilyAR2, Drift: true}, 2, 4)
	require.Nil(t, err)

	p, err := e.Extract(1, ExtractOptions{})
	require.Nil(t, err)
	assert.Equal(t, FamilyAR2, p.Declared)
	assert.Equal(t, FamilyAR2, p.Effective)
	assert.Equal(t, []int{0, 1}, p.Dims)
	assert.Equal(t, 4, p.EndTime)
	assert.False(t, p.Joint())

	params, ok := p.Params.(*IndependentParams)
	require.True(t, ok)
	assert.Equal(t, [][]float64{{0.5, 0.1}, {0.6, 0.2}}, params.Phi)
	assert.InDeltaSlice(t, []float64{0.5, 0.25}, params.Sigma, 1e-12)
	assert.Equal(t, []float64{0.3, 0.4}, params.Drift)
	assert.Equal(t, [][]float64{{3, 4}, {30, 40}}, params.LastState)

	// replay the state at an earlier cutoff for a single series
	p, err = e.Extract(1, ExtractOptions{Series: []int{1}, EndTime: 3})
	require.Nil(t, err)
	assert.Equal(t, []int{1}, p.Dims)
	params = p.Params.(*IndependentParams)
	assert.Equal(t, [][]float64{{20, 30}}, params.LastState)
	assert.Equal(t, [][]float64{{0.6, 0.2}}, params.Phi)

	_, err = e.Extract(1, ExtractOptions{EndTime: 1})
	assert.ErrorIs(t, err, ErrInvalidEndTime)
	_, err = e.Extract(1, ExtractOptions{EndTime: 5})
	assert.ErrorIs(t, err, ErrInvalidEndTime)
	_, err = e.Extract(1, ExtractOptions{Series: []int{2}})
	assert.ErrorIs(t, err, ErrInvalidSeries)
	_, err = e.Extract(3, ExtractOptions{})
	assert.ErrorIs(t, err, drawstore.ErrDrawOutOfRange)
}

func TestExtractMissingParameter(t *testing.T) {
	store := constantStore(t, 1, map[string][]float64{
		"trend": {1, 2},
		"sigma": {1},
	})
	e, err := NewExtractor(store, Spec{Family: FamilyAR1}, 1, 2)
	require.Nil(t, err)
	_, err = e.Extract(0, ExtractOptions{})
	assert.ErrorIs(t, err, drawstore.ErrUnknownParameter)
}

func TestExtractReclassified(t *testing.T) {
	store := constantStore(t, 2, map[string][]float64{
		"trend": {1, 2, 3, 10, 20, 30},
		"ar1":   {0.5, 0.7},
		"Sigma": {1, 0.2, 0.4, 2},
	})
	e, err := NewExtractor(store, Spec{Family: FamilyAR1}, 2, 3)
	require.Nil(t, err)

	// series selection is ignored for the joint recursion
	p, err := e.Extract(0, ExtractOptions{Series: []int{1}})
	require.Nil(t, err)
	assert.Equal(t, FamilyAR1, p.Declared)
	assert.Equal(t, FamilyVAR1, p.Effective)
	assert.Equal(t, []int{0, 1}, p.Dims)
	assert.True(t, p.Joint())

	params, ok := p.Params.(*SharedParams)
	require.True(t, ok)
	require.Len(t, params.A, 1)
	assert.Equal(t, []float64{0.5, 0, 0, 0.7}, params.A[0].RawMatrix().Data)
	assert.Equal(t, [][]float64{{3}, {30}}, params.LastState)
	assert.InDelta(t, 0.3, params.Sigma.At(0, 1), 1e-12)
	assert.InDelta(t, 0.3, params.Sigma.At(1, 0), 1e-12)
	assert.Equal(t, 2, params.NumDims())
}

func TestExtractVAR1Latent(t *testing.T) {
	// 3 series, 2 latent factors, 2 times
	store := constantStore(t, 1, map[string][]float64{
		"LV":       {1, 2, 5, 6},
		"A":        {0.5, 0.1, 0.2, 0.4},
		"Sigma":    {1, 0, 0, 1},
		"lv_coefs": {1, 0, 0, 1, 0.5, 0.5},
		"b_trend":  {0.1, 0.2},
	})
	e, err := NewExtractor(store, Spec{Family: FamilyVAR1, LatentFactors: 2}, 3, 2)
	require.Nil(t, err)
	assert.Equal(t, ParamLatent, e.StateName())

	p, err := e.Extract(0, ExtractOptions{})
	require.Nil(t, err)
	params := p.Params.(*SharedParams)
	assert.Equal(t, []float64{0.5, 0.1, 0.2, 0.4}, params.A[0].RawMatrix().Data)
	assert.Equal(t, [][]float64{{2}, {6}}, params.LastState)
	require.NotNil(t, p.Loadings)
	r, c := p.Loadings.Dims()
	assert.Equal(t, 3, r)
	assert.Equal(t, 2, c)
	assert.Equal(t, 0.5, p.Loadings.At(2, 1))
	assert.Equal(t, []float64{0.1, 0.2}, p.TrendCoef)
}

func TestExtractGP(t *testing.T) {
	store := constantStore(t, 1, map[string][]float64{
		"trend":    {1, 2, 3, 4, 5, 6},
		"alpha_gp": {1, 2},
		"rho_gp":   {3, 4},
	})
	e, err := NewExtractor(store, Spec{Family: FamilyGP}, 2, 3)
	require.Nil(t, err)
	p, err := e.Extract(0, ExtractOptions{Series: []int{1}, EndTime: 2})
	require.Nil(t, err)
	params := p.Params.(*GPParams)
	assert.Equal(t, []float64{2}, params.Alpha)
	assert.Equal(t, []float64{4}, params.Rho)
	assert.Equal(t, []float64{1, 2}, params.Times)
	assert.Equal(t, [][]float64{{4, 5}}, params.State)
}

func TestExtractNone(t *testing.T) {
	store := constantStore(t, 1, map[string][]float64{"b": {1}})
	e, err := NewExtractor(store, Spec{}, 2, 3)
	require.Nil(t, err)
	p, err := e.Extract(0, ExtractOptions{})
	require.Nil(t, err)
	assert.Equal(t, NoneParams{}, p.Params)

	_, err = Propagate(p, 3, nil, rand.New(rand.NewPCG(1, 1)))
	assert.ErrorIs(t, err, ErrNoTrendConfigured)
}

func TestPropagateIndependent(t *testing.T) {
	rng := rand.New(rand.NewPCG(1, 2))
	p := &DrawParams{
		Params: &IndependentParams{
			Phi:       [][]float64{{1}, {0.5}},
			Drift:     []float64{2, 0},
			Sigma:     []float64{0, 0},
			LastState: [][]float64{{10}, {8}},
		},
	}

	out, err := Propagate(p, 4, nil, rng)
	require.Nil(t, err)
	assert.Equal(t, []float64{12, 14, 16, 18}, mat.Row(nil, 0, out))
	assert.Equal(t, []float64{4, 2, 1, 0.5}, mat.Row(nil, 1, out))

	_, err = Propagate(p, 0, nil, rng)
	assert.ErrorIs(t, err, ErrInvalidHorizon)
}

func TestPropagateWithMean(t *testing.T) {
	rng := rand.New(rand.NewPCG(1, 2))
	p := &DrawParams{
		Params: &IndependentParams{
			Phi:       [][]float64{{0.5, 0.25}},
			Sigma:     []float64{0},
			LastState: [][]float64{{3, 5}},
		},
	}
	mean := &Mean{
		History: [][]float64{{1, 1}},
		Future:  [][]float64{{2, 2}},
	}
	out, err := Propagate(p, 2, mean, rng)
	require.Nil(t, err)
	// x1 = 2 + 0.5*(5-1) + 0.25*(3-1) = 4.5
	// x2 = 2 + 0.5*(4.5-2) + 0.25*(5-1) = 4.25
	assert.InDeltaSlice(t, []float64{4.5, 4.25}, mat.Row(nil, 0, out), 1e-12)

	_, err = Propagate(p, 3, mean, rng)
	assert.ErrorIs(t, err, ErrMeanMismatch)
}

func TestPropagateShared(t *testing.T) {
	rng := rand.New(rand.NewPCG(3, 4))
	p := &DrawParams{
		Params: &SharedParams{
			A:         []*mat.Dense{mat.NewDense(2, 2, []float64{0.5, 0.5, 0, 1})},
			Drift:     []float64{1, 0},
			Sigma:     mat.NewSymDense(2, []float64{1e-14, 0, 0, 1e-14}),
			LastState: [][]float64{{2}, {4}},
		},
	}
	out, err := Propagate(p, 2, nil, rng)
	require.Nil(t, err)
	// x1 = [0.5*2 + 0.5*4 + 1, 4] = [4, 4], x2 = [0.5*4 + 0.5*4 + 1, 4] = [5, 4]
	assert.InDeltaSlice(t, []float64{4, 5}, mat.Row(nil, 0, out), 1e-5)
	assert.InDeltaSlice(t, []float64{4, 4}, mat.Row(nil, 1, out), 1e-5)

	p.Params.(*SharedParams).Sigma = mat.NewSymDense(2, []float64{1, 2, 2, 1})
	_, err = Propagate(p, 2, nil, rng)
	assert.ErrorIs(t, err, ErrNotPositiveDefinite)
}

func TestPropagateSharedCorrelation(t *testing.T) {
	rng := rand.New(rand.NewPCG(5, 6))
	p := &DrawParams{
		Params: &SharedParams{
			A:         []*mat.Dense{mat.NewDense(2, 2, nil)},
			Sigma:     mat.NewSymDense(2, []float64{1, 0.9, 0.9, 1}),
			LastState: [][]float64{{0}, {0}},
		},
	}
	n := 2000
	a := make([]float64, n)
	b := make([]float64, n)
	for i := 0; i < n; i++ {
		out, err := Propagate(p, 1, nil, rng)
		require.Nil(t, err)
		a[i] = out.At(0, 0)
		b[i] = out.At(1, 0)
	}
	assert.InDelta(t, 0.9, stat.Correlation(a, b, nil), 0.05)
}

func TestPropagateGP(t *testing.T) {
	rng := rand.New(rand.NewPCG(7, 8))
	n := 20
	times := make([]float64, n)
	state := make([]float64, n)
	for i := range times {
		times[i] = float64(i + 1)
		state[i] = 1.0
	}
	p := &DrawParams{
		Params: &GPParams{
			Alpha: []float64{1},
			Rho:   []float64{3},
			Times: times,
			State: [][]float64{state},
		},
	}

	var first []float64
	for i := 0; i < 200; i++ {
		out, err := Propagate(p, 3, nil, rng)
		require.Nil(t, err)
		r, c := out.Dims()
		require.Equal(t, 1, r)
		require.Equal(t, 3, c)
		first = append(first, out.At(0, 0))
	}
	assert.InDelta(t, 1.0, stat.Mean(first, nil), 0.1)

	// a mean without a history over every conditioning time is rejected
	_, err := Propagate(p, 3, &Mean{Future: [][]float64{{100, 100, 100}}}, rng)
	assert.ErrorIs(t, err, ErrMeanMismatch)

	// the process models the deviation from the mean, so a state sitting on
	// the mean forecasts the mean
	hist := make([]float64, n)
	onMean := make([]float64, n)
	for i := range hist {
		hist[i] = 100
		onMean[i] = 100
	}
	p.Params.(*GPParams).State = [][]float64{onMean}
	mean := &Mean{History: [][]float64{hist}, Future: [][]float64{{100, 100, 100}}}
	first = first[:0]
	for i := 0; i < 200; i++ {
		out, err := Propagate(p, 3, mean, rng)
		require.Nil(t, err)
		first = append(first, out.At(0, 0))
	}
	assert.InDelta(t, 100, stat.Mean(first, nil), 0.1)

	// a deviation above the mean carries into the next step
	for i := range onMean {
		onMean[i] = 101
	}
	first = first[:0]
	for i := 0; i < 200; i++ {
		out, err := Propagate(p, 3, mean, rng)
		require.Nil(t, err)
		first = append(first, out.At(0, 0))
	}
	assert.InDelta(t, 101, stat.Mean(first, nil), 0.1)
}

func TestCompose(t *testing.T) {
	loadings := mat.NewDense(3, 2, []float64{1, 0, 0, 1, 0.5, -0.5})
	latent := mat.NewDense(2, 2, []float64{1, 2, 3, 4})
	out, err := Compose(loadings, latent)
	require.Nil(t, err)
	assert.Equal(t, []float64{1, 2}, mat.Row(nil, 0, out))
	assert.Equal(t, []float64{3, 4}, mat.Row(nil, 1, out))
	assert.Equal(t, []float64{-1, -1}, mat.Row(nil, 2, out))

	_, err = Compose(loadings, mat.NewDense(3, 2, nil))
	assert.ErrorIs(t, err, ErrLayoutMismatch)
	_, err = Compose(nil, latent)
	assert.ErrorIs(t, err, ErrLayoutMismatch)
}

func TestGPKernel(t *testing.T) {
	assert.InDelta(t, 4.0, sqExpKernel(1, 1, 2, 1), 1e-12)
	assert.InDelta(t, 4.0*math.Exp(-0.5), sqExpKernel(1, 2, 2, 1), 1e-12)
}
