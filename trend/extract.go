package trend

import (
	"errors"
	"fmt"
	"log/slog"
	"math"

	"github.com/aouyang1/go-dynforecaster/drawstore"
	"gonum.org/v1/gonum/mat"
)

// Parameter names read from the draw store
const (
	ParamTrend     = "trend"
	ParamLatent    = "LV"
	ParamLoadings  = "lv_coefs"
	ParamA         = "A"
	ParamSigmaCov  = "Sigma"
	ParamSigma     = "sigma"
	ParamTau       = "tau"
	ParamDrift     = "drift"
	ParamAlphaGP   = "alpha_gp"
	ParamRhoGP     = "rho_gp"
	ParamTrendCoef = "b_trend"
)

var arParams = []string{"ar1", "ar2", "ar3"}

var (
	ErrMissingTrendState = errors.New("no trend state stored for a dynamic trend model")
	ErrInvalidEndTime    = errors.New("invalid trend ending time")
	ErrInvalidSeries     = errors.New("invalid series position")
	ErrNonPositiveSigma  = errors.New("innovation scale must be positive")
)

// ExtractOptions narrows the extraction of a single draw
type ExtractOptions struct {
	// Series are the series positions of interest, nil for all series
	Series []int

	// EndTime replays the state as of an earlier stored time. Zero uses the last
	// stored time.
	EndTime int
}

// Extractor reads structured trend parameters for individual draws
type Extractor struct {
	store     *drawstore.Store
	spec      Spec
	numSeries int
	layout    Layout
	stateName string
	effective Family
}

// NewExtractor validates that the draw store holds the state of the declared
// trend family. A random walk or autoregressive family whose draws contain a
// full innovation covariance is propagated through the shared VAR recursion.
// Only the covariance parameter "Sigma" triggers this. The diagonal scales
// "sigma" and "tau" keep the declared independent recursion.
func NewExtractor(store *drawstore.Store, spec Spec, numSeries, numTimes int) (*Extractor, error) {
	if _, exists := familyNames[spec.Family]; !exists {
		return nil, fmt.Errorf("%d, %w", uint8(spec.Family), ErrUnknownFamily)
	}
	e := &Extractor{
		store:     store,
		spec:      spec,
		numSeries: numSeries,
		layout:    Layout{Dims: spec.Dims(numSeries), Times: numTimes},
		stateName: ParamTrend,
		effective: spec.Family,
	}
	if !spec.Family.Dynamic() {
		return e, nil
	}
	if spec.Latent() {
		e.stateName = ParamLatent
	}
	dim, err := store.Dim(e.stateName)
	if err != nil {
		if errors.Is(err, drawstore.ErrUnknownParameter) {
			return nil, fmt.Errorf("%s trend without %q, %w", spec.Family, e.stateName, ErrMissingTrendState)
		}
		return nil, err
	}
	if err := e.layout.Validate(dim); err != nil {
		return nil, fmt.Errorf("state %q, %w", e.stateName, err)
	}

	switch spec.Family {
	case FamilyRandomWalk, FamilyAR1, FamilyAR2, FamilyAR3:
		if store.Has(ParamSigmaCov) {
			e.effective = FamilyVAR1
			slog.Debug("propagating trend with shared innovation recursion",
				"declared", spec.Family.String(), "effective", e.effective.String())
		}
	}
	return e, nil
}

// Layout returns the state layout of the stored trend
func (e *Extractor) Layout() Layout {
	return e.layout
}

// StateName is the draw store parameter holding the propagated state
func (e *Extractor) StateName() string {
	return e.stateName
}

// Effective returns the family whose recursion is used for propagation
func (e *Extractor) Effective() Family {
	return e.effective
}

// Extract returns the trend parameters of a single draw
func (e *Extractor) Extract(draw int, opt ExtractOptions) (*DrawParams, error) {
	if e == nil {
		return nil, ErrMissingTrendState
	}
	for _, s := range opt.Series {
		if s < 0 || s >= e.numSeries {
			return nil, fmt.Errorf("series %d with %d series, %w", s, e.numSeries, ErrInvalidSeries)
		}
	}

	endTime := opt.EndTime
	if endTime == 0 {
		endTime = e.layout.Times
	}

	p := &DrawParams{
		Draw:      draw,
		Declared:  e.spec.Family,
		Effective: e.effective,
		EndTime:   endTime,
		Params:    NoneParams{},
	}
	if !e.spec.Family.Dynamic() {
		return p, nil
	}

	lags := e.lags()
	if endTime > e.layout.Times || endTime < lags {
		return nil, fmt.Errorf("end time %d with %d stored times and %d lags, %w", endTime, e.layout.Times, lags, ErrInvalidEndTime)
	}

	allDims := make([]int, e.layout.Dims)
	for i := range allDims {
		allDims[i] = i
	}
	p.Dims = allDims
	if e.effective != FamilyVAR1 && !e.spec.Latent() && opt.Series != nil {
		p.Dims = append([]int(nil), opt.Series...)
	}

	state, err := e.store.Row(e.stateName, draw)
	if err != nil {
		return nil, err
	}

	switch e.effective {
	case FamilyRandomWalk, FamilyAR1, FamilyAR2, FamilyAR3:
		p.Params, err = e.independent(draw, state, p.Dims, endTime)
	case FamilyVAR1:
		p.Params, err = e.shared(draw, state, endTime)
	case FamilyGP:
		p.Params, err = e.gp(draw, state, p.Dims, endTime)
	}
	if err != nil {
		return nil, err
	}

	if e.spec.Latent() {
		p.Loadings, err = e.loadings(draw)
		if err != nil {
			return nil, err
		}
	}
	if e.store.Has(ParamTrendCoef) {
		p.TrendCoef, err = e.store.Row(ParamTrendCoef, draw)
		if err != nil {
			return nil, err
		}
	}
	return p, nil
}

func (e *Extractor) lags() int {
	switch e.effective {
	case FamilyVAR1:
		// reclassified autoregressions keep their own order
		return max(e.spec.Family.Lags(), 1)
	case FamilyGP:
		return 1
	}
	return e.spec.Family.Lags()
}

func (e *Extractor) lastState(state []float64, dims []int, endTime, lags int) [][]float64 {
	res := make([][]float64, len(dims))
	for i, d := range dims {
		res[i] = e.layout.Window(state, d, endTime-lags+1, endTime)
	}
	return res
}

// row reads a per dimension parameter and keeps only the requested dimensions
func (e *Extractor) row(name string, draw int, dims []int) ([]float64, error) {
	row, err := e.store.Row(name, draw)
	if err != nil {
		return nil, err
	}
	if len(row) != e.layout.Dims {
		return nil, fmt.Errorf("%q has %d values for %d dims, %w", name, len(row), e.layout.Dims, ErrLayoutMismatch)
	}
	res := make([]float64, len(dims))
	for i, d := range dims {
		res[i] = row[d]
	}
	return res, nil
}

// phi returns the autoregressive coefficients per dimension. A random walk is an
// AR(1) with a unit coefficient.
func (e *Extractor) phi(draw int, dims []int) ([][]float64, error) {
	lags := max(e.spec.Family.Lags(), 1)
	res := make([][]float64, len(dims))
	for i := range res {
		res[i] = make([]float64, lags)
	}
	if e.spec.Family == FamilyRandomWalk {
		for i := range res {
			res[i][0] = 1.0
		}
		return res, nil
	}
	for k := 0; k < lags; k++ {
		ar, err := e.row(arParams[k], draw, dims)
		if err != nil {
			return nil, err
		}
		for i := range dims {
			res[i][k] = ar[i]
		}
	}
	return res, nil
}

func (e *Extractor) drift(draw int, dims []int) ([]float64, error) {
	if !e.spec.Drift {
		return nil, nil
	}
	return e.row(ParamDrift, draw, dims)
}

// sigma reads the innovation standard deviations falling back to the precision
// parameterisation
func (e *Extractor) sigma(draw int, dims []int) ([]float64, error) {
	if e.store.Has(ParamSigma) || !e.store.Has(ParamTau) {
		return e.row(ParamSigma, draw, dims)
	}
	tau, err := e.row(ParamTau, draw, dims)
	if err != nil {
		return nil, err
	}
	sigma := make([]float64, len(tau))
	for i, t := range tau {
		if t <= 0 {
			return nil, fmt.Errorf("tau %v for draw %d, %w", t, draw, ErrNonPositiveSigma)
		}
		sigma[i] = 1.0 / math.Sqrt(t)
	}
	return sigma, nil
}

func (e *Extractor) independent(draw int, state []float64, dims []int, endTime int) (*IndependentParams, error) {
	phi, err := e.phi(draw, dims)
	if err != nil {
		return nil, err
	}
	drift, err := e.drift(draw, dims)
	if err != nil {
		return nil, err
	}
	sigma, err := e.sigma(draw, dims)
	if err != nil {
		return nil, err
	}
	return &IndependentParams{
		Phi:       phi,
		Drift:     drift,
		Sigma:     sigma,
		LastState: e.lastState(state, dims, endTime, len(phi[0])),
	}, nil
}

func (e *Extractor) square(name string, draw int) (*mat.Dense, error) {
	row, err := e.store.Row(name, draw)
	if err != nil {
		return nil, err
	}
	n := e.layout.Dims
	if len(row) != n*n {
		return nil, fmt.Errorf("%q has %d values for %d x %d, %w", name, len(row), n, n, ErrLayoutMismatch)
	}
	return mat.NewDense(n, n, row), nil
}

// shared builds the joint recursion. A declared VAR1 reads its dense coefficient
// matrix while reclassified autoregressions use diagonal lag matrices.
func (e *Extractor) shared(draw int, state []float64, endTime int) (*SharedParams, error) {
	n := e.layout.Dims
	all := make([]int, n)
	for i := range all {
		all[i] = i
	}

	var lagMx []*mat.Dense
	if e.spec.Family == FamilyVAR1 {
		a, err := e.square(ParamA, draw)
		if err != nil {
			return nil, err
		}
		lagMx = []*mat.Dense{a}
	} else {
		phi, err := e.phi(draw, all)
		if err != nil {
			return nil, err
		}
		for k := 0; k < len(phi[0]); k++ {
			a := mat.NewDense(n, n, nil)
			for d := 0; d < n; d++ {
				a.Set(d, d, phi[d][k])
			}
			lagMx = append(lagMx, a)
		}
	}

	cov, err := e.square(ParamSigmaCov, draw)
	if err != nil {
		return nil, err
	}
	sym := mat.NewSymDense(n, nil)
	for i := 0; i < n; i++ {
		for j := i; j < n; j++ {
			sym.SetSym(i, j, (cov.At(i, j)+cov.At(j, i))/2.0)
		}
	}

	drift, err := e.drift(draw, all)
	if err != nil {
		return nil, err
	}
	return &SharedParams{
		A:         lagMx,
		Drift:     drift,
		Sigma:     sym,
		LastState: e.lastState(state, all, endTime, len(lagMx)),
	}, nil
}

func (e *Extractor) gp(draw int, state []float64, dims []int, endTime int) (*GPParams, error) {
	alpha, err := e.row(ParamAlphaGP, draw, dims)
	if err != nil {
		return nil, err
	}
	rho, err := e.row(ParamRhoGP, draw, dims)
	if err != nil {
		return nil, err
	}
	times := make([]float64, endTime)
	for i := range times {
		times[i] = float64(i + 1)
	}
	return &GPParams{
		Alpha: alpha,
		Rho:   rho,
		Times: times,
		State: e.lastState(state, dims, endTime, endTime),
	}, nil
}

// loadings reads the series x factors loading matrix stored row major by series
func (e *Extractor) loadings(draw int) (*mat.Dense, error) {
	row, err := e.store.Row(ParamLoadings, draw)
	if err != nil {
		return nil, err
	}
	k := e.spec.LatentFactors
	if len(row) != e.numSeries*k {
		return nil, fmt.Errorf("%q has %d values for %d series x %d factors, %w", ParamLoadings, len(row), e.numSeries, k, ErrLayoutMismatch)
	}
	return mat.NewDense(e.numSeries, k, row), nil
}
