package trend

import (
	"gonum.org/v1/gonum/mat"
)

// Params is the per-draw parameter set of one propagation recursion. The
// concrete type selects the recursion.
type Params interface {
	// NumDims is the number of propagated trend dimensions
	NumDims() int
}

// NoneParams is used by models without a dynamic trend
type NoneParams struct{}

func (NoneParams) NumDims() int { return 0 }

// IndependentParams drives a random walk or AR(p) recursion per dimension with
// independent Gaussian innovations.
type IndependentParams struct {
	// Phi[d][k] multiplies the state of dimension d at lag k+1
	Phi [][]float64
	// Drift is nil when the model was fit without drift
	Drift []float64
	Sigma []float64
	// LastState[d] holds the most recent Lags states ordered oldest to newest
	LastState [][]float64
}

func (p *IndependentParams) NumDims() int { return len(p.Sigma) }

// Lags is the autoregressive order
func (p *IndependentParams) Lags() int {
	if len(p.Phi) == 0 {
		return 0
	}
	return len(p.Phi[0])
}

// SharedParams drives the joint VAR recursion across dimensions with
// multivariate normal innovations.
type SharedParams struct {
	// A[k] is the dims x dims coefficient matrix at lag k+1
	A     []*mat.Dense
	Drift []float64
	Sigma *mat.SymDense
	// LastState[d] holds the most recent Lags joint states ordered oldest to newest
	LastState [][]float64
}

func (p *SharedParams) NumDims() int {
	if p.Sigma == nil {
		return 0
	}
	return p.Sigma.SymmetricDim()
}

// Lags is the number of coefficient matrices
func (p *SharedParams) Lags() int { return len(p.A) }

// GPParams holds a squared exponential Gaussian process per dimension
type GPParams struct {
	Alpha []float64
	Rho   []float64
	// Times are the time indices of the conditioning state
	Times []float64
	// State[d] is the trend of dimension d at each of Times
	State [][]float64
}

func (p *GPParams) NumDims() int { return len(p.Alpha) }

// DrawParams bundles the trend parameters of a single posterior draw
type DrawParams struct {
	Draw int

	// Declared is the family the model was fit with and Effective is the
	// recursion actually used to propagate it
	Declared  Family
	Effective Family

	// Dims are the positions of the propagated dimensions among all trend
	// dimensions of the model
	Dims   []int
	Params Params

	// Loadings maps latent factors onto series, series x factors. Nil unless the
	// model uses latent factor trends.
	Loadings *mat.Dense

	// EndTime is the last stored time the state is conditioned on
	EndTime int

	// TrendCoef are the trend linear predictor coefficients, nil if unused
	TrendCoef []float64
}

// Joint reports whether all dimensions must be propagated together
func (p *DrawParams) Joint() bool {
	if p == nil {
		return false
	}
	if p.Loadings != nil {
		return true
	}
	_, shared := p.Params.(*SharedParams)
	return shared
}
