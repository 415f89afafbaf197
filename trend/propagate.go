package trend

import (
	"errors"
	"fmt"
	"math/rand/v2"

	"gonum.org/v1/gonum/mat"
	"gonum.org/v1/gonum/stat/distmv"
)

var (
	ErrNoTrendConfigured   = errors.New("no dynamic trend configured")
	ErrInvalidHorizon      = errors.New("horizon must be positive")
	ErrMeanMismatch        = errors.New("trend mean does not match the propagated dimensions")
	ErrNotPositiveDefinite = errors.New("covariance is not positive definite")
)

// Mean is the trend linear predictor contribution around which the state
// evolves. History is aligned with the lagged state, oldest to newest. For
// Gaussian process trends it covers every conditioning time and is removed
// before the conditional draw, to which Future is added back.
type Mean struct {
	History [][]float64
	Future  [][]float64
}

func (m *Mean) validate(dims, lags, horizon int) error {
	if m == nil {
		return nil
	}
	if len(m.Future) != dims {
		return fmt.Errorf("future mean has %d dims, expected %d, %w", len(m.Future), dims, ErrMeanMismatch)
	}
	for d, f := range m.Future {
		if len(f) != horizon {
			return fmt.Errorf("future mean of dim %d has %d steps, expected %d, %w", d, len(f), horizon, ErrMeanMismatch)
		}
	}
	if lags == 0 {
		return nil
	}
	if len(m.History) != dims {
		return fmt.Errorf("historical mean has %d dims, expected %d, %w", len(m.History), dims, ErrMeanMismatch)
	}
	for d, h := range m.History {
		if len(h) != lags {
			return fmt.Errorf("historical mean of dim %d has %d steps, expected %d, %w", d, len(h), lags, ErrMeanMismatch)
		}
	}
	return nil
}

// path returns the mean of dimension d over the lagged history followed by the
// horizon, zero when no mean is set
func (m *Mean) path(d, lags, horizon int) []float64 {
	res := make([]float64, lags+horizon)
	if m == nil {
		return res
	}
	if lags > 0 {
		copy(res, m.History[d])
	}
	copy(res[lags:], m.Future[d])
	return res
}

// Propagate simulates horizon future trend states for every propagated
// dimension of a draw, starting from the last stored state. The result is
// dims x horizon with columns in ascending time.
func Propagate(p *DrawParams, horizon int, mean *Mean, rng *rand.Rand) (*mat.Dense, error) {
	if p == nil {
		return nil, ErrNoTrendConfigured
	}
	if horizon < 1 {
		return nil, fmt.Errorf("got %d, %w", horizon, ErrInvalidHorizon)
	}

	switch params := p.Params.(type) {
	case *IndependentParams:
		if err := mean.validate(params.NumDims(), params.Lags(), horizon); err != nil {
			return nil, err
		}
		return propagateIndependent(params, horizon, mean, rng), nil
	case *SharedParams:
		if err := mean.validate(params.NumDims(), params.Lags(), horizon); err != nil {
			return nil, err
		}
		return propagateShared(params, horizon, mean, rng)
	case *GPParams:
		if err := mean.validate(params.NumDims(), len(params.Times), horizon); err != nil {
			return nil, err
		}
		return propagateGP(params, horizon, mean, rng)
	case NoneParams, nil:
		return nil, ErrNoTrendConfigured
	default:
		return nil, fmt.Errorf("%T, %w", params, ErrUnknownFamily)
	}
}

func propagateIndependent(p *IndependentParams, horizon int, mean *Mean, rng *rand.Rand) *mat.Dense {
	dims := p.NumDims()
	lags := p.Lags()
	out := mat.NewDense(dims, horizon, nil)

	for d := 0; d < dims; d++ {
		m := mean.path(d, lags, horizon)
		path := make([]float64, lags+horizon)
		copy(path, p.LastState[d])

		for t := 0; t < horizon; t++ {
			i := lags + t
			val := m[i]
			for k := 0; k < lags; k++ {
				val += p.Phi[d][k] * (path[i-k-1] - m[i-k-1])
			}
			if p.Drift != nil {
				val += p.Drift[d]
			}
			val += rng.NormFloat64() * p.Sigma[d]
			path[i] = val
			out.Set(d, t, val)
		}
	}
	return out
}

func propagateShared(p *SharedParams, horizon int, mean *Mean, rng *rand.Rand) (*mat.Dense, error) {
	dims := p.NumDims()
	lags := p.Lags()

	innovations, ok := distmv.NewNormal(make([]float64, dims), p.Sigma, rng)
	if !ok {
		return nil, fmt.Errorf("innovation covariance, %w", ErrNotPositiveDefinite)
	}

	means := make([][]float64, dims)
	path := mat.NewDense(dims, lags+horizon, nil)
	for d := 0; d < dims; d++ {
		means[d] = mean.path(d, lags, horizon)
		for k, v := range p.LastState[d] {
			path.Set(d, k, v)
		}
	}

	dev := mat.NewVecDense(dims, nil)
	var contrib mat.VecDense
	eps := make([]float64, dims)
	for t := 0; t < horizon; t++ {
		i := lags + t
		next := make([]float64, dims)
		for d := 0; d < dims; d++ {
			next[d] = means[d][i]
			if p.Drift != nil {
				next[d] += p.Drift[d]
			}
		}
		for k := 0; k < lags; k++ {
			for d := 0; d < dims; d++ {
				dev.SetVec(d, path.At(d, i-k-1)-means[d][i-k-1])
			}
			contrib.MulVec(p.A[k], dev)
			for d := 0; d < dims; d++ {
				next[d] += contrib.AtVec(d)
			}
		}
		innovations.Rand(eps)
		for d := 0; d < dims; d++ {
			path.Set(d, i, next[d]+eps[d])
		}
	}

	out := mat.NewDense(dims, horizon, nil)
	out.Copy(path.Slice(0, dims, lags, lags+horizon))
	return out, nil
}

// Compose maps propagated latent factors onto series, series x horizon
func Compose(loadings *mat.Dense, latent mat.Matrix) (*mat.Dense, error) {
	if loadings == nil {
		return nil, fmt.Errorf("no loadings, %w", ErrLayoutMismatch)
	}
	_, k := loadings.Dims()
	lk, _ := latent.Dims()
	if k != lk {
		return nil, fmt.Errorf("%d factors in loadings, %d in latent state, %w", k, lk, ErrLayoutMismatch)
	}
	var res mat.Dense
	res.Mul(loadings, latent)
	return &res, nil
}
