package trend

import (
	"fmt"
	"math"
	"math/rand/v2"

	"gonum.org/v1/gonum/mat"
	"gonum.org/v1/gonum/stat/distmv"
)

const (
	gpJitter      = 1e-8
	gpJitterTries = 6
)

// sqExpKernel is the squared exponential covariance alpha^2 exp(-(a-b)^2 / 2rho^2)
func sqExpKernel(a, b, alpha, rho float64) float64 {
	d := a - b
	return alpha * alpha * math.Exp(-d*d/(2.0*rho*rho))
}

func propagateGP(p *GPParams, horizon int, mean *Mean, rng *rand.Rand) (*mat.Dense, error) {
	dims := p.NumDims()
	out := mat.NewDense(dims, horizon, nil)

	last := p.Times[len(p.Times)-1]
	future := make([]float64, horizon)
	for t := range future {
		future[t] = last + float64(t+1)
	}

	for d := 0; d < dims; d++ {
		state := p.State[d]
		if mean != nil {
			state = make([]float64, len(p.State[d]))
			for t, v := range p.State[d] {
				state[t] = v - mean.History[d][t]
			}
		}
		draw, err := gpConditional(p.Times, state, future, p.Alpha[d], p.Rho[d], rng)
		if err != nil {
			return nil, fmt.Errorf("gaussian process dim %d, %w", d, err)
		}
		if mean != nil {
			for t := range draw {
				draw[t] += mean.Future[d][t]
			}
		}
		out.SetRow(d, draw)
	}
	return out, nil
}

// gpConditional draws the trend at the new times from the predictive
// distribution of a zero mean squared exponential process given the state at
// the conditioning times.
func gpConditional(times, state, future []float64, alpha, rho float64, rng *rand.Rand) ([]float64, error) {
	n := len(times)
	h := len(future)
	jitter := gpJitter * math.Max(alpha*alpha, 1.0)

	k := mat.NewSymDense(n, nil)
	for i := 0; i < n; i++ {
		for j := i; j < n; j++ {
			k.SetSym(i, j, sqExpKernel(times[i], times[j], alpha, rho))
		}
	}
	ks := mat.NewDense(n, h, nil)
	for i := 0; i < n; i++ {
		for j := 0; j < h; j++ {
			ks.Set(i, j, sqExpKernel(times[i], future[j], alpha, rho))
		}
	}

	var chol mat.Cholesky
	factorized := false
	for try := 0; try < gpJitterTries; try++ {
		kj := mat.NewSymDense(n, nil)
		kj.CopySym(k)
		for i := 0; i < n; i++ {
			kj.SetSym(i, i, kj.At(i, i)+jitter)
		}
		if chol.Factorize(kj) {
			factorized = true
			break
		}
		jitter *= 10
	}
	if !factorized {
		return nil, fmt.Errorf("training kernel, %w", ErrNotPositiveDefinite)
	}

	var weights mat.VecDense
	if err := chol.SolveVecTo(&weights, mat.NewVecDense(n, state)); err != nil {
		return nil, err
	}
	var mu mat.VecDense
	mu.MulVec(ks.T(), &weights)

	var v mat.Dense
	if err := chol.SolveTo(&v, ks); err != nil {
		return nil, err
	}
	var reduction mat.Dense
	reduction.Mul(ks.T(), &v)

	cov := mat.NewSymDense(h, nil)
	for i := 0; i < h; i++ {
		for j := i; j < h; j++ {
			kss := sqExpKernel(future[i], future[j], alpha, rho)
			red := (reduction.At(i, j) + reduction.At(j, i)) / 2.0
			cov.SetSym(i, j, kss-red)
		}
	}

	mean := make([]float64, h)
	for i := range mean {
		mean[i] = mu.AtVec(i)
	}
	for try := 0; try < gpJitterTries; try++ {
		for i := 0; i < h; i++ {
			cov.SetSym(i, i, cov.At(i, i)+jitter)
		}
		if normal, ok := distmv.NewNormal(mean, cov, rng); ok {
			return normal.Rand(nil), nil
		}
		jitter *= 10
	}
	return nil, fmt.Errorf("predictive covariance, %w", ErrNotPositiveDefinite)
}
