package timedataset

import (
	"math"
	"math/rand/v2"

	"gonum.org/v1/gonum/floats"
)

// GenerateT returns the time indices start, start+1, ..., start+n-1
func GenerateT(n, start int) []int {
	t := make([]int, 0, n)
	for i := 0; i < n; i++ {
		t = append(t, start+i)
	}
	return t
}

type Series []float64

// Add sums src into s in place
func (s Series) Add(src Series) Series {
	floats.Add(s, src)
	return s
}

func GenerateConstY(n int, val float64) Series {
	y := make([]float64, 0, n)
	for i := 0; i < n; i++ {
		y = append(y, val)
	}
	return Series(y)
}

func GenerateWaveY(t []int, amp, period, order, timeOffset float64) Series {
	n := len(t)
	y := make([]float64, 0, n)
	for i := 0; i < n; i++ {
		val := amp * math.Sin(2.0*math.Pi*order/period*(float64(t[i])+timeOffset))
		y = append(y, val)
	}
	return Series(y)
}

func GenerateNoise(n int, scale float64, rng *rand.Rand) Series {
	y := make([]float64, 0, n)
	for i := 0; i < n; i++ {
		y = append(y, rng.NormFloat64()*scale)
	}
	return Series(y)
}

// GenerateAR simulates an autoregressive process of length n starting from
// zero. A single coefficient of 1 is a random walk.
func GenerateAR(n int, phi []float64, drift, sigma float64, rng *rand.Rand) Series {
	y := make([]float64, n)
	for i := 0; i < n; i++ {
		val := drift + rng.NormFloat64()*sigma
		for k, p := range phi {
			if i-k-1 >= 0 {
				val += p * y[i-k-1]
			}
		}
		y[i] = val
	}
	return Series(y)
}

// NewPanel stacks per series outcomes into a table. Covariates are optional and
// keyed by series then covariate name with one value per time.
func NewPanel(labels []string, t []int, y map[string]Series, covariates map[string]map[string]Series) Table {
	res := make(Table, 0, len(labels)*len(t))
	for _, label := range labels {
		ys := y[label]
		for i, tPnt := range t {
			r := Row{
				Series: label,
				Time:   tPnt,
				Y:      math.NaN(),
			}
			if i < len(ys) {
				r.Y = ys[i]
			}
			if cov, exists := covariates[label]; exists {
				r.Covariates = make(map[string]float64, len(cov))
				for name, vals := range cov {
					r.Covariates[name] = vals[i]
				}
			}
			res = append(res, r)
		}
	}
	return res
}
