package family

import (
	"errors"
	"fmt"
	"math"
	"math/rand/v2"

	"github.com/aouyang1/go-dynforecaster/drawstore"
	"gonum.org/v1/gonum/stat/distuv"
)

var (
	ErrParamMismatch      = errors.New("family parameter does not have one value per series")
	ErrInvalidFamilyParam = errors.New("invalid observation family parameter")
)

// Observation is the observation distribution of one series under one draw
type Observation interface {
	Family() Family

	// Mean is the expected value at the linear predictor eta
	Mean(eta float64) float64

	// Sample draws one realisation at the linear predictor eta
	Sample(eta float64, rng *rand.Rand) float64
}

func logistic(eta float64) float64 {
	return 1.0 / (1.0 + math.Exp(-eta))
}

// GaussianObs has an identity link
type GaussianObs struct {
	Sigma float64
}

func (GaussianObs) Family() Family           { return Gaussian }
func (GaussianObs) Mean(eta float64) float64 { return eta }

func (o GaussianObs) Sample(eta float64, rng *rand.Rand) float64 {
	return distuv.Normal{Mu: eta, Sigma: o.Sigma, Src: rng}.Rand()
}

// PoissonObs has a log link
type PoissonObs struct{}

func (PoissonObs) Family() Family           { return Poisson }
func (PoissonObs) Mean(eta float64) float64 { return math.Exp(eta) }

func (PoissonObs) Sample(eta float64, rng *rand.Rand) float64 {
	lambda := math.Exp(eta)
	if lambda <= 0 {
		return 0
	}
	return distuv.Poisson{Lambda: lambda, Src: rng}.Rand()
}

// NegBinomialObs is a gamma mixed Poisson with a log link and variance
// mu + mu^2/Phi
type NegBinomialObs struct {
	Phi float64
}

func (NegBinomialObs) Family() Family           { return NegativeBinomial }
func (NegBinomialObs) Mean(eta float64) float64 { return math.Exp(eta) }

func (o NegBinomialObs) Sample(eta float64, rng *rand.Rand) float64 {
	mu := math.Exp(eta)
	if mu <= 0 {
		return 0
	}
	lambda := distuv.Gamma{Alpha: o.Phi, Beta: o.Phi / mu, Src: rng}.Rand()
	if lambda <= 0 {
		return 0
	}
	return distuv.Poisson{Lambda: lambda, Src: rng}.Rand()
}

// BernoulliObs has a logit link
type BernoulliObs struct{}

func (BernoulliObs) Family() Family           { return Bernoulli }
func (BernoulliObs) Mean(eta float64) float64 { return logistic(eta) }

func (BernoulliObs) Sample(eta float64, rng *rand.Rand) float64 {
	return distuv.Bernoulli{P: logistic(eta), Src: rng}.Rand()
}

// BetaObs uses the mean and precision parameterisation with a logit link
type BetaObs struct {
	Phi float64
}

func (BetaObs) Family() Family           { return Beta }
func (BetaObs) Mean(eta float64) float64 { return logistic(eta) }

func (o BetaObs) Sample(eta float64, rng *rand.Rand) float64 {
	mu := logistic(eta)
	return distuv.Beta{Alpha: mu * o.Phi, Beta: (1.0 - mu) * o.Phi, Src: rng}.Rand()
}

// GammaObs uses the mean and shape parameterisation with a log link
type GammaObs struct {
	Shape float64
}

func (GammaObs) Family() Family           { return Gamma }
func (GammaObs) Mean(eta float64) float64 { return math.Exp(eta) }

func (o GammaObs) Sample(eta float64, rng *rand.Rand) float64 {
	return distuv.Gamma{Alpha: o.Shape, Beta: o.Shape / math.Exp(eta), Src: rng}.Rand()
}

// LogNormalObs models the log of the outcome on the linear predictor
type LogNormalObs struct {
	Sigma float64
}

func (LogNormalObs) Family() Family { return LogNormal }

func (o LogNormalObs) Mean(eta float64) float64 {
	return math.Exp(eta + o.Sigma*o.Sigma/2.0)
}

func (o LogNormalObs) Sample(eta float64, rng *rand.Rand) float64 {
	return distuv.LogNormal{Mu: eta, Sigma: o.Sigma, Src: rng}.Rand()
}

// StudentTObs has an identity link
type StudentTObs struct {
	Sigma float64
	Nu    float64
}

func (StudentTObs) Family() Family           { return StudentT }
func (StudentTObs) Mean(eta float64) float64 { return eta }

func (o StudentTObs) Sample(eta float64, rng *rand.Rand) float64 {
	return distuv.StudentsT{Mu: eta, Sigma: o.Sigma, Nu: o.Nu, Src: rng}.Rand()
}

// Extract reads the observation parameters of one draw for every series
// position. Parameters are stored as draws x series.
func Extract(store *drawstore.Store, f Family, draw, numSeries int) ([]Observation, error) {
	if _, exists := familyNames[f]; !exists {
		return nil, fmt.Errorf("%d, %w", uint8(f), ErrUnknownFamily)
	}

	params := make(map[string][]float64)
	for _, name := range f.Params() {
		row, err := store.Row(name, draw)
		if err != nil {
			return nil, fmt.Errorf("%s family, %w", f, err)
		}
		if len(row) != numSeries {
			return nil, fmt.Errorf("%q has %d values for %d series, %w", name, len(row), numSeries, ErrParamMismatch)
		}
		for s, v := range row {
			if v <= 0 || math.IsNaN(v) {
				return nil, fmt.Errorf("%q of series %d is %v, %w", name, s, v, ErrInvalidFamilyParam)
			}
		}
		params[name] = row
	}

	res := make([]Observation, numSeries)
	for s := range res {
		switch f {
		case Gaussian:
			res[s] = GaussianObs{Sigma: params[ParamSigmaObs][s]}
		case Poisson:
			res[s] = PoissonObs{}
		case NegativeBinomial:
			res[s] = NegBinomialObs{Phi: params[ParamPhi][s]}
		case Bernoulli:
			res[s] = BernoulliObs{}
		case Beta:
			res[s] = BetaObs{Phi: params[ParamPhi][s]}
		case Gamma:
			res[s] = GammaObs{Shape: params[ParamShape][s]}
		case LogNormal:
			res[s] = LogNormalObs{Sigma: params[ParamSigmaObs][s]}
		case StudentT:
			res[s] = StudentTObs{Sigma: params[ParamSigmaObs][s], Nu: params[ParamNu][s]}
		}
	}
	return res, nil
}
