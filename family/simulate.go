package family

import (
	"errors"
	"fmt"
	"math/rand/v2"

	mat_ "github.com/aouyang1/go-dynforecaster/mat"
	"gonum.org/v1/gonum/mat"
)

var ErrPredictorMismatch = errors.New("predictor components have inconsistent dimensions")

// Predictor is the combined linear predictor of one series under one draw.
// The trend enters as an extra design column with a fixed coefficient of one.
type Predictor struct {
	// X is the fixed effect design, rows x coefficients. May be nil when the
	// model has no fixed effects.
	X    *mat.Dense
	Coef []float64

	// Offset is added to the linear predictor before the inverse link, nil if
	// the design has no offset
	Offset []float64

	// Trend is the trend contribution per row, nil without a dynamic trend
	Trend []float64
}

// Rows returns the number of predictor rows
func (p Predictor) Rows() int {
	if p.X != nil {
		return mat_.Rows(p.X)
	}
	return len(p.Trend)
}

func (p Predictor) validate() error {
	n := p.Rows()
	if n == 0 {
		return fmt.Errorf("no predictor rows, %w", ErrPredictorMismatch)
	}
	if p.X != nil && mat_.Cols(p.X) != len(p.Coef) {
		return fmt.Errorf("%d design columns and %d coefficients, %w", mat_.Cols(p.X), len(p.Coef), ErrPredictorMismatch)
	}
	if p.Trend != nil && len(p.Trend) != n {
		return fmt.Errorf("%d trend values for %d rows, %w", len(p.Trend), n, ErrPredictorMismatch)
	}
	if p.Offset != nil && len(p.Offset) != n {
		return fmt.Errorf("%d offsets for %d rows, %w", len(p.Offset), n, ErrPredictorMismatch)
	}
	return nil
}

// LinearPredictor evaluates the design with the trend column appended and the
// offset added
func (p Predictor) LinearPredictor() ([]float64, error) {
	if err := p.validate(); err != nil {
		return nil, err
	}
	n := p.Rows()

	var blocks []mat.Matrix
	var coef []float64
	if p.X != nil && len(p.Coef) > 0 {
		blocks = append(blocks, p.X)
		coef = append(coef, p.Coef...)
	}
	if p.Trend != nil {
		blocks = append(blocks, mat.NewDense(n, 1, append([]float64(nil), p.Trend...)))
		coef = append(coef, 1.0)
	}

	eta := make([]float64, n)
	if len(blocks) > 0 {
		x, err := mat_.HStack(blocks...)
		if err != nil {
			return nil, err
		}
		res := mat.NewVecDense(n, eta)
		res.MulVec(x, mat.NewVecDense(len(coef), coef))
	}
	for i, o := range p.Offset {
		eta[i] += o
	}
	return eta, nil
}

// Simulate maps the predictor of a series onto the requested output scale.
// Trend output bypasses the family entirely and fails when there is no trend.
func Simulate(pred Predictor, obs Observation, out Output, rng *rand.Rand) ([]float64, error) {
	if out == OutputTrend {
		if pred.Trend == nil {
			return nil, fmt.Errorf("trend output without a dynamic trend, %w", ErrUnsupportedFamilyOutput)
		}
		return append([]float64(nil), pred.Trend...), nil
	}

	eta, err := pred.LinearPredictor()
	if err != nil {
		return nil, err
	}
	switch out {
	case OutputLink:
		return eta, nil
	case OutputExpected:
		for i, v := range eta {
			eta[i] = obs.Mean(v)
		}
		return eta, nil
	case OutputResponse:
		for i, v := range eta {
			eta[i] = obs.Sample(v, rng)
		}
		return eta, nil
	}
	return nil, fmt.Errorf("%d, %w", uint8(out), ErrUnknownOutput)
}

// Transform maps stored link scale values onto the requested output. Only the
// deterministic link and expected outputs can be derived from the link scale.
func Transform(obs Observation, out Output, eta []float64) ([]float64, error) {
	res := make([]float64, len(eta))
	switch out {
	case OutputLink:
		copy(res, eta)
	case OutputExpected:
		for i, v := range eta {
			res[i] = obs.Mean(v)
		}
	default:
		return nil, fmt.Errorf("%s from the link scale, %w", out, ErrUnsupportedFamilyOutput)
	}
	return res, nil
}
