// Package family maps the combined linear predictor of a draw onto the
// observation scale of the fitted observation family.
package family

import (
	"errors"
	"fmt"
	"strings"
)

var (
	ErrUnknownFamily           = errors.New("unknown observation family")
	ErrUnknownOutput           = errors.New("unknown output type")
	ErrUnsupportedFamilyOutput = errors.New("output type is not supported for this model")
)

// Family is the observation distribution of a fitted model
type Family uint8

const (
	Gaussian Family = iota
	Poisson
	NegativeBinomial
	Bernoulli
	Beta
	Gamma
	LogNormal
	StudentT
)

var familyNames = map[Family]string{
	Gaussian:         "gaussian",
	Poisson:          "poisson",
	NegativeBinomial: "negative_binomial",
	Bernoulli:        "bernoulli",
	Beta:             "beta",
	Gamma:            "gamma",
	LogNormal:        "lognormal",
	StudentT:         "student_t",
}

// Parameter names of the observation family parameters, each stored as
// draws x series
const (
	ParamSigmaObs = "sigma_obs"
	ParamPhi      = "phi"
	ParamShape    = "shape"
	ParamNu       = "nu"
)

func (f Family) String() string {
	if name, exists := familyNames[f]; exists {
		return name
	}
	return fmt.Sprintf("Family(%d)", uint8(f))
}

// Parse converts a family name into a Family
func Parse(name string) (Family, error) {
	name = strings.ToLower(strings.TrimSpace(name))
	for f, n := range familyNames {
		if n == name {
			return f, nil
		}
	}
	return Gaussian, fmt.Errorf("%q, %w", name, ErrUnknownFamily)
}

func (f Family) MarshalText() ([]byte, error) {
	if _, exists := familyNames[f]; !exists {
		return nil, fmt.Errorf("%d, %w", uint8(f), ErrUnknownFamily)
	}
	return []byte(f.String()), nil
}

func (f *Family) UnmarshalText(text []byte) error {
	parsed, err := Parse(string(text))
	if err != nil {
		return err
	}
	*f = parsed
	return nil
}

// Params lists the draw store parameters the family reads per draw and series
func (f Family) Params() []string {
	switch f {
	case Gaussian, LogNormal:
		return []string{ParamSigmaObs}
	case NegativeBinomial, Beta:
		return []string{ParamPhi}
	case Gamma:
		return []string{ParamShape}
	case StudentT:
		return []string{ParamSigmaObs, ParamNu}
	}
	return nil
}

// Output is the scale a forecast or hindcast is returned on
type Output uint8

const (
	// OutputResponse is one stochastic realisation from the observation family
	OutputResponse Output = iota
	// OutputLink is the raw linear predictor
	OutputLink
	// OutputExpected is the family mean at the linear predictor
	OutputExpected
	// OutputTrend is the trend contribution alone
	OutputTrend
)

var outputNames = map[Output]string{
	OutputResponse: "response",
	OutputLink:     "link",
	OutputExpected: "expected",
	OutputTrend:    "trend",
}

func (o Output) String() string {
	if name, exists := outputNames[o]; exists {
		return name
	}
	return fmt.Sprintf("Output(%d)", uint8(o))
}

// ParseOutput converts an output name into an Output
func ParseOutput(name string) (Output, error) {
	name = strings.ToLower(strings.TrimSpace(name))
	for o, n := range outputNames {
		if n == name {
			return o, nil
		}
	}
	return OutputResponse, fmt.Errorf("%q, %w", name, ErrUnknownOutput)
}

func (o Output) MarshalText() ([]byte, error) {
	if _, exists := outputNames[o]; !exists {
		return nil, fmt.Errorf("%d, %w", uint8(o), ErrUnknownOutput)
	}
	return []byte(o.String()), nil
}

func (o *Output) UnmarshalText(text []byte) error {
	parsed, err := ParseOutput(string(text))
	if err != nil {
		return err
	}
	*o = parsed
	return nil
}
