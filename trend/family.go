// Package trend extracts per-draw dynamic trend parameters from posterior draws
// and propagates the latent trend state beyond the stored time range.
package trend

import (
	"errors"
	"fmt"
	"strings"
)

var ErrUnknownFamily = errors.New("unknown trend family")

// Family is the dynamic trend model family declared for a fitted model
type Family uint8

const (
	FamilyNone Family = iota
	FamilyRandomWalk
	FamilyAR1
	FamilyAR2
	FamilyAR3
	FamilyVAR1
	FamilyGP
)

var familyNames = map[Family]string{
	FamilyNone:       "None",
	FamilyRandomWalk: "RW",
	FamilyAR1:        "AR1",
	FamilyAR2:        "AR2",
	FamilyAR3:        "AR3",
	FamilyVAR1:       "VAR1",
	FamilyGP:         "GP",
}

func (f Family) String() string {
	if name, exists := familyNames[f]; exists {
		return name
	}
	return fmt.Sprintf("Family(%d)", uint8(f))
}

// ParseFamily converts a family name, case insensitive, into a Family
func ParseFamily(name string) (Family, error) {
	for f, n := range familyNames {
		if strings.EqualFold(n, strings.TrimSpace(name)) {
			return f, nil
		}
	}
	return FamilyNone, fmt.Errorf("%q, %w", name, ErrUnknownFamily)
}

func (f Family) MarshalText() ([]byte, error) {
	if _, exists := familyNames[f]; !exists {
		return nil, fmt.Errorf("%d, %w", uint8(f), ErrUnknownFamily)
	}
	return []byte(f.String()), nil
}

func (f *Family) UnmarshalText(text []byte) error {
	parsed, err := ParseFamily(string(text))
	if err != nil {
		return err
	}
	*f = parsed
	return nil
}

// Lags returns the number of past states the recursion of the family reads
func (f Family) Lags() int {
	switch f {
	case FamilyRandomWalk, FamilyAR1, FamilyVAR1:
		return 1
	case FamilyAR2:
		return 2
	case FamilyAR3:
		return 3
	default:
		return 0
	}
}

// Dynamic reports whether the family has a latent trend state
func (f Family) Dynamic() bool {
	return f != FamilyNone
}

// Spec declares the trend structure of a fitted model
type Spec struct {
	Family Family `json:"family" yaml:"family"`
	Drift  bool   `json:"drift" yaml:"drift"`

	// LatentFactors is the number of shared latent trends mapped onto the series
	// through loadings. Zero means one trend per series.
	LatentFactors int `json:"latent_factors" yaml:"latent_factors"`
}

// Latent reports whether the trend is a reduced rank latent factor trend
func (s Spec) Latent() bool {
	return s.Family.Dynamic() && s.LatentFactors > 0
}

// Dims returns the number of propagated trend dimensions
func (s Spec) Dims(numSeries int) int {
	if s.Latent() {
		return s.LatentFactors
	}
	return numSeries
}
