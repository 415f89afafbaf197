package design

import (
	"errors"
	"fmt"
	"math"
	"strings"
	"time"

	mat_ "github.com/aouyang1/go-dynforecaster/mat"
	"github.com/aouyang1/go-dynforecaster/timedataset"
	"github.com/rickar/cal/v2"
	"github.com/rickar/cal/v2/us"
)

var (
	ErrUnknownTerm      = errors.New("unknown basis term")
	ErrInvalidTerm      = errors.New("invalid basis term")
	ErrNoCalendar       = errors.New("calendar terms require an origin and interval")
	ErrUnknownHoliday   = errors.New("unknown holiday")
	ErrMissingCovariate = timedataset.ErrMissingCovariate
)

type TermType string

const (
	TermIntercept TermType = "intercept"
	TermCovariate TermType = "covariate"
	TermFourier   TermType = "fourier"
	TermHoliday   TermType = "holiday"
)

var holidays = map[string]*cal.Holiday{
	"new_year":     us.NewYear,
	"memorial":     us.MemorialDay,
	"independence": us.IndependenceDay,
	"labor":        us.LaborDay,
	"thanksgiving": us.ThanksgivingDay,
	"christmas":    us.ChristmasDay,
}

// Term is one group of design columns
type Term struct {
	Type TermType `json:"type" yaml:"type"`

	// Name is the covariate column for covariate terms and the holiday for
	// holiday terms
	Name string `json:"name,omitempty" yaml:"name,omitempty"`

	// Period and Order configure fourier terms over the time index, producing a
	// sin and cos column per order
	Period float64 `json:"period,omitempty" yaml:"period,omitempty"`
	Order  int     `json:"order,omitempty" yaml:"order,omitempty"`
}

func (t Term) width() int {
	if t.Type == TermFourier {
		return 2 * t.Order
	}
	return 1
}

// Columns returns the names of the columns produced by the term
func (t Term) Columns() []string {
	switch t.Type {
	case TermIntercept:
		return []string{"intercept"}
	case TermCovariate:
		return []string{t.Name}
	case TermHoliday:
		return []string{"holiday_" + t.Name}
	case TermFourier:
		cols := make([]string, 0, 2*t.Order)
		for order := 1; order <= t.Order; order++ {
			cols = append(cols,
				fmt.Sprintf("seas_%g_%02d_sin", t.Period, order),
				fmt.Sprintf("seas_%g_%02d_cos", t.Period, order),
			)
		}
		return cols
	}
	return nil
}

// Basis is a reference design builder for additive terms over the time index
// and covariates
type Basis struct {
	Terms []Term `json:"terms" yaml:"terms"`

	// Offset names the covariate added to the linear predictor, empty for none
	Offset string `json:"offset,omitempty" yaml:"offset,omitempty"`

	// Origin is the wall clock time of time index 1 and Interval the spacing
	// between consecutive indices. Only holiday terms use them.
	Origin   time.Time     `json:"origin,omitempty" yaml:"origin,omitempty"`
	Interval time.Duration `json:"interval,omitempty" yaml:"interval,omitempty"`
}

// Validate checks that every term is well formed
func (b *Basis) Validate() error {
	if b == nil || len(b.Terms) == 0 {
		return fmt.Errorf("no terms, %w", ErrInvalidTerm)
	}
	for i, t := range b.Terms {
		switch t.Type {
		case TermIntercept:
		case TermCovariate:
			if t.Name == "" {
				return fmt.Errorf("covariate term %d without a name, %w", i, ErrInvalidTerm)
			}
		case TermFourier:
			if t.Period <= 0 || t.Order < 1 {
				return fmt.Errorf("fourier term %d with period %v and order %d, %w", i, t.Period, t.Order, ErrInvalidTerm)
			}
		case TermHoliday:
			if _, exists := holidays[strings.ToLower(t.Name)]; !exists {
				return fmt.Errorf("%q, %w", t.Name, ErrUnknownHoliday)
			}
			if b.Origin.IsZero() || b.Interval <= 0 {
				return ErrNoCalendar
			}
		default:
			return fmt.Errorf("%q, %w", t.Type, ErrUnknownTerm)
		}
	}
	return nil
}

// Columns returns the design column names in order
func (b *Basis) Columns() []string {
	var cols []string
	for _, t := range b.Terms {
		cols = append(cols, t.Columns()...)
	}
	return cols
}

// Covariates returns the covariate names required to build the design
func (b *Basis) Covariates() []string {
	var names []string
	for _, t := range b.Terms {
		if t.Type == TermCovariate {
			names = append(names, t.Name)
		}
	}
	if b.Offset != "" {
		names = append(names, b.Offset)
	}
	return names
}

// WallTime maps a time index onto wall clock time
func (b *Basis) WallTime(t int) time.Time {
	return b.Origin.Add(time.Duration(t-1) * b.Interval)
}

// Build constructs the design for the rows in their given order
func (b *Basis) Build(rows timedataset.Table) (*Matrix, error) {
	if err := b.Validate(); err != nil {
		return nil, err
	}
	if len(rows) == 0 {
		return nil, ErrNoRows
	}

	width := 0
	for _, t := range b.Terms {
		width += t.width()
	}
	data := make([][]float64, len(rows))
	for i := range data {
		data[i] = make([]float64, width)
	}

	col := 0
	for _, t := range b.Terms {
		for i, r := range rows {
			if err := b.fill(t, r, data[i][col:col+t.width()]); err != nil {
				return nil, err
			}
		}
		col += t.width()
	}

	x, err := mat_.NewDenseFromArray(data)
	if err != nil {
		return nil, err
	}
	res := &Matrix{X: x, Rows: rows.Copy()}

	if b.Offset != "" {
		res.Offset = make([]float64, len(rows))
		for i, r := range rows {
			v, exists := r.Covariate(b.Offset)
			if !exists {
				return nil, fmt.Errorf("offset %q for series %q at time %d, %w", b.Offset, r.Series, r.Time, ErrMissingCovariate)
			}
			res.Offset[i] = v
		}
	}
	return res, nil
}

func (b *Basis) fill(t Term, r timedataset.Row, dst []float64) error {
	switch t.Type {
	case TermIntercept:
		dst[0] = 1.0
	case TermCovariate:
		v, exists := r.Covariate(t.Name)
		if !exists {
			return fmt.Errorf("%q for series %q at time %d, %w", t.Name, r.Series, r.Time, ErrMissingCovariate)
		}
		dst[0] = v
	case TermFourier:
		for order := 1; order <= t.Order; order++ {
			rad := 2.0 * math.Pi * float64(order) / t.Period * float64(r.Time)
			dst[2*order-2] = math.Sin(rad)
			dst[2*order-1] = math.Cos(rad)
		}
	case TermHoliday:
		if onHoliday(holidays[strings.ToLower(t.Name)], b.WallTime(r.Time)) {
			dst[0] = 1.0
		}
	}
	return nil
}

// onHoliday reports whether the wall time falls on the observed day of the
// holiday in its own year
func onHoliday(hol *cal.Holiday, wall time.Time) bool {
	_, observed := hol.Calc(wall.Year())
	if observed.IsZero() {
		return false
	}
	y, m, d := wall.Date()
	oy, om, od := observed.Date()
	return y == oy && m == om && d == od
}
