// Package indicator declares the environmental indicators the engine can
// map and the formula each one applies to its joined datasets.
package indicator

import (
	"context"
	"errors"

	"github.com/sells-group/hexrisk/internal/maperr"
)

// Code identifies an indicator. The set is closed: a Code value outside
// AllCodes can only come from unchecked conversion.
type Code string

// Indicator codes.
const (
	CodeWaterUse         Code = "water-use"
	CodeDeforestation    Code = "deforestation"
	CodeBiodiversityLoss Code = "biodiversity-loss"
	CodeCarbonEmissions  Code = "carbon-emissions"
)

// AllCodes lists every supported indicator code.
func AllCodes() []Code {
	return []Code{CodeWaterUse, CodeDeforestation, CodeBiodiversityLoss, CodeCarbonEmissions}
}

// ParseCode validates s as an indicator code. Unknown codes yield
// *maperr.UnsupportedIndicatorError.
func ParseCode(s string) (Code, error) {
	for _, c := range AllCodes() {
		if string(c) == s {
			return c, nil
		}
	}
	return "", &maperr.UnsupportedIndicatorError{Code: s}
}

// Indicator is the metadata record of an indicator.
type Indicator struct {
	ID             string   `json:"id" yaml:"id"`
	Code           string   `json:"code" yaml:"code"`
	Name           string   `json:"name" yaml:"name"`
	Unit           string   `json:"unit" yaml:"unit"`
	CalculusFactor float64  `json:"calculus_factor" yaml:"calculus_factor"`
	DependsOn      []string `json:"depends_on,omitempty" yaml:"depends_on"`
}

// ErrNotFound is returned by Catalog implementations when no indicator
// matches.
var ErrNotFound = errors.New("indicator: not found")

// Catalog serves indicator metadata.
type Catalog interface {
	Get(ctx context.Context, id string) (*Indicator, error)
	GetByCode(ctx context.Context, code Code) (*Indicator, error)
}
