// Package compose builds and evaluates the join of every dataset a map
// needs. A cell survives the join only if it is present and non-zero in
// every joined dataset.
package compose

import (
	"regexp"
	"strings"

	"github.com/rotisserie/eris"

	"github.com/sells-group/hexrisk/internal/indicator"
)

// CellColumn is the cell identity column of every grid table.
const CellColumn = "h3index"

// identPattern matches one unquoted SQL identifier. Registry-provided table
// and column names must match it before they reach a query.
var identPattern = regexp.MustCompile(`^[A-Za-z_][A-Za-z0-9_]{0,62}$`)

// Plan is a typed inner join over grid datasets. Main defines the native
// cells; every binding in Joins must also be present and non-zero.
type Plan struct {
	Main  indicator.Binding
	Joins []indicator.Binding
}

// NewPlan builds a plan joining main with deps.
func NewPlan(main indicator.Binding, deps ...indicator.Binding) Plan {
	return Plan{Main: main, Joins: deps}
}

// Bindings returns Main followed by Joins.
func (p Plan) Bindings() []indicator.Binding {
	out := make([]indicator.Binding, 0, len(p.Joins)+1)
	out = append(out, p.Main)
	return append(out, p.Joins...)
}

// Resolution returns the native resolution of the plan.
func (p Plan) Resolution() int {
	return p.Main.Dataset.Resolution
}

// Validate checks identifiers, slot uniqueness and resolution agreement.
func (p Plan) Validate() error {
	seen := make(map[indicator.Slot]bool)
	for _, b := range p.Bindings() {
		if seen[b.Slot] {
			return eris.Errorf("compose: slot %q bound twice", b.Slot)
		}
		seen[b.Slot] = true
		if err := ValidateTable(b.Dataset.Table); err != nil {
			return err
		}
		if err := ValidateIdent(b.Dataset.Column); err != nil {
			return err
		}
		if b.Dataset.Resolution != p.Resolution() {
			return eris.Errorf("compose: dataset %s has resolution %d, plan is at %d",
				b.Dataset.ID, b.Dataset.Resolution, p.Resolution())
		}
	}
	return nil
}

// ValidateIdent checks that s is a plain SQL identifier.
func ValidateIdent(s string) error {
	if !identPattern.MatchString(s) {
		return eris.Errorf("compose: invalid identifier %q", s)
	}
	return nil
}

// ValidateTable checks a table name that may be schema-qualified.
func ValidateTable(table string) error {
	parts := strings.Split(table, ".")
	if len(parts) > 2 {
		return eris.Errorf("compose: invalid table name %q", table)
	}
	for _, part := range parts {
		if err := ValidateIdent(part); err != nil {
			return eris.Wrapf(err, "compose: table %q", table)
		}
	}
	return nil
}
