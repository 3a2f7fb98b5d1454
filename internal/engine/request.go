package engine

import (
	"errors"
	"fmt"
	"strings"

	"github.com/go-playground/validator/v10"

	"github.com/sells-group/hexrisk/internal/hexgrid"
	"github.com/sells-group/hexrisk/internal/maperr"
)

// RiskMapRequest selects an indicator map for one material.
type RiskMapRequest struct {
	IndicatorID string `json:"indicatorId" validate:"required"`
	MaterialID  string `json:"materialId" validate:"required"`
	Year        int    `json:"year" validate:"required,min=1900,max=2200"`
	Resolution  int    `json:"resolution" validate:"required"`
}

// ImpactMapRequest selects an indicator map summed over sourcing locations.
// Empty id sets do not restrict.
type ImpactMapRequest struct {
	IndicatorID   string   `json:"indicatorId" validate:"required"`
	Year          int      `json:"year" validate:"required,min=1900,max=2200"`
	Resolution    int      `json:"resolution" validate:"required"`
	MaterialIDs   []string `json:"materialIds,omitempty" validate:"dive,required"`
	OriginIDs     []string `json:"originIds,omitempty" validate:"dive,required"`
	SupplierIDs   []string `json:"supplierIds,omitempty" validate:"dive,required"`
	LocationTypes []string `json:"locationTypes,omitempty" validate:"dive,oneof=point-of-production aggregation-point country-of-production administrative-region-of-production unknown"`
	ScenarioID    string   `json:"scenarioId,omitempty"`
}

// validate is shared; validator caches struct metadata and is safe for
// concurrent use.
var validate = validator.New(validator.WithRequiredStructEnabled())

// checkRequest validates req's tags and the requested resolution against
// the native resolution.
func checkRequest(req any, resolution, native int) error {
	if err := validate.Struct(req); err != nil {
		var verrs validator.ValidationErrors
		if errors.As(err, &verrs) && len(verrs) > 0 {
			fe := verrs[0]
			return maperr.NewInvalidRequest(jsonField(fe), describe(fe))
		}
		return maperr.NewInvalidRequest("request", err.Error())
	}
	if !hexgrid.ValidResolution(resolution, native) {
		return maperr.NewInvalidRequest("resolution",
			fmt.Sprintf("must be between %d and %d", hexgrid.MinResolution, native))
	}
	return nil
}

// jsonField turns a struct namespace like "ImpactMapRequest.MaterialIDs[0]"
// into the request parameter name.
func jsonField(fe validator.FieldError) string {
	name := fe.StructField()
	if i := strings.IndexByte(name, '['); i >= 0 {
		name = name[:i]
	}
	switch name {
	case "IndicatorID":
		return "indicatorId"
	case "MaterialID":
		return "materialId"
	case "MaterialIDs":
		return "materialIds"
	case "OriginIDs":
		return "originIds"
	case "SupplierIDs":
		return "supplierIds"
	case "LocationTypes":
		return "locationTypes"
	}
	return strings.ToLower(name[:1]) + name[1:]
}

func describe(fe validator.FieldError) string {
	switch fe.Tag() {
	case "required":
		return "is required"
	case "min":
		return "must be at least " + fe.Param()
	case "max":
		return "must be at most " + fe.Param()
	case "oneof":
		return fmt.Sprintf("%v is not one of %s", fe.Value(), fe.Param())
	}
	return "failed " + fe.Tag()
}
