package indicator

import (
	"github.com/sells-group/hexrisk/internal/dataset"
	"github.com/sells-group/hexrisk/internal/maperr"
)

// carbonDivisor converts the carbon factor to the map unit.
const carbonDivisor = 19.0

// Slot names a joined dataset column in a formula evaluation.
type Slot string

// Fixed slots. Indicator dependencies use DependencySlot.
const (
	SlotIndicator Slot = "indicator"
	SlotHarvest   Slot = "harvest"
	SlotProducer  Slot = "producer"
)

// MaterialSlot returns the slot a material dataset kind binds to.
func MaterialSlot(k dataset.Kind) Slot {
	return Slot(k)
}

// DependencySlot returns the slot an indicator dependency binds to.
func DependencySlot(c Code) Slot {
	return Slot("dep_" + string(c))
}

// Inputs are the per-cell values a formula reads.
type Inputs struct {
	Indicator     float64
	Harvest       float64
	Producer      float64
	Deforestation float64
}

// InputsFrom builds Inputs from slot values of one joined row.
func InputsFrom(values map[Slot]float64) Inputs {
	return Inputs{
		Indicator:     values[SlotIndicator],
		Harvest:       values[SlotHarvest],
		Producer:      values[SlotProducer],
		Deforestation: values[DependencySlot(CodeDeforestation)],
	}
}

// Params are the per-request scalars a formula reads.
type Params struct {
	CalculusFactor float64
	UnitArea       float64
}

// Strategy declares what an indicator needs and how it combines it. The
// set of strategies is closed; see StrategyFor.
type Strategy interface {
	Code() Code
	// Materials lists the material dataset kinds that must resolve for the
	// request material. They are joined even if the formula ignores them.
	Materials() []dataset.Kind
	// Dependencies lists the indicators whose datasets must resolve.
	Dependencies() []Code
	// Evaluate computes the native cell value.
	Evaluate(in Inputs, p Params) float64

	sealed()
}

// StrategyFor returns the strategy for code.
func StrategyFor(code Code) (Strategy, error) {
	switch code {
	case CodeWaterUse:
		return waterUse{}, nil
	case CodeDeforestation:
		return deforestation{}, nil
	case CodeBiodiversityLoss:
		return biodiversityLoss{}, nil
	case CodeCarbonEmissions:
		return carbonEmissions{}, nil
	}
	return nil, &maperr.UnsupportedIndicatorError{Code: string(code)}
}

type waterUse struct{}

func (waterUse) Code() Code                { return CodeWaterUse }
func (waterUse) Materials() []dataset.Kind { return []dataset.Kind{dataset.KindHarvest} }
func (waterUse) Dependencies() []Code      { return nil }
func (waterUse) sealed()                   {}
func (waterUse) Evaluate(in Inputs, p Params) float64 {
	return in.Indicator * p.CalculusFactor
}

type deforestation struct{}

func (deforestation) Code() Code                { return CodeDeforestation }
func (deforestation) Materials() []dataset.Kind { return []dataset.Kind{dataset.KindHarvest} }
func (deforestation) Dependencies() []Code      { return nil }
func (deforestation) sealed()                   {}
func (deforestation) Evaluate(in Inputs, _ Params) float64 {
	return in.Indicator * in.Harvest
}

type biodiversityLoss struct{}

func (biodiversityLoss) Code() Code                { return CodeBiodiversityLoss }
func (biodiversityLoss) Materials() []dataset.Kind { return []dataset.Kind{dataset.KindHarvest} }
func (biodiversityLoss) Dependencies() []Code      { return []Code{CodeDeforestation} }
func (biodiversityLoss) sealed()                   {}
func (biodiversityLoss) Evaluate(in Inputs, p Params) float64 {
	if p.UnitArea == 0 {
		return 0
	}
	return in.Indicator * (p.CalculusFactor / p.UnitArea) * (in.Deforestation * in.Harvest)
}

type carbonEmissions struct{}

func (carbonEmissions) Code() Code                { return CodeCarbonEmissions }
func (carbonEmissions) Materials() []dataset.Kind { return []dataset.Kind{dataset.KindHarvest} }
func (carbonEmissions) Dependencies() []Code      { return []Code{CodeDeforestation} }
func (carbonEmissions) sealed()                   {}
func (carbonEmissions) Evaluate(in Inputs, p Params) float64 {
	return in.Indicator * (in.Deforestation * in.Harvest) * (p.CalculusFactor / carbonDivisor)
}
