package models

type AccountRisk struct {
	Account string
	Equity  float64
	Slots   int
}

// RiskAllocation — производная величина, не хранится.
type RiskAllocation struct {
	Account             string
	Symbol              string
	SingleRiskAmount    float64
	AccumulatedRealized float64
	Available           float64
}
