package models

import "time"

type Direction string

const (
	Long  Direction = "long"
	Short Direction = "short"
)

func (d Direction) Valid() bool { return d == Long || d == Short }

type PositionStatus string

const (
	PositionOpen   PositionStatus = "open"
	PositionClosed PositionStatus = "closed"
)

type CloseType string

const (
	CloseStopLoss  CloseType = "stop_loss"
	CloseManual    CloseType = "manual"
	CloseReconcile CloseType = "reconcile"
)

// Position — открытая экспозиция по символу.
// HighestPrice для шорта хранит минимум (лучшую для позиции цену).
type Position struct {
	ID                 string
	Account            string
	Symbol             string
	Direction          Direction
	Quantity           float64
	ContractMultiplier float64
	EntryPrice         float64
	InitialStopPrice   float64
	CurrentStopPrice   float64
	HighestPrice       *float64
	Leverage           int
	Margin             float64
	TotalValue         float64
	Status             PositionStatus
	ClosePrice         *float64
	ClosedAt           *time.Time
	CloseType          CloseType
	RealizedPnL        float64
	FloatingPnL        float64
	LastPrice          float64
	SourceOrderID      string
	OpenedAt           time.Time
	UpdatedAt          time.Time
}

func (p *Position) IsOpen() bool { return p.Status == PositionOpen }

func (p *Position) Multiplier() float64 {
	if p.ContractMultiplier <= 0 {
		return 1
	}
	return p.ContractMultiplier
}

// PnLAt — плавающий результат позиции при цене price.
func (p *Position) PnLAt(price float64) float64 {
	pnl := (price - p.EntryPrice) * p.Quantity * p.Multiplier()
	if p.Direction == Short {
		return -pnl
	}
	return pnl
}

// Clone нужен сторам, чтобы не отдавать наружу указатели на внутреннее состояние.
func (p *Position) Clone() *Position {
	c := *p
	if p.HighestPrice != nil {
		v := *p.HighestPrice
		c.HighestPrice = &v
	}
	if p.ClosePrice != nil {
		v := *p.ClosePrice
		c.ClosePrice = &v
	}
	if p.ClosedAt != nil {
		v := *p.ClosedAt
		c.ClosedAt = &v
	}
	return &c
}
