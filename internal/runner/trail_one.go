package runner

import (
	"context"
	"fmt"
	"math"
	"time"
	"trade_guard/internal/models"
)

// TrailStore — то, что нужно движку стопов от стора.
type TrailStore interface {
	PositionStore
	OrderCascadeStore
	PushGroupStore
}

type TrailEngine struct {
	store        TrailStore
	notifier     Notifier
	storeTimeout time.Duration
	now          func() time.Time
}

func NewTrailEngine(store TrailStore, notifier Notifier, storeTimeout time.Duration) *TrailEngine {
	return &TrailEngine{
		store:        store,
		notifier:     notifier,
		storeTimeout: storeTimeout,
		now:          time.Now,
	}
}

type TrailResult struct {
	PriceUpdated bool
	StopMoved    bool
	// Closed — позицию закрыл именно этот вызов
	Closed bool
	Stop   float64
}

// Evaluate — один тик цены для одной позиции: храповик, пересчёт стопа, проверка срабатывания.
// Закрытая позиция — no-op.
func (e *TrailEngine) Evaluate(ctx context.Context, p *models.Position, price float64) (TrailResult, error) {
	if p == nil || !p.IsOpen() || price <= 0 {
		return TrailResult{}, nil
	}

	var res TrailResult
	if trailable(p) {
		res.PriceUpdated, res.StopMoved = ratchet(p, price)
	}
	res.Stop = p.CurrentStopPrice

	p.LastPrice = price
	p.FloatingPnL = p.PnLAt(price)
	p.UpdatedAt = e.now()

	if trailable(p) && stopHit(p, price) {
		closed, err := e.closePosition(ctx, p, price)
		if err != nil {
			return res, err
		}
		res.Closed = closed
		return res, nil
	}

	wctx, cancel := writeCtx(ctx, e.storeTimeout)
	defer cancel()
	if err := e.store.UpdatePosition(wctx, p); err != nil {
		return res, fmt.Errorf("update position %s: %w", p.ID, err)
	}
	if res.StopMoved {
		stopsMoved.WithLabelValues(string(p.Direction)).Inc()
	}
	return res, nil
}

// trailable — без валидного начального стопа позицию не тянем и не выбиваем.
func trailable(p *models.Position) bool {
	return p.EntryPrice > 0 && p.InitialStopPrice > 0
}

// ratchet обновляет лучшую цену и подтягивает стоп. Стоп никогда не ослабляется.
func ratchet(p *models.Position, price float64) (priceUpdated, stopMoved bool) {
	switch p.Direction {
	case models.Long:
		if p.HighestPrice == nil || price > *p.HighestPrice {
			priceUpdated = true
		}
	case models.Short:
		if p.HighestPrice == nil || price < *p.HighestPrice {
			priceUpdated = true
		}
	default:
		return false, false
	}
	if !priceUpdated {
		return false, false
	}
	best := price
	p.HighestPrice = &best

	ratio := math.Abs(p.EntryPrice-p.InitialStopPrice) / p.EntryPrice
	if p.Direction == models.Long {
		cand := best * (1 - ratio)
		if cand > p.CurrentStopPrice {
			p.CurrentStopPrice = cand
			stopMoved = true
		}
	} else {
		cand := best * (1 + ratio)
		if p.CurrentStopPrice <= 0 || cand < p.CurrentStopPrice {
			p.CurrentStopPrice = cand
			stopMoved = true
		}
	}
	return priceUpdated, stopMoved
}

func stopHit(p *models.Position, price float64) bool {
	if p.CurrentStopPrice <= 0 {
		return false
	}
	if p.Direction == models.Long {
		return price <= p.CurrentStopPrice
	}
	return price >= p.CurrentStopPrice
}
