package runner

import (
	"context"
	"errors"
	"fmt"
	"math"
	"time"
	"trade_guard/internal/models"
	"trade_guard/pkg/id"
	"trade_guard/pkg/logger"
)

var ErrNoRiskCapital = errors.New("no risk capital available")

// TriggerStore — то, что нужно движку условных ордеров от стора.
type TriggerStore interface {
	PositionStore
	ConditionalOrderStore
}

type TriggerOutcome string

const (
	TriggerSkipped  TriggerOutcome = "skipped"
	TriggerWaiting  TriggerOutcome = "waiting"
	TriggerExecuted TriggerOutcome = "executed"
	TriggerFailed   TriggerOutcome = "failed"
)

type TriggerEngine struct {
	store        TriggerStore
	risk         *RiskAllocator
	notifier     Notifier
	storeTimeout time.Duration
	now          func() time.Time
}

func NewTriggerEngine(store TriggerStore, risk *RiskAllocator, notifier Notifier, storeTimeout time.Duration) *TriggerEngine {
	return &TriggerEngine{
		store:        store,
		risk:         risk,
		notifier:     notifier,
		storeTimeout: storeTimeout,
		now:          time.Now,
	}
}

// Evaluate проверяет пробой и при срабатывании превращает ордер в позицию.
// Итог у сработавшего ордера ровно один: EXECUTED или FAILED.
func (e *TriggerEngine) Evaluate(ctx context.Context, o *models.ConditionalOrder, price float64) (TriggerOutcome, error) {
	if o == nil || o.Status != models.OrderWaiting {
		return TriggerSkipped, nil
	}
	if price <= 0 || !o.Condition.Fires(price, o.TriggerPrice) {
		return TriggerWaiting, nil
	}

	now := e.now()
	if err := o.Transition(models.OrderTriggered, now); err != nil {
		return TriggerSkipped, err
	}

	wctx, cancel := writeCtx(ctx, e.storeTimeout)
	err := e.store.UpdateConditionalOrderStatus(wctx, o.ID, models.OrderWaiting, models.OrderTriggered)
	cancel()
	if errors.Is(err, models.ErrStaleStatus) {
		// ордер успели отменить или обработать — не трогаем
		return TriggerSkipped, nil
	}
	if err != nil {
		return TriggerWaiting, fmt.Errorf("mark triggered %s: %w", o.ID, err)
	}
	logger.Info("[TRIGGER] %s %s %s @ %.6f (trigger %.6f)", o.ID, o.Symbol, o.Condition, price, o.TriggerPrice)

	// после TRIGGERED последовательность доводится до конца и при остановке,
	// каждый шаг ограничен только своим таймаутом
	ctx = context.WithoutCancel(ctx)

	pos, err := e.execute(ctx, o, price, now)
	if err != nil {
		return e.fail(ctx, o, err)
	}

	wctx, cancel = writeCtx(ctx, e.storeTimeout)
	err = e.store.MarkExecuted(wctx, o.ID, pos.ID)
	cancel()
	if err != nil {
		// позиция уже есть, ордер остался TRIGGERED — его доведёт сверка
		return TriggerExecuted, fmt.Errorf("mark executed %s: %w", o.ID, err)
	}
	o.ExecutionPositionID = pos.ID
	_ = o.Transition(models.OrderExecuted, now)
	conditionalOutcomes.WithLabelValues(string(models.OrderExecuted)).Inc()

	if e.notifier != nil {
		e.notifier.Sendf("✅ [%s] Условный ордер исполнен | %s %s @ %.6f | qty=%.4f SL=%.6f",
			o.Symbol, o.Condition, pos.Direction, price, pos.Quantity, pos.CurrentStopPrice)
	}
	return TriggerExecuted, nil
}

func (e *TriggerEngine) fail(ctx context.Context, o *models.ConditionalOrder, cause error) (TriggerOutcome, error) {
	logger.Warn("[TRIGGER] %s failed: %v", o.ID, cause)

	wctx, cancel := writeCtx(ctx, e.storeTimeout)
	defer cancel()
	if err := e.store.MarkFailed(wctx, o.ID, cause.Error()); err != nil {
		return TriggerFailed, fmt.Errorf("mark failed %s: %w", o.ID, err)
	}
	o.ErrorMessage = cause.Error()
	_ = o.Transition(models.OrderFailed, e.now())
	conditionalOutcomes.WithLabelValues(string(models.OrderFailed)).Inc()
	return TriggerFailed, nil
}

// execute строит позицию (с учётом доступного риска) и атомарно сохраняет её.
func (e *TriggerEngine) execute(ctx context.Context, o *models.ConditionalOrder, price float64, now time.Time) (*models.Position, error) {
	if !o.Direction.Valid() {
		return nil, fmt.Errorf("unknown direction %q", o.Direction)
	}
	if o.Quantity <= 0 {
		return nil, fmt.Errorf("quantity <= 0")
	}

	var stop float64
	if o.StopLossPrice != nil {
		stop = *o.StopLossPrice
	}
	if stop > 0 {
		if o.Direction == models.Long && stop >= price {
			return nil, fmt.Errorf("stop-loss %.6f is not below entry %.6f", stop, price)
		}
		if o.Direction == models.Short && stop <= price {
			return nil, fmt.Errorf("stop-loss %.6f is not above entry %.6f", stop, price)
		}
	}

	qty, err := e.sizeByRisk(ctx, o, price, stop)
	if err != nil {
		return nil, err
	}

	lev := o.Leverage
	if lev <= 0 {
		lev = 1
	}
	pos := &models.Position{
		ID:                 id.New(),
		Account:            o.Account,
		Symbol:             o.Symbol,
		Direction:          o.Direction,
		Quantity:           qty,
		ContractMultiplier: 1,
		EntryPrice:         price,
		InitialStopPrice:   stop,
		CurrentStopPrice:   stop,
		Leverage:           lev,
		Margin:             qty * price / float64(lev),
		TotalValue:         qty * price,
		Status:             models.PositionOpen,
		LastPrice:          price,
		SourceOrderID:      o.ID,
		OpenedAt:           now,
		UpdatedAt:          now,
	}

	var stopOrder *models.StopOrder
	if stop > 0 {
		stopOrder = &models.StopOrder{
			ID:           id.New(),
			PositionID:   pos.ID,
			Account:      o.Account,
			Symbol:       o.Symbol,
			Kind:         models.StopKindLoss,
			TriggerPrice: stop,
			Quantity:     qty,
			Status:       models.StopWaiting,
			CreatedAt:    now,
			UpdatedAt:    now,
		}
	}

	wctx, cancel := writeCtx(ctx, e.storeTimeout)
	defer cancel()
	if _, err := e.store.OpenPosition(wctx, pos, stopOrder); err != nil {
		return nil, fmt.Errorf("open position: %w", err)
	}
	return pos, nil
}

// sizeByRisk урезает количество так, чтобы риск до стопа не превышал доступный.
// Количество никогда не увеличивается.
func (e *TriggerEngine) sizeByRisk(ctx context.Context, o *models.ConditionalOrder, price, stop float64) (float64, error) {
	qty := o.Quantity
	if e.risk == nil {
		return qty, nil
	}

	rctx, cancel := readCtx(ctx, e.storeTimeout)
	defer cancel()
	available, err := e.risk.Available(rctx, o.Account, o.Symbol)
	if err != nil {
		return 0, fmt.Errorf("risk allocation: %w", err)
	}
	if available <= 0 {
		return 0, fmt.Errorf("%w: %.4f", ErrNoRiskCapital, available)
	}
	if stop <= 0 {
		return qty, nil
	}

	perUnit := math.Abs(price - stop)
	if perUnit*qty > available {
		capped := available / perUnit
		logger.Info("[TRIGGER] %s qty capped by risk: %.6f -> %.6f (available %.4f)", o.ID, qty, capped, available)
		qty = capped
	}
	return qty, nil
}
