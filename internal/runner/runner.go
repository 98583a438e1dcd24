package runner

import (
	"context"
	"errors"
	"sort"
	"sync"
	"time"
	"trade_guard/pkg/logger"
)

var ErrPriceUnavailable = errors.New("price unavailable")

const (
	LoopStop      = "stop"
	LoopTrigger   = "trigger"
	LoopReconcile = "reconcile"
)

// Runner — планировщик: два независимых цикла (стопы и условные ордера) плюс сверка.
// Общие между циклами только стор и кэш цен.
type Runner struct {
	settings Settings
	store    Store
	feed     PriceFeed
	cache    *PriceCache

	trail      *TrailEngine
	trigger    *TriggerEngine
	reconciler *Reconciler
	heartbeat  Heartbeat

	mu     sync.Mutex
	cancel context.CancelFunc
	wg     sync.WaitGroup

	now func() time.Time
}

func New(settings Settings, store Store, feed PriceFeed, notifier Notifier, heartbeat Heartbeat) *Runner {
	settings = settings.withDefaults()
	risk := NewRiskAllocator(store)
	return &Runner{
		settings:   settings,
		store:      store,
		feed:       feed,
		cache:      NewPriceCache(settings.MaxPriceStaleness),
		trail:      NewTrailEngine(store, notifier, settings.StoreTimeout),
		trigger:    NewTriggerEngine(store, risk, notifier, settings.StoreTimeout),
		reconciler: NewReconciler(store, settings.StoreTimeout, settings.StuckTriggerAge),
		heartbeat:  heartbeat,
		now:        time.Now,
	}
}

// Cache отдаёт общий кэш цен (его же греет стрим тикеров).
func (r *Runner) Cache() *PriceCache { return r.cache }

func (r *Runner) Reconciler() *Reconciler { return r.reconciler }

// Start запускает циклы в фоне. Повторный вызов без Stop — no-op.
func (r *Runner) Start(parent context.Context) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.cancel != nil {
		return
	}
	ctx, cancel := context.WithCancel(parent)
	r.cancel = cancel

	r.spawn(ctx, LoopTrigger, r.settings.TriggerInterval, r.triggerCycle)
	r.spawn(ctx, LoopStop, r.settings.StopInterval, r.stopCycle)
	if r.settings.ReconcileInterval > 0 {
		r.spawn(ctx, LoopReconcile, r.settings.ReconcileInterval, func(ctx context.Context) error {
			_, err := r.reconciler.Sweep(ctx)
			return err
		})
	}
	logger.Info("[RUNNER] started: trigger=%s stop=%s reconcile=%s",
		r.settings.TriggerInterval, r.settings.StopInterval, r.settings.ReconcileInterval)
}

// Stop сигналит циклам и ждёт их выхода. Начатые записи дописываются.
func (r *Runner) Stop() {
	r.mu.Lock()
	cancel := r.cancel
	r.cancel = nil
	r.mu.Unlock()

	if cancel == nil {
		return
	}
	cancel()
	r.wg.Wait()
	logger.Info("[RUNNER] stopped")
}

func (r *Runner) spawn(ctx context.Context, name string, interval time.Duration, cycle func(context.Context) error) {
	r.wg.Add(1)
	go func() {
		defer r.wg.Done()
		r.loop(ctx, name, interval, cycle)
	}()
}

func (r *Runner) loop(ctx context.Context, name string, interval time.Duration, cycle func(context.Context) error) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	r.runCycle(ctx, name, cycle) // сразу при старте

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if ctx.Err() != nil {
				return
			}
			r.runCycle(ctx, name, cycle)
		}
	}
}

// runCycle — одна итерация цикла. Ошибки и паники логируются, цикл живёт дальше.
func (r *Runner) runCycle(ctx context.Context, name string, cycle func(context.Context) error) {
	started := r.now()
	result := "ok"
	defer func() {
		if p := recover(); p != nil {
			result = "panic"
			logger.Error("[%s] cycle panic: %v", name, p)
		}
		cyclesTotal.WithLabelValues(name, result).Inc()
		cycleDuration.WithLabelValues(name).Observe(float64(r.now().Sub(started).Milliseconds()))
		if r.heartbeat != nil && result != "panic" {
			r.heartbeat.TouchCycle(name, r.now())
		}
	}()

	if err := cycle(ctx); err != nil {
		if errors.Is(err, context.Canceled) {
			result = "cancelled"
			return
		}
		result = "error"
		logger.Error("[%s] cycle failed: %v", name, err)
	}
}

// resolvePrice: живая цена → кэш (если не протух) → пропуск группы.
func (r *Runner) resolvePrice(ctx context.Context, loop, symbol string) (float64, bool) {
	fctx, cancel := context.WithTimeout(ctx, r.settings.PriceTimeout)
	price, err := r.feed.LastPrice(fctx, symbol)
	cancel()
	if err == nil && price <= 0 {
		err = ErrPriceUnavailable
	}
	if err == nil {
		r.cache.Set(symbol, price, r.now())
		priceSource.WithLabelValues(loop, "feed").Inc()
		return price, true
	}

	if cached, ok := r.cache.Get(symbol); ok {
		priceSource.WithLabelValues(loop, "cache").Inc()
		logger.Warn("[%s] %s: live price unavailable (%v), using cached %.6f", loop, symbol, err, cached)
		return cached, true
	}

	priceSource.WithLabelValues(loop, "miss").Inc()
	logger.Warn("[%s] %s: no price (%v), group skipped", loop, symbol, err)
	return 0, false
}

// guard изолирует обработку одного элемента: ошибка или паника не роняют цикл.
func guard(loop, itemID string, fn func() error) {
	defer func() {
		if p := recover(); p != nil {
			evaluationErrors.WithLabelValues(loop, "panic").Inc()
			logger.Error("[%s] %s: panic: %v", loop, itemID, p)
		}
	}()
	if err := fn(); err != nil {
		evaluationErrors.WithLabelValues(loop, "error").Inc()
		logger.Error("[%s] %s: %v", loop, itemID, err)
	}
}

// groupBySymbol группирует элементы и отдаёт символы в отсортированном порядке.
func groupBySymbol[T any](items []T, symbolOf func(T) string) ([]string, map[string][]T) {
	groups := make(map[string][]T)
	for _, it := range items {
		s := symbolOf(it)
		groups[s] = append(groups[s], it)
	}
	symbols := make([]string, 0, len(groups))
	for s := range groups {
		symbols = append(symbols, s)
	}
	sort.Strings(symbols)
	return symbols, groups
}
