package runner

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"
	"trade_guard/internal/models"
	"trade_guard/internal/modules/orders/service/memory"
)

var errBoom = errors.New("boom")

type fakeFeed struct {
	mu     sync.Mutex
	prices map[string]float64
	errs   map[string]error
	calls  map[string]int
}

func newFakeFeed() *fakeFeed {
	return &fakeFeed{
		prices: make(map[string]float64),
		errs:   make(map[string]error),
		calls:  make(map[string]int),
	}
}

func (f *fakeFeed) set(symbol string, price float64) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.prices[symbol] = price
	delete(f.errs, symbol)
}

func (f *fakeFeed) fail(symbol string, err error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.errs[symbol] = err
}

func (f *fakeFeed) LastPrice(_ context.Context, symbol string) (float64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls[symbol]++
	if err, ok := f.errs[symbol]; ok {
		return 0, err
	}
	p, ok := f.prices[symbol]
	if !ok {
		return 0, fmt.Errorf("%s: no quote", symbol)
	}
	return p, nil
}

type recNotifier struct {
	mu   sync.Mutex
	msgs []string
}

func (n *recNotifier) Sendf(format string, args ...any) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.msgs = append(n.msgs, fmt.Sprintf(format, args...))
}

func (n *recNotifier) messages() []string {
	n.mu.Lock()
	defer n.mu.Unlock()
	return append([]string(nil), n.msgs...)
}

type recHeartbeat struct {
	mu    sync.Mutex
	loops map[string]int
}

func (h *recHeartbeat) TouchCycle(loop string, _ time.Time) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.loops == nil {
		h.loops = make(map[string]int)
	}
	h.loops[loop]++
}

func (h *recHeartbeat) count(loop string) int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.loops[loop]
}

// flakyStore — memory-стор с точечными отказами.
type flakyStore struct {
	*memory.Store

	mu          sync.Mutex
	failCancel  bool
	failListPos bool
	failUpdate  map[string]bool
}

func newFlakyStore() *flakyStore {
	return &flakyStore{Store: memory.New(), failUpdate: make(map[string]bool)}
}

func (s *flakyStore) CancelOrder(ctx context.Context, ref models.PendingOrder) error {
	s.mu.Lock()
	fail := s.failCancel
	s.mu.Unlock()
	if fail {
		return errBoom
	}
	return s.Store.CancelOrder(ctx, ref)
}

func (s *flakyStore) ListOpenPositions(ctx context.Context) ([]*models.Position, error) {
	s.mu.Lock()
	fail := s.failListPos
	s.mu.Unlock()
	if fail {
		return nil, errBoom
	}
	return s.Store.ListOpenPositions(ctx)
}

func (s *flakyStore) UpdatePosition(ctx context.Context, p *models.Position) error {
	s.mu.Lock()
	fail := s.failUpdate[p.ID]
	s.mu.Unlock()
	if fail {
		return errBoom
	}
	return s.Store.UpdatePosition(ctx, p)
}

var testNow = time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)

func fixedNow() time.Time { return testNow }

func ptr(v float64) *float64 { return &v }

func longPosition(id, symbol string, entry, stop, qty float64) *models.Position {
	return &models.Position{
		ID:                 id,
		Account:            "acc",
		Symbol:             symbol,
		Direction:          models.Long,
		Quantity:           qty,
		ContractMultiplier: 1,
		EntryPrice:         entry,
		InitialStopPrice:   stop,
		CurrentStopPrice:   stop,
		Leverage:           1,
		Status:             models.PositionOpen,
		OpenedAt:           testNow.Add(-time.Hour),
	}
}

func shortPosition(id, symbol string, entry, stop, qty float64) *models.Position {
	p := longPosition(id, symbol, entry, stop, qty)
	p.Direction = models.Short
	return p
}
