package memory

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"
	"trade_guard/internal/models"
	"trade_guard/pkg/id"
)

// Store — стор в памяти: paper-режим и тесты. Наружу отдаются только копии.
type Store struct {
	mu sync.RWMutex

	positions map[string]*models.Position
	orders    map[string]*models.ConditionalOrder
	stops     map[string]*models.StopOrder
	groups    map[string]*models.PushGroup
	members   map[string][]string // groupID -> positionIDs
	accounts  map[string]models.AccountRisk
}

func New() *Store {
	return &Store{
		positions: make(map[string]*models.Position),
		orders:    make(map[string]*models.ConditionalOrder),
		stops:     make(map[string]*models.StopOrder),
		groups:    make(map[string]*models.PushGroup),
		members:   make(map[string][]string),
		accounts:  make(map[string]models.AccountRisk),
	}
}

// ----- наполнение (paper-режим, тесты) -----

func (s *Store) SetAccount(acc models.AccountRisk) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.accounts[acc.Account] = acc
}

func (s *Store) AddConditionalOrder(o *models.ConditionalOrder) {
	s.mu.Lock()
	defer s.mu.Unlock()
	c := o.Clone()
	if c.ID == "" {
		c.ID = id.New()
	}
	if c.Status == "" {
		c.Status = models.OrderWaiting
	}
	s.orders[c.ID] = c
}

func (s *Store) AddStopOrder(o *models.StopOrder) {
	s.mu.Lock()
	defer s.mu.Unlock()
	c := *o
	if c.ID == "" {
		c.ID = id.New()
	}
	s.stops[c.ID] = &c
}

// SeedPosition кладёт позицию и привязывает её к push group символа (создаёт при необходимости).
func (s *Store) SeedPosition(p *models.Position) string {
	s.mu.Lock()
	defer s.mu.Unlock()
	c := p.Clone()
	if c.ID == "" {
		c.ID = id.New()
	}
	s.positions[c.ID] = c
	return s.attachLocked(c, c.OpenedAt)
}

func (s *Store) Position(id string) (*models.Position, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	p, ok := s.positions[id]
	if !ok {
		return nil, false
	}
	return p.Clone(), true
}

func (s *Store) ConditionalOrder(id string) (*models.ConditionalOrder, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	o, ok := s.orders[id]
	if !ok {
		return nil, false
	}
	return o.Clone(), true
}

func (s *Store) StopOrder(id string) (models.StopOrder, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	o, ok := s.stops[id]
	if !ok {
		return models.StopOrder{}, false
	}
	return *o, true
}

func (s *Store) StopOrdersFor(positionID string) []models.StopOrder {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var res []models.StopOrder
	for _, o := range s.stops {
		if o.PositionID == positionID {
			res = append(res, *o)
		}
	}
	return res
}

func (s *Store) PushGroup(id string) (models.PushGroup, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	g, ok := s.groups[id]
	if !ok {
		return models.PushGroup{}, false
	}
	return *g, true
}

// ----- PositionStore -----

func (s *Store) ListOpenPositions(ctx context.Context) ([]*models.Position, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	res := make([]*models.Position, 0, len(s.positions))
	for _, p := range s.positions {
		if p.IsOpen() {
			res = append(res, p.Clone())
		}
	}
	sort.Slice(res, func(i, j int) bool { return res[i].ID < res[j].ID })
	return res, nil
}

func (s *Store) UpdatePosition(ctx context.Context, p *models.Position) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	cur, ok := s.positions[p.ID]
	if !ok {
		return fmt.Errorf("position %s: %w", p.ID, models.ErrNotFound)
	}
	if !cur.IsOpen() {
		return fmt.Errorf("position %s: %w", p.ID, models.ErrStaleStatus)
	}
	s.positions[p.ID] = p.Clone()
	return nil
}

func (s *Store) ClosePosition(ctx context.Context, p *models.Position) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	cur, ok := s.positions[p.ID]
	if !ok {
		return fmt.Errorf("position %s: %w", p.ID, models.ErrNotFound)
	}
	if !cur.IsOpen() {
		return fmt.Errorf("position %s: %w", p.ID, models.ErrStaleStatus)
	}
	c := p.Clone()
	c.Status = models.PositionClosed
	s.positions[p.ID] = c
	return nil
}

func (s *Store) OpenPosition(ctx context.Context, p *models.Position, stop *models.StopOrder) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.positions[p.ID]; ok {
		return "", fmt.Errorf("position %s already exists", p.ID)
	}
	s.positions[p.ID] = p.Clone()
	groupID := s.attachLocked(p, p.OpenedAt)
	if stop != nil {
		c := *stop
		s.stops[c.ID] = &c
	}
	return groupID, nil
}

func (s *Store) attachLocked(p *models.Position, at time.Time) string {
	var group *models.PushGroup
	for _, g := range s.groups {
		if g.Account == p.Account && g.Symbol == p.Symbol && g.Status == models.PushGroupOpen {
			group = g
			break
		}
	}
	if group == nil {
		group = &models.PushGroup{
			ID:        id.New(),
			Account:   p.Account,
			Symbol:    p.Symbol,
			Status:    models.PushGroupOpen,
			CreatedAt: at,
		}
		s.groups[group.ID] = group
	}
	s.members[group.ID] = append(s.members[group.ID], p.ID)
	return group.ID
}

// ----- ConditionalOrderStore -----

func (s *Store) ListWaitingConditionalOrders(ctx context.Context) ([]*models.ConditionalOrder, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	var res []*models.ConditionalOrder
	for _, o := range s.orders {
		if o.Status == models.OrderWaiting {
			res = append(res, o.Clone())
		}
	}
	sort.Slice(res, func(i, j int) bool { return res[i].ID < res[j].ID })
	return res, nil
}

func (s *Store) UpdateConditionalOrderStatus(ctx context.Context, id string, from, to models.OrderStatus) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if err := models.ValidateTransition(from, to); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	o, err := s.orderInStatusLocked(id, from)
	if err != nil {
		return err
	}
	return o.Transition(to, time.Now())
}

func (s *Store) MarkExecuted(ctx context.Context, id, positionID string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	o, err := s.orderInStatusLocked(id, models.OrderTriggered)
	if err != nil {
		return err
	}
	o.ExecutionPositionID = positionID
	return o.Transition(models.OrderExecuted, time.Now())
}

func (s *Store) MarkFailed(ctx context.Context, id, errText string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	o, err := s.orderInStatusLocked(id, models.OrderTriggered)
	if err != nil {
		return err
	}
	o.ErrorMessage = errText
	return o.Transition(models.OrderFailed, time.Now())
}

func (s *Store) orderInStatusLocked(id string, status models.OrderStatus) (*models.ConditionalOrder, error) {
	o, ok := s.orders[id]
	if !ok {
		return nil, fmt.Errorf("conditional order %s: %w", id, models.ErrNotFound)
	}
	if o.Status != status {
		return nil, fmt.Errorf("conditional order %s is %s, want %s: %w", id, o.Status, status, models.ErrStaleStatus)
	}
	return o, nil
}

// ----- OrderCascadeStore -----

func (s *Store) ListWaitingOrdersFor(ctx context.Context, positionID string) ([]models.PendingOrder, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.waitingLocked(func(pid string) bool { return pid == positionID }), nil
}

func (s *Store) waitingLocked(match func(positionID string) bool) []models.PendingOrder {
	var res []models.PendingOrder
	for _, o := range s.orders {
		if o.Status == models.OrderWaiting && o.PositionID != "" && match(o.PositionID) {
			res = append(res, models.PendingOrder{ID: o.ID, Kind: models.PendingConditional, PositionID: o.PositionID})
		}
	}
	for _, o := range s.stops {
		if o.Status == models.StopWaiting && match(o.PositionID) {
			res = append(res, models.PendingOrder{ID: o.ID, Kind: models.PendingStop, PositionID: o.PositionID})
		}
	}
	sort.Slice(res, func(i, j int) bool { return res[i].ID < res[j].ID })
	return res
}

func (s *Store) CancelOrder(ctx context.Context, ref models.PendingOrder) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	switch ref.Kind {
	case models.PendingConditional:
		o, err := s.orderInStatusLocked(ref.ID, models.OrderWaiting)
		if err != nil {
			return err
		}
		return o.Transition(models.OrderCancelled, time.Now())
	case models.PendingStop:
		o, ok := s.stops[ref.ID]
		if !ok {
			return fmt.Errorf("stop order %s: %w", ref.ID, models.ErrNotFound)
		}
		if o.Status != models.StopWaiting {
			return fmt.Errorf("stop order %s is %s: %w", ref.ID, o.Status, models.ErrStaleStatus)
		}
		o.Status = models.StopCancelled
		o.UpdatedAt = time.Now()
		return nil
	default:
		return fmt.Errorf("unknown order kind %q", ref.Kind)
	}
}

// ----- PushGroupStore -----

func (s *Store) GetOpenPushGroup(ctx context.Context, account, symbol string) (*models.PushGroup, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, g := range s.groups {
		if g.Account == account && g.Symbol == symbol && g.Status == models.PushGroupOpen {
			c := *g
			return &c, nil
		}
	}
	return nil, fmt.Errorf("push group %s/%s: %w", account, symbol, models.ErrNotFound)
}

func (s *Store) PushGroupsForPosition(ctx context.Context, positionID string) ([]*models.PushGroup, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	var res []*models.PushGroup
	for gid, ids := range s.members {
		for _, pid := range ids {
			if pid == positionID {
				c := *s.groups[gid]
				res = append(res, &c)
				break
			}
		}
	}
	sort.Slice(res, func(i, j int) bool { return res[i].ID < res[j].ID })
	return res, nil
}

func (s *Store) CountOpenPositions(ctx context.Context, groupID string) (int, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.openCountLocked(groupID), nil
}

func (s *Store) openCountLocked(groupID string) int {
	n := 0
	for _, pid := range s.members[groupID] {
		if p, ok := s.positions[pid]; ok && p.IsOpen() {
			n++
		}
	}
	return n
}

func (s *Store) ClosePushGroup(ctx context.Context, id string, closedAt time.Time) (bool, error) {
	if err := ctx.Err(); err != nil {
		return false, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	g, ok := s.groups[id]
	if !ok {
		return false, fmt.Errorf("push group %s: %w", id, models.ErrNotFound)
	}
	if g.Status != models.PushGroupOpen {
		return false, nil
	}
	g.Status = models.PushGroupClosed
	g.ClosedAt = &closedAt
	return true, nil
}

// ----- RiskStore -----

func (s *Store) GetAccountRisk(ctx context.Context, account string) (models.AccountRisk, error) {
	if err := ctx.Err(); err != nil {
		return models.AccountRisk{}, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	acc, ok := s.accounts[account]
	if !ok {
		return models.AccountRisk{}, fmt.Errorf("account %s: %w", account, models.ErrNotFound)
	}
	return acc, nil
}

func (s *Store) SumRealizedPnL(ctx context.Context, account, symbol string) (float64, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	seen := make(map[string]struct{})
	var sum float64
	for gid, g := range s.groups {
		if g.Account != account || g.Symbol != symbol {
			continue
		}
		for _, pid := range s.members[gid] {
			if _, dup := seen[pid]; dup {
				continue
			}
			seen[pid] = struct{}{}
			if p, ok := s.positions[pid]; ok {
				sum += p.RealizedPnL
			}
		}
	}
	return sum, nil
}

// ----- ReconcileStore -----

func (s *Store) ListOrphanedOrders(ctx context.Context) ([]models.PendingOrder, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.waitingLocked(func(pid string) bool {
		p, ok := s.positions[pid]
		return ok && !p.IsOpen()
	}), nil
}

func (s *Store) ListExhaustedPushGroups(ctx context.Context) ([]*models.PushGroup, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	var res []*models.PushGroup
	for _, g := range s.groups {
		if g.Status == models.PushGroupOpen && s.openCountLocked(g.ID) == 0 {
			c := *g
			res = append(res, &c)
		}
	}
	sort.Slice(res, func(i, j int) bool { return res[i].ID < res[j].ID })
	return res, nil
}

func (s *Store) ListTriggeredOrders(ctx context.Context, olderThan time.Time) ([]*models.ConditionalOrder, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	var res []*models.ConditionalOrder
	for _, o := range s.orders {
		if o.Status != models.OrderTriggered {
			continue
		}
		if o.TriggeredAt != nil && o.TriggeredAt.After(olderThan) {
			continue
		}
		res = append(res, o.Clone())
	}
	sort.Slice(res, func(i, j int) bool { return res[i].ID < res[j].ID })
	return res, nil
}

func (s *Store) FindPositionBySource(ctx context.Context, orderID string) (*models.Position, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, p := range s.positions {
		if p.SourceOrderID == orderID {
			return p.Clone(), nil
		}
	}
	return nil, fmt.Errorf("position for order %s: %w", orderID, models.ErrNotFound)
}
