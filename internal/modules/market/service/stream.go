package service

import (
	"context"
	"sync"
	"time"
	"trade_guard/pkg/logger"

	"github.com/bytedance/sonic"
	"github.com/gorilla/websocket"
)

// PriceSink — куда стрим складывает цены (кэш раннера).
type PriceSink interface {
	Set(symbol string, price float64, at time.Time)
}

// ConnState — отметка о состоянии WS для health.
type ConnState interface {
	SetWSConnected(v bool)
}

// SymbolSource отдаёт символы, которые сейчас стоит слушать.
type SymbolSource func(ctx context.Context) []string

// StaticSymbols — фиксированный список из конфига.
func StaticSymbols(symbols []string) SymbolSource {
	return func(context.Context) []string { return symbols }
}

const (
	pingEvery    = 15 * time.Second
	refreshEvery = time.Minute
	maxBackoff   = 30 * time.Second
	baseBackoff  = 300 * time.Millisecond
)

// Stream держит WS-подписку sub.ticker и греет кэш цен.
// Циклы от него не зависят: без стрима цены берутся через REST.
// Список символов перечитывается раз в refresh и при каждом переподключении.
type Stream struct {
	url     string
	symbols SymbolSource
	sink    PriceSink
	state   ConnState
	dialer  *websocket.Dialer
	refresh time.Duration

	wg sync.WaitGroup
}

func NewStream(url string, symbols SymbolSource, sink PriceSink, state ConnState) *Stream {
	return &Stream{
		url:     url,
		symbols: symbols,
		sink:    sink,
		state:   state,
		dialer:  &websocket.Dialer{HandshakeTimeout: 10 * time.Second},
		refresh: refreshEvery,
	}
}

type tickerFrame struct {
	Channel string `json:"channel"`
	Symbol  string `json:"symbol"`
	Data    struct {
		Symbol    string  `json:"symbol"`
		LastPrice float64 `json:"lastPrice"`
		Timestamp int64   `json:"timestamp"`
	} `json:"data"`
	Ts int64 `json:"ts"`
}

// Start запускает переподключающийся цикл в фоне; выход по ctx.
func (s *Stream) Start(ctx context.Context) {
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		s.run(ctx)
	}()
}

func (s *Stream) Wait() { s.wg.Wait() }

func (s *Stream) run(ctx context.Context) {
	retry := 0
	idle := false
	for {
		if ctx.Err() != nil {
			return
		}
		symbols := s.symbols(ctx)
		if len(symbols) == 0 {
			if !idle {
				logger.Info("[WS] no symbols to watch, waiting")
				idle = true
			}
			if !sleepCtx(ctx, s.refresh) {
				return
			}
			continue
		}
		idle = false

		subscribed, err := s.session(ctx, symbols)
		s.setConnected(false)
		if ctx.Err() != nil {
			return
		}

		if subscribed {
			retry = 0
		}
		retry++
		backoff := time.Duration(retry) * baseBackoff
		if backoff > maxBackoff {
			backoff = maxBackoff
		}
		logger.Warn("[WS] %s: %v, reconnect in %s", s.url, err, backoff)
		if !sleepCtx(ctx, backoff) {
			return
		}
	}
}

func sleepCtx(ctx context.Context, d time.Duration) bool {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-t.C:
		return true
	}
}

// session — одно соединение: подписка, keepalive, досписка новых символов, чтение до ошибки.
func (s *Stream) session(ctx context.Context, symbols []string) (subscribed bool, err error) {
	conn, _, err := s.dialer.DialContext(ctx, s.url, nil)
	if err != nil {
		return false, err
	}
	defer func() {
		_ = conn.Close()
	}()

	active := make(map[string]struct{}, len(symbols))
	for _, sym := range symbols {
		if err := conn.WriteJSON(subMessage("sub.ticker", sym)); err != nil {
			return false, err
		}
		active[sym] = struct{}{}
	}
	s.setConnected(true)
	logger.Info("[WS] connected %s, %d symbols", s.url, len(symbols))

	done := make(chan struct{})
	defer close(done)

	// после подписки пишет только эта горутина
	go func() {
		ping := time.NewTicker(pingEvery)
		defer ping.Stop()
		refresh := time.NewTicker(s.refresh)
		defer refresh.Stop()
		for {
			select {
			case <-done:
				return
			case <-ctx.Done():
				// разблокирует ReadMessage
				_ = conn.Close()
				return
			case <-ping.C:
				_ = conn.WriteJSON(map[string]string{"method": "ping"})
			case <-refresh.C:
				if err := s.resubscribe(ctx, conn, active); err != nil {
					_ = conn.Close()
					return
				}
			}
		}
	}()

	for {
		_, msg, err := conn.ReadMessage()
		if err != nil {
			return true, err
		}
		s.handle(msg)
	}
}

// resubscribe сводит подписки к текущему списку символов.
// Пустой список не трогает подписки: скорее всего это сбой чтения, а не конец работы.
func (s *Stream) resubscribe(ctx context.Context, conn *websocket.Conn, active map[string]struct{}) error {
	symbols := s.symbols(ctx)
	if len(symbols) == 0 {
		return nil
	}
	want := make(map[string]struct{}, len(symbols))
	for _, sym := range symbols {
		want[sym] = struct{}{}
		if _, ok := active[sym]; ok {
			continue
		}
		if err := conn.WriteJSON(subMessage("sub.ticker", sym)); err != nil {
			return err
		}
		active[sym] = struct{}{}
		logger.Info("[WS] subscribed %s", sym)
	}
	for sym := range active {
		if _, ok := want[sym]; ok {
			continue
		}
		if err := conn.WriteJSON(subMessage("unsub.ticker", sym)); err != nil {
			return err
		}
		delete(active, sym)
		logger.Info("[WS] unsubscribed %s", sym)
	}
	return nil
}

func subMessage(method, symbol string) map[string]any {
	return map[string]any{"method": method, "param": map[string]string{"symbol": symbol}}
}

func (s *Stream) handle(msg []byte) {
	var frame tickerFrame
	if err := sonic.Unmarshal(msg, &frame); err != nil {
		return
	}
	if frame.Channel != "push.ticker" || frame.Data.LastPrice <= 0 {
		return
	}
	symbol := frame.Data.Symbol
	if symbol == "" {
		symbol = frame.Symbol
	}
	if symbol == "" {
		return
	}

	at := time.Now()
	if ts := frame.Data.Timestamp; ts > 0 {
		at = time.UnixMilli(ts)
	}
	s.sink.Set(symbol, frame.Data.LastPrice, at)
}

func (s *Stream) setConnected(v bool) {
	if s.state != nil {
		s.state.SetWSConnected(v)
	}
}
