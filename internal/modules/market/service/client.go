package service

import (
	"context"
	"fmt"
	"time"
	"trade_guard/internal/runner"

	"go.uber.org/ratelimit"
	"resty.dev/v3"
)

const _tickerURL = "/api/v1/contract/ticker"

type ClientConfig struct {
	BaseURL           string
	RequestsPerMinute int
	Timeout           time.Duration
}

// Client — REST-источник последней цены (публичный тикер контрактов MEXC).
type Client struct {
	c           *resty.Client
	rateLimiter ratelimit.Limiter
}

func NewClient(cfg ClientConfig) *Client {
	rpm := cfg.RequestsPerMinute
	if rpm <= 0 {
		rpm = 600
	}
	client := resty.New().
		SetBaseURL(cfg.BaseURL)
	if cfg.Timeout > 0 {
		client.SetTimeout(cfg.Timeout)
	}
	return &Client{
		c:           client,
		rateLimiter: ratelimit.New(rpm, ratelimit.Per(time.Minute)),
	}
}

type tickerResponse struct {
	Success bool `json:"success"`
	Code    int  `json:"code"`
	Data    struct {
		Symbol    string  `json:"symbol"`
		LastPrice float64 `json:"lastPrice"`
		Timestamp int64   `json:"timestamp"`
	} `json:"data"`
	Message string `json:"message"`
}

type errorResponse struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
}

// LastPrice — GET /api/v1/contract/ticker?symbol=...
func (cl *Client) LastPrice(ctx context.Context, symbol string) (float64, error) {
	if err := cl.take(ctx); err != nil {
		return 0, fmt.Errorf("ticker %s: rate limit wait: %w", symbol, err)
	}

	req := cl.c.R().
		SetQueryParams(map[string]string{"symbol": symbol}).
		SetResult(&tickerResponse{}).
		SetError(&errorResponse{}).
		SetContext(ctx)

	resp, err := req.Get(_tickerURL)
	if err != nil {
		return 0, fmt.Errorf("%w: can't request ticker %s", err, symbol)
	}
	defer resp.Body.Close()

	if resp.IsError() {
		if e, ok := resp.Error().(*errorResponse); ok && e.Message != "" {
			return 0, fmt.Errorf("ticker %s: %s (code %d)", symbol, e.Message, e.Code)
		}
		return 0, fmt.Errorf("ticker %s: %s", symbol, resp.Status())
	}
	if !resp.IsSuccess() {
		return 0, fmt.Errorf("ticker %s unexpected response: %s", symbol, resp.Status())
	}

	out := resp.Result().(*tickerResponse)
	if !out.Success {
		return 0, fmt.Errorf("ticker %s: success=false code=%d msg=%s", symbol, out.Code, out.Message)
	}
	if out.Data.LastPrice <= 0 {
		return 0, fmt.Errorf("ticker %s: %w", symbol, runner.ErrPriceUnavailable)
	}
	return out.Data.LastPrice, nil
}

func (cl *Client) Close() error {
	return cl.c.Close()
}

// take ждёт слот лимитера не дольше ctx. Take() у ratelimit контекста не знает:
// при отмене ожидание дорабатывает в фоне и слот сгорает.
func (cl *Client) take(ctx context.Context) error {
	done := make(chan struct{})
	go func() {
		cl.rateLimiter.Take()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
