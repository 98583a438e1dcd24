package runner

import (
	"context"
	"time"
)

// Settings — интервалы и таймауты циклов.
type Settings struct {
	StopInterval      time.Duration
	TriggerInterval   time.Duration
	ReconcileInterval time.Duration // 0 — сверка выключена

	PriceTimeout time.Duration
	StoreTimeout time.Duration
	// MaxPriceStaleness — старше этого цену из кэша не используем
	MaxPriceStaleness time.Duration
	// StuckTriggerAge — через сколько TRIGGERED без исхода считается зависшим
	StuckTriggerAge time.Duration
}

func DefaultSettings() Settings {
	return Settings{
		StopInterval:      2 * time.Second,
		TriggerInterval:   time.Second,
		ReconcileInterval: time.Minute,
		PriceTimeout:      3 * time.Second,
		StoreTimeout:      5 * time.Second,
		MaxPriceStaleness: 30 * time.Second,
		StuckTriggerAge:   time.Minute,
	}
}

// withDefaults подставляет дефолты вместо нулевых значений (кроме ReconcileInterval).
func (s Settings) withDefaults() Settings {
	d := DefaultSettings()
	if s.StopInterval <= 0 {
		s.StopInterval = d.StopInterval
	}
	if s.TriggerInterval <= 0 {
		s.TriggerInterval = d.TriggerInterval
	}
	if s.PriceTimeout <= 0 {
		s.PriceTimeout = d.PriceTimeout
	}
	if s.StoreTimeout <= 0 {
		s.StoreTimeout = d.StoreTimeout
	}
	if s.MaxPriceStaleness <= 0 {
		s.MaxPriceStaleness = d.MaxPriceStaleness
	}
	if s.StuckTriggerAge <= 0 {
		s.StuckTriggerAge = d.StuckTriggerAge
	}
	return s
}

// readCtx — чтение с ограничением по времени, отменяется вместе с циклом.
func readCtx(ctx context.Context, d time.Duration) (context.Context, context.CancelFunc) {
	return context.WithTimeout(ctx, d)
}

// writeCtx — запись не обрывается сигналом остановки, только таймаутом.
func writeCtx(ctx context.Context, d time.Duration) (context.Context, context.CancelFunc) {
	return context.WithTimeout(context.WithoutCancel(ctx), d)
}
