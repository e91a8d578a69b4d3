package ratelimit

import (
	"context"
	"time"

	"github.com/ulule/limiter/v3"
	"github.com/ulule/limiter/v3/drivers/store/memory"
)

// Memory is a per-process limiter backed by ulule's in-memory store.
type Memory struct {
	lim *limiter.Limiter
}

func NewMemory(perMinute int) *Memory {
	rate := limiter.Rate{Period: time.Minute, Limit: int64(perMinute)}
	return &Memory{lim: limiter.New(memory.NewStore(), rate)}
}

func (m *Memory) Allow(ctx context.Context, key string) (bool, error) {
	lc, err := m.lim.Get(ctx, key)
	if err != nil {
		return false, err
	}
	return !lc.Reached, nil
}
