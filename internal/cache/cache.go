package cache

import (
	"context"
	"time"

	"optikpos/backend/internal/domain"
)

// DashboardCache stores rendered bucket series. Keys are the period plus the
// anchor of the newest bucket, so a new hour or day never reuses an old series.
// Bump drops every cached series, for example after a checkout.
//
// Get reports the cache version it looked under. A series built after a miss
// must be stored with that version, so a Bump that happens during the build
// hides the result instead of publishing it.
type DashboardCache interface {
	Get(ctx context.Context, period domain.Period, anchor string) (*domain.BucketSeries, int64, bool, error)
	Set(ctx context.Context, period domain.Period, anchor string, version int64, value *domain.BucketSeries, ttl time.Duration) error
	Bump(ctx context.Context) error
}

type NoopDashboardCache struct{}

func (NoopDashboardCache) Get(_ context.Context, _ domain.Period, _ string) (*domain.BucketSeries, int64, bool, error) {
	return nil, 0, false, nil
}

func (NoopDashboardCache) Set(_ context.Context, _ domain.Period, _ string, _ int64, _ *domain.BucketSeries, _ time.Duration) error {
	return nil
}

func (NoopDashboardCache) Bump(_ context.Context) error {
	return nil
}
