package monitor

import (
	"context"

	"xtick/internal/application/port"
)

type noopRepo struct{}

func NewNoopRepo() port.Repository { return &noopRepo{} }

func (n *noopRepo) UpsertLatestTickers(ctx context.Context, rows []port.LatestTicker) error {
	return nil
}
func (n *noopRepo) InsertReport(ctx context.Context, ts int64, payload string) error {
	return nil
}
func (n *noopRepo) Close() error { return nil }
