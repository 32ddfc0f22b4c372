package port

import "context"

// LatestTicker 单个 PriceKey 的最新行情（镜像用，不保存历史）
type LatestTicker struct {
	Key                 string   `json:"key"`
	Exchange            string   `json:"exchange"`
	Symbol              string   `json:"symbol"`
	Price               float64  `json:"price"`
	Change24h           *float64 `json:"change_24h,omitempty"`
	Volume24h           *float64 `json:"volume_24h,omitempty"`
	ChangePrice         *float64 `json:"change_price,omitempty"`
	PriceObservedAt     int64    `json:"price_ts_ms"`
	ExtendedObservedAt  int64    `json:"extended_ts_ms"`
	PriceSampleCount    uint64   `json:"price_samples"`
	ExtendedSampleCount uint64   `json:"extended_samples"`
}

type Repository interface {
	// UpsertLatestTickers 每个 key 一行，覆盖写
	UpsertLatestTickers(ctx context.Context, rows []LatestTicker) error

	// InsertReport 保存周期性就绪度报告
	InsertReport(ctx context.Context, ts int64, payload string) error

	// Connection management
	Close() error
}
