package redis

import (
	"context"
	"encoding/json"
	"strings"
	"time"

	"xtick/internal/application/port"

	"github.com/redis/go-redis/v9"
)

type Repo struct {
	rdb          *redis.Client
	ttl          time.Duration
	keyLatest    string // prefix + ":latest"
	reportStream string
	tickerChan   string
}

func New(rdb *redis.Client, prefix string, ttl time.Duration, reportStream, tickerChan string) *Repo {
	if strings.TrimSpace(reportStream) == "" {
		reportStream = prefix + ":report"
	}
	if strings.TrimSpace(tickerChan) == "" {
		tickerChan = prefix + ":ticker"
	}
	return &Repo{
		rdb:          rdb,
		ttl:          ttl,
		keyLatest:    prefix + ":latest",
		reportStream: reportStream,
		tickerChan:   tickerChan,
	}
}

// UpsertLatestTickers 一次 pipeline：
// HSET <prefix>:latest <price_key> json，并对每一行 PUBLISH 到 ticker 频道
func (r *Repo) UpsertLatestTickers(ctx context.Context, rows []port.LatestTicker) error {
	if len(rows) == 0 {
		return nil
	}
	pipe := r.rdb.Pipeline()
	fields := make([]any, 0, 2*len(rows))
	for _, t := range rows {
		if t.Price <= 0 {
			continue
		}
		b, err := json.Marshal(t)
		if err != nil {
			return err
		}
		fields = append(fields, t.Key, string(b))
		pipe.Publish(ctx, r.tickerChan, string(b))
	}
	if len(fields) == 0 {
		return nil
	}
	pipe.HSet(ctx, r.keyLatest, fields...)
	if r.ttl > 0 {
		pipe.Expire(ctx, r.keyLatest, r.ttl)
	}
	_, err := pipe.Exec(ctx)
	return err
}

// InsertReport XADD <stream> * ts_ms payload
func (r *Repo) InsertReport(ctx context.Context, ts int64, payload string) error {
	return r.rdb.XAdd(ctx, &redis.XAddArgs{
		Stream: r.reportStream,
		MaxLen: 1000,
		Approx: true,
		Values: map[string]any{
			"ts_ms":   ts,
			"payload": payload,
		},
	}).Err()
}

// Close 客户端由 ServiceContext 统一关闭
func (r *Repo) Close() error { return nil }

var _ port.Repository = (*Repo)(nil)
