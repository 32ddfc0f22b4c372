package postgres

import (
	"context"
	"database/sql"

	_ "github.com/jackc/pgx/v5/stdlib"

	"xtick/internal/application/port"
)

type Repo struct {
	db *sql.DB
}

func New(dsn string) (*Repo, error) {
	db, err := sql.Open("pgx", dsn)
	if err != nil {
		return nil, err
	}
	db.SetMaxOpenConns(10)
	db.SetMaxIdleConns(5)

	r := &Repo{db: db}
	if err := r.migrate(context.Background()); err != nil {
		_ = db.Close()
		return nil, err
	}
	return r, nil
}

func (r *Repo) Close() error { return r.db.Close() }

func (r *Repo) migrate(ctx context.Context) error {
	_, err := r.db.ExecContext(ctx, `
CREATE TABLE IF NOT EXISTS latest_tickers (
  price_key TEXT PRIMARY KEY,
  exchange TEXT NOT NULL,
  symbol TEXT NOT NULL,
  price DOUBLE PRECISION NOT NULL,
  change_24h DOUBLE PRECISION,
  volume_24h DOUBLE PRECISION,
  change_price DOUBLE PRECISION,
  price_ts_ms BIGINT NOT NULL,
  extended_ts_ms BIGINT NOT NULL,
  price_samples BIGINT NOT NULL,
  extended_samples BIGINT NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_latest_exchange ON latest_tickers(exchange);

CREATE TABLE IF NOT EXISTS reports (
  id BIGSERIAL PRIMARY KEY,
  ts_ms BIGINT NOT NULL,
  payload TEXT NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_reports_ts ON reports(ts_ms);
`)
	return err
}

func (r *Repo) UpsertLatestTickers(ctx context.Context, rows []port.LatestTicker) error {
	if len(rows) == 0 {
		return nil
	}
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	for _, t := range rows {
		_, err := tx.ExecContext(ctx, `
			INSERT INTO latest_tickers(price_key, exchange, symbol, price, change_24h, volume_24h, change_price,
				price_ts_ms, extended_ts_ms, price_samples, extended_samples)
			VALUES($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
			ON CONFLICT(price_key) DO UPDATE SET
			price=EXCLUDED.price, change_24h=EXCLUDED.change_24h, volume_24h=EXCLUDED.volume_24h,
			change_price=EXCLUDED.change_price, price_ts_ms=EXCLUDED.price_ts_ms,
			extended_ts_ms=EXCLUDED.extended_ts_ms, price_samples=EXCLUDED.price_samples,
			extended_samples=EXCLUDED.extended_samples
		`, t.Key, t.Exchange, t.Symbol, t.Price, t.Change24h, t.Volume24h, t.ChangePrice,
			t.PriceObservedAt, t.ExtendedObservedAt, int64(t.PriceSampleCount), int64(t.ExtendedSampleCount))
		if err != nil {
			return err
		}
	}
	return tx.Commit()
}

func (r *Repo) InsertReport(ctx context.Context, ts int64, payload string) error {
	_, err := r.db.ExecContext(ctx, `INSERT INTO reports(ts_ms, payload) VALUES($1, $2)`, ts, payload)
	return err
}

var _ port.Repository = (*Repo)(nil)
