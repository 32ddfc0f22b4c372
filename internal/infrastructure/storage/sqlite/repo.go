package sqlite

import (
	"context"
	"database/sql"
	"os"
	"path/filepath"

	_ "modernc.org/sqlite"

	"xtick/internal/application/port"
)

type Repo struct {
	db *sql.DB
}

func New(path string) (*Repo, error) {
	// ensure directory exists
	if dir := filepath.Dir(path); dir != "." && dir != "" {
		_ = os.MkdirAll(dir, 0o755)
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, err
	}
	db.SetMaxOpenConns(1)

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
  price REAL NOT NULL,
  change_24h REAL,
  volume_24h REAL,
  change_price REAL,
  price_ts_ms INTEGER NOT NULL,
  extended_ts_ms INTEGER NOT NULL,
  price_samples INTEGER NOT NULL,
  extended_samples INTEGER NOT NULL,
  updated_at INTEGER NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_latest_exchange ON latest_tickers(exchange);
CREATE INDEX IF NOT EXISTS idx_latest_symbol ON latest_tickers(symbol);

CREATE TABLE IF NOT EXISTS reports (
  id INTEGER PRIMARY KEY AUTOINCREMENT,
  ts_ms INTEGER NOT NULL,
  payload TEXT NOT NULL,
  created_at INTEGER NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_reports_ts ON reports(ts_ms);
`)
	return err
}

// UpsertLatestTickers 一个事务内批量覆盖写
func (r *Repo) UpsertLatestTickers(ctx context.Context, rows []port.LatestTicker) error {
	if len(rows) == 0 {
		return nil
	}
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	stmt, err := tx.PrepareContext(ctx, `
		INSERT INTO latest_tickers(price_key, exchange, symbol, price, change_24h, volume_24h, change_price,
			price_ts_ms, extended_ts_ms, price_samples, extended_samples, updated_at)
		VALUES(?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(price_key) DO UPDATE SET
		price=excluded.price, change_24h=excluded.change_24h, volume_24h=excluded.volume_24h,
		change_price=excluded.change_price, price_ts_ms=excluded.price_ts_ms,
		extended_ts_ms=excluded.extended_ts_ms, price_samples=excluded.price_samples,
		extended_samples=excluded.extended_samples, updated_at=excluded.updated_at
	`)
	if err != nil {
		return err
	}
	defer stmt.Close()

	for _, t := range rows {
		if _, err := stmt.ExecContext(ctx, t.Key, t.Exchange, t.Symbol, t.Price,
			nullable(t.Change24h), nullable(t.Volume24h), nullable(t.ChangePrice),
			t.PriceObservedAt, t.ExtendedObservedAt,
			int64(t.PriceSampleCount), int64(t.ExtendedSampleCount), t.PriceObservedAt); err != nil {
			return err
		}
	}
	return tx.Commit()
}

// LatestTickers 读取镜像表，按 key 排序
func (r *Repo) LatestTickers(ctx context.Context) ([]port.LatestTicker, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT price_key, exchange, symbol, price, change_24h, volume_24h, change_price,
			price_ts_ms, extended_ts_ms, price_samples, extended_samples
		FROM latest_tickers ORDER BY price_key`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []port.LatestTicker
	for rows.Next() {
		var t port.LatestTicker
		var change, volume, changePrice sql.NullFloat64
		var priceSamples, extSamples int64
		if err := rows.Scan(&t.Key, &t.Exchange, &t.Symbol, &t.Price, &change, &volume, &changePrice,
			&t.PriceObservedAt, &t.ExtendedObservedAt, &priceSamples, &extSamples); err != nil {
			return nil, err
		}
		t.Change24h = fromNullable(change)
		t.Volume24h = fromNullable(volume)
		t.ChangePrice = fromNullable(changePrice)
		t.PriceSampleCount = uint64(priceSamples)
		t.ExtendedSampleCount = uint64(extSamples)
		out = append(out, t)
	}
	return out, rows.Err()
}

func (r *Repo) InsertReport(ctx context.Context, ts int64, payload string) error {
	_, err := r.db.ExecContext(ctx, `INSERT INTO reports(ts_ms, payload, created_at) VALUES(?, ?, ?)`, ts, payload, ts)
	return err
}

// CountReports 报告条数
func (r *Repo) CountReports(ctx context.Context) (int, error) {
	var n int
	err := r.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM reports`).Scan(&n)
	return n, err
}

func nullable(p *float64) sql.NullFloat64 {
	if p == nil {
		return sql.NullFloat64{}
	}
	return sql.NullFloat64{Float64: *p, Valid: true}
}

func fromNullable(v sql.NullFloat64) *float64 {
	if !v.Valid {
		return nil
	}
	f := v.Float64
	return &f
}

var _ port.Repository = (*Repo)(nil)
