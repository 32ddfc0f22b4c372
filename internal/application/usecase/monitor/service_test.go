package monitor

import (
	"context"
	"encoding/json"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"xtick/internal/application/port"
	"xtick/internal/application/usecase/aggregate"
	"xtick/internal/domain"
)

type memRepo struct {
	mu      sync.Mutex
	rows    map[string]port.LatestTicker
	upserts int
	reports []string
}

func newMemRepo() *memRepo { return &memRepo{rows: map[string]port.LatestTicker{}} }

func (m *memRepo) UpsertLatestTickers(_ context.Context, rows []port.LatestTicker) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.upserts++
	for _, r := range rows {
		m.rows[r.Key] = r
	}
	return nil
}

func (m *memRepo) InsertReport(_ context.Context, _ int64, payload string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.reports = append(m.reports, payload)
	return nil
}

func (m *memRepo) Close() error { return nil }

func (m *memRepo) snapshot() (map[string]port.LatestTicker, int, int) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make(map[string]port.LatestTicker, len(m.rows))
	for k, v := range m.rows {
		out[k] = v
	}
	return out, m.upserts, len(m.reports)
}

type stubConnector struct {
	id    string
	group domain.Group
}

func (c stubConnector) ID() string                                   { return c.id }
func (c stubConnector) Group() domain.Group                          { return c.group }
func (c stubConnector) Market() domain.Market                        { return domain.MarketSpot }
func (c stubConnector) ConnectExtended(port.Callback) port.Unsubscribe { return func() {} }
func (c stubConnector) Disconnect()                                  {}
func (c stubConnector) State() domain.ConnectorState                 { return domain.StateOpen }
func (c stubConnector) Stats() port.ConnectorStats {
	return port.ConnectorStats{ID: c.id, State: domain.StateOpen.String()}
}

type stubConnectors struct{ domestic, overseas []port.Connector }

func (s stubConnectors) Domestic() []port.Connector { return s.domestic }
func (s stubConnectors) Overseas() []port.Connector { return s.overseas }
func (s stubConnectors) Stats() []port.ConnectorStats {
	var out []port.ConnectorStats
	for _, c := range append(append([]port.Connector{}, s.domestic...), s.overseas...) {
		out = append(out, c.Stats())
	}
	return out
}

func TestStateDrainKeepsLatestPerKey(t *testing.T) {
	st := NewState()
	now := time.UnixMilli(5000)
	st.Apply(aggregate.Change{Key: "a-BTC", Entry: aggregate.Entry{Latest: domain.TickerUpdate{Price: 1}, PriceObservedAt: now}})
	st.Apply(aggregate.Change{Key: "a-BTC", Entry: aggregate.Entry{Latest: domain.TickerUpdate{Price: 2}, PriceObservedAt: now}})
	st.Apply(aggregate.Change{Key: "a-ETH", Entry: aggregate.Entry{Latest: domain.TickerUpdate{Price: 3}, PriceObservedAt: now}})
	require.Equal(t, 2, st.Pending())

	rows := st.Drain()
	require.Len(t, rows, 2)
	require.Equal(t, "a-BTC", rows[0].Key)
	require.Equal(t, "a", rows[0].Exchange)
	require.Equal(t, "BTC", rows[0].Symbol)
	require.Equal(t, 2.0, rows[0].Price)
	require.Equal(t, int64(5000), rows[0].PriceObservedAt)
	require.Zero(t, rows[0].ExtendedObservedAt)
	require.Zero(t, st.Pending())
	require.Empty(t, st.Drain())
}

func TestRunMirrorsChangesAndFlushesOnExit(t *testing.T) {
	store := aggregate.NewStore()
	repo := newMemRepo()
	svc := NewService(ServiceDeps{
		Source:         store,
		Repo:           repo,
		FlushInterval:  20 * time.Millisecond,
		ReportInterval: time.Hour,
	})

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- svc.Run(ctx) }()

	// 等待订阅生效；价格每次不同才会通知
	price := 100.0
	require.Eventually(t, func() bool {
		price++
		store.Ingest(domain.TickerUpdate{Key: "upbit_krw-BTC", Price: price, Change24h: domain.Float(1)})
		rows, _, _ := repo.snapshot()
		_, ok := rows["upbit_krw-BTC"]
		return ok
	}, 2*time.Second, 10*time.Millisecond)

	store.Ingest(domain.TickerUpdate{Key: "upbit_krw-ETH", Price: 5})
	cancel()
	require.ErrorIs(t, <-done, context.Canceled)

	rows, upserts, _ := repo.snapshot()
	require.GreaterOrEqual(t, upserts, 1)
	require.Contains(t, rows, "upbit_krw-ETH")
	require.Equal(t, 1.0, *rows["upbit_krw-BTC"].Change24h)
}

func TestReportCountsPerGroup(t *testing.T) {
	store := aggregate.NewStore()
	store.Ingest(domain.TickerUpdate{Key: "upbit_krw-BTC", Price: 100})
	store.Ingest(domain.TickerUpdate{Key: "binance_usdt-BTC", Price: 1, Volume24h: domain.Float(10)})
	store.Ingest(domain.TickerUpdate{Key: "binance_usdt-ETH", Price: 2})

	repo := newMemRepo()
	svc := NewService(ServiceDeps{
		Source: store,
		Repo:   repo,
		Connectors: stubConnectors{
			domestic: []port.Connector{stubConnector{id: "upbit_krw", group: domain.GroupDomestic}},
			overseas: []port.Connector{stubConnector{id: "binance_usdt", group: domain.GroupOverseas}},
		},
	})

	now := time.Now()
	r := svc.Build(now)
	require.Equal(t, 1, r.Domestic.Keys)
	require.Equal(t, 2, r.Overseas.Keys)
	require.Equal(t, 2, r.Overseas.PriceFresh)
	require.Len(t, r.Connectors, 2)

	svc.report(context.Background(), now)
	_, _, n := repo.snapshot()
	require.Equal(t, 1, n)

	var decoded Report
	require.NoError(t, json.Unmarshal([]byte(repo.reports[0]), &decoded))
	require.Equal(t, now.UnixMilli(), decoded.TsMs)
	require.Equal(t, 2, decoded.Overseas.Keys)
}

func TestRunWithoutSourceFails(t *testing.T) {
	require.Error(t, NewService(ServiceDeps{}).Run(context.Background()))
}
