package httpapi

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/require"

	"xtick/internal/application/port"
	"xtick/internal/application/usecase/aggregate"
	"xtick/internal/application/usecase/consumer"
	"xtick/internal/domain"
)

type stubConnector struct {
	id    string
	state domain.ConnectorState
}

func (c stubConnector) ID() string                                    { return c.id }
func (c stubConnector) Group() domain.Group                           { return domain.GroupOverseas }
func (c stubConnector) Market() domain.Market                         { return domain.MarketSpot }
func (c stubConnector) ConnectExtended(port.Callback) port.Unsubscribe { return func() {} }
func (c stubConnector) Disconnect()                                   {}
func (c stubConnector) State() domain.ConnectorState                  { return c.state }
func (c stubConnector) Stats() port.ConnectorStats {
	return port.ConnectorStats{ID: c.id, State: c.state.String()}
}

type stubConnectors struct {
	groups map[string][]port.Connector
}

func (s stubConnectors) Group(name string) ([]port.Connector, bool) {
	if name == "all" {
		var out []port.Connector
		out = append(out, s.groups["domestic"]...)
		return append(out, s.groups["overseas"]...), true
	}
	cs, ok := s.groups[name]
	return cs, ok
}

func (s stubConnectors) Stats() []port.ConnectorStats {
	var out []port.ConnectorStats
	all, _ := s.Group("all")
	for _, c := range all {
		out = append(out, c.Stats())
	}
	return out
}

func newTestServer(t *testing.T, states ...domain.ConnectorState) *Server {
	t.Helper()
	store := aggregate.NewStore()
	store.Ingest(domain.TickerUpdate{Key: "upbit_krw-BTC", Price: 90_000_000, Change24h: domain.Float(1.2)})
	store.Ingest(domain.TickerUpdate{Key: "binance_usdt-BTC", Price: 60_000})
	store.Ingest(domain.TickerUpdate{Key: "binance_usdt-ETH", Price: 3_000})

	if len(states) == 0 {
		states = []domain.ConnectorState{domain.StateOpen, domain.StateBackoff}
	}
	conns := stubConnectors{groups: map[string][]port.Connector{
		"domestic": {stubConnector{id: "upbit_krw", state: states[0]}},
		"overseas": {stubConnector{id: "binance_usdt", state: states[1]}},
	}}
	return NewServer(":0", consumer.NewView(store, consumer.DefaultPolicy()), conns)
}

func get(t *testing.T, s *Server, path string) *httptest.ResponseRecorder {
	t.Helper()
	rec := httptest.NewRecorder()
	s.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, path, nil))
	return rec
}

func TestSnapshotFilters(t *testing.T) {
	s := newTestServer(t)

	cases := []struct {
		path string
		keys []domain.PriceKey
	}{
		{"/api/v1/snapshot", []domain.PriceKey{"binance_usdt-BTC", "binance_usdt-ETH", "upbit_krw-BTC"}},
		{"/api/v1/snapshot?group=domestic", []domain.PriceKey{"upbit_krw-BTC"}},
		{"/api/v1/snapshot?group=overseas&symbol=eth", []domain.PriceKey{"binance_usdt-ETH"}},
		{"/api/v1/snapshot?symbol=BTC", []domain.PriceKey{"binance_usdt-BTC", "upbit_krw-BTC"}},
	}
	for _, tc := range cases {
		rec := get(t, s, tc.path)
		require.Equal(t, http.StatusOK, rec.Code, tc.path)

		var resp snapshotResponse
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
		keys := make([]domain.PriceKey, 0, len(resp.Quotes))
		for _, q := range resp.Quotes {
			keys = append(keys, q.Key)
		}
		require.Equal(t, tc.keys, keys, tc.path)
		require.Equal(t, len(tc.keys), resp.Tally.Keys)
	}

	require.Equal(t, http.StatusBadRequest, get(t, s, "/api/v1/snapshot?group=mars").Code)
}

func TestSnapshotEmptyKnownGroup(t *testing.T) {
	store := aggregate.NewStore()
	store.Ingest(domain.TickerUpdate{Key: "binance_usdt-BTC", Price: 60_000})
	conns := stubConnectors{groups: map[string][]port.Connector{
		"domestic": {},
		"overseas": {stubConnector{id: "binance_usdt", state: domain.StateOpen}},
	}}
	s := NewServer(":0", consumer.NewView(store, consumer.DefaultPolicy()), conns)

	rec := get(t, s, "/api/v1/snapshot?group=domestic")
	require.Equal(t, http.StatusOK, rec.Code)
	var resp snapshotResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	require.Empty(t, resp.Quotes)
	require.Equal(t, 0, resp.Tally.Keys)

	require.Equal(t, http.StatusBadRequest, get(t, s, "/api/v1/snapshot?group=futures").Code)
}

func TestTickerLookup(t *testing.T) {
	s := newTestServer(t)

	rec := get(t, s, "/api/v1/tickers/upbit_krw-btc")
	require.Equal(t, http.StatusOK, rec.Code)
	var q struct {
		Key       string   `json:"key"`
		Price     float64  `json:"price"`
		Change24h *float64 `json:"change_24h"`
		Readiness struct {
			Price    string `json:"price"`
			Extended string `json:"extended"`
		} `json:"readiness"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &q))
	require.Equal(t, "upbit_krw-BTC", q.Key)
	require.Equal(t, 1.2, *q.Change24h)
	require.Equal(t, "fresh", q.Readiness.Price)
	require.Equal(t, "stale", q.Readiness.Extended)

	require.Equal(t, http.StatusNotFound, get(t, s, "/api/v1/tickers/okx_usdt-BTC").Code)
	require.Equal(t, http.StatusBadRequest, get(t, s, "/api/v1/tickers/nodash").Code)
}

func TestConnectorsAndHealth(t *testing.T) {
	s := newTestServer(t)

	rec := get(t, s, "/api/v1/connectors")
	require.Equal(t, http.StatusOK, rec.Code)
	var stats []port.ConnectorStats
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &stats))
	require.Len(t, stats, 2)
	require.Equal(t, "backoff", stats[1].State)

	require.Equal(t, http.StatusOK, get(t, s, "/healthz").Code)

	down := newTestServer(t, domain.StateBackoff, domain.StateConnecting)
	require.Equal(t, http.StatusServiceUnavailable, get(t, down, "/healthz").Code)
}
