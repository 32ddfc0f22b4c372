package registry

import (
	"errors"
	"sync"
	"testing"

	"github.com/stretchr/testify/require"

	"xtick/internal/application/port"
	"xtick/internal/domain"
	"xtick/internal/infrastructure/config"
	"xtick/internal/infrastructure/pricefeed"
)

type fakeConnector struct {
	m Member

	mu          sync.Mutex
	cbs         []port.Callback
	connects    int
	disconnects int
}

func (f *fakeConnector) ID() string                  { return f.m.ID }
func (f *fakeConnector) Group() domain.Group         { return f.m.Group }
func (f *fakeConnector) Market() domain.Market       { return f.m.Market }
func (f *fakeConnector) State() domain.ConnectorState { return domain.StateOpen }
func (f *fakeConnector) Stats() port.ConnectorStats  { return port.ConnectorStats{ID: f.m.ID} }

func (f *fakeConnector) ConnectExtended(cb port.Callback) port.Unsubscribe {
	f.mu.Lock()
	f.connects++
	f.cbs = append(f.cbs, cb)
	f.mu.Unlock()
	return func() {}
}

func (f *fakeConnector) Disconnect() {
	f.mu.Lock()
	f.disconnects++
	f.cbs = nil
	f.mu.Unlock()
}

func (f *fakeConnector) emit(u domain.TickerUpdate) {
	f.mu.Lock()
	cbs := append([]port.Callback(nil), f.cbs...)
	f.mu.Unlock()
	for _, cb := range cbs {
		cb(u)
	}
}

type fakeLookup struct {
	made   map[string]*fakeConnector
	broken map[string]bool
}

func newFakeLookup() *fakeLookup {
	return &fakeLookup{made: map[string]*fakeConnector{}, broken: map[string]bool{}}
}

func (l *fakeLookup) get(id string) (pricefeed.Factory, bool) {
	var m Member
	for _, r := range Roster {
		if r.ID == id {
			m = r
		}
	}
	return func(s pricefeed.Settings) (port.Connector, error) {
		if l.broken[id] {
			return nil, errors.New("boom")
		}
		c := &fakeConnector{m: m}
		l.made[id] = c
		return c, nil
	}, true
}

func mustConfig(t *testing.T, data string) *config.Config {
	t.Helper()
	cfg, err := config.Parse(data)
	require.NoError(t, err)
	return cfg
}

func noopSink(domain.TickerUpdate) {}

func TestEveryRosterMemberIsRegistered(t *testing.T) {
	names := pricefeed.Names()
	require.Len(t, Roster, 13)
	for _, m := range Roster {
		require.Contains(t, names, m.ID)
	}
}

func TestRealFactoriesMatchRoster(t *testing.T) {
	cfg := mustConfig(t, "[symbols]\ndomestic=[\"BTC\"]\noverseas=[\"BTC\",\"ETH\"]\n")
	r, err := New(cfg, noopSink)
	require.NoError(t, err)

	require.Len(t, r.Domestic(), 3)
	require.Len(t, r.Overseas(), 10)
	require.Len(t, r.Futures(), 5)
	require.False(t, r.Started())

	all := r.All()
	require.Len(t, all, 13)
	for i, c := range all {
		require.Equal(t, Roster[i].ID, c.ID())
		require.Equal(t, domain.StateDisconnected, c.State())
	}
}

func TestGroupsWithoutSymbolsAreSkipped(t *testing.T) {
	l := newFakeLookup()
	r, err := build(mustConfig(t, "[symbols]\ndomestic=[\"BTC\"]\n"), noopSink, l.get)
	require.NoError(t, err)
	require.Len(t, r.Domestic(), 3)
	require.Empty(t, r.Overseas())

	_, ok := r.Group("nope")
	require.False(t, ok)
	all, ok := r.Group("all")
	require.True(t, ok)
	require.Len(t, all, 3)

	// 已知但为空的分组与未知分组区分开
	overseas, ok := r.Group("overseas")
	require.True(t, ok)
	require.Empty(t, overseas)
	futures, ok := r.Group("futures")
	require.True(t, ok)
	require.Empty(t, futures)
}

func TestDisabledAndFailingConnectorsAreSkipped(t *testing.T) {
	l := newFakeLookup()
	l.broken[domain.GateUSDT] = true
	cfg := mustConfig(t, `
[symbols]
overseas = ["BTC"]
[exchanges.okx_usdt]
enabled = false
`)
	r, err := build(cfg, noopSink, l.get)
	require.NoError(t, err)
	require.Len(t, r.Overseas(), 8)

	_, ok := r.Get(domain.OKXUSDT)
	require.False(t, ok)
	_, ok = r.Get(domain.GateUSDT)
	require.False(t, ok)
	_, ok = r.Get(domain.GateUSDTFutures)
	require.True(t, ok)
}

func TestAllFailingIsAnError(t *testing.T) {
	l := newFakeLookup()
	for _, m := range Roster {
		l.broken[m.ID] = true
	}
	_, err := build(mustConfig(t, "[symbols]\ndomestic=[\"BTC\"]\n"), noopSink, l.get)
	require.ErrorIs(t, err, ErrNoConnectors)

	off := "[symbols]\ndomestic=[\"BTC\"]\n"
	for _, id := range []string{domain.UpbitKRW, domain.BithumbKRW, domain.CoinoneKRW} {
		off += "[exchanges." + id + "]\nenabled=false\n"
	}
	_, err = build(mustConfig(t, off), noopSink, newFakeLookup().get)
	require.ErrorIs(t, err, ErrNoConnectors)
}

func TestStartIsIdempotentAndStopDisconnects(t *testing.T) {
	l := newFakeLookup()
	var mu sync.Mutex
	var got []domain.PriceKey
	sink := func(u domain.TickerUpdate) {
		mu.Lock()
		got = append(got, u.Key)
		mu.Unlock()
	}

	r, err := build(mustConfig(t, "[symbols]\ndomestic=[\"BTC\"]\noverseas=[\"BTC\"]\n"), sink, l.get)
	require.NoError(t, err)

	require.NoError(t, r.Start())
	require.NoError(t, r.Start())
	require.True(t, r.Started())
	for _, c := range l.made {
		require.Equal(t, 1, c.connects)
	}

	l.made[domain.UpbitKRW].emit(domain.TickerUpdate{Key: "upbit_krw-BTC", Price: 1})
	require.Equal(t, []domain.PriceKey{"upbit_krw-BTC"}, got)

	r.Stop()
	r.Stop()
	require.False(t, r.Started())
	for _, c := range l.made {
		require.Equal(t, 1, c.disconnects)
	}
	l.made[domain.UpbitKRW].emit(domain.TickerUpdate{Key: "upbit_krw-BTC", Price: 2})
	require.Len(t, got, 1)
	require.Len(t, r.Stats(), 13)
}
