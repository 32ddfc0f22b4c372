// Package registry 持有进程内全部连接器，按 domestic / overseas 分组，
// 负责统一启动与停止。本身不做网络与规范化。
package registry

import (
	"errors"
	"fmt"
	"sync"

	"github.com/rs/zerolog/log"

	"xtick/internal/application/port"
	"xtick/internal/domain"
	"xtick/internal/infrastructure/config"
	"xtick/internal/infrastructure/connector"
	"xtick/internal/infrastructure/pricefeed"

	// 各交易所在 init() 中注册工厂
	_ "xtick/internal/infrastructure/exchange/binance"
	_ "xtick/internal/infrastructure/exchange/bitget"
	_ "xtick/internal/infrastructure/exchange/bithumb"
	_ "xtick/internal/infrastructure/exchange/bybit"
	_ "xtick/internal/infrastructure/exchange/coinone"
	_ "xtick/internal/infrastructure/exchange/gate"
	_ "xtick/internal/infrastructure/exchange/okx"
	_ "xtick/internal/infrastructure/exchange/upbit"
)

// ErrNoConnectors 没有任何连接器可用
var ErrNoConnectors = errors.New("no connectors available")

// Member 静态连接器表中的一项
type Member struct {
	ID     string
	Group  domain.Group
	Market domain.Market
}

// Roster 固定顺序：先 domestic 后 overseas，同一交易所现货在前
var Roster = []Member{
	{domain.UpbitKRW, domain.GroupDomestic, domain.MarketSpot},
	{domain.BithumbKRW, domain.GroupDomestic, domain.MarketSpot},
	{domain.CoinoneKRW, domain.GroupDomestic, domain.MarketSpot},

	{domain.BinanceUSDT, domain.GroupOverseas, domain.MarketSpot},
	{domain.BinanceUSDTFutures, domain.GroupOverseas, domain.MarketFutures},
	{domain.BybitUSDT, domain.GroupOverseas, domain.MarketSpot},
	{domain.BybitUSDTFutures, domain.GroupOverseas, domain.MarketFutures},
	{domain.OKXUSDT, domain.GroupOverseas, domain.MarketSpot},
	{domain.OKXUSDTFutures, domain.GroupOverseas, domain.MarketFutures},
	{domain.BitgetUSDT, domain.GroupOverseas, domain.MarketSpot},
	{domain.BitgetUSDTFutures, domain.GroupOverseas, domain.MarketFutures},
	{domain.GateUSDT, domain.GroupOverseas, domain.MarketSpot},
	{domain.GateUSDTFutures, domain.GroupOverseas, domain.MarketFutures},
}

type lookupFunc func(id string) (pricefeed.Factory, bool)

// Registry 连接器集合
type Registry struct {
	domestic []port.Connector
	overseas []port.Connector
	byID     map[string]port.Connector

	sink port.Callback

	mu      sync.Mutex
	started bool
	unsubs  []port.Unsubscribe
}

// New 按配置构造所有启用的连接器，不会发起任何连接
// 单个连接器构造失败只记录日志；全部失败才返回错误
func New(cfg *config.Config, sink port.Callback) (*Registry, error) {
	return build(cfg, sink, pricefeed.Get)
}

func build(cfg *config.Config, sink port.Callback, lookup lookupFunc) (*Registry, error) {
	if sink == nil {
		return nil, errors.New("registry: sink is nil")
	}
	r := &Registry{byID: make(map[string]port.Connector), sink: sink}
	opts := Options(cfg.Connector)

	var attempted int
	var failed []string
	for _, m := range Roster {
		ex := cfg.Exchange(m.ID)
		if !ex.IsEnabled() {
			log.Info().Str("connector", m.ID).Msg("connector disabled")
			continue
		}
		coins := cfg.SymbolsFor(m.Group)
		if len(coins) == 0 {
			continue
		}
		attempted++

		c, err := r.create(lookup, m, pricefeed.Settings{
			ID:      m.ID,
			WSURL:   ex.WsURL,
			RESTURL: ex.RestURL,
			Coins:   coins,
			Options: opts,
		})
		if err != nil {
			log.Error().Err(err).Str("connector", m.ID).Msg("failed to initialize connector")
			failed = append(failed, m.ID)
			continue
		}

		r.byID[m.ID] = c
		if m.Group == domain.GroupDomestic {
			r.domestic = append(r.domestic, c)
		} else {
			r.overseas = append(r.overseas, c)
		}
		log.Info().Str("connector", m.ID).Str("market", string(m.Market)).Msg("✓ connector initialized")
	}

	if attempted == 0 {
		return nil, ErrNoConnectors
	}
	if len(failed) == attempted {
		return nil, fmt.Errorf("%w: all connectors failed: %v", ErrNoConnectors, failed)
	}
	if len(failed) > 0 {
		log.Warn().Strs("failed_connectors", failed).Msg("some connectors failed to initialize, but others succeeded")
	}
	return r, nil
}

func (r *Registry) create(lookup lookupFunc, m Member, s pricefeed.Settings) (port.Connector, error) {
	factory, ok := lookup(m.ID)
	if !ok {
		return nil, fmt.Errorf("connector factory not registered: %s", m.ID)
	}
	c, err := factory(s)
	if err != nil {
		return nil, err
	}
	if c.Group() != m.Group || c.Market() != m.Market {
		return nil, fmt.Errorf("connector %s reports %s/%s, expected %s/%s",
			m.ID, c.Group(), c.Market(), m.Group, m.Market)
	}
	return c, nil
}

// Options 配置转换为连接器运行参数
func Options(c config.ConnectorConfig) connector.Options {
	o := connector.DefaultOptions()
	o.BackoffInitial = c.BackoffInitial()
	o.BackoffMax = c.BackoffMax()
	o.BackoffFactor = c.BackoffFactor
	o.DialTimeout = c.DialTimeout()
	o.HeartbeatEvery = c.Heartbeat()
	o.IdleTimeout = c.IdleTimeout()
	o.FallbackGrace = c.FallbackGrace()
	o.PollInterval = c.PollInterval()
	return o
}

// Start 启动全部连接器，重复调用无副作用
func (r *Registry) Start() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.started {
		return nil
	}
	r.started = true

	for _, c := range r.All() {
		r.unsubs = append(r.unsubs, c.ConnectExtended(r.sink))
	}
	log.Info().Int("connectors", len(r.unsubs)).Msg("registry started")
	return nil
}

// Stop 停止全部连接器；返回后不会再向 sink 投递
func (r *Registry) Stop() {
	r.mu.Lock()
	defer r.mu.Unlock()
	if !r.started {
		return
	}
	r.started = false

	for _, unsub := range r.unsubs {
		unsub()
	}
	r.unsubs = nil
	for _, c := range r.All() {
		c.Disconnect()
	}
	log.Info().Msg("registry stopped")
}

// Close 实现 io.Closer，便于挂到关闭链
func (r *Registry) Close() error {
	r.Stop()
	return nil
}

// Started 是否已启动
func (r *Registry) Started() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.started
}

func (r *Registry) Domestic() []port.Connector { return append([]port.Connector(nil), r.domestic...) }
func (r *Registry) Overseas() []port.Connector { return append([]port.Connector(nil), r.overseas...) }

// All domestic ++ overseas
func (r *Registry) All() []port.Connector {
	out := make([]port.Connector, 0, len(r.domestic)+len(r.overseas))
	out = append(out, r.domestic...)
	return append(out, r.overseas...)
}

// Futures overseas 中的合约连接器
func (r *Registry) Futures() []port.Connector {
	var out []port.Connector
	for _, c := range r.overseas {
		if c.Market() == domain.MarketFutures {
			out = append(out, c)
		}
	}
	return out
}

// Group 按分组名取连接器；ok=false 表示未知分组，已知分组可以为空
func (r *Registry) Group(name string) ([]port.Connector, bool) {
	switch name {
	case string(domain.GroupDomestic):
		return r.Domestic(), true
	case string(domain.GroupOverseas):
		return r.Overseas(), true
	case "futures":
		return r.Futures(), true
	case "", "all":
		return r.All(), true
	}
	return nil, false
}

func (r *Registry) Get(id string) (port.Connector, bool) {
	c, ok := r.byID[id]
	return c, ok
}

// Stats 按表顺序返回统计
func (r *Registry) Stats() []port.ConnectorStats {
	all := r.All()
	out := make([]port.ConnectorStats, 0, len(all))
	for _, c := range all {
		out = append(out, c.Stats())
	}
	return out
}
