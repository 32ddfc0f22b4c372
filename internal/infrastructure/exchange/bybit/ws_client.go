// Package bybit Bybit v5 公共行情：spot 与 linear（USDT 永续）的 tickers 频道
package bybit

import (
	"errors"
	"strings"
	"sync"

	"github.com/rs/zerolog/log"

	"xtick/internal/application/port"
	"xtick/internal/domain"
	"xtick/internal/infrastructure/connector"
	"xtick/internal/infrastructure/exchange"
	"xtick/internal/infrastructure/normalize"
	"xtick/internal/infrastructure/pricefeed"
)

const (
	DefaultSpotWSURL    = "wss://stream.bybit.com/v5/public/spot"
	DefaultFuturesWSURL = "wss://stream.bybit.com/v5/public/linear"

	// spot 单次订阅最多 10 个 topic
	maxArgsPerReq = 10
)

var symbolConverter = exchange.NewCommonSymbolConverter("USDT")

type bybitSubReq struct {
	Op   string   `json:"op"`
	Args []string `json:"args"`
}

type bybitTickerMsg struct {
	Topic string         `json:"topic"`
	Type  string         `json:"type"`
	Ts    int64          `json:"ts"`
	Data  exchange.Items `json:"data"`

	Success *bool  `json:"success,omitempty"`
	RetMsg  string `json:"ret_msg,omitempty"`
	Op      string `json:"op,omitempty"`
}

func NewSpot(s pricefeed.Settings) (port.Connector, error) {
	return newTickerFeed(s, domain.MarketSpot, DefaultSpotWSURL)
}

func NewFutures(s pricefeed.Settings) (port.Connector, error) {
	return newTickerFeed(s, domain.MarketFutures, DefaultFuturesWSURL)
}

func newTickerFeed(s pricefeed.Settings, market domain.Market, defaultURL string) (port.Connector, error) {
	reqs := subscribeRequests(exchange.Symbols(symbolConverter, s.Coins))
	if len(reqs) == 0 {
		return nil, errors.New("bybit: symbols empty")
	}

	return connector.New(connector.Spec{
		ID:     s.ID,
		Group:  domain.GroupOverseas,
		Market: market,
		Stream: &connector.Stream{
			URL:       pricefeed.URL(s.WSURL, defaultURL),
			Handshake: connector.SubscribeJSON(reqs...),
			Ping:      connector.JSONPing(map[string]string{"op": "ping"}),
			Parse:     NewParser(s.ID),
		},
		Options: s.Options,
	})
}

// subscribeRequests 按上限拆分订阅请求
func subscribeRequests(symbols []string) []any {
	var reqs []any
	for i := 0; i < len(symbols); i += maxArgsPerReq {
		end := i + maxArgsPerReq
		if end > len(symbols) {
			end = len(symbols)
		}
		topics := make([]string, 0, end-i)
		for _, sym := range symbols[i:end] {
			topics = append(topics, "tickers."+sym)
		}
		reqs = append(reqs, bybitSubReq{Op: "subscribe", Args: topics})
	}
	return reqs
}

// memo linear 先推 snapshot 再推只含变化字段的 delta，记住最近的价格
type memo struct {
	last    *float64
	prev24h *float64
}

type parser struct {
	id string

	mu    sync.Mutex
	state map[string]memo
}

// NewParser 每个连接器一个实例（带状态）
func NewParser(id string) connector.Parser {
	p := &parser{id: id, state: make(map[string]memo)}
	return p.parse
}

func (p *parser) parse(raw []byte) []domain.TickerUpdate {
	var msg bybitTickerMsg
	if err := exchange.ParseJSON(raw, &msg); err != nil {
		log.Debug().Str("feed", p.id).Err(err).Msg("json unmarshal failed")
		return nil
	}
	if msg.Success != nil && !*msg.Success {
		log.Warn().Str("feed", p.id).Str("op", msg.Op).Str("ret_msg", msg.RetMsg).Msg("bybit request rejected")
		return nil
	}
	if !strings.HasPrefix(msg.Topic, "tickers.") {
		return nil
	}

	out := make([]domain.TickerUpdate, 0, len(msg.Data))
	for _, f := range msg.Data {
		if u, ok := p.ticker(f); ok {
			out = append(out, u)
		}
	}
	return out
}

func (p *parser) ticker(f exchange.Fields) (domain.TickerUpdate, bool) {
	sym := strings.ToUpper(f.Str("symbol"))
	if sym == "" {
		return domain.TickerUpdate{}, false
	}

	p.mu.Lock()
	m := p.state[sym]
	if v := f.Num("lastPrice"); v != nil && *v > 0 {
		m.last = v
	}
	if v := f.Num("prevPrice24h"); v != nil && *v > 0 {
		m.prev24h = v
	}
	p.state[sym] = m
	p.mu.Unlock()

	if m.last == nil {
		return domain.TickerUpdate{}, false
	}

	var changePrice *float64
	if m.prev24h != nil {
		changePrice = domain.Float(*m.last - *m.prev24h)
	}
	change := normalize.ChangePercent(normalize.ChangeInput{
		Ratio:     f.Num("price24hPcnt"),
		OpenPrice: m.prev24h,
		LastPrice: m.last,
	})
	volume := normalize.QuoteVolume(f.Num("turnover24h"), f.Num("volume24h"), m.last)

	return exchange.Ticker(p.id, symbolConverter.Symbol2Coin(sym), m.last, change, volume, changePrice)
}
