// Package gate Gate.io v4：spot.tickers 与 futures.tickers（USDT 结算）
package gate

import (
	"errors"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog/log"

	"xtick/internal/application/port"
	"xtick/internal/domain"
	"xtick/internal/infrastructure/connector"
	"xtick/internal/infrastructure/exchange"
	"xtick/internal/infrastructure/normalize"
	"xtick/internal/infrastructure/pricefeed"
)

const (
	DefaultSpotWSURL    = "wss://api.gateio.ws/ws/v4/"
	DefaultFuturesWSURL = "wss://fx-ws.gateio.ws/v4/ws/usdt"
)

// BTC_USDT，现货 currency_pair 与合约 contract 相同
var symbolConverter = exchange.NewCommonSymbolConverter("_USDT")

type gateReq struct {
	Time    int64    `json:"time"`
	Channel string   `json:"channel"`
	Event   string   `json:"event,omitempty"`
	Payload []string `json:"payload,omitempty"`
}

type gateMsg struct {
	Time    int64          `json:"time"`
	Channel string         `json:"channel"`
	Event   string         `json:"event"`
	Error   any            `json:"error"`
	Result  exchange.Items `json:"result"`
}

// channels 现货/合约的字段名不同
type channels struct {
	tickers   string
	ping      string
	symbolKey string
	quoteKey  string
	baseKey   string
}

var (
	spotChannels = channels{
		tickers: "spot.tickers", ping: "spot.ping",
		symbolKey: "currency_pair", quoteKey: "quote_volume", baseKey: "base_volume",
	}
	futuresChannels = channels{
		tickers: "futures.tickers", ping: "futures.ping",
		symbolKey: "contract", quoteKey: "volume_24h_quote", baseKey: "volume_24h_base",
	}
)

func NewSpot(s pricefeed.Settings) (port.Connector, error) {
	return newTickerFeed(s, domain.MarketSpot, DefaultSpotWSURL, spotChannels)
}

func NewFutures(s pricefeed.Settings) (port.Connector, error) {
	return newTickerFeed(s, domain.MarketFutures, DefaultFuturesWSURL, futuresChannels)
}

func newTickerFeed(s pricefeed.Settings, market domain.Market, defaultURL string, ch channels) (port.Connector, error) {
	symbols := exchange.Symbols(symbolConverter, s.Coins)
	if len(symbols) == 0 {
		return nil, errors.New("gate: symbols empty")
	}

	return connector.New(connector.Spec{
		ID:     s.ID,
		Group:  domain.GroupOverseas,
		Market: market,
		Stream: &connector.Stream{
			URL:       pricefeed.URL(s.WSURL, defaultURL),
			Handshake: handshake(ch, symbols),
			Ping:      ping(ch),
			Parse:     NewParser(s.ID, market),
		},
		Options: s.Options,
	})
}

// 请求都带当前时间戳，不能预先序列化
func handshake(ch channels, symbols []string) func(*websocket.Conn) error {
	return func(conn *websocket.Conn) error {
		req := gateReq{Time: time.Now().Unix(), Channel: ch.tickers, Event: "subscribe", Payload: symbols}
		return connector.SubscribeJSON(req)(conn)
	}
}

func ping(ch channels) func(*websocket.Conn) error {
	return func(conn *websocket.Conn) error {
		return connector.JSONPing(gateReq{Time: time.Now().Unix(), Channel: ch.ping})(conn)
	}
}

// NewParser change_percentage 是百分比，但 |v|<=1 时同样按比率 ×100
func NewParser(id string, market domain.Market) connector.Parser {
	ch := spotChannels
	if market == domain.MarketFutures {
		ch = futuresChannels
	}

	return func(raw []byte) []domain.TickerUpdate {
		var msg gateMsg
		if err := exchange.ParseJSON(raw, &msg); err != nil {
			log.Debug().Str("feed", id).Err(err).Msg("json unmarshal failed")
			return nil
		}
		if msg.Error != nil {
			log.Warn().Str("feed", id).Interface("error", msg.Error).Msg("gate request rejected")
			return nil
		}
		if msg.Channel != ch.tickers || msg.Event != "update" {
			return nil
		}

		out := make([]domain.TickerUpdate, 0, len(msg.Result))
		for _, f := range msg.Result {
			last := f.Num("last")
			change := normalize.ChangePercent(normalize.ChangeInput{Percent: f.Num("change_percentage"), LastPrice: last})
			volume := normalize.QuoteVolume(f.Num(ch.quoteKey), f.Num(ch.baseKey), last)

			var changePrice *float64
			if change != nil && last != nil {
				// last / (1 + pct/100) 反推 24h 前价格
				if base := 1 + *change/100; base > 0 {
					changePrice = domain.Float(*last - *last/base)
				}
			}
			if u, ok := exchange.Ticker(id, symbolConverter.Symbol2Coin(f.Str(ch.symbolKey)), last, change, volume, changePrice); ok {
				out = append(out, u)
			}
		}
		return out
	}
}
