// Package upbit Upbit KRW 现货：WebSocket 推送，推送无数据时回退到 REST 轮询
package upbit

import (
	"errors"
	"strings"

	"github.com/google/uuid"
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
	DefaultWSURL   = "wss://api.upbit.com/websocket/v1"
	DefaultRESTURL = "https://api.upbit.com"
)

// KRW-BTC
var symbolConverter = exchange.NewPrefixSymbolConverter("KRW-")

type subTicket struct {
	Ticket string `json:"ticket"`
}

type subType struct {
	Type  string   `json:"type"`
	Codes []string `json:"codes"`
}

type subFormat struct {
	Format string `json:"format"`
}

// New 创建 Upbit 连接器
func New(s pricefeed.Settings) (port.Connector, error) {
	codes := exchange.Symbols(symbolConverter, s.Coins)
	if len(codes) == 0 {
		return nil, errors.New("upbit: symbols empty")
	}

	restURL, err := exchange.BuildQueryURL(
		pricefeed.URL(s.RESTURL, DefaultRESTURL), "/v1/ticker", "markets="+strings.Join(codes, ","))
	if err != nil {
		return nil, err
	}

	parse := NewParser(s.ID)
	return connector.New(connector.Spec{
		ID:     s.ID,
		Group:  domain.GroupDomestic,
		Market: domain.MarketSpot,
		Stream: &connector.Stream{
			URL:       pricefeed.URL(s.WSURL, DefaultWSURL),
			Handshake: handshake(codes),
			Ping:      connector.TextPing("PING"),
			Parse:     parse,
		},
		Poll:    &connector.Poll{URL: restURL, Parse: parse},
		Options: s.Options,
	})
}

// handshake 每次连接使用新的 ticket
func handshake(codes []string) func(*websocket.Conn) error {
	return func(conn *websocket.Conn) error {
		payload := []any{
			subTicket{Ticket: uuid.NewString()},
			subType{Type: "ticker", Codes: codes},
			subFormat{Format: "DEFAULT"},
		}
		return connector.SubscribeJSON(payload)(conn)
	}
}

// NewParser 同时处理推送（单个对象，code 字段）与 REST（数组，market 字段）
func NewParser(id string) connector.Parser {
	return func(raw []byte) []domain.TickerUpdate {
		raw = exchange.BytesTrimSpace(raw)
		if len(raw) == 0 || (raw[0] != '{' && raw[0] != '[') {
			return nil
		}

		var items exchange.Items
		if err := exchange.ParseJSON(raw, &items); err != nil {
			log.Debug().Str("feed", id).Err(err).Msg("json unmarshal failed")
			return nil
		}

		out := make([]domain.TickerUpdate, 0, len(items))
		for _, f := range items {
			if u, ok := parseTicker(id, f); ok {
				out = append(out, u)
			}
		}
		return out
	}
}

func parseTicker(id string, f exchange.Fields) (domain.TickerUpdate, bool) {
	if t := f.Str("type"); t != "" && t != "ticker" {
		return domain.TickerUpdate{}, false
	}
	code := f.Str("code")
	if code == "" {
		code = f.Str("market")
	}

	last := f.Num("trade_price")
	changePrice := f.Num("signed_change_price")
	change := normalize.ChangePercent(normalize.ChangeInput{
		Ratio:       f.Num("signed_change_rate"),
		PriceChange: changePrice,
		OpenPrice:   f.Num("prev_closing_price"),
		LastPrice:   last,
	})
	volume := normalize.QuoteVolume(f.Num("acc_trade_price_24h"), f.Num("acc_trade_volume_24h"), last)

	return exchange.Ticker(id, symbolConverter.Symbol2Coin(code), last, change, volume, changePrice)
}
