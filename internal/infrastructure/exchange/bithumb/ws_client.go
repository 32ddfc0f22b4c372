// Package bithumb Bithumb KRW 现货：WebSocket 推送 + ALL_KRW 轮询回退
package bithumb

import (
	"encoding/json"
	"errors"

	"github.com/rs/zerolog/log"

	"xtick/internal/application/port"
	"xtick/internal/domain"
	"xtick/internal/infrastructure/connector"
	"xtick/internal/infrastructure/exchange"
	"xtick/internal/infrastructure/normalize"
	"xtick/internal/infrastructure/pricefeed"
)

const (
	DefaultWSURL   = "wss://pubwss.bithumb.com/pub/ws"
	DefaultRESTURL = "https://api.bithumb.com"
)

// BTC_KRW
var symbolConverter = exchange.NewCommonSymbolConverter("_KRW")

type subReq struct {
	Type      string   `json:"type"`
	Symbols   []string `json:"symbols"`
	TickTypes []string `json:"tickTypes"`
}

// New 创建 Bithumb 连接器
func New(s pricefeed.Settings) (port.Connector, error) {
	symbols := exchange.Symbols(symbolConverter, s.Coins)
	if len(symbols) == 0 {
		return nil, errors.New("bithumb: symbols empty")
	}

	restURL, err := exchange.BuildQueryURL(pricefeed.URL(s.RESTURL, DefaultRESTURL), "/public/ticker/ALL_KRW", "")
	if err != nil {
		return nil, err
	}

	parse := NewParser(s.ID, s.Coins)
	return connector.New(connector.Spec{
		ID:     s.ID,
		Group:  domain.GroupDomestic,
		Market: domain.MarketSpot,
		Stream: &connector.Stream{
			URL:       pricefeed.URL(s.WSURL, DefaultWSURL),
			Handshake: connector.SubscribeJSON(subReq{Type: "ticker", Symbols: symbols, TickTypes: []string{"24H"}}),
			Parse:     parse,
		},
		Poll:    &connector.Poll{URL: restURL, Parse: parse},
		Options: s.Options,
	})
}

// envelope 推送：{"type":"ticker","content":{...}}
// REST：{"status":"0000","data":{"BTC":{...},"date":"..."}}
type envelope struct {
	Type    string                     `json:"type"`
	Content exchange.Fields            `json:"content"`
	Status  string                     `json:"status"`
	Data    map[string]json.RawMessage `json:"data"`
}

// NewParser coins 用于过滤 ALL_KRW 返回的全市场数据
func NewParser(id string, coins []string) connector.Parser {
	allow := exchange.NewAllow(coins)

	return func(raw []byte) []domain.TickerUpdate {
		var msg envelope
		if err := exchange.ParseJSON(raw, &msg); err != nil {
			log.Debug().Str("feed", id).Err(err).Msg("json unmarshal failed")
			return nil
		}

		if msg.Type == "ticker" && msg.Content != nil {
			if u, ok := parseStream(id, msg.Content); ok && allow.Has(symbolConverter.Symbol2Coin(msg.Content.Str("symbol"))) {
				return []domain.TickerUpdate{u}
			}
			return nil
		}

		if msg.Status != "0000" || len(msg.Data) == 0 {
			return nil
		}
		out := make([]domain.TickerUpdate, 0, len(allow))
		for coin, item := range msg.Data {
			item = exchange.BytesTrimSpace(item)
			if len(item) == 0 || item[0] != '{' || !allow.Has(coin) {
				continue
			}
			var f exchange.Fields
			if err := exchange.ParseJSON(item, &f); err != nil {
				continue
			}
			if u, ok := parseREST(id, coin, f); ok {
				out = append(out, u)
			}
		}
		return out
	}
}

func parseStream(id string, f exchange.Fields) (domain.TickerUpdate, bool) {
	last := f.Num("closePrice")
	changePrice := f.Num("chgAmt")
	change := normalize.ChangePercent(normalize.ChangeInput{
		Percent:     f.Num("chgRate"),
		PriceChange: changePrice,
		OpenPrice:   f.Num("openPrice"),
		LastPrice:   last,
	})
	volume := normalize.QuoteVolume(f.Num("value"), f.Num("volume"), last)
	return exchange.Ticker(id, symbolConverter.Symbol2Coin(f.Str("symbol")), last, change, volume, changePrice)
}

// parseREST opening_price 是当日 00:00 开盘价，24h 涨跌用 fluctate_24H 反推
func parseREST(id, coin string, f exchange.Fields) (domain.TickerUpdate, bool) {
	last := f.Num("closing_price")
	changePrice := f.Num("fluctate_24H")
	change := normalize.ChangePercent(normalize.ChangeInput{
		Percent:     f.Num("fluctate_rate_24H"),
		PriceChange: changePrice,
		LastPrice:   last,
	})
	volume := normalize.QuoteVolume(f.Num("acc_trade_value_24H"), f.Num("units_traded_24H"), last)
	return exchange.Ticker(id, coin, last, change, volume, changePrice)
}
