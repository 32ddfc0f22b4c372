// Package bitget Bitget v2 公共 ticker 频道：SPOT 与 USDT-FUTURES
package bitget

import (
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
	DefaultWSURL = "wss://ws.bitget.com/v2/ws/public"

	instTypeSpot    = "SPOT"
	instTypeFutures = "USDT-FUTURES"
)

// BTCUSDT，现货与合约相同
var symbolConverter = exchange.NewCommonSymbolConverter("USDT")

type bitgetSubReq struct {
	Op   string         `json:"op"`
	Args []bitgetSubArg `json:"args"`
}

type bitgetSubArg struct {
	InstType string `json:"instType"`
	Channel  string `json:"channel"`
	InstID   string `json:"instId"`
}

type bitgetTickerMsg struct {
	Event  string         `json:"event"`
	Code   any            `json:"code"`
	Msg    string         `json:"msg"`
	Action string         `json:"action"`
	Arg    bitgetSubArg   `json:"arg"`
	Data   exchange.Items `json:"data"`
}

func NewSpot(s pricefeed.Settings) (port.Connector, error) {
	return newTickerFeed(s, domain.MarketSpot, instTypeSpot)
}

func NewFutures(s pricefeed.Settings) (port.Connector, error) {
	return newTickerFeed(s, domain.MarketFutures, instTypeFutures)
}

func newTickerFeed(s pricefeed.Settings, market domain.Market, instType string) (port.Connector, error) {
	symbols := exchange.Symbols(symbolConverter, s.Coins)
	if len(symbols) == 0 {
		return nil, errors.New("bitget: symbols empty")
	}
	args := make([]bitgetSubArg, 0, len(symbols))
	for _, sym := range symbols {
		args = append(args, bitgetSubArg{InstType: instType, Channel: "ticker", InstID: sym})
	}

	return connector.New(connector.Spec{
		ID:     s.ID,
		Group:  domain.GroupOverseas,
		Market: market,
		Stream: &connector.Stream{
			URL:       pricefeed.URL(s.WSURL, DefaultWSURL),
			Handshake: connector.SubscribeJSON(bitgetSubReq{Op: "subscribe", Args: args}),
			Ping:      connector.TextPing("ping"),
			Parse:     NewParser(s.ID, instType),
		},
		Options: s.Options,
	})
}

// NewParser change24h 是比率（0.0123 = 1.23%），有 open24h 时优先用开盘价计算
func NewParser(id, instType string) connector.Parser {
	return func(raw []byte) []domain.TickerUpdate {
		if exchange.IsPong(raw) {
			return nil
		}
		var msg bitgetTickerMsg
		if err := exchange.ParseJSON(raw, &msg); err != nil {
			log.Debug().Str("feed", id).Err(err).Msg("json unmarshal failed")
			return nil
		}
		if msg.Event == "error" {
			log.Warn().Str("feed", id).Interface("code", msg.Code).Str("msg", msg.Msg).Msg("bitget request rejected")
			return nil
		}
		if msg.Event != "" || msg.Arg.Channel != "ticker" || msg.Arg.InstType != instType {
			return nil
		}

		out := make([]domain.TickerUpdate, 0, len(msg.Data))
		for _, f := range msg.Data {
			last := f.Num("lastPr")
			open := f.Num("open24h")

			var changePrice *float64
			if last != nil && open != nil && *open > 0 {
				changePrice = domain.Float(*last - *open)
			}
			change := normalize.ChangePercent(normalize.ChangeInput{
				Ratio:     f.Num("change24h"),
				OpenPrice: open,
				LastPrice: last,
			})
			volume := normalize.QuoteVolume(f.Num("quoteVolume"), f.Num("baseVolume"), last)

			sym := f.Str("instId")
			if sym == "" {
				sym = msg.Arg.InstID
			}
			if u, ok := exchange.Ticker(id, symbolConverter.Symbol2Coin(sym), last, change, volume, changePrice); ok {
				out = append(out, u)
			}
		}
		return out
	}
}
