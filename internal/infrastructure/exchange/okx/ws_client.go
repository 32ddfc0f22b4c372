// Package okx OKX v5 公共 tickers 频道：现货 BTC-USDT 与永续 BTC-USDT-SWAP
package okx

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

const DefaultWSURL = "wss://ws.okx.com:8443/ws/v5/public"

var (
	spotConverter = exchange.NewCommonSymbolConverter("-USDT")
	swapConverter = exchange.NewCommonSymbolConverter("-USDT-SWAP")
)

type okxSubReq struct {
	Op   string      `json:"op"`
	Args []okxSubArg `json:"args"`
}

type okxSubArg struct {
	Channel string `json:"channel"`
	InstID  string `json:"instId"`
}

type okxTickerMsg struct {
	Event string         `json:"event"`
	Code  string         `json:"code"`
	Msg   string         `json:"msg"`
	Arg   okxSubArg      `json:"arg"`
	Data  exchange.Items `json:"data"`
}

func NewSpot(s pricefeed.Settings) (port.Connector, error) {
	return newTickerFeed(s, domain.MarketSpot, spotConverter)
}

func NewFutures(s pricefeed.Settings) (port.Connector, error) {
	return newTickerFeed(s, domain.MarketFutures, swapConverter)
}

func newTickerFeed(s pricefeed.Settings, market domain.Market, conv exchange.SymbolConverter) (port.Connector, error) {
	instIDs := exchange.Symbols(conv, s.Coins)
	if len(instIDs) == 0 {
		return nil, errors.New("okx: symbols empty")
	}
	args := make([]okxSubArg, 0, len(instIDs))
	for _, id := range instIDs {
		args = append(args, okxSubArg{Channel: "tickers", InstID: id})
	}

	return connector.New(connector.Spec{
		ID:     s.ID,
		Group:  domain.GroupOverseas,
		Market: market,
		Stream: &connector.Stream{
			URL:       pricefeed.URL(s.WSURL, DefaultWSURL),
			Handshake: connector.SubscribeJSON(okxSubReq{Op: "subscribe", Args: args}),
			Ping:      connector.TextPing("ping"),
			Parse:     NewParser(s.ID, market),
		},
		Options: s.Options,
	})
}

// NewParser 现货 volCcy24h 是计价货币成交额；永续 volCcy24h 是币本位数量，需要 ×last
func NewParser(id string, market domain.Market) connector.Parser {
	conv := spotConverter
	if market == domain.MarketFutures {
		conv = swapConverter
	}

	return func(raw []byte) []domain.TickerUpdate {
		if exchange.IsPong(raw) {
			return nil
		}
		var msg okxTickerMsg
		if err := exchange.ParseJSON(raw, &msg); err != nil {
			log.Debug().Str("feed", id).Err(err).Msg("json unmarshal failed")
			return nil
		}
		if msg.Event == "error" {
			log.Warn().Str("feed", id).Str("code", msg.Code).Str("msg", msg.Msg).Msg("okx request rejected")
			return nil
		}
		if msg.Event != "" || len(msg.Data) == 0 {
			return nil
		}

		out := make([]domain.TickerUpdate, 0, len(msg.Data))
		for _, f := range msg.Data {
			last := f.Num("last")
			open := f.Num("open24h")

			var volume *float64
			if market == domain.MarketFutures {
				volume = normalize.QuoteVolume(nil, f.Num("volCcy24h"), last)
			} else {
				volume = normalize.QuoteVolume(f.Num("volCcy24h"), f.Num("vol24h"), last)
			}

			var changePrice *float64
			if last != nil && open != nil && *open > 0 {
				changePrice = domain.Float(*last - *open)
			}
			change := normalize.ChangePercent(normalize.ChangeInput{OpenPrice: open, LastPrice: last})

			if u, ok := exchange.Ticker(id, conv.Symbol2Coin(f.Str("instId")), last, change, volume, changePrice); ok {
				out = append(out, u)
			}
		}
		return out
	}
}
