// Package binance Binance USDT 现货与 U 本位合约：combined stream 的 @ticker 推送
package binance

import (
	"errors"
	"fmt"
	"net/url"
	"strings"

	"github.com/rs/zerolog/log"

	"xtick/internal/application/port"
	"xtick/internal/domain"
	"xtick/internal/infrastructure/connector"
	"xtick/internal/infrastructure/exchange"
	"xtick/internal/infrastructure/normalize"
	"xtick/internal/infrastructure/pricefeed"
)

const (
	DefaultSpotWSURL    = "wss://stream.binance.com:9443"
	DefaultFuturesWSURL = "wss://fstream.binance.com"
)

// BTCUSDT，现货与合约相同
var symbolConverter = exchange.NewCommonSymbolConverter("USDT")

type binanceCombined struct {
	Stream string          `json:"stream"`
	Data   exchange.Fields `json:"data"`
}

// NewSpot 现货
func NewSpot(s pricefeed.Settings) (port.Connector, error) {
	return newTickerFeed(s, domain.MarketSpot, DefaultSpotWSURL)
}

// NewFutures U 本位永续
func NewFutures(s pricefeed.Settings) (port.Connector, error) {
	return newTickerFeed(s, domain.MarketFutures, DefaultFuturesWSURL)
}

func newTickerFeed(s pricefeed.Settings, market domain.Market, defaultURL string) (port.Connector, error) {
	wsURL, err := buildCombinedURL(pricefeed.URL(s.WSURL, defaultURL), exchange.Symbols(symbolConverter, s.Coins))
	if err != nil {
		return nil, err
	}
	// 服务端主动 ping，gorilla 默认回应 pong；客户端用控制帧 ping 维持空闲检测
	return connector.New(connector.Spec{
		ID:      s.ID,
		Group:   domain.GroupOverseas,
		Market:  market,
		Stream:  &connector.Stream{URL: wsURL, Parse: NewParser(s.ID)},
		Options: s.Options,
	})
}

func buildCombinedURL(base string, symbols []string) (string, error) {
	if base == "" {
		return "", errors.New("binance ws_base empty")
	}
	if len(symbols) == 0 {
		return "", errors.New("symbols empty")
	}

	streams := make([]string, 0, len(symbols))
	for _, s := range symbols {
		s = strings.ToLower(strings.TrimSpace(s))
		if s == "" {
			continue
		}
		streams = append(streams, fmt.Sprintf("%s@ticker", s))
	}
	if len(streams) == 0 {
		return "", errors.New("no valid symbols")
	}

	u, err := url.Parse(base)
	if err != nil {
		return "", err
	}
	u.Path = "/stream"
	u.RawQuery = "streams=" + strings.Join(streams, "/")
	return u.String(), nil
}

// NewParser 解析 24hrTicker；同时接受 combined 包装与裸事件
func NewParser(id string) connector.Parser {
	return func(raw []byte) []domain.TickerUpdate {
		var msg binanceCombined
		if err := exchange.ParseJSON(raw, &msg); err != nil {
			log.Debug().Str("feed", id).Err(err).Msg("json unmarshal failed")
			return nil
		}
		f := msg.Data
		if f == nil {
			if err := exchange.ParseJSON(raw, &f); err != nil {
				return nil
			}
		}
		if e := f.Str("e"); e != "" && e != "24hrTicker" {
			return nil
		}

		last := f.Num("c")
		changePrice := f.Num("p")
		change := normalize.ChangePercent(normalize.ChangeInput{
			Percent:     f.Num("P"),
			PriceChange: changePrice,
			OpenPrice:   f.Num("o"),
			LastPrice:   last,
		})
		volume := normalize.QuoteVolume(f.Num("q"), f.Num("v"), last)

		u, ok := exchange.Ticker(id, symbolConverter.Symbol2Coin(f.Str("s")), last, change, volume, changePrice)
		if !ok {
			return nil
		}
		return []domain.TickerUpdate{u}
	}
}
