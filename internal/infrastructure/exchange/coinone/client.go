// Package coinone Coinone KRW 现货：仅 HTTP 轮询
package coinone

import (
	"errors"
	"strings"

	"github.com/rs/zerolog/log"

	"xtick/internal/application/port"
	"xtick/internal/domain"
	"xtick/internal/infrastructure/connector"
	"xtick/internal/infrastructure/exchange"
	"xtick/internal/infrastructure/normalize"
	"xtick/internal/infrastructure/pricefeed"
)

const DefaultRESTURL = "https://api.coinone.co.kr"

type tickerResp struct {
	Result    string         `json:"result"`
	ErrorCode string         `json:"error_code"`
	Tickers   exchange.Items `json:"tickers"`
}

// New 创建 Coinone 连接器
func New(s pricefeed.Settings) (port.Connector, error) {
	if len(exchange.Coins(s.Coins)) == 0 {
		return nil, errors.New("coinone: symbols empty")
	}
	restURL, err := exchange.BuildQueryURL(pricefeed.URL(s.RESTURL, DefaultRESTURL), "/public/v2/ticker_new/KRW", "")
	if err != nil {
		return nil, err
	}

	return connector.New(connector.Spec{
		ID:      s.ID,
		Group:   domain.GroupDomestic,
		Market:  domain.MarketSpot,
		Poll:    &connector.Poll{URL: restURL, Parse: NewParser(s.ID, s.Coins)},
		Options: s.Options,
	})
}

// NewParser 接口返回全部 KRW 市场，按 coins 过滤
func NewParser(id string, coins []string) connector.Parser {
	allow := exchange.NewAllow(coins)

	return func(raw []byte) []domain.TickerUpdate {
		var resp tickerResp
		if err := exchange.ParseJSON(raw, &resp); err != nil {
			log.Debug().Str("feed", id).Err(err).Msg("json unmarshal failed")
			return nil
		}
		if !strings.EqualFold(resp.Result, "success") {
			log.Debug().Str("feed", id).Str("error_code", resp.ErrorCode).Msg("ticker request rejected")
			return nil
		}

		out := make([]domain.TickerUpdate, 0, len(allow))
		for _, f := range resp.Tickers {
			coin := strings.ToUpper(f.Str("target_currency"))
			if !allow.Has(coin) {
				continue
			}
			if u, ok := parseTicker(id, coin, f); ok {
				out = append(out, u)
			}
		}
		return out
	}
}

// first 是 24h 窗口的开盘价
func parseTicker(id, coin string, f exchange.Fields) (domain.TickerUpdate, bool) {
	last := f.Num("last")
	first := f.Num("first")

	var changePrice *float64
	if last != nil && first != nil && *first > 0 {
		changePrice = domain.Float(*last - *first)
	}
	change := normalize.ChangePercent(normalize.ChangeInput{OpenPrice: first, LastPrice: last})
	volume := normalize.QuoteVolume(f.Num("quote_volume"), f.Num("target_volume"), last)
	return exchange.Ticker(id, coin, last, change, volume, changePrice)
}
