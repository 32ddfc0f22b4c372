package okx

import (
	"xtick/internal/domain"
	"xtick/internal/infrastructure/pricefeed"
)

// init() automatically registers OKX connector factories
func init() {
	pricefeed.Register(domain.OKXUSDT, NewSpot)
	pricefeed.Register(domain.OKXUSDTFutures, NewFutures)
}
