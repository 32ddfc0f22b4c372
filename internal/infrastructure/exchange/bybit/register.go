package bybit

import (
	"xtick/internal/domain"
	"xtick/internal/infrastructure/pricefeed"
)

// init() automatically registers Bybit connector factories
func init() {
	pricefeed.Register(domain.BybitUSDT, NewSpot)
	pricefeed.Register(domain.BybitUSDTFutures, NewFutures)
}
