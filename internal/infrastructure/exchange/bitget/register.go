package bitget

import (
	"xtick/internal/domain"
	"xtick/internal/infrastructure/pricefeed"
)

// init() automatically registers Bitget connector factories
func init() {
	pricefeed.Register(domain.BitgetUSDT, NewSpot)
	pricefeed.Register(domain.BitgetUSDTFutures, NewFutures)
}
