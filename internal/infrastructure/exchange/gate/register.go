package gate

import (
	"xtick/internal/domain"
	"xtick/internal/infrastructure/pricefeed"
)

func init() {
	pricefeed.Register(domain.GateUSDT, NewSpot)
	pricefeed.Register(domain.GateUSDTFutures, NewFutures)
}
