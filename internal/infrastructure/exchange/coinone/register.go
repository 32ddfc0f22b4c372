package coinone

import (
	"xtick/internal/domain"
	"xtick/internal/infrastructure/pricefeed"
)

func init() {
	pricefeed.Register(domain.CoinoneKRW, New)
}
