package binance

import (
	"xtick/internal/domain"
	"xtick/internal/infrastructure/pricefeed"
)

// init() 自注册，registry 只需空导入本包
func init() {
	pricefeed.Register(domain.BinanceUSDT, NewSpot)
	pricefeed.Register(domain.BinanceUSDTFutures, NewFutures)
}
