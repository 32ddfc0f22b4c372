package okx

import (
	"testing"

	"github.com/stretchr/testify/require"

	"xtick/internal/domain"
)

func TestParseSpotTicker(t *testing.T) {
	raw := `{"arg":{"channel":"tickers","instId":"BTC-USDT"},"data":[{"instType":"SPOT","instId":"BTC-USDT",
		"last":"60000","open24h":"50000","vol24h":"100","volCcy24h":"5500000","ts":"1700000000000"}]}`

	ups := NewParser(domain.OKXUSDT, domain.MarketSpot)([]byte(raw))
	require.Len(t, ups, 1)
	require.Equal(t, domain.PriceKey("okx_usdt-BTC"), ups[0].Key)
	require.InDelta(t, 20.0, *ups[0].Change24h, 1e-9)
	require.Equal(t, 5_500_000.0, *ups[0].Volume24h)
	require.Equal(t, 10000.0, *ups[0].ChangePrice)
}

func TestParseSwapVolumeIsBaseCurrency(t *testing.T) {
	raw := `{"arg":{"channel":"tickers","instId":"ETH-USDT-SWAP"},"data":[{"instType":"SWAP","instId":"ETH-USDT-SWAP",
		"last":"3000","open24h":"3000","vol24h":"250000","volCcy24h":"2500"}]}`

	ups := NewParser(domain.OKXUSDTFutures, domain.MarketFutures)([]byte(raw))
	require.Len(t, ups, 1)
	require.Equal(t, domain.PriceKey("okx_usdt_futures-ETH"), ups[0].Key)
	require.Equal(t, 7_500_000.0, *ups[0].Volume24h)
	require.Equal(t, 0.0, *ups[0].Change24h)
}

func TestParseDropsControlMessages(t *testing.T) {
	parse := NewParser(domain.OKXUSDT, domain.MarketSpot)
	for _, raw := range []string{
		`pong`,
		`{"event":"subscribe","arg":{"channel":"tickers","instId":"BTC-USDT"},"connId":"a"}`,
		`{"event":"error","code":"60012","msg":"Invalid request"}`,
		`{"arg":{"channel":"tickers","instId":"BTC-USDT-SWAP"},"data":[{"instId":"BTC-USDT-SWAP","last":"1"}]}`,
	} {
		require.Empty(t, parse([]byte(raw)), raw)
	}
}
