package bybit

import (
	"fmt"
	"testing"

	"github.com/stretchr/testify/require"

	"xtick/internal/domain"
)

func TestSubscribeRequestsChunked(t *testing.T) {
	syms := make([]string, 23)
	for i := range syms {
		syms[i] = fmt.Sprintf("C%dUSDT", i)
	}
	reqs := subscribeRequests(syms)
	require.Len(t, reqs, 3)
	require.Len(t, reqs[0].(bybitSubReq).Args, 10)
	require.Len(t, reqs[2].(bybitSubReq).Args, 3)
	require.Equal(t, "tickers.C0USDT", reqs[0].(bybitSubReq).Args[0])

	require.Empty(t, subscribeRequests(nil))
}

func TestParseSpotSnapshot(t *testing.T) {
	parse := NewParser(domain.BybitUSDT)
	raw := `{"topic":"tickers.BTCUSDT","ts":1700000000000,"type":"snapshot","cs":1,
		"data":{"symbol":"BTCUSDT","lastPrice":"60000","prevPrice24h":"50000","price24hPcnt":"0.2",
		"volume24h":"100","turnover24h":"5500000"}}`

	ups := parse([]byte(raw))
	require.Len(t, ups, 1)
	require.Equal(t, domain.PriceKey("bybit_usdt-BTC"), ups[0].Key)
	require.InDelta(t, 20.0, *ups[0].Change24h, 1e-9)
	require.Equal(t, 5_500_000.0, *ups[0].Volume24h)
	require.Equal(t, 10000.0, *ups[0].ChangePrice)
}

func TestParseLinearDeltaUsesMemo(t *testing.T) {
	parse := NewParser(domain.BybitUSDTFutures)

	snapshot := `{"topic":"tickers.ETHUSDT","type":"snapshot","data":{"symbol":"ETHUSDT",
		"lastPrice":"3000","prevPrice24h":"3000","turnover24h":"1000"}}`
	require.Len(t, parse([]byte(snapshot)), 1)

	// 只带成交额的 delta
	delta := `{"topic":"tickers.ETHUSDT","type":"delta","data":{"symbol":"ETHUSDT","turnover24h":"2000"}}`
	ups := parse([]byte(delta))
	require.Len(t, ups, 1)
	require.Equal(t, 3000.0, ups[0].Price)
	require.Equal(t, 2000.0, *ups[0].Volume24h)

	// 价格变化的 delta
	delta = `{"topic":"tickers.ETHUSDT","type":"delta","data":{"symbol":"ETHUSDT","lastPrice":"3300"}}`
	ups = parse([]byte(delta))
	require.Len(t, ups, 1)
	require.Equal(t, 3300.0, ups[0].Price)
	require.InDelta(t, 10.0, *ups[0].Change24h, 1e-9)
	require.Nil(t, ups[0].Volume24h)
}

func TestParseDropsControlMessages(t *testing.T) {
	parse := NewParser(domain.BybitUSDT)
	for _, raw := range []string{
		`{"success":true,"ret_msg":"pong","conn_id":"x","op":"ping"}`,
		`{"success":false,"ret_msg":"error:handler not found","op":"subscribe"}`,
		`{"topic":"tickers.XRPUSDT","type":"delta","data":{"symbol":"XRPUSDT","turnover24h":"1"}}`,
		`{"topic":"orderbook.1.BTCUSDT","data":{"s":"BTCUSDT"}}`,
	} {
		require.Empty(t, parse([]byte(raw)), raw)
	}
}
