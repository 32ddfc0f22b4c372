package gate

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/require"

	"xtick/internal/domain"
	"xtick/internal/infrastructure/pricefeed"
)

func TestParseSpotUpdate(t *testing.T) {
	raw := `{"time":1700000000,"channel":"spot.tickers","event":"update","result":{"currency_pair":"BTC_USDT",
		"last":"60000","change_percentage":"20","base_volume":"100","quote_volume":"5500000"}}`

	ups := NewParser(domain.GateUSDT, domain.MarketSpot)([]byte(raw))
	require.Len(t, ups, 1)
	require.Equal(t, domain.PriceKey("gate_usdt-BTC"), ups[0].Key)
	require.Equal(t, 20.0, *ups[0].Change24h)
	require.Equal(t, 5_500_000.0, *ups[0].Volume24h)
	require.InDelta(t, 10000.0, *ups[0].ChangePrice, 1e-6)
}

func TestParseFuturesArray(t *testing.T) {
	raw := `{"time":1700000000,"channel":"futures.tickers","event":"update","result":[
		{"contract":"ETH_USDT","last":"3000","change_percentage":"-1.5","volume_24h_base":"100"},
		{"contract":"SOL_USDT","last":"150"}]}`

	ups := NewParser(domain.GateUSDTFutures, domain.MarketFutures)([]byte(raw))
	require.Len(t, ups, 2)
	require.Equal(t, domain.PriceKey("gate_usdt_futures-ETH"), ups[0].Key)
	require.Equal(t, -1.5, *ups[0].Change24h)
	require.Equal(t, 300000.0, *ups[0].Volume24h)
	require.Nil(t, ups[1].Change24h)
}

func TestParseSmallPercentIsScaled(t *testing.T) {
	raw := `{"time":1700000000,"channel":"spot.tickers","event":"update","result":{"currency_pair":"ETH_USDT",
		"last":"3000","change_percentage":"0.5"}}`

	ups := NewParser(domain.GateUSDT, domain.MarketSpot)([]byte(raw))
	require.Len(t, ups, 1)
	require.InDelta(t, 50.0, *ups[0].Change24h, 1e-9)
	// 反推价格与放大后的涨跌幅一致
	require.InDelta(t, 1000.0, *ups[0].ChangePrice, 1e-9)
}

func TestParseDropsControlMessages(t *testing.T) {
	parse := NewParser(domain.GateUSDT, domain.MarketSpot)
	for _, raw := range []string{
		`{"time":1700000000,"channel":"spot.pong","event":"","result":null}`,
		`{"time":1700000000,"channel":"spot.tickers","event":"subscribe","result":{"status":"success"}}`,
		`{"time":1700000000,"channel":"spot.tickers","event":"subscribe","error":{"code":2,"message":"unknown currency pair"}}`,
		`{"time":1700000000,"channel":"futures.tickers","event":"update","result":[{"contract":"BTC_USDT","last":"1"}]}`,
	} {
		require.Empty(t, parse([]byte(raw)), raw)
	}
}

func TestHandshakeSendsTimestampedSubscribe(t *testing.T) {
	upgrader := websocket.Upgrader{}
	got := make(chan gateReq, 1)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		c, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		defer c.Close()
		_, b, err := c.ReadMessage()
		if err != nil {
			return
		}
		var req gateReq
		if json.Unmarshal(b, &req) == nil {
			got <- req
		}
		_ = c.WriteMessage(websocket.TextMessage, []byte(
			`{"channel":"spot.tickers","event":"update","result":{"currency_pair":"BTC_USDT","last":"61000"}}`))
		for {
			if _, _, err := c.ReadMessage(); err != nil {
				return
			}
		}
	}))
	defer srv.Close()

	c, err := NewSpot(pricefeed.Settings{
		ID:    domain.GateUSDT,
		WSURL: "ws" + strings.TrimPrefix(srv.URL, "http"),
		Coins: []string{"btc", "eth"},
	})
	require.NoError(t, err)

	ticks := make(chan domain.TickerUpdate, 4)
	unsub := c.ConnectExtended(func(u domain.TickerUpdate) { ticks <- u })
	defer unsub()

	select {
	case req := <-got:
		require.Equal(t, "spot.tickers", req.Channel)
		require.Equal(t, "subscribe", req.Event)
		require.Equal(t, []string{"BTC_USDT", "ETH_USDT"}, req.Payload)
		require.InDelta(t, time.Now().Unix(), req.Time, 5)
	case <-time.After(2 * time.Second):
		t.Fatal("no subscribe request")
	}

	select {
	case u := <-ticks:
		require.Equal(t, 61000.0, u.Price)
	case <-time.After(2 * time.Second):
		t.Fatal("no ticker")
	}
}
