package normalize

import (
	"encoding/json"
	"math"
	"testing"

	"github.com/stretchr/testify/require"
)

func f(v float64) *float64 { return &v }

func TestParseNumber(t *testing.T) {
	cases := []struct {
		name string
		in   any
		want float64
		ok   bool
	}{
		{"float", 12.5, 12.5, true},
		{"int", 7, 7, true},
		{"plain string", "43000.12", 43000.12, true},
		{"won with separators", "₩95,123,000", 95123000, true},
		{"dollar", "$1,234.5", 1234.5, true},
		{"percent", "-5.25%", -5.25, true},
		{"underscores", "1_000_000", 1000000, true},
		{"exponent", "1.5e-3", 0.0015, true},
		{"json number", json.Number("88.8"), 88.8, true},
		{"bytes", []byte("3"), 3, true},
		{"empty", "", 0, false},
		{"garbage", "abc", 0, false},
		{"only symbol", "₩", 0, false},
		{"nan float", math.NaN(), 0, false},
		{"inf float", math.Inf(1), 0, false},
		{"nil", nil, 0, false},
		{"bool", true, 0, false},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			got, ok := ParseNumber(tc.in)
			require.Equal(t, tc.ok, ok)
			if tc.ok {
				require.InDelta(t, tc.want, got, 1e-9)
			}
		})
	}
}

func TestDeriveChangePercent(t *testing.T) {
	got, ok := DeriveChangePercent(ChangeInput{OpenPrice: f(100), LastPrice: f(95)})
	require.True(t, ok)
	require.InDelta(t, -5.0, got, 1e-9)

	got, ok = DeriveChangePercent(ChangeInput{Ratio: f(0.05)})
	require.True(t, ok)
	require.InDelta(t, 5.0, got, 1e-9)

	got, ok = DeriveChangePercent(ChangeInput{Ratio: f(5.0)})
	require.True(t, ok)
	require.InDelta(t, 5.0, got, 1e-9)

	_, ok = DeriveChangePercent(ChangeInput{})
	require.False(t, ok)
}

func TestDeriveChangePercentPrecedence(t *testing.T) {
	// open/last 优先于提供的百分比
	got, ok := DeriveChangePercent(ChangeInput{Percent: f(9), OpenPrice: f(200), LastPrice: f(210)})
	require.True(t, ok)
	require.InDelta(t, 5.0, got, 1e-9)

	// 无开盘价时由涨跌额反推
	got, ok = DeriveChangePercent(ChangeInput{PriceChange: f(-10), LastPrice: f(90)})
	require.True(t, ok)
	require.InDelta(t, -10.0, got, 1e-9)

	// open 为 0 时跳过第一条路径
	got, ok = DeriveChangePercent(ChangeInput{OpenPrice: f(0), LastPrice: f(10), Percent: f(1.5)})
	require.True(t, ok)
	require.InDelta(t, 1.5, got, 1e-9)

	// 百分比字段同样按 |v|<=1 缩放
	got, ok = DeriveChangePercent(ChangeInput{Percent: f(0.05)})
	require.True(t, ok)
	require.InDelta(t, 5.0, got, 1e-9)

	got, ok = DeriveChangePercent(ChangeInput{Percent: f(-2.5)})
	require.True(t, ok)
	require.InDelta(t, -2.5, got, 1e-9)

	// Percent 优先于 Ratio
	got, ok = DeriveChangePercent(ChangeInput{Percent: f(3), Ratio: f(0.5)})
	require.True(t, ok)
	require.InDelta(t, 3.0, got, 1e-9)

	// last == change 时分母为 0
	_, ok = DeriveChangePercent(ChangeInput{PriceChange: f(10), LastPrice: f(10)})
	require.False(t, ok)

	_, ok = DeriveChangePercent(ChangeInput{Ratio: f(math.NaN())})
	require.False(t, ok)
}

func TestDeriveQuoteVolume(t *testing.T) {
	got, ok := DeriveQuoteVolume(f(1000), nil, nil)
	require.True(t, ok)
	require.Equal(t, 1000.0, got)

	got, ok = DeriveQuoteVolume(nil, f(10), f(50))
	require.True(t, ok)
	require.Equal(t, 500.0, got)

	_, ok = DeriveQuoteVolume(nil, nil, nil)
	require.False(t, ok)

	_, ok = DeriveQuoteVolume(nil, f(10), nil)
	require.False(t, ok)

	// 优先使用计价成交额
	got, ok = DeriveQuoteVolume(f(7), f(10), f(50))
	require.True(t, ok)
	require.Equal(t, 7.0, got)
}

func TestPointerHelpers(t *testing.T) {
	require.Nil(t, Number("x"))
	require.InDelta(t, 2.0, *Number("2"), 1e-12)
	require.Nil(t, ChangePercent(ChangeInput{}))
	require.Nil(t, QuoteVolume(nil, nil, f(1)))
}
