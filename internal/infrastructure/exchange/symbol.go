package exchange

import (
	"strings"
)

// SymbolConverter 符号转换接口
// 各交易所可以实现此接口来提供符号转换功能
type SymbolConverter interface {
	// Symbol2Coin 将交易对转换为币种
	// 例: KRW-BTC -> BTC, BTC_KRW -> BTC, BTC-USDT-SWAP -> BTC
	Symbol2Coin(symbol string) string

	// Coin2Symbol 将币种转换为交易对
	// 例: BTC -> BTCUSDT
	Coin2Symbol(coin string) string
}

// CommonSymbolConverter 通用符号转换器：prefix + coin + suffix
type CommonSymbolConverter struct {
	prefix string
	suffix string
}

// NewCommonSymbolConverter 后缀形式，BTC -> BTCUSDT / BTC_KRW / BTC-USDT-SWAP
func NewCommonSymbolConverter(suffix string) *CommonSymbolConverter {
	return &CommonSymbolConverter{suffix: strings.ToUpper(strings.TrimSpace(suffix))}
}

// NewPrefixSymbolConverter 前缀形式，BTC -> KRW-BTC
func NewPrefixSymbolConverter(prefix string) *CommonSymbolConverter {
	return &CommonSymbolConverter{prefix: strings.ToUpper(strings.TrimSpace(prefix))}
}

// Symbol2Coin 将交易对转换为币种；格式不匹配时返回空
func (c *CommonSymbolConverter) Symbol2Coin(symbol string) string {
	sym := strings.ToUpper(strings.TrimSpace(symbol))
	if sym == "" {
		return ""
	}
	if c.prefix != "" {
		if !strings.HasPrefix(sym, c.prefix) {
			return ""
		}
		sym = sym[len(c.prefix):]
	}
	if c.suffix != "" {
		if !strings.HasSuffix(sym, c.suffix) {
			return ""
		}
		sym = sym[:len(sym)-len(c.suffix)]
	}
	return sym
}

// Coin2Symbol 将币种转换为交易对
// 例: BTC -> BTCUSDT, BTCUSDT -> BTCUSDT
func (c *CommonSymbolConverter) Coin2Symbol(coin string) string {
	coin = strings.ToUpper(strings.TrimSpace(coin))
	if coin == "" {
		return ""
	}
	if c.Symbol2Coin(coin) != "" && (c.prefix != "" || c.suffix != "") {
		// 已经是交易对格式
		return coin
	}
	return c.prefix + coin + c.suffix
}

// Coins 规范化币种列表：去空白、大写、去重，保持原顺序
func Coins(coins []string) []string {
	out := make([]string, 0, len(coins))
	seen := make(map[string]struct{}, len(coins))
	for _, c := range coins {
		c = strings.ToUpper(strings.TrimSpace(c))
		if c == "" {
			continue
		}
		if _, ok := seen[c]; ok {
			continue
		}
		seen[c] = struct{}{}
		out = append(out, c)
	}
	return out
}

// Symbols 批量转换
func Symbols(conv SymbolConverter, coins []string) []string {
	out := make([]string, 0, len(coins))
	for _, c := range Coins(coins) {
		if s := conv.Coin2Symbol(c); s != "" {
			out = append(out, s)
		}
	}
	return out
}
