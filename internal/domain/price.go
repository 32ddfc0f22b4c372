package domain

import (
	"fmt"
	"math"
	"strings"
)

// PriceKey 交易所+币种的组合标识，例如 upbit_krw-BTC、binance_usdt_futures-ETH
type PriceKey string

// NewPriceKey 构造 PriceKey，币种统一为大写
func NewPriceKey(exchangeID, symbol string) PriceKey {
	return PriceKey(fmt.Sprintf("%s-%s", strings.TrimSpace(exchangeID), strings.ToUpper(strings.TrimSpace(symbol))))
}

// Split 拆分为交易所 ID 和币种
// 交易所 ID 本身不含 '-'，因此按第一个 '-' 切分
func (k PriceKey) Split() (exchangeID, symbol string) {
	s := string(k)
	i := strings.IndexByte(s, '-')
	if i < 0 {
		return s, ""
	}
	return s[:i], s[i+1:]
}

func (k PriceKey) String() string { return string(k) }

// Direction represents the price movement direction
type Direction int

const (
	DirectionSame Direction = 0
	DirectionUp   Direction = +1
	DirectionDown Direction = -1
)

func (d Direction) String() string {
	switch d {
	case DirectionUp:
		return "up"
	case DirectionDown:
		return "down"
	default:
		return "same"
	}
}

// TickerUpdate 连接器发出的规范化行情事件
type TickerUpdate struct {
	Key   PriceKey
	Price float64

	// 以下字段可选，nil 表示"未知"，不是 0
	Change24h   *float64 // 百分比，-5.00 表示下跌 5%
	Volume24h   *float64 // 计价货币成交额（KRW / USDT）
	ChangePrice *float64 // 绝对涨跌额，仅供展示
}

// Valid 价格必须为正的有限数
func (u TickerUpdate) Valid() bool {
	return u.Key != "" && u.Price > 0 && !math.IsInf(u.Price, 0) && !math.IsNaN(u.Price)
}

// HasExtended 是否携带任一扩展字段
func (u TickerUpdate) HasExtended() bool {
	return u.Change24h != nil || u.Volume24h != nil || u.ChangePrice != nil
}

// Clone 深拷贝，可选字段不共享指针
func (u TickerUpdate) Clone() TickerUpdate {
	out := u
	out.Change24h = cloneFloat(u.Change24h)
	out.Volume24h = cloneFloat(u.Volume24h)
	out.ChangePrice = cloneFloat(u.ChangePrice)
	return out
}

func cloneFloat(p *float64) *float64 {
	if p == nil {
		return nil
	}
	v := *p
	return &v
}

// Float 返回指向 v 的指针
func Float(v float64) *float64 { return &v }

// SameFloat 比较两个可选值是否相同（都为 nil 或数值相等）
func SameFloat(a, b *float64) bool {
	if a == nil || b == nil {
		return a == nil && b == nil
	}
	return *a == *b
}

// DirectionOf 由前后价格计算方向
func DirectionOf(prev, next float64) Direction {
	switch {
	case next > prev:
		return DirectionUp
	case next < prev:
		return DirectionDown
	default:
		return DirectionSame
	}
}
