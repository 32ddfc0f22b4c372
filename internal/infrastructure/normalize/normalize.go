// Package normalize 把各交易所松散类型的行情字段转换为有限 float64，
// 并从交易所实际提供的字段子集推导 24h 涨跌幅与计价成交额。
// 所有函数都是纯函数，无法得出结果时返回 ok=false（"未知"），绝不返回伪造的 0。
package normalize

import (
	"encoding/json"
	"math"
	"strings"

	"github.com/shopspring/decimal"
)

// 分母绝对值必须大于该阈值
const epsilon = 1e-12

var decorations = strings.NewReplacer(
	"₩", "", "$", "", "€", "", "£", "", "¥", "", "₫", "",
	"%", "", ",", "", "_", "", " ", "", "\u00a0", "", "\t", "",
	"−", "-", // unicode minus
)

// ParseNumber 接受数值、数值字符串，或带货币符号/百分号/千分位/下划线的字符串
// 解析失败或结果非有限数时返回 ok=false，不会 panic
func ParseNumber(v any) (float64, bool) {
	switch x := v.(type) {
	case nil:
		return 0, false
	case float64:
		return finite(x)
	case float32:
		return finite(float64(x))
	case int:
		return float64(x), true
	case int32:
		return float64(x), true
	case int64:
		return float64(x), true
	case uint64:
		return float64(x), true
	case json.Number:
		return parseString(x.String())
	case string:
		return parseString(x)
	case []byte:
		return parseString(string(x))
	case *float64:
		if x == nil {
			return 0, false
		}
		return finite(*x)
	default:
		return 0, false
	}
}

func parseString(s string) (float64, bool) {
	s = decorations.Replace(strings.TrimSpace(s))
	if s == "" || s == "-" || s == "+" {
		return 0, false
	}
	d, err := decimal.NewFromString(s)
	if err != nil {
		return 0, false
	}
	f, _ := d.Float64()
	return finite(f)
}

func finite(f float64) (float64, bool) {
	if math.IsNaN(f) || math.IsInf(f, 0) {
		return 0, false
	}
	return f, true
}

// Number 同 ParseNumber，失败时返回 nil
func Number(v any) *float64 {
	f, ok := ParseNumber(v)
	if !ok {
		return nil
	}
	return &f
}

// ChangeInput 推导涨跌幅可用的输入，nil 表示交易所未提供
type ChangeInput struct {
	Percent     *float64 // 已是百分比（-5 表示 -5%），原样使用
	Ratio       *float64 // 比率字段，|v|<=1 时视为 0~1 比率并 ×100
	PriceChange *float64 // 24h 绝对涨跌额
	OpenPrice   *float64 // 24h 开盘价 / 前收盘价
	LastPrice   *float64
}

// DeriveChangePercent 按精确度依次尝试：
//  1. (last-open)/open*100
//  2. change/(last-change)*100
//  3. Percent 或 Ratio，|v|<=1 时 ×100（两种约定按形状无法区分）
func DeriveChangePercent(in ChangeInput) (float64, bool) {
	open, hasOpen := known(in.OpenPrice)
	last, hasLast := known(in.LastPrice)
	if hasOpen && hasLast && math.Abs(open) > epsilon {
		return finite((last - open) / open * 100)
	}

	if chg, ok := known(in.PriceChange); ok && hasLast {
		base := last - chg
		if math.Abs(base) > epsilon {
			return finite(chg / base * 100)
		}
	}

	v, ok := known(in.Percent)
	if !ok {
		v, ok = known(in.Ratio)
	}
	if !ok {
		return 0, false
	}
	if math.Abs(v) <= 1 {
		return finite(v * 100)
	}
	return v, true
}

// ChangePercent 同 DeriveChangePercent，未知时返回 nil
func ChangePercent(in ChangeInput) *float64 {
	v, ok := DeriveChangePercent(in)
	if !ok {
		return nil
	}
	return &v
}

// DeriveQuoteVolume 优先使用计价货币成交额，否则用 base*last
func DeriveQuoteVolume(quoteVolume, baseVolume, lastPrice *float64) (float64, bool) {
	if q, ok := known(quoteVolume); ok && q >= 0 {
		return q, true
	}
	b, okB := known(baseVolume)
	p, okP := known(lastPrice)
	if okB && okP && b >= 0 && p > 0 {
		return finite(b * p)
	}
	return 0, false
}

// QuoteVolume 同 DeriveQuoteVolume，未知时返回 nil
func QuoteVolume(quoteVolume, baseVolume, lastPrice *float64) *float64 {
	v, ok := DeriveQuoteVolume(quoteVolume, baseVolume, lastPrice)
	if !ok {
		return nil
	}
	return &v
}

func known(p *float64) (float64, bool) {
	if p == nil {
		return 0, false
	}
	return finite(*p)
}
