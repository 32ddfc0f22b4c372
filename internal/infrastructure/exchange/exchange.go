// Package exchange 各交易所适配器共用的消息解析工具
package exchange

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"net/url"
	"strings"

	"xtick/internal/domain"
	"xtick/internal/infrastructure/normalize"
)

// Fields 一条行情的原始字段
// 用 map 解码：交易所常见大小写不同的同名字段（如 Binance 的 c/C、p/P），
// struct 解码时会被大小写不敏感匹配串位
type Fields map[string]any

// Num 数值字段，缺失或无法解析时为 nil
func (f Fields) Num(key string) *float64 {
	v, ok := f[key]
	if !ok {
		return nil
	}
	return normalize.Number(v)
}

// Str 字符串字段
func (f Fields) Str(key string) string {
	switch v := f[key].(type) {
	case string:
		return strings.TrimSpace(v)
	case json.Number:
		return v.String()
	default:
		return ""
	}
}

// Items data 可能是对象也可能是数组
type Items []Fields

func (d *Items) UnmarshalJSON(b []byte) error {
	b = BytesTrimSpace(b)
	if len(b) == 0 || string(b) == "null" {
		*d = nil
		return nil
	}
	switch b[0] {
	case '[':
		var arr []Fields
		if err := decode(b, &arr); err != nil {
			return err
		}
		*d = arr
		return nil
	case '{':
		var one Fields
		if err := decode(b, &one); err != nil {
			return err
		}
		*d = Items{one}
		return nil
	default:
		return fmt.Errorf("unexpected data json: %.64s", string(b))
	}
}

// decode 保留数字精度（json.Number）
func decode(b []byte, v any) error {
	dec := json.NewDecoder(bytes.NewReader(b))
	dec.UseNumber()
	return dec.Decode(v)
}

// ParseJSON safely parses JSON
func ParseJSON(data []byte, v any) error {
	if err := decode(data, v); err != nil {
		return fmt.Errorf("json unmarshal: %w", err)
	}
	return nil
}

// BytesTrimSpace trims whitespace from byte slice
func BytesTrimSpace(b []byte) []byte {
	return bytes.TrimSpace(b)
}

// IsPong 纯文本心跳回应（"pong"、"PONG"）或空消息
func IsPong(b []byte) bool {
	b = BytesTrimSpace(b)
	return len(b) == 0 || bytes.EqualFold(b, []byte("pong"))
}

// Ticker 由解析出的字段构造规范化行情；价格无效时 ok=false
func Ticker(exchangeID, coin string, last *float64, change, volume, changePrice *float64) (domain.TickerUpdate, bool) {
	if coin == "" || last == nil {
		return domain.TickerUpdate{}, false
	}
	u := domain.TickerUpdate{
		Key:         domain.NewPriceKey(exchangeID, coin),
		Price:       *last,
		Change24h:   change,
		Volume24h:   volume,
		ChangePrice: changePrice,
	}
	if !u.Valid() {
		return domain.TickerUpdate{}, false
	}
	return u, true
}

// Allow 订阅集合过滤（轮询接口常返回全市场）
type Allow map[string]struct{}

func NewAllow(coins []string) Allow {
	a := make(Allow, len(coins))
	for _, c := range Coins(coins) {
		a[c] = struct{}{}
	}
	return a
}

// Has 空集合表示不过滤
func (a Allow) Has(coin string) bool {
	if len(a) == 0 {
		return true
	}
	_, ok := a[strings.ToUpper(coin)]
	return ok
}

// BuildQueryURL builds a URL with query parameters
func BuildQueryURL(base, path, query string) (string, error) {
	base = strings.TrimRight(strings.TrimSpace(base), "/")
	if base == "" {
		return "", errors.New("base url is empty")
	}

	u, err := url.Parse(base)
	if err != nil {
		return "", err
	}
	if path != "" {
		u.Path = path
	}
	u.RawQuery = query
	return u.String(), nil
}
