// Package consumer 在聚合存储的原始时间戳之上叠加就绪度判定。
// 存储只负责如实记录观测时间，何时算"过期"由消费方决定。
package consumer

import (
	"fmt"
	"time"

	"xtick/internal/application/usecase/aggregate"
)

// Freshness 单个字段组的就绪度
type Freshness int

const (
	Never Freshness = iota // 从未观测到
	Stale                  // 有值但不可信（过旧或样本不足）
	Fresh
)

func (f Freshness) String() string {
	switch f {
	case Fresh:
		return "fresh"
	case Stale:
		return "stale"
	default:
		return "never"
	}
}

func (f Freshness) MarshalText() ([]byte, error) { return []byte(f.String()), nil }

func (f *Freshness) UnmarshalText(b []byte) error {
	switch string(b) {
	case "fresh":
		*f = Fresh
	case "stale":
		*f = Stale
	case "never":
		*f = Never
	default:
		return fmt.Errorf("unknown freshness %q", b)
	}
	return nil
}

// Readiness 价格与扩展字段分别判定
type Readiness struct {
	Price    Freshness `json:"price"`
	Extended Freshness `json:"extended"`
}

// Ready 价格可用于展示
func (r Readiness) Ready() bool { return r.Price == Fresh }

// Policy 就绪度阈值
type Policy struct {
	PriceMaxAge        time.Duration
	ExtendedMaxAge     time.Duration
	MinExtendedSamples uint64
}

// DefaultPolicy 价格 15s，扩展字段 20s 且至少 2 个样本
func DefaultPolicy() Policy {
	return Policy{
		PriceMaxAge:        15 * time.Second,
		ExtendedMaxAge:     20 * time.Second,
		MinExtendedSamples: 2,
	}
}

func (p Policy) withDefaults() Policy {
	d := DefaultPolicy()
	if p.PriceMaxAge <= 0 {
		p.PriceMaxAge = d.PriceMaxAge
	}
	if p.ExtendedMaxAge <= 0 {
		p.ExtendedMaxAge = d.ExtendedMaxAge
	}
	if p.MinExtendedSamples == 0 {
		p.MinExtendedSamples = d.MinExtendedSamples
	}
	return p
}

// Evaluate 按 now 判定一条记录
func (p Policy) Evaluate(e aggregate.Entry, now time.Time) Readiness {
	var r Readiness

	switch {
	case e.PriceSampleCount == 0 || e.PriceObservedAt.IsZero():
		r.Price = Never
	case now.Sub(e.PriceObservedAt) > p.PriceMaxAge:
		r.Price = Stale
	default:
		r.Price = Fresh
	}

	switch {
	case e.ExtendedSampleCount == 0 || e.ExtendedObservedAt.IsZero():
		r.Extended = Never
	case e.ExtendedSampleCount < p.MinExtendedSamples:
		// 刚重连的第一条样本不当作趋势
		r.Extended = Stale
	case now.Sub(e.ExtendedObservedAt) > p.ExtendedMaxAge:
		r.Extended = Stale
	default:
		r.Extended = Fresh
	}
	return r
}
