package consumer

import (
	"sort"
	"strings"
	"time"

	"xtick/internal/application/port"
	"xtick/internal/application/usecase/aggregate"
	"xtick/internal/domain"
)

// Source 消费方能看到的全部存储接口：只读
type Source interface {
	Subscribe(l aggregate.Listener) port.Unsubscribe
	Snapshot() map[domain.PriceKey]aggregate.Entry
	Get(key domain.PriceKey) (aggregate.Entry, bool)
}

// Quote 带就绪度标注的行情
type Quote struct {
	Key         domain.PriceKey `json:"key"`
	Exchange    string          `json:"exchange"`
	Symbol      string          `json:"symbol"`
	Price       float64         `json:"price"`
	Change24h   *float64        `json:"change_24h"`
	Volume24h   *float64        `json:"volume_24h"`
	ChangePrice *float64        `json:"change_price,omitempty"`
	Direction   string          `json:"direction"`

	PriceAgeMs    int64     `json:"price_age_ms"`
	ExtendedAgeMs *int64    `json:"extended_age_ms,omitempty"`
	Readiness     Readiness `json:"readiness"`
}

// Filter 选择 key；nil 表示全部
type Filter func(domain.PriceKey) bool

// ByExchange 只保留指定交易所
func ByExchange(ids ...string) Filter {
	set := make(map[string]struct{}, len(ids))
	for _, id := range ids {
		set[id] = struct{}{}
	}
	return func(k domain.PriceKey) bool {
		ex, _ := k.Split()
		_, ok := set[ex]
		return ok
	}
}

// BySymbol 只保留指定币种
func BySymbol(symbol string) Filter {
	want := strings.ToUpper(strings.TrimSpace(symbol))
	return func(k domain.PriceKey) bool {
		_, s := k.Split()
		return s == want
	}
}

// View 消费方视图
type View struct {
	src    Source
	policy Policy
	now    func() time.Time
}

func NewView(src Source, p Policy) *View {
	return &View{src: src, policy: p.withDefaults(), now: time.Now}
}

func (v *View) Policy() Policy { return v.policy }

// Quotes 按 key 排序返回当前快照
func (v *View) Quotes(filter Filter) []Quote {
	snap := v.src.Snapshot()
	now := v.now()

	out := make([]Quote, 0, len(snap))
	for k, e := range snap {
		if filter != nil && !filter(k) {
			continue
		}
		out = append(out, v.quote(k, e, now))
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Key < out[j].Key })
	return out
}

// Quote 单个 key；从未观测到时 ok=false
func (v *View) Quote(key domain.PriceKey) (Quote, bool) {
	e, ok := v.src.Get(key)
	if !ok {
		return Quote{Key: key}, false
	}
	return v.quote(key, e, v.now()), true
}

// Watch 每次存储产生可观测变化时推送
func (v *View) Watch(fn func(Quote)) port.Unsubscribe {
	return v.src.Subscribe(func(c aggregate.Change) {
		fn(v.quote(c.Key, c.Entry, v.now()))
	})
}

func (v *View) quote(k domain.PriceKey, e aggregate.Entry, now time.Time) Quote {
	ex, sym := k.Split()
	q := Quote{
		Key:         k,
		Exchange:    ex,
		Symbol:      sym,
		Price:       e.Latest.Price,
		Change24h:   e.Latest.Change24h,
		Volume24h:   e.Latest.Volume24h,
		ChangePrice: e.Latest.ChangePrice,
		Direction:   e.Direction.String(),
		PriceAgeMs:  now.Sub(e.PriceObservedAt).Milliseconds(),
		Readiness:   v.policy.Evaluate(e, now),
	}
	if !e.ExtendedObservedAt.IsZero() {
		age := now.Sub(e.ExtendedObservedAt).Milliseconds()
		q.ExtendedAgeMs = &age
	}
	return q
}

// Tally 就绪度计数
type Tally struct {
	Keys          int `json:"keys"`
	PriceFresh    int `json:"price_fresh"`
	PriceStale    int `json:"price_stale"`
	ExtendedFresh int `json:"extended_fresh"`
	ExtendedStale int `json:"extended_stale"`
	ExtendedNever int `json:"extended_never"`
}

// Count 统计一组行情的就绪度
func Count(quotes []Quote) Tally {
	var t Tally
	for _, q := range quotes {
		t.Keys++
		switch q.Readiness.Price {
		case Fresh:
			t.PriceFresh++
		case Stale:
			t.PriceStale++
		}
		switch q.Readiness.Extended {
		case Fresh:
			t.ExtendedFresh++
		case Stale:
			t.ExtendedStale++
		default:
			t.ExtendedNever++
		}
	}
	return t
}
