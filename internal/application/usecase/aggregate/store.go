// Package aggregate 维护所有连接器汇入的最新行情表。
// 写入通过互斥锁串行化（单写者），读取只能通过 Snapshot 拷贝或 Subscribe 推送。
package aggregate

import (
	"math"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog/log"

	"xtick/internal/application/port"
	"xtick/internal/domain"
)

// Entry 单个 PriceKey 的聚合记录
type Entry struct {
	Latest domain.TickerUpdate

	PriceObservedAt    time.Time // 只在价格被观测时前移
	ExtendedObservedAt time.Time // 只在扩展字段变化时前移

	PriceSampleCount    uint64
	ExtendedSampleCount uint64

	Direction domain.Direction // 相对上一个价格
}

func (e Entry) clone() Entry {
	out := e
	out.Latest = e.Latest.Clone()
	return out
}

// Change 一次 Ingest 产生的可观测变化
type Change struct {
	Key             domain.PriceKey
	Entry           Entry
	PriceChanged    bool
	ExtendedChanged bool
}

// Listener 订阅回调
type Listener func(Change)

// Starter 保证订阅前连接器已在运行（由 Registry 实现，需幂等）
type Starter interface {
	Start() error
}

// listenerSlot 调用期间持有读锁；注销时取写锁，等待进行中的调用结束
type listenerSlot struct {
	id uint64
	fn Listener

	mu     sync.RWMutex
	active bool
}

// Store 聚合存储
type Store struct {
	mu      sync.Mutex
	entries map[domain.PriceKey]*Entry

	lmu       sync.RWMutex
	listeners []*listenerSlot
	nextID    uint64

	now func() time.Time

	startMu sync.Mutex
	starter Starter
	started bool

	ingested atomic.Uint64
	dropped  atomic.Uint64
}

// Option 存储选项
type Option func(*Store)

// WithClock 替换时钟（测试用）
func WithClock(now func() time.Time) Option {
	return func(s *Store) {
		if now != nil {
			s.now = now
		}
	}
}

// NewStore 创建聚合存储
func NewStore(opts ...Option) *Store {
	s := &Store{
		entries: make(map[domain.PriceKey]*Entry),
		now:     time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// UseStarter 设置 Subscribe 时需要保证已启动的组件
func (s *Store) UseStarter(st Starter) {
	s.startMu.Lock()
	s.starter = st
	s.startMu.Unlock()
}

// Ingest 合并一条行情，返回是否产生了可观测变化
//
// 价格：每条有效行情都是一次价格观测（时间戳前移、计数 +1）
// 扩展字段：逐字段合并，nil 与非有限值不覆盖已有值；至少一个字段变化才前移时间戳与计数
func (s *Store) Ingest(u domain.TickerUpdate) bool {
	if !u.Valid() {
		s.dropped.Add(1)
		log.Debug().Str("key", string(u.Key)).Float64("price", u.Price).Msg("invalid ticker dropped")
		return false
	}

	s.mu.Lock()
	now := s.now()

	e, ok := s.entries[u.Key]
	if !ok {
		e = &Entry{Latest: domain.TickerUpdate{Key: u.Key}}
		s.entries[u.Key] = e
	}

	priceChanged := !ok || e.Latest.Price != u.Price
	if ok {
		e.Direction = domain.DirectionOf(e.Latest.Price, u.Price)
	}
	e.Latest.Price = u.Price
	e.PriceObservedAt = later(e.PriceObservedAt, now)
	e.PriceSampleCount++

	extChanged := mergeField(&e.Latest.Change24h, u.Change24h)
	extChanged = mergeField(&e.Latest.Volume24h, u.Volume24h) || extChanged
	extChanged = mergeField(&e.Latest.ChangePrice, u.ChangePrice) || extChanged
	if extChanged {
		e.ExtendedObservedAt = later(e.ExtendedObservedAt, now)
		e.ExtendedSampleCount++
	}

	var ch Change
	if priceChanged || extChanged {
		ch = Change{Key: u.Key, Entry: e.clone(), PriceChanged: priceChanged, ExtendedChanged: extChanged}
	}
	s.mu.Unlock()

	s.ingested.Add(1)
	if !priceChanged && !extChanged {
		return false
	}
	s.notify(ch)
	return true
}

func mergeField(dst **float64, src *float64) bool {
	// 非有限值视为未知
	if src == nil || math.IsNaN(*src) || math.IsInf(*src, 0) || domain.SameFloat(*dst, src) {
		return false
	}
	v := *src
	*dst = &v
	return true
}

// 时间戳只前移
func later(prev, now time.Time) time.Time {
	if now.After(prev) {
		return now
	}
	return prev
}

func (s *Store) notify(ch Change) {
	s.lmu.RLock()
	slots := make([]*listenerSlot, len(s.listeners))
	copy(slots, s.listeners)
	s.lmu.RUnlock()

	for _, slot := range slots {
		s.invoke(slot, ch)
	}
}

// invoke 隔离单个订阅者的 panic
func (s *Store) invoke(slot *listenerSlot, ch Change) {
	slot.mu.RLock()
	defer slot.mu.RUnlock()
	if !slot.active {
		return
	}
	defer func() {
		if r := recover(); r != nil {
			log.Error().
				Uint64("listener", slot.id).
				Str("key", string(ch.Key)).
				Interface("panic", r).
				Msg("listener panicked")
		}
	}()
	slot.fn(ch)
}

// Subscribe 注册监听器，返回注销函数
// 返回前保证 Starter 已启动
// 注销函数返回后监听器不会再被调用；不可在该监听器自身回调内调用（会死锁）
func (s *Store) Subscribe(l Listener) port.Unsubscribe {
	if l == nil {
		return func() {}
	}
	s.ensureStarted()

	s.lmu.Lock()
	s.nextID++
	id := s.nextID
	slot := &listenerSlot{id: id, fn: l, active: true}
	s.listeners = append(s.listeners, slot)
	s.lmu.Unlock()

	var once sync.Once
	return func() {
		once.Do(func() {
			s.lmu.Lock()
			for i, sl := range s.listeners {
				if sl == slot {
					s.listeners = append(s.listeners[:i], s.listeners[i+1:]...)
					break
				}
			}
			s.lmu.Unlock()

			// 已拷贝到 notify 中的 slot 也不会再被调用
			slot.mu.Lock()
			slot.active = false
			slot.mu.Unlock()
		})
	}
}

func (s *Store) ensureStarted() {
	s.startMu.Lock()
	defer s.startMu.Unlock()
	if s.started || s.starter == nil {
		return
	}
	s.started = true
	if err := s.starter.Start(); err != nil {
		log.Error().Err(err).Msg("starter failed")
	}
}

// Snapshot 返回某一时刻的深拷贝
func (s *Store) Snapshot() map[domain.PriceKey]Entry {
	s.mu.Lock()
	defer s.mu.Unlock()

	out := make(map[domain.PriceKey]Entry, len(s.entries))
	for k, e := range s.entries {
		out[k] = e.clone()
	}
	return out
}

// Get 返回单个 key 的拷贝
func (s *Store) Get(key domain.PriceKey) (Entry, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	e, ok := s.entries[key]
	if !ok {
		return Entry{}, false
	}
	return e.clone(), true
}

// Keys 已观测到的 key，按字母序
func (s *Store) Keys() []domain.PriceKey {
	s.mu.Lock()
	keys := make([]domain.PriceKey, 0, len(s.entries))
	for k := range s.entries {
		keys = append(keys, k)
	}
	s.mu.Unlock()

	sort.Slice(keys, func(i, j int) bool { return keys[i] < keys[j] })
	return keys
}

// Stats 已合并与已丢弃的行情数
func (s *Store) Stats() (ingested, dropped uint64) {
	return s.ingested.Load(), s.dropped.Load()
}
