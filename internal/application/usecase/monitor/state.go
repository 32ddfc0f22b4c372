package monitor

import (
	"sort"
	"sync"

	"xtick/internal/application/port"
	"xtick/internal/application/usecase/aggregate"
	"xtick/internal/domain"
)

// State 两次刷盘之间发生变化的 key，只保留每个 key 的最新记录
type State struct {
	mu    sync.Mutex
	dirty map[domain.PriceKey]aggregate.Entry
	marks uint64
}

func NewState() *State {
	return &State{dirty: make(map[domain.PriceKey]aggregate.Entry)}
}

// Apply 记录一次变化
func (s *State) Apply(ch aggregate.Change) {
	s.mu.Lock()
	s.dirty[ch.Key] = ch.Entry
	s.marks++
	s.mu.Unlock()
}

// Pending 待刷盘的 key 数
func (s *State) Pending() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.dirty)
}

// Drain 取出并清空待刷盘记录，按 key 排序
func (s *State) Drain() []port.LatestTicker {
	s.mu.Lock()
	dirty := s.dirty
	s.dirty = make(map[domain.PriceKey]aggregate.Entry, len(dirty))
	s.mu.Unlock()

	out := make([]port.LatestTicker, 0, len(dirty))
	for k, e := range dirty {
		out = append(out, toRow(k, e))
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Key < out[j].Key })
	return out
}

func toRow(k domain.PriceKey, e aggregate.Entry) port.LatestTicker {
	ex, sym := k.Split()
	row := port.LatestTicker{
		Key:                 string(k),
		Exchange:            ex,
		Symbol:              sym,
		Price:               e.Latest.Price,
		Change24h:           e.Latest.Change24h,
		Volume24h:           e.Latest.Volume24h,
		ChangePrice:         e.Latest.ChangePrice,
		PriceObservedAt:     e.PriceObservedAt.UnixMilli(),
		PriceSampleCount:    e.PriceSampleCount,
		ExtendedSampleCount: e.ExtendedSampleCount,
	}
	if !e.ExtendedObservedAt.IsZero() {
		row.ExtendedObservedAt = e.ExtendedObservedAt.UnixMilli()
	}
	return row
}
