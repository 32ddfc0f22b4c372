package connector

import "time"

// Backoff 指数退避，带上限
type Backoff struct {
	Initial time.Duration
	Max     time.Duration
	Factor  float64

	cur time.Duration
}

func NewBackoff(initial, max time.Duration, factor float64) *Backoff {
	if initial <= 0 {
		initial = time.Second
	}
	if max < initial {
		max = initial
	}
	if factor < 1 {
		factor = 2
	}
	return &Backoff{Initial: initial, Max: max, Factor: factor}
}

// Next 返回本次等待时长并推进到下一档
func (b *Backoff) Next() time.Duration {
	if b.cur <= 0 {
		b.cur = b.Initial
		return b.cur
	}
	b.cur = minDur(time.Duration(float64(b.cur)*b.Factor), b.Max)
	return b.cur
}

// Reset 连接成功后回到初始延迟
func (b *Backoff) Reset() { b.cur = 0 }

func minDur(a, b time.Duration) time.Duration {
	if a < b {
		return a
	}
	return b
}
