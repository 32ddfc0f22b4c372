// Package connector 提供所有交易所共用的连接运行时：
// 状态机、指数退避、心跳与空闲检测、推送流无数据时回退到 HTTP 轮询。
// 各交易所只需提供订阅握手与解析函数。
package connector

import (
	"context"
	"errors"
	"net/http"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog/log"
	"golang.org/x/time/rate"

	"xtick/internal/application/port"
	"xtick/internal/domain"
)

// ErrNoTransport 既没有推送流也没有轮询
var ErrNoTransport = errors.New("connector has neither stream nor poll transport")

// Parser 把一条原始消息映射为零或多条规范化行情
// 无法映射为正价格的消息必须返回空
type Parser func(raw []byte) []domain.TickerUpdate

// Options 运行参数
type Options struct {
	BackoffInitial time.Duration
	BackoffMax     time.Duration
	BackoffFactor  float64
	DialTimeout    time.Duration
	HeartbeatEvery time.Duration // 应用层/控制帧 ping 间隔
	IdleTimeout    time.Duration // 超过该时长无入站数据视为断开
	FallbackGrace  time.Duration // 推送流建立后多久无数据则启用轮询
	PollInterval   time.Duration
	HTTPTimeout    time.Duration
}

// DefaultOptions 默认参数
func DefaultOptions() Options {
	return Options{
		BackoffInitial: time.Second,
		BackoffMax:     30 * time.Second,
		BackoffFactor:  2,
		DialTimeout:    10 * time.Second,
		HeartbeatEvery: 25 * time.Second,
		IdleTimeout:    60 * time.Second,
		FallbackGrace:  5 * time.Second,
		PollInterval:   2 * time.Second,
		HTTPTimeout:    10 * time.Second,
	}
}

func (o Options) withDefaults() Options {
	d := DefaultOptions()
	if o.BackoffInitial <= 0 {
		o.BackoffInitial = d.BackoffInitial
	}
	if o.BackoffMax <= 0 {
		o.BackoffMax = d.BackoffMax
	}
	if o.BackoffFactor < 1 {
		o.BackoffFactor = d.BackoffFactor
	}
	if o.DialTimeout <= 0 {
		o.DialTimeout = d.DialTimeout
	}
	if o.HeartbeatEvery <= 0 {
		o.HeartbeatEvery = d.HeartbeatEvery
	}
	if o.IdleTimeout <= o.HeartbeatEvery {
		o.IdleTimeout = 2*o.HeartbeatEvery + o.HeartbeatEvery/2
	}
	if o.FallbackGrace <= 0 {
		o.FallbackGrace = d.FallbackGrace
	}
	if o.PollInterval <= 0 {
		o.PollInterval = d.PollInterval
	}
	if o.HTTPTimeout <= 0 {
		o.HTTPTimeout = d.HTTPTimeout
	}
	return o
}

// Spec 描述一个连接器
type Spec struct {
	ID      string
	Group   domain.Group
	Market  domain.Market
	Stream  *Stream // 主通道，可为空
	Poll    *Poll   // 纯轮询或推送流的回退通道
	Options Options

	// OnState 状态变化回调（测试与监控用），在连接器 goroutine 中调用
	OnState func(domain.ConnectorState)
}

// Connector 通用连接器，实现 port.Connector
type Connector struct {
	spec   Spec
	opts   Options
	dialer *websocket.Dialer
	client *http.Client

	limiter *rate.Limiter

	mu     sync.Mutex // 保护 cancel/done
	cancel context.CancelFunc
	done   chan struct{}

	cbMu      sync.RWMutex
	callbacks []cbSlot
	nextCB    uint64
	emitMu    sync.Mutex // 串行化回调，推送与回退轮询并发时保持单线程投递

	state atomic.Int32

	messages   atomic.Uint64
	updates    atomic.Uint64
	dropped    atomic.Uint64
	reconnects atomic.Uint64
	lastMsg    atomic.Int64
	fallback   atomic.Bool
}

type cbSlot struct {
	id uint64
	fn port.Callback
}

var _ port.Connector = (*Connector)(nil)

// New 创建连接器
func New(spec Spec) (*Connector, error) {
	if spec.Stream == nil && spec.Poll == nil {
		return nil, ErrNoTransport
	}
	opts := spec.Options.withDefaults()
	c := &Connector{
		spec: spec,
		opts: opts,
		dialer: &websocket.Dialer{
			Proxy:             http.ProxyFromEnvironment,
			HandshakeTimeout:  opts.DialTimeout,
			EnableCompression: true,
		},
		client:  &http.Client{Timeout: opts.HTTPTimeout},
		limiter: rate.NewLimiter(rate.Every(opts.PollInterval/2), 1),
	}
	return c, nil
}

func (c *Connector) ID() string            { return c.spec.ID }
func (c *Connector) Group() domain.Group   { return c.spec.Group }
func (c *Connector) Market() domain.Market { return c.spec.Market }

func (c *Connector) State() domain.ConnectorState {
	return domain.ConnectorState(c.state.Load())
}

func (c *Connector) Stats() port.ConnectorStats {
	var last time.Time
	if ns := c.lastMsg.Load(); ns > 0 {
		last = time.Unix(0, ns)
	}
	return port.ConnectorStats{
		ID:             c.spec.ID,
		State:          c.State().String(),
		Messages:       c.messages.Load(),
		Updates:        c.updates.Load(),
		Dropped:        c.dropped.Load(),
		Reconnects:     c.reconnects.Load(),
		FallbackActive: c.fallback.Load(),
		LastMessageAt:  last,
	}
}

// ConnectExtended 注册回调并在未运行时启动连接循环
// 注意：不要在回调内部调用 Disconnect 或返回的注销函数
func (c *Connector) ConnectExtended(cb port.Callback) port.Unsubscribe {
	if cb == nil {
		return func() {}
	}

	c.mu.Lock()
	c.cbMu.Lock()
	c.nextCB++
	id := c.nextCB
	c.callbacks = append(c.callbacks, cbSlot{id: id, fn: cb})
	c.cbMu.Unlock()

	if c.cancel == nil {
		ctx, cancel := context.WithCancel(context.Background())
		done := make(chan struct{})
		c.cancel = cancel
		c.done = done
		go c.run(ctx, done)
	}
	c.mu.Unlock()

	var once sync.Once
	return func() {
		once.Do(func() {
			if c.removeCallback(id) == 0 {
				c.Disconnect()
			}
		})
	}
}

// removeCallback 返回剩余回调数；id 不存在时（已被 Disconnect 清空）返回 -1
func (c *Connector) removeCallback(id uint64) int {
	c.cbMu.Lock()
	defer c.cbMu.Unlock()
	for i, slot := range c.callbacks {
		if slot.id == id {
			c.callbacks = append(c.callbacks[:i], c.callbacks[i+1:]...)
			return len(c.callbacks)
		}
	}
	return -1
}

// Disconnect 幂等；返回后不会再有回调
func (c *Connector) Disconnect() {
	c.mu.Lock()
	cancel, done := c.cancel, c.done
	c.cancel, c.done = nil, nil
	c.cbMu.Lock()
	c.callbacks = nil
	c.cbMu.Unlock()
	c.mu.Unlock()

	if cancel == nil {
		return
	}
	cancel()
	<-done

	c.mu.Lock()
	if c.cancel == nil {
		c.setState(domain.StateDisconnected)
	}
	c.mu.Unlock()
	log.Info().Str("feed", c.spec.ID).Msg("disconnected")
}

func (c *Connector) setState(s domain.ConnectorState) {
	if domain.ConnectorState(c.state.Swap(int32(s))) == s {
		return
	}
	if c.spec.OnState != nil {
		c.spec.OnState(s)
	}
}

// run 连接循环：Connecting -> Open -> Backoff -> Connecting ...
func (c *Connector) run(ctx context.Context, done chan struct{}) {
	defer close(done)

	bo := NewBackoff(c.opts.BackoffInitial, c.opts.BackoffMax, c.opts.BackoffFactor)
	sess := &session{proven: make(chan struct{})}

	for {
		if ctx.Err() != nil {
			return
		}

		c.setState(domain.StateConnecting)

		var (
			opened bool
			err    error
		)
		if c.spec.Stream != nil {
			opened, err = c.runStream(ctx, sess)
		} else {
			opened, err = c.pollLoop(ctx, nil, false)
		}

		if ctx.Err() != nil {
			return
		}
		if opened {
			bo.Reset()
		}

		delay := bo.Next()
		c.reconnects.Add(1)
		c.setState(domain.StateBackoff)
		log.Warn().
			Str("feed", c.spec.ID).
			Err(err).
			Int64("delay_ms", delay.Milliseconds()).
			Msg("feed disconnected, reconnecting")

		timer := time.NewTimer(delay)
		select {
		case <-ctx.Done():
			timer.Stop()
			return
		case <-timer.C:
		}
	}
}

// session 从 ConnectExtended 到 Disconnect 的一次会话
// 推送流一旦产生过有效数据，本会话不再启用轮询回退
type session struct {
	once   sync.Once
	proven chan struct{}
}

func (s *session) markProven() { s.once.Do(func() { close(s.proven) }) }

func (s *session) isProven() bool {
	select {
	case <-s.proven:
		return true
	default:
		return false
	}
}

type source int

const (
	fromStream source = iota
	fromPoll
)

// handle 解析并投递一条原始消息，返回产生的有效行情数
func (c *Connector) handle(raw []byte, parse Parser, src source) int {
	c.messages.Add(1)
	c.lastMsg.Store(time.Now().UnixNano())

	ups := parse(raw)
	if len(ups) == 0 {
		c.dropped.Add(1)
		return 0
	}

	n := 0
	for _, u := range ups {
		if !u.Valid() {
			c.dropped.Add(1)
			log.Debug().
				Str("feed", c.spec.ID).
				Str("key", string(u.Key)).
				Bool("poll", src == fromPoll).
				Msg("invalid ticker dropped")
			continue
		}
		c.emit(u)
		n++
	}
	if n > 0 {
		c.updates.Add(uint64(n))
	}
	return n
}

func (c *Connector) emit(u domain.TickerUpdate) {
	c.emitMu.Lock()
	defer c.emitMu.Unlock()

	c.cbMu.RLock()
	slots := make([]cbSlot, len(c.callbacks))
	copy(slots, c.callbacks)
	c.cbMu.RUnlock()

	for _, slot := range slots {
		slot.fn(u)
	}
}
