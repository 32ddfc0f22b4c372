package port

import (
	"time"

	"xtick/internal/domain"
)

// Callback 接收规范化后的行情
type Callback func(domain.TickerUpdate)

// Unsubscribe 注销回调；最后一个回调注销时连接器断开并停止重试
type Unsubscribe func()

// Connector 拥有一个外部行情源（WebSocket 或 HTTP 轮询）
type Connector interface {
	ID() string
	Group() domain.Group
	Market() domain.Market

	// ConnectExtended 开始连接并对每条有效行情调用 cb
	// 多次调用不会打开多个连接
	ConnectExtended(cb Callback) Unsubscribe

	// Disconnect 幂等；取消待执行的重连，关闭连接
	// 返回后不会再有回调被调用
	Disconnect()

	State() domain.ConnectorState
	Stats() ConnectorStats
}

// ConnectorStats 连接器运行统计
type ConnectorStats struct {
	ID             string    `json:"id"`
	State          string    `json:"state"`
	Messages       uint64    `json:"messages"`
	Updates        uint64    `json:"updates"`
	Dropped        uint64    `json:"dropped"`
	Reconnects     uint64    `json:"reconnects"`
	FallbackActive bool      `json:"fallback_active"`
	LastMessageAt  time.Time `json:"last_message_at"`
}
