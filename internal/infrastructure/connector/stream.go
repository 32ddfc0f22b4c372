package connector

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog/log"

	"xtick/internal/domain"
)

// Stream WebSocket 推送通道
type Stream struct {
	URL    string
	Header http.Header

	// Handshake 连接建立后发送订阅消息
	Handshake func(conn *websocket.Conn) error
	// Ping 应用层心跳；为空时发送控制帧 ping
	Ping func(conn *websocket.Conn) error

	Parse Parser
}

// TextPing 发送纯文本心跳（如 "ping"、"PING"）
func TextPing(payload string) func(conn *websocket.Conn) error {
	return func(conn *websocket.Conn) error {
		_ = conn.SetWriteDeadline(time.Now().Add(5 * time.Second))
		return conn.WriteMessage(websocket.TextMessage, []byte(payload))
	}
}

// JSONPing 发送 JSON 心跳（如 {"op":"ping"}）
func JSONPing(v any) func(conn *websocket.Conn) error {
	return func(conn *websocket.Conn) error {
		_ = conn.SetWriteDeadline(time.Now().Add(5 * time.Second))
		return conn.WriteJSON(v)
	}
}

// SubscribeJSON 依次发送订阅消息
func SubscribeJSON(msgs ...any) func(conn *websocket.Conn) error {
	return func(conn *websocket.Conn) error {
		_ = conn.SetWriteDeadline(time.Now().Add(5 * time.Second))
		defer func() { _ = conn.SetWriteDeadline(time.Time{}) }()
		for _, m := range msgs {
			if err := conn.WriteJSON(m); err != nil {
				return err
			}
		}
		return nil
	}
}

// runStream 建立一次推送连接并阻塞到断开
// opened 表示连接曾进入 Open（用于重置退避）
func (c *Connector) runStream(ctx context.Context, sess *session) (opened bool, err error) {
	st := c.spec.Stream

	log.Warn().Str("feed", c.spec.ID).Str("url", st.URL).Msg("ws connecting")
	dctx, cancel := context.WithTimeout(ctx, c.opts.DialTimeout)
	conn, _, err := c.dialer.DialContext(dctx, st.URL, st.Header)
	cancel()
	if err != nil {
		return false, fmt.Errorf("dial: %w", err)
	}
	defer conn.Close()

	if st.Handshake != nil {
		if err := st.Handshake(conn); err != nil {
			return false, fmt.Errorf("subscribe: %w", err)
		}
	}

	c.setState(domain.StateOpen)
	log.Info().Str("feed", c.spec.ID).Msg("ws connected")

	sctx, scancel := context.WithCancel(ctx)
	fallbackDone := c.startFallback(sctx, sess)

	err = c.readLoop(sctx, conn, func(b []byte) int {
		n := c.handle(b, st.Parse, fromStream)
		if n > 0 {
			sess.markProven()
		}
		return n
	})

	scancel()
	<-fallbackDone
	return true, err
}

// startFallback 推送流在宽限期内没有有效数据时启用轮询，直到推送流恢复或本次连接结束
func (c *Connector) startFallback(ctx context.Context, sess *session) <-chan struct{} {
	done := make(chan struct{})
	if c.spec.Poll == nil || sess.isProven() {
		close(done)
		return done
	}

	go func() {
		defer close(done)

		t := time.NewTimer(c.opts.FallbackGrace)
		defer t.Stop()
		select {
		case <-ctx.Done():
			return
		case <-sess.proven:
			return
		case <-t.C:
		}

		log.Warn().
			Str("feed", c.spec.ID).
			Dur("grace", c.opts.FallbackGrace).
			Msg("no stream data, falling back to polling")
		c.fallback.Store(true)
		defer c.fallback.Store(false)

		_, _ = c.pollLoop(ctx, sess.proven, true)

		if sess.isProven() {
			log.Info().Str("feed", c.spec.ID).Msg("stream live, polling stopped")
		}
	}()
	return done
}

// readLoop 读消息直到出错或 ctx 取消；返回前保证读 goroutine 已退出
// 空闲计时只由产出有效行情的消息重置，心跳回应与控制消息不算
func (c *Connector) readLoop(ctx context.Context, conn *websocket.Conn, onMsg func([]byte) int) error {
	idle := c.opts.IdleTimeout
	_ = conn.SetReadDeadline(time.Now().Add(idle))

	pingTicker := time.NewTicker(c.opts.HeartbeatEvery)
	defer pingTicker.Stop()

	errCh := make(chan error, 1)
	go func() {
		for {
			_, b, err := conn.ReadMessage()
			if err != nil {
				errCh <- err
				return
			}
			if onMsg(b) > 0 {
				_ = conn.SetReadDeadline(time.Now().Add(idle))
			}
		}
	}()

	var err error
loop:
	for {
		select {
		case <-ctx.Done():
			err = ctx.Err()
			break loop
		case rerr := <-errCh:
			return rerr
		case <-pingTicker.C:
			if perr := c.ping(conn); perr != nil {
				err = fmt.Errorf("ping: %w", perr)
				break loop
			}
		}
	}

	_ = conn.Close()
	<-errCh
	return err
}

func (c *Connector) ping(conn *websocket.Conn) error {
	if p := c.spec.Stream.Ping; p != nil {
		return p(conn)
	}
	return conn.WriteControl(websocket.PingMessage, []byte("ping"), time.Now().Add(5*time.Second))
}
