package connector

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/rs/zerolog/log"

	"xtick/internal/domain"
)

// maxBody 单次轮询响应上限
const maxBody = 8 << 20

// Poll HTTP 轮询通道
type Poll struct {
	URL    string
	Header http.Header
	Parse  Parser
}

// pollLoop 按固定间隔拉取
// tolerant=true（回退模式）时单次失败只记日志；否则失败即返回，交由重连循环退避
// stop 关闭时正常返回
func (c *Connector) pollLoop(ctx context.Context, stop <-chan struct{}, tolerant bool) (opened bool, err error) {
	p := c.spec.Poll

	ticker := time.NewTicker(c.opts.PollInterval)
	defer ticker.Stop()

	for {
		body, ferr := c.fetch(ctx, p)
		switch {
		case ferr != nil && ctx.Err() != nil:
			return opened, ctx.Err()
		case ferr != nil && !tolerant:
			return opened, ferr
		case ferr != nil:
			log.Warn().Str("feed", c.spec.ID).Err(ferr).Msg("fallback poll failed")
		default:
			if !tolerant && !opened {
				opened = true
				c.setState(domain.StateOpen)
				log.Info().Str("feed", c.spec.ID).Str("url", p.URL).Msg("polling")
			}
			c.handle(body, p.Parse, fromPoll)
		}

		select {
		case <-ctx.Done():
			return opened, ctx.Err()
		case <-stop:
			return opened, nil
		case <-ticker.C:
		}
	}
}

func (c *Connector) fetch(ctx context.Context, p *Poll) ([]byte, error) {
	if err := c.limiter.Wait(ctx); err != nil {
		return nil, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, p.URL, nil)
	if err != nil {
		return nil, err
	}
	for k, vs := range p.Header {
		for _, v := range vs {
			req.Header.Add(k, v)
		}
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxBody))
	if err != nil {
		return nil, err
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		if len(body) > 200 {
			body = body[:200]
		}
		return nil, fmt.Errorf("%s http %d: %s", c.spec.ID, resp.StatusCode, string(body))
	}
	return body, nil
}
