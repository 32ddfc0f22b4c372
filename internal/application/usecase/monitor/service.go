package monitor

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"xtick/internal/application/port"
	"xtick/internal/application/usecase/aggregate"
	"xtick/internal/application/usecase/consumer"

	"github.com/rs/zerolog/log"
)

type ServiceDeps struct {
	Source         consumer.Source
	View           *consumer.View
	Connectors     Connectors
	Repo           port.Repository
	FlushInterval  time.Duration
	ReportInterval time.Duration
}

// Service 常驻订阅者：保持连接器运行，把变化批量镜像到存储，并定期输出就绪度报告
type Service struct {
	deps ServiceDeps
	st   *State
}

func NewService(deps ServiceDeps) *Service {
	if deps.Repo == nil {
		deps.Repo = NewNoopRepo()
	}
	if deps.View == nil && deps.Source != nil {
		deps.View = consumer.NewView(deps.Source, consumer.DefaultPolicy())
	}
	if deps.FlushInterval <= 0 {
		deps.FlushInterval = time.Second
	}
	if deps.ReportInterval <= 0 {
		deps.ReportInterval = 5 * time.Minute
	}
	return &Service{deps: deps, st: NewState()}
}

func (s *Service) Run(ctx context.Context) error {
	if s.deps.Source == nil {
		return errors.New("no source")
	}

	// 订阅本身会启动连接器
	unsub := s.deps.Source.Subscribe(func(ch aggregate.Change) { s.st.Apply(ch) })
	defer unsub()
	log.Info().
		Dur("flush_every", s.deps.FlushInterval).
		Dur("report_every", s.deps.ReportInterval).
		Msg("monitor started")

	flushTicker := time.NewTicker(s.deps.FlushInterval)
	defer flushTicker.Stop()
	reportTicker := time.NewTicker(s.deps.ReportInterval)
	defer reportTicker.Stop()

	for {
		select {
		case <-ctx.Done():
			// 退出前最后一次刷盘
			fctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
			s.flush(fctx)
			cancel()
			return ctx.Err()

		case <-flushTicker.C:
			s.flush(ctx)

		case now := <-reportTicker.C:
			s.report(ctx, now)
		}
	}
}

func (s *Service) flush(ctx context.Context) int {
	rows := s.st.Drain()
	if len(rows) == 0 {
		return 0
	}
	if err := s.deps.Repo.UpsertLatestTickers(ctx, rows); err != nil {
		log.Warn().Err(err).Int("rows", len(rows)).Msg("mirror latest tickers failed")
	}
	return len(rows)
}

// Build 生成当前报告
func (s *Service) Build(now time.Time) Report {
	r := Report{TsMs: now.UnixMilli()}
	if s.deps.Connectors == nil {
		r.Domestic = consumer.Count(s.deps.View.Quotes(nil))
		return r
	}
	r.Domestic = consumer.Count(s.deps.View.Quotes(consumer.ByExchange(ids(s.deps.Connectors.Domestic())...)))
	r.Overseas = consumer.Count(s.deps.View.Quotes(consumer.ByExchange(ids(s.deps.Connectors.Overseas())...)))
	r.Connectors = s.deps.Connectors.Stats()
	return r
}

func (s *Service) report(ctx context.Context, now time.Time) {
	r := s.Build(now)

	ev := log.Info().
		Int("domestic_keys", r.Domestic.Keys).
		Int("domestic_fresh", r.Domestic.PriceFresh).
		Int("overseas_keys", r.Overseas.Keys).
		Int("overseas_fresh", r.Overseas.PriceFresh).
		Int("extended_never", r.Domestic.ExtendedNever+r.Overseas.ExtendedNever)
	for _, c := range r.Connectors {
		if c.State != "open" {
			ev = ev.Str(c.ID, c.State)
		}
	}
	ev.Msg("readiness report")

	b, err := json.Marshal(r)
	if err != nil {
		log.Error().Err(err).Msg("marshal report failed")
		return
	}
	if err := s.deps.Repo.InsertReport(ctx, r.TsMs, string(b)); err != nil {
		log.Warn().Err(err).Msg("persist report failed")
	}
}

func ids(cs []port.Connector) []string {
	out := make([]string, 0, len(cs))
	for _, c := range cs {
		out = append(out, c.ID())
	}
	return out
}
