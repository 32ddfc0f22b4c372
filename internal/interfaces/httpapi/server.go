// Package httpapi 只读 JSON 接口：快照、单个行情、连接器状态、健康检查
package httpapi

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/gorilla/mux"
	"github.com/rs/zerolog/log"

	"xtick/internal/application/port"
	"xtick/internal/application/usecase/consumer"
	"xtick/internal/domain"
)

// Connectors Registry 的只读视图
type Connectors interface {
	Group(name string) ([]port.Connector, bool)
	Stats() []port.ConnectorStats
}

type Server struct {
	server     *http.Server
	view       *consumer.View
	connectors Connectors
}

func NewServer(addr string, view *consumer.View, connectors Connectors) *Server {
	router := mux.NewRouter()
	s := &Server{
		server: &http.Server{
			Addr:              addr,
			Handler:           router,
			ReadHeaderTimeout: 5 * time.Second,
		},
		view:       view,
		connectors: connectors,
	}
	s.setupRoutes(router)
	return s
}

func (s *Server) setupRoutes(router *mux.Router) {
	api := router.PathPrefix("/api/v1").Subrouter()
	api.HandleFunc("/snapshot", s.getSnapshot).Methods(http.MethodGet)
	api.HandleFunc("/tickers/{key}", s.getTicker).Methods(http.MethodGet)
	api.HandleFunc("/connectors", s.getConnectors).Methods(http.MethodGet)

	router.HandleFunc("/healthz", s.getHealth).Methods(http.MethodGet)
}

// Handler 测试用
func (s *Server) Handler() http.Handler { return s.server.Handler }

// Start 阻塞直到 Shutdown
func (s *Server) Start() error {
	log.Info().Str("addr", s.server.Addr).Msg("http api listening")
	if err := s.server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

func (s *Server) Shutdown(ctx context.Context) error {
	return s.server.Shutdown(ctx)
}

// Close 实现 io.Closer，便于挂到关闭链
func (s *Server) Close() error {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	return s.Shutdown(ctx)
}

type snapshotResponse struct {
	TsMs   int64            `json:"ts_ms"`
	Tally  consumer.Tally   `json:"tally"`
	Quotes []consumer.Quote `json:"quotes"`
}

// GET /api/v1/snapshot?group=domestic|overseas|futures&symbol=BTC
func (s *Server) getSnapshot(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()

	var filters []consumer.Filter
	if g := q.Get("group"); g != "" {
		cs, ok := s.connectors.Group(g)
		if !ok {
			s.writeError(w, http.StatusBadRequest, "unknown group: "+g)
			return
		}
		ids := make([]string, 0, len(cs))
		for _, c := range cs {
			ids = append(ids, c.ID())
		}
		filters = append(filters, consumer.ByExchange(ids...))
	}
	if sym := q.Get("symbol"); sym != "" {
		filters = append(filters, consumer.BySymbol(sym))
	}

	quotes := s.view.Quotes(all(filters))
	s.writeJSON(w, http.StatusOK, snapshotResponse{
		TsMs:   time.Now().UnixMilli(),
		Tally:  consumer.Count(quotes),
		Quotes: quotes,
	})
}

func all(filters []consumer.Filter) consumer.Filter {
	if len(filters) == 0 {
		return nil
	}
	return func(k domain.PriceKey) bool {
		for _, f := range filters {
			if !f(k) {
				return false
			}
		}
		return true
	}
}

// GET /api/v1/tickers/{key}，key 形如 upbit_krw-BTC
func (s *Server) getTicker(w http.ResponseWriter, r *http.Request) {
	ex, sym := domain.PriceKey(mux.Vars(r)["key"]).Split()
	if ex == "" || sym == "" {
		s.writeError(w, http.StatusBadRequest, "invalid key")
		return
	}
	quote, ok := s.view.Quote(domain.NewPriceKey(ex, sym))
	if !ok {
		s.writeError(w, http.StatusNotFound, "ticker not observed")
		return
	}
	s.writeJSON(w, http.StatusOK, quote)
}

func (s *Server) getConnectors(w http.ResponseWriter, r *http.Request) {
	s.writeJSON(w, http.StatusOK, s.connectors.Stats())
}

// 至少一个连接器 open 即视为健康
func (s *Server) getHealth(w http.ResponseWriter, r *http.Request) {
	open := 0
	stats := s.connectors.Stats()
	for _, st := range stats {
		if st.State == domain.StateOpen.String() {
			open++
		}
	}
	status := http.StatusOK
	if open == 0 {
		status = http.StatusServiceUnavailable
	}
	s.writeJSON(w, status, map[string]int{"connectors": len(stats), "open": open})
}

func (s *Server) writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		log.Debug().Err(err).Msg("write response failed")
	}
}

func (s *Server) writeError(w http.ResponseWriter, status int, message string) {
	s.writeJSON(w, status, map[string]string{"error": message})
}
