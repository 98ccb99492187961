// Package server exposes the metrics over HTTP and a WebSocket push channel.
package server

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"go.uber.org/zap"

	"statsScope/internal/service"
)

const defaultRequestTimeout = 30 * time.Second

// Server serves the HTTP API and push channel.
type Server struct {
	svc            *service.Service
	hub            *Hub
	logger         *zap.Logger
	requestTimeout time.Duration
}

func New(svc *service.Service, logger *zap.Logger, requestTimeout time.Duration) *Server {
	if logger == nil {
		logger = zap.NewNop()
	}
	if requestTimeout <= 0 {
		requestTimeout = defaultRequestTimeout
	}
	return &Server{
		svc:            svc,
		hub:            NewHub(svc, logger),
		logger:         logger,
		requestTimeout: requestTimeout,
	}
}

func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /health", s.handleHealth)
	mux.HandleFunc("GET /api/lottery/stats", s.handleLotteryStats)
	mux.HandleFunc("POST /api/lottery/refresh", s.handleLotteryRefresh)
	mux.HandleFunc("GET /api/tvl/chart", s.handleTVLChart)
	mux.HandleFunc("POST /api/tvl/refresh", s.handleTVLRefresh)
	mux.HandleFunc("GET /api/supply/total", s.handleSupplyTotal)
	mux.HandleFunc("GET /api/supply/circulating", s.handleSupplyCirculating)
	mux.HandleFunc("GET /ws", s.hub.ServeWS)
	return mux
}

func (s *Server) ListenAndServe(ctx context.Context, addr string) error {
	server := &http.Server{
		Addr:              addr,
		Handler:           s.Handler(),
		ReadHeaderTimeout: 5 * time.Second,
	}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = server.Shutdown(shutdownCtx)
		s.hub.Close()
	}()

	s.logger.Info("http server listening", zap.String("addr", addr))
	if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	respondJSON(w, http.StatusOK, map[string]any{
		"status":    "ok",
		"timestamp": time.Now().UTC(),
		"clients":   s.hub.Count(),
	})
}

func (s *Server) handleLotteryStats(w http.ResponseWriter, r *http.Request) {
	if s.svc.Lottery == nil {
		respondError(w, http.StatusNotFound, "lottery metric not configured")
		return
	}
	ctx, cancel := context.WithTimeout(r.Context(), s.requestTimeout)
	defer cancel()
	respondMetric(w, s.svc.Lottery.Get(ctx))
}

func (s *Server) handleLotteryRefresh(w http.ResponseWriter, r *http.Request) {
	if s.svc.Lottery == nil {
		respondError(w, http.StatusNotFound, "lottery metric not configured")
		return
	}
	ctx, cancel := context.WithTimeout(r.Context(), s.requestTimeout)
	defer cancel()
	respondMetric(w, s.svc.Lottery.Refresh(ctx))
}

func (s *Server) handleTVLChart(w http.ResponseWriter, r *http.Request) {
	if s.svc.TVL == nil {
		respondError(w, http.StatusNotFound, "tvl metric not configured")
		return
	}
	ctx, cancel := context.WithTimeout(r.Context(), s.requestTimeout)
	defer cancel()
	respondMetric(w, s.svc.TVL.Get(ctx))
}

func (s *Server) handleTVLRefresh(w http.ResponseWriter, r *http.Request) {
	if s.svc.TVL == nil {
		respondError(w, http.StatusNotFound, "tvl metric not configured")
		return
	}
	ctx, cancel := context.WithTimeout(r.Context(), s.requestTimeout)
	defer cancel()
	respondMetric(w, s.svc.TVL.Refresh(ctx))
}

func (s *Server) handleSupplyTotal(w http.ResponseWriter, r *http.Request) {
	s.handleSupply(w, r, false)
}

func (s *Server) handleSupplyCirculating(w http.ResponseWriter, r *http.Request) {
	s.handleSupply(w, r, true)
}

func (s *Server) handleSupply(w http.ResponseWriter, r *http.Request, circulating bool) {
	if s.svc.Supply == nil {
		http.Error(w, "supply metric not configured", http.StatusNotFound)
		return
	}
	ctx, cancel := context.WithTimeout(r.Context(), s.requestTimeout)
	defer cancel()

	res := s.svc.Supply.Get(ctx)
	value := res.Value.Total
	if circulating {
		value = res.Value.Circulating
	}
	if res.Err != nil {
		w.Header().Set("X-Stats-Error", res.Err.Error())
	}
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte(value.String()))
}

// respondMetric writes the metric fields plus stale, source, partial and
// error. A failed computation is still a 200 carrying the fallback value.
func respondMetric[T any](w http.ResponseWriter, res service.Result[T]) {
	body := make(map[string]any)
	raw, err := json.Marshal(res.Value)
	if err == nil {
		_ = json.Unmarshal(raw, &body)
	}
	if _, ok := body["partial"]; !ok {
		body["partial"] = false
	}
	body["stale"] = res.Stale
	body["source"] = res.Source
	if res.Err != nil {
		body["error"] = res.Err.Error()
	}
	respondJSON(w, http.StatusOK, body)
}

func respondJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

func respondError(w http.ResponseWriter, status int, message string) {
	respondJSON(w, status, map[string]string{"error": message})
}
