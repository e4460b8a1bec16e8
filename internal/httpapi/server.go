package httpapi

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"strconv"
	"sync"

	"flowdash/internal/hub"
	"flowdash/internal/store"
	"flowdash/internal/stream"
)

// Server serves the dashboard REST API and the hub's WebSocket
// endpoint. It is also a stream consumer: it keeps the latest
// portfolio update cached for GET /api/portfolio, holding a portfolio
// subscription for its whole lifetime.
type Server struct {
	manager *stream.Manager
	flow    store.FlowStore
	hub     *hub.Hub
	log     *slog.Logger

	mu        sync.RWMutex
	portfolio *stream.PortfolioUpdate
	dispose   func()
}

// NewServer creates the API server. The hub may be nil in tests that
// only exercise the REST routes.
func NewServer(manager *stream.Manager, flow store.FlowStore, h *hub.Hub, log *slog.Logger) *Server {
	return &Server{
		manager: manager,
		flow:    flow,
		hub:     h,
		log:     log.With("component", "httpapi"),
	}
}

// Start subscribes the portfolio cache. Call Stop to release it.
func (s *Server) Start() error {
	dispose, err := s.manager.Subscribe(stream.ChannelPortfolio, func(msg any) {
		upd, ok := msg.(stream.PortfolioUpdate)
		if !ok {
			return
		}
		s.mu.Lock()
		s.portfolio = &upd
		s.mu.Unlock()
	})
	if err != nil {
		return err
	}
	s.dispose = dispose
	return nil
}

// Stop releases the portfolio subscription.
func (s *Server) Stop() {
	if s.dispose != nil {
		s.dispose()
		s.dispose = nil
	}
}

// Routes returns the HTTP handler for the API.
func (s *Server) Routes() *http.ServeMux {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /api/stream/stats", s.handleStats)
	mux.HandleFunc("POST /api/stream/reconnect", s.handleReconnect)
	mux.HandleFunc("POST /api/stream/enabled", s.handleEnabled)
	mux.HandleFunc("GET /api/flow/recent", s.handleRecentFlow)
	mux.HandleFunc("GET /api/portfolio", s.handlePortfolio)
	if s.hub != nil {
		mux.HandleFunc("GET /ws", s.hub.ServeWS)
	}
	return mux
}

func (s *Server) handleStats(w http.ResponseWriter, r *http.Request) {
	stats := s.manager.Stats()
	resp := StatsResponse{
		Global:  s.manager.GlobalStatus().String(),
		Enabled: s.manager.Enabled(),
	}
	for _, ch := range stream.Channels() {
		st := stats[ch]
		resp.Channels = append(resp.Channels, ChannelStatsJSON{
			Channel:         string(ch),
			State:           st.State.String(),
			MessageCount:    st.MessageCount,
			SubscriberCount: st.SubscriberCount,
			LastError:       st.LastError,
		})
	}
	writeJSON(w, http.StatusOK, resp)
}

func (s *Server) handleReconnect(w http.ResponseWriter, r *http.Request) {
	var req ReconnectRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if req.Channel == "" {
		s.manager.ReconnectAll()
		w.WriteHeader(http.StatusNoContent)
		return
	}
	if err := s.manager.Reconnect(stream.ChannelID(req.Channel)); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleEnabled(w http.ResponseWriter, r *http.Request) {
	var req EnabledRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	s.manager.SetEnabled(req.Enabled)
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleRecentFlow(w http.ResponseWriter, r *http.Request) {
	limit := 100
	if v := r.URL.Query().Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n <= 0 {
			writeError(w, http.StatusBadRequest, "invalid limit")
			return
		}
		limit = n
	}
	events, err := s.flow.RecentFlowEvents(r.Context(), limit)
	if err != nil {
		s.log.Error("querying recent flow", "error", err)
		writeError(w, http.StatusInternalServerError, "query failed")
		return
	}
	if events == nil {
		events = []stream.FlowEvent{}
	}
	writeJSON(w, http.StatusOK, FlowResponse{Events: events})
}

func (s *Server) handlePortfolio(w http.ResponseWriter, r *http.Request) {
	s.mu.RLock()
	upd := s.portfolio
	s.mu.RUnlock()
	if upd == nil {
		writeError(w, http.StatusNotFound, "no portfolio update received yet")
		return
	}
	writeJSON(w, http.StatusOK, upd)
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, ErrorResponse{Error: msg})
}
