// Package server serves the gateway engine over HTTP.
package server

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/txn2/sql-gateway/pkg/apperror"
	"github.com/txn2/sql-gateway/pkg/auth"
	"github.com/txn2/sql-gateway/pkg/engine"
	httpmw "github.com/txn2/sql-gateway/pkg/http"
	"github.com/txn2/sql-gateway/pkg/platform"
)

// Version is set at build time.
var Version = "dev"

// Server routes HTTP requests to the platform's engine.
type Server struct {
	platform *platform.Platform
	engine   *engine.Engine
	logger   *slog.Logger
	maxBody  int64
	handler  http.Handler
}

// New builds the HTTP handler tree for p.
func New(p *platform.Platform) *Server {
	s := &Server{
		platform: p,
		engine:   p.Engine(),
		logger:   p.Logger(),
		maxBody:  p.Config().Server.MaxBodyBytes,
	}

	api := http.NewServeMux()
	api.HandleFunc("POST /v1/query", s.handleQuery)
	api.HandleFunc("POST /v1/parse", s.handleParse)
	api.HandleFunc("GET /v1/cache/stats", s.handleCacheStats)
	api.HandleFunc("DELETE /v1/cache", s.handleCacheClear)
	api.HandleFunc("GET /v1/backends", s.handleBackends)
	api.HandleFunc("GET /v1/audit/events", s.handleAuditEvents)
	api.HandleFunc("GET /v1/audit/overview", s.handleAuditOverview)
	api.HandleFunc("GET /v1/audit/breakdown", s.handleAuditBreakdown)

	var v1 http.Handler = httpmw.AuthMiddleware(p.Authenticator())(api)
	if rl := p.Config().Server.RateLimit; !rl.Disabled {
		v1 = httpmw.NewRateLimiter(httpmw.RateLimit{
			Requests: rl.Requests,
			Window:   rl.Window,
			Burst:    rl.Burst,
		}).Middleware(v1)
	}

	root := http.NewServeMux()
	root.Handle("/v1/", v1)
	root.HandleFunc("GET /healthz", p.Health().LivenessHandler())
	root.HandleFunc("GET /readyz", p.Health().ReadinessHandler())
	root.Handle("GET /metrics", promhttp.HandlerFor(p.Metrics(), promhttp.HandlerOpts{}))
	root.HandleFunc("GET /version", s.handleVersion)

	s.handler = httpmw.RequestID(root)
	return s
}

// Handler returns the root handler.
func (s *Server) Handler() http.Handler {
	return s.handler
}

// HTTPServer returns an *http.Server for the configured address and
// timeouts.
func (s *Server) HTTPServer() *http.Server {
	cfg := s.platform.Config().Server
	return &http.Server{
		Addr:              cfg.Address,
		Handler:           s.handler,
		ReadTimeout:       cfg.ReadTimeout,
		ReadHeaderTimeout: cfg.ReadTimeout,
		WriteTimeout:      cfg.WriteTimeout,
		ErrorLog:          slog.NewLogLogger(s.logger.Handler(), slog.LevelWarn),
	}
}

type queryBody struct {
	Query   string         `json:"query"`
	Backend string         `json:"backend"`
	Options map[string]any `json:"options"`
}

func (s *Server) handleQuery(w http.ResponseWriter, r *http.Request) {
	var body queryBody
	if err := s.decode(w, r, &body); err != nil {
		httpmw.WriteError(w, err)
		return
	}

	req := engine.Request{
		Query:     body.Query,
		Backend:   body.Backend,
		Options:   body.Options,
		RequestID: httpmw.GetRequestID(r.Context()),
	}
	if uc := auth.GetUserContext(r.Context()); uc != nil {
		req.UserID = uc.UserID
	}

	resp, err := s.engine.Execute(r.Context(), req)
	if err != nil {
		httpmw.WriteError(w, err)
		return
	}
	httpmw.WriteJSON(w, http.StatusOK, resp)
}

type parseBody struct {
	Query string `json:"query"`
}

func (s *Server) handleParse(w http.ResponseWriter, r *http.Request) {
	var body parseBody
	if err := s.decode(w, r, &body); err != nil {
		httpmw.WriteError(w, err)
		return
	}

	parsed, err := s.engine.Parse(r.Context(), body.Query)
	if err != nil {
		httpmw.WriteError(w, err)
		return
	}
	httpmw.WriteJSON(w, http.StatusOK, parsed)
}

type cacheStatsResponse struct {
	Enabled bool    `json:"enabled"`
	Hits    uint64  `json:"hits"`
	Misses  uint64  `json:"misses"`
	Size    int     `json:"size"`
	HitRate float64 `json:"hitRate"`
}

func (s *Server) handleCacheStats(w http.ResponseWriter, _ *http.Request) {
	stats, ok := s.engine.CacheStats()
	httpmw.WriteJSON(w, http.StatusOK, cacheStatsResponse{
		Enabled: ok,
		Hits:    stats.Hits,
		Misses:  stats.Misses,
		Size:    stats.Size,
		HitRate: stats.HitRate,
	})
}

func (s *Server) handleCacheClear(w http.ResponseWriter, r *http.Request) {
	s.engine.ClearCache()
	s.logger.Info("result cache cleared", "request_id", httpmw.GetRequestID(r.Context()))
	w.WriteHeader(http.StatusNoContent)
}

type backendInfo struct {
	Name   string `json:"name"`
	Family string `json:"family"`
}

func (s *Server) handleBackends(w http.ResponseWriter, _ *http.Request) {
	reg := s.platform.Registry()
	names := reg.Names()
	out := make([]backendInfo, 0, len(names))
	for _, name := range names {
		a, ok := reg.Get(name)
		if !ok {
			continue
		}
		out = append(out, backendInfo{Name: name, Family: string(a.Family())})
	}
	httpmw.WriteJSON(w, http.StatusOK, map[string]any{
		"backends": out,
		"dialects": s.engine.Dialects(),
	})
}

func (s *Server) handleVersion(w http.ResponseWriter, _ *http.Request) {
	httpmw.WriteJSON(w, http.StatusOK, map[string]string{
		"name":    s.platform.Config().Server.Name,
		"version": Version,
	})
}

// decode reads a JSON body of at most maxBody bytes into v.
func (s *Server) decode(w http.ResponseWriter, r *http.Request, v any) error {
	if s.maxBody > 0 {
		r.Body = http.MaxBytesReader(w, r.Body, s.maxBody)
	}
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	if err := dec.Decode(v); err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			return apperror.Newf(apperror.Validation, "request body exceeds %d bytes", tooLarge.Limit)
		}
		return apperror.Wrap(apperror.Validation, "request body is not valid JSON", err)
	}
	return nil
}
