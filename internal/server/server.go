// Package server exposes the pool simulator over HTTP: write actions that
// run through the orchestrator, cached state reads, the action history and
// a websocket stream of confirmed outcomes.
package server

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/chainclass/defisim/internal/journal"
	"github.com/chainclass/defisim/internal/orchestrator"
	"github.com/chainclass/defisim/internal/query"
	"github.com/chainclass/defisim/internal/report"
	"github.com/chainclass/defisim/internal/stream"
	"github.com/chainclass/defisim/pkg/ratelimit"
)

type Server struct {
	orch     *orchestrator.Orchestrator
	queries  *query.Service
	reporter *report.Reporter
	journal  *journal.Journal
	hub      *stream.Hub

	// 每个调用者独立限速，防止单个学员刷爆写入队列
	writeLimit *ratelimit.Keyed
}

// New assembles the HTTP surface. journal and hub may be nil; the matching
// endpoints then answer 404.
func New(orch *orchestrator.Orchestrator, queries *query.Service, reporter *report.Reporter, j *journal.Journal, hub *stream.Hub) *Server {
	return &Server{
		orch:     orch,
		queries:  queries,
		reporter: reporter,
		journal:  j,
		hub:      hub,
		writeLimit: ratelimit.NewKeyed(func() ratelimit.RateLimiter {
			return ratelimit.NewTokenBucket(10, 2, 10*time.Second)
		}),
	}
}

func (s *Server) Router() http.Handler {
	gin.SetMode(gin.ReleaseMode)
	r := gin.New()
	r.Use(gin.Recovery())

	r.GET("/healthz", s.wrap(func(w http.ResponseWriter, r *http.Request) { w.WriteHeader(http.StatusOK) }))

	api := r.Group("/api/simulator")

	writes := api.Group("")
	writes.Use(s.limitWrites())
	writes.POST("/swap", s.wrap(s.handleSwap))
	writes.POST("/liquidity/add", s.wrap(s.handleAddLiquidity))
	writes.POST("/liquidity/remove", s.wrap(s.handleRemoveLiquidity))
	writes.POST("/snipe", s.wrap(s.handleSnipe))
	writes.POST("/complete", s.wrap(s.handleComplete))
	writes.POST("/reset", s.wrap(s.handleReset))
	writes.POST("/admin/set-active", s.wrap(s.handleSetActive))

	api.GET("/reserves", s.wrap(s.handleReserves))
	api.GET("/price", s.wrap(s.handlePrice))
	api.GET("/value/:address", s.wrap(s.handleUserValue))
	api.GET("/history", s.wrap(s.handleHistory))

	if s.hub != nil {
		api.GET("/stream", s.wrap(s.hub.ServeHTTP))
	}

	return r
}

func (s *Server) limitWrites() gin.HandlerFunc {
	return func(c *gin.Context) {
		key := c.GetHeader(callerHeader)
		if key == "" {
			key = c.ClientIP()
		}
		if !s.writeLimit.Allow(key) {
			writeError(c.Writer, http.StatusTooManyRequests, "rate limit exceeded, slow down")
			c.Abort()
			return
		}
		c.Next()
	}
}

type paramsKeyType string

const paramsKey paramsKeyType = "defisim_path_params"

// wrap adapts existing net/http handlers to gin, injecting path params into request context.
func (s *Server) wrap(h func(http.ResponseWriter, *http.Request)) gin.HandlerFunc {
	return func(c *gin.Context) {
		m := map[string]string{}
		for _, p := range c.Params {
			m[p.Key] = p.Value
		}
		ctx := context.WithValue(c.Request.Context(), paramsKey, m)
		c.Request = c.Request.WithContext(ctx)
		h(c.Writer, c.Request)
	}
}

func pathParam(r *http.Request, key string) string {
	if m, ok := r.Context().Value(paramsKey).(map[string]string); ok {
		return m[key]
	}
	return ""
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, code int, msg string) {
	writeJSON(w, code, map[string]string{"error": msg})
}
