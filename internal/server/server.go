package server

import (
	"context"
	"net/http"
	"strconv"
	"time"

	"PariPool/internal/engine"
	"PariPool/internal/observability"
	"PariPool/internal/query"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"
)

// Server is the HTTP surface: operator endpoints for match lifecycle and
// policy, participant endpoints for stakes and claims, and the read side.
// The engine owns all business rules; handlers translate wire requests
// and supply the operation timestamp.
type Server struct {
	eng     *engine.Engine
	queries *query.Service
	health  *observability.HealthChecker
	metrics *observability.Metrics
	logger  zerolog.Logger
	httpSrv *http.Server
}

func New(eng *engine.Engine, queries *query.Service, health *observability.HealthChecker, metrics *observability.Metrics, logger zerolog.Logger) *Server {
	return &Server{
		eng:     eng,
		queries: queries,
		health:  health,
		metrics: metrics,
		logger:  logger,
	}
}

// Router builds the gin engine with all routes registered.
func (s *Server) Router() *gin.Engine {
	gin.SetMode(gin.ReleaseMode)
	r := gin.New()
	r.Use(gin.Recovery(), s.observe())

	r.GET("/healthz", gin.WrapF(s.health.LivenessHandler))
	r.GET("/readyz", gin.WrapF(s.health.ReadinessHandler))
	r.GET("/metrics", gin.WrapH(promhttp.Handler()))

	api := r.Group("/api")
	{
		api.POST("/matches", s.createMatch)
		api.GET("/matches", s.listMatches)
		api.GET("/matches/:id", s.getMatch)
		api.GET("/matches/:id/pools", s.getPools)
		api.GET("/matches/:id/odds", s.getOdds)
		api.POST("/matches/:id/close", s.closeMatch)
		api.POST("/matches/:id/resolve", s.resolveMatch)
		api.POST("/matches/:id/cancel", s.cancelMatch)

		api.POST("/resolve", s.resolveBatch)
		api.POST("/cancel", s.cancelBatch)

		api.POST("/matches/:id/stakes", s.placeStake)
		api.GET("/matches/:id/stakes/:participant", s.getStake)
		api.GET("/matches/:id/claimable/:participant", s.getClaimable)
		api.POST("/matches/:id/claims", s.claim)
		api.POST("/claims", s.claimBatch)
		api.GET("/claimable", s.getClaimableBatch)

		api.PUT("/config/fee", s.setFeeRate)
		api.PUT("/config/limits", s.setStakeLimits)

		api.GET("/aggregates", s.aggregates)
		api.GET("/history/matches", s.resolvedMatches)
		api.GET("/history/stakes", s.participantStakes)
		api.GET("/history/participants/:participant", s.participantHistory)
		api.GET("/history/notifications", s.notifications)
		api.GET("/totals", s.totals)
	}

	return r
}

// observe records per-handler request counts and latency.
func (s *Server) observe() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()

		if s.metrics == nil {
			return
		}
		handler := c.FullPath()
		if handler == "" {
			handler = "unmatched"
		}
		s.metrics.HTTPRequests.WithLabelValues(handler, strconv.Itoa(c.Writer.Status())).Inc()
		s.metrics.HTTPDuration.WithLabelValues(handler).Observe(time.Since(start).Seconds())
	}
}

// Run serves HTTP until ctx is cancelled, then drains with a timeout.
func (s *Server) Run(ctx context.Context, addr string) error {
	s.httpSrv = &http.Server{
		Addr:         addr,
		Handler:      s.Router(),
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 30 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		s.logger.Info().Str("addr", addr).Msg("http server listening")
		if err := s.httpSrv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- err
		}
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return s.httpSrv.Shutdown(shutdownCtx)
	}
}
