package server

import (
	"net/http"
	"strconv"
	"time"

	"PariPool/internal/query"

	"github.com/gin-gonic/gin"
)

// Read-side handlers serve history from Postgres. Live pool state is
// served from the engine by the handlers in handlers.go.

func (s *Server) observeQuery(endpoint string, start time.Time, err error) {
	if s.metrics == nil {
		return
	}
	status := "ok"
	if err != nil {
		status = "error"
	}
	s.metrics.QueryRequests.WithLabelValues(endpoint, status).Inc()
	s.metrics.QueryDuration.WithLabelValues(endpoint).Observe(time.Since(start).Seconds())
}

func (s *Server) resolvedMatches(c *gin.Context) {
	limit, _ := strconv.Atoi(c.DefaultQuery("limit", "100"))

	start := time.Now()
	matches, err := s.queries.ResolvedMatches(c.Request.Context(), limit)
	s.observeQuery("resolved_matches", start, err)
	if err != nil {
		s.logger.Error().Err(err).Msg("resolved matches query failed")
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"matches": matches})
}

func (s *Server) participantStakes(c *gin.Context) {
	participant, ok := participantID(c, c.Query("participant"))
	if !ok {
		return
	}

	start := time.Now()
	stakes, err := s.queries.ParticipantStakes(c.Request.Context(), query.StakesFilter{
		Participant: participant,
		OnlyOpen:    c.Query("only_open") == "true",
	})
	s.observeQuery("participant_stakes", start, err)
	if err != nil {
		s.logger.Error().Err(err).Msg("participant stakes query failed")
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"stakes": stakes})
}

func (s *Server) participantHistory(c *gin.Context) {
	participant, ok := participantID(c, c.Param("participant"))
	if !ok {
		return
	}

	start := time.Now()
	staked, claimed, err := s.queries.ParticipantHistory(c.Request.Context(), participant)
	s.observeQuery("participant_history", start, err)
	if err != nil {
		s.logger.Error().Err(err).Msg("participant history query failed")
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"participant":    participant.String(),
		"total_staked":   staked,
		"claimed_stakes": claimed,
	})
}

func (s *Server) notifications(c *gin.Context) {
	mID, err := strconv.ParseInt(c.Query("match_id"), 10, 64)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "match_id is required"})
		return
	}
	after, _ := strconv.ParseInt(c.DefaultQuery("after", "0"), 10, 64)
	limit, _ := strconv.Atoi(c.DefaultQuery("limit", "100"))

	start := time.Now()
	records, err := s.queries.Notifications(c.Request.Context(), mID, after, limit)
	s.observeQuery("notifications", start, err)
	if err != nil {
		s.logger.Error().Err(err).Msg("notifications query failed")
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"notifications": records})
}

func (s *Server) totals(c *gin.Context) {
	start := time.Now()
	t, err := s.queries.Totals(c.Request.Context())
	s.observeQuery("totals", start, err)
	if err != nil {
		s.logger.Error().Err(err).Msg("totals query failed")
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, t)
}
