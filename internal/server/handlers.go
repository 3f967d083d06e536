package server

import (
	"net/http"
	"strconv"
	"time"

	"PariPool/internal/market"
	"PariPool/internal/pool"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
)

// --- wire formats ---

type createMatchRequest struct {
	HomeTeam  string    `json:"home_team" binding:"required"`
	AwayTeam  string    `json:"away_team" binding:"required"`
	Category  string    `json:"category" binding:"required"`
	StartTime time.Time `json:"start_time" binding:"required"`
}

type placeStakeRequest struct {
	Participant string `json:"participant" binding:"required"`
	Outcome     string `json:"outcome" binding:"required"`
	Amount      int64  `json:"amount" binding:"required"`
}

type resolveRequest struct {
	Result string `json:"result" binding:"required"`
}

type cancelRequest struct {
	Reason string `json:"reason" binding:"required"`
}

type resolveBatchRequest struct {
	MatchIDs []int64  `json:"match_ids" binding:"required"`
	Results  []string `json:"results" binding:"required"`
}

type cancelBatchRequest struct {
	MatchIDs []int64 `json:"match_ids" binding:"required"`
	Reason   string  `json:"reason" binding:"required"`
}

type claimRequest struct {
	Participant string `json:"participant" binding:"required"`
}

type claimBatchRequest struct {
	Participant string  `json:"participant" binding:"required"`
	MatchIDs    []int64 `json:"match_ids" binding:"required"`
}

type feeRateRequest struct {
	RateBps int64 `json:"rate_bps"`
}

type stakeLimitsRequest struct {
	MinStake int64 `json:"min_stake"`
	MaxStake int64 `json:"max_stake"`
}

func matchID(c *gin.Context) (int64, bool) {
	id, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid match id"})
		return 0, false
	}
	return id, true
}

func participantID(c *gin.Context, raw string) (uuid.UUID, bool) {
	p, err := uuid.Parse(raw)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid participant id"})
		return uuid.Nil, false
	}
	return p, true
}

// --- match lifecycle ---

func (s *Server) createMatch(c *gin.Context) {
	var req createMatchRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	id, err := s.eng.CreateMatch(req.HomeTeam, req.AwayTeam, req.Category, req.StartTime, time.Now())
	if err != nil {
		abortWith(c, err)
		return
	}

	c.JSON(http.StatusCreated, gin.H{"match_id": id})
}

func (s *Server) listMatches(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"matches": s.eng.ListMatches(c.Query("status"))})
}

func (s *Server) getMatch(c *gin.Context) {
	id, ok := matchID(c)
	if !ok {
		return
	}
	m, err := s.eng.GetMatch(id)
	if err != nil {
		abortWith(c, err)
		return
	}
	c.JSON(http.StatusOK, m)
}

func (s *Server) getPools(c *gin.Context) {
	id, ok := matchID(c)
	if !ok {
		return
	}
	snap, err := s.eng.GetPools(id)
	if err != nil {
		abortWith(c, err)
		return
	}
	c.JSON(http.StatusOK, snap)
}

func (s *Server) getOdds(c *gin.Context) {
	id, ok := matchID(c)
	if !ok {
		return
	}
	odds, err := s.eng.GetOdds(id)
	if err != nil {
		abortWith(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"match_id": id, "odds": odds})
}

func (s *Server) closeMatch(c *gin.Context) {
	id, ok := matchID(c)
	if !ok {
		return
	}
	if err := s.eng.CloseMatch(id, time.Now()); err != nil {
		abortWith(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "closed"})
}

func (s *Server) resolveMatch(c *gin.Context) {
	id, ok := matchID(c)
	if !ok {
		return
	}
	var req resolveRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	outcome, err := market.ParseOutcome(req.Result)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	if err := s.eng.Resolve(id, outcome, time.Now()); err != nil {
		abortWith(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "resolved", "result": req.Result})
}

func (s *Server) cancelMatch(c *gin.Context) {
	id, ok := matchID(c)
	if !ok {
		return
	}
	var req cancelRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	if err := s.eng.Cancel(id, req.Reason, time.Now()); err != nil {
		abortWith(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "cancelled"})
}

func (s *Server) resolveBatch(c *gin.Context) {
	var req resolveBatchRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	outcomes := make([]market.Outcome, len(req.Results))
	for i, r := range req.Results {
		o, err := market.ParseOutcome(r)
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}
		outcomes[i] = o
	}

	res, err := s.eng.ResolveMany(req.MatchIDs, outcomes, time.Now())
	if err != nil {
		abortWith(c, err)
		return
	}
	c.JSON(http.StatusOK, res)
}

func (s *Server) cancelBatch(c *gin.Context) {
	var req cancelBatchRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	res, err := s.eng.CancelMany(req.MatchIDs, req.Reason, time.Now())
	if err != nil {
		abortWith(c, err)
		return
	}
	c.JSON(http.StatusOK, res)
}

// --- stakes and claims ---

func (s *Server) placeStake(c *gin.Context) {
	id, ok := matchID(c)
	if !ok {
		return
	}
	var req placeStakeRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	participant, ok := participantID(c, req.Participant)
	if !ok {
		return
	}
	outcome, err := market.ParseOutcome(req.Outcome)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	if err := s.eng.PlaceStake(id, participant, outcome, req.Amount, time.Now()); err != nil {
		abortWith(c, err)
		return
	}
	c.JSON(http.StatusCreated, gin.H{"status": "placed"})
}

func (s *Server) getStake(c *gin.Context) {
	id, ok := matchID(c)
	if !ok {
		return
	}
	participant, ok := participantID(c, c.Param("participant"))
	if !ok {
		return
	}

	stake, err := s.eng.GetStake(id, participant)
	if err != nil {
		abortWith(c, err)
		return
	}
	c.JSON(http.StatusOK, stake)
}

func (s *Server) getClaimable(c *gin.Context) {
	id, ok := matchID(c)
	if !ok {
		return
	}
	participant, ok := participantID(c, c.Param("participant"))
	if !ok {
		return
	}

	quote, err := s.eng.GetClaimable(id, participant)
	if err != nil {
		abortWith(c, err)
		return
	}
	c.JSON(http.StatusOK, quote)
}

func (s *Server) getClaimableBatch(c *gin.Context) {
	participant, ok := participantID(c, c.Query("participant"))
	if !ok {
		return
	}

	var ids []int64
	for _, raw := range c.QueryArray("match_id") {
		id, err := strconv.ParseInt(raw, 10, 64)
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid match_id: " + raw})
			return
		}
		ids = append(ids, id)
	}

	c.JSON(http.StatusOK, gin.H{"quotes": s.eng.GetClaimableBatch(participant, ids)})
}

func (s *Server) claim(c *gin.Context) {
	id, ok := matchID(c)
	if !ok {
		return
	}
	var req claimRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	participant, ok := participantID(c, req.Participant)
	if !ok {
		return
	}

	amount, err := s.eng.Claim(id, participant, time.Now())
	if err != nil {
		abortWith(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"amount": amount})
}

func (s *Server) claimBatch(c *gin.Context) {
	var req claimBatchRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	participant, ok := participantID(c, req.Participant)
	if !ok {
		return
	}

	total, res, err := s.eng.ClaimBatch(participant, req.MatchIDs, time.Now())
	if err != nil {
		abortWith(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"total":   total,
		"applied": res.Applied,
		"skipped": res.Skipped,
	})
}

// --- policy configuration ---

func (s *Server) setFeeRate(c *gin.Context) {
	var req feeRateRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	prev, err := s.eng.SetFeeRate(req.RateBps)
	if err != nil {
		abortWith(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"rate_bps": req.RateBps, "previous_bps": prev})
}

func (s *Server) setStakeLimits(c *gin.Context) {
	var req stakeLimitsRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	prev, err := s.eng.SetStakeLimits(pool.Limits{MinStake: req.MinStake, MaxStake: req.MaxStake})
	if err != nil {
		abortWith(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"min_stake":          req.MinStake,
		"max_stake":          req.MaxStake,
		"previous_min_stake": prev.MinStake,
		"previous_max_stake": prev.MaxStake,
	})
}

func (s *Server) aggregates(c *gin.Context) {
	c.JSON(http.StatusOK, s.eng.AggregateTotals())
}
