package server

import (
	"errors"
	"net/http"

	"PariPool/internal/engine"
	"PariPool/internal/pool"
	"PariPool/internal/settle"

	"github.com/gin-gonic/gin"
)

// statusFor maps engine errors onto HTTP statuses: 404 for missing rows,
// 409 for state conflicts (the request was well-formed but the lifecycle
// disagrees), 502 when the external transfer failed, 400 for everything
// the caller can fix.
func statusFor(err error) int {
	switch {
	case errors.Is(err, engine.ErrMatchNotFound),
		errors.Is(err, engine.ErrNoStake):
		return http.StatusNotFound

	case errors.Is(err, engine.ErrAlreadyResolved),
		errors.Is(err, engine.ErrAlreadyCancelled),
		errors.Is(err, engine.ErrAlreadyClosed),
		errors.Is(err, engine.ErrAlreadyClaimed),
		errors.Is(err, engine.ErrTooEarly),
		errors.Is(err, engine.ErrNotResolved),
		errors.Is(err, engine.ErrNotAWinner),
		errors.Is(err, engine.ErrNothingToClaim),
		errors.Is(err, pool.ErrMatchNotOpen),
		errors.Is(err, pool.ErrStakingClosed),
		errors.Is(err, pool.ErrDuplicateStake):
		return http.StatusConflict

	case errors.Is(err, engine.ErrPayoutFailed):
		return http.StatusBadGateway

	case errors.Is(err, engine.ErrInvalidOutcome),
		errors.Is(err, engine.ErrInvalidStartTime),
		errors.Is(err, engine.ErrEmptyBatch),
		errors.Is(err, engine.ErrBatchMismatch),
		errors.Is(err, engine.ErrBatchTooLarge),
		errors.Is(err, pool.ErrStakeOutOfBounds),
		errors.Is(err, pool.ErrInvalidOutcome),
		errors.Is(err, pool.ErrInvalidStakeLimits),
		errors.Is(err, settle.ErrFeeAboveCeiling):
		return http.StatusBadRequest

	default:
		return http.StatusInternalServerError
	}
}

func abortWith(c *gin.Context, err error) {
	c.JSON(statusFor(err), gin.H{"error": err.Error()})
}
