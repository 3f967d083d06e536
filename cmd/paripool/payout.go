package main

import (
	"bytes"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

// webhookSender delivers payouts by POSTing to the treasury service.
// Synchronous and fail-fast: a non-2xx response or transport error fails
// the claim, which the engine rolls back so the participant can retry.
type webhookSender struct {
	url    string
	client *http.Client
	logger zerolog.Logger
}

func newWebhookSender(url string, logger zerolog.Logger) *webhookSender {
	return &webhookSender{
		url:    url,
		client: &http.Client{Timeout: 5 * time.Second},
		logger: logger,
	}
}

type payoutRequest struct {
	Participant uuid.UUID `json:"participant"`
	Amount      int64     `json:"amount"`
}

func (w *webhookSender) Send(participant uuid.UUID, amount int64) error {
	body, err := json.Marshal(payoutRequest{Participant: participant, Amount: amount})
	if err != nil {
		return fmt.Errorf("marshal payout: %w", err)
	}

	resp, err := w.client.Post(w.url, "application/json", bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("payout post: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("payout rejected: status %d", resp.StatusCode)
	}
	return nil
}

// logSender is the development fallback when no treasury URL is
// configured: it logs transfers and always succeeds.
type logSender struct {
	logger zerolog.Logger
}

func (l *logSender) Send(participant uuid.UUID, amount int64) error {
	l.logger.Info().
		Str("participant", participant.String()).
		Int64("amount", amount).
		Msg("payout (log-only sender)")
	return nil
}
