package app

import (
	"context"
	"encoding/json"
	"log/slog"
	"time"

	"github.com/prizedrop/prize-service/internal/domain"
)

// Claimer is the claim entry point shared by every transport.
type Claimer interface {
	Claim(ctx context.Context, prizeID, participantID int64) (domain.ClaimOutcome, error)
}

// ClaimRequestConsumer turns queued claim requests into claims.
type ClaimRequestConsumer struct {
	claims Claimer
	logger *slog.Logger
}

func NewClaimRequestConsumer(claims Claimer, logger *slog.Logger) *ClaimRequestConsumer {
	return &ClaimRequestConsumer{claims: claims, logger: logger}
}

// HandleMessage returns false only when the claim could not be evaluated, so the
// broker redelivers it. Malformed requests are dropped.
func (c *ClaimRequestConsumer) HandleMessage(body []byte) bool {
	var req domain.ClaimRequestedEvent
	if err := json.Unmarshal(body, &req); err != nil {
		c.logger.Warn("claim-consumer: failed to unmarshal payload", "error", err)
		return true
	}
	if req.PrizeID <= 0 || req.ParticipantID == 0 {
		c.logger.Warn("claim-consumer: missing ids in request", "prize_id", req.PrizeID, "participant_id", req.ParticipantID)
		return true
	}

	ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()

	outcome, err := c.claims.Claim(ctx, req.PrizeID, req.ParticipantID)
	if err != nil {
		c.logger.Error("claim-consumer: claim unavailable", "prize_id", req.PrizeID, "participant_id", req.ParticipantID, "error", err)
		return false
	}
	c.logger.Info("claim-consumer: claim processed", "prize_id", req.PrizeID, "participant_id", req.ParticipantID, "status", outcome.Status)
	return true
}
