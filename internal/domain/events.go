package domain

import (
	"time"

	"github.com/google/uuid"
)

// Routing keys published on the events exchange.
const (
	RoutingKeyRoundStarted   = "prize.round.started"
	RoutingKeyClaimWon       = "prize.claim.won"
	RoutingKeyClaimRequested = "prize.claim.requested"
)

// RoundStartedEvent is published after a prize has been re-armed and broadcast.
type RoundStartedEvent struct {
	EventID    uuid.UUID `json:"event_id"`
	PrizeID    int64     `json:"prize_id"`
	Round      int       `json:"round"`
	Recipients int       `json:"recipients"`
	Delivered  int       `json:"delivered"`
	Failed     int       `json:"failed"`
	StartedAt  time.Time `json:"started_at"`
}

// ClaimWonEvent is published for every admitted winner.
type ClaimWonEvent struct {
	EventID       uuid.UUID `json:"event_id"`
	PrizeID       int64     `json:"prize_id"`
	ParticipantID int64     `json:"participant_id"`
	Round         int       `json:"round"`
	Position      int       `json:"position"`
	ClaimedAt     time.Time `json:"claimed_at"`
}

// ClaimRequestedEvent is consumed from the claim request queue by external transports.
type ClaimRequestedEvent struct {
	PrizeID       int64 `json:"prize_id"`
	ParticipantID int64 `json:"participant_id"`
}

// NewRoundStartedEvent stamps a round event with a fresh id.
func NewRoundStartedEvent(prizeID int64, round, recipients, delivered, failed int) RoundStartedEvent {
	return RoundStartedEvent{
		EventID:    uuid.New(),
		PrizeID:    prizeID,
		Round:      round,
		Recipients: recipients,
		Delivered:  delivered,
		Failed:     failed,
		StartedAt:  time.Now().UTC(),
	}
}

// NewClaimWonEvent stamps a win event with a fresh id.
func NewClaimWonEvent(prizeID, participantID int64, round, position int) ClaimWonEvent {
	return ClaimWonEvent{
		EventID:       uuid.New(),
		PrizeID:       prizeID,
		ParticipantID: participantID,
		Round:         round,
		Position:      position,
		ClaimedAt:     time.Now().UTC(),
	}
}
