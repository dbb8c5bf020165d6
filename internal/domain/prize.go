/**
 * @description
 * Core domain models for the prize-service: participants, prizes, winner records and
 * the outcome of a claim attempt.
 */
package domain

import (
	"errors"
	"time"
)

// MaxWinnersPerPrize is the admission capacity of one prize round.
const MaxWinnersPerPrize = 3

// ErrAssetMissing is returned when a prize image cannot be located on disk.
var ErrAssetMissing = errors.New("prize asset missing")

// PrizeStatus is derived from the claim count of a prize.
type PrizeStatus string

const (
	PrizeStatusAvailable PrizeStatus = "available"
	PrizeStatusExhausted PrizeStatus = "exhausted"
)

// Participant is a registered player of the game.
type Participant struct {
	ID           int64     `json:"id"`
	DisplayName  string    `json:"display_name"`
	Points       int       `json:"points"`
	RegisteredAt time.Time `json:"registered_at"`
}

// Prize is a single image that can be won by up to MaxWinnersPerPrize participants per round.
type Prize struct {
	ID         int64     `json:"id"`
	AssetRef   string    `json:"asset_ref"`
	ClaimCount int       `json:"claim_count"`
	Round      int       `json:"round"`
	CreatedAt  time.Time `json:"created_at"`
}

// Status reports whether the prize can still admit winners in its current round.
func (p Prize) Status() PrizeStatus {
	if p.ClaimCount >= MaxWinnersPerPrize {
		return PrizeStatusExhausted
	}
	return PrizeStatusAvailable
}

// WinnerRecord is the durable evidence of one successful claim.
type WinnerRecord struct {
	ParticipantID int64     `json:"participant_id"`
	PrizeID       int64     `json:"prize_id"`
	Round         int       `json:"round"`
	ClaimedAt     time.Time `json:"claimed_at"`
}

// LeaderboardEntry is one row of the points ranking.
type LeaderboardEntry struct {
	Rank          int    `json:"rank"`
	ParticipantID int64  `json:"participant_id"`
	DisplayName   string `json:"display_name"`
	Points        int    `json:"points"`
}
