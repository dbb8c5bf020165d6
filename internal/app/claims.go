/**
 * @description
 * ClaimService is the single entry point for claim attempts coming from every transport
 * (Telegram callbacks, HTTP, the claim-request queue). Admission itself is delegated to
 * the store's atomic TryClaim; this layer only rate limits, maps results to outcomes and
 * emits events and metrics.
 */
package app

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/prizedrop/prize-service/internal/domain"
	"github.com/prizedrop/prize-service/internal/store"
	"github.com/prizedrop/prize-service/pkg/rabbitmq"
)

// ClaimRateLimiter counts claim attempts per participant.
type ClaimRateLimiter interface {
	AllowClaim(ctx context.Context, participantID int64) (allowed bool, retryAfterSeconds int, err error)
}

type ClaimService struct {
	repo           store.Repository
	publisher      rabbitmq.Publisher
	exchange       string
	limiter        ClaimRateLimiter
	metrics        *Metrics
	logger         *slog.Logger
	publishTimeout time.Duration
}

func NewClaimService(repo store.Repository, publisher rabbitmq.Publisher, exchange string, metrics *Metrics, logger *slog.Logger) *ClaimService {
	if publisher == nil {
		publisher = &rabbitmq.EventProducerFallback{}
	}
	return &ClaimService{
		repo:           repo,
		publisher:      publisher,
		exchange:       exchange,
		metrics:        metrics,
		logger:         logger,
		publishTimeout: 5 * time.Second,
	}
}

// SetRateLimiter enables per-participant limiting of claim attempts.
func (s *ClaimService) SetRateLimiter(limiter ClaimRateLimiter) {
	s.limiter = limiter
}

// Claim attempts to admit participantID as a winner of prizeID. Exactly one outcome is
// returned per call; the error is non-nil only for the unavailable status.
func (s *ClaimService) Claim(ctx context.Context, prizeID, participantID int64) (domain.ClaimOutcome, error) {
	outcome := domain.ClaimOutcome{PrizeID: prizeID, ParticipantID: participantID}

	if retryAfter, limited := s.rateLimited(ctx, participantID); limited {
		outcome.Status = domain.ClaimStatusRateLimited
		outcome.RetryAfterSeconds = retryAfter
		s.metrics.observeClaim(outcome.Status, 0)
		return outcome, nil
	}

	started := time.Now()
	receipt, err := s.repo.TryClaim(ctx, prizeID, participantID)
	elapsed := time.Since(started).Seconds()
	if err != nil {
		outcome.Status = domain.ClaimStatusUnavailable
		s.metrics.observeClaim(outcome.Status, elapsed)
		s.logger.Error("claim failed", "prize_id", prizeID, "participant_id", participantID, "error", err)
		return outcome, fmt.Errorf("claim prize %d: %w", prizeID, err)
	}

	switch receipt.Result {
	case domain.ClaimResultWon:
		outcome.Status = domain.ClaimStatusWon
		outcome.AssetRef = receipt.AssetRef
		outcome.Position = receipt.ClaimCount
	case domain.ClaimResultExhausted:
		outcome.Status = domain.ClaimStatusExhausted
	case domain.ClaimResultAlreadyClaimed:
		outcome.Status = domain.ClaimStatusAlreadyClaimed
	case domain.ClaimResultPrizeNotFound:
		outcome.Status = domain.ClaimStatusNotFound
	case domain.ClaimResultParticipantNotFound:
		outcome.Status = domain.ClaimStatusNotRegistered
	default:
		outcome.Status = domain.ClaimStatusUnavailable
		s.metrics.observeClaim(outcome.Status, elapsed)
		return outcome, fmt.Errorf("claim prize %d: unexpected result %s", prizeID, receipt.Result)
	}
	s.metrics.observeClaim(outcome.Status, elapsed)

	if outcome.Won() {
		s.logger.Info("prize claimed", "prize_id", prizeID, "participant_id", participantID, "round", receipt.Round, "position", outcome.Position)
		s.publishWin(ctx, prizeID, participantID, receipt)
	} else {
		s.logger.Debug("claim rejected", "prize_id", prizeID, "participant_id", participantID, "status", outcome.Status)
	}
	return outcome, nil
}

// rateLimited fails open: a limiter error lets the claim through.
func (s *ClaimService) rateLimited(ctx context.Context, participantID int64) (int, bool) {
	if s.limiter == nil {
		return 0, false
	}
	allowed, retryAfter, err := s.limiter.AllowClaim(ctx, participantID)
	if err != nil {
		s.logger.Warn("claim rate limiter unavailable; allowing claim", "participant_id", participantID, "error", err)
		return 0, false
	}
	if !allowed {
		return retryAfter, true
	}
	return 0, false
}

func (s *ClaimService) publishWin(ctx context.Context, prizeID, participantID int64, receipt domain.ClaimReceipt) {
	pubCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), s.publishTimeout)
	defer cancel()

	event := domain.NewClaimWonEvent(prizeID, participantID, receipt.Round, receipt.ClaimCount)
	if err := s.publisher.Publish(pubCtx, s.exchange, domain.RoutingKeyClaimWon, event); err != nil {
		s.logger.Warn("failed to publish claim won event", "prize_id", prizeID, "participant_id", participantID, "error", err)
	}
}
