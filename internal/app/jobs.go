/**
 * @description
 * The round job: pick an eligible prize, re-arm it, hide its image and send the hidden
 * rendition to every participant. Invoked by the cron scheduler and by admins.
 */
package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/prizedrop/prize-service/internal/config"
	"github.com/prizedrop/prize-service/internal/domain"
	"github.com/prizedrop/prize-service/internal/store"
	"github.com/prizedrop/prize-service/pkg/rabbitmq"
)

var ErrRoundInProgress = errors.New("a round is already in progress")

// RoundTimeout bounds one round, broadcast included.
const RoundTimeout = 30 * time.Minute

// Hider produces the hidden rendition of an asset and returns its path.
type Hider interface {
	Hide(ctx context.Context, assetRef string) (string, error)
}

// Broadcaster delivers a hidden prize with its claim button to one participant.
type Broadcaster interface {
	SendHiddenPrize(ctx context.Context, recipientID int64, hiddenPath string, prizeID int64) error
}

// RoundReport summarizes one tick of the scheduler.
type RoundReport struct {
	PrizeID    int64  `json:"prize_id,omitempty"`
	AssetRef   string `json:"asset_ref,omitempty"`
	Round      int    `json:"round"`
	Skipped    bool   `json:"skipped"`
	Recipients int    `json:"recipients"`
	Delivered  int    `json:"delivered"`
	Failed     int    `json:"failed"`
}

// Jobs contains the logic for all scheduled tasks.
type Jobs struct {
	repo        store.Repository
	hider       Hider
	broadcaster Broadcaster
	publisher   rabbitmq.Publisher
	metrics     *Metrics
	logger      *slog.Logger
	config      config.Config

	running sync.Mutex
}

// NewJobs creates a new Jobs runner. broadcaster may be nil when no transport can push.
func NewJobs(repo store.Repository, hider Hider, broadcaster Broadcaster, publisher rabbitmq.Publisher, metrics *Metrics, logger *slog.Logger, cfg config.Config) *Jobs {
	if publisher == nil {
		publisher = &rabbitmq.EventProducerFallback{}
	}
	return &Jobs{
		repo:        repo,
		hider:       hider,
		broadcaster: broadcaster,
		publisher:   publisher,
		metrics:     metrics,
		logger:      logger,
		config:      cfg,
	}
}

// SetBroadcaster attaches the push transport once it is available.
func (j *Jobs) SetBroadcaster(b Broadcaster) {
	j.broadcaster = b
}

// RunScheduledRound is the cron entry point.
func (j *Jobs) RunScheduledRound() {
	j.logger.Info("starting prize round job")
	ctx, cancel := context.WithTimeout(context.Background(), RoundTimeout)
	defer cancel()

	report, err := j.StartRound(ctx)
	if err != nil {
		j.logger.Error("prize round job failed", "prize_id", report.PrizeID, "error", err)
		return
	}
	j.logger.Info("prize round job finished",
		"prize_id", report.PrizeID,
		"round", report.Round,
		"skipped", report.Skipped,
		"recipients", report.Recipients,
		"delivered", report.Delivered,
		"failed", report.Failed,
	)
}

// StartRound runs one rotation. Rounds never overlap: a concurrent call gets ErrRoundInProgress.
func (j *Jobs) StartRound(ctx context.Context) (RoundReport, error) {
	if !j.running.TryLock() {
		return RoundReport{Skipped: true}, ErrRoundInProgress
	}
	defer j.running.Unlock()

	// 1. Pick a prize that still has capacity.
	prize, err := j.repo.PickEligiblePrize(ctx)
	if err != nil {
		if errors.Is(err, store.ErrNoEligiblePrize) {
			j.logger.Info("no eligible prize; skipping round")
			j.metrics.observeRound(roundResultNoPrize)
			return RoundReport{Skipped: true}, nil
		}
		j.metrics.observeRound(roundResultFailed)
		return RoundReport{}, fmt.Errorf("pick eligible prize: %w", err)
	}
	report := RoundReport{PrizeID: prize.ID, AssetRef: prize.AssetRef, Round: prize.Round + 1}

	// 2. Re-arm it.
	if err := j.repo.ResetClaims(ctx, prize.ID); err != nil {
		j.metrics.observeRound(roundResultFailed)
		return report, fmt.Errorf("reset claims for prize %d: %w", prize.ID, err)
	}

	// 3. Produce the hidden rendition.
	hiddenPath, err := j.hider.Hide(ctx, prize.AssetRef)
	if err != nil {
		if errors.Is(err, domain.ErrAssetMissing) {
			j.metrics.observeRound(roundResultAssetMissing)
		} else {
			j.metrics.observeRound(roundResultFailed)
		}
		return report, fmt.Errorf("hide prize %d: %w", prize.ID, err)
	}

	// 4. Broadcast.
	recipients, err := j.repo.ListActiveParticipants(ctx)
	if err != nil {
		j.metrics.observeRound(roundResultFailed)
		return report, fmt.Errorf("list participants: %w", err)
	}
	report.Recipients = len(recipients)
	report.Delivered, report.Failed = j.broadcast(ctx, recipients, hiddenPath, prize.ID)
	j.metrics.observeDeliveries(report.Delivered, report.Failed)
	j.metrics.observeRound(roundResultStarted)

	event := domain.NewRoundStartedEvent(prize.ID, report.Round, report.Recipients, report.Delivered, report.Failed)
	if err := j.publisher.Publish(ctx, j.config.EventsExchange, domain.RoutingKeyRoundStarted, event); err != nil {
		j.logger.Warn("failed to publish round started event", "prize_id", prize.ID, "error", err)
	}
	return report, nil
}

// broadcast sends to every recipient with bounded concurrency. A failed send is logged
// and counted; it never stops the others.
func (j *Jobs) broadcast(ctx context.Context, recipients []int64, hiddenPath string, prizeID int64) (delivered, failed int) {
	if len(recipients) == 0 {
		return 0, 0
	}
	if j.broadcaster == nil {
		j.logger.Warn("no broadcaster configured; hidden prize not delivered", "prize_id", prizeID, "recipients", len(recipients))
		return 0, len(recipients)
	}

	limit := j.config.BroadcastConcurrency
	if limit <= 0 {
		limit = 1
	}

	var ok, bad atomic.Int64
	var g errgroup.Group
	g.SetLimit(limit)
	for _, recipientID := range recipients {
		recipientID := recipientID
		g.Go(func() error {
			if err := ctx.Err(); err != nil {
				bad.Add(1)
				return nil
			}
			if err := j.broadcaster.SendHiddenPrize(ctx, recipientID, hiddenPath, prizeID); err != nil {
				bad.Add(1)
				j.logger.Warn("failed to deliver hidden prize", "prize_id", prizeID, "recipient_id", recipientID, "error", err)
				return nil
			}
			ok.Add(1)
			return nil
		})
	}
	_ = g.Wait()
	return int(ok.Load()), int(bad.Load())
}
