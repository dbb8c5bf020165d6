package app

import (
	"context"
	"io"
	"log/slog"
	"sync"

	"github.com/prizedrop/prize-service/internal/domain"
	"github.com/prizedrop/prize-service/internal/store"
)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

type publishedEvent struct {
	exchange   string
	routingKey string
	body       interface{}
}

type publisherStub struct {
	mu     sync.Mutex
	events []publishedEvent
	err    error
}

func (p *publisherStub) Publish(ctx context.Context, exchange, routingKey string, body interface{}) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.events = append(p.events, publishedEvent{exchange: exchange, routingKey: routingKey, body: body})
	return p.err
}

func (p *publisherStub) Close() {}

func (p *publisherStub) byRoutingKey(key string) []publishedEvent {
	p.mu.Lock()
	defer p.mu.Unlock()
	var out []publishedEvent
	for _, e := range p.events {
		if e.routingKey == key {
			out = append(out, e)
		}
	}
	return out
}

// failingRepo overrides selected methods of a real repository with errors.
type failingRepo struct {
	store.Repository
	tryClaimErr error
	pickErr     error
	resetErr    error
	listErr     error
	topErr      error
}

func (r *failingRepo) TryClaim(ctx context.Context, prizeID, participantID int64) (domain.ClaimReceipt, error) {
	if r.tryClaimErr != nil {
		return domain.ClaimReceipt{}, r.tryClaimErr
	}
	return r.Repository.TryClaim(ctx, prizeID, participantID)
}

func (r *failingRepo) PickEligiblePrize(ctx context.Context) (*domain.Prize, error) {
	if r.pickErr != nil {
		return nil, r.pickErr
	}
	return r.Repository.PickEligiblePrize(ctx)
}

func (r *failingRepo) ResetClaims(ctx context.Context, prizeID int64) error {
	if r.resetErr != nil {
		return r.resetErr
	}
	return r.Repository.ResetClaims(ctx, prizeID)
}

func (r *failingRepo) ListActiveParticipants(ctx context.Context) ([]int64, error) {
	if r.listErr != nil {
		return nil, r.listErr
	}
	return r.Repository.ListActiveParticipants(ctx)
}

func (r *failingRepo) TopParticipants(ctx context.Context, n int) ([]domain.LeaderboardEntry, error) {
	if r.topErr != nil {
		return nil, r.topErr
	}
	return r.Repository.TopParticipants(ctx, n)
}

func seedRepo(participants []int64, assets ...string) (*store.MemoryRepository, []int64) {
	repo := store.NewMemoryRepository()
	ctx := context.Background()
	for _, id := range participants {
		_, _ = repo.RegisterParticipant(ctx, id, "")
	}
	ids := make([]int64, 0, len(assets))
	for _, a := range assets {
		id, _ := repo.RegisterPrize(ctx, a)
		ids = append(ids, id)
	}
	return repo, ids
}
