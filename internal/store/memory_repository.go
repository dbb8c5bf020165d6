package store

import (
	"context"
	"math/rand"
	"sort"
	"sync"
	"time"

	"github.com/prizedrop/prize-service/internal/domain"
)

type winnerKey struct {
	participantID int64
	prizeID       int64
}

// MemoryRepository keeps all game state in process memory behind a single RWMutex.
// Writers take the exclusive lock, readers share it.
type MemoryRepository struct {
	mu           sync.RWMutex
	participants map[int64]*domain.Participant
	prizes       map[int64]*domain.Prize
	winners      []domain.WinnerRecord
	winnerIndex  map[winnerKey]struct{}
	nextPrizeID  int64
	now          func() time.Time
}

// NewMemoryRepository creates an empty in-memory store.
func NewMemoryRepository() *MemoryRepository {
	return &MemoryRepository{
		participants: make(map[int64]*domain.Participant),
		prizes:       make(map[int64]*domain.Prize),
		winnerIndex:  make(map[winnerKey]struct{}),
		nextPrizeID:  1,
		now:          func() time.Time { return time.Now().UTC() },
	}
}

func (r *MemoryRepository) RegisterParticipant(ctx context.Context, id int64, displayName string) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.participants[id]; exists {
		return false, nil
	}
	r.participants[id] = &domain.Participant{
		ID:           id,
		DisplayName:  displayName,
		RegisteredAt: r.now(),
	}
	return true, nil
}

func (r *MemoryRepository) ListActiveParticipants(ctx context.Context) ([]int64, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	ids := make([]int64, 0, len(r.participants))
	for id := range r.participants {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	return ids, nil
}

func (r *MemoryRepository) FindParticipant(ctx context.Context, id int64) (*domain.Participant, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	p, ok := r.participants[id]
	if !ok {
		return nil, ErrParticipantNotFound
	}
	copied := *p
	return &copied, nil
}

func (r *MemoryRepository) RegisterPrize(ctx context.Context, assetRef string) (int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	id := r.nextPrizeID
	r.nextPrizeID++
	r.prizes[id] = &domain.Prize{ID: id, AssetRef: assetRef, CreatedAt: r.now()}
	return id, nil
}

func (r *MemoryRepository) PickEligiblePrize(ctx context.Context) (*domain.Prize, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	eligible := make([]*domain.Prize, 0, len(r.prizes))
	for _, p := range r.prizes {
		if p.ClaimCount < domain.MaxWinnersPerPrize {
			eligible = append(eligible, p)
		}
	}
	if len(eligible) == 0 {
		return nil, ErrNoEligiblePrize
	}
	picked := *eligible[rand.Intn(len(eligible))]
	return &picked, nil
}

func (r *MemoryRepository) FindPrize(ctx context.Context, prizeID int64) (*domain.Prize, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	p, ok := r.prizes[prizeID]
	if !ok {
		return nil, ErrPrizeNotFound
	}
	copied := *p
	return &copied, nil
}

func (r *MemoryRepository) ListPrizes(ctx context.Context) ([]domain.Prize, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	prizes := make([]domain.Prize, 0, len(r.prizes))
	for _, p := range r.prizes {
		prizes = append(prizes, *p)
	}
	sort.Slice(prizes, func(i, j int) bool { return prizes[i].ID < prizes[j].ID })
	return prizes, nil
}

func (r *MemoryRepository) GetClaimCount(ctx context.Context, prizeID int64) (int, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	p, ok := r.prizes[prizeID]
	if !ok {
		return 0, ErrPrizeNotFound
	}
	return p.ClaimCount, nil
}

func (r *MemoryRepository) GetAssetRef(ctx context.Context, prizeID int64) (string, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	p, ok := r.prizes[prizeID]
	if !ok {
		return "", ErrPrizeNotFound
	}
	return p.AssetRef, nil
}

func (r *MemoryRepository) ResetClaims(ctx context.Context, prizeID int64) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	p, ok := r.prizes[prizeID]
	if !ok {
		return ErrPrizeNotFound
	}
	p.ClaimCount = 0
	p.Round++
	return nil
}

// TryClaim performs the capacity check and the admission under one exclusive lock.
func (r *MemoryRepository) TryClaim(ctx context.Context, prizeID, participantID int64) (domain.ClaimReceipt, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	prize, ok := r.prizes[prizeID]
	if !ok {
		return domain.ClaimReceipt{Result: domain.ClaimResultPrizeNotFound}, nil
	}
	participant, ok := r.participants[participantID]
	if !ok {
		return domain.ClaimReceipt{Result: domain.ClaimResultParticipantNotFound}, nil
	}
	if prize.ClaimCount >= domain.MaxWinnersPerPrize {
		return domain.ClaimReceipt{Result: domain.ClaimResultExhausted}, nil
	}
	key := winnerKey{participantID: participantID, prizeID: prizeID}
	if _, claimed := r.winnerIndex[key]; claimed {
		return domain.ClaimReceipt{Result: domain.ClaimResultAlreadyClaimed}, nil
	}

	prize.ClaimCount++
	participant.Points++
	r.winnerIndex[key] = struct{}{}
	r.winners = append(r.winners, domain.WinnerRecord{
		ParticipantID: participantID,
		PrizeID:       prizeID,
		Round:         prize.Round,
		ClaimedAt:     r.now(),
	})

	return domain.ClaimReceipt{
		Result:     domain.ClaimResultWon,
		AssetRef:   prize.AssetRef,
		Round:      prize.Round,
		ClaimCount: prize.ClaimCount,
	}, nil
}

func (r *MemoryRepository) ListWinnerRecords(ctx context.Context, participantID int64) ([]domain.WinnerRecord, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	records := make([]domain.WinnerRecord, 0)
	for _, w := range r.winners {
		if w.ParticipantID == participantID {
			records = append(records, w)
		}
	}
	return records, nil
}

func (r *MemoryRepository) TopParticipants(ctx context.Context, n int) ([]domain.LeaderboardEntry, error) {
	if n <= 0 {
		return []domain.LeaderboardEntry{}, nil
	}

	r.mu.RLock()
	ranked := make([]domain.Participant, 0, len(r.participants))
	for _, p := range r.participants {
		ranked = append(ranked, *p)
	}
	r.mu.RUnlock()

	sort.Slice(ranked, func(i, j int) bool {
		if ranked[i].Points != ranked[j].Points {
			return ranked[i].Points > ranked[j].Points
		}
		return ranked[i].ID < ranked[j].ID
	})
	if len(ranked) > n {
		ranked = ranked[:n]
	}

	entries := make([]domain.LeaderboardEntry, 0, len(ranked))
	for _, p := range ranked {
		entries = append(entries, domain.LeaderboardEntry{
			ParticipantID: p.ID,
			DisplayName:   p.DisplayName,
			Points:        p.Points,
		})
	}
	return entries, nil
}

func (r *MemoryRepository) Close() error {
	return nil
}
