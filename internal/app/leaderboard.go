package app

import (
	"context"
	"fmt"
	"strings"

	"github.com/prizedrop/prize-service/internal/domain"
	"github.com/prizedrop/prize-service/internal/store"
)

// AnonymousName is shown for participants without a display name.
const AnonymousName = "Anonymous"

// LeaderboardService is the read-only ranking query.
type LeaderboardService struct {
	repo store.Repository
}

func NewLeaderboardService(repo store.Repository) *LeaderboardService {
	return &LeaderboardService{repo: repo}
}

// Top returns at most n entries ranked by points descending, ties broken by ascending id.
func (s *LeaderboardService) Top(ctx context.Context, n int) ([]domain.LeaderboardEntry, error) {
	if n <= 0 {
		return []domain.LeaderboardEntry{}, nil
	}
	entries, err := s.repo.TopParticipants(ctx, n)
	if err != nil {
		return nil, fmt.Errorf("load leaderboard: %w", err)
	}
	for i := range entries {
		entries[i].Rank = i + 1
		if strings.TrimSpace(entries[i].DisplayName) == "" {
			entries[i].DisplayName = AnonymousName
		}
	}
	return entries, nil
}
