package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/prizedrop/prize-service/internal/domain"
	"github.com/prizedrop/prize-service/internal/store"
)

var ErrInvalidParticipant = errors.New("invalid participant id")

// ParticipantService registers players.
type ParticipantService struct {
	repo   store.Repository
	logger *slog.Logger
}

func NewParticipantService(repo store.Repository, logger *slog.Logger) *ParticipantService {
	return &ParticipantService{repo: repo, logger: logger}
}

// Register adds the participant unless already present. created is false for a repeat
// registration, which leaves points untouched.
func (s *ParticipantService) Register(ctx context.Context, id int64, displayName string) (created bool, err error) {
	if id == 0 {
		return false, ErrInvalidParticipant
	}
	created, err = s.repo.RegisterParticipant(ctx, id, strings.TrimSpace(displayName))
	if err != nil {
		return false, fmt.Errorf("register participant %d: %w", id, err)
	}
	if created {
		s.logger.Info("participant registered", "participant_id", id)
	}
	return created, nil
}

func (s *ParticipantService) Find(ctx context.Context, id int64) (*domain.Participant, error) {
	return s.repo.FindParticipant(ctx, id)
}
