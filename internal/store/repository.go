/**
 * @description
 * This file defines the `Repository` interface, the only component allowed to mutate
 * persisted game state. Every compound mutation is atomic with respect to concurrent
 * callers; implementations exist for SQLite, PostgreSQL and process memory.
 *
 * @dependencies
 * - context: Standard Go library.
 * - internal/domain: For the service's domain models.
 */

package store

import (
	"context"
	"errors"
	"fmt"

	"github.com/prizedrop/prize-service/internal/domain"
)

// maxPrealloc caps slice capacity taken from caller-supplied limits.
const maxPrealloc = 100

var (
	ErrPrizeNotFound       = errors.New("prize not found")
	ErrParticipantNotFound = errors.New("participant not found")
	ErrNoEligiblePrize     = errors.New("no eligible prize")
	ErrStorage             = errors.New("storage failure")
)

// StorageError wraps a driver or I/O failure. The attempted mutation was not applied.
type StorageError struct {
	Op  string
	Err error
}

func (e *StorageError) Error() string {
	return fmt.Sprintf("%s: %v", e.Op, e.Err)
}

func (e *StorageError) Unwrap() error {
	return e.Err
}

// Is lets callers match any storage failure with errors.Is(err, ErrStorage).
func (e *StorageError) Is(target error) bool {
	return target == ErrStorage
}

func storageError(op string, err error) error {
	if err == nil {
		return nil
	}
	return &StorageError{Op: op, Err: err}
}

// Repository defines the set of methods for interacting with the prize store.
type Repository interface {
	// Participant methods
	RegisterParticipant(ctx context.Context, id int64, displayName string) (created bool, err error)
	ListActiveParticipants(ctx context.Context) ([]int64, error)
	FindParticipant(ctx context.Context, id int64) (*domain.Participant, error)

	// Prize methods
	RegisterPrize(ctx context.Context, assetRef string) (int64, error)
	PickEligiblePrize(ctx context.Context) (*domain.Prize, error)
	FindPrize(ctx context.Context, prizeID int64) (*domain.Prize, error)
	ListPrizes(ctx context.Context) ([]domain.Prize, error)
	GetClaimCount(ctx context.Context, prizeID int64) (int, error)
	GetAssetRef(ctx context.Context, prizeID int64) (string, error)
	ResetClaims(ctx context.Context, prizeID int64) error

	// Claim methods
	TryClaim(ctx context.Context, prizeID, participantID int64) (domain.ClaimReceipt, error)
	ListWinnerRecords(ctx context.Context, participantID int64) ([]domain.WinnerRecord, error)

	// Ranking methods
	TopParticipants(ctx context.Context, n int) ([]domain.LeaderboardEntry, error)

	Close() error
}
