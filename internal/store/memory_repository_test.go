package store

import (
	"context"
	"testing"
)

func TestMemoryRepositoryContract(t *testing.T) {
	runRepositoryContract(t, func(t *testing.T) Repository {
		return NewMemoryRepository()
	})
}

func TestMemoryRepositoryReturnsCopies(t *testing.T) {
	repo := NewMemoryRepository()
	prizeID := mustRegisterPrize(t, repo, "copy.png")

	prize, err := repo.FindPrize(context.Background(), prizeID)
	if err != nil {
		t.Fatalf("FindPrize returned error: %v", err)
	}
	prize.ClaimCount = 3

	count, err := repo.GetClaimCount(context.Background(), prizeID)
	if err != nil {
		t.Fatalf("GetClaimCount returned error: %v", err)
	}
	if count != 0 {
		t.Fatalf("expected mutation of returned prize not to leak into the store, got %d", count)
	}
}
