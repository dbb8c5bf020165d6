package store

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/prizedrop/prize-service/internal/domain"
)

// runRepositoryContract exercises behaviour every Repository implementation must share.
func runRepositoryContract(t *testing.T, newRepo func(t *testing.T) Repository) {
	t.Helper()

	t.Run("register participant is idempotent and keeps points", func(t *testing.T) {
		ctx := context.Background()
		repo := newRepo(t)

		created, err := repo.RegisterParticipant(ctx, 10, "alice")
		if err != nil || !created {
			t.Fatalf("expected first registration to create, got created=%v err=%v", created, err)
		}
		prizeID := mustRegisterPrize(t, repo, "a.png")
		mustClaim(t, repo, prizeID, 10, domain.ClaimResultWon)

		created, err = repo.RegisterParticipant(ctx, 10, "alice-again")
		if err != nil {
			t.Fatalf("second registration returned error: %v", err)
		}
		if created {
			t.Fatal("expected second registration to report already registered")
		}

		ids, err := repo.ListActiveParticipants(ctx)
		if err != nil {
			t.Fatalf("ListActiveParticipants returned error: %v", err)
		}
		if len(ids) != 1 || ids[0] != 10 {
			t.Fatalf("expected exactly participant 10, got %v", ids)
		}

		p, err := repo.FindParticipant(ctx, 10)
		if err != nil {
			t.Fatalf("FindParticipant returned error: %v", err)
		}
		if p.Points != 1 {
			t.Fatalf("expected points to survive re-registration, got %d", p.Points)
		}
		if p.DisplayName != "alice" {
			t.Fatalf("expected original display name to be kept, got %q", p.DisplayName)
		}
	})

	t.Run("three sequential winners then exhausted", func(t *testing.T) {
		ctx := context.Background()
		repo := newRepo(t)
		prizeID := mustRegisterPrize(t, repo, "p1.png")
		for _, id := range []int64{1, 2, 3, 4} {
			mustRegisterParticipant(t, repo, id)
		}

		for i, id := range []int64{1, 2, 3} {
			receipt := mustClaim(t, repo, prizeID, id, domain.ClaimResultWon)
			if receipt.AssetRef != "p1.png" {
				t.Fatalf("expected won receipt to carry asset ref, got %q", receipt.AssetRef)
			}
			if receipt.ClaimCount != i+1 {
				t.Fatalf("expected claim count %d, got %d", i+1, receipt.ClaimCount)
			}
		}
		mustClaim(t, repo, prizeID, 4, domain.ClaimResultExhausted)

		count, err := repo.GetClaimCount(ctx, prizeID)
		if err != nil {
			t.Fatalf("GetClaimCount returned error: %v", err)
		}
		if count != domain.MaxWinnersPerPrize {
			t.Fatalf("expected claim count 3, got %d", count)
		}

		late, err := repo.FindParticipant(ctx, 4)
		if err != nil {
			t.Fatalf("FindParticipant returned error: %v", err)
		}
		if late.Points != 0 {
			t.Fatalf("expected exhausted claimant to have 0 points, got %d", late.Points)
		}
	})

	t.Run("concurrent claims admit exactly three", func(t *testing.T) {
		ctx := context.Background()
		repo := newRepo(t)
		prizeID := mustRegisterPrize(t, repo, "race.png")

		const claimants = 25
		for id := int64(1); id <= claimants; id++ {
			mustRegisterParticipant(t, repo, id)
		}

		var (
			wg      sync.WaitGroup
			start   = make(chan struct{})
			mu      sync.Mutex
			results = make(map[domain.ClaimResult]int)
			errs    []error
		)
		for id := int64(1); id <= claimants; id++ {
			wg.Add(1)
			go func(participantID int64) {
				defer wg.Done()
				<-start
				receipt, err := repo.TryClaim(ctx, prizeID, participantID)
				mu.Lock()
				defer mu.Unlock()
				if err != nil {
					errs = append(errs, err)
					return
				}
				results[receipt.Result]++
			}(id)
		}
		close(start)
		wg.Wait()

		if len(errs) > 0 {
			t.Fatalf("expected no claim errors, got %v", errs)
		}
		if results[domain.ClaimResultWon] != domain.MaxWinnersPerPrize {
			t.Fatalf("expected 3 winners, got %d (results=%v)", results[domain.ClaimResultWon], results)
		}
		if results[domain.ClaimResultExhausted] != claimants-domain.MaxWinnersPerPrize {
			t.Fatalf("expected %d exhausted, got %d", claimants-domain.MaxWinnersPerPrize, results[domain.ClaimResultExhausted])
		}

		count, err := repo.GetClaimCount(ctx, prizeID)
		if err != nil {
			t.Fatalf("GetClaimCount returned error: %v", err)
		}
		if count != results[domain.ClaimResultWon] {
			t.Fatalf("expected claim count to equal winners, got count=%d winners=%d", count, results[domain.ClaimResultWon])
		}

		totalPoints := 0
		totalRecords := 0
		for id := int64(1); id <= claimants; id++ {
			p, err := repo.FindParticipant(ctx, id)
			if err != nil {
				t.Fatalf("FindParticipant returned error: %v", err)
			}
			records, err := repo.ListWinnerRecords(ctx, id)
			if err != nil {
				t.Fatalf("ListWinnerRecords returned error: %v", err)
			}
			if p.Points != len(records) {
				t.Fatalf("participant %d: points %d != winner records %d", id, p.Points, len(records))
			}
			totalPoints += p.Points
			totalRecords += len(records)
		}
		if totalPoints != domain.MaxWinnersPerPrize || totalRecords != domain.MaxWinnersPerPrize {
			t.Fatalf("expected 3 points and 3 records in total, got points=%d records=%d", totalPoints, totalRecords)
		}
	})

	t.Run("same participant cannot win a prize twice", func(t *testing.T) {
		repo := newRepo(t)
		prizeID := mustRegisterPrize(t, repo, "dup.png")
		mustRegisterParticipant(t, repo, 7)

		mustClaim(t, repo, prizeID, 7, domain.ClaimResultWon)
		mustClaim(t, repo, prizeID, 7, domain.ClaimResultAlreadyClaimed)

		if err := repo.ResetClaims(context.Background(), prizeID); err != nil {
			t.Fatalf("ResetClaims returned error: %v", err)
		}
		mustClaim(t, repo, prizeID, 7, domain.ClaimResultAlreadyClaimed)
	})

	t.Run("claim reports missing prize and participant", func(t *testing.T) {
		repo := newRepo(t)
		prizeID := mustRegisterPrize(t, repo, "x.png")
		mustRegisterParticipant(t, repo, 1)

		mustClaim(t, repo, prizeID+1000, 1, domain.ClaimResultPrizeNotFound)
		mustClaim(t, repo, prizeID, 999, domain.ClaimResultParticipantNotFound)

		count, err := repo.GetClaimCount(context.Background(), prizeID)
		if err != nil {
			t.Fatalf("GetClaimCount returned error: %v", err)
		}
		if count != 0 {
			t.Fatalf("expected failed claims to leave count at 0, got %d", count)
		}
	})

	t.Run("reset re-arms an exhausted prize and keeps winner records", func(t *testing.T) {
		ctx := context.Background()
		repo := newRepo(t)
		prizeID := mustRegisterPrize(t, repo, "reset.png")
		for id := int64(1); id <= 5; id++ {
			mustRegisterParticipant(t, repo, id)
		}
		for id := int64(1); id <= 3; id++ {
			mustClaim(t, repo, prizeID, id, domain.ClaimResultWon)
		}

		if _, err := repo.PickEligiblePrize(ctx); !errors.Is(err, ErrNoEligiblePrize) {
			t.Fatalf("expected no eligible prize while exhausted, got %v", err)
		}

		if err := repo.ResetClaims(ctx, prizeID); err != nil {
			t.Fatalf("ResetClaims returned error: %v", err)
		}
		count, err := repo.GetClaimCount(ctx, prizeID)
		if err != nil {
			t.Fatalf("GetClaimCount returned error: %v", err)
		}
		if count != 0 {
			t.Fatalf("expected claim count 0 after reset, got %d", count)
		}

		picked, err := repo.PickEligiblePrize(ctx)
		if err != nil {
			t.Fatalf("PickEligiblePrize returned error: %v", err)
		}
		if picked.ID != prizeID || picked.Round != 1 {
			t.Fatalf("expected re-armed prize %d in round 1, got id=%d round=%d", prizeID, picked.ID, picked.Round)
		}

		receipt := mustClaim(t, repo, prizeID, 4, domain.ClaimResultWon)
		if receipt.Round != 1 {
			t.Fatalf("expected winner record in round 1, got %d", receipt.Round)
		}

		for id := int64(1); id <= 3; id++ {
			records, err := repo.ListWinnerRecords(ctx, id)
			if err != nil {
				t.Fatalf("ListWinnerRecords returned error: %v", err)
			}
			if len(records) != 1 || records[0].Round != 0 {
				t.Fatalf("expected round-0 record for participant %d to survive reset, got %+v", id, records)
			}
		}
	})

	t.Run("reset of unknown prize is not found", func(t *testing.T) {
		repo := newRepo(t)
		if err := repo.ResetClaims(context.Background(), 4242); !errors.Is(err, ErrPrizeNotFound) {
			t.Fatalf("expected ErrPrizeNotFound, got %v", err)
		}
	})

	t.Run("lookups of unknown prize are not found", func(t *testing.T) {
		ctx := context.Background()
		repo := newRepo(t)
		if _, err := repo.GetClaimCount(ctx, 77); !errors.Is(err, ErrPrizeNotFound) {
			t.Fatalf("expected ErrPrizeNotFound from GetClaimCount, got %v", err)
		}
		if _, err := repo.GetAssetRef(ctx, 77); !errors.Is(err, ErrPrizeNotFound) {
			t.Fatalf("expected ErrPrizeNotFound from GetAssetRef, got %v", err)
		}
		if _, err := repo.FindParticipant(ctx, 77); !errors.Is(err, ErrParticipantNotFound) {
			t.Fatalf("expected ErrParticipantNotFound, got %v", err)
		}
	})

	t.Run("pick never returns an exhausted prize", func(t *testing.T) {
		ctx := context.Background()
		repo := newRepo(t)
		full := mustRegisterPrize(t, repo, "full.png")
		open := mustRegisterPrize(t, repo, "open.png")
		for id := int64(1); id <= 3; id++ {
			mustRegisterParticipant(t, repo, id)
			mustClaim(t, repo, full, id, domain.ClaimResultWon)
		}

		for i := 0; i < 20; i++ {
			picked, err := repo.PickEligiblePrize(ctx)
			if err != nil {
				t.Fatalf("PickEligiblePrize returned error: %v", err)
			}
			if picked.ID != open {
				t.Fatalf("expected only prize %d to be eligible, got %d", open, picked.ID)
			}
		}

		for id := int64(1); id <= 3; id++ {
			mustClaim(t, repo, open, id, domain.ClaimResultWon)
		}
		if _, err := repo.PickEligiblePrize(ctx); !errors.Is(err, ErrNoEligiblePrize) {
			t.Fatalf("expected ErrNoEligiblePrize once every prize is exhausted, got %v", err)
		}
	})

	t.Run("top participants orders by points then id", func(t *testing.T) {
		ctx := context.Background()
		repo := newRepo(t)

		empty, err := repo.TopParticipants(ctx, 10)
		if err != nil {
			t.Fatalf("TopParticipants on empty store returned error: %v", err)
		}
		if len(empty) != 0 {
			t.Fatalf("expected empty leaderboard, got %v", empty)
		}

		for _, id := range []int64{30, 10, 20, 40} {
			mustRegisterParticipant(t, repo, id)
		}
		p1 := mustRegisterPrize(t, repo, "1.png")
		p2 := mustRegisterPrize(t, repo, "2.png")
		mustClaim(t, repo, p1, 30, domain.ClaimResultWon)
		mustClaim(t, repo, p2, 30, domain.ClaimResultWon)
		mustClaim(t, repo, p1, 20, domain.ClaimResultWon)
		mustClaim(t, repo, p2, 40, domain.ClaimResultWon)

		top, err := repo.TopParticipants(ctx, 3)
		if err != nil {
			t.Fatalf("TopParticipants returned error: %v", err)
		}
		want := []struct {
			id     int64
			points int
		}{{30, 2}, {20, 1}, {40, 1}}
		if len(top) != len(want) {
			t.Fatalf("expected %d entries, got %d (%+v)", len(want), len(top), top)
		}
		for i, w := range want {
			if top[i].ParticipantID != w.id || top[i].Points != w.points {
				t.Fatalf("entry %d: expected id=%d points=%d, got %+v", i, w.id, w.points, top[i])
			}
		}

		all, err := repo.TopParticipants(ctx, 1<<31-1)
		if err != nil {
			t.Fatalf("TopParticipants with a huge limit returned error: %v", err)
		}
		if len(all) != 4 {
			t.Fatalf("expected every participant for a huge limit, got %d", len(all))
		}

		none, err := repo.TopParticipants(ctx, 0)
		if err != nil {
			t.Fatalf("TopParticipants(0) returned error: %v", err)
		}
		if len(none) != 0 {
			t.Fatalf("expected empty result for n=0, got %v", none)
		}
	})

	t.Run("list prizes and asset refs", func(t *testing.T) {
		ctx := context.Background()
		repo := newRepo(t)
		first := mustRegisterPrize(t, repo, "first.png")
		second := mustRegisterPrize(t, repo, "second.png")

		ref, err := repo.GetAssetRef(ctx, second)
		if err != nil {
			t.Fatalf("GetAssetRef returned error: %v", err)
		}
		if ref != "second.png" {
			t.Fatalf("expected second.png, got %q", ref)
		}

		prizes, err := repo.ListPrizes(ctx)
		if err != nil {
			t.Fatalf("ListPrizes returned error: %v", err)
		}
		if len(prizes) != 2 || prizes[0].ID != first || prizes[1].ID != second {
			t.Fatalf("expected prizes ordered by id, got %+v", prizes)
		}
		if prizes[0].Status() != domain.PrizeStatusAvailable {
			t.Fatalf("expected fresh prize to be available, got %s", prizes[0].Status())
		}
	})
}

func mustRegisterParticipant(t *testing.T, repo Repository, id int64) {
	t.Helper()
	if _, err := repo.RegisterParticipant(context.Background(), id, ""); err != nil {
		t.Fatalf("RegisterParticipant(%d) returned error: %v", id, err)
	}
}

func mustRegisterPrize(t *testing.T, repo Repository, assetRef string) int64 {
	t.Helper()
	id, err := repo.RegisterPrize(context.Background(), assetRef)
	if err != nil {
		t.Fatalf("RegisterPrize(%q) returned error: %v", assetRef, err)
	}
	return id
}

func mustClaim(t *testing.T, repo Repository, prizeID, participantID int64, want domain.ClaimResult) domain.ClaimReceipt {
	t.Helper()
	receipt, err := repo.TryClaim(context.Background(), prizeID, participantID)
	if err != nil {
		t.Fatalf("TryClaim(%d, %d) returned error: %v", prizeID, participantID, err)
	}
	if receipt.Result != want {
		t.Fatalf("TryClaim(%d, %d): expected %s, got %s", prizeID, participantID, want, receipt.Result)
	}
	return receipt
}

// assertFailedClaimLeftNoTrace claims with the winner insert made to fail and checks
// that neither the count nor the points moved.
func assertFailedClaimLeftNoTrace(t *testing.T, repo Repository, prizeID, participantID int64) {
	t.Helper()
	ctx := context.Background()

	_, err := repo.TryClaim(ctx, prizeID, participantID)
	if !errors.Is(err, ErrStorage) {
		t.Fatalf("expected storage error, got %v", err)
	}
	var storageErr *StorageError
	if !errors.As(err, &storageErr) || storageErr.Op != "insert winner record" {
		t.Fatalf("expected failure on the winner insert, got %v", err)
	}

	count, err := repo.GetClaimCount(ctx, prizeID)
	if err != nil {
		t.Fatalf("GetClaimCount returned error: %v", err)
	}
	if count != 0 {
		t.Fatalf("expected claim count 0 after failed claim, got %d", count)
	}
	participant, err := repo.FindParticipant(ctx, participantID)
	if err != nil {
		t.Fatalf("FindParticipant returned error: %v", err)
	}
	if participant.Points != 0 {
		t.Fatalf("expected 0 points after failed claim, got %d", participant.Points)
	}
	records, err := repo.ListWinnerRecords(ctx, participantID)
	if err != nil {
		t.Fatalf("ListWinnerRecords returned error: %v", err)
	}
	if len(records) != 0 {
		t.Fatalf("expected no winner records after failed claim, got %+v", records)
	}
}
