package app

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"

	"github.com/prizedrop/prize-service/internal/domain"
	"github.com/prizedrop/prize-service/internal/store"
)

type limiterStub struct {
	allowed    bool
	retryAfter int
	err        error
	calls      int
	subjects   []int64
}

func (l *limiterStub) AllowClaim(ctx context.Context, participantID int64) (bool, int, error) {
	l.calls++
	l.subjects = append(l.subjects, participantID)
	return l.allowed, l.retryAfter, l.err
}

func TestClaimService_FirstThreeWin(t *testing.T) {
	repo, prizes := seedRepo([]int64{1, 2, 3, 4}, "star.png")
	pub := &publisherStub{}
	svc := NewClaimService(repo, pub, "prize_events", nil, discardLogger())
	ctx := context.Background()

	for i, id := range []int64{1, 2, 3} {
		outcome, err := svc.Claim(ctx, prizes[0], id)
		if err != nil {
			t.Fatalf("Claim returned error: %v", err)
		}
		if outcome.Status != domain.ClaimStatusWon {
			t.Fatalf("participant %d: expected won, got %s", id, outcome.Status)
		}
		if outcome.AssetRef != "star.png" || outcome.Position != i+1 {
			t.Fatalf("participant %d: unexpected outcome %+v", id, outcome)
		}
	}

	outcome, err := svc.Claim(ctx, prizes[0], 4)
	if err != nil {
		t.Fatalf("Claim returned error: %v", err)
	}
	if outcome.Status != domain.ClaimStatusExhausted {
		t.Fatalf("expected exhausted for fourth claimant, got %s", outcome.Status)
	}

	count, _ := repo.GetClaimCount(ctx, prizes[0])
	if count != 3 {
		t.Fatalf("expected claim count 3, got %d", count)
	}
	for _, id := range []int64{1, 2, 3} {
		p, _ := repo.FindParticipant(ctx, id)
		if p.Points != 1 {
			t.Fatalf("participant %d: expected 1 point, got %d", id, p.Points)
		}
	}
	p4, _ := repo.FindParticipant(ctx, 4)
	if p4.Points != 0 {
		t.Fatalf("expected participant 4 to have 0 points, got %d", p4.Points)
	}

	events := pub.byRoutingKey(domain.RoutingKeyClaimWon)
	if len(events) != 3 {
		t.Fatalf("expected 3 win events, got %d", len(events))
	}
	if events[0].exchange != "prize_events" {
		t.Fatalf("expected events exchange, got %q", events[0].exchange)
	}
	if ev, ok := events[2].body.(domain.ClaimWonEvent); !ok || ev.Position != 3 || ev.ParticipantID != 3 {
		t.Fatalf("unexpected third win event %+v", events[2].body)
	}
}

func TestClaimService_ConcurrentClaimsAdmitThree(t *testing.T) {
	const claimants = 40
	ids := make([]int64, claimants)
	for i := range ids {
		ids[i] = int64(i + 1)
	}
	repo, prizes := seedRepo(ids, "race.png")
	svc := NewClaimService(repo, nil, "prize_events", nil, discardLogger())

	var (
		wg     sync.WaitGroup
		mu     sync.Mutex
		counts = make(map[domain.ClaimStatus]int)
	)
	start := make(chan struct{})
	for _, id := range ids {
		wg.Add(1)
		go func(participantID int64) {
			defer wg.Done()
			<-start
			outcome, err := svc.Claim(context.Background(), prizes[0], participantID)
			if err != nil {
				t.Errorf("Claim returned error: %v", err)
				return
			}
			mu.Lock()
			counts[outcome.Status]++
			mu.Unlock()
		}(id)
	}
	close(start)
	wg.Wait()

	if counts[domain.ClaimStatusWon] != 3 || counts[domain.ClaimStatusExhausted] != claimants-3 {
		t.Fatalf("expected 3 won and %d exhausted, got %v", claimants-3, counts)
	}
}

func TestClaimService_OutcomeMapping(t *testing.T) {
	repo, prizes := seedRepo([]int64{1}, "a.png")
	svc := NewClaimService(repo, nil, "prize_events", nil, discardLogger())
	ctx := context.Background()

	tests := []struct {
		name          string
		prizeID       int64
		participantID int64
		want          domain.ClaimStatus
	}{
		{name: "won", prizeID: prizes[0], participantID: 1, want: domain.ClaimStatusWon},
		{name: "already claimed", prizeID: prizes[0], participantID: 1, want: domain.ClaimStatusAlreadyClaimed},
		{name: "unknown prize", prizeID: 999, participantID: 1, want: domain.ClaimStatusNotFound},
		{name: "unregistered participant", prizeID: prizes[0], participantID: 42, want: domain.ClaimStatusNotRegistered},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			outcome, err := svc.Claim(ctx, tc.prizeID, tc.participantID)
			if err != nil {
				t.Fatalf("Claim returned error: %v", err)
			}
			if outcome.Status != tc.want {
				t.Fatalf("expected %s, got %s", tc.want, outcome.Status)
			}
			if outcome.PrizeID != tc.prizeID || outcome.ParticipantID != tc.participantID {
				t.Fatalf("expected ids to be echoed, got %+v", outcome)
			}
		})
	}
}

func TestClaimService_StorageFailureIsUnavailable(t *testing.T) {
	base, prizes := seedRepo([]int64{1}, "a.png")
	storageErr := &store.StorageError{Op: "begin claim", Err: errors.New("disk full")}
	repo := &failingRepo{Repository: base, tryClaimErr: storageErr}
	pub := &publisherStub{}
	svc := NewClaimService(repo, pub, "prize_events", nil, discardLogger())

	outcome, err := svc.Claim(context.Background(), prizes[0], 1)
	if !errors.Is(err, store.ErrStorage) {
		t.Fatalf("expected storage error, got %v", err)
	}
	if outcome.Status != domain.ClaimStatusUnavailable {
		t.Fatalf("expected unavailable, got %s", outcome.Status)
	}
	if len(pub.events) != 0 {
		t.Fatalf("expected no events on failure, got %d", len(pub.events))
	}
}

func TestClaimService_RateLimiting(t *testing.T) {
	t.Run("over the limit is rejected before the store", func(t *testing.T) {
		repo, prizes := seedRepo([]int64{1}, "a.png")
		svc := NewClaimService(repo, nil, "prize_events", nil, discardLogger())
		limiter := &limiterStub{retryAfter: 17}
		svc.SetRateLimiter(limiter)

		outcome, err := svc.Claim(context.Background(), prizes[0], 1)
		if err != nil {
			t.Fatalf("Claim returned error: %v", err)
		}
		if outcome.Status != domain.ClaimStatusRateLimited || outcome.RetryAfterSeconds != 17 {
			t.Fatalf("expected rate_limited with retry 17, got %+v", outcome)
		}
		count, _ := repo.GetClaimCount(context.Background(), prizes[0])
		if count != 0 {
			t.Fatalf("expected store untouched, got count %d", count)
		}
		if len(limiter.subjects) != 1 || limiter.subjects[0] != 1 {
			t.Fatalf("expected one attempt counted for participant 1, got %v", limiter.subjects)
		}
	})

	t.Run("limiter failure fails open", func(t *testing.T) {
		repo, prizes := seedRepo([]int64{1}, "a.png")
		svc := NewClaimService(repo, nil, "prize_events", nil, discardLogger())
		svc.SetRateLimiter(&limiterStub{err: errors.New("redis down")})

		outcome, err := svc.Claim(context.Background(), prizes[0], 1)
		if err != nil {
			t.Fatalf("Claim returned error: %v", err)
		}
		if outcome.Status != domain.ClaimStatusWon {
			t.Fatalf("expected claim to go through, got %s", outcome.Status)
		}
	})

	t.Run("admitted attempt reaches the store", func(t *testing.T) {
		repo, prizes := seedRepo([]int64{1}, "a.png")
		svc := NewClaimService(repo, nil, "prize_events", nil, discardLogger())
		limiter := &limiterStub{allowed: true}
		svc.SetRateLimiter(limiter)

		outcome, err := svc.Claim(context.Background(), prizes[0], 1)
		if err != nil {
			t.Fatalf("Claim returned error: %v", err)
		}
		if outcome.Status != domain.ClaimStatusWon || limiter.calls != 1 {
			t.Fatalf("expected a won claim after one limiter call, got %s after %d calls", outcome.Status, limiter.calls)
		}
	})
}

func TestClaimService_PublishFailureDoesNotChangeOutcome(t *testing.T) {
	repo, prizes := seedRepo([]int64{1}, "a.png")
	svc := NewClaimService(repo, &publisherStub{err: errors.New("broker down")}, "prize_events", nil, discardLogger())

	outcome, err := svc.Claim(context.Background(), prizes[0], 1)
	if err != nil {
		t.Fatalf("Claim returned error: %v", err)
	}
	if !outcome.Won() {
		t.Fatalf("expected won despite publish failure, got %s", outcome.Status)
	}
}

func TestClaimService_RecordsMetrics(t *testing.T) {
	repo, prizes := seedRepo([]int64{1, 2, 3, 4}, "a.png")
	metrics := NewMetrics(prometheus.NewRegistry())
	svc := NewClaimService(repo, nil, "prize_events", metrics, discardLogger())

	for _, id := range []int64{1, 2, 3, 4} {
		if _, err := svc.Claim(context.Background(), prizes[0], id); err != nil {
			t.Fatalf("Claim returned error: %v", err)
		}
	}

	if got := testutil.ToFloat64(metrics.claims.WithLabelValues(string(domain.ClaimStatusWon))); got != 3 {
		t.Fatalf("expected 3 won claims recorded, got %v", got)
	}
	if got := testutil.ToFloat64(metrics.claims.WithLabelValues(string(domain.ClaimStatusExhausted))); got != 1 {
		t.Fatalf("expected 1 exhausted claim recorded, got %v", got)
	}
}
