package app

import (
	"context"
	"errors"
	"testing"

	"github.com/prizedrop/prize-service/internal/domain"
)

type claimerStub struct {
	outcome domain.ClaimOutcome
	err     error
	calls   []domain.ClaimRequestedEvent
}

func (c *claimerStub) Claim(ctx context.Context, prizeID, participantID int64) (domain.ClaimOutcome, error) {
	c.calls = append(c.calls, domain.ClaimRequestedEvent{PrizeID: prizeID, ParticipantID: participantID})
	return c.outcome, c.err
}

func TestClaimRequestConsumer_HandleMessage(t *testing.T) {
	tests := []struct {
		name      string
		body      string
		claimErr  error
		wantAck   bool
		wantCalls int
	}{
		{name: "valid request", body: `{"prize_id":3,"participant_id":9}`, wantAck: true, wantCalls: 1},
		{name: "malformed json is dropped", body: `{"prize_id":`, wantAck: true},
		{name: "missing ids are dropped", body: `{"prize_id":0,"participant_id":9}`, wantAck: true},
		{name: "storage failure is requeued", body: `{"prize_id":3,"participant_id":9}`, claimErr: errors.New("db down"), wantAck: false, wantCalls: 1},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			claimer := &claimerStub{outcome: domain.ClaimOutcome{Status: domain.ClaimStatusWon}, err: tc.claimErr}
			consumer := NewClaimRequestConsumer(claimer, discardLogger())

			if got := consumer.HandleMessage([]byte(tc.body)); got != tc.wantAck {
				t.Fatalf("expected ack=%v, got %v", tc.wantAck, got)
			}
			if len(claimer.calls) != tc.wantCalls {
				t.Fatalf("expected %d claim calls, got %d", tc.wantCalls, len(claimer.calls))
			}
			if tc.wantCalls > 0 && (claimer.calls[0].PrizeID != 3 || claimer.calls[0].ParticipantID != 9) {
				t.Fatalf("unexpected claim call %+v", claimer.calls[0])
			}
		})
	}
}

func TestClaimServiceSatisfiesClaimer(t *testing.T) {
	var _ Claimer = (*ClaimService)(nil)
}
