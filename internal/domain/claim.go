package domain

// ClaimResult is what the store reports for a single atomic claim attempt.
type ClaimResult int

const (
	ClaimResultWon ClaimResult = iota
	ClaimResultExhausted
	ClaimResultAlreadyClaimed
	ClaimResultPrizeNotFound
	ClaimResultParticipantNotFound
)

func (r ClaimResult) String() string {
	switch r {
	case ClaimResultWon:
		return "won"
	case ClaimResultExhausted:
		return "exhausted"
	case ClaimResultAlreadyClaimed:
		return "already_claimed"
	case ClaimResultPrizeNotFound:
		return "prize_not_found"
	case ClaimResultParticipantNotFound:
		return "participant_not_found"
	default:
		return "unknown"
	}
}

// ClaimReceipt is returned by the store's atomic claim.
// AssetRef, Round and ClaimCount are only populated when Result is ClaimResultWon.
type ClaimReceipt struct {
	Result     ClaimResult
	AssetRef   string
	Round      int
	ClaimCount int
}

// ClaimStatus is the externally visible outcome of a claim.
type ClaimStatus string

const (
	ClaimStatusWon            ClaimStatus = "won"
	ClaimStatusExhausted      ClaimStatus = "exhausted"
	ClaimStatusAlreadyClaimed ClaimStatus = "already_claimed"
	ClaimStatusNotFound       ClaimStatus = "not_found"
	ClaimStatusNotRegistered  ClaimStatus = "not_registered"
	ClaimStatusRateLimited    ClaimStatus = "rate_limited"
	ClaimStatusUnavailable    ClaimStatus = "unavailable"
)

// ClaimOutcome is the result handed back to transports.
type ClaimOutcome struct {
	Status            ClaimStatus `json:"status"`
	PrizeID           int64       `json:"prize_id"`
	ParticipantID     int64       `json:"participant_id"`
	AssetRef          string      `json:"asset_ref,omitempty"`
	Position          int         `json:"position,omitempty"`
	RetryAfterSeconds int         `json:"retry_after_seconds,omitempty"`
}

// Won reports whether the claim admitted the participant as a winner.
func (o ClaimOutcome) Won() bool {
	return o.Status == ClaimStatusWon
}
