/**
 * @description
 * HTTP handlers for the prize-service. Every claim goes through the claim service;
 * handlers only translate outcomes and errors to HTTP.
 */
package api

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/prizedrop/prize-service/internal/app"
	"github.com/prizedrop/prize-service/internal/domain"
	"github.com/prizedrop/prize-service/internal/store"
	"github.com/prizedrop/prize-service/pkg/artwork"
)

const (
	maxLeaderboardLimit = 100
	maxUploadBytes      = 10 << 20
)

type Leaderboard interface {
	Top(ctx context.Context, n int) ([]domain.LeaderboardEntry, error)
}

type Participants interface {
	Register(ctx context.Context, id int64, displayName string) (bool, error)
}

type Prizes interface {
	Upload(ctx context.Context, name string, r io.Reader) (*domain.Prize, error)
	List(ctx context.Context) ([]domain.Prize, error)
	Collection(ctx context.Context, participantID int64) ([]byte, error)
}

type RoundStarter interface {
	StartRound(ctx context.Context) (app.RoundReport, error)
}

// Services bundles what the handlers depend on.
type Services struct {
	Claims          app.Claimer
	Leaderboard     Leaderboard
	Participants    Participants
	Prizes          Prizes
	Rounds          RoundStarter
	LeaderboardSize int
}

// Handler holds the application services that handlers will interact with.
type Handler struct {
	svc    Services
	logger *slog.Logger
}

// NewHandler creates a new Handler with the given services.
func NewHandler(svc Services, logger *slog.Logger) *Handler {
	if svc.LeaderboardSize <= 0 {
		svc.LeaderboardSize = 10
	}
	return &Handler{svc: svc, logger: logger}
}

func (h *Handler) handleLeaderboard(w http.ResponseWriter, r *http.Request) {
	limit := h.svc.LeaderboardSize
	if raw := strings.TrimSpace(r.URL.Query().Get("limit")); raw != "" {
		parsed, err := strconv.Atoi(raw)
		if err != nil {
			http.Error(w, "limit must be an integer", http.StatusBadRequest)
			return
		}
		limit = parsed
	}
	if limit > maxLeaderboardLimit {
		limit = maxLeaderboardLimit
	}

	entries, err := h.svc.Leaderboard.Top(r.Context(), limit)
	if err != nil {
		h.logger.Error("failed to load leaderboard", "error", err)
		http.Error(w, "leaderboard unavailable", http.StatusServiceUnavailable)
		return
	}
	respondWithJSON(w, http.StatusOK, entries)
}

type registerParticipantRequest struct {
	ID          int64  `json:"id"`
	DisplayName string `json:"display_name"`
}

func (h *Handler) handleRegisterParticipant(w http.ResponseWriter, r *http.Request) {
	var req registerParticipantRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid request body", http.StatusBadRequest)
		return
	}

	created, err := h.svc.Participants.Register(r.Context(), req.ID, req.DisplayName)
	if err != nil {
		if errors.Is(err, app.ErrInvalidParticipant) {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		h.logger.Error("failed to register participant", "participant_id", req.ID, "error", err)
		http.Error(w, "registration unavailable", http.StatusServiceUnavailable)
		return
	}

	code := http.StatusOK
	if created {
		code = http.StatusCreated
	}
	respondWithJSON(w, code, map[string]interface{}{
		"participant_id": req.ID,
		"created":        created,
	})
}

type claimRequest struct {
	ParticipantID int64 `json:"participant_id"`
}

func (h *Handler) handleClaim(w http.ResponseWriter, r *http.Request) {
	prizeID, err := strconv.ParseInt(chi.URLParam(r, "prizeID"), 10, 64)
	if err != nil || prizeID <= 0 {
		http.Error(w, "invalid prize id", http.StatusBadRequest)
		return
	}
	var req claimRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.ParticipantID == 0 {
		http.Error(w, "participant_id is required", http.StatusBadRequest)
		return
	}

	outcome, err := h.svc.Claims.Claim(r.Context(), prizeID, req.ParticipantID)
	if err != nil {
		h.logger.Error("claim unavailable", "prize_id", prizeID, "participant_id", req.ParticipantID, "error", err)
	}
	if outcome.Status == domain.ClaimStatusRateLimited && outcome.RetryAfterSeconds > 0 {
		w.Header().Set("Retry-After", strconv.Itoa(outcome.RetryAfterSeconds))
	}
	respondWithJSON(w, claimStatusCode(outcome.Status), outcome)
}

func claimStatusCode(status domain.ClaimStatus) int {
	switch status {
	case domain.ClaimStatusWon:
		return http.StatusOK
	case domain.ClaimStatusExhausted, domain.ClaimStatusAlreadyClaimed:
		return http.StatusConflict
	case domain.ClaimStatusNotFound:
		return http.StatusNotFound
	case domain.ClaimStatusNotRegistered:
		return http.StatusForbidden
	case domain.ClaimStatusRateLimited:
		return http.StatusTooManyRequests
	default:
		return http.StatusServiceUnavailable
	}
}

func (h *Handler) handleCollection(w http.ResponseWriter, r *http.Request) {
	participantID, err := strconv.ParseInt(chi.URLParam(r, "participantID"), 10, 64)
	if err != nil {
		http.Error(w, "invalid participant id", http.StatusBadRequest)
		return
	}

	data, err := h.svc.Prizes.Collection(r.Context(), participantID)
	if err != nil {
		switch {
		case errors.Is(err, store.ErrParticipantNotFound):
			http.Error(w, "participant not registered", http.StatusNotFound)
		case errors.Is(err, app.ErrEmptyCollection):
			http.Error(w, err.Error(), http.StatusNotFound)
		default:
			h.logger.Error("failed to render collection", "participant_id", participantID, "error", err)
			http.Error(w, "collection unavailable", http.StatusInternalServerError)
		}
		return
	}

	w.Header().Set("Content-Type", "image/png")
	w.Header().Set("Content-Length", strconv.Itoa(len(data)))
	w.WriteHeader(http.StatusOK)
	w.Write(data)
}

func (h *Handler) handleListPrizes(w http.ResponseWriter, r *http.Request) {
	prizes, err := h.svc.Prizes.List(r.Context())
	if err != nil {
		h.logger.Error("failed to list prizes", "error", err)
		http.Error(w, "prizes unavailable", http.StatusServiceUnavailable)
		return
	}

	type prizeView struct {
		domain.Prize
		Status domain.PrizeStatus `json:"status"`
	}
	views := make([]prizeView, 0, len(prizes))
	for _, p := range prizes {
		views = append(views, prizeView{Prize: p, Status: p.Status()})
	}
	respondWithJSON(w, http.StatusOK, views)
}

func (h *Handler) handleUploadPrize(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, maxUploadBytes)
	if err := r.ParseMultipartForm(maxUploadBytes); err != nil {
		http.Error(w, "invalid multipart upload", http.StatusBadRequest)
		return
	}
	file, header, err := r.FormFile("image")
	if err != nil {
		http.Error(w, "image file is required", http.StatusBadRequest)
		return
	}
	defer file.Close()

	prize, err := h.svc.Prizes.Upload(r.Context(), header.Filename, file)
	if err != nil {
		if errors.Is(err, artwork.ErrInvalidAssetRef) || errors.Is(err, artwork.ErrUnsupportedImage) {
			http.Error(w, err.Error(), http.StatusUnprocessableEntity)
			return
		}
		h.logger.Error("failed to upload prize", "filename", header.Filename, "error", err)
		http.Error(w, "upload failed", http.StatusInternalServerError)
		return
	}
	respondWithJSON(w, http.StatusCreated, prize)
}

func (h *Handler) handleStartRound(w http.ResponseWriter, r *http.Request) {
	// Once the prize is re-armed the broadcast must finish even if the caller goes away.
	ctx, cancel := context.WithTimeout(context.WithoutCancel(r.Context()), app.RoundTimeout)
	defer cancel()

	report, err := h.svc.Rounds.StartRound(ctx)
	if err != nil {
		switch {
		case errors.Is(err, app.ErrRoundInProgress):
			http.Error(w, err.Error(), http.StatusConflict)
		case errors.Is(err, domain.ErrAssetMissing):
			http.Error(w, err.Error(), http.StatusUnprocessableEntity)
		default:
			h.logger.Error("manual round failed", "error", err)
			http.Error(w, "round failed", http.StatusInternalServerError)
		}
		return
	}
	respondWithJSON(w, http.StatusOK, report)
}

// respondWithJSON writes JSON responses.
func respondWithJSON(w http.ResponseWriter, code int, payload interface{}) {
	response, err := json.Marshal(payload)
	if err != nil {
		http.Error(w, "Internal Server Error", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	w.Write(response)
}
