package handler

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"time"

	"github.com/shopspring/decimal"

	"github.com/ciblhq/tradeduel/internal/domain"
	"github.com/ciblhq/tradeduel/internal/service"
)

// ChallengeService defines the methods the challenge handler requires from
// the service layer.
type ChallengeService interface {
	Create(ctx context.Context, sess domain.Session, p service.CreateParams) (domain.Challenge, error)
	Claim(ctx context.Context, sess domain.Session, challengeID string) (domain.Challenge, error)
	SubmitPrice(ctx context.Context, sess domain.Session, challengeID string, phase domain.PricePhase, price decimal.Decimal) (domain.Challenge, error)
	Settle(ctx context.Context, challengeID string) (domain.Challenge, error)
	Cancel(ctx context.Context, sess domain.Session, challengeID string) (domain.Challenge, error)
	Get(ctx context.Context, challengeID string) (domain.Challenge, error)
	List(ctx context.Context, f domain.ChallengeFilter) ([]domain.Challenge, error)
}

// ChallengeHandler serves the challenge lifecycle endpoints.
type ChallengeHandler struct {
	challenges ChallengeService
	logger     *slog.Logger
}

// NewChallengeHandler creates a ChallengeHandler.
func NewChallengeHandler(challenges ChallengeService, logger *slog.Logger) *ChallengeHandler {
	return &ChallengeHandler{
		challenges: challenges,
		logger:     logger,
	}
}

type createChallengeRequest struct {
	Stake            decimal.Decimal `json:"stake"`
	AssetPair        string          `json:"asset_pair"`
	TimeframeSeconds int64           `json:"timeframe_seconds"`
}

// ListChallenges returns challenges, optionally filtered by status or user.
// GET /api/challenges?status=open&user_id=...&limit=50&offset=0
func (h *ChallengeHandler) ListChallenges(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()

	f := domain.ChallengeFilter{
		UserID:   q.Get("user_id"),
		ListOpts: parseListOpts(r),
	}
	if v := q.Get("status"); v != "" {
		status := domain.ChallengeStatus(v)
		if !status.Valid() {
			writeError(w, http.StatusBadRequest, "unknown status "+v)
			return
		}
		f.Status = status
	}

	challenges, err := h.challenges.List(r.Context(), f)
	if err != nil {
		writeDomainError(w, h.logger, r, err)
		return
	}
	if challenges == nil {
		challenges = []domain.Challenge{}
	}

	writeJSON(w, http.StatusOK, map[string]any{"challenges": challenges})
}

// CreateChallenge opens a new challenge for the authenticated user.
// POST /api/challenges
func (h *ChallengeHandler) CreateChallenge(w http.ResponseWriter, r *http.Request) {
	var req createChallengeRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body: "+err.Error())
		return
	}
	if req.AssetPair == "" || req.TimeframeSeconds <= 0 {
		writeError(w, http.StatusBadRequest, "asset_pair and timeframe_seconds are required")
		return
	}

	ch, err := h.challenges.Create(r.Context(), session(r), service.CreateParams{
		Stake:     req.Stake,
		AssetPair: req.AssetPair,
		Timeframe: time.Duration(req.TimeframeSeconds) * time.Second,
	})
	if err != nil {
		writeDomainError(w, h.logger, r, err)
		return
	}

	writeJSON(w, http.StatusCreated, ch)
}

// GetChallenge returns a single challenge by ID.
// GET /api/challenges/{id}
func (h *ChallengeHandler) GetChallenge(w http.ResponseWriter, r *http.Request) {
	id := pathParam(r, "id")
	if id == "" {
		writeError(w, http.StatusBadRequest, "missing challenge id")
		return
	}

	ch, err := h.challenges.Get(r.Context(), id)
	if err != nil {
		writeDomainError(w, h.logger, r, err)
		return
	}

	writeJSON(w, http.StatusOK, ch)
}

// ClaimChallenge joins the authenticated user to an open challenge. Exactly
// one concurrent claimer wins; the rest receive a conflict.
// POST /api/challenges/{id}/claim
func (h *ChallengeHandler) ClaimChallenge(w http.ResponseWriter, r *http.Request) {
	id := pathParam(r, "id")
	if id == "" {
		writeError(w, http.StatusBadRequest, "missing challenge id")
		return
	}

	ch, err := h.challenges.Claim(r.Context(), session(r), id)
	if err != nil {
		writeDomainError(w, h.logger, r, err)
		return
	}

	writeJSON(w, http.StatusOK, ch)
}

type submitPriceRequest struct {
	Phase string          `json:"phase"`
	Price decimal.Decimal `json:"price"`
}

// SubmitPrice records an entry or exit price for the caller's side.
// POST /api/challenges/{id}/prices
func (h *ChallengeHandler) SubmitPrice(w http.ResponseWriter, r *http.Request) {
	id := pathParam(r, "id")
	if id == "" {
		writeError(w, http.StatusBadRequest, "missing challenge id")
		return
	}

	var req submitPriceRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body: "+err.Error())
		return
	}
	if req.Phase == "" {
		writeError(w, http.StatusBadRequest, "phase is required")
		return
	}

	ch, err := h.challenges.SubmitPrice(r.Context(), session(r), id, domain.PricePhase(req.Phase), req.Price)
	if err != nil {
		writeDomainError(w, h.logger, r, err)
		return
	}

	writeJSON(w, http.StatusOK, ch)
}

// SettleChallenge settles an active, fully priced challenge.
// POST /api/challenges/{id}/settle
func (h *ChallengeHandler) SettleChallenge(w http.ResponseWriter, r *http.Request) {
	id := pathParam(r, "id")
	if id == "" {
		writeError(w, http.StatusBadRequest, "missing challenge id")
		return
	}

	ch, err := h.challenges.Settle(r.Context(), id)
	if err != nil {
		writeDomainError(w, h.logger, r, err)
		return
	}

	writeJSON(w, http.StatusOK, ch)
}

// CancelChallenge withdraws the caller's own open challenge.
// DELETE /api/challenges/{id}
func (h *ChallengeHandler) CancelChallenge(w http.ResponseWriter, r *http.Request) {
	id := pathParam(r, "id")
	if id == "" {
		writeError(w, http.StatusBadRequest, "missing challenge id")
		return
	}

	ch, err := h.challenges.Cancel(r.Context(), session(r), id)
	if err != nil {
		writeDomainError(w, h.logger, r, err)
		return
	}

	writeJSON(w, http.StatusOK, ch)
}
