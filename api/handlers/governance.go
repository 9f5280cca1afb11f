package handlers

import (
	"context"
	"net/http"
	"strconv"

	"go.uber.org/zap"

	"github.com/BaSui01/agentgov/api"
	"github.com/BaSui01/agentgov/penalty"
	"github.com/BaSui01/agentgov/retraining"
	"github.com/BaSui01/agentgov/types"
)

// Governance is the slice of the penalty manager the handlers need.
type Governance interface {
	Dashboard() penalty.Dashboard
	PenaltyStatus(agentID string) (*penalty.Status, error)
	FileAppeal(ctx context.Context, agentID, penaltyID, grounds string) (*penalty.Appeal, error)
	ReviewAppeal(ctx context.Context, appealID, reviewer string, approve bool, reasoning string) (*penalty.Appeal, error)
}

// History reads the archived governance trail. Optional; without it the
// history endpoint answers 503.
type History interface {
	PenaltyHistory(ctx context.Context, agentID string, limit int) ([]penalty.Penalty, error)
	AppealHistory(ctx context.Context, agentID string, limit int) ([]penalty.Appeal, error)
	SessionHistory(ctx context.Context, agentID string, limit int) ([]retraining.Session, error)
}

// GovernanceHandler serves the governance API surface.
type GovernanceHandler struct {
	gov     Governance
	history History
	logger  *zap.Logger
}

// NewGovernanceHandler creates the handler. history may be nil.
func NewGovernanceHandler(gov Governance, history History, logger *zap.Logger) *GovernanceHandler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &GovernanceHandler{
		gov:     gov,
		history: history,
		logger:  logger.Named("governance_api"),
	}
}

// RegisterRoutes mounts the governance endpoints on mux.
func (h *GovernanceHandler) RegisterRoutes(mux *http.ServeMux) {
	mux.HandleFunc("GET /api/v1/governance/dashboard", h.HandleDashboard)
	mux.HandleFunc("GET /api/v1/governance/agents/{id}/penalty", h.HandlePenaltyStatus)
	mux.HandleFunc("GET /api/v1/governance/agents/{id}/history", h.HandleHistory)
	mux.HandleFunc("POST /api/v1/governance/agents/{id}/appeals", h.HandleFileAppeal)
	mux.HandleFunc("POST /api/v1/governance/appeals/{id}/review", h.HandleReviewAppeal)
}

// HandleDashboard serves GET /api/v1/governance/dashboard.
func (h *GovernanceHandler) HandleDashboard(w http.ResponseWriter, r *http.Request) {
	WriteSuccess(w, h.gov.Dashboard())
}

// HandlePenaltyStatus serves GET /api/v1/governance/agents/{id}/penalty.
func (h *GovernanceHandler) HandlePenaltyStatus(w http.ResponseWriter, r *http.Request) {
	agentID := r.PathValue("id")
	if agentID == "" {
		WriteErrorMessage(w, http.StatusBadRequest, types.ErrInvalidRequest, "agent id is required", h.logger)
		return
	}

	st, err := h.gov.PenaltyStatus(agentID)
	if err != nil {
		writeGovernanceError(w, err, h.logger)
		return
	}
	WriteSuccess(w, st)
}

// agentHistory is the combined archived trail of one agent.
type agentHistory struct {
	AgentID   string               `json:"agentId"`
	Penalties []penalty.Penalty    `json:"penalties"`
	Appeals   []penalty.Appeal     `json:"appeals"`
	Sessions  []retraining.Session `json:"sessions"`
}

// HandleHistory serves GET /api/v1/governance/agents/{id}/history. The
// limit query parameter caps each trail, default 20.
func (h *GovernanceHandler) HandleHistory(w http.ResponseWriter, r *http.Request) {
	agentID := r.PathValue("id")
	if agentID == "" {
		WriteErrorMessage(w, http.StatusBadRequest, types.ErrInvalidRequest, "agent id is required", h.logger)
		return
	}
	if h.history == nil {
		WriteErrorMessage(w, http.StatusServiceUnavailable, types.ErrServiceUnavailable, "archive is not configured", h.logger)
		return
	}

	limit := 20
	if raw := r.URL.Query().Get("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 0 {
			WriteErrorMessage(w, http.StatusBadRequest, types.ErrInvalidRequest, "limit must be a non-negative integer", h.logger)
			return
		}
		limit = n
	}

	ctx := r.Context()
	out := agentHistory{AgentID: agentID}

	var err error
	if out.Penalties, err = h.history.PenaltyHistory(ctx, agentID, limit); err != nil {
		writeGovernanceError(w, err, h.logger)
		return
	}
	if out.Appeals, err = h.history.AppealHistory(ctx, agentID, limit); err != nil {
		writeGovernanceError(w, err, h.logger)
		return
	}
	if out.Sessions, err = h.history.SessionHistory(ctx, agentID, limit); err != nil {
		writeGovernanceError(w, err, h.logger)
		return
	}

	WriteSuccess(w, out)
}

// HandleFileAppeal serves POST /api/v1/governance/agents/{id}/appeals.
func (h *GovernanceHandler) HandleFileAppeal(w http.ResponseWriter, r *http.Request) {
	agentID := r.PathValue("id")
	if agentID == "" {
		WriteErrorMessage(w, http.StatusBadRequest, types.ErrInvalidRequest, "agent id is required", h.logger)
		return
	}
	if !ValidateContentType(w, r, h.logger) {
		return
	}

	var req api.FileAppealRequest
	if err := DecodeJSONBody(w, r, &req, h.logger); err != nil {
		return
	}
	if req.PenaltyID == "" {
		WriteErrorMessage(w, http.StatusBadRequest, types.ErrInvalidRequest, "penaltyId is required", h.logger)
		return
	}

	a, err := h.gov.FileAppeal(r.Context(), agentID, req.PenaltyID, req.Grounds)
	if err != nil {
		writeGovernanceError(w, err, h.logger)
		return
	}

	WriteJSON(w, http.StatusCreated, Response{
		Success:   true,
		Data:      a,
		Timestamp: a.SubmittedAt,
	})
}

// HandleReviewAppeal serves POST /api/v1/governance/appeals/{id}/review.
// The reviewer identity comes from the authenticated user when present,
// else from the request body.
func (h *GovernanceHandler) HandleReviewAppeal(w http.ResponseWriter, r *http.Request) {
	appealID := r.PathValue("id")
	if appealID == "" {
		WriteErrorMessage(w, http.StatusBadRequest, types.ErrInvalidRequest, "appeal id is required", h.logger)
		return
	}
	if !ValidateContentType(w, r, h.logger) {
		return
	}

	var req api.ReviewAppealRequest
	if err := DecodeJSONBody(w, r, &req, h.logger); err != nil {
		return
	}

	reviewer := req.Reviewer
	if userID, ok := types.UserID(r.Context()); ok {
		reviewer = userID
	}
	if reviewer == "" {
		WriteErrorMessage(w, http.StatusBadRequest, types.ErrInvalidRequest, "reviewer identity is required", h.logger)
		return
	}

	a, err := h.gov.ReviewAppeal(r.Context(), appealID, reviewer, req.Approve, req.Reasoning)
	if err != nil {
		writeGovernanceError(w, err, h.logger)
		return
	}
	WriteSuccess(w, a)
}

// writeGovernanceError translates any error into the response envelope.
func writeGovernanceError(w http.ResponseWriter, err error, logger *zap.Logger) {
	if typed, ok := err.(*types.Error); ok {
		WriteError(w, typed, logger)
		return
	}
	WriteError(w, types.NewError(types.ErrInternalError, "internal error").WithCause(err), logger)
}
