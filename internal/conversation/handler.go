package conversation

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"github.com/bookline-ai/bookline/internal/draft"
	"github.com/bookline-ai/bookline/internal/identity"
	"github.com/bookline-ai/bookline/internal/nlu"
	"github.com/bookline-ai/bookline/internal/realtime"
	"github.com/bookline-ai/bookline/pkg/logging"
)

// DraftService is the draft surface the HTTP layer exposes: everything the
// orchestrator uses plus direct lookup, submission and cancellation.
type DraftService interface {
	DraftManager
	GetByID(ctx context.Context, id uuid.UUID) (*draft.Draft, error)
	LatestByConversation(ctx context.Context, conversationID uuid.UUID) (*draft.Draft, error)
	Cancel(ctx context.Context, id uuid.UUID) (*draft.Draft, error)
}

// Handler serves the conversation and draft endpoints.
type Handler struct {
	orchestrator *Orchestrator
	drafts       DraftService
	locker       Locker
	hub          *realtime.Hub
	upgrader     websocket.Upgrader
	logger       *logging.Logger
}

// NewHandler creates the conversation HTTP handler.
func NewHandler(orchestrator *Orchestrator, drafts DraftService, locker Locker, hub *realtime.Hub, allowedOrigins []string, logger *logging.Logger) *Handler {
	if logger == nil {
		logger = logging.Default()
	}
	return &Handler{
		orchestrator: orchestrator,
		drafts:       drafts,
		locker:       locker,
		hub:          hub,
		upgrader:     realtime.NewUpgrader(allowedOrigins),
		logger:       logger,
	}
}

// StartConversation handles POST /conversations/start (idempotent get-or-create).
func (h *Handler) StartConversation(w http.ResponseWriter, r *http.Request) {
	userID, ok := identity.UserIDFromContext(r.Context())
	if !ok {
		http.Error(w, "unauthorized", http.StatusUnauthorized)
		return
	}

	conv, err := h.orchestrator.StartOrResume(r.Context(), userID)
	if err != nil {
		h.writeError(w, err, "start conversation")
		return
	}
	writeJSON(w, http.StatusOK, conv)
}

// NewConversation handles POST /conversations/new (always creates).
func (h *Handler) NewConversation(w http.ResponseWriter, r *http.Request) {
	userID, ok := identity.UserIDFromContext(r.Context())
	if !ok {
		http.Error(w, "unauthorized", http.StatusUnauthorized)
		return
	}

	conv, err := h.orchestrator.ForceNew(r.Context(), userID)
	if err != nil {
		h.writeError(w, err, "create conversation")
		return
	}
	writeJSON(w, http.StatusCreated, conv)
}

// ActiveConversation handles GET /conversations/active.
func (h *Handler) ActiveConversation(w http.ResponseWriter, r *http.Request) {
	userID, ok := identity.UserIDFromContext(r.Context())
	if !ok {
		http.Error(w, "unauthorized", http.StatusUnauthorized)
		return
	}

	conv, err := h.orchestrator.ActiveForUser(r.Context(), userID)
	if err != nil {
		h.writeError(w, err, "get active conversation")
		return
	}
	writeJSON(w, http.StatusOK, conv)
}

// ListMessages handles GET /conversations/{conversationID}/messages.
func (h *Handler) ListMessages(w http.ResponseWriter, r *http.Request) {
	userID, ok := identity.UserIDFromContext(r.Context())
	if !ok {
		http.Error(w, "unauthorized", http.StatusUnauthorized)
		return
	}
	conversationID, err := uuid.Parse(chi.URLParam(r, "conversationID"))
	if err != nil {
		http.Error(w, "invalid conversation id", http.StatusBadRequest)
		return
	}

	messages, err := h.orchestrator.ListMessages(r.Context(), conversationID, userID)
	if err != nil {
		h.writeError(w, err, "list messages")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"messages": messages,
		"count":    len(messages),
	})
}

// SendMessageRequest is the body of POST /conversations/message.
type SendMessageRequest struct {
	ConversationID *uuid.UUID `json:"conversation_id,omitempty"`
	Message        string     `json:"message"`
	SelectedOption string     `json:"selected_option,omitempty"`
}

// SendMessage handles POST /conversations/message, the turn entry point.
func (h *Handler) SendMessage(w http.ResponseWriter, r *http.Request) {
	userID, ok := identity.UserIDFromContext(r.Context())
	if !ok {
		http.Error(w, "unauthorized", http.StatusUnauthorized)
		return
	}

	var req SendMessageRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid request body", http.StatusBadRequest)
		return
	}
	if req.Message == "" {
		http.Error(w, "message is required", http.StatusBadRequest)
		return
	}

	result, err := h.orchestrator.HandleUserTurn(r.Context(), TurnInput{
		UserID:         userID,
		ConversationID: req.ConversationID,
		Message:        req.Message,
		SelectedOption: req.SelectedOption,
	})
	if err != nil {
		h.writeError(w, err, "handle turn")
		return
	}
	writeJSON(w, http.StatusOK, result)
}

// GetDraft handles GET /conversations/{conversationID}/draft. The open draft
// wins; with none open the most recent terminal draft is returned.
func (h *Handler) GetDraft(w http.ResponseWriter, r *http.Request) {
	userID, ok := identity.UserIDFromContext(r.Context())
	if !ok {
		http.Error(w, "unauthorized", http.StatusUnauthorized)
		return
	}
	conversationID, err := uuid.Parse(chi.URLParam(r, "conversationID"))
	if err != nil {
		http.Error(w, "invalid conversation id", http.StatusBadRequest)
		return
	}
	if _, err := h.orchestrator.convos.GetOwned(r.Context(), conversationID, userID); err != nil {
		h.writeError(w, err, "get draft")
		return
	}

	d, err := h.drafts.OpenByConversation(r.Context(), conversationID)
	if errors.Is(err, draft.ErrNotFound) {
		d, err = h.drafts.LatestByConversation(r.Context(), conversationID)
	}
	if err != nil {
		h.writeError(w, err, "get draft")
		return
	}
	writeJSON(w, http.StatusOK, d)
}

// SubmitDraft handles POST /drafts/{draftID}/submit.
func (h *Handler) SubmitDraft(w http.ResponseWriter, r *http.Request) {
	d, ok := h.ownedDraft(w, r)
	if !ok {
		return
	}

	release, err := h.locker.Acquire(r.Context(), d.ConversationID)
	if err != nil {
		h.writeError(w, err, "submit draft")
		return
	}
	defer release()

	submitted, err := h.drafts.Submit(r.Context(), d.ID)
	if err != nil {
		h.writeError(w, err, "submit draft")
		return
	}
	writeJSON(w, http.StatusOK, submitted)
}

// CancelDraft handles POST /drafts/{draftID}/cancel.
func (h *Handler) CancelDraft(w http.ResponseWriter, r *http.Request) {
	d, ok := h.ownedDraft(w, r)
	if !ok {
		return
	}

	release, err := h.locker.Acquire(r.Context(), d.ConversationID)
	if err != nil {
		h.writeError(w, err, "cancel draft")
		return
	}
	defer release()

	cancelled, err := h.drafts.Cancel(r.Context(), d.ID)
	if err != nil {
		h.writeError(w, err, "cancel draft")
		return
	}
	writeJSON(w, http.StatusOK, cancelled)
}

// BookingOptions handles GET /booking-options.
func (h *Handler) BookingOptions(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"options": nlu.QuickStartOptions(),
	})
}

// Events handles GET /ws?conversation={id}: the realtime event stream for
// one owned conversation.
func (h *Handler) Events(w http.ResponseWriter, r *http.Request) {
	userID, ok := identity.UserIDFromContext(r.Context())
	if !ok {
		http.Error(w, "unauthorized", http.StatusUnauthorized)
		return
	}
	conversationID, err := uuid.Parse(r.URL.Query().Get("conversation"))
	if err != nil {
		http.Error(w, "invalid conversation id", http.StatusBadRequest)
		return
	}
	if _, err := h.orchestrator.convos.GetOwned(r.Context(), conversationID, userID); err != nil {
		h.writeError(w, err, "attach events")
		return
	}

	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		// Upgrade already wrote the error response.
		h.logger.Warn("websocket upgrade failed", "error", err, "conversation_id", conversationID)
		return
	}
	h.logger.Info("realtime client attached", "conversation_id", conversationID, "user_id", userID)
	realtime.ServeConn(conn, h.hub, conversationID, h.logger)
}

// ownedDraft loads the draft from the URL and verifies the caller owns it.
func (h *Handler) ownedDraft(w http.ResponseWriter, r *http.Request) (*draft.Draft, bool) {
	userID, ok := identity.UserIDFromContext(r.Context())
	if !ok {
		http.Error(w, "unauthorized", http.StatusUnauthorized)
		return nil, false
	}
	draftID, err := uuid.Parse(chi.URLParam(r, "draftID"))
	if err != nil {
		http.Error(w, "invalid draft id", http.StatusBadRequest)
		return nil, false
	}

	d, err := h.drafts.GetByID(r.Context(), draftID)
	if err != nil {
		h.writeError(w, err, "load draft")
		return nil, false
	}
	if d.UserID != userID {
		http.Error(w, "forbidden", http.StatusForbidden)
		return nil, false
	}
	return d, true
}

func (h *Handler) writeError(w http.ResponseWriter, err error, op string) {
	switch {
	case errors.Is(err, ErrNotFound) || errors.Is(err, draft.ErrNotFound):
		http.Error(w, "not found", http.StatusNotFound)
	case errors.Is(err, ErrUnauthorized):
		http.Error(w, "forbidden", http.StatusForbidden)
	case errors.Is(err, draft.ErrIncomplete):
		http.Error(w, err.Error(), http.StatusUnprocessableEntity)
	case errors.Is(err, draft.ErrTerminal):
		http.Error(w, "draft already finalized", http.StatusConflict)
	case errors.Is(err, ErrLockTimeout):
		http.Error(w, "conversation busy, retry shortly", http.StatusConflict)
	case errors.Is(err, ErrUpstreamFailure) || errors.Is(err, draft.ErrSchedulingUnavailable):
		h.logger.Error(op+" failed upstream", "error", err)
		http.Error(w, "upstream service unavailable", http.StatusBadGateway)
	default:
		h.logger.Error(op+" failed", "error", err)
		http.Error(w, "internal error", http.StatusInternalServerError)
	}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}
