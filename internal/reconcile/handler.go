package reconcile

import (
	"encoding/json"
	"net/http"

	"github.com/bookline-ai/bookline/pkg/logging"
)

// statusChangePayload is the scheduling service's webhook body.
type statusChangePayload struct {
	OrderReference string `json:"order_reference"`
	Status         string `json:"status"`
}

// Handler exposes the status webhook endpoint.
type Handler struct {
	reconciler *Reconciler
	logger     *logging.Logger
}

// NewHandler constructs the webhook handler.
func NewHandler(reconciler *Reconciler, logger *logging.Logger) *Handler {
	if logger == nil {
		logger = logging.Default()
	}
	return &Handler{reconciler: reconciler, logger: logger}
}

// HandleStatusChange handles POST /webhooks/scheduling/status. Unknown
// order references return 200 so the sender does not retry them; genuine
// processing failures return 502 to request a redelivery, which is safe
// because reconciliation is idempotent per (order, status).
func (h *Handler) HandleStatusChange(w http.ResponseWriter, r *http.Request) {
	var payload statusChangePayload
	if err := json.NewDecoder(r.Body).Decode(&payload); err != nil {
		http.Error(w, "invalid payload", http.StatusBadRequest)
		return
	}
	if payload.OrderReference == "" || payload.Status == "" {
		http.Error(w, "order_reference and status are required", http.StatusBadRequest)
		return
	}

	if err := h.reconciler.HandleStatusChange(r.Context(), payload.OrderReference, payload.Status); err != nil {
		h.logger.Error("webhook: status change failed",
			"error", err,
			"order_ref", payload.OrderReference,
			"status", payload.Status,
		)
		http.Error(w, "processing failed", http.StatusBadGateway)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	json.NewEncoder(w).Encode(map[string]string{"status": "ok"})
}
