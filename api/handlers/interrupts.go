package handlers

import (
	"errors"
	"net/http"

	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/lumakit/relay/interrupt"
)

// InterruptHandler serves the human approval surface.
type InterruptHandler struct {
	manager *interrupt.Manager
	logger  *zap.Logger
	// limiter throttles response submissions across all callers.
	limiter *rate.Limiter
}

// NewInterruptHandler creates the handler. A nil limiter disables
// throttling.
func NewInterruptHandler(manager *interrupt.Manager, logger *zap.Logger, limiter *rate.Limiter) *InterruptHandler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &InterruptHandler{
		manager: manager,
		logger:  logger.With(zap.String("component", "interrupt_handler")),
		limiter: limiter,
	}
}

// Register wires the interrupt routes onto mux.
func (h *InterruptHandler) Register(mux *http.ServeMux) {
	mux.HandleFunc("GET /interrupts", h.List)
	mux.HandleFunc("GET /interrupts/{executionID}", h.Get)
	mux.HandleFunc("POST /interrupts/{executionID}/response", h.Respond)
}

// List returns pending interrupts, optionally filtered by user_id.
func (h *InterruptHandler) List(w http.ResponseWriter, r *http.Request) {
	pending := h.manager.PendingInterrupts(r.URL.Query().Get("user_id"))
	if pending == nil {
		pending = []*interrupt.Interrupt{}
	}
	WriteSuccess(w, pending)
}

// Get returns the interrupt for the execution id in the path.
func (h *InterruptHandler) Get(w http.ResponseWriter, r *http.Request) {
	executionID := r.PathValue("executionID")

	rec, err := h.manager.GetInterrupt(r.Context(), executionID)
	switch {
	case errors.Is(err, interrupt.ErrNotFound):
		WriteErrorMessage(w, http.StatusNotFound, "not_found", "interrupt not found: "+executionID, h.logger)
	case err != nil:
		WriteErrorMessage(w, http.StatusInternalServerError, "internal_error", err.Error(), h.logger)
	default:
		WriteSuccess(w, rec)
	}
}

type respondBody struct {
	Kind    string         `json:"kind"`
	Args    map[string]any `json:"args,omitempty"`
	Message string         `json:"message,omitempty"`
}

// Respond attaches a human decision to a pending interrupt.
func (h *InterruptHandler) Respond(w http.ResponseWriter, r *http.Request) {
	if h.limiter != nil && !h.limiter.Allow() {
		WriteErrorMessage(w, http.StatusTooManyRequests, "rate_limited", "too many responses, retry later", h.logger)
		return
	}

	executionID := r.PathValue("executionID")

	var body respondBody
	if err := DecodeJSONBody(w, r, &body, h.logger); err != nil {
		return
	}

	rec, err := h.manager.UpdateInterruptResponse(r.Context(), executionID, interrupt.HumanResponse{
		Kind:    interrupt.ResponseKind(body.Kind),
		Args:    body.Args,
		Message: body.Message,
	})
	switch {
	case errors.Is(err, interrupt.ErrUnknownResponseKind):
		WriteErrorMessage(w, http.StatusBadRequest, "invalid_request", err.Error(), h.logger)
	case errors.Is(err, interrupt.ErrNotFound):
		WriteErrorMessage(w, http.StatusNotFound, "not_found", "interrupt not found: "+executionID, h.logger)
	case errors.Is(err, interrupt.ErrNotPending):
		WriteErrorMessage(w, http.StatusConflict, "conflict", err.Error(), h.logger)
	case err != nil:
		WriteErrorMessage(w, http.StatusInternalServerError, "internal_error", err.Error(), h.logger)
	default:
		WriteSuccess(w, rec)
	}
}
