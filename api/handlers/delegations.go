package handlers

import (
	"net/http"

	"go.uber.org/zap"

	"github.com/lumakit/relay/delegation"
)

// DelegationHandler exposes the delegation coordinator.
type DelegationHandler struct {
	coordinator *delegation.Coordinator
	logger      *zap.Logger
}

// NewDelegationHandler creates the handler.
func NewDelegationHandler(coordinator *delegation.Coordinator, logger *zap.Logger) *DelegationHandler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &DelegationHandler{
		coordinator: coordinator,
		logger:      logger.With(zap.String("component", "delegation_handler")),
	}
}

// Register wires the delegation routes onto mux.
func (h *DelegationHandler) Register(mux *http.ServeMux) {
	mux.HandleFunc("POST /delegations", h.Create)
}

type delegationResult struct {
	Success          bool   `json:"success"`
	Payload          any    `json:"payload,omitempty"`
	TargetAgent      string `json:"target_agent"`
	ContinuationHint string `json:"continuation_hint,omitempty"`
	Error            string `json:"error,omitempty"`
}

// Create blocks on Delegate and returns the settled result. A failed
// delegation is still a 200: the request itself succeeded, the outcome is
// in the body.
func (h *DelegationHandler) Create(w http.ResponseWriter, r *http.Request) {
	var req delegation.Request
	if err := DecodeJSONBody(w, r, &req, h.logger); err != nil {
		return
	}
	if req.TargetAgent == "" || req.SourceAgent == "" {
		WriteErrorMessage(w, http.StatusBadRequest, "invalid_request", "source_agent and target_agent are required", h.logger)
		return
	}

	res := h.coordinator.Delegate(r.Context(), req)
	WriteSuccess(w, delegationResult{
		Success:          res.Success,
		Payload:          res.Payload,
		TargetAgent:      res.TargetAgent,
		ContinuationHint: res.ContinuationHint,
		Error:            res.ErrorMessage(),
	})
}
