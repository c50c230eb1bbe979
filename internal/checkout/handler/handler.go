// Package handler exposes the checkout orchestrator as a small JSON API.
// One bearer token maps to one checkout session.
package handler

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"certflow/internal/address"
	"certflow/internal/checkout/models"
	"certflow/internal/checkout/service"
	"certflow/internal/identity"
	"certflow/internal/platform/middleware"
	"certflow/internal/sessiontoken"
	dErrors "certflow/pkg/domain-errors"
)

type Handler struct {
	sessions *service.Registry
	tokens   *sessiontoken.Service
	address  address.Client
	logger   *slog.Logger
}

func New(sessions *service.Registry, tokens *sessiontoken.Service, addressClient address.Client, logger *slog.Logger) (*Handler, error) {
	if sessions == nil || tokens == nil || addressClient == nil {
		return nil, errors.New("sessions, tokens and address client are required")
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Handler{
		sessions: sessions,
		tokens:   tokens,
		address:  addressClient,
		logger:   logger,
	}, nil
}

// Register mounts the checkout routes.
func (h *Handler) Register(r chi.Router) {
	r.Post("/checkout/session", h.createSession)

	r.Group(func(r chi.Router) {
		r.Use(middleware.RequireSession(h.tokens, h.logger))
		r.Get("/checkout/state", h.state)
		r.Get("/checkout/slots", h.slots)
		r.Post("/checkout/advance", h.advance)
		r.Post("/checkout/retreat", h.retreat)
		r.Post("/checkout/jump", h.jump)
		r.Post("/checkout/payer-decision", h.payerDecision)
		r.Post("/checkout/identity/biometric", h.verifyBiometric)
		r.Post("/checkout/identity/registry", h.verifyRegistry)
		r.Post("/checkout/identity/fallback", h.resolveFallback)
		r.Post("/checkout/payment/cancel", h.cancelPayment)
		r.Post("/checkout/payment/check", h.checkPayment)
		r.Post("/checkout/payment/retry", h.retryPayment)
		r.Get("/checkout/address/{postalCode}", h.lookupAddress)
	})
}

type sessionResponse struct {
	Token string            `json:"token"`
	State service.StateView `json:"state"`
}

func (h *Handler) createSession(w http.ResponseWriter, r *http.Request) {
	sessionID := uuid.NewString()
	orch, err := h.sessions.Create(sessionID)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	view, err := orch.Start(r.Context())
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	token, err := h.tokens.Generate(sessionID)
	if err != nil {
		h.writeError(w, r, dErrors.Wrap(err, dErrors.CodeInternal, "token generation failed"))
		return
	}
	h.writeJSON(w, http.StatusCreated, sessionResponse{Token: token, State: view})
}

// orchestrator resolves the caller's session, reviving it from the snapshot
// store after a restart.
func (h *Handler) orchestrator(w http.ResponseWriter, r *http.Request) *service.Orchestrator {
	sessionID := middleware.GetSessionID(r.Context())
	if sessionID == "" {
		h.writeError(w, r, dErrors.New(dErrors.CodeUnauthorized, "no session"))
		return nil
	}
	if orch := h.sessions.Get(sessionID); orch != nil {
		return orch
	}
	orch, err := h.sessions.Create(sessionID)
	if err != nil {
		h.writeError(w, r, err)
		return nil
	}
	if _, err := orch.Start(r.Context()); err != nil {
		h.writeError(w, r, err)
		return nil
	}
	return orch
}

func (h *Handler) state(w http.ResponseWriter, r *http.Request) {
	orch := h.orchestrator(w, r)
	if orch == nil {
		return
	}
	h.writeJSON(w, http.StatusOK, orch.View())
}

func (h *Handler) slots(w http.ResponseWriter, r *http.Request) {
	orch := h.orchestrator(w, r)
	if orch == nil {
		return
	}
	h.writeJSON(w, http.StatusOK, map[string][]models.ScheduleSlot{"slots": orch.Slots()})
}

func (h *Handler) advance(w http.ResponseWriter, r *http.Request) {
	orch := h.orchestrator(w, r)
	if orch == nil {
		return
	}
	var input service.AdvanceInput
	if err := decodeBody(r, &input); err != nil {
		h.writeError(w, r, err)
		return
	}
	view, err := orch.Advance(r.Context(), input)
	if err != nil {
		h.writeErrorWithView(w, r, err, view)
		return
	}
	h.writeJSON(w, http.StatusOK, view)
}

func (h *Handler) retreat(w http.ResponseWriter, r *http.Request) {
	orch := h.orchestrator(w, r)
	if orch == nil {
		return
	}
	view, err := orch.Retreat(r.Context())
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	h.writeJSON(w, http.StatusOK, view)
}

type jumpRequest struct {
	Step models.StepIndex `json:"step"`
}

// jump backs the summary page's side links, the edit-payer one in
// particular.
func (h *Handler) jump(w http.ResponseWriter, r *http.Request) {
	orch := h.orchestrator(w, r)
	if orch == nil {
		return
	}
	var req jumpRequest
	if err := decodeBody(r, &req); err != nil {
		h.writeError(w, r, err)
		return
	}
	view, err := orch.JumpTo(r.Context(), req.Step)
	if err != nil {
		h.writeErrorWithView(w, r, err, view)
		return
	}
	h.writeJSON(w, http.StatusOK, view)
}

type payerDecisionRequest struct {
	Decision models.PayerDecision `json:"decision"`
}

func (h *Handler) payerDecision(w http.ResponseWriter, r *http.Request) {
	orch := h.orchestrator(w, r)
	if orch == nil {
		return
	}
	var req payerDecisionRequest
	if err := decodeBody(r, &req); err != nil {
		h.writeError(w, r, err)
		return
	}
	view, err := orch.ResolvePayerChoice(r.Context(), req.Decision)
	if err != nil {
		h.writeErrorWithView(w, r, err, view)
		return
	}
	h.writeJSON(w, http.StatusOK, view)
}

type biometricRequest struct {
	NationalID string `json:"nationalId"`
}

func (h *Handler) verifyBiometric(w http.ResponseWriter, r *http.Request) {
	orch := h.orchestrator(w, r)
	if orch == nil {
		return
	}
	var req biometricRequest
	if err := decodeBody(r, &req); err != nil {
		h.writeError(w, r, err)
		return
	}
	view, err := orch.VerifyBiometric(r.Context(), req.NationalID)
	if err != nil {
		h.writeErrorWithView(w, r, err, view)
		return
	}
	h.writeJSON(w, http.StatusOK, view)
}

type registryRequest struct {
	BirthDate string `json:"birthDate"`
}

func (h *Handler) verifyRegistry(w http.ResponseWriter, r *http.Request) {
	orch := h.orchestrator(w, r)
	if orch == nil {
		return
	}
	var req registryRequest
	if err := decodeBody(r, &req); err != nil {
		h.writeError(w, r, err)
		return
	}
	view, err := orch.VerifyRegistry(r.Context(), req.BirthDate)
	if err != nil {
		h.writeErrorWithView(w, r, err, view)
		return
	}
	h.writeJSON(w, http.StatusOK, view)
}

type fallbackRequest struct {
	HasAltCredential bool `json:"hasAltCredential"`
}

func (h *Handler) resolveFallback(w http.ResponseWriter, r *http.Request) {
	orch := h.orchestrator(w, r)
	if orch == nil {
		return
	}
	var req fallbackRequest
	if err := decodeBody(r, &req); err != nil {
		h.writeError(w, r, err)
		return
	}
	view, err := orch.ResolveNoBiometric(r.Context(), req.HasAltCredential)
	if err != nil {
		h.writeErrorWithView(w, r, err, view)
		return
	}
	h.writeJSON(w, http.StatusOK, view)
}

func (h *Handler) cancelPayment(w http.ResponseWriter, r *http.Request) {
	orch := h.orchestrator(w, r)
	if orch == nil {
		return
	}
	view, err := orch.CancelPayment(r.Context())
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	h.writeJSON(w, http.StatusOK, view)
}

func (h *Handler) checkPayment(w http.ResponseWriter, r *http.Request) {
	orch := h.orchestrator(w, r)
	if orch == nil {
		return
	}
	view, err := orch.CheckPaymentNow(r.Context())
	if err != nil {
		h.writeErrorWithView(w, r, err, view)
		return
	}
	h.writeJSON(w, http.StatusOK, view)
}

func (h *Handler) retryPayment(w http.ResponseWriter, r *http.Request) {
	orch := h.orchestrator(w, r)
	if orch == nil {
		return
	}
	view, err := orch.RetryPayment(r.Context())
	if err != nil {
		h.writeErrorWithView(w, r, err, view)
		return
	}
	h.writeJSON(w, http.StatusOK, view)
}

func (h *Handler) lookupAddress(w http.ResponseWriter, r *http.Request) {
	postalCode := chi.URLParam(r, "postalCode")
	addr, err := h.address.Lookup(r.Context(), postalCode)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	h.writeJSON(w, http.StatusOK, addr)
}

func decodeBody(r *http.Request, v any) error {
	if r.Body == nil || r.ContentLength == 0 {
		return nil
	}
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	if err := dec.Decode(v); err != nil {
		return dErrors.Wrap(err, dErrors.CodeBadRequest, "malformed request body")
	}
	return nil
}

type errorResponse struct {
	Error   string             `json:"error"`
	Message string             `json:"message"`
	State   *service.StateView `json:"state,omitempty"`
}

func (h *Handler) writeError(w http.ResponseWriter, r *http.Request, err error) {
	h.writeErrorWithView(w, r, err, service.StateView{})
}

// writeErrorWithView attaches the post-failure view so clients can render
// the step-scoped error without a second round trip.
func (h *Handler) writeErrorWithView(w http.ResponseWriter, r *http.Request, err error, view service.StateView) {
	status := dErrors.ToHTTPStatus(dErrors.GetCode(err))
	if status >= http.StatusInternalServerError {
		h.logger.ErrorContext(r.Context(), "request failed",
			"error", err,
			"request_id", middleware.GetRequestID(r.Context()),
		)
	}

	var throttled *identity.ThrottledError
	if errors.As(err, &throttled) {
		seconds := int(throttled.RetryAfter / time.Second)
		if throttled.RetryAfter%time.Second != 0 {
			seconds++
		}
		w.Header().Set("Retry-After", strconv.Itoa(seconds))
	}

	resp := errorResponse{
		Error:   string(dErrors.GetCode(err)),
		Message: dErrors.UserMessage(err),
	}
	if view.SessionID != "" {
		resp.State = &view
	}
	h.writeJSON(w, status, resp)
}

func (h *Handler) writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		h.logger.Error("response encoding failed", "error", err)
	}
}
