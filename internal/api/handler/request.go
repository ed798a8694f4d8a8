package handler

import (
	"net/http"

	"github.com/ayo6706/mfs-ledger/internal/domain"
	"github.com/ayo6706/mfs-ledger/internal/service"
	"github.com/ayo6706/mfs-ledger/internal/store"
	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

type RequestHandler struct {
	svc *service.RequestService
}

func NewRequestHandler(svc *service.RequestService) *RequestHandler {
	return &RequestHandler{svc: svc}
}

type cashInRequest struct {
	Agent  string          `json:"agent" validate:"required"`
	Amount decimal.Decimal `json:"amount" validate:"positive_decimal"`
}

type cashOutRequest struct {
	Agent  string          `json:"agent" validate:"required"`
	Amount decimal.Decimal `json:"amount" validate:"positive_decimal"`
	PIN    string          `json:"pin" validate:"required"`
}

type declineRequest struct {
	Requester string `json:"requester,omitempty"`
}

func (h *RequestHandler) CashIn(w http.ResponseWriter, r *http.Request) {
	caller, err := requestCaller(r)
	if err != nil {
		RespondError(w, r, http.StatusUnauthorized, "auth/unauthorized", "Unauthorized")
		return
	}
	var req cashInRequest
	if !decodeAndValidate(w, r, &req) {
		return
	}
	amount, err := domain.ParseAmount(req.Amount)
	if err != nil {
		RespondDomainError(w, r, "cash-in", err)
		return
	}

	pending, err := h.svc.InitiateCashIn(r.Context(), caller.Mobile, req.Agent, amount)
	if err != nil {
		RespondDomainError(w, r, "cash-in", err)
		return
	}
	RespondJSON(w, http.StatusAccepted, pending)
}

func (h *RequestHandler) CashOut(w http.ResponseWriter, r *http.Request) {
	caller, err := requestCaller(r)
	if err != nil {
		RespondError(w, r, http.StatusUnauthorized, "auth/unauthorized", "Unauthorized")
		return
	}
	var req cashOutRequest
	if !decodeAndValidate(w, r, &req) {
		return
	}
	amount, err := domain.ParseAmount(req.Amount)
	if err != nil {
		RespondDomainError(w, r, "cash-out", err)
		return
	}

	pending, err := h.svc.InitiateCashOut(r.Context(), caller.Mobile, req.PIN, req.Agent, amount)
	if err != nil {
		RespondDomainError(w, r, "cash-out", err)
		return
	}
	RespondJSON(w, http.StatusAccepted, pending)
}

// ListRequests returns the pending requests visible to the caller.
func (h *RequestHandler) ListRequests(w http.ResponseWriter, r *http.Request) {
	caller, err := requestCaller(r)
	if err != nil {
		RespondError(w, r, http.StatusUnauthorized, "auth/unauthorized", "Unauthorized")
		return
	}
	filter := store.RequestFilter{
		Requester: r.URL.Query().Get("requester"),
		Agent:     r.URL.Query().Get("agent"),
	}
	switch kind := domain.RequestKind(r.URL.Query().Get("kind")); kind {
	case "", domain.KindCashIn, domain.KindCashOut:
		filter.Kind = kind
	default:
		RespondError(w, r, http.StatusBadRequest, "request/invalid-kind", "Invalid kind filter")
		return
	}
	filter.Limit, filter.Offset = pageParams(r)

	reqs, err := h.svc.ListPending(r.Context(), caller, filter)
	if err != nil {
		RespondDomainError(w, r, "request", err)
		return
	}
	RespondJSON(w, http.StatusOK, reqs)
}

func (h *RequestHandler) Approve(w http.ResponseWriter, r *http.Request) {
	caller, err := requestCaller(r)
	if err != nil {
		RespondError(w, r, http.StatusUnauthorized, "auth/unauthorized", "Unauthorized")
		return
	}
	requestID, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		RespondError(w, r, http.StatusBadRequest, "request/invalid-request-id", "Invalid request ID")
		return
	}

	txn, err := h.svc.Approve(r.Context(), &caller.ID, requestID)
	if err != nil {
		RespondDomainError(w, r, "request", err)
		return
	}
	RespondJSON(w, http.StatusOK, txn)
}

// Decline accepts an optional body naming the requester, which must match
// the stored request.
func (h *RequestHandler) Decline(w http.ResponseWriter, r *http.Request) {
	caller, err := requestCaller(r)
	if err != nil {
		RespondError(w, r, http.StatusUnauthorized, "auth/unauthorized", "Unauthorized")
		return
	}
	requestID, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		RespondError(w, r, http.StatusBadRequest, "request/invalid-request-id", "Invalid request ID")
		return
	}
	var req declineRequest
	if r.ContentLength != 0 && !decodeAndValidate(w, r, &req) {
		return
	}

	res, err := h.svc.Decline(r.Context(), &caller.ID, requestID, req.Requester)
	if err != nil {
		RespondDomainError(w, r, "request", err)
		return
	}
	RespondJSON(w, http.StatusOK, res)
}
