package handler

import (
	"net/http"

	"github.com/ayo6706/mfs-ledger/internal/service"
)

type TransactionHandler struct {
	svc *service.TransactionService
}

func NewTransactionHandler(svc *service.TransactionService) *TransactionHandler {
	return &TransactionHandler{svc: svc}
}

// ListOwn returns the log entries the caller took part in, oldest first.
func (h *TransactionHandler) ListOwn(w http.ResponseWriter, r *http.Request) {
	caller, err := requestCaller(r)
	if err != nil {
		RespondError(w, r, http.StatusUnauthorized, "auth/unauthorized", "Unauthorized")
		return
	}
	limit, offset := pageParams(r)
	txns, err := h.svc.List(r.Context(), caller.Mobile, limit, offset)
	if err != nil {
		RespondDomainError(w, r, "transaction", err)
		return
	}
	RespondJSON(w, http.StatusOK, txns)
}

// ListAll returns the whole log, optionally narrowed to one participant.
func (h *TransactionHandler) ListAll(w http.ResponseWriter, r *http.Request) {
	limit, offset := pageParams(r)
	txns, err := h.svc.List(r.Context(), r.URL.Query().Get("participant"), limit, offset)
	if err != nil {
		RespondDomainError(w, r, "transaction", err)
		return
	}
	RespondJSON(w, http.StatusOK, txns)
}
