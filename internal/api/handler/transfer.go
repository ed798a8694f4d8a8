package handler

import (
	"net/http"

	"github.com/ayo6706/mfs-ledger/internal/api/middleware"
	"github.com/ayo6706/mfs-ledger/internal/domain"
	"github.com/ayo6706/mfs-ledger/internal/service"
	"github.com/shopspring/decimal"
)

type TransferHandler struct {
	svc *service.TransferService
}

func NewTransferHandler(svc *service.TransferService) *TransferHandler {
	return &TransferHandler{svc: svc}
}

type transferRequest struct {
	To     string          `json:"to" validate:"required"`
	Amount decimal.Decimal `json:"amount" validate:"positive_decimal"`
	PIN    string          `json:"pin" validate:"required"`
}

// MakeTransfer moves value from the caller to another active account. The
// Idempotency-Key, when present, becomes the transfer's reference id.
func (h *TransferHandler) MakeTransfer(w http.ResponseWriter, r *http.Request) {
	caller, err := requestCaller(r)
	if err != nil {
		RespondError(w, r, http.StatusUnauthorized, "auth/unauthorized", "Unauthorized")
		return
	}
	var req transferRequest
	if !decodeAndValidate(w, r, &req) {
		return
	}
	amount, err := domain.ParseAmount(req.Amount)
	if err != nil {
		RespondDomainError(w, r, "transfer", err)
		return
	}

	txn, err := h.svc.Transfer(r.Context(), service.TransferCmd{
		Sender:      caller.Mobile,
		PIN:         req.PIN,
		Recipient:   req.To,
		Amount:      amount,
		ReferenceID: r.Header.Get(middleware.IdempotencyKeyHeader),
	})
	if err != nil {
		RespondDomainError(w, r, "transfer", err)
		return
	}
	RespondJSON(w, http.StatusCreated, txn)
}
