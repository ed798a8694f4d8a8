package handler

import (
	"net/http"

	"github.com/ayo6706/mfs-ledger/internal/domain"
	"github.com/ayo6706/mfs-ledger/internal/service"
	"github.com/ayo6706/mfs-ledger/internal/store"
	"github.com/go-chi/chi/v5"
)

type AccountHandler struct {
	accounts  *service.AccountService
	lifecycle *service.LifecycleService
}

func NewAccountHandler(accounts *service.AccountService, lifecycle *service.LifecycleService) *AccountHandler {
	return &AccountHandler{accounts: accounts, lifecycle: lifecycle}
}

// Me returns the caller's own account, including its balance.
func (h *AccountHandler) Me(w http.ResponseWriter, r *http.Request) {
	caller, err := requestCaller(r)
	if err != nil {
		RespondError(w, r, http.StatusUnauthorized, "auth/unauthorized", "Unauthorized")
		return
	}
	account, err := h.accounts.GetAccount(r.Context(), caller.Mobile)
	if err != nil {
		RespondDomainError(w, r, "account", err)
		return
	}
	RespondJSON(w, http.StatusOK, account)
}

func (h *AccountHandler) ListAccounts(w http.ResponseWriter, r *http.Request) {
	filter := store.AccountFilter{}
	if v := r.URL.Query().Get("status"); v != "" {
		status, ok := domain.ParseStatus(v)
		if !ok {
			RespondError(w, r, http.StatusBadRequest, "request/invalid-status", "Invalid status filter")
			return
		}
		filter.Status = status
	}
	if v := r.URL.Query().Get("role"); v != "" {
		role, ok := domain.ParseRole(v)
		if !ok {
			RespondDomainError(w, r, "account", domain.ErrInvalidRole)
			return
		}
		filter.Role = role
	}
	filter.Limit, filter.Offset = pageParams(r)

	accounts, err := h.accounts.ListAccounts(r.Context(), filter)
	if err != nil {
		RespondDomainError(w, r, "account", err)
		return
	}
	RespondJSON(w, http.StatusOK, accounts)
}

type activateRequest struct {
	Role string `json:"role" validate:"required"`
}

// Activate grants the role the account applied for.
func (h *AccountHandler) Activate(w http.ResponseWriter, r *http.Request) {
	caller, err := requestCaller(r)
	if err != nil {
		RespondError(w, r, http.StatusUnauthorized, "auth/unauthorized", "Unauthorized")
		return
	}
	var req activateRequest
	if !decodeAndValidate(w, r, &req) {
		return
	}
	role, ok := domain.ParseAppliedRole(req.Role)
	if !ok {
		RespondDomainError(w, r, "account", domain.ErrInvalidRole)
		return
	}

	account, err := h.lifecycle.Activate(r.Context(), &caller.ID, chi.URLParam(r, "mobile"), role)
	if err != nil {
		RespondDomainError(w, r, "account", err)
		return
	}
	RespondJSON(w, http.StatusOK, account)
}

func (h *AccountHandler) Block(w http.ResponseWriter, r *http.Request) {
	caller, err := requestCaller(r)
	if err != nil {
		RespondError(w, r, http.StatusUnauthorized, "auth/unauthorized", "Unauthorized")
		return
	}
	account, err := h.lifecycle.Block(r.Context(), &caller.ID, chi.URLParam(r, "mobile"))
	if err != nil {
		RespondDomainError(w, r, "account", err)
		return
	}
	RespondJSON(w, http.StatusOK, account)
}
