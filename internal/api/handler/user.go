package handler

import (
	"net/http"

	"github.com/ayo6706/mfs-ledger/internal/domain"
	"github.com/ayo6706/mfs-ledger/internal/service"
)

type UserHandler struct {
	svc *service.AccountService
}

func NewUserHandler(svc *service.AccountService) *UserHandler {
	return &UserHandler{svc: svc}
}

type registerRequest struct {
	Name        string `json:"name" validate:"required,max=120"`
	Email       string `json:"email" validate:"required,email,max=254"`
	Mobile      string `json:"mobile" validate:"required,numeric,min=6,max=20"`
	PIN         string `json:"pin" validate:"required,numeric,min=4,max=6"`
	AppliedRole string `json:"applied_role" validate:"required"`
}

// CreateUser registers a Pending account. The caller picks the role they
// apply for; an admin grants it on activation.
func (h *UserHandler) CreateUser(w http.ResponseWriter, r *http.Request) {
	var req registerRequest
	if !decodeAndValidate(w, r, &req) {
		return
	}
	role, ok := domain.ParseAppliedRole(req.AppliedRole)
	if !ok {
		RespondDomainError(w, r, "user", domain.ErrInvalidRole)
		return
	}

	account, err := h.svc.Register(r.Context(), service.RegisterCmd{
		Name:        req.Name,
		Email:       req.Email,
		Mobile:      req.Mobile,
		PIN:         req.PIN,
		AppliedRole: role,
	})
	if err != nil {
		RespondDomainError(w, r, "user", err)
		return
	}
	RespondJSON(w, http.StatusCreated, account)
}
