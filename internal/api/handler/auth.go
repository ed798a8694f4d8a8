package handler

import (
	"net/http"
	"time"

	"github.com/ayo6706/mfs-ledger/internal/api/middleware"
	"github.com/ayo6706/mfs-ledger/internal/models"
	"github.com/ayo6706/mfs-ledger/internal/service"
	"go.uber.org/zap"
)

type AuthHandler struct {
	svc      *service.AccountService
	tokenTTL time.Duration
}

func NewAuthHandler(svc *service.AccountService, tokenTTL time.Duration) *AuthHandler {
	if tokenTTL <= 0 {
		tokenTTL = 24 * time.Hour
	}
	return &AuthHandler{svc: svc, tokenTTL: tokenTTL}
}

type loginRequest struct {
	Mobile string `json:"mobile" validate:"required"`
	PIN    string `json:"pin" validate:"required"`
}

type loginResponse struct {
	Token     string          `json:"token"`
	ExpiresAt time.Time       `json:"expires_at"`
	Account   *models.Account `json:"account"`
}

// Login verifies the PIN and issues a session token. Pending accounts may
// log in; every mutation still rejects them.
func (h *AuthHandler) Login(w http.ResponseWriter, r *http.Request) {
	var req loginRequest
	if !decodeAndValidate(w, r, &req) {
		return
	}

	account, err := h.svc.Login(r.Context(), req.Mobile, req.PIN)
	if err != nil {
		RespondDomainError(w, r, "auth", err)
		return
	}

	token, expires, err := middleware.IssueToken(account.ID.String(), account.Mobile, string(account.Role), h.tokenTTL)
	if err != nil {
		zap.L().Error("issue token failed", zap.Error(err))
		RespondError(w, r, http.StatusInternalServerError, "auth/token-failed", "Failed to sign token")
		return
	}

	RespondJSON(w, http.StatusOK, loginResponse{Token: token, ExpiresAt: expires, Account: account})
}
