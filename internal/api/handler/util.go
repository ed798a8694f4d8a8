package handler

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"sync"

	"github.com/ayo6706/mfs-ledger/internal/api/middleware"
	"github.com/ayo6706/mfs-ledger/internal/api/problem"
	"github.com/ayo6706/mfs-ledger/internal/domain"
	"github.com/ayo6706/mfs-ledger/internal/service"
	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

// RespondJSON writes a JSON response.
func RespondJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(data)
}

// RespondError writes an error response.
func RespondError(w http.ResponseWriter, r *http.Request, status int, problemType, message string) {
	if problemType != "" && problemType != "about:blank" && !strings.HasPrefix(problemType, "http") {
		problemType = problem.Type(problemType)
	}
	problem.Write(w, r, status, problemType, http.StatusText(status), message)
}

// RespondDomainError maps a ledger error to its problem document. Anything
// that is not a ledger error is logged and reported as a 500.
func RespondDomainError(w http.ResponseWriter, r *http.Request, area string, err error) {
	var derr *domain.Error
	if !errors.As(err, &derr) {
		zap.L().Error(area+" failed",
			zap.Error(err),
			zap.String("trace_id", middleware.TraceIDFromContext(r.Context())),
		)
		RespondError(w, r, http.StatusInternalServerError, area+"/internal", "internal error")
		return
	}
	RespondError(w, r, statusFor(derr), area+"/"+derr.Code, err.Error())
}

func statusFor(derr *domain.Error) int {
	switch derr.Kind {
	case domain.KindInvalid:
		return http.StatusBadRequest
	case domain.KindUnauthorized:
		if derr == domain.ErrForbidden {
			return http.StatusForbidden
		}
		return http.StatusUnauthorized
	case domain.KindNotFound:
		return http.StatusNotFound
	case domain.KindInvalidState, domain.KindConflict:
		return http.StatusConflict
	case domain.KindInsufficientBalance:
		return http.StatusUnprocessableEntity
	default:
		return http.StatusInternalServerError
	}
}

var (
	validate     *validator.Validate
	validateOnce sync.Once
)

func validatorInstance() *validator.Validate {
	validateOnce.Do(func() {
		validate = validator.New(validator.WithRequiredStructEnabled())
		// decimal.Decimal is a struct, so the amount rule reads the field directly.
		_ = validate.RegisterValidation("positive_decimal", func(fl validator.FieldLevel) bool {
			value, ok := fl.Field().Interface().(decimal.Decimal)
			return ok && value.IsPositive()
		})
	})
	return validate
}

// decodeAndValidate decodes a JSON body into dst and runs its struct tags.
// It writes the problem response itself and reports whether to continue.
func decodeAndValidate(w http.ResponseWriter, r *http.Request, dst interface{}) bool {
	if err := json.NewDecoder(r.Body).Decode(dst); err != nil {
		RespondError(w, r, http.StatusBadRequest, "request/invalid-body", "Invalid request body")
		return false
	}
	if err := validatorInstance().Struct(dst); err != nil {
		RespondError(w, r, http.StatusBadRequest, "request/validation-failed", validationMessage(err))
		return false
	}
	return true
}

func validationMessage(err error) string {
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) || len(verrs) == 0 {
		return "validation failed"
	}
	fields := make([]string, 0, len(verrs))
	for _, fe := range verrs {
		fields = append(fields, fmt.Sprintf("%s (%s)", strings.ToLower(fe.Field()), fe.Tag()))
	}
	return "invalid fields: " + strings.Join(fields, ", ")
}

// requestCaller returns the authenticated account behind r.
func requestCaller(r *http.Request) (service.Caller, error) {
	userID := middleware.UserIDFromContext(r.Context())
	if userID == "" {
		return service.Caller{}, errors.New("missing user in auth context")
	}
	id, err := uuid.Parse(userID)
	if err != nil {
		return service.Caller{}, errors.New("invalid user_id in auth context")
	}
	return service.Caller{
		ID:     id,
		Mobile: middleware.UserMobileFromContext(r.Context()),
		Role:   domain.Role(middleware.UserRoleFromContext(r.Context())),
	}, nil
}

// pageParams reads limit and offset query parameters. Invalid values fall
// back to the store defaults.
func pageParams(r *http.Request) (int32, int32) {
	limit, _ := strconv.ParseInt(r.URL.Query().Get("limit"), 10, 32)
	offset, _ := strconv.ParseInt(r.URL.Query().Get("offset"), 10, 32)
	return int32(limit), int32(offset)
}
