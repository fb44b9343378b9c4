package httpapi

import (
	"errors"
	"net/http"

	goerrors "github.com/goliatone/go-errors"
	"go.uber.org/zap"

	"shelterhub/internal/auth"
	blob "shelterhub/internal/blob/core"
	"shelterhub/internal/core"
	"shelterhub/pkg/domain"
)

// Text codes returned in error bodies.
const (
	codeBadInput      = "BAD_INPUT"
	codeValidation    = "VALIDATION_FAILED"
	codeUnauthorized  = "UNAUTHORIZED"
	codeForbidden     = "FORBIDDEN"
	codeNotFound      = "NOT_FOUND"
	codeConflict      = "CONFLICT"
	codeRuleViolation = "RULE_VIOLATION"
	codeRateLimited   = "RATE_LIMITED"
	codeUnavailable   = "UNAVAILABLE"
	codeInternal      = "INTERNAL"
)

type errorBody struct {
	Error      string                `json:"error"`
	Code       string                `json:"code"`
	Category   string                `json:"category"`
	Fields     []goerrors.FieldError `json:"fields,omitempty"`
	Violations []domain.Violation    `json:"violations,omitempty"`
}

func badInput(message string) error {
	return goerrors.New(message, goerrors.CategoryBadInput).
		WithCode(http.StatusBadRequest).
		WithTextCode(codeBadInput)
}

func unauthorized(message string) error {
	return goerrors.New(message, goerrors.CategoryAuth).
		WithCode(http.StatusUnauthorized).
		WithTextCode(codeUnauthorized)
}

func forbidden(message string) error {
	return goerrors.New(message, goerrors.CategoryAuthz).
		WithCode(http.StatusForbidden).
		WithTextCode(codeForbidden)
}

func rateLimited() error {
	return goerrors.New("too many requests", goerrors.CategoryRateLimit).
		WithCode(http.StatusTooManyRequests).
		WithTextCode(codeRateLimited)
}

// toServiceError maps service and domain errors onto the go-errors envelope.
func toServiceError(err error) *goerrors.Error {
	var rich *goerrors.Error
	if goerrors.As(err, &rich) {
		return rich
	}

	var (
		rule       domain.RuleViolationError
		validation domain.ValidationError
		notFound   domain.NotFoundError
		conflict   domain.ConflictError
	)
	switch {
	case errors.As(err, &rule):
		return goerrors.Wrap(err, goerrors.CategoryConflict, rule.Error()).
			WithCode(http.StatusConflict).
			WithTextCode(codeRuleViolation)
	case errors.As(err, &validation):
		return goerrors.NewValidation(validation.Error(), goerrors.FieldError{
			Field:   validation.Field,
			Message: validation.Message,
		}).
			WithCode(http.StatusBadRequest).
			WithTextCode(codeValidation)
	case errors.As(err, &notFound):
		return goerrors.Wrap(err, goerrors.CategoryNotFound, notFound.Error()).
			WithCode(http.StatusNotFound).
			WithTextCode(codeNotFound)
	case errors.Is(err, blob.ErrNotFound):
		return goerrors.Wrap(err, goerrors.CategoryNotFound, "photo not found").
			WithCode(http.StatusNotFound).
			WithTextCode(codeNotFound)
	case errors.As(err, &conflict):
		return goerrors.Wrap(err, goerrors.CategoryConflict, conflict.Error()).
			WithCode(http.StatusConflict).
			WithTextCode(codeConflict)
	case errors.Is(err, core.ErrInvalidCredentials), errors.Is(err, auth.ErrInvalidToken):
		return goerrors.Wrap(err, goerrors.CategoryAuth, err.Error()).
			WithCode(http.StatusUnauthorized).
			WithTextCode(codeUnauthorized)
	case errors.Is(err, core.ErrPhotoStoreUnavailable):
		return goerrors.Wrap(err, goerrors.CategoryInternal, err.Error()).
			WithCode(http.StatusServiceUnavailable).
			WithTextCode(codeUnavailable)
	default:
		return goerrors.Wrap(err, goerrors.CategoryInternal, "internal error").
			WithCode(http.StatusInternalServerError).
			WithTextCode(codeInternal)
	}
}

func (s *Server) writeError(w http.ResponseWriter, r *http.Request, err error) {
	rich := toServiceError(err)
	status := rich.Code
	if status == 0 {
		status = http.StatusInternalServerError
	}
	body := errorBody{
		Error:    rich.Message,
		Code:     rich.TextCode,
		Category: string(rich.Category),
		Fields:   rich.AllValidationErrors(),
	}
	var rule domain.RuleViolationError
	if errors.As(err, &rule) {
		body.Violations = rule.Result.Violations
	}
	if status >= http.StatusInternalServerError {
		s.logger.Error("request failed",
			zap.String("method", r.Method),
			zap.String("path", r.URL.Path),
			zap.Int("status", status),
			zap.Error(err),
		)
	}
	writeJSON(w, status, body)
}
