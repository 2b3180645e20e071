package api

import (
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/phrazzld/haoping-api/internal/api/shared"
	"github.com/phrazzld/haoping-api/internal/redact"
	"github.com/phrazzld/haoping-api/internal/service"
	"github.com/phrazzld/haoping-api/internal/service/auth"
)

// StatusClientClosedRequest is reported when the caller went away before
// the reply was ready. It never reaches a live client.
const StatusClientClosedRequest = 499

// MapErrorToStatusCode maps a failure to its HTTP status.
func MapErrorToStatusCode(err error) int {
	switch {
	case errors.Is(err, auth.ErrInvalidToken),
		errors.Is(err, auth.ErrExpiredToken),
		errors.Is(err, auth.ErrTokenNotYetValid),
		errors.Is(err, auth.ErrMissingToken),
		errors.Is(err, auth.ErrInvalidSubject):
		return http.StatusUnauthorized
	}

	switch service.KindOf(err) {
	case service.KindInvalidRequest:
		return http.StatusBadRequest
	case service.KindNoSubjectRecognized:
		return http.StatusUnprocessableEntity
	case service.KindNotFound:
		return http.StatusNotFound
	case service.KindGenerationTimeout:
		return http.StatusGatewayTimeout
	case service.KindGenerationUpstream, service.KindGenerationEmptyOutput, service.KindUpstream:
		return http.StatusBadGateway
	case service.KindCanceled:
		return StatusClientClosedRequest
	default:
		return http.StatusInternalServerError
	}
}

// GetSafeErrorMessage returns the message a client may see for err.
func GetSafeErrorMessage(err error) string {
	if err == nil {
		return "An unexpected error occurred"
	}

	switch {
	case errors.Is(err, auth.ErrExpiredToken):
		return "Token expired"
	case MapErrorToStatusCode(err) == http.StatusUnauthorized:
		return "Invalid token"
	}

	var se *service.Error
	if errors.As(err, &se) && se.Message != "" {
		return redact.String(se.Message)
	}
	return "An unexpected error occurred"
}

// HandleAPIError writes the status, kind and safe message for err and logs
// the full cause.
func HandleAPIError(w http.ResponseWriter, r *http.Request, err error) {
	shared.RespondWithErrorAndLog(w, r,
		MapErrorToStatusCode(err),
		string(service.KindOf(err)),
		GetSafeErrorMessage(err),
		err)
}

// respondInvalid reports a malformed request that never reached a service.
func respondInvalid(w http.ResponseWriter, r *http.Request, message string, err error) {
	shared.RespondWithErrorAndLog(w, r, http.StatusBadRequest, string(service.KindInvalidRequest), message, err)
}

// SanitizeValidationError turns validator output into a short message that
// names the first failing field.
func SanitizeValidationError(err error) string {
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) || len(verrs) == 0 {
		return "Validation error"
	}
	fe := verrs[0]
	return fmt.Sprintf("Invalid %s: %s", lowerFirst(fe.Field()), validationTagMessage(fe.Tag()))
}

func validationTagMessage(tag string) string {
	switch tag {
	case "required":
		return "required field"
	case "min":
		return "too short"
	case "max":
		return "too long"
	case "oneof":
		return "invalid value"
	case "url":
		return "invalid URL"
	default:
		return "validation failed"
	}
}

func lowerFirst(s string) string {
	if s == "" {
		return s
	}
	return strings.ToLower(s[:1]) + s[1:]
}
