package api

import (
	"encoding/base64"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/phrazzld/haoping-api/internal/api/shared"
	"github.com/phrazzld/haoping-api/internal/platform/logger"
	"github.com/phrazzld/haoping-api/internal/vision"
)

var errInvalidImage = errors.New("invalid image reference")

// requireUserID returns the authenticated user or writes a 401.
func requireUserID(w http.ResponseWriter, r *http.Request) (uuid.UUID, bool) {
	userID, ok := shared.UserID(r.Context())
	if !ok {
		logger.FromContext(r.Context()).Warn("user ID not found in request context")
		shared.RespondWithError(w, r, http.StatusUnauthorized, "User ID not found or invalid")
		return uuid.Nil, false
	}
	return userID, true
}

// getPathInt64 parses a positive integer path parameter.
func getPathInt64(r *http.Request, name string) (int64, error) {
	raw := chi.URLParam(r, name)
	if raw == "" {
		return 0, fmt.Errorf("%s is required", name)
	}
	id, err := strconv.ParseInt(raw, 10, 64)
	if err != nil || id <= 0 {
		return 0, fmt.Errorf("%s has invalid format", name)
	}
	return id, nil
}

// handleUserIDAndPathID extracts the user and an integer path parameter,
// writing the error reply when either is missing.
func handleUserIDAndPathID(w http.ResponseWriter, r *http.Request, name string) (uuid.UUID, int64, bool) {
	userID, ok := requireUserID(w, r)
	if !ok {
		return uuid.Nil, 0, false
	}
	id, err := getPathInt64(r, name)
	if err != nil {
		logger.FromContext(r.Context()).Debug("invalid path parameter",
			slog.String("param_name", name),
			slog.String("value", chi.URLParam(r, name)))
		respondInvalid(w, r, "Invalid "+name, err)
		return uuid.Nil, 0, false
	}
	return userID, id, true
}

// decodeAndValidate decodes a JSON body and runs its validation tags,
// writing a 400 on failure.
func decodeAndValidate(w http.ResponseWriter, r *http.Request, v any) bool {
	if err := shared.DecodeJSON(r, v); err != nil {
		respondInvalid(w, r, "Invalid request format", err)
		return false
	}
	if err := shared.ValidateRequest(v); err != nil {
		respondInvalid(w, r, SanitizeValidationError(err), err)
		return false
	}
	return true
}

// parseImages turns URLs and data URIs into vision images.
func parseImages(refs []string) ([]vision.Image, error) {
	images := make([]vision.Image, 0, len(refs))
	for _, ref := range refs {
		ref = strings.TrimSpace(ref)
		switch {
		case strings.HasPrefix(ref, "data:"):
			_, payload, ok := strings.Cut(ref, ";base64,")
			if !ok {
				return nil, fmt.Errorf("%w: data URI must be base64", errInvalidImage)
			}
			data, err := base64.StdEncoding.DecodeString(payload)
			if err != nil || len(data) == 0 {
				return nil, fmt.Errorf("%w: bad base64 payload", errInvalidImage)
			}
			images = append(images, vision.Image{Data: data})
		case strings.HasPrefix(ref, "http://"), strings.HasPrefix(ref, "https://"):
			images = append(images, vision.Image{URL: ref})
		default:
			return nil, fmt.Errorf("%w: %q", errInvalidImage, ref)
		}
	}
	return images, nil
}
