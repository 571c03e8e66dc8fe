package controllers

import (
	"encoding/json"
	"errors"
	"log"
	"math"
	"net/http"
	"strconv"

	"showmates_server/services"
)

// currentUserID returns the caller identity forwarded by the gateway in
// front of this service. Empty means unauthenticated.
func currentUserID(r *http.Request) string {
	return r.Header.Get("X-User-Id")
}

// requireUser writes a 401 and returns false when the request carries
// no caller identity.
func requireUser(w http.ResponseWriter, r *http.Request) (string, bool) {
	userID := currentUserID(r)
	if userID == "" {
		writeJSON(w, http.StatusUnauthorized, map[string]interface{}{"error": "unauthenticated"})
		return "", false
	}
	return userID, true
}

func writeJSON(w http.ResponseWriter, status int, payload interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if payload == nil {
		return
	}
	if err := json.NewEncoder(w).Encode(payload); err != nil {
		log.Printf("❌ Failed to encode response: %v", err)
	}
}

// respondError translates service errors into HTTP statuses. Anything
// unrecognized is a 500 with the detail kept in the log.
func respondError(w http.ResponseWriter, err error) {
	if cooldown, ok := services.IsCooldownActive(err); ok {
		retryAfter := int(math.Ceil(cooldown.RetryAfter.Seconds()))
		w.Header().Set("Retry-After", strconv.Itoa(retryAfter))
		writeJSON(w, http.StatusTooManyRequests, map[string]interface{}{
			"error":             "search cooldown active",
			"retryAfterSeconds": retryAfter,
		})
		return
	}

	switch {
	case errors.Is(err, services.ErrInvalidInput):
		writeJSON(w, http.StatusBadRequest, map[string]interface{}{"error": err.Error()})
	case errors.Is(err, services.ErrNotFound), errors.Is(err, services.ErrItemNotFound):
		writeJSON(w, http.StatusNotFound, map[string]interface{}{"error": err.Error()})
	case errors.Is(err, services.ErrPermissionDenied):
		writeJSON(w, http.StatusForbidden, map[string]interface{}{"error": err.Error()})
	case errors.Is(err, services.ErrConflict):
		writeJSON(w, http.StatusConflict, map[string]interface{}{"error": err.Error()})
	default:
		log.Printf("❌ Internal error: %v", err)
		writeJSON(w, http.StatusInternalServerError, map[string]interface{}{"error": "internal error"})
	}
}
