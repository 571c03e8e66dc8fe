package controllers

import (
	"encoding/json"
	"net/http"

	"showmates_server/services"
)

// MatchmakingController handles search and match listing requests
type MatchmakingController struct {
	MatchmakingService *services.MatchmakingService
}

// NewMatchmakingController creates a new instance of MatchmakingController
func NewMatchmakingController(matchmakingService *services.MatchmakingService) *MatchmakingController {
	return &MatchmakingController{MatchmakingService: matchmakingService}
}

// Search runs one match search for the caller's favorite shows.
func (c *MatchmakingController) Search(w http.ResponseWriter, r *http.Request) {
	userID, ok := requireUser(w, r)
	if !ok {
		return
	}

	var request struct {
		FavoriteShowIDs []string `json:"favoriteShowIds"`
	}
	if err := json.NewDecoder(r.Body).Decode(&request); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]interface{}{"error": "invalid request payload"})
		return
	}

	result, err := c.MatchmakingService.Search(r.Context(), userID, request.FavoriteShowIDs)
	if err != nil {
		respondError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, result)
}

// ListMatches returns the caller's matches with counterpart summaries.
func (c *MatchmakingController) ListMatches(w http.ResponseWriter, r *http.Request) {
	userID, ok := requireUser(w, r)
	if !ok {
		return
	}

	matches, err := c.MatchmakingService.ListMatches(r.Context(), userID)
	if err != nil {
		respondError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"matches": matches})
}
