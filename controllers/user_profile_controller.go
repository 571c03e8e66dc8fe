package controllers

import (
	"encoding/json"
	"log"
	"net/http"

	"showmates_server/models"
	"showmates_server/services"

	"github.com/gorilla/mux"
)

// UserProfileController handles HTTP requests for user profiles
type UserProfileController struct {
	UserProfileService *services.UserProfileService
}

// NewUserProfileController creates a new instance of UserProfileController
func NewUserProfileController(service *services.UserProfileService) *UserProfileController {
	return &UserProfileController{UserProfileService: service}
}

// HandleCreateProfile creates the caller's profile
func (c *UserProfileController) HandleCreateProfile(w http.ResponseWriter, r *http.Request) {
	userID, ok := requireUser(w, r)
	if !ok {
		return
	}

	var profile models.UserProfile
	if err := json.NewDecoder(r.Body).Decode(&profile); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]interface{}{"error": "invalid request payload"})
		return
	}

	// The caller owns the profile regardless of what the payload claims.
	profile.UserID = userID

	created, err := c.UserProfileService.AddUserProfile(r.Context(), profile)
	if err != nil {
		log.Printf("❌ Error creating profile for %s: %v", userID, err)
		respondError(w, err)
		return
	}

	writeJSON(w, http.StatusCreated, created)
}

// HandleGetProfile fetches a profile by user ID
func (c *UserProfileController) HandleGetProfile(w http.ResponseWriter, r *http.Request) {
	if _, ok := requireUser(w, r); !ok {
		return
	}

	targetID := mux.Vars(r)["userId"]

	profile, err := c.UserProfileService.GetUserProfile(r.Context(), targetID)
	if err != nil {
		respondError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, profile)
}

// HandleUpdateProfile applies partial updates to the caller's profile
func (c *UserProfileController) HandleUpdateProfile(w http.ResponseWriter, r *http.Request) {
	userID, ok := requireUser(w, r)
	if !ok {
		return
	}

	var updates map[string]interface{}
	if err := json.NewDecoder(r.Body).Decode(&updates); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]interface{}{"error": "invalid request payload"})
		return
	}

	updated, err := c.UserProfileService.UpdateUserProfile(r.Context(), userID, updates)
	if err != nil {
		respondError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, updated)
}

// HandleUpdateFavorites replaces the caller's favorite show list
func (c *UserProfileController) HandleUpdateFavorites(w http.ResponseWriter, r *http.Request) {
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

	updated, err := c.UserProfileService.UpdateFavorites(r.Context(), userID, request.FavoriteShowIDs)
	if err != nil {
		respondError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, updated)
}

// HandleRegisterPushToken stores the caller's Expo push token
func (c *UserProfileController) HandleRegisterPushToken(w http.ResponseWriter, r *http.Request) {
	userID, ok := requireUser(w, r)
	if !ok {
		return
	}

	var request struct {
		PushToken string `json:"pushToken"`
	}
	if err := json.NewDecoder(r.Body).Decode(&request); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]interface{}{"error": "invalid request payload"})
		return
	}

	if err := c.UserProfileService.RegisterPushToken(r.Context(), userID, request.PushToken); err != nil {
		respondError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]interface{}{"status": "success"})
}

// HandleBlockUser adds a user to the caller's blocked set
func (c *UserProfileController) HandleBlockUser(w http.ResponseWriter, r *http.Request) {
	userID, ok := requireUser(w, r)
	if !ok {
		return
	}

	var request struct {
		UserID string `json:"userId"`
	}
	if err := json.NewDecoder(r.Body).Decode(&request); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]interface{}{"error": "invalid request payload"})
		return
	}

	if err := c.UserProfileService.BlockUser(r.Context(), userID, request.UserID); err != nil {
		respondError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]interface{}{"status": "success"})
}

// HandleUnblockUser removes a user from the caller's blocked set
func (c *UserProfileController) HandleUnblockUser(w http.ResponseWriter, r *http.Request) {
	userID, ok := requireUser(w, r)
	if !ok {
		return
	}

	targetID := mux.Vars(r)["userId"]

	if err := c.UserProfileService.UnblockUser(r.Context(), userID, targetID); err != nil {
		respondError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]interface{}{"status": "success"})
}
