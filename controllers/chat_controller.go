package controllers

import (
	"encoding/json"
	"log"
	"net/http"
	"strconv"

	"showmates_server/services"

	"github.com/gorilla/mux"
)

// ChatController struct
type ChatController struct {
	ChatService *services.ChatService
}

// NewChatController initializes the chat controller
func NewChatController(service *services.ChatService) *ChatController {
	return &ChatController{ChatService: service}
}

// HandleSendMessage - Handles sending a new message into a match conversation
func (c *ChatController) HandleSendMessage(w http.ResponseWriter, r *http.Request) {
	senderID, ok := requireUser(w, r)
	if !ok {
		return
	}

	var request struct {
		MatchID string `json:"matchId"`
		Content string `json:"content"`
	}
	if err := json.NewDecoder(r.Body).Decode(&request); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]interface{}{"error": "invalid request payload"})
		return
	}

	message, err := c.ChatService.SendMessage(r.Context(), senderID, request.MatchID, request.Content)
	if err != nil {
		log.Printf("❌ Failed to send message: %v", err)
		respondError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]interface{}{
		"status":  "success",
		"message": message,
	})
}

// HandleGetMessages - Fetch live messages for a conversation, newest last
func (c *ChatController) HandleGetMessages(w http.ResponseWriter, r *http.Request) {
	userID, ok := requireUser(w, r)
	if !ok {
		return
	}

	conversationID := mux.Vars(r)["conversationId"]
	limitStr := r.URL.Query().Get("limit")

	// Limit defaults to 50 live messages when absent or invalid.
	limit, err := strconv.Atoi(limitStr)
	if err != nil || limit <= 0 {
		limit = 50
	}

	log.Printf("🔍 Fetching messages for conversation: %s, Limit: %d", conversationID, limit)

	messages, err := c.ChatService.GetMessages(r.Context(), userID, conversationID, limit)
	if err != nil {
		respondError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]interface{}{
		"conversationId": conversationID,
		"messages":       messages,
	})
}
