package routes

import (
	"showmates_server/controllers"
	"showmates_server/services"

	"github.com/gorilla/mux"
)

// RegisterChatRoutes sets up routes for chat-related operations under /api/chat
func RegisterChatRoutes(r *mux.Router, chatService *services.ChatService) {
	// Initialize the controller with the ChatService
	controller := controllers.NewChatController(chatService)

	// Create a subrouter for /api/chat
	chatRouter := r.PathPrefix("/api/chat").Subrouter()

	// Define routes and their corresponding handlers
	chatRouter.HandleFunc("/messages", controller.HandleSendMessage).Methods("POST")
	chatRouter.HandleFunc("/{conversationId}/messages", controller.HandleGetMessages).Methods("GET")
}
