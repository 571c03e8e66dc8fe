package routes

import (
	"showmates_server/controllers"
	"showmates_server/services"

	"github.com/gorilla/mux"
)

// RegisterArchiveRoutes sets up routes for message archival operations
func RegisterArchiveRoutes(r *mux.Router, archiveService *services.ArchiveService) {
	// Initialize the controller with the ArchiveService
	controller := controllers.NewArchiveController(archiveService)

	// On-demand archival for a single conversation
	r.HandleFunc("/api/chat/{conversationId}/archive", controller.HandleArchiveConversation).Methods("POST")

	// Scheduler-facing sweep over every eligible conversation
	r.HandleFunc("/internal/archive/sweep", controller.HandleSweep).Methods("POST")
}
