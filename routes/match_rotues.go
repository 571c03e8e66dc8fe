package routes

import (
	"showmates_server/controllers"
	"showmates_server/services"

	"github.com/gorilla/mux"
)

// RegisterMatchRoutes sets up routes for match-related operations under /api/matches
func RegisterMatchRoutes(r *mux.Router, matchmakingService *services.MatchmakingService) {
	// Initialize the controller with the MatchmakingService
	controller := controllers.NewMatchmakingController(matchmakingService)

	// Create a subrouter for /api/matches
	matchRouter := r.PathPrefix("/api/matches").Subrouter()

	// Define routes and their corresponding handlers
	matchRouter.HandleFunc("/search", controller.Search).Methods("POST")
	matchRouter.HandleFunc("", controller.ListMatches).Methods("GET")
}
