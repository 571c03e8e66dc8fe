package routes

import (
	"showmates_server/controllers"
	"showmates_server/services"

	"github.com/gorilla/mux"
)

// RegisterUserProfileRoutes sets up routes for user profile operations under /api/profiles
func RegisterUserProfileRoutes(r *mux.Router, userProfileService *services.UserProfileService) {
	// Initialize the controller with the provided UserProfileService
	controller := controllers.NewUserProfileController(userProfileService)

	// Create a subrouter for the /api/profiles base path
	profileRouter := r.PathPrefix("/api/profiles").Subrouter()

	// Define routes and their corresponding handlers
	profileRouter.HandleFunc("", controller.HandleCreateProfile).Methods("POST")
	profileRouter.HandleFunc("", controller.HandleUpdateProfile).Methods("PATCH")
	profileRouter.HandleFunc("/favorites", controller.HandleUpdateFavorites).Methods("PUT")
	profileRouter.HandleFunc("/push-token", controller.HandleRegisterPushToken).Methods("PUT")
	profileRouter.HandleFunc("/blocked", controller.HandleBlockUser).Methods("POST")
	profileRouter.HandleFunc("/blocked/{userId}", controller.HandleUnblockUser).Methods("DELETE")
	profileRouter.HandleFunc("/{userId}", controller.HandleGetProfile).Methods("GET")
}
