package routes

import (
	"showmates_server/controllers"
	"showmates_server/services"

	"github.com/gorilla/mux"
)

// RegisterS3Routes sets up routes for S3-related operations
func RegisterS3Routes(r *mux.Router, blobService *services.S3BlobService) {
	controller := controllers.NewS3Controller(blobService)

	r.HandleFunc("/generate-presigned-url", controller.HandleGeneratePresignedURL).Methods("POST")
	r.HandleFunc("/get-presigned-read-url", controller.HandleGetPresignedReadURL).Methods("POST")
}
