package main

import (
	"context"
	"log"
	"net/http"
	"os"
	"time"

	"showmates_server/routes"
	"showmates_server/services"

	"github.com/gorilla/mux"
	"github.com/joho/godotenv"
	"github.com/redis/go-redis/v9"
	"github.com/rs/cors"
)

func main() {
	if err := godotenv.Load(); err != nil {
		log.Println("Warning: Error loading .env file")
	}

	// Initialize DynamoDB client and service
	log.Println("Initializing DynamoDB client...")
	dynamoClient := services.InitializeDynamoDBClient()
	store := &services.DynamoService{Client: dynamoClient}
	log.Println("DynamoDB client initialized.")

	// Initialize S3 client for profile photos and message archives
	s3Client := services.InitializeS3Client()
	blobService := &services.S3BlobService{
		Client: s3Client,
		Bucket: os.Getenv("S3_BUCKET_NAME"),
	}

	// Redis backs the archival lease. Without it sweeps still run,
	// just without cross-instance coordination.
	var redisClient *redis.Client
	if addr := os.Getenv("REDIS_ADDR"); addr != "" {
		redisClient = redis.NewClient(&redis.Options{
			Addr:     addr,
			Password: os.Getenv("REDIS_PASSWORD"),
			DB:       0,
		})
		log.Printf("Using Redis at %s for archival leases", addr)
	}

	// Initialize Services
	pushService := &services.PushService{Sender: services.NewExpoPushSender(), Store: store}
	userProfileService := &services.UserProfileService{Store: store}
	matchmakingService := &services.MatchmakingService{Store: store, Push: pushService}
	chatService := &services.ChatService{Store: store}
	archiveService := &services.ArchiveService{
		Store: store,
		Blobs: blobService,
		Lease: &services.LeaseService{Client: redisClient},
	}

	// Set up the server port
	port := os.Getenv("PORT")
	if port == "" {
		port = "8080"
	}
	log.Printf("Using server port: %s\n", port)

	// Initialize the router
	r := mux.NewRouter()

	// Register routes
	routes.RegisterRoutes(r)
	routes.RegisterUserProfileRoutes(r, userProfileService)
	routes.RegisterMatchRoutes(r, matchmakingService)
	routes.RegisterChatRoutes(r, chatService)
	routes.RegisterArchiveRoutes(r, archiveService)
	routes.RegisterS3Routes(r, blobService)

	// Periodic archival sweep, enabled via ARCHIVE_SWEEP_INTERVAL (e.g. "10m")
	if interval := os.Getenv("ARCHIVE_SWEEP_INTERVAL"); interval != "" {
		d, err := time.ParseDuration(interval)
		if err != nil {
			log.Fatalf("Invalid ARCHIVE_SWEEP_INTERVAL %q: %v", interval, err)
		}
		go runArchiveSweeper(archiveService, d)
	}

	// Add CORS middleware
	corsHandler := cors.New(cors.Options{
		AllowedOrigins:   []string{"*"}, // Adjust for specific domains if needed
		AllowedMethods:   []string{"GET", "POST", "PUT", "PATCH", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Content-Type", "Authorization", "X-User-Id"},
		AllowCredentials: true,
	}).Handler(r)

	// Start the HTTP server
	log.Printf("Starting server on port %s...\n", port)
	log.Fatal(http.ListenAndServe(":"+port, corsHandler))
}

// runArchiveSweeper archives old messages on a fixed interval.
func runArchiveSweeper(archiveService *services.ArchiveService, interval time.Duration) {
	log.Printf("🔄 Archival sweep every %s", interval)
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for range ticker.C {
		archiveService.SweepArchives(context.Background())
	}
}
