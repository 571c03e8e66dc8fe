package controllers

import (
	"log"
	"net/http"

	"showmates_server/services"

	"github.com/gorilla/mux"
)

// ArchiveController exposes manual archival and the internal sweep trigger
type ArchiveController struct {
	ArchiveService *services.ArchiveService
}

// NewArchiveController creates a new instance of ArchiveController
func NewArchiveController(service *services.ArchiveService) *ArchiveController {
	return &ArchiveController{ArchiveService: service}
}

// HandleArchiveConversation - Archive older messages of one conversation on demand
func (c *ArchiveController) HandleArchiveConversation(w http.ResponseWriter, r *http.Request) {
	userID, ok := requireUser(w, r)
	if !ok {
		return
	}

	conversationID := mux.Vars(r)["conversationId"]

	result, err := c.ArchiveService.ArchiveConversation(r.Context(), userID, conversationID)
	if err != nil {
		log.Printf("❌ Archive failed for conversation %s: %v", conversationID, err)
		respondError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, result)
}

// HandleSweep - Run one archival sweep over all eligible conversations.
// Internal endpoint, not exposed to app clients.
func (c *ArchiveController) HandleSweep(w http.ResponseWriter, r *http.Request) {
	result := c.ArchiveService.SweepArchives(r.Context())
	writeJSON(w, http.StatusOK, result)
}
