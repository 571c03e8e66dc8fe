package controllers_test

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strconv"
	"testing"
	"time"

	"github.com/gorilla/mux"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"showmates_server/models"
	"showmates_server/routes"
	"showmates_server/services"
)

// newTestServer wires the full route table against in-memory backends,
// the same way main does against the real ones.
func newTestServer(t *testing.T) (*httptest.Server, *services.MemoryStore) {
	t.Helper()
	store := services.NewMemoryStore()

	userProfileService := &services.UserProfileService{Store: store}
	matchmakingService := &services.MatchmakingService{Store: store}
	chatService := &services.ChatService{Store: store}
	archiveService := &services.ArchiveService{
		Store: store,
		Blobs: services.NewMemoryBlobStore(),
		Lease: &services.LeaseService{},
	}

	router := mux.NewRouter()
	routes.RegisterRoutes(router)
	routes.RegisterUserProfileRoutes(router, userProfileService)
	routes.RegisterMatchRoutes(router, matchmakingService)
	routes.RegisterChatRoutes(router, chatService)
	routes.RegisterArchiveRoutes(router, archiveService)

	server := httptest.NewServer(router)
	t.Cleanup(server.Close)
	return server, store
}

// doJSON performs one request and decodes the JSON object it returns.
func doJSON(t *testing.T, method, url, userID string, payload interface{}) (int, map[string]interface{}, http.Header) {
	t.Helper()

	var body *bytes.Reader
	if payload == nil {
		body = bytes.NewReader(nil)
	} else if raw, ok := payload.(string); ok {
		body = bytes.NewReader([]byte(raw))
	} else {
		encoded, err := json.Marshal(payload)
		require.NoError(t, err)
		body = bytes.NewReader(encoded)
	}

	req, err := http.NewRequest(method, url, body)
	require.NoError(t, err)
	req.Header.Set("Content-Type", "application/json")
	if userID != "" {
		req.Header.Set("X-User-Id", userID)
	}

	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()

	decoded := map[string]interface{}{}
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&decoded))
	return resp.StatusCode, decoded, resp.Header
}

func seedStoredProfile(t *testing.T, store *services.MemoryStore, userID string) {
	t.Helper()
	profile := models.UserProfile{
		UserID:           userID,
		Name:             userID,
		Gender:           "female",
		GenderPreference: models.GenderPreferenceEveryone,
		Region:           "helsinki",
	}
	require.NoError(t, store.PutItem(context.Background(), models.UserProfilesTable, profile))
}

func seedStoredMatch(t *testing.T, store *services.MemoryStore, userA, userB string) string {
	t.Helper()
	match := models.Match{
		MatchID:     models.PairMatchID(userA, userB),
		Users:       models.SortedPair(userA, userB),
		Level:       models.MatchLevelOrdinary,
		SharedShows: 4,
		InitiatedBy: userA,
		CreatedAt:   models.NewTimestamp(time.Now()),
	}
	require.NoError(t, store.PutItem(context.Background(), models.MatchesTable, match))
	return match.MatchID
}

func TestHealthEndpoint(t *testing.T) {
	server, _ := newTestServer(t)

	status, body, _ := doJSON(t, http.MethodGet, server.URL+"/health", "", nil)
	assert.Equal(t, http.StatusOK, status)
	assert.Equal(t, "Server is running!", body["message"])
}

func TestProfileEndpoints(t *testing.T) {
	server, _ := newTestServer(t)

	// Creation ignores any userId the payload claims; the caller owns it.
	status, body, _ := doJSON(t, http.MethodPost, server.URL+"/api/profiles", "alice", map[string]interface{}{
		"userId": "evil", "name": "Alice", "gender": "female",
		"genderPreference": "everyone", "region": "helsinki",
	})
	require.Equal(t, http.StatusCreated, status)
	assert.Equal(t, "alice", body["userId"])
	assert.Equal(t, "Alice", body["name"])

	status, body, _ = doJSON(t, http.MethodGet, server.URL+"/api/profiles/alice", "bob", nil)
	assert.Equal(t, http.StatusOK, status)
	assert.Equal(t, "Alice", body["name"])

	status, _, _ = doJSON(t, http.MethodGet, server.URL+"/api/profiles/ghost", "alice", nil)
	assert.Equal(t, http.StatusNotFound, status)

	status, body, _ = doJSON(t, http.MethodPatch, server.URL+"/api/profiles", "alice",
		map[string]interface{}{"region": "espoo"})
	assert.Equal(t, http.StatusOK, status)
	assert.Equal(t, "espoo", body["region"])

	// Cooldown bookkeeping is not writable over HTTP.
	status, _, _ = doJSON(t, http.MethodPatch, server.URL+"/api/profiles", "alice",
		map[string]interface{}{"searchCount": 3})
	assert.Equal(t, http.StatusBadRequest, status)

	status, body, _ = doJSON(t, http.MethodPut, server.URL+"/api/profiles/favorites", "alice",
		map[string]interface{}{"favoriteShowIds": []string{"show-02", "show-01"}})
	assert.Equal(t, http.StatusOK, status)
	assert.Equal(t, []interface{}{"show-01", "show-02"}, body["favoriteShows"])

	status, body, _ = doJSON(t, http.MethodPut, server.URL+"/api/profiles/push-token", "alice",
		map[string]interface{}{"pushToken": "ExponentPushToken[abc]"})
	assert.Equal(t, http.StatusOK, status)
	assert.Equal(t, "success", body["status"])

	status, _, _ = doJSON(t, http.MethodPost, server.URL+"/api/profiles/blocked", "alice",
		map[string]interface{}{"userId": "mallory"})
	assert.Equal(t, http.StatusOK, status)

	status, _, _ = doJSON(t, http.MethodDelete, server.URL+"/api/profiles/blocked/mallory", "alice", nil)
	assert.Equal(t, http.StatusOK, status)

	status, _, _ = doJSON(t, http.MethodPost, server.URL+"/api/profiles", "", map[string]interface{}{"name": "x"})
	assert.Equal(t, http.StatusUnauthorized, status)
}

func TestSearchEndpoints(t *testing.T) {
	server, store := newTestServer(t)
	seedStoredProfile(t, store, "alice")
	seedStoredProfile(t, store, "bob")

	shows := []string{"show-01", "show-02", "show-03", "show-04"}
	for _, showID := range shows {
		entry := models.ShowFollowers{ShowID: showID, UserIDs: []string{"bob"}}
		require.NoError(t, store.PutItem(context.Background(), models.ShowFollowersTable, entry))
	}

	status, body, _ := doJSON(t, http.MethodPost, server.URL+"/api/matches/search", "alice",
		map[string]interface{}{"favoriteShowIds": shows})
	require.Equal(t, http.StatusOK, status)
	newMatches, ok := body["newMatches"].([]interface{})
	require.True(t, ok, "newMatches missing: %v", body)
	require.Len(t, newMatches, 1)
	first := newMatches[0].(map[string]interface{})
	assert.Equal(t, "bob", first["userId"])
	assert.Equal(t, models.MatchLevelOrdinary, first["level"])
	assert.EqualValues(t, 4, first["sharedShows"])
	assert.NotEmpty(t, body["nextAllowedSearchTime"])

	// An immediate retry hits the cooldown.
	status, body, header := doJSON(t, http.MethodPost, server.URL+"/api/matches/search", "alice",
		map[string]interface{}{"favoriteShowIds": shows})
	require.Equal(t, http.StatusTooManyRequests, status)
	retryAfter, err := strconv.Atoi(header.Get("Retry-After"))
	require.NoError(t, err)
	assert.Greater(t, retryAfter, 0)
	assert.LessOrEqual(t, retryAfter, 120)
	assert.EqualValues(t, retryAfter, body["retryAfterSeconds"])

	// Both sides see the match in their listings.
	for _, userID := range []string{"alice", "bob"} {
		status, body, _ = doJSON(t, http.MethodGet, server.URL+"/api/matches", userID, nil)
		require.Equal(t, http.StatusOK, status)
		matches := body["matches"].([]interface{})
		assert.Len(t, matches, 1, userID)
	}

	status, _, _ = doJSON(t, http.MethodPost, server.URL+"/api/matches/search", "",
		map[string]interface{}{"favoriteShowIds": shows})
	assert.Equal(t, http.StatusUnauthorized, status)

	status, _, _ = doJSON(t, http.MethodPost, server.URL+"/api/matches/search", "bob", `{"favoriteShowIds":`)
	assert.Equal(t, http.StatusBadRequest, status)

	status, _, _ = doJSON(t, http.MethodPost, server.URL+"/api/matches/search", "bob",
		map[string]interface{}{"favoriteShowIds": []string{}})
	assert.Equal(t, http.StatusBadRequest, status)
}

func TestChatEndpoints(t *testing.T) {
	server, store := newTestServer(t)
	matchID := seedStoredMatch(t, store, "alice", "bob")

	status, body, _ := doJSON(t, http.MethodPost, server.URL+"/api/chat/messages", "alice",
		map[string]interface{}{"matchId": matchID, "content": "hi"})
	require.Equal(t, http.StatusOK, status)
	assert.Equal(t, "success", body["status"])
	sent := body["message"].(map[string]interface{})
	assert.NotEmpty(t, sent["messageId"])
	assert.Equal(t, "hi", sent["content"])

	status, body, _ = doJSON(t, http.MethodGet,
		fmt.Sprintf("%s/api/chat/%s/messages?limit=10", server.URL, matchID), "bob", nil)
	require.Equal(t, http.StatusOK, status)
	assert.Equal(t, matchID, body["conversationId"])
	messages := body["messages"].([]interface{})
	require.Len(t, messages, 1)
	assert.Equal(t, "hi", messages[0].(map[string]interface{})["content"])

	status, _, _ = doJSON(t, http.MethodGet,
		fmt.Sprintf("%s/api/chat/%s/messages", server.URL, matchID), "mallory", nil)
	assert.Equal(t, http.StatusForbidden, status)

	status, _, _ = doJSON(t, http.MethodPost, server.URL+"/api/chat/messages", "mallory",
		map[string]interface{}{"matchId": matchID, "content": "hi"})
	assert.Equal(t, http.StatusForbidden, status)

	status, _, _ = doJSON(t, http.MethodPost, server.URL+"/api/chat/messages", "alice",
		map[string]interface{}{"matchId": "ghost", "content": "hi"})
	assert.Equal(t, http.StatusNotFound, status)

	status, _, _ = doJSON(t, http.MethodPost, server.URL+"/api/chat/messages", "alice",
		map[string]interface{}{"matchId": matchID, "content": ""})
	assert.Equal(t, http.StatusBadRequest, status)
}

func TestArchiveEndpoints(t *testing.T) {
	server, store := newTestServer(t)
	matchID := seedStoredMatch(t, store, "alice", "bob")

	chat := &services.ChatService{Store: store}
	for i := 0; i < 25; i++ {
		_, err := chat.SendMessage(context.Background(), "alice", matchID, fmt.Sprintf("message %d", i))
		require.NoError(t, err)
	}

	status, _, _ := doJSON(t, http.MethodPost,
		fmt.Sprintf("%s/api/chat/%s/archive", server.URL, matchID), "", nil)
	assert.Equal(t, http.StatusUnauthorized, status)

	status, _, _ = doJSON(t, http.MethodPost,
		fmt.Sprintf("%s/api/chat/%s/archive", server.URL, matchID), "mallory", nil)
	assert.Equal(t, http.StatusForbidden, status)

	status, body, _ := doJSON(t, http.MethodPost,
		fmt.Sprintf("%s/api/chat/%s/archive", server.URL, matchID), "alice", nil)
	require.Equal(t, http.StatusOK, status)
	assert.Equal(t, true, body["success"])
	assert.EqualValues(t, 15, body["archivedCount"])
	assert.NotEmpty(t, body["archivePath"])

	// Nothing left above the keep threshold.
	status, body, _ = doJSON(t, http.MethodPost,
		fmt.Sprintf("%s/api/chat/%s/archive", server.URL, matchID), "alice", nil)
	require.Equal(t, http.StatusOK, status)
	assert.Equal(t, false, body["success"])

	status, _, _ = doJSON(t, http.MethodPost, server.URL+"/api/chat/ghost/archive", "alice", nil)
	assert.Equal(t, http.StatusNotFound, status)

	// The sweep endpoint reports counts over every conversation.
	seedStoredMatch(t, store, "carol", "dave")
	for i := 0; i < 25; i++ {
		_, err := chat.SendMessage(context.Background(), "carol", models.PairMatchID("carol", "dave"), "x")
		require.NoError(t, err)
	}
	status, body, _ = doJSON(t, http.MethodPost, server.URL+"/internal/archive/sweep", "", nil)
	require.Equal(t, http.StatusOK, status)
	assert.EqualValues(t, 1, body["eligible"])
	assert.EqualValues(t, 1, body["archived"])
}
