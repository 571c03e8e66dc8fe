package services

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"showmates_server/models"
)

// fakePushSender records sends and answers with canned tickets. Tokens
// without a canned ticket report ok.
type fakePushSender struct {
	mu      sync.Mutex
	sends   []sentPush
	tickets map[string]PushTicket
	err     error
}

type sentPush struct {
	Tokens []string
	Title  string
	Body   string
	Data   map[string]string
}

func (f *fakePushSender) Send(ctx context.Context, tokens []string, title, body string, data map[string]string) ([]PushTicket, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	if f.err != nil {
		return nil, f.err
	}
	f.sends = append(f.sends, sentPush{Tokens: tokens, Title: title, Body: body, Data: data})

	out := make([]PushTicket, 0, len(tokens))
	for _, token := range tokens {
		if ticket, ok := f.tickets[token]; ok {
			out = append(out, ticket)
			continue
		}
		out = append(out, PushTicket{Token: token, Status: PushStatusOK})
	}
	return out, nil
}

func (f *fakePushSender) sentCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.sends)
}

func TestExpoPushSenderSend(t *testing.T) {
	var received []expoPushMessage
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, http.MethodPost, r.Method)
		require.Equal(t, "application/json", r.Header.Get("Content-Type"))
		require.NoError(t, json.NewDecoder(r.Body).Decode(&received))

		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"data":[
			{"status":"ok"},
			{"status":"error","message":"device gone","details":{"error":"DeviceNotRegistered"}}
		]}`))
	}))
	defer server.Close()

	sender := &ExpoPushSender{Endpoint: server.URL, Client: server.Client()}
	tickets, err := sender.Send(context.Background(), []string{"tok-a", "tok-b"},
		"It's a match!", "You and Alice follow 4 of the same shows. Say hi!",
		map[string]string{"type": "match", "matchId": "alice#bob"})
	require.NoError(t, err)

	require.Len(t, received, 2)
	assert.Equal(t, "tok-a", received[0].To)
	assert.Equal(t, "tok-b", received[1].To)
	assert.Equal(t, "It's a match!", received[0].Title)
	assert.Equal(t, "match", received[0].Data["type"])
	assert.Equal(t, "default", received[0].Sound)

	require.Len(t, tickets, 2)
	assert.Equal(t, PushTicket{Token: "tok-a", Status: "ok"}, tickets[0])
	assert.Equal(t, "tok-b", tickets[1].Token)
	assert.Equal(t, "error", tickets[1].Status)
	assert.Equal(t, PushErrorDeviceNotRegistered, tickets[1].ErrorKind)
	assert.Equal(t, "device gone", tickets[1].Message)
}

func TestExpoPushSenderRejectsBadStatus(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer server.Close()

	sender := &ExpoPushSender{Endpoint: server.URL, Client: server.Client()}
	_, err := sender.Send(context.Background(), []string{"tok-a"}, "t", "b", nil)
	assert.Error(t, err)
}

func TestExpoPushSenderFillsMissingTickets(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"data":[{"status":"ok"}]}`))
	}))
	defer server.Close()

	sender := &ExpoPushSender{Endpoint: server.URL, Client: server.Client()}
	tickets, err := sender.Send(context.Background(), []string{"tok-a", "tok-b"}, "t", "b", nil)
	require.NoError(t, err)

	require.Len(t, tickets, 2)
	assert.Equal(t, "ok", tickets[0].Status)
	assert.Equal(t, "error", tickets[1].Status)
	assert.Equal(t, "no ticket returned", tickets[1].Message)
}

func TestExpoPushSenderNoTokensNoCall(t *testing.T) {
	sender := &ExpoPushSender{Endpoint: "http://127.0.0.1:1", Client: http.DefaultClient}
	tickets, err := sender.Send(context.Background(), nil, "t", "b", nil)
	require.NoError(t, err)
	assert.Nil(t, tickets)
}

func TestClassifyInvalidTokens(t *testing.T) {
	invalid := ClassifyInvalidTokens([]PushTicket{
		{Token: "tok-ok", Status: PushStatusOK},
		{Token: "tok-dead", Status: "error", ErrorKind: PushErrorDeviceNotRegistered},
		{Token: "tok-throttled", Status: "error", ErrorKind: "MessageRateExceeded"},
	})
	assert.Equal(t, []string{"tok-dead"}, invalid)

	assert.Nil(t, ClassifyInvalidTokens(nil))
}

func TestSendMatchNotificationClearsDeadToken(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStore()
	require.NoError(t, store.PutItem(ctx, models.UserProfilesTable,
		models.UserProfile{UserID: "bob", PushToken: "tok-dead"}))

	sender := &fakePushSender{tickets: map[string]PushTicket{
		"tok-dead": {Token: "tok-dead", Status: "error", ErrorKind: PushErrorDeviceNotRegistered},
	}}
	push := &PushService{Sender: sender, Store: store}

	to := models.UserProfile{UserID: "bob", PushToken: "tok-dead"}
	by := models.UserProfile{UserID: "alice", Name: "Alice"}
	match := models.Match{MatchID: "alice#bob", SharedShows: 4, Level: models.MatchLevelOrdinary}
	require.NoError(t, push.SendMatchNotification(ctx, &to, &by, &match))

	var stored models.UserProfile
	require.NoError(t, store.GetItem(ctx, models.UserProfilesTable, Key{"userId": "bob"}, &stored))
	assert.Empty(t, stored.PushToken)
}

func TestSendMatchNotificationKeepsRotatedToken(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStore()

	// The device re-registered between our profile read and the send.
	require.NoError(t, store.PutItem(ctx, models.UserProfilesTable,
		models.UserProfile{UserID: "bob", PushToken: "tok-new"}))

	sender := &fakePushSender{tickets: map[string]PushTicket{
		"tok-old": {Token: "tok-old", Status: "error", ErrorKind: PushErrorDeviceNotRegistered},
	}}
	push := &PushService{Sender: sender, Store: store}

	to := models.UserProfile{UserID: "bob", PushToken: "tok-old"}
	by := models.UserProfile{UserID: "alice", Name: "Alice"}
	match := models.Match{MatchID: "alice#bob", SharedShows: 3, Level: models.MatchLevelOrdinary}
	require.NoError(t, push.SendMatchNotification(ctx, &to, &by, &match))

	var stored models.UserProfile
	require.NoError(t, store.GetItem(ctx, models.UserProfilesTable, Key{"userId": "bob"}, &stored))
	assert.Equal(t, "tok-new", stored.PushToken)
}

func TestSendMatchNotificationSkipsUsersWithoutToken(t *testing.T) {
	sender := &fakePushSender{}
	push := &PushService{Sender: sender, Store: NewMemoryStore()}

	to := models.UserProfile{UserID: "bob"}
	by := models.UserProfile{UserID: "alice"}
	match := models.Match{MatchID: "alice#bob"}
	require.NoError(t, push.SendMatchNotification(context.Background(), &to, &by, &match))
	assert.Zero(t, sender.sentCount())
}

func TestSendMatchNotificationBodyNamesFallback(t *testing.T) {
	sender := &fakePushSender{}
	push := &PushService{Sender: sender, Store: NewMemoryStore()}

	to := models.UserProfile{UserID: "bob", PushToken: "tok-b"}
	by := models.UserProfile{UserID: "alice"} // no display name
	match := models.Match{MatchID: "alice#bob", SharedShows: 5, Level: models.MatchLevelOrdinary}
	require.NoError(t, push.SendMatchNotification(context.Background(), &to, &by, &match))

	require.Equal(t, 1, sender.sentCount())
	assert.Equal(t, "You and Someone follow 5 of the same shows. Say hi!", sender.sends[0].Body)
	assert.Equal(t, "alice", sender.sends[0].Data["byUserId"])
	assert.Equal(t, models.MatchLevelOrdinary, sender.sends[0].Data["level"])
}
