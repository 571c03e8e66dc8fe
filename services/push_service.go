package services

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"net/http"
	"time"

	"showmates_server/models"
)

// ExpoPushEndpoint is the default Expo push HTTP API endpoint.
const ExpoPushEndpoint = "https://exp.host/--/api/v2/push/send"

const (
	PushStatusOK                 = "ok"
	PushErrorDeviceNotRegistered = "DeviceNotRegistered"
)

// PushTicket is the per-token delivery outcome reported by the push
// provider for one send.
type PushTicket struct {
	Token     string `json:"token"`
	Status    string `json:"status"`
	ErrorKind string `json:"errorKind,omitempty"`
	Message   string `json:"message,omitempty"`
}

// PushSender delivers one notification payload to a list of device
// tokens and reports a ticket per token, in token order.
type PushSender interface {
	Send(ctx context.Context, tokens []string, title, body string, data map[string]string) ([]PushTicket, error)
}

// ExpoPushSender implements PushSender against the Expo push API.
type ExpoPushSender struct {
	Endpoint string
	Client   *http.Client
}

func NewExpoPushSender() *ExpoPushSender {
	return &ExpoPushSender{
		Endpoint: ExpoPushEndpoint,
		Client:   &http.Client{Timeout: 10 * time.Second},
	}
}

type expoPushMessage struct {
	To    string            `json:"to"`
	Title string            `json:"title"`
	Body  string            `json:"body"`
	Data  map[string]string `json:"data,omitempty"`
	Sound string            `json:"sound,omitempty"`
}

type expoPushTicket struct {
	Status  string `json:"status"`
	Message string `json:"message,omitempty"`
	Details struct {
		Error string `json:"error,omitempty"`
	} `json:"details"`
}

type expoPushResponse struct {
	Data []expoPushTicket `json:"data"`
}

func (eps *ExpoPushSender) Send(ctx context.Context, tokens []string, title, body string, data map[string]string) ([]PushTicket, error) {
	if len(tokens) == 0 {
		return nil, nil
	}

	messages := make([]expoPushMessage, 0, len(tokens))
	for _, token := range tokens {
		messages = append(messages, expoPushMessage{
			To:    token,
			Title: title,
			Body:  body,
			Data:  data,
			Sound: "default",
		})
	}
	payload, err := json.Marshal(messages)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal push messages: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, eps.Endpoint, bytes.NewReader(payload))
	if err != nil {
		return nil, fmt.Errorf("failed to build push request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")

	resp, err := eps.Client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to call push endpoint: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("push endpoint returned status %d", resp.StatusCode)
	}

	var parsed expoPushResponse
	if err := json.NewDecoder(resp.Body).Decode(&parsed); err != nil {
		return nil, fmt.Errorf("failed to decode push response: %w", err)
	}

	// Tickets come back in message order.
	tickets := make([]PushTicket, 0, len(tokens))
	for i, token := range tokens {
		if i >= len(parsed.Data) {
			tickets = append(tickets, PushTicket{Token: token, Status: "error", Message: "no ticket returned"})
			continue
		}
		raw := parsed.Data[i]
		tickets = append(tickets, PushTicket{
			Token:     token,
			Status:    raw.Status,
			ErrorKind: raw.Details.Error,
			Message:   raw.Message,
		})
	}
	return tickets, nil
}

// ClassifyInvalidTokens returns the tokens whose tickets report
// DeviceNotRegistered. Pure; it never touches the store.
func ClassifyInvalidTokens(tickets []PushTicket) []string {
	var invalid []string
	for _, ticket := range tickets {
		if ticket.Status != PushStatusOK && ticket.ErrorKind == PushErrorDeviceNotRegistered {
			invalid = append(invalid, ticket.Token)
		}
	}
	return invalid
}

// PushService wraps a PushSender with the token-invalidation side
// effects delivery outcomes call for.
type PushService struct {
	Sender PushSender
	Store  DocumentStore
}

// SendMatchNotification notifies one user that someone matched with
// them. Dead tokens reported by the provider are cleared from the
// owning profile afterwards.
func (ps *PushService) SendMatchNotification(ctx context.Context, to *models.UserProfile, byUser *models.UserProfile, match *models.Match) error {
	if to.PushToken == "" {
		return nil
	}

	name := byUser.Name
	if name == "" {
		name = "Someone"
	}
	title := "It's a match!"
	body := fmt.Sprintf("You and %s follow %d of the same shows. Say hi!", name, match.SharedShows)
	data := map[string]string{
		"type":     "match",
		"matchId":  match.MatchID,
		"byUserId": byUser.UserID,
		"level":    match.Level,
	}

	tickets, err := ps.Sender.Send(ctx, []string{to.PushToken}, title, body, data)
	if err != nil {
		return fmt.Errorf("failed to send match notification: %w", err)
	}

	invalid := ClassifyInvalidTokens(tickets)
	ps.InvalidateTokens(ctx, map[string]string{to.PushToken: to.UserID}, invalid)
	return nil
}

// InvalidateTokens clears stored push tokens the provider reported as
// dead. Each clear is conditional on the token still matching, so a
// token the device refreshed mid-flight survives.
func (ps *PushService) InvalidateTokens(ctx context.Context, ownerIDByToken map[string]string, tokens []string) {
	for _, token := range tokens {
		userID, ok := ownerIDByToken[token]
		if !ok {
			continue
		}
		err := ps.Store.UpdateItem(ctx, models.UserProfilesTable,
			Key{"userId": userID},
			[]Mutation{RemoveAttr("pushToken")},
			IfEquals("pushToken", token),
		)
		if err != nil {
			// Condition failure means the device re-registered already.
			if !errors.Is(err, ErrConditionFailed) {
				log.Printf("❌ Failed to clear push token for user %s: %v", userID, err)
			}
			continue
		}
		log.Printf("✅ Cleared dead push token for user %s", userID)
	}
}
