package notify

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	expo "github.com/oliveroneill/exponent-server-sdk-golang/sdk"
)

const DefaultExpoPushURL = "https://exp.host/--/api/v2/push/send"

// PushMessage is one Expo push request for a single device token.
type PushMessage struct {
	To    string
	Title string
	Body  string
	Data  map[string]string
	Sound string
}

// PushTicket is Expo's per-message answer, in request order.
type PushTicket struct {
	Status  string
	ID      string
	Message string
	Details struct {
		Error string
	}
}

func (t PushTicket) OK() bool {
	return t.Status == expo.SuccessStatus
}

// Pusher delivers push messages and reports one ticket per message.
type Pusher interface {
	Send(ctx context.Context, messages []PushMessage) ([]PushTicket, error)
}

// ExpoClient talks to the Expo push service.
type ExpoClient struct {
	client *expo.PushClient
}

// NewExpoClient builds a client for the full push endpoint URL, e.g.
// https://exp.host/--/api/v2/push/send.
func NewExpoClient(pushURL, accessToken string) *ExpoClient {
	if pushURL == "" {
		pushURL = DefaultExpoPushURL
	}
	host, apiURL := expo.DefaultHost, expo.DefaultBaseAPIURL
	if u, err := url.Parse(pushURL); err == nil && u.Host != "" {
		host = u.Scheme + "://" + u.Host
		apiURL = strings.TrimSuffix(u.Path, "/push/send")
	}
	return &ExpoClient{client: expo.NewPushClient(&expo.ClientConfig{
		Host:        host,
		APIURL:      apiURL,
		AccessToken: accessToken,
		HTTPClient:  &http.Client{Timeout: 10 * time.Second},
	})}
}

// Send publishes the messages with valid Expo tokens in one batch. Malformed
// tokens get an error ticket without a round trip.
func (c *ExpoClient) Send(ctx context.Context, messages []PushMessage) ([]PushTicket, error) {
	if len(messages) == 0 {
		return nil, nil
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	tickets := make([]PushTicket, len(messages))
	batch := make([]expo.PushMessage, 0, len(messages))
	positions := make([]int, 0, len(messages))
	for i, m := range messages {
		token, err := expo.NewExponentPushToken(m.To)
		if err != nil {
			tickets[i].Status = "error"
			tickets[i].Message = err.Error()
			continue
		}
		batch = append(batch, expo.PushMessage{
			To:    []expo.ExponentPushToken{token},
			Title: m.Title,
			Body:  m.Body,
			Data:  m.Data,
			Sound: m.Sound,
		})
		positions = append(positions, i)
	}
	if len(batch) == 0 {
		return tickets, nil
	}

	responses, err := c.client.PublishMultiple(batch)
	if err != nil {
		return nil, fmt.Errorf("push request: %w", err)
	}
	for j, resp := range responses {
		ticket := &tickets[positions[j]]
		ticket.Status = resp.Status
		ticket.ID = resp.ID
		ticket.Message = resp.Message
		if err := resp.ValidateResponse(); err != nil {
			ticket.Details.Error = resp.Details["error"]
			if ticket.Message == "" {
				ticket.Message = err.Error()
			}
		}
	}
	return tickets, nil
}
