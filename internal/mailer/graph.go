// Package mailer sends one personalized message through Microsoft Graph.
package mailer

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/google/uuid"
)

// ProviderName is stored on recipient rows sent through this dispatcher.
const ProviderName = "microsoft"

const requestIDHeader = "x-ms-request-id"

// Envelope is a fully personalized message for one recipient.
type Envelope struct {
	ToAddress string
	ToName    string
	Subject   string
	HTMLBody  string
	CC        []string
	BCC       []string
	ReplyTo   string
}

// Result is the classified outcome of a single send attempt.
type Result struct {
	Success    bool
	MessageID  string
	StatusCode int
	Error      string
}

// Dispatcher performs exactly one send attempt per call.
type Dispatcher interface {
	Send(ctx context.Context, accessToken string, env Envelope) Result
}

type GraphClient struct {
	BaseURL    string
	HTTPClient *http.Client
	NewID      func() string
}

func NewGraphClient(baseURL string, timeout time.Duration) *GraphClient {
	return &GraphClient{
		BaseURL:    baseURL,
		HTTPClient: &http.Client{Timeout: timeout},
		NewID:      uuid.NewString,
	}
}

type emailAddress struct {
	Address string `json:"address"`
	Name    string `json:"name,omitempty"`
}

type graphRecipient struct {
	EmailAddress emailAddress `json:"emailAddress"`
}

type itemBody struct {
	ContentType string `json:"contentType"`
	Content     string `json:"content"`
}

type graphMessage struct {
	Subject       string           `json:"subject"`
	Body          itemBody         `json:"body"`
	ToRecipients  []graphRecipient `json:"toRecipients"`
	CcRecipients  []graphRecipient `json:"ccRecipients,omitempty"`
	BccRecipients []graphRecipient `json:"bccRecipients,omitempty"`
	ReplyTo       []graphRecipient `json:"replyTo,omitempty"`
}

type sendMailRequest struct {
	Message         graphMessage `json:"message"`
	SaveToSentItems bool         `json:"saveToSentItems"`
}

func buildPayload(env Envelope) sendMailRequest {
	name := env.ToName
	if name == "" {
		name = env.ToAddress
	}
	msg := graphMessage{
		Subject: env.Subject,
		Body:    itemBody{ContentType: "HTML", Content: env.HTMLBody},
		ToRecipients: []graphRecipient{
			{EmailAddress: emailAddress{Address: env.ToAddress, Name: name}},
		},
		CcRecipients:  bareRecipients(env.CC),
		BccRecipients: bareRecipients(env.BCC),
	}
	if env.ReplyTo != "" {
		msg.ReplyTo = []graphRecipient{{EmailAddress: emailAddress{Address: env.ReplyTo}}}
	}
	return sendMailRequest{Message: msg, SaveToSentItems: true}
}

func bareRecipients(addrs []string) []graphRecipient {
	if len(addrs) == 0 {
		return nil
	}
	out := make([]graphRecipient, 0, len(addrs))
	for _, a := range addrs {
		out = append(out, graphRecipient{EmailAddress: emailAddress{Address: a}})
	}
	return out
}

// Send posts the message to /me/sendMail. Any 2xx is success; everything else,
// including transport errors, is returned as a failed Result with the detail verbatim.
func (c *GraphClient) Send(ctx context.Context, accessToken string, env Envelope) Result {
	body, err := json.Marshal(buildPayload(env))
	if err != nil {
		return Result{Error: err.Error()}
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.BaseURL+"/me/sendMail", bytes.NewReader(body))
	if err != nil {
		return Result{Error: err.Error()}
	}
	req.Header.Set("Authorization", "Bearer "+accessToken)
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.HTTPClient.Do(req)
	if err != nil {
		return Result{Error: err.Error()}
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 200 && resp.StatusCode < 300 {
		_, _ = io.Copy(io.Discard, resp.Body)
		id := resp.Header.Get(requestIDHeader)
		if id == "" {
			id = c.newID()
		}
		return Result{Success: true, MessageID: id, StatusCode: resp.StatusCode}
	}

	detail, _ := io.ReadAll(resp.Body)
	return Result{
		StatusCode: resp.StatusCode,
		Error:      fmt.Sprintf("Graph API error: %d - %s", resp.StatusCode, string(detail)),
	}
}

func (c *GraphClient) newID() string {
	if c.NewID != nil {
		return c.NewID()
	}
	return uuid.NewString()
}

var _ Dispatcher = (*GraphClient)(nil)
