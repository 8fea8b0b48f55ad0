package mailer

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log"
	"net/http"
	"strings"
	"time"
)

// HTTPTransport delivers mail through a JSON-over-HTTP provider API.
type HTTPTransport struct {
	endpoint string
	apiKey   string
	from     fromAddress
	client   *http.Client
}

type fromAddress struct {
	Email string `json:"email"`
	Name  string `json:"name,omitempty"`
}

// NewHTTPTransport creates a transport posting to baseURL/v1/send.
func NewHTTPTransport(baseURL, apiKey, fromEmail, fromName string, timeout time.Duration) *HTTPTransport {
	return &HTTPTransport{
		endpoint: strings.TrimRight(baseURL, "/") + "/v1/send",
		apiKey:   apiKey,
		from:     fromAddress{Email: fromEmail, Name: fromName},
		client:   &http.Client{Timeout: timeout},
	}
}

type sendRequest struct {
	From    fromAddress       `json:"from"`
	To      []toAddress       `json:"to"`
	Subject string            `json:"subject"`
	HTML    string            `json:"html"`
	Headers map[string]string `json:"headers,omitempty"`
}

type toAddress struct {
	Email string `json:"email"`
	Name  string `json:"name,omitempty"`
}

type sendResponse struct {
	MessageID string `json:"message_id"`
	Error     string `json:"error"`
}

// Send posts one message to the provider. Response codes in the 4xx
// range (except 429) are permanent failures; everything else retryable.
func (t *HTTPTransport) Send(ctx context.Context, msg *Message) (*SendResult, error) {
	from := t.from
	if msg.FromEmail != "" {
		from = fromAddress{Email: msg.FromEmail, Name: msg.FromName}
	}

	payload := sendRequest{
		From:    from,
		To:      []toAddress{{Email: msg.To, Name: msg.ToName}},
		Subject: msg.Subject,
		HTML:    msg.HTML,
		Headers: msg.Headers,
	}
	body, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("marshal send payload: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, t.endpoint, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("create send request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+t.apiKey)

	resp, err := t.client.Do(req)
	if err != nil {
		return nil, &SendError{Reason: err.Error()}
	}
	defer resp.Body.Close()

	respBody, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))

	if resp.StatusCode >= 400 {
		reason := strings.TrimSpace(string(respBody))
		var parsed sendResponse
		if json.Unmarshal(respBody, &parsed) == nil && parsed.Error != "" {
			reason = parsed.Error
		}
		return nil, &SendError{
			Reason:    fmt.Sprintf("HTTP %d: %s", resp.StatusCode, reason),
			Permanent: resp.StatusCode < 500 && resp.StatusCode != http.StatusTooManyRequests,
		}
	}

	var parsed sendResponse
	if err := json.Unmarshal(respBody, &parsed); err != nil {
		log.Printf("[mailer] unparseable provider response for %s: %v", msg.To, err)
	}
	return &SendResult{MessageID: parsed.MessageID, SentAt: time.Now().UTC()}, nil
}
