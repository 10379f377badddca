// Package messaging delivers outbound messages to the SMS/MMS provider.
package messaging

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
)

// Message is one outbound message
type Message struct {
	To        string   `json:"to"`
	From      string   `json:"from"`
	Body      string   `json:"body"`
	MediaURLs []string `json:"media_urls,omitempty"`
	// Reference is echoed back by the provider in delivery callbacks
	Reference string `json:"reference,omitempty"`
}

// Receipt is the provider's acknowledgement that the message was queued
type Receipt struct {
	ProviderMessageID string `json:"message_id"`
	Status            string `json:"status"`
}

// Provider sends messages. Delivery status arrives out of band.
type Provider interface {
	Send(ctx context.Context, msg Message) (*Receipt, error)
}

// HTTPProvider posts messages as JSON to a provider endpoint
type HTTPProvider struct {
	url    string
	apiKey string
	client *http.Client
}

func NewHTTPProvider(url, apiKey string, timeout time.Duration) *HTTPProvider {
	if timeout <= 0 {
		timeout = 15 * time.Second
	}
	return &HTTPProvider{
		url:    strings.TrimSuffix(url, "/"),
		apiKey: apiKey,
		client: &http.Client{Timeout: timeout},
	}
}

func (p *HTTPProvider) Send(ctx context.Context, msg Message) (*Receipt, error) {
	jsonBody, err := json.Marshal(msg)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal message: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, p.url+"/messages", bytes.NewBuffer(jsonBody))
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("User-Agent", "Green-Outreach-Services/1.0")
	if p.apiKey != "" {
		httpReq.Header.Set("Authorization", "Bearer "+p.apiKey)
	}

	resp, err := p.client.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("failed to call messaging provider: %w", err)
	}
	defer resp.Body.Close()

	bodyBytes, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read response body: %w", err)
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		var errorResp map[string]interface{}
		if err := json.Unmarshal(bodyBytes, &errorResp); err == nil {
			if errorMsg, ok := errorResp["error"].(string); ok {
				return nil, fmt.Errorf("messaging provider error: %s", errorMsg)
			}
			if errorMsg, ok := errorResp["message"].(string); ok {
				return nil, fmt.Errorf("messaging provider error: %s", errorMsg)
			}
		}
		return nil, fmt.Errorf("messaging provider returned status %d: %s", resp.StatusCode, string(bodyBytes))
	}

	var receipt Receipt
	if err := json.Unmarshal(bodyBytes, &receipt); err != nil {
		logrus.Warnf("Messaging provider returned a non-JSON body: %v", err)
		return &Receipt{Status: "queued"}, nil
	}
	if receipt.Status == "" {
		receipt.Status = "queued"
	}
	return &receipt, nil
}

// LogProvider logs messages instead of sending them, used when no provider URL is configured
type LogProvider struct{}

func NewLogProvider() *LogProvider {
	return &LogProvider{}
}

func (p *LogProvider) Send(ctx context.Context, msg Message) (*Receipt, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	id := uuid.New().String()
	logrus.WithFields(logrus.Fields{
		"to":         msg.To,
		"from":       msg.From,
		"chars":      len([]rune(msg.Body)),
		"media":      len(msg.MediaURLs),
		"reference":  msg.Reference,
		"message_id": id,
	}).Info("Outbound message (log provider)")
	return &Receipt{ProviderMessageID: id, Status: "queued"}, nil
}
