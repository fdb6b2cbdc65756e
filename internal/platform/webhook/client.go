package webhook

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/social-scheduler/internal/models"
	"github.com/social-scheduler/internal/platform"
	"github.com/social-scheduler/pkg/logger"
)

// Config holds the webhook publisher settings
type Config struct {
	URL     string
	Token   string // sent as a bearer token when set
	Timeout time.Duration
}

// Client publishes occurrences by POSTing them to an HTTP endpoint
type Client struct {
	httpClient *http.Client
	url        string
	token      string
	log        *logger.Logger
}

// NewClient creates a webhook publisher
func NewClient(cfg Config, log *logger.Logger) *Client {
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 15 * time.Second
	}
	return &Client{
		httpClient: &http.Client{Timeout: timeout},
		url:        cfg.URL,
		token:      cfg.Token,
		log:        log.WithComponent("webhook"),
	}
}

// Message is the JSON body delivered to the endpoint
type Message struct {
	OccurrenceID string           `json:"occurrence_id"`
	AccountID    string           `json:"account_id"`
	Platform     models.Platform  `json:"platform"`
	ScheduledFor time.Time        `json:"scheduled_for"`
	AssignedTime models.TimeOfDay `json:"assigned_time"`
	Attempt      int              `json:"attempt"`
	PayloadRef   string           `json:"payload_ref"`
	Payload      models.JSON      `json:"payload,omitempty"`
}

// Response is the optional JSON body returned by the endpoint
type Response struct {
	ID string `json:"id"`
}

// Publish delivers the request. The occurrence ID doubles as the idempotency key so
// the receiver can drop retried deliveries.
func (c *Client) Publish(ctx context.Context, req platform.Request) (platform.Receipt, error) {
	data, err := json.Marshal(Message{
		OccurrenceID: req.OccurrenceID,
		AccountID:    req.AccountID,
		Platform:     req.Platform,
		ScheduledFor: req.ScheduledFor,
		AssignedTime: req.AssignedTime,
		Attempt:      req.Attempt,
		PayloadRef:   req.Payload.Ref,
		Payload:      req.Payload.Data,
	})
	if err != nil {
		return platform.Receipt{}, platform.Rejected(fmt.Errorf("failed to marshal message: %w", err))
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.url, bytes.NewReader(data))
	if err != nil {
		return platform.Receipt{}, platform.Rejected(fmt.Errorf("failed to create request: %w", err))
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Idempotency-Key", req.OccurrenceID)
	if c.token != "" {
		httpReq.Header.Set("Authorization", "Bearer "+c.token)
	}

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return platform.Receipt{}, fmt.Errorf("%w: request failed: %v", platform.ErrPublishFailure, err)
	}
	defer resp.Body.Close()

	body, _ := io.ReadAll(io.LimitReader(resp.Body, 64<<10))
	if err := platform.StatusError(resp.StatusCode, string(body)); err != nil {
		c.log.Warn().
			Int("status", resp.StatusCode).
			Str("occurrence_id", req.OccurrenceID).
			Msg("Webhook delivery failed")
		return platform.Receipt{}, err
	}

	var out Response
	if len(body) > 0 {
		_ = json.Unmarshal(body, &out)
	}
	if out.ID == "" {
		out.ID = req.OccurrenceID
	}

	c.log.Debug().
		Str("occurrence_id", req.OccurrenceID).
		Str("external_id", out.ID).
		Msg("Webhook delivered")
	return platform.Receipt{ExternalPostID: out.ID}, nil
}

var _ platform.Publisher = (*Client)(nil)
