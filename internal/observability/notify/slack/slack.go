// Package slack posts job failure alerts to a Slack incoming webhook.
package slack

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"sort"
	"strings"
	"time"

	"github.com/edunexus/governance/internal/observability/notify"
)

// Config captures the subset of Slack webhook behaviour we need.
type Config struct {
	WebhookURL string
	Channel    string
	Username   string
	Timeout    time.Duration
	RetryLimit int
	Client     *http.Client
	// JobURLPrefix, when set, turns the job id into a link to the admin job endpoint.
	JobURLPrefix string
}

// Client delivers job failure notifications to a Slack webhook.
type Client struct {
	webhookURL   string
	channel      string
	username     string
	retryLimit   int
	jobURLPrefix string
	client       *http.Client
}

var _ notify.Sink = (*Client)(nil)

// NewClient builds a Slack webhook client.
func NewClient(cfg Config) (*Client, error) {
	webhookURL := strings.TrimSpace(cfg.WebhookURL)
	if webhookURL == "" {
		return nil, errors.New("slack webhook url is required")
	}

	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	hc := cfg.Client
	if hc == nil {
		hc = &http.Client{Timeout: timeout}
	}

	username := strings.TrimSpace(cfg.Username)
	if username == "" {
		username = "governance"
	}

	return &Client{
		webhookURL:   webhookURL,
		channel:      strings.TrimSpace(cfg.Channel),
		username:     username,
		retryLimit:   max(cfg.RetryLimit, 0),
		jobURLPrefix: strings.TrimSpace(cfg.JobURLPrefix),
		client:       hc,
	}, nil
}

// SendJobFailure posts a formatted message to Slack, retrying with linear backoff.
func (c *Client) SendJobFailure(ctx context.Context, payload notify.JobFailurePayload) error {
	body, err := json.Marshal(c.message(payload))
	if err != nil {
		return fmt.Errorf("encode slack payload: %w", err)
	}

	var lastErr error
	for attempt := 0; attempt <= c.retryLimit; attempt++ {
		if attempt > 0 {
			timer := time.NewTimer(time.Duration(attempt) * 200 * time.Millisecond)
			select {
			case <-ctx.Done():
				timer.Stop()
				return ctx.Err()
			case <-timer.C:
			}
		}
		if lastErr = c.post(ctx, body); lastErr == nil {
			return nil
		}
	}
	return lastErr
}

type slackMessage struct {
	Text     string `json:"text"`
	Username string `json:"username"`
	Channel  string `json:"channel,omitempty"`
}

func (c *Client) message(p notify.JobFailurePayload) slackMessage {
	occurred := p.OccurredAt
	if occurred.IsZero() {
		occurred = time.Now()
	}

	var b strings.Builder
	b.WriteString("*Job run ")
	b.WriteString(strings.ToLower(orDefault(p.Status, "failed")))
	b.WriteString("*")
	if id := c.jobRef(p.JobID); id != "" {
		b.WriteString(" ")
		b.WriteString(id)
	}
	if p.JobType != "" {
		b.WriteString(" (" + p.JobType + ")")
	}
	b.WriteByte('\n')

	field(&b, "Severity", orDefault(p.Severity, notify.SeverityCritical))
	field(&b, "Business id", p.BusinessID)
	if p.Attempt > 0 {
		field(&b, "Attempt", fmt.Sprint(p.Attempt))
	}
	field(&b, "Error class", p.ErrorClass)
	field(&b, "Error", escape(p.Error))

	if len(p.Metadata) > 0 {
		keys := make([]string, 0, len(p.Metadata))
		for k := range p.Metadata {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		b.WriteString("• Metadata:\n")
		for _, k := range keys {
			b.WriteString("    • " + k + ": " + escape(p.Metadata[k]) + "\n")
		}
	}
	b.WriteString("• Timestamp: " + occurred.UTC().Format(time.RFC3339))

	return slackMessage{Text: b.String(), Username: c.username, Channel: c.channel}
}

func (c *Client) jobRef(jobID string) string {
	id := strings.TrimSpace(jobID)
	if id == "" {
		return ""
	}
	if c.jobURLPrefix != "" {
		if u, err := url.Parse(c.jobURLPrefix); err == nil && u.Scheme != "" && u.Host != "" {
			if link, err := url.JoinPath(u.String(), id); err == nil {
				return fmt.Sprintf("<%s|%s>", link, id)
			}
		}
	}
	return "`" + id + "`"
}

func (c *Client) post(ctx context.Context, body []byte) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.webhookURL, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("create slack request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.client.Do(req)
	if err != nil {
		return fmt.Errorf("slack request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return fmt.Errorf("slack webhook %s: %s", resp.Status, strings.TrimSpace(string(msg)))
	}
	_, _ = io.Copy(io.Discard, resp.Body)
	return nil
}

func field(b *strings.Builder, label, value string) {
	if strings.TrimSpace(value) == "" {
		return
	}
	b.WriteString("• " + label + ": " + value + "\n")
}

func escape(v string) string {
	return strings.NewReplacer("&", "&amp;", "<", "&lt;", ">", "&gt;").Replace(v)
}

func orDefault(v, fallback string) string {
	if v == "" {
		return fallback
	}
	return v
}
