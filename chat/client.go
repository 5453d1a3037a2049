// Package chat is the conversational client of the planner: an HTTP client
// with bounded retries, a role-tagged transcript and a terminal UI.
package chat

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/hupe1980/messplanner/logging"
)

// Fallback replies shown instead of a plan.
const (
	DoneText    = "Done bhai!"
	SlowText    = "Server thoda slow hai bhai, ek baar aur try kar"
	OfflineText = "Backend off hai bhai – pehle server chala le"
)

// Options configures a Client.
type Options struct {
	BaseURL    string
	HTTPClient *http.Client
	// Timeout bounds a single attempt.
	Timeout  time.Duration
	Attempts int
	// Delay is the pause between attempts. Backoff multiplies it after every
	// attempt (1 keeps it fixed); MaxDelay caps the growth.
	Delay    time.Duration
	Backoff  float64
	MaxDelay time.Duration
	// Optional identity sent with every request.
	UserID    string
	SessionID string
	Logger    logging.Logger
}

// Client talks to POST /plan.
type Client struct {
	opts Options
}

// NewClient creates a Client with the defaults of the original chat page:
// three attempts, five seconds apart, 120 seconds each.
func NewClient(optFns ...func(o *Options)) *Client {
	opts := Options{
		BaseURL:  "http://localhost:8080",
		Timeout:  120 * time.Second,
		Attempts: 3,
		Delay:    5 * time.Second,
		Backoff:  1,
		MaxDelay: time.Minute,
		Logger:   logging.NoOpLogger{},
	}

	for _, fn := range optFns {
		fn(&opts)
	}

	if opts.HTTPClient == nil {
		opts.HTTPClient = &http.Client{}
	}
	if opts.Attempts < 1 {
		opts.Attempts = 1
	}
	if opts.Backoff < 1 {
		opts.Backoff = 1
	}
	if opts.Logger == nil {
		opts.Logger = logging.NoOpLogger{}
	}
	opts.BaseURL = strings.TrimRight(opts.BaseURL, "/")

	return &Client{opts: opts}
}

type planRequest struct {
	Message   string `json:"message"`
	UserID    string `json:"user_id,omitempty"`
	SessionID string `json:"session_id,omitempty"`
}

type planResponse struct {
	Plan *string `json:"plan"`
}

// Ask sends prompt and returns the text to show. Non-200 answers are retried
// up to Attempts times; a transport failure ends the exchange at once with
// OfflineText. The error is non-nil only when ctx ends first.
func (c *Client) Ask(ctx context.Context, prompt string) (string, error) {
	body, err := json.Marshal(planRequest{Message: prompt, UserID: c.opts.UserID, SessionID: c.opts.SessionID})
	if err != nil {
		return "", fmt.Errorf("encode request: %w", err)
	}

	delay := c.opts.Delay
	for attempt := 1; attempt <= c.opts.Attempts; attempt++ {
		reply, status, err := c.post(ctx, body)
		if ctxErr := ctx.Err(); ctxErr != nil {
			return "", ctxErr
		}
		if err != nil {
			c.opts.Logger.Warn("chat.ask.offline", "attempt", attempt, "error", err.Error())
			return OfflineText, nil
		}
		if status == http.StatusOK {
			return reply, nil
		}

		c.opts.Logger.Info("chat.ask.retry", "attempt", attempt, "status", status)

		if attempt == c.opts.Attempts {
			break
		}

		select {
		case <-ctx.Done():
			return "", ctx.Err()
		case <-time.After(delay):
		}

		delay = c.nextDelay(delay)
	}

	return SlowText, nil
}

func (c *Client) nextDelay(d time.Duration) time.Duration {
	d = time.Duration(float64(d) * c.opts.Backoff)
	if c.opts.MaxDelay > 0 && d > c.opts.MaxDelay {
		d = c.opts.MaxDelay
	}
	return d
}

// post performs one attempt. The reply is only meaningful for status 200.
func (c *Client) post(ctx context.Context, body []byte) (string, int, error) {
	if c.opts.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, c.opts.Timeout)
		defer cancel()
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.opts.BaseURL+"/plan", bytes.NewReader(body))
	if err != nil {
		return "", 0, err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.opts.HTTPClient.Do(req)
	if err != nil {
		return "", 0, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return "", resp.StatusCode, nil
	}

	var out planResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return "", resp.StatusCode, fmt.Errorf("decode response: %w", err)
	}

	if out.Plan == nil {
		return DoneText, resp.StatusCode, nil
	}
	return *out.Plan, resp.StatusCode, nil
}
