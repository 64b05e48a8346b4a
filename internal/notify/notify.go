// Package notify delivers enrollment notifications to the school.
package notify

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"finlern/internal/logging"

	"golang.org/x/time/rate"
)

// Message is a rendered notification.
type Message struct {
	To      string
	Subject string
	HTML    string
}

// Notifier delivers a message. Delivery is best effort.
type Notifier interface {
	Send(ctx context.Context, msg Message) error
}

// Provider names.
const (
	ProviderLog  = "log"
	ProviderHTTP = "http"
)

// Config selects and configures the notifier.
type Config struct {
	Provider  string
	Endpoint  string
	APIKey    string
	From      string
	To        string
	PerSecond float64
	Timeout   time.Duration
}

// New builds the notifier named by cfg.Provider.
func New(cfg Config, logger logging.Logger) (Notifier, error) {
	switch strings.ToLower(strings.TrimSpace(cfg.Provider)) {
	case "", ProviderLog:
		return NewLogNotifier(logger), nil
	case ProviderHTTP:
		return NewHTTPMailer(cfg, nil)
	default:
		return nil, fmt.Errorf("unknown mail provider %q", cfg.Provider)
	}
}

// LogNotifier writes notifications to the log instead of sending them.
type LogNotifier struct {
	logger logging.Logger
}

func NewLogNotifier(logger logging.Logger) *LogNotifier {
	if logger == nil {
		logger = logging.Nop()
	}
	return &LogNotifier{logger: logger.WithComponent("notify")}
}

func (n *LogNotifier) Send(ctx context.Context, msg Message) error {
	n.logger.Info(ctx, "notification", "to", msg.To, "subject", msg.Subject, "bytes", len(msg.HTML))
	return nil
}

// HTTPMailer posts messages to a JSON mail API. Outbound calls are
// throttled to PerSecond.
type HTTPMailer struct {
	client   *http.Client
	endpoint string
	apiKey   string
	from     string
	limiter  *rate.Limiter
}

var _ Notifier = (*HTTPMailer)(nil)

// NewHTTPMailer creates a mailer. client defaults to one with cfg.Timeout.
func NewHTTPMailer(cfg Config, client *http.Client) (*HTTPMailer, error) {
	if cfg.Endpoint == "" {
		return nil, errors.New("mail endpoint is required")
	}
	if cfg.From == "" {
		return nil, errors.New("mail sender is required")
	}
	if client == nil {
		timeout := cfg.Timeout
		if timeout <= 0 {
			timeout = 10 * time.Second
		}
		client = &http.Client{Timeout: timeout}
	}
	perSecond := cfg.PerSecond
	if perSecond <= 0 {
		perSecond = 2
	}
	burst := int(perSecond)
	if burst < 1 {
		burst = 1
	}
	return &HTTPMailer{
		client:   client,
		endpoint: cfg.Endpoint,
		apiKey:   cfg.APIKey,
		from:     cfg.From,
		limiter:  rate.NewLimiter(rate.Limit(perSecond), burst),
	}, nil
}

type mailRequest struct {
	From    string   `json:"from"`
	To      []string `json:"to"`
	Subject string   `json:"subject"`
	HTML    string   `json:"html"`
}

// Send waits for the outbound quota, then posts msg.
func (m *HTTPMailer) Send(ctx context.Context, msg Message) error {
	if msg.To == "" {
		return errors.New("mail recipient is required")
	}
	if err := m.limiter.Wait(ctx); err != nil {
		return fmt.Errorf("mail throttle: %w", err)
	}

	body, err := json.Marshal(mailRequest{From: m.from, To: []string{msg.To}, Subject: msg.Subject, HTML: msg.HTML})
	if err != nil {
		return fmt.Errorf("encode mail: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, m.endpoint, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("build mail request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if m.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+m.apiKey)
	}

	resp, err := m.client.Do(req)
	if err != nil {
		return fmt.Errorf("send mail: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		snippet, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return fmt.Errorf("mail api returned %d: %s", resp.StatusCode, strings.TrimSpace(string(snippet)))
	}
	_, _ = io.Copy(io.Discard, resp.Body)
	return nil
}
