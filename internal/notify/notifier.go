package notify

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/matheus3301/relay/internal/store"
	"go.uber.org/zap"
)

// Notifier delivers one notification.
type Notifier interface {
	Deliver(ctx context.Context, n store.Notification) error
}

// ErrSkipped marks a notification the notifier chose not to deliver.
var ErrSkipped = errors.New("notification skipped")

// LogNotifier writes notifications to the log instead of delivering them.
type LogNotifier struct {
	logger *zap.Logger
}

func NewLogNotifier(logger *zap.Logger) *LogNotifier {
	return &LogNotifier{logger: logger}
}

func (l *LogNotifier) Deliver(_ context.Context, n store.Notification) error {
	l.logger.Info("notification",
		zap.Int64("id", n.ID),
		zap.String("kind", string(n.Kind)),
		zap.String("to", n.ToEmail),
		zap.String("from", n.FromName),
		zap.String("preview", n.Preview),
		zap.String("conversation", n.ConversationID))
	return nil
}

const DefaultResendEndpoint = "https://api.resend.com/emails"

// ResendConfig configures delivery through the Resend email API.
type ResendConfig struct {
	APIKey   string
	From     string
	AppURL   string
	Endpoint string
	Timeout  time.Duration
}

// ResendNotifier sends notifications as HTML emails through Resend.
type ResendNotifier struct {
	cfg    ResendConfig
	client *http.Client
}

func NewResendNotifier(cfg ResendConfig) *ResendNotifier {
	if cfg.Endpoint == "" {
		cfg.Endpoint = DefaultResendEndpoint
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 10 * time.Second
	}
	return &ResendNotifier{cfg: cfg, client: &http.Client{Timeout: cfg.Timeout}}
}

type resendEmail struct {
	From    string `json:"from"`
	To      string `json:"to"`
	Subject string `json:"subject"`
	HTML    string `json:"html"`
}

func (r *ResendNotifier) Deliver(ctx context.Context, n store.Notification) error {
	if r.cfg.APIKey == "" {
		return ErrSkipped
	}
	subject, html, err := render(n, r.cfg.AppURL)
	if err != nil {
		return err
	}
	body, err := json.Marshal(resendEmail{From: r.cfg.From, To: n.ToEmail, Subject: subject, HTML: html})
	if err != nil {
		return err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, r.cfg.Endpoint, bytes.NewReader(body))
	if err != nil {
		return err
	}
	req.Header.Set("Authorization", "Bearer "+r.cfg.APIKey)
	req.Header.Set("Content-Type", "application/json")

	resp, err := r.client.Do(req)
	if err != nil {
		return fmt.Errorf("resend: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()
	if resp.StatusCode/100 != 2 {
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return fmt.Errorf("resend: status %d: %s", resp.StatusCode, bytes.TrimSpace(msg))
	}
	return nil
}
