package notify

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	errs "walkin-queue-coordinator/pkg/errors"
	"walkin-queue-coordinator/pkg/logging"
	"walkin-queue-coordinator/pkg/utils"
)

// SMSConfig configures the external message channel. An empty Endpoint
// disables the channel.
type SMSConfig struct {
	Endpoint    string
	APIKey      string
	SenderID    string
	CountryCode string // prefixed to 10-digit numbers
	Timeout     time.Duration
}

// SMSSender posts rendered text to the external message gateway.
type SMSSender struct {
	cfg    SMSConfig
	client *http.Client
	log    *logging.Logger
}

func NewSMSSender(cfg SMSConfig, log *logging.Logger) *SMSSender {
	if cfg.Timeout <= 0 {
		cfg.Timeout = 10 * time.Second
	}
	return &SMSSender{
		cfg:    cfg,
		client: &http.Client{Timeout: cfg.Timeout},
		log:    log.WithComponent("sms"),
	}
}

// Enabled reports whether the channel is configured.
func (s *SMSSender) Enabled() bool { return s.cfg.Endpoint != "" }

type smsRequest struct {
	To       string `json:"to"`
	Text     string `json:"text"`
	SenderID string `json:"senderId,omitempty"`
}

// Send delivers text to phone. The number is normalized to E.164 first.
func (s *SMSSender) Send(ctx context.Context, phone, text string) error {
	const op = "notify.SMSSender.Send"
	if !s.Enabled() {
		return errs.New(errs.CodeExternalMessageFailed, op, "sms channel not configured", nil)
	}
	to := utils.NormalizePhoneE164(phone, s.cfg.CountryCode)
	if to == "" {
		e := errs.New(errs.CodeExternalMessageFailed, op, "no phone number on file", nil)
		e.Retryable = false
		return e
	}

	body, err := json.Marshal(smsRequest{To: to, Text: text, SenderID: s.cfg.SenderID})
	if err != nil {
		return errs.New(errs.CodeExternalMessageFailed, op, "marshal request", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.cfg.Endpoint, bytes.NewReader(body))
	if err != nil {
		return errs.New(errs.CodeExternalMessageFailed, op, "build request", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if s.cfg.APIKey != "" {
		req.Header.Set("Authorization", "Bearer "+s.cfg.APIKey)
	}

	resp, err := s.client.Do(req)
	if err != nil {
		return errs.New(errs.CodeExternalMessageFailed, op, "gateway request failed", err)
	}
	defer resp.Body.Close()
	_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 4<<10))

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		e := errs.New(errs.CodeExternalMessageFailed, op,
			fmt.Sprintf("gateway returned %d", resp.StatusCode), nil)
		// client errors will not heal on retry
		if resp.StatusCode >= 400 && resp.StatusCode < 500 && resp.StatusCode != http.StatusTooManyRequests {
			e.Retryable = false
		}
		return e
	}
	return nil
}
