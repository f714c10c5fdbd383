package notification

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"
)

const (
	defaultSMSBaseURL = "https://www.smslocal.com/dev/bulkV2"
	defaultSMSTimeout = 15 * time.Second
)

// SMSLocalNotifier sends the code through the SMS Local bulk API (route=otp).
type SMSLocalNotifier struct {
	APIKey     string
	BaseURL    string
	Sender     string
	HTTPClient *http.Client
}

// NewSMSLocalNotifier returns a notifier for the given API key, with optional base URL and sender.
func NewSMSLocalNotifier(apiKey, baseURL, sender string) *SMSLocalNotifier {
	if baseURL == "" {
		baseURL = defaultSMSBaseURL
	}
	return &SMSLocalNotifier{
		APIKey:     apiKey,
		BaseURL:    baseURL,
		Sender:     sender,
		HTTPClient: &http.Client{Timeout: defaultSMSTimeout},
	}
}

func (c *SMSLocalNotifier) Channel() Channel { return ChannelSMS }

// SendVerificationCode posts the code to destination, an E.164 number. The leading plus is
// stripped because the API expects digits only.
func (c *SMSLocalNotifier) SendVerificationCode(ctx context.Context, destination, _ string, code string, _ time.Time) error {
	if c.APIKey == "" {
		return fmt.Errorf("sms: API key not configured")
	}
	body := map[string]string{
		"route":     "otp",
		"numbers":   strings.TrimPrefix(destination, "+"),
		"variables": code,
	}
	if c.Sender != "" {
		body["sender_id"] = c.Sender
	}
	raw, err := json.Marshal(body)
	if err != nil {
		return err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.BaseURL, bytes.NewReader(raw))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", c.APIKey)
	resp, err := c.HTTPClient.Do(req)
	if err != nil {
		return fmt.Errorf("sms: request: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		b, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return fmt.Errorf("sms: request failed status=%d body=%s", resp.StatusCode, string(b))
	}
	return nil
}
