package notify

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"
)

const defaultTimeout = 15 * time.Second

// HTTPSender posts codes to a transactional mail relay over its JSON HTTP API.
type HTTPSender struct {
	APIKey     string
	BaseURL    string
	Sender     string
	HTTPClient *http.Client
	nowF       func() time.Time
}

// NewHTTPSender returns a sender for the relay at baseURL authenticating with apiKey.
func NewHTTPSender(apiKey, baseURL, sender string) *HTTPSender {
	if sender == "" {
		sender = "Health Portal <no-reply@localhost>"
	}
	return &HTTPSender{
		APIKey:     apiKey,
		BaseURL:    baseURL,
		Sender:     sender,
		HTTPClient: &http.Client{Timeout: defaultTimeout},
		nowF:       time.Now,
	}
}

type mailRequest struct {
	From    string `json:"from"`
	To      string `json:"to"`
	Subject string `json:"subject"`
	Text    string `json:"text"`
}

// SendCode posts msg to the relay. Any non-2xx response is an error. Does not log the code.
func (s *HTTPSender) SendCode(ctx context.Context, msg Message) error {
	if s.APIKey == "" || s.BaseURL == "" {
		return fmt.Errorf("mail: relay not configured")
	}
	raw, err := json.Marshal(mailRequest{
		From:    s.Sender,
		To:      msg.To,
		Subject: msg.Subject(),
		Text:    msg.Body(s.nowF()),
	})
	if err != nil {
		return err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.BaseURL, bytes.NewReader(raw))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+s.APIKey)
	resp, err := s.HTTPClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		b, _ := io.ReadAll(io.LimitReader(resp.Body, 1<<10))
		return fmt.Errorf("mail: request failed status=%d body=%s", resp.StatusCode, string(b))
	}
	return nil
}
