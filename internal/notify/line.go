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

	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
)

const DefaultLinePushURL = "https://api.line.me/v2/bot/message/push"

var ErrLineNotConfigured = errors.New("line messaging not configured")

// LineClient pushes text messages through the Messaging API.
type LineClient struct {
	endpoint    string
	accessToken string
	httpClient  *http.Client
}

func NewLineClient(accessToken string, endpoint string) *LineClient {
	if endpoint == "" {
		endpoint = DefaultLinePushURL
	}
	return &LineClient{
		endpoint:    endpoint,
		accessToken: strings.TrimSpace(accessToken),
		httpClient: &http.Client{
			Timeout:   10 * time.Second,
			Transport: otelhttp.NewTransport(http.DefaultTransport),
		},
	}
}

func (c *LineClient) Configured() bool {
	return c != nil && c.accessToken != ""
}

type lineMessage struct {
	Type string `json:"type"`
	Text string `json:"text"`
}

type pushRequest struct {
	To       string        `json:"to"`
	Messages []lineMessage `json:"messages"`
}

func (c *LineClient) Push(ctx context.Context, to string, text string) error {
	if !c.Configured() {
		return ErrLineNotConfigured
	}
	if strings.TrimSpace(to) == "" {
		return errors.New("line push: empty recipient")
	}

	body, err := json.Marshal(pushRequest{To: to, Messages: []lineMessage{{Type: "text", Text: text}}})
	if err != nil {
		return fmt.Errorf("marshal line push: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("build line push: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+c.accessToken)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("line push: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		detail, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return fmt.Errorf("line push: status %d: %s", resp.StatusCode, strings.TrimSpace(string(detail)))
	}
	return nil
}
