// Package webhook posts completed quotes to the notification backend.
package webhook

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
	"go.uber.org/zap"

	"zentoso/backend/internal/domain"
)

const (
	ContentTypeJSON = "json"
	ContentTypeText = "text"

	maxResponseBytes = 1 << 20
)

var (
	ErrNotConfigured = errors.New("webhook endpoint not configured")
	ErrTransport     = errors.New("webhook transport failure")
	ErrStatus        = errors.New("webhook returned non-success status")
	ErrRejected      = errors.New("webhook reported failure")
)

type Client struct {
	endpoint    string
	contentType string
	httpClient  *http.Client
	logger      *zap.Logger
}

// NewClient builds a client for endpoint. contentType "text" sends the JSON
// body as text/plain so browsers calling the same backend skip the preflight;
// anything else sends application/json.
func NewClient(endpoint string, contentType string, timeout time.Duration, logger *zap.Logger) *Client {
	if logger == nil {
		logger = zap.NewNop()
	}
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	header := "application/json"
	if strings.EqualFold(strings.TrimSpace(contentType), ContentTypeText) {
		header = "text/plain;charset=utf-8"
	}
	return &Client{
		endpoint:    strings.TrimSpace(endpoint),
		contentType: header,
		httpClient: &http.Client{
			Timeout:   timeout,
			Transport: otelhttp.NewTransport(http.DefaultTransport),
		},
		logger: logger,
	}
}

func (c *Client) Configured() bool {
	return c != nil && c.endpoint != ""
}

// Send posts payload once. A 2xx answer whose body cannot be read as a
// response object counts as delivered.
func (c *Client) Send(ctx context.Context, payload domain.SubmissionPayload) (domain.SubmissionResponse, error) {
	if !c.Configured() {
		return domain.SubmissionResponse{}, ErrNotConfigured
	}

	body, err := json.Marshal(payload)
	if err != nil {
		return domain.SubmissionResponse{}, fmt.Errorf("marshal submission: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint, bytes.NewReader(body))
	if err != nil {
		return domain.SubmissionResponse{}, fmt.Errorf("build webhook request: %w", err)
	}
	req.Header.Set("Content-Type", c.contentType)

	started := time.Now()
	resp, err := c.httpClient.Do(req)
	if err != nil {
		c.logger.Warn("webhook request failed", zap.Error(err))
		return domain.SubmissionResponse{}, fmt.Errorf("%w: %v", ErrTransport, err)
	}
	defer resp.Body.Close()

	raw, readErr := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
	c.logger.Info("webhook responded",
		zap.Int("status", resp.StatusCode),
		zap.Duration("duration", time.Since(started)),
	)

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return domain.SubmissionResponse{}, fmt.Errorf("%w: %d", ErrStatus, resp.StatusCode)
	}

	out := domain.SubmissionResponse{Success: true}
	if readErr != nil || len(bytes.TrimSpace(raw)) == 0 {
		return out, nil
	}
	var decoded wireResponse
	if err := json.Unmarshal(raw, &decoded); err != nil || decoded.Success == nil {
		c.logger.Debug("webhook body is not a response object")
		return out, nil
	}

	out = domain.SubmissionResponse{Success: *decoded.Success, Message: decoded.Message, Results: decoded.Results}
	if !out.Success {
		return out, fmt.Errorf("%w: %s", ErrRejected, out.Message)
	}
	return out, nil
}

// wireResponse tells a missing success field apart from false.
type wireResponse struct {
	Success *bool                  `json:"success"`
	Message string                 `json:"message"`
	Results *domain.ChannelResults `json:"results"`
}

// FailedChannels lists the channels a successful response says did not go
// through.
func FailedChannels(results *domain.ChannelResults) []string {
	if results == nil {
		return nil
	}
	var failed []string
	if !results.Spreadsheet {
		failed = append(failed, "spreadsheet")
	}
	if !results.Email {
		failed = append(failed, "email")
	}
	if !results.LineAdmin {
		failed = append(failed, "line_admin")
	}
	if !results.LineUser {
		failed = append(failed, "line_user")
	}
	return failed
}
