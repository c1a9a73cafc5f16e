package orchestrator

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	syncdomain "mailflow-backend/internal/mailsync/domain"
	"mailflow-backend/pkg/logger"
)

const defaultTimeout = 15 * time.Second

// RunRequest is the body of a workflow run request.
type RunRequest struct {
	Parameters RunParameters `json:"parameters"`
}

type RunParameters struct {
	Trigger syncdomain.TriggerContext `json:"trigger"`
}

// RunResponse is what the orchestrator answers for an accepted run.
type RunResponse struct {
	RunID  string `json:"run_id,omitempty"`
	Status string `json:"status,omitempty"`
}

// StatusError is returned for non-2xx answers.
type StatusError struct {
	StatusCode int
	Body       string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("orchestrator returned status %d: %s", e.StatusCode, e.Body)
}

// Client starts workflow runs on the orchestrator over HTTP.
type Client struct {
	baseURL    string
	apiKey     string
	httpClient *http.Client
	logger     *slog.Logger
}

// NewClient creates an orchestrator client. A zero timeout uses 15s.
func NewClient(baseURL, apiKey string, timeout time.Duration, l *slog.Logger) *Client {
	if timeout <= 0 {
		timeout = defaultTimeout
	}
	return &Client{
		baseURL:    strings.TrimRight(baseURL, "/"),
		apiKey:     apiKey,
		httpClient: &http.Client{Timeout: timeout},
		logger:     logger.Component(l, "orchestrator"),
	}
}

// Run asks the orchestrator to execute workflowID with trigger as input.
func (c *Client) Run(ctx context.Context, workflowID string, trigger syncdomain.TriggerContext) error {
	if c.baseURL == "" {
		return fmt.Errorf("orchestrator URL is not configured")
	}

	body, err := json.Marshal(RunRequest{Parameters: RunParameters{Trigger: trigger}})
	if err != nil {
		return fmt.Errorf("failed to marshal run request: %w", err)
	}

	endpoint := fmt.Sprintf("%s/workflows/%s/runs", c.baseURL, url.PathEscape(workflowID))
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("failed to create run request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if c.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+c.apiKey)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("failed to send run request: %w", err)
	}
	defer resp.Body.Close()

	respBody, _ := io.ReadAll(io.LimitReader(resp.Body, 64<<10))
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return &StatusError{StatusCode: resp.StatusCode, Body: strings.TrimSpace(string(respBody))}
	}

	var run RunResponse
	if len(respBody) > 0 {
		if err := json.Unmarshal(respBody, &run); err != nil {
			c.logger.Debug("unparseable run response", "workflow_id", workflowID, "error", err)
		}
	}
	c.logger.Debug("run accepted", "workflow_id", workflowID, "run_id", run.RunID, "status", run.Status)
	return nil
}
