package github

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"taskboard/api/internal/board"
)

// Client talks to the GitHub REST API for the one write path the board
// needs: applying a column's state+labels to a linked issue.
type Client struct {
	baseURL    string
	token      string
	httpClient *http.Client
}

func NewClient(baseURL, token string) *Client {
	return &Client{
		baseURL:    baseURL,
		token:      token,
		httpClient: &http.Client{Timeout: 10 * time.Second},
	}
}

// IsConfigured reports whether a token is available for write calls.
func (c *Client) IsConfigured() bool {
	return c.token != ""
}

type issueUpdate struct {
	State  string   `json:"state"`
	Labels []string `json:"labels"`
}

// UpdateIssueStatus moves a linked issue to the tracker representation of
// target: the mapped open/closed state, the matching status label swapped
// in and every other label preserved.
func (c *Client) UpdateIssueStatus(ctx context.Context, repo string, issueNumber int, currentLabels []string, target board.Status) error {
	if !c.IsConfigured() {
		return fmt.Errorf("github token not configured")
	}
	mapping, ok := StatusMapping[target]
	if !ok {
		// Columns without a tracker representation are not synced.
		return nil
	}
	labels, _ := LabelsForStatus(currentLabels, target)

	payload, err := json.Marshal(issueUpdate{State: mapping.State, Labels: labels})
	if err != nil {
		return fmt.Errorf("marshal issue update: %w", err)
	}

	url := fmt.Sprintf("%s/repos/%s/issues/%d", c.baseURL, repo, issueNumber)
	req, err := http.NewRequestWithContext(ctx, http.MethodPatch, url, bytes.NewReader(payload))
	if err != nil {
		return fmt.Errorf("build issue update request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+c.token)
	req.Header.Set("Accept", "application/vnd.github+json")
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("update issue %s#%d: %w", repo, issueNumber, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return fmt.Errorf("update issue %s#%d: status %d: %s", repo, issueNumber, resp.StatusCode, bytes.TrimSpace(body))
	}
	return nil
}
