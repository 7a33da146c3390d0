// Package backend talks to the origin AI service: streaming completions,
// action acknowledgments and search indexing of library records.
package backend

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"

	"ai-library-agent/pkg/actions"
	"ai-library-agent/pkg/agentstream"
)

const (
	completionsPath = "/api/v1/chat/completions"
	ackPath         = "/api/v1/actions/ack"
	indexPath       = "/api/v1/library/index"
)

type Client struct {
	BaseURL string
	Token   string
	Client  *http.Client
}

var _ agentstream.Opener = &Client{}

// NewClient builds a client without an overall timeout; a completion body
// stays open for as long as the agent streams. Callers bound requests through
// their context.
func NewClient(baseURL, token string) *Client {
	return &Client{
		BaseURL: strings.TrimRight(baseURL, "/"),
		Token:   token,
		Client:  &http.Client{},
	}
}

// StatusError is returned for non-2xx responses.
type StatusError struct {
	Op     string
	Status int
	Body   string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("%s: status %d, body: %s", e.Op, e.Status, e.Body)
}

func (e *StatusError) HTTPStatus() int { return e.Status }

// --- Request/Response structs ---

type ackRequest struct {
	Acks []actions.Ack `json:"acks"`
}

type ackFailure struct {
	ActionID string `json:"action_id"`
	Error    string `json:"error"`
}

type ackResponse struct {
	Acknowledged []string     `json:"acknowledged"`
	Failed       []ackFailure `json:"failed,omitempty"`
}

// IndexDocument is the searchable projection of a library record.
type IndexDocument struct {
	LibraryID   int      `json:"library_id"`
	Key         string   `json:"zotero_key"`
	ItemType    string   `json:"item_type,omitempty"`
	Title       string   `json:"title"`
	Date        string   `json:"date,omitempty"`
	DOI         string   `json:"doi,omitempty"`
	ISBN        string   `json:"isbn,omitempty"`
	Creators    []string `json:"creators,omitempty"`
	Abstract    string   `json:"abstract,omitempty"`
	Publication string   `json:"publication,omitempty"`
}

func (c *Client) newRequest(ctx context.Context, path string, payload interface{}) (*http.Request, error) {
	body, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("marshal request: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.BaseURL+path, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if c.Token != "" {
		req.Header.Set("Authorization", "Bearer "+c.Token)
	}
	return req, nil
}

func statusError(op string, resp *http.Response) error {
	body, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
	return &StatusError{Op: op, Status: resp.StatusCode, Body: strings.TrimSpace(string(body))}
}

// OpenCompletion starts a streaming completion. The caller owns the returned
// body and must close it.
func (c *Client) OpenCompletion(ctx context.Context, payload interface{}) (io.ReadCloser, error) {
	req, err := c.newRequest(ctx, completionsPath, payload)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Accept", "text/event-stream")
	req.Header.Set("Cache-Control", "no-cache")

	resp, err := c.Client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("completion request failed: %w", err)
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		defer resp.Body.Close()
		return nil, statusError("completion", resp)
	}
	return resp.Body, nil
}

// Acknowledge confirms applied actions. The returned ids are the ones the
// service persisted; a partial batch is not an error.
func (c *Client) Acknowledge(ctx context.Context, acks []actions.Ack) ([]string, error) {
	req, err := c.newRequest(ctx, ackPath, ackRequest{Acks: acks})
	if err != nil {
		return nil, err
	}

	resp, err := c.Client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("ack request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, statusError("ack", resp)
	}

	var out ackResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return nil, fmt.Errorf("unmarshal ack response: %w", err)
	}
	return out.Acknowledged, nil
}

// IndexRecord pushes a record to the service's search index so the next agent
// turn can find it.
func (c *Client) IndexRecord(ctx context.Context, doc IndexDocument) error {
	req, err := c.newRequest(ctx, indexPath, doc)
	if err != nil {
		return err
	}

	resp, err := c.Client.Do(req)
	if err != nil {
		return fmt.Errorf("index request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return statusError("index", resp)
	}
	_, _ = io.Copy(io.Discard, resp.Body)
	return nil
}
