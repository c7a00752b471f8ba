package livingapps

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

// Record is an immutable snapshot of a remote record. Fields holds the raw
// attribute map as returned by the API; values may be absent, null, or of
// unexpected type and must be validated on read.
type Record struct {
	ID        string         `json:"record_id"`
	CreatedAt string         `json:"createdat"`
	UpdatedAt *string        `json:"updatedat"`
	Fields    map[string]any `json:"fields"`
}

// APIError is a non-2xx response from the record storage API.
type APIError struct {
	Status  int
	Message string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("livingapps: status %d: %s", e.Status, e.Message)
}

// Client communicates with a LivingApps-style record storage API over HTTP.
type Client struct {
	baseURL    string
	token      string
	httpClient *http.Client
}

// New creates a Client for the given base URL using bearer token auth.
func New(baseURL, token string) *Client {
	return &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		token:   token,
		httpClient: &http.Client{
			Timeout: 30 * time.Second,
		},
	}
}

// BaseURL returns the configured API base URL, used to compose record URLs.
func (c *Client) BaseURL() string {
	return c.baseURL
}

type recordsResponse struct {
	Records []Record `json:"records"`
}

// Records fetches all records of the given app (collection).
func (c *Client) Records(ctx context.Context, appID string) ([]Record, error) {
	resp, err := c.do(ctx, http.MethodGet, c.recordsPath(appID), nil)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if err := checkStatus(resp); err != nil {
		return nil, err
	}

	var rr recordsResponse
	if err := json.NewDecoder(resp.Body).Decode(&rr); err != nil {
		return nil, fmt.Errorf("decoding records for app %s: %w", appID, err)
	}
	return rr.Records, nil
}

// CreateRecord creates a record with the given fields and returns it.
func (c *Client) CreateRecord(ctx context.Context, appID string, fields map[string]any) (Record, error) {
	resp, err := c.do(ctx, http.MethodPost, c.recordsPath(appID), map[string]any{"fields": fields})
	if err != nil {
		return Record{}, err
	}
	defer resp.Body.Close()

	if err := checkStatus(resp); err != nil {
		return Record{}, err
	}

	var r Record
	if err := json.NewDecoder(resp.Body).Decode(&r); err != nil {
		return Record{}, fmt.Errorf("decoding created record: %w", err)
	}
	return r, nil
}

// UpdateRecord replaces the fields of an existing record.
func (c *Client) UpdateRecord(ctx context.Context, appID, recordID string, fields map[string]any) error {
	resp, err := c.do(ctx, http.MethodPatch, c.recordsPath(appID)+"/"+recordID, map[string]any{"fields": fields})
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	return checkStatus(resp)
}

// DeleteRecord removes a record.
func (c *Client) DeleteRecord(ctx context.Context, appID, recordID string) error {
	resp, err := c.do(ctx, http.MethodDelete, c.recordsPath(appID)+"/"+recordID, nil)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	return checkStatus(resp)
}

func (c *Client) recordsPath(appID string) string {
	return "/apps/" + appID + "/records"
}

func (c *Client) do(ctx context.Context, method, path string, body any) (*http.Response, error) {
	var bodyReader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return nil, fmt.Errorf("marshalling request: %w", err)
		}
		bodyReader = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, bodyReader)
	if err != nil {
		return nil, fmt.Errorf("creating request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+c.token)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("record storage not reachable: %w", err)
	}
	return resp, nil
}

type errorResponse struct {
	Error string `json:"error"`
}

func checkStatus(resp *http.Response) error {
	if resp.StatusCode >= 200 && resp.StatusCode < 300 {
		return nil
	}
	body, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
	msg := strings.TrimSpace(string(body))
	var er errorResponse
	if json.Unmarshal(body, &er) == nil && er.Error != "" {
		msg = er.Error
	}
	return &APIError{Status: resp.StatusCode, Message: msg}
}
