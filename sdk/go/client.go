package dataciteapi

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"
)

// Client is a minimal DataCite API HTTP client.
type Client struct {
	BaseURL     string
	BasePath    string
	BearerToken string
	HTTPClient  *http.Client
	Timeout     time.Duration
}

// New creates a client with sane defaults.
func New(baseURL, bearerToken string) *Client {
	return &Client{
		BaseURL:     baseURL,
		BasePath:    "/v0",
		BearerToken: bearerToken,
		Timeout:     70 * time.Second,
	}
}

// Record is a DOI and its metadata. Metadata is kept as raw JSON so key order
// survives a round trip.
type Record struct {
	DOI      string          `json:"doi"`
	Metadata json.RawMessage `json:"metadata"`
}

// RecordList is one page of records.
type RecordList struct {
	Records      []Record `json:"records"`
	TotalRecords int      `json:"total_records"`
	TotalPages   int      `json:"total_pages"`
	ThisPage     int      `json:"this_page"`
}

// APIError wraps non-2xx responses.
type APIError struct {
	StatusCode int
	Code       string
	Message    string
	Details    map[string]any
	Body       string
}

func (e *APIError) Error() string {
	if e.Code != "" {
		return fmt.Sprintf("api error: status=%d code=%s message=%s", e.StatusCode, e.Code, e.Message)
	}
	return fmt.Sprintf("api error: status=%d body=%s", e.StatusCode, e.Body)
}

// ListRecords returns one page of records. Zero values use the server defaults.
func (c *Client) ListRecords(ctx context.Context, pageSize, pageNum int) (RecordList, error) {
	query := url.Values{}
	if pageSize > 0 {
		query.Set("page_size", strconv.Itoa(pageSize))
	}
	if pageNum > 0 {
		query.Set("page_num", strconv.Itoa(pageNum))
	}
	endpoint := "dois"
	if len(query) > 0 {
		endpoint += "?" + query.Encode()
	}
	var resp RecordList
	err := c.do(ctx, http.MethodGet, endpoint, nil, &resp)
	return resp, err
}

// GetRecord fetches a record.
func (c *Client) GetRecord(ctx context.Context, doi string) (Record, error) {
	endpoint, err := doiEndpoint(doi)
	if err != nil {
		return Record{}, err
	}
	var resp Record
	err = c.do(ctx, http.MethodGet, endpoint, nil, &resp)
	return resp, err
}

// PutRecord creates or replaces the metadata of a record.
func (c *Client) PutRecord(ctx context.Context, rec Record) (Record, error) {
	if rec.Metadata == nil {
		rec.Metadata = json.RawMessage("{}")
	}
	var resp Record
	err := c.do(ctx, http.MethodPost, "dois", rec, &resp)
	return resp, err
}

// DeleteRecord deletes a draft record.
func (c *Client) DeleteRecord(ctx context.Context, doi string) error {
	endpoint, err := doiEndpoint(doi)
	if err != nil {
		return err
	}
	return c.do(ctx, http.MethodDelete, endpoint, nil, nil)
}

// ChangeState applies event (register, publish or hide) to a record.
func (c *Client) ChangeState(ctx context.Context, doi, event string) (Record, error) {
	endpoint, err := doiEndpoint(doi)
	if err != nil {
		return Record{}, err
	}
	endpoint += "?event=" + url.QueryEscape(event)
	var resp Record
	err = c.do(ctx, http.MethodPut, endpoint, nil, &resp)
	return resp, err
}

// doiEndpoint splits a DOI at its first '/' and escapes the suffix as a
// single path segment.
func doiEndpoint(doi string) (string, error) {
	prefix, suffix, ok := strings.Cut(doi, "/")
	if !ok || prefix == "" || suffix == "" {
		return "", fmt.Errorf("invalid doi %q", doi)
	}
	return fmt.Sprintf("dois/%s/%s", url.PathEscape(prefix), url.PathEscape(suffix)), nil
}

func (c *Client) do(ctx context.Context, method, endpoint string, body any, out any) error {
	if c.HTTPClient == nil {
		c.HTTPClient = &http.Client{Timeout: c.Timeout}
	}
	url := c.base() + "/" + strings.TrimLeft(endpoint, "/")
	var buf bytes.Buffer
	if body != nil {
		if err := json.NewEncoder(&buf).Encode(body); err != nil {
			return err
		}
	}
	req, err := http.NewRequestWithContext(ctx, method, url, &buf)
	if err != nil {
		return err
	}
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if c.BearerToken != "" {
		req.Header.Set("Authorization", "Bearer "+c.BearerToken)
	}
	resp, err := c.HTTPClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 300 {
		b, _ := io.ReadAll(resp.Body)
		apiErr := &APIError{StatusCode: resp.StatusCode, Body: string(b)}
		var envelope struct {
			Error struct {
				Code    string         `json:"code"`
				Message string         `json:"message"`
				Details map[string]any `json:"details"`
			} `json:"error"`
		}
		if json.Unmarshal(b, &envelope) == nil {
			apiErr.Code = envelope.Error.Code
			apiErr.Message = envelope.Error.Message
			apiErr.Details = envelope.Error.Details
		}
		return apiErr
	}
	if out != nil && resp.StatusCode != http.StatusNoContent {
		return json.NewDecoder(resp.Body).Decode(out)
	}
	return nil
}

func (c *Client) base() string {
	base := strings.TrimRight(c.BaseURL, "/")
	if c.BasePath != "" {
		base += "/" + strings.Trim(c.BasePath, "/")
	}
	return base
}
