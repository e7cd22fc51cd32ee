package main

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"syscall"
	"time"

	"audioshelf/internal/api"
)

// apiClient talks to the daemon's HTTP API.
type apiClient struct {
	base  string
	token string
	http  *http.Client
}

// apiError is a non-2xx response decoded from api.ErrorResponse.
type apiError struct {
	Status  int
	Kind    string
	Message string
}

func (e *apiError) Error() string {
	if e.Kind != "" {
		return fmt.Sprintf("%s (%s)", e.Message, e.Kind)
	}
	return e.Message
}

func newAPIClient(base, token string) *apiClient {
	return &apiClient{
		base:  strings.TrimRight(base, "/"),
		token: token,
		// Manual searches wait on every provider.
		http: &http.Client{Timeout: 90 * time.Second},
	}
}

func (c *apiClient) do(ctx context.Context, method, path string, body, out any) error {
	var reader io.Reader
	if body != nil {
		payload, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("encode request: %w", err)
		}
		reader = bytes.NewReader(payload)
	}
	req, err := http.NewRequestWithContext(ctx, method, c.base+path, reader)
	if err != nil {
		return fmt.Errorf("build request: %w", err)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return wrapDialError(err, c.base)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= http.StatusBadRequest {
		var payload api.ErrorResponse
		data, _ := io.ReadAll(io.LimitReader(resp.Body, 64<<10))
		if json.Unmarshal(data, &payload) != nil || payload.Error == "" {
			payload.Error = strings.TrimSpace(string(data))
			if payload.Error == "" {
				payload.Error = resp.Status
			}
		}
		return &apiError{Status: resp.StatusCode, Kind: payload.Kind, Message: payload.Error}
	}
	if out == nil || resp.StatusCode == http.StatusNoContent {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	return nil
}

func wrapDialError(err error, base string) error {
	if errors.Is(err, syscall.ECONNREFUSED) {
		return fmt.Errorf("connect to daemon: %s refused the connection; start it with `audioshelf daemon`", base)
	}
	return fmt.Errorf("connect to daemon: %w", err)
}

func itemPath(id string, suffix ...string) string {
	parts := append([]string{"/api/queue", url.PathEscape(id)}, suffix...)
	return strings.Join(parts, "/")
}

func (c *apiClient) Status(ctx context.Context) (api.DaemonStatus, error) {
	var out api.DaemonStatus
	err := c.do(ctx, http.MethodGet, "/api/status", nil, &out)
	return out, err
}

func (c *apiClient) List(ctx context.Context, statuses []string) ([]api.QueueItem, error) {
	path := "/api/queue"
	if len(statuses) > 0 {
		query := url.Values{}
		for _, s := range statuses {
			query.Add("status", s)
		}
		path += "?" + query.Encode()
	}
	var out api.QueueListResponse
	err := c.do(ctx, http.MethodGet, path, nil, &out)
	return out.Items, err
}

func (c *apiClient) Stats(ctx context.Context) (map[string]int, error) {
	var out api.QueueStatsResponse
	err := c.do(ctx, http.MethodGet, "/api/queue/stats", nil, &out)
	return out.Counts, err
}

func (c *apiClient) Show(ctx context.Context, id string) (api.QueueItem, error) {
	var out api.QueueItemResponse
	err := c.do(ctx, http.MethodGet, itemPath(id), nil, &out)
	return out.Item, err
}

func (c *apiClient) Preview(ctx context.Context, id, mode string) (api.PreviewResponse, error) {
	path := itemPath(id, "preview")
	if mode != "" {
		path += "?" + url.Values{"mode": {mode}}.Encode()
	}
	var out api.PreviewResponse
	err := c.do(ctx, http.MethodGet, path, nil, &out)
	return out, err
}

func (c *apiClient) Process(ctx context.Context, id, mode string) (api.QueueItem, error) {
	var out api.QueueItemResponse
	err := c.do(ctx, http.MethodPost, itemPath(id, "process"), api.ProcessRequest{Mode: mode}, &out)
	return out.Item, err
}

func (c *apiClient) Ignore(ctx context.Context, id string, removeSource bool) error {
	return c.do(ctx, http.MethodPost, itemPath(id, "ignore"), api.IgnoreRequest{RemoveSource: removeSource}, nil)
}

func (c *apiClient) Update(ctx context.Context, id string, fields map[string]string) (api.QueueItem, error) {
	var out api.QueueItemResponse
	err := c.do(ctx, http.MethodPost, itemPath(id, "update"), api.UpdateRequest{Fields: fields}, &out)
	return out.Item, err
}

func (c *apiClient) Search(ctx context.Context, id string, req api.SearchRequest) (api.SearchResponse, error) {
	var out api.SearchResponse
	err := c.do(ctx, http.MethodPost, itemPath(id, "search"), req, &out)
	return out, err
}

func (c *apiClient) Apply(ctx context.Context, id string, index int) (api.ApplyResponse, error) {
	var out api.ApplyResponse
	err := c.do(ctx, http.MethodPost, itemPath(id, "apply"), api.ApplyRequest{Index: index}, &out)
	return out, err
}

func (c *apiClient) Retry(ctx context.Context, id string) (api.QueueItem, error) {
	var out api.QueueItemResponse
	err := c.do(ctx, http.MethodPost, itemPath(id, "retry"), nil, &out)
	return out.Item, err
}

func (c *apiClient) Rescan(ctx context.Context) error {
	return c.do(ctx, http.MethodPost, "/api/rescan", nil, nil)
}
