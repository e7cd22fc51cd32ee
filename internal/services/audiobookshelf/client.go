package audiobookshelf

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"audioshelf/internal/config"
)

// HTTPDoer describes the HTTP client used by the service.
type HTTPDoer interface {
	Do(req *http.Request) (*http.Response, error)
}

// Service triggers library rescans.
type Service interface {
	Scan(ctx context.Context) error
}

// NewConfiguredService returns an HTTP-backed service, or a no-op when no
// server URL is configured.
func NewConfiguredService(cfg *config.Config) Service {
	baseURL := strings.TrimRight(strings.TrimSpace(cfg.Audiobookshelf.URL), "/")
	if baseURL == "" {
		return noopService{}
	}
	timeout := time.Duration(cfg.Audiobookshelf.TimeoutSeconds) * time.Second
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return NewHTTPService(baseURL, cfg.Audiobookshelf.APIKey, cfg.Audiobookshelf.LibraryID, &http.Client{Timeout: timeout})
}

// NewHTTPService constructs an HTTP-backed service.
func NewHTTPService(baseURL, apiKey, libraryID string, client HTTPDoer) Service {
	return &httpService{
		baseURL:   strings.TrimRight(strings.TrimSpace(baseURL), "/"),
		apiKey:    strings.TrimSpace(apiKey),
		libraryID: strings.TrimSpace(libraryID),
		client:    client,
	}
}

type httpService struct {
	baseURL   string
	apiKey    string
	libraryID string
	client    HTTPDoer
}

func (s *httpService) Scan(ctx context.Context) error {
	ids := []string{s.libraryID}
	if s.libraryID == "" {
		found, err := s.bookLibraries(ctx)
		if err != nil {
			return err
		}
		if len(found) == 0 {
			return errors.New("audiobookshelf has no book libraries")
		}
		ids = found
	}

	var errs []error
	for _, id := range ids {
		endpoint := fmt.Sprintf("%s/api/libraries/%s/scan", s.baseURL, url.PathEscape(id))
		resp, err := s.do(ctx, http.MethodPost, endpoint)
		if err != nil {
			errs = append(errs, fmt.Errorf("scan library %s: %w", id, err))
			continue
		}
		_, _ = io.Copy(io.Discard, resp.Body)
		resp.Body.Close()
	}
	return errors.Join(errs...)
}

type librariesResponse struct {
	Libraries []struct {
		ID        string `json:"id"`
		MediaType string `json:"mediaType"`
	} `json:"libraries"`
}

func (s *httpService) bookLibraries(ctx context.Context) ([]string, error) {
	resp, err := s.do(ctx, http.MethodGet, s.baseURL+"/api/libraries")
	if err != nil {
		return nil, fmt.Errorf("list libraries: %w", err)
	}
	defer resp.Body.Close()

	var payload librariesResponse
	if err := json.NewDecoder(resp.Body).Decode(&payload); err != nil {
		return nil, fmt.Errorf("decode libraries: %w", err)
	}
	var ids []string
	for _, lib := range payload.Libraries {
		if lib.MediaType == "" || lib.MediaType == "book" {
			ids = append(ids, lib.ID)
		}
	}
	return ids, nil
}

func (s *httpService) do(ctx context.Context, method, endpoint string) (*http.Response, error) {
	req, err := http.NewRequestWithContext(ctx, method, endpoint, nil)
	if err != nil {
		return nil, fmt.Errorf("build request: %w", err)
	}
	if s.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+s.apiKey)
	}
	req.Header.Set("Accept", "application/json")
	resp, err := s.client.Do(req)
	if err != nil {
		return nil, err
	}
	if resp.StatusCode >= http.StatusMultipleChoices {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		resp.Body.Close()
		return nil, fmt.Errorf("audiobookshelf returned %d: %s", resp.StatusCode, strings.TrimSpace(string(body)))
	}
	return resp, nil
}

type noopService struct{}

func (noopService) Scan(context.Context) error { return nil }
