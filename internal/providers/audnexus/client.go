// Package audnexus looks books up by ASIN through an Audnexus instance.
// It has no free-text search.
package audnexus

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strings"

	"audioshelf/internal/providers"
)

// Name is the provider name used in configuration and candidates.
const Name = "audnexus"

type named struct {
	ASIN string `json:"asin"`
	Name string `json:"name"`
}

type genre struct {
	Name string `json:"name"`
	Type string `json:"type"`
}

type series struct {
	ASIN     string `json:"asin"`
	Name     string `json:"name"`
	Position string `json:"position"`
}

type book struct {
	ASIN          string  `json:"asin"`
	Title         string  `json:"title"`
	Subtitle      string  `json:"subtitle"`
	Authors       []named `json:"authors"`
	Narrators     []named `json:"narrators"`
	Genres        []genre `json:"genres"`
	SeriesPrimary *series `json:"seriesPrimary"`
	ReleaseDate   string  `json:"releaseDate"`
	Summary       string  `json:"summary"`
	Description   string  `json:"description"`
	Image         string  `json:"image"`
	PublisherName string  `json:"publisherName"`
	Language      string  `json:"language"`
	ISBN          string  `json:"isbn"`
}

// Client queries an Audnexus instance.
type Client struct {
	baseURL    string
	region     string
	httpClient *http.Client
}

var _ providers.Provider = (*Client)(nil)

// Option configures a Client.
type Option func(*Client)

// WithHTTPClient overrides the default HTTP client.
func WithHTTPClient(client *http.Client) Option {
	return func(c *Client) {
		if client != nil {
			c.httpClient = client
		}
	}
}

// WithRegion sets the Audible marketplace region (us, uk, de, ...).
func WithRegion(region string) Option {
	return func(c *Client) { c.region = strings.ToLower(strings.TrimSpace(region)) }
}

// New creates an Audnexus client.
func New(baseURL string, opts ...Option) (*Client, error) {
	baseURL = strings.TrimSpace(baseURL)
	if baseURL == "" {
		return nil, errors.New("audnexus base url required")
	}
	client := &Client{
		baseURL:    strings.TrimRight(baseURL, "/"),
		httpClient: providers.DefaultHTTPClient(),
	}
	for _, opt := range opts {
		opt(client)
	}
	return client, nil
}

// Name implements providers.Provider.
func (c *Client) Name() string { return Name }

// Search returns the book for query.ASIN; queries without an ASIN have no
// candidates.
func (c *Client) Search(ctx context.Context, query providers.Query) ([]providers.Candidate, error) {
	query = query.Normalized()
	if query.ASIN == "" {
		return nil, nil
	}
	endpoint := c.baseURL + "/books/" + url.PathEscape(query.ASIN)
	if c.region != "" {
		endpoint += "?" + url.Values{"region": {c.region}}.Encode()
	}

	var payload book
	err := providers.GetJSON(ctx, c.httpClient, endpoint, nil, &payload)
	if errors.Is(err, providers.ErrNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("audnexus lookup %s: %w", query.ASIN, err)
	}
	if strings.TrimSpace(payload.Title) == "" {
		return nil, nil
	}

	cand := providers.Candidate{
		Provider:    Name,
		Title:       strings.TrimSpace(payload.Title),
		Subtitle:    strings.TrimSpace(payload.Subtitle),
		ASIN:        strings.TrimSpace(payload.ASIN),
		ISBN:        providers.NormalizeISBN(payload.ISBN),
		Year:        providers.YearFromDate(payload.ReleaseDate),
		Description: strings.TrimSpace(payload.Summary),
		Publisher:   strings.TrimSpace(payload.PublisherName),
		Language:    strings.TrimSpace(payload.Language),
		CoverURL:    strings.TrimSpace(payload.Image),
	}
	if cand.Description == "" {
		cand.Description = strings.TrimSpace(payload.Description)
	}
	if len(payload.Authors) > 0 {
		cand.Author = strings.TrimSpace(payload.Authors[0].Name)
	}
	if len(payload.Narrators) > 0 {
		cand.Narrator = strings.TrimSpace(payload.Narrators[0].Name)
	}
	if payload.SeriesPrimary != nil {
		cand.Series = strings.TrimSpace(payload.SeriesPrimary.Name)
		cand.SeriesPart = strings.TrimSpace(payload.SeriesPrimary.Position)
	}
	for _, g := range payload.Genres {
		if g.Type == "genre" && strings.TrimSpace(g.Name) != "" {
			cand.Genre = strings.TrimSpace(g.Name)
			break
		}
	}
	return []providers.Candidate{cand}, nil
}
