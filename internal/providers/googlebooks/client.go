// Package googlebooks queries the Google Books volumes API.
package googlebooks

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"strings"

	"audioshelf/internal/providers"
)

// Name is the provider name used in configuration and candidates.
const Name = "googlebooks"

type volumesResponse struct {
	TotalItems int      `json:"totalItems"`
	Items      []volume `json:"items"`
}

type volume struct {
	ID         string     `json:"id"`
	VolumeInfo volumeInfo `json:"volumeInfo"`
}

type volumeInfo struct {
	Title               string       `json:"title"`
	Subtitle            string       `json:"subtitle"`
	Authors             []string     `json:"authors"`
	Publisher           string       `json:"publisher"`
	PublishedDate       string       `json:"publishedDate"`
	Description         string       `json:"description"`
	IndustryIdentifiers []identifier `json:"industryIdentifiers"`
	Categories          []string     `json:"categories"`
	Language            string       `json:"language"`
	ImageLinks          imageLinks   `json:"imageLinks"`
}

type identifier struct {
	Type       string `json:"type"`
	Identifier string `json:"identifier"`
}

type imageLinks struct {
	Thumbnail  string `json:"thumbnail"`
	Medium     string `json:"medium"`
	Large      string `json:"large"`
	ExtraLarge string `json:"extraLarge"`
}

// Client searches Google Books.
type Client struct {
	baseURL    string
	apiKey     string
	maxResults int
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

// WithAPIKey sets the optional API key.
func WithAPIKey(key string) Option {
	return func(c *Client) { c.apiKey = strings.TrimSpace(key) }
}

// WithMaxResults sets maxResults on each request.
func WithMaxResults(n int) Option {
	return func(c *Client) {
		if n > 0 {
			c.maxResults = n
		}
	}
}

// New creates a Google Books client.
func New(baseURL string, opts ...Option) (*Client, error) {
	baseURL = strings.TrimSpace(baseURL)
	if baseURL == "" {
		return nil, errors.New("googlebooks base url required")
	}
	client := &Client{
		baseURL:    strings.TrimRight(baseURL, "/"),
		maxResults: 5,
		httpClient: providers.DefaultHTTPClient(),
	}
	for _, opt := range opts {
		opt(client)
	}
	return client, nil
}

// Name implements providers.Provider.
func (c *Client) Name() string { return Name }

// Search queries /books/v1/volumes with "title inauthor:author", or
// "isbn:N" when the query has an ISBN and no title.
func (c *Client) Search(ctx context.Context, query providers.Query) ([]providers.Candidate, error) {
	query = query.Normalized()
	var q string
	switch {
	case query.Title != "":
		q = query.Title
		if query.Author != "" {
			q += " inauthor:" + query.Author
		}
	case query.ISBN != "":
		q = "isbn:" + query.ISBN
	default:
		return nil, providers.ErrEmptyQuery
	}
	limit := c.maxResults
	if query.Limit > 0 && query.Limit < limit {
		limit = query.Limit
	}

	params := url.Values{}
	params.Set("q", q)
	params.Set("maxResults", strconv.Itoa(limit))
	if c.apiKey != "" {
		params.Set("key", c.apiKey)
	}

	var payload volumesResponse
	err := providers.GetJSON(ctx, c.httpClient, c.baseURL+"/books/v1/volumes?"+params.Encode(), nil, &payload)
	if errors.Is(err, providers.ErrNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("googlebooks search: %w", err)
	}

	out := make([]providers.Candidate, 0, len(payload.Items))
	for _, item := range payload.Items {
		info := item.VolumeInfo
		if strings.TrimSpace(info.Title) == "" {
			continue
		}
		out = append(out, providers.Candidate{
			Provider:    Name,
			Title:       strings.TrimSpace(info.Title),
			Subtitle:    strings.TrimSpace(info.Subtitle),
			Author:      providers.First(info.Authors),
			Year:        providers.YearFromDate(info.PublishedDate),
			ISBN:        pickISBN(info.IndustryIdentifiers),
			Description: strings.TrimSpace(info.Description),
			Publisher:   strings.TrimSpace(info.Publisher),
			Genre:       providers.First(info.Categories),
			Language:    strings.TrimSpace(info.Language),
			CoverURL:    bestImage(info.ImageLinks),
		})
	}
	return out, nil
}

// pickISBN prefers ISBN_13 over ISBN_10.
func pickISBN(ids []identifier) string {
	isbn10 := ""
	for _, id := range ids {
		switch id.Type {
		case "ISBN_13":
			return providers.NormalizeISBN(id.Identifier)
		case "ISBN_10":
			if isbn10 == "" {
				isbn10 = providers.NormalizeISBN(id.Identifier)
			}
		}
	}
	return isbn10
}

// bestImage picks the largest link and upgrades it to https.
func bestImage(links imageLinks) string {
	for _, link := range []string{links.ExtraLarge, links.Large, links.Medium, links.Thumbnail} {
		if link = strings.TrimSpace(link); link != "" {
			if strings.HasPrefix(link, "http://") {
				link = "https://" + strings.TrimPrefix(link, "http://")
			}
			return link
		}
	}
	return ""
}
