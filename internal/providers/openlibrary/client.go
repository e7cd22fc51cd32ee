// Package openlibrary queries the Open Library search API.
package openlibrary

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
const Name = "openlibrary"

const defaultCoversURL = "https://covers.openlibrary.org"

type searchResponse struct {
	NumFound int   `json:"numFound"`
	Docs     []doc `json:"docs"`
}

type doc struct {
	Key              string   `json:"key"`
	Title            string   `json:"title"`
	Subtitle         string   `json:"subtitle"`
	AuthorName       []string `json:"author_name"`
	FirstPublishYear int      `json:"first_publish_year"`
	ISBN             []string `json:"isbn"`
	IDAmazon         []string `json:"id_amazon"`
	CoverI           int64    `json:"cover_i"`
	Publisher        []string `json:"publisher"`
	Language         []string `json:"language"`
	Subject          []string `json:"subject"`
}

// Client searches Open Library.
type Client struct {
	baseURL    string
	coversURL  string
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

// WithCoversURL overrides the cover image host.
func WithCoversURL(base string) Option {
	return func(c *Client) {
		if base = strings.TrimSpace(base); base != "" {
			c.coversURL = strings.TrimRight(base, "/")
		}
	}
}

// WithMaxResults caps the number of docs turned into candidates.
func WithMaxResults(n int) Option {
	return func(c *Client) {
		if n > 0 {
			c.maxResults = n
		}
	}
}

// New creates an Open Library client.
func New(baseURL string, opts ...Option) (*Client, error) {
	baseURL = strings.TrimSpace(baseURL)
	if baseURL == "" {
		return nil, errors.New("openlibrary base url required")
	}
	client := &Client{
		baseURL:    strings.TrimRight(baseURL, "/"),
		coversURL:  defaultCoversURL,
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

// Search queries /search.json by title and author, or by ISBN when the
// query has no title.
func (c *Client) Search(ctx context.Context, query providers.Query) ([]providers.Candidate, error) {
	query = query.Normalized()
	params := url.Values{}
	switch {
	case query.Title != "":
		params.Set("q", query.Title)
		if query.Author != "" {
			params.Set("author", query.Author)
		}
	case query.ISBN != "":
		params.Set("isbn", query.ISBN)
	default:
		return nil, providers.ErrEmptyQuery
	}
	limit := c.maxResults
	if query.Limit > 0 && query.Limit < limit {
		limit = query.Limit
	}
	params.Set("limit", strconv.Itoa(limit))

	var payload searchResponse
	err := providers.GetJSON(ctx, c.httpClient, c.baseURL+"/search.json?"+params.Encode(), nil, &payload)
	if errors.Is(err, providers.ErrNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("openlibrary search: %w", err)
	}

	out := make([]providers.Candidate, 0, min(limit, len(payload.Docs)))
	for _, d := range payload.Docs {
		if len(out) >= limit {
			break
		}
		if strings.TrimSpace(d.Title) == "" {
			continue
		}
		out = append(out, c.candidate(d, query.ISBN))
	}
	return out, nil
}

func (c *Client) candidate(d doc, wantISBN string) providers.Candidate {
	cand := providers.Candidate{
		Provider:  Name,
		Title:     strings.TrimSpace(d.Title),
		Subtitle:  strings.TrimSpace(d.Subtitle),
		Author:    providers.First(d.AuthorName),
		ISBN:      pickISBN(d.ISBN, wantISBN),
		ASIN:      providers.First(d.IDAmazon),
		Publisher: providers.First(d.Publisher),
		Language:  providers.First(d.Language),
		Genre:     providers.First(d.Subject),
	}
	if d.FirstPublishYear > 0 {
		cand.Year = strconv.Itoa(d.FirstPublishYear)
	}
	if d.CoverI > 0 {
		cand.CoverURL = fmt.Sprintf("%s/b/id/%d-L.jpg", c.coversURL, d.CoverI)
	}
	return cand
}

// pickISBN prefers the edition matching the local identifier, then the
// first 13-digit value.
func pickISBN(values []string, want string) string {
	first13 := ""
	for _, v := range values {
		n := providers.NormalizeISBN(v)
		if want != "" && n == want {
			return n
		}
		if first13 == "" && len(n) == 13 {
			first13 = n
		}
	}
	if first13 != "" {
		return first13
	}
	return providers.NormalizeISBN(providers.First(values))
}
