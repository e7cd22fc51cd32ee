// Package audible queries the public Audible catalog API.
package audible

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
const Name = "audible"

const responseGroups = "media,product_attrs,product_desc,product_extended_attrs,series,contributors"

type person struct {
	ASIN string `json:"asin"`
	Name string `json:"name"`
}

type seriesRef struct {
	ASIN     string `json:"asin"`
	Title    string `json:"title"`
	Sequence string `json:"sequence"`
}

type product struct {
	ASIN             string            `json:"asin"`
	Title            string            `json:"title"`
	Subtitle         string            `json:"subtitle"`
	Authors          []person          `json:"authors"`
	Narrators        []person          `json:"narrators"`
	Series           []seriesRef       `json:"series"`
	IssueDate        string            `json:"issue_date"`
	ReleaseDate      string            `json:"release_date"`
	PublisherSummary string            `json:"publisher_summary"`
	PublisherName    string            `json:"publisher_name"`
	Language         string            `json:"language"`
	ProductImages    map[string]string `json:"product_images"`
}

type searchResponse struct {
	Products     []product `json:"products"`
	TotalResults int       `json:"total_results"`
}

type productResponse struct {
	Product *product `json:"product"`
}

// Client queries the Audible catalog.
type Client struct {
	baseURL    string
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

// WithMaxResults sets num_results on each search.
func WithMaxResults(n int) Option {
	return func(c *Client) {
		if n > 0 {
			c.maxResults = n
		}
	}
}

// New creates an Audible catalog client.
func New(baseURL string, opts ...Option) (*Client, error) {
	baseURL = strings.TrimSpace(baseURL)
	if baseURL == "" {
		return nil, errors.New("audible base url required")
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

// Search looks the ASIN up first when one is known; without a hit it falls
// back to a relevance-sorted title/author search.
func (c *Client) Search(ctx context.Context, query providers.Query) ([]providers.Candidate, error) {
	query = query.Normalized()
	if query.ASIN != "" {
		cand, err := c.Lookup(ctx, query.ASIN)
		if err != nil {
			return nil, err
		}
		if cand != nil {
			return []providers.Candidate{*cand}, nil
		}
	}
	if query.Title == "" {
		if query.ASIN != "" {
			return nil, nil
		}
		return nil, providers.ErrEmptyQuery
	}

	limit := c.maxResults
	if query.Limit > 0 && query.Limit < limit {
		limit = query.Limit
	}
	params := url.Values{}
	params.Set("title", query.Title)
	if query.Author != "" {
		params.Set("author", query.Author)
	}
	params.Set("num_results", strconv.Itoa(limit))
	params.Set("products_sort_by", "Relevance")
	params.Set("response_groups", responseGroups)

	var payload searchResponse
	err := providers.GetJSON(ctx, c.httpClient, c.baseURL+"/1.0/catalog/products?"+params.Encode(), nil, &payload)
	if errors.Is(err, providers.ErrNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("audible search: %w", err)
	}

	out := make([]providers.Candidate, 0, len(payload.Products))
	for _, p := range payload.Products {
		if strings.TrimSpace(p.Title) == "" {
			continue
		}
		out = append(out, toCandidate(p))
	}
	return out, nil
}

// Lookup fetches a single product by ASIN. Unknown ASINs return nil, nil.
func (c *Client) Lookup(ctx context.Context, asin string) (*providers.Candidate, error) {
	asin = strings.ToUpper(strings.TrimSpace(asin))
	if asin == "" {
		return nil, providers.ErrEmptyQuery
	}
	params := url.Values{}
	params.Set("response_groups", responseGroups)
	endpoint := c.baseURL + "/1.0/catalog/products/" + url.PathEscape(asin) + "?" + params.Encode()

	var payload productResponse
	err := providers.GetJSON(ctx, c.httpClient, endpoint, nil, &payload)
	if errors.Is(err, providers.ErrNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("audible lookup %s: %w", asin, err)
	}
	if payload.Product == nil || strings.TrimSpace(payload.Product.Title) == "" {
		return nil, nil
	}
	cand := toCandidate(*payload.Product)
	return &cand, nil
}

func toCandidate(p product) providers.Candidate {
	cand := providers.Candidate{
		Provider:    Name,
		Title:       strings.TrimSpace(p.Title),
		Subtitle:    strings.TrimSpace(p.Subtitle),
		ASIN:        strings.TrimSpace(p.ASIN),
		Description: strings.TrimSpace(p.PublisherSummary),
		Publisher:   strings.TrimSpace(p.PublisherName),
		Language:    strings.TrimSpace(p.Language),
		CoverURL:    largestImage(p.ProductImages),
	}
	if len(p.Authors) > 0 {
		cand.Author = strings.TrimSpace(p.Authors[0].Name)
	}
	if len(p.Narrators) > 0 {
		cand.Narrator = strings.TrimSpace(p.Narrators[0].Name)
	}
	if len(p.Series) > 0 {
		cand.Series = strings.TrimSpace(p.Series[0].Title)
		cand.SeriesPart = strings.TrimSpace(p.Series[0].Sequence)
	}
	cand.Year = providers.YearFromDate(p.IssueDate)
	if cand.Year == "" {
		cand.Year = providers.YearFromDate(p.ReleaseDate)
	}
	return cand
}

// largestImage returns the image under the largest numeric size key, or any
// image when no key is numeric.
func largestImage(images map[string]string) string {
	best, bestSize := "", -1
	fallback := ""
	for key, link := range images {
		if size, err := strconv.Atoi(key); err == nil {
			if size > bestSize {
				best, bestSize = link, size
			}
			continue
		}
		if fallback == "" || key < fallback {
			fallback = link
		}
	}
	if best != "" {
		return best
	}
	return fallback
}
