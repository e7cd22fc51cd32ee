package api

import (
	"context"
	"fmt"
	"strings"

	"audioshelf/internal/aggregator"
	"audioshelf/internal/providers"
	"audioshelf/internal/queue"
	"audioshelf/internal/services"
)

// Search runs a manual search for an item. Results are buffered per item
// for Apply; the item itself is not changed.
func (s *Service) Search(ctx context.Context, id string, req SearchRequest) (SearchResponse, error) {
	item, err := s.load(ctx, id)
	if err != nil {
		return SearchResponse{}, err
	}
	if s.searcher == nil || len(s.searcher.Names()) == 0 {
		return SearchResponse{}, services.Wrap(services.ErrConfiguration, "api", "search", "No metadata providers are enabled", nil)
	}

	query := searchQuery(item.Metadata, req, s.cfg.Providers.MaxResults)
	if query.IsEmpty() {
		return SearchResponse{}, services.Wrap(services.ErrValidation, "api", "search", "Search needs a title or identifier", nil)
	}
	result := s.searcher.Search(ctx, query)

	s.mu.Lock()
	s.results[item.ID] = result.Candidates
	s.mu.Unlock()
	return SearchResponse{Candidates: FromCandidates(result.Candidates), Failed: result.Failed}, nil
}

// searchQuery prefers the request's fields and falls back to the item's
// metadata for anything left blank.
func searchQuery(meta queue.Metadata, req SearchRequest, limit int) providers.Query {
	query := aggregator.QueryFromMetadata(meta, limit)
	if title := strings.TrimSpace(req.Query); title != "" {
		query.Title = title
		query.Author = strings.TrimSpace(req.Author)
		query.ISBN = ""
		query.ASIN = ""
	} else if author := strings.TrimSpace(req.Author); author != "" {
		query.Author = author
	}
	if isbn := strings.TrimSpace(req.ISBN); isbn != "" {
		query.ISBN = isbn
	}
	if asin := strings.TrimSpace(req.ASIN); asin != "" {
		query.ASIN = asin
	}
	return query.Normalized()
}

// Apply merges a buffered candidate into the item. Fields the user or the
// embedded tags set are kept; filename guesses are replaced. The item stays
// where it is; Process or Retry moves it on.
func (s *Service) Apply(ctx context.Context, id string, index int) (ApplyResponse, error) {
	var changed []string
	item, err := s.editIdle(ctx, id, "apply", func(item *queue.Item) error {
		s.mu.Lock()
		candidates := s.results[item.ID]
		s.mu.Unlock()
		if len(candidates) == 0 {
			return services.Wrap(services.ErrValidation, "api", "apply", "Run a search before applying a candidate", nil)
		}
		if index < 0 || index >= len(candidates) {
			return services.Wrap(services.ErrValidation, "api", "apply",
				fmt.Sprintf("Candidate index %d out of range (0-%d)", index, len(candidates)-1), nil)
		}
		chosen := candidates[index]
		changed = aggregator.ApplyCandidate(&item.Metadata, chosen.Candidate, true)
		item.Confidence = chosen.Score
		item.MatchSource = chosen.Provider
		item.ProgressMessage = fmt.Sprintf("Applied %s candidate (%d%%)", chosen.Provider, chosen.Score)
		return nil
	})
	if err != nil {
		return ApplyResponse{}, err
	}
	s.dropResults(item.ID)
	return ApplyResponse{Item: FromQueueItem(item), Changed: changed}, nil
}

func (s *Service) dropResults(id string) {
	s.mu.Lock()
	delete(s.results, id)
	s.mu.Unlock()
}
