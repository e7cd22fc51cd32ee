package aggregator

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"audioshelf/internal/config"
	"audioshelf/internal/logging"
	"audioshelf/internal/providers"
	"audioshelf/internal/queue"
	"audioshelf/internal/stage"
)

// Searcher ranks provider candidates for a query.
type Searcher interface {
	Search(ctx context.Context, query providers.Query) Result
	Names() []string
}

// Enricher is the enrich stage: it searches the catalogs with the locally
// identified metadata and merges the best candidate.
type Enricher struct {
	cfg      *config.Config
	searcher Searcher
	logger   *slog.Logger
}

// NewEnricher creates the enrich stage handler.
func NewEnricher(cfg *config.Config, searcher Searcher, logger *slog.Logger) *Enricher {
	return &Enricher{
		cfg:      cfg,
		searcher: searcher,
		logger:   logging.NewComponentLogger(logger, "enricher"),
	}
}

// Prepare sets progress messaging.
func (e *Enricher) Prepare(_ context.Context, item *queue.Item) error {
	item.ProgressMessage = "Searching metadata providers"
	return nil
}

// Execute records the top candidate's score as the item confidence. Zero
// candidates is not an error: confidence drops to 0 and the organizer gate
// routes the item to review.
func (e *Enricher) Execute(ctx context.Context, item *queue.Item) error {
	if err := stage.CheckCancelled(ctx, "enricher", "search"); err != nil {
		return err
	}
	logger := logging.WithContext(ctx, e.logger)

	query := QueryFromMetadata(item.Metadata, e.cfg.Providers.MaxResults)
	if query.IsEmpty() {
		item.Confidence = 0
		item.MatchSource = ""
		item.ProgressMessage = "Nothing to search for"
		logger.Info("enrichment skipped",
			logging.Args(logging.DecisionAttrs("provider_search", "skipped", "no title or identifier")...)...)
		return nil
	}

	var result Result
	if e.searcher != nil {
		result = e.searcher.Search(ctx, query)
	}
	if err := stage.CheckCancelled(ctx, "enricher", "merge"); err != nil {
		return err
	}

	best, ok := result.Best()
	if !ok {
		item.Confidence = 0
		item.MatchSource = ""
		item.ProgressMessage = "No provider candidates"
		logger.Info("no provider candidates",
			logging.String("title", query.Title),
			logging.String("author", query.Author),
			logging.String("failed_providers", strings.Join(result.Failed, ",")),
		)
		return nil
	}

	changed := ApplyCandidate(&item.Metadata, best.Candidate, false)
	item.Confidence = best.Score
	item.MatchSource = best.Provider
	item.ProgressMessage = fmt.Sprintf("Matched %s via %s (%d%%)", item.Metadata.DisplayTitle(), best.Provider, best.Score)

	attrs := []logging.Attr{
		logging.String("provider", best.Provider),
		logging.Int("confidence", best.Score),
		logging.Int("candidates", len(result.Candidates)),
		logging.Int("fields_merged", len(changed)),
	}
	if len(result.Failed) > 0 {
		attrs = append(attrs, logging.String("failed_providers", strings.Join(result.Failed, ",")))
	}
	logger.Info("metadata enriched", logging.Args(attrs...)...)
	return nil
}

// HealthCheck reports ready even without providers; every item then goes
// to review with confidence 0.
func (e *Enricher) HealthCheck(context.Context) stage.Health {
	health := stage.Healthy("enricher")
	if e.searcher == nil || len(e.searcher.Names()) == 0 {
		health.Detail = "no metadata providers enabled"
	}
	return health
}
