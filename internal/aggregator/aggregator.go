package aggregator

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"audioshelf/internal/config"
	"audioshelf/internal/logging"
	"audioshelf/internal/metrics"
	"audioshelf/internal/providers"
	"audioshelf/internal/providers/audible"
	"audioshelf/internal/providers/audnexus"
	"audioshelf/internal/providers/googlebooks"
	"audioshelf/internal/providers/openlibrary"
)

// Result is the outcome of one fan-out.
type Result struct {
	Candidates []ScoredCandidate `json:"candidates"`
	// Failed lists providers that errored or timed out.
	Failed []string `json:"failed,omitempty"`
}

// Best returns the top-ranked candidate, if any.
func (r Result) Best() (ScoredCandidate, bool) {
	if len(r.Candidates) == 0 {
		return ScoredCandidate{}, false
	}
	return r.Candidates[0], true
}

// Aggregator queries providers concurrently.
type Aggregator struct {
	providers       []providers.Provider
	providerTimeout time.Duration
	overallTimeout  time.Duration
	logger          *slog.Logger
}

// New creates an aggregator over providers in priority order.
func New(list []providers.Provider, providerTimeout, overallTimeout time.Duration, logger *slog.Logger) *Aggregator {
	return &Aggregator{
		providers:       list,
		providerTimeout: providerTimeout,
		overallTimeout:  overallTimeout,
		logger:          logging.NewComponentLogger(logger, "aggregator"),
	}
}

// NewFromConfig builds the enabled providers in configured order. Audnexus
// rides along after audible when it is not listed explicitly.
func NewFromConfig(cfg *config.Config, logger *slog.Logger) (*Aggregator, error) {
	list, err := ProvidersFromConfig(cfg)
	if err != nil {
		return nil, err
	}
	return New(list, cfg.ProviderTimeout(), cfg.AggregateTimeout(), logger), nil
}

// ProvidersFromConfig instantiates the catalogs named in providers.enabled.
func ProvidersFromConfig(cfg *config.Config) ([]providers.Provider, error) {
	client := &http.Client{Timeout: cfg.ProviderTimeout()}
	p := cfg.Providers
	var list []providers.Provider
	seen := map[string]bool{}
	add := func(name string) error {
		if seen[name] {
			return nil
		}
		seen[name] = true
		var (
			prov providers.Provider
			err  error
		)
		switch name {
		case config.ProviderOpenLibrary:
			prov, err = openlibrary.New(p.OpenLibraryURL, openlibrary.WithHTTPClient(client), openlibrary.WithMaxResults(p.MaxResults))
		case config.ProviderGoogleBooks:
			prov, err = googlebooks.New(p.GoogleBooksURL, googlebooks.WithHTTPClient(client),
				googlebooks.WithMaxResults(p.MaxResults), googlebooks.WithAPIKey(p.GoogleBooksAPIKey))
		case config.ProviderAudible:
			prov, err = audible.New(p.AudibleURL, audible.WithHTTPClient(client), audible.WithMaxResults(p.MaxResults))
		case config.ProviderAudnexus:
			prov, err = audnexus.New(p.AudnexusURL, audnexus.WithHTTPClient(client))
		default:
			return fmt.Errorf("unknown provider %q", name)
		}
		if err != nil {
			return fmt.Errorf("provider %s: %w", name, err)
		}
		list = append(list, prov)
		return nil
	}

	for _, name := range p.Enabled {
		if err := add(name); err != nil {
			return nil, err
		}
		if name == config.ProviderAudible {
			if err := add(config.ProviderAudnexus); err != nil {
				return nil, err
			}
		}
	}
	return list, nil
}

// Names returns provider names in priority order.
func (a *Aggregator) Names() []string {
	names := make([]string, len(a.providers))
	for i, p := range a.providers {
		names[i] = p.Name()
	}
	return names
}

// Search queries every provider and ranks the combined candidates against
// ref. Provider failures and timeouts exclude that provider only; zero
// candidates is a valid result.
func (a *Aggregator) Search(ctx context.Context, ref providers.Query) Result {
	ref = ref.Normalized()
	logger := logging.WithContext(ctx, a.logger)
	if ref.IsEmpty() || len(a.providers) == 0 {
		return Result{}
	}

	if a.overallTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, a.overallTimeout)
		defer cancel()
	}

	// A plain Group rather than WithContext: one provider failing must not
	// cancel the others, so each goroutine records its own outcome in slots
	// and returns nil. Wait only marks the end of the fan-out.
	var (
		mu      sync.Mutex
		slots   = make([][]providers.Candidate, len(a.providers))
		settled = make([]bool, len(a.providers))
		group   errgroup.Group
	)
	for idx, prov := range a.providers {
		group.Go(func() error {
			pctx := ctx
			if a.providerTimeout > 0 {
				var cancel context.CancelFunc
				pctx, cancel = context.WithTimeout(ctx, a.providerTimeout)
				defer cancel()
			}
			start := time.Now()
			found, err := prov.Search(pctx, ref)
			elapsed := time.Since(start)
			if err == nil && pctx.Err() != nil {
				err = pctx.Err()
			}

			status := "ok"
			switch {
			case errors.Is(err, context.DeadlineExceeded):
				status = "timeout"
			case err != nil:
				status = "error"
			}
			metrics.RecordProviderQuery(prov.Name(), status, elapsed)
			if err != nil {
				logging.WarnWithContext(logger, "provider query failed", "provider_failed",
					logging.String("provider", prov.Name()),
					logging.Duration("elapsed", elapsed),
					logging.Error(err),
					logging.String(logging.FieldImpact, "provider excluded from this match"),
					logging.String(logging.FieldErrorHint, "check provider availability or increase providers.timeout_seconds"),
				)
				return nil
			}

			mu.Lock()
			slots[idx] = found
			settled[idx] = true
			mu.Unlock()
			logger.Debug("provider query complete",
				logging.String("provider", prov.Name()),
				logging.Int("candidates", len(found)),
				logging.Duration("elapsed", elapsed))
			return nil
		})
	}

	done := make(chan struct{})
	go func() {
		_ = group.Wait()
		close(done)
	}()
	select {
	case <-done:
	case <-ctx.Done():
	}

	mu.Lock()
	var (
		combined []providers.Candidate
		failed   []string
	)
	for idx, prov := range a.providers {
		if !settled[idx] {
			failed = append(failed, prov.Name())
			continue
		}
		for _, c := range slots[idx] {
			if c.Provider == "" {
				c.Provider = prov.Name()
			}
			combined = append(combined, c)
		}
	}
	mu.Unlock()

	result := Result{Candidates: Rank(ref, combined, a.Names()), Failed: failed}
	if best, ok := result.Best(); ok {
		metrics.MatchConfidence.Observe(float64(best.Score))
	}
	return result
}
