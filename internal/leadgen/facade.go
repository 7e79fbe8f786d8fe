// Package leadgen ties searching, enrichment and persistence together behind
// the commands and queries the API and CLI expose.
package leadgen

import (
	"context"
	"fmt"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/leadgen/internal/enrich"
	"github.com/sells-group/leadgen/internal/metrics"
	"github.com/sells-group/leadgen/internal/model"
)

// Searcher finds raw businesses matching criteria.
type Searcher interface {
	Search(ctx context.Context, criteria model.SearchCriteria) ([]model.RawBusiness, error)
}

// CriteriaError wraps a validation failure of the caller's search criteria.
type CriteriaError struct {
	Err error
}

func (e *CriteriaError) Error() string { return fmt.Sprintf("leadgen: invalid criteria: %v", e.Err) }

func (e *CriteriaError) Unwrap() error { return e.Err }

// SearchResult is the enriched output of one search. Errors lists the lookups
// that degraded a business to "no emails"; they never fail the search.
type SearchResult struct {
	Businesses []model.EnrichedBusiness
	Errors     []error
}

// Facade runs a search and enriches every result.
type Facade struct {
	searcher    Searcher
	pipeline    *enrich.Pipeline
	concurrency int
}

// NewFacade wires a searcher and an email finder. enrichConcurrency caps the
// number of email lookups in flight per search.
func NewFacade(searcher Searcher, finder enrich.EmailFinder, enrichConcurrency int) *Facade {
	return &Facade{
		searcher:    searcher,
		pipeline:    enrich.New(finder),
		concurrency: enrichConcurrency,
	}
}

// ExecuteSearch validates criteria, runs the search and enriches the results.
// A search failure fails the whole call; lookup failures do not. Nothing is
// persisted.
func (f *Facade) ExecuteSearch(ctx context.Context, criteria model.SearchCriteria) (*SearchResult, error) {
	c := criteria.WithDefaults()
	if err := c.Validate(); err != nil {
		return nil, &CriteriaError{Err: err}
	}

	start := time.Now()
	raw, err := f.searcher.Search(ctx, c)
	if err != nil {
		metrics.RecordSearch("failed", time.Since(start).Seconds())
		return nil, eris.Wrap(err, "leadgen: execute search")
	}

	res := f.pipeline.Enrich(ctx, raw, f.concurrency)
	metrics.RecordSearch("ok", time.Since(start).Seconds())

	zap.L().Info("leadgen: search executed",
		zap.Strings("keywords", c.Keywords),
		zap.String("location", c.Location),
		zap.Int("businesses", len(res.Results)),
		zap.Int("lookup_errors", len(res.Errors)),
		zap.Duration("elapsed", time.Since(start)),
	)

	return &SearchResult{Businesses: res.Results, Errors: res.Errors}, nil
}
