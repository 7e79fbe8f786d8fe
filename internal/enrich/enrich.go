// Package enrich attaches email addresses to raw business records with a
// bounded number of concurrent lookups.
package enrich

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"strings"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/leadgen/internal/fanout"
	"github.com/sells-group/leadgen/internal/metrics"
	"github.com/sells-group/leadgen/internal/model"
	"github.com/sells-group/leadgen/internal/resilience"
	"github.com/sells-group/leadgen/pkg/anymailfinder"
)

// EmailFinder looks up email addresses for a domain.
type EmailFinder interface {
	FindEmails(ctx context.Context, domain string) ([]string, error)
}

// LookupError records a failed lookup. The business it belongs to is still
// returned, without emails. Transient is set when a later lookup could succeed
// (rate limiting, upstream 5xx, network trouble).
type LookupError struct {
	Title     string
	Domain    string
	Transient bool
	Err       error
}

func (e *LookupError) Error() string {
	return fmt.Sprintf("enrich: lookup for %q (%s): %v", e.Title, e.Domain, e.Err)
}

func (e *LookupError) Unwrap() error { return e.Err }

// Result holds one enriched record per input item, in input order, plus the
// lookup failures that degraded some of them.
type Result struct {
	Results []model.EnrichedBusiness
	Errors  []error
}

// Pipeline enriches businesses through an EmailFinder.
type Pipeline struct {
	finder EmailFinder
}

// New creates a Pipeline.
func New(finder EmailFinder) *Pipeline {
	return &Pipeline{finder: finder}
}

type enriched struct {
	business model.EnrichedBusiness
	err      error
}

// Enrich looks up emails for every item with at most concurrency lookups in
// flight. Items without a website are not looked up. A failed lookup yields
// the item with no emails; it never drops the item or stops other lookups.
// "No emails found" is an ordinary empty result and is not reported in Errors.
func (p *Pipeline) Enrich(ctx context.Context, items []model.RawBusiness, concurrency int) Result {
	outcomes := fanout.Map(ctx, items, concurrency, func(ctx context.Context, raw model.RawBusiness) (enriched, error) {
		return p.enrichOne(ctx, raw), nil
	})

	res := Result{Results: make([]model.EnrichedBusiness, 0, len(outcomes))}
	withEmails := 0
	for _, o := range outcomes {
		res.Results = append(res.Results, o.Value.business)
		if o.Value.business.HasEmails {
			withEmails++
		}
		if o.Value.err != nil {
			res.Errors = append(res.Errors, o.Value.err)
		}
	}

	zap.L().Info("enrich: batch complete",
		zap.Int("businesses", len(res.Results)),
		zap.Int("with_emails", withEmails),
		zap.Int("lookup_errors", len(res.Errors)),
		zap.Int("concurrency", concurrency),
	)
	return res
}

func (p *Pipeline) enrichOne(ctx context.Context, raw model.RawBusiness) enriched {
	if strings.TrimSpace(raw.Website) == "" {
		metrics.RecordLookup(metrics.LookupSkipped)
		return enriched{business: model.Enrich(raw, nil)}
	}

	log := zap.L().With(zap.String("business", raw.Title), zap.String("website", raw.Website))

	domain, err := Domain(raw.Website)
	if err != nil {
		metrics.RecordLookup(metrics.LookupFailed)
		log.Warn("enrich: unusable website", zap.Error(err))
		return enriched{
			business: model.Enrich(raw, nil),
			err:      &LookupError{Title: raw.Title, Err: err},
		}
	}

	emails, err := p.finder.FindEmails(ctx, domain)
	switch {
	case errors.Is(err, anymailfinder.ErrNoResults):
		metrics.RecordLookup(metrics.LookupNoResults)
		log.Debug("enrich: no emails found", zap.String("domain", domain))
		return enriched{business: model.Enrich(raw, nil)}
	case err != nil:
		transient := resilience.IsTransient(err)
		if transient {
			metrics.RecordLookup(metrics.LookupTransient)
		} else {
			metrics.RecordLookup(metrics.LookupFailed)
		}
		log.Warn("enrich: lookup failed",
			zap.String("domain", domain),
			zap.Bool("transient", transient),
			zap.Error(err),
		)
		return enriched{
			business: model.Enrich(raw, nil),
			err:      &LookupError{Title: raw.Title, Domain: domain, Transient: transient, Err: err},
		}
	}

	if len(emails) > 0 {
		metrics.RecordLookup(metrics.LookupFound)
	} else {
		metrics.RecordLookup(metrics.LookupNoResults)
	}
	return enriched{business: model.Enrich(raw, emails)}
}

// Domain returns the lower-cased host of a website URL without a leading
// "www.". A missing scheme is allowed.
func Domain(website string) (string, error) {
	s := strings.TrimSpace(website)
	if !strings.Contains(s, "://") {
		s = "https://" + s
	}
	u, err := url.Parse(s)
	if err != nil {
		return "", eris.Wrapf(err, "enrich: parse website %q", website)
	}
	host := strings.TrimPrefix(strings.ToLower(u.Hostname()), "www.")
	if host == "" || !strings.Contains(host, ".") {
		return "", eris.Errorf("enrich: no domain in website %q", website)
	}
	return host, nil
}
