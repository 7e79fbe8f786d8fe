// Package persist writes enriched businesses to the store with a bounded
// number of concurrent writes. Each business is written on its own; one
// failed write never undoes or blocks the others.
package persist

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/sells-group/leadgen/internal/fanout"
	"github.com/sells-group/leadgen/internal/metrics"
	"github.com/sells-group/leadgen/internal/model"
)

// BusinessWriter saves one enriched business with its location and emails.
type BusinessWriter interface {
	SaveBusiness(ctx context.Context, b model.EnrichedBusiness) (*model.PersistedBusiness, error)
}

// PersistenceError records a business that could not be written.
type PersistenceError struct {
	Index int
	Title string
	Err   error
}

func (e *PersistenceError) Error() string {
	return fmt.Sprintf("persist: business %d (%q): %v", e.Index, e.Title, e.Err)
}

func (e *PersistenceError) Unwrap() error { return e.Err }

// Result holds the businesses that were written, in input order, and one
// PersistenceError per business that was not.
type Result struct {
	Results []model.PersistedBusiness
	Errors  []error
}

// Persister fans business writes out to a BusinessWriter.
type Persister struct {
	writer BusinessWriter
}

// New creates a Persister.
func New(writer BusinessWriter) *Persister {
	return &Persister{writer: writer}
}

// Persist writes every item with at most concurrency writes in flight.
func (p *Persister) Persist(ctx context.Context, items []model.EnrichedBusiness, concurrency int) Result {
	outcomes := fanout.Map(ctx, items, concurrency, func(ctx context.Context, b model.EnrichedBusiness) (model.PersistedBusiness, error) {
		saved, err := p.writer.SaveBusiness(ctx, b)
		if err != nil {
			metrics.RecordWrite(metrics.WriteFailed)
			return model.PersistedBusiness{}, err
		}
		metrics.RecordWrite(metrics.WriteOK)
		return *saved, nil
	})

	res := Result{Results: make([]model.PersistedBusiness, 0, len(items))}
	for _, o := range outcomes {
		if o.Err != nil {
			title := items[o.Index].Title
			zap.L().Warn("persist: write failed",
				zap.Int("index", o.Index),
				zap.String("business", title),
				zap.Error(o.Err),
			)
			res.Errors = append(res.Errors, &PersistenceError{Index: o.Index, Title: title, Err: o.Err})
			continue
		}
		res.Results = append(res.Results, o.Value)
	}

	zap.L().Info("persist: batch complete",
		zap.Int("businesses", len(items)),
		zap.Int("persisted", len(res.Results)),
		zap.Int("failed", len(res.Errors)),
		zap.Int("concurrency", concurrency),
	)
	return res
}
