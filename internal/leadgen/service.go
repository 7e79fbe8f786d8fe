package leadgen

import (
	"context"
	"errors"
	"fmt"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/leadgen/internal/fanout"
	"github.com/sells-group/leadgen/internal/model"
	"github.com/sells-group/leadgen/internal/persist"
	"github.com/sells-group/leadgen/internal/store"
)

// SearchExecutor runs one search and enrichment. *Facade implements it.
type SearchExecutor interface {
	ExecuteSearch(ctx context.Context, criteria model.SearchCriteria) (*SearchResult, error)
}

// Limits holds the concurrency caps and page sizes the service applies.
type Limits struct {
	SearchConcurrency  int
	PersistConcurrency int
	DefaultLimit       int
	MaxLimit           int
}

// DefaultLimits returns the caps used when none are configured.
func DefaultLimits() Limits {
	return Limits{
		SearchConcurrency:  5,
		PersistConcurrency: 5,
		DefaultLimit:       10,
		MaxLimit:           100,
	}
}

// CommandResult is the outcome of SearchBusiness.
type CommandResult struct {
	Run           *model.SearchRun
	Businesses    []model.PersistedBusiness
	EnrichErrors  []error
	PersistErrors []error
}

// BatchItem is the outcome of one criteria set in ConcurrentSearches. Err is
// set when the search itself failed; Businesses is then empty.
type BatchItem struct {
	Criteria      model.SearchCriteria
	Run           *model.SearchRun
	Businesses    []model.EnrichedBusiness
	Persisted     []model.PersistedBusiness
	EnrichErrors  []error
	PersistErrors []error
	Err           error
}

// BatchResult holds one BatchItem per input criteria, in input order.
type BatchResult struct {
	Items []BatchItem
}

// Businesses returns the enriched businesses of every criteria set, index
// aligned with the input.
func (r *BatchResult) Businesses() [][]model.EnrichedBusiness {
	out := make([][]model.EnrichedBusiness, len(r.Items))
	for i, it := range r.Items {
		out[i] = it.Businesses
		if out[i] == nil {
			out[i] = []model.EnrichedBusiness{}
		}
	}
	return out
}

// Service implements the lead generation commands and queries.
type Service struct {
	exec      SearchExecutor
	store     store.Store
	persister *persist.Persister
	limits    Limits
}

// NewService creates a Service. Zero limits fall back to DefaultLimits.
func NewService(exec SearchExecutor, st store.Store, limits Limits) *Service {
	def := DefaultLimits()
	if limits.SearchConcurrency <= 0 {
		limits.SearchConcurrency = def.SearchConcurrency
	}
	if limits.PersistConcurrency <= 0 {
		limits.PersistConcurrency = def.PersistConcurrency
	}
	if limits.MaxLimit <= 0 {
		limits.MaxLimit = def.MaxLimit
	}
	if limits.DefaultLimit <= 0 {
		limits.DefaultLimit = min(def.DefaultLimit, limits.MaxLimit)
	}
	return &Service{
		exec:      exec,
		store:     st,
		persister: persist.New(st),
		limits:    limits,
	}
}

// Page normalizes a requested page: limit <= 0 becomes the default limit, any
// limit is clamped to the maximum, and page <= 0 becomes 1.
func (s *Service) Page(limit, page int) (int, int) {
	if limit <= 0 {
		limit = s.limits.DefaultLimit
	}
	if limit > s.limits.MaxLimit {
		limit = s.limits.MaxLimit
	}
	if page <= 0 {
		page = 1
	}
	return limit, page
}

// GetBusinesses returns one page of stored businesses with their location and
// emails. Rows are skipped as (page-1)*limit.
func (s *Service) GetBusinesses(ctx context.Context, limit, page int) ([]model.PersistedBusiness, error) {
	limit, page = s.Page(limit, page)
	list, err := s.store.ListBusinesses(ctx, store.BusinessFilter{Limit: limit, Offset: (page - 1) * limit})
	if err != nil {
		return nil, eris.Wrap(err, "leadgen: get businesses")
	}
	if list == nil {
		list = []model.PersistedBusiness{}
	}
	return list, nil
}

// SearchBusiness runs one search, persists the enriched results and records
// the outcome as a search run. Persistence failures do not fail the command;
// they are returned in PersistErrors and counted on the run.
func (s *Service) SearchBusiness(ctx context.Context, criteria model.SearchCriteria) (*CommandResult, error) {
	c := criteria.WithDefaults()
	if err := c.Validate(); err != nil {
		return nil, &CriteriaError{Err: err}
	}

	run, err := s.store.CreateRun(ctx, c)
	if err != nil {
		return nil, eris.Wrap(err, "leadgen: create run")
	}

	res, err := s.exec.ExecuteSearch(ctx, c)
	if err != nil {
		s.finishRun(ctx, run, 0, nil, err)
		return nil, err
	}

	saved := s.persister.Persist(ctx, res.Businesses, s.limits.PersistConcurrency)
	s.finishRun(ctx, run, len(res.Businesses), &saved, nil)

	return &CommandResult{
		Run:           run,
		Businesses:    saved.Results,
		EnrichErrors:  res.Errors,
		PersistErrors: saved.Errors,
	}, nil
}

// ConcurrentSearches runs a search per criteria set with at most
// SearchConcurrency searches in flight, then persists every successful set.
// A failing set never aborts its siblings.
func (s *Service) ConcurrentSearches(ctx context.Context, criteria []model.SearchCriteria) (*BatchResult, error) {
	items := fanout.Map(ctx, criteria, s.limits.SearchConcurrency, func(ctx context.Context, c model.SearchCriteria) (BatchItem, error) {
		return s.searchOne(ctx, c), nil
	})

	result := &BatchResult{Items: make([]BatchItem, len(items))}
	for i, o := range items {
		result.Items[i] = o.Value
	}

	persisted := fanout.Map(ctx, result.Items, s.limits.SearchConcurrency, func(ctx context.Context, it BatchItem) (persist.Result, error) {
		if it.Err != nil {
			return persist.Result{}, nil
		}
		saved := s.persister.Persist(ctx, it.Businesses, s.limits.PersistConcurrency)
		s.finishRun(ctx, it.Run, len(it.Businesses), &saved, nil)
		return saved, nil
	})
	for i, o := range persisted {
		result.Items[i].Persisted = o.Value.Results
		result.Items[i].PersistErrors = o.Value.Errors
	}

	failed := 0
	for _, it := range result.Items {
		if it.Err != nil {
			failed++
		}
	}
	zap.L().Info("leadgen: concurrent searches complete",
		zap.Int("criteria", len(criteria)),
		zap.Int("failed", failed),
	)
	return result, nil
}

func (s *Service) searchOne(ctx context.Context, criteria model.SearchCriteria) BatchItem {
	c := criteria.WithDefaults()
	it := BatchItem{Criteria: c}
	if err := c.Validate(); err != nil {
		it.Err = &CriteriaError{Err: err}
		return it
	}

	run, err := s.store.CreateRun(ctx, c)
	if err != nil {
		it.Err = eris.Wrap(err, "leadgen: create run")
		return it
	}
	it.Run = run

	res, err := s.exec.ExecuteSearch(ctx, c)
	if err != nil {
		s.finishRun(ctx, run, 0, nil, err)
		it.Err = err
		return it
	}
	it.Businesses = res.Businesses
	it.EnrichErrors = res.Errors
	return it
}

// finishRun records the outcome on run. A failure to store it is logged, not
// returned; the caller already has the outcome in hand.
func (s *Service) finishRun(ctx context.Context, run *model.SearchRun, found int, saved *persist.Result, searchErr error) {
	run.Found = found
	switch {
	case searchErr != nil:
		run.Status = model.SearchRunFailed
		run.Error = searchErr.Error()
	default:
		run.Status = model.SearchRunComplete
		run.Persisted = len(saved.Results)
		run.Failed = len(saved.Errors)
		if run.Failed > 0 {
			run.Error = fmt.Sprintf("%d of %d businesses failed to persist", run.Failed, found)
		}
	}

	if err := s.store.UpdateRun(context.WithoutCancel(ctx), run); err != nil {
		zap.L().Error("leadgen: record run outcome", zap.String("run_id", run.ID), zap.Error(err))
	}
}

// GetBusiness returns one stored business.
func (s *Service) GetBusiness(ctx context.Context, id string) (*model.PersistedBusiness, error) {
	return s.store.GetBusiness(ctx, id)
}

// DeleteBusiness removes a stored business with its emails and location.
func (s *Service) DeleteBusiness(ctx context.Context, id string) error {
	return s.store.DeleteBusiness(ctx, id)
}

// CountBusinesses returns the number of stored businesses.
func (s *Service) CountBusinesses(ctx context.Context) (int, error) {
	return s.store.CountBusinesses(ctx)
}

// GetRun returns one search run record.
func (s *Service) GetRun(ctx context.Context, id string) (*model.SearchRun, error) {
	return s.store.GetRun(ctx, id)
}

// ListRuns returns recent search runs, newest first.
func (s *Service) ListRuns(ctx context.Context, filter store.RunFilter) ([]model.SearchRun, error) {
	runs, err := s.store.ListRuns(ctx, filter)
	if err != nil {
		return nil, err
	}
	if runs == nil {
		runs = []model.SearchRun{}
	}
	return runs, nil
}

// Ping checks that the store is reachable.
func (s *Service) Ping(ctx context.Context) error {
	return s.store.Ping(ctx)
}

// IsCriteriaError reports whether err came from invalid search criteria.
func IsCriteriaError(err error) bool {
	var ce *CriteriaError
	return errors.As(err, &ce)
}
