// Package search runs a Google Maps scraper actor and turns its dataset into
// raw business records.
package search

import (
	"context"
	"errors"
	"fmt"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/leadgen/internal/model"
	"github.com/sells-group/leadgen/internal/resilience"
	"github.com/sells-group/leadgen/pkg/apify"
)

// ErrEmptyResult is returned when the actor run succeeds but its dataset is empty.
var ErrEmptyResult = errors.New("search: actor run produced no items")

// UpstreamJobError is returned when the actor run cannot be started, polled,
// finished successfully, or read back.
type UpstreamJobError struct {
	RunID  string
	Status string
	Err    error
}

func (e *UpstreamJobError) Error() string {
	switch {
	case e.RunID == "":
		return fmt.Sprintf("search: start actor run: %v", e.Err)
	case e.Status != "":
		return fmt.Sprintf("search: actor run %s ended with status %s: %v", e.RunID, e.Status, e.Err)
	default:
		return fmt.Sprintf("search: actor run %s: %v", e.RunID, e.Err)
	}
}

func (e *UpstreamJobError) Unwrap() error { return e.Err }

// Gateway submits search criteria to the actor and collects its output.
type Gateway struct {
	client   apify.Client
	actorID  string
	pollOpts []apify.PollOption
	// listRetry applies to dataset reads, which are safe to repeat.
	listRetry resilience.RetryConfig
}

// NewGateway creates a Gateway for the given actor.
func NewGateway(client apify.Client, actorID string, pollOpts ...apify.PollOption) *Gateway {
	retry := resilience.DefaultRetryConfig()
	retry.OnRetry = resilience.RetryLogger("apify", "list_items")
	return &Gateway{client: client, actorID: actorID, pollOpts: pollOpts, listRetry: retry}
}

// Search runs the actor once for criteria and returns its dataset items. There
// is no retry of the run itself.
func (g *Gateway) Search(ctx context.Context, criteria model.SearchCriteria) ([]model.RawBusiness, error) {
	log := zap.L().With(
		zap.String("actor", g.actorID),
		zap.Strings("keywords", criteria.Keywords),
		zap.String("location", criteria.Location),
	)

	log.Info("search: starting actor run")
	run, err := g.client.StartRun(ctx, g.actorID, criteria)
	if err != nil {
		return nil, &UpstreamJobError{Err: err}
	}

	runID := run.ID
	run, err = apify.PollRun(ctx, g.client, runID, g.pollOpts...)
	if err != nil {
		return nil, &UpstreamJobError{RunID: runID, Err: err}
	}
	if run.Status != apify.StatusSucceeded {
		msg := run.StatusMessage
		if msg == "" {
			msg = "run did not succeed"
		}
		return nil, &UpstreamJobError{RunID: run.ID, Status: run.Status, Err: errors.New(msg)}
	}

	log.Info("search: actor run completed, fetching dataset",
		zap.String("run_id", run.ID),
		zap.String("dataset_id", run.DefaultDatasetID),
	)

	var items []model.RawBusiness
	err = resilience.Do(ctx, g.listRetry, func(ctx context.Context) error {
		items = nil
		return g.client.ListItems(ctx, run.DefaultDatasetID, &items)
	})
	if err != nil {
		return nil, &UpstreamJobError{RunID: run.ID, Status: run.Status, Err: eris.Wrap(err, "read dataset")}
	}
	if len(items) == 0 {
		log.Warn("search: dataset is empty", zap.String("run_id", run.ID))
		return nil, ErrEmptyResult
	}

	log.Info("search: dataset fetched", zap.Int("items", len(items)))
	return items, nil
}
