package search

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/leadgen/internal/model"
	"github.com/sells-group/leadgen/internal/resilience"
	"github.com/sells-group/leadgen/pkg/apify"
)

type fakeActor struct {
	startErr  error
	runs      []apify.Run // returned by successive GetRun calls
	getErr    error
	items     string
	listErr   error
	gotInput  any
	getCalls  int
	listCalls int

	// listFailures limits listErr to the first N reads; zero fails every read.
	listFailures int
}

func (f *fakeActor) StartRun(_ context.Context, _ string, input any) (*apify.Run, error) {
	f.gotInput = input
	if f.startErr != nil {
		return nil, f.startErr
	}
	return &apify.Run{ID: "run-1", Status: apify.StatusReady}, nil
}

func (f *fakeActor) GetRun(_ context.Context, _ string, _ int) (*apify.Run, error) {
	if f.getErr != nil {
		return nil, f.getErr
	}
	i := f.getCalls
	if i >= len(f.runs) {
		i = len(f.runs) - 1
	}
	f.getCalls++
	r := f.runs[i]
	return &r, nil
}

func (f *fakeActor) ListItems(_ context.Context, _ string, out any) error {
	f.listCalls++
	if f.listErr != nil && (f.listFailures == 0 || f.listCalls <= f.listFailures) {
		return f.listErr
	}
	return json.Unmarshal([]byte(f.items), out)
}

func criteria() model.SearchCriteria {
	return model.SearchCriteria{
		Keywords:   []string{"restaurant"},
		Location:   "Grays",
		MaxResults: 50,
		Language:   "en",
		MatchMode:  model.MatchAll,
		SkipClosed: true,
	}
}

func newGateway(f *fakeActor) *Gateway {
	return NewGateway(f, "actor-1", apify.WithPollInterval(time.Millisecond), apify.WithWaitForFinish(0))
}

func TestSearch_Success(t *testing.T) {
	f := &fakeActor{
		runs: []apify.Run{
			{ID: "run-1", Status: apify.StatusRunning},
			{ID: "run-1", Status: apify.StatusSucceeded, DefaultDatasetID: "ds-1"},
		},
		items: `[
			{"title":"Bella Italia","price":"£20–30","website":"https://bellaitalia.co.uk","phoneUnformatted":"+441708987338",
			 "location":{"lat":51.4867006,"lng":0.2815008},"state":null,"rating":4.2,"reviewsCount":911},
			{"title":"Kebab House","website":"","location":{"lat":51.47,"lng":0.32},"state":"Essex"}
		]`,
	}

	got, err := newGateway(f).Search(context.Background(), criteria())
	require.NoError(t, err)
	require.Len(t, got, 2)

	assert.Equal(t, "Bella Italia", got[0].Title)
	assert.Equal(t, "£20–30", got[0].Price)
	assert.Equal(t, "+441708987338", got[0].PhoneUnformatted)
	assert.InDelta(t, 51.4867006, got[0].Location.Lat, 1e-9)
	assert.Nil(t, got[0].State)
	require.NotNil(t, got[1].State)
	assert.Equal(t, "Essex", *got[1].State)
	assert.Empty(t, got[1].Website)

	assert.Equal(t, criteria(), f.gotInput)
	assert.Equal(t, 2, f.getCalls)
}

func TestSearch_StartFails(t *testing.T) {
	f := &fakeActor{startErr: &apify.APIError{StatusCode: 401, Body: "bad token"}}

	_, err := newGateway(f).Search(context.Background(), criteria())

	var jobErr *UpstreamJobError
	require.ErrorAs(t, err, &jobErr)
	assert.Empty(t, jobErr.RunID)
	var apiErr *apify.APIError
	require.ErrorAs(t, err, &apiErr)
	assert.Equal(t, 401, apiErr.StatusCode)
}

func TestSearch_RunDoesNotSucceed(t *testing.T) {
	f := &fakeActor{runs: []apify.Run{{ID: "run-1", Status: apify.StatusFailed, StatusMessage: "actor crashed"}}}

	_, err := newGateway(f).Search(context.Background(), criteria())

	var jobErr *UpstreamJobError
	require.ErrorAs(t, err, &jobErr)
	assert.Equal(t, "run-1", jobErr.RunID)
	assert.Equal(t, apify.StatusFailed, jobErr.Status)
	assert.Contains(t, err.Error(), "actor crashed")
	assert.Zero(t, f.listCalls)
}

func TestSearch_PollFails(t *testing.T) {
	f := &fakeActor{getErr: &apify.APIError{StatusCode: 404, Body: "not found"}}

	_, err := newGateway(f).Search(context.Background(), criteria())

	var jobErr *UpstreamJobError
	require.ErrorAs(t, err, &jobErr)
	assert.Equal(t, "run-1", jobErr.RunID)
}

func TestSearch_DatasetReadFails(t *testing.T) {
	f := &fakeActor{
		runs:    []apify.Run{{ID: "run-1", Status: apify.StatusSucceeded, DefaultDatasetID: "ds-1"}},
		listErr: errors.New("boom"),
	}

	_, err := newGateway(f).Search(context.Background(), criteria())

	var jobErr *UpstreamJobError
	require.ErrorAs(t, err, &jobErr)
	assert.Contains(t, err.Error(), "read dataset")
}

func TestSearch_DatasetReadRetriesTransientErrors(t *testing.T) {
	f := &fakeActor{
		runs:         []apify.Run{{ID: "run-1", Status: apify.StatusSucceeded, DefaultDatasetID: "ds-1"}},
		items:        `[{"title":"Bella Italia"}]`,
		listErr:      resilience.NewTransientError(errors.New("service unavailable"), 503),
		listFailures: 2,
	}
	gw := newGateway(f)
	gw.listRetry = resilience.RetryConfig{MaxAttempts: 3, InitialBackoff: time.Millisecond, MaxBackoff: time.Millisecond}

	got, err := gw.Search(context.Background(), criteria())
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, 3, f.listCalls)
}

func TestSearch_DatasetReadPermanentErrorIsNotRetried(t *testing.T) {
	f := &fakeActor{
		runs:    []apify.Run{{ID: "run-1", Status: apify.StatusSucceeded, DefaultDatasetID: "ds-1"}},
		listErr: &apify.APIError{StatusCode: 404, Body: "dataset not found"},
	}

	_, err := newGateway(f).Search(context.Background(), criteria())
	require.Error(t, err)
	assert.Equal(t, 1, f.listCalls)
}

func TestSearch_EmptyDataset(t *testing.T) {
	f := &fakeActor{
		runs:  []apify.Run{{ID: "run-1", Status: apify.StatusSucceeded, DefaultDatasetID: "ds-1"}},
		items: `[]`,
	}

	_, err := newGateway(f).Search(context.Background(), criteria())
	require.ErrorIs(t, err, ErrEmptyResult)

	var jobErr *UpstreamJobError
	assert.False(t, errors.As(err, &jobErr))
}

func TestSearch_AgainstHTTPServer(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("POST /acts/actor-1/runs", func(w http.ResponseWriter, r *http.Request) {
		var in model.SearchCriteria
		require.NoError(t, json.NewDecoder(r.Body).Decode(&in))
		assert.Equal(t, []string{"restaurant"}, in.Keywords)
		json.NewEncoder(w).Encode(map[string]any{"data": map[string]any{"id": "run-7", "status": "RUNNING"}})
	})
	mux.HandleFunc("GET /actor-runs/run-7", func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(map[string]any{"data": map[string]any{"id": "run-7", "status": "SUCCEEDED", "defaultDatasetId": "ds-7"}})
	})
	mux.HandleFunc("GET /datasets/ds-7/items", func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`[{"title":"Test Business","website":"https://testbusiness.com","location":{"lat":51.5074,"lng":-0.1278}}]`))
	})
	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)

	gw := NewGateway(apify.NewClient("tok", apify.WithBaseURL(srv.URL)), "actor-1", apify.WithPollInterval(time.Millisecond))
	got, err := gw.Search(context.Background(), criteria())
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, "Test Business", got[0].Title)
}
