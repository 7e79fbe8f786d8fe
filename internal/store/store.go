// Package store persists businesses, their locations and emails, and search
// run records.
package store

import (
	"context"
	"errors"

	"github.com/sells-group/leadgen/internal/model"
)

// ErrNotFound is returned when a business or run id does not exist.
var ErrNotFound = errors.New("store: not found")

// BusinessFilter specifies criteria for listing businesses.
type BusinessFilter struct {
	Limit     int   `json:"limit,omitempty"`
	Offset    int   `json:"offset,omitempty"`
	HasEmails *bool `json:"has_emails,omitempty"`
}

// RunFilter specifies criteria for listing search runs.
type RunFilter struct {
	Status model.SearchRunStatus `json:"status,omitempty"`
	Limit  int                   `json:"limit,omitempty"`
	Offset int                   `json:"offset,omitempty"`
}

// Store defines the persistence interface for lead data.
type Store interface {
	// Businesses
	SaveBusiness(ctx context.Context, b model.EnrichedBusiness) (*model.PersistedBusiness, error)
	ListBusinesses(ctx context.Context, filter BusinessFilter) ([]model.PersistedBusiness, error)
	GetBusiness(ctx context.Context, id string) (*model.PersistedBusiness, error)
	CountBusinesses(ctx context.Context) (int, error)
	DeleteBusiness(ctx context.Context, id string) error

	// Search runs
	CreateRun(ctx context.Context, criteria model.SearchCriteria) (*model.SearchRun, error)
	UpdateRun(ctx context.Context, run *model.SearchRun) error
	GetRun(ctx context.Context, id string) (*model.SearchRun, error)
	ListRuns(ctx context.Context, filter RunFilter) ([]model.SearchRun, error)

	// Lifecycle
	Migrate(ctx context.Context) error
	Ping(ctx context.Context) error
	Close() error
}

const (
	defaultListLimit = 100
)

func listLimit(n int) int {
	if n <= 0 {
		return defaultListLimit
	}
	return n
}

// newPersisted builds the stored view of b from freshly generated ids.
func newPersisted(b model.EnrichedBusiness, businessID, locationID string, emailIDs []string) *model.PersistedBusiness {
	p := &model.PersistedBusiness{
		ID:               businessID,
		Title:            b.Title,
		Price:            b.Price,
		Website:          b.Website,
		PhoneUnformatted: b.PhoneUnformatted,
		State:            b.State,
		HasEmails:        b.HasEmails,
		Location:         model.Location{ID: locationID, Lat: b.Location.Lat, Lng: b.Location.Lng},
		Emails:           make([]model.Email, len(b.Emails)),
	}
	for i, addr := range b.Emails {
		p.Emails[i] = model.Email{ID: emailIDs[i], Address: addr, BusinessID: businessID}
	}
	return p
}
