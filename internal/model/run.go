package model

import "time"

// SearchRunStatus represents the state of a search command.
type SearchRunStatus string

const (
	SearchRunRunning  SearchRunStatus = "running"
	SearchRunComplete SearchRunStatus = "complete"
	SearchRunFailed   SearchRunStatus = "failed"
)

// SearchRun records one search+persist command so partial persistence
// failures stay visible after the request returns.
type SearchRun struct {
	ID        string          `json:"id"`
	Criteria  SearchCriteria  `json:"criteria"`
	Status    SearchRunStatus `json:"status"`
	Found     int             `json:"found"`
	Persisted int             `json:"persisted"`
	Failed    int             `json:"failed"`
	Error     string          `json:"error,omitempty"`
	CreatedAt time.Time       `json:"createdAt"`
	UpdatedAt time.Time       `json:"updatedAt"`
}
