package api

import (
	"github.com/sells-group/leadgen/internal/leadgen"
	"github.com/sells-group/leadgen/internal/model"
)

type businessPage struct {
	Businesses []model.PersistedBusiness `json:"businesses"`
	Limit      int                       `json:"limit"`
	Page       int                       `json:"page"`
	Total      int                       `json:"total"`
}

type commandResponse struct {
	Run           *model.SearchRun          `json:"run"`
	Businesses    []model.PersistedBusiness `json:"businesses"`
	EnrichErrors  []string                  `json:"enrichErrors"`
	PersistErrors []string                  `json:"persistErrors"`
}

func newCommandResponse(res *leadgen.CommandResult) commandResponse {
	out := commandResponse{
		Run:           res.Run,
		Businesses:    res.Businesses,
		EnrichErrors:  errorStrings(res.EnrichErrors),
		PersistErrors: errorStrings(res.PersistErrors),
	}
	if out.Businesses == nil {
		out.Businesses = []model.PersistedBusiness{}
	}
	return out
}

type batchItemResponse struct {
	Criteria      model.SearchCriteria     `json:"criteria"`
	RunID         string                   `json:"runId,omitempty"`
	Businesses    []model.EnrichedBusiness `json:"businesses"`
	Persisted     int                      `json:"persisted"`
	EnrichErrors  []string                 `json:"enrichErrors"`
	PersistErrors []string                 `json:"persistErrors"`
	Error         string                   `json:"error,omitempty"`
}

type batchResponse struct {
	Results []batchItemResponse `json:"results"`
}

func newBatchResponse(res *leadgen.BatchResult) batchResponse {
	grouped := res.Businesses()
	out := batchResponse{Results: make([]batchItemResponse, len(res.Items))}
	for i, it := range res.Items {
		item := batchItemResponse{
			Criteria:      it.Criteria,
			Businesses:    grouped[i],
			Persisted:     len(it.Persisted),
			EnrichErrors:  errorStrings(it.EnrichErrors),
			PersistErrors: errorStrings(it.PersistErrors),
		}
		if it.Run != nil {
			item.RunID = it.Run.ID
		}
		if it.Err != nil {
			item.Error = it.Err.Error()
		}
		out.Results[i] = item
	}
	return out
}

func errorStrings(errs []error) []string {
	out := make([]string, 0, len(errs))
	for _, err := range errs {
		out = append(out, err.Error())
	}
	return out
}
