package main

import (
	"bytes"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/sells-group/leadgen/internal/leadgen"
	"github.com/sells-group/leadgen/internal/model"
)

var fixedTime = time.Date(2026, 3, 1, 9, 15, 0, 0, time.UTC)

func TestFormatBusinessList(t *testing.T) {
	list := []model.PersistedBusiness{
		{
			ID:               "3f2a9c1e-0000-4000-8000-000000000001",
			Title:            "Lakeside Diner",
			Website:          "https://lakesidediner.co.uk",
			PhoneUnformatted: "+441375000001",
			Emails: []model.Email{
				{Address: "info@lakesidediner.co.uk"},
				{Address: "events@lakesidediner.co.uk"},
			},
			CreatedAt: fixedTime,
		},
		{
			ID:        "b2",
			Title:     "The Bull",
			CreatedAt: fixedTime,
		},
	}

	var buf bytes.Buffer
	formatBusinessList(&buf, list)

	out := buf.String()
	assert.Contains(t, out, "TITLE")
	assert.Contains(t, out, "3f2a9c1e")
	assert.NotContains(t, out, "3f2a9c1e-0000")
	assert.Contains(t, out, "info@lakesidediner.co.uk,events@lakesidediner.co.uk")
	assert.Contains(t, out, "The Bull")
	assert.Contains(t, out, "2026-03-01 09:15")
}

func TestFormatRunsList(t *testing.T) {
	runs := []model.SearchRun{
		{
			ID:        "abc12345-6789-0000-0000-000000000000",
			Criteria:  model.SearchCriteria{Keywords: []string{"restaurant"}, Location: "Grays, UK"},
			Status:    model.SearchRunComplete,
			Found:     5,
			Persisted: 4,
			Failed:    1,
			CreatedAt: fixedTime,
		},
		{
			ID:        "def12345-6789-0000-0000-000000000000",
			Criteria:  model.SearchCriteria{Keywords: []string{"plumber", "electrician"}, Location: "Leeds"},
			Status:    model.SearchRunFailed,
			CreatedAt: fixedTime.Add(-time.Hour),
		},
	}

	var buf bytes.Buffer
	formatRunsList(&buf, runs)

	out := buf.String()
	assert.Contains(t, out, "STATUS")
	assert.Contains(t, out, "abc12345")
	assert.Contains(t, out, "restaurant")
	assert.Contains(t, out, "Grays, UK")
	assert.Contains(t, out, "complete")
	assert.Contains(t, out, "plumber,electrician")
	assert.Contains(t, out, "failed")
}

func TestFormatRunDetail(t *testing.T) {
	run := &model.SearchRun{
		ID:        "abc12345-6789-0000-0000-000000000000",
		Criteria:  model.SearchCriteria{Keywords: []string{"restaurant", "cafe"}, Location: "Grays, UK"},
		Status:    model.SearchRunComplete,
		Found:     5,
		Persisted: 3,
		Failed:    2,
		Error:     "2 of 5 businesses failed to persist",
		CreatedAt: fixedTime,
		UpdatedAt: fixedTime.Add(time.Minute),
	}

	var buf bytes.Buffer
	formatRunDetail(&buf, run)

	out := buf.String()
	assert.Contains(t, out, "abc12345-6789-0000-0000-000000000000")
	assert.Contains(t, out, "restaurant, cafe")
	assert.Contains(t, out, "Persisted: 3")
	assert.Contains(t, out, "Error:     2 of 5 businesses failed to persist")
	assert.Contains(t, out, "2026-03-01 09:16")
}

func TestFormatRunDetail_NoError(t *testing.T) {
	var buf bytes.Buffer
	formatRunDetail(&buf, &model.SearchRun{ID: "r1", Status: model.SearchRunRunning})
	assert.NotContains(t, buf.String(), "Error:")
}

func TestFormatErrors(t *testing.T) {
	var buf bytes.Buffer
	formatErrors(&buf, "Persistence errors", nil)
	assert.Empty(t, buf.String())

	formatErrors(&buf, "Persistence errors", []error{errors.New("disk full"), errors.New("timeout")})
	out := buf.String()
	assert.Contains(t, out, "Persistence errors (2):")
	assert.Contains(t, out, "  - disk full")
	assert.Contains(t, out, "  - timeout")
}

func TestFormatBatchSummary(t *testing.T) {
	res := &leadgen.BatchResult{Items: []leadgen.BatchItem{
		{
			Criteria:   model.SearchCriteria{Keywords: []string{"restaurant"}, Location: "Grays, UK"},
			Businesses: make([]model.EnrichedBusiness, 3),
			Persisted:  make([]model.PersistedBusiness, 3),
		},
		{
			Criteria:      model.SearchCriteria{Keywords: []string{"cafe"}, Location: "Leeds"},
			Businesses:    make([]model.EnrichedBusiness, 2),
			Persisted:     make([]model.PersistedBusiness, 1),
			PersistErrors: []error{errors.New("dup")},
		},
		{
			Criteria: model.SearchCriteria{Location: "Nowhere"},
			Err:      errors.New("leadgen: invalid criteria: at least one keyword is required"),
		},
	}}

	var buf bytes.Buffer
	formatBatchSummary(&buf, res)

	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	assert.Len(t, lines, 4)
	assert.Contains(t, lines[1], "ok")
	assert.Contains(t, lines[2], "1 failed to persist")
	assert.Contains(t, lines[3], "invalid criteria")
}

func TestTruncate(t *testing.T) {
	assert.Equal(t, "short", truncate("short", 10))
	assert.Equal(t, "abcdefg...", truncate("abcdefghijklmnop", 10))
}

func TestShortID(t *testing.T) {
	assert.Equal(t, "abc", shortID("abc"))
	assert.Equal(t, "abc12345", shortID("abc12345-6789"))
}
