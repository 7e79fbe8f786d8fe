package main

import (
	"encoding/json"
	"fmt"
	"io"
	"strings"
	"text/tabwriter"

	"github.com/sells-group/leadgen/internal/leadgen"
	"github.com/sells-group/leadgen/internal/model"
)

const timeLayout = "2006-01-02 15:04"

func printJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func shortID(id string) string {
	if len(id) > 8 {
		return id[:8]
	}
	return id
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n-3] + "..."
}

func formatBusinessList(w io.Writer, list []model.PersistedBusiness) {
	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "ID\tTITLE\tWEBSITE\tPHONE\tEMAILS\tCREATED")
	for _, b := range list {
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%s\t%s\n",
			shortID(b.ID),
			truncate(b.Title, 40),
			truncate(b.Website, 40),
			b.PhoneUnformatted,
			strings.Join(b.Addresses(), ","),
			b.CreatedAt.Format(timeLayout),
		)
	}
	tw.Flush()
}

func formatRunsList(w io.Writer, runs []model.SearchRun) {
	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "ID\tKEYWORDS\tLOCATION\tSTATUS\tFOUND\tSAVED\tFAILED\tCREATED")
	for _, r := range runs {
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%d\t%d\t%d\t%s\n",
			shortID(r.ID),
			truncate(strings.Join(r.Criteria.Keywords, ","), 30),
			truncate(r.Criteria.Location, 30),
			r.Status,
			r.Found,
			r.Persisted,
			r.Failed,
			r.CreatedAt.Format(timeLayout),
		)
	}
	tw.Flush()
}

func formatRunDetail(w io.Writer, r *model.SearchRun) {
	fmt.Fprintf(w, "Run:       %s\n", r.ID)
	fmt.Fprintf(w, "Status:    %s\n", r.Status)
	fmt.Fprintf(w, "Keywords:  %s\n", strings.Join(r.Criteria.Keywords, ", "))
	fmt.Fprintf(w, "Location:  %s\n", r.Criteria.Location)
	fmt.Fprintf(w, "Found:     %d\n", r.Found)
	fmt.Fprintf(w, "Persisted: %d\n", r.Persisted)
	fmt.Fprintf(w, "Failed:    %d\n", r.Failed)
	fmt.Fprintf(w, "Created:   %s\n", r.CreatedAt.Format(timeLayout))
	fmt.Fprintf(w, "Updated:   %s\n", r.UpdatedAt.Format(timeLayout))
	if r.Error != "" {
		fmt.Fprintf(w, "Error:     %s\n", r.Error)
	}
}

func formatErrors(w io.Writer, label string, errs []error) {
	if len(errs) == 0 {
		return
	}
	fmt.Fprintf(w, "%s (%d):\n", label, len(errs))
	for _, err := range errs {
		fmt.Fprintf(w, "  - %v\n", err)
	}
}

func formatBatchSummary(w io.Writer, res *leadgen.BatchResult) {
	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "#\tKEYWORDS\tLOCATION\tFOUND\tSAVED\tLOOKUP ERRS\tRESULT")
	for i, it := range res.Items {
		result := "ok"
		if it.Err != nil {
			result = truncate(it.Err.Error(), 60)
		} else if len(it.PersistErrors) > 0 {
			result = fmt.Sprintf("%d failed to persist", len(it.PersistErrors))
		}
		fmt.Fprintf(tw, "%d\t%s\t%s\t%d\t%d\t%d\t%s\n",
			i+1,
			truncate(strings.Join(it.Criteria.Keywords, ","), 30),
			truncate(it.Criteria.Location, 30),
			len(it.Businesses),
			len(it.Persisted),
			len(it.EnrichErrors),
			result,
		)
	}
	tw.Flush()
}
