package main

import (
	"os"
	"os/signal"
	"syscall"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"gopkg.in/yaml.v3"

	"github.com/sells-group/leadgen/internal/config"
	"github.com/sells-group/leadgen/internal/model"
)

var batchFile string

var batchCmd = &cobra.Command{
	Use:   "batch",
	Short: "Run several searches concurrently from a YAML file",
	Long: `Reads a YAML list of search criteria and runs them concurrently. Each
entry uses the same keys as the search API body, for example:

  - searchStringsArray: [restaurant]
    locationQuery: Grays, UK
    maxCrawledPlacesPerSearch: 5
  - searchStringsArray: [plumber]
    locationQuery: Leeds, UK
    maxCrawledPlacesPerSearch: 10`,
	RunE: func(cmd *cobra.Command, _ []string) error {
		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		criteria, err := readCriteriaFile(batchFile)
		if err != nil {
			return err
		}

		env, err := initEnv(ctx, config.ModeSearch)
		if err != nil {
			return err
		}
		defer env.Close()

		res, err := env.Service.ConcurrentSearches(ctx, criteria)
		if err != nil {
			return eris.Wrap(err, "batch")
		}

		failed := 0
		for _, it := range res.Items {
			if it.Err != nil {
				failed++
			}
		}
		zap.L().Info("batch complete",
			zap.Int("criteria", len(criteria)),
			zap.Int("failed", failed),
		)

		if asJSON, _ := cmd.Flags().GetBool("json"); asJSON {
			return printJSON(os.Stdout, res.Businesses())
		}
		formatBatchSummary(os.Stdout, res)
		return nil
	},
}

// readCriteriaFile parses a YAML list of search criteria.
func readCriteriaFile(path string) ([]model.SearchCriteria, error) {
	if path == "" {
		return nil, eris.New("batch: --file is required")
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, eris.Wrapf(err, "batch: read %s", path)
	}

	var criteria []model.SearchCriteria
	if err := yaml.Unmarshal(data, &criteria); err != nil {
		return nil, eris.Wrapf(err, "batch: parse %s", path)
	}
	if len(criteria) == 0 {
		return nil, eris.Errorf("batch: %s contains no criteria", path)
	}
	return criteria, nil
}

func init() {
	batchCmd.Flags().StringVarP(&batchFile, "file", "f", "", "YAML file with a list of search criteria")
	batchCmd.Flags().Bool("json", false, "print enriched businesses per criteria as JSON")
	rootCmd.AddCommand(batchCmd)
}
