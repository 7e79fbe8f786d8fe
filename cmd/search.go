package main

import (
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/sells-group/leadgen/internal/config"
	"github.com/sells-group/leadgen/internal/model"
)

var searchCmd = &cobra.Command{
	Use:   "search",
	Short: "Search for businesses, look up their emails and store them",
	Example: `  leadgen search --keyword restaurant --location "Grays, UK" --max-results 5
  leadgen search -k plumber -k electrician -l Leeds -n 20 --website withWebsite`,
	RunE: func(cmd *cobra.Command, _ []string) error {
		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		criteria, err := criteriaFromFlags(cmd)
		if err != nil {
			return err
		}

		env, err := initEnv(ctx, config.ModeSearch)
		if err != nil {
			return err
		}
		defer env.Close()

		res, err := env.Service.SearchBusiness(ctx, criteria)
		if err != nil {
			return err
		}

		zap.L().Info("search complete",
			zap.String("run_id", res.Run.ID),
			zap.Int("found", res.Run.Found),
			zap.Int("persisted", res.Run.Persisted),
			zap.Int("failed", res.Run.Failed),
		)

		if asJSON, _ := cmd.Flags().GetBool("json"); asJSON {
			return printJSON(os.Stdout, res.Businesses)
		}
		formatBusinessList(os.Stdout, res.Businesses)
		formatErrors(os.Stderr, "Email lookup errors", res.EnrichErrors)
		formatErrors(os.Stderr, "Persistence errors", res.PersistErrors)
		return nil
	},
}

// criteriaFromFlags builds search criteria from the search flags. Defaults
// and validation are applied by the service.
func criteriaFromFlags(cmd *cobra.Command) (model.SearchCriteria, error) {
	f := cmd.Flags()
	keywords, err := f.GetStringSlice("keyword")
	if err != nil {
		return model.SearchCriteria{}, err
	}
	location, _ := f.GetString("location")
	maxResults, _ := f.GetInt("max-results")
	lang, _ := f.GetString("language")
	deeper, _ := f.GetBool("deeper")
	match, _ := f.GetString("match")
	minRating, _ := f.GetString("min-rating")
	skipClosed, _ := f.GetBool("skip-closed")
	website, _ := f.GetString("website")

	return model.SearchCriteria{
		Keywords:         keywords,
		Location:         location,
		MaxResults:       maxResults,
		Language:         lang,
		DeeperCityScrape: deeper,
		MatchMode:        model.MatchMode(match),
		MinRating:        minRating,
		SkipClosed:       skipClosed,
		WebsiteFilter:    model.WebsiteFilter(website),
	}, nil
}

func addSearchFlags(cmd *cobra.Command) {
	f := cmd.Flags()
	f.StringSliceP("keyword", "k", nil, "search keyword (repeatable)")
	f.StringP("location", "l", "", "free-text location, e.g. \"Grays, UK\"")
	f.IntP("max-results", "n", 10, "max places per keyword")
	f.String("language", model.DefaultLanguage, "result language tag")
	f.Bool("deeper", false, "enable deeper city scrape")
	f.String("match", string(model.MatchAll), "title matching mode (all, only_includes, only_exact)")
	f.String("min-rating", "", "minimum star rating, e.g. \"4\" or \"4.5\"")
	f.Bool("skip-closed", false, "skip permanently closed places")
	f.String("website", string(model.WebsiteAllPlaces), "website filter (allPlaces, withWebsite, withoutWebsite)")
}

func init() {
	addSearchFlags(searchCmd)
	searchCmd.Flags().Bool("json", false, "print stored businesses as JSON")
	rootCmd.AddCommand(searchCmd)
}
