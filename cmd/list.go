package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/sells-group/leadgen/internal/config"
)

var listCmd = &cobra.Command{
	Use:   "list",
	Short: "List stored businesses, newest first",
	RunE: func(cmd *cobra.Command, _ []string) error {
		ctx := cmd.Context()

		env, err := initEnv(ctx, config.ModeStore)
		if err != nil {
			return err
		}
		defer env.Close()

		limit, _ := cmd.Flags().GetInt("limit")
		page, _ := cmd.Flags().GetInt("page")

		list, err := env.Service.GetBusinesses(ctx, limit, page)
		if err != nil {
			return err
		}

		if asJSON, _ := cmd.Flags().GetBool("json"); asJSON {
			return printJSON(os.Stdout, list)
		}
		if len(list) == 0 {
			fmt.Fprintln(os.Stderr, "No businesses found.")
			return nil
		}
		formatBusinessList(os.Stdout, list)
		return nil
	},
}

func init() {
	listCmd.Flags().Int("limit", 0, "page size (default from config)")
	listCmd.Flags().Int("page", 1, "1-based page number")
	listCmd.Flags().Bool("json", false, "print businesses as JSON")
	rootCmd.AddCommand(listCmd)
}
