package main

import (
	"os"
	"strings"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/sells-group/leadgen/internal/config"
	"github.com/sells-group/leadgen/internal/export"
)

var exportCmd = &cobra.Command{
	Use:   "export",
	Short: "Export every stored business to xlsx or csv",
	RunE: func(cmd *cobra.Command, _ []string) error {
		ctx := cmd.Context()

		out, _ := cmd.Flags().GetString("out")
		format, _ := cmd.Flags().GetString("format")
		format, err := exportFormat(format, out)
		if err != nil {
			return err
		}

		env, err := initEnv(ctx, config.ModeStore)
		if err != nil {
			return err
		}
		defer env.Close()

		pageSize, _ := env.Service.Page(1<<30, 1)
		list, err := export.Collect(ctx, env.Service.GetBusinesses, pageSize)
		if err != nil {
			return err
		}

		switch format {
		case "xlsx":
			if out == "" || out == "-" {
				return eris.New("export: xlsx needs --out")
			}
			err = export.WriteXLSX(out, list)
		case "csv":
			err = writeCSVTo(out, func(f *os.File) error { return export.WriteCSV(f, list) })
		}
		if err != nil {
			return err
		}

		zap.L().Info("export complete",
			zap.Int("businesses", len(list)),
			zap.String("format", format),
			zap.String("out", out),
		)
		return nil
	},
}

// exportFormat resolves the output format from the flag or the file extension.
func exportFormat(format, out string) (string, error) {
	if format == "" {
		switch {
		case strings.HasSuffix(strings.ToLower(out), ".xlsx"):
			format = "xlsx"
		default:
			format = "csv"
		}
	}
	format = strings.ToLower(format)
	if format != "xlsx" && format != "csv" {
		return "", eris.Errorf("export: unsupported format %q", format)
	}
	return format, nil
}

func writeCSVTo(out string, write func(*os.File) error) error {
	if out == "" || out == "-" {
		return write(os.Stdout)
	}
	f, err := os.Create(out)
	if err != nil {
		return eris.Wrapf(err, "export: create %s", out)
	}
	if err := write(f); err != nil {
		_ = f.Close()
		return err
	}
	return eris.Wrap(f.Close(), "export: close file")
}

func init() {
	exportCmd.Flags().StringP("out", "o", "", "output file (csv defaults to stdout)")
	exportCmd.Flags().String("format", "", "xlsx or csv (default from --out extension)")
	rootCmd.AddCommand(exportCmd)
}
