package main

import (
	"fmt"
	"os/signal"
	"strings"
	"syscall"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/sells-group/buyer-universe/internal/importer"
)

var importCmd = &cobra.Command{
	Use:   "import",
	Short: "Import records from spreadsheets",
}

var importBuyersCmd = &cobra.Command{
	Use:   "buyers",
	Short: "Import buyers from a CSV, TSV or XLSX file into a tracker",
	Long: `Import buyers from a spreadsheet. Columns are mapped to buyer fields by
header alias, or by the model when --llm-map is set. Rows that match an
existing buyer by website domain or name update it; fields last written by a
higher-priority source (transcript, notes, website) are left alone.

Examples:
  import buyers --tracker 3f1c... --file buyers.csv
  import buyers --tracker 3f1c... --file universe.xlsx --sheet "Buyers"
  import buyers --tracker 3f1c... --file list.csv --alias "Sponsor=pe_firm_name"`,
	RunE: runImportBuyers,
}

func init() {
	f := importBuyersCmd.Flags()
	f.String("tracker", "", "tracker ID to import into (required)")
	f.String("file", "", "path to CSV, TSV or XLSX file (required)")
	f.String("sheet", "", "XLSX sheet name (default: first sheet)")
	f.Bool("llm-map", false, "map unrecognized headers with the model")
	f.StringSlice("alias", nil, "extra header alias as Header=field (repeatable)")
	f.Bool("dry-run", false, "parse and map without writing")
	_ = importBuyersCmd.MarkFlagRequired("tracker")
	_ = importBuyersCmd.MarkFlagRequired("file")

	importCmd.AddCommand(importBuyersCmd)
	rootCmd.AddCommand(importCmd)
}

func runImportBuyers(cmd *cobra.Command, _ []string) error {
	ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	trackerID, _ := cmd.Flags().GetString("tracker")
	path, _ := cmd.Flags().GetString("file")
	sheet, _ := cmd.Flags().GetString("sheet")
	useLLM, _ := cmd.Flags().GetBool("llm-map")
	rawAliases, _ := cmd.Flags().GetStringSlice("alias")
	dryRun, _ := cmd.Flags().GetBool("dry-run")

	aliases, err := parseAliases(rawAliases)
	if err != nil {
		return err
	}

	env, err := initService(ctx, useLLM)
	if err != nil {
		return err
	}
	defer env.Close()

	table, err := importer.ReadFile(ctx, path, importer.ReadOptions{SheetName: sheet})
	if err != nil {
		return eris.Wrap(err, "import: read file")
	}

	parsed, err := importer.Parse(ctx, table, env.Service.Mapper(useLLM, aliases))
	if err != nil {
		return eris.Wrap(err, "import: map columns")
	}

	log := zap.L().With(zap.String("command", "import"), zap.String("file", path))
	log.Info("columns mapped",
		zap.Strings("fields", parsed.Mapping.Fields()),
		zap.Int("rows", len(parsed.Records)),
		zap.Int("skipped", len(parsed.Skipped)),
	)

	if dryRun {
		for col, h := range table.Header {
			if field, ok := parsed.Mapping[col]; ok {
				fmt.Printf("  %-30s -> %s\n", h, field)
			}
		}
		fmt.Printf("%d rows ready, %d skipped\n", len(parsed.Records), len(parsed.Skipped))
		return nil
	}

	rep, err := env.Service.ImportBuyers(ctx, trackerID, parsed)
	if rep != nil {
		fmt.Printf("Created:   %d\n", rep.Created)
		fmt.Printf("Updated:   %d\n", rep.Updated)
		fmt.Printf("Skipped:   %d\n", len(rep.Skipped))
		for _, s := range rep.Skipped {
			fmt.Printf("  line %d: %s\n", s.Line, s.Reason)
		}
		if len(rep.Protected) > 0 {
			fmt.Printf("Protected: %d buyers kept higher-priority values\n", len(rep.Protected))
		}
	}
	return err
}

func parseAliases(raw []string) (map[string]string, error) {
	if len(raw) == 0 {
		return nil, nil
	}
	out := make(map[string]string, len(raw))
	for _, a := range raw {
		header, field, ok := strings.Cut(a, "=")
		header, field = strings.TrimSpace(header), strings.TrimSpace(field)
		if !ok || header == "" || field == "" {
			return nil, eris.Errorf("import: --alias must be Header=field (got %q)", a)
		}
		out[header] = field
	}
	return out, nil
}

