package main

import (
	"context"
	"encoding/csv"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"syscall"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/sells-group/buyer-universe/internal/model"
	"github.com/sells-group/buyer-universe/internal/scorer"
	"github.com/sells-group/buyer-universe/internal/universe"
)

var scoreCmd = &cobra.Command{
	Use:   "score",
	Short: "Score buyers against deals",
	Long: `Score buyer/deal pairs with the deterministic fit engine and persist the
results. Existing pass/approve flags are preserved on rescore.

Examples:
  # Rank every buyer in the tracker against one deal
  score deal 3f1c...

  # Score one buyer against every deal and export to CSV
  score buyer 9a2e... --format csv --output buyer.csv

  # Rescore a single pair
  score pair <buyer-id> <deal-id>`,
}

var scoreDealCmd = &cobra.Command{
	Use:   "deal <deal-id>",
	Short: "Score every buyer in the deal's tracker against the deal",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return runScoreBatch(cmd, func(ctx context.Context, svc *universe.Service) (*universe.BatchReport, map[string]string, error) {
			rep, err := svc.ScoreDeal(ctx, args[0])
			if rep == nil {
				return nil, nil, err
			}
			names, nerr := buyerNames(ctx, svc, rep.TrackerID)
			if nerr != nil {
				zap.L().Warn("score: load buyer names", zap.Error(nerr))
			}
			return rep, names, err
		}, func(r *scorer.Result) string { return r.BuyerID })
	},
}

var scoreBuyerCmd = &cobra.Command{
	Use:   "buyer <buyer-id>",
	Short: "Score one buyer against every deal in its tracker",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return runScoreBatch(cmd, func(ctx context.Context, svc *universe.Service) (*universe.BatchReport, map[string]string, error) {
			rep, err := svc.ScoreBuyer(ctx, args[0])
			if rep == nil {
				return nil, nil, err
			}
			names, nerr := dealNames(ctx, svc, rep.TrackerID)
			if nerr != nil {
				zap.L().Warn("score: load deal names", zap.Error(nerr))
			}
			return rep, names, err
		}, func(r *scorer.Result) string { return r.DealID })
	},
}

var scorePairCmd = &cobra.Command{
	Use:   "pair <buyer-id> <deal-id>",
	Short: "Score a single buyer/deal pair",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		env, err := initService(ctx, false)
		if err != nil {
			return err
		}
		defer env.Close()

		res, err := env.Service.ScorePair(ctx, args[0], args[1])
		if err != nil {
			return err
		}
		printPairResult(os.Stdout, res)
		return nil
	},
}

func init() {
	for _, c := range []*cobra.Command{scoreDealCmd, scoreBuyerCmd} {
		f := c.Flags()
		f.String("output", "", "output file path (default: stdout)")
		f.String("format", "table", "output format: table or csv")
	}
	scoreCmd.AddCommand(scoreDealCmd, scoreBuyerCmd, scorePairCmd)
	rootCmd.AddCommand(scoreCmd)
}

type batchFunc func(ctx context.Context, svc *universe.Service) (*universe.BatchReport, map[string]string, error)

func runScoreBatch(cmd *cobra.Command, run batchFunc, subject func(*scorer.Result) string) error {
	ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	outputPath, _ := cmd.Flags().GetString("output")
	format, _ := cmd.Flags().GetString("format")
	if format != "table" && format != "csv" {
		return eris.Errorf("score: --format must be table or csv (got %q)", format)
	}

	env, err := initService(ctx, false)
	if err != nil {
		return err
	}
	defer env.Close()

	rep, names, runErr := run(ctx, env.Service)
	if rep == nil {
		return runErr
	}

	rows := scoreRows(rep.Results, names, subject)
	if err := outputScoreRows(rows, format, outputPath); err != nil {
		return err
	}
	printBatchSummary(os.Stderr, rep)
	return runErr
}

// scoreRow is one output line of a batch.
type scoreRow struct {
	Rank      int
	ID        string
	Name      string
	Status    model.ScoreStatus
	Composite *int
	Subscores model.Subscores
	Detail    string
}

func scoreRows(results []*scorer.Result, names map[string]string, subject func(*scorer.Result) string) []scoreRow {
	rows := make([]scoreRow, 0, len(results))
	rank := 0
	for _, r := range results {
		id := subject(r)
		row := scoreRow{
			ID:        id,
			Name:      names[id],
			Status:    r.Status,
			Composite: r.Composite,
			Subscores: r.Subscores,
		}
		if r.Status == model.StatusScored {
			rank++
			row.Rank = rank
		}
		switch {
		case len(r.Disqualifications) > 0:
			codes := make([]string, len(r.Disqualifications))
			for i, d := range r.Disqualifications {
				codes[i] = d.Code
			}
			row.Detail = strings.Join(codes, ",")
		case len(r.MissingCriteria) > 0:
			row.Detail = "missing " + strings.Join(r.MissingCriteria, ",")
		}
		rows = append(rows, row)
	}
	return rows
}

func outputScoreRows(rows []scoreRow, format, outputPath string) error {
	var w io.Writer = os.Stdout
	if outputPath != "" {
		f, err := os.Create(outputPath)
		if err != nil {
			return eris.Wrapf(err, "score: create output file %s", outputPath)
		}
		defer f.Close() //nolint:errcheck
		w = f
	}

	switch format {
	case "csv":
		return writeScoreCSV(w, rows)
	case "table":
		return writeScoreTable(w, rows)
	default:
		return eris.Errorf("score: unsupported format %q", format)
	}
}

func writeScoreCSV(w io.Writer, rows []scoreRow) error {
	cw := csv.NewWriter(w)

	header := []string{"rank", "id", "name", "status", "composite", "size", "service", "geography", "buyer_type", "data_quality", "detail"}
	if err := cw.Write(header); err != nil {
		return eris.Wrap(err, "score: write CSV header")
	}

	for _, r := range rows {
		row := []string{
			rankString(r.Rank),
			r.ID,
			r.Name,
			string(r.Status),
			compositeString(r.Composite),
			formatPoints(r.Subscores.Size),
			formatPoints(r.Subscores.Service),
			formatPoints(r.Subscores.Geography),
			formatPoints(r.Subscores.BuyerType),
			formatPoints(r.Subscores.DataQuality),
			r.Detail,
		}
		if err := cw.Write(row); err != nil {
			return eris.Wrap(err, "score: write CSV row")
		}
	}
	cw.Flush()
	return eris.Wrap(cw.Error(), "score: flush CSV")
}

func writeScoreTable(w io.Writer, rows []scoreRow) error {
	header := fmt.Sprintf("%-4s %-36s %-17s %5s %6s %6s %6s %6s %6s  %s\n",
		"Rank", "Name", "Status", "Score", "Size", "Svc", "Geo", "Type", "Data", "Detail")
	if _, err := fmt.Fprint(w, header); err != nil {
		return eris.Wrap(err, "score: write table header")
	}
	if _, err := fmt.Fprintln(w, strings.Repeat("-", 110)); err != nil {
		return eris.Wrap(err, "score: write table separator")
	}

	for _, r := range rows {
		name := r.Name
		if name == "" {
			name = r.ID
		}
		if len(name) > 36 {
			name = name[:33] + "..."
		}
		line := fmt.Sprintf("%-4s %-36s %-17s %5s %6.1f %6.1f %6.1f %6.1f %6.1f  %s\n",
			rankString(r.Rank), name, r.Status, compositeString(r.Composite),
			r.Subscores.Size, r.Subscores.Service, r.Subscores.Geography,
			r.Subscores.BuyerType, r.Subscores.DataQuality, r.Detail)
		if _, err := fmt.Fprint(w, line); err != nil {
			return eris.Wrap(err, "score: write table row")
		}
	}
	return nil
}

func printBatchSummary(w io.Writer, rep *universe.BatchReport) {
	fmt.Fprintf(w, "\n--- Summary ---\n")
	fmt.Fprintf(w, "Scored:        %d\n", rep.Scored)
	fmt.Fprintf(w, "Disqualified:  %d\n", rep.Disqualified)
	fmt.Fprintf(w, "Insufficient:  %d\n", rep.Insufficient)
	if len(rep.Failures) > 0 {
		fmt.Fprintf(w, "Failures:      %d\n", len(rep.Failures))
		for _, f := range rep.Failures {
			fmt.Fprintf(w, "  %-36s %s\n", f.ItemID, f.Error)
		}
	}
}

func printPairResult(w io.Writer, r *scorer.Result) {
	fmt.Fprintf(w, "Buyer:     %s\n", r.BuyerID)
	fmt.Fprintf(w, "Deal:      %s\n", r.DealID)
	fmt.Fprintf(w, "Status:    %s\n", r.Status)
	fmt.Fprintf(w, "Composite: %s\n", compositeString(r.Composite))
	fmt.Fprintf(w, "  %-14s %.1f\n", "size", r.Subscores.Size)
	fmt.Fprintf(w, "  %-14s %.1f\n", "service", r.Subscores.Service)
	fmt.Fprintf(w, "  %-14s %.1f\n", "geography", r.Subscores.Geography)
	fmt.Fprintf(w, "  %-14s %.1f\n", "buyer_type", r.Subscores.BuyerType)
	fmt.Fprintf(w, "  %-14s %.1f\n", "data_quality", r.Subscores.DataQuality)
	for _, d := range r.Disqualifications {
		fmt.Fprintf(w, "Disqualified: %s (%s)\n", d.Code, d.Detail)
	}
	if len(r.MissingCriteria) > 0 {
		fmt.Fprintf(w, "Missing criteria: %s\n", strings.Join(r.MissingCriteria, ", "))
	}
	for _, reason := range r.Reasons {
		fmt.Fprintf(w, "  - %s\n", reason)
	}
}

func buyerNames(ctx context.Context, svc *universe.Service, trackerID string) (map[string]string, error) {
	buyers, err := svc.Store().ListBuyers(ctx, trackerID)
	if err != nil {
		return nil, err
	}
	names := make(map[string]string, len(buyers))
	for _, b := range buyers {
		names[b.ID] = b.Name
	}
	return names, nil
}

func dealNames(ctx context.Context, svc *universe.Service, trackerID string) (map[string]string, error) {
	deals, err := svc.Store().ListDeals(ctx, trackerID)
	if err != nil {
		return nil, err
	}
	names := make(map[string]string, len(deals))
	for _, d := range deals {
		names[d.ID] = d.Name
	}
	return names, nil
}

func rankString(rank int) string {
	if rank == 0 {
		return "-"
	}
	return strconv.Itoa(rank)
}

func compositeString(c *int) string {
	if c == nil {
		return "-"
	}
	return strconv.Itoa(*c)
}

func formatPoints(v float64) string {
	return strconv.FormatFloat(v, 'f', 1, 64)
}
