package main

import (
	"fmt"
	"io"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"

	"github.com/sells-group/buyer-universe/internal/provenance"
	"github.com/sells-group/buyer-universe/internal/universe"
)

var extractCmd = &cobra.Command{
	Use:   "extract",
	Short: "Extract fields from a transcript, notes or website text",
	Long: `Run the model over a document and merge the extracted fields into a buyer
or deal through the source priority gate. Fields last written by a
higher-priority source are reported as protected and left unchanged.

With --source website and no --file, the record's website (or --url) is
fetched directly, falling back to the Jina Reader.

Examples:
  extract buyer 9a2e... --source transcript --file call.txt
  cat notes.md | extract deal 3f1c... --source notes --file -
  extract buyer 9a2e... --source website
  extract deal 3f1c... --source website --url lonestarair.com/about`,
}

var extractBuyerCmd = &cobra.Command{
	Use:   "buyer <buyer-id>",
	Short: "Extract buyer fields",
	Args:  cobra.ExactArgs(1),
	RunE:  runExtract(false),
}

var extractDealCmd = &cobra.Command{
	Use:   "deal <deal-id>",
	Short: "Extract deal fields",
	Args:  cobra.ExactArgs(1),
	RunE:  runExtract(true),
}

func init() {
	for _, c := range []*cobra.Command{extractBuyerCmd, extractDealCmd} {
		f := c.Flags()
		f.String("source", "notes", "source type: transcript, notes, website")
		f.String("file", "", "text file to extract from, or - for stdin")
		f.String("url", "", "page to fetch for --source website (default: the record's website)")
	}
	extractCmd.AddCommand(extractBuyerCmd, extractDealCmd)
	rootCmd.AddCommand(extractCmd)
}

func runExtract(deal bool) func(*cobra.Command, []string) error {
	return func(cmd *cobra.Command, args []string) error {
		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		rawSource, _ := cmd.Flags().GetString("source")
		path, _ := cmd.Flags().GetString("file")
		pageURL, _ := cmd.Flags().GetString("url")

		src, err := provenance.ParseSource(rawSource)
		if err != nil {
			return err
		}
		fetch := src == provenance.SourceWebsite && path == ""
		if !fetch && path == "" {
			return eris.New("extract: --file is required unless --source is website")
		}
		if pageURL != "" && !fetch {
			return eris.New("extract: --url only applies to --source website without --file")
		}

		var text string
		if !fetch {
			if text, err = readTextArg(path); err != nil {
				return err
			}
			if strings.TrimSpace(text) == "" {
				return eris.Errorf("extract: %s is empty", path)
			}
		}

		env, err := initService(ctx, true)
		if err != nil {
			return err
		}
		defer env.Close()

		var rep *universe.UpdateReport
		switch {
		case fetch && deal:
			rep, err = env.Service.ExtractDealWebsite(ctx, args[0], pageURL)
		case fetch:
			rep, err = env.Service.ExtractBuyerWebsite(ctx, args[0], pageURL)
		case deal:
			rep, err = env.Service.ExtractDeal(ctx, args[0], src, text)
		default:
			rep, err = env.Service.ExtractBuyer(ctx, args[0], src, text)
		}
		if err != nil {
			return err
		}
		printUpdateReport(os.Stdout, rep)
		return nil
	}
}

func printUpdateReport(w io.Writer, rep *universe.UpdateReport) {
	fmt.Fprintf(w, "Source:    %s\n", rep.Source)
	if rep.Page != nil {
		fmt.Fprintf(w, "Page:      %s (%s)\n", rep.Page.URL, rep.Page.Source)
	}
	fmt.Fprintf(w, "Applied:   %s\n", joinOrDash(rep.Applied))
	fmt.Fprintf(w, "Protected: %s\n", joinOrDash(rep.Protected))
	fmt.Fprintf(w, "Rejected:  %s\n", joinOrDash(rep.Rejected))
	if rep.Usage.InputTokens > 0 {
		fmt.Fprintf(w, "Tokens:    %d in, %d out ($%.4f)\n", rep.Usage.InputTokens, rep.Usage.OutputTokens, rep.Usage.Cost)
	}
}

// readTextArg returns the contents of path, or stdin when path is "-".
func readTextArg(path string) (string, error) {
	if path == "-" {
		data, err := io.ReadAll(os.Stdin)
		if err != nil {
			return "", eris.Wrap(err, "read stdin")
		}
		return string(data), nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return "", eris.Wrapf(err, "read %s", path)
	}
	return string(data), nil
}

func joinOrDash(s []string) string {
	if len(s) == 0 {
		return "-"
	}
	return strings.Join(s, ", ")
}
