package main

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"sort"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"

	"github.com/sells-group/buyer-universe/internal/universe"
)

var provenanceCmd = &cobra.Command{
	Use:   "provenance",
	Short: "Show which source supplied each field of a buyer or deal",
	RunE: func(cmd *cobra.Command, _ []string) error {
		ctx := cmd.Context()

		buyerID, _ := cmd.Flags().GetString("buyer")
		dealID, _ := cmd.Flags().GetString("deal")
		asJSON, _ := cmd.Flags().GetBool("json")
		if (buyerID == "") == (dealID == "") {
			return eris.New("provenance: set exactly one of --buyer or --deal")
		}

		env, err := initService(ctx, false)
		if err != nil {
			return err
		}
		defer env.Close()

		var view *universe.ProvenanceView
		if buyerID != "" {
			view, err = env.Service.BuyerProvenance(ctx, buyerID)
		} else {
			view, err = env.Service.DealProvenance(ctx, dealID)
		}
		if err != nil {
			return err
		}

		if asJSON {
			enc := json.NewEncoder(os.Stdout)
			enc.SetIndent("", "  ")
			return enc.Encode(view)
		}
		printProvenance(os.Stdout, view)
		return nil
	},
}

func init() {
	f := provenanceCmd.Flags()
	f.String("buyer", "", "buyer ID")
	f.String("deal", "", "deal ID")
	f.Bool("json", false, "print the full view as JSON")
	rootCmd.AddCommand(provenanceCmd)
}

func printProvenance(w io.Writer, v *universe.ProvenanceView) {
	fields := make([]string, 0, len(v.Effective))
	for f := range v.Effective {
		fields = append(fields, f)
	}
	sort.Strings(fields)

	fmt.Fprintf(w, "%-28s %s\n", "Field", "Source")
	for _, f := range fields {
		fmt.Fprintf(w, "%-28s %s\n", f, v.Effective[f])
	}

	fmt.Fprintf(w, "\nHistory (%d entries)\n", len(v.Entries))
	for _, e := range v.Entries {
		fmt.Fprintf(w, "  %s  %-10s %s\n", e.Timestamp.Format("2006-01-02 15:04"), e.Source, joinOrDash(e.Fields))
	}
}
