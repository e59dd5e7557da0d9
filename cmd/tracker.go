package main

import (
	"encoding/json"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/sells-group/buyer-universe/internal/model"
)

var trackerCmd = &cobra.Command{
	Use:   "tracker",
	Short: "Manage buyer universe trackers",
}

var trackerCreateCmd = &cobra.Command{
	Use:   "create",
	Short: "Create a tracker",
	Long: `Create a tracker from flags or from a YAML file holding the tracker's
criteria text and optional structured hints.

Examples:
  tracker create --name "Commercial HVAC" --service "Commercial HVAC, refrigeration"
  tracker create --from tracker.yaml`,
	RunE: func(cmd *cobra.Command, _ []string) error {
		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		t, err := trackerFromFlags(cmd)
		if err != nil {
			return err
		}

		env, err := initService(ctx, false)
		if err != nil {
			return err
		}
		defer env.Close()

		if err := env.Service.CreateTracker(ctx, t); err != nil {
			return err
		}
		fmt.Println(t.ID)
		return nil
	},
}

var trackerParseCmd = &cobra.Command{
	Use:   "parse <tracker-id>",
	Short: "Parse the tracker's criteria text into structured hints with the model",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		env, err := initService(ctx, true)
		if err != nil {
			return err
		}
		defer env.Close()

		t, usage, err := env.Service.ParseTrackerCriteria(ctx, args[0])
		if err != nil {
			return err
		}
		out, err := yaml.Marshal(t.Hints)
		if err != nil {
			return eris.Wrap(err, "tracker: encode hints")
		}
		fmt.Print(string(out))
		fmt.Fprintf(os.Stderr, "tokens: %d in, %d out ($%.4f)\n", usage.InputTokens, usage.OutputTokens, usage.Cost)
		return nil
	},
}

var trackerListCmd = &cobra.Command{
	Use:   "list",
	Short: "List trackers",
	RunE: func(cmd *cobra.Command, _ []string) error {
		ctx := cmd.Context()

		env, err := initService(ctx, false)
		if err != nil {
			return err
		}
		defer env.Close()

		ts, err := env.Service.Store().ListTrackers(ctx)
		if err != nil {
			return err
		}
		asJSON, _ := cmd.Flags().GetBool("json")
		if asJSON {
			enc := json.NewEncoder(os.Stdout)
			enc.SetIndent("", "  ")
			return enc.Encode(ts)
		}
		fmt.Printf("%-36s %-40s %s\n", "ID", "Name", "Hints")
		fmt.Println(strings.Repeat("-", 85))
		for _, t := range ts {
			hints := "no"
			if t.Hints != nil && !t.Hints.IsEmpty() {
				hints = "yes"
			}
			fmt.Printf("%-36s %-40s %s\n", t.ID, t.Name, hints)
		}
		return nil
	},
}

func init() {
	f := trackerCreateCmd.Flags()
	f.String("from", "", "YAML file describing the tracker")
	f.String("name", "", "tracker name")
	f.String("industry", "", "industry vertical")
	f.String("size", "", "size criteria text")
	f.String("service", "", "service criteria text")
	f.String("geography", "", "geography criteria text")
	f.String("buyer-types", "", "buyer type criteria text")

	trackerListCmd.Flags().Bool("json", false, "print trackers as JSON")

	trackerCmd.AddCommand(trackerCreateCmd, trackerParseCmd, trackerListCmd)
	rootCmd.AddCommand(trackerCmd)
}

// trackerFile is the YAML layout accepted by tracker create --from.
type trackerFile struct {
	Name       string               `yaml:"name"`
	Industry   string               `yaml:"industry"`
	Size       string               `yaml:"size_criteria"`
	Service    string               `yaml:"service_criteria"`
	Geography  string               `yaml:"geography_criteria"`
	BuyerTypes string               `yaml:"buyer_types_criteria"`
	Hints      *model.CriteriaHints `yaml:"hints"`
}

func trackerFromFlags(cmd *cobra.Command) (*model.Tracker, error) {
	var tf trackerFile
	if from, _ := cmd.Flags().GetString("from"); from != "" {
		data, err := os.ReadFile(from)
		if err != nil {
			return nil, eris.Wrapf(err, "tracker: read %s", from)
		}
		if err := yaml.Unmarshal(data, &tf); err != nil {
			return nil, eris.Wrapf(err, "tracker: parse %s", from)
		}
	}

	override := func(flag string, dst *string) {
		if v, _ := cmd.Flags().GetString(flag); v != "" {
			*dst = v
		}
	}
	override("name", &tf.Name)
	override("industry", &tf.Industry)
	override("size", &tf.Size)
	override("service", &tf.Service)
	override("geography", &tf.Geography)
	override("buyer-types", &tf.BuyerTypes)

	return &model.Tracker{
		Name:               tf.Name,
		Industry:           tf.Industry,
		SizeCriteria:       tf.Size,
		ServiceCriteria:    tf.Service,
		GeographyCriteria:  tf.Geography,
		BuyerTypesCriteria: tf.BuyerTypes,
		Hints:              tf.Hints,
	}, nil
}
