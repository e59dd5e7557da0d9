package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/sells-group/buyer-universe/internal/config"
)

var cfg *config.Config

var rootCmd = &cobra.Command{
	Use:   "buyer-universe",
	Short: "M&A buyer universe tracking and fit scoring",
	Long:  "Tracks industry buyer universes, reconciles buyer and deal data from transcripts, notes, websites and spreadsheets, and scores every buyer against every deal.",
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		c, err := config.Load()
		if err != nil {
			return fmt.Errorf("load config: %w", err)
		}
		cfg = c

		if err := config.InitLogger(cfg.Log); err != nil {
			return fmt.Errorf("init logger: %w", err)
		}

		return nil
	},
	PersistentPostRun: func(cmd *cobra.Command, args []string) {
		_ = zap.L().Sync()
	},
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}
