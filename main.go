package main

import (
	"os"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"autocurator/config"
	"autocurator/logging"
)

var (
	cfg        *config.Config
	logCleanup func()
)

var rootCmd = &cobra.Command{
	Use:   "autocurator",
	Short: "Used-vehicle listing curation pipeline",
	Long:  "Fetches used-vehicle listings, filters them against buyer criteria, verifies VINs and stores the survivors with an audit log per run.",
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		c, err := config.Load()
		if err != nil {
			return eris.Wrap(err, "load config")
		}
		cfg = c

		cleanup, err := logging.Setup(cfg.Log)
		if err != nil {
			return eris.Wrap(err, "init logger")
		}
		logCleanup = cleanup
		return nil
	},
	PersistentPostRun: func(cmd *cobra.Command, args []string) {
		_ = zap.L().Sync()
		if logCleanup != nil {
			logCleanup()
		}
	},
	SilenceUsage: true,
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}
