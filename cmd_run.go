package main

import (
	"encoding/json"
	"os"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Run the pipeline once and print the result",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()

		orch, st, err := initPipeline(ctx)
		if err != nil {
			return err
		}
		defer st.Close() //nolint:errcheck

		res := orch.Run(ctx)

		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		if err := enc.Encode(res); err != nil {
			return eris.Wrap(err, "encode result")
		}

		if !res.Success {
			zap.L().Error("run failed", zap.String("run_id", res.RunID), zap.Int("errors", len(res.Errors)))
			return eris.Errorf("run %s failed", res.RunID)
		}
		return nil
	},
}

func init() {
	rootCmd.AddCommand(runCmd)
}
