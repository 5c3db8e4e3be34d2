package main

import (
	"encoding/json"
	"os"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"

	"autocurator/filters"
)

var statsCmd = &cobra.Command{
	Use:   "stats",
	Short: "Fetch from the active source and print filter statistics",
	Long:  "Dry run: fetches listings and reports how the filters would treat them. Nothing is verified or stored.",
	RunE: func(cmd *cobra.Command, args []string) error {
		src, err := initSource(initClients())
		if err != nil {
			return err
		}

		listings, err := src.Fetch(cmd.Context())
		if err != nil {
			return eris.Wrap(err, "fetch")
		}

		out := struct {
			Source string        `json:"source"`
			Cost   float64       `json:"api_cost"`
			Stats  filters.Stats `json:"stats"`
		}{src.ID(), src.Cost(), filters.GetFilterStats(listings, cfg.Criteria)}

		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		return enc.Encode(out)
	},
}

func init() {
	rootCmd.AddCommand(statsCmd)
}
