package main

import (
	"encoding/json"
	"os"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
)

var (
	decodeMake  string
	decodeModel string
	decodeYear  int
)

var decodeCmd = &cobra.Command{
	Use:   "decode <vin>",
	Short: "Decode a VIN, or verify it against a claimed make/model/year",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		client := initVINClient(initClients())

		var (
			out any
			ok  bool
		)
		if decodeMake != "" || decodeModel != "" || decodeYear != 0 {
			v, err := client.Verify(cmd.Context(), args[0], decodeMake, decodeModel, decodeYear)
			if err != nil {
				return eris.Wrap(err, "verify")
			}
			out, ok = v, v.OK()
		} else {
			res, err := client.Decode(cmd.Context(), args[0])
			if err != nil {
				return eris.Wrap(err, "decode")
			}
			out, ok = res, res.Valid
		}

		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		if err := enc.Encode(out); err != nil {
			return err
		}
		if !ok {
			return eris.Errorf("vin %s did not verify", args[0])
		}
		return nil
	},
}

func init() {
	decodeCmd.Flags().StringVar(&decodeMake, "make", "", "expected make")
	decodeCmd.Flags().StringVar(&decodeModel, "model", "", "expected model")
	decodeCmd.Flags().IntVar(&decodeYear, "year", 0, "expected model year")
	rootCmd.AddCommand(decodeCmd)
}
