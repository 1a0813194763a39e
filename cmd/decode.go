package cmd

import (
	"encoding/json"

	"github.com/spf13/cobra"

	"github.com/niktheblak/ruuvitag-sensor/pkg/ruuvitag"
)

var decodeCmd = &cobra.Command{
	Use:   "decode PAYLOAD...",
	Short: "Decode raw hexadecimal broadcast payloads, printing null for undecodable ones",
	Args:  cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		enc := json.NewEncoder(cmd.OutOrStdout())
		for _, raw := range args {
			m, ok := ruuvitag.TryDecode(raw)
			if !ok {
				if err := enc.Encode(nil); err != nil {
					return err
				}
				continue
			}
			if err := enc.Encode(m.Values()); err != nil {
				return err
			}
		}
		return nil
	},
}

func init() {
	rootCmd.AddCommand(decodeCmd)
}
