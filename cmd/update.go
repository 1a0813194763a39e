package cmd

import (
	"context"
	"encoding/json"
	"time"

	"github.com/spf13/cobra"

	"github.com/niktheblak/ruuvitag-sensor/pkg/ruuvitag"
)

var updateCmd = &cobra.Command{
	Use:   "update MAC",
	Short: "Read one fresh measurement from a single RuuviTag",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		timeout, err := cmd.Flags().GetDuration("timeout")
		if err != nil {
			return err
		}
		sc, err := openScanner()
		if err != nil {
			return err
		}
		defer sc.Close()
		tag, err := ruuvitag.NewTag(args[0], sc)
		if err != nil {
			return err
		}
		ctx, cancel := context.WithTimeout(cmd.Context(), timeout)
		defer cancel()
		m, err := tag.Update(ctx)
		if err != nil {
			return err
		}
		return json.NewEncoder(cmd.OutOrStdout()).Encode(m.Values())
	},
}

func init() {
	updateCmd.Flags().Duration("timeout", 10*time.Second, "how long to wait for a broadcast")

	rootCmd.AddCommand(updateCmd)
}
