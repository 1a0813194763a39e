package cmd

import (
	"encoding/json"
	"log/slog"
	"time"

	"github.com/spf13/cobra"

	"github.com/niktheblak/ruuvitag-sensor/pkg/discovery"
)

var getCmd = &cobra.Command{
	Use:   "get [MAC...]",
	Short: "Print the latest measurements of the given or all RuuviTags",
	RunE: func(cmd *cobra.Command, args []string) error {
		timeout, err := cmd.Flags().GetDuration("timeout")
		if err != nil {
			return err
		}
		count, err := cmd.Flags().GetInt("count")
		if err != nil {
			return err
		}
		sc, err := openScanner()
		if err != nil {
			return err
		}
		defer sc.Close()
		res, err := discovery.Discover(cmd.Context(), sc, discovery.Options{
			Filter:    args,
			StopAfter: count,
			Timeout:   timeout,
			Logger:    logger,
		})
		if err != nil {
			return err
		}
		for addr, err := range res.Errors {
			logger.LogAttrs(cmd.Context(), slog.LevelWarn, "No measurement", slog.String("mac", addr.String()), slog.Any("error", err))
		}
		response := make(map[string]map[string]any)
		for addr, m := range res.Measurements {
			response[addr.String()] = m.Values()
		}
		enc := json.NewEncoder(cmd.OutOrStdout())
		enc.SetIndent("", "  ")
		return enc.Encode(response)
	},
}

func init() {
	getCmd.Flags().Duration("timeout", 10*time.Second, "how long to listen for broadcasts")
	getCmd.Flags().Int("count", 0, "stop after this many RuuviTags have been decoded")

	rootCmd.AddCommand(getCmd)
}
