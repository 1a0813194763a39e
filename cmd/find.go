package cmd

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/niktheblak/ruuvitag-sensor/pkg/discovery"
)

var findCmd = &cobra.Command{
	Use:   "find",
	Short: "List addresses of broadcasting RuuviTags",
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
		addrs, err := discovery.Find(cmd.Context(), sc, discovery.Options{
			StopAfter: count,
			Timeout:   timeout,
			Logger:    logger,
		})
		if err != nil {
			return err
		}
		for _, a := range addrs {
			fmt.Fprintln(cmd.OutOrStdout(), a)
		}
		return nil
	},
}

func init() {
	findCmd.Flags().Duration("timeout", 10*time.Second, "how long to listen for broadcasts")
	findCmd.Flags().Int("count", 0, "stop after this many RuuviTags have been found")

	rootCmd.AddCommand(findCmd)
}
