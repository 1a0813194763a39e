package cmd

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"strings"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/niktheblak/ruuvitag-sensor/pkg/scanner"
)

var (
	cfgFile string
	logger  *slog.Logger
)

var rootCmd = &cobra.Command{
	Use:          "ruuvitag-sensor",
	Short:        "Decode and collect RuuviTag broadcasts",
	SilenceUsage: true,
	PersistentPreRun: func(cmd *cobra.Command, args []string) {
		var level slog.Level
		if err := level.UnmarshalText([]byte(viper.GetString("log.level"))); err != nil {
			level = slog.LevelInfo
		}
		logger = slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level}))
	},
}

func Execute() error {
	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt)
	defer cancel()
	return rootCmd.ExecuteContext(ctx)
}

func init() {
	logger = slog.Default()
	cobra.OnInitialize(initConfig)
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default is $HOME/.ruuvitag-sensor/config.toml)")
	rootCmd.PersistentFlags().String("scanner.source", "-", `broadcast source: file of "ADDRESS PAYLOAD" lines or - for stdin`)
	rootCmd.PersistentFlags().String("log.level", "info", "log level")

	cobra.CheckErr(viper.BindPFlags(rootCmd.PersistentFlags()))
}

func initConfig() {
	if cfgFile != "" {
		// Use config file from the flag.
		viper.SetConfigFile(cfgFile)
	} else {
		viper.AddConfigPath("/etc/ruuvitag-sensor")
		viper.AddConfigPath("$HOME/.ruuvitag-sensor")
		viper.SetConfigName("config")
		viper.SetConfigType("toml")
	}
	viper.AutomaticEnv()
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	if err := viper.ReadInConfig(); err == nil {
		logger.LogAttrs(nil, slog.LevelInfo, "Using config file", slog.String("config", viper.ConfigFileUsed()))
	}
}

func openScanner() (scanner.Scanner, error) {
	source := viper.GetString("scanner.source")
	logger.LogAttrs(nil, slog.LevelDebug, "Opening scanner", slog.String("source", source))
	return scanner.Open(scanner.Config{
		Source: source,
		Logger: logger,
	})
}
