package cmd

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/niktheblak/web-common/pkg/auth"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/niktheblak/ruuvitag-sensor/internal/server"
	"github.com/niktheblak/ruuvitag-sensor/internal/service"
)

var serverCmd = &cobra.Command{
	Use:          "server",
	Short:        "Start RuuviTag measurement API server",
	SilenceUsage: true,
	RunE: func(cmd *cobra.Command, args []string) error {
		var (
			accessToken = viper.GetStringSlice("server.token")
			port        = viper.GetInt("server.port")
			interval    = viper.GetDuration("discovery.interval")
			scanTimeout = viper.GetDuration("discovery.timeout")
			filter      = viper.GetStringSlice("discovery.macs")
		)
		sc, err := openScanner()
		if err != nil {
			return err
		}
		defer sc.Close()
		reg := prometheus.NewRegistry()
		reg.MustRegister(collectors.NewBuildInfoCollector())
		logger.LogAttrs(
			nil,
			slog.LevelInfo,
			"Starting discovery",
			slog.String("source", viper.GetString("scanner.source")),
			slog.Duration("interval", interval),
			slog.Duration("timeout", scanTimeout),
			slog.Any("macs", filter),
		)
		svc, err := service.New(service.Config{
			Source:      sc,
			Interval:    interval,
			ScanTimeout: scanTimeout,
			Filter:      filter,
			Registerer:  reg,
			Logger:      logger,
		})
		if err != nil {
			return err
		}
		var authenticator auth.Authenticator
		if len(accessToken) > 0 {
			logger.Info("Using authentication", "tokens", len(accessToken))
			authenticator = auth.Static(accessToken...)
		} else {
			logger.Info("Not using authentication")
			authenticator = auth.AlwaysAllow()
		}
		httpServer := &http.Server{
			Addr:    fmt.Sprintf(":%d", port),
			Handler: server.New(svc, reg, authenticator, logger),
		}
		ctx := cmd.Context()
		go func() {
			logger.LogAttrs(nil, slog.LevelInfo, "Starting server", slog.Int("port", port))
			if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				logger.Error("Failed to start HTTP server", "err", err)
			}
		}()
		var wg sync.WaitGroup
		wg.Add(2)
		go func() {
			defer wg.Done()
			if err := svc.Run(ctx); err != nil {
				logger.Error("Discovery stopped", "err", err)
			}
		}()
		go func() {
			defer wg.Done()
			<-ctx.Done()
			logger.Info("Shutting down service")
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			if err := httpServer.Shutdown(shutdownCtx); err != nil {
				logger.Error("Failed to shut down HTTP server", "err", err)
			}
		}()
		wg.Wait()
		return nil
	},
}

func init() {
	serverCmd.Flags().Int("server.port", 0, "Server port")
	serverCmd.Flags().StringSlice("server.token", nil, "Allowed API access tokens")
	serverCmd.Flags().Duration("discovery.interval", 0, "interval between discovery runs")
	serverCmd.Flags().Duration("discovery.timeout", 0, "duration of a single discovery run")
	serverCmd.Flags().StringSlice("discovery.macs", nil, "only collect measurements of these RuuviTags")

	cobra.CheckErr(viper.BindPFlags(serverCmd.Flags()))

	viper.SetDefault("server.port", 8080)
	viper.SetDefault("discovery.interval", 30*time.Second)
	viper.SetDefault("discovery.timeout", 5*time.Second)

	rootCmd.AddCommand(serverCmd)
}
