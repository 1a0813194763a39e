package cmd

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/niktheblak/ruuvitag-sensor/internal/publish"
	"github.com/niktheblak/ruuvitag-sensor/pkg/discovery"
	"github.com/niktheblak/ruuvitag-sensor/pkg/ruuvitag"
)

var streamCmd = &cobra.Command{
	Use:   "stream [MAC...]",
	Short: "Print the first measurement of every RuuviTag as it is decoded",
	RunE: func(cmd *cobra.Command, args []string) error {
		var (
			timeout    = viper.GetDuration("stream.timeout")
			mqttBroker = viper.GetString("mqtt.broker")
		)
		sc, err := openScanner()
		if err != nil {
			return err
		}
		defer sc.Close()
		enc := json.NewEncoder(cmd.OutOrStdout())
		emit := func(addr ruuvitag.Address, m ruuvitag.Measurement) error {
			return enc.Encode(m.Values())
		}
		if mqttBroker != "" {
			pub, err := publish.Connect(publish.Config{
				Broker:   mqttBroker,
				ClientID: viper.GetString("mqtt.client_id"),
				Username: viper.GetString("mqtt.username"),
				Password: viper.GetString("mqtt.password"),
				Topic:    viper.GetString("mqtt.topic"),
				QoS:      byte(viper.GetUint("mqtt.qos")),
				Retained: viper.GetBool("mqtt.retained"),
				Logger:   logger,
			})
			if err != nil {
				return err
			}
			defer pub.Close()
			emit = pub.Publish
		}
		err = discovery.Stream(cmd.Context(), sc, discovery.Options{
			Filter:  args,
			Timeout: timeout,
			OnError: func(addr ruuvitag.Address, err error) {
				logger.LogAttrs(cmd.Context(), slog.LevelDebug, "Undecodable broadcast", slog.String("mac", addr.String()), slog.Any("error", err))
			},
			Logger: logger,
		}, func(addr ruuvitag.Address, m ruuvitag.Measurement) {
			if err := emit(addr, m); err != nil {
				logger.LogAttrs(cmd.Context(), slog.LevelError, "Failed to emit measurement", slog.String("mac", addr.String()), slog.Any("error", err))
			}
		})
		if errors.Is(err, context.Canceled) {
			return nil
		}
		return err
	},
}

func init() {
	streamCmd.Flags().Duration("stream.timeout", 0, "stop streaming after this duration (0 streams until interrupted)")
	streamCmd.Flags().String("mqtt.broker", "", "publish to this MQTT broker instead of standard output, e.g. tcp://localhost:1883")
	streamCmd.Flags().String("mqtt.client_id", "ruuvitag-sensor", "MQTT client ID")
	streamCmd.Flags().String("mqtt.username", "", "MQTT username")
	streamCmd.Flags().String("mqtt.password", "", "MQTT password")
	streamCmd.Flags().String("mqtt.topic", "ruuvitag", "MQTT topic prefix")
	streamCmd.Flags().Uint("mqtt.qos", 0, "MQTT QoS")
	streamCmd.Flags().Bool("mqtt.retained", false, "publish retained messages")

	cobra.CheckErr(viper.BindPFlags(streamCmd.Flags()))

	rootCmd.AddCommand(streamCmd)
}
