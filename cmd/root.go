// Package cmd assembles the hearken command line.
package cmd

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/tphakala/hearken/cmd/config"
	"github.com/tphakala/hearken/cmd/detections"
	"github.com/tphakala/hearken/cmd/devices"
	"github.com/tphakala/hearken/cmd/listen"
	"github.com/tphakala/hearken/internal/buildinfo"
	"github.com/tphakala/hearken/internal/conf"
	"github.com/tphakala/hearken/internal/errors"
	"github.com/tphakala/hearken/internal/logger"
)

const telemetryFlushTimeout = 2 * time.Second

// RootCommand creates the root command. settings is filled from the config
// file, environment and flags before any sub-command runs.
func RootCommand(settings *conf.Settings, build *buildinfo.Context) *cobra.Command {
	var (
		configFile string
		central    *logger.CentralLogger
	)

	rootCmd := &cobra.Command{
		Use:          "hearken",
		Short:        "Continuous audio listener for wake words and sound events",
		Version:      build.String(),
		SilenceUsage: true,
	}

	rootCmd.PersistentFlags().StringVarP(&configFile, "config", "c", "", "Config file (default searches ~/.config/hearken, /etc/hearken and the working directory)")
	if err := setupFlags(rootCmd); err != nil {
		panic(err)
	}

	rootCmd.AddCommand(
		listen.Command(settings, build),
		devices.Command(settings),
		detections.Command(settings),
		config.Command(settings),
	)

	rootCmd.PersistentPreRunE = func(cmd *cobra.Command, args []string) error {
		loaded, err := conf.Load(configFile)
		if err != nil {
			return err
		}
		*settings = *loaded

		if settings.Main.Name != "" {
			build.NodeID = settings.Main.Name
		}
		if settings.Debug {
			settings.Main.Log.DefaultLevel = string(logger.LogLevelDebug)
			if settings.Main.Log.Console != nil {
				settings.Main.Log.Console.Level = string(logger.LogLevelDebug)
			}
		}
		central, err = logger.NewCentralLogger(&settings.Main.Log)
		if err != nil {
			return fmt.Errorf("error initializing logging: %w", err)
		}
		logger.SetGlobal(central)
		central.Module("main").Debug("settings loaded", logger.RedactFields(settingsFields(settings))...)

		if settings.Sentry.Enabled {
			if err := errors.InitSentry(settings.Sentry.DSN, settings.Sentry.Environment, build.GetVersion()); err != nil {
				return err
			}
		}
		return nil
	}

	rootCmd.PersistentPostRunE = func(cmd *cobra.Command, args []string) error {
		if settings.Sentry.Enabled {
			errors.FlushTelemetry(telemetryFlushTimeout)
		}
		return central.Close()
	}

	return rootCmd
}

// settingsFields summarizes settings for the startup log. Callers pass the
// result through logger.RedactFields.
func settingsFields(s *conf.Settings) []logger.Field {
	return []logger.Field{
		logger.String("source", s.Audio.Source),
		logger.String("classifier", s.Trigger.Classifier),
		logger.String("transcriber", s.Trigger.Transcriber),
		logger.Float64("sensitivity", s.Trigger.Sensitivity),
		logger.Int("buffer_seconds", s.Buffer.DurationSeconds),
		logger.String("sqlite_path", s.Output.SQLite.Path),
		logger.String("mysql_host", s.Output.MySQL.Host),
		logger.String("mysql_password", s.Output.MySQL.Password),
		logger.String("mqtt_broker", s.Notify.MQTT.Broker),
		logger.String("mqtt_password", s.Notify.MQTT.Password),
		logger.String("sentry_dsn", s.Sentry.DSN),
	}
}

// setupFlags defines flags shared by every sub-command.
func setupFlags(rootCmd *cobra.Command) error {
	rootCmd.PersistentFlags().BoolP("debug", "d", false, "Enable debug output")
	rootCmd.PersistentFlags().String("node", "", "Node name included in notifications")

	if err := viper.BindPFlag("debug", rootCmd.PersistentFlags().Lookup("debug")); err != nil {
		return fmt.Errorf("error binding flags: %w", err)
	}
	if err := viper.BindPFlag("main.name", rootCmd.PersistentFlags().Lookup("node")); err != nil {
		return fmt.Errorf("error binding flags: %w", err)
	}
	return nil
}
