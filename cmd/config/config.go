// Package config implements the config command.
package config

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/tphakala/hearken/internal/conf"
)

// Command creates the config command.
func Command(settings *conf.Settings) *cobra.Command {
	return command(settings, conf.ConfigFileUsed)
}

// command takes the config file lookup as a parameter for tests.
func command(settings *conf.Settings, find func() (string, error)) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "config",
		Short: "Inspect and save the configuration",
	}
	cmd.AddCommand(pathCommand(find), saveCommand(settings, find))
	return cmd
}

func pathCommand(find func() (string, error)) *cobra.Command {
	return &cobra.Command{
		Use:   "path",
		Short: "Print the config file in use",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			path, err := find()
			if err != nil {
				return err
			}
			_, err = fmt.Fprintln(cmd.OutOrStdout(), path)
			return err
		},
	}
}

// saveCommand writes the effective settings, flag and environment
// overrides included, to the given path or to the config file in use.
func saveCommand(settings *conf.Settings, find func() (string, error)) *cobra.Command {
	return &cobra.Command{
		Use:   "save [file]",
		Short: "Write the effective settings to a config file",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			path := ""
			if len(args) == 1 {
				path = args[0]
			} else {
				found, err := find()
				if err != nil {
					return err
				}
				path = found
			}
			if err := conf.ValidateSettings(settings); err != nil {
				return err
			}
			if err := conf.SaveYAMLConfig(path, settings); err != nil {
				return err
			}
			_, err := fmt.Fprintf(cmd.OutOrStdout(), "saved %s\n", path)
			return err
		},
	}
}
