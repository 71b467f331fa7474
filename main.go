package main

import (
	"os"

	"github.com/tphakala/hearken/cmd"
	"github.com/tphakala/hearken/internal/buildinfo"
	"github.com/tphakala/hearken/internal/conf"
)

func main() {
	settings := &conf.Settings{}
	rootCmd := cmd.RootCommand(settings, buildinfo.Current(""))
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}
