package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

var version = "dev"

var (
	cfgPath string
	devMode bool
)

var rootCmd = &cobra.Command{
	Use:           "genhub",
	Short:         "Self-hosted dashboard backend for local and cloud generation providers",
	Version:       version,
	SilenceUsage:  true,
	SilenceErrors: true,
}

func init() {
	rootCmd.PersistentFlags().StringVar(&cfgPath, "config", "config.yaml", "path to YAML config file")
	rootCmd.PersistentFlags().BoolVar(&devMode, "dev", false, "developer mode (console logs, verbose errors)")
	rootCmd.AddCommand(serveCmd, awaitCmd, sealCmd, maskCmd)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}
