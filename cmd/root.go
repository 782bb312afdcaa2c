package cmd

import (
	"fmt"
	"log/slog"
	"os"

	"github.com/spf13/cobra"
)

// Version is set at build time via -ldflags.
var Version = "dev"

var (
	cfgFile string
	verbose bool
)

// rootCmd is the base command when called without any subcommands.
var rootCmd = &cobra.Command{
	Use:   "scanboard",
	Short: "Operator console for a vulnerability-scanning backend",
	Long: `scanboard is a terminal console for triaging findings and running scans
against a scanning backend's REST API.

Get started:
  scanboard login      Start a session with the backend
  scanboard ui         Launch the terminal UI
  scanboard findings   List, triage, delete and export findings
  scanboard scan       Launch, stop and watch scans
  scanboard doctor     Check backend reachability and local storage`,
	SilenceUsage:  true,
	SilenceErrors: true,
}

// Execute is the entry point called from main.go.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
}

func init() {
	cobra.OnInitialize(initConfig)

	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "",
		"config file (default: ~/.scanboard/config.json)")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false,
		"enable verbose/debug output")

	rootCmd.Version = Version
	rootCmd.AddCommand(
		loginCmd,
		logoutCmd,
		uiCmd,
		findingsCmd,
		scanCmd,
		templatesCmd,
		scheduleCmd,
		historyCmd,
		configCmd,
		doctorCmd,
	)
}

func initConfig() {
	if verbose {
		slog.SetLogLoggerLevel(slog.LevelDebug)
		slog.Debug("Verbose logging enabled")
	}
}
