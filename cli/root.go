// Package cli wires configuration, the converter and the HTTP API into the
// rawwebapi command line.
package cli

import (
	"os"
	"strings"

	"rawwebapi/config"

	log "github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
)

var (
	cfg       *config.Config
	logLevel  string
	logFormat string
)

var rootCmd = &cobra.Command{
	Use:   "rawwebapi",
	Short: "Convert Thermo .raw files to .mzML with ThermoRawFileParser",
	Long: `rawwebapi accepts Thermo .raw uploads over HTTP and converts them to .mzML
with ThermoRawFileParser. The converter is looked up on PATH and downloaded
into the install directory when it is missing.`,
	SilenceUsage: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		c, err := config.Load()
		if err != nil {
			return err
		}
		if logLevel != "" {
			c.LogLevel = logLevel
		}
		if logFormat != "" {
			c.LogFormat = logFormat
		}
		cfg = c
		return configureLogging(cfg.LogLevel, cfg.LogFormat)
	},
}

func init() {
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "", "log level (debug, info, warn, error)")
	rootCmd.PersistentFlags().StringVar(&logFormat, "log-format", "", "log format (text or json)")

	rootCmd.AddCommand(serveCmd, installCmd, convertCmd)
	// Without a subcommand the server starts.
	rootCmd.RunE = serveCmd.RunE
}

// Execute runs the root command.
func Execute() error {
	return rootCmd.Execute()
}

func configureLogging(level, format string) error {
	lvl, err := log.ParseLevel(level)
	if err != nil {
		return err
	}
	log.SetLevel(lvl)
	log.SetOutput(os.Stderr)

	switch strings.ToLower(format) {
	case "json":
		log.SetFormatter(&log.JSONFormatter{})
	default:
		log.SetFormatter(&log.TextFormatter{FullTimestamp: true})
	}
	return nil
}
