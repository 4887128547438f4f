package main

import (
	"os"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"github.com/dokzlo13/relayd/internal/app"
	"github.com/dokzlo13/relayd/internal/config"
)

func main() {
	if err := rootCmd().Execute(); err != nil {
		log.Error().Err(err).Msg("Command failed")
		os.Exit(1)
	}
}

// globalFlags are shared by every subcommand.
type globalFlags struct {
	configPath string
	debug      bool
}

// load reads the configuration and sets up logging from it.
func (f *globalFlags) load() (*config.Config, error) {
	cfg, err := config.Load(f.configPath)
	if err != nil {
		return nil, err
	}

	level := cfg.Log.Level
	if f.debug {
		level = "debug"
	}
	setupLogging(level, cfg.Log.UseJSON, cfg.Log.Colors)
	return cfg, nil
}

func rootCmd() *cobra.Command {
	var gf globalFlags

	cmd := &cobra.Command{
		Use:           "relayd",
		Short:         "Connected relay agent",
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runAgent(&gf)
		},
	}

	cmd.PersistentFlags().StringVarP(&gf.configPath, "config", "c", "config.yaml", "Path to configuration file")
	cmd.PersistentFlags().BoolVar(&gf.debug, "debug", false, "Enable debug logging")

	cmd.AddCommand(runCmd(&gf))
	cmd.AddCommand(provisionCmd(&gf))
	cmd.AddCommand(resetCmd(&gf))
	cmd.AddCommand(statusCmd(&gf))
	return cmd
}

func runCmd(gf *globalFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "run",
		Short: "Start the agent",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runAgent(gf)
		},
	}
}

func runAgent(gf *globalFlags) error {
	cfg, err := gf.load()
	if err != nil {
		return err
	}

	log.Info().Str("config", gf.configPath).Msg("Starting relayd")

	// Create application; the relay is driven off here
	application, err := app.New(cfg)
	if err != nil {
		return err
	}

	return application.Run(app.SignalContext())
}

func setupLogging(level string, useJSON bool, colors bool) {
	// ISO 8601 format with timezone
	zerolog.TimeFieldFormat = time.RFC3339

	if useJSON {
		// JSON output for production
		log.Logger = zerolog.New(os.Stderr).With().Timestamp().Logger()
	} else {
		// Text output (with optional colors)
		log.Logger = log.Output(zerolog.ConsoleWriter{
			Out:        os.Stderr,
			TimeFormat: "2006-01-02T15:04:05.000Z07:00",
			NoColor:    !colors,
		})
	}

	switch level {
	case "debug":
		zerolog.SetGlobalLevel(zerolog.DebugLevel)
	case "info":
		zerolog.SetGlobalLevel(zerolog.InfoLevel)
	case "warn":
		zerolog.SetGlobalLevel(zerolog.WarnLevel)
	case "error":
		zerolog.SetGlobalLevel(zerolog.ErrorLevel)
	default:
		zerolog.SetGlobalLevel(zerolog.InfoLevel)
	}
}
