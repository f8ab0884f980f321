package cmd

import (
	"os"
	"strings"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"example.com/backstage/services/drafts/config"
)

var configPath string

var rootCmd = &cobra.Command{
	Use:   "drafts",
	Short: "Draft aggregation and reconciliation service",
	Long: `A service that keeps in-progress logistics drafts (orders, relocations,
disposals, transactions and tickets) per program, reconciles paginated
material lists and hands submitted drafts to Azure Service Bus.`,
	Run: func(cmd *cobra.Command, args []string) {
		if err := cmd.Help(); err != nil {
			log.Error().Err(err).Msg("Failed to display help")
		}
	},
}

// Execute executes the root command
func Execute() error {
	return rootCmd.Execute()
}

func init() {
	rootCmd.PersistentFlags().StringVar(&configPath, "config", ".", "directory holding config.yaml or app.env")
}

// loadConfig reads the configuration and applies its logging settings
func loadConfig() (config.Config, error) {
	cfg, err := config.LoadConfig(configPath)
	if err != nil {
		return config.Config{}, err
	}

	if cfg.Environment == "development" || cfg.Logging.Format == "console" {
		log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr})
	} else {
		log.Logger = zerolog.New(os.Stderr).With().Timestamp().Logger()
	}

	if level, err := zerolog.ParseLevel(strings.ToLower(cfg.Logging.Level)); err == nil && level != zerolog.NoLevel {
		zerolog.SetGlobalLevel(level)
	}

	return cfg, nil
}
