package commands

import (
	"os/signal"
	"syscall"

	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"qametrics/internal/azure"
	"qametrics/internal/cache"
	"qametrics/internal/config"
	"qametrics/internal/logging"
	"qametrics/internal/metrics"
	"qametrics/internal/server"
	"qametrics/internal/sonar"
)

var (
	// Version, Commit, and BuildDate are set at build time via ldflags.
	Version   = "dev"
	Commit    = "none"
	BuildDate = "unknown"

	verbose bool
	cfg     *config.AppConfig

	gateway azure.Client
	quality sonar.Client
)

var rootCmd = &cobra.Command{
	Use:   "qametrics",
	Short: "QAMetrics serves QA reporting metrics over HTTP",
	Long: `A reporting backend that aggregates test automation coverage, bug leakage
and bug aging metrics from an Azure DevOps project, optionally enriched with
code-quality measures from a SonarQube server.`,
	PersistentPreRun: func(cmd *cobra.Command, args []string) {
		logging.Init(verbose)

		var err error
		cfg, err = config.Load()
		if err != nil {
			log.Fatal().Err(err).Msg("Failed to load configuration")
		}

		gateway = azure.NewClient(cfg.Azure)
		if cfg.Sonar.BaseURL != "" {
			quality = sonar.NewClient(cfg.Sonar)
		}

		log.Info().
			Str("version", Version).
			Str("commit", Commit).
			Str("buildDate", BuildDate).
			Msg("QAMetrics starting")
	},
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		engine := metrics.NewEngine(gateway, cfg.Fields, cfg.Azure.Project, cfg.Strategy, cfg.RunWindowDays)
		srv := server.New(engine, quality, cache.New(), cfg.CacheTTL, cfg.NumSprints)
		return srv.Run(ctx, cfg.HTTPAddr)
	},
}

func Execute() error {
	return rootCmd.Execute()
}

func init() {
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "enable verbose logging")
}
