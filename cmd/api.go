package cmd

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"example.com/backstage/services/drafts/config"
	"example.com/backstage/services/drafts/internal/api"
	"example.com/backstage/services/drafts/internal/messaging"
	"example.com/backstage/services/drafts/internal/metrics"
	"example.com/backstage/services/drafts/internal/search"
	"example.com/backstage/services/drafts/internal/services"
	"example.com/backstage/services/drafts/internal/tracing"
	"example.com/backstage/services/drafts/internal/validation"
)

var apiCmd = &cobra.Command{
	Use:   "api",
	Short: "Start the API server",
	Long:  `Start the HTTP API server that holds drafts and serves reconciled material lists`,
	RunE:  runAPI,
}

func init() {
	rootCmd.AddCommand(apiCmd)
}

func runAPI(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(context.Background(),
		os.Interrupt, syscall.SIGTERM, syscall.SIGINT)
	defer stop()

	metricsCollector := metrics.NewMetrics()
	tracer := initTracer(cfg)
	defer tracer.Close()

	store, err := initStorage(ctx, cfg, metricsCollector)
	if err != nil {
		return err
	}
	defer store.Close()

	catalog, err := search.NewCatalogClient(cfg.Elastic)
	if err != nil {
		return err
	}
	if err := catalog.Ping(ctx); err != nil {
		log.Warn().Err(err).Msg("Elasticsearch is not reachable yet")
		metricsCollector.SetHealth("elasticsearch", false)
	} else {
		metricsCollector.SetHealth("elasticsearch", true)
	}

	busClient, err := messaging.NewClient(cfg.Azure)
	if err != nil {
		return err
	}
	defer busClient.Close(context.Background())

	submitter, err := messaging.NewSubmitter(busClient, cfg.Azure.QueueName)
	if err != nil {
		return err
	}
	defer submitter.Close(context.Background())

	draftService := services.NewDraftService(
		store.kv,
		validation.NewExecutor(cfg.Drafts.OtherReasonIDs...),
		submitter,
		catalog,
		metricsCollector,
		log.Logger,
	)
	catalogService := services.NewCatalogService(catalog, store.alerts, cfg.Drafts.PageSize, metricsCollector, log.Logger)

	server := api.NewServer(cfg, draftService, catalogService, metricsCollector, tracer)

	go func() {
		if err := server.Start(); err != nil {
			log.Error().Err(err).Msg("Server error")
			stop()
		}
	}()

	<-ctx.Done()

	if err := server.Shutdown(context.Background()); err != nil {
		log.Error().Err(err).Msg("Server shutdown error")
	}

	log.Info().Int("open_drafts", draftService.OpenDrafts()).Msg("Shutting down API server")
	return nil
}

// initTracer falls back to a disabled tracer when New Relic cannot start
func initTracer(cfg config.Config) tracing.Tracer {
	tracer, err := tracing.NewTracer(cfg.Tracing)
	if err != nil {
		log.Warn().Err(err).Msg("Failed to initialize tracer, continuing without tracing")
		tracer, _ = tracing.NewTracer(config.TracingConfig{})
	}
	return tracer
}
