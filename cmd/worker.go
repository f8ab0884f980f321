package cmd

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/go-co-op/gocron/v2"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"example.com/backstage/services/drafts/config"
	"example.com/backstage/services/drafts/internal/database"
	"example.com/backstage/services/drafts/internal/messaging"
	"example.com/backstage/services/drafts/internal/metrics"
	"example.com/backstage/services/drafts/internal/models"
	"example.com/backstage/services/drafts/internal/repositories"
	"example.com/backstage/services/drafts/internal/services"
)

var workerCmd = &cobra.Command{
	Use:   "worker",
	Short: "Start the background worker",
	Long:  `Start the background worker that records submitted drafts from Azure Service Bus and sweeps stale draft snapshots`,
	RunE:  runWorker,
}

func init() {
	rootCmd.AddCommand(workerCmd)
}

func runWorker(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(context.Background(),
		os.Interrupt, syscall.SIGTERM, syscall.SIGINT)
	defer stop()

	g, ctx := errgroup.WithContext(ctx)

	conn, err := database.Connect(cfg.DB)
	if err != nil {
		return err
	}
	defer conn.Close()

	if err := models.SetupModels(conn.Write); err != nil {
		return err
	}

	tracer := initTracer(cfg)
	defer tracer.Close()

	metricsCollector := metrics.NewMetrics()

	// Snapshots only live in Postgres with the postgres backend; Redis
	// expires them through its own TTL.
	var sweeper services.SnapshotSweeper
	if cfg.Storage.Backend == config.StoragePostgres {
		sweeper = repositories.NewSnapshotRepository(conn.Write)
	}

	submissionService := services.NewSubmissionService(
		repositories.NewSubmissionRepository(conn.Write, conn.Read),
		sweeper,
		cfg.Worker.SnapshotRetention,
		tracer,
		metricsCollector,
	)

	busClient, err := messaging.NewClient(cfg.Azure)
	if err != nil {
		return err
	}
	defer busClient.Close(context.Background())

	consumer, err := messaging.NewConsumer(busClient, cfg.Azure.QueueName, cfg.Worker.MaxMessages, log.Logger)
	if err != nil {
		return err
	}

	g.Go(func() error {
		log.Info().Str("queue", cfg.Azure.QueueName).Msg("Starting Azure Service Bus consumer")
		return consumer.Run(ctx, submissionService.Record)
	})

	g.Go(func() error {
		scheduler, err := gocron.NewScheduler()
		if err != nil {
			return err
		}

		_, err = scheduler.NewJob(
			gocron.DurationJob(cfg.Worker.SweepInterval),
			gocron.NewTask(func() {
				if _, err := submissionService.SweepSnapshots(ctx); err != nil {
					log.Error().Err(err).Msg("Failed to sweep draft snapshots")
				}
			}),
			gocron.WithSingletonMode(gocron.LimitModeReschedule),
		)
		if err != nil {
			return err
		}

		log.Info().Dur("interval", cfg.Worker.SweepInterval).Msg("Starting snapshot sweep job")
		scheduler.Start()

		<-ctx.Done()
		return scheduler.Shutdown()
	})

	if err := g.Wait(); err != nil {
		log.Error().Err(err).Msg("Worker error")
		return err
	}

	log.Info().Msg("Worker shutting down gracefully")
	return nil
}
