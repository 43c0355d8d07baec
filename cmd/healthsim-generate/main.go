package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"time"

	"github.com/google/uuid"
	cli "github.com/urfave/cli/v3"

	"github.com/healthsim/healthsim/pkg/batch"
	"github.com/healthsim/healthsim/pkg/cmd"
	"github.com/healthsim/healthsim/pkg/journey"
	"github.com/healthsim/healthsim/pkg/log"
	"github.com/healthsim/healthsim/pkg/models"
	"github.com/healthsim/healthsim/pkg/otelhelper"
	"github.com/healthsim/healthsim/pkg/skill"
	"github.com/healthsim/healthsim/pkg/trigger"
)

func main() {
	app := &cli.Command{
		Name:                  "healthsim-generate",
		EnableShellCompletion: true,
		Usage:                 "Generate synthetic longitudinal healthcare timelines from a journey specification",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:    "data-path",
				Usage:   "Root directory holding journeys/, skills/, and output/",
				Value:   "./data",
				Sources: cli.EnvVars("HEALTHSIM_DATA_PATH"),
			},
			&cli.StringFlag{
				Name:     "journey",
				Usage:    "Name of the journey document to run",
				Required: true,
				Sources:  cli.EnvVars("HEALTHSIM_JOURNEY"),
			},
			&cli.IntFlag{
				Name:    "count",
				Usage:   "Number of entities to generate",
				Value:   1,
				Sources: cli.EnvVars("HEALTHSIM_COUNT"),
			},
			&cli.IntFlag{
				Name:    "seed",
				Usage:   "Master seed for deterministic generation",
				Value:   42,
				Sources: cli.EnvVars("HEALTHSIM_SEED"),
			},
			&cli.StringFlag{
				Name:    "start-date",
				Usage:   "Timeline start date (YYYY-MM-DD, defaults to today)",
				Value:   "",
				Sources: cli.EnvVars("HEALTHSIM_START_DATE"),
			},
			&cli.IntFlag{
				Name:    "max-events",
				Usage:   "Per-timeline generated-event circuit breaker",
				Value:   journey.DefaultMaxEvents,
				Sources: cli.EnvVars("HEALTHSIM_MAX_EVENTS"),
			},
			&cli.IntFlag{
				Name:    "workers",
				Usage:   "Scheduling concurrency",
				Value:   4,
				Sources: cli.EnvVars("HEALTHSIM_WORKERS"),
			},
			&cli.BoolFlag{
				Name:    "tracing",
				Usage:   "Export OTLP traces for the run",
				Sources: cli.EnvVars("HEALTHSIM_TRACING"),
			},
			&cli.StringFlag{
				Name:    "log-level",
				Usage:   "Log level (debug, info, warn, error)",
				Value:   "info",
				Sources: cli.EnvVars("LOG_LEVEL"),
			},
		},
		Action: run,
	}

	err := app.Run(context.Background(), os.Args)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func run(ctx context.Context, command *cli.Command) error {
	log.Setup(command.String("log-level"))

	logger := log.WithModule("healthsim-generate")
	dataPath := command.String("data-path")

	startDate, err := parseStartDate(command.String("start-date"))
	if err != nil {
		return err
	}

	store := cmd.NewPersistence(dataPath)
	defer func() {
		if err := store.Close(ctx); err != nil {
			logger.ErrorContext(ctx, "Failed to close persistence", "error", err)
		}
	}()

	journeySpec, err := store.JourneyRepository().ByName(ctx, command.String("journey"))
	if err != nil {
		return err
	}

	handlerReg := cmd.NewRegistry(logger)

	triggerReg, err := trigger.DefaultRegistry()
	if err != nil {
		return err
	}

	coordinator := trigger.NewCoordinator(triggerReg, logger)

	bus := cmd.NewEventBus("gochannel", logger)
	defer func() {
		if err := bus.Close(); err != nil {
			logger.ErrorContext(ctx, "Failed to close event bus", "error", err)
		}
	}()

	scheduler := journey.NewScheduler(handlerReg, logger,
		journey.WithTriggerSink(coordinator),
		journey.WithSkillResolver(skill.NewFileResolver(dataPath)),
		journey.WithMaxEvents(command.Int("max-events")),
	)

	opts := []batch.Option{
		batch.WithEventBus(bus),
		batch.WithResultRepository(store.ResultRepository()),
		batch.WithWorkers(command.Int("workers")),
	}

	if command.Bool("tracing") {
		tracer, err := otelhelper.NewTracer(ctx, "healthsim-generate")
		if err != nil {
			return err
		}

		opts = append(opts, batch.WithTracer(tracer))
	}

	runner := batch.NewRunner(scheduler, coordinator, logger, opts...)

	report, err := runner.Run(ctx, batch.Request{
		Journey:    journeySpec,
		Entities:   makeEntities(command.Int("count")),
		StartDate:  startDate,
		MasterSeed: int64(command.Int("seed")),
		RunID:      uuid.New().String(),
	})
	if err != nil {
		return err
	}

	summary := *report
	summary.Results = nil

	body, err := json.MarshalIndent(summary, "", "  ")
	if err != nil {
		return err
	}

	fmt.Println(string(body))

	return nil
}

func parseStartDate(raw string) (time.Time, error) {
	if raw == "" {
		now := time.Now().UTC()

		return time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, time.UTC), nil
	}

	parsed, err := time.Parse(time.DateOnly, raw)
	if err != nil {
		return time.Time{}, fmt.Errorf("invalid start date %q: %w", raw, err)
	}

	return parsed, nil
}

func makeEntities(count int) []*models.Entity {
	entities := make([]*models.Entity, 0, count)

	for i := 0; i < count; i++ {
		entities = append(entities, &models.Entity{ID: fmt.Sprintf("P%04d", i+1)})
	}

	return entities
}
