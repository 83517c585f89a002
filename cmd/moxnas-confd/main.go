package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/Mezraniwassim/moxnas-confd/internal/applier"
	"github.com/Mezraniwassim/moxnas-confd/internal/config"
	"github.com/Mezraniwassim/moxnas-confd/internal/coordinator"
	"github.com/Mezraniwassim/moxnas-confd/internal/export"
	"github.com/Mezraniwassim/moxnas-confd/internal/healthcheck"
	"github.com/Mezraniwassim/moxnas-confd/internal/logging"
	"github.com/Mezraniwassim/moxnas-confd/internal/metrics"
	"github.com/Mezraniwassim/moxnas-confd/internal/notify"
	"github.com/Mezraniwassim/moxnas-confd/internal/pipeline"
	"github.com/Mezraniwassim/moxnas-confd/internal/render"
	"github.com/Mezraniwassim/moxnas-confd/internal/server"
	"github.com/Mezraniwassim/moxnas-confd/internal/servicectl"
	"github.com/Mezraniwassim/moxnas-confd/internal/validate"
	"github.com/rs/zerolog"
)

func main() {
	logger := logging.New()
	logger.Info().Msg("moxnas-confd starting")

	cfg, err := config.Load()
	if err != nil {
		logger.Fatal().Err(err).Msg("configuration error")
	}

	services, err := config.LoadServicesFile(cfg.ServicesFile)
	if err != nil {
		logger.Fatal().Err(err).Msg("service mapping error")
	}

	notifier, err := buildNotifier(logger, cfg)
	if err != nil {
		logger.Fatal().Err(err).Msg("notifier configuration error")
	}

	provider := export.NewFileProvider(cfg.ExportsFile)
	renderer := render.New()
	controller := servicectl.NewSystemdController(logger, cfg.SystemctlTimeout)
	metricsCollector := metrics.New()
	tracker := healthcheck.NewTracker()

	checkCommands := make(map[export.ServiceKind][]string)
	for _, svc := range services {
		if len(svc.CheckCommand) > 0 {
			checkCommands[export.ServiceKind(svc.Kind)] = svc.CheckCommand
		}
	}
	validator := validate.NewExecValidator(logger, checkCommands, cfg.SystemctlTimeout)

	orchestrators := make([]*pipeline.Orchestrator, 0, len(services))
	for _, svc := range services {
		mode, err := svc.Mode()
		if err != nil {
			logger.Fatal().Err(err).Str("kind", svc.Kind).Msg("invalid file mode")
		}

		runTimeout := cfg.RunTimeout
		if svc.Timeout > 0 {
			runTimeout = svc.Timeout
		}

		kind := export.ServiceKind(svc.Kind)
		orchestrators = append(orchestrators, pipeline.New(kind, pipeline.Deps{
			Logger:     logger,
			Provider:   provider,
			Renderer:   renderer,
			Validator:  validator,
			Applier:    applier.New(logger, svc.ConfigPath, svc.BackupPath, mode),
			Controller: controller,
			Notifier:   notifier,
			Metrics:    metricsCollector,
			Tracker:    tracker,
			Unit:       svc.Unit,
			RunTimeout: runTimeout,
		}))
		logger.Info().
			Str("kind", svc.Kind).
			Str("unit", svc.Unit).
			Str("config_path", svc.ConfigPath).
			Msg("service registered")
	}

	coord := coordinator.New(logger, orchestrators...)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if cfg.RegenerateOnStart {
		logger.Info().Msg("running initial regeneration pass")
		coord.RunInitial(ctx)
	}

	tracker.MarkReady()
	server.Start(ctx, logger, server.NewMux(coord, tracker, metricsCollector), cfg.HTTPPort)

	if err := coord.Run(ctx); err != nil {
		logger.Error().Err(err).Msg("coordinator exited with error")
	}
	logger.Info().Msg("moxnas-confd stopped")
}

func buildNotifier(logger zerolog.Logger, cfg config.Config) (notify.Notifier, error) {
	notifiers := []notify.Notifier{notify.NewLogNotifier(logger)}

	if cfg.SlackWebhookURL != "" {
		notifiers = append(notifiers, notify.NewSlackNotifier(logger, cfg.SlackWebhookURL))
	}
	if cfg.WebhookURL != "" {
		webhook, err := notify.NewWebhookNotifier(logger, cfg.WebhookURL, cfg.WebhookTemplate)
		if err != nil {
			return nil, err
		}
		notifiers = append(notifiers, webhook)
	}

	if len(notifiers) == 1 {
		return notifiers[0], nil
	}
	return notify.NewMultiNotifier(notifiers...), nil
}
