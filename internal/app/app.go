package app

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"

	"github.com/google/uuid"

	"ProtagonismAnalyzer/internal/classification"
	"ProtagonismAnalyzer/internal/config"
	"ProtagonismAnalyzer/internal/consolidate"
	"ProtagonismAnalyzer/internal/domain"
	"ProtagonismAnalyzer/internal/infrastructure/llm"
	"ProtagonismAnalyzer/internal/infrastructure/ml"
	"ProtagonismAnalyzer/internal/infrastructure/scheduler"
	"ProtagonismAnalyzer/internal/infrastructure/source"
	"ProtagonismAnalyzer/internal/infrastructure/telegram"
	"ProtagonismAnalyzer/internal/infrastructure/xlsx"
	"ProtagonismAnalyzer/internal/logging"
	"ProtagonismAnalyzer/internal/metrics"
	"ProtagonismAnalyzer/internal/ports"
	"ProtagonismAnalyzer/internal/protagonism"
	"ProtagonismAnalyzer/internal/report"
	"ProtagonismAnalyzer/internal/scanner"
	"ProtagonismAnalyzer/internal/usecase"
)

// Application wires configs to use cases and lifecycle orchestration.
type Application struct {
	cfg      config.Config
	pipeline *usecase.Pipeline
	logger   *slog.Logger
}

// New builds a runnable application instance.
func New(cfg config.Config, baseLogger *slog.Logger) (*Application, error) {
	if baseLogger == nil {
		baseLogger = logging.New(cfg.Logging.Level, cfg.Logging.Format)
	}

	endpoints, err := cfg.DomainEndpoints()
	if err != nil {
		return nil, err
	}
	service, err := newClassifierService(cfg.Classifier)
	if err != nil {
		return nil, err
	}

	recorder := metrics.New()
	brands := cfg.DomainBrands()
	names := domain.BrandNames(brands)

	registry := scanner.NewRegistry()
	registry.Register(source.NewBrandAPIScanner(&http.Client{Timeout: cfg.Source.Timeout}, cfg.Source,
		baseLogger.With("component", "scanner.brandapi")))
	articleSource := source.NewStrategySource(registry, baseLogger.With("component", "source"))

	client := classification.NewClient(service, policyFrom(cfg.Classifier), recorder,
		baseLogger.With("component", "classification"))
	classifier := protagonism.NewClassifier(client, brands, protagonism.Options{
		FanOut:            cfg.Pipeline.FanOut,
		FailureThreshold:  cfg.Pipeline.FailureThreshold,
		FailureBasis:      domain.FailureBasis(cfg.Pipeline.FailureBasis),
		TitleRule:         cfg.Pipeline.TitleRule,
		ChannelFilter:     cfg.Pipeline.ChannelFilter,
		MentionCorrection: cfg.Pipeline.MentionCorrection,
	}, recorder, baseLogger.With("component", "protagonism"))

	var notifier ports.Notifier
	if cfg.Notifications.Telegram.Enabled() {
		tg := cfg.Notifications.Telegram
		notifier = telegram.NewNotifier(tg.APIURL, tg.BotToken, tg.ChatID)
	}

	pipeline := usecase.NewPipeline(usecase.PipelineDeps{
		Source:         articleSource,
		Endpoints:      endpoints,
		Classifier:     classifier,
		Consolidator:   consolidate.New(names, baseLogger.With("component", "consolidate")),
		Builder:        report.NewBuilder(names, cfg.Report.LinkText),
		Writer:         xlsx.NewWriter(cfg.Report.OutputDir, baseLogger),
		Notifier:       notifier,
		Metrics:        recorder,
		PushgatewayURL: cfg.Metrics.PushgatewayURL,
		MetricsJob:     cfg.Metrics.Job,
		Logger:         baseLogger.With("component", "pipeline"),
	})
	return &Application{cfg: cfg, pipeline: pipeline, logger: baseLogger}, nil
}

func newClassifierService(cfg config.ClassifierConfig) (ports.ClassifierService, error) {
	switch cfg.Provider {
	case "deepseek":
		return llm.NewDeepSeekClient(cfg, nil), nil
	case "http":
		return ml.NewClient(cfg.Endpoint, cfg.APIKey, nil), nil
	default:
		return nil, fmt.Errorf("unknown classifier provider %q", cfg.Provider)
	}
}

func policyFrom(cfg config.ClassifierConfig) classification.Policy {
	policy := classification.DefaultPolicy()
	policy.MaxAttempts = cfg.MaxAttempts
	policy.BaseDelay = cfg.BaseDelay
	policy.MaxDelay = cfg.MaxDelay
	policy.RateLimitBaseDelay = cfg.RateLimitBaseDelay
	policy.RateLimitMaxDelay = cfg.RateLimitMaxDelay
	policy.CallTimeout = cfg.CallTimeout
	policy.MaxElapsed = cfg.MaxElapsed
	policy.MaxTextRunes = cfg.MaxTextRunes
	policy.RequestsPerSecond = cfg.RequestsPerSecond
	return policy
}

// Run performs a single pipeline execution.
func (a *Application) Run(ctx context.Context) (domain.RunSummary, error) {
	result, err := a.pipeline.Run(ctx, uuid.NewString(), nil)
	return result.Summary, err
}

// Schedule runs the pipeline every schedule interval until ctx is done.
func (a *Application) Schedule(ctx context.Context) error {
	driver := scheduler.NewTickerScheduler(a.cfg.Schedule.Interval, a.cfg.Schedule.Location())
	sched := usecase.NewScheduler(driver, a.pipeline, uuid.NewString)
	if err := sched.Start(ctx); err != nil {
		return fmt.Errorf("start scheduler: %w", err)
	}
	a.logger.Info("scheduler started",
		"interval", a.cfg.Schedule.Interval,
		"timezone", a.cfg.Schedule.Location().String())

	<-ctx.Done()
	// Let an in-flight run observe cancellation and report before exiting.
	if err := sched.Stop(context.WithoutCancel(ctx)); err != nil {
		return fmt.Errorf("stop scheduler: %w", err)
	}
	a.logger.Info("scheduler stopped")
	return nil
}
