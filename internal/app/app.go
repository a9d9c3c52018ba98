// Package app wires storage, the analysis pipeline and the controllers
// into one running service.
package app

import (
	"context"
	"os"
	"os/signal"
	"sync"
	"syscall"

	"github.com/chrissnell/ecogmark/internal/classifier"
	"github.com/chrissnell/ecogmark/internal/controllers/restserver"
	"github.com/chrissnell/ecogmark/internal/log"
	"github.com/chrissnell/ecogmark/internal/managers"
	"github.com/chrissnell/ecogmark/internal/pipeline"
	"github.com/chrissnell/ecogmark/pkg/config"
	"go.uber.org/zap"
)

// App represents the main application
type App struct {
	configProvider config.ConfigProvider
	logger         *zap.SugaredLogger
}

// New creates a new application instance
func New(configProvider config.ConfigProvider, logger *zap.SugaredLogger) *App {
	return &App{
		configProvider: configProvider,
		logger:         logger,
	}
}

// NewPipeline builds the analysis pipeline from the annotator settings
func NewPipeline(ann *config.AnnotatorData, logger *zap.SugaredLogger) *pipeline.Pipeline {
	var cl pipeline.Classifier
	if c := ann.Classifier; c != nil {
		cl = classifier.NewClient(c.Endpoint, c.WindowSeconds, ann.SamplingRate, c.TimeoutDuration(), logger.Named("classifier"))
	}
	return pipeline.New(ann.SamplingRate, ann.ChannelLabels(), cl, logger.Named("pipeline"))
}

// Run starts the application and blocks until shutdown
func (a *App) Run(ctx context.Context) error {
	var wg sync.WaitGroup

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	cfg, err := a.configProvider.LoadConfig()
	if err != nil {
		return err
	}

	storageManager, err := managers.NewStorageManager(ctx, &wg, &cfg.Storage)
	if err != nil {
		return err
	}

	deps := restserver.Dependencies{
		Pipeline: NewPipeline(&cfg.Annotator, a.logger),
		Results:  storageManager.GetResultDistributor(),
		Reader:   storageManager.Reader(),
		Health:   storageManager.Health,
	}

	cm, err := managers.NewControllerManager(ctx, &wg, cfg.Controllers, deps, a.logger)
	if err != nil {
		return err
	}
	if err := cm.StartControllers(); err != nil {
		return err
	}

	log.Info("Application started successfully")

	sigs := make(chan os.Signal, 1)
	signal.Notify(sigs, syscall.SIGINT, syscall.SIGTERM)

	select {
	case <-sigs:
		log.Info("shutdown signal received, initiating graceful shutdown...")
	case <-ctx.Done():
		log.Info("context cancelled, shutting down...")
	}

	cancel()

	log.Info("waiting for all workers to terminate...")
	wg.Wait()
	log.Info("shutdown complete")

	return nil
}
