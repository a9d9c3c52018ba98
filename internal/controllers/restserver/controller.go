package restserver

import (
	"context"
	"fmt"
	"net/http"
	"sync"

	"github.com/chrissnell/ecogmark/internal/log"
	"github.com/chrissnell/ecogmark/internal/pipeline"
	"github.com/chrissnell/ecogmark/internal/storage"
	"github.com/chrissnell/ecogmark/internal/types"
	"github.com/chrissnell/ecogmark/pkg/config"
	"github.com/gorilla/handlers"
	"github.com/gorilla/mux"
	"go.uber.org/zap"
)

// Dependencies are the pieces of the application the handlers use
type Dependencies struct {
	Pipeline *pipeline.Pipeline
	// Results receives every completed analysis; may be nil
	Results chan<- types.AnalysisResult
	// Reader serves stored analyses; nil disables /analyses
	Reader storage.Reader
	Health *storage.HealthManager
}

// Controller represents the REST server controller
type Controller struct {
	ctx        context.Context
	wg         *sync.WaitGroup
	restConfig config.RESTServerData
	Server     http.Server
	deps       Dependencies
	logger     *zap.SugaredLogger
	handlers   *Handlers
}

// NewController creates a new REST server controller
func NewController(ctx context.Context, wg *sync.WaitGroup, rc config.RESTServerData, deps Dependencies, logger *zap.SugaredLogger) (*Controller, error) {
	if deps.Pipeline == nil {
		return nil, fmt.Errorf("REST server requires an analysis pipeline")
	}
	if logger == nil {
		logger = zap.NewNop().Sugar()
	}

	if rc.ListenAddr == "" {
		logger.Info("rest.listen-addr not provided; defaulting to 0.0.0.0 (all interfaces)")
		rc.ListenAddr = config.DefaultListenAddr
	}
	if rc.Port == 0 {
		logger.Infof("rest.port not provided; defaulting to %d", config.DefaultPort)
		rc.Port = config.DefaultPort
	}
	if rc.StaticDir == "" {
		rc.StaticDir = config.DefaultStaticDir
	}
	if rc.MaxUploadMB == 0 {
		rc.MaxUploadMB = config.DefaultMaxUploadMB
	}

	ctrl := &Controller{
		ctx:        ctx,
		wg:         wg,
		restConfig: rc,
		deps:       deps,
		logger:     logger,
	}
	ctrl.handlers = NewHandlers(ctrl)

	ctrl.Server.Addr = fmt.Sprintf("%v:%v", rc.ListenAddr, rc.Port)
	ctrl.Server.Handler = handlers.RecoveryHandler(
		handlers.RecoveryLogger(zap.NewStdLog(log.GetZapLogger())),
	)(handlers.CompressHandler(ctrl.setupRouter()))

	return ctrl, nil
}

// StartController starts the REST server
func (c *Controller) StartController() error {
	log.Infof("Starting REST server controller on %s...", c.Server.Addr)
	c.wg.Add(1)

	go func() {
		defer c.wg.Done()

		if c.restConfig.Cert != "" && c.restConfig.Key != "" {
			if err := c.Server.ListenAndServeTLS(c.restConfig.Cert, c.restConfig.Key); err != http.ErrServerClosed {
				log.Errorf("REST server error: %v", err)
			}
		} else {
			if err := c.Server.ListenAndServe(); err != http.ErrServerClosed {
				log.Errorf("REST server error: %v", err)
			}
		}
	}()

	go func() {
		<-c.ctx.Done()
		log.Info("Shutting down the REST server...")
		c.Server.Shutdown(context.Background())
	}()

	return nil
}

// setupRouter configures the HTTP router with all endpoints
func (c *Controller) setupRouter() *mux.Router {
	router := mux.NewRouter()
	router.Use(log.HTTPLogMiddleware)

	router.HandleFunc("/upload", c.handlers.Upload).Methods(http.MethodPost)
	router.HandleFunc("/health", c.handlers.GetHealth).Methods(http.MethodGet)

	if c.deps.Reader != nil {
		router.HandleFunc("/analyses", c.handlers.ListAnalyses).Methods(http.MethodGet)
		router.HandleFunc("/analyses/{id}", c.handlers.GetAnalysis).Methods(http.MethodGet)
		router.HandleFunc("/analyses/{id}/report", c.handlers.GetAnalysisReport).Methods(http.MethodGet)
	}

	router.PathPrefix("/static/").Handler(
		http.StripPrefix("/static/", http.FileServer(http.Dir(c.restConfig.StaticDir))))

	return router
}
