package managers

import (
	"context"
	"fmt"
	"sync"

	"github.com/chrissnell/ecogmark/internal/controllers/restserver"
	"github.com/chrissnell/ecogmark/pkg/config"
	"go.uber.org/zap"
)

// ControllerManager interface for the controller manager
type ControllerManager interface {
	StartControllers() error
}

// Controller is an interface that provides standard methods for various controller backends
type Controller interface {
	StartController() error
}

type controllerManager struct {
	ctx         context.Context
	wg          *sync.WaitGroup
	deps        restserver.Dependencies
	logger      *zap.SugaredLogger
	controllers []Controller
}

// NewControllerManager creates a controller for every configured entry
func NewControllerManager(ctx context.Context, wg *sync.WaitGroup, controllers []config.ControllerData, deps restserver.Dependencies, logger *zap.SugaredLogger) (ControllerManager, error) {
	cm := &controllerManager{
		ctx:         ctx,
		wg:          wg,
		deps:        deps,
		logger:      logger,
		controllers: make([]Controller, 0, len(controllers)),
	}

	for _, con := range controllers {
		controller, err := cm.createController(con)
		if err != nil {
			return nil, fmt.Errorf("error creating controller: %v", err)
		}
		cm.controllers = append(cm.controllers, controller)
	}

	return cm, nil
}

func (c *controllerManager) StartControllers() error {
	c.logger.Info("Starting controller manager...")

	for _, controller := range c.controllers {
		if err := controller.StartController(); err != nil {
			return fmt.Errorf("error starting controller: %v", err)
		}
	}

	c.logger.Infof("Started %d controllers successfully", len(c.controllers))
	return nil
}

// createController creates a controller based on the controller configuration
func (cm *controllerManager) createController(cc config.ControllerData) (Controller, error) {
	switch cc.Type {
	case "rest", "restserver":
		var rc config.RESTServerData
		if cc.RESTServer != nil {
			rc = *cc.RESTServer
		}
		return restserver.NewController(cm.ctx, cm.wg, rc, cm.deps, cm.logger.Named("restserver"))
	default:
		return nil, fmt.Errorf("unknown controller type: %s", cc.Type)
	}
}
