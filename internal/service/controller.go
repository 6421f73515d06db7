// Package service starts and stops the collector and its watchdog.
package service

import (
	"context"
	"log/slog"
	"slices"

	"github.com/logicmonitor/collector-agent/internal/domain"
)

// Manager is the OS service control interface for a single named service.
type Manager interface {
	Status(ctx context.Context, name string) (domain.ServiceStatus, error)
	Start(ctx context.Context, name string) error
	Stop(ctx context.Context, name string) error
	Restart(ctx context.Context, name string) error
}

var unitNames = []string{domain.AgentService, domain.WatchdogService}

// Controller drives the collector services. Start and Stop consult the
// current status first; Restart does not.
type Controller struct {
	manager  Manager
	platform domain.Platform
	services []string
	logger   *slog.Logger
}

func NewController(manager Manager, platform domain.Platform, logger *slog.Logger) *Controller {
	if logger == nil {
		logger = slog.Default()
	}
	return &Controller{
		manager:  manager,
		platform: platform,
		services: slices.Clone(unitNames),
		logger:   logger,
	}
}

// Services returns the units managed for a collector, in start order.
func Services() []string {
	return slices.Clone(unitNames)
}

func (c *Controller) Start(ctx context.Context) error {
	if err := c.checkPlatform("start"); err != nil {
		return err
	}
	for _, name := range c.services {
		status, err := c.manager.Status(ctx, name)
		if err != nil {
			return err
		}
		if status == domain.ServiceRunning {
			c.logger.Debug("service already running", "service", name)
			continue
		}
		if err := c.manager.Start(ctx, name); err != nil {
			return err
		}
		c.logger.Info("service started", "service", name)
	}
	return nil
}

func (c *Controller) Stop(ctx context.Context) error {
	if err := c.checkPlatform("stop"); err != nil {
		return err
	}
	for _, name := range c.services {
		status, err := c.manager.Status(ctx, name)
		if err != nil {
			return err
		}
		if status != domain.ServiceRunning {
			c.logger.Debug("service not running", "service", name)
			continue
		}
		if err := c.manager.Stop(ctx, name); err != nil {
			return err
		}
		c.logger.Info("service stopped", "service", name)
	}
	return nil
}

func (c *Controller) Restart(ctx context.Context) error {
	if err := c.checkPlatform("restart"); err != nil {
		return err
	}
	for _, name := range c.services {
		if err := c.manager.Restart(ctx, name); err != nil {
			return err
		}
		c.logger.Info("service restarted", "service", name)
	}
	return nil
}

// Status reports the state of every collector service.
func (c *Controller) Status(ctx context.Context) (map[string]domain.ServiceStatus, error) {
	if err := c.checkPlatform("status"); err != nil {
		return nil, err
	}
	out := make(map[string]domain.ServiceStatus, len(c.services))
	for _, name := range c.services {
		status, err := c.manager.Status(ctx, name)
		if err != nil {
			return nil, err
		}
		out[name] = status
	}
	return out, nil
}

func (c *Controller) checkPlatform(op string) error {
	if c.platform.Kind != domain.PlatformLinux {
		return domain.ErrService{Kind: domain.ServicePlatformUnsupported, Op: op}
	}
	return nil
}
