// Package collector composes inventory, installer and service control into
// the lifecycle operations for the collector on one host.
package collector

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/google/uuid"

	"github.com/logicmonitor/collector-agent/internal/domain"
	"github.com/logicmonitor/collector-agent/internal/lock"
)

type Inventory interface {
	Lookup(ctx context.Context, host string) (*domain.AgentRecord, error)
	Resolve(ctx context.Context, host string) (*domain.AgentRecord, error)
	Delete(ctx context.Context, rec *domain.AgentRecord) error
}

type Installer interface {
	EnsureInstalled(ctx context.Context, rec *domain.AgentRecord, dir string) (string, error)
	Uninstall(ctx context.Context, dir string) error
}

type Services interface {
	Start(ctx context.Context) error
	Stop(ctx context.Context) error
	Restart(ctx context.Context) error
}

// Collector manages the collector of a single host for one session. It is
// not safe for concurrent use; callers coordinate across processes with a
// host lock (WithLock) or server-side uniqueness of descriptions.
type Collector struct {
	host       string
	installDir string

	inventory Inventory
	installer Installer
	services  Services
	locker    *lock.Locker
	logger    *slog.Logger

	record *domain.AgentRecord
}

type Option func(*Collector)

// WithLock serialises Create, Install and Delete per host identity.
func WithLock(l *lock.Locker) Option {
	return func(c *Collector) { c.locker = l }
}

// New creates the collector for host. A nil logger uses slog.Default.
func New(host, installDir string, inv Inventory, inst Installer, svc Services, logger *slog.Logger, opts ...Option) *Collector {
	if logger == nil {
		logger = slog.Default()
	}
	c := &Collector{
		host:       host,
		installDir: installDir,
		inventory:  inv,
		installer:  inst,
		services:   svc,
		logger:     logger.With("session", uuid.NewString(), "host", host),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Host is the identity the collector is registered under.
func (c *Collector) Host() string { return c.host }

// InstallDir is where the collector is installed.
func (c *Collector) InstallDir() string { return c.installDir }

// Record is the collector record known to this session, or nil.
func (c *Collector) Record() *domain.AgentRecord { return c.record }

// Create registers the host's collector, reusing an existing record.
func (c *Collector) Create(ctx context.Context) (*domain.AgentRecord, error) {
	var rec *domain.AgentRecord
	err := c.locked(ctx, func() error {
		var err error
		rec, err = c.resolve(ctx)
		return err
	})
	return rec, err
}

// Delete removes the host's collector record. It never registers one.
func (c *Collector) Delete(ctx context.Context) error {
	return c.locked(ctx, func() error {
		rec := c.record
		if rec == nil {
			found, err := c.inventory.Lookup(ctx, c.host)
			if err != nil {
				return err
			}
			if found == nil {
				c.logger.Info("no collector registered, nothing to delete")
				return nil
			}
			rec = found
		}
		if err := c.inventory.Delete(ctx, rec); err != nil {
			return err
		}
		c.record = nil
		return nil
	})
}

// Install registers the collector, installs it and starts its services.
// It returns the installer path.
func (c *Collector) Install(ctx context.Context) (string, error) {
	var path string
	err := c.locked(ctx, func() error {
		rec, err := c.resolve(ctx)
		if err != nil {
			return err
		}
		path, err = c.installer.EnsureInstalled(ctx, rec, c.installDir)
		if err != nil {
			return err
		}
		return c.services.Start(ctx)
	})
	return path, err
}

// Uninstall stops the services and runs the collector's uninstaller.
func (c *Collector) Uninstall(ctx context.Context) error {
	if err := c.services.Stop(ctx); err != nil {
		return err
	}
	return c.installer.Uninstall(ctx, c.installDir)
}

func (c *Collector) Start(ctx context.Context) error   { return c.services.Start(ctx) }
func (c *Collector) Stop(ctx context.Context) error    { return c.services.Stop(ctx) }
func (c *Collector) Restart(ctx context.Context) error { return c.services.Restart(ctx) }

func (c *Collector) resolve(ctx context.Context) (*domain.AgentRecord, error) {
	rec, err := c.inventory.Resolve(ctx, c.host)
	if err != nil {
		return nil, err
	}
	c.record = rec
	c.logger.Info("collector resolved", "id", rec.ID, "is_down", rec.IsDown)
	return rec, nil
}

func (c *Collector) locked(ctx context.Context, fn func() error) error {
	if c.locker == nil {
		return fn()
	}
	l, err := c.locker.Acquire(ctx, c.host)
	if err != nil {
		return fmt.Errorf("lock %s: %w", c.host, err)
	}
	defer func() {
		if err := l.Release(); err != nil {
			c.logger.Warn("failed to release host lock", "err", err)
		}
	}()
	return fn()
}
