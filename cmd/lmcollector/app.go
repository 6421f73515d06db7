package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"

	"github.com/logicmonitor/collector-agent/internal/collector"
	"github.com/logicmonitor/collector-agent/internal/config"
	"github.com/logicmonitor/collector-agent/internal/credentials"
	"github.com/logicmonitor/collector-agent/internal/installer"
	"github.com/logicmonitor/collector-agent/internal/inventory"
	"github.com/logicmonitor/collector-agent/internal/lock"
	"github.com/logicmonitor/collector-agent/internal/paths"
	"github.com/logicmonitor/collector-agent/internal/rpc"
	"github.com/logicmonitor/collector-agent/internal/service"
	"github.com/logicmonitor/collector-agent/internal/system"
)

// options are the persistent flags. Non-empty values override the config.
type options struct {
	configPath      string
	installDir      string
	hostname        string
	credentialsFile string
	debug           bool

	// creds set in an args file win over every other source.
	creds credentials.Credentials
}

type app struct {
	cfg    *config.Config
	logger *slog.Logger
	client *rpc.Client
}

func newApp(opts *options) (*app, error) {
	cfg, err := config.LoadFrom(opts.configPath)
	if err != nil {
		return nil, err
	}
	opts.apply(cfg)

	logger, err := config.NewLogger(cfg, "lmcollector")
	if err != nil {
		return nil, err
	}
	slog.SetDefault(logger)

	explicit := credentials.Credentials{Company: cfg.Company, User: cfg.User, Secret: cfg.Password}
	creds, err := credentials.Resolve(explicit, cfg.CredentialsFile)
	if err != nil {
		return nil, err
	}

	client, err := rpc.NewClient(creds, rpc.Options{
		ServiceHost: cfg.ServiceHost,
		RPCPath:     cfg.RPCPath,
		Endpoint:    cfg.Endpoint,
		Timeout:     cfg.RequestTimeout,
		RetryMax:    cfg.RetryMax,
	}, logger)
	if err != nil {
		return nil, err
	}

	logger.Debug("lmcollector configured",
		"version", config.Version,
		"company", creds.Company,
		"install_dir", cfg.InstallDir,
		"service_backend", cfg.ServiceBackend,
	)
	return &app{cfg: cfg, logger: logger, client: client}, nil
}

func (o *options) apply(cfg *config.Config) {
	if o.installDir != "" {
		cfg.InstallDir = o.installDir
	}
	if o.hostname != "" {
		cfg.Hostname = o.hostname
	}
	if o.credentialsFile != "" {
		cfg.CredentialsFile = o.credentialsFile
	}
	if o.debug {
		cfg.Debug = true
	}
	if o.creds.Company != "" {
		cfg.Company = o.creds.Company
	}
	if o.creds.User != "" {
		cfg.User = o.creds.User
	}
	if o.creds.Secret != "" {
		cfg.Password = o.creds.Secret
	}
}

// collector wires the lifecycle facade for this host.
func (a *app) collector(ctx context.Context) (*collector.Collector, error) {
	host := a.cfg.Hostname
	if host == "" {
		var err error
		if host, err = system.FQDN(ctx); err != nil {
			return nil, fmt.Errorf("resolve host identity: %w", err)
		}
	}

	platform := system.DetectPlatform()
	runner := system.NewExecRunner(a.logger)
	manager, err := service.NewManager(a.cfg.ServiceBackend, runner)
	if err != nil {
		return nil, err
	}

	var opts []collector.Option
	if a.cfg.LockDir != "" {
		dir := paths.Resolve(a.cfg.LockDir, "locks", a.logger)
		opts = append(opts, collector.WithLock(lock.New(dir, a.cfg.LockTimeout)))
	}

	return collector.New(host, a.cfg.InstallDir,
		inventory.NewResolver(a.client, a.logger),
		installer.NewInstaller(a.client, runner, platform, a.logger),
		service.NewController(manager, platform, a.logger),
		a.logger,
		opts...,
	), nil
}

func defaultConfigPath() string {
	return os.Getenv("LM_CONFIG")
}
