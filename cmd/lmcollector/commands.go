package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"

	"github.com/spf13/cobra"

	"github.com/logicmonitor/collector-agent/internal/config"
)

func newRootCmd() *cobra.Command {
	opts := &options{}

	root := &cobra.Command{
		Use:   "lmcollector",
		Short: "Manage the LogicMonitor collector on this host",
		Long: `Register, install and control the LogicMonitor collector of this host.

Every command prints one JSON document on stdout. On failure it is
{"failed": true, "msg": "failed requesting <action>"} and the exit code is 1.
Logs go to LM_LOG_DIR, or stderr when unset.`,
		Version:       config.Version,
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	flags := root.PersistentFlags()
	flags.StringVar(&opts.configPath, "config", defaultConfigPath(), "YAML config file (LM_CONFIG)")
	flags.StringVar(&opts.installDir, "install-dir", "", "collector install directory (LM_INSTALL_DIR)")
	flags.StringVar(&opts.hostname, "hostname", "", "host identity, defaults to the FQDN (LM_HOSTNAME)")
	flags.StringVar(&opts.credentialsFile, "credentials-file", "", "key=value credentials file (LM_CREDENTIALS_FILE)")
	flags.BoolVar(&opts.debug, "debug", false, "debug logging (LM_DEBUG)")

	root.AddCommand(
		newLifecycleCmd(opts, "create", "Register the collector, reusing an existing record"),
		newLifecycleCmd(opts, "delete", "Remove the collector record"),
		newLifecycleCmd(opts, "install", "Register, install and start the collector"),
		newLifecycleCmd(opts, "uninstall", "Stop the collector and run its uninstaller"),
		newLifecycleCmd(opts, "start", "Start the collector services"),
		newLifecycleCmd(opts, "stop", "Stop the collector services"),
		newLifecycleCmd(opts, "restart", "Restart the collector services"),
		newRPCCmd(opts),
		newRunCmd(opts),
	)
	return root
}

func newLifecycleCmd(opts *options, action, short string) *cobra.Command {
	return &cobra.Command{
		Use:   action,
		Short: short,
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return dispatch(cmd.Context(), opts, action, nil, cmd.OutOrStdout())
		},
	}
}

func newRPCCmd(opts *options) *cobra.Command {
	return &cobra.Command{
		Use:   "rpc ACTION [key=value ...]",
		Short: "Call an RPC action and print its response",
		Example: `  lmcollector rpc getAgents
  lmcollector rpc getHost displayName=web01`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			action := args[0]
			params, err := parseParams(args[1:])
			if err != nil {
				return report(cmd.OutOrStdout(), nil, action, err)
			}
			return call(cmd.Context(), opts, action, params, cmd.OutOrStdout())
		},
	}
}

func newRunCmd(opts *options) *cobra.Command {
	return &cobra.Command{
		Use:   "run ARGSFILE",
		Short: "Run the request described by a key=value args file",
		Long: `Read shell-quoted key=value tokens from ARGSFILE. The action token selects
a collector operation (create, delete, install, uninstall, start, stop,
restart) or any other RPC action, which receives the remaining tokens as
parameters. Credentials (c, u, p), installdir, credentials_file and, for
collector operations, hostname override the configuration.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			out := cmd.OutOrStdout()
			data, err := os.ReadFile(args[0])
			if err != nil {
				return report(out, nil, "run", err)
			}
			inv, err := parseArgs(string(data))
			if err != nil {
				return report(out, nil, "run", err)
			}
			inv.applyTo(opts)

			if lifecycleActions[inv.action] {
				return dispatch(cmd.Context(), opts, inv.action, inv.params, out)
			}
			return call(cmd.Context(), opts, inv.action, inv.params, out)
		},
	}
}

// dispatch runs a collector operation.
func dispatch(ctx context.Context, opts *options, action string, params map[string]string, out io.Writer) error {
	a, err := newApp(opts)
	if err != nil {
		return report(out, nil, action, err)
	}
	if len(params) > 0 {
		a.logger.Debug("ignoring parameters for collector operation", "action", action, "count", len(params))
	}

	c, err := a.collector(ctx)
	if err != nil {
		return report(out, a.logger, action, err)
	}
	res, err := lifecycle(ctx, c, action)
	if err != nil {
		return report(out, a.logger, action, err)
	}
	a.logger.Info("action completed", "action", action)
	return writeResult(out, res)
}

// call performs a raw RPC and prints the response body.
func call(ctx context.Context, opts *options, action string, params map[string]string, out io.Writer) error {
	a, err := newApp(opts)
	if err != nil {
		return report(out, nil, action, err)
	}
	body, err := rawCall(ctx, a.client, action, params)
	if err != nil {
		return report(out, a.logger, action, err)
	}
	_, err = fmt.Fprintln(out, string(body))
	return err
}

// report logs err and prints the failure document.
func report(out io.Writer, logger *slog.Logger, action string, err error) error {
	if logger == nil {
		logger = slog.Default()
	}
	logger.Error("action failed", "action", action, "err", err)
	if werr := writeResult(out, failure(action)); werr != nil {
		return errors.Join(err, werr)
	}
	return err
}
