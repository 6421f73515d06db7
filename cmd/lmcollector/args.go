package main

import (
	"errors"
	"fmt"
	"strings"

	"mvdan.cc/sh/v3/shell"

	"github.com/logicmonitor/collector-agent/internal/credentials"
)

// invocation is one request read from an args file.
type invocation struct {
	action string
	params map[string]string
}

// parseArgs reads shell-quoted key=value tokens. Tokens without "=" are
// ignored. Variable references are kept as written.
func parseArgs(data string) (invocation, error) {
	fields, err := shell.Fields(data, keepReference)
	if err != nil {
		return invocation{}, fmt.Errorf("parse args: %w", err)
	}

	inv := invocation{params: make(map[string]string)}
	for _, field := range fields {
		key, value, ok := strings.Cut(field, "=")
		if !ok || key == "" {
			continue
		}
		if key == "action" {
			inv.action = value
			continue
		}
		inv.params[key] = value
	}
	if inv.action == "" {
		return inv, errors.New("parse args: no action given")
	}
	return inv, nil
}

func keepReference(name string) string {
	return "$" + name
}

// parseParams turns key=value command line arguments into RPC parameters.
func parseParams(args []string) (map[string]string, error) {
	params := make(map[string]string, len(args))
	for _, arg := range args {
		key, value, ok := strings.Cut(arg, "=")
		if !ok || key == "" {
			return nil, fmt.Errorf("parameter %q is not key=value", arg)
		}
		params[key] = value
	}
	return params, nil
}

// applyTo moves credentials and local settings out of the request params
// into opts. What remains is sent with a raw RPC.
func (inv *invocation) applyTo(opts *options) {
	opts.creds = credentials.FromMap(inv.params)

	for key, value := range inv.params {
		switch {
		case credentials.IsKey(key):
		case key == "installdir", key == "install_dir":
			opts.installDir = value
		case key == "credentials_file":
			opts.credentialsFile = value
		case key == "hostname" && lifecycleActions[inv.action]:
			opts.hostname = value
		default:
			continue
		}
		delete(inv.params, key)
	}
}
