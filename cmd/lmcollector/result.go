package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"

	"github.com/logicmonitor/collector-agent/internal/collector"
	"github.com/logicmonitor/collector-agent/internal/domain"
	"github.com/logicmonitor/collector-agent/internal/rpc"
)

// result is the JSON document written to stdout for every command.
type result struct {
	Failed     bool                `json:"failed,omitempty"`
	Msg        string              `json:"msg,omitempty"`
	Action     string              `json:"action,omitempty"`
	Host       string              `json:"host,omitempty"`
	InstallDir string              `json:"install_dir,omitempty"`
	Installer  string              `json:"installer,omitempty"`
	Collector  *domain.AgentRecord `json:"collector,omitempty"`
}

func failure(action string) result {
	return result{Failed: true, Msg: "failed requesting " + action}
}

func writeResult(w io.Writer, res result) error {
	data, err := json.Marshal(res)
	if err != nil {
		return err
	}
	_, err = fmt.Fprintln(w, string(data))
	return err
}

var lifecycleActions = map[string]bool{
	"create":    true,
	"delete":    true,
	"install":   true,
	"uninstall": true,
	"start":     true,
	"stop":      true,
	"restart":   true,
}

// lifecycle runs one collector operation by name.
func lifecycle(ctx context.Context, c *collector.Collector, action string) (result, error) {
	res := result{Action: action, Host: c.Host(), InstallDir: c.InstallDir()}

	var err error
	switch action {
	case "create":
		res.Collector, err = c.Create(ctx)
	case "delete":
		err = c.Delete(ctx)
	case "install":
		res.Installer, err = c.Install(ctx)
		res.Collector = c.Record()
	case "uninstall":
		err = c.Uninstall(ctx)
	case "start":
		err = c.Start(ctx)
	case "stop":
		err = c.Stop(ctx)
	case "restart":
		err = c.Restart(ctx)
	default:
		err = fmt.Errorf("unknown action %q", action)
	}
	return res, err
}

// rawCall performs action as a plain RPC and returns the response body once
// the envelope reports success.
func rawCall(ctx context.Context, caller rpc.Caller, action string, params map[string]string) (json.RawMessage, error) {
	body, err := caller.Call(ctx, action, params)
	if err != nil {
		return nil, err
	}
	if _, err := rpc.Decode[json.RawMessage](action, body); err != nil {
		return nil, err
	}
	return body, nil
}
