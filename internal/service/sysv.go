package service

import (
	"bytes"
	"context"
	"fmt"

	"github.com/logicmonitor/collector-agent/internal/domain"
	"github.com/logicmonitor/collector-agent/internal/system"
)

// SysV controls services through the service(8) wrapper.
type SysV struct {
	runner system.Runner
	bin    string
}

func NewSysV(runner system.Runner) *SysV {
	return &SysV{runner: runner, bin: "service"}
}

// Status runs "service <name> status". Exit 0 with "is running" in the
// output is running, any other exit-0 output is stopped. LSB exit codes 1-3
// mean the service is not running; everything else is a failed query.
func (s *SysV) Status(ctx context.Context, name string) (domain.ServiceStatus, error) {
	res, err := s.runner.Run(ctx, s.bin, name, "status")
	if err != nil {
		return "", domain.ErrService{Kind: domain.ServiceStatusQueryFailed, Service: name, Op: "status", Err: err}
	}
	switch res.ExitCode {
	case 0:
		if bytes.Contains(res.Output, []byte("is running")) {
			return domain.ServiceRunning, nil
		}
		return domain.ServiceStopped, nil
	case 1, 2, 3:
		return domain.ServiceStopped, nil
	default:
		return "", domain.ErrService{
			Kind:    domain.ServiceStatusQueryFailed,
			Service: name,
			Op:      "status",
			Code:    res.ExitCode,
			Err:     fmt.Errorf("unknown service status: %s", bytes.TrimSpace(res.Output)),
		}
	}
}

func (s *SysV) Start(ctx context.Context, name string) error {
	return s.control(ctx, name, "start")
}

func (s *SysV) Stop(ctx context.Context, name string) error {
	return s.control(ctx, name, "stop")
}

func (s *SysV) Restart(ctx context.Context, name string) error {
	return s.control(ctx, name, "restart")
}

func (s *SysV) control(ctx context.Context, name, op string) error {
	res, err := s.runner.Run(ctx, s.bin, name, op)
	if err != nil {
		return domain.ErrService{Kind: domain.ServiceCommandFailed, Service: name, Op: op, Code: -1, Err: err}
	}
	if res.ExitCode != 0 {
		return domain.ErrService{Kind: domain.ServiceCommandFailed, Service: name, Op: op, Code: res.ExitCode}
	}
	return nil
}
