package service

import (
	"context"
	"fmt"
	"strings"

	systemd "github.com/coreos/go-systemd/v22/dbus"

	"github.com/logicmonitor/collector-agent/internal/domain"
)

// systemdConn is the subset of *systemd.Conn used here.
type systemdConn interface {
	ListUnitsByNamesContext(ctx context.Context, units []string) ([]systemd.UnitStatus, error)
	StartUnitContext(ctx context.Context, name, mode string, ch chan<- string) (int, error)
	StopUnitContext(ctx context.Context, name, mode string, ch chan<- string) (int, error)
	RestartUnitContext(ctx context.Context, name, mode string, ch chan<- string) (int, error)
	Close()
}

// Systemd controls services through the systemd D-Bus API.
type Systemd struct {
	connect func(ctx context.Context) (systemdConn, error)
}

func NewSystemd() *Systemd {
	return &Systemd{
		connect: func(ctx context.Context) (systemdConn, error) {
			return systemd.NewWithContext(ctx)
		},
	}
}

func unitName(name string) string {
	if strings.Contains(name, ".") {
		return name
	}
	return name + ".service"
}

func (s *Systemd) Status(ctx context.Context, name string) (domain.ServiceStatus, error) {
	conn, err := s.connect(ctx)
	if err != nil {
		return "", domain.ErrService{Kind: domain.ServiceStatusQueryFailed, Service: name, Op: "status", Err: err}
	}
	defer conn.Close()

	units, err := conn.ListUnitsByNamesContext(ctx, []string{unitName(name)})
	if err != nil {
		return "", domain.ErrService{Kind: domain.ServiceStatusQueryFailed, Service: name, Op: "status", Err: err}
	}
	for _, u := range units {
		if u.Name == unitName(name) && u.ActiveState == "active" {
			return domain.ServiceRunning, nil
		}
	}
	return domain.ServiceStopped, nil
}

func (s *Systemd) Start(ctx context.Context, name string) error {
	return s.job(ctx, name, "start", func(c systemdConn, ch chan<- string) (int, error) {
		return c.StartUnitContext(ctx, unitName(name), "replace", ch)
	})
}

func (s *Systemd) Stop(ctx context.Context, name string) error {
	return s.job(ctx, name, "stop", func(c systemdConn, ch chan<- string) (int, error) {
		return c.StopUnitContext(ctx, unitName(name), "replace", ch)
	})
}

func (s *Systemd) Restart(ctx context.Context, name string) error {
	return s.job(ctx, name, "restart", func(c systemdConn, ch chan<- string) (int, error) {
		return c.RestartUnitContext(ctx, unitName(name), "replace", ch)
	})
}

// job queues a unit job and waits for systemd to report its result. D-Bus
// jobs carry no exit code, so failures are reported with code -1.
func (s *Systemd) job(ctx context.Context, name, op string, enqueue func(systemdConn, chan<- string) (int, error)) error {
	conn, err := s.connect(ctx)
	if err != nil {
		return domain.ErrService{Kind: domain.ServiceCommandFailed, Service: name, Op: op, Code: -1, Err: err}
	}
	defer conn.Close()

	ch := make(chan string, 1)
	if _, err := enqueue(conn, ch); err != nil {
		return domain.ErrService{Kind: domain.ServiceCommandFailed, Service: name, Op: op, Code: -1, Err: err}
	}

	select {
	case result := <-ch:
		if result != "done" {
			return domain.ErrService{
				Kind:    domain.ServiceCommandFailed,
				Service: name,
				Op:      op,
				Code:    -1,
				Err:     fmt.Errorf("job finished with result %q", result),
			}
		}
		return nil
	case <-ctx.Done():
		return domain.ErrService{Kind: domain.ServiceCommandFailed, Service: name, Op: op, Code: -1, Err: ctx.Err()}
	}
}
