package service

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/logicmonitor/collector-agent/internal/domain"
)

var linux = domain.Platform{Kind: domain.PlatformLinux, Arch: 64}

type fakeManager struct {
	status    map[string]domain.ServiceStatus
	statusErr error
	failOp    string
	calls     []string
}

func newFakeManager(agent, watchdog domain.ServiceStatus) *fakeManager {
	return &fakeManager{status: map[string]domain.ServiceStatus{
		domain.AgentService:    agent,
		domain.WatchdogService: watchdog,
	}}
}

func (f *fakeManager) Status(_ context.Context, name string) (domain.ServiceStatus, error) {
	f.calls = append(f.calls, "status "+name)
	if f.statusErr != nil {
		return "", f.statusErr
	}
	return f.status[name], nil
}

func (f *fakeManager) do(op, name string, next domain.ServiceStatus) error {
	f.calls = append(f.calls, op+" "+name)
	if f.failOp == op {
		return domain.ErrService{Kind: domain.ServiceCommandFailed, Service: name, Op: op, Code: 1}
	}
	f.status[name] = next
	return nil
}

func (f *fakeManager) Start(_ context.Context, name string) error {
	return f.do("start", name, domain.ServiceRunning)
}

func (f *fakeManager) Stop(_ context.Context, name string) error {
	return f.do("stop", name, domain.ServiceStopped)
}

func (f *fakeManager) Restart(_ context.Context, name string) error {
	return f.do("restart", name, domain.ServiceRunning)
}

func (f *fakeManager) count(op string) int {
	n := 0
	for _, c := range f.calls {
		if len(c) > len(op) && c[:len(op)+1] == op+" " {
			n++
		}
	}
	return n
}

func newController(m Manager, p domain.Platform) *Controller {
	return NewController(m, p, slog.New(slog.NewTextHandler(io.Discard, nil)))
}

func TestStartSkipsRunningServices(t *testing.T) {
	m := newFakeManager(domain.ServiceRunning, domain.ServiceRunning)

	require.NoError(t, newController(m, linux).Start(context.Background()))
	assert.Zero(t, m.count("start"))
	assert.Equal(t, 2, m.count("status"))
}

func TestStartStartsStoppedServices(t *testing.T) {
	m := newFakeManager(domain.ServiceStopped, domain.ServiceRunning)

	require.NoError(t, newController(m, linux).Start(context.Background()))
	assert.Equal(t, []string{
		"status " + domain.AgentService,
		"start " + domain.AgentService,
		"status " + domain.WatchdogService,
	}, m.calls)
}

func TestStopOnlyStopsRunningServices(t *testing.T) {
	m := newFakeManager(domain.ServiceRunning, domain.ServiceStopped)

	require.NoError(t, newController(m, linux).Stop(context.Background()))
	assert.Equal(t, []string{
		"status " + domain.AgentService,
		"stop " + domain.AgentService,
		"status " + domain.WatchdogService,
	}, m.calls)
}

func TestRestartIsUnconditional(t *testing.T) {
	for _, st := range []domain.ServiceStatus{domain.ServiceRunning, domain.ServiceStopped} {
		m := newFakeManager(st, st)

		require.NoError(t, newController(m, linux).Restart(context.Background()))
		assert.Equal(t, []string{
			"restart " + domain.AgentService,
			"restart " + domain.WatchdogService,
		}, m.calls)
	}
}

func TestUnsupportedPlatform(t *testing.T) {
	m := newFakeManager(domain.ServiceStopped, domain.ServiceStopped)
	c := newController(m, domain.Platform{Kind: domain.PlatformWindows, Arch: 64})

	for _, op := range []func(context.Context) error{c.Start, c.Stop, c.Restart} {
		err := op(context.Background())
		var svcErr domain.ErrService
		require.ErrorAs(t, err, &svcErr)
		assert.Equal(t, domain.ServicePlatformUnsupported, svcErr.Kind)
	}
	assert.Empty(t, m.calls)
}

func TestStatusFailurePropagates(t *testing.T) {
	m := newFakeManager(domain.ServiceStopped, domain.ServiceStopped)
	m.statusErr = domain.ErrService{Kind: domain.ServiceStatusQueryFailed, Service: domain.AgentService}

	err := newController(m, linux).Start(context.Background())
	var svcErr domain.ErrService
	require.ErrorAs(t, err, &svcErr)
	assert.Equal(t, domain.ServiceStatusQueryFailed, svcErr.Kind)
	assert.Zero(t, m.count("start"))
}

func TestCommandFailureStopsSequence(t *testing.T) {
	m := newFakeManager(domain.ServiceStopped, domain.ServiceStopped)
	m.failOp = "start"

	err := newController(m, linux).Start(context.Background())
	var svcErr domain.ErrService
	require.ErrorAs(t, err, &svcErr)
	assert.Equal(t, domain.ServiceCommandFailed, svcErr.Kind)
	assert.Equal(t, domain.AgentService, svcErr.Service)
	assert.Equal(t, 1, m.count("start"))
	assert.Equal(t, 1, m.count("status"))
}

func TestControllerStatus(t *testing.T) {
	m := newFakeManager(domain.ServiceRunning, domain.ServiceStopped)

	got, err := newController(m, linux).Status(context.Background())
	require.NoError(t, err)
	assert.Equal(t, map[string]domain.ServiceStatus{
		domain.AgentService:    domain.ServiceRunning,
		domain.WatchdogService: domain.ServiceStopped,
	}, got)

	m.statusErr = errors.New("dbus down")
	_, err = newController(m, linux).Status(context.Background())
	assert.Error(t, err)
}

func TestControllerWithoutLogger(t *testing.T) {
	m := newFakeManager(domain.ServiceRunning, domain.ServiceStopped)

	c := NewController(m, linux, nil)
	require.NoError(t, c.Start(context.Background()))
	require.NoError(t, c.Stop(context.Background()))
	assert.Equal(t, 1, m.count("start"))
	assert.Equal(t, 2, m.count("stop"))
}

func TestServicesCannotBeChangedByCallers(t *testing.T) {
	names := Services()
	names[0] = "sshd"

	assert.Equal(t, []string{domain.AgentService, domain.WatchdogService}, Services())

	m := newFakeManager(domain.ServiceRunning, domain.ServiceRunning)
	require.NoError(t, newController(m, linux).Restart(context.Background()))
	assert.Equal(t, []string{
		"restart " + domain.AgentService,
		"restart " + domain.WatchdogService,
	}, m.calls)
}
