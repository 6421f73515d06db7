package rpc

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/logicmonitor/collector-agent/internal/credentials"
	"github.com/logicmonitor/collector-agent/internal/domain"
	"github.com/logicmonitor/collector-agent/internal/rpc/rpctest"
)

var testCreds = credentials.Credentials{Company: "acme", User: "ops", Secret: "p&ss=word"}

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func newTestClient(t *testing.T, srv *rpctest.Server) *Client {
	t.Helper()
	c, err := NewClient(testCreds, Options{
		Endpoint: srv.URL(),
		RPCPath:  rpctest.RPCPath,
		Timeout:  5 * time.Second,
	}, discardLogger())
	require.NoError(t, err)
	return c
}

func TestCallAppendsCredentials(t *testing.T) {
	srv := rpctest.NewServer(testCreds)
	defer srv.Close()
	c := newTestClient(t, srv)

	body, err := c.Call(context.Background(), "getHostGroups", map[string]string{"hostGroupId": "1", "name": "a b"})
	require.NoError(t, err)
	assert.Contains(t, string(body), `"status":200`)

	params := srv.Params("getHostGroups")
	require.Len(t, params, 1)
	assert.Equal(t, "1", params[0].Get("hostGroupId"))
	assert.Equal(t, "a b", params[0].Get("name"))
	assert.Equal(t, "acme", params[0].Get("c"))
	assert.Equal(t, "ops", params[0].Get("u"))
	assert.Equal(t, "p&ss=word", params[0].Get("p"))
}

func TestCallRejectsReservedParams(t *testing.T) {
	srv := rpctest.NewServer(testCreds)
	defer srv.Close()
	c := newTestClient(t, srv)

	for _, key := range []string{"c", "u", "p"} {
		_, err := c.Call(context.Background(), "getAgents", map[string]string{key: "x"})
		var rpcErr domain.ErrRPC
		require.ErrorAs(t, err, &rpcErr)
		assert.Equal(t, domain.RPCInvalidRequest, rpcErr.Kind)
	}

	_, err := c.Call(context.Background(), "", nil)
	var rpcErr domain.ErrRPC
	require.ErrorAs(t, err, &rpcErr)
	assert.Equal(t, domain.RPCInvalidRequest, rpcErr.Kind)

	assert.Zero(t, srv.TotalCalls())
}

func TestCallTransportFailure(t *testing.T) {
	srv := rpctest.NewServer(testCreds)
	c := newTestClient(t, srv)
	srv.Close()

	_, err := c.Call(context.Background(), "getAgents", nil)
	var rpcErr domain.ErrRPC
	require.ErrorAs(t, err, &rpcErr)
	assert.Equal(t, domain.RPCTransport, rpcErr.Kind)
	assert.Error(t, errors.Unwrap(err))
}

func TestCallTransportFailureHidesPassword(t *testing.T) {
	creds := credentials.Credentials{Company: "acme", User: "ops", Secret: "TOPSECRET"}
	srv := rpctest.NewServer(creds)
	c, err := NewClient(creds, Options{
		Endpoint: srv.URL(),
		RPCPath:  rpctest.RPCPath,
		Timeout:  5 * time.Second,
	}, discardLogger())
	require.NoError(t, err)
	srv.Close()

	_, err = c.Call(context.Background(), "getAgents", map[string]string{"hostGroupId": "1"})
	require.Error(t, err)
	assert.NotContains(t, err.Error(), "TOPSECRET")
	assert.NotContains(t, err.Error(), "p=")
	assert.Contains(t, err.Error(), "/santaba/rpc/getAgents")

	var urlErr *url.Error
	require.ErrorAs(t, err, &urlErr)
	assert.NotContains(t, urlErr.URL, "?")
}

func TestRedact(t *testing.T) {
	cause := errors.New("connection refused")
	err := redact(fmt.Errorf("giving up: %w", &url.Error{Op: "Get", URL: "https://acme.example.com/santaba/rpc/getAgents?c=acme&p=s3cret&u=ops", Err: cause}))
	assert.Equal(t, `Get "https://acme.example.com/santaba/rpc/getAgents": connection refused`, err.Error())
	assert.ErrorIs(t, err, cause)

	plain := errors.New("plain")
	assert.Equal(t, plain, redact(plain))
}

func TestCallHTTPError(t *testing.T) {
	srv := rpctest.NewServer(testCreds)
	defer srv.Close()
	srv.FailHTTP("getAgents", http.StatusInternalServerError)
	c := newTestClient(t, srv)

	_, err := c.Call(context.Background(), "getAgents", nil)
	var rpcErr domain.ErrRPC
	require.ErrorAs(t, err, &rpcErr)
	assert.Equal(t, domain.RPCRemoteRejected, rpcErr.Kind)
	assert.Equal(t, http.StatusInternalServerError, rpcErr.Status)
	assert.Equal(t, 1, srv.Calls("getAgents"), "no automatic retry")
}

func TestInvokeDecodesEnvelope(t *testing.T) {
	srv := rpctest.NewServer(testCreds)
	defer srv.Close()
	srv.Seed(domain.AgentRecord{ID: 42, Description: "host.example.com", Platform: "linux"})
	c := newTestClient(t, srv)

	agents, err := Invoke[[]domain.AgentRecord](context.Background(), c, "getAgents", nil)
	require.NoError(t, err)
	require.Len(t, agents, 1)
	assert.Equal(t, 42, agents[0].ID)
	assert.Equal(t, "linux", agents[0].Platform)
}

func TestInvokeRemoteRejected(t *testing.T) {
	srv := rpctest.NewServer(credentials.Credentials{Company: "acme", User: "ops", Secret: "other"})
	defer srv.Close()
	c := newTestClient(t, srv)

	_, err := Invoke[[]domain.AgentRecord](context.Background(), c, "getAgents", nil)
	var rpcErr domain.ErrRPC
	require.ErrorAs(t, err, &rpcErr)
	assert.Equal(t, domain.RPCRemoteRejected, rpcErr.Kind)
	assert.Equal(t, http.StatusForbidden, rpcErr.Status)
	assert.Equal(t, "Authentication failed", rpcErr.Msg)
}

func TestDecode(t *testing.T) {
	tests := []struct {
		name   string
		body   string
		kind   domain.RPCErrorKind
		status int
	}{
		{name: "ok", body: `{"status":200,"data":{"id":7},"errmsg":"OK"}`},
		{name: "null data", body: `{"status":200,"data":null}`},
		{name: "not json", body: `<html>`, kind: domain.RPCDecodeFailure},
		{name: "wrong data shape", body: `{"status":200,"data":"seven"}`, kind: domain.RPCDecodeFailure},
		{name: "rejected", body: `{"status":1007,"errmsg":"bad"}`, kind: domain.RPCRemoteRejected, status: 1007},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Decode[domain.AgentRecord]("getAgent", []byte(tt.body))
			if tt.kind == 0 {
				assert.NoError(t, err)
				return
			}
			var rpcErr domain.ErrRPC
			require.ErrorAs(t, err, &rpcErr)
			assert.Equal(t, tt.kind, rpcErr.Kind)
			assert.Equal(t, tt.status, rpcErr.Status)
		})
	}
}

func TestNewClientBaseURL(t *testing.T) {
	c, err := NewClient(testCreds, Options{ServiceHost: "logicmonitor.com", RPCPath: "/santaba/rpc/"}, nil)
	require.NoError(t, err)
	assert.Equal(t, "https://acme.logicmonitor.com/santaba/rpc", c.baseURL)

	_, err = NewClient(credentials.Credentials{Company: "acme"}, Options{ServiceHost: "x"}, nil)
	assert.Error(t, err)
}
