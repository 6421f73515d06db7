package rpc

import (
	"context"
	"encoding/json"
	"net/http"

	"github.com/logicmonitor/collector-agent/internal/domain"
)

// Caller is the transport used by the inventory and installer components.
type Caller interface {
	Call(ctx context.Context, action string, params map[string]string) ([]byte, error)
}

// Envelope is the JSON document wrapping every RPC response.
type Envelope[T any] struct {
	Status int    `json:"status"`
	Data   T      `json:"data"`
	ErrMsg string `json:"errmsg"`
}

// Decode parses body as an envelope and turns a non-200 status into an
// ErrRPC with Kind RPCRemoteRejected.
func Decode[T any](action string, body []byte) (T, error) {
	var env Envelope[json.RawMessage]
	var zero T
	if err := json.Unmarshal(body, &env); err != nil {
		return zero, domain.ErrRPC{Kind: domain.RPCDecodeFailure, Action: action, Err: err}
	}
	if env.Status != http.StatusOK {
		return zero, domain.ErrRPC{
			Kind:   domain.RPCRemoteRejected,
			Action: action,
			Status: env.Status,
			Msg:    env.ErrMsg,
		}
	}

	var data T
	if len(env.Data) == 0 || string(env.Data) == "null" {
		return data, nil
	}
	if err := json.Unmarshal(env.Data, &data); err != nil {
		return zero, domain.ErrRPC{Kind: domain.RPCDecodeFailure, Action: action, Err: err}
	}
	return data, nil
}

// Invoke calls action and decodes its envelope.
func Invoke[T any](ctx context.Context, c Caller, action string, params map[string]string) (T, error) {
	body, err := c.Call(ctx, action, params)
	if err != nil {
		var zero T
		return zero, err
	}
	return Decode[T](action, body)
}
