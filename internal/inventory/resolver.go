// Package inventory finds, registers and removes collector records on the
// inventory service.
package inventory

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/logicmonitor/collector-agent/internal/domain"
	"github.com/logicmonitor/collector-agent/internal/rpc"
)

const (
	actionList   = "getAgents"
	actionCreate = "addAgent"
	actionDelete = "deleteAgent"
)

// Resolver maps a host identity onto its collector record.
type Resolver struct {
	rpc    rpc.Caller
	logger *slog.Logger
}

func NewResolver(caller rpc.Caller, logger *slog.Logger) *Resolver {
	if logger == nil {
		logger = slog.Default()
	}
	return &Resolver{rpc: caller, logger: logger}
}

// List returns every collector in the account.
func (r *Resolver) List(ctx context.Context) ([]domain.AgentRecord, error) {
	return rpc.Invoke[[]domain.AgentRecord](ctx, r.rpc, actionList, nil)
}

// Lookup returns the record whose description equals host, or nil when the
// account has none. Listing failures are returned as errors, never as nil.
func (r *Resolver) Lookup(ctx context.Context, host string) (*domain.AgentRecord, error) {
	agents, err := r.List(ctx)
	if err != nil {
		return nil, fmt.Errorf("list collectors: %w", err)
	}
	for i := range agents {
		if agents[i].Description == host {
			rec := agents[i]
			return &rec, nil
		}
	}
	return nil, nil
}

// Resolve returns the collector for host, registering one when none exists.
func (r *Resolver) Resolve(ctx context.Context, host string) (*domain.AgentRecord, error) {
	if host == "" {
		return nil, fmt.Errorf("resolve collector: empty host identity")
	}

	rec, err := r.Lookup(ctx, host)
	if err != nil {
		return nil, err
	}
	if rec != nil {
		r.logger.Debug("collector found", "host", host, "id", rec.ID)
		return rec, nil
	}

	created, err := rpc.Invoke[domain.AgentRecord](ctx, r.rpc, actionCreate, map[string]string{
		"autogen":     "true",
		"description": host,
	})
	if domain.IsRemoteStatus(err, http.StatusConflict, "already exists") {
		// Another resolver registered the host first.
		r.logger.Warn("collector created concurrently, using existing record", "host", host)
		rec, err := r.Lookup(ctx, host)
		if err != nil {
			return nil, err
		}
		if rec == nil {
			return nil, fmt.Errorf("collector for %s reported as existing but not listed", host)
		}
		return rec, nil
	}
	if err != nil {
		return nil, fmt.Errorf("create collector: %w", err)
	}
	if created.ID <= 0 {
		return nil, domain.ErrRPC{
			Kind:   domain.RPCDecodeFailure,
			Action: actionCreate,
			Err:    fmt.Errorf("response carries no collector id"),
		}
	}
	if created.Description == "" {
		created.Description = host
	}

	r.logger.Info("collector created", "host", host, "id", created.ID)
	return &created, nil
}

// Delete removes rec from the account. Deleting a collector the service no
// longer knows is not an error.
func (r *Resolver) Delete(ctx context.Context, rec *domain.AgentRecord) error {
	if rec == nil {
		return nil
	}

	_, err := rpc.Invoke[any](ctx, r.rpc, actionDelete, map[string]string{
		"id": strconv.Itoa(rec.ID),
	})
	if domain.IsRemoteStatus(err, http.StatusNotFound, "not found", "does not exist") {
		r.logger.Info("collector already deleted", "id", rec.ID)
		return nil
	}
	if err != nil {
		return fmt.Errorf("delete collector %d: %w", rec.ID, err)
	}

	r.logger.Info("collector deleted", "id", rec.ID, "host", rec.Description)
	return nil
}
