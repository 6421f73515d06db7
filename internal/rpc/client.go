package rpc

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/hashicorp/go-retryablehttp"

	"github.com/logicmonitor/collector-agent/internal/credentials"
	"github.com/logicmonitor/collector-agent/internal/domain"
)

// Reserved query keys carrying the account credentials.
const (
	companyParam  = "c"
	userParam     = "u"
	passwordParam = "p"
)

// Options configure a Client.
type Options struct {
	// ServiceHost is the domain appended to the company subdomain.
	ServiceHost string
	// RPCPath is prepended to every action, e.g. "/santaba/rpc".
	RPCPath string
	// Endpoint, when set, replaces https://{company}.{ServiceHost}.
	Endpoint string
	Timeout  time.Duration
	// RetryMax is zero unless the operator opts into transport retries.
	RetryMax int
}

// Client calls RPC actions on the LogicMonitor inventory service.
type Client struct {
	creds   credentials.Credentials
	baseURL string
	http    *retryablehttp.Client
	logger  *slog.Logger
}

// NewClient creates an RPC client authenticating with creds.
func NewClient(creds credentials.Credentials, opts Options, logger *slog.Logger) (*Client, error) {
	if err := creds.Validate(); err != nil {
		return nil, err
	}
	if logger == nil {
		logger = slog.Default()
	}

	base := strings.TrimRight(opts.Endpoint, "/")
	if base == "" {
		if opts.ServiceHost == "" {
			return nil, fmt.Errorf("rpc: service host is required")
		}
		base = fmt.Sprintf("https://%s.%s", creds.Company, opts.ServiceHost)
	}
	if opts.RPCPath != "" {
		base += "/" + strings.Trim(opts.RPCPath, "/")
	}

	retryClient := retryablehttp.NewClient()
	retryClient.RetryMax = opts.RetryMax
	retryClient.RetryWaitMin = 1 * time.Second
	retryClient.RetryWaitMax = 10 * time.Second
	retryClient.ErrorHandler = retryablehttp.PassthroughErrorHandler
	retryClient.Logger = nil // the request URL carries the password
	retryClient.RequestLogHook = func(_ retryablehttp.Logger, req *http.Request, attempt int) {
		if attempt > 0 {
			logger.Warn("retrying rpc", "path", req.URL.Path, "attempt", attempt)
		}
	}
	if opts.Timeout > 0 {
		retryClient.HTTPClient.Timeout = opts.Timeout
	}

	return &Client{
		creds:   creds,
		baseURL: base,
		http:    retryClient,
		logger:  logger,
	}, nil
}

// Call invokes action with params and returns the raw response body. The
// credentials are appended to params; params must not contain them already.
func (c *Client) Call(ctx context.Context, action string, params map[string]string) ([]byte, error) {
	if action == "" {
		return nil, domain.ErrRPC{Kind: domain.RPCInvalidRequest, Err: fmt.Errorf("empty action")}
	}

	query := url.Values{}
	for k, v := range params {
		switch k {
		case companyParam, userParam, passwordParam:
			return nil, domain.ErrRPC{
				Kind:   domain.RPCInvalidRequest,
				Action: action,
				Err:    fmt.Errorf("parameter %q is reserved for authentication", k),
			}
		}
		query.Set(k, v)
	}

	auth := url.Values{}
	auth.Set(companyParam, c.creds.Company)
	auth.Set(userParam, c.creds.User)
	auth.Set(passwordParam, c.creds.Secret)

	rawQuery := auth.Encode()
	if len(query) > 0 {
		rawQuery = query.Encode() + "&" + rawQuery
	}
	target := c.baseURL + "/" + url.PathEscape(action) + "?" + rawQuery

	req, err := retryablehttp.NewRequestWithContext(ctx, http.MethodGet, target, nil)
	if err != nil {
		return nil, domain.ErrRPC{Kind: domain.RPCInvalidRequest, Action: action, Err: redact(err)}
	}

	c.logger.Debug("calling rpc", "action", action, "params", query.Encode())

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, domain.ErrRPC{Kind: domain.RPCTransport, Action: action, Err: redact(err)}
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, domain.ErrRPC{Kind: domain.RPCTransport, Action: action, Err: fmt.Errorf("read response body: %w", err)}
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		c.logger.Error("rpc http error",
			"action", action,
			"status", resp.StatusCode,
			"body", truncate(string(body), 256),
		)
		return nil, domain.ErrRPC{
			Kind:   domain.RPCRemoteRejected,
			Action: action,
			Status: resp.StatusCode,
			Msg:    truncate(string(body), 256),
		}
	}

	return body, nil
}

// redact drops the query from URL errors. The query carries the password.
func redact(err error) error {
	var urlErr *url.Error
	if !errors.As(err, &urlErr) {
		return err
	}
	target, _, _ := strings.Cut(urlErr.URL, "?")
	return &url.Error{Op: urlErr.Op, URL: target, Err: urlErr.Err}
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}
