package rpc

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/thunderhead-labs/poktinfo/pkg/metrics"
	"github.com/thunderhead-labs/poktinfo/pkg/retry"
	"github.com/thunderhead-labs/poktinfo/pkg/utils"
	"go.uber.org/zap"
)

// DefaultPerPage is the page size requested from paginated endpoints.
const DefaultPerPage = 50000

// HTTPClient issues JSON queries against a pool of Pocket full nodes. Every attempt picks
// a random endpoint from the pool, so consecutive attempts rarely hit the same node.
type HTTPClient struct {
	mainURL  string
	pool     *Pool
	username string
	password string
	client   *http.Client
	backoff  retry.Config
	perPage  int
	logger   *zap.Logger
}

// Opts is the set of options for a new HTTPClient.
type Opts struct {
	MainURL     string
	Pool        *Pool
	Username    string
	Password    string
	Timeout     time.Duration
	MaxAttempts int
	PerPage     int
	// Backoff overrides retry.RPCConfig; MaxAttempts still wins when set.
	Backoff    *retry.Config
	HTTPClient *http.Client
	Logger     *zap.Logger
}

// NewHTTPWithOpts creates a new HTTPClient with the given options.
func NewHTTPWithOpts(o Opts) *HTTPClient {
	if o.Timeout <= 0 {
		o.Timeout = 15 * time.Second
	}
	if o.PerPage <= 0 {
		o.PerPage = DefaultPerPage
	}
	if o.Pool == nil {
		o.Pool = NewPool()
	}
	if o.Logger == nil {
		o.Logger = zap.NewNop()
	}

	backoff := retry.RPCConfig()
	if o.Backoff != nil {
		backoff = *o.Backoff
	}
	if o.MaxAttempts > 0 {
		backoff.MaxRetries = o.MaxAttempts
	}

	client := o.HTTPClient
	if client == nil {
		client = &http.Client{Timeout: o.Timeout}
	} else if client.Timeout == 0 {
		client.Timeout = o.Timeout
	}

	mainURL := ""
	if o.MainURL != "" {
		mainURL = utils.EnsureTrailingSlash(o.MainURL)
	}

	return &HTTPClient{
		mainURL:  mainURL,
		pool:     o.Pool,
		username: o.Username,
		password: o.Password,
		client:   client,
		backoff:  backoff,
		perPage:  o.PerPage,
		logger:   o.Logger,
	}
}

// Pool returns the endpoint pool the client draws from.
func (c *HTTPClient) Pool() *Pool { return c.pool }

type callConfig struct {
	main bool
}

// CallOption tweaks a single call.
type CallOption func(*callConfig)

// UseMain sends every attempt of the call to the main URL instead of the pool.
func UseMain() CallOption {
	return func(c *callConfig) { c.main = true }
}

// endpoint picks the base URL for one attempt. An empty pool falls back to the main URL.
func (c *HTTPClient) endpoint(main bool) (string, error) {
	if !main {
		if ep, ok := c.pool.Random(); ok {
			return ep, nil
		}
	}
	if c.mainURL == "" {
		return "", ErrNoEndpoints
	}
	return c.mainURL, nil
}

// Call POSTs payload as JSON to path and decodes the answer into out. Failed attempts are
// retried on a freshly chosen endpoint; once the budget is spent a *Error is returned.
func (c *HTTPClient) Call(ctx context.Context, path string, payload, out any, opts ...CallOption) error {
	var cfg callConfig
	for _, o := range opts {
		o(&cfg)
	}

	attempts := 0
	var lastErr error
	err := retry.WithBackoff(ctx, c.backoff, c.logger, "rpc_"+strings.TrimSuffix(path, "/"), func() error {
		ep, err := c.endpoint(cfg.main)
		if err != nil {
			return retry.Permanent(err)
		}
		attempts++
		lastErr = c.doJSON(ctx, ep, path, payload, out)
		return lastErr
	})
	if err == nil {
		return nil
	}
	if errors.Is(err, ErrNoEndpoints) {
		return err
	}
	if lastErr == nil || ctx.Err() != nil {
		lastErr = err
	}
	return &Error{Path: path, Attempts: attempts, Err: lastErr}
}

// doJSON performs exactly one request against ep.
func (c *HTTPClient) doJSON(ctx context.Context, ep, path string, payload, out any) (err error) {
	start := time.Now()
	metricPath := strings.TrimSuffix(path, "/")
	defer func() {
		outcome := "success"
		if err != nil {
			outcome = "error"
		}
		metrics.RPCAttempts.WithLabelValues(metricPath, outcome).Inc()
		metrics.RPCDuration.WithLabelValues(metricPath).Observe(time.Since(start).Seconds())
	}()

	var body *bytes.Reader
	if payload != nil {
		b, mErr := json.Marshal(payload)
		if mErr != nil {
			return retry.Permanent(mErr)
		}
		body = bytes.NewReader(b)
	} else {
		body = bytes.NewReader(nil)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, ep+queryPrefix+path, body)
	if err != nil {
		return retry.Permanent(err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")
	if c.username != "" || c.password != "" {
		req.SetBasicAuth(c.username, c.password)
	}

	resp, err := c.client.Do(req)
	if err != nil {
		return fmt.Errorf("%s: %w", ep, err)
	}
	defer func() { _ = utils.DrainAndClose(resp.Body) }()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return &StatusError{Endpoint: ep, Code: resp.StatusCode}
	}
	if out == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("%s: decode %s: %w", ep, path, err)
	}
	return nil
}

// page is the envelope of paginated answers: nodes and claims use "result", transactions "txs".
type page[T any] struct {
	Result     []T `json:"result"`
	Txs        []T `json:"txs"`
	TotalPages int `json:"total_pages"`
}

func (p page[T]) items() []T {
	if len(p.Result) > 0 {
		return p.Result
	}
	return p.Txs
}

// listPaged requests page 1, 2, ... and concatenates the items. It stops at the first empty
// page or, when the endpoint reports total_pages, after the last one. Each page is its own call.
func listPaged[T any](ctx context.Context, c *HTTPClient, path string, payload func(page, perPage int) any) ([]T, error) {
	var all []T
	for n := 1; ; n++ {
		var p page[T]
		if err := c.Call(ctx, path, payload(n, c.perPage), &p); err != nil {
			return nil, fmt.Errorf("%s page %d: %w", path, n, err)
		}
		items := p.items()
		if len(items) == 0 {
			break
		}
		all = append(all, items...)
		if p.TotalPages > 0 && n >= p.TotalPages {
			break
		}
	}
	return all, nil
}
