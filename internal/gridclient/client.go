// Package gridclient is the consumer side of the grid: an HTTP client for
// the server, an in-memory grid model, the batch-patch pipeline that turns
// cell edits into row requests, and the staleness poller.
package gridclient

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/alexanderramin/workgrid/internal/contract"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/propagation"
)

// ClientConfig holds the connection settings for a grid server.
type ClientConfig struct {
	BaseURL  string
	PersonID string
	Timeout  time.Duration
	// MaxRetries applies to reads only; row writes are never retried.
	MaxRetries int
}

func DefaultClientConfig() ClientConfig {
	return ClientConfig{
		BaseURL:    "http://localhost:8080",
		Timeout:    10 * time.Second,
		MaxRetries: 1,
	}
}

// Client talks to the grid server's JSON API.
type Client struct {
	cfg      ClientConfig
	http     *http.Client
	observer Observer
}

func NewClient(cfg ClientConfig, observer Observer) *Client {
	if observer == nil {
		observer = NoopObserver{}
	}
	cfg.BaseURL = strings.TrimRight(cfg.BaseURL, "/")
	return &Client{
		cfg: cfg,
		http: &http.Client{
			Transport: &http.Transport{
				DialContext: (&net.Dialer{
					Timeout: 5 * time.Second,
				}).DialContext,
			},
		},
		observer: observer,
	}
}

// UpdateRow sends one row's changes.
func (c *Client) UpdateRow(ctx context.Context, itemID string, req contract.RowRequest) (*contract.RowResponse, error) {
	var resp contract.RowResponse
	if err := c.call(ctx, http.MethodPost, "/api/items/"+url.PathEscape(itemID)+"/row", req, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// LastUpdate probes the staleness marker of projectID ("" for all projects).
func (c *Client) LastUpdate(ctx context.Context, projectID string) (contract.Staleness, error) {
	var resp contract.Staleness
	err := c.call(ctx, http.MethodGet, "/api/staleness"+projectQuery(projectID), nil, &resp)
	return resp, err
}

// Snapshot fetches the full grid state.
func (c *Client) Snapshot(ctx context.Context, projectID string) (*contract.Snapshot, error) {
	var resp contract.Snapshot
	if err := c.call(ctx, http.MethodGet, "/api/snapshot"+projectQuery(projectID), nil, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

func projectQuery(projectID string) string {
	if projectID == "" {
		return ""
	}
	return "?project_id=" + url.QueryEscape(projectID)
}

func (c *Client) call(ctx context.Context, method, path string, body, out any) error {
	start := time.Now()
	if c.cfg.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, c.cfg.Timeout)
		defer cancel()
	}

	attempts := 1
	if method == http.MethodGet {
		attempts += c.cfg.MaxRetries
	}
	var (
		status  int
		lastErr error
	)
	for i := 0; i < attempts; i++ {
		status, lastErr = c.doRequest(ctx, method, path, body, out)
		if lastErr == nil {
			break
		}
		var apiErr *APIError
		if errors.As(lastErr, &apiErr) && apiErr.Status < http.StatusInternalServerError {
			break
		}
		if ctx.Err() != nil {
			break
		}
	}

	switch {
	case lastErr == nil:
	case ctx.Err() != nil:
		lastErr = ErrTimeout
	case isConnectionError(lastErr):
		lastErr = fmt.Errorf("%w: %v", ErrServerUnavailable, lastErr)
	}
	c.observer.OnCallComplete(CallEvent{
		Method:    method,
		Path:      path,
		Status:    status,
		LatencyMs: time.Since(start).Milliseconds(),
		Success:   lastErr == nil,
		ErrorCode: errorCode(lastErr),
	})
	return lastErr
}

func (c *Client) doRequest(ctx context.Context, method, path string, body, out any) (int, error) {
	var reader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return 0, fmt.Errorf("marshaling request: %w", err)
		}
		reader = bytes.NewReader(data)
	}

	httpReq, err := http.NewRequestWithContext(ctx, method, c.cfg.BaseURL+path, reader)
	if err != nil {
		return 0, fmt.Errorf("creating request: %w", err)
	}
	if body != nil {
		httpReq.Header.Set("Content-Type", "application/json")
	}
	if c.cfg.PersonID != "" {
		httpReq.Header.Set(contract.PersonHeader, c.cfg.PersonID)
	}
	otel.GetTextMapPropagator().Inject(ctx, propagation.HeaderCarrier(httpReq.Header))

	httpResp, err := c.http.Do(httpReq)
	if err != nil {
		return 0, err
	}
	defer httpResp.Body.Close()

	respBody, err := io.ReadAll(httpResp.Body)
	if err != nil {
		return httpResp.StatusCode, fmt.Errorf("reading response: %w", err)
	}

	if httpResp.StatusCode < 200 || httpResp.StatusCode > 299 {
		apiErr := &APIError{Status: httpResp.StatusCode}
		if err := json.Unmarshal(respBody, &apiErr.Body); err != nil || apiErr.Body.Error == "" {
			apiErr.Body.Error = http.StatusText(httpResp.StatusCode)
			apiErr.Body.Message = strings.TrimSpace(string(respBody))
		}
		return httpResp.StatusCode, apiErr
	}

	dec := json.NewDecoder(bytes.NewReader(respBody))
	dec.UseNumber()
	if err := dec.Decode(out); err != nil {
		return httpResp.StatusCode, fmt.Errorf("decoding response: %w", err)
	}
	return httpResp.StatusCode, nil
}

func isConnectionError(err error) bool {
	var netErr *net.OpError
	return errors.As(err, &netErr)
}

func errorCode(err error) string {
	var apiErr *APIError
	switch {
	case err == nil:
		return ""
	case errors.As(err, &apiErr):
		return apiErr.Body.Error
	case errors.Is(err, ErrTimeout):
		return "TIMEOUT"
	case errors.Is(err, ErrServerUnavailable):
		return "UNAVAILABLE"
	default:
		return "UNKNOWN"
	}
}
