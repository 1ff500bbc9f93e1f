package catalog

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/lsst-dm/imgcrawl/internal/domain"
	"github.com/lsst-dm/imgcrawl/internal/logger"
)

// RESTClient talks to the catalog's REST surface:
//
//	GET   {base}/search?path=&version=&site=&query=&max-num=
//	PATCH {base}/datasets?path=&versionId=&site=   (ScanResult body)
//
// Transient failures are retried a few times per call; persistent failure
// trips the circuit breaker so the poll loop stops hammering a dead catalog.
type RESTClient struct {
	baseURL    string
	httpClient *http.Client
	breaker    *CircuitBreaker
	maxRetries int
}

var _ Client = (*RESTClient)(nil)

// NewRESTClient creates a client for the catalog at baseURL. The timeout
// applies per HTTP request.
func NewRESTClient(baseURL string, timeout time.Duration) *RESTClient {
	return &RESTClient{
		baseURL:    strings.TrimRight(baseURL, "/"),
		httpClient: &http.Client{Timeout: timeout},
		breaker:    NewCircuitBreaker(DefaultCircuitBreakerConfig()),
		maxRetries: 3,
	}
}

// BreakerStats exposes circuit breaker counters for the ops status endpoint.
func (c *RESTClient) BreakerStats() CircuitBreakerStats {
	return c.breaker.Stats()
}

// Search implements Client.Search.
func (c *RESTClient) Search(ctx context.Context, req SearchRequest) ([]domain.Dataset, error) {
	params := url.Values{}
	params.Set("path", req.Path)
	params.Set("version", req.Version)
	params.Set("site", req.Site)
	params.Set("query", req.Query)
	params.Set("max-num", strconv.Itoa(req.MaxResults))

	body, err := c.do(ctx, "search", http.MethodGet, "/search?"+params.Encode(), nil)
	if err != nil {
		return nil, err
	}

	var datasets []domain.Dataset
	if err := json.Unmarshal(body, &datasets); err != nil {
		return nil, &TransportError{Op: "search", Message: "malformed response", Cause: err}
	}
	return datasets, nil
}

// Patch implements Client.Patch.
func (c *RESTClient) Patch(ctx context.Context, datasetPath string, result domain.ScanResult, versionID int, site string) error {
	params := url.Values{}
	params.Set("path", datasetPath)
	params.Set("versionId", strconv.Itoa(versionID))
	params.Set("site", site)

	payload, err := json.Marshal(result)
	if err != nil {
		return &TransportError{Op: "patch", Message: "cannot encode scan result", Cause: err}
	}

	_, err = c.do(ctx, "patch", http.MethodPatch, "/datasets?"+params.Encode(), payload)
	return err
}

// do runs one catalog call with retry for transient errors. It returns the
// response body on 2xx and a *TransportError otherwise.
func (c *RESTClient) do(ctx context.Context, op, method, endpoint string, payload []byte) ([]byte, error) {
	if !c.breaker.Allow() {
		return nil, &TransportError{Op: op, Message: "rejected by circuit breaker", Cause: ErrCircuitOpen}
	}

	var lastErr error

	for attempt := 0; attempt < c.maxRetries; attempt++ {
		var reqBody io.Reader
		if payload != nil {
			reqBody = bytes.NewReader(payload)
		}

		req, err := http.NewRequestWithContext(ctx, method, c.baseURL+endpoint, reqBody)
		if err != nil {
			return nil, &TransportError{Op: op, Message: "cannot build request", Cause: err}
		}
		req.Header.Set("Accept", "application/json")
		if payload != nil {
			req.Header.Set("Content-Type", "application/json")
		}

		resp, err := c.httpClient.Do(req)
		if err == nil {
			body, readErr := io.ReadAll(resp.Body)
			if closeErr := resp.Body.Close(); closeErr != nil {
				logger.Debugf("Failed to close catalog response body: %v", closeErr)
			}

			if resp.StatusCode >= 200 && resp.StatusCode < 300 {
				if readErr != nil {
					c.breaker.RecordFailure()
					return nil, &TransportError{Op: op, StatusCode: resp.StatusCode, Message: "truncated response", Cause: readErr}
				}
				c.breaker.RecordSuccess()
				return body, nil
			}

			// 5xx may be transient; retry. 4xx is a hard failure.
			if resp.StatusCode >= 500 && attempt < c.maxRetries-1 {
				logger.Infof("Catalog %s returned %d, retrying (%d/%d)...", op, resp.StatusCode, attempt+1, c.maxRetries)
				if !backoff(ctx, retryDelay(attempt)) {
					c.breaker.RecordFailure()
					return nil, &TransportError{Op: op, Message: "request cancelled or timed out", Cause: ctx.Err()}
				}
				continue
			}

			c.breaker.RecordFailure()
			return nil, &TransportError{Op: op, StatusCode: resp.StatusCode, Message: strings.TrimSpace(string(body))}
		}

		lastErr = err

		if ctx.Err() != nil {
			// Timed out or cancelled; the caller's deadline governs, not ours.
			c.breaker.RecordFailure()
			return nil, &TransportError{Op: op, Message: "request cancelled or timed out", Cause: err}
		}

		if !isRetryableError(err) {
			c.breaker.RecordFailure()
			return nil, &TransportError{Op: op, Message: "request failed", Cause: err}
		}

		if attempt < c.maxRetries-1 {
			logger.Infof("Catalog %s failed (attempt %d/%d): %v, retrying...", op, attempt+1, c.maxRetries, err)
			if !backoff(ctx, retryDelay(attempt)) {
				c.breaker.RecordFailure()
				return nil, &TransportError{Op: op, Message: "request cancelled or timed out", Cause: ctx.Err()}
			}
		}
	}

	c.breaker.RecordFailure()
	return nil, &TransportError{
		Op:      op,
		Message: fmt.Sprintf("catalog unavailable after %d attempts", c.maxRetries),
		Cause:   lastErr,
	}
}

func retryDelay(attempt int) time.Duration {
	return time.Duration(attempt+1) * 2 * time.Second
}

// backoff waits out the retry delay. Returns false when the context is
// cancelled first, so a dead caller never sits through the backoff.
func backoff(ctx context.Context, d time.Duration) bool {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-timer.C:
		return true
	}
}

// isRetryableError checks if an error is a transient network error worth retrying.
func isRetryableError(err error) bool {
	if err == nil {
		return false
	}
	if os.IsTimeout(err) {
		return true
	}

	errStr := strings.ToLower(err.Error())
	retryablePatterns := []string{
		"connection refused",
		"connection reset",
		"no such host",
		"network is unreachable",
		"i/o timeout",
		"eof",
		"connection timed out",
		"temporary failure",
	}
	for _, pattern := range retryablePatterns {
		if strings.Contains(errStr, pattern) {
			return true
		}
	}
	return false
}
