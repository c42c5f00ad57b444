// Package provider fetches streetlight time series from a QuantumLeap
// instance. Transport and decoding failures never reach the caller: they are
// logged, reported and turned into empty results.
package provider

import (
	"context"
	"errors"
	"fmt"
	"io"
	"math"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/sync/semaphore"

	"streetlight_monitor/internal/apperr"
	"streetlight_monitor/internal/calendar"
	"streetlight_monitor/internal/config"
	"streetlight_monitor/internal/errtrack"
	"streetlight_monitor/internal/logging"
	"streetlight_monitor/internal/model"
)

const serviceName = "quantumleap"

const timestampLayout = "2006-01-02T15:04:05.000Z"

// Client talks to the QuantumLeap REST API.
type Client struct {
	baseURL       string
	fiwareService string
	servicePaths  map[model.Service]string
	apiKey        string

	http     *http.Client
	sem      *semaphore.Weighted
	cache    *calendar.DateCache
	log      zerolog.Logger
	pageSize int
	attempts int
	backoff  func(attempt int) time.Duration
}

// New builds a client from the provider configuration. Timestamps are
// parsed through cache; nil gets a private one.
func New(cfg config.ProviderConfig, cache *calendar.DateCache) *Client {
	if cache == nil {
		cache = calendar.NewDateCache()
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	weight := int64(cfg.MaxConcurrency)
	if weight <= 0 {
		weight = 1
	}
	return &Client{
		baseURL:       strings.TrimRight(cfg.Address, "/"),
		fiwareService: cfg.FiwareService,
		servicePaths:  cfg.ServicePaths,
		apiKey:        cfg.APIKey,
		http:          &http.Client{Timeout: timeout},
		sem:           semaphore.NewWeighted(weight),
		cache:         cache,
		log:           logging.Component("provider"),
		pageSize:      model.SizeLimit,
		attempts:      5,
		backoff: func(attempt int) time.Duration {
			return time.Duration(math.Pow(2, float64(attempt))) * time.Second
		},
	}
}

type apiError struct {
	statusCode int
	message    string
}

func (e *apiError) Error() string {
	return fmt.Sprintf("HTTP %d: %s", e.statusCode, e.message)
}

func isRetryable(err error) bool {
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return false
	}
	var ae *apiError
	if !errors.As(err, &ae) {
		return true // network errors are retryable
	}
	return ae.statusCode == http.StatusTooManyRequests || ae.statusCode >= 500
}

func isNotFound(err error) bool {
	var ae *apiError
	return errors.As(err, &ae) && ae.statusCode == http.StatusNotFound
}

// get fetches address with retries. A 404 means no records and yields a
// nil body without error.
func (c *Client) get(ctx context.Context, service model.Service, address string) ([]byte, error) {
	if err := c.sem.Acquire(ctx, 1); err != nil {
		return nil, err
	}
	defer c.sem.Release(1)

	var body []byte
	var err error
	for attempt := range c.attempts {
		body, err = c.doRequest(ctx, service, address)
		if err == nil || isNotFound(err) {
			break
		}
		if !isRetryable(err) {
			return nil, err
		}
		wait := c.backoff(attempt)
		c.log.Debug().Err(err).Dur("wait", wait).Str("url", address).Msg("retrying provider request")
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(wait):
		}
	}
	if isNotFound(err) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("after %d attempts: %w", c.attempts, err)
	}
	return body, nil
}

func (c *Client) doRequest(ctx context.Context, service model.Service, address string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, address, nil)
	if err != nil {
		return nil, err
	}
	if c.fiwareService != "" {
		req.Header.Set("FIWARE-Service", c.fiwareService)
	}
	if path := c.servicePaths[service]; path != "" {
		req.Header.Set("FIWARE-ServicePath", path)
	}
	if c.apiKey != "" {
		req.Header.Set("apikey", c.apiKey)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("reading response: %w", err)
	}
	if resp.StatusCode == http.StatusUnauthorized {
		return nil, &apiError{statusCode: resp.StatusCode, message: "authentication failed, check FIWARE_APIKEY"}
	}
	if resp.StatusCode != http.StatusOK {
		return nil, &apiError{statusCode: resp.StatusCode, message: string(body)}
	}
	return body, nil
}

// degrade logs and reports a failed request. Callers continue with an
// empty result.
func (c *Client) degrade(err error, service model.Service, entity, address string) {
	if errors.Is(err, context.Canceled) {
		return
	}
	wrapped := apperr.ExternalService(serviceName, err)
	c.log.Warn().Err(err).
		Str("service", string(service)).
		Str("entity", entity).
		Str("url", address).
		Msg("provider request failed, continuing with empty result")
	errtrack.CaptureError(wrapped, map[string]string{
		"service": string(service),
		"entity":  entity,
	})
}

func formatTimestamp(t time.Time) string {
	return t.UTC().Format(timestampLayout)
}

// aggrPeriod maps a bucket width in seconds to the provider's period name.
func aggrPeriod(intervalSecs int) string {
	switch {
	case intervalSecs >= model.HourSeconds:
		return "hour"
	case intervalSecs >= 60:
		return "minute"
	}
	return "second"
}

func (c *Client) address(path []string, params url.Values) string {
	escaped := make([]string, len(path))
	for i, p := range path {
		escaped[i] = url.PathEscape(p)
	}
	return c.baseURL + "/" + strings.Join(escaped, "/") + "?" + params.Encode()
}

func lowerAll(names []string) string {
	out := make([]string, len(names))
	for i, n := range names {
		out[i] = strings.ToLower(n)
	}
	return strings.Join(out, ",")
}
