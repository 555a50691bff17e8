package client

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/shipscreen/smh-service/internal/metrics"
	"github.com/shipscreen/smh-service/pkg/utils"
	"golang.org/x/time/rate"
)

// ErrNotFound upstream-сервис вернул 404
var ErrNotFound = errors.New("not found")

// StatusError неожиданный HTTP статус от upstream-сервиса
type StatusError struct {
	Client     string
	StatusCode int
	Body       string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("%s returned status %d", e.Client, e.StatusCode)
}

// Temporary ошибка может пройти при повторе
func (e *StatusError) Temporary() bool {
	return e.StatusCode == http.StatusTooManyRequests || e.StatusCode >= 500
}

// Options общие параметры HTTP клиента
type Options struct {
	BaseURL        string
	Token          string
	Timeout        time.Duration
	RequestsPerSec float64
	HTTPClient     *http.Client
}

// baseClient общий HTTP транспорт с ограничением частоты запросов
type baseClient struct {
	name       string
	baseURL    string
	token      string
	httpClient *http.Client
	limiter    *rate.Limiter
	logger     *utils.Logger
}

func newBaseClient(name string, opts Options, logger *utils.Logger) (*baseClient, error) {
	if opts.BaseURL == "" {
		return nil, fmt.Errorf("%s base URL is required", name)
	}
	if _, err := url.Parse(opts.BaseURL); err != nil {
		return nil, fmt.Errorf("invalid %s base URL: %w", name, err)
	}

	httpClient := opts.HTTPClient
	if httpClient == nil {
		timeout := opts.Timeout
		if timeout <= 0 {
			timeout = 30 * time.Second
		}
		httpClient = &http.Client{Timeout: timeout}
	}

	limiter := rate.NewLimiter(rate.Inf, 1)
	if opts.RequestsPerSec > 0 {
		burst := int(opts.RequestsPerSec)
		if burst < 1 {
			burst = 1
		}
		limiter = rate.NewLimiter(rate.Limit(opts.RequestsPerSec), burst)
	}

	return &baseClient{
		name:       name,
		baseURL:    strings.TrimRight(opts.BaseURL, "/"),
		token:      opts.Token,
		httpClient: httpClient,
		limiter:    limiter,
		logger:     logger,
	}, nil
}

// getJSON выполняет GET и декодирует JSON ответ в out
func (c *baseClient) getJSON(ctx context.Context, operation, path string, query url.Values, out interface{}) error {
	endpoint := c.baseURL + path
	if len(query) > 0 {
		endpoint += "?" + query.Encode()
	}
	return c.do(ctx, operation, http.MethodGet, endpoint, nil, out)
}

// postJSON выполняет POST с JSON телом
func (c *baseClient) postJSON(ctx context.Context, operation, path string, body, out interface{}) error {
	payload, err := json.Marshal(body)
	if err != nil {
		return fmt.Errorf("failed to encode request: %w", err)
	}
	return c.do(ctx, operation, http.MethodPost, c.baseURL+path, payload, out)
}

func (c *baseClient) do(ctx context.Context, operation, method, endpoint string, payload []byte, out interface{}) error {
	if err := c.limiter.Wait(ctx); err != nil {
		return fmt.Errorf("%s rate limiter: %w", c.name, err)
	}

	start := time.Now()
	defer func() {
		metrics.ClientRequestDuration.WithLabelValues(c.name, operation).Observe(time.Since(start).Seconds())
	}()

	var bodyReader io.Reader
	if payload != nil {
		bodyReader = bytes.NewReader(payload)
	}

	req, err := http.NewRequestWithContext(ctx, method, endpoint, bodyReader)
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	req.Header.Set("User-Agent", "SMH-Service/1.0")
	if payload != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		metrics.ClientRequestErrors.WithLabelValues(c.name, operation, "transport").Inc()
		return fmt.Errorf("failed to make request to %s: %w", c.name, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		metrics.ClientRequestErrors.WithLabelValues(c.name, operation, "read").Inc()
		return fmt.Errorf("failed to read response body: %w", err)
	}

	switch {
	case resp.StatusCode == http.StatusOK:
		if out == nil {
			return nil
		}
		if err := json.Unmarshal(body, out); err != nil {
			metrics.ClientRequestErrors.WithLabelValues(c.name, operation, "decode").Inc()
			return fmt.Errorf("failed to parse %s response: %w", c.name, err)
		}
		return nil

	case resp.StatusCode == http.StatusNotFound:
		return fmt.Errorf("%s %s: %w", c.name, operation, ErrNotFound)

	default:
		metrics.ClientRequestErrors.WithLabelValues(c.name, operation, "status").Inc()
		c.logger.WithFields(map[string]interface{}{
			"client":      c.name,
			"operation":   operation,
			"status_code": resp.StatusCode,
			"response":    truncateBody(body),
		}).Error("Unexpected response from upstream service")
		return &StatusError{Client: c.name, StatusCode: resp.StatusCode, Body: truncateBody(body)}
	}
}

func truncateBody(body []byte) string {
	const limit = 512
	if len(body) > limit {
		return string(body[:limit]) + "..."
	}
	return string(body)
}
