package admin

import (
	"bytes"
	"compress/gzip"
	"context"
	"encoding/json"
	"fmt"
	"io"
	nethttp "net/http"
	"net/url"
	"strings"
	"time"

	"github.com/hashicorp/go-retryablehttp"
	"github.com/rs/zerolog"
	"golang.org/x/oauth2"

	"github.com/optiview/adminrelay/internal/config"
)

// retryLogger adapts zerolog to the retryablehttp.LeveledLogger interface.
// Only errors and warnings are surfaced; retryablehttp's info/debug chatter
// is dropped.
type retryLogger struct {
	log zerolog.Logger
}

func (l *retryLogger) Error(msg string, keysAndValues ...interface{}) {
	l.log.Error().Fields(keysAndValues).Msg(msg)
}

func (l *retryLogger) Warn(msg string, keysAndValues ...interface{}) {
	l.log.Warn().Fields(keysAndValues).Msg(msg)
}

func (l *retryLogger) Info(msg string, keysAndValues ...interface{})  {}
func (l *retryLogger) Debug(msg string, keysAndValues ...interface{}) {}

// Resource is the parsed remote representation returned by create/update
// calls. Name is the remote resource path ("properties/123/audiences/456").
type Resource struct {
	Name        string `json:"name"`
	DisplayName string `json:"displayName"`
}

// Client issues one outbound HTTP request per resource item against the
// versioned admin API, parses the response, and classifies failures.
type Client struct {
	httpClient  *nethttp.Client
	baseURL     string
	tokenSource oauth2.TokenSource
	log         zerolog.Logger
}

// NewClient creates the remote call executor.
//
// Transient transport failures (connection resets, 5xx) are retried inside
// retryablehttp; 429 is deliberately NOT retried here because the batch
// engine owns rate-limit backoff at whole-wave granularity.
func NewClient(cfg *config.Config, ts oauth2.TokenSource, log zerolog.Logger) (*Client, error) {
	httpClient, err := newHTTPClient(cfg)
	if err != nil {
		return nil, fmt.Errorf("configure HTTP client: %w", err)
	}

	retryClient := retryablehttp.NewClient()
	retryClient.HTTPClient = httpClient
	retryClient.RetryMax = 4
	retryClient.RetryWaitMin = 500 * time.Millisecond
	retryClient.RetryWaitMax = 10 * time.Second
	retryClient.Logger = &retryLogger{log: log}
	retryClient.CheckRetry = checkRetry

	return &Client{
		httpClient:  retryClient.StandardClient(),
		baseURL:     strings.TrimSuffix(cfg.PlatformURL, "/"),
		tokenSource: ts,
		log:         log,
	}, nil
}

// checkRetry follows retryablehttp's default policy except for 429, which is
// surfaced to the caller instead of being retried at transport level.
func checkRetry(ctx context.Context, resp *nethttp.Response, err error) (bool, error) {
	if resp != nil && resp.StatusCode == nethttp.StatusTooManyRequests {
		return false, nil
	}
	return retryablehttp.DefaultRetryPolicy(ctx, resp, err)
}

// Create issues POST <base>/<path> with the JSON body and returns the created
// resource.
func (c *Client) Create(ctx context.Context, path string, body any) (*Resource, error) {
	return c.doResource(ctx, nethttp.MethodPost, path, nil, body)
}

// Update issues PATCH <base>/<name> with an explicit updateMask listing the
// fields being changed.
func (c *Client) Update(ctx context.Context, name string, body any, mask []string) (*Resource, error) {
	query := url.Values{}
	query.Set("updateMask", strings.Join(mask, ","))
	return c.doResource(ctx, nethttp.MethodPatch, name, query, body)
}

// Delete issues DELETE <base>/<name>.
func (c *Client) Delete(ctx context.Context, name string) error {
	resp, err := c.do(ctx, nethttp.MethodDelete, name, nil, nil)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 200 && resp.StatusCode < 300 {
		return nil
	}
	return c.classify(resp)
}

// doResource performs a mutation and decodes the returned resource body.
func (c *Client) doResource(ctx context.Context, method, path string, query url.Values, body any) (*Resource, error) {
	resp, err := c.do(ctx, method, path, query, body)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, c.classify(resp)
	}

	reader, err := decompressed(resp)
	if err != nil {
		return nil, fmt.Errorf("read response: %w", err)
	}

	var res Resource
	if err := json.NewDecoder(reader).Decode(&res); err != nil {
		return nil, fmt.Errorf("decode resource response: %w", err)
	}
	return &res, nil
}

// do builds and issues one authenticated request.
func (c *Client) do(ctx context.Context, method, path string, query url.Values, body any) (*nethttp.Response, error) {
	var reqBody io.Reader
	if body != nil {
		jsonData, err := json.Marshal(body)
		if err != nil {
			return nil, fmt.Errorf("marshal request body: %w", err)
		}
		reqBody = bytes.NewReader(jsonData)
	}

	fullURL := c.baseURL + "/" + strings.TrimPrefix(path, "/")
	if len(query) > 0 {
		fullURL += "?" + query.Encode()
	}

	req, err := nethttp.NewRequestWithContext(ctx, method, fullURL, reqBody)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}

	token, err := c.tokenSource.Token()
	if err != nil {
		return nil, fmt.Errorf("obtain access token: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+token.AccessToken)
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")
	req.Header.Set("Accept-Encoding", "gzip")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		c.log.Error().Err(err).Str("method", method).Str("path", path).Msg("admin API call failed")
		return nil, fmt.Errorf("request failed: %w", err)
	}

	if resp.StatusCode == nethttp.StatusTooManyRequests {
		c.log.Warn().Str("method", method).Str("path", path).
			Str("retry_after", resp.Header.Get("Retry-After")).
			Msg("throttled by admin API")
	}

	return resp, nil
}

// remoteErrorBody is the JSON error envelope the admin API wraps failures in.
type remoteErrorBody struct {
	Error struct {
		Code    int    `json:"code"`
		Message string `json:"message"`
		Status  string `json:"status"`
	} `json:"error"`
}

// classify turns a non-2xx response into a RemoteError. The body is read
// fully here; callers must not touch it afterwards.
func (c *Client) classify(resp *nethttp.Response) error {
	message := ""
	if reader, err := decompressed(resp); err == nil {
		raw, _ := io.ReadAll(io.LimitReader(reader, 64<<10))
		var parsed remoteErrorBody
		if json.Unmarshal(raw, &parsed) == nil && parsed.Error.Message != "" {
			message = parsed.Error.Message
		} else {
			message = strings.TrimSpace(string(raw))
		}
	}
	if message == "" {
		message = nethttp.StatusText(resp.StatusCode)
	}

	return &RemoteError{
		Class:      Classify(resp.StatusCode, message),
		StatusCode: resp.StatusCode,
		Message:    message,
	}
}

// decompressed returns a reader over the response body, unwrapping gzip when
// the server honored our Accept-Encoding header.
func decompressed(resp *nethttp.Response) (io.Reader, error) {
	if strings.EqualFold(resp.Header.Get("Content-Encoding"), "gzip") {
		return gzip.NewReader(resp.Body)
	}
	return resp.Body, nil
}
