package airtable

import (
    "bytes"
    "context"
    "encoding/json"
    "fmt"
    "io"
    "net/http"
    "net/url"
    "strings"
    "time"

    "github.com/cockroachdb/errors"
    "github.com/sethvargo/go-retry"
    "go.uber.org/zap"
    "golang.org/x/time/rate"

    "orderbridge/internal/ports"
)

const (
    DefaultBaseURL = "https://api.airtable.com/v0"
    pageSize       = 100
)

// Options configures the client.
type Options struct {
    APIKey            string
    BaseID            string
    BaseURL           string
    RequestsPerSecond float64
    MaxRetries        int
    RetryBackoff      time.Duration
    Timeout           time.Duration
    // HTTPClient replaces the default client, for tests.
    HTTPClient *http.Client
}

// Client talks to one Airtable base. Requests are rate limited and retried
// with exponential backoff on 429 and 5xx responses.
type Client struct {
    http       *http.Client
    baseURL    string
    baseID     string
    apiKey     string
    limiter    *rate.Limiter
    maxRetries uint64
    backoff    time.Duration
    log        *zap.SugaredLogger
}

// APIError is a non-2xx response.
type APIError struct {
    Status  int
    Type    string
    Message string
}

func (e *APIError) Error() string {
    if e.Message != "" {
        return fmt.Sprintf("airtable: %d %s: %s", e.Status, e.Type, e.Message)
    }
    return fmt.Sprintf("airtable: %d %s", e.Status, e.Type)
}

func NewClient(opts Options, log *zap.SugaredLogger) (*Client, error) {
    if opts.APIKey == "" || opts.BaseID == "" {
        return nil, errors.New("airtable: api key and base id are required")
    }
    base := strings.TrimRight(opts.BaseURL, "/")
    if base == "" {
        base = DefaultBaseURL
    }
    httpClient := opts.HTTPClient
    if httpClient == nil {
        timeout := opts.Timeout
        if timeout == 0 {
            timeout = 30 * time.Second
        }
        httpClient = &http.Client{Timeout: timeout}
    }
    rps := opts.RequestsPerSecond
    if rps <= 0 {
        rps = 5
    }
    backoff := opts.RetryBackoff
    if backoff <= 0 {
        backoff = 500 * time.Millisecond
    }
    maxRetries := opts.MaxRetries
    if maxRetries < 0 {
        maxRetries = 0
    }
    return &Client{
        http:       httpClient,
        baseURL:    base,
        baseID:     opts.BaseID,
        apiKey:     opts.APIKey,
        limiter:    rate.NewLimiter(rate.Limit(rps), 1),
        maxRetries: uint64(maxRetries),
        backoff:    backoff,
        log:        log,
    }, nil
}

// do sends one JSON request, retrying transient failures, and decodes the
// response body into out when it is not nil.
func (c *Client) do(ctx context.Context, method, path string, query url.Values, body, out any) error {
    var payload []byte
    if body != nil {
        var err error
        if payload, err = json.Marshal(body); err != nil {
            return errors.Wrap(err, "encode request")
        }
    }
    target := c.baseURL + path
    if len(query) > 0 {
        target += "?" + query.Encode()
    }

    b := retry.WithMaxRetries(c.maxRetries, retry.NewExponential(c.backoff))
    attempt := 0
    return retry.Do(ctx, b, func(ctx context.Context) error {
        attempt++
        if err := c.limiter.Wait(ctx); err != nil {
            return err
        }
        var rd io.Reader
        if payload != nil {
            rd = bytes.NewReader(payload)
        }
        req, err := http.NewRequestWithContext(ctx, method, target, rd)
        if err != nil {
            return errors.Wrap(err, "build request")
        }
        req.Header.Set("Authorization", "Bearer "+c.apiKey)
        if payload != nil {
            req.Header.Set("Content-Type", "application/json")
        }

        resp, err := c.http.Do(req)
        if err != nil {
            c.log.Warnw("airtable request failed", "method", method, "path", path, "attempt", attempt, "error", err)
            return retry.RetryableError(errors.Wrapf(err, "%s %s", method, path))
        }
        defer resp.Body.Close()

        if resp.StatusCode >= 300 {
            apiErr := parseError(resp)
            switch {
            case resp.StatusCode == http.StatusTooManyRequests || resp.StatusCode >= 500:
                c.log.Warnw("airtable request throttled or failed, retrying", "method", method, "path", path, "status", resp.StatusCode, "attempt", attempt)
                return retry.RetryableError(apiErr)
            case resp.StatusCode == http.StatusNotFound:
                return errors.Mark(apiErr, ports.ErrNotFound)
            default:
                return apiErr
            }
        }
        if out == nil {
            return nil
        }
        if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
            return errors.Wrapf(err, "decode %s %s", method, path)
        }
        return nil
    })
}

func parseError(resp *http.Response) *APIError {
    apiErr := &APIError{Status: resp.StatusCode, Type: http.StatusText(resp.StatusCode)}
    raw, _ := io.ReadAll(io.LimitReader(resp.Body, 64<<10))
    var env struct {
        Error json.RawMessage `json:"error"`
    }
    if json.Unmarshal(raw, &env) != nil || len(env.Error) == 0 {
        apiErr.Message = strings.TrimSpace(string(raw))
        return apiErr
    }
    var detail struct {
        Type    string `json:"type"`
        Message string `json:"message"`
    }
    var code string
    switch {
    case json.Unmarshal(env.Error, &code) == nil:
        apiErr.Type = code
    case json.Unmarshal(env.Error, &detail) == nil:
        if detail.Type != "" {
            apiErr.Type = detail.Type
        }
        apiErr.Message = detail.Message
    }
    return apiErr
}
