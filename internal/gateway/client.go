package gateway

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/rs/zerolog"
)

// Client is a thin HTTP client for the notification read model. It handles
// Bearer token authentication, the {isSuccess, message, data} response
// envelope, and retry with exponential backoff on HTTP 429 for reads.
// Mutations are never retried.
type Client struct {
	baseURL    string
	token      string
	httpClient *http.Client
	maxRetries int
	log        zerolog.Logger
}

// NewClient creates a new read-model client. The baseURL is the API root
// (e.g., http://localhost:1100/api) and token the session's Bearer token.
func NewClient(baseURL, token string, timeout time.Duration, log zerolog.Logger) *Client {
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	return &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		token:   token,
		httpClient: &http.Client{
			Timeout: timeout,
		},
		maxRetries: 3,
		log:        log.With().Str("component", "gateway").Logger(),
	}
}

// envelope is the response wrapper used by every read-model endpoint.
type envelope struct {
	IsSuccess *bool           `json:"isSuccess"`
	Message   string          `json:"message"`
	Data      json.RawMessage `json:"data"`
}

// do builds the request, handles auth, rate limiting on reads, the response
// envelope and JSON (de)serialization. Every failure is a *RequestFailed.
func (c *Client) do(
	ctx context.Context,
	op string,
	method string,
	path string,
	body interface{},
	result interface{},
) (string, error) {
	if c.token == "" {
		return "", &RequestFailed{Op: op, Err: ErrNotAuthenticated}
	}

	url := c.baseURL + path

	var payload []byte
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return "", &RequestFailed{Op: op, Err: fmt.Errorf("marshaling request body: %w", err)}
		}
		payload = data
	}

	retries := 0
	if method == http.MethodGet {
		retries = c.maxRetries
	}

	for attempt := 0; ; attempt++ {
		var bodyReader io.Reader
		if payload != nil {
			bodyReader = bytes.NewReader(payload)
		}

		req, err := http.NewRequestWithContext(ctx, method, url, bodyReader)
		if err != nil {
			return "", &RequestFailed{Op: op, Err: fmt.Errorf("creating request: %w", err)}
		}

		req.Header.Set("Authorization", "Bearer "+c.token)
		req.Header.Set("Accept", "application/json")
		if payload != nil {
			req.Header.Set("Content-Type", "application/json")
		}

		started := time.Now()
		resp, err := c.httpClient.Do(req)
		if err != nil {
			return "", &RequestFailed{
				Op:  op,
				Err: fmt.Errorf("executing request %s %s: %w", method, path, err),
			}
		}

		respBody, readErr := io.ReadAll(resp.Body)
		resp.Body.Close()

		c.log.Debug().
			Str("op", op).
			Str("method", method).
			Str("path", path).
			Int("status", resp.StatusCode).
			Dur("elapsed", time.Since(started)).
			Msg("read model request")

		if readErr != nil {
			return "", &RequestFailed{
				Op:     op,
				Status: resp.StatusCode,
				Err:    fmt.Errorf("reading response body: %w", readErr),
			}
		}

		if resp.StatusCode == http.StatusTooManyRequests && attempt < retries {
			select {
			case <-ctx.Done():
				return "", &RequestFailed{Op: op, Status: resp.StatusCode, Err: ctx.Err()}
			case <-time.After(retryAfterDuration(resp, attempt)):
				continue
			}
		}

		var env envelope
		decodeErr := json.Unmarshal(respBody, &env)

		if resp.StatusCode < 200 || resp.StatusCode >= 300 {
			msg := env.Message
			if decodeErr != nil || msg == "" {
				msg = strings.TrimSpace(string(respBody))
			}
			return "", &RequestFailed{Op: op, Status: resp.StatusCode, Message: msg}
		}

		// No content to parse (e.g. 204).
		if resp.StatusCode == http.StatusNoContent || len(respBody) == 0 {
			return "", nil
		}

		if decodeErr != nil {
			return "", &RequestFailed{
				Op:     op,
				Status: resp.StatusCode,
				Err:    fmt.Errorf("unmarshaling response from %s %s: %w", method, path, decodeErr),
			}
		}

		if env.IsSuccess != nil && !*env.IsSuccess {
			return "", &RequestFailed{Op: op, Status: resp.StatusCode, Message: env.Message}
		}

		if result != nil && len(env.Data) > 0 && string(env.Data) != "null" {
			if err := json.Unmarshal(env.Data, result); err != nil {
				return "", &RequestFailed{
					Op:     op,
					Status: resp.StatusCode,
					Err:    fmt.Errorf("unmarshaling data from %s %s: %w", method, path, err),
				}
			}
		}

		return env.Message, nil
	}
}

// retryAfterDuration reads the Retry-After header and computes a wait
// duration. Falls back to exponential backoff if the header is missing.
func retryAfterDuration(resp *http.Response, attempt int) time.Duration {
	if header := resp.Header.Get("Retry-After"); header != "" {
		if seconds, err := strconv.Atoi(header); err == nil {
			return time.Duration(seconds) * time.Second
		}
	}

	// Exponential backoff: 1s, 2s, 4s, ...
	backoff := time.Duration(1<<uint(attempt)) * time.Second
	if backoff > 30*time.Second {
		backoff = 30 * time.Second
	}
	return backoff
}
