package destwebhook

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"
)

// OutcomeKind classifies a delivery attempt.
type OutcomeKind int

const (
	OutcomeSuccess OutcomeKind = iota
	OutcomeRetryableFailure
	OutcomeNonRetryableFailure
)

func (k OutcomeKind) String() string {
	switch k {
	case OutcomeSuccess:
		return "success"
	case OutcomeRetryableFailure:
		return "retryable_failure"
	case OutcomeNonRetryableFailure:
		return "non_retryable_failure"
	}
	return "unknown"
}

// Outcome is the classified result of one HTTP delivery attempt.
// StatusCode is 0 when no response was received.
type Outcome struct {
	Kind       OutcomeKind
	StatusCode int
	Message    string
}

const maxResponseBytes = 4 * 1024

// Client posts webhook payloads to destination URLs. Safe for
// concurrent use; connections are pooled by the shared transport.
type Client struct {
	httpClient *http.Client
}

func NewClient(timeout time.Duration) *Client {
	return &Client{
		httpClient: &http.Client{
			Timeout: timeout,
			Transport: &http.Transport{
				MaxIdleConns:        100,
				MaxIdleConnsPerHost: 10,
				IdleConnTimeout:     90 * time.Second,
			},
			// 3xx responses are classified as-is, not followed.
			CheckRedirect: func(req *http.Request, via []*http.Request) error {
				return http.ErrUseLastResponse
			},
		},
	}
}

// Post issues a single POST of payload to targetURL and classifies the
// result:
//
//	2xx                → Success
//	429, 5xx           → RetryableFailure
//	any I/O error      → RetryableFailure with status 0
//	other 3xx/4xx      → NonRetryableFailure
func (c *Client) Post(ctx context.Context, targetURL string, payload []byte) Outcome {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, targetURL, bytes.NewReader(payload))
	if err != nil {
		return Outcome{
			Kind:       OutcomeNonRetryableFailure,
			Message:    fmt.Sprintf("invalid request: %v", err),
			StatusCode: 0,
		}
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return Outcome{
			Kind:       OutcomeRetryableFailure,
			StatusCode: 0,
			Message:    classifyNetworkError(err),
		}
	}
	defer resp.Body.Close()

	body, _ := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))

	switch {
	case resp.StatusCode >= 200 && resp.StatusCode < 300:
		return Outcome{
			Kind:       OutcomeSuccess,
			StatusCode: resp.StatusCode,
			Message:    fmt.Sprintf("delivered with status %d", resp.StatusCode),
		}
	case resp.StatusCode == http.StatusTooManyRequests || resp.StatusCode >= 500:
		return Outcome{
			Kind:       OutcomeRetryableFailure,
			StatusCode: resp.StatusCode,
			Message:    failureMessage(resp.StatusCode, body),
		}
	default:
		return Outcome{
			Kind:       OutcomeNonRetryableFailure,
			StatusCode: resp.StatusCode,
			Message:    failureMessage(resp.StatusCode, body),
		}
	}
}

func failureMessage(status int, body []byte) string {
	msg := fmt.Sprintf("request failed with status %d", status)
	if trimmed := strings.TrimSpace(string(body)); trimmed != "" {
		msg += ": " + trimmed
	}
	return msg
}

// classifyNetworkError maps transport errors to short descriptive
// messages. Everything here happened before a response, so all of it
// is retryable.
func classifyNetworkError(err error) string {
	errStr := err.Error()

	switch {
	case strings.Contains(errStr, "no such host"):
		return "dns error: " + errStr
	case strings.Contains(errStr, "connection refused"):
		return "connection refused: " + errStr
	case strings.Contains(errStr, "connection reset"):
		return "connection reset: " + errStr
	case strings.Contains(errStr, "network is unreachable"):
		return "network unreachable: " + errStr
	case strings.Contains(errStr, "i/o timeout"), strings.Contains(errStr, "context deadline exceeded"), strings.Contains(errStr, "Client.Timeout"):
		return "timeout: " + errStr
	case strings.Contains(errStr, "tls:"), strings.Contains(errStr, "x509:"):
		return "tls error: " + errStr
	default:
		return "network error: " + errStr
	}
}
