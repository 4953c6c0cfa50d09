package exchange

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/alejandrodnm/laybot/internal/domain"
	"golang.org/x/time/rate"
)

const (
	// Data endpoints (books, catalogue, order status) tolerate bursts;
	// transactional endpoints are kept well under the documented limits.
	dataRatePerSec  = 20
	orderRatePerSec = 5

	maxGetRetries = 3
	baseRetryWait = 500 * time.Millisecond
)

// Client is the HTTP client for the exchange trading API, with rate limiting
// and retries on idempotent reads. Mutating calls (place/replace/cancel) are
// never auto-retried: a transport failure there has an unknown outcome and
// the cascade controller reconciles it with a status poll instead.
type Client struct {
	http         *http.Client
	base         string
	appKey       string
	sessionToken string
	dataLimiter  *rate.Limiter
	orderLimiter *rate.Limiter
}

// NewClient creates a Client for the given API base URL and credentials.
func NewClient(base, appKey, sessionToken string) *Client {
	return &Client{
		http:         &http.Client{Timeout: 10 * time.Second},
		base:         base,
		appKey:       appKey,
		sessionToken: sessionToken,
		dataLimiter:  rate.NewLimiter(dataRatePerSec, 10),
		orderLimiter: rate.NewLimiter(orderRatePerSec, 2),
	}
}

// apiError is the exchange's error envelope on 4xx responses.
type apiError struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

// get performs a GET with rate limiting and bounded retries.
func (c *Client) get(ctx context.Context, op, url string, out any) error {
	var lastErr error
	for attempt := 0; attempt < maxGetRetries; attempt++ {
		if err := c.dataLimiter.Wait(ctx); err != nil {
			return &domain.TransportError{Op: op, Err: err}
		}

		req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
		if err != nil {
			return fmt.Errorf("%s: build request: %w", op, err)
		}
		c.setHeaders(req)

		resp, err := c.http.Do(req)
		if err != nil {
			lastErr = err
			wait(ctx, retryWait(attempt, nil))
			continue
		}

		retry, err := c.decode(op, resp, out)
		if err == nil {
			return nil
		}
		if !retry {
			return err
		}
		lastErr = err
		wait(ctx, retryWait(attempt, resp))
	}
	return &domain.TransportError{Op: op, Err: lastErr}
}

// mutate performs a single non-retried write (POST/PUT/DELETE). A network
// failure surfaces as a TransportError with an unknown outcome.
func (c *Client) mutate(ctx context.Context, op, method, url string, body, out any) error {
	if err := c.orderLimiter.Wait(ctx); err != nil {
		return &domain.TransportError{Op: op, Err: err}
	}

	var reader io.Reader
	if body != nil {
		b, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("%s: marshal body: %w", op, err)
		}
		reader = bytes.NewReader(b)
	}

	req, err := http.NewRequestWithContext(ctx, method, url, reader)
	if err != nil {
		return fmt.Errorf("%s: build request: %w", op, err)
	}
	c.setHeaders(req)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return &domain.TransportError{Op: op, Err: err}
	}

	if _, err := c.decode(op, resp, out); err != nil {
		return err
	}
	return nil
}

// decode consumes the response body and classifies failures: 429/5xx are
// retryable transport conditions, 4xx is a definite application rejection.
func (c *Client) decode(op string, resp *http.Response, out any) (retry bool, err error) {
	defer resp.Body.Close()
	raw, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return true, &domain.TransportError{Op: op, Err: err}
	}

	switch {
	case resp.StatusCode == http.StatusOK:
		if out == nil {
			return false, nil
		}
		if err := json.Unmarshal(raw, out); err != nil {
			return false, fmt.Errorf("%s: decode response: %w", op, err)
		}
		return false, nil

	case resp.StatusCode == http.StatusTooManyRequests || resp.StatusCode >= 500:
		return true, &domain.TransportError{
			Op:  op,
			Err: fmt.Errorf("HTTP %d: %s", resp.StatusCode, truncateBody(raw)),
		}

	default:
		var ae apiError
		if json.Unmarshal(raw, &ae) != nil || ae.Code == "" {
			ae = apiError{Code: strconv.Itoa(resp.StatusCode), Message: truncateBody(raw)}
		}
		slog.Debug("exchange: request rejected", "op", op, "code", ae.Code, "msg", ae.Message)
		return false, &domain.RejectionError{Op: op, Code: ae.Code, Message: ae.Message}
	}
}

func (c *Client) setHeaders(req *http.Request) {
	req.Header.Set("Accept", "application/json")
	req.Header.Set("X-Application", c.appKey)
	req.Header.Set("X-Authentication", c.sessionToken)
}

func retryWait(attempt int, resp *http.Response) time.Duration {
	if resp != nil {
		if ra := resp.Header.Get("Retry-After"); ra != "" {
			if secs, err := strconv.Atoi(ra); err == nil && secs > 0 {
				return time.Duration(secs) * time.Second
			}
		}
	}
	return baseRetryWait << attempt
}

func wait(ctx context.Context, d time.Duration) {
	select {
	case <-time.After(d):
	case <-ctx.Done():
	}
}

func truncateBody(raw []byte) string {
	s := string(raw)
	if len(s) > 200 {
		s = s[:200] + "..."
	}
	return s
}
