// Package external is the boundary between coworkgate and the Mercado Pago
// REST API. Every call goes through restClient, which authenticates with
// the access token, attaches one X-Idempotency-Key to each write, retries
// transient failures behind a circuit breaker and turns the API's error
// envelope into gateway_* application errors.
package external

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"math/rand/v2"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/sony/gobreaker/v2"

	"coworkgate/internal/types"
)

// maxErrorBody caps how much of an error response is read.
const maxErrorBody = 64 << 10

// retryPolicy bounds the attempts of one logical call.
type retryPolicy struct {
	attempts int           // total tries, the first included
	base     time.Duration // wait before the second try
	ceiling  time.Duration // cap for backoff and Retry-After
}

// APIError is the envelope Mercado Pago returns with 4xx and 5xx responses.
type APIError struct {
	Message string     `json:"message"`
	Code    string     `json:"error"`
	Status  int        `json:"status"`
	Cause   []APICause `json:"cause"`
}

// APICause is one entry of APIError.Cause. Code is a number for most
// endpoints and a string for some.
type APICause struct {
	Code        any    `json:"code"`
	Description string `json:"description"`
}

type restClient struct {
	http      *http.Client
	breaker   *gobreaker.CircuitBreaker[*http.Response]
	retry     retryPolicy
	baseURL   string
	token     string
	userAgent string
	logger    *slog.Logger

	newKey func() string
	wait   func(ctx context.Context, d time.Duration) error
}

// newBreaker opens after six consecutive transport failures or retryable
// statuses and probes again after 30s.
func newBreaker(name string) *gobreaker.CircuitBreaker[*http.Response] {
	return gobreaker.NewCircuitBreaker[*http.Response](gobreaker.Settings{
		Name:        name,
		MaxRequests: 1,
		Interval:    time.Minute,
		Timeout:     30 * time.Second,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures > 5
		},
	})
}

func sleepContext(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

// retryable reports whether a status is worth another attempt.
func retryable(status int) bool {
	return status == http.StatusTooManyRequests || status >= 500
}

func breakerOpen(err error) bool {
	return errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests)
}

// call performs one API operation. in, when non-nil, is sent as the JSON
// body and out receives a 2xx body. Every attempt of a write reuses the
// same idempotency key so a retried create is collapsed by the API.
func (c *restClient) call(ctx context.Context, op, method, path string, in, out any) error {
	var body []byte
	if in != nil {
		var err error
		if body, err = json.Marshal(in); err != nil {
			return types.NewAppError(types.ErrCodeInternalUnexpected, op+": failed to encode request", err)
		}
	}
	var idemKey string
	if method != http.MethodGet {
		idemKey = c.newKey()
	}

	for attempt := 1; ; attempt++ {
		resp, err := c.send(ctx, method, path, body, idemKey)

		var failure error
		var retryAfter string
		switch {
		case breakerOpen(err):
			return types.NewAppError(types.ErrCodeGatewayUnavailable,
				op+": circuit breaker is open; payment gateway unavailable", err)
		case resp == nil:
			failure = types.NewAppError(types.ErrCodeGatewayUnavailable, op+": payment gateway request failed", err)
		case resp.StatusCode < 300:
			return decodeBody(op, resp, out)
		default:
			retryAfter = resp.Header.Get("Retry-After")
			failure = c.apiFailure(ctx, op, resp)
			if !retryable(resp.StatusCode) {
				return failure
			}
		}

		if attempt >= c.retry.attempts || ctx.Err() != nil {
			return failure
		}
		wait := c.backoff(attempt, retryAfter)
		c.logger.DebugContext(ctx, "retrying mercado pago call",
			"operation", op, "attempt", attempt, "wait", wait, "error", failure)
		if c.wait(ctx, wait) != nil {
			return failure
		}
	}
}

// send makes a single attempt through the breaker. Retryable statuses count
// as breaker failures and are returned together with the response.
func (c *restClient) send(ctx context.Context, method, path string, body []byte, idemKey string) (*http.Response, error) {
	var rdr io.Reader
	if body != nil {
		rdr = bytes.NewReader(body)
	}
	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, rdr)
	if err != nil {
		return nil, err
	}
	h := req.Header
	h.Set("Authorization", "Bearer "+c.token)
	h.Set("Accept", "application/json")
	if body != nil {
		h.Set("Content-Type", "application/json")
	}
	if idemKey != "" {
		h.Set("X-Idempotency-Key", idemKey)
	}
	if c.userAgent != "" {
		h.Set("User-Agent", c.userAgent)
	}
	if id := types.GetRequestID(ctx); id != "" {
		h.Set("X-Request-Id", id)
	}

	return c.breaker.Execute(func() (*http.Response, error) {
		resp, err := c.http.Do(req)
		if err != nil {
			return nil, err
		}
		if retryable(resp.StatusCode) {
			return resp, fmt.Errorf("mercado pago returned %d", resp.StatusCode)
		}
		return resp, nil
	})
}

func decodeBody(op string, resp *http.Response, out any) error {
	defer resp.Body.Close()
	if out == nil {
		_, _ = io.Copy(io.Discard, resp.Body)
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return types.NewAppError(types.ErrCodeGatewayBadResponse, op+": undecodable response", err)
	}
	return nil
}

// readAPIError consumes and closes the body. A body that is not the JSON
// envelope becomes the message.
func readAPIError(resp *http.Response) APIError {
	defer resp.Body.Close()
	raw, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))

	var apiErr APIError
	if json.Unmarshal(raw, &apiErr) != nil || apiErr.Message == "" {
		apiErr.Message = strings.TrimSpace(string(raw))
	}
	if apiErr.Status == 0 {
		apiErr.Status = resp.StatusCode
	}
	return apiErr
}

// apiFailure maps a non-2xx response to an AppError whose details carry the
// HTTP status, the API error code and its causes.
func (c *restClient) apiFailure(ctx context.Context, op string, resp *http.Response) error {
	apiErr := readAPIError(resp)
	status := resp.StatusCode

	details := map[string]any{"status": status}
	if apiErr.Code != "" {
		details["gateway_error"] = apiErr.Code
	}
	if len(apiErr.Cause) > 0 {
		causes := make([]map[string]any, 0, len(apiErr.Cause))
		for _, cause := range apiErr.Cause {
			causes = append(causes, map[string]any{"code": cause.Code, "description": cause.Description})
		}
		details["causes"] = causes
	}

	var (
		code types.ErrorCode
		msg  string
	)
	switch {
	case status == http.StatusNotFound:
		code, msg = types.ErrCodeNotFoundPayment, op+": payment not found at gateway"
	case status == http.StatusUnauthorized || status == http.StatusForbidden:
		c.logger.ErrorContext(ctx, "mercado pago rejected credentials", "operation", op, "status", status)
		code, msg = types.ErrCodeGatewayRejected, op+": gateway rejected credentials"
	case status == http.StatusTooManyRequests:
		code, msg = types.ErrCodeGatewayRateLimited, op+": payment gateway rate limit exceeded"
	case status >= 500:
		code, msg = types.ErrCodeGatewayUnavailable, fmt.Sprintf("%s: payment gateway returned %d", op, status)
	default:
		code, msg = types.ErrCodeGatewayRejected, fmt.Sprintf("%s: gateway error (%d): %s", op, status, apiErr.Message)
	}
	return types.NewAppErrorWithDetails(code, msg, nil, details)
}

// backoff returns the wait before attempt+1. Retry-After, in seconds or as
// an HTTP date, wins when present; otherwise the wait grows from base with
// jitter. Both are capped at the policy ceiling.
func (c *restClient) backoff(attempt int, retryAfter string) time.Duration {
	p := c.retry
	if retryAfter != "" {
		if secs, err := strconv.Atoi(retryAfter); err == nil && secs > 0 {
			return min(time.Duration(secs)*time.Second, p.ceiling)
		}
		if at, err := http.ParseTime(retryAfter); err == nil {
			return min(max(time.Until(at), p.base), p.ceiling)
		}
	}

	upper := p.ceiling
	if shift := attempt - 1; shift < 16 {
		upper = min(p.base<<shift, p.ceiling)
	}
	if upper <= p.base {
		return p.base
	}
	return p.base + time.Duration(rand.Int64N(int64(upper-p.base)+1))
}

func newIdempotencyKey() string {
	return uuid.NewString()
}
