// internal/adapters/apiclient/client.go
package apiclient

import (
	"bytes"
	"context"
	crand "crypto/rand"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"golang.org/x/time/rate"

	"reviewsync/internal/adapters/observability"
	"reviewsync/internal/domain"
)

var (
	ErrNotFound     = fmt.Errorf("provider: not found: %w", domain.ErrProviderUnavailable)
	ErrUnauthorized = fmt.Errorf("provider: unauthorized: %w", domain.ErrProviderUnavailable)
	ErrForbidden    = fmt.Errorf("provider: forbidden: %w", domain.ErrProviderUnavailable)
)

const maxAttempts = 4

// Client is a rate limited JSON client for one provider.
type Client struct {
	service   string
	hc        *http.Client
	rl        *rate.Limiter
	basicUser string
	basicPass string
}

type Option func(*Client)

func WithHTTPClient(hc *http.Client) Option { return func(c *Client) { c.hc = hc } }

func WithBasicAuth(user, pass string) Option {
	return func(c *Client) { c.basicUser, c.basicPass = user, pass }
}

func New(service string, rps int, opts ...Option) *Client {
	if rps <= 0 {
		rps = 5
	}
	c := &Client{
		service: service,
		hc:      &http.Client{Timeout: 20 * time.Second},
		rl:      rate.NewLimiter(rate.Limit(rps), rps),
	}
	for _, o := range opts {
		o(c)
	}
	return c
}

// GetJSON performs a GET and decodes the body into out.
func (c *Client) GetJSON(ctx context.Context, u string, hdr http.Header, out any) error {
	return c.do(ctx, http.MethodGet, u, nil, hdr, out)
}

// PostJSON marshals body, POSTs it and decodes the response into out.
func (c *Client) PostJSON(ctx context.Context, u string, body any, hdr http.Header, out any) error {
	b, err := json.Marshal(body)
	if err != nil {
		return fmt.Errorf("marshal %s request: %w", c.service, err)
	}
	return c.do(ctx, http.MethodPost, u, b, hdr, out)
}

// do sends the request with client-side rate limiting and retries.
// Retries on network errors, 429 and transient 5xx, honoring Retry-After when provided.
// A POST may already have been accepted when it fails, so it is only
// retried on 429.
func (c *Client) do(ctx context.Context, method, u string, body []byte, hdr http.Header, out any) error {
	if err := c.rl.Wait(ctx); err != nil {
		return err
	}
	endpoint := endpointLabel(u)
	idempotent := method != http.MethodPost

	var lastErr error
	for i := 0; i < maxAttempts; i++ {
		// build a fresh request each attempt
		var rdr io.Reader
		if body != nil {
			rdr = bytes.NewReader(body)
		}
		req, err := http.NewRequestWithContext(ctx, method, u, rdr)
		if err != nil {
			return err
		}
		for k, vs := range hdr {
			for _, v := range vs {
				req.Header.Add(k, v)
			}
		}
		if c.basicUser != "" {
			req.SetBasicAuth(c.basicUser, c.basicPass)
		}
		if body != nil {
			req.Header.Set("Content-Type", "application/json")
		}
		req.Header.Set("Accept", "application/json")
		req.Header.Set("User-Agent", "reviewsync/1.0")

		start := time.Now()
		resp, err := c.hc.Do(req)
		if err != nil {
			observability.ObserveExternal(c.service, endpoint, 0, time.Since(start))
			if ctx.Err() != nil {
				return ctx.Err()
			}
			lastErr = fmt.Errorf("%s request: %v: %w", c.service, err, domain.ErrProviderUnavailable)
			if idempotent && i < maxAttempts-1 && sleepCtx(ctx, backoff(i)) {
				continue
			}
			if ctx.Err() != nil {
				return ctx.Err()
			}
			return lastErr
		}
		observability.ObserveExternal(c.service, endpoint, resp.StatusCode, time.Since(start))

		switch resp.StatusCode {
		case http.StatusOK, http.StatusCreated, http.StatusAccepted:
			err := json.NewDecoder(resp.Body).Decode(out)
			resp.Body.Close()
			if err != nil {
				return fmt.Errorf("decode %s response: %v: %w", c.service, err, domain.ErrMalformedResponse)
			}
			return nil

		case http.StatusNoContent:
			io.Copy(io.Discard, resp.Body)
			resp.Body.Close()
			return nil

		case http.StatusNotFound:
			resp.Body.Close()
			return ErrNotFound

		case http.StatusUnauthorized:
			resp.Body.Close()
			return ErrUnauthorized

		case http.StatusForbidden:
			resp.Body.Close()
			return ErrForbidden

		case http.StatusTooManyRequests, http.StatusInternalServerError,
			http.StatusBadGateway, http.StatusServiceUnavailable, http.StatusGatewayTimeout:
			wait := retryAfter(resp)
			resp.Body.Close()
			if wait == 0 {
				wait = backoff(i)
			}
			lastErr = fmt.Errorf("%s remote %d: %w", c.service, resp.StatusCode, domain.ErrProviderUnavailable)
			retry := idempotent || resp.StatusCode == http.StatusTooManyRequests
			if retry && i < maxAttempts-1 && sleepCtx(ctx, wait) {
				continue
			}
			if ctx.Err() != nil {
				return ctx.Err()
			}
			return lastErr

		default:
			b, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
			resp.Body.Close()
			return fmt.Errorf("%s bad status %d: %s: %w", c.service, resp.StatusCode,
				strings.TrimSpace(string(b)), domain.ErrProviderUnavailable)
		}
	}

	return lastErr
}

// endpointLabel keeps metric cardinality bounded: path only, ids collapsed.
func endpointLabel(raw string) string {
	u, err := url.Parse(raw)
	if err != nil {
		return "unknown"
	}
	parts := strings.Split(strings.Trim(u.Path, "/"), "/")
	for i, p := range parts {
		if p != "" && strings.IndexFunc(p, func(r rune) bool { return r >= '0' && r <= '9' }) >= 0 {
			parts[i] = ":id"
		}
	}
	return "/" + strings.Join(parts, "/")
}

// sleepCtx waits for d or returns early if ctx is done.
func sleepCtx(ctx context.Context, d time.Duration) bool {
	if d <= 0 {
		return true
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-t.C:
		return true
	}
}

// retryAfter parses Retry-After header (seconds or HTTP-date). Returns 0 if absent/invalid.
func retryAfter(resp *http.Response) time.Duration {
	h := resp.Header.Get("Retry-After")
	if h == "" {
		return 0
	}
	if secs, err := strconv.Atoi(strings.TrimSpace(h)); err == nil && secs >= 0 {
		return time.Duration(secs) * time.Second
	}
	if t, err := http.ParseTime(h); err == nil {
		if d := time.Until(t); d > 0 {
			return d
		}
	}
	return 0
}

// backoff returns an exponential delay (200ms, 400ms, 800ms...) with up to +50% jitter.
func backoff(i int) time.Duration {
	base := time.Duration(1<<i) * 200 * time.Millisecond
	var b [1]byte
	if _, err := crand.Read(b[:]); err != nil {
		return base
	}
	f := float64(b[0]) / 255.0
	return base + time.Duration(0.5*f*float64(base))
}

// IsAuthError reports a 401/403 from the provider.
func IsAuthError(err error) bool {
	return errors.Is(err, ErrUnauthorized) || errors.Is(err, ErrForbidden)
}
