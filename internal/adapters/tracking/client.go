// Package tracking sends named events to the Customer.io Track API.
package tracking

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/cockroachdb/errors"
	"golang.org/x/time/rate"
)

// Client defaults.
const (
	DefaultBaseURL = "https://track.customer.io"
	defaultTimeout = 30 * time.Second
	defaultRetries = 3
	defaultBackoff = 200 * time.Millisecond
	maxErrorBody   = 512
)

// Tracker delivers one event for one customer.
type Tracker interface {
	Track(ctx context.Context, customerID, name string, data any) error
}

// Client is a Tracker backed by HTTP. A Client is not shared between
// workers; see Factory.
type Client struct {
	http    *http.Client
	baseURL string
	siteID  string
	apiKey  string
	limiter *rate.Limiter
	retries int
	backoff time.Duration
}

var _ Tracker = (*Client)(nil)

// NewClient creates a client with its own connection pool.
func NewClient(siteID, apiKey string, opts ...Option) *Client {
	c := &Client{
		http: &http.Client{
			Timeout:   defaultTimeout,
			Transport: http.DefaultTransport.(*http.Transport).Clone(),
		},
		baseURL: DefaultBaseURL,
		siteID:  siteID,
		apiKey:  apiKey,
		retries: defaultRetries,
		backoff: defaultBackoff,
	}
	for _, opt := range opts {
		opt(c)
	}
	c.baseURL = strings.TrimRight(c.baseURL, "/")
	return c
}

type trackRequest struct {
	Name string `json:"name"`
	Data any    `json:"data"`
}

// Track posts the event. data is encoded as the event's attributes.
func (c *Client) Track(ctx context.Context, customerID, name string, data any) error {
	if customerID == "" {
		return ErrEmptyCustomerID
	}
	body, err := json.Marshal(trackRequest{Name: name, Data: data})
	if err != nil {
		return errors.Wrap(err, "encode event")
	}
	endpoint := c.baseURL + "/api/v1/customers/" + url.PathEscape(customerID) + "/events"

	var lastErr error
	for attempt := 0; attempt <= c.retries; attempt++ {
		if attempt > 0 {
			if err := sleep(ctx, c.backoff<<(attempt-1)); err != nil {
				return errors.CombineErrors(lastErr, err)
			}
		}
		if c.limiter != nil {
			if err := c.limiter.Wait(ctx); err != nil {
				return errors.Wrap(err, "rate limit wait")
			}
		}

		lastErr = c.send(ctx, endpoint, body)
		if lastErr == nil {
			return nil
		}
		var se *StatusError
		if errors.As(lastErr, &se) && !se.Retryable() {
			return lastErr
		}
		if ctx.Err() != nil {
			return lastErr
		}
	}
	return lastErr
}

func (c *Client) send(ctx context.Context, endpoint string, body []byte) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(body))
	if err != nil {
		return errors.Wrap(err, "build request")
	}
	req.Header.Set("Content-Type", "application/json")
	req.SetBasicAuth(c.siteID, c.apiKey)

	resp, err := c.http.Do(req)
	if err != nil {
		return errors.Mark(errors.Wrap(err, "post event"), ErrTransport)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 200 && resp.StatusCode < 300 {
		_, _ = io.Copy(io.Discard, resp.Body)
		return nil
	}
	excerpt, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
	return &StatusError{StatusCode: resp.StatusCode, Body: strings.TrimSpace(string(excerpt))}
}

func sleep(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
