// Package remote talks to the booking-service over HTTP and turns every
// failure into a categorized *apperr.Error.
package remote

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

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"

	"github.com/tmx156/EdgeTalentcrm-sub002/pkg/apperr"
	"github.com/tmx156/EdgeTalentcrm-sub002/pkg/booking"
	"github.com/tmx156/EdgeTalentcrm-sub002/pkg/events"
	"github.com/tmx156/EdgeTalentcrm-sub002/pkg/obs"
)

// API is the request/response contract of the remote store.
type API interface {
	ListBookings(ctx context.Context, from, to string) ([]booking.Booking, error)
	ListBlocked(ctx context.Context, from, to string) ([]booking.BlockedRange, error)
	CreateBooking(ctx context.Context, b booking.Booking) (booking.Booking, error)
	UpdateBooking(ctx context.Context, id string, b booking.Booking) (booking.Booking, error)
}

type Client struct {
	baseURL string
	http    *http.Client
	token   func() string
	origin  string
}

// NewClient builds a client for baseURL. token is called per request and
// supplies the bearer token of the session's user.
func NewClient(baseURL string, timeout time.Duration, token func() string, origin string) *Client {
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		http:    &http.Client{Timeout: timeout},
		token:   token,
		origin:  origin,
	}
}

type errorBody struct {
	Error   string `json:"error"`
	Message string `json:"message"`
}

func (c *Client) ListBookings(ctx context.Context, from, to string) ([]booking.Booking, error) {
	var out []booking.Booking
	q := url.Values{"from": {from}, "to": {to}}
	err := c.do(ctx, "remote.list_bookings", http.MethodGet, "/v1/bookings?"+q.Encode(), nil, &out)
	return out, err
}

func (c *Client) ListBlocked(ctx context.Context, from, to string) ([]booking.BlockedRange, error) {
	var out []booking.BlockedRange
	q := url.Values{"from": {from}, "to": {to}}
	err := c.do(ctx, "remote.list_blocked", http.MethodGet, "/v1/blocked-ranges?"+q.Encode(), nil, &out)
	return out, err
}

func (c *Client) CreateBooking(ctx context.Context, b booking.Booking) (booking.Booking, error) {
	var out booking.Booking
	err := c.do(ctx, "remote.create_booking", http.MethodPost, "/v1/bookings", b, &out)
	return out, err
}

func (c *Client) UpdateBooking(ctx context.Context, id string, b booking.Booking) (booking.Booking, error) {
	var out booking.Booking
	err := c.do(ctx, "remote.update_booking", http.MethodPut, "/v1/bookings/"+url.PathEscape(id), b, &out)
	return out, err
}

func (c *Client) do(ctx context.Context, op, method, path string, in, out any) (err error) {
	ctx, span := obs.Tracer("calendar-service/remote").Start(ctx, op)
	defer func() {
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
		}
		span.End()
	}()
	span.SetAttributes(attribute.String("http.method", method), attribute.String("http.path", path))

	var body io.Reader
	if in != nil {
		b, err := json.Marshal(in)
		if err != nil {
			return apperr.Wrap(apperr.KindValidation, op, err)
		}
		body = bytes.NewReader(b)
	}
	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, body)
	if err != nil {
		return apperr.Wrap(apperr.KindValidation, op, err)
	}
	req.Header.Set("Accept", "application/json")
	if in != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if c.token != nil {
		if tok := c.token(); tok != "" {
			req.Header.Set("Authorization", "Bearer "+tok)
		}
	}
	if c.origin != "" {
		req.Header.Set(events.OriginHeader, c.origin)
	}

	res, err := c.http.Do(req)
	if err != nil {
		// no response reached us, whatever the reason
		return apperr.Wrap(apperr.KindNetworkUnavailable, op, err)
	}
	defer res.Body.Close()
	span.SetAttributes(attribute.Int("http.status_code", res.StatusCode))

	raw, err := io.ReadAll(res.Body)
	if err != nil {
		return apperr.Wrap(apperr.KindNetworkUnavailable, op, err)
	}
	if res.StatusCode < 200 || res.StatusCode >= 300 {
		var eb errorBody
		msg := strings.TrimSpace(string(raw))
		if json.Unmarshal(raw, &eb) == nil && eb.Message != "" {
			msg = eb.Message
		}
		if msg == "" {
			msg = http.StatusText(res.StatusCode)
		}
		return &apperr.Error{
			Kind:    apperr.FromHTTPStatus(res.StatusCode),
			Op:      op,
			Message: msg,
			Err:     &StatusError{Code: res.StatusCode},
		}
	}
	if out == nil || len(raw) == 0 {
		return nil
	}
	if err := json.Unmarshal(raw, out); err != nil {
		return apperr.Wrap(apperr.KindServer, op, fmt.Errorf("decode response: %w", err))
	}
	return nil
}

// StatusError records the HTTP status behind a categorized failure.
type StatusError struct {
	Code int
}

func (e *StatusError) Error() string { return fmt.Sprintf("http status %d", e.Code) }

// StatusCode returns the HTTP status carried by err, or 0.
func StatusCode(err error) int {
	var se *StatusError
	if errors.As(err, &se) {
		return se.Code
	}
	return 0
}
