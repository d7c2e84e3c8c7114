// Package webhook performs the outbound HTTP calls of Webhook and Lead
// Capture nodes.
package webhook

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/vinculobrasil/flowbot/pkg/ports"
)

// DefaultMaxBody caps how much of a response body is read.
const DefaultMaxBody = 1 << 20

// ErrBodyTooLarge is returned when a response body exceeds the limit.
var ErrBodyTooLarge = errors.New("webhook response body too large")

var _ ports.WebhookInvoker = (*Invoker)(nil)

// Invoker implements ports.WebhookInvoker with net/http.
type Invoker struct {
	client    *http.Client
	userAgent string
	maxBody   int64
}

// Option configures an Invoker.
type Option func(*Invoker)

// WithClient replaces the HTTP client.
func WithClient(c *http.Client) Option {
	return func(i *Invoker) {
		if c != nil {
			i.client = c
		}
	}
}

// WithUserAgent sets the User-Agent header sent when the node sets none.
func WithUserAgent(ua string) Option {
	return func(i *Invoker) {
		i.userAgent = ua
	}
}

// WithMaxBody overrides DefaultMaxBody.
func WithMaxBody(n int64) Option {
	return func(i *Invoker) {
		if n > 0 {
			i.maxBody = n
		}
	}
}

// New creates an Invoker.
func New(opts ...Option) *Invoker {
	i := &Invoker{
		client:    &http.Client{Timeout: 60 * time.Second},
		userAgent: "flowbot",
		maxBody:   DefaultMaxBody,
	}
	for _, opt := range opts {
		opt(i)
	}
	return i
}

// Call performs req. Any HTTP status is returned as a response; transport
// failures, timeouts and bodies over the limit are errors.
func (i *Invoker) Call(ctx context.Context, req ports.WebhookRequest) (*ports.WebhookResponse, error) {
	if req.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, req.Timeout)
		defer cancel()
	}

	method := strings.ToUpper(req.Method)
	if method == "" {
		method = http.MethodPost
	}
	var body io.Reader
	if req.Body != "" && method != http.MethodGet && method != http.MethodHead {
		body = strings.NewReader(req.Body)
	}

	httpReq, err := http.NewRequestWithContext(ctx, method, req.URL, body)
	if err != nil {
		return nil, fmt.Errorf("invalid webhook request: %w", err)
	}
	for k, v := range req.Headers {
		httpReq.Header.Set(k, v)
	}
	if body != nil && httpReq.Header.Get("Content-Type") == "" {
		httpReq.Header.Set("Content-Type", "application/json")
	}
	if httpReq.Header.Get("User-Agent") == "" && i.userAgent != "" {
		httpReq.Header.Set("User-Agent", i.userAgent)
	}

	resp, err := i.client.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("webhook %s %s: %w", method, req.URL, err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(io.LimitReader(resp.Body, i.maxBody+1))
	if err != nil {
		return nil, fmt.Errorf("failed to read webhook response: %w", err)
	}
	if int64(len(data)) > i.maxBody {
		return nil, fmt.Errorf("webhook %s %s: %w (limit %d bytes, status %d)", method, req.URL, ErrBodyTooLarge, i.maxBody, resp.StatusCode)
	}
	return &ports.WebhookResponse{StatusCode: resp.StatusCode, Body: string(data)}, nil
}
