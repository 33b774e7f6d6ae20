package webhooks

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	apperrors "switchboard/internal/pkg/errors"
)

// MaxResponseBytes caps how much of a downstream response is read.
const MaxResponseBytes = 4 << 20

const userAgent = "Switchboard-Webhook/1.0"

// Response is a downstream reply, relayed without modification.
type Response struct {
	StatusCode  int
	ContentType string
	Body        []byte
}

func (r *Response) OK() bool {
	return r != nil && r.StatusCode >= 200 && r.StatusCode < 300
}

// Delivery is one outbound POST.
type Delivery struct {
	URL       string
	Body      []byte
	Token     string
	Headers   map[string]string
	Deadline  time.Duration
	RequestID string
}

// Poster sends deliveries. Any HTTP response, 2xx or not, is returned
// with a nil error; errors are Timeout or TransportError only.
type Poster struct {
	client        *http.Client
	signingSecret string
}

func NewPoster(client *http.Client, signingSecret string) *Poster {
	if client == nil {
		client = &http.Client{}
	}
	return &Poster{client: client, signingSecret: signingSecret}
}

func (p *Poster) Post(ctx context.Context, d Delivery) (*Response, error) {
	ctx, cancel := WithDeadline(ctx, d.Deadline)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, d.URL, bytes.NewReader(d.Body))
	if err != nil {
		return nil, apperrors.Wrap(apperrors.KindTransport, "invalid target url", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("User-Agent", userAgent)
	if d.Token != "" {
		req.Header.Set("Authorization", "Bearer "+d.Token)
	}
	if p.signingSecret != "" {
		req.Header.Set(SignatureHeader, Sign(p.signingSecret, d.Body))
	}
	if d.RequestID != "" {
		req.Header.Set("X-Request-ID", d.RequestID)
	}
	for k, v := range d.Headers {
		req.Header.Set(k, v)
	}

	resp, err := p.client.Do(req)
	if err != nil {
		return nil, classify(ctx, err, d.Deadline)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, MaxResponseBytes+1))
	if err != nil {
		return nil, classify(ctx, err, d.Deadline)
	}
	if len(body) > MaxResponseBytes {
		return nil, apperrors.New(apperrors.KindTransport,
			fmt.Sprintf("downstream response exceeds %d bytes", MaxResponseBytes))
	}

	return &Response{
		StatusCode:  resp.StatusCode,
		ContentType: resp.Header.Get("Content-Type"),
		Body:        body,
	}, nil
}

func classify(ctx context.Context, err error, deadline time.Duration) error {
	if Exceeded(ctx) || errors.Is(err, context.DeadlineExceeded) {
		return apperrors.Wrap(apperrors.KindTimeout,
			fmt.Sprintf("downstream did not respond within %dms", deadline.Milliseconds()), err)
	}
	return apperrors.Wrap(apperrors.KindTransport, "downstream request failed", err)
}
