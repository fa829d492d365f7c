package resource

import (
	"bytes"
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/ChuLiYu/ping-agent/pkg/types"
)

// Request is an immutable HTTP request template. It is copied by value into
// jobs and turned into a fresh *http.Request on every execution.
type Request struct {
	Method string
	URL    string
	Header http.Header
	Body   []byte
}

// Response is what a probe observed.
type Response struct {
	Status  int
	Elapsed time.Duration
}

// RequestFromCheck builds the template for an HTTP check.
func RequestFromCheck(c *types.HTTPCheck) Request {
	method := c.Method
	if method == "" {
		method = http.MethodGet
	}

	header := make(http.Header, len(c.Headers))
	for k, v := range c.Headers {
		header.Set(k, v)
	}

	var body []byte
	if c.Body != "" {
		body = []byte(c.Body)
	}

	return Request{Method: method, URL: c.URL, Header: header, Body: body}
}

// build creates the outgoing request bound to ctx.
func (r Request) build(ctx context.Context) (*http.Request, error) {
	req, err := http.NewRequestWithContext(ctx, r.Method, r.URL, bytes.NewReader(r.Body))
	if err != nil {
		return nil, fmt.Errorf("build request: %w", err)
	}
	req.Header = r.Header.Clone()
	return req, nil
}
