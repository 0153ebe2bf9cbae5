package provider

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"
)

const maxBody = 16 << 20

// HTTPClient issues GET requests against one upstream base URL.
type HTTPClient struct {
	base   string
	client *http.Client
}

func NewHTTPClient(baseURL string, timeout time.Duration, userAgent string) *HTTPClient {
	return &HTTPClient{
		base: strings.TrimRight(baseURL, "/"),
		client: &http.Client{
			Timeout:   timeout,
			Transport: &uaTransport{UserAgent: userAgent},
		},
	}
}

type uaTransport struct {
	UserAgent string
}

func (t *uaTransport) RoundTrip(request *http.Request) (*http.Response, error) {
	request.Header.Set("User-Agent", t.UserAgent)
	request.Header.Set("Accept", "application/json")
	return http.DefaultTransport.RoundTrip(request)
}

// Get fetches path relative to the base URL. Non-2xx statuses are returned with
// their body and a nil error, transport failures as an error.
func (c *HTTPClient) Get(ctx context.Context, path string, query url.Values) (int, []byte, error) {
	u := c.base + "/" + strings.TrimLeft(path, "/")
	if len(query) > 0 {
		u += "?" + query.Encode()
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return 0, nil, fmt.Errorf("build request: %w", err)
	}
	resp, err := c.client.Do(req)
	if err != nil {
		return 0, nil, err
	}
	defer resp.Body.Close()
	body, err := io.ReadAll(io.LimitReader(resp.Body, maxBody))
	if err != nil {
		return resp.StatusCode, nil, fmt.Errorf("read body: %w", err)
	}
	return resp.StatusCode, body, nil
}

// OK reports a 2xx status.
func OK(status int) bool { return status >= 200 && status < 300 }

// Classify maps a Get result onto a monitoring outcome.
func Classify(status int, err error) Outcome {
	switch {
	case err != nil:
		return OutcomeFailure
	case status == http.StatusBadGateway:
		return OutcomeBadGateway
	case !OK(status):
		return OutcomeNotOK
	}
	return OutcomeSuccess
}
