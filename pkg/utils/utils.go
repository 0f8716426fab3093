// Package utils provides the helpers shared by the outbound API call
// sites: a JSON HTTP helper with a bounded timeout, credential masking for
// logs, and per-provider token-format validation.
package utils

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"time"
)

// DefaultRequestTimeout bounds every outbound call. No request made through
// this layer may hang indefinitely.
const DefaultRequestTimeout = 30 * time.Second

// NewHTTPClient returns a client with the given timeout, falling back to
// DefaultRequestTimeout when zero.
func NewHTTPClient(timeout time.Duration) *http.Client {
	if timeout <= 0 {
		timeout = DefaultRequestTimeout
	}
	return &http.Client{Timeout: timeout}
}

// CallAPIWithBody issues a JSON request with the given headers. A nil body
// sends no payload. The response is returned as-is; status mapping is the
// caller's concern.
func CallAPIWithBody(ctx context.Context, client *http.Client, method, url string, headers map[string]string, body any) (*http.Response, error) {
	var payload *bytes.Buffer
	if body != nil {
		encoded, err := json.Marshal(body)
		if err != nil {
			return nil, err
		}
		payload = bytes.NewBuffer(encoded)
	} else {
		payload = &bytes.Buffer{}
	}

	req, err := http.NewRequestWithContext(ctx, method, url, payload)
	if err != nil {
		return nil, err
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	for key, value := range headers {
		req.Header.Set(key, value)
	}

	return client.Do(req)
}
