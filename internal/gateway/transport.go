package gateway

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

	domainErrors "github.com/cassiomorais/memberpay/internal/domain/errors"
	"github.com/cassiomorais/memberpay/pkg/retry"
)

// RESTClient is the shared outbound HTTP plumbing for the wire-level adapters.
// Every call carries the request context's deadline; transport failures become
// NetworkError and non-2xx responses become ProviderError with the message
// extracted from the provider's structured error body.
type RESTClient struct {
	Processor string
	HTTP      *http.Client
	Retry     retry.Config

	// ExtractError pulls a human-readable message out of a provider error
	// body. Returning "" falls back to the HTTP status text.
	ExtractError func(status int, body []byte) string
}

// DoJSON sends a JSON request and decodes a JSON response into out (out may
// be nil). Transient network failures are retried; provider rejections are not.
func (c *RESTClient) DoJSON(ctx context.Context, method, rawURL string, header http.Header, in, out any) error {
	var payload []byte
	if in != nil {
		var err error
		payload, err = json.Marshal(in)
		if err != nil {
			return fmt.Errorf("marshal %s request: %w", c.Processor, err)
		}
	}
	return c.do(ctx, method, rawURL, header, "application/json", payload, out)
}

// DoForm sends a form-encoded request, used by OAuth token endpoints.
func (c *RESTClient) DoForm(ctx context.Context, method, rawURL string, header http.Header, form url.Values, out any) error {
	return c.do(ctx, method, rawURL, header, "application/x-www-form-urlencoded", []byte(form.Encode()), out)
}

func (c *RESTClient) do(ctx context.Context, method, rawURL string, header http.Header, contentType string, payload []byte, out any) error {
	attempt := func() error {
		var body io.Reader
		if len(payload) > 0 {
			body = bytes.NewReader(payload)
		}

		req, err := http.NewRequestWithContext(ctx, method, rawURL, body)
		if err != nil {
			return fmt.Errorf("build %s request: %w", c.Processor, err)
		}
		if len(payload) > 0 {
			req.Header.Set("Content-Type", contentType)
		}
		req.Header.Set("Accept", "application/json")
		for k, vs := range header {
			for _, v := range vs {
				req.Header.Set(k, v)
			}
		}

		resp, err := c.HTTP.Do(req)
		if err != nil {
			return classifyTransportError(c.Processor, err)
		}
		defer resp.Body.Close()

		respBody, err := io.ReadAll(resp.Body)
		if err != nil {
			return domainErrors.NewNetworkError(c.Processor, false, err)
		}

		if resp.StatusCode < 200 || resp.StatusCode > 299 {
			msg := ""
			if c.ExtractError != nil {
				msg = c.ExtractError(resp.StatusCode, respBody)
			}
			if msg == "" {
				msg = http.StatusText(resp.StatusCode)
			}
			return domainErrors.NewProviderError(c.Processor, resp.StatusCode, msg)
		}

		if out != nil && len(respBody) > 0 {
			if err := json.Unmarshal(respBody, out); err != nil {
				return fmt.Errorf("decode %s response: %w", c.Processor, err)
			}
		}
		return nil
	}

	return retry.Do(ctx, c.Retry, attempt, isRetryable)
}

// isRetryable limits retries to transport-level failures. Provider rejections
// and timeouts are surfaced immediately; a timed-out checkout call must not
// hold a paying customer for another full attempt.
func isRetryable(err error) bool {
	var netErr *domainErrors.NetworkError
	return errors.As(err, &netErr) && !netErr.Timeout
}

func classifyTransportError(processor string, err error) error {
	timeout := errors.Is(err, context.DeadlineExceeded)
	var urlErr *url.Error
	if errors.As(err, &urlErr) && urlErr.Timeout() {
		timeout = true
	}
	return domainErrors.NewNetworkError(processor, timeout, err)
}

// ExtractJSONMessage is a convenience extractor for providers whose error
// bodies carry a top-level "message" field.
func ExtractJSONMessage(_ int, body []byte) string {
	var parsed struct {
		Message string `json:"message"`
	}
	if err := json.Unmarshal(body, &parsed); err != nil {
		return ""
	}
	return strings.TrimSpace(parsed.Message)
}
