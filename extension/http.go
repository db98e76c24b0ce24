package extension

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/panelkit/runtime/iox"
)

// DefaultUserAgent is applied to outbound requests that don't set their own.
const DefaultUserAgent = "panelkit-runtime/1"

// httpMethods is the advertised method set for the built-in HTTP
// extension, per spec §4.8.
var httpMethods = []string{"get", "post", "put", "patch", "delete", "head", "options", "request"}

// HTTPConfig configures the built-in HTTP extension.
type HTTPConfig struct {
	// Concurrency bounds simultaneous in-flight requests; excess calls
	// queue FIFO behind a buffered semaphore.
	Concurrency int
	// Timeout is the per-request deadline.
	Timeout time.Duration
	// AllowedHosts, if non-empty, restricts requests to these hostnames.
	AllowedHosts []string
}

// HTTPExtension is the built-in `ext:http` extension (spec §4.8's
// "Built-in HTTP extension"), grounded on adapter/webhook's retry-free
// single-shot request shape — extension calls are one-shot per
// suspension, so backoff/retry policy belongs to the handler, not here.
type HTTPExtension struct {
	cfg    HTTPConfig
	client *http.Client
	sem    chan struct{}
}

// NewHTTPExtension builds the extension with cfg, defaulting Concurrency
// to 4 and Timeout to 10s when unset.
func NewHTTPExtension(cfg HTTPConfig) *HTTPExtension {
	if cfg.Concurrency <= 0 {
		cfg.Concurrency = 4
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 10 * time.Second
	}
	return &HTTPExtension{
		cfg:    cfg,
		client: &http.Client{Timeout: cfg.Timeout},
		sem:    make(chan struct{}, cfg.Concurrency),
	}
}

func (e *HTTPExtension) Name() string      { return "http" }
func (e *HTTPExtension) Methods() []string { return httpMethods }

// Call implements Extension.Call. params[0] is always the target URL;
// for request(), params[0] is a map describing {method, url, body?,
// headers?}.
func (e *HTTPExtension) Call(ctx context.Context, method string, params []any) (any, error) {
	select {
	case e.sem <- struct{}{}:
		defer func() { <-e.sem }()
	case <-ctx.Done():
		return nil, ctx.Err()
	}

	httpMethod, url, body, headers, err := decodeCallParams(method, params)
	if err != nil {
		return nil, err
	}

	if err := e.checkAllowed(url); err != nil {
		return nil, err
	}

	return e.doRequest(ctx, httpMethod, url, body, headers)
}

func decodeCallParams(method string, params []any) (httpMethod, url string, body any, headers map[string]string, err error) {
	if method == "request" {
		if len(params) == 0 {
			return "", "", nil, nil, fmt.Errorf("extension/http: request() requires a descriptor object")
		}
		desc, ok := params[0].(map[string]any)
		if !ok {
			return "", "", nil, nil, fmt.Errorf("extension/http: request() descriptor must be an object")
		}
		httpMethod, _ = desc["method"].(string)
		if httpMethod == "" {
			httpMethod = "GET"
		}
		url, _ = desc["url"].(string)
		body = desc["body"]
		if hh, ok := desc["headers"].(map[string]any); ok {
			headers = make(map[string]string, len(hh))
			for k, v := range hh {
				headers[k] = fmt.Sprintf("%v", v)
			}
		}
		return strings.ToUpper(httpMethod), url, body, headers, nil
	}

	if len(params) == 0 {
		return "", "", nil, nil, fmt.Errorf("extension/http: %s() requires a URL", method)
	}
	url, _ = params[0].(string)
	if len(params) > 1 {
		body = params[1]
	}
	return strings.ToUpper(method), url, body, nil, nil
}

func (e *HTTPExtension) checkAllowed(rawURL string) error {
	if len(e.cfg.AllowedHosts) == 0 {
		return nil
	}
	for _, host := range e.cfg.AllowedHosts {
		if strings.Contains(rawURL, host) {
			return nil
		}
	}
	return fmt.Errorf("extension/http: host not in allow-list for %s", rawURL)
}

func (e *HTTPExtension) doRequest(ctx context.Context, method, url string, body any, headers map[string]string) (any, error) {
	var reader io.Reader
	contentType := ""
	if body != nil {
		encoded, err := json.Marshal(body)
		if err != nil {
			return nil, fmt.Errorf("extension/http: encode body: %w", err)
		}
		reader = bytes.NewReader(encoded)
		contentType = "application/json"
	}

	req, err := http.NewRequestWithContext(ctx, method, url, reader)
	if err != nil {
		return nil, fmt.Errorf("extension/http: build request: %w", err)
	}
	if contentType != "" {
		req.Header.Set("Content-Type", contentType)
	}
	req.Header.Set("User-Agent", DefaultUserAgent)
	for k, v := range headers {
		req.Header.Set(k, v)
	}

	resp, err := e.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("extension/http: request failed: %w", err)
	}
	defer iox.DiscardClose(resp.Body)

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("extension/http: read response: %w", err)
	}

	result := map[string]any{
		"status":  resp.StatusCode,
		"headers": flattenHeaders(resp.Header),
	}

	if strings.Contains(resp.Header.Get("Content-Type"), "json") && len(raw) > 0 {
		var decoded any
		if err := json.Unmarshal(raw, &decoded); err == nil {
			result["data"] = decoded
			return result, nil
		}
	}
	result["data"] = string(raw)
	return result, nil
}

func flattenHeaders(h http.Header) map[string]string {
	out := make(map[string]string, len(h))
	for k := range h {
		out[k] = h.Get(k)
	}
	return out
}
