package network

import (
	"context"
	"encoding/base64"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"sync"
	"time"

	"go.uber.org/zap"
)

// Reject absurd payloads; map tiles are a few hundred KiB at most.
const maxTileBytes = 16 << 20

// Transport performs a single blocking download of a tile resource.
// Implementations must honor context cancellation.
type Transport interface {
	Fetch(ctx context.Context, url string) ([]byte, error)
}

// Proxy holds forward-proxy settings. Credentials are only sent after the
// proxy answers with an authentication challenge.
type Proxy struct {
	URL      string
	Username string
	Password string
}

// StatusError reports a download that completed with a non-success HTTP
// status.
type StatusError struct {
	Code int
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("unexpected status %d (%s)", e.Code, http.StatusText(e.Code))
}

// HTTPTransport downloads tiles over HTTP(S), optionally through a proxy.
type HTTPTransport struct {
	client    *http.Client
	userAgent string
	logger    *zap.Logger

	mu    sync.Mutex
	proxy Proxy
}

// NewHTTPTransport creates the default tile transport.
func NewHTTPTransport(userAgent string, log *zap.Logger) *HTTPTransport {
	if log == nil {
		log = zap.NewNop()
	}

	t := &HTTPTransport{
		userAgent: userAgent,
		logger:    log,
	}
	t.client = &http.Client{
		Transport: &http.Transport{
			Proxy:               t.proxyFunc,
			MaxIdleConnsPerHost: 8,
			IdleConnTimeout:     90 * time.Second,
		},
	}
	return t
}

// SetProxy installs or replaces the proxy configuration. An empty URL falls
// back to the environment proxy settings.
func (t *HTTPTransport) SetProxy(p Proxy) {
	t.mu.Lock()
	defer t.mu.Unlock()

	t.proxy = p
}

func (t *HTTPTransport) proxyFunc(req *http.Request) (*url.URL, error) {
	t.mu.Lock()
	raw := t.proxy.URL
	t.mu.Unlock()

	if raw == "" {
		return http.ProxyFromEnvironment(req)
	}
	return url.Parse(raw)
}

func (t *HTTPTransport) Fetch(ctx context.Context, tileURL string) ([]byte, error) {
	data, status, err := t.do(ctx, tileURL, false)
	if err != nil {
		return nil, err
	}

	if status == http.StatusProxyAuthRequired {
		// Proxy challenged us: retry once with the configured credentials.
		t.mu.Lock()
		hasCreds := t.proxy.Username != ""
		t.mu.Unlock()
		if hasCreds {
			t.logger.Debug("Proxy authentication required, retrying with credentials", zap.String("url", tileURL))
			data, status, err = t.do(ctx, tileURL, true)
			if err != nil {
				return nil, err
			}
		}
	}

	if status < 200 || status > 299 {
		return nil, &StatusError{Code: status}
	}
	return data, nil
}

func (t *HTTPTransport) do(ctx context.Context, tileURL string, withProxyAuth bool) ([]byte, int, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, tileURL, nil)
	if err != nil {
		return nil, 0, err
	}
	req.Header.Set("User-Agent", t.userAgent)

	if withProxyAuth {
		t.mu.Lock()
		cred := t.proxy.Username + ":" + t.proxy.Password
		t.mu.Unlock()
		req.Header.Set("Proxy-Authorization", "Basic "+base64.StdEncoding.EncodeToString([]byte(cred)))
	}

	resp, err := t.client.Do(req)
	if err != nil {
		return nil, 0, err
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(io.LimitReader(resp.Body, maxTileBytes))
	if err != nil {
		return nil, 0, err
	}
	return data, resp.StatusCode, nil
}
