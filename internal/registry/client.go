// SPDX-License-Identifier: MPL-2.0

package registry

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"golang.org/x/sync/singleflight"
)

const (
	// DefaultURL is the public npm registry.
	DefaultURL = "https://registry.npmjs.org"

	// maxPackumentBytes bounds a packument response. Full documents of popular
	// packages (every version plus README) run to tens of megabytes.
	maxPackumentBytes = 64 << 20

	// acceptAbbreviated asks for the install-oriented packument, falling back to JSON.
	acceptAbbreviated = "application/vnd.npm.install-v1+json; q=1.0, application/json; q=0.8, */*"
	acceptFull        = "application/json"

	// packumentTimeout bounds one shared packument request.
	packumentTimeout = 2 * time.Minute
)

// ErrPackageNotFound is returned by Packument when the registry has no record
// of the requested package.
var ErrPackageNotFound = errors.New("package not found in registry")

type (
	// RegistryError reports a failure to talk to the registry: the request
	// could not be sent, the server answered with an unexpected status, or the
	// response could not be decoded. It is distinct from ErrPackageNotFound.
	RegistryError struct {
		Op         string
		URL        string
		StatusCode int
		Err        error
	}

	// Client queries an npm-compatible registry.
	Client struct {
		httpClient *http.Client
		baseURL    string
		token      string
		userAgent  string
		group      singleflight.Group
	}

	// ClientOption configures a Client during construction.
	ClientOption func(*Client)
)

// Error formats the failing operation, the redacted URL and the cause.
func (e *RegistryError) Error() string {
	var sb strings.Builder
	sb.WriteString(e.Op)
	if e.URL != "" {
		sb.WriteString(" ")
		sb.WriteString(e.URL)
	}
	if e.StatusCode != 0 {
		fmt.Fprintf(&sb, ": unexpected status %d", e.StatusCode)
	}
	if e.Err != nil {
		sb.WriteString(": ")
		sb.WriteString(e.Err.Error())
	}
	return sb.String()
}

// Unwrap returns the underlying cause.
func (e *RegistryError) Unwrap() error { return e.Err }

// WithHTTPClient sets the HTTP client used for packuments and tarballs.
func WithHTTPClient(c *http.Client) ClientOption {
	return func(r *Client) {
		r.httpClient = c
	}
}

// WithURL overrides the registry base URL. Empty values keep the default.
func WithURL(base string) ClientOption {
	return func(r *Client) {
		if base = strings.TrimSpace(base); base != "" {
			r.baseURL = strings.TrimRight(base, "/")
		}
	}
}

// WithToken sets a bearer token sent to the registry host only.
func WithToken(token string) ClientOption {
	return func(r *Client) {
		r.token = strings.TrimSpace(token)
	}
}

// WithUserAgent sets the User-Agent header sent with every request.
func WithUserAgent(ua string) ClientOption {
	return func(r *Client) {
		r.userAgent = ua
	}
}

// NewClient creates a Client for DefaultURL unless overridden by opts.
func NewClient(opts ...ClientOption) *Client {
	c := &Client{
		httpClient: http.DefaultClient,
		baseURL:    DefaultURL,
		userAgent:  "pkgrun/dev",
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// URL returns the registry base URL.
func (c *Client) URL() string { return c.baseURL }

// Packument fetches the registry document for name. The abbreviated form is
// requested unless full is set (full documents carry description and README).
// Concurrent calls for the same document share one request; the returned
// value must be treated as read-only.
func (c *Client) Packument(ctx context.Context, name string, full bool) (*Packument, error) {
	key := name
	if full {
		key += "|full"
	}

	// The shared request is detached from ctx so that one caller giving up
	// does not fail the others waiting on it.
	ch := c.group.DoChan(key, func() (any, error) {
		fetchCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), packumentTimeout)
		defer cancel()
		return c.fetchPackument(fetchCtx, name, full)
	})

	select {
	case <-ctx.Done():
		return nil, &RegistryError{Op: "fetching packument", URL: redactURL(c.baseURL + "/" + EscapeName(name)), Err: ctx.Err()}
	case res := <-ch:
		if res.Err != nil {
			return nil, res.Err
		}
		return res.Val.(*Packument), nil
	}
}

func (c *Client) fetchPackument(ctx context.Context, name string, full bool) (*Packument, error) {
	docURL := c.baseURL + "/" + EscapeName(name)
	accept := acceptAbbreviated
	if full {
		accept = acceptFull
	}

	resp, err := c.doRequest(ctx, docURL, accept)
	if err != nil {
		return nil, &RegistryError{Op: "fetching packument", URL: redactURL(docURL), Err: err}
	}
	defer func() { _ = resp.Body.Close() }() // read-only response body

	switch {
	case resp.StatusCode == http.StatusNotFound:
		return nil, fmt.Errorf("%s: %w", name, ErrPackageNotFound)
	case resp.StatusCode != http.StatusOK:
		return nil, &RegistryError{Op: "fetching packument", URL: redactURL(docURL), StatusCode: resp.StatusCode}
	}

	body := io.LimitReader(resp.Body, maxPackumentBytes+1)
	data, err := io.ReadAll(body)
	if err != nil {
		return nil, &RegistryError{Op: "reading packument", URL: redactURL(docURL), Err: err}
	}
	if len(data) > maxPackumentBytes {
		return nil, &RegistryError{Op: "reading packument", URL: redactURL(docURL), Err: fmt.Errorf("response exceeds %d bytes", maxPackumentBytes)}
	}

	var doc Packument
	if err := json.Unmarshal(data, &doc); err != nil {
		return nil, &RegistryError{Op: "decoding packument", URL: redactURL(docURL), Err: err}
	}
	if doc.Name == "" {
		doc.Name = name
	}
	return &doc, nil
}

// Download opens the tarball at tarballURL. The caller must close the reader.
func (c *Client) Download(ctx context.Context, tarballURL string) (io.ReadCloser, error) {
	resp, err := c.doRequest(ctx, tarballURL, "application/octet-stream")
	if err != nil {
		return nil, &RegistryError{Op: "downloading tarball", URL: redactURL(tarballURL), Err: err}
	}
	if resp.StatusCode != http.StatusOK {
		_ = resp.Body.Close()
		return nil, &RegistryError{Op: "downloading tarball", URL: redactURL(tarballURL), StatusCode: resp.StatusCode}
	}
	return resp.Body, nil
}

func (c *Client) doRequest(ctx context.Context, reqURL, accept string) (*http.Response, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, reqURL, http.NoBody)
	if err != nil {
		return nil, fmt.Errorf("creating request: %w", err)
	}

	req.Header.Set("Accept", accept)
	req.Header.Set("User-Agent", c.userAgent)

	// Tarballs may live on a CDN; never leak the token to another host.
	if c.token != "" && isRegistryHost(req.URL, c.baseURL) {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("executing request: %w", err)
	}
	return resp, nil
}

// isRegistryHost reports whether reqURL targets the configured registry host.
func isRegistryHost(reqURL *url.URL, baseURL string) bool {
	base, err := url.Parse(baseURL)
	if err != nil {
		return false
	}
	return strings.EqualFold(reqURL.Host, base.Host)
}

// redactURL strips credentials, query parameters and fragments from a URL
// for safe inclusion in error messages.
func redactURL(rawURL string) string {
	u, err := url.Parse(rawURL)
	if err != nil {
		return "<invalid-url>"
	}
	u.User = nil
	u.RawQuery = ""
	u.Fragment = ""
	return u.String()
}
