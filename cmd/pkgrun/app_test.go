// SPDX-License-Identifier: MPL-2.0

package cmd

import (
	"net/http"
	"testing"
)

func TestNewHTTPClient(t *testing.T) {
	t.Parallel()

	c := newHTTPClient()
	transport, ok := c.Transport.(*http.Transport)
	if !ok {
		t.Fatalf("Transport = %T, want *http.Transport", c.Transport)
	}
	if transport.ResponseHeaderTimeout != registryResponseTimeout {
		t.Errorf("ResponseHeaderTimeout = %v, want %v", transport.ResponseHeaderTimeout, registryResponseTimeout)
	}
	if c.Timeout != 0 {
		t.Errorf("Timeout = %v, want none so large downloads are not cut off", c.Timeout)
	}
	if transport == http.DefaultTransport {
		t.Error("client shares http.DefaultTransport")
	}
}
