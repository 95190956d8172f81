package httpx

import (
	"net/http"
	"time"
)

const defaultExternalHTTPTimeout = 90 * time.Second

var externalHTTPClient = &http.Client{
	Timeout: defaultExternalHTTPTimeout,
}

// ExternalHTTPClient is shared by outbound integrations (Slack).
func ExternalHTTPClient() *http.Client {
	return externalHTTPClient
}

func ConfigureExternalHTTPClient(timeoutSeconds int) time.Duration {
	timeout := defaultExternalHTTPTimeout
	if timeoutSeconds > 0 {
		timeout = time.Duration(timeoutSeconds) * time.Second
	}
	externalHTTPClient.Timeout = timeout
	return timeout
}

// NewLLMHTTPClient returns a client for model providers. Its timeout sits a
// little above the per-attempt deadline so the context deadline fires first
// and the attempt is reported as a timeout.
func NewLLMHTTPClient(attemptTimeout time.Duration) *http.Client {
	if attemptTimeout <= 0 {
		attemptTimeout = defaultExternalHTTPTimeout
	}
	return &http.Client{Timeout: attemptTimeout + 5*time.Second}
}
