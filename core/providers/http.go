package providers

import (
	"fmt"
	"net/http"
	"os"

	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
)

// NewHTTPClient returns the client every REST adapter uses.
func NewHTTPClient() *http.Client {
	return &http.Client{Transport: otelhttp.NewTransport(http.DefaultTransport)}
}

// APIKeyFromEnv looks up key in the environment. It is the fallback for
// adapters constructed without an explicit key.
func APIKeyFromEnv(provider, key string) (string, error) {
	apiKey, ok := os.LookupEnv(key)
	if !ok || apiKey == "" {
		return "", fmt.Errorf("%s api key not found", provider)
	}
	return apiKey, nil
}
