package config

import "os"

// Environment variables forming the single-endpoint contract used by
// conntest and by deployments that skip a config file.
const (
	EnvURL       = "SDB_URL"
	EnvNamespace = "SDB_NAMESPACE"
	EnvDatabase  = "SDB_DATABASE"
	EnvUsername  = "SDB_USERNAME"
	EnvPassword  = "SDB_PASSWORD"
	EnvScope     = "SDB_SCOPE"
)

// FromEnv builds a single endpoint from the process environment. The
// second return is false when SDB_URL is not set.
func FromEnv() (EndpointConfig, bool) {
	url := os.Getenv(EnvURL)
	if url == "" {
		return EndpointConfig{}, false
	}

	ep := EndpointConfig{
		Name:      "default",
		URL:       url,
		Namespace: os.Getenv(EnvNamespace),
		Database:  os.Getenv(EnvDatabase),
		Username:  os.Getenv(EnvUsername),
		Password:  os.Getenv(EnvPassword),
		Scope:     os.Getenv(EnvScope),
		Codec:     DefaultCodec,
	}
	return ep, true
}
