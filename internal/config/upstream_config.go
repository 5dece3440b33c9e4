package config

import (
	"strings"
	"time"
)

// UpstreamConfig describes the Laravel API every request is forwarded to.
type UpstreamConfig interface {
	GetUpstreamBaseURL() string
	GetUpstreamClientID() string
	GetUpstreamClientSecret() string
	GetUpstreamTimeout() time.Duration
}

type Upstream struct{}

var _ UpstreamConfig = Upstream{}

func (Upstream) GetUpstreamBaseURL() string {
	return strings.TrimSuffix(GetEnv("API_BASE_URL", "http://localhost:8000"), "/")
}

func (Upstream) GetUpstreamClientID() string {
	return GetEnv("API_CLIENT_ID", "")
}

func (Upstream) GetUpstreamClientSecret() string {
	return GetEnv("API_CLIENT_SECRET", "")
}

// GetUpstreamTimeout is zero unless API_TIMEOUT_SECONDS is set; zero leaves the transport defaults in place.
func (Upstream) GetUpstreamTimeout() time.Duration {
	return time.Duration(GetEnvInt("API_TIMEOUT_SECONDS", 0)) * time.Second
}
