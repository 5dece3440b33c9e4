package config

type Config interface {
	EnvConfig
	CorsConfig
	UpstreamConfig
	SessionConfig
	BillingConfig
	SecurityConfig
}

type EnvConfig interface {
	GetPort() string
	GetAppName() string
	GetBaseURL() string
	GetEnv() string
	IsProduction() bool
}

type CorsConfig interface {
	GetAllowedOrigins() AllowedOrigins
	GetAllowedMethods() []string
	GetAllowedHeaders() []string
}

type mainConfig struct {
	EnvVars
	Cors
	Upstream
	Session
	Billing
	Security
}

func New() Config {
	return mainConfig{}
}
