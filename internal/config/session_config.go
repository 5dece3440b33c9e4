package config

import "time"

type SessionConfig interface {
	GetRefreshTokenTTL() time.Duration
	GetLocaleCookieTTL() time.Duration
	GetSecureCookies() bool
}

type Session struct{}

var _ SessionConfig = Session{}

func (Session) GetRefreshTokenTTL() time.Duration {
	return GetEnvDays("REFRESH_TOKEN_TTL_DAYS", 30)
}

func (Session) GetLocaleCookieTTL() time.Duration {
	return 365 * 24 * time.Hour
}

func (Session) GetSecureCookies() bool {
	return EnvVars{}.IsProduction()
}
