package config

import "strings"

type Cors struct{}

var _ CorsConfig = Cors{}

type AllowedOrigins map[string]struct{}
type nullValue = struct{}

func (a AllowedOrigins) IsAllowedOrigin(origin string) bool {
	_, ok := a[origin]
	return ok
}

func (a AllowedOrigins) List() []string {
	origins := make([]string, 0, len(a))
	for k := range a {
		origins = append(origins, k)
	}
	return origins
}

func (a AllowedOrigins) String() string {
	return strings.Join(a.List(), ", ")
}

// GetAllowedOrigins reads ALLOWED_ORIGINS as a comma separated list.
func (Cors) GetAllowedOrigins() AllowedOrigins {
	origins := AllowedOrigins{}
	for _, origin := range strings.Split(GetEnv("ALLOWED_ORIGINS", "http://localhost:3000"), ",") {
		if origin = strings.TrimSpace(origin); origin != "" {
			origins[origin] = nullValue{}
		}
	}
	return origins
}

func (Cors) GetAllowedMethods() []string {
	return []string{"GET", "POST", "PUT", "PATCH", "DELETE"}
}

func (Cors) GetAllowedHeaders() []string {
	return []string{"Content-Type", "Accept-Language", "X-Request-ID"}
}
