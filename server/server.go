package server

import (
	"fmt"
	"html/template"
	"net/http"
	"strings"

	"github.com/cosflow/cosflow-web/billing"
	"github.com/cosflow/cosflow-web/internal/config"
	"github.com/cosflow/cosflow-web/session"
	"github.com/cosflow/cosflow-web/upstream"
	"github.com/rs/cors"
	"github.com/rs/zerolog/log"
)

// Deps are the collaborators the server forwards to.
type Deps struct {
	Upstream *upstream.Client
	Billing  *billing.Service
	Webhook  *billing.Webhook
}

type Server struct {
	env            string
	mux            *http.ServeMux
	handler        http.Handler
	routes         []string
	config         config.Config
	upstream       *upstream.Client
	cookies        *session.CookieStore
	coordinator    *session.Coordinator
	billing        *billing.Service
	webhook        *billing.Webhook
	cors           *cors.Cors
	loginLimiter   *RateLimiter
	trustedProxies config.TrustedProxies
	pages          map[string]*template.Template
}

func New(cfg config.Config, deps Deps) (*Server, error) {
	if deps.Upstream == nil {
		return nil, fmt.Errorf("[Server New] upstream client is required")
	}

	cookies := session.NewCookieStore(cfg)
	s := &Server{
		env:            cfg.GetEnv(),
		mux:            http.NewServeMux(),
		config:         cfg,
		upstream:       deps.Upstream,
		cookies:        cookies,
		coordinator:    session.NewCoordinator(deps.Upstream, cookies),
		billing:        deps.Billing,
		webhook:        deps.Webhook,
		loginLimiter:   NewRateLimiter(cfg.GetLoginRateLimitPerMinute()),
		trustedProxies: cfg.GetTrustedProxies(),
		cors: cors.New(cors.Options{
			AllowedOrigins:   cfg.GetAllowedOrigins().List(),
			AllowedMethods:   cfg.GetAllowedMethods(),
			AllowedHeaders:   cfg.GetAllowedHeaders(),
			AllowCredentials: true,
			MaxAge:           86400,
		}),
	}

	pages, err := parsePages()
	if err != nil {
		return nil, fmt.Errorf("[Server New] failed to parse page templates: %w", err)
	}
	s.pages = pages

	s.initRoutes()
	s.handler = s.cors.Handler(s.mux)
	s.logRoutes()

	return s, nil
}

func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.handler.ServeHTTP(w, r)
}

func (s *Server) RegisterRouteHandler(pattern string, handler http.Handler) {
	s.routes = append(s.routes, pattern)
	s.mux.Handle(pattern, handler)
}

func (s *Server) logRoutes() {
	if s.env != "DEV" {
		return
	}
	for _, route := range s.routes {
		parts := strings.SplitN(route, " ", 2)

		if len(parts) > 1 {
			logRoute(parts[0], parts[1])
		} else {
			logRoute("", parts[0])
		}
	}
}

func logRoute(method, path string) {
	log.Debug().Msgf("[%-19s] %s", colourMethod(method), colourPath(path))
}
