package server

import (
	"net/http"

	"github.com/cosflow/cosflow-web/upstream"
	"github.com/rs/zerolog/log"
)

// proxyRoute maps one gateway route onto its upstream resource.
type proxyRoute struct {
	route    string
	methods  []string
	target   string
	messages ResourceMessages
}

var (
	projectMessages   = ResourceMessages{Forbidden: msgProjectAccessDenied, NotFound: msgProjectNotFound, Failed: "Failed to process project request"}
	elementMessages   = ResourceMessages{Forbidden: msgElementAccessDenied, NotFound: msgElementNotFound, Failed: "Failed to process element request"}
	timesheetMessages = ResourceMessages{Forbidden: msgTimesheetAccessDenied, NotFound: msgTimesheetNotFound, Failed: "Failed to process time entry request"}
	categoryMessages  = ResourceMessages{Forbidden: msgCategoryAccessDenied, NotFound: msgCategoryNotFound, Failed: "Failed to process category request"}
	imageMessages     = ResourceMessages{Forbidden: msgImageAccessDenied, NotFound: msgImageNotFound, Failed: "Failed to process image request"}
	profileMessages   = ResourceMessages{Forbidden: msgProfileAccessDenied, NotFound: msgProfileNotFound, Failed: "Failed to process profile request"}
	userMessages      = ResourceMessages{Forbidden: msgUnauthorized, NotFound: "User not found", Failed: msgUserFetchFailed}
	registerMessages  = ResourceMessages{Forbidden: "Registration is closed", NotFound: "Registration is unavailable", Failed: msgRegistrationFailed}
)

var resourceRoutes = []proxyRoute{
	{RouteAPIProjects, []string{http.MethodGet, http.MethodPost}, upstream.APIPrefix + "/projects", projectMessages},
	{RouteAPIProject, []string{http.MethodGet, http.MethodPut, http.MethodPatch, http.MethodDelete}, upstream.APIPrefix + "/projects/{id}", projectMessages},
	{RouteAPIProjectElements, []string{http.MethodGet, http.MethodPost}, upstream.APIPrefix + "/projects/{id}/elements", elementMessages},
	{RouteAPIElement, []string{http.MethodGet, http.MethodPut, http.MethodPatch, http.MethodDelete}, upstream.APIPrefix + "/elements/{id}", elementMessages},
	{RouteAPITimesheets, []string{http.MethodGet, http.MethodPost}, upstream.APIPrefix + "/timesheets", timesheetMessages},
	{RouteAPITimesheet, []string{http.MethodPut, http.MethodPatch, http.MethodDelete}, upstream.APIPrefix + "/timesheets/{id}", timesheetMessages},
	{RouteAPICategories, []string{http.MethodGet, http.MethodPost}, upstream.APIPrefix + "/categories", categoryMessages},
	{RouteAPICategory, []string{http.MethodPut, http.MethodDelete}, upstream.APIPrefix + "/categories/{id}", categoryMessages},
	{RouteAPIImages, []string{http.MethodPost}, upstream.APIPrefix + "/images", imageMessages},
	{RouteAPIImage, []string{http.MethodDelete}, upstream.APIPrefix + "/images/{id}", imageMessages},
	{RouteAPIProfile, []string{http.MethodGet, http.MethodPut}, upstream.APIPrefix + "/profile", profileMessages},
}

var publicRoutes = []proxyRoute{
	{RouteAPIPublicProject, []string{http.MethodGet}, upstream.PublicPrefix + "/projects/{id}", projectMessages},
	{RouteAPIPublicProjectElements, []string{http.MethodGet}, upstream.PublicPrefix + "/projects/{id}/elements", elementMessages},
	{RouteAPIPublicProfile, []string{http.MethodGet}, upstream.PublicPrefix + "/profiles/{username}", profileMessages},
}

func (s *Server) initRoutes() {
	// PAGES
	s.RegisterRouteHandler("GET "+RouteHome, ChainMiddleware(s.HomePageHandler(), s.HTMLMiddleWare()...))
	s.RegisterRouteHandler("GET "+RoutePricing, ChainMiddleware(s.PricingPageHandler(), s.HTMLMiddleWare()...))
	s.RegisterRouteHandler("GET "+RouteProfile, ChainMiddleware(s.ProfilePageHandler(), s.HTMLMiddleWare()...))
	s.RegisterRouteHandler("GET "+RoutePublicProject, ChainMiddleware(s.PublicProjectPageHandler(), s.HTMLMiddleWare()...))
	s.RegisterRouteHandler("GET "+RouteDashboard, ChainMiddleware(s.DashboardPageHandler(), s.HTMLMiddleWare(s.RequirePageSession)...))
	s.RegisterRouteHandler("GET "+RouteProject, ChainMiddleware(s.ProjectPageHandler(), s.HTMLMiddleWare(s.RequirePageSession)...))

	// LOGIN
	s.RegisterRouteHandler("GET "+RouteLogin, ChainMiddleware(s.LoginPageHandler(), s.HTMLMiddleWare()...))
	s.RegisterRouteHandler("POST "+RouteLogin, ChainMiddleware(s.LoginFormHandler(), s.HTMLMiddleWare(s.LoginRateLimitMiddleware)...))
	s.RegisterRouteHandler("POST "+RouteLogout, ChainMiddleware(s.LogoutFormHandler(), s.HTMLMiddleWare()...))

	// BILLING (forms)
	s.RegisterRouteHandler("POST "+RouteBillingCheckout, ChainMiddleware(s.CheckoutRedirectHandler(), s.HTMLMiddleWare(s.RequirePageSession)...))
	s.RegisterRouteHandler("POST "+RouteBillingPortal, ChainMiddleware(s.PortalRedirectHandler(), s.HTMLMiddleWare(s.RequirePageSession)...))

	// Auth API
	s.RegisterRouteHandler("POST "+RouteAPIAuthLogin, ChainMiddleware(s.APILoginHandler(), s.APIMiddleware(s.LoginRateLimitMiddleware)...))
	s.RegisterRouteHandler("POST "+RouteAPIAuthRefresh, ChainMiddleware(s.APIRefreshHandler(), s.APIMiddleware()...))
	s.RegisterRouteHandler("POST "+RouteAPIAuthLogout, ChainMiddleware(s.APILogoutHandler(), s.APIMiddleware()...))
	s.RegisterRouteHandler("GET "+RouteAPIAuthUser, ChainMiddleware(s.ResourceProxy(upstream.PathUser, userMessages), s.APIMiddleware()...))
	s.RegisterRouteHandler("POST "+RouteAPIAuthRegister, ChainMiddleware(s.APIRegisterHandler(), s.APIMiddleware(s.LoginRateLimitMiddleware)...))

	// Resource API
	for _, pr := range resourceRoutes {
		for _, method := range pr.methods {
			s.RegisterRouteHandler(method+" "+pr.route, ChainMiddleware(s.ResourceProxy(pr.target, pr.messages), s.APIMiddleware()...))
		}
	}
	for _, pr := range publicRoutes {
		for _, method := range pr.methods {
			s.RegisterRouteHandler(method+" "+pr.route, ChainMiddleware(s.PublicProxy(pr.target, pr.messages), s.APIMiddleware()...))
		}
	}
	s.RegisterRouteHandler("GET "+RouteAPIProjectBudget, ChainMiddleware(s.BudgetHandler(), s.APIMiddleware(s.RequireAPISession)...))

	// Billing API
	s.RegisterRouteHandler("POST "+RouteAPIBillingCheckout, ChainMiddleware(s.CheckoutHandler(), s.APIMiddleware(s.RequireAPISession)...))
	s.RegisterRouteHandler("POST "+RouteAPIBillingPortal, ChainMiddleware(s.PortalHandler(), s.APIMiddleware(s.RequireAPISession)...))
	s.RegisterRouteHandler("POST "+RouteAPIStripeWebhook, ChainMiddleware(s.StripeWebhookHandler(), s.APIMiddleware()...))

	s.RegisterRouteHandler("POST "+RouteAPILocale, ChainMiddleware(s.LocaleHandler(), s.APIMiddleware()...))

	s.RegisterRouteHandler("GET "+RouteStatic, ChainMiddleware(s.serveFileHandler(), s.HTMLMiddleWare(CacheMiddleware)...))
}

func (s *Server) serveFileHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		fileName := r.PathValue("file")
		if fileName == "" {
			http.Error(w, "404 - Page Not Found", http.StatusNotFound)
			return
		}
		if err := StreamFile(w, r, fileName); err != nil {
			logError(r.Method, r.URL.Path, err)
			http.Error(w, "404 - Page Not Found", http.StatusNotFound)
			return
		}
	}
}

func logError(method, path string, err error) {
	log.Warn().Msgf("[%-19s] %s %s", colourMethod(method), path, colourError(err))
}
