package server

// Route path constants
// All application routes are defined here to ensure consistency and prevent typos
const (
	// Pages
	RouteHome      = "/{$}"
	RoutePricing   = "/pricing"
	RouteLogin     = "/login"
	RouteLogout    = "/logout"
	RouteDashboard = "/dashboard"
	RouteProject   = "/projects/{id}"
	RouteProfile   = "/u/{username}"

	RoutePublicProject = "/u/{username}/projects/{id}"

	// Billing form posts from the pricing page and dashboard
	RouteBillingCheckout = "/billing/checkout"
	RouteBillingPortal   = "/billing/portal"

	// Auth API
	RouteAPIAuthLogin    = "/api/auth/login"
	RouteAPIAuthRefresh  = "/api/auth/refresh"
	RouteAPIAuthLogout   = "/api/auth/logout"
	RouteAPIAuthUser     = "/api/auth/user"
	RouteAPIAuthRegister = "/api/auth/register"

	// Resource API
	RouteAPIProjects        = "/api/projects"
	RouteAPIProject         = "/api/projects/{id}"
	RouteAPIProjectElements = "/api/projects/{id}/elements"
	RouteAPIProjectBudget   = "/api/projects/{id}/budget"
	RouteAPIElement         = "/api/elements/{id}"
	RouteAPITimesheets      = "/api/timesheets"
	RouteAPITimesheet       = "/api/timesheets/{id}"
	RouteAPICategories      = "/api/categories"
	RouteAPICategory        = "/api/categories/{id}"
	RouteAPIImages          = "/api/images"
	RouteAPIImage           = "/api/images/{id}"
	RouteAPIProfile         = "/api/profile"

	// Public resource API
	RouteAPIPublicProject         = "/api/public/projects/{id}"
	RouteAPIPublicProjectElements = "/api/public/projects/{id}/elements"
	RouteAPIPublicProfile         = "/api/public/profiles/{username}"

	// Billing API
	RouteAPIBillingCheckout = "/api/billing/checkout"
	RouteAPIBillingPortal   = "/api/billing/portal"
	RouteAPIStripeWebhook   = "/api/webhooks/stripe"

	RouteAPILocale = "/api/locale"

	// Static Asset Routes
	RouteStatic = "/static/{file}"
)
