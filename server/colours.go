package server

import (
	"fmt"
	"strings"
)

// ANSI sequences for the DEV route table. Proxied API routes are dimmed so the pages
// and gateway-owned endpoints stand out.
const (
	ansiRed     = "\033[31m"
	ansiGreen   = "\033[32m"
	ansiYellow  = "\033[33m"
	ansiBlue    = "\033[34m"
	ansiMagenta = "\033[35m"
	ansiCyan    = "\033[36m"
	ansiGray    = "\033[90m"
	ansiReset   = "\033[0m"
)

var methodColours = map[string]string{
	"GET":    ansiGreen,
	"POST":   ansiBlue,
	"PUT":    ansiCyan,
	"PATCH":  ansiMagenta,
	"DELETE": ansiYellow,
}

func colourMethod(method string) string {
	colour, ok := methodColours[method]
	if !ok {
		colour = ansiGray
	}
	return fmt.Sprintf("%s %-7s%s", colour, method, ansiReset)
}

func colourPath(path string) string {
	if strings.HasPrefix(path, "/api/") && !isGatewayRoute(path) {
		return ansiGray + path + ansiReset
	}
	return path
}

// isGatewayRoute reports whether an /api/ route is served by the gateway itself rather
// than forwarded upstream.
func isGatewayRoute(path string) bool {
	switch path {
	case RouteAPIAuthLogin, RouteAPIAuthRefresh, RouteAPIAuthLogout, RouteAPIAuthRegister,
		RouteAPIProjectBudget, RouteAPIBillingCheckout, RouteAPIBillingPortal,
		RouteAPIStripeWebhook, RouteAPILocale:
		return true
	}
	return false
}

func colourError(err error) string {
	return ansiRed + err.Error() + ansiReset
}
