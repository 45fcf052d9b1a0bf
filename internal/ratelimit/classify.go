package ratelimit

import (
	"net/http"
	"strings"
)

// Class names a group of endpoints sharing one request budget.
type Class string

const (
	ClassAuthLogin    Class = "auth-login"
	ClassAuthOAuth    Class = "auth-oauth"
	ClassAuthRefresh  Class = "auth-refresh"
	ClassTrucksCreate Class = "trucks-create"
	ClassTrucksUpdate Class = "trucks-update"
	ClassDefault      Class = "default"
)

// Bypass reports whether the path is exempt from rate limiting entirely.
// Health probes, metrics scrapes and the API document never consume budget.
func Bypass(path string) bool {
	switch path {
	case "/healthz", "/readyz", "/metrics", "/openapi.yaml":
		return true
	}
	return false
}

// Classify maps a request to its endpoint class. Sensitive authentication
// endpoints get their own tight budgets; resource writes get a medium one;
// everything else shares the default.
func Classify(method, path string) Class {
	switch path {
	case "/api/v1/auth/login":
		return ClassAuthLogin
	case "/api/v1/auth/google":
		return ClassAuthOAuth
	case "/api/v1/auth/refresh":
		return ClassAuthRefresh
	}
	if path == "/api/v1/trucks" && method == http.MethodPost {
		return ClassTrucksCreate
	}
	if strings.HasPrefix(path, "/api/v1/trucks/") && method == http.MethodPut {
		return ClassTrucksUpdate
	}
	return ClassDefault
}
