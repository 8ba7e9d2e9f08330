package security

import (
	"net/http"
	"slices"
	"strings"
)

// CORS answers preflight requests and sets Access-Control headers for the
// configured origins. "*" allows any origin.
type CORS struct {
	origins []string
	any     bool
}

const (
	corsMethods = "GET, POST, PUT, PATCH, DELETE, OPTIONS"
	corsHeaders = "Content-Type, X-Request-ID"
)

func NewCORS(origins []string) *CORS {
	return &CORS{origins: origins, any: slices.Contains(origins, "*")}
}

func (c *CORS) allowed(origin string) bool {
	if c.any {
		return true
	}
	return slices.ContainsFunc(c.origins, func(o string) bool {
		return strings.EqualFold(o, origin)
	})
}

func (c *CORS) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		origin := r.Header.Get("Origin")
		if origin == "" {
			next.ServeHTTP(w, r)
			return
		}

		w.Header().Add("Vary", "Origin")
		if !c.allowed(origin) {
			if r.Method == http.MethodOptions {
				w.WriteHeader(http.StatusForbidden)
				return
			}
			next.ServeHTTP(w, r)
			return
		}

		if c.any {
			w.Header().Set("Access-Control-Allow-Origin", "*")
		} else {
			w.Header().Set("Access-Control-Allow-Origin", origin)
		}
		w.Header().Set("Access-Control-Expose-Headers", "X-Request-ID")

		if r.Method == http.MethodOptions && r.Header.Get("Access-Control-Request-Method") != "" {
			w.Header().Set("Access-Control-Allow-Methods", corsMethods)
			w.Header().Set("Access-Control-Allow-Headers", corsHeaders)
			w.Header().Set("Access-Control-Max-Age", "600")
			w.WriteHeader(http.StatusNoContent)
			return
		}
		next.ServeHTTP(w, r)
	})
}
