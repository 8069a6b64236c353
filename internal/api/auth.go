package api

import (
	"context"
	"crypto/subtle"
	"fmt"
	"net"
	"net/http"
	"strings"
	"sync"

	"golang.org/x/time/rate"

	"taurean/internal/config"
	"taurean/internal/models"
)

var errPermissionDenied = fmt.Errorf("permission denied")

type actorContextKey struct{}

// actorFrom returns the actor attached by the auth middleware. Falls
// back to the system actor when auth is disabled.
func actorFrom(r *http.Request) models.Actor {
	if a, ok := r.Context().Value(actorContextKey{}).(models.Actor); ok {
		return a
	}
	return models.SystemActor
}

// HTTPAuth provides API-key auth and per-key rate limiting. The webhook
// endpoint and health checks are exempt: the gateway authenticates with
// a body signature, not an API key.
type HTTPAuth struct {
	cfg      config.APIConfig
	clients  map[string]config.APIClientKey
	limiters sync.Map // map[string]*rate.Limiter
}

func NewHTTPAuth(cfg config.APIConfig) *HTTPAuth {
	m := make(map[string]config.APIClientKey, len(cfg.Auth.APIKeys))
	for _, k := range cfg.Auth.APIKeys {
		m[k.Key] = k
	}
	return &HTTPAuth{cfg: cfg, clients: m}
}

func exemptPath(path string) bool {
	return path == "/transactions/webhook" || path == "/healthz"
}

func (a *HTTPAuth) Wrap(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if exemptPath(r.URL.Path) {
			next.ServeHTTP(w, r)
			return
		}

		if a.cfg.Auth.Enabled {
			client, err := a.checkAuth(r)
			if err != nil {
				statusCode := http.StatusUnauthorized
				if err == errPermissionDenied {
					statusCode = http.StatusForbidden
				}
				writeError(w, statusCode, err.Error())
				return
			}

			actor := models.Actor{Kind: models.ActorStaff, ID: client.StaffID}
			if actor.ID == "" {
				actor.ID = client.Name
			}
			r = r.WithContext(context.WithValue(r.Context(), actorContextKey{}, actor))
		}

		if err := a.checkRateLimit(r); err != nil {
			writeError(w, http.StatusTooManyRequests, err.Error())
			return
		}

		next.ServeHTTP(w, r)
	})
}

func (a *HTTPAuth) checkAuth(r *http.Request) (config.APIClientKey, error) {
	header := strings.TrimSpace(strings.ToLower(a.cfg.Auth.HeaderAPIKey))
	if header == "" {
		header = "x-api-key"
	}

	provided := strings.TrimSpace(r.Header.Get(header))
	if provided == "" {
		return config.APIClientKey{}, fmt.Errorf("missing api key header")
	}

	for key, client := range a.clients {
		if subtle.ConstantTimeCompare([]byte(key), []byte(provided)) == 1 {
			if err := a.checkPermissions(client, r); err != nil {
				return config.APIClientKey{}, err
			}
			return client, nil
		}
	}
	return config.APIClientKey{}, fmt.Errorf("invalid api key")
}

func (a *HTTPAuth) checkPermissions(client config.APIClientKey, r *http.Request) error {
	required := requiredPermission(r)
	if required == "" {
		return nil
	}
	// A key with no permission list can do everything.
	if len(client.Permissions) == 0 {
		return nil
	}
	for _, p := range client.Permissions {
		if strings.TrimSpace(p) == required {
			return nil
		}
	}
	return errPermissionDenied
}

func requiredPermission(r *http.Request) string {
	path := r.URL.Path
	write := r.Method != http.MethodGet

	switch {
	case strings.HasPrefix(path, "/api/v1/bookings"), strings.HasPrefix(path, "/api/v1/facilities"), path == "/api/v1/quotes":
		if write {
			return "write:bookings"
		}
		return "read:bookings"
	case strings.HasPrefix(path, "/api/v1/pending-transactions"):
		if write {
			return "write:settlements"
		}
		return "read:settlements"
	case strings.HasPrefix(path, "/api/v1/resources"), strings.HasPrefix(path, "/api/v1/taxes"):
		if write {
			return "write:catalog"
		}
		return "read:catalog"
	case strings.HasPrefix(path, "/api/v1/export"):
		return "read:exports"
	}
	return ""
}

func (a *HTTPAuth) checkRateLimit(r *http.Request) error {
	if a.cfg.RateLimit.RPS <= 0 {
		return nil
	}

	lim := a.getLimiter(a.clientKey(r))
	if !lim.Allow() {
		return fmt.Errorf("rate limit exceeded")
	}
	return nil
}

func (a *HTTPAuth) clientKey(r *http.Request) string {
	header := strings.TrimSpace(strings.ToLower(a.cfg.Auth.HeaderAPIKey))
	if header == "" {
		header = "x-api-key"
	}
	if apiKey := strings.TrimSpace(r.Header.Get(header)); apiKey != "" {
		return apiKey
	}
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err == nil && host != "" {
		return host
	}
	return "unknown"
}

func (a *HTTPAuth) getLimiter(key string) *rate.Limiter {
	if v, ok := a.limiters.Load(key); ok {
		return v.(*rate.Limiter)
	}

	burst := a.cfg.RateLimit.Burst
	if burst <= 0 {
		burst = 5
	}

	lim := rate.NewLimiter(rate.Limit(a.cfg.RateLimit.RPS), burst)
	actual, loaded := a.limiters.LoadOrStore(key, lim)
	if loaded {
		return actual.(*rate.Limiter)
	}
	return lim
}
