package api

import (
	"crypto/subtle"
	"errors"
	"net"
	"net/http"
	"strings"

	"lifestory/internal/config"
)

var (
	errMissingKey  = errors.New("missing api key headers")
	errInvalidKey  = errors.New("invalid api key")
	errInvalidXtra = errors.New("invalid extra header")
	errRateLimited = errors.New("rate limit exceeded")
)

// HTTPAuth provides API-key auth and per-key rate limiting for HTTP endpoints.
type HTTPAuth struct {
	cfg     config.MockAuthConfig
	clients map[string]config.ClientKey
	limiter *rateLimiter
}

func NewHTTPAuth(cfg config.MockAuthConfig, limits config.RateLimitConfig) *HTTPAuth {
	m := make(map[string]config.ClientKey, len(cfg.APIKeys))
	for _, k := range cfg.APIKeys {
		m[k.Key] = k
	}
	return &HTTPAuth{cfg: cfg, clients: m, limiter: newRateLimiter(limits)}
}

func (a *HTTPAuth) Wrap(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/healthz" {
			next.ServeHTTP(w, r)
			return
		}

		if a.cfg.Enabled {
			if err := a.checkAuth(r); err != nil {
				writeError(w, http.StatusUnauthorized, err.Error())
				return
			}
		}

		if a.limiter.enabled() && !a.limiter.getLimiter(a.clientKey(r)).Allow() {
			writeError(w, http.StatusTooManyRequests, errRateLimited.Error())
			return
		}

		next.ServeHTTP(w, r)
	})
}

func (a *HTTPAuth) checkAuth(r *http.Request) error {
	apiKey := strings.TrimSpace(r.Header.Get(a.apiKeyHeader()))
	extra := strings.TrimSpace(r.Header.Get(a.extraHeader()))
	if apiKey == "" || extra == "" {
		return errMissingKey
	}

	client, ok := a.clients[apiKey]
	if !ok {
		return errInvalidKey
	}
	if subtle.ConstantTimeCompare([]byte(client.Extra), []byte(extra)) != 1 {
		return errInvalidXtra
	}
	return nil
}

func (a *HTTPAuth) apiKeyHeader() string {
	if h := strings.TrimSpace(a.cfg.HeaderAPIKey); h != "" {
		return h
	}
	return "x-api-key"
}

func (a *HTTPAuth) extraHeader() string {
	if h := strings.TrimSpace(a.cfg.HeaderExtra); h != "" {
		return h
	}
	return "x-api-extra"
}

func (a *HTTPAuth) clientKey(r *http.Request) string {
	if apiKey := strings.TrimSpace(r.Header.Get(a.apiKeyHeader())); apiKey != "" {
		return apiKey
	}

	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err == nil && host != "" {
		return host
	}
	return "unknown"
}
