package app

import (
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/httprate"
	"github.com/unrolled/secure"

	"github.com/storebooks/storebooks/internal/observability"
	"github.com/storebooks/storebooks/internal/platform/httpx"
	"github.com/storebooks/storebooks/internal/shared"
)

const (
	headerClientID = "X-Client-ID"
	headerStoreID  = "X-Store-ID"
)

// MiddlewareConfig aggregates dependencies shared by the middleware stack.
type MiddlewareConfig struct {
	Logger  *slog.Logger
	Config  *Config
	Metrics *observability.Metrics
}

// MiddlewareStack installs the Storebooks middleware chain.
func MiddlewareStack(cfg MiddlewareConfig) []func(http.Handler) http.Handler {
	secureMiddleware := secure.New(secure.Options{
		FrameDeny:             true,
		ContentTypeNosniff:    true,
		BrowserXssFilter:      true,
		ReferrerPolicy:        "strict-origin-when-cross-origin",
		FeaturePolicy:         "none",
		ContentSecurityPolicy: "default-src 'self'",
		SSLRedirect:           cfg.Config != nil && cfg.Config.IsProduction(),
		SSLProxyHeaders:       map[string]string{"X-Forwarded-Proto": "https"},
	})

	timeout := 30 * time.Second
	if cfg.Config != nil && cfg.Config.AppRequestTimeout > 0 {
		timeout = cfg.Config.AppRequestTimeout
	}

	limit := 300
	if cfg.Config != nil && cfg.Config.RateLimitPerMinute > 0 {
		limit = cfg.Config.RateLimitPerMinute
	}

	middlewares := []func(http.Handler) http.Handler{
		middleware.RealIP,
		middleware.RequestID,
		middleware.Recoverer,
		middleware.Timeout(timeout),
		func(next http.Handler) http.Handler {
			return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				if err := secureMiddleware.Process(w, r); err != nil {
					cfg.Logger.Warn("secure headers blocked request", slog.Any("error", err))
					http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
					return
				}
				next.ServeHTTP(w, r)
			})
		},
		middleware.Compress(5),
		httprate.Limit(limit, time.Minute, httprate.WithKeyFuncs(httprate.KeyByIP)),
	}
	if cfg.Metrics != nil {
		middlewares = append(middlewares, func(next http.Handler) http.Handler {
			return cfg.Metrics.Middleware(next)
		})
	}
	return middlewares
}

// TenantScope resolves the tenant from the X-Client-ID and X-Store-ID
// headers and stores it on the request context. Requests without a
// valid client are rejected before they reach any handler.
func TenantScope() func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			clientID, err := strconv.ParseInt(r.Header.Get(headerClientID), 10, 64)
			if err != nil || clientID <= 0 {
				httpx.Problem(w, http.StatusUnauthorized, "Missing Tenant", "a valid X-Client-ID header is required")
				return
			}
			storeID, err := strconv.ParseInt(r.Header.Get(headerStoreID), 10, 64)
			if err != nil || storeID <= 0 {
				httpx.Problem(w, http.StatusUnauthorized, "Missing Tenant", "a valid X-Store-ID header is required")
				return
			}
			ctx := shared.ContextWithScope(r.Context(), shared.TenantScope{ClientID: clientID, StoreID: storeID})
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}
