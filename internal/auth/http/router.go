package http

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/assetworks/assetauth/internal/auth/service"
	"github.com/assetworks/assetauth/internal/auth/store"
	"github.com/assetworks/assetauth/pkg/httpx"
	"github.com/assetworks/assetauth/pkg/jwtx"
	"github.com/assetworks/assetauth/pkg/slogx"

	_ "github.com/assetworks/assetauth/api/auth" // Swagger docs
	httpSwagger "github.com/swaggo/http-swagger"
)

// Router holds shared dependencies for HTTP handlers.
type Router struct {
	Mux         *http.ServeMux
	middlewares []httpx.Middleware

	keys         *jwtx.KeySet
	verifier     jwtx.Verifier
	buildVersion string
	startTime    time.Time
	logger       *slog.Logger

	store    store.Store
	Sessions *service.SessionManager
	TwoFA    *service.TwoFactorService
	Keys     *service.SigningKeyManager

	// OnKeysChanged reloads the verification KeySet after admin key
	// mutations.
	OnKeysChanged func(ctx context.Context) error
}

func NewRouter(
	keys *jwtx.KeySet,
	verifier jwtx.Verifier,
	buildVersion string,
	st store.Store,
	logger *slog.Logger,
) *Router {
	r := &Router{
		Mux:          http.NewServeMux(),
		keys:         keys,
		verifier:     verifier,
		buildVersion: buildVersion,
		startTime:    time.Now(),
		store:        st,
		logger:       logger,
	}

	// Set default middleware chain
	r.middlewares = []httpx.Middleware{
		slogx.HTTPMiddleware(r.logger),
	}

	return r
}

func (r *Router) ApplyRoutes() {
	r.registerLogin()
	r.registerSessions()
	r.registerEnrollment()
	r.registerKeys()
	r.registerSystem()

	r.Mux.Handle("/swagger/", httpSwagger.Handler())
}

// ServeHTTP implements http.Handler for Router and applies the global middleware chain.
//
//	@title			AssetWorks Authentication Service API
//	@version		0.1.0
//	@description	Authentication and session security for the AssetWorks asset-management platform: password login with lockout, TOTP two-factor authentication with backup codes, per-device refresh sessions, and RSA signing key management.
//	@description
//	@description				All access tokens are RSA signed and can be verified using the JWKS endpoint.
//
//	@contact.name				AssetWorks Platform Team
//
//	@license.name				MIT
//	@license.url				https://opensource.org/licenses/MIT
//
//	@host						localhost:8080
//	@BasePath					/
//
//	@schemes					http https
//
//	@securityDefinitions.apikey	BearerAuth
//	@in							header
//	@name						Authorization
//	@description				JWT access token. Format: "Bearer {token}".
func (r *Router) ServeHTTP(w http.ResponseWriter, req *http.Request) {
	httpx.Chain(r.Mux, r.middlewares...).ServeHTTP(w, req)
}

func (r *Router) registerLogin() {
	loginHandler := &LoginHandler{Sessions: r.Sessions}
	twoFactorHandler := &TwoFactorLoginHandler{Sessions: r.Sessions}

	// POST /login - strict rate limit by IP (authentication attempts)
	r.Mux.Handle("POST /v1/auth/login",
		httpx.Chain(loginHandler,
			httpx.RateLimitByIP(httpx.StrictLimit),
		),
	)

	// POST /2fa/verify - strict rate limit by IP (code guessing)
	r.Mux.Handle("POST /v1/auth/2fa/verify",
		httpx.Chain(http.HandlerFunc(twoFactorHandler.HandleVerify),
			httpx.RateLimitByIP(httpx.StrictLimit),
		),
	)

	// POST /2fa/method - moderate rate limit by IP
	r.Mux.Handle("POST /v1/auth/2fa/method",
		httpx.Chain(http.HandlerFunc(twoFactorHandler.HandleMethod),
			httpx.RateLimitByIP(httpx.ModerateLimit),
		),
	)
}

func (r *Router) registerSessions() {
	h := &SessionHandler{Sessions: r.Sessions}

	// POST /refresh - moderate rate limit by IP (bearer of an opaque token)
	r.Mux.Handle("POST /v1/auth/refresh",
		httpx.Chain(http.HandlerFunc(h.HandleRefresh),
			httpx.RateLimitByIP(httpx.ModerateLimit),
		),
	)

	// POST /logout - lenient rate limit by user
	r.Mux.Handle("POST /v1/auth/logout",
		httpx.Chain(http.HandlerFunc(h.HandleLogout),
			httpx.AuthnMiddleware(r.verifier),
			httpx.RateLimitByUser(httpx.LenientLimit),
		),
	)

	// POST /logout-all - moderate rate limit by user
	r.Mux.Handle("POST /v1/auth/logout-all",
		httpx.Chain(http.HandlerFunc(h.HandleLogoutAll),
			httpx.AuthnMiddleware(r.verifier),
			httpx.RateLimitByUser(httpx.ModerateLimit),
		),
	)

	// GET /devices - lenient rate limit by user
	r.Mux.Handle("GET /v1/auth/devices",
		httpx.Chain(http.HandlerFunc(h.HandleListDevices),
			httpx.AuthnMiddleware(r.verifier),
			httpx.RateLimitByUser(httpx.LenientLimit),
		),
	)

	// POST /password - strict rate limit by user (credential mutation)
	r.Mux.Handle("POST /v1/auth/password",
		httpx.Chain(http.HandlerFunc(h.HandleChangePassword),
			httpx.AuthnMiddleware(r.verifier),
			httpx.RateLimitByUser(httpx.StrictLimit),
		),
	)
}

func (r *Router) registerEnrollment() {
	h := &EnrollmentHandler{TwoFA: r.TwoFA}

	// POST /2fa/enable - moderate rate limit by user
	r.Mux.Handle("POST /v1/2fa/enable",
		httpx.Chain(http.HandlerFunc(h.HandleEnable),
			httpx.AuthnMiddleware(r.verifier),
			httpx.RateLimitByUser(httpx.ModerateLimit),
		),
	)

	// POST /2fa/confirm - strict rate limit by user (prevent TOTP brute force)
	r.Mux.Handle("POST /v1/2fa/confirm",
		httpx.Chain(http.HandlerFunc(h.HandleConfirm),
			httpx.AuthnMiddleware(r.verifier),
			httpx.RateLimitByUser(httpx.StrictLimit),
		),
	)

	// DELETE /2fa - moderate rate limit by user
	r.Mux.Handle("DELETE /v1/2fa",
		httpx.Chain(http.HandlerFunc(h.HandleDisable),
			httpx.AuthnMiddleware(r.verifier),
			httpx.RateLimitByUser(httpx.ModerateLimit),
		),
	)

	// POST /2fa/backup-codes - moderate rate limit by user
	r.Mux.Handle("POST /v1/2fa/backup-codes",
		httpx.Chain(http.HandlerFunc(h.HandleRegenerate),
			httpx.AuthnMiddleware(r.verifier),
			httpx.RateLimitByUser(httpx.ModerateLimit),
		),
	)

	// POST /2fa/disable-with-backup - strict rate limit by IP (unauthenticated recovery)
	r.Mux.Handle("POST /v1/2fa/disable-with-backup",
		httpx.Chain(http.HandlerFunc(h.HandleRecoveryDisable),
			httpx.RateLimitByIP(httpx.StrictLimit),
		),
	)
}

func (r *Router) registerKeys() {
	h := &KeysHandler{Keys: r.Keys, OnKeysChanged: r.OnKeysChanged}

	admin := func(next http.Handler) http.Handler {
		return httpx.Chain(next,
			httpx.AuthnMiddleware(r.verifier),
			httpx.RequireAnyScope("admin:keys"),
			httpx.RateLimitByUser(httpx.ModerateLimit),
		)
	}

	r.Mux.Handle("GET /v1/keys", admin(http.HandlerFunc(h.HandleList)))
	r.Mux.Handle("POST /v1/keys", admin(http.HandlerFunc(h.HandleGenerate)))
	r.Mux.Handle("POST /v1/keys/rotate", admin(http.HandlerFunc(h.HandleRotate)))
	r.Mux.Handle("POST /v1/keys/{kid}/activate", admin(http.HandlerFunc(h.HandleActivate)))
	r.Mux.Handle("POST /v1/keys/{kid}/deactivate", admin(http.HandlerFunc(h.HandleDeactivate)))
	r.Mux.Handle("POST /v1/keys/{kid}/revoke", admin(http.HandlerFunc(h.HandleRevoke)))
	r.Mux.Handle("DELETE /v1/keys/{kid}", admin(http.HandlerFunc(h.HandleDelete)))

	// GET /jwks.json - public endpoint with high limit
	r.Mux.Handle("GET /.well-known/jwks.json",
		httpx.Chain(JWKSHandler(r.keys),
			httpx.RateLimitByIP(httpx.PublicLimit),
		),
	)
}

func (r *Router) registerSystem() {
	// Health check endpoints - lenient rate limits (monitoring systems may poll frequently)
	r.Mux.Handle("GET /livez",
		httpx.Chain(LivezHandler(r.startTime, r.buildVersion),
			httpx.RateLimitByIP(httpx.LenientLimit),
		),
	)
	r.Mux.Handle("GET /readyz",
		httpx.Chain(ReadyzHandler(r.startTime, r.buildVersion, r.store, r.keys),
			httpx.RateLimitByIP(httpx.LenientLimit),
		),
	)
}
