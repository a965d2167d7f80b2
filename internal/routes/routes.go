package routes

import (
	"github.com/CallumWaite/gatehouse/internal/auth"
	"github.com/CallumWaite/gatehouse/internal/handlers"
	"github.com/CallumWaite/gatehouse/internal/middleware"
	"github.com/CallumWaite/gatehouse/pkg/httpx"
	"github.com/go-chi/chi/v5"
)

// RegisterRoutes registers all application routes.
func RegisterRoutes(
	router chi.Router,
	authHandler *handlers.AuthHandler,
	verificationHandler *handlers.VerificationHandler,
	sessions *auth.SessionTokenService,
	users *auth.UserTokenService,
	ipConfig *httpx.IPConfig,
) {
	rateLimit := middleware.RateLimitByIP(middleware.DefaultVerificationRateLimit(), ipConfig)

	// Session bootstrap is the only unauthenticated route.
	router.With(rateLimit).Post("/session", authHandler.CreateSession)

	// Session-authenticated routes: any installation that holds a valid
	// session token.
	router.Group(func(r chi.Router) {
		r.Use(auth.RequireSessionToken(sessions, ipConfig))
		r.Use(rateLimit)

		r.Get("/verification/phone/{countryCode}/{phoneNumber}", verificationHandler.RequestPhoneCode)
		r.Post("/verification/phone/{countryCode}/{phoneNumber}/{code}", verificationHandler.VerifyPhoneCode)
		r.Get("/verification/email/{emailAddress}", verificationHandler.RequestEmailCode)
		r.Post("/verification/email/{emailAddress}/{code}", verificationHandler.VerifyEmailCode)

		// Token issuance for a user the login flow has authenticated.
		r.Post("/users/{userID}/token", authHandler.CreateUserToken)
	})

	// User-authenticated routes.
	router.Group(func(r chi.Router) {
		r.Use(auth.RequireUserToken(users))

		r.Get("/users/{userID}/token/status", authHandler.CheckUserToken)
	})
}
