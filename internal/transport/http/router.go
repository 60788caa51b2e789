package http

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/go-api-connect/internal/config"
	"github.com/go-api-connect/internal/transport/http/handler"
)

// NewRouter builds and returns the application router.
func NewRouter(cfg *config.Config, deps *Deps) http.Handler {
	r := chi.NewRouter()
	r.Use(chimiddleware.Logger)
	r.Use(chimiddleware.Recoverer)
	r.Use(chimiddleware.RequestID)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   cfg.AllowedOrigins,
		AllowedMethods:   []string{"GET", "POST", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type"},
		AllowCredentials: false,
		MaxAge:           300,
	}))

	healthH := handler.NewHealthHandler()
	accountH := handler.NewAccountHandler(deps.Accounts, deps.Signup)
	connH := handler.NewConnectionHandler(deps.Connections)
	msgH := handler.NewMessageHandler(deps.Messages)

	r.Route("/api", func(r chi.Router) {
		r.Get("/health", healthH.Check)

		r.Post("/check-email", accountH.CheckEmail)
		r.Post("/send-otp", accountH.SendOTP)
		r.Post("/verify-otp", accountH.VerifyOTP)
		r.Post("/set-password", accountH.SetPassword)
		r.Post("/login", accountH.Login)
		r.Post("/get-user-id", accountH.GetUserID)

		r.Post("/generate-connection-code", connH.Generate)
		r.Post("/verify-connection-code", connH.Verify)
		r.Post("/get-latest-code", connH.GetLatest)

		r.Post("/send-message", msgH.Send)
		r.Post("/get-messages", msgH.List)
		r.Post("/read-message", msgH.Read)
	})

	return r
}
