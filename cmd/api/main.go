package main

import (
	"context"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-api-connect/internal/application/account"
	"github.com/go-api-connect/internal/application/connection"
	"github.com/go-api-connect/internal/application/message"
	"github.com/go-api-connect/internal/application/signup"
	"github.com/go-api-connect/internal/config"
	"github.com/go-api-connect/internal/domain"
	"github.com/go-api-connect/internal/infrastructure/dynamo"
	jwtinfra "github.com/go-api-connect/internal/infrastructure/jwt"
	"github.com/go-api-connect/internal/infrastructure/memstore"
	"github.com/go-api-connect/internal/infrastructure/smtp"
	transporthttp "github.com/go-api-connect/internal/transport/http"
	"github.com/joho/godotenv"
)

func main() {
	if err := godotenv.Load(); err != nil {
		log.Println("No .env file found, reading from environment")
	}

	cfg := config.Load()

	ctx, stop := context.WithCancel(context.Background())
	defer stop()

	// Bootstrap DynamoDB tables (creates them if they don't exist).
	dynamoClient, err := dynamo.NewClient(ctx, cfg)
	if err != nil {
		log.Fatalf("dynamodb client: %v", err)
	}
	dynamo.Bootstrap(ctx, dynamoClient, cfg.DynamoTables)
	userRepo := dynamo.NewUserRepo(dynamoClient, cfg.DynamoTables.Users)

	// JWT provider is optional; login answers 500 without it.
	accountDeps := account.ServiceDeps{UserRepo: userRepo}
	if p, err := jwtinfra.NewProvider(cfg); err == nil {
		accountDeps.JWTProvider = p
	} else {
		log.Printf("WARN: JWT provider not available: %v", err)
	}
	accountSvc := account.NewService(accountDeps)

	otps := memstore.New[string, domain.OTPRecord](time.Now)
	codes := memstore.New[string, domain.ConnectionCode](time.Now)
	go otps.Run(ctx, "otp", cfg.SweepInterval)
	go codes.Run(ctx, "connection_code", cfg.SweepInterval)

	deps := &transporthttp.Deps{
		Accounts: accountSvc,
		Signup: signup.NewService(signup.ServiceDeps{
			Accounts: accountSvc,
			UserRepo: userRepo,
			Mailer:   smtp.NewMailer(cfg),
			OTPs:     otps,
			TTL:      cfg.OTPTTL,
			Now:      time.Now,
		}),
		Connections: connection.NewService(connection.ServiceDeps{
			UserRepo:       userRepo,
			ConnectionRepo: dynamo.NewConnectionRepo(dynamoClient, cfg.DynamoTables.Connections),
			LedgerRepo:     dynamo.NewCodeLedgerRepo(dynamoClient, cfg.DynamoTables.ConnectionCodes),
			Codes:          codes,
			TTL:            cfg.ConnectionCodeTTL,
			Now:            time.Now,
		}),
		Messages: message.NewService(message.ServiceDeps{
			MessageRepo: dynamo.NewMessageRepo(dynamoClient, cfg.DynamoTables.Messages),
		}),
	}

	router := transporthttp.NewRouter(cfg, deps)

	srv := &http.Server{
		Addr:         fmt.Sprintf(":%s", cfg.AppPort),
		Handler:      router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		log.Printf("Server starting on :%s (env=%s)", cfg.AppPort, cfg.AppEnv)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("server error: %v", err)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Println("Shutting down server...")
	stop()
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Fatalf("forced shutdown: %v", err)
	}
	log.Println("Server stopped")
}
