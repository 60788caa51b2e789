package http

import (
	"github.com/go-api-connect/internal/application/account"
	"github.com/go-api-connect/internal/application/connection"
	"github.com/go-api-connect/internal/application/message"
	"github.com/go-api-connect/internal/application/signup"
)

// Deps holds the application services the router exposes.
type Deps struct {
	Accounts    account.Service
	Signup      signup.Service
	Connections connection.Service
	Messages    message.Service
}
