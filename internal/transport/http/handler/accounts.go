package handler

import (
	"net/http"

	"github.com/go-api-connect/internal/application/account"
	"github.com/go-api-connect/internal/application/signup"
)

// AccountHandler serves identity lookups, login and the OTP signup flow.
type AccountHandler struct {
	accounts account.Service
	signup   signup.Service
}

func NewAccountHandler(accounts account.Service, signup signup.Service) *AccountHandler {
	return &AccountHandler{accounts: accounts, signup: signup}
}

type emailRequest struct {
	Email string `json:"email" validate:"required,email"`
}

type verifyOTPRequest struct {
	Email string `json:"email" validate:"required,email"`
	OTP   string `json:"otp" validate:"required"`
}

type credentialsRequest struct {
	Email    string `json:"email" validate:"required,email"`
	Password string `json:"password" validate:"required,max=72"`
}

type loginRequest struct {
	Email    string `json:"email" validate:"required"`
	Password string `json:"password" validate:"required"`
}

type ExistsEnvelope struct {
	Exists bool `json:"exists"`
}

type LoginEnvelope struct {
	Success bool   `json:"success"`
	Token   string `json:"token"`
	UserID  string `json:"userId"`
}

type UserIDEnvelope struct {
	ID string `json:"id"`
}

func (h *AccountHandler) CheckEmail(w http.ResponseWriter, r *http.Request) {
	var req emailRequest
	if !decode(w, r, &req) {
		return
	}
	exists, err := h.accounts.CheckEmail(r.Context(), req.Email)
	if err != nil {
		httpError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, ExistsEnvelope{Exists: exists})
}

func (h *AccountHandler) SendOTP(w http.ResponseWriter, r *http.Request) {
	var req emailRequest
	if !decode(w, r, &req) {
		return
	}
	if err := h.signup.SendOTP(r.Context(), req.Email); err != nil {
		httpError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, MessageEnvelope{Message: "OTP sent"})
}

func (h *AccountHandler) VerifyOTP(w http.ResponseWriter, r *http.Request) {
	var req verifyOTPRequest
	if !decode(w, r, &req) {
		return
	}
	if err := h.signup.VerifyOTP(r.Context(), req.Email, req.OTP); err != nil {
		httpErrorNotFoundAsBadRequest(w, err)
		return
	}
	writeJSON(w, http.StatusOK, SuccessEnvelope{Success: true})
}

func (h *AccountHandler) SetPassword(w http.ResponseWriter, r *http.Request) {
	var req credentialsRequest
	if !decode(w, r, &req) {
		return
	}
	if _, err := h.signup.CompleteRegistration(r.Context(), req.Email, req.Password); err != nil {
		httpError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, SuccessEnvelope{Success: true})
}

func (h *AccountHandler) Login(w http.ResponseWriter, r *http.Request) {
	var req loginRequest
	if !decode(w, r, &req) {
		return
	}
	result, err := h.accounts.Login(r.Context(), req.Email, req.Password)
	if err != nil {
		httpError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, LoginEnvelope{Success: true, Token: result.Token, UserID: result.UserID})
}

func (h *AccountHandler) GetUserID(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Email string `json:"email" validate:"required"`
	}
	if !decode(w, r, &req) {
		return
	}
	id, err := h.accounts.GetUserID(r.Context(), req.Email)
	if err != nil {
		httpError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, UserIDEnvelope{ID: id})
}
