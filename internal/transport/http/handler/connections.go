package handler

import (
	"net/http"
	"time"

	"github.com/go-api-connect/internal/application/connection"
	"github.com/go-api-connect/internal/domain"
)

// ConnectionHandler serves connection code issue, redemption and lookup.
type ConnectionHandler struct {
	svc connection.Service
}

func NewConnectionHandler(svc connection.Service) *ConnectionHandler {
	return &ConnectionHandler{svc: svc}
}

// generateCodeRequest accepts the owner under either ownerId or userId.
type generateCodeRequest struct {
	OwnerID           string `json:"ownerId" validate:"required_without=UserID"`
	UserID            string `json:"userId"`
	ExpirationMinutes *int   `json:"expirationMinutes" validate:"omitempty,gte=1,lte=525600"`
	MaxUses           *int   `json:"maxUses" validate:"omitempty,gte=1"`
	IsPermanent       bool   `json:"isPermanent"`
}

type verifyCodeRequest struct {
	Code             string `json:"code" validate:"required"`
	RequestingUserID string `json:"requestingUserId" validate:"required"`
}

type latestCodeRequest struct {
	UserID string `json:"userId" validate:"required"`
}

type CodeEnvelope struct {
	CodeID      string     `json:"codeId"`
	Code        string     `json:"code"`
	ExpiresAt   *time.Time `json:"expiresAt"`
	IsPermanent bool       `json:"isPermanent"`
	MaxUses     *int       `json:"maxUses"`
}

type ConnectionEnvelope struct {
	Success      bool               `json:"success"`
	ConnectionID string             `json:"connectionId"`
	Connection   *domain.Connection `json:"connection"`
}

type CodeDataEnvelope struct {
	CodeData *domain.ConnectionCode `json:"codeData"`
}

func (h *ConnectionHandler) Generate(w http.ResponseWriter, r *http.Request) {
	var req generateCodeRequest
	if !decode(w, r, &req) {
		return
	}
	owner := req.OwnerID
	if owner == "" {
		owner = req.UserID
	}
	c, err := h.svc.Generate(r.Context(), connection.GenerateRequest{
		OwnerID:           owner,
		ExpirationMinutes: req.ExpirationMinutes,
		MaxUses:           req.MaxUses,
		IsPermanent:       req.IsPermanent,
	})
	if err != nil {
		httpError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, CodeEnvelope{
		CodeID:      c.CodeID,
		Code:        c.Code,
		ExpiresAt:   c.ExpiresAt,
		IsPermanent: c.IsPermanent,
		MaxUses:     c.MaxUses,
	})
}

func (h *ConnectionHandler) Verify(w http.ResponseWriter, r *http.Request) {
	var req verifyCodeRequest
	if !decode(w, r, &req) {
		return
	}
	result, err := h.svc.Verify(r.Context(), req.Code, req.RequestingUserID)
	if err != nil {
		httpErrorNotFoundAsBadRequest(w, err)
		return
	}
	writeJSON(w, http.StatusOK, ConnectionEnvelope{
		Success:      true,
		ConnectionID: result.ConnectionID,
		Connection:   result.Connection,
	})
}

func (h *ConnectionHandler) GetLatest(w http.ResponseWriter, r *http.Request) {
	var req latestCodeRequest
	if !decode(w, r, &req) {
		return
	}
	c, err := h.svc.GetLatest(r.Context(), req.UserID)
	if err != nil {
		httpError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, CodeDataEnvelope{CodeData: c})
}
