package handler

import (
	"net/http"

	"github.com/go-api-connect/internal/application/message"
	"github.com/go-api-connect/internal/domain"
)

// MessageHandler relays direct messages.
type MessageHandler struct {
	svc message.Service
}

func NewMessageHandler(svc message.Service) *MessageHandler { return &MessageHandler{svc: svc} }

type sendMessageRequest struct {
	SenderID   string `json:"senderId" validate:"required"`
	ReceiverID string `json:"receiverId" validate:"required"`
	Content    string `json:"content" validate:"required"`
}

type listMessagesRequest struct {
	UserID    string `json:"userId" validate:"required"`
	PartnerID string `json:"partnerId" validate:"required"`
}

type readMessageRequest struct {
	MessageID string `json:"messageId" validate:"required"`
}

type MessagesEnvelope struct {
	Messages []domain.Message `json:"messages"`
}

func (h *MessageHandler) Send(w http.ResponseWriter, r *http.Request) {
	var req sendMessageRequest
	if !decode(w, r, &req) {
		return
	}
	if _, err := h.svc.Send(r.Context(), req.SenderID, req.ReceiverID, req.Content); err != nil {
		httpError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, SuccessEnvelope{Success: true})
}

func (h *MessageHandler) List(w http.ResponseWriter, r *http.Request) {
	var req listMessagesRequest
	if !decode(w, r, &req) {
		return
	}
	msgs, err := h.svc.List(r.Context(), req.UserID, req.PartnerID)
	if err != nil {
		httpError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, MessagesEnvelope{Messages: msgs})
}

func (h *MessageHandler) Read(w http.ResponseWriter, r *http.Request) {
	var req readMessageRequest
	if !decode(w, r, &req) {
		return
	}
	if err := h.svc.MarkReadAndDelete(r.Context(), req.MessageID); err != nil {
		httpError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, SuccessEnvelope{Success: true})
}
