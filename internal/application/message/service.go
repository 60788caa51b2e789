// Package message relays direct messages between users. A message is removed
// from storage as soon as its receiver reads it.
package message

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"strings"
	"time"

	"github.com/go-api-connect/internal/domain"
	"github.com/go-api-connect/internal/pkg/id"
)

type Service interface {
	Send(ctx context.Context, senderID, receiverID, content string) (*domain.Message, error)
	List(ctx context.Context, userID, partnerID string) ([]domain.Message, error)
	MarkReadAndDelete(ctx context.Context, messageID string) error
}

type messageStore interface {
	Put(ctx context.Context, m *domain.Message) error
	ListConversation(ctx context.Context, userID, partnerID string) ([]domain.Message, error)
	MarkAsRead(ctx context.Context, messageID string) error
	Delete(ctx context.Context, messageID string) error
}

type service struct {
	repo messageStore
	now  func() time.Time
}

type ServiceDeps struct {
	MessageRepo messageStore
	Now         func() time.Time
}

func NewService(deps ServiceDeps) Service {
	now := deps.Now
	if now == nil {
		now = time.Now
	}
	return &service{repo: deps.MessageRepo, now: now}
}

func (s *service) Send(ctx context.Context, senderID, receiverID, content string) (*domain.Message, error) {
	if strings.TrimSpace(senderID) == "" || strings.TrimSpace(receiverID) == "" || strings.TrimSpace(content) == "" {
		return nil, domain.Newf(domain.ErrBadRequest, "senderId, receiverId and content are required")
	}
	m := &domain.Message{
		MessageID:       id.New(),
		SenderID:        senderID,
		ReceiverID:      receiverID,
		ConversationKey: domain.ConversationKey(senderID, receiverID),
		Content:         content,
		CreatedAt:       s.now().UTC(),
	}
	if err := s.repo.Put(ctx, m); err != nil {
		return nil, fmt.Errorf("store message: %w: %w", domain.ErrUpstream, err)
	}
	slog.Info("message sent", "message_id", m.MessageID, "sender_id", senderID, "receiver_id", receiverID)
	return m, nil
}

// List returns the messages exchanged between userID and partnerID in both
// directions, oldest first.
func (s *service) List(ctx context.Context, userID, partnerID string) ([]domain.Message, error) {
	if strings.TrimSpace(userID) == "" || strings.TrimSpace(partnerID) == "" {
		return nil, domain.Newf(domain.ErrBadRequest, "userId and partnerId are required")
	}
	msgs, err := s.repo.ListConversation(ctx, userID, partnerID)
	if err != nil {
		return nil, fmt.Errorf("list messages: %w: %w", domain.ErrUpstream, err)
	}
	if msgs == nil {
		msgs = []domain.Message{}
	}
	sort.SliceStable(msgs, func(i, j int) bool { return msgs[i].CreatedAt.Before(msgs[j].CreatedAt) })
	return msgs, nil
}

func (s *service) MarkReadAndDelete(ctx context.Context, messageID string) error {
	if strings.TrimSpace(messageID) == "" {
		return domain.Newf(domain.ErrBadRequest, "messageId is required")
	}
	if err := s.repo.MarkAsRead(ctx, messageID); err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			return err
		}
		return fmt.Errorf("mark message read: %w: %w", domain.ErrUpstream, err)
	}
	if err := s.repo.Delete(ctx, messageID); err != nil {
		return fmt.Errorf("delete read message: %w: %w", domain.ErrUpstream, err)
	}
	return nil
}
