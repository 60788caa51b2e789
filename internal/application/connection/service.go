// Package connection issues shareable connection codes and redeems them into
// connections between two users.
//
// Live codes are held in an in-process store keyed by code. The use counter
// is checked and incremented under the store lock so a code with n uses left
// is redeemed at most n times. DynamoDB keeps a ledger of issued codes for
// lookups by owner and the durable connection rows.
package connection

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/go-api-connect/internal/domain"
	"github.com/go-api-connect/internal/infrastructure/memstore"
	"github.com/go-api-connect/internal/pkg/id"
	pkgtoken "github.com/go-api-connect/internal/pkg/token"
)

const (
	maxCodeAttempts = 5

	// MaxExpirationMinutes bounds a requested lifetime to one year.
	MaxExpirationMinutes = 365 * 24 * 60
)

type GenerateRequest struct {
	OwnerID           string
	ExpirationMinutes *int
	MaxUses           *int
	IsPermanent       bool
}

type VerifyResult struct {
	ConnectionID string
	Connection   *domain.Connection
}

type Service interface {
	Generate(ctx context.Context, req GenerateRequest) (*domain.ConnectionCode, error)
	Verify(ctx context.Context, code, requestingID string) (*VerifyResult, error)
	GetLatest(ctx context.Context, ownerID string) (*domain.ConnectionCode, error)
}

type userGetter interface {
	Get(ctx context.Context, userID string) (*domain.User, error)
}

type connectionStore interface {
	Put(ctx context.Context, c *domain.Connection) error
}

type codeLedger interface {
	Put(ctx context.Context, c *domain.ConnectionCode) error
	LatestByOwner(ctx context.Context, ownerID string) (*domain.ConnectionCode, error)
	Delete(ctx context.Context, code string) error
}

type service struct {
	users       userGetter
	connections connectionStore
	ledger      codeLedger
	codes       *memstore.Store[string, domain.ConnectionCode]
	ttl         time.Duration
	newCode     func() (string, error)
	now         func() time.Time
}

type ServiceDeps struct {
	UserRepo       userGetter
	ConnectionRepo connectionStore
	LedgerRepo     codeLedger
	Codes          *memstore.Store[string, domain.ConnectionCode]
	// TTL applies when a non-permanent request gives no expiration. Defaults to 15 minutes.
	TTL time.Duration
	// NewCode defaults to token.NewConnectionCode.
	NewCode func() (string, error)
	// Now must be the clock the code store was built with. Defaults to time.Now.
	Now func() time.Time
}

func NewService(deps ServiceDeps) Service {
	s := &service{
		users:       deps.UserRepo,
		connections: deps.ConnectionRepo,
		ledger:      deps.LedgerRepo,
		codes:       deps.Codes,
		ttl:         deps.TTL,
		newCode:     deps.NewCode,
		now:         deps.Now,
	}
	if s.ttl <= 0 {
		s.ttl = 15 * time.Minute
	}
	if s.newCode == nil {
		s.newCode = pkgtoken.NewConnectionCode
	}
	if s.now == nil {
		s.now = time.Now
	}
	return s
}

// Generate issues a new code for an existing owner.
func (s *service) Generate(ctx context.Context, req GenerateRequest) (*domain.ConnectionCode, error) {
	if strings.TrimSpace(req.OwnerID) == "" {
		return nil, domain.Newf(domain.ErrBadRequest, "owner id is required")
	}
	if req.ExpirationMinutes != nil && *req.ExpirationMinutes <= 0 {
		return nil, domain.Newf(domain.ErrBadRequest, "expirationMinutes must be positive")
	}
	if req.ExpirationMinutes != nil && *req.ExpirationMinutes > MaxExpirationMinutes {
		return nil, domain.Newf(domain.ErrBadRequest, "expirationMinutes must be at most %d", MaxExpirationMinutes)
	}
	if req.MaxUses != nil && *req.MaxUses <= 0 {
		return nil, domain.Newf(domain.ErrBadRequest, "maxUses must be positive")
	}

	if _, err := s.users.Get(ctx, req.OwnerID); err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			return nil, domain.ErrInvalidOwner
		}
		return nil, fmt.Errorf("look up owner: %w: %w", domain.ErrUpstream, err)
	}

	now := s.now().UTC()
	rec := domain.ConnectionCode{
		CodeID:      id.New(),
		OwnerID:     req.OwnerID,
		IsPermanent: req.IsPermanent,
		CreatedAt:   now,
	}
	if req.MaxUses != nil {
		n := *req.MaxUses
		rec.MaxUses = &n
	}
	var storeExpiry time.Time
	if !req.IsPermanent {
		ttl := s.ttl
		if req.ExpirationMinutes != nil {
			ttl = time.Duration(*req.ExpirationMinutes) * time.Minute
		}
		exp := now.Add(ttl)
		rec.ExpiresAt = &exp
		storeExpiry = exp
	}

	inserted := false
	for attempt := 0; attempt < maxCodeAttempts && !inserted; attempt++ {
		code, err := s.newCode()
		if err != nil {
			return nil, fmt.Errorf("%w: %w", domain.ErrUpstream, err)
		}
		rec.Code = code
		inserted = s.codes.Insert(code, rec, storeExpiry)
	}
	if !inserted {
		return nil, fmt.Errorf("no free connection code after %d attempts: %w", maxCodeAttempts, domain.ErrUpstream)
	}

	if err := s.ledger.Put(ctx, &rec); err != nil {
		s.codes.Delete(rec.Code)
		return nil, fmt.Errorf("record connection code: %w: %w", domain.ErrUpstream, err)
	}
	slog.Info("connection code issued", "owner_id", rec.OwnerID, "permanent", rec.IsPermanent)
	return &rec, nil
}

// Verify redeems code on behalf of requestingID and creates the connection.
func (s *service) Verify(ctx context.Context, code, requestingID string) (*VerifyResult, error) {
	code = strings.ToUpper(strings.TrimSpace(code))
	if code == "" || strings.TrimSpace(requestingID) == "" {
		return nil, domain.Newf(domain.ErrBadRequest, "code and requestingUserId are required")
	}

	now := s.now()
	rec, found, err := s.codes.UpdateWithExpiry(code, func(c domain.ConnectionCode, exp time.Time) (domain.ConnectionCode, time.Time, bool, error) {
		switch {
		case c.OwnerID == requestingID:
			return c, exp, true, domain.ErrSelfConnection
		case c.Expired(now):
			// Unreached while the store deadline equals ExpiresAt.
			return c, exp, false, domain.ErrCodeExpired
		case c.Exhausted():
			return c, exp, false, domain.ErrUsageExceeded
		}
		c.CurrentUses++
		if c.Exhausted() {
			exp = s.spentDeadline(now, exp)
		}
		return c, exp, true, nil
	})
	if !found {
		return nil, domain.ErrCodeNotFound
	}
	if err != nil {
		if !errors.Is(err, domain.ErrSelfConnection) {
			s.forget(ctx, code)
		}
		return nil, err
	}
	if rec.Exhausted() {
		s.forget(ctx, code)
	}

	conn := &domain.Connection{
		ConnectionID: id.New(),
		OwnerID:      rec.OwnerID,
		PartnerID:    requestingID,
		CodeUsed:     code,
		CreatedAt:    now.UTC(),
	}
	if err := s.connections.Put(ctx, conn); err != nil {
		return nil, fmt.Errorf("create connection: %w: %w", domain.ErrUpstream, err)
	}
	slog.Info("connection created", "connection_id", conn.ConnectionID, "owner_id", conn.OwnerID, "partner_id", conn.PartnerID)
	return &VerifyResult{ConnectionID: conn.ConnectionID, Connection: conn}, nil
}

// GetLatest returns the owner's most recently issued code if it is still
// redeemable, with its current use count.
func (s *service) GetLatest(ctx context.Context, ownerID string) (*domain.ConnectionCode, error) {
	if strings.TrimSpace(ownerID) == "" {
		return nil, domain.Newf(domain.ErrBadRequest, "userId is required")
	}
	c, err := s.ledger.LatestByOwner(ctx, ownerID)
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			return nil, domain.Newf(domain.ErrNotFound, "no active connection code")
		}
		return nil, fmt.Errorf("query latest code: %w: %w", domain.ErrUpstream, err)
	}
	if c.Expired(s.now()) {
		return nil, domain.Newf(domain.ErrNotFound, "no active connection code")
	}
	live, ok := s.codes.Get(c.Code)
	if !ok || live.OwnerID != ownerID || live.CodeID != c.CodeID {
		return nil, domain.Newf(domain.ErrNotFound, "no active connection code")
	}
	c.CurrentUses = live.CurrentUses
	return c, nil
}

// spentDeadline is the store deadline of a code whose last use was just
// taken. The record lingers to answer ErrUsageExceeded, bounded by the
// default code TTL so permanent codes are reclaimed too.
func (s *service) spentDeadline(now, current time.Time) time.Time {
	limit := now.Add(s.ttl)
	if current.IsZero() || limit.Before(current) {
		return limit
	}
	return current
}

// forget drops the ledger row of a code that can no longer be redeemed.
func (s *service) forget(ctx context.Context, code string) {
	if err := s.ledger.Delete(ctx, code); err != nil {
		slog.Warn("failed to delete connection code from ledger", "err", err)
	}
}
