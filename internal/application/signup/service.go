// Package signup implements email-OTP account creation.
//
// Per email the flow moves NONE -> PENDING (OTP sent) -> VERIFIED (OTP
// matched) -> consumed (account created). Pending and verified records both
// expire after the configured TTL and are then indistinguishable from NONE.
package signup

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/go-api-connect/internal/domain"
	"github.com/go-api-connect/internal/infrastructure/memstore"
	"github.com/go-api-connect/internal/pkg/id"
	pkgtoken "github.com/go-api-connect/internal/pkg/token"
	"golang.org/x/crypto/bcrypt"
)

const otpSubject = "Your verification code"

type Service interface {
	SendOTP(ctx context.Context, email string) error
	VerifyOTP(ctx context.Context, email, otp string) error
	CompleteRegistration(ctx context.Context, email, password string) (*domain.User, error)
}

type emailChecker interface {
	CheckEmail(ctx context.Context, email string) (bool, error)
}

type userCreator interface {
	Create(ctx context.Context, u *domain.User) error
}

type mailer interface {
	SendEmail(to, subject, body string) error
}

type service struct {
	accounts emailChecker
	repo     userCreator
	mailer   mailer
	otps     *memstore.Store[string, domain.OTPRecord]
	ttl      time.Duration
	now      func() time.Time
}

type ServiceDeps struct {
	Accounts emailChecker
	UserRepo userCreator
	Mailer   mailer
	OTPs     *memstore.Store[string, domain.OTPRecord]
	TTL      time.Duration
	// Now must be the same clock the OTP store was built with. Defaults to time.Now.
	Now func() time.Time
}

func NewService(deps ServiceDeps) Service {
	now := deps.Now
	if now == nil {
		now = time.Now
	}
	ttl := deps.TTL
	if ttl <= 0 {
		ttl = 5 * time.Minute
	}
	return &service{
		accounts: deps.Accounts,
		repo:     deps.UserRepo,
		mailer:   deps.Mailer,
		otps:     deps.OTPs,
		ttl:      ttl,
		now:      now,
	}
}

// SendOTP issues a fresh OTP for an unregistered email, replacing any pending
// or verified record, and emails it.
func (s *service) SendOTP(ctx context.Context, email string) error {
	email = domain.NormalizeEmail(email)
	exists, err := s.accounts.CheckEmail(ctx, email)
	if err != nil {
		return err
	}
	if exists {
		return domain.ErrAlreadyRegistered
	}

	otp, err := pkgtoken.NewOTP()
	if err != nil {
		return fmt.Errorf("%w: %w", domain.ErrUpstream, err)
	}
	expiresAt := s.now().Add(s.ttl)
	s.otps.Put(email, domain.OTPRecord{OTP: otp, ExpiresAt: expiresAt}, expiresAt)

	body := fmt.Sprintf("Your verification code is %s. It expires in %d minutes.", otp, int(s.ttl.Minutes()))
	if err := s.mailer.SendEmail(email, otpSubject, body); err != nil {
		s.otps.Delete(email)
		slog.Warn("otp email delivery failed", "email", email, "err", err)
		return fmt.Errorf("%w: %w", domain.ErrMailDeliveryFailed, err)
	}
	slog.Info("otp sent", "email", email)
	return nil
}

// VerifyOTP marks the pending record verified when otp matches. A mismatch
// leaves the record exactly as it was.
func (s *service) VerifyOTP(ctx context.Context, email, otp string) error {
	email = domain.NormalizeEmail(email)
	otp = strings.TrimSpace(otp)
	_, found, err := s.otps.Update(email, func(r domain.OTPRecord) (domain.OTPRecord, bool, error) {
		if r.OTP != otp {
			return r, true, domain.ErrOTPMismatch
		}
		r.Verified = true
		return r, true, nil
	})
	if !found {
		return domain.ErrOTPNotFound
	}
	return err
}

// CompleteRegistration creates the account for a verified email. The OTP
// record is consumed only once the account exists, so a failed create can be
// retried without a new OTP.
func (s *service) CompleteRegistration(ctx context.Context, email, password string) (*domain.User, error) {
	email = domain.NormalizeEmail(email)
	rec, ok := s.otps.Get(email)
	if !ok || !rec.Verified {
		return nil, domain.ErrNotVerified
	}

	exists, err := s.accounts.CheckEmail(ctx, email)
	if err != nil {
		return nil, err
	}
	if exists {
		s.otps.Delete(email)
		return nil, domain.ErrAlreadyRegistered
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return nil, domain.Newf(domain.ErrBadRequest, "password must be at most 72 bytes")
	}
	now := s.now().UTC()
	u := &domain.User{
		UserID:         id.New(),
		Email:          email,
		PasswordHash:   string(hash),
		EmailConfirmed: true,
		CreatedAt:      now,
		UpdatedAt:      now,
	}
	if err := s.repo.Create(ctx, u); err != nil {
		return nil, fmt.Errorf("create account: %w: %w", domain.ErrUpstream, err)
	}
	s.otps.Delete(email)
	slog.Info("account created", "user_id", u.UserID)
	return u, nil
}
