package connection

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/brianvoe/gofakeit/v6"
	"github.com/go-api-connect/internal/domain"
	"github.com/go-api-connect/internal/infrastructure/memstore"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

// --- mocks ---

type mockUsers struct{ mock.Mock }

func (m *mockUsers) Get(ctx context.Context, userID string) (*domain.User, error) {
	args := m.Called(ctx, userID)
	if u, _ := args.Get(0).(*domain.User); u != nil {
		return u, args.Error(1)
	}
	return nil, args.Error(1)
}

type mockConnections struct{ mock.Mock }

func (m *mockConnections) Put(ctx context.Context, c *domain.Connection) error {
	return m.Called(ctx, c).Error(0)
}

type mockLedger struct{ mock.Mock }

func (m *mockLedger) Put(ctx context.Context, c *domain.ConnectionCode) error {
	return m.Called(ctx, c).Error(0)
}

func (m *mockLedger) LatestByOwner(ctx context.Context, ownerID string) (*domain.ConnectionCode, error) {
	args := m.Called(ctx, ownerID)
	if c, _ := args.Get(0).(*domain.ConnectionCode); c != nil {
		return c, args.Error(1)
	}
	return nil, args.Error(1)
}

func (m *mockLedger) Delete(ctx context.Context, code string) error {
	return m.Called(ctx, code).Error(0)
}

type clock struct {
	mu sync.Mutex
	t  time.Time
}

func (c *clock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.t
}

func (c *clock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.t = c.t.Add(d)
}

// --- builder ---

type fixture struct {
	svc    Service
	users  *mockUsers
	conns  *mockConnections
	ledger *mockLedger
	codes  *memstore.Store[string, domain.ConnectionCode]
	clock  *clock
}

type option func(*ServiceDeps)

func withCodes(codes ...string) option {
	return func(d *ServiceDeps) {
		i := 0
		d.NewCode = func() (string, error) {
			c := codes[i%len(codes)]
			i++
			return c, nil
		}
	}
}

func newFixture(opts ...option) *fixture {
	f := &fixture{
		users:  &mockUsers{},
		conns:  &mockConnections{},
		ledger: &mockLedger{},
		clock:  &clock{t: time.Date(2025, 6, 1, 10, 0, 0, 0, time.UTC)},
	}
	f.codes = memstore.New[string, domain.ConnectionCode](f.clock.Now)
	deps := ServiceDeps{
		UserRepo:       f.users,
		ConnectionRepo: f.conns,
		LedgerRepo:     f.ledger,
		Codes:          f.codes,
		TTL:            15 * time.Minute,
		Now:            f.clock.Now,
	}
	for _, o := range opts {
		o(&deps)
	}
	f.svc = NewService(deps)
	f.users.On("Get", mock.Anything, mock.Anything).Return(&domain.User{}, nil).Maybe()
	f.ledger.On("Put", mock.Anything, mock.Anything).Return(nil).Maybe()
	f.ledger.On("Delete", mock.Anything, mock.Anything).Return(nil).Maybe()
	f.conns.On("Put", mock.Anything, mock.Anything).Return(nil).Maybe()
	return f
}

func intPtr(n int) *int { return &n }

func (f *fixture) generate(t *testing.T, req GenerateRequest) *domain.ConnectionCode {
	t.Helper()
	c, err := f.svc.Generate(context.Background(), req)
	require.NoError(t, err)
	return c
}

// --- Generate ---

func TestGenerate_Defaults(t *testing.T) {
	f := newFixture()
	owner := gofakeit.UUID()

	c := f.generate(t, GenerateRequest{OwnerID: owner})
	assert.Len(t, c.Code, 6)
	assert.Equal(t, owner, c.OwnerID)
	assert.False(t, c.IsPermanent)
	assert.Nil(t, c.MaxUses)
	require.NotNil(t, c.ExpiresAt)
	assert.Equal(t, f.clock.Now().Add(15*time.Minute), *c.ExpiresAt)

	live, ok := f.codes.Get(c.Code)
	require.True(t, ok)
	assert.Equal(t, 0, live.CurrentUses)
	f.ledger.AssertCalled(t, "Put", mock.Anything, mock.MatchedBy(func(r *domain.ConnectionCode) bool {
		return r.Code == c.Code && r.CodeID != ""
	}))
}

func TestGenerate_CustomExpirationAndMaxUses(t *testing.T) {
	f := newFixture()
	c := f.generate(t, GenerateRequest{OwnerID: "u1", ExpirationMinutes: intPtr(60), MaxUses: intPtr(3)})
	require.NotNil(t, c.ExpiresAt)
	assert.Equal(t, f.clock.Now().Add(time.Hour), *c.ExpiresAt)
	require.NotNil(t, c.MaxUses)
	assert.Equal(t, 3, *c.MaxUses)
}

func TestGenerate_PermanentNeverExpires(t *testing.T) {
	f := newFixture()
	c := f.generate(t, GenerateRequest{OwnerID: "u1", IsPermanent: true, ExpirationMinutes: intPtr(1)})
	assert.Nil(t, c.ExpiresAt)

	f.clock.Advance(30 * 24 * time.Hour)
	assert.Equal(t, 0, f.codes.Sweep())
	_, err := f.svc.Verify(context.Background(), c.Code, "u2")
	assert.NoError(t, err)
}

func TestGenerate_Validation(t *testing.T) {
	f := newFixture()
	cases := []GenerateRequest{
		{OwnerID: ""},
		{OwnerID: "u1", ExpirationMinutes: intPtr(0)},
		{OwnerID: "u1", ExpirationMinutes: intPtr(-5)},
		{OwnerID: "u1", MaxUses: intPtr(0)},
	}
	for _, req := range cases {
		_, err := f.svc.Generate(context.Background(), req)
		assert.True(t, errors.Is(err, domain.ErrBadRequest), "%+v", req)
	}
	assert.Equal(t, 0, f.codes.Len())
}

func TestGenerate_RejectsOversizedExpiration(t *testing.T) {
	f := newFixture()
	for _, minutes := range []int{MaxExpirationMinutes + 1, 200_000_000} {
		_, err := f.svc.Generate(context.Background(), GenerateRequest{OwnerID: "u1", ExpirationMinutes: intPtr(minutes)})
		assert.True(t, errors.Is(err, domain.ErrBadRequest), "%d", minutes)
	}
	assert.Equal(t, 0, f.codes.Len())
	f.users.AssertNotCalled(t, "Get", mock.Anything, mock.Anything)
}

func TestGenerate_MaxExpirationIsRedeemable(t *testing.T) {
	f := newFixture()
	c := f.generate(t, GenerateRequest{OwnerID: "u1", ExpirationMinutes: intPtr(MaxExpirationMinutes)})
	require.NotNil(t, c.ExpiresAt)
	assert.Equal(t, f.clock.Now().Add(365*24*time.Hour), *c.ExpiresAt)

	f.clock.Advance(364 * 24 * time.Hour)
	_, err := f.svc.Verify(context.Background(), c.Code, "u2")
	assert.NoError(t, err)
}

func TestGenerate_UnknownOwner(t *testing.T) {
	f := newFixture()
	f.users.ExpectedCalls = nil
	f.users.On("Get", mock.Anything, "ghost").Return(nil, domain.ErrNotFound)

	_, err := f.svc.Generate(context.Background(), GenerateRequest{OwnerID: "ghost"})
	assert.True(t, errors.Is(err, domain.ErrInvalidOwner))
	assert.True(t, errors.Is(err, domain.ErrBadRequest))
	assert.Equal(t, 0, f.codes.Len())
}

func TestGenerate_OwnerLookupFailure(t *testing.T) {
	f := newFixture()
	f.users.ExpectedCalls = nil
	f.users.On("Get", mock.Anything, "u1").Return(nil, errors.New("throttled"))

	_, err := f.svc.Generate(context.Background(), GenerateRequest{OwnerID: "u1"})
	assert.True(t, errors.Is(err, domain.ErrUpstream))
}

func TestGenerate_RetriesOnLiveCollision(t *testing.T) {
	f := newFixture(withCodes("AAAAAA", "AAAAAA", "BBBBBB"))
	first := f.generate(t, GenerateRequest{OwnerID: "u1"})
	second := f.generate(t, GenerateRequest{OwnerID: "u2"})

	assert.Equal(t, "AAAAAA", first.Code)
	assert.Equal(t, "BBBBBB", second.Code)
	live, _ := f.codes.Get("AAAAAA")
	assert.Equal(t, "u1", live.OwnerID, "live code is never overwritten")
}

func TestGenerate_GivesUpAfterRepeatedCollisions(t *testing.T) {
	f := newFixture(withCodes("AAAAAA"))
	f.generate(t, GenerateRequest{OwnerID: "u1"})

	_, err := f.svc.Generate(context.Background(), GenerateRequest{OwnerID: "u2"})
	assert.True(t, errors.Is(err, domain.ErrUpstream))
}

func TestGenerate_LedgerFailureRemovesCode(t *testing.T) {
	f := newFixture(withCodes("AAAAAA"))
	f.ledger.ExpectedCalls = nil
	f.ledger.On("Put", mock.Anything, mock.Anything).Return(errors.New("dynamo down"))

	_, err := f.svc.Generate(context.Background(), GenerateRequest{OwnerID: "u1"})
	assert.True(t, errors.Is(err, domain.ErrUpstream))
	_, ok := f.codes.Get("AAAAAA")
	assert.False(t, ok)
}

// --- Verify ---

func TestVerify_MaxUsesTwo(t *testing.T) {
	f := newFixture()
	c := f.generate(t, GenerateRequest{OwnerID: "u1", MaxUses: intPtr(2)})

	r2, err := f.svc.Verify(context.Background(), c.Code, "u2")
	require.NoError(t, err)
	assert.Equal(t, "u1", r2.Connection.OwnerID)
	assert.Equal(t, "u2", r2.Connection.PartnerID)
	assert.Equal(t, c.Code, r2.Connection.CodeUsed)
	assert.Equal(t, r2.ConnectionID, r2.Connection.ConnectionID)

	_, err = f.svc.Verify(context.Background(), c.Code, "u3")
	require.NoError(t, err)
	f.ledger.AssertCalled(t, "Delete", mock.Anything, c.Code)

	_, err = f.svc.Verify(context.Background(), c.Code, "u4")
	assert.True(t, errors.Is(err, domain.ErrUsageExceeded))

	_, err = f.svc.Verify(context.Background(), c.Code, "u5")
	assert.True(t, errors.Is(err, domain.ErrCodeNotFound), "exhausted code is deleted")
	f.conns.AssertNumberOfCalls(t, "Put", 2)
}

func TestVerify_SingleUseUnderConcurrency(t *testing.T) {
	f := newFixture()
	c := f.generate(t, GenerateRequest{OwnerID: "owner", MaxUses: intPtr(1)})

	var wg sync.WaitGroup
	var wins atomic.Int32
	for i := 0; i < 32; i++ {
		wg.Add(1)
		go func(partner string) {
			defer wg.Done()
			if _, err := f.svc.Verify(context.Background(), c.Code, partner); err == nil {
				wins.Add(1)
			}
		}(fmt.Sprintf("partner-%d", i))
	}
	wg.Wait()
	assert.Equal(t, int32(1), wins.Load())
}

func TestVerify_ExhaustedPermanentCodeAnswersUsageExceeded(t *testing.T) {
	f := newFixture(withCodes("PERM01"))
	c := f.generate(t, GenerateRequest{OwnerID: "u1", IsPermanent: true, MaxUses: intPtr(1)})

	_, err := f.svc.Verify(context.Background(), c.Code, "u2")
	require.NoError(t, err)

	f.clock.Advance(time.Minute)
	_, err = f.svc.Verify(context.Background(), c.Code, "u3")
	assert.True(t, errors.Is(err, domain.ErrUsageExceeded))
	assert.Equal(t, 0, f.codes.Len())
}

func TestVerify_SpentPermanentCodeExpiresAfterTTL(t *testing.T) {
	f := newFixture(withCodes("PERM01"))
	c := f.generate(t, GenerateRequest{OwnerID: "u1", IsPermanent: true, MaxUses: intPtr(1)})
	_, err := f.svc.Verify(context.Background(), c.Code, "u2")
	require.NoError(t, err)

	f.clock.Advance(365 * 24 * time.Hour)
	assert.Equal(t, 1, f.codes.Sweep())
	assert.Equal(t, 0, f.codes.Len())

	again := f.generate(t, GenerateRequest{OwnerID: "u9", IsPermanent: true})
	assert.Equal(t, "PERM01", again.Code, "spent code value is free again")
}

func TestVerify_SpentCodeKeepsEarlierDeadline(t *testing.T) {
	f := newFixture()
	c := f.generate(t, GenerateRequest{OwnerID: "u1", ExpirationMinutes: intPtr(5), MaxUses: intPtr(1)})
	_, err := f.svc.Verify(context.Background(), c.Code, "u2")
	require.NoError(t, err)

	f.clock.Advance(5 * time.Minute)
	assert.Equal(t, 1, f.codes.Sweep(), "original 5 minute deadline still applies")
}

func TestVerify_SelfConnectionKeepsCode(t *testing.T) {
	f := newFixture()
	c := f.generate(t, GenerateRequest{OwnerID: "u1", MaxUses: intPtr(1)})

	_, err := f.svc.Verify(context.Background(), c.Code, "u1")
	assert.True(t, errors.Is(err, domain.ErrSelfConnection))
	live, ok := f.codes.Get(c.Code)
	require.True(t, ok)
	assert.Equal(t, 0, live.CurrentUses)
	f.ledger.AssertNotCalled(t, "Delete", mock.Anything, mock.Anything)

	_, err = f.svc.Verify(context.Background(), c.Code, "u2")
	assert.NoError(t, err)
}

func TestVerify_UnknownCode(t *testing.T) {
	f := newFixture()
	_, err := f.svc.Verify(context.Background(), "ZZZZZZ", "u2")
	assert.True(t, errors.Is(err, domain.ErrCodeNotFound))
}

func TestVerify_ExpiredReadsAsNotFound(t *testing.T) {
	f := newFixture()
	c := f.generate(t, GenerateRequest{OwnerID: "u1"})

	f.clock.Advance(15 * time.Minute)
	_, err := f.svc.Verify(context.Background(), c.Code, "u2")
	assert.True(t, errors.Is(err, domain.ErrCodeNotFound))
}

func TestVerify_PayloadExpiredIsDeleted(t *testing.T) {
	f := newFixture()
	past := f.clock.Now().Add(-time.Second)
	f.codes.Put("OLDONE", domain.ConnectionCode{Code: "OLDONE", OwnerID: "u1", ExpiresAt: &past}, time.Time{})

	_, err := f.svc.Verify(context.Background(), "OLDONE", "u2")
	assert.True(t, errors.Is(err, domain.ErrCodeExpired))
	_, ok := f.codes.Get("OLDONE")
	assert.False(t, ok)
	f.ledger.AssertCalled(t, "Delete", mock.Anything, "OLDONE")
}

func TestVerify_NormalizesCode(t *testing.T) {
	f := newFixture(withCodes("AB12CD"))
	f.generate(t, GenerateRequest{OwnerID: "u1"})

	_, err := f.svc.Verify(context.Background(), " ab12cd ", "u2")
	assert.NoError(t, err)
}

func TestVerify_MissingInput(t *testing.T) {
	f := newFixture()
	_, err := f.svc.Verify(context.Background(), "", "u2")
	assert.True(t, errors.Is(err, domain.ErrBadRequest))
	_, err = f.svc.Verify(context.Background(), "ABCDEF", " ")
	assert.True(t, errors.Is(err, domain.ErrBadRequest))
}

func TestVerify_GatewayFailureKeepsIncrement(t *testing.T) {
	f := newFixture()
	f.conns.ExpectedCalls = nil
	f.conns.On("Put", mock.Anything, mock.Anything).Return(errors.New("dynamo down"))
	c := f.generate(t, GenerateRequest{OwnerID: "u1", MaxUses: intPtr(5)})

	_, err := f.svc.Verify(context.Background(), c.Code, "u2")
	assert.True(t, errors.Is(err, domain.ErrUpstream))
	live, _ := f.codes.Get(c.Code)
	assert.Equal(t, 1, live.CurrentUses)
}

// --- GetLatest ---

func TestGetLatest_ReturnsLiveCodeWithUses(t *testing.T) {
	f := newFixture()
	c := f.generate(t, GenerateRequest{OwnerID: "u1", MaxUses: intPtr(3)})
	_, err := f.svc.Verify(context.Background(), c.Code, "u2")
	require.NoError(t, err)

	row := *c
	row.CurrentUses = 0
	f.ledger.On("LatestByOwner", mock.Anything, "u1").Return(&row, nil)

	got, err := f.svc.GetLatest(context.Background(), "u1")
	require.NoError(t, err)
	assert.Equal(t, c.Code, got.Code)
	assert.Equal(t, 1, got.CurrentUses)
}

func TestGetLatest_None(t *testing.T) {
	f := newFixture()
	f.ledger.On("LatestByOwner", mock.Anything, "u1").Return(nil, domain.ErrNotFound)

	_, err := f.svc.GetLatest(context.Background(), "u1")
	assert.True(t, errors.Is(err, domain.ErrNotFound))
}

func TestGetLatest_ExpiredCountsAsNone(t *testing.T) {
	f := newFixture()
	c := f.generate(t, GenerateRequest{OwnerID: "u1"})
	f.ledger.On("LatestByOwner", mock.Anything, "u1").Return(c, nil)

	f.clock.Advance(16 * time.Minute)
	_, err := f.svc.GetLatest(context.Background(), "u1")
	assert.True(t, errors.Is(err, domain.ErrNotFound))
}

func TestGetLatest_NotLiveInMemory(t *testing.T) {
	f := newFixture()
	f.ledger.On("LatestByOwner", mock.Anything, "u1").Return(&domain.ConnectionCode{
		CodeID: "01J", Code: "GONE00", OwnerID: "u1", IsPermanent: true,
	}, nil)

	_, err := f.svc.GetLatest(context.Background(), "u1")
	assert.True(t, errors.Is(err, domain.ErrNotFound))
}

func TestGetLatest_LedgerFailure(t *testing.T) {
	f := newFixture()
	f.ledger.On("LatestByOwner", mock.Anything, "u1").Return(nil, errors.New("throttled"))

	_, err := f.svc.GetLatest(context.Background(), "u1")
	assert.True(t, errors.Is(err, domain.ErrUpstream))
}
