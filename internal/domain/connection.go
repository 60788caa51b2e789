package domain

import "time"

// ConnectionCode is a shareable pairing code issued by OwnerID.
// A nil MaxUses means unlimited uses; a nil ExpiresAt means the code never expires.
type ConnectionCode struct {
	// CodeID is a ULID assigned at issue time; it orders the ledger by recency.
	CodeID      string     `json:"codeId" dynamodbav:"code_id"`
	Code        string     `json:"code" dynamodbav:"code"`
	OwnerID     string     `json:"ownerId" dynamodbav:"owner_id"`
	IsPermanent bool       `json:"isPermanent" dynamodbav:"is_permanent"`
	MaxUses     *int       `json:"maxUses,omitempty" dynamodbav:"max_uses,omitempty"`
	CurrentUses int        `json:"currentUses" dynamodbav:"current_uses"`
	ExpiresAt   *time.Time `json:"expiresAt" dynamodbav:"expires_at_iso,omitempty"`
	CreatedAt   time.Time  `json:"createdAt" dynamodbav:"created_at"`
	// ExpiresAtUnix mirrors ExpiresAt in whole seconds for the DynamoDB TTL
	// attribute; ExpiresAt itself is stored as RFC3339 with full precision.
	ExpiresAtUnix int64 `json:"-" dynamodbav:"expires_at,omitempty"`
}

// Exhausted reports whether the code has no uses left.
func (c *ConnectionCode) Exhausted() bool {
	return c.MaxUses != nil && c.CurrentUses >= *c.MaxUses
}

// Expired reports whether a non-permanent code is past its expiry at now.
func (c *ConnectionCode) Expired(now time.Time) bool {
	return c.ExpiresAt != nil && !now.Before(*c.ExpiresAt)
}

// Connection pairs the owner of a code with the identity that redeemed it.
type Connection struct {
	ConnectionID string    `json:"id" dynamodbav:"connection_id"`
	OwnerID      string    `json:"ownerId" dynamodbav:"owner_id"`
	PartnerID    string    `json:"partnerId" dynamodbav:"partner_id"`
	CodeUsed     string    `json:"codeUsed" dynamodbav:"code_used"`
	CreatedAt    time.Time `json:"createdAt" dynamodbav:"created_at"`
}
