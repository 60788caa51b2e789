package id

import (
	"crypto/rand"

	"github.com/oklog/ulid/v2"
)

// New generates a new ULID string. ULIDs sort by creation time, which the
// connection-code ledger relies on to find an owner's latest code.
func New() string {
	return ulid.MustNew(ulid.Now(), rand.Reader).String()
}
