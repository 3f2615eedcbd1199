package blocklist

import (
	"context"
	"fmt"
	"strings"
	"time"
)

// Entry is one time-boxed block or quarantine. Key carries the scope prefix
// ("ip:" or "session:"). An entry past ExpiresAt is authoritative-absent
// even before it is physically purged.
type Entry struct {
	Key       string    `json:"key"`
	Reason    string    `json:"reason"`
	CreatedAt time.Time `json:"created_at"`
	ExpiresAt time.Time `json:"expires_at"`
}

func (e Entry) Expired(now time.Time) bool {
	return !now.Before(e.ExpiresAt)
}

// Store holds active block/quarantine entries behind one interface with a
// local and a shared backend, mirroring the counter store duality.
type Store interface {
	// Get returns the live entry for key, or nil when none exists or the
	// stored entry has expired.
	Get(ctx context.Context, key string) (*Entry, error)

	Put(ctx context.Context, entry Entry) error

	Delete(ctx context.Context, key string) error

	// Active lists all unexpired entries.
	Active(ctx context.Context) ([]Entry, error)

	Ping(ctx context.Context) error
}

func IPKey(ip string) string {
	return "ip:" + ip
}

func SessionKey(sessionID string) string {
	return "session:" + sessionID
}

// IPFromKey returns the address for ip-scoped keys and false otherwise.
func IPFromKey(key string) (string, bool) {
	if strings.HasPrefix(key, "ip:") {
		return strings.TrimPrefix(key, "ip:"), true
	}
	return "", false
}

var ErrInvalidEntry = fmt.Errorf("blocklist entry has no key or expiry")
