package types

import (
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
)

// NotificationID represents a UUIDv7 journal entry identifier.
// String alias enables type safety while maintaining JSON string
// serialization. UUIDv7 time-ordering clusters sequential inserts in
// B-tree indexes.
type NotificationID string

// NewNotificationID generates a UUIDv7 notification identifier.
// Panics on clock regression (uuid.Must); acceptable for ID generation.
func NewNotificationID() NotificationID {
	return NotificationID(uuid.Must(uuid.NewV7()).String())
}

// NotificationIDTime extracts the timestamp embedded in a UUIDv7 ID.
// Returns zero time for invalid UUIDs; caller should check IsZero().
func NotificationIDTime(id NotificationID) time.Time {
	u, err := uuid.Parse(string(id))
	if err != nil {
		return time.Time{}
	}
	sec, nsec := u.Time().UnixTime()
	return time.Unix(sec, nsec).UTC()
}

// SlugFromTitle converts a rule title to its base slug: lower-cased, with
// runs of non-alphanumeric characters collapsed to single hyphens and
// leading/trailing hyphens trimmed. An empty result yields "rule".
func SlugFromTitle(title string) string {
	var b strings.Builder
	pendingHyphen := false
	for _, r := range strings.ToLower(title) {
		alnum := (r >= 'a' && r <= 'z') || (r >= '0' && r <= '9')
		if alnum {
			if pendingHyphen && b.Len() > 0 {
				b.WriteByte('-')
			}
			pendingHyphen = false
			b.WriteRune(r)
			continue
		}
		pendingHyphen = true
	}
	if b.Len() == 0 {
		return "rule"
	}
	return b.String()
}

// IDAllocator hands out unique rule identifiers. Slug collisions gain a
// numeric suffix: "rule", "rule-2", "rule-3", ... Generation is a pure
// function of the title and the set of ids already claimed; the allocator
// makes that set explicit state instead of a shared mutable collection.
//
// Not safe for concurrent use; engine construction is single-threaded.
type IDAllocator struct {
	used map[string]struct{}
}

// NewIDAllocator returns an allocator with an empty used set.
func NewIDAllocator() *IDAllocator {
	return &IDAllocator{used: make(map[string]struct{})}
}

// Claim reserves an explicit id. Returns false if the id is already taken.
func (a *IDAllocator) Claim(id string) bool {
	if _, taken := a.used[id]; taken {
		return false
	}
	a.used[id] = struct{}{}
	return true
}

// FromTitle generates and reserves a deterministic id for title. The first
// claim of a slug returns it bare; later collisions append -2, -3, ...
func (a *IDAllocator) FromTitle(title string) string {
	base := SlugFromTitle(title)
	if a.Claim(base) {
		return base
	}
	for n := 2; ; n++ {
		candidate := base + "-" + strconv.Itoa(n)
		if a.Claim(candidate) {
			return candidate
		}
	}
}
