package domain

import (
	"fmt"
	"strconv"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/google/uuid"
)

// keyNamespace scopes the UUIDv5 derivation. Changing it invalidates every
// stored idempotency key.
var keyNamespace = uuid.MustParse("a1f8c2d4-7b3e-4c96-9d15-2e84fb60c7aa")

// BuildIdempotencyKey derives the key for a publish intent. It is pure: the
// same (post, provider, schedule) tuple always yields the same key, and
// changing any field yields a different one. A rescheduled post therefore
// carries a new key and is a new publish intent, not an update to the old
// one.
func BuildIdempotencyKey(postID snowflake.ID, provider string, scheduledAt *time.Time) string {
	schedule := "immediate"
	if scheduledAt != nil && !scheduledAt.IsZero() {
		schedule = strconv.FormatInt(scheduledAt.UTC().Unix(), 10)
	}
	name := fmt.Sprintf("%s|%s|%s", postID, provider, schedule)
	return uuid.NewSHA1(keyNamespace, []byte(name)).String()
}

// BuildOperationKey derives the key for a non-publish operation against an
// already-published post (remote delete, comment sync).
func BuildOperationKey(postID snowflake.ID, provider, operation string) string {
	name := fmt.Sprintf("%s|%s|op:%s", postID, provider, operation)
	return uuid.NewSHA1(keyNamespace, []byte(name)).String()
}
