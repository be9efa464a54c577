package domain

import (
	"testing"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/stretchr/testify/assert"
)

func TestBuildIdempotencyKey_Deterministic(t *testing.T) {
	node, _ := snowflake.NewNode(1)
	postID := node.Generate()
	at := time.Date(2026, 3, 14, 9, 30, 0, 0, time.UTC)

	first := BuildIdempotencyKey(postID, "linkedin", &at)
	second := BuildIdempotencyKey(postID, "linkedin", &at)
	assert.Equal(t, first, second)

	// Same wall-clock instant in another zone derives the same key.
	loc := time.FixedZone("UTC+7", 7*3600)
	shifted := at.In(loc)
	assert.Equal(t, first, BuildIdempotencyKey(postID, "linkedin", &shifted))
}

func TestBuildIdempotencyKey_ImmediateForNilOrZeroSchedule(t *testing.T) {
	node, _ := snowflake.NewNode(1)
	postID := node.Generate()

	var zero time.Time
	assert.Equal(t,
		BuildIdempotencyKey(postID, "linkedin", nil),
		BuildIdempotencyKey(postID, "linkedin", &zero))
}

func TestBuildIdempotencyKey_DistinctInputsDistinctKeys(t *testing.T) {
	node, _ := snowflake.NewNode(1)
	postID := node.Generate()
	otherPost := node.Generate()
	at := time.Date(2026, 3, 14, 9, 30, 0, 0, time.UTC)
	later := at.Add(time.Hour)

	base := BuildIdempotencyKey(postID, "linkedin", &at)
	assert.NotEqual(t, base, BuildIdempotencyKey(otherPost, "linkedin", &at))
	assert.NotEqual(t, base, BuildIdempotencyKey(postID, "instagram", &at))
	assert.NotEqual(t, base, BuildIdempotencyKey(postID, "linkedin", &later))
	assert.NotEqual(t, base, BuildIdempotencyKey(postID, "linkedin", nil))
}

func TestBuildOperationKey(t *testing.T) {
	node, _ := snowflake.NewNode(1)
	postID := node.Generate()

	deleteKey := BuildOperationKey(postID, "linkedin", "delete_remote")
	assert.Equal(t, deleteKey, BuildOperationKey(postID, "linkedin", "delete_remote"))
	assert.NotEqual(t, deleteKey, BuildOperationKey(postID, "linkedin", "sync_comments"))

	// Operation keys never collide with publish keys for the same post.
	assert.NotEqual(t, deleteKey, BuildIdempotencyKey(postID, "linkedin", nil))
}
