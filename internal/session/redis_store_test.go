package session

import (
	"context"
	"testing"
	"time"

	"turnhub/api/internal/store"

	"github.com/alicebob/miniredis/v2"
)

func setupTestRedis(t *testing.T) *RedisStore {
	t.Helper()
	s := miniredis.RunT(t)
	redisStore, err := NewRedisStore("redis://" + s.Addr())
	if err != nil {
		t.Fatalf("failed to create redis store: %v", err)
	}
	t.Cleanup(func() { _ = redisStore.Close() })
	return redisStore
}

func testUser() store.User {
	return store.User{
		ID:          "usr_123",
		Email:       "mara@shine.example",
		DisplayName: "Mara",
		OrgID:       "org_1",
	}
}

func TestNewRedisStore(t *testing.T) {
	redisStore := setupTestRedis(t)

	if err := redisStore.Ping(context.Background()); err != nil {
		t.Errorf("Ping failed: %v", err)
	}
}

func TestSaveAndLookupRefreshSession(t *testing.T) {
	redisStore := setupTestRedis(t)
	ctx := context.Background()

	tokenHash := "test-token-hash"
	if err := redisStore.SaveRefreshSession(ctx, tokenHash, testUser(), time.Now().Add(24*time.Hour)); err != nil {
		t.Fatalf("SaveRefreshSession failed: %v", err)
	}

	user, err := redisStore.LookupRefreshSession(ctx, tokenHash)
	if err != nil {
		t.Fatalf("LookupRefreshSession failed: %v", err)
	}
	if user.ID != "usr_123" {
		t.Errorf("user id = %q", user.ID)
	}
	if user.OrgID != "org_1" {
		t.Errorf("org id = %q, want the denormalized organization", user.OrgID)
	}
	if user.DisplayName != "Mara" {
		t.Errorf("display name = %q", user.DisplayName)
	}
}

func TestLookupUnknownToken(t *testing.T) {
	redisStore := setupTestRedis(t)

	if _, err := redisStore.LookupRefreshSession(context.Background(), "never-stored"); err == nil {
		t.Fatal("expected error for unknown token")
	}
}

func TestRevokeRefreshSession(t *testing.T) {
	redisStore := setupTestRedis(t)
	ctx := context.Background()

	tokenHash := "revoked-token-hash"
	if err := redisStore.SaveRefreshSession(ctx, tokenHash, testUser(), time.Now().Add(time.Hour)); err != nil {
		t.Fatalf("SaveRefreshSession failed: %v", err)
	}
	if err := redisStore.RevokeRefreshSession(ctx, tokenHash); err != nil {
		t.Fatalf("RevokeRefreshSession failed: %v", err)
	}
	if _, err := redisStore.LookupRefreshSession(ctx, tokenHash); err == nil {
		t.Fatal("revoked token still resolves")
	}
}

func TestExpiredSessionFallsBackToDefaultTTL(t *testing.T) {
	redisStore := setupTestRedis(t)
	ctx := context.Background()

	// A past expiry must not produce a zero/negative TTL Redis rejects.
	if err := redisStore.SaveRefreshSession(ctx, "past-expiry", testUser(), time.Now().Add(-time.Hour)); err != nil {
		t.Fatalf("SaveRefreshSession with past expiry failed: %v", err)
	}
	if _, err := redisStore.LookupRefreshSession(ctx, "past-expiry"); err != nil {
		t.Fatalf("LookupRefreshSession failed: %v", err)
	}
}
