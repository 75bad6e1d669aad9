package session

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
)

func setupTestRedis(t *testing.T) (*RedisStore, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	rs, err := NewRedisStore("redis://" + mr.Addr())
	if err != nil {
		t.Fatalf("create redis store: %v", err)
	}
	t.Cleanup(func() { rs.Close() })
	return rs, mr
}

func TestSaveAndLookupRefreshSession(t *testing.T) {
	rs, _ := setupTestRedis(t)
	ctx := context.Background()

	err := rs.SaveRefreshSession(ctx, "hash-1", "usr_1", time.Now().Add(24*time.Hour))
	if err != nil {
		t.Fatalf("SaveRefreshSession: %v", err)
	}

	userID, err := rs.LookupRefreshSession(ctx, "hash-1")
	if err != nil {
		t.Fatalf("LookupRefreshSession: %v", err)
	}
	if userID != "usr_1" {
		t.Errorf("expected usr_1, got %s", userID)
	}
}

func TestSaveRejectsPastExpiry(t *testing.T) {
	rs, _ := setupTestRedis(t)
	ctx := context.Background()

	err := rs.SaveRefreshSession(ctx, "hash-old", "usr_1", time.Now().Add(-time.Minute))
	if err == nil {
		t.Error("expected error saving session that already expired")
	}
}

func TestLookupExpiredSession(t *testing.T) {
	rs, mr := setupTestRedis(t)
	ctx := context.Background()

	if err := rs.SaveRefreshSession(ctx, "hash-2", "usr_2", time.Now().Add(time.Second)); err != nil {
		t.Fatalf("SaveRefreshSession: %v", err)
	}

	mr.FastForward(2 * time.Second)

	_, err := rs.LookupRefreshSession(ctx, "hash-2")
	if !errors.Is(err, ErrNotFound) {
		t.Errorf("expected ErrNotFound, got %v", err)
	}
}

func TestLookupNonExistentSession(t *testing.T) {
	rs, _ := setupTestRedis(t)

	_, err := rs.LookupRefreshSession(context.Background(), "nope")
	if !errors.Is(err, ErrNotFound) {
		t.Errorf("expected ErrNotFound, got %v", err)
	}
}

func TestRevokeRefreshSession(t *testing.T) {
	rs, _ := setupTestRedis(t)
	ctx := context.Background()

	if err := rs.SaveRefreshSession(ctx, "hash-3", "usr_3", time.Now().Add(time.Hour)); err != nil {
		t.Fatalf("SaveRefreshSession: %v", err)
	}
	if err := rs.RevokeRefreshSession(ctx, "hash-3"); err != nil {
		t.Fatalf("RevokeRefreshSession: %v", err)
	}

	_, err := rs.LookupRefreshSession(ctx, "hash-3")
	if !errors.Is(err, ErrNotFound) {
		t.Errorf("expected ErrNotFound after revoke, got %v", err)
	}

	// Revoking again is a no-op, not an error.
	if err := rs.RevokeRefreshSession(ctx, "hash-3"); err != nil {
		t.Errorf("RevokeRefreshSession twice: %v", err)
	}
}

func TestPublishChatEventReachesSubscribers(t *testing.T) {
	rs, _ := setupTestRedis(t)
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	sub := rs.client.Subscribe(ctx, "chat:team_1")
	t.Cleanup(func() { sub.Close() })
	if _, err := sub.Receive(ctx); err != nil {
		t.Fatalf("subscribe: %v", err)
	}

	if err := rs.PublishChatEvent(ctx, "team_1", []byte(`{"type":"message"}`)); err != nil {
		t.Fatalf("PublishChatEvent: %v", err)
	}

	msg, err := sub.ReceiveMessage(ctx)
	if err != nil {
		t.Fatalf("ReceiveMessage: %v", err)
	}
	if msg.Payload != `{"type":"message"}` {
		t.Errorf("payload = %q", msg.Payload)
	}
}

func TestSessionIsolation(t *testing.T) {
	rs, _ := setupTestRedis(t)
	ctx := context.Background()
	expiresAt := time.Now().Add(time.Hour)

	if err := rs.SaveRefreshSession(ctx, "hash-a", "usr_a", expiresAt); err != nil {
		t.Fatalf("save a: %v", err)
	}
	if err := rs.SaveRefreshSession(ctx, "hash-b", "usr_b", expiresAt); err != nil {
		t.Fatalf("save b: %v", err)
	}

	if err := rs.RevokeRefreshSession(ctx, "hash-a"); err != nil {
		t.Fatalf("revoke a: %v", err)
	}

	if _, err := rs.LookupRefreshSession(ctx, "hash-a"); err == nil {
		t.Error("expected hash-a to be gone")
	}
	userID, err := rs.LookupRefreshSession(ctx, "hash-b")
	if err != nil {
		t.Fatalf("lookup b: %v", err)
	}
	if userID != "usr_b" {
		t.Errorf("expected usr_b, got %s", userID)
	}
}
