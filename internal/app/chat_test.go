package app

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"testing"

	"lifeboard/api/internal/store"
)

func shareFixture(t *testing.T) (*Service, *fakeStore) {
	t.Helper()
	fs := newFakeStore()
	fs.users[ownerID] = store.User{ID: ownerID, DisplayName: "Owner"}
	fs.users[viewerID] = store.User{ID: viewerID, DisplayName: "Viewer"}
	fs.teamRoles[teamID+"/"+ownerID] = "admin"
	fs.teamRoles[teamID+"/"+viewerID] = "member"
	fs.roadmaps["rdm_orig"] = store.Roadmap{ID: "rdm_orig", OwnerID: ownerID, Title: "Learn Go"}
	return newTestService(fs), fs
}

func TestShareToChatCreatesMessageAndItem(t *testing.T) {
	svc, fs := shareFixture(t)

	payload, err := svc.ShareToChat(context.Background(), teamID, "", ownerID, store.ShareKindRoadmap, "rdm_orig", "")
	if err != nil {
		t.Fatalf("ShareToChat: %v", err)
	}

	if len(fs.messages) != 1 || len(fs.sharedItems) != 1 {
		t.Fatalf("messages = %d, sharedItems = %d, want 1 and 1", len(fs.messages), len(fs.sharedItems))
	}
	message := fs.messages[0]
	item := fs.sharedItems[0]
	if item.MessageID != message.ID {
		t.Fatal("shared item must reference its message")
	}
	if item.ItemKind != store.ShareKindRoadmap || item.ItemID != "rdm_orig" {
		t.Fatalf("shared item = %s/%s", item.ItemKind, item.ItemID)
	}
	if item.SharedBy != ownerID {
		t.Fatalf("sharedBy = %s", item.SharedBy)
	}

	var attachments []chatAttachment
	if err := json.Unmarshal([]byte(message.Attachments), &attachments); err != nil {
		t.Fatalf("attachments not valid JSON: %v", err)
	}
	if len(attachments) != 1 || attachments[0].Item.Title != "Learn Go" || attachments[0].Type != store.ShareKindRoadmap {
		t.Fatalf("attachment = %+v", attachments)
	}

	if payload["message"] == nil || payload["sharedItem"] == nil {
		t.Fatal("response must carry both message and shared item")
	}
	if message.Body == "" {
		t.Fatal("expected a default body for the share message")
	}
}

type fakeEvents struct {
	published []string
}

func (f *fakeEvents) PublishChatEvent(_ context.Context, teamID string, payload []byte) error {
	f.published = append(f.published, string(payload))
	return nil
}

func TestChatEventsPublishedWhenConfigured(t *testing.T) {
	svc, _ := shareFixture(t)
	events := &fakeEvents{}
	svc.events = events

	if _, err := svc.PostMessage(context.Background(), teamID, "", ownerID, "hello"); err != nil {
		t.Fatalf("PostMessage: %v", err)
	}
	if _, err := svc.ShareToChat(context.Background(), teamID, "", ownerID, store.ShareKindRoadmap, "rdm_orig", ""); err != nil {
		t.Fatalf("ShareToChat: %v", err)
	}

	if len(events.published) != 2 {
		t.Fatalf("published = %d, want 2", len(events.published))
	}
	var event map[string]string
	if err := json.Unmarshal([]byte(events.published[1]), &event); err != nil {
		t.Fatalf("unmarshal event: %v", err)
	}
	if event["type"] != "share" || event["teamId"] != teamID {
		t.Fatalf("event = %#v", event)
	}
}

func TestUnreadCountsAndMarkRead(t *testing.T) {
	svc, _ := shareFixture(t)
	ctx := context.Background()

	if _, err := svc.PostMessage(ctx, teamID, "", ownerID, "first"); err != nil {
		t.Fatalf("PostMessage: %v", err)
	}
	if _, err := svc.PostMessage(ctx, teamID, "", ownerID, "second"); err != nil {
		t.Fatalf("PostMessage: %v", err)
	}
	// Own messages never count as unread.
	if _, err := svc.PostMessage(ctx, teamID, "", viewerID, "reply"); err != nil {
		t.Fatalf("PostMessage: %v", err)
	}

	payload, err := svc.UnreadCounts(ctx, viewerID)
	if err != nil {
		t.Fatalf("UnreadCounts: %v", err)
	}
	unread := payload["unread"].([]map[string]any)
	if len(unread) != 1 || unread[0]["teamId"] != teamID || unread[0]["count"] != 2 {
		t.Fatalf("unread = %#v, want 2 for %s", unread, teamID)
	}

	if err := svc.MarkTeamRead(ctx, teamID, viewerID); err != nil {
		t.Fatalf("MarkTeamRead: %v", err)
	}
	payload, err = svc.UnreadCounts(ctx, viewerID)
	if err != nil {
		t.Fatalf("UnreadCounts after read: %v", err)
	}
	unread = payload["unread"].([]map[string]any)
	if len(unread) != 1 || unread[0]["count"] != 0 {
		t.Fatalf("unread after read = %#v, want 0", unread)
	}
}

func TestShareFailureLeavesNothingBehind(t *testing.T) {
	svc, fs := shareFixture(t)

	// The store call is a single transaction: when it fails, neither the
	// message nor the shared item may appear.
	boom := errors.New("connection reset")
	fs.insertSharedMessageFn = func(context.Context, store.ChatMessage, store.ChatSharedItem) error {
		return boom
	}

	_, err := svc.ShareToChat(context.Background(), teamID, "", ownerID, store.ShareKindRoadmap, "rdm_orig", "")
	if !errors.Is(err, boom) {
		t.Fatalf("expected store error, got %v", err)
	}
	if len(fs.messages) != 0 || len(fs.sharedItems) != 0 {
		t.Fatal("failed share must not leave partial rows")
	}
}

func TestShareRejectsUnknownKind(t *testing.T) {
	svc, _ := shareFixture(t)
	_, err := svc.ShareToChat(context.Background(), teamID, "", ownerID, "task", "tsk_1", "")
	if de, ok := err.(*DomainError); !ok || de.Status != http.StatusUnprocessableEntity {
		t.Fatalf("expected 422 for unknown kind, got %v", err)
	}
}

func TestShareRejectsNonOwner(t *testing.T) {
	svc, _ := shareFixture(t)
	_, err := svc.ShareToChat(context.Background(), teamID, "", viewerID, store.ShareKindRoadmap, "rdm_orig", "")
	if de, ok := err.(*DomainError); !ok || de.Status != http.StatusNotFound {
		t.Fatalf("expected 404 for foreign item, got %v", err)
	}
}

func TestShareRejectsChatCopy(t *testing.T) {
	svc, fs := shareFixture(t)
	fs.roadmaps["rdm_copy"] = store.Roadmap{
		ID: "rdm_copy", OwnerID: ownerID, Title: "Learn Go",
		OriginalRoadmapID: "rdm_orig", CopiedFromChat: true,
	}
	_, err := svc.ShareToChat(context.Background(), teamID, "", ownerID, store.ShareKindRoadmap, "rdm_copy", "")
	if de, ok := err.(*DomainError); !ok || de.Status != http.StatusUnprocessableEntity {
		t.Fatalf("expected 422 for re-shared copy, got %v", err)
	}
}

func TestShareRequiresTeamMembership(t *testing.T) {
	svc, _ := shareFixture(t)
	_, err := svc.ShareToChat(context.Background(), "team_other", "", ownerID, store.ShareKindRoadmap, "rdm_orig", "")
	if de, ok := err.(*DomainError); !ok || de.Status != http.StatusForbidden {
		t.Fatalf("expected 403 for non-member, got %v", err)
	}
}

func TestPostMessageRequiresBody(t *testing.T) {
	svc, _ := shareFixture(t)
	_, err := svc.PostMessage(context.Background(), teamID, "", viewerID, "   ")
	if de, ok := err.(*DomainError); !ok || de.Status != http.StatusUnprocessableEntity {
		t.Fatalf("expected 422 for blank body, got %v", err)
	}
}

func TestSharedRoadmapVisibleToTeamMembers(t *testing.T) {
	svc, fs := shareFixture(t)

	if _, err := svc.ShareToChat(context.Background(), teamID, "", ownerID, store.ShareKindRoadmap, "rdm_orig", ""); err != nil {
		t.Fatalf("ShareToChat: %v", err)
	}

	shared, err := fs.IsItemSharedWithUser(context.Background(), store.ShareKindRoadmap, "rdm_orig", viewerID)
	if err != nil || !shared {
		t.Fatalf("viewer should see the share: shared=%v err=%v", shared, err)
	}
	shared, err = fs.IsItemSharedWithUser(context.Background(), store.ShareKindRoadmap, "rdm_orig", "usr_stranger")
	if err != nil || shared {
		t.Fatalf("stranger must not see the share: shared=%v err=%v", shared, err)
	}
}
