package app

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"net/http"
	"strings"

	"lifeboard/api/internal/rbac"
	"lifeboard/api/internal/store"
	"lifeboard/api/internal/util"
)

var shareKinds = map[string]bool{
	store.ShareKindResource:     true,
	store.ShareKindNote:         true,
	store.ShareKindLearningPath: true,
	store.ShareKindRoadmap:      true,
}

// chatAttachment is the wire shape of a shared-item attachment on a message.
type chatAttachment struct {
	Type string             `json:"type"`
	Item chatAttachmentItem `json:"item"`
}

type chatAttachmentItem struct {
	ID    string `json:"id"`
	Title string `json:"title"`
}

func (s *Service) PostMessage(ctx context.Context, teamID, projectID, userID, body string) (map[string]any, error) {
	if err := s.requireTeamAction(ctx, teamID, userID, rbac.ActionPost); err != nil {
		return nil, err
	}
	body = strings.TrimSpace(body)
	if body == "" {
		return nil, domainError(http.StatusUnprocessableEntity, "VALIDATION_ERROR", "body is required")
	}
	message := store.ChatMessage{
		ID:        util.NewID("msg"),
		TeamID:    teamID,
		ProjectID: projectID,
		AuthorID:  userID,
		Body:      body,
	}
	if err := s.store.InsertMessage(ctx, message); err != nil {
		return nil, err
	}
	s.publishChatEvent(ctx, teamID, "message", message.ID)
	return map[string]any{"message": messagePayload(message)}, nil
}

// ShareToChat posts a message carrying a personal item into a team chat. The
// message row and the shared-item row land in one transaction, so a share
// either fully exists or not at all. Only the item's owner may share it.
func (s *Service) ShareToChat(ctx context.Context, teamID, projectID, userID, kind, itemID, body string) (map[string]any, error) {
	if !shareKinds[kind] {
		return nil, domainError(http.StatusUnprocessableEntity, "VALIDATION_ERROR",
			fmt.Sprintf("unknown share kind %q", kind))
	}
	if itemID == "" {
		return nil, domainError(http.StatusUnprocessableEntity, "VALIDATION_ERROR", "itemId is required")
	}
	if err := s.requireTeamAction(ctx, teamID, userID, rbac.ActionShare); err != nil {
		return nil, err
	}

	title, err := s.sharedItemTitle(ctx, kind, itemID, userID)
	if err != nil {
		return nil, err
	}

	attachments, err := json.Marshal([]chatAttachment{{Type: kind, Item: chatAttachmentItem{ID: itemID, Title: title}}})
	if err != nil {
		return nil, fmt.Errorf("marshal attachment: %w", err)
	}

	body = strings.TrimSpace(body)
	if body == "" {
		body = fmt.Sprintf("Shared %s: %s", shareKindLabel(kind), title)
	}

	message := store.ChatMessage{
		ID:          util.NewID("msg"),
		TeamID:      teamID,
		ProjectID:   projectID,
		AuthorID:    userID,
		Body:        body,
		Attachments: string(attachments),
	}
	item := store.ChatSharedItem{
		ID:        util.NewID("shr"),
		MessageID: message.ID,
		TeamID:    teamID,
		ProjectID: projectID,
		ItemKind:  kind,
		ItemID:    itemID,
		SharedBy:  userID,
	}
	if err := s.store.InsertSharedMessage(ctx, message, item); err != nil {
		return nil, err
	}
	s.publishChatEvent(ctx, teamID, "share", message.ID)
	return map[string]any{
		"message":    messagePayload(message),
		"sharedItem": sharedItemPayload(item),
	}, nil
}

// publishChatEvent tells connected clients to refetch. Best effort: the
// message is already persisted, so publish failures are only logged.
func (s *Service) publishChatEvent(ctx context.Context, teamID, eventType, messageID string) {
	if s.events == nil {
		return
	}
	payload, err := json.Marshal(map[string]string{
		"type":      eventType,
		"teamId":    teamID,
		"messageId": messageID,
	})
	if err != nil {
		return
	}
	if err := s.events.PublishChatEvent(ctx, teamID, payload); err != nil {
		log.Printf("publish chat event for team %s: %v", teamID, err)
	}
}

// sharedItemTitle checks the item exists and belongs to the sharer, and
// returns its display title for the attachment payload.
func (s *Service) sharedItemTitle(ctx context.Context, kind, itemID, userID string) (string, error) {
	notOwned := domainError(http.StatusNotFound, "NOT_FOUND", "Item not found")

	var ownerID, title string
	var err error
	switch kind {
	case store.ShareKindResource:
		var resource store.Resource
		resource, err = s.store.GetResource(ctx, itemID)
		ownerID, title = resource.OwnerID, resource.Title
	case store.ShareKindNote:
		var note store.Note
		note, err = s.store.GetNote(ctx, itemID)
		ownerID, title = note.OwnerID, note.Title
	case store.ShareKindLearningPath:
		var path store.LearningPath
		path, err = s.store.GetLearningPath(ctx, itemID)
		ownerID, title = path.OwnerID, path.Title
	case store.ShareKindRoadmap:
		var roadmap store.Roadmap
		roadmap, err = s.store.GetRoadmap(ctx, itemID)
		ownerID, title = roadmap.OwnerID, roadmap.Title
		if err == nil && roadmap.CopiedFromChat {
			// Re-sharing a chat copy would fork the copy chain.
			return "", domainError(http.StatusUnprocessableEntity, "VALIDATION_ERROR",
				"a copied roadmap cannot be shared")
		}
	}
	if errors.Is(err, sql.ErrNoRows) {
		return "", notOwned
	}
	if err != nil {
		return "", err
	}
	if ownerID != userID {
		return "", notOwned
	}
	return title, nil
}

func (s *Service) ListChatMessages(ctx context.Context, teamID, projectID, userID string, limit int) (map[string]any, error) {
	if err := s.requireTeamAction(ctx, teamID, userID, rbac.ActionRead); err != nil {
		return nil, err
	}
	if limit <= 0 || limit > 200 {
		limit = 50
	}
	messages, err := s.store.ListMessages(ctx, teamID, projectID, limit)
	if err != nil {
		return nil, err
	}
	items := make([]map[string]any, 0, len(messages))
	for _, message := range messages {
		items = append(items, messagePayload(message))
	}
	return map[string]any{"messages": items}, nil
}

func (s *Service) ListSharedItems(ctx context.Context, teamID, userID string) (map[string]any, error) {
	if err := s.requireTeamAction(ctx, teamID, userID, rbac.ActionRead); err != nil {
		return nil, err
	}
	shared, err := s.store.ListSharedItems(ctx, teamID)
	if err != nil {
		return nil, err
	}
	items := make([]map[string]any, 0, len(shared))
	for _, item := range shared {
		items = append(items, sharedItemPayload(item))
	}
	return map[string]any{"sharedItems": items}, nil
}

func (s *Service) MarkTeamRead(ctx context.Context, teamID, userID string) error {
	if err := s.requireTeamAction(ctx, teamID, userID, rbac.ActionRead); err != nil {
		return err
	}
	return s.store.MarkTeamRead(ctx, teamID, userID)
}

func (s *Service) UnreadCounts(ctx context.Context, userID string) (map[string]any, error) {
	counts, err := s.store.UnreadCounts(ctx, userID)
	if err != nil {
		return nil, err
	}
	items := make([]map[string]any, 0, len(counts))
	for _, count := range counts {
		items = append(items, map[string]any{
			"teamId": count.TeamID,
			"count":  count.Count,
		})
	}
	return map[string]any{"unread": items}, nil
}

func messagePayload(message store.ChatMessage) map[string]any {
	payload := map[string]any{
		"id":        message.ID,
		"teamId":    message.TeamID,
		"authorId":  message.AuthorID,
		"body":      message.Body,
		"createdAt": message.CreatedAt,
	}
	if message.ProjectID != "" {
		payload["projectId"] = message.ProjectID
	}
	if message.AuthorName != "" {
		payload["authorName"] = message.AuthorName
	}
	if message.Attachments != "" {
		var attachments []chatAttachment
		if err := json.Unmarshal([]byte(message.Attachments), &attachments); err == nil {
			payload["attachments"] = attachments
		}
	}
	return payload
}

func sharedItemPayload(item store.ChatSharedItem) map[string]any {
	payload := map[string]any{
		"id":        item.ID,
		"messageId": item.MessageID,
		"teamId":    item.TeamID,
		"itemKind":  item.ItemKind,
		"itemId":    item.ItemID,
		"sharedBy":  item.SharedBy,
		"createdAt": item.CreatedAt,
	}
	if item.ProjectID != "" {
		payload["projectId"] = item.ProjectID
	}
	return payload
}

func shareKindLabel(kind string) string {
	switch kind {
	case store.ShareKindLearningPath:
		return "a learning path"
	case store.ShareKindResource:
		return "a resource"
	case store.ShareKindNote:
		return "a note"
	case store.ShareKindRoadmap:
		return "a roadmap"
	}
	return "an item"
}
