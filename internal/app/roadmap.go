package app

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log"
	"net/http"
	"strings"
	"time"

	"lifeboard/api/internal/export"
	"lifeboard/api/internal/history"
	"lifeboard/api/internal/search"
	"lifeboard/api/internal/store"
	"lifeboard/api/internal/util"
)

// StepInput is one step of a roadmap create request.
type StepInput struct {
	Title string      `json:"title"`
	Body  string      `json:"body"`
	Links []LinkInput `json:"links"`
}

type LinkInput struct {
	TargetKind string `json:"targetKind"`
	TargetID   string `json:"targetId"`
}

var linkKinds = map[string]bool{
	store.LinkKindNote:     true,
	store.LinkKindPath:     true,
	store.LinkKindResource: true,
	store.LinkKindGoal:     true,
}

func (s *Service) CreateRoadmap(ctx context.Context, userID, title, description string, steps []StepInput) (map[string]any, error) {
	title = strings.TrimSpace(title)
	if title == "" {
		return nil, domainError(http.StatusUnprocessableEntity, "VALIDATION_ERROR", "title is required")
	}
	for i, step := range steps {
		if strings.TrimSpace(step.Title) == "" {
			return nil, domainError(http.StatusUnprocessableEntity, "VALIDATION_ERROR",
				fmt.Sprintf("step %d: title is required", i+1))
		}
		for _, link := range step.Links {
			if !linkKinds[link.TargetKind] {
				return nil, domainError(http.StatusUnprocessableEntity, "VALIDATION_ERROR",
					fmt.Sprintf("step %d: unknown link kind %q", i+1, link.TargetKind))
			}
			if link.TargetID == "" {
				return nil, domainError(http.StatusUnprocessableEntity, "VALIDATION_ERROR",
					fmt.Sprintf("step %d: link target id is required", i+1))
			}
		}
	}

	roadmap := store.Roadmap{
		ID:          util.NewID("rdm"),
		OwnerID:     userID,
		Title:       title,
		Description: strings.TrimSpace(description),
	}
	if err := s.store.InsertRoadmap(ctx, roadmap); err != nil {
		return nil, err
	}
	for i, step := range steps {
		row := store.RoadmapStep{
			ID:        util.NewID("step"),
			RoadmapID: roadmap.ID,
			SortOrder: i + 1,
			Title:     strings.TrimSpace(step.Title),
			Body:      step.Body,
		}
		for _, link := range step.Links {
			row.Links = append(row.Links, store.StepLink{
				ID:         util.NewID("lnk"),
				StepID:     row.ID,
				TargetKind: link.TargetKind,
				TargetID:   link.TargetID,
			})
		}
		if err := s.store.InsertRoadmapStep(ctx, row); err != nil {
			return nil, err
		}
	}

	created, err := s.store.GetRoadmap(ctx, roadmap.ID)
	if err != nil {
		return nil, err
	}
	if s.search != nil {
		s.search.IndexRoadmap(search.RoadmapRecord{ID: created.ID, Title: created.Title, Description: created.Description, OwnerID: created.OwnerID})
	}
	return map[string]any{"roadmap": roadmapPayload(created)}, nil
}

func (s *Service) ListUserRoadmaps(ctx context.Context, userID string) (map[string]any, error) {
	roadmaps, err := s.store.ListRoadmaps(ctx, userID)
	if err != nil {
		return nil, err
	}
	items := make([]map[string]any, 0, len(roadmaps))
	for _, roadmap := range roadmaps {
		items = append(items, roadmapPayload(roadmap))
	}
	return map[string]any{"roadmaps": items}, nil
}

func (s *Service) UpdateRoadmap(ctx context.Context, roadmapID, userID, title, description string) (map[string]any, error) {
	title = strings.TrimSpace(title)
	if title == "" {
		return nil, domainError(http.StatusUnprocessableEntity, "VALIDATION_ERROR", "title is required")
	}
	ok, err := s.store.UpdateRoadmap(ctx, roadmapID, userID, title, strings.TrimSpace(description))
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, domainError(http.StatusNotFound, "NOT_FOUND", "Roadmap not found")
	}
	updated, err := s.store.GetRoadmap(ctx, roadmapID)
	if err != nil {
		return nil, err
	}
	if s.search != nil {
		s.search.IndexRoadmap(search.RoadmapRecord{ID: updated.ID, Title: updated.Title, Description: updated.Description, OwnerID: updated.OwnerID})
	}
	return map[string]any{"roadmap": roadmapPayload(updated)}, nil
}

// ResolveRoadmapView decides what the caller sees for a roadmap id. The owner
// always sees the original. Anyone else must have had the roadmap shared into
// a team they belong to; those viewers never see the original directly but get
// a private copy, materialized on first open and re-synced from the original
// whenever the original has moved ahead of the copy.
func (s *Service) ResolveRoadmapView(ctx context.Context, roadmapID, userID string) (map[string]any, error) {
	roadmap, err := s.store.GetRoadmap(ctx, roadmapID)
	if err != nil {
		return nil, err
	}

	if roadmap.OwnerID == userID {
		if roadmap.CopiedFromChat && roadmap.OriginalRoadmapID != "" {
			// Opening one's own chat copy by id still re-syncs it.
			original, err := s.store.GetRoadmap(ctx, roadmap.OriginalRoadmapID)
			switch {
			case errors.Is(err, sql.ErrNoRows):
				// Original deleted; the copy lives on as-is.
			case err != nil:
				return nil, err
			default:
				synced, err := s.reconcileCopy(ctx, original, roadmap)
				if err != nil {
					// A failed sync still serves the stale copy.
					log.Printf("sync roadmap copy %s: %v", roadmap.ID, err)
				} else {
					roadmap = synced
				}
			}
			return s.roadmapViewPayload(ctx, roadmap, "viewer", false)
		}
		return s.roadmapViewPayload(ctx, roadmap, "owner", false)
	}

	// A viewer addressing someone else's copy gets nothing; copies are
	// private to their owner. Only shared originals resolve.
	if roadmap.CopiedFromChat {
		return nil, domainError(http.StatusNotFound, "NOT_FOUND", "Roadmap not found")
	}

	shared, err := s.store.IsItemSharedWithUser(ctx, store.ShareKindRoadmap, roadmap.ID, userID)
	if err != nil {
		return nil, err
	}
	if !shared {
		return nil, domainError(http.StatusNotFound, "NOT_FOUND", "Roadmap not found")
	}

	copyRoadmap, created, err := s.materializeCopy(ctx, roadmap, userID)
	if err != nil {
		// Copying failed; the shared original is still readable.
		log.Printf("materialize roadmap copy of %s for %s: %v", roadmap.ID, userID, err)
		return s.roadmapViewPayload(ctx, roadmap, "viewer", false)
	}
	if !created {
		synced, err := s.reconcileCopy(ctx, roadmap, copyRoadmap)
		if err != nil {
			log.Printf("sync roadmap copy %s: %v", copyRoadmap.ID, err)
		} else {
			copyRoadmap = synced
		}
	}
	return s.roadmapViewPayload(ctx, copyRoadmap, "viewer", created)
}

// materializeCopy ensures the viewer owns a chat copy of the original,
// creating one with cloned steps when none exists. The store's conflict
// handling makes this safe under concurrent first opens: exactly one copy per
// (viewer, original) pair ever exists.
func (s *Service) materializeCopy(ctx context.Context, original store.Roadmap, userID string) (store.Roadmap, bool, error) {
	existing, err := s.store.FindChatCopy(ctx, userID, original.ID)
	if err != nil {
		return store.Roadmap{}, false, err
	}
	if existing != nil {
		return *existing, false, nil
	}

	steps, err := s.store.ListRoadmapSteps(ctx, original.ID)
	if err != nil {
		return store.Roadmap{}, false, err
	}

	copyID := util.NewID("rdm")
	copyRoadmap := store.Roadmap{
		ID:                copyID,
		OwnerID:           userID,
		Title:             original.Title,
		Description:       original.Description,
		OriginalRoadmapID: original.ID,
		CopiedFromChat:    true,
	}

	materialized, created, err := s.store.InsertRoadmapCopy(ctx, copyRoadmap, s.cloneSteps(copyID, steps))
	if err != nil {
		return store.Roadmap{}, false, err
	}
	if created && s.search != nil {
		s.search.IndexRoadmap(search.RoadmapRecord{ID: materialized.ID, Title: materialized.Title, Description: materialized.Description, OwnerID: materialized.OwnerID})
	}
	return materialized, created, nil
}

// reconcileCopy brings a chat copy up to date with its original. The copy is
// overwritten only when the original is strictly newer; equal timestamps mean
// nothing to do, and a copy the viewer has pushed ahead locally is never
// touched by an older original. Before overwriting, the copy's current state
// is committed to the snapshot trail so local edits stay recoverable.
func (s *Service) reconcileCopy(ctx context.Context, original, copyRoadmap store.Roadmap) (store.Roadmap, error) {
	if !original.EffectiveUpdatedAt().After(copyRoadmap.EffectiveUpdatedAt()) {
		return copyRoadmap, nil
	}

	if s.history != nil {
		copySteps, err := s.store.ListRoadmapSteps(ctx, copyRoadmap.ID)
		if err != nil {
			return store.Roadmap{}, err
		}
		snap := history.Snapshot{
			Title:       copyRoadmap.Title,
			Description: copyRoadmap.Description,
			Steps:       stepsToSnapshot(copySteps),
		}
		message := fmt.Sprintf("before sync from original at %s", original.EffectiveUpdatedAt().UTC().Format(time.RFC3339))
		if _, err := s.history.Record(copyRoadmap.ID, snap, copyRoadmap.OwnerID, message); err != nil {
			return store.Roadmap{}, fmt.Errorf("snapshot copy %s: %w", copyRoadmap.ID, err)
		}
	}

	originalSteps, err := s.store.ListRoadmapSteps(ctx, original.ID)
	if err != nil {
		return store.Roadmap{}, err
	}
	// Stamping updated_at to the original's effective timestamp keeps the
	// comparison stable: the same original state never re-triggers a sync.
	err = s.store.ReplaceRoadmapContent(ctx, copyRoadmap.ID, original.Title, original.Description,
		s.cloneSteps(copyRoadmap.ID, originalSteps), original.EffectiveUpdatedAt())
	if err != nil {
		return store.Roadmap{}, err
	}

	refreshed, err := s.store.GetRoadmap(ctx, copyRoadmap.ID)
	if err != nil {
		return store.Roadmap{}, err
	}
	if s.search != nil {
		s.search.IndexRoadmap(search.RoadmapRecord{ID: refreshed.ID, Title: refreshed.Title, Description: refreshed.Description, OwnerID: refreshed.OwnerID})
	}
	return refreshed, nil
}

// cloneSteps rebuilds a step set under a new roadmap with fresh ids. Links
// reference the sharer's private entities, so they are carried over only when
// the deployment opts in.
func (s *Service) cloneSteps(roadmapID string, steps []store.RoadmapStep) []store.RoadmapStep {
	cloned := make([]store.RoadmapStep, 0, len(steps))
	for _, step := range steps {
		row := store.RoadmapStep{
			ID:        util.NewID("step"),
			RoadmapID: roadmapID,
			SortOrder: step.SortOrder,
			Title:     step.Title,
			Body:      step.Body,
		}
		if s.cfg.CopyStepLinks {
			for _, link := range step.Links {
				row.Links = append(row.Links, store.StepLink{
					ID:         util.NewID("lnk"),
					StepID:     row.ID,
					TargetKind: link.TargetKind,
					TargetID:   link.TargetID,
				})
			}
		}
		cloned = append(cloned, row)
	}
	return cloned
}

func (s *Service) roadmapViewPayload(ctx context.Context, roadmap store.Roadmap, role string, justCopied bool) (map[string]any, error) {
	steps, err := s.store.ListRoadmapSteps(ctx, roadmap.ID)
	if err != nil {
		return nil, err
	}
	stepItems := make([]map[string]any, 0, len(steps))
	for _, step := range steps {
		links := make([]map[string]any, 0, len(step.Links))
		for _, link := range step.Links {
			links = append(links, map[string]any{
				"id":         link.ID,
				"targetKind": link.TargetKind,
				"targetId":   link.TargetID,
			})
		}
		stepItems = append(stepItems, map[string]any{
			"id":        step.ID,
			"sortOrder": step.SortOrder,
			"title":     step.Title,
			"body":      step.Body,
			"links":     links,
		})
	}
	return map[string]any{
		"roadmap":    roadmapPayload(roadmap),
		"steps":      stepItems,
		"role":       role,
		"justCopied": justCopied,
	}, nil
}

func (s *Service) ExportRoadmapPDF(ctx context.Context, roadmapID, userID, userName string) (*export.Result, error) {
	if s.exporter == nil {
		return nil, domainError(http.StatusServiceUnavailable, "EXPORT_UNAVAILABLE", "PDF export is not available")
	}
	roadmap, err := s.store.GetRoadmap(ctx, roadmapID)
	if err != nil {
		return nil, err
	}
	if roadmap.OwnerID != userID {
		return nil, domainError(http.StatusNotFound, "NOT_FOUND", "Roadmap not found")
	}
	steps, err := s.store.ListRoadmapSteps(ctx, roadmap.ID)
	if err != nil {
		return nil, err
	}

	doc := export.Roadmap{
		Title:       roadmap.Title,
		Description: roadmap.Description,
		Owner:       userName,
		UpdatedAt:   roadmap.EffectiveUpdatedAt(),
	}
	for _, step := range steps {
		doc.Steps = append(doc.Steps, export.Step{
			Order: step.SortOrder,
			Title: step.Title,
			Body:  step.Body,
		})
	}

	result, err := s.exporter.ExportPDF(doc)
	if errors.Is(err, export.ErrPDFDependencyMissing) {
		return nil, domainError(http.StatusServiceUnavailable, "EXPORT_UNAVAILABLE", "PDF export is not available")
	}
	if err != nil {
		return nil, err
	}
	return result, nil
}

func (s *Service) RoadmapHistory(ctx context.Context, roadmapID, userID string, limit int) (map[string]any, error) {
	roadmap, err := s.store.GetRoadmap(ctx, roadmapID)
	if err != nil {
		return nil, err
	}
	if roadmap.OwnerID != userID {
		return nil, domainError(http.StatusNotFound, "NOT_FOUND", "Roadmap not found")
	}

	commits := make([]map[string]any, 0)
	if s.history != nil {
		infos, err := s.history.History(roadmap.ID, limit)
		if err != nil {
			return nil, err
		}
		for _, info := range infos {
			commits = append(commits, map[string]any{
				"hash":      info.Hash,
				"message":   info.Message,
				"author":    info.Author,
				"createdAt": info.CreatedAt,
			})
		}
	}
	return map[string]any{"commits": commits}, nil
}

// RoadmapSnapshot returns the content recorded at one history commit.
func (s *Service) RoadmapSnapshot(ctx context.Context, roadmapID, hash, userID string) (map[string]any, error) {
	roadmap, err := s.store.GetRoadmap(ctx, roadmapID)
	if err != nil {
		return nil, err
	}
	if roadmap.OwnerID != userID {
		return nil, domainError(http.StatusNotFound, "NOT_FOUND", "Roadmap not found")
	}
	if s.history == nil {
		return nil, domainError(http.StatusNotFound, "NOT_FOUND", "Snapshot not found")
	}
	snap, err := s.history.SnapshotAt(roadmap.ID, hash)
	if err != nil {
		return nil, domainError(http.StatusNotFound, "NOT_FOUND", "Snapshot not found")
	}
	return map[string]any{"snapshot": snap}, nil
}

func roadmapPayload(roadmap store.Roadmap) map[string]any {
	payload := map[string]any{
		"id":             roadmap.ID,
		"ownerId":        roadmap.OwnerID,
		"title":          roadmap.Title,
		"description":    roadmap.Description,
		"copiedFromChat": roadmap.CopiedFromChat,
		"createdAt":      roadmap.CreatedAt,
		"updatedAt":      roadmap.UpdatedAt,
	}
	if roadmap.OriginalRoadmapID != "" {
		payload["originalRoadmapId"] = roadmap.OriginalRoadmapID
	}
	return payload
}

func stepsToSnapshot(steps []store.RoadmapStep) []history.StepSnapshot {
	snaps := make([]history.StepSnapshot, 0, len(steps))
	for _, step := range steps {
		snaps = append(snaps, history.StepSnapshot{
			Order: step.SortOrder,
			Title: step.Title,
			Body:  step.Body,
		})
	}
	return snaps
}
