package history

import (
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"testing"
)

func sampleSnapshot(note string) Snapshot {
	return Snapshot{
		Title:       "Learn Go",
		Description: note,
		Steps: []StepSnapshot{
			{Order: 1, Title: "Tour of Go"},
			{Order: 2, Title: "Build a CLI", Body: "something small"},
		},
	}
}

func TestRecordAndReadBack(t *testing.T) {
	svc := New(t.TempDir())

	commit, err := svc.Record("rm_1", sampleSnapshot("first"), "Ada", "Snapshot before sync")
	if err != nil {
		t.Fatalf("Record() error = %v", err)
	}
	if commit.Hash == "" {
		t.Fatal("expected commit hash")
	}

	got, err := svc.SnapshotAt("rm_1", commit.Hash)
	if err != nil {
		t.Fatalf("SnapshotAt() error = %v", err)
	}
	if got.Description != "first" {
		t.Fatalf("unexpected snapshot: %+v", got)
	}
	if len(got.Steps) != 2 || got.Steps[1].Body != "something small" {
		t.Fatalf("steps not preserved: %+v", got.Steps)
	}
}

func TestRecordInitializesRepo(t *testing.T) {
	dir := t.TempDir()
	svc := New(dir)

	if _, err := svc.Record("rm_new", sampleSnapshot(""), "Ada", "First snapshot"); err != nil {
		t.Fatalf("Record() error = %v", err)
	}
	if _, err := os.Stat(filepath.Join(dir, "rm_new")); err != nil {
		t.Fatalf("repo directory missing: %v", err)
	}
}

func TestHistoryOrderAndLimit(t *testing.T) {
	svc := New(t.TempDir())

	for i := 0; i < 5; i++ {
		if _, err := svc.Record("rm_1", sampleSnapshot(fmt.Sprintf("v%d", i)), "Ada", fmt.Sprintf("Snapshot %d", i)); err != nil {
			t.Fatalf("Record() %d error = %v", i, err)
		}
	}

	history, err := svc.History("rm_1", 3)
	if err != nil {
		t.Fatalf("History() error = %v", err)
	}
	if len(history) != 3 {
		t.Fatalf("expected 3 entries, got %d", len(history))
	}
	if history[0].Message != "Snapshot 4" {
		t.Fatalf("expected newest first, got %q", history[0].Message)
	}
}

func TestHistoryForUnknownRoadmapIsEmpty(t *testing.T) {
	svc := New(t.TempDir())

	history, err := svc.History("rm_missing", 10)
	if err != nil {
		t.Fatalf("History() error = %v", err)
	}
	if len(history) != 0 {
		t.Fatalf("expected no entries, got %d", len(history))
	}
}

func TestConcurrentRecordSameRoadmap(t *testing.T) {
	svc := New(t.TempDir())

	const writers = 10
	var wg sync.WaitGroup
	errCh := make(chan error, writers)
	for i := 0; i < writers; i++ {
		wg.Add(1)
		go func(idx int) {
			defer wg.Done()
			snap := sampleSnapshot(fmt.Sprintf("writer-%02d", idx))
			if _, err := svc.Record("rm_1", snap, "Ada", fmt.Sprintf("Commit %02d", idx)); err != nil {
				errCh <- err
			}
		}(i)
	}
	wg.Wait()
	close(errCh)

	for err := range errCh {
		t.Fatalf("Record() concurrent error = %v", err)
	}

	history, err := svc.History("rm_1", 0)
	if err != nil {
		t.Fatalf("History() error = %v", err)
	}
	if len(history) != writers {
		t.Fatalf("expected %d commits, got %d", writers, len(history))
	}
}
