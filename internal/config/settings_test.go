package config

import (
	"errors"
	"testing"

	"github.com/w-h-a/spinach/fault"
)

func TestSnapshotIsolation(t *testing.T) {
	settings := NewSettings("http://localhost:1234/v1", 3, 0.5)

	before := settings.Snapshot()

	topK := 7
	if _, err := settings.Update(Patch{TopK: &topK}); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if before.TopK != 3 {
		t.Fatalf("expected earlier snapshot unchanged, got top_k %d", before.TopK)
	}

	if after := settings.Snapshot(); after.TopK != 7 {
		t.Fatalf("expected top_k 7 after update, got %d", after.TopK)
	}
}

func TestUpdateLeavesOmittedFields(t *testing.T) {
	settings := NewSettings("http://localhost:1234/v1", 3, 0.5)

	threshold := 0.8
	updated, err := settings.Update(Patch{Threshold: &threshold})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if updated.CompletionURL != "http://localhost:1234/v1" || updated.TopK != 3 {
		t.Fatalf("expected untouched fields preserved, got %+v", updated)
	}

	if updated.Threshold != 0.8 {
		t.Fatalf("expected threshold 0.8, got %v", updated.Threshold)
	}
}

func TestUpdateRejectsBadValues(t *testing.T) {
	settings := NewSettings("http://localhost:1234/v1", 3, 0.5)

	empty := ""
	if _, err := settings.Update(Patch{CompletionURL: &empty}); !errors.Is(err, fault.ErrConfiguration) {
		t.Fatalf("expected configuration error for empty url, got %v", err)
	}

	zero := 0
	if _, err := settings.Update(Patch{TopK: &zero}); !errors.Is(err, fault.ErrConfiguration) {
		t.Fatalf("expected configuration error for zero top_k, got %v", err)
	}

	over := 1.5
	if _, err := settings.Update(Patch{Threshold: &over}); !errors.Is(err, fault.ErrConfiguration) {
		t.Fatalf("expected configuration error for threshold over 1, got %v", err)
	}

	if got := settings.Snapshot(); got.TopK != 3 || got.Threshold != 0.5 {
		t.Fatalf("expected settings unchanged after rejected updates, got %+v", got)
	}
}

func TestUpdateRejectsWholePatch(t *testing.T) {
	settings := NewSettings("http://localhost:1234/v1", 3, 0.5)

	url := "http://other:9999/v1"
	zero := 0
	if _, err := settings.Update(Patch{CompletionURL: &url, TopK: &zero}); !errors.Is(err, fault.ErrConfiguration) {
		t.Fatalf("expected configuration error, got %v", err)
	}

	if got := settings.Snapshot(); got.CompletionURL != "http://localhost:1234/v1" {
		t.Fatalf("expected url untouched after rejected patch, got %q", got.CompletionURL)
	}
}
