package completion

import "testing"

func TestEnsureSystemPrepends(t *testing.T) {
	messages := []Message{{Role: RoleUser, Content: "hi"}}

	out := EnsureSystem(messages, "be brief")

	if len(out) != 2 {
		t.Fatalf("expected 2 messages, got %d", len(out))
	}

	if out[0].Role != RoleSystem || out[0].Content != "be brief" {
		t.Fatalf("expected prepended system message, got %+v", out[0])
	}

	if out[1].Content != "hi" {
		t.Fatalf("expected original message preserved, got %+v", out[1])
	}
}

func TestEnsureSystemKeepsExisting(t *testing.T) {
	messages := []Message{
		{Role: RoleSystem, Content: "you are a pirate"},
		{Role: RoleUser, Content: "hi"},
	}

	out := EnsureSystem(messages, "be brief")

	if len(out) != 2 {
		t.Fatalf("expected 2 messages, got %d", len(out))
	}

	if out[0].Content != "you are a pirate" {
		t.Fatalf("expected caller system message kept, got %+v", out[0])
	}
}
