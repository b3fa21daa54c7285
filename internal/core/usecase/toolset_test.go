package usecase

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/dmpolyakov/ai-drive-agent/internal/core/domain"
)

func newTestToolset(drive *fakeDriveStore) *Toolset {
	return NewToolset(drive, &fakePlanner{}, &fakeAgentMemoryStore{})
}

func TestValidateRejectsUnknownTool(t *testing.T) {
	tools := newTestToolset(&fakeDriveStore{})

	err := tools.Validate(domain.ToolCall{Name: "format_drive"})
	if !errors.Is(err, domain.ErrInvalidInput) {
		t.Fatalf("expected invalid input, got %v", err)
	}
}

func TestValidateRejectsMissingRequiredArgument(t *testing.T) {
	tools := newTestToolset(&fakeDriveStore{})

	cases := []domain.ToolCall{
		{Name: "delete_item", Args: map[string]any{}},
		{Name: "create_document", Args: map[string]any{"folder_id": "f-1"}},
		{Name: "write_document_content", Args: map[string]any{"document_id": "d-1"}},
		{Name: "delete_item", Args: map[string]any{"item_id": "   "}},
	}
	for _, call := range cases {
		if err := tools.Validate(call); !errors.Is(err, domain.ErrInvalidInput) {
			t.Fatalf("%s: expected invalid input, got %v", call.Name, err)
		}
	}
}

func TestValidateRejectsWrongArgumentType(t *testing.T) {
	tools := newTestToolset(&fakeDriveStore{})

	if err := tools.Validate(domain.ToolCall{
		Name: "search_folder",
		Args: map[string]any{"query": 42},
	}); !errors.Is(err, domain.ErrInvalidInput) {
		t.Fatalf("expected invalid input for numeric query, got %v", err)
	}
	if err := tools.Validate(domain.ToolCall{
		Name: "search_folder",
		Args: map[string]any{"query": "report", "max_results": "many"},
	}); !errors.Is(err, domain.ErrInvalidInput) {
		t.Fatalf("expected invalid input for non-numeric max_results, got %v", err)
	}
}

func TestValidateAcceptsCoercibleArguments(t *testing.T) {
	tools := newTestToolset(&fakeDriveStore{})

	// JSON numbers decode as float64; planner sometimes quotes them.
	calls := []domain.ToolCall{
		{Name: "search_folder", Args: map[string]any{"query": "report", "max_results": float64(5)}},
		{Name: "search_folder", Args: map[string]any{"query": "report", "max_results": "5"}},
		{Name: "list_folder_contents", Args: nil},
	}
	for _, call := range calls {
		if err := tools.Validate(call); err != nil {
			t.Fatalf("%s: unexpected validation error %v", call.Name, err)
		}
	}
}

func TestSideEffectClassification(t *testing.T) {
	tools := newTestToolset(&fakeDriveStore{})

	sideEffecting := []string{"create_folder", "delete_item", "create_document", "write_document_content", "append_document_content", "save_memory_note"}
	for _, name := range sideEffecting {
		if !tools.SideEffecting(name) {
			t.Fatalf("%s should be side-effecting", name)
		}
	}
	readOnly := []string{"search_folder", "list_folder_contents", "read_document_content", "research_topic", "recall_memory"}
	for _, name := range readOnly {
		if tools.SideEffecting(name) {
			t.Fatalf("%s should be read-only", name)
		}
	}
	for _, name := range []string{"delete_item", "write_document_content"} {
		if !tools.Destructive(name) {
			t.Fatalf("%s should be destructive", name)
		}
	}
	if tools.Destructive("create_folder") {
		t.Fatalf("create_folder should not be destructive")
	}
}

func TestExecuteWrapsToolFailureInResult(t *testing.T) {
	drive := &failingDriveStore{failFolder: "Broken"}
	tools := NewToolset(drive, &fakePlanner{}, &fakeAgentMemoryStore{})

	result := tools.Execute(context.Background(), domain.Credentials{UserID: "u-1"}, domain.ToolCall{
		Name: "create_folder",
		Args: map[string]any{"name": "Broken"},
	})
	if result.Status != domain.ToolStatusError {
		t.Fatalf("expected error status, got %q", result.Status)
	}
	if !strings.Contains(result.Output, "error") {
		t.Fatalf("expected error payload, got %q", result.Output)
	}
}

func TestExecuteSaveMemoryNote(t *testing.T) {
	memory := &fakeAgentMemoryStore{}
	tools := NewToolset(&fakeDriveStore{}, &fakePlanner{}, memory)

	result := tools.Execute(context.Background(), domain.Credentials{UserID: "u-1"}, domain.ToolCall{
		Name: "save_memory_note",
		Args: map[string]any{"topic": "preferences", "content": "prefers markdown tables"},
	})
	if result.Status != domain.ToolStatusOK {
		t.Fatalf("expected ok, got %q with %q", result.Status, result.Output)
	}
	if memory.summaries["preferences"] != "prefers markdown tables" {
		t.Fatalf("expected note stored, got %#v", memory.summaries)
	}
}

func TestDescribeListsEveryTool(t *testing.T) {
	tools := newTestToolset(&fakeDriveStore{})
	catalog := tools.Describe()

	for _, name := range []string{
		"search_folder", "create_folder", "list_folder_contents", "delete_item",
		"create_document", "write_document_content", "append_document_content",
		"read_document_content", "research_topic", "recall_memory", "save_memory_note",
	} {
		if !strings.Contains(catalog, name) {
			t.Fatalf("catalog missing %s:\n%s", name, catalog)
		}
	}
}
