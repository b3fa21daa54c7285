package usecase

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"

	"github.com/dmpolyakov/ai-drive-agent/internal/core/domain"
	"github.com/dmpolyakov/ai-drive-agent/internal/core/ports"
)

const (
	toolSearchFolder   = "search_folder"
	toolCreateFolder   = "create_folder"
	toolListFolder     = "list_folder_contents"
	toolDeleteItem     = "delete_item"
	toolCreateDocument = "create_document"
	toolWriteDocument  = "write_document_content"
	toolAppendDocument = "append_document_content"
	toolReadDocument   = "read_document_content"
	toolResearchTopic  = "research_topic"
	toolRecallMemory   = "recall_memory"
	toolSaveMemoryNote = "save_memory_note"
)

const (
	argString = "string"
	argInt    = "integer"
)

type argSpec struct {
	name        string
	kind        string
	description string
	required    bool
}

type toolSpec struct {
	name        string
	description string
	args        []argSpec
	sideEffect  bool
	destructive bool
	run         func(ctx context.Context, creds domain.Credentials, args map[string]any) (string, error)
}

// Toolset is the closed registry of operations the planner may request.
// Every variant is known at compile time; arguments are validated against
// the declared shape before any dispatch happens.
type Toolset struct {
	drive   ports.DriveStore
	planner ports.Planner
	memory  ports.MemoryStore

	specs map[string]toolSpec
	order []string
}

func NewToolset(drive ports.DriveStore, planner ports.Planner, memory ports.MemoryStore) *Toolset {
	t := &Toolset{
		drive:   drive,
		planner: planner,
		memory:  memory,
		specs:   make(map[string]toolSpec),
	}

	t.register(toolSpec{
		name:        toolSearchFolder,
		description: "Search the drive for files or folders by name. Use this to check whether a resource already exists.",
		args: []argSpec{
			{name: "query", kind: argString, description: "Filename or keyword to search for.", required: true},
			{name: "max_results", kind: argInt, description: "Maximum results to return.", required: false},
		},
		run: t.runSearchFolder,
	})
	t.register(toolSpec{
		name:        toolCreateFolder,
		description: "Create a folder (or return the existing one with the same name). Returns folder ID and link.",
		args: []argSpec{
			{name: "name", kind: argString, description: "Name of the folder to create.", required: true},
			{name: "parent_id", kind: argString, description: "Parent folder ID ('root' for top-level).", required: false},
		},
		sideEffect: true,
		run:        t.runCreateFolder,
	})
	t.register(toolSpec{
		name:        toolListFolder,
		description: "List the contents of a drive folder. Returns names, IDs, types, and links.",
		args: []argSpec{
			{name: "folder_id", kind: argString, description: "Folder ID to list ('root' for top-level).", required: false},
			{name: "max_results", kind: argInt, description: "Maximum files to return.", required: false},
		},
		run: t.runListFolder,
	})
	t.register(toolSpec{
		name:        toolDeleteItem,
		description: "Move a file or folder to the trash. Destructive: requires user confirmation in preview mode.",
		args: []argSpec{
			{name: "item_id", kind: argString, description: "ID of the file or folder to delete.", required: true},
		},
		sideEffect:  true,
		destructive: true,
		run:         t.runDeleteItem,
	})
	t.register(toolSpec{
		name:        toolCreateDocument,
		description: "Create a new, empty document. Optionally place it in a folder by providing folder_id.",
		args: []argSpec{
			{name: "title", kind: argString, description: "Title of the new document.", required: true},
			{name: "folder_id", kind: argString, description: "Folder ID to place the document in (empty for root).", required: false},
		},
		sideEffect: true,
		run:        t.runCreateDocument,
	})
	t.register(toolSpec{
		name:        toolWriteDocument,
		description: "Write markdown content to a document, replacing the existing body. Use #, ##, ### for headings.",
		args: []argSpec{
			{name: "document_id", kind: argString, description: "ID of the document to write to.", required: true},
			{name: "content", kind: argString, description: "Markdown-formatted content to write.", required: true},
		},
		sideEffect:  true,
		destructive: true,
		run:         t.runWriteDocument,
	})
	t.register(toolSpec{
		name:        toolAppendDocument,
		description: "Append markdown content to the end of a document.",
		args: []argSpec{
			{name: "document_id", kind: argString, description: "ID of the document to append to.", required: true},
			{name: "content", kind: argString, description: "Markdown content to append.", required: true},
		},
		sideEffect: true,
		run:        t.runAppendDocument,
	})
	t.register(toolSpec{
		name:        toolReadDocument,
		description: "Read the full text content of a document.",
		args: []argSpec{
			{name: "document_id", kind: argString, description: "ID of the document to read.", required: true},
		},
		run: t.runReadDocument,
	})
	t.register(toolSpec{
		name:        toolResearchTopic,
		description: "Research a topic and return a structured markdown article ready for a document.",
		args: []argSpec{
			{name: "topic", kind: argString, description: "The topic to research comprehensively.", required: true},
		},
		run: t.runResearchTopic,
	})
	t.register(toolSpec{
		name:        toolRecallMemory,
		description: "Search the agent's long-term memory for past interactions and stored research summaries.",
		args: []argSpec{
			{name: "query", kind: argString, description: "Keyword or topic to search memory for.", required: true},
		},
		run: t.runRecallMemory,
	})
	t.register(toolSpec{
		name:        toolSaveMemoryNote,
		description: "Save a note, preference, or summary to long-term memory for future sessions.",
		args: []argSpec{
			{name: "topic", kind: argString, description: "Short label for this memory.", required: true},
			{name: "content", kind: argString, description: "The note to remember.", required: true},
		},
		sideEffect: true,
		run:        t.runSaveMemoryNote,
	})

	return t
}

func (t *Toolset) register(spec toolSpec) {
	t.specs[spec.name] = spec
	t.order = append(t.order, spec.name)
}

// Describe renders the tool catalog for the planner prompt.
func (t *Toolset) Describe() string {
	var b strings.Builder
	for _, name := range t.order {
		spec := t.specs[name]
		b.WriteString(fmt.Sprintf("- %s: %s\n", spec.name, spec.description))
		for _, arg := range spec.args {
			req := "optional"
			if arg.required {
				req = "required"
			}
			b.WriteString(fmt.Sprintf("    %s (%s, %s): %s\n", arg.name, arg.kind, req, arg.description))
		}
	}
	return b.String()
}

// Validate rejects malformed calls before any side effect can occur.
func (t *Toolset) Validate(call domain.ToolCall) error {
	spec, ok := t.specs[call.Name]
	if !ok {
		return domain.WrapError(domain.ErrInvalidInput, "validate tool call", fmt.Errorf("unknown tool: %q", call.Name))
	}
	for _, arg := range spec.args {
		value, present := call.Args[arg.name]
		if !present || value == nil {
			if arg.required {
				return domain.WrapError(domain.ErrInvalidInput, "validate tool call",
					fmt.Errorf("%s: missing required argument %q", call.Name, arg.name))
			}
			continue
		}
		switch arg.kind {
		case argString:
			s, ok := value.(string)
			if !ok {
				return domain.WrapError(domain.ErrInvalidInput, "validate tool call",
					fmt.Errorf("%s: argument %q must be a string", call.Name, arg.name))
			}
			if arg.required && strings.TrimSpace(s) == "" {
				return domain.WrapError(domain.ErrInvalidInput, "validate tool call",
					fmt.Errorf("%s: argument %q must not be empty", call.Name, arg.name))
			}
		case argInt:
			switch v := value.(type) {
			case float64, int, int64:
			case string:
				if _, err := strconv.Atoi(strings.TrimSpace(v)); err != nil {
					return domain.WrapError(domain.ErrInvalidInput, "validate tool call",
						fmt.Errorf("%s: argument %q must be an integer", call.Name, arg.name))
				}
			default:
				return domain.WrapError(domain.ErrInvalidInput, "validate tool call",
					fmt.Errorf("%s: argument %q must be an integer", call.Name, arg.name))
			}
		}
	}
	return nil
}

// SideEffecting reports whether a tool mutates drive or memory state.
func (t *Toolset) SideEffecting(name string) bool {
	return t.specs[name].sideEffect
}

// Destructive reports whether a tool deletes or overwrites existing data.
func (t *Toolset) Destructive(name string) bool {
	return t.specs[name].destructive
}

// Execute runs one validated call and always returns a ToolResult; tool
// failures are captured in the result, never raised past it.
func (t *Toolset) Execute(ctx context.Context, creds domain.Credentials, call domain.ToolCall) domain.ToolResult {
	spec, ok := t.specs[call.Name]
	if !ok {
		return errorResult(call, fmt.Errorf("unknown tool: %q", call.Name))
	}
	output, err := spec.run(ctx, creds, call.Args)
	if err != nil {
		return errorResult(call, err)
	}
	return domain.ToolResult{
		Tool:   call.Name,
		Input:  call.Args,
		Status: domain.ToolStatusOK,
		Output: output,
	}
}

func errorResult(call domain.ToolCall, err error) domain.ToolResult {
	payload, _ := json.Marshal(map[string]string{"error": err.Error()})
	return domain.ToolResult{
		Tool:   call.Name,
		Input:  call.Args,
		Status: domain.ToolStatusError,
		Output: string(payload),
	}
}

func (t *Toolset) runSearchFolder(ctx context.Context, creds domain.Credentials, args map[string]any) (string, error) {
	query := stringInput(args, "query", "")
	limit := intInput(args, "max_results", 15)
	items, err := t.drive.SearchByName(ctx, creds, query, limit)
	if err != nil {
		return "", fmt.Errorf("search folder: %w", err)
	}
	return marshalPayload(map[string]any{"files": items, "count": len(items)})
}

func (t *Toolset) runCreateFolder(ctx context.Context, creds domain.Credentials, args map[string]any) (string, error) {
	name := stringInput(args, "name", "")
	parent := stringInput(args, "parent_id", "root")
	folder, created, err := t.drive.EnsureFolder(ctx, creds, name, parent)
	if err != nil {
		return "", fmt.Errorf("create folder: %w", err)
	}
	return marshalPayload(map[string]any{"folder": folder, "created": created})
}

func (t *Toolset) runListFolder(ctx context.Context, creds domain.Credentials, args map[string]any) (string, error) {
	folderID := stringInput(args, "folder_id", "root")
	limit := intInput(args, "max_results", 25)
	items, err := t.drive.ListChildren(ctx, creds, folderID, limit)
	if err != nil {
		return "", fmt.Errorf("list folder contents: %w", err)
	}
	return marshalPayload(map[string]any{"files": items, "count": len(items)})
}

func (t *Toolset) runDeleteItem(ctx context.Context, creds domain.Credentials, args map[string]any) (string, error) {
	itemID := stringInput(args, "item_id", "")
	if err := t.drive.Delete(ctx, creds, itemID); err != nil {
		return "", fmt.Errorf("delete item: %w", err)
	}
	return marshalPayload(map[string]any{"item_id": itemID, "trashed": true})
}

func (t *Toolset) runCreateDocument(ctx context.Context, creds domain.Credentials, args map[string]any) (string, error) {
	title := stringInput(args, "title", "")
	folderID := stringInput(args, "folder_id", "")
	doc, err := t.drive.CreateDocument(ctx, creds, title, folderID)
	if err != nil {
		return "", fmt.Errorf("create document: %w", err)
	}
	return marshalPayload(doc)
}

func (t *Toolset) runWriteDocument(ctx context.Context, creds domain.Credentials, args map[string]any) (string, error) {
	documentID := stringInput(args, "document_id", "")
	content := stringInput(args, "content", "")
	if err := t.drive.WriteDocument(ctx, creds, documentID, content); err != nil {
		return "", fmt.Errorf("write document content: %w", err)
	}
	return marshalPayload(map[string]any{"document_id": documentID, "written_chars": len(content)})
}

func (t *Toolset) runAppendDocument(ctx context.Context, creds domain.Credentials, args map[string]any) (string, error) {
	documentID := stringInput(args, "document_id", "")
	content := stringInput(args, "content", "")
	if err := t.drive.AppendDocument(ctx, creds, documentID, content); err != nil {
		return "", fmt.Errorf("append document content: %w", err)
	}
	return marshalPayload(map[string]any{"document_id": documentID, "appended_chars": len(content)})
}

func (t *Toolset) runReadDocument(ctx context.Context, creds domain.Credentials, args map[string]any) (string, error) {
	documentID := stringInput(args, "document_id", "")
	text, err := t.drive.ReadDocument(ctx, creds, documentID)
	if err != nil {
		return "", fmt.Errorf("read document content: %w", err)
	}
	return marshalPayload(map[string]any{"document_id": documentID, "content": text})
}

func (t *Toolset) runResearchTopic(ctx context.Context, creds domain.Credentials, args map[string]any) (string, error) {
	topic := stringInput(args, "topic", "")
	article, err := t.planner.GenerateFromPrompt(ctx, buildResearchPrompt(topic))
	if err != nil {
		return "", fmt.Errorf("research topic: %w", err)
	}
	return article, nil
}

func (t *Toolset) runRecallMemory(ctx context.Context, creds domain.Credentials, args map[string]any) (string, error) {
	query := stringInput(args, "query", "")
	recall, err := t.memory.Recall(ctx, creds, query)
	if err != nil {
		return "", fmt.Errorf("recall memory: %w", err)
	}
	return marshalPayload(recall)
}

func (t *Toolset) runSaveMemoryNote(ctx context.Context, creds domain.Credentials, args map[string]any) (string, error) {
	topic := stringInput(args, "topic", "")
	content := stringInput(args, "content", "")
	if err := t.memory.UpsertSummary(ctx, creds, topic, content); err != nil {
		return "", fmt.Errorf("save memory note: %w", err)
	}
	return marshalPayload(map[string]any{"saved": true, "topic": topic})
}

func marshalPayload(payload any) (string, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return "", fmt.Errorf("marshal tool payload: %w", err)
	}
	return string(data), nil
}

func stringInput(input map[string]any, key, fallback string) string {
	if input == nil {
		return fallback
	}
	value, ok := input[key]
	if !ok || value == nil {
		return fallback
	}
	switch typed := value.(type) {
	case string:
		if strings.TrimSpace(typed) == "" {
			return fallback
		}
		return typed
	default:
		return fmt.Sprint(typed)
	}
}

func intInput(input map[string]any, key string, fallback int) int {
	if input == nil {
		return fallback
	}
	value, ok := input[key]
	if !ok || value == nil {
		return fallback
	}
	switch typed := value.(type) {
	case float64:
		return int(typed)
	case int:
		return typed
	case int64:
		return int(typed)
	case string:
		n, err := strconv.Atoi(strings.TrimSpace(typed))
		if err != nil {
			return fallback
		}
		return n
	default:
		return fallback
	}
}
