package domain

import "time"

type CommandMode string

const (
	ModeDirect  CommandMode = "direct"
	ModePreview CommandMode = "preview"
)

type ChatTurn struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// Command is one natural-language instruction plus recent chat context.
// The caller bounds ChatHistory to the last turns; the executor never
// persists it beyond the memory summary written after the run.
type Command struct {
	Text        string     `json:"command"`
	ChatHistory []ChatTurn `json:"chat_history,omitempty"`
}

// ToolCall is one planner-requested operation. Immutable once parsed;
// validated against the tool's declared argument shape before dispatch.
type ToolCall struct {
	Name string         `json:"tool"`
	Args map[string]any `json:"input,omitempty"`
}

type ToolStatus string

const (
	ToolStatusOK    ToolStatus = "ok"
	ToolStatusError ToolStatus = "error"
)

// ToolResult records the outcome of one executed ToolCall. Every executed
// call produces exactly one ToolResult, appended to the run's Steps in
// execution order.
type ToolResult struct {
	Tool   string         `json:"tool"`
	Input  map[string]any `json:"input,omitempty"`
	Status ToolStatus     `json:"status"`
	Output string         `json:"output"`
}

type RunStatus string

const (
	RunCompleted            RunStatus = "completed"
	RunConfirmationRequired RunStatus = "confirmation_required"
)

// PendingDescriptor is returned instead of a result when a preview-mode
// command staged side-effecting work for confirmation.
type PendingDescriptor struct {
	Token       string     `json:"token"`
	Description string     `json:"description"`
	Plan        []ToolCall `json:"preview"`
	ExpiresAt   time.Time  `json:"expires_at"`
}

type AgentRunResult struct {
	Status         RunStatus          `json:"status"`
	Result         string             `json:"result,omitempty"`
	Steps          []ToolResult       `json:"steps"`
	Iterations     int                `json:"iterations"`
	Truncated      bool               `json:"truncated,omitempty"`
	FallbackReason string             `json:"fallback_reason,omitempty"`
	Pending        *PendingDescriptor `json:"pending,omitempty"`
}

// PendingAction is a staged destructive plan awaiting confirmation.
// It lives only in the ledger; once consumed or expired the token is
// never valid again.
type PendingAction struct {
	Token       string     `json:"token"`
	UserID      string     `json:"user_id"`
	Command     string     `json:"command"`
	Plan        []ToolCall `json:"plan"`
	Description string     `json:"description"`
	CreatedAt   time.Time  `json:"created_at"`
	ExpiresAt   time.Time  `json:"expires_at"`
}

func (p PendingAction) Expired(now time.Time) bool {
	return !p.ExpiresAt.IsZero() && now.After(p.ExpiresAt)
}

// PlanStep is one parsed planner response.
type PlanStep struct {
	Type   string         `json:"type"`
	Tool   string         `json:"tool,omitempty"`
	Answer string         `json:"answer,omitempty"`
	Input  map[string]any `json:"input,omitempty"`
}

type AgentLimits struct {
	MaxIterations  int
	Timeout        time.Duration
	PlannerTimeout time.Duration
	ToolTimeout    time.Duration
	RecentMemory   int
	StepOutputCap  int
}

// InteractionEvent is published after a completed direct-mode run so the
// worker can persist memory off the response path.
type InteractionEvent struct {
	ID         string           `json:"id"`
	UserID     string           `json:"user_id"`
	Command    string           `json:"command"`
	Answer     string           `json:"answer"`
	ToolsUsed  []string         `json:"tools_used,omitempty"`
	Topics     []string         `json:"topics,omitempty"`
	Folders    []string         `json:"folders,omitempty"`
	Research   []ResearchOutput `json:"research,omitempty"`
	OccurredAt time.Time        `json:"occurred_at"`
}

// ResearchOutput carries a research tool invocation so the worker can
// store a per-topic summary without re-running the tool.
type ResearchOutput struct {
	Topic   string `json:"topic"`
	Article string `json:"article"`
}
