package ports

import (
	"context"

	"github.com/dmpolyakov/ai-drive-agent/internal/core/domain"
)

// AgentService is the inbound contract for command execution and the
// preview/confirm protocol.
type AgentService interface {
	Execute(ctx context.Context, userID string, cmd domain.Command, mode domain.CommandMode) (*domain.AgentRunResult, error)
	Confirm(ctx context.Context, userID, token string) (*domain.AgentRunResult, error)
	Reject(ctx context.Context, userID, token string) error
}

// MemoryService is the inbound read model over persistent agent memory.
type MemoryService interface {
	History(ctx context.Context, userID string) ([]domain.InteractionEntry, error)
	Profile(ctx context.Context, userID string) (*domain.Profile, error)
	Recall(ctx context.Context, userID, query string) (*domain.MemoryRecall, error)
	Summaries(ctx context.Context, userID, query string) ([]domain.TopicSummary, error)
}

// InteractionWriter persists one completed interaction into memory.
// Invoked by the worker for queued events and by the executor as a
// synchronous fallback when publishing fails.
type InteractionWriter interface {
	Write(ctx context.Context, event domain.InteractionEvent) error
}
