package usecase

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/dmpolyakov/ai-drive-agent/internal/core/domain"
	"github.com/dmpolyakov/ai-drive-agent/internal/core/ports"
)

const (
	interactionSummaryWords = 60
	topicSummaryWords       = 150
)

// MemoryWriterUseCase turns one finished interaction into durable memory:
// a log entry, per-topic research summaries, and learned-pattern updates.
type MemoryWriterUseCase struct {
	credentials ports.CredentialResolver
	planner     ports.Planner
	memory      ports.MemoryStore
	logger      *slog.Logger
}

func NewMemoryWriterUseCase(
	credentials ports.CredentialResolver,
	planner ports.Planner,
	memory ports.MemoryStore,
	logger *slog.Logger,
) *MemoryWriterUseCase {
	if logger == nil {
		logger = slog.Default()
	}
	return &MemoryWriterUseCase{
		credentials: credentials,
		planner:     planner,
		memory:      memory,
		logger:      logger,
	}
}

func (uc *MemoryWriterUseCase) Write(ctx context.Context, event domain.InteractionEvent) error {
	if strings.TrimSpace(event.UserID) == "" {
		return domain.WrapError(domain.ErrInvalidInput, "write interaction memory", fmt.Errorf("user_id is required"))
	}

	creds, err := uc.credentials.Resolve(ctx, event.UserID)
	if err != nil {
		return fmt.Errorf("resolve credentials: %w", err)
	}

	occurredAt := event.OccurredAt
	if occurredAt.IsZero() {
		occurredAt = time.Now().UTC()
	}

	entry := domain.InteractionEntry{
		Command:   event.Command,
		Summary:   uc.summarize(ctx, event),
		ToolsUsed: event.ToolsUsed,
		Topics:    event.Topics,
		Folders:   event.Folders,
		Timestamp: occurredAt,
	}
	if err := uc.memory.AppendInteraction(ctx, creds, entry); err != nil {
		return fmt.Errorf("append interaction: %w", err)
	}

	for _, research := range event.Research {
		summary := uc.condenseArticle(ctx, research)
		if summary == "" {
			continue
		}
		if err := uc.memory.UpsertSummary(ctx, creds, research.Topic, summary); err != nil {
			return fmt.Errorf("upsert topic summary: %w", err)
		}
	}

	if err := uc.memory.UpdateLearnedPatterns(ctx, creds, event.Command, event.ToolsUsed, event.Folders, event.Topics); err != nil {
		return fmt.Errorf("update learned patterns: %w", err)
	}
	return nil
}

// summarize asks the planner for a short interaction summary; on any
// failure it falls back to a truncated answer so the log entry still lands.
func (uc *MemoryWriterUseCase) summarize(ctx context.Context, event domain.InteractionEvent) string {
	summary, err := uc.planner.GenerateFromPrompt(ctx, buildSummaryPrompt(event.Command, event.Answer, interactionSummaryWords))
	if err == nil {
		if trimmed := strings.TrimSpace(summary); trimmed != "" {
			return trimmed
		}
	} else {
		uc.logger.Warn("interaction summary generation failed", "user_id", event.UserID, "error", err)
	}
	return truncateOutput(strings.TrimSpace(event.Answer), 300)
}

func (uc *MemoryWriterUseCase) condenseArticle(ctx context.Context, research domain.ResearchOutput) string {
	condensed, err := uc.planner.GenerateFromPrompt(ctx, buildTopicSummaryPrompt(research.Topic, research.Article, topicSummaryWords))
	if err != nil {
		uc.logger.Warn("topic summary generation failed, storing truncated article", "topic", research.Topic, "error", err)
		return truncateOutput(strings.TrimSpace(research.Article), 1000)
	}
	return strings.TrimSpace(condensed)
}
