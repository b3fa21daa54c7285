package usecase

import (
	"context"
	"fmt"
	"strings"

	"github.com/dmpolyakov/ai-drive-agent/internal/core/domain"
	"github.com/dmpolyakov/ai-drive-agent/internal/core/ports"
)

// MemoryQueryUseCase exposes the stored memory as a read model for the API.
type MemoryQueryUseCase struct {
	credentials ports.CredentialResolver
	memory      ports.MemoryStore
}

func NewMemoryQueryUseCase(credentials ports.CredentialResolver, memory ports.MemoryStore) *MemoryQueryUseCase {
	return &MemoryQueryUseCase{credentials: credentials, memory: memory}
}

func (uc *MemoryQueryUseCase) History(ctx context.Context, userID string) ([]domain.InteractionEntry, error) {
	creds, err := uc.resolve(ctx, userID)
	if err != nil {
		return nil, err
	}
	log, err := uc.memory.LoadLog(ctx, creds)
	if err != nil {
		return nil, fmt.Errorf("load interaction log: %w", err)
	}
	return log, nil
}

func (uc *MemoryQueryUseCase) Profile(ctx context.Context, userID string) (*domain.Profile, error) {
	creds, err := uc.resolve(ctx, userID)
	if err != nil {
		return nil, err
	}
	profile, err := uc.memory.LoadProfile(ctx, creds)
	if err != nil {
		return nil, fmt.Errorf("load profile: %w", err)
	}
	return profile, nil
}

func (uc *MemoryQueryUseCase) Recall(ctx context.Context, userID, query string) (*domain.MemoryRecall, error) {
	if strings.TrimSpace(query) == "" {
		return nil, domain.WrapError(domain.ErrInvalidInput, "memory recall", fmt.Errorf("query is required"))
	}
	creds, err := uc.resolve(ctx, userID)
	if err != nil {
		return nil, err
	}
	recall, err := uc.memory.Recall(ctx, creds, query)
	if err != nil {
		return nil, fmt.Errorf("recall memory: %w", err)
	}
	return recall, nil
}

// Summaries lists stored topic summaries, narrowed by query terms when
// a query is given.
func (uc *MemoryQueryUseCase) Summaries(ctx context.Context, userID, query string) ([]domain.TopicSummary, error) {
	creds, err := uc.resolve(ctx, userID)
	if err != nil {
		return nil, err
	}
	summaries, err := uc.memory.SearchSummaries(ctx, creds, query)
	if err != nil {
		return nil, fmt.Errorf("search summaries: %w", err)
	}
	return summaries, nil
}

func (uc *MemoryQueryUseCase) resolve(ctx context.Context, userID string) (domain.Credentials, error) {
	if strings.TrimSpace(userID) == "" {
		return domain.Credentials{}, domain.WrapError(domain.ErrInvalidInput, "memory query", fmt.Errorf("user_id is required"))
	}
	creds, err := uc.credentials.Resolve(ctx, userID)
	if err != nil {
		return domain.Credentials{}, fmt.Errorf("resolve credentials: %w", err)
	}
	return creds, nil
}
