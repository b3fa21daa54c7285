package usecase

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/dmpolyakov/ai-drive-agent/internal/core/domain"
	"github.com/dmpolyakov/ai-drive-agent/internal/core/ports"
)

// CredentialUseCase resolves a user ID to a live access token, refreshing
// the stored grant transparently when it is near expiry.
type CredentialUseCase struct {
	store ports.CredentialStore
	oauth ports.OAuthProvider
	now   func() time.Time
}

func NewCredentialUseCase(store ports.CredentialStore, oauth ports.OAuthProvider) *CredentialUseCase {
	return &CredentialUseCase{store: store, oauth: oauth, now: time.Now}
}

func (uc *CredentialUseCase) Resolve(ctx context.Context, userID string) (domain.Credentials, error) {
	userID = strings.TrimSpace(userID)
	if userID == "" {
		return domain.Credentials{}, domain.WrapError(domain.ErrInvalidInput, "resolve credentials", fmt.Errorf("user_id is required"))
	}

	token, err := uc.store.Get(ctx, userID)
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			return domain.Credentials{}, domain.WrapError(domain.ErrUnauthorized, "resolve credentials", fmt.Errorf("no stored grant for user"))
		}
		return domain.Credentials{}, fmt.Errorf("load stored grant: %w", err)
	}

	if token.ExpiredAt(uc.now().UTC()) {
		refreshed, err := uc.oauth.Refresh(ctx, *token)
		if err != nil {
			if errors.Is(err, domain.ErrTemporary) {
				return domain.Credentials{}, fmt.Errorf("refresh grant: %w", err)
			}
			return domain.Credentials{}, domain.WrapError(domain.ErrUnauthorized, "resolve credentials", fmt.Errorf("grant refresh rejected: %w", err))
		}
		if err := uc.store.Save(ctx, *refreshed); err != nil {
			return domain.Credentials{}, fmt.Errorf("persist refreshed grant: %w", err)
		}
		token = refreshed
	}

	return domain.Credentials{UserID: userID, AccessToken: token.AccessToken}, nil
}

// Connect exchanges an authorization code and persists the resulting grant.
func (uc *CredentialUseCase) Connect(ctx context.Context, code string) (*domain.UserInfo, error) {
	code = strings.TrimSpace(code)
	if code == "" {
		return nil, domain.WrapError(domain.ErrInvalidInput, "connect credentials", fmt.Errorf("authorization code is required"))
	}
	token, info, err := uc.oauth.Exchange(ctx, code)
	if err != nil {
		return nil, fmt.Errorf("exchange authorization code: %w", err)
	}
	token.UserID = info.UserID
	token.UpdatedAt = uc.now().UTC()
	if err := uc.store.Save(ctx, *token); err != nil {
		return nil, fmt.Errorf("persist grant: %w", err)
	}
	return info, nil
}

// Disconnect revokes the upstream grant and forgets the stored token.
func (uc *CredentialUseCase) Disconnect(ctx context.Context, userID string) error {
	userID = strings.TrimSpace(userID)
	if userID == "" {
		return domain.WrapError(domain.ErrInvalidInput, "disconnect credentials", fmt.Errorf("user_id is required"))
	}
	token, err := uc.store.Get(ctx, userID)
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			return nil
		}
		return fmt.Errorf("load stored grant: %w", err)
	}
	// Revoke is best-effort; the local grant is removed regardless.
	_ = uc.oauth.Revoke(ctx, *token)
	if err := uc.store.Delete(ctx, userID); err != nil {
		return fmt.Errorf("delete stored grant: %w", err)
	}
	return nil
}
