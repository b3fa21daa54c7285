package ports

import (
	"context"

	"github.com/dmpolyakov/ai-drive-agent/internal/core/domain"
)

// DriveStore is the storage backend: folder/document operations keyed by
// opaque IDs. Implementations map failures onto the domain error kinds
// (ErrTemporary, ErrNotFound, ErrUnauthorized).
type DriveStore interface {
	SearchByName(ctx context.Context, creds domain.Credentials, name string, limit int) ([]domain.DriveItem, error)
	ListChildren(ctx context.Context, creds domain.Credentials, folderID string, limit int) ([]domain.DriveItem, error)
	// EnsureFolder returns an existing folder with the given name under
	// parentID or creates one; created reports which happened.
	EnsureFolder(ctx context.Context, creds domain.Credentials, name, parentID string) (item domain.DriveItem, created bool, err error)
	Delete(ctx context.Context, creds domain.Credentials, itemID string) error

	CreateDocument(ctx context.Context, creds domain.Credentials, title, folderID string) (*domain.Document, error)
	// WriteDocument replaces the document body with rendered markdown.
	WriteDocument(ctx context.Context, creds domain.Credentials, documentID, markdown string) error
	AppendDocument(ctx context.Context, creds domain.Credentials, documentID, markdown string) error
	ReadDocument(ctx context.Context, creds domain.Credentials, documentID string) (string, error)

	// File-level primitives used by the drive-backed memory store.
	FindChildByName(ctx context.Context, creds domain.Credentials, parentID, name string) (*domain.DriveItem, error)
	DownloadFile(ctx context.Context, creds domain.Credentials, fileID string) ([]byte, error)
	// UpsertFile atomically creates or replaces one file's content.
	UpsertFile(ctx context.Context, creds domain.Credentials, parentID, name string, payload []byte) (fileID string, err error)
}

// Planner is the LLM boundary: one generate call per invocation, plain
// text or strict-JSON output. Transient provider failures are retried at
// most once by the implementation, then surfaced as ErrTemporary.
type Planner interface {
	GenerateFromPrompt(ctx context.Context, prompt string) (string, error)
	GenerateJSONFromPrompt(ctx context.Context, prompt string) (string, error)
}

// MemoryStore is the durable per-user memory contract. Same-user writes
// are serialized by the implementation; each write is one atomic document
// replace in the backing store.
type MemoryStore interface {
	Read(ctx context.Context, creds domain.Credentials, keywords []string, maxRecent int) (*domain.MemoryRecord, error)
	AppendInteraction(ctx context.Context, creds domain.Credentials, entry domain.InteractionEntry) error
	UpsertSummary(ctx context.Context, creds domain.Credentials, topic, content string) error
	SearchSummaries(ctx context.Context, creds domain.Credentials, query string) ([]domain.TopicSummary, error)
	LoadLog(ctx context.Context, creds domain.Credentials) ([]domain.InteractionEntry, error)
	LoadProfile(ctx context.Context, creds domain.Credentials) (*domain.Profile, error)
	UpdateLearnedPatterns(ctx context.Context, creds domain.Credentials, command string, tools, folders, topics []string) error
	Recall(ctx context.Context, creds domain.Credentials, query string) (*domain.MemoryRecall, error)
}

// PendingLedger stages destructive plans for explicit confirmation.
// Stage returns the stored action with token and expiry stamped.
// Consume is atomic: a token yields its action at most once, ever;
// consumed, rejected, and expired tokens are indistinguishable
// (all ErrNotFound).
type PendingLedger interface {
	Stage(ctx context.Context, action domain.PendingAction) (*domain.PendingAction, error)
	Consume(ctx context.Context, token string) (*domain.PendingAction, error)
	Sweep(ctx context.Context) int
}

// InteractionQueue moves completed-interaction events to the memory
// writer off the response path.
type InteractionQueue interface {
	PublishInteraction(ctx context.Context, event domain.InteractionEvent) error
	SubscribeInteractions(ctx context.Context, handler func(context.Context, domain.InteractionEvent) error) error
}

// CredentialStore persists encrypted OAuth grants per user.
type CredentialStore interface {
	Save(ctx context.Context, token domain.GoogleToken) error
	Get(ctx context.Context, userID string) (*domain.GoogleToken, error)
	Delete(ctx context.Context, userID string) error
}

// OAuthProvider wraps the upstream consent/token endpoints.
type OAuthProvider interface {
	AuthCodeURL(state string) string
	Exchange(ctx context.Context, code string) (*domain.GoogleToken, *domain.UserInfo, error)
	Refresh(ctx context.Context, token domain.GoogleToken) (*domain.GoogleToken, error)
	Revoke(ctx context.Context, token domain.GoogleToken) error
}

// CredentialResolver turns a user ID into live drive credentials,
// refreshing the stored grant when needed.
type CredentialResolver interface {
	Resolve(ctx context.Context, userID string) (domain.Credentials, error)
}
