package domain

import "time"

// ConversationLogCap bounds the persisted interaction log. Writes evict
// the oldest entries first once the cap is exceeded.
const ConversationLogCap = 200

const (
	LearnedPatternCap   = 30
	TopicsOfInterestCap = 50
)

type LearnedPattern struct {
	CommandType string    `json:"command_type"`
	Tools       []string  `json:"tools,omitempty"`
	Timestamp   time.Time `json:"timestamp"`
}

// Profile holds free-form preferences plus patterns learned from past
// interactions. Lazily created on first use, never deleted by the agent.
type Profile struct {
	CreatedAt        time.Time         `json:"created_at"`
	UpdatedAt        time.Time         `json:"updated_at,omitempty"`
	Preferences      map[string]string `json:"preferences,omitempty"`
	LearnedPatterns  []LearnedPattern  `json:"learned_patterns,omitempty"`
	FrequentFolders  map[string]int    `json:"frequently_used_folders,omitempty"`
	TopicsOfInterest []string          `json:"topics_of_interest,omitempty"`
	InteractionCount int               `json:"interaction_count"`
}

// InteractionEntry is one summarized past command in the conversation log.
type InteractionEntry struct {
	Command   string    `json:"command"`
	Summary   string    `json:"summary"`
	ToolsUsed []string  `json:"tools_used,omitempty"`
	Topics    []string  `json:"topics,omitempty"`
	Folders   []string  `json:"folders,omitempty"`
	Timestamp time.Time `json:"timestamp"`
}

// TopicSummary is one stored research summary, keyed by case-normalized
// topic. Re-research of the same topic overwrites it in place.
type TopicSummary struct {
	Topic     string    `json:"topic"`
	Summary   string    `json:"summary"`
	CreatedAt time.Time `json:"created_at"`
}

// MemoryRecord is the per-user durable memory read before every command.
type MemoryRecord struct {
	Profile   Profile            `json:"profile"`
	Log       []InteractionEntry `json:"conversation_log"`
	Summaries []TopicSummary     `json:"summaries,omitempty"`
}

// MemoryRecall is the cross-layer search result behind the recall tool.
type MemoryRecall struct {
	Conversations  []InteractionEntry `json:"conversations"`
	Summaries      []TopicSummary     `json:"summaries"`
	ProfileContext string             `json:"profile_context,omitempty"`
}
