package drivemem

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/dmpolyakov/ai-drive-agent/internal/core/domain"
	"github.com/dmpolyakov/ai-drive-agent/internal/core/ports"
)

const (
	profileFile = "profile.json"
	logFile     = "conversation_log.json"

	maxRecallConversations = 10
	maxRecallSummaries     = 3
)

// Store keeps the agent's memory inside the user's own drive: a root
// folder holding profile.json, conversation_log.json, and a summaries
// subfolder with one JSON file per research topic. Same-user writes are
// serialized through a per-user lock; each write replaces one file
// atomically via UpsertFile.
type Store struct {
	drive           ports.DriveStore
	rootFolder      string
	summariesFolder string
	now             func() time.Time

	mu    sync.Mutex
	locks map[string]*sync.Mutex
}

func New(drive ports.DriveStore, rootFolder, summariesFolder string) *Store {
	if strings.TrimSpace(rootFolder) == "" {
		rootFolder = "AI_AGENT_MEMORY"
	}
	if strings.TrimSpace(summariesFolder) == "" {
		summariesFolder = "summaries"
	}
	return &Store{
		drive:           drive,
		rootFolder:      rootFolder,
		summariesFolder: summariesFolder,
		now:             time.Now,
		locks:           make(map[string]*sync.Mutex),
	}
}

func (s *Store) userLock(userID string) *sync.Mutex {
	s.mu.Lock()
	defer s.mu.Unlock()
	lock, ok := s.locks[userID]
	if !ok {
		lock = &sync.Mutex{}
		s.locks[userID] = lock
	}
	return lock
}

func (s *Store) Read(ctx context.Context, creds domain.Credentials, keywords []string, maxRecent int) (*domain.MemoryRecord, error) {
	rootID, err := s.ensureRoot(ctx, creds)
	if err != nil {
		return nil, err
	}

	profile, err := s.loadProfile(ctx, creds, rootID)
	if err != nil {
		return nil, err
	}
	log, err := s.loadLog(ctx, creds, rootID)
	if err != nil {
		return nil, err
	}

	if maxRecent > 0 && len(log) > maxRecent {
		log = log[len(log)-maxRecent:]
	}

	summaries, err := s.matchSummaries(ctx, creds, rootID, keywords, maxRecallSummaries)
	if err != nil {
		return nil, err
	}

	return &domain.MemoryRecord{
		Profile:   *profile,
		Log:       log,
		Summaries: summaries,
	}, nil
}

func (s *Store) AppendInteraction(ctx context.Context, creds domain.Credentials, entry domain.InteractionEntry) error {
	lock := s.userLock(creds.UserID)
	lock.Lock()
	defer lock.Unlock()

	rootID, err := s.ensureRoot(ctx, creds)
	if err != nil {
		return err
	}
	log, err := s.loadLog(ctx, creds, rootID)
	if err != nil {
		return err
	}

	log = append(log, entry)
	if len(log) > domain.ConversationLogCap {
		log = log[len(log)-domain.ConversationLogCap:]
	}
	return s.saveJSON(ctx, creds, rootID, logFile, log)
}

func (s *Store) UpsertSummary(ctx context.Context, creds domain.Credentials, topic, content string) error {
	topic = strings.TrimSpace(topic)
	if topic == "" {
		return domain.WrapError(domain.ErrInvalidInput, "upsert summary", fmt.Errorf("topic is required"))
	}

	lock := s.userLock(creds.UserID)
	lock.Lock()
	defer lock.Unlock()

	summariesID, err := s.ensureSummaries(ctx, creds)
	if err != nil {
		return err
	}

	summary := domain.TopicSummary{
		Topic:     topic,
		Summary:   content,
		CreatedAt: s.now().UTC(),
	}
	return s.saveJSON(ctx, creds, summariesID, topicFilename(topic), summary)
}

func (s *Store) SearchSummaries(ctx context.Context, creds domain.Credentials, query string) ([]domain.TopicSummary, error) {
	rootID, err := s.ensureRoot(ctx, creds)
	if err != nil {
		return nil, err
	}
	return s.matchSummaries(ctx, creds, rootID, strings.Fields(strings.ToLower(query)), maxRecallSummaries)
}

func (s *Store) LoadLog(ctx context.Context, creds domain.Credentials) ([]domain.InteractionEntry, error) {
	rootID, err := s.ensureRoot(ctx, creds)
	if err != nil {
		return nil, err
	}
	return s.loadLog(ctx, creds, rootID)
}

func (s *Store) LoadProfile(ctx context.Context, creds domain.Credentials) (*domain.Profile, error) {
	rootID, err := s.ensureRoot(ctx, creds)
	if err != nil {
		return nil, err
	}
	return s.loadProfile(ctx, creds, rootID)
}

func (s *Store) UpdateLearnedPatterns(ctx context.Context, creds domain.Credentials, command string, tools, folders, topics []string) error {
	lock := s.userLock(creds.UserID)
	lock.Lock()
	defer lock.Unlock()

	rootID, err := s.ensureRoot(ctx, creds)
	if err != nil {
		return err
	}
	profile, err := s.loadProfile(ctx, creds, rootID)
	if err != nil {
		return err
	}

	now := s.now().UTC()
	profile.InteractionCount++
	profile.UpdatedAt = now

	profile.LearnedPatterns = append(profile.LearnedPatterns, domain.LearnedPattern{
		CommandType: commandType(command),
		Tools:       tools,
		Timestamp:   now,
	})
	if len(profile.LearnedPatterns) > domain.LearnedPatternCap {
		profile.LearnedPatterns = profile.LearnedPatterns[len(profile.LearnedPatterns)-domain.LearnedPatternCap:]
	}

	for _, folder := range folders {
		if folder == "" {
			continue
		}
		if profile.FrequentFolders == nil {
			profile.FrequentFolders = make(map[string]int)
		}
		profile.FrequentFolders[folder]++
	}

	for _, topic := range topics {
		topic = strings.ToLower(strings.TrimSpace(topic))
		if topic == "" || containsString(profile.TopicsOfInterest, topic) {
			continue
		}
		profile.TopicsOfInterest = append(profile.TopicsOfInterest, topic)
	}
	if len(profile.TopicsOfInterest) > domain.TopicsOfInterestCap {
		profile.TopicsOfInterest = profile.TopicsOfInterest[len(profile.TopicsOfInterest)-domain.TopicsOfInterestCap:]
	}

	return s.saveJSON(ctx, creds, rootID, profileFile, profile)
}

// Recall searches every memory layer for one query.
func (s *Store) Recall(ctx context.Context, creds domain.Credentials, query string) (*domain.MemoryRecall, error) {
	rootID, err := s.ensureRoot(ctx, creds)
	if err != nil {
		return nil, err
	}

	terms := strings.Fields(strings.ToLower(query))

	log, err := s.loadLog(ctx, creds, rootID)
	if err != nil {
		return nil, err
	}
	conversations := make([]domain.InteractionEntry, 0, maxRecallConversations)
	for i := len(log) - 1; i >= 0 && len(conversations) < maxRecallConversations; i-- {
		if entryMatches(log[i], terms) {
			conversations = append(conversations, log[i])
		}
	}

	summaries, err := s.matchSummaries(ctx, creds, rootID, terms, maxRecallSummaries)
	if err != nil {
		return nil, err
	}

	profile, err := s.loadProfile(ctx, creds, rootID)
	if err != nil {
		return nil, err
	}
	profileContext := ""
	for _, topic := range profile.TopicsOfInterest {
		if matchesTerms(topic, terms) {
			profileContext = fmt.Sprintf("%q is a known topic of interest", topic)
			break
		}
	}

	return &domain.MemoryRecall{
		Conversations:  conversations,
		Summaries:      summaries,
		ProfileContext: profileContext,
	}, nil
}

func (s *Store) ensureRoot(ctx context.Context, creds domain.Credentials) (string, error) {
	folder, _, err := s.drive.EnsureFolder(ctx, creds, s.rootFolder, "root")
	if err != nil {
		return "", fmt.Errorf("ensure memory folder: %w", err)
	}
	return folder.ID, nil
}

func (s *Store) ensureSummaries(ctx context.Context, creds domain.Credentials) (string, error) {
	rootID, err := s.ensureRoot(ctx, creds)
	if err != nil {
		return "", err
	}
	folder, _, err := s.drive.EnsureFolder(ctx, creds, s.summariesFolder, rootID)
	if err != nil {
		return "", fmt.Errorf("ensure summaries folder: %w", err)
	}
	return folder.ID, nil
}

func (s *Store) loadProfile(ctx context.Context, creds domain.Credentials, rootID string) (*domain.Profile, error) {
	var profile domain.Profile
	found, err := s.loadJSON(ctx, creds, rootID, profileFile, &profile)
	if err != nil {
		return nil, err
	}
	if !found {
		profile = domain.Profile{CreatedAt: s.now().UTC()}
	}
	return &profile, nil
}

func (s *Store) loadLog(ctx context.Context, creds domain.Credentials, rootID string) ([]domain.InteractionEntry, error) {
	var log []domain.InteractionEntry
	if _, err := s.loadJSON(ctx, creds, rootID, logFile, &log); err != nil {
		return nil, err
	}
	return log, nil
}

func (s *Store) loadJSON(ctx context.Context, creds domain.Credentials, parentID, name string, out any) (bool, error) {
	file, err := s.drive.FindChildByName(ctx, creds, parentID, name)
	if err != nil {
		return false, fmt.Errorf("find %s: %w", name, err)
	}
	if file == nil {
		return false, nil
	}
	payload, err := s.drive.DownloadFile(ctx, creds, file.ID)
	if err != nil {
		return false, fmt.Errorf("download %s: %w", name, err)
	}
	if len(payload) == 0 {
		return false, nil
	}
	if err := json.Unmarshal(payload, out); err != nil {
		// A corrupt memory file is treated as absent rather than fatal.
		return false, nil
	}
	return true, nil
}

func (s *Store) saveJSON(ctx context.Context, creds domain.Credentials, parentID, name string, value any) error {
	payload, err := json.Marshal(value)
	if err != nil {
		return fmt.Errorf("marshal %s: %w", name, err)
	}
	if _, err := s.drive.UpsertFile(ctx, creds, parentID, name, payload); err != nil {
		return fmt.Errorf("save %s: %w", name, err)
	}
	return nil
}

func (s *Store) matchSummaries(ctx context.Context, creds domain.Credentials, rootID string, terms []string, limit int) ([]domain.TopicSummary, error) {
	if len(terms) == 0 {
		return nil, nil
	}
	summariesFolder, err := s.drive.FindChildByName(ctx, creds, rootID, s.summariesFolder)
	if err != nil {
		return nil, fmt.Errorf("find summaries folder: %w", err)
	}
	if summariesFolder == nil {
		return nil, nil
	}

	files, err := s.drive.ListChildren(ctx, creds, summariesFolder.ID, 0)
	if err != nil {
		return nil, fmt.Errorf("list summaries: %w", err)
	}

	out := make([]domain.TopicSummary, 0, limit)
	for _, file := range files {
		if len(out) >= limit {
			break
		}
		if !matchesTerms(strings.TrimSuffix(file.Name, ".json"), terms) {
			continue
		}
		payload, err := s.drive.DownloadFile(ctx, creds, file.ID)
		if err != nil {
			return nil, fmt.Errorf("download summary %s: %w", file.Name, err)
		}
		var summary domain.TopicSummary
		if err := json.Unmarshal(payload, &summary); err != nil {
			continue
		}
		out = append(out, summary)
	}
	return out, nil
}

// topicFilename maps a topic to its summary file: lower case, spaces to
// underscores, so re-research of "Solar Panels" overwrites "solar panels".
func topicFilename(topic string) string {
	normalized := strings.ToLower(strings.TrimSpace(topic))
	normalized = strings.Join(strings.Fields(normalized), "_")
	return normalized + ".json"
}

func entryMatches(entry domain.InteractionEntry, terms []string) bool {
	haystack := strings.ToLower(entry.Command + " " + entry.Summary + " " + strings.Join(entry.Topics, " "))
	for _, term := range terms {
		if strings.Contains(haystack, term) {
			return true
		}
	}
	return false
}

func matchesTerms(candidate string, terms []string) bool {
	candidate = strings.ToLower(strings.ReplaceAll(candidate, "_", " "))
	for _, term := range terms {
		if strings.Contains(candidate, term) {
			return true
		}
	}
	return false
}

func containsString(haystack []string, needle string) bool {
	for _, s := range haystack {
		if s == needle {
			return true
		}
	}
	return false
}

func commandType(command string) string {
	lower := strings.ToLower(command)
	switch {
	case strings.Contains(lower, "research"):
		return "research"
	case strings.Contains(lower, "delete") || strings.Contains(lower, "remove"):
		return "delete"
	case strings.Contains(lower, "create") || strings.Contains(lower, "make") || strings.Contains(lower, "new "):
		return "create"
	case strings.Contains(lower, "find") || strings.Contains(lower, "search") || strings.Contains(lower, "list"):
		return "lookup"
	case strings.Contains(lower, "write") || strings.Contains(lower, "append") || strings.Contains(lower, "add"):
		return "write"
	default:
		return "other"
	}
}
