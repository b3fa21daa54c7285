package usecase

import (
	"fmt"
	"sort"
	"strings"

	"github.com/dmpolyakov/ai-drive-agent/internal/core/domain"
)

func buildPlannerPrompt(command string, history []domain.ChatTurn, memoryContext, toolCatalog string, scratchpad []string) string {
	var b strings.Builder

	b.WriteString("You are a personal drive assistant. You manage the user's files, folders, and documents ")
	b.WriteString("by calling tools, one per step, until the task is done.\n\n")

	b.WriteString("Available tools:\n")
	b.WriteString(toolCatalog)
	b.WriteString("\n")

	b.WriteString("Respond with a single JSON object and nothing else. One of:\n")
	b.WriteString(`{"type":"tool","tool":"<tool name>","input":{<arguments>}}` + "\n")
	b.WriteString(`{"type":"final","answer":"<your answer to the user>"}` + "\n\n")

	b.WriteString("Rules:\n")
	b.WriteString("- Before creating a folder or document, search for it first to avoid duplicates.\n")
	b.WriteString("- When the user asks to research and save a topic, research first, then create the document, then write the article into it.\n")
	b.WriteString("- Use markdown headings (#, ##, ###) when writing document content.\n")
	b.WriteString("- When a step reports it was queued for confirmation, treat it as done and continue planning.\n")
	b.WriteString("- Give the final answer as soon as the task is complete; do not call tools you do not need.\n\n")

	if memoryContext != "" {
		b.WriteString("What you remember about this user:\n")
		b.WriteString(memoryContext)
		b.WriteString("\n")
	}

	if len(history) > 0 {
		b.WriteString("Conversation so far:\n")
		for _, turn := range history {
			b.WriteString(fmt.Sprintf("%s: %s\n", turn.Role, turn.Content))
		}
		b.WriteString("\n")
	}

	b.WriteString("User command: ")
	b.WriteString(command)
	b.WriteString("\n")

	if len(scratchpad) > 0 {
		b.WriteString("\nSteps taken so far:\n")
		for _, line := range scratchpad {
			b.WriteString("- ")
			b.WriteString(line)
			b.WriteString("\n")
		}
		b.WriteString("\nDecide the next step.\n")
	}

	return b.String()
}

func buildPlannerRepairPrompt(raw string) string {
	return fmt.Sprintf(`Your previous reply was not a single valid JSON object:

%s

Reply again with exactly one JSON object, either
{"type":"tool","tool":"<tool name>","input":{<arguments>}} or
{"type":"final","answer":"<text>"}. No prose, no code fences.`, raw)
}

func buildResearchPrompt(topic string) string {
	return fmt.Sprintf(`Write a well-structured research article about: %s

Requirements:
- Start with a single "# " title line.
- Use "## " section headings: overview, key aspects, practical details, conclusion.
- Markdown only, no code fences around the article.
- Be factual and specific; 400-700 words.`, topic)
}

func buildSummaryPrompt(command, answer string, maxWords int) string {
	return fmt.Sprintf(`Summarize this assistant interaction in at most %d words. Capture what the user wanted and what was done.

User command: %s
Assistant answer: %s

Reply with the summary only.`, maxWords, command, answer)
}

func buildTopicSummaryPrompt(topic, article string, maxWords int) string {
	return fmt.Sprintf(`Condense the following research article about %q into at most %d words, keeping the key facts:

%s

Reply with the condensed summary only.`, topic, maxWords, article)
}

// buildMemoryContext renders the stored memory record as prompt text.
func buildMemoryContext(record *domain.MemoryRecord) string {
	if record == nil {
		return ""
	}
	var b strings.Builder

	if len(record.Profile.Preferences) > 0 {
		keys := make([]string, 0, len(record.Profile.Preferences))
		for key := range record.Profile.Preferences {
			keys = append(keys, key)
		}
		sort.Strings(keys)
		b.WriteString("Preferences:\n")
		for _, key := range keys {
			b.WriteString(fmt.Sprintf("- %s: %s\n", key, record.Profile.Preferences[key]))
		}
	}
	if len(record.Profile.FrequentFolders) > 0 {
		names := make([]string, 0, len(record.Profile.FrequentFolders))
		for name := range record.Profile.FrequentFolders {
			names = append(names, name)
		}
		sort.Strings(names)
		b.WriteString("Frequently used folders: ")
		b.WriteString(strings.Join(names, ", "))
		b.WriteString("\n")
	}
	if len(record.Profile.TopicsOfInterest) > 0 {
		b.WriteString("Topics of interest: ")
		b.WriteString(strings.Join(record.Profile.TopicsOfInterest, ", "))
		b.WriteString("\n")
	}
	if len(record.Log) > 0 {
		b.WriteString("Recent interactions:\n")
		for _, entry := range record.Log {
			b.WriteString(fmt.Sprintf("- %s: %s\n", entry.Command, entry.Summary))
		}
	}
	if len(record.Summaries) > 0 {
		b.WriteString("Stored research summaries: ")
		topics := make([]string, 0, len(record.Summaries))
		for _, s := range record.Summaries {
			topics = append(topics, s.Topic)
		}
		b.WriteString(strings.Join(topics, ", "))
		b.WriteString("\n")
	}
	return b.String()
}

var keywordStopwords = map[string]struct{}{
	"the": {}, "a": {}, "an": {}, "and": {}, "or": {}, "of": {}, "in": {},
	"to": {}, "for": {}, "my": {}, "me": {}, "it": {}, "on": {}, "with": {},
	"please": {}, "can": {}, "you": {}, "i": {}, "is": {}, "that": {},
}

// commandKeywords extracts lookup terms from a user command for memory reads.
func commandKeywords(command string) []string {
	fields := strings.Fields(strings.ToLower(command))
	keywords := make([]string, 0, len(fields))
	for _, field := range fields {
		word := strings.Trim(field, ".,!?;:\"'()")
		if len(word) < 3 {
			continue
		}
		if _, stop := keywordStopwords[word]; stop {
			continue
		}
		keywords = append(keywords, word)
	}
	return keywords
}

func truncateOutput(s string, limit int) string {
	if limit <= 0 || len(s) <= limit {
		return s
	}
	return s[:limit] + "... [truncated]"
}
