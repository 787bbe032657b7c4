package webhook

import (
	"strings"

	"github.com/jordanhubbard/relay/pkg/config"
	"github.com/jordanhubbard/relay/pkg/models"
)

// Command is an extracted, validated instruction: the canonical command
// name, the remaining free text, and the priority tasks created from it
// receive.
type Command struct {
	Name     string
	Content  string
	Priority models.Priority
}

// CommandMatcher extracts commands from comment text. A comment produces a
// command only when it starts with the trigger prefix and the word after
// the prefix is on the allow-list (canonical name or alias); anything else
// is ignored, which is what keeps arbitrary mentions from spawning work.
type CommandMatcher struct {
	prefix   string
	commands map[string]resolvedCommand // lowercased word -> canonical
}

type resolvedCommand struct {
	name     string
	priority models.Priority
}

// NewCommandMatcher builds a matcher from the configured trigger prefix and
// command allow-list. Aliases resolve to their canonical command's name and
// priority.
func NewCommandMatcher(prefix string, commands []config.CommandConfig) *CommandMatcher {
	m := &CommandMatcher{
		prefix:   strings.ToLower(prefix),
		commands: make(map[string]resolvedCommand),
	}
	for _, c := range commands {
		rc := resolvedCommand{name: c.Name, priority: models.Priority(c.Priority)}
		m.commands[strings.ToLower(c.Name)] = rc
		for _, alias := range c.Aliases {
			m.commands[strings.ToLower(alias)] = rc
		}
	}
	return m
}

// Prefix returns the configured trigger prefix, lowercased.
func (m *CommandMatcher) Prefix() string { return m.prefix }

// Extract returns the command in text, or nil when text carries none.
// Matching of the prefix and command word is case-insensitive; the content
// keeps its original casing and internal whitespace.
func (m *CommandMatcher) Extract(text string) *Command {
	trimmed := strings.TrimSpace(text)
	if trimmed == "" {
		return nil
	}

	if !strings.HasPrefix(strings.ToLower(trimmed), m.prefix) {
		return nil
	}

	after := trimmed[len(m.prefix):]
	if after != "" && !strings.ContainsRune(" \t\n", rune(after[0])) {
		// "@agentreview" is a different mention, not our trigger.
		return nil
	}

	rest := strings.TrimSpace(after)
	if rest == "" {
		return nil
	}

	word := rest
	content := ""
	if i := strings.IndexAny(rest, " \t\n"); i >= 0 {
		word = rest[:i]
		content = strings.TrimSpace(rest[i:])
	}

	rc, ok := m.commands[strings.ToLower(word)]
	if !ok {
		return nil
	}

	return &Command{Name: rc.name, Content: content, Priority: rc.priority}
}
