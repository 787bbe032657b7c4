package webhook

import "strings"

// defaultKnownBots are automation accounts seen across real installations.
// Operators extend the list via webhooks.denied_senders in the config.
var defaultKnownBots = []string{
	"github-actions[bot]",
	"dependabot[bot]",
	"renovate[bot]",
	"codecov[bot]",
	"sonarcloud[bot]",
	"snyk-bot",
	"greenkeeper[bot]",
	"imgbot[bot]",
	"allcontributors[bot]",
	"stale[bot]",
	"mergify[bot]",
	"netlify[bot]",
	"vercel[bot]",
}

// BotDetector decides whether a sender is an automated account whose events
// must never create tasks. Missing this check turns every posted result
// into a fresh webhook and a feedback loop.
type BotDetector struct {
	denied map[string]bool
}

// NewBotDetector merges the built-in known-bots list with the operator's
// additional denied senders. Matching is case-insensitive.
func NewBotDetector(extraDenied []string) *BotDetector {
	d := &BotDetector{denied: make(map[string]bool, len(defaultKnownBots)+len(extraDenied))}
	for _, name := range defaultKnownBots {
		d.denied[strings.ToLower(name)] = true
	}
	for _, name := range extraDenied {
		d.denied[strings.ToLower(name)] = true
	}
	return d
}

// IsBotSender checks a GitHub-shaped sender: login, user type, and the
// deny list.
func (d *BotDetector) IsBotSender(login, userType string) bool {
	if strings.HasSuffix(strings.ToLower(login), "[bot]") {
		return true
	}
	if strings.EqualFold(userType, "Bot") {
		return true
	}
	return d.denied[strings.ToLower(login)]
}

// IsDenied checks only the deny list, for providers without a user type
// field (Jira display names, Slack usernames).
func (d *BotDetector) IsDenied(name string) bool {
	return d.denied[strings.ToLower(name)]
}
