package webhook

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestIsBotSenderSuffix(t *testing.T) {
	d := NewBotDetector(nil)

	assert.True(t, d.IsBotSender("my-custom[bot]", "User"))
	assert.True(t, d.IsBotSender("My-Custom[BOT]", "User"))
	assert.False(t, d.IsBotSender("alice", "User"))
}

func TestIsBotSenderUserType(t *testing.T) {
	d := NewBotDetector(nil)

	assert.True(t, d.IsBotSender("some-app", "Bot"))
	assert.True(t, d.IsBotSender("some-app", "bot"))
	assert.False(t, d.IsBotSender("some-app", "Organization"))
}

func TestIsBotSenderKnownBots(t *testing.T) {
	d := NewBotDetector(nil)

	assert.True(t, d.IsBotSender("dependabot[bot]", "User"))
	assert.True(t, d.IsBotSender("snyk-bot", "User"))
	assert.False(t, d.IsBotSender("human-dev", "User"))
}

func TestIsBotSenderExtraDenied(t *testing.T) {
	d := NewBotDetector([]string{"internal-ci"})

	assert.True(t, d.IsBotSender("internal-ci", "User"))
	assert.True(t, d.IsDenied("Internal-CI"))
	assert.False(t, d.IsDenied("internal-dev"))
}
