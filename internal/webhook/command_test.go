package webhook

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jordanhubbard/relay/pkg/config"
	"github.com/jordanhubbard/relay/pkg/models"
)

func testMatcher() *CommandMatcher {
	return NewCommandMatcher("@agent", []config.CommandConfig{
		{Name: "fix", Aliases: []string{"implement", "execute"}, Priority: 0},
		{Name: "review", Aliases: []string{"code-review"}, Priority: 1},
		{Name: "plan", Priority: 2},
		{Name: "analyze", Aliases: []string{"analysis"}, Priority: 2},
	})
}

func TestExtractBasicCommand(t *testing.T) {
	cmd := testMatcher().Extract("@agent review please check the scroll button")
	require.NotNil(t, cmd)
	assert.Equal(t, "review", cmd.Name)
	assert.Equal(t, "please check the scroll button", cmd.Content)
	assert.Equal(t, models.PriorityHigh, cmd.Priority)
}

func TestExtractNoPrefix(t *testing.T) {
	assert.Nil(t, testMatcher().Extract("no prefix here"))
}

func TestExtractUnknownCommand(t *testing.T) {
	assert.Nil(t, testMatcher().Extract("@agent bogus do X"))
}

func TestExtractAliasResolvesToCanonical(t *testing.T) {
	cmd := testMatcher().Extract("@agent implement the login flow")
	require.NotNil(t, cmd)
	assert.Equal(t, "fix", cmd.Name)
	assert.Equal(t, models.PriorityCritical, cmd.Priority)
	assert.Equal(t, "the login flow", cmd.Content)
}

func TestExtractCaseInsensitiveMatchingPreservesContent(t *testing.T) {
	cmd := testMatcher().Extract("@AGENT Review Fix The ScrollBar")
	require.NotNil(t, cmd)
	assert.Equal(t, "review", cmd.Name)
	assert.Equal(t, "Fix The ScrollBar", cmd.Content, "content casing must survive")
}

func TestExtractCommandWithoutContent(t *testing.T) {
	cmd := testMatcher().Extract("@agent plan")
	require.NotNil(t, cmd)
	assert.Equal(t, "plan", cmd.Name)
	assert.Empty(t, cmd.Content)
}

func TestExtractEdgeCases(t *testing.T) {
	m := testMatcher()

	assert.Nil(t, m.Extract(""))
	assert.Nil(t, m.Extract("   "))
	assert.Nil(t, m.Extract("@agent"))
	assert.Nil(t, m.Extract("@agent   "))
	assert.Nil(t, m.Extract("@agentreview sneaky"), "prefix must be its own token")
	assert.Nil(t, m.Extract("prefix later @agent review x"), "prefix must lead the text")
}

func TestExtractLeadingWhitespaceTolerated(t *testing.T) {
	cmd := testMatcher().Extract("   @agent analyze the flaky test")
	require.NotNil(t, cmd)
	assert.Equal(t, "analyze", cmd.Name)
	assert.Equal(t, "the flaky test", cmd.Content)
}
