package cli

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestExtractUsageFromJSONResultLine(t *testing.T) {
	output := `{"type":"assistant","message":"working"}
{"type":"result","total_cost_usd":0.1234,"usage":{"input_tokens":1500,"output_tokens":820}}`

	cost, in, out := extractUsage(output)
	assert.InDelta(t, 0.1234, cost, 1e-9)
	assert.Equal(t, 1500, in)
	assert.Equal(t, 820, out)
}

func TestExtractUsageTextualFallback(t *testing.T) {
	output := "Done.\nTotal cost: $0.42 USD\nUsed 1234 tokens in this run\n"

	cost, in, out := extractUsage(output)
	assert.InDelta(t, 0.42, cost, 1e-9)
	assert.Equal(t, 0, in)
	assert.Equal(t, 1234, out)
}

func TestExtractUsageJSONWinsOverText(t *testing.T) {
	output := `mentions $9.99 USD in prose
{"type":"result","total_cost_usd":0.05,"usage":{"input_tokens":10,"output_tokens":20}}`

	cost, _, _ := extractUsage(output)
	assert.InDelta(t, 0.05, cost, 1e-9)
}

func TestExtractUsageNoMarkers(t *testing.T) {
	cost, in, out := extractUsage("plain output with no markers")
	assert.Zero(t, cost)
	assert.Zero(t, in)
	assert.Zero(t, out)
}
