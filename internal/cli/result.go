package cli

import (
	"encoding/json"
	"regexp"
	"strconv"
	"strings"
)

// resultLine matches the structured result record the agent binary emits as
// its final JSON line in stream-json mode.
type resultLine struct {
	Type         string  `json:"type"`
	TotalCostUSD float64 `json:"total_cost_usd"`
	Usage        struct {
		InputTokens  int `json:"input_tokens"`
		OutputTokens int `json:"output_tokens"`
	} `json:"usage"`
}

var (
	costPattern   = regexp.MustCompile(`\$(\d+(?:\.\d+)?)\s*USD`)
	tokensPattern = regexp.MustCompile(`(\d+)\s+tokens`)
)

// extractUsage pulls cost and token counts out of raw agent output. The
// structured JSON result line wins when present; otherwise textual markers
// like "$0.42 USD" and "1234 tokens" are used. Absent markers leave the
// values at zero, which is a valid answer rather than an error.
func extractUsage(output string) (costUSD float64, inputTokens, outputTokens int) {
	for _, line := range strings.Split(output, "\n") {
		line = strings.TrimSpace(line)
		if !strings.HasPrefix(line, "{") {
			continue
		}
		var rec resultLine
		if err := json.Unmarshal([]byte(line), &rec); err != nil {
			continue
		}
		if rec.Type == "result" {
			return rec.TotalCostUSD, rec.Usage.InputTokens, rec.Usage.OutputTokens
		}
	}

	if m := costPattern.FindStringSubmatch(output); m != nil {
		costUSD, _ = strconv.ParseFloat(m[1], 64)
	}
	if m := tokensPattern.FindStringSubmatch(output); m != nil {
		total, _ := strconv.Atoi(m[1])
		// Textual markers don't split input from output; report the total
		// as output tokens.
		outputTokens = total
	}
	return costUSD, inputTokens, outputTokens
}
