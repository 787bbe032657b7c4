// Package cli runs the external agent binary and turns its output into a
// structured result.
package cli

import "regexp"

const redacted = "***REDACTED***"

// The sanitization patterns cover the secret shapes that show up in agent
// output in practice: env-style assignments, token/password key-value
// pairs, and HTTP Authorization headers. Order matters only for
// readability; each pattern replaces independently.
var sanitizePatterns = []struct {
	re   *regexp.Regexp
	repl string
}{
	// FOO_TOKEN=abc123, API_KEY='s3cret', GITHUB_SECRET="x"
	{
		regexp.MustCompile(`(?i)\b([A-Z0-9_]*(?:TOKEN|SECRET|PASSWORD|PASSWD|API_KEY|APIKEY|PRIVATE_KEY|CREDENTIAL)[A-Z0-9_]*)\s*=\s*['"]?[^\s'"]+['"]?`),
		"$1=" + redacted,
	},
	// token: abc, password: "hunter2", api_key=xyz in prose or YAML
	{
		regexp.MustCompile(`(?i)\b(token|password|passwd|secret|api[_-]?key)\s*[:=]\s*['"]?[^\s'",]+['"]?`),
		"$1: " + redacted,
	},
	// Authorization: Bearer eyJ..., Authorization: Basic dXNlcjpwYXNz
	{
		regexp.MustCompile(`(?i)\b(authorization)\s*:\s*(bearer|basic)\s+\S+`),
		"$1: $2 " + redacted,
	},
	// Bare GitHub-style tokens (ghp_, gho_, ghs_, github_pat_)
	{
		regexp.MustCompile(`\b(?:ghp|gho|ghs|ghu)_[A-Za-z0-9]{20,}\b|\bgithub_pat_[A-Za-z0-9_]{20,}\b`),
		redacted,
	},
}

// Sanitize masks sensitive-looking substrings in s. It is applied to every
// line before it reaches a stream sink and to the final output before it is
// posted anywhere. Cost and token extraction run on the unsanitized text,
// since the patterns can mangle the JSON result line.
func Sanitize(s string) string {
	for _, p := range sanitizePatterns {
		s = p.re.ReplaceAllString(s, p.repl)
	}
	return s
}
