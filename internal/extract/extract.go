// Package extract turns assistant messages into speakable text.
package extract

import (
	"regexp"
	"strings"
	"unicode"

	"yuzu/voicebridge/internal/types"
)

// MinMaxChars is the floor applied to the configured character limit.
const MinMaxChars = 200

var (
	// greedy: everything from the first fence to the last one goes
	fencedCode = regexp.MustCompile("(?s)```.*```")
	inlineCode = regexp.MustCompile("`[^`\n]*`")
	mdLink     = regexp.MustCompile(`\[([^\]]*)\]\([^)]*\)`)
	spaceRun   = regexp.MustCompile(`\s+`)
)

// Extract concatenates the text of every non-ignored text part, in order,
// with no separator.
func Extract(parts []types.Part) string {
	var b strings.Builder
	for _, p := range parts {
		if p.Type != types.PartTypeText || p.Ignored {
			continue
		}
		b.WriteString(p.Text)
	}
	return strings.TrimSpace(b.String())
}

// Sanitize strips code and link markup and normalizes whitespace.
func Sanitize(text string) string {
	out := fencedCode.ReplaceAllString(text, " ")
	out = inlineCode.ReplaceAllString(out, " ")
	out = mdLink.ReplaceAllString(out, "$1")
	out = spaceRun.ReplaceAllString(out, " ")
	return strings.TrimSpace(out)
}

// Truncate cuts text to at most maxChars characters. The second result
// reports whether anything was cut.
func Truncate(text string, maxChars int) (string, bool) {
	runes := []rune(text)
	if len(runes) <= maxChars {
		return text, false
	}
	return strings.TrimRightFunc(string(runes[:maxChars]), unicode.IsSpace), true
}

// EffectiveMaxChars applies the MinMaxChars floor.
func EffectiveMaxChars(configured int) int {
	if configured < MinMaxChars {
		return MinMaxChars
	}
	return configured
}

// LatestSpeakable scans messages newest first and returns the first
// assistant message with non-empty sanitized text.
func LatestSpeakable(messages []types.Message) (types.Message, string, bool) {
	for i := len(messages) - 1; i >= 0; i-- {
		m := messages[i]
		if m.Role != types.RoleAssistant {
			continue
		}
		if text := Sanitize(Extract(m.Parts)); text != "" {
			return m, text, true
		}
	}
	return types.Message{}, "", false
}
