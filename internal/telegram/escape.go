package telegram

import "regexp"

// markdownEscapePattern matches either an inline markdown link (kept
// intact so the script can embed URLs) or a single MarkdownV2-reserved
// character that needs a backslash escape.
var markdownEscapePattern = regexp.MustCompile(`(\[[^\][]*\]\(http[^()]*\))|[_*\[\]()~>#+=|{}.!-]`)

// EscapeMarkdownV2 escapes Telegram MarkdownV2 reserved characters in
// content-script text so arbitrary content cannot corrupt formatting.
// Inline links of the form [label](http...) pass through unescaped. The
// escape runs exactly once per send; it is not idempotent on already
// escaped input.
func EscapeMarkdownV2(text string) string {
	return markdownEscapePattern.ReplaceAllStringFunc(text, func(match string) string {
		if len(match) > 1 {
			// Link group match, keep as-is.
			return match
		}
		return "\\" + match
	})
}
