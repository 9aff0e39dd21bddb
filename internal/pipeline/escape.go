package pipeline

import (
	"regexp"
	"strings"
)

// mathFragment matches bare exponent/subscript runs like ^2 or _i that
// would otherwise trigger a missing-math-mode compile error.
var mathFragment = regexp.MustCompile(`(?:\^[0-9]+|_[A-Za-z0-9]+)+`)

// latexEscaper rewrites special characters in a single pass, so already
// produced escapes are never escaped a second time.
var latexEscaper = strings.NewReplacer(
	`\`, `\textbackslash{}`,
	`{`, `\{`,
	`}`, `\}`,
	`$`, `\$`,
	`&`, `\&`,
	`%`, `\%`,
	`#`, `\#`,
	`^`, `\textasciicircum{}`,
	`_`, `\_`,
	`~`, `\textasciitilde{}`,
)

// EscapeLaTeX makes plain text safe for the fallback document. Bare
// exponent/subscript fragments are wrapped in inline math first; fragments
// already delimited by $ on both sides are kept verbatim. Everything else
// goes through character-level escaping exactly once.
func EscapeLaTeX(text string) string {
	var sb strings.Builder
	last := 0
	for _, loc := range mathFragment.FindAllStringIndex(text, -1) {
		start, end := loc[0], loc[1]
		if start < last {
			continue
		}
		if start > 0 && text[start-1] == '$' && end < len(text) && text[end] == '$' {
			// Existing inline math span; preserve it including delimiters.
			sb.WriteString(latexEscaper.Replace(text[last : start-1]))
			sb.WriteString(text[start-1 : end+1])
			last = end + 1
			continue
		}
		sb.WriteString(latexEscaper.Replace(text[last:start]))
		sb.WriteString("$" + text[start:end] + "$")
		last = end
	}
	sb.WriteString(latexEscaper.Replace(text[last:]))
	return sb.String()
}
