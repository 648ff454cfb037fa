package services

import (
	"regexp"
	"strings"
)

var multiSpace = regexp.MustCompile(`[ ]{2,}`)
var disallowedChars = regexp.MustCompile(`[^a-zA-Z0-9\s.,;:!?'"-]`)

// CleanText normalizes submitted text before synthesis: typographic
// quotes and dashes become plain ASCII, tabs and repeated spaces
// collapse, and characters the downstream filters cannot carry are
// stripped. Newlines are preserved.
func CleanText(text string) string {
	replacer := strings.NewReplacer(
		"’", "'",
		"‘", "'",
		"“", `"`,
		"”", `"`,
		"—", "; ",
		"–", "-",
		"…", "...",
		"\t", " ",
	)
	text = replacer.Replace(text)
	text = disallowedChars.ReplaceAllString(text, "")
	text = multiSpace.ReplaceAllString(text, " ")

	// Drop empty lines left behind by stripping.
	lines := strings.Split(text, "\n")
	kept := lines[:0]
	for _, line := range lines {
		if strings.TrimSpace(line) != "" {
			kept = append(kept, line)
		}
	}
	return strings.TrimSpace(strings.Join(kept, "\n"))
}
