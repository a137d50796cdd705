package ui

import (
	"fmt"
	"regexp"
	"strings"
	"unicode/utf8"

	"github.com/charmbracelet/glamour"
)

// citePattern matches the inline citation tags the backend embeds in article
// text, e.g. [CITE:3] or [CITE: 3].
var citePattern = regexp.MustCompile(`\[CITE:\s*(\d+)\]`)

// RenderMarkdown renders a complete markdown document for the terminal. The
// input is always a whole document; callers never pass fragments, so the
// renderer is a pure function of its argument and keeps no state between
// calls.
func RenderMarkdown(markdown string, width int) string {
	if width <= 0 {
		width = 80
	}
	markdown = rewriteCitations(markdown)

	r, err := glamour.NewTermRenderer(
		glamour.WithAutoStyle(),
		glamour.WithWordWrap(width),
	)
	if err != nil {
		return markdown
	}
	out, err := r.Render(markdown)
	if err != nil {
		// The raw document is still readable without styling.
		return markdown
	}
	return out
}

// rewriteCitations turns backend [CITE:n] tags into compact [n] references
// before the document hits the markdown renderer.
func rewriteCitations(s string) string {
	return citePattern.ReplaceAllString(s, "[$1]")
}

// Stats summarizes a rendered article.
type Stats struct {
	Words       int
	Characters  int
	ReadingTime int // minutes
}

// wordsPerMinute matches the reading-time estimate the backend uses.
const wordsPerMinute = 200

// ComputeStats counts words and characters of a markdown document and
// estimates reading time.
func ComputeStats(markdown string) Stats {
	words := len(strings.Fields(markdown))
	minutes := words / wordsPerMinute
	if words > 0 && minutes == 0 {
		minutes = 1
	}
	return Stats{
		Words:       words,
		Characters:  utf8.RuneCountInString(markdown),
		ReadingTime: minutes,
	}
}

// String renders stats as the one-line footer shown under an article.
func (s Stats) String() string {
	return fmt.Sprintf("%d words · %d characters · ~%d min read", s.Words, s.Characters, s.ReadingTime)
}
