package drive

import "strings"

type styleRange struct {
	start int
	end   int
	named string
}

// renderMarkdown flattens markdown into plain document text plus the
// heading paragraph styles to apply after insertion. Offsets are zero
// based runes into the rendered text; #, ## and ### map to HEADING_1..3,
// everything else stays NORMAL_TEXT. Inline markers are stripped.
func renderMarkdown(markdown string) (string, []styleRange) {
	lines := strings.Split(strings.ReplaceAll(markdown, "\r\n", "\n"), "\n")

	var b strings.Builder
	styles := make([]styleRange, 0, 4)
	offset := 0

	for _, line := range lines {
		text := line
		named := ""
		switch {
		case strings.HasPrefix(line, "### "):
			named = "HEADING_3"
			text = strings.TrimPrefix(line, "### ")
		case strings.HasPrefix(line, "## "):
			named = "HEADING_2"
			text = strings.TrimPrefix(line, "## ")
		case strings.HasPrefix(line, "# "):
			named = "HEADING_1"
			text = strings.TrimPrefix(line, "# ")
		}
		text = stripInlineMarkers(text)

		length := len([]rune(text)) + 1 // trailing newline
		if named != "" {
			styles = append(styles, styleRange{start: offset, end: offset + length, named: named})
		}
		b.WriteString(text)
		b.WriteString("\n")
		offset += length
	}

	return b.String(), styles
}

func stripInlineMarkers(text string) string {
	text = strings.ReplaceAll(text, "**", "")
	text = strings.ReplaceAll(text, "__", "")
	if strings.HasPrefix(text, "- ") {
		text = "• " + strings.TrimPrefix(text, "- ")
	}
	if strings.HasPrefix(text, "* ") {
		text = "• " + strings.TrimPrefix(text, "* ")
	}
	return text
}
