package extraction

import (
	"regexp"
	"strings"
)

var (
	horizontalRun = regexp.MustCompile(`[ \t\f\v\x{00a0}]+`)
	blankRun      = regexp.MustCompile(`\n{3,}`)
)

// CleanText normalizes extracted text: line endings become \n, runs of
// horizontal whitespace become one space, lines are trimmed and runs of
// blank lines collapse to a single blank line.
func CleanText(raw string) string {
	s := strings.ReplaceAll(raw, "\r\n", "\n")
	s = strings.ReplaceAll(s, "\r", "\n")

	lines := strings.Split(s, "\n")
	for i, line := range lines {
		lines[i] = strings.TrimSpace(horizontalRun.ReplaceAllString(line, " "))
	}
	s = strings.Join(lines, "\n")

	s = blankRun.ReplaceAllString(s, "\n\n")
	return strings.TrimSpace(s)
}

func WordCount(s string) int {
	return len(strings.Fields(s))
}
