package report

import (
	"strings"
	"time"
)

// titleScanLines is how many leading transcript lines are searched for a title.
const titleScanLines = 10

// DefaultEpisodeName is the fallback title for the given day (UTC).
func DefaultEpisodeName(now time.Time) string {
	return "Podcast Episode - " + now.UTC().Format("2006-01-02")
}

// ExtractEpisodeName is a heuristic: it returns the first of the leading lines
// that looks like "Episode: ...", "Title: ..." or "... Episode ... - ...".
// Titles that don't follow those shapes are missed and unrelated lines that do
// are picked up.
func ExtractEpisodeName(transcript string, now time.Time) string {
	if transcript == "" {
		return DefaultEpisodeName(now)
	}
	lines := strings.SplitN(transcript, "\n", titleScanLines+1)
	if len(lines) > titleScanLines {
		lines = lines[:titleScanLines]
	}
	for _, line := range lines {
		if strings.Contains(line, "Episode:") ||
			strings.Contains(line, "Title:") ||
			(strings.Contains(line, "Episode") && strings.Contains(line, "-")) {
			return strings.TrimSpace(line)
		}
	}
	return DefaultEpisodeName(now)
}
