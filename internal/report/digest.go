package report

import (
	"fmt"
	"strings"
)

const entrySeparator = "\n\n"

// FlaggedContentDigest renders every flagged line as
//
//	Text: <text>
//	Categories: <name>: <pct>%, <name>: <pct>%
//
// with entries separated by a blank line. Categories keep their original order;
// categories without a numeric score are left out.
func FlaggedContentDigest(sections []Section) string {
	var entries []string
	for _, s := range sections {
		for _, line := range s.FlaggedLines {
			entries = append(entries, formatFlaggedLine(line))
		}
	}
	return strings.Join(entries, entrySeparator)
}

func formatFlaggedLine(line Line) string {
	pairs := line.FlaggedCategories.Pairs()
	cats := make([]string, 0, len(pairs))
	for _, p := range pairs {
		if !p.Score.Valid {
			continue
		}
		cats = append(cats, fmt.Sprintf("%s: %d%%", p.Name, percent(p.Score.Score)))
	}
	return "Text: " + line.Text + "\nCategories: " + strings.Join(cats, ", ")
}

// MisinformationDigest renders every misinformation section as text, confidence
// and explanation. The correction is not included.
func MisinformationDigest(sections []MisinfoSection) string {
	entries := make([]string, 0, len(sections))
	for _, s := range sections {
		d := s.MisinformationDetails
		entries = append(entries, fmt.Sprintf("Text: %s\nConfidence: %d%%\n\nExplanation:\n\n%s",
			s.Text, percent(d.Confidence), d.Explanation))
	}
	return strings.Join(entries, entrySeparator)
}
