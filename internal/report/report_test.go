package report

import (
	"regexp"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var testNow = time.Date(2025, 3, 9, 23, 30, 15, 123_000_000, time.UTC)

func line(text string, pairs ...CategoryPair) Line {
	return Line{Text: text, FlaggedCategories: NewCategories(pairs...)}
}

func cat(name string, score float64) CategoryPair {
	return CategoryPair{Name: name, Score: NewCategoryScore(score)}
}

func TestComputeRiskScore(t *testing.T) {
	t.Run("nil_and_empty", func(t *testing.T) {
		assert.Equal(t, 0, ComputeRiskScore(nil))
		assert.Equal(t, 0, ComputeRiskScore([]Section{}))
	})

	t.Run("sections_without_lines_or_categories", func(t *testing.T) {
		sections := []Section{
			{ChunkIndex: 0},
			{ChunkIndex: 1, FlaggedLines: []Line{{Text: "no categories"}}},
		}
		assert.Equal(t, 0, ComputeRiskScore(sections))
	})

	t.Run("mean_of_all_scores", func(t *testing.T) {
		sections := []Section{
			{FlaggedLines: []Line{line("a", cat("hate", 0.5))}},
			{FlaggedLines: []Line{line("b", cat("violence", 0.7))}},
		}
		assert.Equal(t, 60, ComputeRiskScore(sections))
	})

	t.Run("invalid_scores_skipped", func(t *testing.T) {
		l := line("a", cat("hate", 0.9))
		l.FlaggedCategories.Set("harassment", CategoryScore{})
		assert.Equal(t, 90, ComputeRiskScore([]Section{{FlaggedLines: []Line{l}}}))
	})

	t.Run("zero_score_counts", func(t *testing.T) {
		sections := []Section{{FlaggedLines: []Line{line("a", cat("hate", 0), cat("violence", 1))}}}
		assert.Equal(t, 50, ComputeRiskScore(sections))
	})

	t.Run("half_rounds_away_from_zero", func(t *testing.T) {
		sections := []Section{{FlaggedLines: []Line{line("a", cat("hate", 0.125), cat("violence", 0.125))}}}
		// 12.5 -> 13
		assert.Equal(t, 13, ComputeRiskScore(sections))
	})

	t.Run("order_independent", func(t *testing.T) {
		a := Section{FlaggedLines: []Line{line("a", cat("hate", 0.91), cat("sexual", 0.2))}}
		b := Section{FlaggedLines: []Line{line("b", cat("violence", 0.33)), line("c", cat("self-harm", 0.8))}}
		assert.Equal(t, ComputeRiskScore([]Section{a, b}), ComputeRiskScore([]Section{b, a}))

		rev := Section{FlaggedLines: []Line{b.FlaggedLines[1], b.FlaggedLines[0]}}
		assert.Equal(t, ComputeRiskScore([]Section{a, b}), ComputeRiskScore([]Section{rev, a}))
	})

	t.Run("clamped", func(t *testing.T) {
		sections := []Section{{FlaggedLines: []Line{line("a", cat("hate", 3))}}}
		assert.Equal(t, 100, ComputeRiskScore(sections))
	})
}

func TestExtractEpisodeName(t *testing.T) {
	defaultRe := regexp.MustCompile(`^Podcast Episode - \d{4}-\d{2}-\d{2}$`)

	t.Run("empty_uses_default", func(t *testing.T) {
		got := ExtractEpisodeName("", testNow)
		assert.Regexp(t, defaultRe, got)
		assert.Equal(t, "Podcast Episode - 2025-03-09", got)
	})

	t.Run("episode_colon", func(t *testing.T) {
		assert.Equal(t, "Episode: The Truth", ExtractEpisodeName("Episode: The Truth\nmore text", testNow))
	})

	t.Run("title_colon_trimmed", func(t *testing.T) {
		assert.Equal(t, "Title: Deep Dive", ExtractEpisodeName("intro\n   Title: Deep Dive  \r\nbody", testNow))
	})

	t.Run("episode_and_dash", func(t *testing.T) {
		assert.Equal(t, "Episode 12 - Markets", ExtractEpisodeName("Episode 12 - Markets\nhello", testNow))
	})

	t.Run("episode_without_dash_ignored", func(t *testing.T) {
		assert.Equal(t, "Podcast Episode - 2025-03-09", ExtractEpisodeName("this Episode is fun\nbye", testNow))
	})

	t.Run("match_after_line_ten_ignored", func(t *testing.T) {
		lines := make([]string, 10)
		for i := range lines {
			lines[i] = "filler"
		}
		transcript := strings.Join(lines, "\n") + "\nEpisode: Too Late"
		assert.Equal(t, "Podcast Episode - 2025-03-09", ExtractEpisodeName(transcript, testNow))
	})

	t.Run("match_on_line_ten", func(t *testing.T) {
		lines := make([]string, 9)
		for i := range lines {
			lines[i] = "filler"
		}
		transcript := strings.Join(lines, "\n") + "\nTitle: Just In Time\nmore"
		assert.Equal(t, "Title: Just In Time", ExtractEpisodeName(transcript, testNow))
	})

	t.Run("default_date_is_utc", func(t *testing.T) {
		local := time.Date(2025, 3, 10, 1, 0, 0, 0, time.FixedZone("UTC+3", 3*3600))
		assert.Equal(t, "Podcast Episode - 2025-03-09", ExtractEpisodeName("", local))
	})
}

func TestFlaggedContentDigest(t *testing.T) {
	t.Run("original_key_order", func(t *testing.T) {
		sections := []Section{{FlaggedLines: []Line{line("you people are awful", cat("toxicity", 0.91), cat("hate", 0.33))}}}
		assert.Equal(t, "Text: you people are awful\nCategories: toxicity: 91%, hate: 33%", FlaggedContentDigest(sections))
	})

	t.Run("entries_separated_by_blank_line", func(t *testing.T) {
		sections := []Section{
			{FlaggedLines: []Line{line("one", cat("hate", 0.8))}},
			{},
			{FlaggedLines: []Line{line("two", cat("violence", 0.854))}},
		}
		want := "Text: one\nCategories: hate: 80%\n\nText: two\nCategories: violence: 85%"
		assert.Equal(t, want, FlaggedContentDigest(sections))
	})

	t.Run("empty", func(t *testing.T) {
		assert.Equal(t, "", FlaggedContentDigest(nil))
	})
}

func TestMisinformationDigest(t *testing.T) {
	sections := []MisinfoSection{
		{Text: "the moon is cheese", MisinformationDetails: MisinfoDetails{
			IsMisinformation: true, Confidence: 0.97, Explanation: "It is rock.", Correction: "The moon is rock.",
		}},
		{Text: "vaccines contain chips", MisinformationDetails: MisinfoDetails{Confidence: 0.885, Explanation: "No chips."}},
	}
	want := "Text: the moon is cheese\nConfidence: 97%\n\nExplanation:\n\nIt is rock." +
		"\n\n" +
		"Text: vaccines contain chips\nConfidence: 89%\n\nExplanation:\n\nNo chips."
	got := MisinformationDigest(sections)
	assert.Equal(t, want, got)
	assert.NotContains(t, got, "The moon is rock.")
	assert.Equal(t, "", MisinformationDigest(nil))
}

func TestBuilderBuild(t *testing.T) {
	b := NewBuilder(FixedClock(testNow))

	t.Run("nil_response_is_malformed", func(t *testing.T) {
		_, err := b.Build(Input{Transcript: "hello"})
		require.ErrorIs(t, err, ErrMalformedInput)
	})

	t.Run("empty_response", func(t *testing.T) {
		r, err := b.Build(Input{
			Transcript: "Episode: Pilot\nhi",
			Moderation: &ModerationResponse{ProblematicSections: []Section{}, MisinformationSections: []MisinfoSection{}},
		})
		require.NoError(t, err)
		assert.Equal(t, 0, r.RiskScore)
		assert.Empty(t, r.FlaggedContent)
		assert.Empty(t, r.MisinformationContent)
		assert.Equal(t, "Episode: Pilot", r.EpisodeName)
		assert.Equal(t, "Episode: Pilot\nhi", r.Transcript)
		assert.Equal(t, "2025-03-09T23:30:15.123Z", r.Timestamp)
	})

	t.Run("provided_name_wins", func(t *testing.T) {
		r, err := b.Build(Input{
			Transcript:  "Episode: From Transcript",
			Moderation:  &ModerationResponse{},
			EpisodeName: "My Show",
		})
		require.NoError(t, err)
		assert.Equal(t, "My Show", r.EpisodeName)
	})

	t.Run("response_timestamp_passes_through", func(t *testing.T) {
		r, err := b.Build(Input{Moderation: &ModerationResponse{Timestamp: "2024-12-01T10:00:00"}})
		require.NoError(t, err)
		assert.Equal(t, "2024-12-01T10:00:00", r.Timestamp)
		assert.Equal(t, "Podcast Episode - 2025-03-09", r.EpisodeName)
	})

	t.Run("full", func(t *testing.T) {
		r, err := b.Build(Input{
			Transcript: "welcome",
			Moderation: &ModerationResponse{
				ProblematicSections: []Section{{FlaggedLines: []Line{line("bad", cat("hate", 0.5), cat("violence", 0.7))}}},
				MisinformationSections: []MisinfoSection{{Text: "flat earth", MisinformationDetails: MisinfoDetails{
					Confidence: 0.9, Explanation: "It is round.",
				}}},
			},
		})
		require.NoError(t, err)
		assert.Equal(t, 60, r.RiskScore)
		assert.Equal(t, "Text: bad\nCategories: hate: 50%, violence: 70%", r.FlaggedContent)
		assert.Equal(t, "Text: flat earth\nConfidence: 90%\n\nExplanation:\n\nIt is round.", r.MisinformationContent)
	})

	t.Run("zero_builder_uses_system_clock", func(t *testing.T) {
		var zero Builder
		r, err := zero.Build(Input{Moderation: &ModerationResponse{}})
		require.NoError(t, err)
		assert.NotEmpty(t, r.Timestamp)
	})
}
