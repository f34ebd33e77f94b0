package report

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const sampleModeration = `{
  "timestamp": "2025-01-02T03:04:05.678901",
  "problematic_sections": [
    {
      "chunk_index": 0,
      "flagged_lines": [
        {
          "line_number": 3,
          "text": "line one",
          "flagged_categories": {
            "violence": {"score": 0.91, "text": "line one"},
            "hate": {"score": 0.33, "text": "line one"},
            "harassment": {"score": "high"},
            "self-harm": null
          }
        }
      ]
    },
    {"chunk_index": 2},
    {"chunk_index": 3, "flagged_lines": [{"text": "odd", "flagged_categories": ["hate"]}]}
  ],
  "misinformation_sections": [
    {
      "chunk_index": 1,
      "text": "claim",
      "misinformation_details": {
        "is_misinformation": true,
        "confidence": 0.8,
        "explanation": "wrong",
        "correction": "right"
      }
    }
  ]
}`

func TestDecodeModeration(t *testing.T) {
	resp, err := DecodeModeration([]byte(sampleModeration))
	require.NoError(t, err)

	assert.Equal(t, "2025-01-02T03:04:05.678901", resp.Timestamp)
	require.Len(t, resp.ProblematicSections, 3)

	pairs := resp.ProblematicSections[0].FlaggedLines[0].FlaggedCategories.Pairs()
	require.Len(t, pairs, 4)
	names := []string{pairs[0].Name, pairs[1].Name, pairs[2].Name, pairs[3].Name}
	assert.Equal(t, []string{"violence", "hate", "harassment", "self-harm"}, names)
	assert.True(t, pairs[0].Score.Valid)
	assert.InDelta(t, 0.91, pairs[0].Score.Score, 1e-9)
	assert.Equal(t, "line one", pairs[0].Score.Text)
	assert.False(t, pairs[2].Score.Valid)
	assert.False(t, pairs[3].Score.Valid)

	assert.Nil(t, resp.ProblematicSections[1].FlaggedLines)
	assert.Equal(t, 0, resp.ProblematicSections[2].FlaggedLines[0].FlaggedCategories.Len())

	require.Len(t, resp.MisinformationSections, 1)
	assert.Equal(t, "right", resp.MisinformationSections[0].MisinformationDetails.Correction)

	// Only the two numeric scores count.
	assert.Equal(t, 62, ComputeRiskScore(resp.ProblematicSections))
	assert.Equal(t, "Text: line one\nCategories: violence: 91%, hate: 33%\n\nText: odd\nCategories: ",
		FlaggedContentDigest(resp.ProblematicSections))
}

func TestDecodeModeration_Null(t *testing.T) {
	_, err := DecodeModeration([]byte("null"))
	require.ErrorIs(t, err, ErrMalformedInput)

	_, err = DecodeModeration(nil)
	require.ErrorIs(t, err, ErrMalformedInput)

	_, err = DecodeModeration([]byte(`[{"chunk_index": 0}]`))
	require.ErrorIs(t, err, ErrMalformedInput)

	_, err = DecodeModeration([]byte(`"done"`))
	require.ErrorIs(t, err, ErrMalformedInput)
}

func TestDecodeModeration_WrongTypesDegrade(t *testing.T) {
	tests := []struct {
		name  string
		body  string
		check func(t *testing.T, resp *ModerationResponse)
	}{
		{
			name: "numeric_timestamp_is_absent",
			body: `{"timestamp": 1700000000}`,
			check: func(t *testing.T, resp *ModerationResponse) {
				assert.Empty(t, resp.Timestamp)
			},
		},
		{
			name: "sections_not_arrays",
			body: `{"problematic_sections": 5, "misinformation_sections": {"chunk_index": 1}}`,
			check: func(t *testing.T, resp *ModerationResponse) {
				assert.Empty(t, resp.ProblematicSections)
				assert.Empty(t, resp.MisinformationSections)
			},
		},
		{
			name: "flagged_lines_object",
			body: `{"problematic_sections": [{"chunk_index": 4, "flagged_lines": {}}]}`,
			check: func(t *testing.T, resp *ModerationResponse) {
				require.Len(t, resp.ProblematicSections, 1)
				assert.Equal(t, 4, resp.ProblematicSections[0].ChunkIndex)
				assert.Empty(t, resp.ProblematicSections[0].FlaggedLines)
				assert.Equal(t, 0, ComputeRiskScore(resp.ProblematicSections))
			},
		},
		{
			name: "bad_elements_dropped",
			body: `{"problematic_sections": ["junk", {"flagged_lines": [7, {"text": 12, "flagged_categories": {"hate": {"score": 0.4}}}]}]}`,
			check: func(t *testing.T, resp *ModerationResponse) {
				require.Len(t, resp.ProblematicSections, 1)
				lines := resp.ProblematicSections[0].FlaggedLines
				require.Len(t, lines, 1)
				assert.Empty(t, lines[0].Text)
				assert.Equal(t, 40, ComputeRiskScore(resp.ProblematicSections))
			},
		},
		{
			name: "string_confidence_counts_as_zero",
			body: `{"misinformation_sections": [{"text": "claim", "misinformation_details": {"is_misinformation": true, "confidence": "0.9", "explanation": "wrong"}}]}`,
			check: func(t *testing.T, resp *ModerationResponse) {
				require.Len(t, resp.MisinformationSections, 1)
				d := resp.MisinformationSections[0].MisinformationDetails
				assert.True(t, d.IsMisinformation)
				assert.Zero(t, d.Confidence)
				assert.Equal(t, "wrong", d.Explanation)
				assert.Contains(t, MisinformationDigest(resp.MisinformationSections), "Confidence: 0%")
			},
		},
		{
			name: "details_not_an_object",
			body: `{"misinformation_sections": [{"chunk_index": 2, "text": "claim", "misinformation_details": "yes"}]}`,
			check: func(t *testing.T, resp *ModerationResponse) {
				require.Len(t, resp.MisinformationSections, 1)
				assert.Equal(t, "claim", resp.MisinformationSections[0].Text)
				assert.False(t, resp.MisinformationSections[0].MisinformationDetails.IsMisinformation)
			},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			resp, err := DecodeModeration([]byte(tt.body))
			require.NoError(t, err)
			tt.check(t, resp)
		})
	}
}

func TestBuild_NumericTimestampGetsDefault(t *testing.T) {
	resp, err := DecodeModeration([]byte(`{"timestamp": 1700000000, "problematic_sections": []}`))
	require.NoError(t, err)

	rep, err := NewBuilder(FixedClock(testNow)).Build(Input{Moderation: resp})
	require.NoError(t, err)
	assert.Equal(t, "2025-03-09T23:30:15.123Z", rep.Timestamp)
}

func TestCategories_MarshalKeepsOrder(t *testing.T) {
	c := NewCategories(cat("zeta", 0.5), cat("alpha", 0.25))
	b, err := json.Marshal(c)
	require.NoError(t, err)
	assert.JSONEq(t, `{"zeta":{"score":0.5},"alpha":{"score":0.25}}`, string(b))
	assert.Less(t, indexOf(string(b), "zeta"), indexOf(string(b), "alpha"))

	var empty Categories
	b, err = json.Marshal(empty)
	require.NoError(t, err)
	assert.Equal(t, "{}", string(b))
}

func indexOf(s, sub string) int {
	for i := 0; i+len(sub) <= len(s); i++ {
		if s[i:i+len(sub)] == sub {
			return i
		}
	}
	return -1
}
