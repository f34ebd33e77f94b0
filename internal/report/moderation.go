package report

import (
	"bytes"
	"encoding/json"
	"fmt"

	orderedmap "github.com/wk8/go-ordered-map/v2"
)

// ModerationResponse is the document produced by the moderation service.
type ModerationResponse struct {
	Timestamp              string           `json:"timestamp,omitempty"`
	ProblematicSections    []Section        `json:"problematic_sections"`
	MisinformationSections []MisinfoSection `json:"misinformation_sections"`
}

// Section is a chunk of transcript with one or more flagged lines.
type Section struct {
	ChunkIndex   int    `json:"chunk_index"`
	FlaggedLines []Line `json:"flagged_lines"`
}

// Line is a single transcript line flagged for one or more policy categories.
type Line struct {
	LineNumber        int        `json:"line_number,omitempty"`
	Text              string     `json:"text"`
	FlaggedCategories Categories `json:"flagged_categories"`
}

// MisinfoSection is a chunk of transcript judged to contain misinformation.
type MisinfoSection struct {
	ChunkIndex            int            `json:"chunk_index"`
	Text                  string         `json:"text"`
	MisinformationDetails MisinfoDetails `json:"misinformation_details"`
}

// MisinfoDetails is the verdict attached to a MisinfoSection.
type MisinfoDetails struct {
	IsMisinformation bool    `json:"is_misinformation"`
	Confidence       float64 `json:"confidence"`
	Explanation      string  `json:"explanation"`
	Correction       string  `json:"correction,omitempty"`
}

// CategoryScore is the confidence that a line violates a named category.
// Valid is false when the incoming score was missing or not a number.
type CategoryScore struct {
	Score float64
	Valid bool
	Text  string
}

// NewCategoryScore returns a valid score.
func NewCategoryScore(score float64) CategoryScore {
	return CategoryScore{Score: score, Valid: true}
}

type categoryScoreJSON struct {
	Score any    `json:"score"`
	Text  string `json:"text,omitempty"`
}

// UnmarshalJSON never fails: anything that is not {"score": <number>} decodes
// to an invalid score.
func (c *CategoryScore) UnmarshalJSON(b []byte) error {
	*c = CategoryScore{}
	var raw categoryScoreJSON
	if err := json.Unmarshal(b, &raw); err != nil {
		return nil
	}
	c.Text = raw.Text
	if f, ok := raw.Score.(float64); ok {
		c.Score = f
		c.Valid = true
	}
	return nil
}

func (c CategoryScore) MarshalJSON() ([]byte, error) {
	out := categoryScoreJSON{Text: c.Text}
	if c.Valid {
		out.Score = c.Score
	}
	return json.Marshal(out)
}

// Categories maps category name to score and remembers insertion order.
type Categories struct {
	m *orderedmap.OrderedMap[string, CategoryScore]
}

// NewCategories builds a Categories holding pairs in the given order.
func NewCategories(pairs ...CategoryPair) Categories {
	c := Categories{m: orderedmap.New[string, CategoryScore]()}
	for _, p := range pairs {
		c.m.Set(p.Name, p.Score)
	}
	return c
}

// CategoryPair is one entry of Categories.
type CategoryPair struct {
	Name  string
	Score CategoryScore
}

// Set adds or replaces a category, keeping the original position on replace.
func (c *Categories) Set(name string, score CategoryScore) {
	if c.m == nil {
		c.m = orderedmap.New[string, CategoryScore]()
	}
	c.m.Set(name, score)
}

// Len returns the number of categories.
func (c Categories) Len() int {
	if c.m == nil {
		return 0
	}
	return c.m.Len()
}

// Pairs returns the categories in insertion order.
func (c Categories) Pairs() []CategoryPair {
	if c.m == nil {
		return nil
	}
	out := make([]CategoryPair, 0, c.m.Len())
	for p := c.m.Oldest(); p != nil; p = p.Next() {
		out = append(out, CategoryPair{Name: p.Key, Score: p.Value})
	}
	return out
}

// UnmarshalJSON keeps the key order of the JSON object. A value that is not an
// object (null, array, scalar) decodes to an empty set.
func (c *Categories) UnmarshalJSON(b []byte) error {
	c.m = orderedmap.New[string, CategoryScore]()
	trimmed := bytes.TrimSpace(b)
	if len(trimmed) == 0 || trimmed[0] != '{' {
		return nil
	}
	m := orderedmap.New[string, CategoryScore]()
	if err := json.Unmarshal(trimmed, m); err != nil {
		return nil
	}
	c.m = m
	return nil
}

func (c Categories) MarshalJSON() ([]byte, error) {
	if c.m == nil {
		return []byte("{}"), nil
	}
	return json.Marshal(c.m)
}

// lenient decodes raw into a T, yielding the zero value when the field is
// absent or has the wrong JSON type.
func lenient[T any](raw json.RawMessage) T {
	var v T
	if len(raw) == 0 {
		return v
	}
	if err := json.Unmarshal(raw, &v); err != nil {
		var zero T
		return zero
	}
	return v
}

// lenientList decodes a JSON array element by element. A value that is not an
// array yields nil and elements that do not decode are dropped.
func lenientList[T any](raw json.RawMessage) []T {
	var elems []json.RawMessage
	if err := json.Unmarshal(raw, &elems); err != nil || elems == nil {
		return nil
	}
	out := make([]T, 0, len(elems))
	for _, e := range elems {
		var v T
		if json.Unmarshal(e, &v) == nil {
			out = append(out, v)
		}
	}
	return out
}

// UnmarshalJSON accepts any JSON object. Fields of the wrong type read as
// absent.
func (r *ModerationResponse) UnmarshalJSON(b []byte) error {
	var raw struct {
		Timestamp              json.RawMessage `json:"timestamp"`
		ProblematicSections    json.RawMessage `json:"problematic_sections"`
		MisinformationSections json.RawMessage `json:"misinformation_sections"`
	}
	if err := json.Unmarshal(b, &raw); err != nil {
		return err
	}
	*r = ModerationResponse{
		Timestamp:              lenient[string](raw.Timestamp),
		ProblematicSections:    lenientList[Section](raw.ProblematicSections),
		MisinformationSections: lenientList[MisinfoSection](raw.MisinformationSections),
	}
	return nil
}

func (s *Section) UnmarshalJSON(b []byte) error {
	var raw struct {
		ChunkIndex   json.RawMessage `json:"chunk_index"`
		FlaggedLines json.RawMessage `json:"flagged_lines"`
	}
	if err := json.Unmarshal(b, &raw); err != nil {
		return err
	}
	*s = Section{
		ChunkIndex:   lenient[int](raw.ChunkIndex),
		FlaggedLines: lenientList[Line](raw.FlaggedLines),
	}
	return nil
}

func (l *Line) UnmarshalJSON(b []byte) error {
	var raw struct {
		LineNumber        json.RawMessage `json:"line_number"`
		Text              json.RawMessage `json:"text"`
		FlaggedCategories json.RawMessage `json:"flagged_categories"`
	}
	if err := json.Unmarshal(b, &raw); err != nil {
		return err
	}
	*l = Line{
		LineNumber:        lenient[int](raw.LineNumber),
		Text:              lenient[string](raw.Text),
		FlaggedCategories: lenient[Categories](raw.FlaggedCategories),
	}
	return nil
}

func (m *MisinfoSection) UnmarshalJSON(b []byte) error {
	var raw struct {
		ChunkIndex            json.RawMessage `json:"chunk_index"`
		Text                  json.RawMessage `json:"text"`
		MisinformationDetails json.RawMessage `json:"misinformation_details"`
	}
	if err := json.Unmarshal(b, &raw); err != nil {
		return err
	}
	*m = MisinfoSection{
		ChunkIndex:            lenient[int](raw.ChunkIndex),
		Text:                  lenient[string](raw.Text),
		MisinformationDetails: lenient[MisinfoDetails](raw.MisinformationDetails),
	}
	return nil
}

// UnmarshalJSON reads a non-numeric confidence as 0.
func (d *MisinfoDetails) UnmarshalJSON(b []byte) error {
	var raw struct {
		IsMisinformation json.RawMessage `json:"is_misinformation"`
		Confidence       json.RawMessage `json:"confidence"`
		Explanation      json.RawMessage `json:"explanation"`
		Correction       json.RawMessage `json:"correction"`
	}
	if err := json.Unmarshal(b, &raw); err != nil {
		return err
	}
	*d = MisinfoDetails{
		IsMisinformation: lenient[bool](raw.IsMisinformation),
		Confidence:       lenient[float64](raw.Confidence),
		Explanation:      lenient[string](raw.Explanation),
		Correction:       lenient[string](raw.Correction),
	}
	return nil
}

// DecodeModeration parses a moderation service response. Only a body that is
// not a JSON object is reported as ErrMalformedInput; wrongly typed fields
// inside it degrade to their zero values.
func DecodeModeration(data []byte) (*ModerationResponse, error) {
	trimmed := bytes.TrimSpace(data)
	if len(trimmed) == 0 || bytes.Equal(trimmed, []byte("null")) {
		return nil, ErrMalformedInput
	}
	var resp ModerationResponse
	if err := json.Unmarshal(trimmed, &resp); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformedInput, err)
	}
	return &resp, nil
}
