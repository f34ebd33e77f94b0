// Package report turns a moderation response into the summary that is sent to
// the automation webhook and shown to the uploader.
package report

import (
	"errors"
	"strings"
	"time"
)

// ErrMalformedInput is returned when there is no moderation response to build from.
var ErrMalformedInput = errors.New("malformed moderation response")

// isoMillis is RFC 3339 with fixed millisecond precision.
const isoMillis = "2006-01-02T15:04:05.000Z07:00"

// Report is the normalized summary of one moderated upload.
type Report struct {
	EpisodeName           string `json:"episodeName" yaml:"episodeName"`
	RiskScore             int    `json:"riskScore" yaml:"riskScore"`
	FlaggedContent        string `json:"flaggedContent" yaml:"flaggedContent"`
	MisinformationContent string `json:"misinformationContent" yaml:"misinformationContent"`
	Transcript            string `json:"transcript" yaml:"transcript"`
	Timestamp             string `json:"timestamp" yaml:"timestamp"`
}

// Clock supplies the current time.
type Clock interface {
	Now() time.Time
}

// SystemClock reads the process clock.
type SystemClock struct{}

func (SystemClock) Now() time.Time { return time.Now() }

// FixedClock always returns the same instant.
type FixedClock time.Time

func (c FixedClock) Now() time.Time { return time.Time(c) }

// Input is everything Build needs for one upload.
type Input struct {
	Transcript  string
	Moderation  *ModerationResponse
	EpisodeName string // optional, overrides the transcript heuristic
}

// Builder builds reports. The zero value uses the system clock.
type Builder struct {
	Clock Clock
}

// NewBuilder returns a Builder reading time from clock.
func NewBuilder(clock Clock) *Builder {
	return &Builder{Clock: clock}
}

func (b *Builder) now() time.Time {
	if b == nil || b.Clock == nil {
		return time.Now()
	}
	return b.Clock.Now()
}

// Build assembles a Report. Missing nested fields degrade to empty output;
// only a nil moderation response is an error.
func (b *Builder) Build(in Input) (*Report, error) {
	if in.Moderation == nil {
		return nil, ErrMalformedInput
	}
	now := b.now()
	mod := in.Moderation

	name := strings.TrimSpace(in.EpisodeName)
	if name == "" {
		name = ExtractEpisodeName(in.Transcript, now)
	}

	ts := strings.TrimSpace(mod.Timestamp)
	if ts == "" {
		ts = now.UTC().Format(isoMillis)
	}

	return &Report{
		EpisodeName:           name,
		RiskScore:             ComputeRiskScore(mod.ProblematicSections),
		FlaggedContent:        FlaggedContentDigest(mod.ProblematicSections),
		MisinformationContent: MisinformationDigest(mod.MisinformationSections),
		Transcript:            in.Transcript,
		Timestamp:             ts,
	}, nil
}
