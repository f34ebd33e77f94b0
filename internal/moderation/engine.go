package moderation

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"sort"
	"strings"
	"time"

	"github.com/rs/zerolog"
	openai "github.com/sashabaranov/go-openai"
	"github.com/sethvargo/go-retry"
	"golang.org/x/sync/errgroup"

	"github.com/snarg/podcheck/internal/report"
)

// serviceTimestamp is a zoneless UTC timestamp with microseconds.
const serviceTimestamp = "2006-01-02T15:04:05.000000"

const (
	misinfoSystemPrompt = "Analyze the text for misinformation. Return only definite misinformation with high confidence."
	misinfoUserPrompt   = "Text:\n\n%s\n\nReturn JSON: is_misinformation (boolean), confidence (0-1), explanation, correction."
)

// API is the subset of the OpenAI client the engine calls. *openai.Client
// satisfies it.
type API interface {
	Moderations(ctx context.Context, req openai.ModerationRequest) (openai.ModerationResponse, error)
	CreateChatCompletion(ctx context.Context, req openai.ChatCompletionRequest) (openai.ChatCompletionResponse, error)
}

// EngineOptions configures an Engine.
type EngineOptions struct {
	API                 API
	ModerationModel     string
	ChatModel           string
	ChunkSize           int
	ChunkOverlap        int
	Threshold           float64
	Workers             int
	CheckMisinformation bool
	RetryBase           time.Duration // first backoff after a 429
	MaxAttempts         uint64
	Clock               report.Clock
	Log                 zerolog.Logger
}

// Engine moderates transcripts directly against the OpenAI moderation and
// chat APIs. Implements the Moderator interface.
type Engine struct {
	api         API
	modModel    string
	chatModel   string
	splitter    *Splitter
	threshold   float64
	workers     int
	misinfo     bool
	retryBase   time.Duration
	maxAttempts uint64
	clock       report.Clock
	log         zerolog.Logger
}

// NewEngine creates an Engine, filling unset options with defaults.
func NewEngine(opts EngineOptions) *Engine {
	if opts.ModerationModel == "" {
		opts.ModerationModel = "omni-moderation-latest"
	}
	if opts.ChatModel == "" {
		opts.ChatModel = openai.GPT4o
	}
	if opts.ChunkSize <= 0 {
		opts.ChunkSize = 600
	}
	if opts.ChunkOverlap < 0 || opts.ChunkOverlap >= opts.ChunkSize {
		opts.ChunkOverlap = 0
	}
	if opts.Workers <= 0 {
		opts.Workers = 5
	}
	if opts.RetryBase <= 0 {
		opts.RetryBase = time.Second
	}
	if opts.MaxAttempts == 0 {
		opts.MaxAttempts = 5
	}
	if opts.Clock == nil {
		opts.Clock = report.SystemClock{}
	}
	return &Engine{
		api:         opts.API,
		modModel:    opts.ModerationModel,
		chatModel:   opts.ChatModel,
		splitter:    NewSplitter(opts.ChunkSize, opts.ChunkOverlap),
		threshold:   opts.Threshold,
		workers:     opts.Workers,
		misinfo:     opts.CheckMisinformation,
		retryBase:   opts.RetryBase,
		maxAttempts: opts.MaxAttempts,
		clock:       opts.Clock,
		log:         opts.Log,
	}
}

// NewOpenAIEngine builds an Engine backed by the real OpenAI API.
func NewOpenAIEngine(apiKey, baseURL string, opts EngineOptions) *Engine {
	cfg := openai.DefaultConfig(apiKey)
	if baseURL != "" {
		cfg.BaseURL = baseURL
	}
	opts.API = openai.NewClientWithConfig(cfg)
	return NewEngine(opts)
}

type chunkResult struct {
	harm    *report.Section
	misinfo *report.MisinfoSection
}

// Moderate splits the transcript into chunks and checks them concurrently.
// Per-chunk API failures are logged and the chunk contributes nothing; only
// cancellation of ctx fails the whole run.
func (e *Engine) Moderate(ctx context.Context, transcript string) (*report.ModerationResponse, error) {
	chunks := e.splitter.Split(transcript)
	e.log.Debug().Int("chunks", len(chunks)).Msg("moderating transcript")

	results := make([]chunkResult, len(chunks))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(e.workers)
	for i, chunk := range chunks {
		g.Go(func() error {
			results[i] = e.processChunk(gctx, i, chunk)
			return nil
		})
	}
	_ = g.Wait()
	if err := ctx.Err(); err != nil {
		return nil, fmt.Errorf("moderate transcript: %w", err)
	}

	resp := &report.ModerationResponse{
		Timestamp:              e.clock.Now().UTC().Format(serviceTimestamp),
		ProblematicSections:    []report.Section{},
		MisinformationSections: []report.MisinfoSection{},
	}
	for _, r := range results {
		if r.harm != nil {
			resp.ProblematicSections = append(resp.ProblematicSections, *r.harm)
		}
		if r.misinfo != nil {
			resp.MisinformationSections = append(resp.MisinformationSections, *r.misinfo)
		}
	}
	sort.SliceStable(resp.ProblematicSections, func(a, b int) bool {
		return resp.ProblematicSections[a].ChunkIndex < resp.ProblematicSections[b].ChunkIndex
	})
	sort.SliceStable(resp.MisinformationSections, func(a, b int) bool {
		return resp.MisinformationSections[a].ChunkIndex < resp.MisinformationSections[b].ChunkIndex
	})
	return resp, nil
}

func (e *Engine) processChunk(ctx context.Context, idx int, chunk string) chunkResult {
	log := e.log.With().Int("chunk", idx).Logger()
	var res chunkResult

	flagged, err := e.flagged(ctx, chunk)
	if err != nil {
		log.Warn().Err(err).Msg("chunk moderation failed")
		return res
	}
	if flagged {
		if lines := e.flaggedLines(ctx, log, chunk); len(lines) > 0 {
			res.harm = &report.Section{ChunkIndex: idx, FlaggedLines: lines}
		}
	}

	if e.misinfo {
		text := strings.TrimSpace(chunk)
		details, err := e.checkMisinformation(ctx, text)
		if err != nil {
			log.Warn().Err(err).Msg("misinformation check failed")
		} else if details.IsMisinformation {
			res.misinfo = &report.MisinfoSection{ChunkIndex: idx, Text: text, MisinformationDetails: *details}
		}
	}
	return res
}

func (e *Engine) flagged(ctx context.Context, input string) (bool, error) {
	result, err := e.moderate(ctx, input)
	if err != nil {
		return false, err
	}
	return result.Flagged, nil
}

// flaggedLines moderates each non-blank line of a flagged chunk on its own and
// keeps the categories that are both flagged and at or above the threshold.
func (e *Engine) flaggedLines(ctx context.Context, log zerolog.Logger, chunk string) []report.Line {
	var lines []report.Line
	for i, raw := range strings.Split(chunk, "\n") {
		text := strings.TrimSpace(raw)
		if text == "" {
			continue
		}
		result, err := e.moderate(ctx, text)
		if err != nil {
			log.Warn().Err(err).Int("line", i+1).Msg("line moderation failed")
			continue
		}
		if !result.Flagged {
			continue
		}
		cats := report.NewCategories()
		for _, c := range categoryTable {
			if !c.flagged(result.Categories) {
				continue
			}
			score := float64(c.score(result.CategoryScores))
			if score < e.threshold {
				continue
			}
			cs := report.NewCategoryScore(score)
			cs.Text = text
			cats.Set(c.name, cs)
		}
		if cats.Len() == 0 {
			continue
		}
		lines = append(lines, report.Line{LineNumber: i + 1, Text: text, FlaggedCategories: cats})
	}
	return lines
}

func (e *Engine) moderate(ctx context.Context, input string) (openai.Result, error) {
	var out openai.Result
	err := e.withRetry(ctx, func(ctx context.Context) error {
		resp, err := e.api.Moderations(ctx, openai.ModerationRequest{Model: e.modModel, Input: input})
		if err != nil {
			return err
		}
		if len(resp.Results) == 0 {
			return errors.New("moderation returned no results")
		}
		out = resp.Results[0]
		return nil
	})
	return out, err
}

func (e *Engine) checkMisinformation(ctx context.Context, text string) (*report.MisinfoDetails, error) {
	if text == "" {
		return &report.MisinfoDetails{}, nil
	}
	var details report.MisinfoDetails
	err := e.withRetry(ctx, func(ctx context.Context) error {
		resp, err := e.api.CreateChatCompletion(ctx, openai.ChatCompletionRequest{
			Model: e.chatModel,
			Messages: []openai.ChatCompletionMessage{
				{Role: openai.ChatMessageRoleSystem, Content: misinfoSystemPrompt},
				{Role: openai.ChatMessageRoleUser, Content: fmt.Sprintf(misinfoUserPrompt, text)},
			},
			ResponseFormat: &openai.ChatCompletionResponseFormat{Type: openai.ChatCompletionResponseFormatTypeJSONObject},
			Temperature:    0.1,
			MaxTokens:      300,
		})
		if err != nil {
			return err
		}
		if len(resp.Choices) == 0 {
			return errors.New("chat completion returned no choices")
		}
		return json.Unmarshal([]byte(resp.Choices[0].Message.Content), &details)
	})
	if err != nil {
		return nil, err
	}
	return &details, nil
}

// withRetry retries fn with exponential backoff while the API answers 429.
func (e *Engine) withRetry(ctx context.Context, fn func(context.Context) error) error {
	b := retry.WithMaxRetries(e.maxAttempts-1, retry.NewExponential(e.retryBase))
	return retry.Do(ctx, b, func(ctx context.Context) error {
		err := fn(ctx)
		if isRateLimited(err) {
			e.log.Debug().Err(err).Msg("rate limited, backing off")
			return retry.RetryableError(err)
		}
		return err
	})
}

func isRateLimited(err error) bool {
	if err == nil {
		return false
	}
	var apiErr *openai.APIError
	if errors.As(err, &apiErr) {
		return apiErr.HTTPStatusCode == http.StatusTooManyRequests
	}
	var reqErr *openai.RequestError
	if errors.As(err, &reqErr) {
		return reqErr.HTTPStatusCode == http.StatusTooManyRequests
	}
	return false
}

// categoryTable lists the moderation categories in the order they are reported.
var categoryTable = []struct {
	name    string
	flagged func(openai.ResultCategories) bool
	score   func(openai.ResultCategoryScores) float32
}{
	{"harassment", func(c openai.ResultCategories) bool { return c.Harassment }, func(s openai.ResultCategoryScores) float32 { return s.Harassment }},
	{"harassment/threatening", func(c openai.ResultCategories) bool { return c.HarassmentThreatening }, func(s openai.ResultCategoryScores) float32 { return s.HarassmentThreatening }},
	{"hate", func(c openai.ResultCategories) bool { return c.Hate }, func(s openai.ResultCategoryScores) float32 { return s.Hate }},
	{"hate/threatening", func(c openai.ResultCategories) bool { return c.HateThreatening }, func(s openai.ResultCategoryScores) float32 { return s.HateThreatening }},
	{"self-harm", func(c openai.ResultCategories) bool { return c.SelfHarm }, func(s openai.ResultCategoryScores) float32 { return s.SelfHarm }},
	{"self-harm/instructions", func(c openai.ResultCategories) bool { return c.SelfHarmInstructions }, func(s openai.ResultCategoryScores) float32 { return s.SelfHarmInstructions }},
	{"self-harm/intent", func(c openai.ResultCategories) bool { return c.SelfHarmIntent }, func(s openai.ResultCategoryScores) float32 { return s.SelfHarmIntent }},
	{"sexual", func(c openai.ResultCategories) bool { return c.Sexual }, func(s openai.ResultCategoryScores) float32 { return s.Sexual }},
	{"sexual/minors", func(c openai.ResultCategories) bool { return c.SexualMinors }, func(s openai.ResultCategoryScores) float32 { return s.SexualMinors }},
	{"violence", func(c openai.ResultCategories) bool { return c.Violence }, func(s openai.ResultCategoryScores) float32 { return s.Violence }},
	{"violence/graphic", func(c openai.ResultCategories) bool { return c.ViolenceGraphic }, func(s openai.ResultCategoryScores) float32 { return s.ViolenceGraphic }},
}
