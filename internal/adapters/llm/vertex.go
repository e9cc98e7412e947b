package llm

import (
	"context"
	"fmt"
	"strings"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"google.golang.org/genai"

	"github.com/Mind-Measure/mind-measure-mobile-sub003/internal/app/analysis"
	"github.com/Mind-Measure/mind-measure-mobile-sub003/internal/domain"
)

const (
	DefaultModelName = "gemini-2.5-flash"

	analysisMaxTokens  = int32(2048)
	narrativeMaxTokens = int32(512)
)

var tracer = otel.Tracer("github.com/Mind-Measure/mind-measure-mobile-sub003/internal/adapters/llm")

type VertexConfig struct {
	Project   string
	Location  string
	ModelName string
}

// VertexClient implements domain.Analyzer and domain.Narrator on Vertex AI
// (Gemini).
type VertexClient struct {
	client    *genai.Client
	modelName string
}

func NewVertexClient(ctx context.Context, cfg VertexConfig) (*VertexClient, error) {
	if cfg.Project == "" || cfg.Location == "" {
		return nil, fmt.Errorf("vertex: project and location must be set")
	}
	if cfg.ModelName == "" {
		cfg.ModelName = DefaultModelName
	}

	client, err := genai.NewClient(ctx, &genai.ClientConfig{
		Project:  cfg.Project,
		Location: cfg.Location,
		Backend:  genai.BackendVertexAI,
	})
	if err != nil {
		return nil, fmt.Errorf("creating Vertex AI client: %w", err)
	}

	return &VertexClient{
		client:    client,
		modelName: cfg.ModelName,
	}, nil
}

// AnalyzeTranscript asks the model for a JSON analysis and returns it
// undecoded beyond a generic map. Validation happens in the analysis package.
func (v *VertexClient) AnalyzeTranscript(
	ctx context.Context,
	transcript string,
	actx domain.AnalysisContext,
) (domain.RawAnalysis, error) {
	ctx, span := tracer.Start(ctx, "llm.vertex.analyze_transcript",
		trace.WithAttributes(
			attribute.String("llm.model", v.modelName),
			attribute.String("checkin.id", string(actx.CheckInID)),
			attribute.Int("transcript.chars", len(transcript)),
		))
	defer span.End()

	prompt := BuildAnalysisPrompt(transcript, actx)

	// Low temperature keeps scores stable across retries.
	temp := float32(0.2)
	cfg := &genai.GenerateContentConfig{
		SystemInstruction: genai.NewContentFromText(prompt.System, genai.RoleUser),
		Temperature:       &temp,
		MaxOutputTokens:   analysisMaxTokens,
		ResponseMIMEType:  "application/json",
	}

	text, err := v.generate(ctx, span, prompt.User, cfg)
	if err != nil {
		return nil, err
	}

	raw, err := analysis.ParseRaw(text)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, fmt.Errorf("vertex: decoding analysis: %w", err)
	}
	return raw, nil
}

// NarrateReport writes a short recap of a report bundle.
func (v *VertexClient) NarrateReport(ctx context.Context, bundle *domain.ReportBundle) (string, error) {
	ctx, span := tracer.Start(ctx, "llm.vertex.narrate_report",
		trace.WithAttributes(
			attribute.String("llm.model", v.modelName),
			attribute.Int("report.period_days", bundle.PeriodDays),
			attribute.Int("report.check_ins", bundle.CheckInCount),
		))
	defer span.End()

	prompt := BuildNarrativePrompt(bundle)

	temp := float32(0.7)
	topP := float32(0.9)
	cfg := &genai.GenerateContentConfig{
		SystemInstruction: genai.NewContentFromText(prompt.System, genai.RoleUser),
		Temperature:       &temp,
		TopP:              &topP,
		MaxOutputTokens:   narrativeMaxTokens,
	}

	text, err := v.generate(ctx, span, prompt.User, cfg)
	if err != nil {
		return "", err
	}
	return strings.TrimSpace(text), nil
}

func (v *VertexClient) generate(ctx context.Context, span trace.Span, user string, cfg *genai.GenerateContentConfig) (string, error) {
	contents := []*genai.Content{genai.NewContentFromText(user, genai.RoleUser)}

	start := time.Now()
	res, err := v.client.Models.GenerateContent(ctx, v.modelName, contents, cfg)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return "", fmt.Errorf("vertex generate content: %w", err)
	}
	span.SetAttributes(attribute.Int64("generation.time_ms", time.Since(start).Milliseconds()))
	if res.UsageMetadata != nil {
		span.SetAttributes(
			attribute.Int("llm.tokens.input", int(res.UsageMetadata.PromptTokenCount)),
			attribute.Int("llm.tokens.output", int(res.UsageMetadata.CandidatesTokenCount)),
		)
	}

	text := res.Text()
	if text == "" {
		err := fmt.Errorf("vertex returned empty text")
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return "", err
	}
	return text, nil
}
