package extraction

import (
	"bytes"
	"context"
	"encoding/json"
	"strings"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/jonathan/studyforge/internal/llm"
	"github.com/jonathan/studyforge/internal/logger"
	"github.com/jonathan/studyforge/internal/tagged"
)

var tracer = otel.Tracer("github.com/jonathan/studyforge/internal/extraction")

func startRun(ctx context.Context, pipeline string, entityID uuid.UUID) (context.Context, trace.Span) {
	return tracer.Start(ctx, "extraction."+pipeline, trace.WithAttributes(
		attribute.String("extraction.pipeline", pipeline),
		attribute.String("extraction.entity_id", entityID.String()),
	))
}

// finishRun records the outcome of a run on its span.
func finishRun[A any](span trace.Span, env *Envelope[A], err error) {
	defer span.End()
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return
	}
	span.SetAttributes(
		attribute.Int("extraction.defects", env.DefectCount),
		attribute.Int("extraction.unmatched", env.UnmatchedCount),
		attribute.Bool("extraction.already_completed", env.AlreadyCompleted),
	)
}

// complete calls the model through the retry policy. This is the only point at
// which a pipeline waits on the network.
func complete(ctx context.Context, d Deps, log *logger.Logger, pipeline string, model llm.Completer, prompt string, maxTokens int) (string, error) {
	ctx, span := tracer.Start(ctx, "extraction.model", trace.WithAttributes(
		attribute.String("extraction.pipeline", pipeline),
		attribute.Int("llm.prompt_bytes", len(prompt)),
		attribute.Int("llm.max_tokens", maxTokens),
	))
	defer span.End()

	text, err := llm.NewRetrying(model, d.Retry, log).Complete(ctx, prompt, maxTokens)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "model call failed")
		return "", fail(pipeline, StageModel, err)
	}
	span.SetAttributes(attribute.Int("llm.completion_bytes", len(text)))
	return text, nil
}

// promptJSON encodes v for embedding in a prompt. HTML escaping is off so the
// model sees question texts exactly as stored.
func promptJSON(v any) (string, error) {
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	enc.SetIndent("", "  ")
	if err := enc.Encode(v); err != nil {
		return "", err
	}
	return strings.TrimRight(buf.String(), "\n"), nil
}

func parse(pipeline, text string, opts ...tagged.Option) (*tagged.Block, error) {
	root, err := tagged.Parse(text, opts...)
	if err != nil {
		return nil, fail(pipeline, StageParse, err)
	}
	return root, nil
}
