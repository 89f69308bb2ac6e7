package orchestration

import (
	"context"
	"iter"

	"github.com/JayTiptown/Conduit-coding-test/core/llms"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
)

const fallbackResponse = "Sorry, I encountered an error."

// responseFragments streams the reply to prompt as text fragments. A failed
// generation ends with the fallback reply instead of an error.
func (o *Orchestrator) responseFragments(ctx context.Context, prompt string, history []llms.Message) iter.Seq[string] {
	return func(yield func(string) bool) {
		ctx, span := tracer.Start(ctx, "generate response")
		defer span.End()
		span.SetAttributes(attribute.Int("request.history_length", len(history)))

		opts := []llms.StreamingPromptOption{llms.WithHistory(history)}
		if o.systemPrompt != "" {
			opts = append(opts, llms.WithSystemPrompt(o.systemPrompt))
		}

		fragments := 0
		for chunk, err := range o.llm.PromptWithStream(ctx, prompt, opts...).Chunks(ctx) {
			if err != nil {
				span.RecordError(err)
				span.SetStatus(codes.Error, err.Error())
				logger.Error("Response generation failed", "error", err)
				o.metrics.GeneratorFellBack()
				yield(fallbackResponse)
				return
			}

			switch c := chunk.(type) {
			case llms.StreamContentChunk:
				if c.Content() == "" {
					continue
				}
				fragments++
				if !yield(c.Content()) {
					return
				}
			case llms.StreamUsageChunk:
				span.SetAttributes(
					attribute.Int("usage.input", c.Usage().InputTokens),
					attribute.Int("usage.output", c.Usage().OutputTokens),
				)
			}
		}
		span.SetAttributes(attribute.Int("response.fragments", fragments))
	}
}
