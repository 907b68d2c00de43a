package agent

import (
	"context"
	"fmt"
	"strings"
	"time"
	"unicode/utf8"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	oteltrace "go.opentelemetry.io/otel/trace"

	"github.com/nextlevelbuilder/goclaw/internal/providers"
	"github.com/nextlevelbuilder/goclaw/internal/tools"
)

// tracer emits spans for every LLM call, tool call, and agent run. When no
// TracerProvider has been registered (standalone CLI without AGENT_TELEMETRY_ENABLED)
// this is a no-op and costs nothing beyond the call itself.
var tracer = otel.Tracer("github.com/nextlevelbuilder/goclaw/internal/agent")

func (l *Loop) emit(event AgentEvent) {
	if l.onEvent != nil {
		l.onEvent(event)
	}
}

// ID returns the agent's identifier.
func (l *Loop) ID() string { return l.id }

// Model returns the model identifier for this agent loop.
func (l *Loop) Model() string { return l.model }

// IsRunning returns whether the agent is currently processing.
func (l *Loop) IsRunning() bool { return l.activeRuns.Load() > 0 }

// emitLLMSpan records one LLM call as a span under the ctx passed to Run (the
// run's agent span is emitted afterwards as a sibling, not as its parent).
func (l *Loop) emitLLMSpan(ctx context.Context, start time.Time, iteration int, messages []providers.Message, resp *providers.ChatResponse, callErr error) {
	_, span := tracer.Start(ctx, fmt.Sprintf("llm.%s", l.provider.Name()),
		oteltrace.WithTimestamp(start),
		oteltrace.WithAttributes(
			attribute.String("agent.id", l.id),
			attribute.String("llm.model", l.model),
			attribute.Int("llm.iteration", iteration),
			attribute.Int("llm.input_messages", len(messages)),
		),
	)
	defer span.End(oteltrace.WithTimestamp(time.Now().UTC()))

	if callErr != nil {
		span.SetStatus(codes.Error, callErr.Error())
		span.RecordError(callErr)
		return
	}
	if resp == nil {
		return
	}
	span.SetAttributes(attribute.String("llm.finish_reason", resp.FinishReason))
	if resp.Usage != nil {
		span.SetAttributes(
			attribute.Int("llm.prompt_tokens", resp.Usage.PromptTokens),
			attribute.Int("llm.completion_tokens", resp.Usage.CompletionTokens),
			attribute.Int("llm.cache_creation_tokens", resp.Usage.CacheCreationTokens),
			attribute.Int("llm.cache_read_tokens", resp.Usage.CacheReadTokens),
		)
	}
}

// emitToolSpan records one tool call as a span. result may carry Usage from
// tools that make their own internal LLM calls.
func (l *Loop) emitToolSpan(ctx context.Context, start time.Time, toolName, toolCallID, input string, result *tools.Result) {
	_, span := tracer.Start(ctx, "tool."+toolName,
		oteltrace.WithTimestamp(start),
		oteltrace.WithAttributes(
			attribute.String("agent.id", l.id),
			attribute.String("tool.name", toolName),
			attribute.String("tool.call_id", toolCallID),
			attribute.String("tool.input_preview", truncateStr(input, 2000)),
		),
	)
	defer span.End(oteltrace.WithTimestamp(time.Now().UTC()))

	span.SetAttributes(attribute.String("tool.output_preview", truncateStr(result.ForLLM, 2000)))
	if result.IsError {
		errMsg := truncateStr(result.ForLLM, 200)
		span.SetStatus(codes.Error, errMsg)
	}
	if result.Usage != nil {
		span.SetAttributes(
			attribute.String("tool.llm_provider", result.Provider),
			attribute.String("tool.llm_model", result.Model),
			attribute.Int("tool.prompt_tokens", result.Usage.PromptTokens),
			attribute.Int("tool.completion_tokens", result.Usage.CompletionTokens),
		)
	}
}

// emitAgentSpan records one span covering a whole Run() call. It is started
// after the run finishes, so the LLM/tool spans emitted during the run are its
// siblings under the caller's ctx, not its children.
func (l *Loop) emitAgentSpan(ctx context.Context, start time.Time, result *RunResult, runErr error) {
	_, span := tracer.Start(ctx, "agent."+l.id,
		oteltrace.WithTimestamp(start),
		oteltrace.WithAttributes(
			attribute.String("agent.id", l.id),
			attribute.String("llm.model", l.model),
			attribute.String("llm.provider", l.provider.Name()),
		),
	)
	defer span.End(oteltrace.WithTimestamp(time.Now().UTC()))

	if runErr != nil {
		span.SetStatus(codes.Error, runErr.Error())
		span.RecordError(runErr)
		return
	}
	if result != nil {
		span.SetAttributes(
			attribute.Int("agent.iterations", result.Iterations),
			attribute.String("agent.output_preview", truncateStr(result.Content, 2000)),
		)
	}
}

func truncateStr(s string, maxLen int) string {
	s = strings.ToValidUTF8(s, "")
	if len(s) <= maxLen {
		return s
	}
	// Don't cut in the middle of a multi-byte rune
	for maxLen > 0 && !utf8.RuneStart(s[maxLen]) {
		maxLen--
	}
	return s[:maxLen] + "..."
}
