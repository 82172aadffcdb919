package agent

import (
	"context"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/kadirpekel/hfspace/pkg/llms"
	"github.com/kadirpekel/hfspace/pkg/observability"
)

const tracerName = "hfspace.agent"

func startAgentSpan(ctx context.Context, agentName, sessionID, model, input string) (context.Context, trace.Span) {
	tracer := observability.GetTracer(tracerName)

	return tracer.Start(ctx, observability.SpanAgentCall,
		trace.WithAttributes(
			attribute.String(observability.AttrAgentName, agentName),
			attribute.String(observability.AttrAgentSessionID, sessionID),
			attribute.String(observability.AttrLLMModel, model),
			attribute.String("input_preview", observability.Truncate(input, 100)),
		),
	)
}

func startLLMSpan(ctx context.Context, model string, iteration int) (context.Context, trace.Span) {
	return observability.GetTracer(tracerName).Start(ctx, observability.SpanLLMRequest,
		trace.WithAttributes(
			attribute.String(observability.AttrLLMModel, model),
			attribute.Int(observability.AttrAgentIteration, iteration),
		),
	)
}

func startToolSpan(ctx context.Context, toolName, server string) (context.Context, trace.Span) {
	return observability.GetTracer(tracerName).Start(ctx, observability.SpanToolExecution,
		trace.WithAttributes(
			attribute.String(observability.AttrToolName, toolName),
			attribute.String(observability.AttrToolServer, server),
		),
	)
}

func recordAgentMetrics(ctx context.Context, agentName string, duration time.Duration, err error) {
	observability.GetGlobalMetrics().RecordAgentCall(ctx, agentName, duration, err)
}

func recordToolMetrics(ctx context.Context, toolName string, duration time.Duration, err error) {
	observability.GetGlobalMetrics().RecordToolExecution(ctx, toolName, duration, err)
}

func recordLLMMetrics(ctx context.Context, model string, duration time.Duration, usage llms.Usage, err error) {
	observability.GetGlobalMetrics().RecordLLMCall(ctx, model, duration, usage.InputTokens, usage.OutputTokens, err)
}
