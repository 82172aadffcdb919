package observability

const (
	AttrServiceName     = "service.name"
	AttrServiceVersion  = "service.version"
	AttrAgentName       = "agent.name"
	AttrAgentSessionID  = "agent.session_id"
	AttrAgentIteration  = "agent.iteration"
	AttrToolName        = "tool.name"
	AttrToolServer      = "tool.server"
	AttrToolIsError     = "tool.is_error"
	AttrLLMModel        = "llm.model"
	AttrLLMTokensInput  = "llm.tokens.input"
	AttrLLMTokensOutput = "llm.tokens.output"
	AttrLLMStopReason   = "llm.stop_reason"
	AttrSpaceID         = "gradio.space_id"
	AttrSpaceEndpoint   = "gradio.endpoint"
	AttrErrorType       = "error.type"

	SpanAgentCall     = "agent.call"
	SpanLLMRequest    = "agent.llm_request"
	SpanToolExecution = "agent.tool_execution"
	SpanGradioConnect = "gradio.connect"
	SpanGradioSubmit  = "gradio.submit"

	MetricGradioPredictionDuration = "hfspace.gradio.prediction.duration"

	DefaultServiceName = "hfspace"

	// MaxAttrLength bounds string attributes carrying user or model text.
	MaxAttrLength = 256
)
