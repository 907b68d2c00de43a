package tools

import "github.com/nextlevelbuilder/goclaw/internal/providers"

// Result is the unified return type from tool execution.
type Result struct {
	ForLLM  string `json:"for_llm"` // content sent to the LLM
	Silent  bool   `json:"silent"`  // suppress user message
	IsError bool   `json:"is_error"`
	Async   bool   `json:"async"` // running asynchronously, result delivered later via the bus

	// Usage holds token usage from tools that make internal LLM calls.
	// When set, the agent loop records these on the tool span for tracing.
	Usage    *providers.Usage `json:"-"`
	Provider string           `json:"-"` // provider name (for tool span metadata)
	Model    string           `json:"-"` // model used (for tool span metadata)
}

func NewResult(forLLM string) *Result {
	return &Result{ForLLM: forLLM}
}

func SilentResult(forLLM string) *Result {
	return &Result{ForLLM: forLLM, Silent: true}
}

func ErrorResult(message string) *Result {
	return &Result{ForLLM: message, IsError: true}
}
