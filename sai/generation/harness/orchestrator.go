package harness

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/sethvargo/go-retry"

	ports "github.com/ZanzyTHEbar/sangamner-ai/sai/generation/harness/ports"
)

var (
	// ErrMaxIterations is returned when the loop makes more provider calls than the policy allows.
	ErrMaxIterations = errors.New("max iterations exceeded")
	// ErrMaxToolDepth is returned when the model keeps requesting tools past the policy depth.
	ErrMaxToolDepth = errors.New("max tool depth exceeded")
	// ErrMalformedOutput marks a reply that could not be interpreted. Inside
	// the loop it triggers a correction prompt; it is returned once the
	// retry bound is spent.
	ErrMalformedOutput = errors.New("malformed model output")
)

// LimitReachedAnswer is the reply of a turn stopped by MaxToolDepth or
// MaxIterations. The tool calls made before the stop stay in the trace.
const LimitReachedAnswer = "Agent stopped due to iteration limit or time limit."

// Conversation represents the current state of a conversation.
type Conversation struct {
	ID       string
	Messages []ports.PromptMessage
}

// Request configures the orchestration run.
type Request struct {
	Conversation *Conversation
	System       string
	Tools        []ports.Tool
	Policy       *Policy
	Meta         map[string]string // forwarded to the provider with every prompt
}

// Policy controls orchestration behavior.
type Policy struct {
	MaxToolDepth    int           // max tool rounds per turn
	MaxIterations   int           // safeguard against infinite loops
	MaxParseRetries int           // correction prompts after malformed replies
	ToolTimeout     time.Duration // per-tool timeout
	RetryCount      int           // provider call retries
	RetryBackoff    time.Duration // base delay between retries
	Temperature     float32
	MaxNewTokens    int
}

// DefaultPolicy returns sensible defaults.
func DefaultPolicy() *Policy {
	return &Policy{
		MaxToolDepth:    3,
		MaxIterations:   10,
		MaxParseRetries: 3,
		ToolTimeout:     30 * time.Second,
		RetryCount:      2,
		RetryBackoff:    200 * time.Millisecond,
		Temperature:     0,
		MaxNewTokens:    1024,
	}
}

// Response is the final output of the orchestrator.
type Response struct {
	Text       string
	Trace      []ports.ToolCallRecord // executed tool calls in invocation order
	Usage      *ports.Usage
	Iterations int
	Stopped    error // ErrMaxToolDepth or ErrMaxIterations when a limit ended the turn
}

// HarnessOrchestrator coordinates the full tool-calling loop. It keeps no
// per-turn state, so one instance serves concurrent turns.
type HarnessOrchestrator struct {
	provider     ports.Provider
	builder      *PromptBuilder
	parser       *OutputParser
	limiter      ports.RateLimiter
	tracer       ports.Tracer
	validateArgs bool
}

// NewHarnessOrchestrator creates a new orchestrator with dependencies. A nil
// limiter or tracer disables that concern.
func NewHarnessOrchestrator(
	provider ports.Provider,
	builder *PromptBuilder,
	parser *OutputParser,
	limiter ports.RateLimiter,
	tracer ports.Tracer,
	validateArgs bool,
) *HarnessOrchestrator {
	if builder == nil {
		builder = NewPromptBuilder()
	}
	if parser == nil {
		parser = NewOutputParser()
	}
	if limiter == nil {
		limiter = &noOpRateLimiter{}
	}
	if tracer == nil {
		tracer = &noOpTracer{}
	}
	return &HarnessOrchestrator{
		provider:     provider,
		builder:      builder,
		parser:       parser,
		limiter:      limiter,
		tracer:       tracer,
		validateArgs: validateArgs,
	}
}

// Provider returns the backend the loop talks to.
func (o *HarnessOrchestrator) Provider() ports.Provider { return o.provider }

// Orchestrate runs the full tool-calling loop to completion.
func (o *HarnessOrchestrator) Orchestrate(ctx context.Context, req *Request) (*Response, error) {
	if req == nil || req.Conversation == nil {
		return nil, errors.New("orchestrate: conversation is required")
	}
	if o.provider == nil {
		return nil, errors.New("orchestrate: no provider configured")
	}
	policy := req.Policy
	if policy == nil {
		policy = DefaultPolicy()
	}

	// Acquire rate limit permit
	release, err := o.limiter.Acquire(ctx, "provider:"+o.provider.Name())
	if err != nil {
		return nil, fmt.Errorf("acquire provider permit: %w", err)
	}
	defer release()

	ctx, finish := o.tracer.StartSpan(ctx, "orchestrate", map[string]any{
		"conversation_id": req.Conversation.ID,
		"provider":        o.provider.Name(),
		"tool_count":      len(req.Tools),
	})
	resp, err := o.runLoop(ctx, req, policy)
	finish(err)

	return resp, err
}

// runLoop executes the tool-calling loop until a final answer.
func (o *HarnessOrchestrator) runLoop(ctx context.Context, req *Request, policy *Policy) (*Response, error) {
	guard := NewGuardrails(req.Tools, o.validateArgs)
	specs := make([]ports.ToolSpec, len(req.Tools))
	for i, tool := range req.Tools {
		specs[i] = ports.SpecOf(tool)
	}

	// The caller's conversation is never mutated
	messages := make([]ports.PromptMessage, len(req.Conversation.Messages))
	copy(messages, req.Conversation.Messages)

	resp := &Response{Usage: &ports.Usage{}}
	depth, malformed := 0, 0

	for iteration := 1; ; iteration++ {
		if iteration > policy.MaxIterations {
			return o.stop(ctx, resp, fmt.Errorf("%w: %d", ErrMaxIterations, policy.MaxIterations)), nil
		}
		resp.Iterations = iteration

		prompt := o.builder.Build(req.System, messages, specs, req.Meta)
		completion, err := o.complete(ctx, prompt, policy, iteration)
		if err != nil {
			return nil, fmt.Errorf("provider call failed: %w", err)
		}
		resp.Usage.Add(completion.Usage)

		calls, final, err := o.interpret(completion, guard)
		if err != nil {
			malformed++
			o.tracer.Event(ctx, "malformed_output", map[string]any{
				"iteration": iteration,
				"attempt":   malformed,
				"error":     err.Error(),
			})
			if malformed > policy.MaxParseRetries {
				return nil, fmt.Errorf("after %d correction prompts: %w", policy.MaxParseRetries, err)
			}
			if text := strings.TrimSpace(completion.Text); text != "" {
				messages = append(messages, ports.PromptMessage{Role: "assistant", Content: text})
			}
			messages = append(messages, ports.PromptMessage{Role: "user", Content: renderCorrection(err)})
			continue
		}

		if len(calls) == 0 {
			resp.Text = guard.SanitizeOutput(final)
			return resp, nil
		}

		// Validate tool depth only if we're going to execute tools
		if depth >= policy.MaxToolDepth {
			return o.stop(ctx, resp, fmt.Errorf("%w: %d", ErrMaxToolDepth, policy.MaxToolDepth)), nil
		}
		depth++

		rendered := make([]string, len(calls))
		for i, call := range calls {
			rendered[i] = renderToolCall(call)
		}
		assistant := ports.PromptMessage{Role: "assistant", Content: strings.Join(rendered, "\n")}
		if len(completion.ToolCalls) > 0 {
			assistant.ToolCalls = calls
		}
		messages = append(messages, assistant)

		for _, call := range calls {
			if err := ctx.Err(); err != nil {
				return nil, err
			}
			record := o.executeTool(ctx, guard.Tool(call.Name), call, policy.ToolTimeout)
			resp.Trace = append(resp.Trace, record)
			messages = append(messages, ports.PromptMessage{Role: "tool", Content: renderObservation(record)})
		}
	}
}

// stop ends a turn that ran out of budget, keeping the trace gathered so far.
func (o *HarnessOrchestrator) stop(ctx context.Context, resp *Response, reason error) *Response {
	o.tracer.Event(ctx, "limit_reached", map[string]any{
		"reason":     reason.Error(),
		"tool_calls": len(resp.Trace),
	})
	resp.Text = LimitReachedAnswer
	resp.Stopped = reason
	return resp
}

// complete calls the provider, retrying transient failures with exponential backoff.
func (o *HarnessOrchestrator) complete(ctx context.Context, prompt ports.PromptInput, policy *Policy, iteration int) (ports.Completion, error) {
	opts := ports.Options{
		MaxNewTokens: policy.MaxNewTokens,
		Temperature:  policy.Temperature,
	}

	base := policy.RetryBackoff
	if base <= 0 {
		base = time.Millisecond
	}
	backoff := retry.WithMaxRetries(uint64(max(policy.RetryCount, 0)), retry.NewExponential(base))

	var completion ports.Completion
	attempt := 0
	err := retry.Do(ctx, backoff, func(ctx context.Context) error {
		attempt++
		spanCtx, finish := o.tracer.StartSpan(ctx, "provider_call", map[string]any{
			"iteration": iteration,
			"attempt":   attempt,
		})
		c, err := o.provider.Complete(spanCtx, prompt, opts)
		finish(err)
		if err != nil {
			if ctx.Err() != nil {
				return err
			}
			return retry.RetryableError(err)
		}
		completion = c
		return nil
	})
	return completion, err
}

// interpret turns a completion into validated tool calls or a final answer.
// Native tool calls win over anything in the text.
func (o *HarnessOrchestrator) interpret(c ports.Completion, guard *Guardrails) ([]ports.ToolCall, string, error) {
	calls := c.ToolCalls
	if len(calls) == 0 {
		parsed, err := o.parser.Parse(c.Text)
		if err != nil {
			return nil, "", err
		}
		if len(parsed.ToolCalls) == 0 {
			return nil, parsed.Final, nil
		}
		calls = parsed.ToolCalls
	}

	validated := make([]ports.ToolCall, 0, len(calls))
	for _, call := range calls {
		call.Args = guard.CoerceArgs(call.Name, normalizeArgs(call.Args))
		if err := o.parser.ValidateToolCall(call); err != nil {
			return nil, "", fmt.Errorf("%w: %v", ErrMalformedOutput, err)
		}
		if err := guard.ValidateToolCall(call); err != nil {
			return nil, "", fmt.Errorf("%w: %v", ErrMalformedOutput, err)
		}
		validated = append(validated, call)
	}
	return validated, "", nil
}

// executeTool runs a single tool under its own timeout. Tools are total, so
// the record always carries an observation.
func (o *HarnessOrchestrator) executeTool(ctx context.Context, tool ports.Tool, call ports.ToolCall, timeout time.Duration) ports.ToolCallRecord {
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	toolCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	toolCtx, finish := o.tracer.StartSpan(toolCtx, "tool_call", map[string]any{"tool": call.Name})
	result := tool.Call(toolCtx, call.Args)
	finish(nil)

	return ports.ToolCallRecord{Name: call.Name, Args: call.Args, Result: result}
}
