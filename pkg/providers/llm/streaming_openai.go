package llm

import (
	"context"

	openai "github.com/sashabaranov/go-openai"
)

// ToolSpec is a provider-agnostic function descriptor.
type ToolSpec struct {
	Name        string
	Description string
	Parameters  map[string]interface{}
}

// StreamMessage is one chat message in the provider-agnostic shape the
// streaming client converts to the vendor's wire format.
type StreamMessage struct {
	Role       string
	Name       string
	Content    string
	ToolCallID string
	ToolCalls  []StreamToolCall
}

// StreamToolCall mirrors the OpenAI wire shape for an already-complete call.
type StreamToolCall struct {
	ID        string
	Name      string
	Arguments string
}

// ToolCallDelta is one fragment of a tool call as it streams in. Index
// identifies which call it belongs to; ID and Name are only populated on
// the first delta for that index.
type ToolCallDelta struct {
	Index        int
	ID           string
	Name         string
	ArgumentsAdd string
}

// StreamHandlers receives raw provider events as they arrive. FinishReason
// is delivered once, after the stream ends ("stop", "tool_calls", or "").
type StreamHandlers struct {
	OnTextDelta     func(text string)
	OnToolCallDelta func(d ToolCallDelta)
	OnDone          func(finishReason string, err error)
}

// StreamingProvider is a chat-completions backend capable of delta
// streaming with tool calls, the shape the LLM worker's chunker needs.
type StreamingProvider interface {
	StreamComplete(ctx context.Context, messages []StreamMessage, tools []ToolSpec, h StreamHandlers)
	Name() string
}

// StreamingOpenAILLM talks to any OpenAI-compatible chat-completions
// endpoint (OpenAI itself, or a compatible gateway for another vendor).
type StreamingOpenAILLM struct {
	client      *openai.Client
	model       string
	temperature float32
	topP        float32
}

func NewStreamingOpenAILLM(apiKey, baseURL, model string) *StreamingOpenAILLM {
	cfg := openai.DefaultConfig(apiKey)
	if baseURL != "" {
		cfg.BaseURL = baseURL
	}
	if model == "" {
		model = openai.GPT4oMini
	}
	return &StreamingOpenAILLM{
		client:      openai.NewClientWithConfig(cfg),
		model:       model,
		temperature: 0.8,
		topP:        0.55,
	}
}

func (l *StreamingOpenAILLM) Name() string { return "openai-streaming-llm" }

func toOpenAIMessages(messages []StreamMessage) []openai.ChatCompletionMessage {
	out := make([]openai.ChatCompletionMessage, 0, len(messages))
	for _, m := range messages {
		msg := openai.ChatCompletionMessage{
			Role:       m.Role,
			Content:    m.Content,
			Name:       m.Name,
			ToolCallID: m.ToolCallID,
		}
		for _, tc := range m.ToolCalls {
			msg.ToolCalls = append(msg.ToolCalls, openai.ToolCall{
				ID:   tc.ID,
				Type: openai.ToolTypeFunction,
				Function: openai.FunctionCall{
					Name:      tc.Name,
					Arguments: tc.Arguments,
				},
			})
		}
		out = append(out, msg)
	}
	return out
}

func toOpenAITools(specs []ToolSpec) []openai.Tool {
	if len(specs) == 0 {
		return nil
	}
	out := make([]openai.Tool, 0, len(specs))
	for _, s := range specs {
		out = append(out, openai.Tool{
			Type: openai.ToolTypeFunction,
			Function: &openai.FunctionDefinition{
				Name:        s.Name,
				Description: s.Description,
				Parameters:  s.Parameters,
			},
		})
	}
	return out
}

// StreamComplete opens a streaming chat completion and dispatches deltas to
// h as they arrive. It returns once the stream is exhausted, cancelled, or
// errors; h.OnDone is always called exactly once.
func (l *StreamingOpenAILLM) StreamComplete(ctx context.Context, messages []StreamMessage, toolSpecs []ToolSpec, h StreamHandlers) {
	req := openai.ChatCompletionRequest{
		Model:       l.model,
		Messages:    toOpenAIMessages(messages),
		Temperature: l.temperature,
		TopP:        l.topP,
		Stream:      true,
	}
	if tools := toOpenAITools(toolSpecs); tools != nil {
		req.Tools = tools
		req.ToolChoice = "auto"
	}

	stream, err := l.client.CreateChatCompletionStream(ctx, req)
	if err != nil {
		if h.OnDone != nil {
			h.OnDone("", err)
		}
		return
	}
	defer stream.Close()

	finishReason := ""
	for {
		resp, err := stream.Recv()
		if err != nil {
			if h.OnDone != nil {
				if err.Error() == "EOF" {
					h.OnDone(finishReason, nil)
				} else {
					h.OnDone(finishReason, err)
				}
			}
			return
		}
		if len(resp.Choices) == 0 {
			continue
		}
		choice := resp.Choices[0]
		if choice.FinishReason != "" {
			finishReason = string(choice.FinishReason)
		}

		if choice.Delta.Content != "" && h.OnTextDelta != nil {
			h.OnTextDelta(choice.Delta.Content)
		}

		for _, tc := range choice.Delta.ToolCalls {
			if h.OnToolCallDelta == nil {
				continue
			}
			idx := 0
			if tc.Index != nil {
				idx = *tc.Index
			}
			h.OnToolCallDelta(ToolCallDelta{
				Index:        idx,
				ID:           tc.ID,
				Name:         tc.Function.Name,
				ArgumentsAdd: tc.Function.Arguments,
			})
		}
	}
}
