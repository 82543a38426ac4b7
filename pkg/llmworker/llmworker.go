// Package llmworker streams chat completions and chunks the output into
// sentence-sized units for low-latency TTS, aggregating tool-call fragments
// along the way.
package llmworker

import (
	"context"
	"sort"
	"strings"
	"sync"

	"github.com/stopdesign/buratino/pkg/bus"
	"github.com/stopdesign/buratino/pkg/chat"
	"github.com/stopdesign/buratino/pkg/providers/llm"
	"github.com/stopdesign/buratino/pkg/tools"
	"github.com/stopdesign/buratino/pkg/worker"
)

// delimiters a sentence buffer may end with before it's eligible to flush.
const delimiters = ".!?\n\t;"

const (
	firstChunkMinLen = 50
	restChunkMinLen  = 150
)

// Request is published on the bus to ask the worker for a completion.
type Request struct {
	Messages  []chat.Message
	ToolSpecs []tools.Spec
	Turn      int
}

// ResponseChunk is one sentence-sized piece of assistant text.
type ResponseChunk struct {
	Text string
	Turn int
}

// ToolCallsEvent carries every tool call aggregated from one stream.
type ToolCallsEvent struct {
	ToolCalls []chat.ToolCall
	Turn      int
}

// DoneEvent marks the end of processing for a turn, successful or not.
type DoneEvent struct {
	Turn int
}

const (
	KindRequest   = "llm_request"
	KindAbort     = "llm_abort"
	KindResponse  = "llm_response"
	KindToolCalls = "llm_tool_calls"
	KindDone      = "llm_response_done"
)

func toStreamMessages(messages []chat.Message) []llm.StreamMessage {
	out := make([]llm.StreamMessage, 0, len(messages))
	for _, m := range messages {
		sm := llm.StreamMessage{
			Role:       m.Role,
			Name:       m.Name,
			Content:    m.Content,
			ToolCallID: m.ToolCallID,
		}
		for _, tc := range m.ToolCalls {
			sm.ToolCalls = append(sm.ToolCalls, llm.StreamToolCall{
				ID: tc.ID, Name: tc.Name, Arguments: tc.Arguments,
			})
		}
		out = append(out, sm)
	}
	return out
}

func toProviderTools(specs []tools.Spec) []llm.ToolSpec {
	out := make([]llm.ToolSpec, 0, len(specs))
	for _, s := range specs {
		out = append(out, llm.ToolSpec{Name: s.Name, Description: s.Description, Parameters: s.Parameters})
	}
	return out
}

// Worker is the streaming LLM stage.
type Worker struct {
	worker.BaseWorker
	provider llm.StreamingProvider

	mu     sync.Mutex
	cancel context.CancelFunc
}

// New wires the worker into b; call Start once the provider is ready.
func New(b *bus.Bus, provider llm.StreamingProvider) *Worker {
	return &Worker{BaseWorker: worker.New(b), provider: provider}
}

// Start subscribes to llm_request/llm_abort events.
func (w *Worker) Start() {
	w.BaseWorker.Start(context.Background())
	w.Subscribe(KindRequest, func(ev bus.Event) {
		req, ok := ev.Payload.(Request)
		if !ok {
			return
		}
		w.handleRequest(req)
	})
	w.Subscribe(KindAbort, func(bus.Event) {
		w.abortInFlight()
	})
}

func (w *Worker) abortInFlight() {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.cancel != nil {
		w.cancel()
		w.cancel = nil
	}
}

func (w *Worker) handleRequest(req Request) {
	w.abortInFlight()

	ctx, cancel := context.WithCancel(context.Background())
	w.mu.Lock()
	w.cancel = cancel
	w.mu.Unlock()

	chunker := newSentenceChunker(req.Turn, func(text string) {
		w.Emit(KindResponse, ResponseChunk{Text: text, Turn: req.Turn})
	})
	agg := newToolAggregator()

	done := make(chan struct{})
	w.provider.StreamComplete(ctx, toStreamMessages(req.Messages), toProviderTools(req.ToolSpecs), llm.StreamHandlers{
		OnTextDelta: func(text string) {
			select {
			case <-ctx.Done():
				return
			default:
			}
			chunker.feed(text)
		},
		OnToolCallDelta: func(d llm.ToolCallDelta) {
			select {
			case <-ctx.Done():
				return
			default:
			}
			agg.feed(d)
		},
		OnDone: func(finishReason string, err error) {
			defer close(done)

			if ctx.Err() != nil {
				// cancelled: no partial tail flush, output is stale
				return
			}
			if err != nil {
				return
			}

			if finishReason == "tool_calls" {
				w.Emit(KindToolCalls, ToolCallsEvent{ToolCalls: agg.result(), Turn: req.Turn})
				return
			}
			chunker.flush()
		},
	})

	<-done
	w.Emit(KindDone, DoneEvent{Turn: req.Turn})
}

type sentenceChunker struct {
	turn      int
	buf       strings.Builder
	firstDone bool
	emit      func(text string)
}

func newSentenceChunker(turn int, emit func(text string)) *sentenceChunker {
	return &sentenceChunker{turn: turn, emit: emit}
}

func (c *sentenceChunker) feed(text string) {
	c.buf.WriteString(text)
	for {
		s := c.buf.String()
		if s == "" {
			return
		}
		last := s[len(s)-1]
		if !strings.ContainsRune(delimiters, rune(last)) {
			return
		}
		min := restChunkMinLen
		if !c.firstDone {
			min = firstChunkMinLen
		}
		if len(strings.TrimSpace(s)) < min {
			return
		}
		c.flush()
		return
	}
}

func (c *sentenceChunker) flush() {
	s := strings.TrimLeft(c.buf.String(), " \t\n")
	if s == "" {
		return
	}
	c.buf.Reset()
	c.firstDone = true
	c.emit(s)
}

type toolAggEntry struct {
	id, name string
	args     strings.Builder
}

type toolAggregator struct {
	order   []int
	entries map[int]*toolAggEntry
}

func newToolAggregator() *toolAggregator {
	return &toolAggregator{entries: make(map[int]*toolAggEntry)}
}

func (a *toolAggregator) feed(d llm.ToolCallDelta) {
	e, ok := a.entries[d.Index]
	if !ok {
		e = &toolAggEntry{id: d.ID, name: d.Name}
		a.entries[d.Index] = e
		a.order = append(a.order, d.Index)
	}
	e.args.WriteString(d.ArgumentsAdd)
}

func (a *toolAggregator) result() []chat.ToolCall {
	sort.Ints(a.order)
	out := make([]chat.ToolCall, 0, len(a.order))
	for _, idx := range a.order {
		e := a.entries[idx]
		out = append(out, chat.ToolCall{ID: e.id, Name: e.name, Arguments: e.args.String()})
	}
	return out
}
