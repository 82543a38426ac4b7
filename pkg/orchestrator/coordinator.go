package orchestrator

import (
	"context"
	"strings"
	"sync"
	"time"

	"github.com/stopdesign/buratino/pkg/bus"
	"github.com/stopdesign/buratino/pkg/chat"
	"github.com/stopdesign/buratino/pkg/endpoint"
	"github.com/stopdesign/buratino/pkg/llmworker"
	"github.com/stopdesign/buratino/pkg/tools"
	"github.com/stopdesign/buratino/pkg/ttsworker"
	"github.com/stopdesign/buratino/pkg/vad"
	"github.com/stopdesign/buratino/pkg/worker"
)

// technicalCommands are recognized locally and never sent to the model.
var technicalCommands = map[string]struct{}{
	"stop":  {},
	"pause": {},
}

// bargeInWindow is how long after tts_speech_started the agent's speech is
// still considered interruptible "early" output.
const bargeInWindow = 4 * time.Second

// VAD activation/deactivation hysteresis, per the component design: N
// consecutive active chunks arm on_vad_start, a run of quiet chunks after
// activation disarms it with on_vad_end.
const (
	vadActivateRun   = 5
	vadActivateProb  = 0.2
	vadDeactivateRun = 20
	vadDeactivateAvg = 0.1

	KindVADStart = "vad_start"
	KindVADEnd   = "vad_end"
)

// CoordinatorConfig tunes the turn-taking policy.
type CoordinatorConfig struct {
	Voice               string
	Language            string
	MinWordsToInterrupt int
	SystemPrompt        string
}

// Coordinator owns turn-taking: it tracks silence, runs the endpointing
// policy over accumulated STT text, commits turns onto the chat context,
// and sequences barge-in across the LLM and TTS stages via turn-number
// fencing.
type Coordinator struct {
	worker.BaseWorker
	chat   *chat.Context
	policy endpoint.Policy
	tools  *tools.Registry
	logger Logger
	cfg    CoordinatorConfig

	mu              sync.Mutex
	currentTurn     int
	unhandledText   string
	silenceDuration float64
	lastSample      vad.Sample
	ttsActive       bool
	ttsSpeechStart  time.Time

	vadActiveStreak int
	vadQuietStreak  int
	vadActivated    bool
}

// NewCoordinator wires a Coordinator onto b. Subscriptions are installed by
// Start.
func NewCoordinator(b *bus.Bus, chatCtx *chat.Context, policy endpoint.Policy, reg *tools.Registry, logger Logger, cfg CoordinatorConfig) *Coordinator {
	if logger == nil {
		logger = &NoOpLogger{}
	}
	if cfg.MinWordsToInterrupt <= 0 {
		cfg.MinWordsToInterrupt = 1
	}
	return &Coordinator{
		BaseWorker:  worker.New(b),
		chat:        chatCtx,
		policy:      policy,
		tools:       reg,
		logger:      logger,
		cfg:         cfg,
		currentTurn: 1,
	}
}

// Start subscribes to every downstream event the coordinator reacts to.
func (c *Coordinator) Start() {
	c.BaseWorker.Start(context.Background())
	c.Subscribe(llmworker.KindResponse, func(ev bus.Event) {
		if r, ok := ev.Payload.(llmworker.ResponseChunk); ok {
			c.onLLMResponse(r)
		}
	})
	c.Subscribe(llmworker.KindToolCalls, func(ev bus.Event) {
		if t, ok := ev.Payload.(llmworker.ToolCallsEvent); ok {
			c.onLLMToolCalls(t)
		}
	})
	c.Subscribe(ttsworker.KindSpeechStarted, func(bus.Event) {
		c.mu.Lock()
		c.ttsActive = true
		c.ttsSpeechStart = time.Now()
		c.mu.Unlock()
	})
	c.Subscribe(ttsworker.KindSpeechStopped, func(bus.Event) {
		c.mu.Lock()
		c.ttsActive = false
		c.mu.Unlock()
	})
}

// OnVADSample folds one chunk's VAD statistics into the silence-duration
// tracker and the activation/deactivation hysteresis. chunkSeconds is the
// audio duration the sample covers.
func (c *Coordinator) OnVADSample(s vad.Sample, chunkSeconds float64) {
	c.mu.Lock()
	c.lastSample = s
	if endpoint.IsQuietNow(s.SpeechProb, s.MeanProb) {
		c.silenceDuration += chunkSeconds
	} else {
		c.silenceDuration = 0
	}

	if c.silenceDuration > 6 && c.unhandledText != "" {
		c.unhandledText = ""
	}

	fireStart, fireEnd := c.stepVADHysteresis(s)
	c.mu.Unlock()

	if fireStart {
		c.Emit(KindVADStart, nil)
	}
	if fireEnd {
		c.Emit(KindVADEnd, nil)
	}
}

// stepVADHysteresis implements the activation rule (N=5 consecutive chunks
// with speech_prob >= 0.2) and the deactivation rule (>=20 chunks with
// mean_prob <= 0.1 after a prior activation). Caller holds c.mu.
func (c *Coordinator) stepVADHysteresis(s vad.Sample) (fireStart, fireEnd bool) {
	if s.SpeechProb >= vadActivateProb {
		c.vadActiveStreak++
	} else {
		c.vadActiveStreak = 0
	}
	if !c.vadActivated && c.vadActiveStreak >= vadActivateRun {
		c.vadActivated = true
		c.vadQuietStreak = 0
		fireStart = true
	}

	if c.vadActivated {
		if s.MeanProb <= vadDeactivateAvg {
			c.vadQuietStreak++
		} else {
			c.vadQuietStreak = 0
		}
		if c.vadQuietStreak >= vadDeactivateRun {
			c.vadActivated = false
			c.vadActiveStreak = 0
			fireEnd = true
		}
	}
	return fireStart, fireEnd
}

// OnSTTInterim handles an ASR partial hypothesis: it never appends text but
// may still trigger barge-in if the agent is speaking.
func (c *Coordinator) OnSTTInterim(text string) {
	c.mu.Lock()
	quiet := c.silenceDuration < 3
	c.mu.Unlock()
	if quiet {
		c.maybeBargeIn(text)
	}
}

// OnSTTFinal handles a committed ASR segment or an utterance-end marker.
func (c *Coordinator) OnSTTFinal(text string) {
	c.mu.Lock()
	if c.silenceDuration > 3 {
		c.mu.Unlock()
		return // spurious: too much silence already elapsed
	}
	if text != "" {
		if c.unhandledText == "" {
			c.unhandledText = text
		} else {
			c.unhandledText = c.unhandledText + " " + text
		}
	}
	c.mu.Unlock()

	c.maybeBargeIn(text)
	c.evaluate()
}

func wordCount(s string) int {
	return len(strings.Fields(s))
}

// OnForceAbort handles an explicit force-barge-in control message (the data
// channel's f3 command). Unlike OnSTTFinal it goes straight to the abort
// logic: a forced interrupt exists precisely for the case where the user
// has been silent while the agent talks, so it must not be held back by
// OnSTTFinal's spurious-discard gate.
func (c *Coordinator) OnForceAbort() {
	c.mu.Lock()
	elapsed := time.Since(c.ttsSpeechStart)
	active := c.ttsActive
	c.unhandledText = ""
	c.mu.Unlock()

	if !active {
		return
	}
	c.abortAgentSpeech(elapsed)
}

func (c *Coordinator) maybeBargeIn(text string) {
	c.mu.Lock()
	active := c.ttsActive
	elapsed := time.Since(c.ttsSpeechStart)
	c.mu.Unlock()

	if !active {
		return
	}
	if wordCount(text) < c.cfg.MinWordsToInterrupt && text != "" {
		return
	}

	c.abortAgentSpeech(elapsed)
}

func (c *Coordinator) abortAgentSpeech(elapsed time.Duration) {
	c.mu.Lock()
	turn := c.currentTurn
	c.mu.Unlock()

	if elapsed > 0 && elapsed < bargeInWindow {
		c.chat.Interrupt(turn, elapsed.Seconds())
	}
	c.Emit(ttsworker.KindAbort, turn)
	c.Emit(llmworker.KindAbort, nil)
}

func (c *Coordinator) evaluate() {
	c.mu.Lock()
	in := endpoint.Inputs{
		SpeechProb:        c.lastSample.SpeechProb,
		MeanProb:          c.lastSample.MeanProb,
		SilenceRatioShort: c.lastSample.SilenceRatioShort,
		SilenceRatioLong:  c.lastSample.SilenceRatioLong,
		SilenceDuration:   c.silenceDuration,
		UnhandledText:     c.unhandledText,
	}
	c.mu.Unlock()

	if c.policy.ShouldTakeTurn(in) {
		c.commitTurn(in.UnhandledText)
	}
}

func (c *Coordinator) commitTurn(text string) {
	trimmed := strings.TrimSpace(strings.ToLower(text))
	if _, technical := technicalCommands[trimmed]; technical {
		c.abortAgentSpeech(0)
		c.mu.Lock()
		c.unhandledText = ""
		c.mu.Unlock()
		return
	}

	c.abortAgentSpeech(0)

	c.mu.Lock()
	c.currentTurn++
	turn := c.currentTurn
	c.unhandledText = ""
	c.mu.Unlock()

	c.chat.Append(chat.Message{
		TimestampMs: time.Now().UnixMilli(),
		Role:        "user",
		Turn:        turn,
		Content:     text,
	})

	c.dispatchLLMRequest(turn)
}

func (c *Coordinator) dispatchLLMRequest(turn int) {
	var specs []tools.Spec
	if c.tools != nil {
		specs = c.tools.Specs()
	}
	c.Emit(llmworker.KindRequest, llmworker.Request{
		Messages:  c.chat.View(),
		ToolSpecs: specs,
		Turn:      turn,
	})
}

func (c *Coordinator) onLLMResponse(r llmworker.ResponseChunk) {
	c.chat.Append(chat.Message{
		TimestampMs: time.Now().UnixMilli(),
		Role:        "assistant",
		Turn:        r.Turn,
		Content:     r.Text,
	})
	c.Emit(ttsworker.KindRequest, ttsworker.Request{Text: r.Text, Turn: r.Turn})
}

func (c *Coordinator) onLLMToolCalls(t llmworker.ToolCallsEvent) {
	c.chat.Append(chat.Message{
		TimestampMs: time.Now().UnixMilli(),
		Role:        "assistant",
		Turn:        t.Turn,
		ToolCalls:   t.ToolCalls,
	})

	for _, call := range t.ToolCalls {
		var result string
		if c.tools != nil {
			result = c.tools.Call(call.Name, call.Arguments)
		} else {
			result = `{"error":"no tools configured"}`
		}
		c.chat.Append(chat.Message{
			TimestampMs: time.Now().UnixMilli(),
			Role:        "tool",
			Turn:        t.Turn,
			Content:     result,
			ToolCallID:  call.ID,
		})
	}

	c.dispatchLLMRequest(t.Turn)
}

// CurrentTurn reports the turn number the coordinator has committed.
func (c *Coordinator) CurrentTurn() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.currentTurn
}
