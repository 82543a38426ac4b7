package chat

import "testing"

func TestNewContextSeedsSystemPrompt(t *testing.T) {
	c := NewContext("be terse")
	if c.Len() != 1 {
		t.Fatalf("expected 1 message, got %d", c.Len())
	}
	all := c.All()
	if all[0].Role != "system" || all[0].Content != "be terse" {
		t.Fatalf("unexpected system message: %+v", all[0])
	}
}

func TestNewContextWithoutPromptStartsEmpty(t *testing.T) {
	c := NewContext("")
	if c.Len() != 0 {
		t.Fatalf("expected 0 messages, got %d", c.Len())
	}
}

func TestAppendInvokesOnAppendHook(t *testing.T) {
	c := NewContext("")

	var seen []Message
	c.SetOnAppend(func(m Message) {
		seen = append(seen, m)
	})

	c.Append(Message{Role: "user", Content: "hi"})

	if len(seen) != 1 || seen[0].Content != "hi" {
		t.Fatalf("hook did not observe appended message: %+v", seen)
	}
}

func TestInterruptMarksMostRecentAssistantMessageForTurn(t *testing.T) {
	c := NewContext("")
	c.Append(Message{Role: "user", Turn: 1, Content: "hello"})
	c.Append(Message{Role: "assistant", Turn: 1, Content: "hi there, how can I"})

	c.Interrupt(1, 1.2)

	all := c.All()
	last := all[len(all)-1]
	if last.InterruptionTimeMs != 1200 {
		t.Fatalf("expected interruption time 1200ms, got %d", last.InterruptionTimeMs)
	}
}

func TestInterruptOnlyLooksBackFiveMessages(t *testing.T) {
	c := NewContext("")
	c.Append(Message{Role: "assistant", Turn: 1, Content: "stale"})
	for i := 0; i < 5; i++ {
		c.Append(Message{Role: "user", Turn: 2, Content: "filler"})
	}

	c.Interrupt(1, 1.0)

	all := c.All()
	if all[0].InterruptionTimeMs != 0 {
		t.Fatalf("expected the out-of-window message to stay untouched")
	}
}

func TestViewElidesEarlyInterruptedAssistantMessages(t *testing.T) {
	c := NewContext("")
	c.SetInterruptedEarlyThresholdMs(3000)
	c.Append(Message{Role: "user", Turn: 1, Content: "hello"})
	c.Append(Message{Role: "assistant", Turn: 1, Content: "hi"})
	c.Interrupt(1, 0.5) // 500ms, below the 3000ms threshold

	view := c.View()
	for _, m := range view {
		if m.Role == "assistant" {
			t.Fatalf("expected early-interrupted assistant message to be elided, found: %+v", m)
		}
	}
	if len(view) != 1 {
		t.Fatalf("expected only the user message to survive, got %d messages", len(view))
	}
}

func TestViewKeepsLateInterruptedAssistantMessages(t *testing.T) {
	c := NewContext("")
	c.SetInterruptedEarlyThresholdMs(3000)
	c.Append(Message{Role: "user", Turn: 1, Content: "hello"})
	c.Append(Message{Role: "assistant", Turn: 1, Content: "hi, I think the answer is probably"})
	c.Interrupt(1, 5.0) // 5000ms, past the threshold

	view := c.View()
	if len(view) != 2 {
		t.Fatalf("expected both messages to survive, got %d", len(view))
	}
}
