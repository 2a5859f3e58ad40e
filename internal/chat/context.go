// Package chat maintains bounded conversational history and builds the
// prompts the model sees.
package chat

import (
	"fmt"
	"strings"
	"sync"

	"github.com/google/uuid"
)

// Turn is one completed user/assistant exchange.
type Turn struct {
	User      string `json:"user"`
	Assistant string `json:"assistant"`
}

// TokenCounter measures prompt text in model tokens. The engine supplies
// one backed by its tokenizer.
type TokenCounter func(text string) int

// ContextManager accumulates conversation turns under two bounds: a hard
// cap on stored turns and, per prompt, a token budget. It is safe for
// concurrent use.
type ContextManager struct {
	id       uuid.UUID
	maxTurns int
	count    TokenCounter

	mu      sync.Mutex
	history []Turn
}

// NewContextManager creates a manager holding at most maxTurns turns.
// Panics on a non-positive maxTurns or nil counter.
func NewContextManager(maxTurns int, count TokenCounter) *ContextManager {
	if maxTurns <= 0 {
		panic(fmt.Sprintf("chat: maxTurns must be positive, got %d", maxTurns))
	}
	if count == nil {
		panic("chat: token counter must not be nil")
	}
	return &ContextManager{
		id:       uuid.New(),
		maxTurns: maxTurns,
		count:    count,
	}
}

// ID returns the conversation identifier.
func (c *ContextManager) ID() uuid.UUID { return c.id }

// AddTurn records a completed exchange, evicting the oldest turn once the
// cap is reached.
func (c *ContextManager) AddTurn(user, assistant string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.history = append(c.history, Turn{User: user, Assistant: assistant})
	if len(c.history) > c.maxTurns {
		c.history = c.history[len(c.history)-c.maxTurns:]
	}
}

// Prompt builds the model prompt for input: the most recent turns that
// fit the token budget alongside the input, oldest first, each formatted
// as "User: ...\nAssistant: ..." and joined by blank lines, ending with
// an open "User: <input>\nAssistant:" cue.
//
// Turns are admitted newest-first; the first turn that would push the
// total past maxContextTokens stops the walk, so a mid-history oversized
// turn also cuts off everything older than it. A turn's cost is measured
// on its formatted text, so the framing labels count against the budget.
func (c *ContextManager) Prompt(input string, maxContextTokens int) string {
	c.mu.Lock()
	defer c.mu.Unlock()

	total := c.count(input)
	var kept []Turn
	for i := len(c.history) - 1; i >= 0; i-- {
		turn := c.history[i]
		turnTokens := c.count(formatTurn(turn))
		if total+turnTokens > maxContextTokens {
			break
		}
		total += turnTokens
		kept = append([]Turn{turn}, kept...)
	}

	var sb strings.Builder
	for _, turn := range kept {
		sb.WriteString(formatTurn(turn))
		sb.WriteString("\n\n")
	}
	fmt.Fprintf(&sb, "User: %s\nAssistant:", input)
	return sb.String()
}

// formatTurn renders one exchange the way it appears in prompts.
func formatTurn(t Turn) string {
	return fmt.Sprintf("User: %s\nAssistant: %s", t.User, t.Assistant)
}

// Len returns the number of stored turns.
func (c *ContextManager) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.history)
}

// Clear drops all stored turns.
func (c *ContextManager) Clear() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.history = nil
}

// History returns a copy of the stored turns, oldest first.
func (c *ContextManager) History() []Turn {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]Turn, len(c.history))
	copy(out, c.history)
	return out
}

// SetHistory replaces the stored turns, keeping only the most recent
// maxTurns. Used to restore a persisted conversation.
func (c *ContextManager) SetHistory(turns []Turn) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if len(turns) > c.maxTurns {
		turns = turns[len(turns)-c.maxTurns:]
	}
	c.history = make([]Turn, len(turns))
	copy(c.history, turns)
}
