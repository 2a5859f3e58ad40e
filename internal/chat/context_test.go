package chat

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// wordCounter counts whitespace-separated words.
func wordCounter(text string) int { return len(strings.Fields(text)) }

func TestPromptWithoutHistory(t *testing.T) {
	c := NewContextManager(5, wordCounter)
	got := c.Prompt("hello there", 100)
	assert.Equal(t, "User: hello there\nAssistant:", got)
}

func TestPromptFormatsTurns(t *testing.T) {
	c := NewContextManager(5, wordCounter)
	c.AddTurn("hi", "hello")
	c.AddTurn("how are you", "fine")

	got := c.Prompt("bye", 100)
	want := "User: hi\nAssistant: hello\n\n" +
		"User: how are you\nAssistant: fine\n\n" +
		"User: bye\nAssistant:"
	assert.Equal(t, want, got)
}

func TestPromptRespectsTokenBudget(t *testing.T) {
	c := NewContextManager(10, wordCounter)
	c.AddTurn("one two three", "four five") // 7 tokens formatted
	c.AddTurn("six", "seven")               // 4 tokens formatted
	c.AddTurn("eight nine", "ten")          // 5 tokens formatted

	// input = 1 token; budget 10 admits the two newest turns (1+5+4 = 10)
	// but not the oldest (would reach 17).
	got := c.Prompt("x", 10)
	assert.NotContains(t, got, "one two three")
	assert.Contains(t, got, "User: six\nAssistant: seven")
	assert.Contains(t, got, "User: eight nine\nAssistant: ten")
}

func TestPromptBudgetCountsFraming(t *testing.T) {
	c := NewContextManager(5, wordCounter)
	c.AddTurn("a", "b") // "User: a\nAssistant: b" is 4 tokens

	// Budget 4 covers the raw turn text plus the input, but not the
	// User/Assistant labels, so the turn is dropped.
	assert.Equal(t, "User: x\nAssistant:", c.Prompt("x", 4))

	// One more token admits the framed turn.
	assert.Contains(t, c.Prompt("x", 5), "User: a\nAssistant: b")
}

func TestPromptZeroBudgetKeepsInputOnly(t *testing.T) {
	c := NewContextManager(5, wordCounter)
	c.AddTurn("hi", "hello")

	got := c.Prompt("question", 1)
	assert.Equal(t, "User: question\nAssistant:", got)
}

func TestOversizedMidHistoryTurnCutsOlder(t *testing.T) {
	c := NewContextManager(10, wordCounter)
	c.AddTurn("tiny", "turn")                               // 4 tokens formatted, old
	c.AddTurn("a b c d e f g h i j", "k l m n o p q r s t") // 22 tokens formatted
	c.AddTurn("new", "turn")                                // 4 tokens formatted

	// Budget admits the newest turn, rejects the oversized one, and the
	// walk stops there even though the oldest would fit.
	got := c.Prompt("x", 5)
	assert.Contains(t, got, "User: new\nAssistant: turn")
	assert.NotContains(t, got, "a b c d e f g h i j")
	assert.NotContains(t, got, "User: tiny")
}

func TestMaxTurnsEviction(t *testing.T) {
	c := NewContextManager(2, wordCounter)
	c.AddTurn("first", "1")
	c.AddTurn("second", "2")
	c.AddTurn("third", "3")

	require.Equal(t, 2, c.Len())
	h := c.History()
	assert.Equal(t, "second", h[0].User)
	assert.Equal(t, "third", h[1].User)
}

func TestClearAndSetHistory(t *testing.T) {
	c := NewContextManager(3, wordCounter)
	c.AddTurn("a", "b")
	c.Clear()
	assert.Equal(t, 0, c.Len())

	c.SetHistory([]Turn{
		{User: "u1", Assistant: "a1"},
		{User: "u2", Assistant: "a2"},
		{User: "u3", Assistant: "a3"},
		{User: "u4", Assistant: "a4"},
	})
	require.Equal(t, 3, c.Len())
	assert.Equal(t, "u2", c.History()[0].User)
}

func TestHistoryReturnsCopy(t *testing.T) {
	c := NewContextManager(3, wordCounter)
	c.AddTurn("a", "b")

	h := c.History()
	h[0].User = "mutated"
	assert.Equal(t, "a", c.History()[0].User)
}

func TestConversationIDStable(t *testing.T) {
	c := NewContextManager(3, wordCounter)
	assert.Equal(t, c.ID(), c.ID())
	assert.NotEqual(t, c.ID(), NewContextManager(3, wordCounter).ID())
}

func TestInvalidConstructionPanics(t *testing.T) {
	assert.Panics(t, func() { NewContextManager(0, wordCounter) })
	assert.Panics(t, func() { NewContextManager(3, nil) })
}
