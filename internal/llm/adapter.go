package llm

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"regexp"
	"strings"
)

// Provider sends one chat completion request and returns the raw model
// text. Concrete implementations live in internal/llm/ollama and
// internal/llm/openrouter.
type Provider interface {
	Complete(ctx context.Context, system, user string) (string, error)
}

// ErrBudgetExhausted is returned by ChatJSON when the shared Budget has no
// tokens left for this call.
var ErrBudgetExhausted = errors.New("llm: budget exhausted")

// Adapter wraps a Provider with a shared Budget and a bounded re-ask loop
// that forces the model's free-text response into a JSON value.
type Adapter struct {
	Provider Provider
	Budget   *Budget
	MaxReask int
}

// NewAdapter builds an Adapter. maxReask is clamped to at least 0.
func NewAdapter(p Provider, b *Budget, maxReask int) *Adapter {
	if maxReask < 0 {
		maxReask = 0
	}
	return &Adapter{Provider: p, Budget: b, MaxReask: maxReask}
}

// ChatJSON asks the model for a JSON reply and unmarshals it into out. On a
// parse failure it re-asks up to MaxReask times, sending the user message
// again with the previous raw reply attached and a fixed correction
// appended to the system prompt, before giving up.
func (a *Adapter) ChatJSON(ctx context.Context, system, user string, out any) error {
	if !a.Budget.Acquire() {
		return ErrBudgetExhausted
	}

	sys, prompt := system, user
	var lastErr error
	for attempt := 0; attempt <= a.MaxReask; attempt++ {
		text, err := a.Provider.Complete(ctx, sys, prompt)
		if err != nil {
			return fmt.Errorf("llm.ChatJSON: provider: %w", err)
		}

		raw, extractErr := ExtractJSON(text)
		if extractErr == nil {
			if err := json.Unmarshal(raw, out); err == nil {
				return nil
			} else {
				lastErr = fmt.Errorf("unmarshal: %w", err)
			}
		} else {
			lastErr = extractErr
		}

		sys = system + "\nYour previous reply could not be parsed as JSON. Reply with ONLY a single JSON object, no prose, no code fences."
		prompt = user + "\n\nYour previous reply was:\n" + text
	}
	return fmt.Errorf("llm.ChatJSON: exhausted %d attempts: %w", a.MaxReask+1, lastErr)
}

var fencedJSON = regexp.MustCompile("(?s)```(?:json)?\\s*(\\{.*?\\}|\\[.*?\\])\\s*```")
var bareJSON = regexp.MustCompile(`(?s)(\{.*\}|\[.*\])`)

// ExtractJSON pulls a JSON value out of free-form model text using three
// tiers, in order: (1) the whole trimmed text parses as JSON outright; (2)
// a fenced ```json ... ``` code block; (3) a balanced-brace scan for the
// first top-level {...} or [...] span, falling back to the widest regex
// match. It returns an error if no tier yields valid JSON.
func ExtractJSON(text string) ([]byte, error) {
	trimmed := strings.TrimSpace(text)

	if json.Valid([]byte(trimmed)) {
		return []byte(trimmed), nil
	}

	if m := fencedJSON.FindStringSubmatch(trimmed); m != nil {
		candidate := strings.TrimSpace(m[1])
		if json.Valid([]byte(candidate)) {
			return []byte(candidate), nil
		}
	}

	if span, ok := balancedBraceScan(trimmed); ok && json.Valid([]byte(span)) {
		return []byte(span), nil
	}

	if m := bareJSON.FindString(trimmed); m != "" && json.Valid([]byte(m)) {
		return []byte(m), nil
	}

	return nil, fmt.Errorf("llm.ExtractJSON: no JSON value found in response")
}

// balancedBraceScan finds the first top-level {...} span by tracking
// brace/bracket depth, tolerant of braces inside quoted strings.
func balancedBraceScan(s string) (string, bool) {
	start := -1
	depth := 0
	inString := false
	escaped := false
	var open, close byte

	for i := 0; i < len(s); i++ {
		c := s[i]
		if start == -1 {
			if c == '{' || c == '[' {
				start = i
				open = c
				if c == '{' {
					close = '}'
				} else {
					close = ']'
				}
				depth = 1
			}
			continue
		}
		if inString {
			if escaped {
				escaped = false
			} else if c == '\\' {
				escaped = true
			} else if c == '"' {
				inString = false
			}
			continue
		}
		switch c {
		case '"':
			inString = true
		case open:
			depth++
		case close:
			depth--
			if depth == 0 {
				return s[start : i+1], true
			}
		}
	}
	return "", false
}
