package testutil

import (
	"context"
	"fmt"
	"strings"
	"sync"
)

// ScriptedCompleter stands in for the language model. It answers a prompt with the reply of
// the first rule whose key occurs in the prompt, so tests script replies by user text.
type ScriptedCompleter struct {
	mu       sync.Mutex
	rules    []scriptRule
	fallback string
	prompts  []string
}

type scriptRule struct {
	contains string
	reply    string
	err      error
}

// NewScriptedCompleter creates a completer with no rules. Unmatched prompts fail.
func NewScriptedCompleter() *ScriptedCompleter {
	return &ScriptedCompleter{}
}

// On answers prompts containing text with reply.
func (c *ScriptedCompleter) On(text, reply string) *ScriptedCompleter {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.rules = append(c.rules, scriptRule{contains: text, reply: reply})
	return c
}

// FailOn makes prompts containing text fail with err.
func (c *ScriptedCompleter) FailOn(text string, err error) *ScriptedCompleter {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.rules = append(c.rules, scriptRule{contains: text, err: err})
	return c
}

// Otherwise sets the reply for prompts no rule matches.
func (c *ScriptedCompleter) Otherwise(reply string) *ScriptedCompleter {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.fallback = reply
	return c
}

func (c *ScriptedCompleter) Complete(ctx context.Context, prompt string) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	c.prompts = append(c.prompts, prompt)

	for _, r := range c.rules {
		if strings.Contains(prompt, r.contains) {
			return r.reply, r.err
		}
	}
	if c.fallback != "" {
		return c.fallback, nil
	}
	return "", fmt.Errorf("no scripted reply for prompt")
}

func (c *ScriptedCompleter) IsConfigured() bool {
	return true
}

// Prompts returns every prompt received so far.
func (c *ScriptedCompleter) Prompts() []string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]string(nil), c.prompts...)
}
