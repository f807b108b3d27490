// Package conversation owns the durable record of prompts and responses per
// script: an append-only sequence of generations where only the newest entry's
// response may be rewritten while content streams in.
package conversation

import "time"

// ChatMessage is a single message in an LLM exchange
type ChatMessage struct {
	Role    string `json:"role"` // system, user, or assistant
	Content string `json:"content"`
}

// Generation records one LLM call: the messages sent and the accumulating
// response. Once a newer generation is appended, this one is sealed and must
// not be mutated again.
type Generation struct {
	Messages     []ChatMessage `json:"messages"`
	Response     string        `json:"response"`
	CachedTokens int           `json:"cachedTokens,omitempty"`
	Timestamp    time.Time     `json:"timestamp"`
}

// UserPrompt returns the content of the last user-role message, which is what
// the wire format persists as the generation's prompt block.
func (g Generation) UserPrompt() string {
	for i := len(g.Messages) - 1; i >= 0; i-- {
		if g.Messages[i].Role == "user" {
			return g.Messages[i].Content
		}
	}
	return ""
}

// Conversation is the complete exchange history for one script
type Conversation struct {
	ID          string       `json:"id"`
	ScriptID    string       `json:"scriptId"`
	Generations []Generation `json:"generations"`
	CreatedAt   time.Time    `json:"createdAt"`
	UpdatedAt   time.Time    `json:"updatedAt"`
}

// Latest returns the newest generation, or nil when none exist
func (c *Conversation) Latest() *Generation {
	if len(c.Generations) == 0 {
		return nil
	}
	return &c.Generations[len(c.Generations)-1]
}

// clone returns a deep copy so callers can never mutate store-owned state
func (c *Conversation) clone() *Conversation {
	cp := &Conversation{
		ID:        c.ID,
		ScriptID:  c.ScriptID,
		CreatedAt: c.CreatedAt,
		UpdatedAt: c.UpdatedAt,
	}
	cp.Generations = make([]Generation, len(c.Generations))
	for i, g := range c.Generations {
		gc := g
		gc.Messages = append([]ChatMessage(nil), g.Messages...)
		cp.Generations[i] = gc
	}
	return cp
}
