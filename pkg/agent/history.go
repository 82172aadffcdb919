package agent

import (
	"sync"

	"github.com/kadirpekel/hfspace/pkg/llms"
)

// History is the conversation kept by an agent between calls to Send.
type History struct {
	messages []llms.Message
	mu       sync.RWMutex
}

func NewHistory() *History {
	return &History{}
}

// Append records messages at the end of the conversation.
func (h *History) Append(msgs ...llms.Message) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.messages = append(h.messages, msgs...)
}

// Messages returns a copy of the conversation.
func (h *History) Messages() []llms.Message {
	h.mu.RLock()
	defer h.mu.RUnlock()
	out := make([]llms.Message, len(h.messages))
	copy(out, h.messages)
	return out
}

func (h *History) Len() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.messages)
}

func (h *History) Clear() {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.messages = nil
}
