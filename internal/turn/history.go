package turn

import (
	"sync"

	"github.com/parleyvoice/parley/pkg/types"
)

// History is the append-only conversation log for one session. The system
// instruction seeded at construction is always first and is the only
// system-role entry; each completed turn appends one user message and, unless
// the turn fails before generation completes, one assistant message.
//
// History is safe for concurrent use. Reads return copies so callers can hand
// snapshots to the response generator without racing later appends.
type History struct {
	mu   sync.RWMutex
	msgs []types.Message
}

// NewHistory seeds a history with the given system instruction at index 0.
func NewHistory(systemPrompt string) *History {
	return &History{
		msgs: []types.Message{{Role: types.RoleSystem, Content: systemPrompt}},
	}
}

// AppendUser appends a user-role message.
func (h *History) AppendUser(content string) {
	h.append(types.Message{Role: types.RoleUser, Content: content})
}

// AppendAssistant appends an assistant-role message.
func (h *History) AppendAssistant(content string) {
	h.append(types.Message{Role: types.RoleAssistant, Content: content})
}

func (h *History) append(m types.Message) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.msgs = append(h.msgs, m)
}

// Len returns the total number of messages including the system instruction.
func (h *History) Len() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.msgs)
}

// Messages returns a snapshot of the full log.
func (h *History) Messages() []types.Message {
	h.mu.RLock()
	defer h.mu.RUnlock()
	out := make([]types.Message, len(h.msgs))
	copy(out, h.msgs)
	return out
}

// Window returns a snapshot containing the system instruction followed by the
// most recent n conversation messages. n <= 0 or n covering the whole log
// returns everything.
func (h *History) Window(n int) []types.Message {
	h.mu.RLock()
	defer h.mu.RUnlock()

	rest := h.msgs[1:]
	if n <= 0 || n >= len(rest) {
		out := make([]types.Message, len(h.msgs))
		copy(out, h.msgs)
		return out
	}

	out := make([]types.Message, 0, n+1)
	out = append(out, h.msgs[0])
	out = append(out, rest[len(rest)-n:]...)
	return out
}
