package turn

import (
	"testing"

	"github.com/parleyvoice/parley/pkg/types"
)

func TestHistory_SeedsSystemMessage(t *testing.T) {
	t.Parallel()

	h := NewHistory("be helpful")
	if h.Len() != 1 {
		t.Fatalf("Len() = %d, want 1", h.Len())
	}
	msgs := h.Messages()
	if msgs[0].Role != types.RoleSystem || msgs[0].Content != "be helpful" {
		t.Fatalf("first message = %+v, want seeded system instruction", msgs[0])
	}
}

func TestHistory_GrowsByTurnPairs(t *testing.T) {
	t.Parallel()

	h := NewHistory("sys")
	const turns = 4
	for i := 0; i < turns; i++ {
		h.AppendUser("question")
		h.AppendAssistant("answer")
	}
	if got, want := h.Len(), 1+2*turns; got != want {
		t.Fatalf("Len() after %d turns = %d, want %d", turns, got, want)
	}

	msgs := h.Messages()
	for i := 1; i < len(msgs); i++ {
		wantRole := types.RoleUser
		if i%2 == 0 {
			wantRole = types.RoleAssistant
		}
		if msgs[i].Role != wantRole {
			t.Fatalf("message %d role = %s, want %s", i, msgs[i].Role, wantRole)
		}
	}

	// System message stays unique at index 0.
	for i := 1; i < len(msgs); i++ {
		if msgs[i].Role == types.RoleSystem {
			t.Fatalf("unexpected system message at index %d", i)
		}
	}
}

func TestHistory_DanglingUserMessage(t *testing.T) {
	t.Parallel()

	h := NewHistory("sys")
	h.AppendUser("first")
	h.AppendAssistant("reply")
	h.AppendUser("second") // generation failed, no assistant reply

	if h.Len() != 4 {
		t.Fatalf("Len() = %d, want 4 (system + pair + dangling user)", h.Len())
	}
	msgs := h.Messages()
	if last := msgs[len(msgs)-1]; last.Role != types.RoleUser || last.Content != "second" {
		t.Fatalf("last message = %+v, want retained user message", last)
	}
}

func TestHistory_Window(t *testing.T) {
	t.Parallel()

	h := NewHistory("sys")
	for i := 0; i < 6; i++ {
		h.AppendUser("u")
		h.AppendAssistant("a")
	}

	tests := []struct {
		name    string
		n       int
		wantLen int
	}{
		{"window smaller than log", 4, 5},
		{"window equals log", 12, 13},
		{"window larger than log", 50, 13},
		{"zero means everything", 0, 13},
		{"negative means everything", -1, 13},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			win := h.Window(tt.n)
			if len(win) != tt.wantLen {
				t.Fatalf("Window(%d) length = %d, want %d", tt.n, len(win), tt.wantLen)
			}
			if win[0].Role != types.RoleSystem {
				t.Fatal("window must always start with the system instruction")
			}
		})
	}

	// Window takes the most recent messages.
	win := h.Window(2)
	if win[1].Role != types.RoleUser || win[2].Role != types.RoleAssistant {
		t.Fatalf("Window(2) tail roles = %s, %s; want user, assistant", win[1].Role, win[2].Role)
	}
}

func TestHistory_SnapshotsAreCopies(t *testing.T) {
	t.Parallel()

	h := NewHistory("sys")
	h.AppendUser("hello")

	snap := h.Messages()
	snap[0].Content = "mutated"
	if h.Messages()[0].Content != "sys" {
		t.Fatal("mutating a snapshot leaked into the history")
	}

	win := h.Window(1)
	win[0].Content = "mutated"
	if h.Messages()[0].Content != "sys" {
		t.Fatal("mutating a window leaked into the history")
	}
}
