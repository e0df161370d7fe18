package rag

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/parleyvoice/parley/pkg/memory"
	memmock "github.com/parleyvoice/parley/pkg/memory/mock"
	embmock "github.com/parleyvoice/parley/pkg/provider/embeddings/mock"
	"github.com/parleyvoice/parley/pkg/provider/llm"
	llmmock "github.com/parleyvoice/parley/pkg/provider/llm/mock"
	"github.com/parleyvoice/parley/pkg/types"
)

func conversation(userText string) []types.Message {
	return []types.Message{
		{Role: types.RoleSystem, Content: "you are a support agent"},
		{Role: types.RoleUser, Content: userText},
	}
}

func TestNewResponder_Validation(t *testing.T) {
	t.Parallel()

	if _, err := NewResponder(nil); err == nil {
		t.Error("NewResponder accepted a nil provider")
	}
	if _, err := NewResponder(&llmmock.Provider{}, WithRetrieval(&embmock.Provider{}, nil)); err == nil {
		t.Error("NewResponder accepted an embedder without an index")
	}
}

func TestRespond_WithoutRetrieval(t *testing.T) {
	t.Parallel()

	provider := &llmmock.Provider{Default: llm.CompletionResponse{Content: "happy to help"}}
	r, err := NewResponder(provider, WithTemperature(0.7), WithMaxTokens(256))
	if err != nil {
		t.Fatalf("NewResponder: %v", err)
	}

	got, err := r.Respond(context.Background(), conversation("hi"))
	if err != nil {
		t.Fatalf("Respond: %v", err)
	}
	if got != "happy to help" {
		t.Errorf("reply = %q", got)
	}

	req := provider.LastRequest()
	if req.SystemPrompt != "you are a support agent" {
		t.Errorf("SystemPrompt = %q, want passthrough", req.SystemPrompt)
	}
	if len(req.Messages) != 1 || req.Messages[0].Role != types.RoleUser {
		t.Errorf("Messages = %+v, want just the user turn", req.Messages)
	}
	if req.Temperature != 0.7 || req.MaxTokens != 256 {
		t.Errorf("sampling params = (%v, %d)", req.Temperature, req.MaxTokens)
	}
}

func TestRespond_InjectsRetrievedKnowledge(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	embedder := &embmock.Provider{}
	index := &memmock.Index{}

	// Index a document under the exact embedding the query will produce, so
	// the search distance is 0.
	queryEmbedding, err := embedder.Embed(ctx, "what is the return policy")
	if err != nil {
		t.Fatalf("Embed: %v", err)
	}
	doc := memory.Document{
		ID:        "returns-1",
		Content:   "Returns are free within 30 days of purchase.",
		Embedding: queryEmbedding,
		Source:    "faq",
		CreatedAt: time.Now(),
	}
	if err := index.IndexDocument(ctx, doc); err != nil {
		t.Fatalf("IndexDocument: %v", err)
	}

	provider := &llmmock.Provider{Default: llm.CompletionResponse{Content: "free within 30 days"}}
	r, err := NewResponder(provider, WithRetrieval(embedder, index))
	if err != nil {
		t.Fatalf("NewResponder: %v", err)
	}

	if _, err := r.Respond(ctx, conversation("what is the return policy")); err != nil {
		t.Fatalf("Respond: %v", err)
	}

	prompt := provider.LastRequest().SystemPrompt
	if !strings.Contains(prompt, "Relevant Knowledge") {
		t.Errorf("system prompt missing knowledge section: %q", prompt)
	}
	if !strings.Contains(prompt, "Returns are free within 30 days") {
		t.Errorf("system prompt missing retrieved passage: %q", prompt)
	}
	if !strings.HasPrefix(prompt, "you are a support agent") {
		t.Errorf("original system prompt must lead: %q", prompt)
	}
}

func TestRespond_DistanceCutoffDropsUnrelatedDocuments(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	embedder := &embmock.Provider{}
	index := &memmock.Index{}

	// A document orthogonal to the query sits at distance ~1 and must be
	// dropped by the default cutoff.
	doc := memory.Document{
		ID:        "unrelated",
		Content:   "The office dog is named Biscuit.",
		Embedding: make([]float32, 8),
	}
	doc.Embedding[0] = 1
	if err := index.IndexDocument(ctx, doc); err != nil {
		t.Fatalf("IndexDocument: %v", err)
	}

	provider := &llmmock.Provider{Default: llm.CompletionResponse{Content: "no idea"}}
	r, err := NewResponder(provider,
		WithRetrieval(embedder, index),
		WithMaxDistance(0.01))
	if err != nil {
		t.Fatalf("NewResponder: %v", err)
	}

	if _, err := r.Respond(ctx, conversation("what is the return policy")); err != nil {
		t.Fatalf("Respond: %v", err)
	}
	if prompt := provider.LastRequest().SystemPrompt; strings.Contains(prompt, "Biscuit") {
		t.Errorf("unrelated document leaked into prompt: %q", prompt)
	}
}

func TestRespond_RetrievalFailureDegrades(t *testing.T) {
	t.Parallel()

	embedder := &embmock.Provider{Err: errors.New("embeddings api down")}
	provider := &llmmock.Provider{Default: llm.CompletionResponse{Content: "best effort"}}
	r, err := NewResponder(provider, WithRetrieval(embedder, &memmock.Index{}))
	if err != nil {
		t.Fatalf("NewResponder: %v", err)
	}

	got, err := r.Respond(context.Background(), conversation("hi"))
	if err != nil {
		t.Fatalf("Respond must not fail when retrieval fails: %v", err)
	}
	if got != "best effort" {
		t.Errorf("reply = %q", got)
	}
	if prompt := provider.LastRequest().SystemPrompt; strings.Contains(prompt, "Relevant Knowledge") {
		t.Error("knowledge section must be absent after a retrieval failure")
	}
}

func TestRespond_CompletionFailure(t *testing.T) {
	t.Parallel()

	provider := &llmmock.Provider{Err: errors.New("model overloaded")}
	r, err := NewResponder(provider)
	if err != nil {
		t.Fatalf("NewResponder: %v", err)
	}
	if _, err := r.Respond(context.Background(), conversation("hi")); err == nil {
		t.Error("Respond must propagate completion errors")
	}
}

func TestRespond_InputValidation(t *testing.T) {
	t.Parallel()

	r, err := NewResponder(&llmmock.Provider{})
	if err != nil {
		t.Fatalf("NewResponder: %v", err)
	}

	tests := []struct {
		name     string
		messages []types.Message
	}{
		{"empty", nil},
		{"system only", []types.Message{{Role: types.RoleSystem, Content: "sys"}}},
		{"last not user", []types.Message{
			{Role: types.RoleSystem, Content: "sys"},
			{Role: types.RoleUser, Content: "hi"},
			{Role: types.RoleAssistant, Content: "hello"},
		}},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			if _, err := r.Respond(context.Background(), tc.messages); err == nil {
				t.Error("Respond accepted a malformed conversation")
			}
		})
	}
}
