// Package rag generates assistant replies with retrieval-augmented
// generation: the user's utterance is embedded, the nearest knowledge-base
// documents are fetched from the search index, and the retrieved passages
// are injected into the system prompt before the completion call.
//
// Retrieval is optional. Without an embedder and index the responder is a
// plain completion wrapper, and a failed retrieval degrades to an
// un-augmented reply rather than failing the turn — a worse answer beats no
// answer in a live conversation.
package rag

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/parleyvoice/parley/pkg/memory"
	"github.com/parleyvoice/parley/pkg/provider/embeddings"
	"github.com/parleyvoice/parley/pkg/provider/llm"
	"github.com/parleyvoice/parley/pkg/types"
)

const (
	defaultTopK = 4

	// defaultMaxDistance is the cosine-distance cutoff above which a
	// retrieved document is considered unrelated and dropped.
	defaultMaxDistance = 0.6
)

// Responder answers conversation turns through a language model, optionally
// grounding each reply in documents retrieved from a knowledge base.
type Responder struct {
	llm      llm.Provider
	embedder embeddings.Provider
	index    memory.SearchIndex

	topK        int
	maxDistance float64
	source      string
	temperature float64
	maxTokens   int
	log         *slog.Logger
}

// Option is a functional option for configuring a [Responder].
type Option func(*Responder)

// WithRetrieval enables knowledge-base grounding. Both the embedder and the
// index must be non-nil.
func WithRetrieval(embedder embeddings.Provider, index memory.SearchIndex) Option {
	return func(r *Responder) {
		r.embedder = embedder
		r.index = index
	}
}

// WithTopK sets how many documents are retrieved per turn. Default: 4.
func WithTopK(k int) Option {
	return func(r *Responder) { r.topK = k }
}

// WithMaxDistance sets the cosine-distance cutoff for retrieved documents.
// Documents farther than this from the query are dropped. Default: 0.6.
func WithMaxDistance(d float64) Option {
	return func(r *Responder) { r.maxDistance = d }
}

// WithSource restricts retrieval to documents from one ingestion source.
// Default: no restriction.
func WithSource(source string) Option {
	return func(r *Responder) { r.source = source }
}

// WithTemperature sets the completion sampling temperature.
func WithTemperature(t float64) Option {
	return func(r *Responder) { r.temperature = t }
}

// WithMaxTokens caps the completion length.
func WithMaxTokens(n int) Option {
	return func(r *Responder) { r.maxTokens = n }
}

// WithLogger sets the structured logger. Default is slog.Default().
func WithLogger(log *slog.Logger) Option {
	return func(r *Responder) { r.log = log }
}

// NewResponder wraps a language-model provider. Retrieval is off until
// [WithRetrieval] supplies an embedder and an index.
func NewResponder(provider llm.Provider, opts ...Option) (*Responder, error) {
	if provider == nil {
		return nil, fmt.Errorf("rag: llm provider must not be nil")
	}
	r := &Responder{
		llm:         provider,
		topK:        defaultTopK,
		maxDistance: defaultMaxDistance,
		log:         slog.Default(),
	}
	for _, o := range opts {
		o(r)
	}
	if (r.embedder == nil) != (r.index == nil) {
		return nil, fmt.Errorf("rag: retrieval needs both an embedder and an index")
	}
	return r, nil
}

// Respond generates the assistant reply for the conversation. The last
// message must be the user turn; a leading system message becomes the system
// prompt, augmented with retrieved knowledge when retrieval is enabled.
func (r *Responder) Respond(ctx context.Context, messages []types.Message) (string, error) {
	if len(messages) == 0 {
		return "", fmt.Errorf("rag: empty conversation")
	}

	systemPrompt := ""
	conversation := messages
	if messages[0].Role == types.RoleSystem {
		systemPrompt = messages[0].Content
		conversation = messages[1:]
	}
	if len(conversation) == 0 {
		return "", fmt.Errorf("rag: conversation has no user turn")
	}

	last := conversation[len(conversation)-1]
	if last.Role != types.RoleUser {
		return "", fmt.Errorf("rag: last message role is %s, want %s", last.Role, types.RoleUser)
	}

	if r.index != nil {
		if section := r.retrieve(ctx, last.Content); section != "" {
			systemPrompt = systemPrompt + "\n\n" + section
		}
	}

	resp, err := r.llm.Complete(ctx, llm.CompletionRequest{
		Messages:     conversation,
		SystemPrompt: systemPrompt,
		Temperature:  r.temperature,
		MaxTokens:    r.maxTokens,
	})
	if err != nil {
		return "", fmt.Errorf("rag: completion: %w", err)
	}
	return resp.Content, nil
}

// retrieve embeds the query, searches the index, and renders the surviving
// documents as a knowledge section. Errors degrade to an empty section.
func (r *Responder) retrieve(ctx context.Context, query string) string {
	embedding, err := r.embedder.Embed(ctx, query)
	if err != nil {
		r.log.Warn("query embedding failed, replying without retrieval", "error", err)
		return ""
	}

	results, err := r.index.Search(ctx, embedding, r.topK, r.source)
	if err != nil {
		r.log.Warn("knowledge search failed, replying without retrieval", "error", err)
		return ""
	}

	kept := results[:0]
	for _, res := range results {
		if res.Distance <= r.maxDistance {
			kept = append(kept, res)
		}
	}
	if len(kept) == 0 {
		return ""
	}

	r.log.Debug("retrieved knowledge", "documents", len(kept), "nearest", kept[0].Distance)
	return formatKnowledge(kept)
}

// formatKnowledge renders retrieved documents as a markdown section for the
// system prompt. Empty documents are omitted.
func formatKnowledge(results []memory.SearchResult) string {
	var sb strings.Builder
	sb.WriteString("## Relevant Knowledge\n")
	sb.WriteString("Use the following passages when they answer the user's question. Do not mention that they were provided.\n")
	for _, res := range results {
		content := strings.TrimSpace(res.Document.Content)
		if content == "" {
			continue
		}
		sb.WriteString("\n- ")
		sb.WriteString(content)
	}
	return sb.String()
}
