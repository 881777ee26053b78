package ai

import (
	"context"
	"math"
	"sync"

	"github.com/sirupsen/logrus"
)

// defaultProductInfo seeds the context store so reply suggestions have
// something to ground on before any custom content is added.
const defaultProductInfo = `Onebox aggregates all of a team's mailboxes into one searchable,
AI-triaged inbox. Every account stays continuously synchronized, new mail is
classified the moment it arrives, and promising leads trigger instant alerts.

Key features:
- Multi-account IMAP synchronization with real-time updates
- Automatic categorization of every incoming email
- Full-text search across all accounts and folders
- Slack and webhook alerts for interested leads

Meeting booking information:
If a lead wants to learn more, share the demo booking link: https://calendly.com/onebox/demo

Response guidelines:
- Always respond within 24 hours
- Be professional and courteous
- Address all questions directly
- Provide clear next steps`

// ProductInfo is one piece of reference content with its embedding.
type ProductInfo struct {
	ID      string `json:"id"`
	Content string `json:"content"`

	embedding []float64
}

// ContextStore holds product/reference content in memory and retrieves the
// entry most relevant to a query by embedding similarity. Safe for
// concurrent use.
type ContextStore struct {
	client  *Client
	logger  *logrus.Logger
	mu      sync.RWMutex
	entries []ProductInfo
}

// NewContextStore creates a context store backed by client for embeddings.
func NewContextStore(client *Client, logger *logrus.Logger) *ContextStore {
	return &ContextStore{client: client, logger: logger}
}

// Seed loads the default product content.
func (s *ContextStore) Seed(ctx context.Context) {
	if err := s.Add(ctx, "default-product-info", defaultProductInfo); err != nil {
		s.logger.WithError(err).Warn("Failed to seed context store")
	}
}

// Add stores a new entry. An embedding failure is logged and the entry is
// kept without one; it then only serves as the positional fallback.
func (s *ContextStore) Add(ctx context.Context, id, content string) error {
	entry := ProductInfo{ID: id, Content: content}

	embedding, err := s.client.Embed(ctx, content)
	if err != nil {
		s.logger.WithError(err).WithField("id", id).Warn("Failed to embed context entry")
	} else {
		entry.embedding = embedding
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	for i := range s.entries {
		if s.entries[i].ID == id {
			s.entries[i] = entry
			return nil
		}
	}
	s.entries = append(s.entries, entry)
	return nil
}

// Retrieve returns the stored content most similar to query, falling back to
// the first entry when embeddings are unavailable, or "" when the store is
// empty.
func (s *ContextStore) Retrieve(ctx context.Context, query string) string {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if len(s.entries) == 0 {
		return ""
	}

	queryEmbedding, err := s.client.Embed(ctx, query)
	if err != nil {
		s.logger.WithError(err).Debug("Failed to embed query, using first context entry")
		return s.entries[0].Content
	}

	best := 0
	bestScore := math.Inf(-1)
	for i := range s.entries {
		if len(s.entries[i].embedding) == 0 {
			continue
		}
		if score := cosineSimilarity(queryEmbedding, s.entries[i].embedding); score > bestScore {
			bestScore = score
			best = i
		}
	}
	return s.entries[best].Content
}

// List returns all stored entries without embeddings.
func (s *ContextStore) List() []ProductInfo {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]ProductInfo, len(s.entries))
	for i, e := range s.entries {
		out[i] = ProductInfo{ID: e.ID, Content: e.Content}
	}
	return out
}

func cosineSimilarity(a, b []float64) float64 {
	if len(a) != len(b) || len(a) == 0 {
		return -1
	}
	var dot, normA, normB float64
	for i := range a {
		dot += a[i] * b[i]
		normA += a[i] * a[i]
		normB += b[i] * b[i]
	}
	if normA == 0 || normB == 0 {
		return -1
	}
	return dot / (math.Sqrt(normA) * math.Sqrt(normB))
}
