// Package pipeline consumes the normalized message stream produced by the
// sync engine and applies indexing, classification and conditional
// notification with per-message failure isolation.
package pipeline

import (
	"context"
	"unicode/utf8"

	"github.com/sirupsen/logrus"

	"github.com/brandon/onebox/internal/metrics"
	"github.com/brandon/onebox/pkg/types"
)

// classifyBodyLimit caps how much body text is sent to the classifier.
const classifyBodyLimit = 1000

// Indexer persists emails for search.
type Indexer interface {
	IndexEmail(ctx context.Context, email *types.Email) error
	UpdateCategory(ctx context.Context, id string, category types.Category) error
}

// Classifier assigns one of the six labels. Implementations never fail the
// caller; they return Uncategorized on internal error.
type Classifier interface {
	Classify(ctx context.Context, subject, body string) types.Category
}

// Notifier delivers alerts for interesting emails. Both methods report
// whether delivery happened; an unconfigured destination is a no-op false.
type Notifier interface {
	NotifySlack(ctx context.Context, email *types.Email) bool
	NotifyWebhook(ctx context.Context, email *types.Email) bool
}

// Pipeline processes each incoming email through four sequential steps:
// index, classify, persist the label, and notify when the label is
// Interested. A step failure is logged and does not roll back prior steps,
// abort later steps, or affect other messages.
type Pipeline struct {
	indexer    Indexer
	classifier Classifier
	notifier   Notifier
	logger     *logrus.Logger
}

// New creates a new ingestion pipeline
func New(indexer Indexer, classifier Classifier, notifier Notifier, logger *logrus.Logger) *Pipeline {
	return &Pipeline{
		indexer:    indexer,
		classifier: classifier,
		notifier:   notifier,
		logger:     logger,
	}
}

// Run drains events until the channel is closed or ctx is cancelled.
// Messages are picked up in the order the sync engine emitted them.
func (p *Pipeline) Run(ctx context.Context, events <-chan *types.Email) {
	for {
		select {
		case <-ctx.Done():
			return
		case email, ok := <-events:
			if !ok {
				return
			}
			p.Process(ctx, email)
		}
	}
}

// Process runs one email through the pipeline steps in order.
func (p *Pipeline) Process(ctx context.Context, email *types.Email) {
	log := p.logger.WithFields(logrus.Fields{
		"email_id": email.ID,
		"account":  email.AccountID,
		"folder":   email.Folder,
	})
	log.WithField("subject", email.Headers.Subject).Debug("Processing email")

	// Step 1: persist the message in its initial, uncategorized state.
	if err := p.indexer.IndexEmail(ctx, email); err != nil {
		metrics.PipelineErrors.WithLabelValues("index").Inc()
		log.WithError(err).Error("Failed to index email")
	}

	// Step 2: classify on subject plus a bounded body prefix. Classification
	// failure degrades to Uncategorized inside the classifier.
	body := email.Body.Text
	if body == "" {
		body = email.Body.HTML
	}
	category := p.classifier.Classify(ctx, email.Headers.Subject, truncate(body, classifyBodyLimit))
	email.Category = category

	// Step 3: persist the label.
	if err := p.indexer.UpdateCategory(ctx, email.ID, category); err != nil {
		metrics.PipelineErrors.WithLabelValues("update_category").Inc()
		log.WithError(err).Error("Failed to update email category")
	}

	// Step 4: both delivery paths are attempted even if one fails.
	if category == types.CategoryInterested {
		if p.notifier.NotifySlack(ctx, email) {
			metrics.NotificationsSent.WithLabelValues("slack").Inc()
		}
		if p.notifier.NotifyWebhook(ctx, email) {
			metrics.NotificationsSent.WithLabelValues("webhook").Inc()
		}
	}
}

// truncate cuts s to at most limit bytes without splitting a UTF-8 rune.
func truncate(s string, limit int) string {
	if len(s) <= limit {
		return s
	}
	for limit > 0 && !utf8.RuneStart(s[limit]) {
		limit--
	}
	return s[:limit]
}
