package email

import (
	"bytes"
	"fmt"
	"net/mail"
	"time"

	"github.com/emersion/go-imap"
	"github.com/google/uuid"
	"github.com/jaytaylor/html2text"
	"github.com/jhillyerd/enmime"
	"github.com/sirupsen/logrus"

	"github.com/brandon/onebox/pkg/types"
)

// messageNamespace seeds deterministic message ids. Normalizing the same
// physical message again (after a reconnect re-fetches an already-seen range)
// regenerates the same id, so downstream storage upserts are idempotent.
var messageNamespace = uuid.MustParse("4f1c2b6e-8d07-45a9-9c3e-64dd0a7b91f2")

// MessageID derives the canonical id for a message from its stable
// server-assigned coordinates.
func MessageID(accountID, folder string, uidValidity, uid uint32) string {
	key := fmt.Sprintf("%s\x00%s\x00%d\x00%d", accountID, folder, uidValidity, uid)
	return uuid.NewSHA1(messageNamespace, []byte(key)).String()
}

// Normalizer converts raw protocol messages into the canonical Email entity.
type Normalizer struct {
	logger *logrus.Logger
}

// NewNormalizer creates a new normalizer
func NewNormalizer(logger *logrus.Logger) *Normalizer {
	return &Normalizer{logger: logger}
}

// RawMessage carries everything the normalizer needs about one fetched
// message.
type RawMessage struct {
	Body         []byte
	Flags        []string
	InternalDate time.Time
	UIDValidity  uint32
	UID          uint32
}

// Normalize parses a raw message into an Email. The id is assigned here and
// never changes; category starts Uncategorized. The received date comes from
// the Date header, falling back to the server's internal date, then to now.
func (n *Normalizer) Normalize(raw *RawMessage, accountID, folder string) (*types.Email, error) {
	env, err := enmime.ReadEnvelope(bytes.NewReader(raw.Body))
	if err != nil {
		return nil, fmt.Errorf("failed to parse message: %w", err)
	}

	now := time.Now()

	email := &types.Email{
		ID:        MessageID(accountID, folder, raw.UIDValidity, raw.UID),
		AccountID: accountID,
		Folder:    folder,
		Headers: types.EmailHeader{
			From:      env.GetHeader("From"),
			To:        env.GetHeader("To"),
			Cc:        env.GetHeader("Cc"),
			Bcc:       env.GetHeader("Bcc"),
			Subject:   env.GetHeader("Subject"),
			MessageID: env.GetHeader("Message-Id"),
		},
		Body: types.EmailBody{
			Text: env.Text,
			HTML: env.HTML,
		},
		Category:     types.CategoryUncategorized,
		IsRead:       hasFlag(raw.Flags, imap.SeenFlag),
		IsFlagged:    hasFlag(raw.Flags, imap.FlaggedFlag),
		ReceivedDate: now,
		SyncedAt:     now,
	}

	if date, err := mail.ParseDate(env.GetHeader("Date")); err == nil {
		email.Headers.Date = date
		email.ReceivedDate = date
	} else if !raw.InternalDate.IsZero() {
		email.ReceivedDate = raw.InternalDate
	}

	// HTML-only messages still get a text rendition so search and
	// classification have something to work with.
	if email.Body.Text == "" && email.Body.HTML != "" {
		if text, err := html2text.FromString(email.Body.HTML, html2text.Options{TextOnly: true}); err == nil {
			email.Body.Text = text
		} else {
			n.logger.WithError(err).Debug("Failed to render HTML body as text")
		}
	}

	for _, part := range env.Attachments {
		email.Attachments = append(email.Attachments, types.Attachment{
			Filename:    part.FileName,
			ContentType: part.ContentType,
			Size:        len(part.Content),
		})
	}

	return email, nil
}

func hasFlag(flags []string, flag string) bool {
	for _, f := range flags {
		if f == flag {
			return true
		}
	}
	return false
}
