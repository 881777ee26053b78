package email

import (
	"context"
	"net"
	"strings"
	"testing"
	"time"

	"github.com/emersion/go-imap/backend"
	"github.com/emersion/go-imap/backend/memory"
	"github.com/emersion/go-imap/server"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/brandon/onebox/internal/config"
	"github.com/brandon/onebox/pkg/types"
)

// newTestServer starts an in-process IMAP server on a loopback listener and
// returns an account pointing at it plus its INBOX for seeding messages. The
// memory backend arrives with one message already in INBOX.
func newTestServer(t *testing.T) (*config.AccountConfig, backend.Mailbox, *server.Server) {
	t.Helper()

	be := memory.New()
	l, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)

	srv := server.New(be)
	srv.AllowInsecureAuth = true
	go srv.Serve(l) //nolint:errcheck
	t.Cleanup(func() { srv.Close() }) //nolint:errcheck

	user, err := be.Login(nil, "username", "password")
	require.NoError(t, err)
	mbox, err := user.GetMailbox("INBOX")
	require.NoError(t, err)

	acc := &config.AccountConfig{
		Name:         "test-account",
		IMAPHost:     "127.0.0.1",
		IMAPPort:     l.Addr().(*net.TCPAddr).Port,
		IMAPUsername: "username",
		IMAPPassword: "password",
		IMAPTLS:      false,
		LookbackDays: 30,
	}
	return acc, mbox, srv
}

func appendMessage(t *testing.T, mbox backend.Mailbox, subject string) {
	t.Helper()
	raw := "From: lead@example.com\r\n" +
		"To: sales@onebox.dev\r\n" +
		"Subject: " + subject + "\r\n" +
		"Date: " + time.Now().UTC().Format(time.RFC1123Z) + "\r\n" +
		"\r\n" +
		"Interested in a demo.\r\n"
	require.NoError(t, mbox.CreateMessage([]string{}, time.Now(), strings.NewReader(raw)))
}

func quietLogger() *logrus.Logger {
	logger := logrus.New()
	logger.SetLevel(logrus.PanicLevel)
	return logger
}

func dialTest(t *testing.T, acc *config.AccountConfig) *Session {
	t.Helper()
	session, err := Dial(acc, quietLogger())
	require.NoError(t, err)
	t.Cleanup(func() { session.Close() }) //nolint:errcheck
	return session
}

func TestBackfillEmitsWindowMessages(t *testing.T) {
	acc, mbox, _ := newTestServer(t)
	for _, subject := range []string{"First", "Second", "Third"} {
		appendMessage(t, mbox, subject)
	}

	session := dialTest(t, acc)
	cur := NewCursor(time.Now().AddDate(0, 0, -acc.LookbackDays))

	var emitted []*types.Email
	count, err := session.Backfill(context.Background(), "INBOX", cur, testNormalizer(), func(e *types.Email) {
		emitted = append(emitted, e)
	})
	require.NoError(t, err)

	// The seeded message plus the three appended ones, each exactly once.
	assert.Equal(t, 4, count)
	require.Len(t, emitted, 4)

	ids := make(map[string]bool, len(emitted))
	for _, e := range emitted {
		assert.False(t, ids[e.ID], "id %s emitted twice", e.ID)
		ids[e.ID] = true
		assert.Equal(t, "test-account", e.AccountID)
		assert.Equal(t, "INBOX", e.Folder)
		assert.Equal(t, types.CategoryUncategorized, e.Category)
		assert.NotEmpty(t, e.Headers.Subject)
	}
	assert.True(t, cur.Positioned())
}

func TestBackfillIncrementalScope(t *testing.T) {
	acc, mbox, _ := newTestServer(t)
	session := dialTest(t, acc)
	cur := NewCursor(time.Now().AddDate(0, 0, -1))

	count, err := session.Backfill(context.Background(), "INBOX", cur, testNormalizer(), func(*types.Email) {})
	require.NoError(t, err)
	assert.Equal(t, 1, count)
	positioned := cur.LastUID

	// Same cursor, nothing new on the server: nothing is re-fetched.
	count, err = session.Backfill(context.Background(), "INBOX", cur, testNormalizer(), func(*types.Email) {})
	require.NoError(t, err)
	assert.Equal(t, 0, count)

	appendMessage(t, mbox, "Fresh arrival")

	var emitted []*types.Email
	count, err = session.Backfill(context.Background(), "INBOX", cur, testNormalizer(), func(e *types.Email) {
		emitted = append(emitted, e)
	})
	require.NoError(t, err)

	// Only the message past the cursor, not the historical window again.
	assert.Equal(t, 1, count)
	require.Len(t, emitted, 1)
	assert.Equal(t, "Fresh arrival", emitted[0].Headers.Subject)
	assert.Greater(t, cur.LastUID, positioned)
}

func TestBackfillEmptyWindow(t *testing.T) {
	acc, _, _ := newTestServer(t)
	session := dialTest(t, acc)

	// Window opening in the future: no message qualifies, no error.
	cur := NewCursor(time.Now().AddDate(0, 0, 2))
	count, err := session.Backfill(context.Background(), "INBOX", cur, testNormalizer(), func(*types.Email) {
		t.Fatal("no message should be emitted")
	})
	require.NoError(t, err)
	assert.Equal(t, 0, count)
	assert.False(t, cur.Positioned())
}
