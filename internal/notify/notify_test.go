package notify

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"
	"unicode/utf8"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/brandon/onebox/pkg/types"
)

func testLogger() *logrus.Logger {
	logger := logrus.New()
	logger.SetLevel(logrus.PanicLevel)
	return logger
}

func interestedEmail() *types.Email {
	return &types.Email{
		ID:           "email-1",
		AccountID:    "acct-1",
		Folder:       "INBOX",
		Headers:      types.EmailHeader{From: "lead@example.com", Subject: "Demo request"},
		Body:         types.EmailBody{Text: "I would like to see a demo."},
		Category:     types.CategoryInterested,
		ReceivedDate: time.Date(2025, 1, 6, 10, 30, 0, 0, time.UTC),
	}
}

func TestNotifySlackUnconfigured(t *testing.T) {
	svc := NewService("", "", testLogger())
	assert.False(t, svc.NotifySlack(context.Background(), interestedEmail()))
	assert.False(t, svc.NotifyWebhook(context.Background(), interestedEmail()))
}

func TestNotifySlackPayload(t *testing.T) {
	var got map[string]interface{}
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "application/json", r.Header.Get("Content-Type"))
		require.NoError(t, json.NewDecoder(r.Body).Decode(&got))
		w.WriteHeader(http.StatusOK)
	}))
	defer server.Close()

	svc := NewService(server.URL, "", testLogger())
	assert.True(t, svc.NotifySlack(context.Background(), interestedEmail()))

	blocks, ok := got["blocks"].([]interface{})
	require.True(t, ok)
	require.NotEmpty(t, blocks)

	raw, err := json.Marshal(got)
	require.NoError(t, err)
	assert.Contains(t, string(raw), "Interested Lead Detected")
	assert.Contains(t, string(raw), "lead@example.com")
	assert.Contains(t, string(raw), "Demo request")
}

func TestNotifyWebhookPayload(t *testing.T) {
	var got map[string]interface{}
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.NoError(t, json.NewDecoder(r.Body).Decode(&got))
		w.WriteHeader(http.StatusAccepted)
	}))
	defer server.Close()

	svc := NewService("", server.URL, testLogger())
	assert.True(t, svc.NotifyWebhook(context.Background(), interestedEmail()))

	assert.Equal(t, "email-1", got["id"])
	assert.Equal(t, "lead@example.com", got["from"])
	assert.Equal(t, "Interested", got["category"])

	account, ok := got["account_info"].(map[string]interface{})
	require.True(t, ok)
	assert.Equal(t, "acct-1", account["account_id"])
	assert.Equal(t, "INBOX", account["folder"])
}

func TestNotifyNon2xxFails(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "nope", http.StatusForbidden)
	}))
	defer server.Close()

	svc := NewService(server.URL, server.URL, testLogger())
	assert.False(t, svc.NotifySlack(context.Background(), interestedEmail()))
	assert.False(t, svc.NotifyWebhook(context.Background(), interestedEmail()))
}

func TestPreviewTruncation(t *testing.T) {
	long := strings.Repeat("x", previewLimit+50)
	assert.Equal(t, previewLimit+3, len(preview(long)))
	assert.True(t, strings.HasSuffix(preview(long), "..."))

	short := "hello"
	assert.Equal(t, short, preview(short))
}

func TestPreviewKeepsRunesWhole(t *testing.T) {
	// Two-byte runes never land exactly on the byte limit.
	long := strings.Repeat("é", previewLimit)
	got := preview(long)

	assert.True(t, utf8.ValidString(got))
	assert.True(t, strings.HasSuffix(got, "..."))
	assert.LessOrEqual(t, len(got), previewLimit+3)
}
