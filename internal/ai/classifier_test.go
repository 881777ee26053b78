package ai

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/brandon/onebox/pkg/types"
)

func testClient(t *testing.T, handler http.HandlerFunc) *Client {
	t.Helper()
	server := httptest.NewServer(handler)
	t.Cleanup(server.Close)

	logger := logrus.New()
	logger.SetLevel(logrus.PanicLevel)

	c := NewClient("test-key", "gpt-4o-mini", logger)
	c.baseURL = server.URL
	return c
}

func chatResponseWith(t *testing.T, w http.ResponseWriter, content string) {
	t.Helper()
	resp := map[string]interface{}{
		"choices": []map[string]interface{}{
			{"message": map[string]string{"content": content}},
		},
	}
	require.NoError(t, json.NewEncoder(w).Encode(resp))
}

func TestClassifyMapsModelAnswer(t *testing.T) {
	c := testClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/chat/completions", r.URL.Path)
		assert.Equal(t, "Bearer test-key", r.Header.Get("Authorization"))

		var req chatRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		assert.Equal(t, classifyMaxTokens, req.MaxTokens)
		require.Len(t, req.Messages, 1)
		assert.Contains(t, req.Messages[0].Content, "Meeting next Tuesday")

		chatResponseWith(t, w, "Meeting Booked")
	})

	got := c.Classify(context.Background(), "Meeting next Tuesday", "Confirmed for 3pm.")
	assert.Equal(t, types.CategoryMeetingBooked, got)
}

func TestClassifyAPIErrorDegradesToUncategorized(t *testing.T) {
	c := testClient(t, func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, `{"error": "rate limited"}`, http.StatusTooManyRequests)
	})

	got := c.Classify(context.Background(), "Hello", "World")
	assert.Equal(t, types.CategoryUncategorized, got)
}

func TestClassifyWithoutAPIKey(t *testing.T) {
	logger := logrus.New()
	logger.SetLevel(logrus.PanicLevel)
	c := NewClient("", "gpt-4o-mini", logger)

	got := c.Classify(context.Background(), "Hello", "World")
	assert.Equal(t, types.CategoryUncategorized, got)
}

func TestMatchCategory(t *testing.T) {
	cases := []struct {
		response string
		want     types.Category
	}{
		{"Interested", types.CategoryInterested},
		{"Category: Interested.", types.CategoryInterested},
		// "Not Interested" contains "Interested"; the longer label wins.
		{"Not Interested", types.CategoryNotInterested},
		{"The sender is Not Interested in this", types.CategoryNotInterested},
		{"Meeting Booked", types.CategoryMeetingBooked},
		{"Out of Office", types.CategoryOutOfOffice},
		{"Spam", types.CategorySpam},
		{"no idea", types.CategoryUncategorized},
		{"", types.CategoryUncategorized},
	}
	for _, tc := range cases {
		assert.Equal(t, tc.want, matchCategory(tc.response), "response %q", tc.response)
	}
}

func TestGenerateReply(t *testing.T) {
	c := testClient(t, func(w http.ResponseWriter, r *http.Request) {
		var req chatRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		assert.Equal(t, replyMaxTokens, req.MaxTokens)
		assert.Contains(t, req.Messages[0].Content, "Onebox handles multi-account")
		assert.Contains(t, req.Messages[0].Content, "lead@example.com")

		chatResponseWith(t, w, "  Hi, thanks for reaching out!  ")
	})

	email := &types.Email{
		Headers: types.EmailHeader{From: "lead@example.com", Subject: "Pricing?"},
		Body:    types.EmailBody{Text: "How much does it cost?"},
	}
	reply := c.GenerateReply(context.Background(), email, "Onebox handles multi-account sync.")
	assert.Equal(t, "Hi, thanks for reaching out!", reply)
}

func TestGenerateReplyFallsBackToApology(t *testing.T) {
	c := testClient(t, func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "boom", http.StatusInternalServerError)
	})

	email := &types.Email{Headers: types.EmailHeader{Subject: "Hi"}}
	reply := c.GenerateReply(context.Background(), email, "")
	assert.Equal(t, apologyReply, reply)
}
