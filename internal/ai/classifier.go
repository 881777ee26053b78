package ai

import (
	"context"
	"fmt"
	"strings"
	"unicode/utf8"

	"github.com/brandon/onebox/pkg/types"
)

const (
	classifyMaxTokens   = 10
	classifyTemperature = 0.3
	replyMaxTokens      = 300
	replyTemperature    = 0.7
	replyBodyLimit      = 1000

	// apologyReply is returned whenever reply generation fails internally.
	apologyReply = "Sorry, I am unable to suggest a reply right now. Please try again later."
)

const classifyPromptTemplate = `You are an AI assistant that categorizes emails.
Based on the following email, categorize it into one of these categories:
- Interested: The sender is showing interest in a product or service
- Meeting Booked: The sender is confirming or scheduling a meeting
- Not Interested: The sender is explicitly not interested
- Spam: The email is unsolicited or spam
- Out of Office: The sender is out of office or unavailable

Email Subject: %s

Email Body:
%s

Category:`

// Classify assigns one of the six labels to an email based on its subject
// and (already truncated) body. It never fails the caller: any internal
// error degrades to Uncategorized.
func (c *Client) Classify(ctx context.Context, subject, body string) types.Category {
	prompt := fmt.Sprintf(classifyPromptTemplate, subject, body)

	response, err := c.chatCompletion(ctx, prompt, classifyMaxTokens, classifyTemperature)
	if err != nil {
		c.logger.WithError(err).Warn("Classification failed, defaulting to Uncategorized")
		return types.CategoryUncategorized
	}

	return matchCategory(response)
}

// matchCategory maps the model's free-text answer onto the closed label set.
// Two-word labels are checked before the bare "Interested" substring they
// contain; first match wins.
func matchCategory(response string) types.Category {
	for _, category := range []types.Category{
		types.CategoryMeetingBooked,
		types.CategoryNotInterested,
		types.CategoryOutOfOffice,
		types.CategorySpam,
		types.CategoryInterested,
	} {
		if strings.Contains(response, string(category)) {
			return category
		}
	}
	return types.CategoryUncategorized
}

const replyPromptTemplate = `You are an AI assistant helping to draft email replies.

PRODUCT INFORMATION:
%s

EMAIL FROM: %s
SUBJECT: %s

EMAIL CONTENT:
%s

Based on the email content and product information, write a concise and professional reply.
The reply should be personalized, address the specific questions or concerns in the email,
and include relevant information from the product details.`

// GenerateReply drafts a suggested reply for an email using the retrieved
// product context. Returns a fixed apology on internal error.
func (c *Client) GenerateReply(ctx context.Context, email *types.Email, contextText string) string {
	body := email.Body.Text
	if body == "" {
		body = email.Body.HTML
	}
	if len(body) > replyBodyLimit {
		limit := replyBodyLimit
		for limit > 0 && !utf8.RuneStart(body[limit]) {
			limit--
		}
		body = body[:limit]
	}

	prompt := fmt.Sprintf(replyPromptTemplate, contextText, email.Headers.From, email.Headers.Subject, body)

	reply, err := c.chatCompletion(ctx, prompt, replyMaxTokens, replyTemperature)
	if err != nil {
		c.logger.WithError(err).Warn("Reply generation failed")
		return apologyReply
	}
	return strings.TrimSpace(reply)
}
