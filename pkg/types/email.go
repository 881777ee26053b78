package types

import "time"

// Category is the classification label assigned to an email.
type Category string

const (
	CategoryInterested    Category = "Interested"
	CategoryMeetingBooked Category = "Meeting Booked"
	CategoryNotInterested Category = "Not Interested"
	CategorySpam          Category = "Spam"
	CategoryOutOfOffice   Category = "Out of Office"
	CategoryUncategorized Category = "Uncategorized"
)

// Categories lists every valid label in display order.
func Categories() []Category {
	return []Category{
		CategoryInterested,
		CategoryMeetingBooked,
		CategoryNotInterested,
		CategorySpam,
		CategoryOutOfOffice,
		CategoryUncategorized,
	}
}

// ValidCategory reports whether s is one of the known labels.
func ValidCategory(s string) bool {
	for _, c := range Categories() {
		if string(c) == s {
			return true
		}
	}
	return false
}

// EmailHeader holds the parsed header fields of an email.
type EmailHeader struct {
	From      string    `json:"from,omitempty"`
	To        string    `json:"to,omitempty"`
	Cc        string    `json:"cc,omitempty"`
	Bcc       string    `json:"bcc,omitempty"`
	Subject   string    `json:"subject,omitempty"`
	Date      time.Time `json:"date,omitempty"`
	MessageID string    `json:"message_id,omitempty"`
}

// EmailBody holds the message body in the renditions the server provided.
type EmailBody struct {
	Text string `json:"text,omitempty"`
	HTML string `json:"html,omitempty"`
}

// Attachment describes a single attachment. Content may be nil when only
// the descriptor was retained.
type Attachment struct {
	Filename    string `json:"filename"`
	ContentType string `json:"content_type"`
	Size        int    `json:"size"`
	Content     []byte `json:"-"`
}

// Email is the canonical message entity produced by normalization. ID is
// assigned once and never changes; Category is the only field mutated after
// creation.
type Email struct {
	ID           string       `json:"id"`
	AccountID    string       `json:"account_id"`
	Folder       string       `json:"folder"`
	Headers      EmailHeader  `json:"headers"`
	Body         EmailBody    `json:"body"`
	Attachments  []Attachment `json:"attachments,omitempty"`
	Category     Category     `json:"category"`
	IsRead       bool         `json:"is_read"`
	IsFlagged    bool         `json:"is_flagged"`
	ReceivedDate time.Time    `json:"received_date"`
	SyncedAt     time.Time    `json:"synced_at"`
}

// Folder represents a mailbox in an account's hierarchy.
type Folder struct {
	Path      string `json:"path"`
	Delimiter string `json:"delimiter"`
}

// SearchFilters narrows a search over stored emails.
type SearchFilters struct {
	Query     string     `json:"query,omitempty"`
	AccountID string     `json:"account_id,omitempty"`
	Folder    string     `json:"folder,omitempty"`
	Category  string     `json:"category,omitempty"`
	From      string     `json:"from,omitempty"`
	To        string     `json:"to,omitempty"`
	StartDate *time.Time `json:"start_date,omitempty"`
	EndDate   *time.Time `json:"end_date,omitempty"`
	Page      int        `json:"page,omitempty"`
	Size      int        `json:"size,omitempty"`
}

// SearchResult is one page of search hits.
type SearchResult struct {
	Total  int      `json:"total"`
	Emails []*Email `json:"emails"`
}
