package email

import "time"

// Cursor records the synchronized point for one (account, folder) pair. Since
// bounds the historical backfill window; LastUID marks the newest message
// already fetched so an arrival signal only re-fetches what came after it.
// Cursors live for the duration of one connected pass and are rebuilt from
// the configured window after a reconnect.
type Cursor struct {
	Since       time.Time
	UIDValidity uint32
	LastUID     uint32
}

// NewCursor creates a cursor opening a fresh backfill window starting at
// since.
func NewCursor(since time.Time) *Cursor {
	return &Cursor{Since: since}
}

// Advance moves the cursor past uid. Cursors never move backwards.
func (c *Cursor) Advance(uid uint32) {
	if uid > c.LastUID {
		c.LastUID = uid
	}
}

// Validate reconciles the cursor with the folder's current UIDVALIDITY. When
// the server has invalidated its UIDs the cursor is lost and the folder
// starts fresh from the historical window.
func (c *Cursor) Validate(uidValidity uint32) bool {
	if c.UIDValidity == uidValidity {
		return true
	}
	first := c.UIDValidity == 0
	c.UIDValidity = uidValidity
	c.LastUID = 0
	return first
}

// Positioned reports whether the cursor has seen at least one message, i.e.
// whether an incremental fetch can resume from LastUID instead of the full
// window.
func (c *Cursor) Positioned() bool {
	return c.LastUID > 0
}
