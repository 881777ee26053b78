package email

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestCursorAdvance(t *testing.T) {
	cur := NewCursor(time.Now().AddDate(0, 0, -30))

	assert.False(t, cur.Positioned())

	cur.Advance(10)
	assert.True(t, cur.Positioned())
	assert.Equal(t, uint32(10), cur.LastUID)

	// Never moves backwards.
	cur.Advance(5)
	assert.Equal(t, uint32(10), cur.LastUID)

	cur.Advance(11)
	assert.Equal(t, uint32(11), cur.LastUID)
}

func TestCursorValidate(t *testing.T) {
	cur := NewCursor(time.Now().AddDate(0, 0, -30))

	// First select binds the cursor to the folder's UIDVALIDITY.
	assert.True(t, cur.Validate(100))
	cur.Advance(50)

	// Same validity, nothing happens.
	assert.True(t, cur.Validate(100))
	assert.Equal(t, uint32(50), cur.LastUID)

	// Validity change is cursor loss: position resets to the window.
	assert.False(t, cur.Validate(101))
	assert.False(t, cur.Positioned())
	assert.Equal(t, uint32(101), cur.UIDValidity)
}
