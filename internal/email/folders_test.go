package email

import (
	"testing"

	"github.com/emersion/go-imap"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func info(name, delimiter string) *imap.MailboxInfo {
	return &imap.MailboxInfo{Name: name, Delimiter: delimiter}
}

func TestFlattenFoldersDepthFirst(t *testing.T) {
	infos := []*imap.MailboxInfo{
		info("Work/Projects", "/"),
		info("INBOX", "/"),
		info("Work", "/"),
		info("Archive", "/"),
		info("Work/Projects/2024", "/"),
	}

	folders := flattenFolders(infos)

	got := make([]string, len(folders))
	for i, f := range folders {
		got[i] = f.Path
	}

	// Depth-first with lexicographic siblings: a parent always directly
	// precedes its subtree.
	assert.Equal(t, []string{
		"Archive",
		"INBOX",
		"Work",
		"Work/Projects",
		"Work/Projects/2024",
	}, got)
}

func TestFlattenFoldersDeterministic(t *testing.T) {
	infos := []*imap.MailboxInfo{
		info("INBOX", "."),
		info("INBOX.Sent", "."),
		info("INBOX.Drafts", "."),
		info("Spam", "."),
	}

	first := flattenFolders(infos)
	second := flattenFolders(infos)

	require.Equal(t, first, second)
}

func TestFlattenFoldersImplicitParent(t *testing.T) {
	// A child listed without its parent still yields the parent path.
	infos := []*imap.MailboxInfo{
		info("Lists/golang", "/"),
	}

	folders := flattenFolders(infos)
	require.Len(t, folders, 2)
	assert.Equal(t, "Lists", folders[0].Path)
	assert.Equal(t, "Lists/golang", folders[1].Path)
}

func TestFlattenFoldersSkipsMalformedEntries(t *testing.T) {
	infos := []*imap.MailboxInfo{
		nil,
		info("", "/"),
		info("INBOX", "/"),
	}

	folders := flattenFolders(infos)
	require.Len(t, folders, 1)
	assert.Equal(t, "INBOX", folders[0].Path)
}

func TestFlattenFoldersNoDelimiter(t *testing.T) {
	infos := []*imap.MailboxInfo{
		info("INBOX", ""),
	}

	folders := flattenFolders(infos)
	require.Len(t, folders, 1)
	assert.Equal(t, "INBOX", folders[0].Path)
}
