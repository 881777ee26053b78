package email

import (
	"fmt"
	"sort"
	"strings"

	"github.com/emersion/go-imap"

	"github.com/brandon/onebox/pkg/types"
)

// ListFolders enumerates the account's full folder hierarchy and flattens it
// depth-first. The result is a fresh snapshot; nothing is cached across
// sessions. Two calls against unchanged server state return the same paths in
// the same order.
func (s *Session) ListFolders() ([]types.Folder, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	mailboxes := make(chan *imap.MailboxInfo, 10)
	done := make(chan error, 1)

	go func() {
		done <- s.client.List("", "*", mailboxes)
	}()

	var infos []*imap.MailboxInfo
	for m := range mailboxes {
		infos = append(infos, m)
	}

	if err := <-done; err != nil {
		return nil, fmt.Errorf("failed to list folders: %w", err)
	}

	return flattenFolders(infos), nil
}

// folderNode is one level of the rebuilt hierarchy.
type folderNode struct {
	folder   types.Folder
	children map[string]*folderNode
}

// flattenFolders rebuilds the hierarchy from the server's flat LIST response
// using each entry's declared delimiter, then walks it depth-first with
// siblings in lexicographic order. A malformed entry is skipped without
// affecting its siblings.
func flattenFolders(infos []*imap.MailboxInfo) []types.Folder {
	root := &folderNode{children: make(map[string]*folderNode)}

	for _, info := range infos {
		if info == nil || info.Name == "" {
			continue
		}
		segments := []string{info.Name}
		if info.Delimiter != "" {
			segments = strings.Split(info.Name, info.Delimiter)
		}

		node := root
		path := ""
		for _, seg := range segments {
			if seg == "" {
				continue
			}
			if path == "" {
				path = seg
			} else {
				path = path + info.Delimiter + seg
			}
			child, ok := node.children[seg]
			if !ok {
				child = &folderNode{
					folder:   types.Folder{Path: path, Delimiter: info.Delimiter},
					children: make(map[string]*folderNode),
				}
				node.children[seg] = child
			}
			node = child
		}
	}

	var out []types.Folder
	var walk func(n *folderNode)
	walk = func(n *folderNode) {
		names := make([]string, 0, len(n.children))
		for name := range n.children {
			names = append(names, name)
		}
		sort.Strings(names)
		for _, name := range names {
			child := n.children[name]
			out = append(out, child.folder)
			walk(child)
		}
	}
	walk(root)

	return out
}
