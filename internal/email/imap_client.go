package email

import (
	"crypto/tls"
	"fmt"
	"sync"

	"github.com/emersion/go-imap"
	"github.com/emersion/go-imap/client"
	"github.com/sirupsen/logrus"

	"github.com/brandon/onebox/internal/config"
)

// Session wraps one live IMAP connection for an account. A session serializes
// all protocol commands: exactly one may be in flight at a time. Sessions are
// created by Dial, destroyed by Close and never reused after a connection
// loss; the account worker dials a replacement instead.
type Session struct {
	account *config.AccountConfig
	client  *client.Client
	logger  *logrus.Logger

	// mu guards the single-command-in-flight invariant.
	mu sync.Mutex
}

// Dial establishes a connection to the account's IMAP server and logs in.
// With IMAPTLS set the connection uses implicit TLS; otherwise it dials in
// plaintext and upgrades via STARTTLS when the server offers it.
func Dial(acc *config.AccountConfig, logger *logrus.Logger) (*Session, error) {
	tlsConfig := &tls.Config{
		ServerName: acc.IMAPHost,
		MinVersion: tls.VersionTLS12,
	}

	var cl *client.Client
	var err error
	if acc.IMAPTLS {
		cl, err = client.DialTLS(acc.Addr(), tlsConfig)
	} else {
		cl, err = client.Dial(acc.Addr())
		if err == nil {
			if ok, _ := cl.SupportStartTLS(); ok {
				err = cl.StartTLS(tlsConfig)
			}
		}
	}
	if err != nil {
		return nil, fmt.Errorf("failed to connect to IMAP server: %w", err)
	}

	if err := cl.Login(acc.IMAPUsername, acc.IMAPPassword); err != nil {
		cl.Logout() //nolint:errcheck
		return nil, fmt.Errorf("failed to login to IMAP server: %w", err)
	}

	logger.WithField("account", acc.Name).Info("Connected to IMAP server")

	return &Session{
		account: acc,
		client:  cl,
		logger:  logger,
	}, nil
}

// Close logs out and tears down the connection.
func (s *Session) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.client == nil {
		return nil
	}
	err := s.client.Logout()
	s.client = nil
	return err
}

// LoggedOut returns a channel closed when the connection is gone, whether by
// Close or by the server dropping us.
func (s *Session) LoggedOut() <-chan struct{} {
	return s.client.LoggedOut()
}

// SelectReadOnly opens a folder for reading without altering server-side
// message state.
func (s *Session) SelectReadOnly(folder string) (*imap.MailboxStatus, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	mbox, err := s.client.Select(folder, true)
	if err != nil {
		return nil, fmt.Errorf("failed to select folder %s: %w", folder, err)
	}
	return mbox, nil
}

// SupportsIdle reports whether the server advertises the IDLE capability.
func (s *Session) SupportsIdle() bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	ok, err := s.client.Support("IDLE")
	if err != nil {
		s.logger.WithError(err).WithField("account", s.account.Name).
			Warn("Failed to query server capabilities")
		return false
	}
	return ok
}

// uidSearch runs a UID SEARCH against the currently selected folder.
func (s *Session) uidSearch(criteria *imap.SearchCriteria) ([]uint32, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	uids, err := s.client.UidSearch(criteria)
	if err != nil {
		return nil, fmt.Errorf("failed to search folder: %w", err)
	}
	return uids, nil
}

// uidFetch streams the messages named by seqset through fn. The fetch runs in
// a goroutine feeding a channel; fn is invoked on the caller's goroutine.
func (s *Session) uidFetch(seqset *imap.SeqSet, items []imap.FetchItem, fn func(*imap.Message)) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	messages := make(chan *imap.Message, 10)
	done := make(chan error, 1)

	go func() {
		done <- s.client.UidFetch(seqset, items, messages)
	}()

	for msg := range messages {
		fn(msg)
	}

	if err := <-done; err != nil {
		return fmt.Errorf("failed to fetch messages: %w", err)
	}
	return nil
}
