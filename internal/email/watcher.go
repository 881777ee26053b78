package email

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/emersion/go-imap/client"
	"github.com/sirupsen/logrus"

	"github.com/brandon/onebox/pkg/types"
)

// Servers may unilaterally drop an IDLE after 30 minutes, so the watcher
// re-enters the wait a minute early.
const idleRefreshInterval = 29 * time.Minute

// Watch keeps folder under a long-lived IDLE wait on this session, emitting
// newly arrived messages until ctx is cancelled or the session dies. An
// arrival signal triggers an incremental backfill scoped to the cursor, not
// the historical window; if that fetch fails the watcher still returns to the
// wait. Returns nil on cancellation or when the server lacks IDLE support,
// an error when the session is gone and the account must reconnect.
func (s *Session) Watch(ctx context.Context, folder string, cur *Cursor, normalizer *Normalizer, emit func(*types.Email)) error {
	log := s.logger.WithFields(logrus.Fields{
		"account": s.account.Name,
		"folder":  folder,
	})

	if !s.SupportsIdle() {
		log.Warn("Server does not support IDLE, folder will not receive live updates")
		return nil
	}

	mbox, err := s.SelectReadOnly(folder)
	if err != nil {
		return err
	}
	cur.Validate(mbox.UidValidity)
	lastCount := mbox.Messages

	updates := make(chan client.Update, 64)
	s.client.Updates = updates
	loggedOut := s.LoggedOut()

	// runIncremental fetches past the cursor, looping while arrival signals
	// absorbed during a fetch indicate further growth.
	runIncremental := func() {
		for {
			count, seen, err := s.backfillDraining(ctx, folder, cur, normalizer, emit, updates)
			if err != nil {
				log.WithError(err).Warn("Incremental backfill failed, returning to IDLE wait")
				return
			}
			if count > 0 {
				log.WithField("count", count).Info("Fetched new messages")
			}
			if ctx.Err() != nil || seen <= lastCount {
				return
			}
			lastCount = seen
		}
	}

	// A message landing between the historical backfill and this select
	// would otherwise sit unfetched until the next arrival signal.
	runIncremental()
	if ctx.Err() != nil {
		return nil
	}

	// At most one IDLE is ever outstanding: every path below stops the
	// current wait and drains doneIdle before starting another.
	startIdle := func() (chan struct{}, chan error) {
		stop := make(chan struct{})
		done := make(chan error, 1)
		go func() { done <- s.client.Idle(stop, nil) }()
		return stop, done
	}

	log.Info("Entering IDLE wait")
	stopIdle, doneIdle := startIdle()

	refresh := time.NewTimer(idleRefreshInterval)
	defer refresh.Stop()

	for {
		select {
		case <-ctx.Done():
			close(stopIdle)
			<-doneIdle
			return nil

		case <-loggedOut:
			return fmt.Errorf("connection closed")

		case err := <-doneIdle:
			// The wait ended without us stopping it: the session is gone.
			if err == nil {
				err = fmt.Errorf("idle wait terminated unexpectedly")
			}
			return fmt.Errorf("idle wait failed: %w", err)

		case update := <-updates:
			mu, ok := update.(*client.MailboxUpdate)
			if !ok || mu.Mailbox == nil || mu.Mailbox.Messages <= lastCount {
				if ok && mu.Mailbox != nil {
					lastCount = mu.Mailbox.Messages
				}
				continue
			}
			lastCount = mu.Mailbox.Messages

			close(stopIdle)
			<-doneIdle

			runIncremental()
			if ctx.Err() != nil {
				return nil
			}

			stopIdle, doneIdle = startIdle()
			resetTimer(refresh, idleRefreshInterval)

		case <-refresh.C:
			close(stopIdle)
			<-doneIdle
			log.Debug("Refreshing IDLE wait")
			stopIdle, doneIdle = startIdle()
			refresh.Reset(idleRefreshInterval)
		}
	}
}

// backfillDraining runs one incremental backfill while keeping updates
// drained, so the connection reader never blocks on a full channel during the
// fetch. Returns the highest message count reported by updates absorbed along
// the way; a value above the caller's last count means more mail arrived
// while fetching.
func (s *Session) backfillDraining(ctx context.Context, folder string, cur *Cursor, normalizer *Normalizer, emit func(*types.Email), updates <-chan client.Update) (int, uint32, error) {
	done := make(chan struct{})
	var seen uint32
	var wg sync.WaitGroup

	record := func(u client.Update) {
		if mu, ok := u.(*client.MailboxUpdate); ok && mu.Mailbox != nil && mu.Mailbox.Messages > seen {
			seen = mu.Mailbox.Messages
		}
	}

	wg.Add(1)
	go func() {
		defer wg.Done()
		for {
			select {
			case u := <-updates:
				record(u)
			case <-done:
				for {
					select {
					case u := <-updates:
						record(u)
					default:
						return
					}
				}
			}
		}
	}()

	count, err := s.Backfill(ctx, folder, cur, normalizer, emit)
	close(done)
	wg.Wait()
	return count, seen, err
}

func resetTimer(t *time.Timer, d time.Duration) {
	if !t.Stop() {
		select {
		case <-t.C:
		default:
		}
	}
	t.Reset(d)
}
