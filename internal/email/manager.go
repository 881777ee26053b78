package email

import (
	"context"
	"sync"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/brandon/onebox/internal/config"
	"github.com/brandon/onebox/internal/metrics"
	"github.com/brandon/onebox/pkg/types"
)

const (
	// reconnectBaseDelay is the first retry delay after a connection loss;
	// subsequent retries back off exponentially up to reconnectMaxDelay.
	// The engine retries indefinitely: no retry cap, no circuit breaker.
	reconnectBaseDelay = 10 * time.Second
	reconnectMaxDelay  = 5 * time.Minute
)

// Engine runs one independent sync worker per configured account. Workers
// share nothing but the outbound event stream; each owns its sessions
// exclusively. Every message any worker normalizes is emitted on the single
// ordered stream returned by Events.
type Engine struct {
	cfg        *config.Config
	logger     *logrus.Logger
	normalizer *Normalizer
	events     chan *types.Email
}

// NewEngine creates a new sync engine
func NewEngine(cfg *config.Config, logger *logrus.Logger) *Engine {
	return &Engine{
		cfg:        cfg,
		logger:     logger,
		normalizer: NewNormalizer(logger),
		events:     make(chan *types.Email, cfg.PipelineBuffer),
	}
}

// Events returns the stream of normalized messages from all accounts. The
// channel is closed after Run returns.
func (e *Engine) Events() <-chan *types.Email {
	return e.events
}

// Run starts all account workers and blocks until ctx is cancelled and every
// worker has shut down.
func (e *Engine) Run(ctx context.Context) {
	var wg sync.WaitGroup
	for i := range e.cfg.Accounts {
		acc := &e.cfg.Accounts[i]
		wg.Add(1)
		go func() {
			defer wg.Done()
			e.runAccount(ctx, acc)
		}()
	}
	wg.Wait()
	close(e.events)
}

// runAccount is the per-account reconnect loop. A lost session is never
// resurrected: each pass dials fresh sessions, rediscovers the folder
// hierarchy and backfills from the account's historical window again.
func (e *Engine) runAccount(ctx context.Context, acc *config.AccountConfig) {
	log := e.logger.WithField("account", acc.Name)
	delay := reconnectBaseDelay

	for {
		connected, err := e.syncAccount(ctx, acc)
		if ctx.Err() != nil {
			return
		}

		if connected {
			delay = reconnectBaseDelay
		}
		if err != nil {
			log.WithError(err).WithField("retry_in", delay.String()).
				Warn("Account sync interrupted, scheduling reconnect")
		}

		metrics.AccountReconnects.WithLabelValues(acc.Name).Inc()

		select {
		case <-ctx.Done():
			return
		case <-time.After(delay):
		}

		delay *= 2
		if delay > reconnectMaxDelay {
			delay = reconnectMaxDelay
		}
	}
}

// syncAccount performs one connected pass: discover folders, backfill each
// serially on the primary session, then watch every folder live on its own
// session. Returns whether a session was established at all, so the caller
// can reset its backoff.
func (e *Engine) syncAccount(ctx context.Context, acc *config.AccountConfig) (bool, error) {
	log := e.logger.WithField("account", acc.Name)
	since := time.Now().AddDate(0, 0, -acc.LookbackDays)
	emit := func(msg *types.Email) {
		select {
		case e.events <- msg:
			metrics.MessagesSynced.WithLabelValues(acc.Name).Inc()
		case <-ctx.Done():
		}
	}

	primary, err := Dial(acc, e.logger)
	if err != nil {
		return false, err
	}

	metrics.AccountConnected.WithLabelValues(acc.Name).Set(1)
	defer metrics.AccountConnected.WithLabelValues(acc.Name).Set(0)

	folders, err := primary.ListFolders()
	if err != nil {
		primary.Close() //nolint:errcheck
		return true, err
	}
	metrics.FoldersDiscovered.WithLabelValues(acc.Name).Set(float64(len(folders)))
	log.WithField("folders", len(folders)).Info("Discovered folder hierarchy")

	// Backfill serially: the session is a serialized resource, one command
	// in flight at a time.
	cursors := make(map[string]*Cursor, len(folders))
	for _, folder := range folders {
		if ctx.Err() != nil {
			primary.Close() //nolint:errcheck
			return true, nil
		}

		cur := NewCursor(since)
		cursors[folder.Path] = cur

		count, err := primary.Backfill(ctx, folder.Path, cur, e.normalizer, emit)
		if err != nil {
			log.WithError(err).WithField("folder", folder.Path).
				Warn("Backfill failed, continuing with remaining folders")
			continue
		}
		log.WithFields(logrus.Fields{
			"folder": folder.Path,
			"count":  count,
		}).Info("Backfill complete")
	}

	// The primary session's job is done; watchers get their own sessions
	// since an IDLE wait pins a session to one selected folder.
	primary.Close() //nolint:errcheck

	return true, e.watchFolders(ctx, acc, folders, cursors, emit)
}

// watchFolders runs one live watcher per folder, each on a dedicated session.
// The first watcher to lose its session cancels the rest; the caller then
// reconnects and starts over from discovery.
func (e *Engine) watchFolders(ctx context.Context, acc *config.AccountConfig, folders []types.Folder, cursors map[string]*Cursor, emit func(*types.Email)) error {
	wctx, cancel := context.WithCancel(ctx)
	defer cancel()

	var wg sync.WaitGroup
	errCh := make(chan error, len(folders))

	for _, folder := range folders {
		cur := cursors[folder.Path]
		if cur == nil {
			continue
		}

		session, err := Dial(acc, e.logger)
		if err != nil {
			cancel()
			wg.Wait()
			return err
		}

		wg.Add(1)
		go func(folder string, cur *Cursor, session *Session) {
			defer wg.Done()
			defer session.Close() //nolint:errcheck

			if err := session.Watch(wctx, folder, cur, e.normalizer, emit); err != nil {
				if wctx.Err() == nil {
					errCh <- err
				}
				cancel()
			}
		}(folder.Path, cur, session)
	}

	done := make(chan struct{})
	go func() {
		wg.Wait()
		close(done)
	}()

	select {
	case <-ctx.Done():
		cancel()
		<-done
		return nil
	case err := <-errCh:
		cancel()
		<-done
		return err
	case <-done:
		// Every watcher exited cleanly (e.g. no IDLE support anywhere).
		// There is no polling fallback; hold until shutdown.
		select {
		case err := <-errCh:
			return err
		default:
		}
		<-ctx.Done()
		return nil
	}
}
