package email

import (
	"context"
	"io"

	"github.com/emersion/go-imap"
	"github.com/sirupsen/logrus"

	"github.com/brandon/onebox/pkg/types"
)

// fetchBatchSize bounds how many messages one UID FETCH covers.
const fetchBatchSize = 50

// Backfill fetches every message in folder received on or after the cursor's
// window start, or past its last seen UID when the cursor is already
// positioned, normalizes each one and emits it as soon as it is parsed.
// Normalization failures are logged and skipped; a fetch-level failure aborts
// this folder only. Restartable: re-invoking with the same cursor fetches
// nothing new. Returns the number of messages emitted.
func (s *Session) Backfill(ctx context.Context, folder string, cur *Cursor, normalizer *Normalizer, emit func(*types.Email)) (int, error) {
	mbox, err := s.SelectReadOnly(folder)
	if err != nil {
		return 0, err
	}

	if !cur.Validate(mbox.UidValidity) {
		s.logger.WithFields(logrus.Fields{
			"account": s.account.Name,
			"folder":  folder,
		}).Warn("UIDVALIDITY changed, restarting folder from historical window")
	}

	criteria := imap.NewSearchCriteria()
	if cur.Positioned() {
		seq := new(imap.SeqSet)
		seq.AddRange(cur.LastUID+1, 0)
		criteria.Uid = seq
	} else {
		criteria.Since = cur.Since
	}

	uids, err := s.uidSearch(criteria)
	if err != nil {
		return 0, err
	}
	if len(uids) == 0 {
		return 0, nil
	}

	section := &imap.BodySectionName{Peek: true}
	items := []imap.FetchItem{
		imap.FetchFlags,
		imap.FetchInternalDate,
		imap.FetchUid,
		section.FetchItem(),
	}

	count := 0
	for start := 0; start < len(uids); start += fetchBatchSize {
		if err := ctx.Err(); err != nil {
			return count, err
		}

		end := start + fetchBatchSize
		if end > len(uids) {
			end = len(uids)
		}

		seqset := new(imap.SeqSet)
		seqset.AddNum(uids[start:end]...)

		err := s.uidFetch(seqset, items, func(msg *imap.Message) {
			defer cur.Advance(msg.Uid)

			fields := logrus.Fields{
				"account": s.account.Name,
				"folder":  folder,
				"uid":     msg.Uid,
			}

			literal := msg.GetBody(section)
			if literal == nil {
				s.logger.WithFields(fields).Warn("Message has no body section, skipping")
				return
			}

			body, err := io.ReadAll(literal)
			if err != nil {
				s.logger.WithError(err).WithFields(fields).Warn("Failed to read message body, skipping")
				return
			}

			raw := &RawMessage{
				Body:         body,
				Flags:        msg.Flags,
				InternalDate: msg.InternalDate,
				UIDValidity:  cur.UIDValidity,
				UID:          msg.Uid,
			}

			email, err := normalizer.Normalize(raw, s.account.Name, folder)
			if err != nil {
				s.logger.WithError(err).WithFields(fields).Warn("Failed to parse message, skipping")
				return
			}

			emit(email)
			count++
		})
		if err != nil {
			return count, err
		}
	}

	return count, nil
}
