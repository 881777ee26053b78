package search

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/sirupsen/logrus"
	_ "modernc.org/sqlite"

	"github.com/brandon/onebox/pkg/types"
)

// SQLiteStore implements Store on a local SQLite database with an FTS5
// full-text index, for deployments without an external search engine.
type SQLiteStore struct {
	db     *sqlx.DB
	logger *logrus.Logger
}

// NewSQLiteStore opens (or creates) the database at dbPath and initializes
// the schema.
func NewSQLiteStore(dbPath string, logger *logrus.Logger) (*SQLiteStore, error) {
	if dir := filepath.Dir(dbPath); dir != "." {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return nil, fmt.Errorf("failed to create database directory: %w", err)
		}
	}

	db, err := sqlx.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	if _, err := db.Exec(Schema); err != nil {
		db.Close() //nolint:errcheck
		return nil, fmt.Errorf("failed to initialize schema: %w", err)
	}

	logger.WithField("path", dbPath).Info("SQLite search store initialized")
	return &SQLiteStore{db: db, logger: logger}, nil
}

// Close closes the database connection.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

// emailRow is the flat row representation of the Email entity.
type emailRow struct {
	ID           string         `db:"id"`
	AccountID    string         `db:"account_id"`
	Folder       string         `db:"folder"`
	FromAddr     sql.NullString `db:"from_addr"`
	ToAddr       sql.NullString `db:"to_addr"`
	CcAddr       sql.NullString `db:"cc_addr"`
	BccAddr      sql.NullString `db:"bcc_addr"`
	Subject      sql.NullString `db:"subject"`
	MessageID    sql.NullString `db:"message_id"`
	HeaderDate   sql.NullTime   `db:"header_date"`
	BodyText     sql.NullString `db:"body_text"`
	BodyHTML     sql.NullString `db:"body_html"`
	Attachments  sql.NullString `db:"attachments"`
	Category     string         `db:"category"`
	IsRead       bool           `db:"is_read"`
	IsFlagged    bool           `db:"is_flagged"`
	ReceivedDate time.Time      `db:"received_date"`
	SyncedAt     time.Time      `db:"synced_at"`
}

func (r *emailRow) toEmail() (*types.Email, error) {
	email := &types.Email{
		ID:        r.ID,
		AccountID: r.AccountID,
		Folder:    r.Folder,
		Headers: types.EmailHeader{
			From:      r.FromAddr.String,
			To:        r.ToAddr.String,
			Cc:        r.CcAddr.String,
			Bcc:       r.BccAddr.String,
			Subject:   r.Subject.String,
			MessageID: r.MessageID.String,
		},
		Body: types.EmailBody{
			Text: r.BodyText.String,
			HTML: r.BodyHTML.String,
		},
		Category:     types.Category(r.Category),
		IsRead:       r.IsRead,
		IsFlagged:    r.IsFlagged,
		ReceivedDate: r.ReceivedDate,
		SyncedAt:     r.SyncedAt,
	}
	if r.HeaderDate.Valid {
		email.Headers.Date = r.HeaderDate.Time
	}
	if r.Attachments.Valid && r.Attachments.String != "" {
		if err := json.Unmarshal([]byte(r.Attachments.String), &email.Attachments); err != nil {
			return nil, fmt.Errorf("failed to unmarshal attachments: %w", err)
		}
	}
	return email, nil
}

// IndexEmail upserts an email keyed by its id. The category of an existing
// row is preserved; UpdateCategory is the only writer for that column after
// initial insert.
func (s *SQLiteStore) IndexEmail(ctx context.Context, email *types.Email) error {
	attachments, err := json.Marshal(email.Attachments)
	if err != nil {
		return fmt.Errorf("failed to marshal attachments: %w", err)
	}

	query := `
		INSERT INTO emails (
			id, account_id, folder, from_addr, to_addr, cc_addr, bcc_addr,
			subject, message_id, header_date, body_text, body_html,
			attachments, category, is_read, is_flagged, received_date, synced_at
		)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			from_addr = excluded.from_addr,
			to_addr = excluded.to_addr,
			cc_addr = excluded.cc_addr,
			bcc_addr = excluded.bcc_addr,
			subject = excluded.subject,
			message_id = excluded.message_id,
			header_date = excluded.header_date,
			body_text = excluded.body_text,
			body_html = excluded.body_html,
			attachments = excluded.attachments,
			is_read = excluded.is_read,
			is_flagged = excluded.is_flagged,
			received_date = excluded.received_date,
			synced_at = excluded.synced_at
	`
	var headerDate interface{}
	if !email.Headers.Date.IsZero() {
		headerDate = email.Headers.Date
	}

	_, err = s.db.ExecContext(ctx, query,
		email.ID, email.AccountID, email.Folder,
		email.Headers.From, email.Headers.To, email.Headers.Cc, email.Headers.Bcc,
		email.Headers.Subject, email.Headers.MessageID, headerDate,
		email.Body.Text, email.Body.HTML, string(attachments),
		string(email.Category), email.IsRead, email.IsFlagged,
		email.ReceivedDate, email.SyncedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to index email: %w", err)
	}
	return nil
}

// UpdateCategory persists a new label for an existing email.
func (s *SQLiteStore) UpdateCategory(ctx context.Context, id string, category types.Category) error {
	result, err := s.db.ExecContext(ctx,
		"UPDATE emails SET category = ? WHERE id = ?", string(category), id)
	if err != nil {
		return fmt.Errorf("failed to update category: %w", err)
	}
	if n, err := result.RowsAffected(); err == nil && n == 0 {
		return ErrNotFound
	}
	return nil
}

// GetByID returns one email or ErrNotFound.
func (s *SQLiteStore) GetByID(ctx context.Context, id string) (*types.Email, error) {
	var row emailRow
	err := s.db.GetContext(ctx, &row, "SELECT * FROM emails WHERE id = ?", id)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get email: %w", err)
	}
	return row.toEmail()
}

// Search filters emails, newest first, with FTS on the free-text query.
func (s *SQLiteStore) Search(ctx context.Context, filters types.SearchFilters) (*types.SearchResult, error) {
	normalizePage(&filters)

	var conditions []string
	var args []interface{}

	if filters.AccountID != "" {
		conditions = append(conditions, "account_id = ?")
		args = append(args, filters.AccountID)
	}
	if filters.Folder != "" {
		conditions = append(conditions, "folder = ?")
		args = append(args, filters.Folder)
	}
	if filters.Category != "" {
		conditions = append(conditions, "category = ?")
		args = append(args, filters.Category)
	}
	if filters.From != "" {
		conditions = append(conditions, "from_addr LIKE ?")
		args = append(args, "%"+filters.From+"%")
	}
	if filters.To != "" {
		conditions = append(conditions, "to_addr LIKE ?")
		args = append(args, "%"+filters.To+"%")
	}
	if filters.StartDate != nil {
		conditions = append(conditions, "received_date >= ?")
		args = append(args, *filters.StartDate)
	}
	if filters.EndDate != nil {
		conditions = append(conditions, "received_date <= ?")
		args = append(args, *filters.EndDate)
	}
	if filters.Query != "" {
		conditions = append(conditions, "rowid IN (SELECT rowid FROM emails_fts WHERE emails_fts MATCH ?)")
		// Escape quotes for FTS5
		query := strings.ReplaceAll(filters.Query, `"`, `""`)
		args = append(args, `"`+query+`"`)
	}

	whereClause := ""
	if len(conditions) > 0 {
		whereClause = "WHERE " + strings.Join(conditions, " AND ")
	}

	var total int
	countQuery := fmt.Sprintf("SELECT COUNT(*) FROM emails %s", whereClause)
	if err := s.db.GetContext(ctx, &total, countQuery, args...); err != nil {
		return nil, fmt.Errorf("failed to count search results: %w", err)
	}

	query := fmt.Sprintf(`
		SELECT * FROM emails
		%s
		ORDER BY received_date DESC
		LIMIT ? OFFSET ?
	`, whereClause)
	args = append(args, filters.Size, (filters.Page-1)*filters.Size)

	var rows []emailRow
	if err := s.db.SelectContext(ctx, &rows, query, args...); err != nil {
		return nil, fmt.Errorf("failed to search emails: %w", err)
	}

	result := &types.SearchResult{
		Total:  total,
		Emails: make([]*types.Email, 0, len(rows)),
	}
	for i := range rows {
		email, err := rows[i].toEmail()
		if err != nil {
			return nil, err
		}
		result.Emails = append(result.Emails, email)
	}
	return result, nil
}

// CountsByCategory returns per-label counts with every label present.
func (s *SQLiteStore) CountsByCategory(ctx context.Context) (map[types.Category]int, error) {
	rows, err := s.db.QueryxContext(ctx,
		"SELECT category, COUNT(*) AS count FROM emails GROUP BY category")
	if err != nil {
		return nil, fmt.Errorf("failed to count categories: %w", err)
	}
	defer rows.Close()

	counts := zeroFilled()
	for rows.Next() {
		var category string
		var count int
		if err := rows.Scan(&category, &count); err != nil {
			return nil, fmt.Errorf("failed to scan category count: %w", err)
		}
		if types.ValidCategory(category) {
			counts[types.Category(category)] = count
		}
	}
	return counts, rows.Err()
}

// HealthCheck verifies the database is reachable.
func (s *SQLiteStore) HealthCheck(ctx context.Context) error {
	return s.db.PingContext(ctx)
}
