package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
	_ "modernc.org/sqlite"

	"smartmail/internal/model"
	"smartmail/pkg/otel"
)

const sqliteSchema = `
CREATE TABLE IF NOT EXISTS emails (
    seq                 INTEGER PRIMARY KEY AUTOINCREMENT,
    id                  TEXT NOT NULL UNIQUE,
    provider            TEXT NOT NULL,
    provider_message_id TEXT NOT NULL,
    thread_id           TEXT NOT NULL DEFAULT '',
    mailbox             TEXT NOT NULL DEFAULT '',
    from_addr           TEXT NOT NULL DEFAULT '',
    to_addrs            TEXT NOT NULL DEFAULT '[]',
    cc_addrs            TEXT NOT NULL DEFAULT '[]',
    bcc_addrs           TEXT NOT NULL DEFAULT '[]',
    subject             TEXT NOT NULL DEFAULT '',
    snippet             TEXT NOT NULL DEFAULT '',
    body_plain          TEXT NOT NULL DEFAULT '',
    body_html           TEXT NOT NULL DEFAULT '',
    headers             TEXT NOT NULL DEFAULT '{}',
    labels              TEXT NOT NULL DEFAULT '[]',
    attachments         TEXT NOT NULL DEFAULT '[]',
    date                TEXT,
    classifications     TEXT NOT NULL DEFAULT '{}',
    metadata            TEXT NOT NULL DEFAULT '{}',
    processed           INTEGER NOT NULL DEFAULT 0,
    fetched_at          TEXT NOT NULL,
    created_at          TEXT NOT NULL,
    UNIQUE (provider, provider_message_id)
);
CREATE INDEX IF NOT EXISTS emails_date_idx ON emails (date);
CREATE INDEX IF NOT EXISTS emails_from_idx ON emails (from_addr);

CREATE TABLE IF NOT EXISTS responses (
    seq             INTEGER PRIMARY KEY AUTOINCREMENT,
    id              TEXT NOT NULL UNIQUE,
    email_id        TEXT NOT NULL,
    thread_id       TEXT NOT NULL DEFAULT '',
    to_addr         TEXT NOT NULL DEFAULT '',
    from_addr       TEXT NOT NULL DEFAULT '',
    subject         TEXT NOT NULL DEFAULT '',
    body            TEXT NOT NULL DEFAULT '',
    status          TEXT NOT NULL,
    edited_by_human INTEGER NOT NULL DEFAULT 0,
    created_at      TEXT NOT NULL,
    sent_at         TEXT,
    gmail_response  TEXT NOT NULL DEFAULT '{}'
);
CREATE INDEX IF NOT EXISTS responses_email_idx ON responses (email_id);

CREATE TABLE IF NOT EXISTS attachment_blobs (
    id           TEXT PRIMARY KEY,
    filename     TEXT NOT NULL,
    content_type TEXT NOT NULL DEFAULT '',
    size         INTEGER NOT NULL,
    data         BLOB NOT NULL,
    created_at   TEXT NOT NULL
);
`

const sqliteEmailColumns = `
    id, provider, provider_message_id, thread_id, mailbox, from_addr,
    to_addrs, cc_addrs, bcc_addrs, subject, snippet, body_plain, body_html,
    headers, labels, attachments, date, classifications, metadata,
    processed, fetched_at, created_at`

const sqliteChanged = `(emails.subject IS NOT excluded.subject
        OR emails.snippet IS NOT excluded.snippet
        OR emails.body_plain IS NOT excluded.body_plain
        OR emails.body_html IS NOT excluded.body_html)`

const sqliteUpsertEmail = `
INSERT INTO emails (
    id, provider, provider_message_id, thread_id, mailbox, from_addr,
    to_addrs, cc_addrs, bcc_addrs, subject, snippet, body_plain, body_html,
    headers, labels, attachments, date, classifications, metadata,
    processed, fetched_at, created_at
) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
ON CONFLICT (provider, provider_message_id) DO UPDATE SET
    thread_id   = excluded.thread_id,
    mailbox     = excluded.mailbox,
    from_addr   = excluded.from_addr,
    to_addrs    = excluded.to_addrs,
    cc_addrs    = excluded.cc_addrs,
    bcc_addrs   = excluded.bcc_addrs,
    subject     = excluded.subject,
    snippet     = excluded.snippet,
    body_plain  = excluded.body_plain,
    body_html   = excluded.body_html,
    headers     = excluded.headers,
    labels      = excluded.labels,
    attachments = excluded.attachments,
    date        = excluded.date,
    fetched_at  = excluded.fetched_at,
    classifications = CASE WHEN ? AND ` + sqliteChanged + ` THEN '{}' ELSE emails.classifications END,
    processed       = CASE WHEN ? AND ` + sqliteChanged + ` THEN 0 ELSE emails.processed END
RETURNING id`

const sqliteClassified = `COALESCE(json_extract(classifications, '$.category'), '') <> ''`

// SQLiteStore implements EmailStore on a single SQLite file. Used for local runs and tests.
type SQLiteStore struct {
	db     *sql.DB
	policy ClassificationPolicy
	logger *zap.Logger
	now    func() time.Time
}

func NewSQLiteStore(ctx context.Context, path string, policy ClassificationPolicy, logger *zap.Logger) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open sqlite %s: %w", path, err)
	}
	// 单写者，避免 SQLITE_BUSY
	db.SetMaxOpenConns(1)

	for _, pragma := range []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA busy_timeout=5000",
		"PRAGMA foreign_keys=ON",
	} {
		if _, err := db.ExecContext(ctx, pragma); err != nil {
			db.Close()
			return nil, fmt.Errorf("%s: %w", pragma, err)
		}
	}
	if _, err := db.ExecContext(ctx, sqliteSchema); err != nil {
		db.Close()
		return nil, fmt.Errorf("migrate sqlite schema: %w", err)
	}

	logger.Info("SQLite store ready", zap.String("path", path), zap.String("classification_policy", string(policy)))
	return &SQLiteStore{db: db, policy: policy, logger: logger, now: time.Now}, nil
}

func (s *SQLiteStore) observe(ctx context.Context, op, table string, fn func(context.Context) error) error {
	return otel.Observe(ctx, "sqlite", op, table, fn)
}

func (s *SQLiteStore) UpsertMany(ctx context.Context, records []model.EmailRecord) (UpsertResult, error) {
	var res UpsertResult
	now := s.now().UTC()
	reset := s.policy == PolicyResetOnChange

	for _, rec := range records {
		if !hasKey(rec) {
			res.SkippedCount++
			continue
		}
		inserted, err := s.upsertOne(ctx, rec, now, reset)
		if err != nil {
			if ctx.Err() != nil {
				return res, ctx.Err()
			}
			res.FailedCount++
			s.logger.Warn("upsert email failed",
				zap.String("provider", rec.Provider),
				zap.String("provider_message_id", rec.ProviderMessageID),
				zap.Error(err),
			)
			continue
		}
		if inserted {
			res.UpsertedCount++
		} else {
			res.ModifiedCount++
		}
	}

	s.logger.Info("Bulk upsert complete",
		zap.Int("upserted", res.UpsertedCount),
		zap.Int("modified", res.ModifiedCount),
		zap.Int("skipped", res.SkippedCount),
		zap.Int("failed", res.FailedCount),
	)
	return res, nil
}

func (s *SQLiteStore) upsertOne(ctx context.Context, rec model.EmailRecord, now time.Time, reset bool) (bool, error) {
	cols, err := encodeEmailJSON(rec)
	if err != nil {
		return false, err
	}

	proposed := uuid.NewString()
	stamp := formatTime(now)
	var id string
	err = s.observe(ctx, "upsert", "emails", func(ctx context.Context) error {
		return s.db.QueryRowContext(ctx, sqliteUpsertEmail,
			proposed, rec.Provider, rec.ProviderMessageID, rec.ThreadID, rec.Mailbox, rec.From,
			string(cols.To), string(cols.Cc), string(cols.Bcc), rec.Subject, rec.Snippet, rec.BodyPlain, rec.BodyHTML,
			string(cols.Headers), string(cols.Labels), string(cols.Attachments), nullTime(rec.Date),
			string(cols.Classifications), string(cols.Metadata),
			rec.Processed, stamp, stamp, reset, reset,
		).Scan(&id)
	})
	if err != nil {
		return false, err
	}
	return id == proposed, nil
}

func (s *SQLiteStore) GetAll(ctx context.Context) ([]model.EmailRecord, error) {
	return s.queryEmails(ctx, "select_all", `SELECT`+sqliteEmailColumns+` FROM emails ORDER BY seq`)
}

func (s *SQLiteStore) GetUnclassified(ctx context.Context) ([]model.EmailRecord, error) {
	return s.queryEmails(ctx, "select_unclassified",
		`SELECT`+sqliteEmailColumns+` FROM emails WHERE NOT (`+sqliteClassified+`) ORDER BY seq`)
}

func (s *SQLiteStore) GetClassified(ctx context.Context) ([]model.EmailRecord, error) {
	return s.queryEmails(ctx, "select_classified",
		`SELECT`+sqliteEmailColumns+` FROM emails WHERE `+sqliteClassified+` ORDER BY seq`)
}

func (s *SQLiteStore) GetByID(ctx context.Context, id string) (*model.EmailRecord, error) {
	var rec *model.EmailRecord
	err := s.observe(ctx, "select_by_id", "emails", func(ctx context.Context) error {
		row := s.db.QueryRowContext(ctx, `SELECT`+sqliteEmailColumns+` FROM emails WHERE id = ?`, id)
		var err error
		rec, err = scanSQLiteEmail(row)
		return err
	})
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return rec, nil
}

func (s *SQLiteStore) queryEmails(ctx context.Context, op, query string) ([]model.EmailRecord, error) {
	out := []model.EmailRecord{}
	err := s.observe(ctx, op, "emails", func(ctx context.Context) error {
		rows, err := s.db.QueryContext(ctx, query)
		if err != nil {
			return err
		}
		defer rows.Close()

		for rows.Next() {
			rec, err := scanSQLiteEmail(rows)
			if err != nil {
				return err
			}
			out = append(out, *rec)
		}
		return rows.Err()
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanSQLiteEmail(row rowScanner) (*model.EmailRecord, error) {
	var (
		rec                                           model.EmailRecord
		to, cc, bcc, headers, labels, atts, cls, meta string
		date                                          sql.NullString
		fetchedAt, createdAt                          string
	)
	err := row.Scan(
		&rec.ID, &rec.Provider, &rec.ProviderMessageID, &rec.ThreadID, &rec.Mailbox, &rec.From,
		&to, &cc, &bcc, &rec.Subject, &rec.Snippet, &rec.BodyPlain, &rec.BodyHTML,
		&headers, &labels, &atts, &date, &cls, &meta,
		&rec.Processed, &fetchedAt, &createdAt,
	)
	if err != nil {
		return nil, err
	}

	if date.Valid {
		t, err := parseTime(date.String)
		if err != nil {
			return nil, fmt.Errorf("decode date of %s: %w", rec.ID, err)
		}
		rec.Date = &t
	}
	if rec.FetchedAt, err = parseTime(fetchedAt); err != nil {
		return nil, fmt.Errorf("decode fetched_at of %s: %w", rec.ID, err)
	}
	if rec.CreatedAt, err = parseTime(createdAt); err != nil {
		return nil, fmt.Errorf("decode created_at of %s: %w", rec.ID, err)
	}

	cols := emailJSON{
		To: []byte(to), Cc: []byte(cc), Bcc: []byte(bcc),
		Headers: []byte(headers), Labels: []byte(labels), Attachments: []byte(atts),
		Classifications: []byte(cls), Metadata: []byte(meta),
	}
	if err := decodeEmailJSON(&rec, cols); err != nil {
		return nil, err
	}
	return &rec, nil
}

func (s *SQLiteStore) UpdateClassification(ctx context.Context, provider, providerMessageID string, c model.Classification) error {
	data, err := encodeClassification(&c)
	if err != nil {
		return err
	}
	return s.observe(ctx, "update_classification", "emails", func(ctx context.Context) error {
		res, err := s.db.ExecContext(ctx,
			`UPDATE emails SET classifications = ?, processed = 1 WHERE provider = ? AND provider_message_id = ?`,
			string(data), provider, providerMessageID)
		if err != nil {
			return err
		}
		n, err := res.RowsAffected()
		if err != nil {
			return err
		}
		if n == 0 {
			return ErrNotFound
		}
		return nil
	})
}

func (s *SQLiteStore) AppendResponse(ctx context.Context, r *model.ResponseRecord) error {
	prepareResponse(r, s.now().UTC())
	receipt, err := encodeReceipt(r.GmailResponse)
	if err != nil {
		return err
	}
	var sentAt sql.NullString
	if !r.SentAt.IsZero() {
		sentAt = sql.NullString{String: formatTime(r.SentAt), Valid: true}
	}
	return s.observe(ctx, "insert", "responses", func(ctx context.Context) error {
		_, err := s.db.ExecContext(ctx, `
            INSERT INTO responses (id, email_id, thread_id, to_addr, from_addr, subject, body,
                status, edited_by_human, created_at, sent_at, gmail_response)
            VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
			r.ID, r.EmailID, r.ThreadID, r.To, r.From, r.Subject, r.Body,
			string(r.Status), r.EditedByHuman, formatTime(r.CreatedAt), sentAt, string(receipt),
		)
		return err
	})
}

func (s *SQLiteStore) ListResponses(ctx context.Context) ([]model.ResponseRecord, error) {
	out := []model.ResponseRecord{}
	err := s.observe(ctx, "select_all", "responses", func(ctx context.Context) error {
		rows, err := s.db.QueryContext(ctx, `
            SELECT id, email_id, thread_id, to_addr, from_addr, subject, body,
                status, edited_by_human, created_at, sent_at, gmail_response
            FROM responses ORDER BY seq`)
		if err != nil {
			return err
		}
		defer rows.Close()

		for rows.Next() {
			var (
				r                 model.ResponseRecord
				status, createdAt string
				sentAt            sql.NullString
				receipt           string
			)
			if err := rows.Scan(&r.ID, &r.EmailID, &r.ThreadID, &r.To, &r.From, &r.Subject, &r.Body,
				&status, &r.EditedByHuman, &createdAt, &sentAt, &receipt); err != nil {
				return err
			}
			r.Status = model.ResponseStatus(status)
			if r.CreatedAt, err = parseTime(createdAt); err != nil {
				return fmt.Errorf("decode created_at of %s: %w", r.ID, err)
			}
			if sentAt.Valid {
				if r.SentAt, err = parseTime(sentAt.String); err != nil {
					return fmt.Errorf("decode sent_at of %s: %w", r.ID, err)
				}
			}
			if err := decodeReceipt([]byte(receipt), &r.GmailResponse); err != nil {
				return fmt.Errorf("decode gmail_response of %s: %w", r.ID, err)
			}
			out = append(out, r)
		}
		return rows.Err()
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

func (s *SQLiteStore) SaveAttachment(ctx context.Context, filename, contentType string, data []byte) (string, error) {
	id := uuid.NewString()
	err := s.observe(ctx, "insert", "attachment_blobs", func(ctx context.Context) error {
		_, err := s.db.ExecContext(ctx, `
            INSERT INTO attachment_blobs (id, filename, content_type, size, data, created_at)
            VALUES (?, ?, ?, ?, ?, ?)`,
			id, filename, contentType, len(data), data, formatTime(s.now().UTC()))
		return err
	})
	if err != nil {
		return "", err
	}
	return id, nil
}

func (s *SQLiteStore) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

func formatTime(t time.Time) string {
	return t.UTC().Format(time.RFC3339Nano)
}

func parseTime(s string) (time.Time, error) {
	return time.Parse(time.RFC3339Nano, s)
}

func nullTime(t *time.Time) sql.NullString {
	if t == nil {
		return sql.NullString{}
	}
	return sql.NullString{String: formatTime(*t), Valid: true}
}
