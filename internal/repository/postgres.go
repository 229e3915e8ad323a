package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"go.uber.org/zap"

	"smartmail/internal/model"
	"smartmail/pkg/otel"
)

const pgSchema = `
CREATE TABLE IF NOT EXISTS emails (
    seq                 BIGSERIAL,
    id                  UUID PRIMARY KEY,
    provider            TEXT NOT NULL,
    provider_message_id TEXT NOT NULL,
    thread_id           TEXT NOT NULL DEFAULT '',
    mailbox             TEXT NOT NULL DEFAULT '',
    from_addr           TEXT NOT NULL DEFAULT '',
    to_addrs            JSONB NOT NULL DEFAULT '[]',
    cc_addrs            JSONB NOT NULL DEFAULT '[]',
    bcc_addrs           JSONB NOT NULL DEFAULT '[]',
    subject             TEXT NOT NULL DEFAULT '',
    snippet             TEXT NOT NULL DEFAULT '',
    body_plain          TEXT NOT NULL DEFAULT '',
    body_html           TEXT NOT NULL DEFAULT '',
    headers             JSONB NOT NULL DEFAULT '{}',
    labels              JSONB NOT NULL DEFAULT '[]',
    attachments         JSONB NOT NULL DEFAULT '[]',
    date                TIMESTAMPTZ,
    classifications     JSONB NOT NULL DEFAULT '{}',
    metadata            JSONB NOT NULL DEFAULT '{}',
    processed           BOOLEAN NOT NULL DEFAULT FALSE,
    fetched_at          TIMESTAMPTZ NOT NULL,
    created_at          TIMESTAMPTZ NOT NULL,
    CONSTRAINT provider_msgid_unique UNIQUE (provider, provider_message_id)
);
CREATE INDEX IF NOT EXISTS emails_seq_idx ON emails (seq);
CREATE INDEX IF NOT EXISTS emails_date_idx ON emails (date);
CREATE INDEX IF NOT EXISTS emails_from_idx ON emails (from_addr);
CREATE INDEX IF NOT EXISTS emails_labels_idx ON emails USING GIN (labels);

CREATE TABLE IF NOT EXISTS responses (
    seq             BIGSERIAL,
    id              UUID PRIMARY KEY,
    email_id        TEXT NOT NULL,
    thread_id       TEXT NOT NULL DEFAULT '',
    to_addr         TEXT NOT NULL DEFAULT '',
    from_addr       TEXT NOT NULL DEFAULT '',
    subject         TEXT NOT NULL DEFAULT '',
    body            TEXT NOT NULL DEFAULT '',
    status          TEXT NOT NULL,
    edited_by_human BOOLEAN NOT NULL DEFAULT FALSE,
    created_at      TIMESTAMPTZ NOT NULL,
    sent_at         TIMESTAMPTZ,
    gmail_response  JSONB NOT NULL DEFAULT '{}'
);
CREATE INDEX IF NOT EXISTS responses_seq_idx ON responses (seq);
CREATE INDEX IF NOT EXISTS responses_email_idx ON responses (email_id);

CREATE TABLE IF NOT EXISTS attachment_blobs (
    id           UUID PRIMARY KEY,
    filename     TEXT NOT NULL,
    content_type TEXT NOT NULL DEFAULT '',
    size         BIGINT NOT NULL,
    data         BYTEA NOT NULL,
    created_at   TIMESTAMPTZ NOT NULL
);
`

const pgEmailColumns = `
    id::text, provider, provider_message_id, thread_id, mailbox, from_addr,
    to_addrs, cc_addrs, bcc_addrs, subject, snippet, body_plain, body_html,
    headers, labels, attachments, date, classifications, metadata,
    processed, fetched_at, created_at`

// $22 toggles reset_on_change. Metadata is never touched on conflict.
const pgUpsertEmail = `
INSERT INTO emails (
    id, provider, provider_message_id, thread_id, mailbox, from_addr,
    to_addrs, cc_addrs, bcc_addrs, subject, snippet, body_plain, body_html,
    headers, labels, attachments, date, classifications, metadata,
    processed, fetched_at, created_at
) VALUES (
    $1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13,
    $14, $15, $16, $17, $18, $19, $20, $21, $21
)
ON CONFLICT (provider, provider_message_id) DO UPDATE SET
    thread_id   = EXCLUDED.thread_id,
    mailbox     = EXCLUDED.mailbox,
    from_addr   = EXCLUDED.from_addr,
    to_addrs    = EXCLUDED.to_addrs,
    cc_addrs    = EXCLUDED.cc_addrs,
    bcc_addrs   = EXCLUDED.bcc_addrs,
    subject     = EXCLUDED.subject,
    snippet     = EXCLUDED.snippet,
    body_plain  = EXCLUDED.body_plain,
    body_html   = EXCLUDED.body_html,
    headers     = EXCLUDED.headers,
    labels      = EXCLUDED.labels,
    attachments = EXCLUDED.attachments,
    date        = EXCLUDED.date,
    fetched_at  = EXCLUDED.fetched_at,
    classifications = CASE
        WHEN $22::boolean AND (emails.subject, emails.snippet, emails.body_plain, emails.body_html)
            IS DISTINCT FROM (EXCLUDED.subject, EXCLUDED.snippet, EXCLUDED.body_plain, EXCLUDED.body_html)
        THEN '{}'::jsonb ELSE emails.classifications END,
    processed = CASE
        WHEN $22::boolean AND (emails.subject, emails.snippet, emails.body_plain, emails.body_html)
            IS DISTINCT FROM (EXCLUDED.subject, EXCLUDED.snippet, EXCLUDED.body_plain, EXCLUDED.body_html)
        THEN FALSE ELSE emails.processed END
RETURNING id::text`

// PostgresStore implements EmailStore on PostgreSQL with JSONB document columns.
type PostgresStore struct {
	db     *pgxpool.Pool
	policy ClassificationPolicy
	logger *zap.Logger
	now    func() time.Time
}

// NewPostgresStore ensures the schema and indexes exist.
func NewPostgresStore(ctx context.Context, db *pgxpool.Pool, policy ClassificationPolicy, logger *zap.Logger) (*PostgresStore, error) {
	if _, err := db.Exec(ctx, pgSchema); err != nil {
		return nil, fmt.Errorf("migrate postgres schema: %w", err)
	}
	logger.Info("PostgreSQL schema and indexes ensured", zap.String("classification_policy", string(policy)))
	return &PostgresStore{db: db, policy: policy, logger: logger, now: time.Now}, nil
}

func (s *PostgresStore) observe(ctx context.Context, op, table string, fn func(context.Context) error) error {
	return otel.Observe(ctx, "postgresql", op, table, fn)
}

// UpsertMany applies one autocommitted upsert per record so a bad record cannot abort the rest.
func (s *PostgresStore) UpsertMany(ctx context.Context, records []model.EmailRecord) (UpsertResult, error) {
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

func (s *PostgresStore) upsertOne(ctx context.Context, rec model.EmailRecord, now time.Time, reset bool) (bool, error) {
	cols, err := encodeEmailJSON(rec)
	if err != nil {
		return false, err
	}

	proposed := uuid.NewString()
	var id string
	err = s.observe(ctx, "upsert", "emails", func(ctx context.Context) error {
		return s.db.QueryRow(ctx, pgUpsertEmail,
			proposed, rec.Provider, rec.ProviderMessageID, rec.ThreadID, rec.Mailbox, rec.From,
			cols.To, cols.Cc, cols.Bcc, rec.Subject, rec.Snippet, rec.BodyPlain, rec.BodyHTML,
			cols.Headers, cols.Labels, cols.Attachments, rec.Date, cols.Classifications, cols.Metadata,
			rec.Processed, now, reset,
		).Scan(&id)
	})
	if err != nil {
		return false, err
	}
	return id == proposed, nil
}

func (s *PostgresStore) GetAll(ctx context.Context) ([]model.EmailRecord, error) {
	return s.queryEmails(ctx, "select_all", `SELECT`+pgEmailColumns+` FROM emails ORDER BY seq`)
}

func (s *PostgresStore) GetUnclassified(ctx context.Context) ([]model.EmailRecord, error) {
	return s.queryEmails(ctx, "select_unclassified",
		`SELECT`+pgEmailColumns+` FROM emails WHERE COALESCE(classifications->>'category', '') = '' ORDER BY seq`)
}

func (s *PostgresStore) GetClassified(ctx context.Context) ([]model.EmailRecord, error) {
	return s.queryEmails(ctx, "select_classified",
		`SELECT`+pgEmailColumns+` FROM emails WHERE COALESCE(classifications->>'category', '') <> '' ORDER BY seq`)
}

func (s *PostgresStore) GetByID(ctx context.Context, id string) (*model.EmailRecord, error) {
	if _, err := uuid.Parse(id); err != nil {
		return nil, ErrNotFound
	}
	var rec *model.EmailRecord
	err := s.observe(ctx, "select_by_id", "emails", func(ctx context.Context) error {
		row := s.db.QueryRow(ctx, `SELECT`+pgEmailColumns+` FROM emails WHERE id = $1`, id)
		var err error
		rec, err = scanPgEmail(row)
		return err
	})
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return rec, nil
}

func (s *PostgresStore) queryEmails(ctx context.Context, op, query string) ([]model.EmailRecord, error) {
	out := []model.EmailRecord{}
	err := s.observe(ctx, op, "emails", func(ctx context.Context) error {
		rows, err := s.db.Query(ctx, query)
		if err != nil {
			return err
		}
		defer rows.Close()

		for rows.Next() {
			rec, err := scanPgEmail(rows)
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

func scanPgEmail(row pgx.Row) (*model.EmailRecord, error) {
	var (
		rec  model.EmailRecord
		cols emailJSON
	)
	err := row.Scan(
		&rec.ID, &rec.Provider, &rec.ProviderMessageID, &rec.ThreadID, &rec.Mailbox, &rec.From,
		&cols.To, &cols.Cc, &cols.Bcc, &rec.Subject, &rec.Snippet, &rec.BodyPlain, &rec.BodyHTML,
		&cols.Headers, &cols.Labels, &cols.Attachments, &rec.Date, &cols.Classifications, &cols.Metadata,
		&rec.Processed, &rec.FetchedAt, &rec.CreatedAt,
	)
	if err != nil {
		return nil, err
	}
	if err := decodeEmailJSON(&rec, cols); err != nil {
		return nil, err
	}
	return &rec, nil
}

// UpdateClassification replaces the classification wholesale and marks the record processed.
func (s *PostgresStore) UpdateClassification(ctx context.Context, provider, providerMessageID string, c model.Classification) error {
	data, err := encodeClassification(&c)
	if err != nil {
		return err
	}
	return s.observe(ctx, "update_classification", "emails", func(ctx context.Context) error {
		tag, err := s.db.Exec(ctx,
			`UPDATE emails SET classifications = $3, processed = TRUE WHERE provider = $1 AND provider_message_id = $2`,
			provider, providerMessageID, data)
		if err != nil {
			return err
		}
		if tag.RowsAffected() == 0 {
			return ErrNotFound
		}
		return nil
	})
}

func (s *PostgresStore) AppendResponse(ctx context.Context, r *model.ResponseRecord) error {
	prepareResponse(r, s.now().UTC())
	receipt, err := encodeReceipt(r.GmailResponse)
	if err != nil {
		return err
	}
	var sentAt *time.Time
	if !r.SentAt.IsZero() {
		sentAt = &r.SentAt
	}
	return s.observe(ctx, "insert", "responses", func(ctx context.Context) error {
		_, err := s.db.Exec(ctx, `
            INSERT INTO responses (id, email_id, thread_id, to_addr, from_addr, subject, body,
                status, edited_by_human, created_at, sent_at, gmail_response)
            VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)`,
			r.ID, r.EmailID, r.ThreadID, r.To, r.From, r.Subject, r.Body,
			string(r.Status), r.EditedByHuman, r.CreatedAt, sentAt, receipt,
		)
		return err
	})
}

func (s *PostgresStore) ListResponses(ctx context.Context) ([]model.ResponseRecord, error) {
	out := []model.ResponseRecord{}
	err := s.observe(ctx, "select_all", "responses", func(ctx context.Context) error {
		rows, err := s.db.Query(ctx, `
            SELECT id::text, email_id, thread_id, to_addr, from_addr, subject, body,
                status, edited_by_human, created_at, sent_at, gmail_response
            FROM responses ORDER BY seq`)
		if err != nil {
			return err
		}
		defer rows.Close()

		for rows.Next() {
			var (
				r       model.ResponseRecord
				status  string
				sentAt  *time.Time
				receipt []byte
			)
			if err := rows.Scan(&r.ID, &r.EmailID, &r.ThreadID, &r.To, &r.From, &r.Subject, &r.Body,
				&status, &r.EditedByHuman, &r.CreatedAt, &sentAt, &receipt); err != nil {
				return err
			}
			r.Status = model.ResponseStatus(status)
			if sentAt != nil {
				r.SentAt = *sentAt
			}
			if err := decodeReceipt(receipt, &r.GmailResponse); err != nil {
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

// SaveAttachment stores the blob and returns its storage id.
func (s *PostgresStore) SaveAttachment(ctx context.Context, filename, contentType string, data []byte) (string, error) {
	id := uuid.NewString()
	err := s.observe(ctx, "insert", "attachment_blobs", func(ctx context.Context) error {
		_, err := s.db.Exec(ctx, `
            INSERT INTO attachment_blobs (id, filename, content_type, size, data, created_at)
            VALUES ($1, $2, $3, $4, $5, $6)`,
			id, filename, contentType, len(data), data, s.now().UTC())
		return err
	})
	if err != nil {
		return "", err
	}
	s.logger.Debug("Stored attachment", zap.String("filename", filename), zap.String("storage_id", id))
	return id, nil
}

func (s *PostgresStore) Ping(ctx context.Context) error {
	return s.db.Ping(ctx)
}

// Close is a no-op: the pool belongs to the composition root.
func (s *PostgresStore) Close() error {
	return nil
}
