package store

import (
	"context"
	"database/sql"
	"errors"
	"strings"
	"time"

	"github.com/rotisserie/eris"
	_ "modernc.org/sqlite"

	"github.com/prgleibe-cmyk/IdentificaPix-sub002/internal/model"
)

// SQLiteStore implements Store using modernc.org/sqlite.
type SQLiteStore struct {
	db *sql.DB
}

// NewSQLite opens a SQLite database at the given path and configures WAL mode.
func NewSQLite(dsn string) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: open")
	}
	for _, pragma := range []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA busy_timeout=5000",
		"PRAGMA synchronous=NORMAL",
	} {
		if _, err := db.Exec(pragma); err != nil {
			db.Close() //nolint:errcheck
			return nil, eris.Wrapf(err, "sqlite: exec %s", pragma)
		}
	}
	return &SQLiteStore{db: db}, nil
}

const sqliteMigration = `
CREATE TABLE IF NOT EXISTS transactions (
	id                  TEXT PRIMARY KEY,
	user_id             TEXT NOT NULL,
	row_hash            TEXT NOT NULL,
	date                TEXT NOT NULL,
	name                TEXT NOT NULL,
	amount              REAL NOT NULL,
	raw_description     TEXT NOT NULL DEFAULT '',
	cleaned_description TEXT NOT NULL DEFAULT '',
	payment_method      TEXT NOT NULL DEFAULT 'OTHER',
	contribution_type   TEXT NOT NULL DEFAULT 'OTHER',
	source_bank_id      TEXT NOT NULL DEFAULT '',
	status              TEXT NOT NULL DEFAULT 'pending',
	match_method        TEXT NOT NULL DEFAULT '',
	created_at          DATETIME NOT NULL DEFAULT (datetime('now')),
	updated_at          DATETIME NOT NULL DEFAULT (datetime('now')),
	UNIQUE (user_id, row_hash)
);

CREATE INDEX IF NOT EXISTS idx_transactions_user_status_date ON transactions(user_id, status, date DESC, id);

CREATE TABLE IF NOT EXISTS learned_models (
	id                    TEXT PRIMARY KEY,
	position              INTEGER NOT NULL DEFAULT 0,
	is_active             INTEGER NOT NULL DEFAULT 1,
	header_hash           TEXT,
	data_topology_pattern TEXT NOT NULL,
	body                  TEXT NOT NULL,
	updated_at            DATETIME NOT NULL DEFAULT (datetime('now'))
);

CREATE INDEX IF NOT EXISTS idx_learned_models_header_hash ON learned_models(header_hash);
CREATE INDEX IF NOT EXISTS idx_learned_models_pattern ON learned_models(data_topology_pattern);

CREATE TABLE IF NOT EXISTS learned_associations (
	user_id                     TEXT NOT NULL,
	normalized_description      TEXT NOT NULL,
	contributor_normalized_name TEXT NOT NULL,
	church_id                   TEXT NOT NULL DEFAULT '',
	updated_at                  DATETIME NOT NULL DEFAULT (datetime('now')),
	PRIMARY KEY (user_id, normalized_description)
);
`

func (s *SQLiteStore) Migrate(ctx context.Context) error {
	_, err := s.db.ExecContext(ctx, sqliteMigration)
	return eris.Wrap(err, "sqlite: migrate")
}

func (s *SQLiteStore) Ping(ctx context.Context) error {
	return eris.Wrap(s.db.PingContext(ctx), "sqlite: ping")
}

func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

// isUniqueViolation matches the driver's constraint message; modernc.org/sqlite
// does not export typed constraint errors.
func isUniqueViolation(err error) bool {
	return err != nil && strings.Contains(err.Error(), "UNIQUE constraint failed")
}

// InsertTransactions writes rows in a single transaction. A unique violation
// rolls back the whole call and returns a *model.PersistenceConflictError.
func (s *SQLiteStore) InsertTransactions(ctx context.Context, userID string, rows []model.Transaction) (int, error) {
	if len(rows) == 0 {
		return 0, nil
	}
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, eris.Wrap(err, "sqlite: begin insert")
	}
	defer tx.Rollback() //nolint:errcheck

	stmt, err := tx.PrepareContext(ctx,
		`INSERT INTO transactions (`+strings.Join(transactionColumns, ", ")+`)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`)
	if err != nil {
		return 0, eris.Wrap(err, "sqlite: prepare insert")
	}
	defer stmt.Close() //nolint:errcheck

	for _, r := range rows {
		if _, err := stmt.ExecContext(ctx, transactionRow(userID, r)...); err != nil {
			if isUniqueViolation(err) {
				return 0, &model.PersistenceConflictError{RowHash: r.RowHash, Cause: err}
			}
			return 0, eris.Wrapf(err, "sqlite: insert transaction %s", r.RowHash)
		}
	}
	if err := tx.Commit(); err != nil {
		return 0, eris.Wrap(err, "sqlite: commit insert")
	}
	return len(rows), nil
}

func (s *SQLiteStore) ExistingHashes(ctx context.Context, userID string) ([]string, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT row_hash FROM transactions WHERE user_id = ?`, userID)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: existing hashes")
	}
	defer rows.Close() //nolint:errcheck

	var out []string
	for rows.Next() {
		var h string
		if err := rows.Scan(&h); err != nil {
			return nil, eris.Wrap(err, "sqlite: scan hash")
		}
		out = append(out, h)
	}
	return out, eris.Wrap(rows.Err(), "sqlite: iterate hashes")
}

func (s *SQLiteStore) UpdateTransactionStatus(ctx context.Context, userID, id string, status model.TransactionStatus) error {
	var current string
	err := s.db.QueryRowContext(ctx,
		`SELECT status FROM transactions WHERE user_id = ? AND id = ?`, userID, id,
	).Scan(&current)
	if errors.Is(err, sql.ErrNoRows) {
		return eris.Wrapf(ErrNotFound, "transaction %s", id)
	}
	if err != nil {
		return eris.Wrapf(err, "sqlite: get transaction status %s", id)
	}
	if err := checkTransition(model.TransactionStatus(current), status); err != nil {
		return err
	}

	res, err := s.db.ExecContext(ctx,
		`UPDATE transactions SET status = ?, updated_at = ? WHERE user_id = ? AND id = ? AND status = ?`,
		string(status), time.Now().UTC(), userID, id, current,
	)
	if err != nil {
		return eris.Wrapf(err, "sqlite: update transaction status %s", id)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return eris.Wrap(err, "sqlite: rows affected")
	}
	if n == 0 {
		return eris.Wrapf(ErrInvalidTransition, "transaction %s changed concurrently", id)
	}
	return nil
}

func (s *SQLiteStore) ListPending(ctx context.Context, userID string, page Page) ([]model.Transaction, error) {
	page = page.normalize()
	rows, err := s.db.QueryContext(ctx,
		`SELECT `+strings.Join(transactionColumns, ", ")+`
		   FROM transactions
		  WHERE user_id = ? AND status = ?
		  ORDER BY date DESC, id
		  LIMIT ? OFFSET ?`,
		userID, string(model.StatusPending), page.Limit, page.Offset,
	)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: list pending")
	}
	defer rows.Close() //nolint:errcheck

	var out []model.Transaction
	for rows.Next() {
		t, err := scanTransaction(rows)
		if err != nil {
			return nil, eris.Wrap(err, "sqlite: scan transaction")
		}
		out = append(out, t)
	}
	return out, eris.Wrap(rows.Err(), "sqlite: iterate pending")
}

func (s *SQLiteStore) ListActive(ctx context.Context) ([]model.LearnedFileModel, error) {
	return s.queryModels(ctx, `SELECT body FROM learned_models WHERE is_active = 1 ORDER BY position, id`)
}

func (s *SQLiteStore) FindByFingerprint(ctx context.Context, fp model.StructuralFingerprint) ([]model.LearnedFileModel, error) {
	var hash any
	if fp.HasHeaderHash() {
		hash = *fp.HeaderHash
	}
	return s.queryModels(ctx,
		`SELECT body FROM learned_models
		  WHERE is_active = 1
		    AND (header_hash = ? OR (data_topology_pattern <> ? AND data_topology_pattern = ?))
		  ORDER BY position, id`,
		hash, model.UnknownPattern, fp.DataTopologyPattern,
	)
}

func (s *SQLiteStore) queryModels(ctx context.Context, query string, args ...any) ([]model.LearnedFileModel, error) {
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: query models")
	}
	defer rows.Close() //nolint:errcheck

	var bodies [][]byte
	for rows.Next() {
		var body string
		if err := rows.Scan(&body); err != nil {
			return nil, eris.Wrap(err, "sqlite: scan model")
		}
		bodies = append(bodies, []byte(body))
	}
	if err := rows.Err(); err != nil {
		return nil, eris.Wrap(err, "sqlite: iterate models")
	}
	return decodeModels(bodies)
}

func (s *SQLiteStore) SaveModels(ctx context.Context, models []model.LearnedFileModel) (int, error) {
	rows, err := modelRows(models)
	if err != nil {
		return 0, err
	}
	if len(rows) == 0 {
		return 0, nil
	}
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, eris.Wrap(err, "sqlite: begin save models")
	}
	defer tx.Rollback() //nolint:errcheck

	for _, r := range rows {
		// body is stored as TEXT.
		r[5] = string(r[5].([]byte))
		_, err := tx.ExecContext(ctx,
			`INSERT INTO learned_models (id, position, is_active, header_hash, data_topology_pattern, body, updated_at)
			 VALUES (?, ?, ?, ?, ?, ?, ?)
			 ON CONFLICT(id) DO UPDATE SET
			   position = excluded.position,
			   is_active = excluded.is_active,
			   header_hash = excluded.header_hash,
			   data_topology_pattern = excluded.data_topology_pattern,
			   body = excluded.body,
			   updated_at = excluded.updated_at`,
			r...,
		)
		if err != nil {
			return 0, eris.Wrapf(err, "sqlite: save model %v", r[0])
		}
	}
	if err := tx.Commit(); err != nil {
		return 0, eris.Wrap(err, "sqlite: commit save models")
	}
	return len(rows), nil
}

func (s *SQLiteStore) ListAssociations(ctx context.Context, userID string) ([]model.LearnedAssociation, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT normalized_description, contributor_normalized_name, church_id
		   FROM learned_associations WHERE user_id = ? ORDER BY updated_at, normalized_description`,
		userID,
	)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: list associations")
	}
	defer rows.Close() //nolint:errcheck

	var out []model.LearnedAssociation
	for rows.Next() {
		var a model.LearnedAssociation
		if err := rows.Scan(&a.NormalizedDescription, &a.ContributorNormalizedName, &a.ChurchID); err != nil {
			return nil, eris.Wrap(err, "sqlite: scan association")
		}
		out = append(out, a)
	}
	return out, eris.Wrap(rows.Err(), "sqlite: iterate associations")
}

func (s *SQLiteStore) SaveAssociation(ctx context.Context, userID string, a model.LearnedAssociation) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO learned_associations (user_id, normalized_description, contributor_normalized_name, church_id, updated_at)
		 VALUES (?, ?, ?, ?, ?)
		 ON CONFLICT(user_id, normalized_description) DO UPDATE SET
		   contributor_normalized_name = excluded.contributor_normalized_name,
		   church_id = excluded.church_id,
		   updated_at = excluded.updated_at`,
		userID, a.NormalizedDescription, a.ContributorNormalizedName, a.ChurchID, time.Now().UTC(),
	)
	return eris.Wrap(err, "sqlite: save association")
}
