package store

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rotisserie/eris"

	"github.com/prgleibe-cmyk/IdentificaPix-sub002/internal/db"
	"github.com/prgleibe-cmyk/IdentificaPix-sub002/internal/model"
)

// PostgresStore implements Store using pgxpool.
type PostgresStore struct {
	pool    db.Pool
	closeFn func()
}

// PoolConfig holds optional connection pool tuning parameters.
type PoolConfig struct {
	MaxConns int32 `yaml:"max_conns" mapstructure:"max_conns"`
	MinConns int32 `yaml:"min_conns" mapstructure:"min_conns"`
}

// preparedStatements lists queries to prepare on each new connection for
// faster execution of the most frequently used store operations.
var preparedStatements = map[string]string{
	"existing_hashes":   `SELECT row_hash FROM transactions WHERE user_id = $1`,
	"get_status":        `SELECT status FROM transactions WHERE user_id = $1 AND id = $2`,
	"list_associations": `SELECT normalized_description, contributor_normalized_name, church_id FROM learned_associations WHERE user_id = $1 ORDER BY updated_at, normalized_description`,
}

// NewPostgres creates a PostgresStore with a connection pool.
func NewPostgres(ctx context.Context, connString string, poolCfg *PoolConfig) (*PostgresStore, error) {
	pgxCfg, err := pgxpool.ParseConfig(connString)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: parse config")
	}

	maxConns := int32(10)
	minConns := int32(2)
	if poolCfg != nil {
		if poolCfg.MaxConns > 0 {
			maxConns = poolCfg.MaxConns
		}
		if poolCfg.MinConns > 0 {
			minConns = poolCfg.MinConns
		}
	}
	pgxCfg.MaxConns = maxConns
	pgxCfg.MinConns = minConns
	pgxCfg.MaxConnLifetime = 30 * time.Minute
	pgxCfg.MaxConnIdleTime = 5 * time.Minute

	pgxCfg.AfterConnect = func(ctx context.Context, conn *pgx.Conn) error {
		for name, sql := range preparedStatements {
			if _, err := conn.Prepare(ctx, name, sql); err != nil {
				return eris.Wrapf(err, "postgres: prepare %s", name)
			}
		}
		return nil
	}

	pool, err := pgxpool.NewWithConfig(ctx, pgxCfg)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: create pool")
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, eris.Wrap(err, "postgres: ping")
	}
	return &PostgresStore{pool: pool, closeFn: pool.Close}, nil
}

const postgresMigration = `
CREATE TABLE IF NOT EXISTS transactions (
	id                  TEXT PRIMARY KEY,
	user_id             TEXT NOT NULL,
	row_hash            TEXT NOT NULL,
	date                TEXT NOT NULL,
	name                TEXT NOT NULL,
	amount              NUMERIC(14,2) NOT NULL,
	raw_description     TEXT NOT NULL DEFAULT '',
	cleaned_description TEXT NOT NULL DEFAULT '',
	payment_method      TEXT NOT NULL DEFAULT 'OTHER',
	contribution_type   TEXT NOT NULL DEFAULT 'OTHER',
	source_bank_id      TEXT NOT NULL DEFAULT '',
	status              TEXT NOT NULL DEFAULT 'pending',
	match_method        TEXT NOT NULL DEFAULT '',
	created_at          TIMESTAMPTZ NOT NULL DEFAULT now(),
	updated_at          TIMESTAMPTZ NOT NULL DEFAULT now(),
	UNIQUE (user_id, row_hash)
);

CREATE INDEX IF NOT EXISTS idx_transactions_user_status_date ON transactions(user_id, status, date DESC, id);

CREATE TABLE IF NOT EXISTS learned_models (
	id                    TEXT PRIMARY KEY,
	position              INTEGER NOT NULL DEFAULT 0,
	is_active             BOOLEAN NOT NULL DEFAULT true,
	header_hash           TEXT,
	data_topology_pattern TEXT NOT NULL,
	body                  JSONB NOT NULL,
	updated_at            TIMESTAMPTZ NOT NULL DEFAULT now()
);

CREATE INDEX IF NOT EXISTS idx_learned_models_header_hash ON learned_models(header_hash) WHERE is_active;
CREATE INDEX IF NOT EXISTS idx_learned_models_pattern ON learned_models(data_topology_pattern) WHERE is_active;

CREATE TABLE IF NOT EXISTS learned_associations (
	user_id                     TEXT NOT NULL,
	normalized_description      TEXT NOT NULL,
	contributor_normalized_name TEXT NOT NULL,
	church_id                   TEXT NOT NULL DEFAULT '',
	updated_at                  TIMESTAMPTZ NOT NULL DEFAULT now(),
	PRIMARY KEY (user_id, normalized_description)
);
`

func (s *PostgresStore) Ping(ctx context.Context) error {
	return eris.Wrap(s.pool.Ping(ctx), "postgres: ping")
}

func (s *PostgresStore) Migrate(ctx context.Context) error {
	_, err := s.pool.Exec(ctx, postgresMigration)
	return eris.Wrap(err, "postgres: migrate")
}

func (s *PostgresStore) Close() error {
	if s.closeFn != nil {
		s.closeFn()
	}
	return nil
}

// InsertTransactions writes rows with COPY. The call is atomic: a unique
// violation on (user_id, row_hash) writes nothing and returns a
// *model.PersistenceConflictError.
func (s *PostgresStore) InsertTransactions(ctx context.Context, userID string, rows []model.Transaction) (int, error) {
	values := make([][]any, len(rows))
	for i, r := range rows {
		values[i] = transactionRow(userID, r)
	}
	n, err := db.CopyFrom(ctx, s.pool, "transactions", transactionColumns, values)
	if err != nil {
		if _, ok := db.IsUniqueViolation(err); ok {
			conflict := &model.PersistenceConflictError{Cause: err}
			if len(rows) == 1 {
				conflict.RowHash = rows[0].RowHash
			}
			return 0, conflict
		}
		return 0, eris.Wrap(err, "postgres: insert transactions")
	}
	return int(n), nil
}

func (s *PostgresStore) ExistingHashes(ctx context.Context, userID string) ([]string, error) {
	rows, err := s.pool.Query(ctx, `SELECT row_hash FROM transactions WHERE user_id = $1`, userID)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: existing hashes")
	}
	hashes, err := pgx.CollectRows(rows, pgx.RowTo[string])
	if err != nil {
		return nil, eris.Wrap(err, "postgres: scan hashes")
	}
	return hashes, nil
}

// UpdateTransactionStatus moves a transaction forward in its lifecycle. The
// update is guarded on the status read so a concurrent change surfaces as
// ErrInvalidTransition instead of a silent overwrite.
func (s *PostgresStore) UpdateTransactionStatus(ctx context.Context, userID, id string, status model.TransactionStatus) error {
	var current string
	err := s.pool.QueryRow(ctx, `SELECT status FROM transactions WHERE user_id = $1 AND id = $2`, userID, id).Scan(&current)
	if errors.Is(err, pgx.ErrNoRows) {
		return eris.Wrapf(ErrNotFound, "transaction %s", id)
	}
	if err != nil {
		return eris.Wrapf(err, "postgres: get transaction status %s", id)
	}
	if err := checkTransition(model.TransactionStatus(current), status); err != nil {
		return err
	}

	tag, err := s.pool.Exec(ctx,
		`UPDATE transactions SET status = $1, updated_at = $2 WHERE user_id = $3 AND id = $4 AND status = $5`,
		string(status), time.Now().UTC(), userID, id, current,
	)
	if err != nil {
		return eris.Wrapf(err, "postgres: update transaction status %s", id)
	}
	if tag.RowsAffected() == 0 {
		return eris.Wrapf(ErrInvalidTransition, "transaction %s changed concurrently", id)
	}
	return nil
}

func (s *PostgresStore) ListPending(ctx context.Context, userID string, page Page) ([]model.Transaction, error) {
	page = page.normalize()
	rows, err := s.pool.Query(ctx,
		`SELECT id, user_id, row_hash, date, name, amount::float8, raw_description, cleaned_description,
		        payment_method, contribution_type, source_bank_id, status, match_method
		   FROM transactions
		  WHERE user_id = $1 AND status = $2
		  ORDER BY date DESC, id
		  LIMIT $3 OFFSET $4`,
		userID, string(model.StatusPending), page.Limit, page.Offset,
	)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: list pending")
	}
	defer rows.Close()

	var out []model.Transaction
	for rows.Next() {
		t, err := scanTransaction(rows)
		if err != nil {
			return nil, eris.Wrap(err, "postgres: scan transaction")
		}
		out = append(out, t)
	}
	return out, eris.Wrap(rows.Err(), "postgres: iterate pending")
}

func (s *PostgresStore) ListActive(ctx context.Context) ([]model.LearnedFileModel, error) {
	return s.queryModels(ctx, `SELECT body FROM learned_models WHERE is_active ORDER BY position, id`)
}

// FindByFingerprint returns active models sharing the header hash or the
// data topology pattern of fp.
func (s *PostgresStore) FindByFingerprint(ctx context.Context, fp model.StructuralFingerprint) ([]model.LearnedFileModel, error) {
	var hash *string
	if fp.HasHeaderHash() {
		hash = fp.HeaderHash
	}
	return s.queryModels(ctx,
		`SELECT body FROM learned_models
		  WHERE is_active
		    AND (header_hash = $1 OR (data_topology_pattern <> $3 AND data_topology_pattern = $2))
		  ORDER BY position, id`,
		hash, fp.DataTopologyPattern, model.UnknownPattern,
	)
}

func (s *PostgresStore) queryModels(ctx context.Context, sql string, args ...any) ([]model.LearnedFileModel, error) {
	rows, err := s.pool.Query(ctx, sql, args...)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: query models")
	}
	bodies, err := pgx.CollectRows(rows, pgx.RowTo[[]byte])
	if err != nil {
		return nil, eris.Wrap(err, "postgres: scan models")
	}
	return decodeModels(bodies)
}

// SaveModels upserts models by identity ID, keeping the given order for
// tie-breaks.
func (s *PostgresStore) SaveModels(ctx context.Context, models []model.LearnedFileModel) (int, error) {
	rows, err := modelRows(models)
	if err != nil {
		return 0, err
	}
	n, err := db.BulkUpsert(ctx, s.pool, db.UpsertConfig{
		Table:        "learned_models",
		Columns:      modelColumns,
		ConflictKeys: []string{"id"},
	}, rows)
	if err != nil {
		return 0, eris.Wrap(err, "postgres: save models")
	}
	return int(n), nil
}

func (s *PostgresStore) ListAssociations(ctx context.Context, userID string) ([]model.LearnedAssociation, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT normalized_description, contributor_normalized_name, church_id FROM learned_associations WHERE user_id = $1 ORDER BY updated_at, normalized_description`,
		userID,
	)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: list associations")
	}
	out, err := pgx.CollectRows(rows, func(row pgx.CollectableRow) (model.LearnedAssociation, error) {
		var a model.LearnedAssociation
		err := row.Scan(&a.NormalizedDescription, &a.ContributorNormalizedName, &a.ChurchID)
		return a, err
	})
	if err != nil {
		return nil, eris.Wrap(err, "postgres: scan associations")
	}
	return out, nil
}

func (s *PostgresStore) SaveAssociation(ctx context.Context, userID string, a model.LearnedAssociation) error {
	_, err := s.pool.Exec(ctx,
		`INSERT INTO learned_associations (user_id, normalized_description, contributor_normalized_name, church_id, updated_at)
		 VALUES ($1, $2, $3, $4, $5)
		 ON CONFLICT (user_id, normalized_description)
		 DO UPDATE SET contributor_normalized_name = EXCLUDED.contributor_normalized_name,
		               church_id = EXCLUDED.church_id,
		               updated_at = EXCLUDED.updated_at`,
		userID, a.NormalizedDescription, a.ContributorNormalizedName, a.ChurchID, time.Now().UTC(),
	)
	return eris.Wrap(err, "postgres: save association")
}

var modelColumns = []string{"id", "position", "is_active", "header_hash", "data_topology_pattern", "body", "updated_at"}

func modelRows(models []model.LearnedFileModel) ([][]any, error) {
	now := time.Now().UTC()
	rows := make([][]any, len(models))
	for i, m := range models {
		if m.Identity.ID == "" {
			return nil, eris.Errorf("store: model %d has no id", i)
		}
		if _, err := m.Dispatch(); err != nil {
			return nil, eris.Wrapf(err, "store: model %s", m.Label())
		}
		body, err := json.Marshal(m)
		if err != nil {
			return nil, eris.Wrapf(err, "store: marshal model %s", m.Identity.ID)
		}
		var hash *string
		if m.Evidence.Fingerprint.HasHeaderHash() {
			hash = m.Evidence.Fingerprint.HeaderHash
		}
		rows[i] = []any{m.Identity.ID, i, m.Identity.IsActive, hash, m.Evidence.Fingerprint.DataTopologyPattern, body, now}
	}
	return rows, nil
}

func decodeModels(bodies [][]byte) ([]model.LearnedFileModel, error) {
	out := make([]model.LearnedFileModel, 0, len(bodies))
	for _, b := range bodies {
		var m model.LearnedFileModel
		if err := json.Unmarshal(b, &m); err != nil {
			return nil, eris.Wrap(err, "store: decode model")
		}
		out = append(out, m)
	}
	return out, nil
}
