package store

import (
	"context"
	"encoding/json"
	"errors"
	"testing"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/pashagolub/pgxmock/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/prgleibe-cmyk/IdentificaPix-sub002/internal/model"
)

// newMockPostgresStore creates a PostgresStore backed by pgxmock for unit testing.
func newMockPostgresStore(t *testing.T) (*PostgresStore, pgxmock.PgxPoolIface) {
	t.Helper()
	mock, err := pgxmock.NewPool(pgxmock.QueryMatcherOption(pgxmock.QueryMatcherRegexp))
	require.NoError(t, err)
	t.Cleanup(func() { mock.Close() })

	s := &PostgresStore{pool: mock}
	return s, mock
}

func TestPostgresStore_Migrate(t *testing.T) {
	s, mock := newMockPostgresStore(t)

	mock.ExpectExec(`CREATE TABLE IF NOT EXISTS transactions`).WillReturnResult(pgxmock.NewResult("CREATE TABLE", 0))

	require.NoError(t, s.Migrate(context.Background()))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_Ping(t *testing.T) {
	s, mock := newMockPostgresStore(t)
	mock.ExpectPing()

	require.NoError(t, s.Ping(context.Background()))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_InsertTransactions(t *testing.T) {
	s, mock := newMockPostgresStore(t)

	mock.ExpectCopyFrom(pgx.Identifier{"transactions"}, transactionColumns).WillReturnResult(2)

	n, err := s.InsertTransactions(context.Background(), "u1", []model.Transaction{
		txn("t1", "h1_0", "2024-07-01", "PIX MARIA", 50),
		txn("t2", "h2_0", "2024-07-02", "PIX JOAO", 100),
	})
	require.NoError(t, err)
	assert.Equal(t, 2, n)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_InsertTransactions_UniqueViolation(t *testing.T) {
	s, mock := newMockPostgresStore(t)

	mock.ExpectCopyFrom(pgx.Identifier{"transactions"}, transactionColumns).
		WillReturnError(&pgconn.PgError{Code: "23505", ConstraintName: "transactions_user_id_row_hash_key"})

	_, err := s.InsertTransactions(context.Background(), "u1", []model.Transaction{
		txn("t1", "h1_0", "2024-07-01", "PIX MARIA", 50),
	})
	var conflict *model.PersistenceConflictError
	require.True(t, errors.As(err, &conflict))
	assert.Equal(t, "h1_0", conflict.RowHash)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_InsertTransactions_OtherError(t *testing.T) {
	s, mock := newMockPostgresStore(t)

	mock.ExpectCopyFrom(pgx.Identifier{"transactions"}, transactionColumns).
		WillReturnError(errors.New("conn reset"))

	_, err := s.InsertTransactions(context.Background(), "u1", []model.Transaction{
		txn("t1", "h1_0", "2024-07-01", "PIX MARIA", 50),
	})
	require.Error(t, err)
	var conflict *model.PersistenceConflictError
	assert.False(t, errors.As(err, &conflict))
	assert.Contains(t, err.Error(), "postgres: insert transactions")
}

func TestPostgresStore_ExistingHashes(t *testing.T) {
	s, mock := newMockPostgresStore(t)

	mock.ExpectQuery(`SELECT row_hash FROM transactions WHERE user_id = \$1`).
		WithArgs("u1").
		WillReturnRows(pgxmock.NewRows([]string{"row_hash"}).AddRow("h1_0").AddRow("h1_1"))

	hashes, err := s.ExistingHashes(context.Background(), "u1")
	require.NoError(t, err)
	assert.Equal(t, []string{"h1_0", "h1_1"}, hashes)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_UpdateTransactionStatus(t *testing.T) {
	s, mock := newMockPostgresStore(t)

	mock.ExpectQuery(`SELECT status FROM transactions`).
		WithArgs("u1", "t1").
		WillReturnRows(pgxmock.NewRows([]string{"status"}).AddRow("pending"))
	mock.ExpectExec(`UPDATE transactions SET status = \$1`).
		WithArgs("identified", pgxmock.AnyArg(), "u1", "t1", "pending").
		WillReturnResult(pgxmock.NewResult("UPDATE", 1))

	require.NoError(t, s.UpdateTransactionStatus(context.Background(), "u1", "t1", model.StatusIdentified))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_UpdateTransactionStatus_NotFound(t *testing.T) {
	s, mock := newMockPostgresStore(t)

	mock.ExpectQuery(`SELECT status FROM transactions`).
		WithArgs("u1", "missing").
		WillReturnError(pgx.ErrNoRows)

	err := s.UpdateTransactionStatus(context.Background(), "u1", "missing", model.StatusIdentified)
	assert.ErrorIs(t, err, ErrNotFound)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_UpdateTransactionStatus_Backwards(t *testing.T) {
	s, mock := newMockPostgresStore(t)

	mock.ExpectQuery(`SELECT status FROM transactions`).
		WithArgs("u1", "t1").
		WillReturnRows(pgxmock.NewRows([]string{"status"}).AddRow("resolved"))

	err := s.UpdateTransactionStatus(context.Background(), "u1", "t1", model.StatusPending)
	assert.ErrorIs(t, err, ErrInvalidTransition)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_UpdateTransactionStatus_ConcurrentChange(t *testing.T) {
	s, mock := newMockPostgresStore(t)

	mock.ExpectQuery(`SELECT status FROM transactions`).
		WithArgs("u1", "t1").
		WillReturnRows(pgxmock.NewRows([]string{"status"}).AddRow("pending"))
	mock.ExpectExec(`UPDATE transactions SET status`).
		WithArgs("resolved", pgxmock.AnyArg(), "u1", "t1", "pending").
		WillReturnResult(pgxmock.NewResult("UPDATE", 0))

	err := s.UpdateTransactionStatus(context.Background(), "u1", "t1", model.StatusResolved)
	assert.ErrorIs(t, err, ErrInvalidTransition)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_ListPending(t *testing.T) {
	s, mock := newMockPostgresStore(t)

	rows := pgxmock.NewRows(transactionColumns).
		AddRow("t2", "u1", "h2_0", "2024-07-02", "PIX JOAO", 100.0, "PIX JOAO", "PIX JOAO", "PIX", "OTHER", "itau", "pending", "").
		AddRow("t1", "u1", "h1_0", "2024-07-01", "PIX MARIA", 50.5, "PIX MARIA", "PIX MARIA", "PIX", "OTHER", "itau", "pending", "")
	mock.ExpectQuery(`ORDER BY date DESC, id`).
		WithArgs("u1", "pending", 10, 20).
		WillReturnRows(rows)

	got, err := s.ListPending(context.Background(), "u1", Page{Offset: 20, Limit: 10})
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.Equal(t, "t2", got[0].ID)
	assert.Equal(t, 50.5, got[1].Amount)
	assert.Equal(t, model.PaymentPIX, got[1].PaymentMethod)
	assert.Equal(t, model.StatusPending, got[1].Status)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_FindByFingerprint(t *testing.T) {
	s, mock := newMockPostgresStore(t)

	body, err := json.Marshal(learnedModel("m1", "hash-a", "DTA", true))
	require.NoError(t, err)

	mock.ExpectQuery(`SELECT body FROM learned_models`).
		WithArgs(strPtr("hash-a"), "DTA", model.UnknownPattern).
		WillReturnRows(pgxmock.NewRows([]string{"body"}).AddRow(body))

	got, err := s.FindByFingerprint(context.Background(), model.StructuralFingerprint{
		HeaderHash:          strPtr("hash-a"),
		DataTopologyPattern: "DTA",
	})
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, "m1", got[0].Identity.ID)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_ListActive_BadBody(t *testing.T) {
	s, mock := newMockPostgresStore(t)

	mock.ExpectQuery(`SELECT body FROM learned_models WHERE is_active`).
		WillReturnRows(pgxmock.NewRows([]string{"body"}).AddRow([]byte(`{not json`)))

	_, err := s.ListActive(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "decode model")
}

func TestPostgresStore_SaveModels(t *testing.T) {
	s, mock := newMockPostgresStore(t)

	mock.ExpectBegin()
	mock.ExpectExec(`CREATE TEMP TABLE`).WillReturnResult(pgxmock.NewResult("CREATE TABLE", 0))
	mock.ExpectCopyFrom(pgx.Identifier{"_tmp_upsert_learned_models"}, modelColumns).WillReturnResult(2)
	mock.ExpectExec(`INSERT INTO "learned_models" .* ON CONFLICT \("id"\) DO UPDATE`).
		WillReturnResult(pgxmock.NewResult("INSERT", 2))
	mock.ExpectCommit()

	n, err := s.SaveModels(context.Background(), []model.LearnedFileModel{
		learnedModel("m1", "hash-a", "DTA", true),
		learnedModel("m2", "hash-b", "DTA", true),
	})
	require.NoError(t, err)
	assert.Equal(t, 2, n)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_SaveModels_MissingID(t *testing.T) {
	s, mock := newMockPostgresStore(t)

	_, err := s.SaveModels(context.Background(), []model.LearnedFileModel{learnedModel("", "h", "DTA", true)})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "has no id")
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_Associations(t *testing.T) {
	s, mock := newMockPostgresStore(t)
	ctx := context.Background()

	mock.ExpectExec(`INSERT INTO learned_associations`).
		WithArgs("u1", "ted assoc", "maria souza", "sede", pgxmock.AnyArg()).
		WillReturnResult(pgxmock.NewResult("INSERT", 1))
	mock.ExpectQuery(`FROM learned_associations WHERE user_id = \$1`).
		WithArgs("u1").
		WillReturnRows(pgxmock.NewRows([]string{"normalized_description", "contributor_normalized_name", "church_id"}).
			AddRow("ted assoc", "maria souza", "sede"))

	require.NoError(t, s.SaveAssociation(ctx, "u1", model.LearnedAssociation{
		NormalizedDescription:     "ted assoc",
		ContributorNormalizedName: "maria souza",
		ChurchID:                  "sede",
	}))
	got, err := s.ListAssociations(ctx, "u1")
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, "maria souza", got[0].ContributorNormalizedName)
	assert.NoError(t, mock.ExpectationsWereMet())
}
