package postgres

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/pashagolub/pgxmock/v4"
	"github.com/stretchr/testify/require"

	"github.com/JakeFAU/catalog-harvester/internal/harvest"
	"github.com/JakeFAU/catalog-harvester/internal/hash/sha256"
)

type fixedClock struct{ t time.Time }

func (c fixedClock) Now() time.Time { return c.t }

func TestCommitInsertsRow(t *testing.T) {
	t.Parallel()

	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	now := time.Unix(1700000000, 0).UTC()
	store, err := NewProductStoreWithPool(mock, "", sha256.New(), WithRunID("run-1"), WithClock(fixedClock{now}))
	require.NoError(t, err)

	rec := harvest.Record{
		"name":        "Sample Product",
		"category":    "DevOps",
		"price_range": "$100-$500",
		"description": "A test product.",
	}
	fingerprint, err := rec.Fingerprint(sha256.New())
	require.NoError(t, err)

	mock.ExpectExec("INSERT INTO products").
		WithArgs(
			fingerprint,
			"run-1",
			"DevOps",
			"Sample Product",
			"$100-$500",
			"A test product.",
			[]byte(`{"category":"DevOps","description":"A test product.","name":"Sample Product","price_range":"$100-$500"}`),
			now,
		).
		WillReturnResult(pgxmock.NewResult("INSERT", 1))

	require.NoError(t, store.Commit(context.Background(), rec))
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestCommitIgnoresDuplicates(t *testing.T) {
	t.Parallel()

	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	store, err := NewProductStoreWithPool(mock, "books", sha256.New())
	require.NoError(t, err)

	mock.ExpectExec("ON CONFLICT \\(fingerprint\\) DO NOTHING").
		WithArgs(pgxmock.AnyArg(), "", "Travel", "Sample Book", "£19.99", "N/A", pgxmock.AnyArg(), pgxmock.AnyArg()).
		WillReturnResult(pgxmock.NewResult("INSERT", 0))

	err = store.Commit(context.Background(), harvest.Record{
		"title":       "Sample Book",
		"category":    "Travel",
		"price":       "£19.99",
		"description": "N/A",
	})
	require.NoError(t, err)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestCommitWrapsExecError(t *testing.T) {
	t.Parallel()

	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	store, err := NewProductStoreWithPool(mock, "", sha256.New())
	require.NoError(t, err)

	mock.ExpectExec("INSERT INTO products").
		WithArgs(
			pgxmock.AnyArg(), pgxmock.AnyArg(), pgxmock.AnyArg(), pgxmock.AnyArg(),
			pgxmock.AnyArg(), pgxmock.AnyArg(), pgxmock.AnyArg(), pgxmock.AnyArg(),
		).
		WillReturnError(errors.New("connection lost"))
	err = store.Commit(context.Background(), harvest.Record{"name": "x"})
	require.ErrorContains(t, err, "insert product: connection lost")
	require.NoError(t, mock.ExpectationsWereMet())

	require.Error(t, store.Commit(context.Background(), nil))
}

func TestEnsureSchema(t *testing.T) {
	t.Parallel()

	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	store, err := NewProductStoreWithPool(mock, "vendors", sha256.New())
	require.NoError(t, err)

	mock.ExpectExec("CREATE TABLE IF NOT EXISTS vendors").
		WillReturnResult(pgxmock.NewResult("CREATE TABLE", 0))
	require.NoError(t, store.EnsureSchema(context.Background()))
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestTableNameValidation(t *testing.T) {
	t.Parallel()

	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	_, err = NewProductStoreWithPool(mock, "products; DROP TABLE x", sha256.New())
	require.ErrorContains(t, err, "invalid table name")

	_, err = NewProductStoreWithPool(nil, "", sha256.New())
	require.Error(t, err)

	_, err = NewProductStore(context.Background(), Config{}, sha256.New())
	require.ErrorContains(t, err, "db.dsn is required")
}
