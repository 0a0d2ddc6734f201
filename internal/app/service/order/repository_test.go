package order

import (
	"context"
	"testing"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fatflowers/cashier-stripe/internal/models"
	"github.com/fatflowers/cashier-stripe/internal/testutil/dbmock"
	"github.com/fatflowers/cashier-stripe/pkg/types"
)

func TestGormRepository_FindByTemporaryIDMissing(t *testing.T) {
	db, mock := dbmock.New(t)
	repo := NewRepository(db)

	mock.ExpectQuery(`SELECT \* FROM "orders" WHERE temporary_id = \$1 LIMIT`).
		WillReturnRows(sqlmock.NewRows([]string{"id"}))

	o, err := repo.FindByTemporaryID(context.Background(), "src_1")
	require.NoError(t, err)
	assert.Nil(t, o)
}

func TestGormRepository_CreateIfAbsent(t *testing.T) {
	const insert = `INSERT INTO "orders" .* ON CONFLICT \("temporary_id"\) DO NOTHING RETURNING`

	t.Run("inserted", func(t *testing.T) {
		db, mock := dbmock.New(t)
		mock.ExpectQuery(insert).WillReturnRows(sqlmock.NewRows([]string{"number"}).AddRow(1001))

		o := &models.Order{ID: "0190a000-0000-7000-8000-000000000001", TemporaryID: "src_1", TransactionID: "ch_1", PaymentStatus: types.OrderPaymentStatusCompletelyPaid}
		created, err := NewRepository(db).CreateIfAbsent(context.Background(), o)
		require.NoError(t, err)
		assert.True(t, created)
		assert.Equal(t, int64(1001), o.Number)
	})

	t.Run("conflict", func(t *testing.T) {
		db, mock := dbmock.New(t)
		mock.ExpectQuery(insert).WillReturnRows(sqlmock.NewRows([]string{"number"}))

		o := &models.Order{ID: "0190a000-0000-7000-8000-000000000002", TemporaryID: "src_1", TransactionID: "ch_1", PaymentStatus: types.OrderPaymentStatusCompletelyPaid}
		created, err := NewRepository(db).CreateIfAbsent(context.Background(), o)
		require.NoError(t, err)
		assert.False(t, created)
	})
}

func TestGormRepository_UpdateStatusIsConditional(t *testing.T) {
	db, mock := dbmock.New(t)
	mock.ExpectExec(`UPDATE "orders" SET .*"payment_status"=.* WHERE id = \$\d+ AND payment_status IN \(\$\d+,\$\d+\)`).
		WillReturnResult(sqlmock.NewResult(0, 0))

	changed, err := NewRepository(db).UpdateStatus(context.Background(), "o1", types.OrderPaymentStatusReviewNecessary, nil, "note\n")
	require.NoError(t, err)
	assert.False(t, changed)
}

func TestGormRepository_UpdateStatusWithoutPredecessors(t *testing.T) {
	db, _ := dbmock.New(t)
	changed, err := NewRepository(db).UpdateStatus(context.Background(), "o1", types.OrderPaymentStatusOpen, nil, "")
	require.NoError(t, err)
	assert.False(t, changed)
}

func TestGormRepository_AttachCharge(t *testing.T) {
	db, mock := dbmock.New(t)
	mock.ExpectBegin()
	mock.ExpectExec(`UPDATE "orders" SET .* WHERE id = \$\d+ AND transaction_id LIKE \$\d+`).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec(`UPDATE "orders" SET .* WHERE id = \$\d+ AND payment_status IN`).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()

	ok, err := NewRepository(db).AttachCharge(context.Background(), "o1", "ch_1", types.OrderPaymentStatusCompletelyPaid, nil, "attached\n")
	require.NoError(t, err)
	assert.True(t, ok)
}

func TestGormRepository_AttachChargeAlreadyAttached(t *testing.T) {
	db, mock := dbmock.New(t)
	mock.ExpectBegin()
	mock.ExpectExec(`UPDATE "orders" SET .* WHERE id = \$\d+ AND transaction_id LIKE \$\d+`).
		WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectCommit()

	ok, err := NewRepository(db).AttachCharge(context.Background(), "o1", "ch_1", types.OrderPaymentStatusCompletelyPaid, nil, "attached\n")
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestGormRepository_Scan(t *testing.T) {
	db, mock := dbmock.New(t)
	mock.ExpectQuery(`SELECT count\(\*\) FROM "orders" WHERE "payment_status" = \$1`).
		WithArgs("completely_paid").
		WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(1))
	mock.ExpectQuery(`SELECT \* FROM "orders" WHERE "payment_status" = \$1 ORDER BY "number" DESC LIMIT`).
		WillReturnRows(sqlmock.NewRows([]string{"id", "number", "temporary_id", "payment_status"}).
			AddRow("o1", 1001, "src_1", "completely_paid"))

	rows, total, err := NewRepository(db).Scan(context.Background(), &types.PageRequest{
		Filters: []*types.CommonFilter{{Field: "payment_status", Operator: types.CommonFilterOperatorEq, Values: []any{"completely_paid"}}},
		Size:    10,
	})
	require.NoError(t, err)
	assert.Equal(t, int64(1), total)
	require.Len(t, rows, 1)
	assert.Equal(t, int64(1001), rows[0].Number)
}
