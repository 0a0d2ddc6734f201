package session

import (
	"context"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/require"

	"github.com/fatflowers/cashier-stripe/internal/testutil/dbmock"
	"github.com/fatflowers/cashier-stripe/pkg/types"
)

func TestGormStore_LoadMissingIsNil(t *testing.T) {
	db, mock := dbmock.New(t)
	mock.ExpectQuery(`SELECT \* FROM "payment_session" WHERE id = \$1 AND expires_at > \$2`).
		WillReturnRows(sqlmock.NewRows([]string{"id"}))

	s, err := NewStore(db).Load(context.Background(), "sess-unknown")
	require.NoError(t, err)
	require.Nil(t, s)
}

func TestGormStore_LoadMapsAttempt(t *testing.T) {
	db, mock := dbmock.New(t)
	expires := time.Now().Add(time.Hour)
	rows := sqlmock.NewRows([]string{"id", "processing_reference_id", "client_secret", "attempt_status", "method_id",
		"amount", "currency", "customer_email", "expires_at"}).
		AddRow("sess-1", "src_1", "secret", "requires_redirect", "sofort", 1999, "eur", "buyer@example.com", expires)
	mock.ExpectQuery(`SELECT \* FROM "payment_session"`).WillReturnRows(rows)

	s, err := NewStore(db).Load(context.Background(), "sess-1")
	require.NoError(t, err)
	require.True(t, s.IsProcessing("src_1"))
	require.Equal(t, types.PaymentMethodSofort, s.Attempt.MethodID)
	require.Equal(t, int64(1999), s.Attempt.Amount)
	require.Equal(t, "buyer@example.com", s.Customer.Email)
}

func TestGormStore_LoadEmptyIDSkipsQuery(t *testing.T) {
	db, _ := dbmock.New(t)
	s, err := NewStore(db).Load(context.Background(), "")
	require.NoError(t, err)
	require.Nil(t, s)
}

func TestGormStore_SaveUpserts(t *testing.T) {
	db, mock := dbmock.New(t)
	mock.ExpectExec(`INSERT INTO "payment_session" .* ON CONFLICT \("id"\) DO UPDATE SET`).
		WillReturnResult(sqlmock.NewResult(0, 1))

	s := New("sess-1", time.Hour)
	s.Begin("src_1", "secret", types.AttemptStatusRequiresRedirect)
	require.NoError(t, NewStore(db).Save(context.Background(), s))
}

func TestGormStore_FinishAttemptIsConditional(t *testing.T) {
	db, mock := dbmock.New(t)
	query := `UPDATE "payment_session" SET .*"attempt_status"=\$\d+.*"finished_client_secret"=client_secret,"finished_reference_id"=processing_reference_id.* WHERE id = \$\d+ AND processing_reference_id = \$\d+ AND attempt_status IN \(\$\d+,\$\d+,\$\d+\)`
	mock.ExpectExec(query).WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec(query).WillReturnResult(sqlmock.NewResult(0, 0))

	store := NewStore(db)
	done, err := store.FinishAttempt(context.Background(), "sess-1", "src_1")
	require.NoError(t, err)
	require.True(t, done)

	// The buyer started another attempt in between.
	done, err = store.FinishAttempt(context.Background(), "sess-1", "src_1")
	require.NoError(t, err)
	require.False(t, done)

	done, err = store.FinishAttempt(context.Background(), "sess-1", "")
	require.NoError(t, err)
	require.False(t, done)
}
