package db

import (
	"context"
	"fmt"
	"testing"

	"github.com/jackc/pgx/v5"
	"github.com/pashagolub/pgxmock/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var emailColumns = []string{"id", "address", "position", "business_id"}

func TestCopyFrom_EmptyRows(t *testing.T) {
	n, err := CopyFrom(context.TODO(), nil, "emails", emailColumns, nil)
	assert.NoError(t, err)
	assert.Equal(t, int64(0), n)
}

func TestCopyFrom_Success(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	mock.ExpectCopyFrom(pgx.Identifier{"emails"}, emailColumns).WillReturnResult(2)

	rows := [][]any{{"e1", "a@x.com", 0, "b1"}, {"e2", "b@x.com", 1, "b1"}}
	n, err := CopyFrom(context.Background(), mock, "emails", emailColumns, rows)
	assert.NoError(t, err)
	assert.Equal(t, int64(2), n)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestCopyFrom_ShortWrite(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	mock.ExpectCopyFrom(pgx.Identifier{"emails"}, emailColumns).WillReturnResult(1)

	rows := [][]any{{"e1", "a@x.com", 0, "b1"}, {"e2", "b@x.com", 1, "b1"}}
	n, err := CopyFrom(context.Background(), mock, "emails", emailColumns, rows)
	require.Error(t, err)
	assert.Equal(t, int64(1), n)
	assert.Contains(t, err.Error(), "wrote 1 of 2 rows")
}

func TestCopyFrom_Error(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	mock.ExpectCopyFrom(pgx.Identifier{"emails"}, emailColumns).WillReturnError(fmt.Errorf("copy failed"))

	rows := [][]any{{"e1", "a@x.com", 0, "b1"}}
	_, err = CopyFrom(context.Background(), mock, "emails", emailColumns, rows)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "COPY INTO emails")
	assert.NoError(t, mock.ExpectationsWereMet())
}
