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

var variableColumns = []string{"id", "snapshot_id", "variable_key"}

func TestCopyFrom_EmptyRows(t *testing.T) {
	n, err := CopyFrom(context.TODO(), nil, "variable_records", variableColumns, nil)
	assert.NoError(t, err)
	assert.Equal(t, int64(0), n)
}

func TestCopyFrom_Success(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	mock.ExpectCopyFrom(pgx.Identifier{"variable_records"}, variableColumns).WillReturnResult(2)

	rows := [][]any{{"v1", "s1", "task.rt"}, {"v2", "s1", "task.correct"}}
	n, err := CopyFrom(context.Background(), mock, "variable_records", variableColumns, rows)
	assert.NoError(t, err)
	assert.Equal(t, int64(2), n)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestCopyFrom_ShortWrite(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	mock.ExpectCopyFrom(pgx.Identifier{"variable_records"}, variableColumns).WillReturnResult(1)

	rows := [][]any{{"v1", "s1", "task.rt"}, {"v2", "s1", "task.correct"}}
	_, err = CopyFrom(context.Background(), mock, "variable_records", variableColumns, rows)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "wrote 1 of 2 rows")
}

func TestCopyFrom_Error(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	mock.ExpectCopyFrom(pgx.Identifier{"variable_records"}, variableColumns).WillReturnError(fmt.Errorf("copy failed"))

	_, err = CopyFrom(context.Background(), mock, "variable_records", variableColumns, [][]any{{"v1", "s1", "rt"}})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "COPY INTO variable_records")
	assert.NoError(t, mock.ExpectationsWereMet())
}
