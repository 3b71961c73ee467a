package sqlparse

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"testing"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/leapstack-labs/cellflow/pkg/adapter"
)

// mockQueryer adapts a sqlmock-backed *sql.DB to the Queryer interface.
type mockQueryer struct {
	db *sql.DB
}

func (m *mockQueryer) Query(ctx context.Context, query string) (*adapter.Rows, error) {
	rows, err := m.db.QueryContext(ctx, query)
	if err != nil {
		return nil, err
	}
	return &adapter.Rows{Rows: rows}, nil
}

func newMockParser(t *testing.T) (*DuckDBParser, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New(sqlmock.QueryMatcherOption(sqlmock.QueryMatcherEqual))
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })
	return NewDuckDBParser(&mockQueryer{db: db}, nil), mock
}

func TestParseSelectValid(t *testing.T) {
	parser, mock := newMockParser(t)

	payload := `{"error":false,"statements":[{"node":{"from_table":{"table_name":"orders"}}}]}`
	mock.ExpectQuery("SELECT json_serialize_sql('SELECT * FROM orders')").
		WillReturnRows(sqlmock.NewRows([]string{"ast"}).AddRow(payload))

	result, err := parser.ParseSelect(context.Background(), "SELECT * FROM orders")
	require.NoError(t, err)
	require.Len(t, result.Statements, 1)
	assert.Equal(t, []string{"orders"}, result.ReferencedTables())
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestParseSelectEscapesQuotes(t *testing.T) {
	parser, mock := newMockParser(t)

	payload := `{"error":false,"statements":[]}`
	mock.ExpectQuery("SELECT json_serialize_sql('SELECT ''a''')").
		WillReturnRows(sqlmock.NewRows([]string{"ast"}).AddRow(payload))

	_, err := parser.ParseSelect(context.Background(), "SELECT 'a'")
	require.NoError(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestParseSelectRejectsNonSelect(t *testing.T) {
	parser, mock := newMockParser(t)

	payload := `{"error":true,"error_type":"not implemented","error_message":"Only SELECT statements can be serialized to json!"}`
	mock.ExpectQuery("SELECT json_serialize_sql('DROP TABLE orders')").
		WillReturnRows(sqlmock.NewRows([]string{"ast"}).AddRow(payload))

	_, err := parser.ParseSelect(context.Background(), "DROP TABLE orders")
	require.Error(t, err)

	var verr *ValidationError
	require.True(t, errors.As(err, &verr))
	assert.Equal(t, "Only SELECT statements can be serialized to json!", verr.Message)
}

func TestParseSelectQueryError(t *testing.T) {
	parser, mock := newMockParser(t)

	mock.ExpectQuery("SELECT json_serialize_sql('SELECT 1')").
		WillReturnError(errors.New("connection closed"))

	_, err := parser.ParseSelect(context.Background(), "SELECT 1")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "failed to serialize statement")
}

func TestReferencedTablesDedupAndLowercase(t *testing.T) {
	stmt := json.RawMessage(`{
		"node": {
			"from_table": {"table_name": "Orders"},
			"joins": [
				{"table": {"table_name": "customers"}},
				{"table": {"table_name": "ORDERS"}}
			]
		}
	}`)
	result := &ParseResult{Statements: []json.RawMessage{stmt}}
	assert.ElementsMatch(t, []string{"orders", "customers"}, result.ReferencedTables())
}

func TestReferencedTablesNilResult(t *testing.T) {
	var result *ParseResult
	assert.Nil(t, result.ReferencedTables())
}
