package dbx

import (
	"context"
	"database/sql"
	"errors"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
	_ "modernc.org/sqlite"
)

func openDB(t *testing.T) *sql.DB {
	t.Helper()
	dsn := "file:" + filepath.Join(t.TempDir(), "dbx.db") + "?_txlock=immediate"
	db, err := sql.Open("sqlite", dsn)
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })

	_, err = db.Exec(`CREATE TABLE cursors (table_name TEXT PRIMARY KEY, cutoff_at TEXT NOT NULL)`)
	require.NoError(t, err)
	return db
}

func cursorCount(t *testing.T, db *sql.DB) int {
	t.Helper()
	var n int
	require.NoError(t, db.QueryRow(`SELECT COUNT(*) FROM cursors`).Scan(&n))
	return n
}

func insertCursor(ctx context.Context, tx DBTX, table string) error {
	_, err := tx.ExecContext(ctx, `INSERT INTO cursors VALUES (?, '2024-06-01T12:00:00.000000Z')`, table)
	return err
}

func TestWithTx(t *testing.T) {
	ctx := context.Background()
	boom := errors.New("boom")

	tests := []struct {
		name    string
		fn      func(ctx context.Context, tx DBTX) error
		wantErr error
		want    int
	}{
		{
			name: "commit",
			fn:   func(ctx context.Context, tx DBTX) error { return insertCursor(ctx, tx, "todos") },
			want: 1,
		},
		{
			name: "rollback on error",
			fn: func(ctx context.Context, tx DBTX) error {
				if err := insertCursor(ctx, tx, "todos"); err != nil {
					return err
				}
				return boom
			},
			wantErr: boom,
		},
		{
			name: "statement error",
			fn: func(ctx context.Context, tx DBTX) error {
				_ = insertCursor(ctx, tx, "todos")
				return insertCursor(ctx, tx, "todos")
			},
			wantErr: errAny,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			db := openDB(t)
			err := WithTx(ctx, db, nil, tt.fn)
			switch tt.wantErr {
			case nil:
				require.NoError(t, err)
			case errAny:
				require.Error(t, err)
			default:
				require.ErrorIs(t, err, tt.wantErr)
			}
			require.Equal(t, tt.want, cursorCount(t, db))
		})
	}
}

var errAny = errors.New("any")

func TestWithTx_PanicRollsBackAndPropagates(t *testing.T) {
	db := openDB(t)

	require.PanicsWithValue(t, "kaput", func() {
		_ = WithTx(context.Background(), db, nil, func(ctx context.Context, tx DBTX) error {
			require.NoError(t, insertCursor(ctx, tx, "todos"))
			panic("kaput")
		})
	})
	require.Equal(t, 0, cursorCount(t, db))
}

func TestWithTx_BeginFailsOnClosedDB(t *testing.T) {
	db := openDB(t)
	require.NoError(t, db.Close())

	called := false
	err := WithTx(context.Background(), db, nil, func(ctx context.Context, tx DBTX) error {
		called = true
		return nil
	})
	require.Error(t, err)
	require.False(t, called)
}

func TestCollect(t *testing.T) {
	ctx := context.Background()
	db := openDB(t)
	for _, name := range []string{"tags", "todos"} {
		require.NoError(t, insertCursor(ctx, db, name))
	}

	scanName := func(rows *sql.Rows) (string, error) {
		var name, cutoff string
		err := rows.Scan(&name, &cutoff)
		return name, err
	}

	rows, err := db.QueryContext(ctx, `SELECT table_name, cutoff_at FROM cursors ORDER BY table_name`)
	require.NoError(t, err)
	got, err := Collect(rows, scanName)
	require.NoError(t, err)
	require.Equal(t, []string{"tags", "todos"}, got)

	rows, err = db.QueryContext(ctx, `SELECT table_name, cutoff_at FROM cursors WHERE 0`)
	require.NoError(t, err)
	got, err = Collect(rows, scanName)
	require.NoError(t, err)
	require.Empty(t, got)

	rows, err = db.QueryContext(ctx, `SELECT table_name, cutoff_at FROM cursors`)
	require.NoError(t, err)
	_, err = Collect(rows, func(rows *sql.Rows) (string, error) { return "", errors.New("bad row") })
	require.EqualError(t, err, "bad row")
}
