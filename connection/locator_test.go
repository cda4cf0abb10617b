package connection

import (
	"errors"
	"testing"

	"github.com/syssam/atlas/dialect"
	"github.com/syssam/atlas/dialect/sql"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func mockDriver(t *testing.T, name string) (*sql.Driver, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	return sql.OpenDB(name, db), mock
}

func TestLocatorDefault(t *testing.T) {
	def, _ := mockDriver(t, dialect.Postgres)
	calls := 0
	l := New(WithDefault(func() (dialect.Driver, error) {
		calls++
		return def, nil
	}))
	assert.Zero(t, calls, "connections are opened lazily")

	for range 3 {
		drv, err := l.Default()
		require.NoError(t, err)
		assert.Same(t, def, drv)
	}
	assert.Equal(t, 1, calls)

	read, err := l.Read()
	require.NoError(t, err)
	assert.Same(t, def, read, "read falls back to the default")
	write, err := l.Write()
	require.NoError(t, err)
	assert.Same(t, def, write, "write falls back to the default")

	d, err := l.Dialect()
	require.NoError(t, err)
	assert.Equal(t, dialect.Postgres, d)
}

func TestLocatorNamed(t *testing.T) {
	def, _ := mockDriver(t, dialect.SQLite)
	r1, _ := mockDriver(t, dialect.SQLite)
	r2, _ := mockDriver(t, dialect.SQLite)
	w1, _ := mockDriver(t, dialect.SQLite)
	l := New(
		WithDefault(Static(def)),
		WithRead("r1", Static(r1)),
		WithRead("r2", Static(r2)),
		WithWrite("w1", Static(w1)),
	)

	drv, err := l.Read("r2")
	require.NoError(t, err)
	assert.Same(t, r2, drv)

	for range 10 {
		drv, err := l.Read()
		require.NoError(t, err)
		assert.True(t, drv == dialect.Driver(r1) || drv == dialect.Driver(r2))
	}
	drv, err = l.Write()
	require.NoError(t, err)
	assert.Same(t, w1, drv)

	_, err = l.Write("missing")
	require.Error(t, err)
}

func TestLocatorErrors(t *testing.T) {
	_, err := New().Default()
	require.Error(t, err)

	boom := errors.New("boom")
	calls := 0
	l := New(WithDefault(func() (dialect.Driver, error) {
		calls++
		return nil, boom
	}))
	_, err = l.Read()
	require.ErrorIs(t, err, boom)
	_, err = l.Read()
	require.ErrorIs(t, err, boom)
	assert.Equal(t, 2, calls, "failed opens are retried")
}

func TestLocatorClose(t *testing.T) {
	def, mock := mockDriver(t, dialect.SQLite)
	mock.ExpectClose()
	l := New(WithDefault(Static(def)), WithRead("r", Static(def)))
	require.NoError(t, l.Close(), "nothing opened yet")

	_, err := l.Read("r")
	require.NoError(t, err)
	_, err = l.Default()
	require.NoError(t, err)
	require.NoError(t, l.Close())
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestLocatorCloseErrors(t *testing.T) {
	def, defMock := mockDriver(t, dialect.SQLite)
	read, readMock := mockDriver(t, dialect.SQLite)
	errDef, errRead := errors.New("default gone"), errors.New("replica gone")
	defMock.ExpectClose().WillReturnError(errDef)
	readMock.ExpectClose().WillReturnError(errRead)

	l := New(WithDefault(Static(def)), WithRead("r", Static(read)))
	_, err := l.Default()
	require.NoError(t, err)
	_, err = l.Read("r")
	require.NoError(t, err)

	err = l.Close()
	require.Error(t, err)
	assert.ErrorIs(t, err, errDef)
	assert.ErrorIs(t, err, errRead)
	assert.Contains(t, err.Error(), "connection: close: ")
}
