package migrate

import (
	"context"
	"errors"
	"strings"
	"testing"
	"testing/fstest"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/example/slotbot/internal/db"
)

type boolRow struct {
	v   bool
	err error
}

func (r boolRow) Scan(dest ...any) error {
	if r.err != nil {
		return r.err
	}
	*dest[0].(*bool) = r.v
	return nil
}

type memStore struct {
	versions map[string]bool
	execs    []string
	failOn   string
}

func (m *memStore) Exec(_ context.Context, sql string, args ...any) error {
	if m.failOn != "" && strings.Contains(sql, m.failOn) {
		return errors.New("syntax error")
	}
	m.execs = append(m.execs, sql)
	if strings.HasPrefix(sql, "INSERT INTO schema_migrations") {
		m.versions[args[0].(string)] = true
	}
	return nil
}

func (m *memStore) QueryRow(_ context.Context, _ string, args ...any) db.Row {
	return boolRow{v: m.versions[args[0].(string)]}
}

func TestUpAppliesInOrderOnce(t *testing.T) {
	src := fstest.MapFS{
		"0002_b.sql": {Data: []byte("CREATE TABLE b();")},
		"0001_a.sql": {Data: []byte("CREATE TABLE a();")},
		"README.md":  {Data: []byte("ignored")},
	}
	m := &memStore{versions: map[string]bool{}}

	n, err := up(context.Background(), m, src, zerolog.Nop())
	require.NoError(t, err)
	assert.Equal(t, 2, n)
	assert.Equal(t, "CREATE TABLE a();", m.execs[1])
	assert.Equal(t, "CREATE TABLE b();", m.execs[3])

	n, err = up(context.Background(), m, src, zerolog.Nop())
	require.NoError(t, err)
	assert.Zero(t, n, "second run is a no-op")
}

func TestUpStopsOnFailure(t *testing.T) {
	src := fstest.MapFS{
		"0001_a.sql": {Data: []byte("CREATE TABLE a();")},
		"0002_b.sql": {Data: []byte("BROKEN")},
		"0003_c.sql": {Data: []byte("CREATE TABLE c();")},
	}
	m := &memStore{versions: map[string]bool{}, failOn: "BROKEN"}

	n, err := up(context.Background(), m, src, zerolog.Nop())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "0002_b.sql")
	assert.Equal(t, 1, n)
	assert.False(t, m.versions["0003_c.sql"])
}

func TestEmbeddedSchema(t *testing.T) {
	m := &memStore{versions: map[string]bool{}}
	n, err := Up(context.Background(), m, zerolog.Nop())
	require.NoError(t, err)
	assert.GreaterOrEqual(t, n, 1)
	assert.True(t, m.versions["0001_bookings.sql"])
}
