package config

import (
	"bytes"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/syssam/atlas"
	"github.com/syssam/atlas/table"
)

const sample = `
dialect: postgres
dsn: postgres://localhost/forum?sslmode=disable
read:
  replica1: postgres://replica1/forum
max_open_conns: 8
slow_query_threshold: 250ms
log:
  level: debug
  format: json
cache:
  enabled: true
tables:
  - name: authors
    primary_key: author_id
    auto_increment: true
    columns:
      - {name: author_id, type: int}
      - {name: name, type: string}
      - {name: email, type: string, nullable: true}
`

func TestParse(t *testing.T) {
	cfg, err := Parse([]byte(sample))
	require.NoError(t, err)
	require.NoError(t, cfg.Validate())

	assert.Equal(t, "postgres", cfg.Dialect)
	assert.Equal(t, map[string]string{"replica1": "postgres://replica1/forum"}, cfg.Read)
	assert.Equal(t, 8, cfg.MaxOpenConns)
	assert.Equal(t, 250*time.Millisecond, cfg.SlowQueryThreshold)
	assert.Equal(t, Log{Level: "debug", Format: "json"}, cfg.Log)
	assert.Equal(t, Cache{Enabled: true, TTL: time.Minute}, cfg.Cache, "default ttl")
	require.Len(t, cfg.Tables, 1)
	assert.Equal(t, "author_id", cfg.Tables[0].PrimaryKey)
	assert.Equal(t, table.TypeString, cfg.Tables[0].Columns[2].Type)
	assert.True(t, cfg.Tables[0].Columns[2].Nullable)
}

func TestParseDefaults(t *testing.T) {
	cfg, err := Parse([]byte("dialect: sqlite3\ndsn: ':memory:'\n"))
	require.NoError(t, err)
	assert.Equal(t, "sqlite", cfg.Dialect)
	assert.Equal(t, Log{Level: "info", Format: "text"}, cfg.Log)
	assert.False(t, cfg.Cache.Enabled)

	_, err = Parse([]byte("dialect: [oops"))
	assert.Error(t, err)
}

func TestEnvOverrides(t *testing.T) {
	t.Setenv(EnvDialect, "mysql")
	t.Setenv(EnvDSN, "root@tcp(localhost:3306)/forum")
	t.Setenv(EnvDebug, "true")
	t.Setenv(EnvLogLevel, "warn")
	t.Setenv(EnvLogFormat, "text")
	t.Setenv(EnvSlowQueryThreshold, "1s")

	cfg, err := Parse([]byte(sample))
	require.NoError(t, err)
	assert.Equal(t, "mysql", cfg.Dialect)
	assert.Equal(t, "root@tcp(localhost:3306)/forum", cfg.DSN)
	assert.True(t, cfg.Debug)
	assert.Equal(t, Log{Level: "warn", Format: "text"}, cfg.Log)
	assert.Equal(t, time.Second, cfg.SlowQueryThreshold)
}

func TestEnvOverrideErrors(t *testing.T) {
	tests := []struct {
		name string
		env  map[string]string
	}{
		{name: "debug", env: map[string]string{EnvDebug: "maybe"}},
		{name: "threshold", env: map[string]string{EnvSlowQueryThreshold: "soon"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			lookup := func(k string) (string, bool) {
				v, ok := tt.env[k]
				return v, ok
			}
			assert.Error(t, applyEnv(&Config{}, lookup))
		})
	}
}

func TestLoad(t *testing.T) {
	path := filepath.Join(t.TempDir(), "atlas.yaml")
	require.NoError(t, os.WriteFile(path, []byte(sample), 0o644))
	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "postgres", cfg.Dialect)

	_, err = Load(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.ErrorIs(t, err, os.ErrNotExist)

	data, err := cfg.Marshal()
	require.NoError(t, err)
	again, err := Parse(data)
	require.NoError(t, err)
	assert.Equal(t, cfg.SlowQueryThreshold, again.SlowQueryThreshold)
	assert.Equal(t, cfg.Tables, again.Tables)
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name string
		cfg  Config
		want []string
	}{
		{name: "empty", cfg: Config{}, want: []string{"missing dialect", "missing dsn"}},
		{name: "unknown dialect", cfg: Config{Dialect: "oracle", DSN: "x"}, want: []string{`unknown dialect "oracle"`}},
		{name: "log", cfg: Config{Dialect: "sqlite", DSN: "x", Log: Log{Level: "loud", Format: "xml"}}, want: []string{"log level", `unknown log format "xml"`}},
		{name: "pool", cfg: Config{Dialect: "sqlite", DSN: "x", MaxOpenConns: -1}, want: []string{"negative max_open_conns"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.cfg.Validate()
			require.Error(t, err)
			for _, w := range tt.want {
				assert.ErrorContains(t, err, w)
			}
		})
	}

	cfg := Config{Dialect: "sqlite", DSN: "x", Tables: []table.Definition{{Name: "bad name"}}}
	assert.ErrorIs(t, cfg.Validate(), atlas.ErrInvalidDefinition)
}

func TestLogger(t *testing.T) {
	var buf bytes.Buffer
	cfg := Config{Log: Log{Level: "warn", Format: "json"}}
	logger, err := cfg.Logger(&buf)
	require.NoError(t, err)
	logger.Info("dropped")
	logger.Warn("kept", "table", "threads")

	var entry map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &entry))
	assert.Equal(t, "kept", entry["msg"])
	assert.Equal(t, "threads", entry["table"])

	cfg.Log.Format = "xml"
	_, err = cfg.Logger(&buf)
	assert.Error(t, err)
}
